package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	"github.com/bodhisatwazer00ne/WAA-100/internal/service"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/response"
)

type reportService interface {
	ListMergedReports(ctx context.Context, classID string) ([]service.MergedReportView, error)
	Download(ctx context.Context, token string) (*service.ReportDownload, error)
	StudentReport(ctx context.Context, actor models.Actor, studentID string) (*service.ExportedFile, error)
}

// ReportHandler exposes merged class reports and student PDFs.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// MergedReports godoc
// @Summary Daily merged reports of a class with signed download links
// @Tags Reports
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /reports/class/{classId}/merged [get]
func (h *ReportHandler) MergedReports(c *gin.Context) {
	reports, err := h.reports.ListMergedReports(c.Request.Context(), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reports)
}

// Download godoc
// @Summary Download a merged report through a signed token
// @Tags Reports
// @Produce application/pdf
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /reports/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	download, err := h.reports.Download(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", download.Filename),
	})
}

// StudentReport godoc
// @Summary Subject-wise attendance PDF for a student
// @Tags Reports
// @Produce application/pdf
// @Param studentId path string true "Student ID"
// @Success 200 {file} binary
// @Router /reports/student/{studentId} [get]
func (h *ReportHandler) StudentReport(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.reports.StudentReport(c.Request.Context(), actor, c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
