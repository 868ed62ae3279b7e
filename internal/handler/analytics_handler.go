package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bodhisatwazer00ne/WAA-100/internal/dto"
	"github.com/bodhisatwazer00ne/WAA-100/internal/middleware"
	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	"github.com/bodhisatwazer00ne/WAA-100/internal/service"
	appErrors "github.com/bodhisatwazer00ne/WAA-100/pkg/errors"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/jobs"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/response"
)

type analyticsService interface {
	StudentAnalytics(ctx context.Context, actor models.Actor, studentID string) (*models.AnalyticsCache, error)
	ClassAnalytics(ctx context.Context, classID string) ([]models.ClassStudentAnalytics, error)
	RiskDistribution(ctx context.Context, classID string) (models.RiskDistribution, error)
	DepartmentSummary(ctx context.Context) ([]models.ClassSummary, error)
	Defaulters(ctx context.Context, classID string) ([]models.Defaulter, error)
	ExportDefaulters(ctx context.Context, classID string, format models.ReportFormat) (*service.ExportedFile, error)
	Recovery(ctx context.Context, actor models.Actor, studentID string, remaining int) (*models.RecoveryProjection, error)
	SystemMetrics() models.SystemMetrics
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) (bool, error)
}

// AnalyticsHandler exposes analytics read models and the recompute trigger.
type AnalyticsHandler struct {
	analytics analyticsService
	queue     jobEnqueuer
}

// NewAnalyticsHandler constructs the analytics handler. queue may be nil, which disables
// the recompute trigger.
func NewAnalyticsHandler(analytics analyticsService, queue jobEnqueuer) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, queue: queue}
}

// Student godoc
// @Summary Cached analytics for one student
// @Tags Analytics
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /analytics/student/{studentId} [get]
func (h *AnalyticsHandler) Student(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	result, err := h.analytics.StudentAnalytics(c.Request.Context(), actor, c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, middleware.MetaWithTiming(c, start))
}

// Class godoc
// @Summary Analytics for every student of a class
// @Tags Analytics
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /analytics/class/{classId} [get]
func (h *AnalyticsHandler) Class(c *gin.Context) {
	start := time.Now()
	result, err := h.analytics.ClassAnalytics(c.Request.Context(), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, middleware.MetaWithTiming(c, start))
}

// RiskDistribution godoc
// @Summary Students per risk tier
// @Tags Analytics
// @Produce json
// @Param classId query string false "Restrict to one class"
// @Success 200 {object} response.Envelope
// @Router /analytics/risk-distribution [get]
func (h *AnalyticsHandler) RiskDistribution(c *gin.Context) {
	start := time.Now()
	result, err := h.analytics.RiskDistribution(c.Request.Context(), c.Query("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, middleware.MetaWithTiming(c, start))
}

// DepartmentSummary godoc
// @Summary Per-class overview
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/department/summary [get]
func (h *AnalyticsHandler) DepartmentSummary(c *gin.Context) {
	start := time.Now()
	result, err := h.analytics.DepartmentSummary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, middleware.MetaWithTiming(c, start))
}

// Defaulters godoc
// @Summary Students below 75% attendance
// @Tags Analytics
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param classId query string false "Restrict to one class"
// @Param format query string false "json (default), csv or pdf"
// @Success 200 {object} response.Envelope
// @Router /analytics/defaulters [get]
func (h *AnalyticsHandler) Defaulters(c *gin.Context) {
	format := models.ReportFormat(strings.ToLower(c.DefaultQuery("format", string(models.ReportFormatJSON))))
	classID := c.Query("classId")

	if format == models.ReportFormatJSON {
		start := time.Now()
		rows, err := h.analytics.Defaulters(c.Request.Context(), classID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, rows, middleware.MetaWithTiming(c, start))
		return
	}

	file, err := h.analytics.ExportDefaulters(c.Request.Context(), classID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Recovery godoc
// @Summary Classes needed to reach 75% and 85%
// @Tags Analytics
// @Produce json
// @Param studentId path string true "Student ID"
// @Param remainingClasses query int false "Upcoming classes (default 30)"
// @Success 200 {object} response.Envelope
// @Router /recovery/student/{studentId} [get]
func (h *AnalyticsHandler) Recovery(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	remaining, err := parseQueryInt(c, "remainingClasses", service.DefaultRemainingClasses)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.analytics.Recovery(c.Request.Context(), actor, c.Param("studentId"), remaining)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// System godoc
// @Summary Process instrumentation snapshot
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	start := time.Now()
	metrics := h.analytics.SystemMetrics()
	response.JSON(c, http.StatusOK, metrics, middleware.MetaWithTiming(c, start))
}

// Recompute godoc
// @Summary Queue an analytics recompute for one student or everyone
// @Tags Analytics
// @Accept json
// @Produce json
// @Param payload body dto.RecomputeRequest false "Omit studentId for a full sweep"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /analytics/recompute [post]
func (h *AnalyticsHandler) Recompute(c *gin.Context) {
	if h.queue == nil {
		response.Error(c, appErrors.ErrQueueFull)
		return
	}
	var req dto.RecomputeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
			return
		}
	}

	job := service.RecomputeAllJob()
	resp := dto.RecomputeResponse{Scope: "all"}
	if req.StudentID != "" {
		job = service.RecomputeStudentJob(req.StudentID)
		resp = dto.RecomputeResponse{Scope: "student", StudentID: req.StudentID}
	}

	queued, err := h.queue.Enqueue(job)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrQueueFull.Code, appErrors.ErrQueueFull.Status, appErrors.ErrQueueFull.Message))
		return
	}
	resp.Queued = queued
	response.JSON(c, http.StatusAccepted, resp)
}
