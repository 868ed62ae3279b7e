package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bodhisatwazer00ne/WAA-100/internal/dto"
	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	"github.com/bodhisatwazer00ne/WAA-100/internal/service"
	appErrors "github.com/bodhisatwazer00ne/WAA-100/pkg/errors"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/response"
)

type attendanceService interface {
	MarkAttendance(ctx context.Context, req service.MarkAttendanceRequest, actor models.Actor) (*service.MarkAttendanceResult, error)
	CheckSession(ctx context.Context, q service.SessionQuery) (bool, error)
	SessionRecords(ctx context.Context, q service.SessionQuery) ([]models.SessionRecordView, error)
	StudentRecords(ctx context.Context, actor models.Actor, studentID string) ([]models.StudentAttendanceView, error)
	TeacherSubjects(ctx context.Context, actor models.Actor) ([]models.Subject, error)
	TeacherClasses(ctx context.Context, actor models.Actor, subjectID string) ([]models.Class, error)
	ClassStudents(ctx context.Context, classID string) ([]models.Student, error)
}

type overrideService interface {
	OverrideToPresent(ctx context.Context, req service.OverrideRequest, actor models.Actor) (*service.OverrideResult, error)
}

// AttendanceHandler exposes attendance marking, override and lookup endpoints.
type AttendanceHandler struct {
	attendance attendanceService
	overrides  overrideService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(attendance attendanceService, overrides overrideService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, overrides: overrides}
}

// Mark godoc
// @Summary Record attendance for a class session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkAttendanceRequest true "Session and per-student statuses"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/mark [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	result, err := h.attendance.MarkAttendance(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.MarkAttendanceResponse{
		Message: "Attendance marked successfully",
		Count:   result.Count,
		Notifications: dto.NotificationSummary{
			Attempted: result.Notifications.Attempted,
			Delivered: result.Notifications.Delivered,
			Failed:    result.Notifications.Failed,
		},
	})
}

// Override godoc
// @Summary Flip a student's absences on a date to present
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.OverrideRequest true "Override request"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/override [post]
func (h *AttendanceHandler) Override(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	result, err := h.overrides.OverrideToPresent(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.OverrideResponse{Message: "Attendance overridden successfully", OverriddenCount: result.OverriddenCount})
}

// Check godoc
// @Summary Check whether a session is already recorded
// @Tags Attendance
// @Produce json
// @Param classId query string true "Class ID"
// @Param subjectId query string true "Subject ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/check [get]
func (h *AttendanceHandler) Check(c *gin.Context) {
	var q service.SessionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	exists, err := h.attendance.CheckSession(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.CheckSessionResponse{Exists: exists})
}

// Records godoc
// @Summary List the records of a session
// @Tags Attendance
// @Produce json
// @Param classId query string true "Class ID"
// @Param subjectId query string true "Subject ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/records [get]
func (h *AttendanceHandler) Records(c *gin.Context) {
	var q service.SessionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	rows, err := h.attendance.SessionRecords(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rows)
}

// StudentRecords godoc
// @Summary A student's attendance history
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/student/{studentId} [get]
func (h *AttendanceHandler) StudentRecords(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, err := h.attendance.StudentRecords(c.Request.Context(), actor, c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rows)
}

// TeacherSubjects godoc
// @Summary Subjects taught by the caller
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /attendance/teacher/subjects [get]
func (h *AttendanceHandler) TeacherSubjects(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	subjects, err := h.attendance.TeacherSubjects(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, subjects)
}

// TeacherClasses godoc
// @Summary Classes the caller teaches a subject in
// @Tags Attendance
// @Produce json
// @Param subjectId query string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/teacher/classes [get]
func (h *AttendanceHandler) TeacherClasses(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	classes, err := h.attendance.TeacherClasses(c.Request.Context(), actor, c.Query("subjectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, classes)
}

// ClassStudents godoc
// @Summary Roster of a class
// @Tags Attendance
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/classes/{classId}/students [get]
func (h *AttendanceHandler) ClassStudents(c *gin.Context) {
	students, err := h.attendance.ClassStudents(c.Request.Context(), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students)
}
