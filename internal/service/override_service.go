package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	appErrors "github.com/bodhisatwazer00ne/WAA-100/pkg/errors"
)

type overrideStore interface {
	OverrideAbsences(ctx context.Context, studentID string, day time.Time, reason, actorUserID string) ([]models.AttendanceRecord, error)
}

// OverrideRequest flips a student's absences on one day to present.
type OverrideRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	Date      string `json:"date" validate:"required"`
	Reason    string `json:"reason" validate:"required,min=3"`
}

// OverrideResult reports how many records changed.
type OverrideResult struct {
	OverriddenCount int `json:"overriddenCount"`
}

// OverrideService corrects absences with an audit trail.
type OverrideService struct {
	store     overrideStore
	students  StudentLookup
	classes   classLookup
	analytics AnalyticsRecomputer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewOverrideService constructs the override service.
func NewOverrideService(store overrideStore, students StudentLookup, classes classLookup, analytics AnalyticsRecomputer, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *OverrideService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverrideService{
		store:     store,
		students:  students,
		classes:   classes,
		analytics: analytics,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// OverrideToPresent marks every absence of the student on the given day as present,
// writing one audit row per record, then recomputes the student's analytics once.
// Teachers and class teachers may only override students of the class they lead.
func (s *OverrideService) OverrideToPresent(ctx context.Context, req OverrideRequest, actor models.Actor) (*OverrideResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	day, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if !actor.Role.Staff() {
		return nil, appErrors.ErrForbidden
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !actor.Role.Supervisor() {
		if err := s.ensureClassTeacher(ctx, student.ClassID, actor.UserID); err != nil {
			return nil, err
		}
	}

	changed, err := s.store.OverrideAbsences(ctx, student.ID, day, req.Reason, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to override attendance")
	}
	if len(changed) == 0 {
		s.logger.Info("no absence to override",
			zap.String("student_id", student.ID),
			zap.String("date", req.Date),
			zap.String("actor_user_id", actor.UserID),
		)
		return nil, appErrors.ErrNoAbsenceFound
	}
	s.metrics.RecordOverrides(len(changed))
	s.logger.Info("attendance overridden",
		zap.String("student_id", student.ID),
		zap.String("date", req.Date),
		zap.String("actor_user_id", actor.UserID),
		zap.Int("records", len(changed)),
	)

	if _, err := s.analytics.RecomputeStudentAnalytics(context.WithoutCancel(ctx), student.ID); err != nil {
		s.logger.Error("analytics recompute after override failed", zap.String("student_id", student.ID), zap.Error(err))
	}
	return &OverrideResult{OverriddenCount: len(changed)}, nil
}

func (s *OverrideService) ensureClassTeacher(ctx context.Context, classID, userID string) error {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "You can only override attendance for your class")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.ClassTeacherID == nil || *class.ClassTeacherID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "You can only override attendance for your class")
	}
	return nil
}
