package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	appErrors "github.com/bodhisatwazer00ne/WAA-100/pkg/errors"
)

// recentNotificationLimit bounds the staff-wide notification feed.
const recentNotificationLimit = 100

type notificationReader interface {
	ListForStudent(ctx context.Context, studentID string) ([]models.Notification, error)
	ListRecent(ctx context.Context, limit int) ([]models.NotificationView, error)
}

// NotificationService exposes the in-app notifications written by attendance marking.
type NotificationService struct {
	repo     notificationReader
	students StudentLookup
	logger   *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(repo notificationReader, students StudentLookup, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, students: students, logger: logger}
}

// ListMine returns the calling student's notifications, newest first. A student user
// without a profile has no notifications.
func (s *NotificationService) ListMine(ctx context.Context, actor models.Actor) ([]models.Notification, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students have personal notifications")
	}
	student, err := s.students.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.Notification{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	items, err := s.repo.ListForStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notifications")
	}
	return items, nil
}

// ListAll returns the most recent notifications across all students.
func (s *NotificationService) ListAll(ctx context.Context) ([]models.NotificationView, error) {
	items, err := s.repo.ListRecent(ctx, recentNotificationLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notifications")
	}
	return items, nil
}
