package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	appErrors "github.com/bodhisatwazer00ne/WAA-100/pkg/errors"
)

// StudentLookup resolves student profiles.
type StudentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

// authorizeStudentRead lets staff read any student and students read only themselves.
func authorizeStudentRead(ctx context.Context, students StudentLookup, actor models.Actor, studentID string) error {
	if actor.Role.Staff() {
		return nil
	}
	if actor.Role != models.RoleStudent {
		return appErrors.ErrForbidden
	}
	self, err := students.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "student profile not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	if self.ID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "students may only view their own records")
	}
	return nil
}
