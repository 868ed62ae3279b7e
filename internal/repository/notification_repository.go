package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
)

// NotificationRepository reads in-app notifications. Rows are written by the marking
// transaction through AttendanceTx.
type NotificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `n.id, n.student_id, n.type, n.message, n.meta, n.read, n.created_at`

// ListForStudent returns a student's notifications, newest first.
func (r *NotificationRepository) ListForStudent(ctx context.Context, studentID string) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications n WHERE n.student_id = $1 ORDER BY n.created_at DESC`
	items := make([]models.Notification, 0)
	if err := r.db.SelectContext(ctx, &items, query, studentID); err != nil {
		return nil, fmt.Errorf("list student notifications: %w", err)
	}
	return items, nil
}

// ListRecent returns the latest notifications across all students.
func (r *NotificationRepository) ListRecent(ctx context.Context, limit int) ([]models.NotificationView, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + notificationColumns + `, u.name AS student_name, s.roll_number
FROM notifications n
JOIN students s ON s.id = n.student_id
JOIN users u ON u.id = s.user_id
ORDER BY n.created_at DESC
LIMIT $1`
	items := make([]models.NotificationView, 0)
	if err := r.db.SelectContext(ctx, &items, query, limit); err != nil {
		return nil, fmt.Errorf("list recent notifications: %w", err)
	}
	return items, nil
}
