package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
)

// StudentRepository reads student profiles joined with their user accounts.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new repository instance.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentSelect = `SELECT s.id, s.user_id, s.class_id, s.roll_number, u.name, u.email
FROM students s
JOIN users u ON u.id = s.user_id`

// FindByID fetches a student by id. sql.ErrNoRows is returned unwrapped.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, studentSelect+` WHERE s.id = $1`, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByUserID fetches the student profile owned by a user account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, studentSelect+` WHERE s.user_id = $1`, userID); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListByClass returns the enrolled students of a class ordered by roll number.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	students := make([]models.Student, 0)
	if err := r.db.SelectContext(ctx, &students, studentSelect+` WHERE s.class_id = $1 ORDER BY s.roll_number`, classID); err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}
	return students, nil
}

// ListIDs returns every student id in a stable order.
func (r *StudentRepository) ListIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0)
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM students ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list student ids: %w", err)
	}
	return ids, nil
}

// Contacts returns alert contact details for the given students keyed by student id.
func (r *StudentRepository) Contacts(ctx context.Context, ids []string) (map[string]models.StudentContact, error) {
	result := make(map[string]models.StudentContact, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT s.id AS student_id, u.name, u.email, c.name AS class_name
FROM students s
JOIN users u ON u.id = s.user_id
JOIN classes c ON c.id = s.class_id
WHERE s.id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build contacts query: %w", err)
	}
	var rows []models.StudentContact
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load student contacts: %w", err)
	}
	for _, row := range rows {
		result[row.StudentID] = row
	}
	return result, nil
}
