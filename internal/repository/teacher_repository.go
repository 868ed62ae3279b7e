package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
)

// TeacherRepository reads teacher profiles and their class/subject mappings.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a teacher repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// FindByUserID returns the teacher profile of a user account. sql.ErrNoRows is returned
// unwrapped.
func (r *TeacherRepository) FindByUserID(ctx context.Context, userID string) (*models.Teacher, error) {
	const query = `SELECT t.id, t.user_id, t.department_id, u.name, u.email
FROM teachers t
JOIN users u ON u.id = t.user_id
WHERE t.user_id = $1`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, userID); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// Subjects lists the distinct subjects a teacher is mapped to.
func (r *TeacherRepository) Subjects(ctx context.Context, teacherID string) ([]models.Subject, error) {
	const query = `SELECT DISTINCT sub.id, sub.code, sub.name, sub.department_id
FROM teacher_class_subjects tcs
JOIN subjects sub ON sub.id = tcs.subject_id
WHERE tcs.teacher_id = $1
ORDER BY sub.name`
	subjects := make([]models.Subject, 0)
	if err := r.db.SelectContext(ctx, &subjects, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher subjects: %w", err)
	}
	return subjects, nil
}

// ClassesForSubject lists the classes a teacher teaches the subject in.
func (r *TeacherRepository) ClassesForSubject(ctx context.Context, teacherID, subjectID string) ([]models.Class, error) {
	const query = `SELECT c.id, c.name, c.department_id, c.class_teacher_id, c.semester
FROM teacher_class_subjects tcs
JOIN classes c ON c.id = tcs.class_id
WHERE tcs.teacher_id = $1 AND tcs.subject_id = $2
ORDER BY c.name`
	classes := make([]models.Class, 0)
	if err := r.db.SelectContext(ctx, &classes, query, teacherID, subjectID); err != nil {
		return nil, fmt.Errorf("list teacher classes: %w", err)
	}
	return classes, nil
}
