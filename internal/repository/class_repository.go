package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
)

// ClassRepository reads class metadata.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository builds a class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

const classSelect = `SELECT id, name, department_id, class_teacher_id, semester FROM classes`

// FindByID returns a class by id. sql.ErrNoRows is returned unwrapped.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	var class models.Class
	if err := r.db.GetContext(ctx, &class, classSelect+` WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// List returns every class ordered by name.
func (r *ClassRepository) List(ctx context.Context) ([]models.Class, error) {
	classes := make([]models.Class, 0)
	if err := r.db.SelectContext(ctx, &classes, classSelect+` ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}
