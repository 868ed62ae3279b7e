package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
)

// MergedReportRepository persists daily merged class reports.
type MergedReportRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewMergedReportRepository(db *sqlx.DB) *MergedReportRepository {
	return &MergedReportRepository{db: db, now: time.Now}
}

const mergedReportColumns = `id, class_id, report_date, total_students, total_present, total_absent, file_path, created_at, updated_at`

// Upsert writes the report for (class, date), replacing totals and file on regeneration.
func (r *MergedReportRepository) Upsert(ctx context.Context, report *models.MergedClassReport) (*models.MergedClassReport, error) {
	now := r.now().UTC()
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	query := `INSERT INTO merged_class_reports (` + mergedReportColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (class_id, report_date) DO UPDATE SET
	total_students = EXCLUDED.total_students,
	total_present = EXCLUDED.total_present,
	total_absent = EXCLUDED.total_absent,
	file_path = EXCLUDED.file_path,
	updated_at = EXCLUDED.updated_at
RETURNING ` + mergedReportColumns
	var stored models.MergedClassReport
	if err := r.db.GetContext(ctx, &stored, query,
		report.ID, report.ClassID, report.ReportDate, report.TotalStudents,
		report.TotalPresent, report.TotalAbsent, report.FilePath, now); err != nil {
		return nil, fmt.Errorf("upsert merged report: %w", err)
	}
	return &stored, nil
}

// FindByID returns a report or nil.
func (r *MergedReportRepository) FindByID(ctx context.Context, id string) (*models.MergedClassReport, error) {
	var report models.MergedClassReport
	if err := r.db.GetContext(ctx, &report, `SELECT `+mergedReportColumns+` FROM merged_class_reports WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find merged report: %w", err)
	}
	return &report, nil
}

// ListByClass returns a class's reports, newest first.
func (r *MergedReportRepository) ListByClass(ctx context.Context, classID string, limit int) ([]models.MergedClassReport, error) {
	if limit <= 0 || limit > 365 {
		limit = 30
	}
	reports := make([]models.MergedClassReport, 0)
	query := `SELECT ` + mergedReportColumns + ` FROM merged_class_reports WHERE class_id = $1 ORDER BY report_date DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &reports, query, classID, limit); err != nil {
		return nil, fmt.Errorf("list merged reports: %w", err)
	}
	return reports, nil
}
