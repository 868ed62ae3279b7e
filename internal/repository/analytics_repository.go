package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
)

// AnalyticsRepository stores the per-student analytics cache and serves the aggregate
// read views built on it.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

const analyticsColumns = `student_id, overall_pct, subject_wise, rate_of_decline, acceleration, variance, weekly_avg, term_avg, risk_level, last_computed_at`

// Upsert replaces the student's cache row wholesale.
func (r *AnalyticsRepository) Upsert(ctx context.Context, a *models.AnalyticsCache) error {
	query := `INSERT INTO analytics_cache (` + analyticsColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (student_id) DO UPDATE SET
	overall_pct = EXCLUDED.overall_pct,
	subject_wise = EXCLUDED.subject_wise,
	rate_of_decline = EXCLUDED.rate_of_decline,
	acceleration = EXCLUDED.acceleration,
	variance = EXCLUDED.variance,
	weekly_avg = EXCLUDED.weekly_avg,
	term_avg = EXCLUDED.term_avg,
	risk_level = EXCLUDED.risk_level,
	last_computed_at = EXCLUDED.last_computed_at`
	_, err := r.db.ExecContext(ctx, query,
		a.StudentID, a.OverallPct, a.SubjectWise, a.RateOfDecline, a.Acceleration,
		a.Variance, a.WeeklyAvg, a.TermAvg, a.RiskLevel, a.LastComputedAt)
	if err != nil {
		return fmt.Errorf("upsert analytics cache: %w", err)
	}
	return nil
}

// FindByStudent returns the student's cache row or nil when none was computed yet.
func (r *AnalyticsRepository) FindByStudent(ctx context.Context, studentID string) (*models.AnalyticsCache, error) {
	query := `SELECT ` + analyticsColumns + ` FROM analytics_cache WHERE student_id = $1`
	var cache models.AnalyticsCache
	if err := r.db.GetContext(ctx, &cache, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find analytics cache: %w", err)
	}
	return &cache, nil
}

type classAnalyticsRow struct {
	ID             string              `db:"id"`
	Name           string              `db:"name"`
	RollNumber     string              `db:"roll_number"`
	CacheStudentID sql.NullString      `db:"student_id"`
	OverallPct     sql.NullFloat64     `db:"overall_pct"`
	SubjectWise    models.SubjectStats `db:"subject_wise"`
	RateOfDecline  sql.NullFloat64     `db:"rate_of_decline"`
	Acceleration   sql.NullFloat64     `db:"acceleration"`
	Variance       sql.NullFloat64     `db:"variance"`
	WeeklyAvg      sql.NullFloat64     `db:"weekly_avg"`
	TermAvg        sql.NullFloat64     `db:"term_avg"`
	RiskLevel      sql.NullString      `db:"risk_level"`
	LastComputedAt sql.NullTime        `db:"last_computed_at"`
}

// ListByClass pairs every student of the class with their cache row, if any.
func (r *AnalyticsRepository) ListByClass(ctx context.Context, classID string) ([]models.ClassStudentAnalytics, error) {
	const query = `SELECT s.id, u.name, s.roll_number,
	ac.student_id, ac.overall_pct, ac.subject_wise, ac.rate_of_decline, ac.acceleration, ac.variance,
	ac.weekly_avg, ac.term_avg, ac.risk_level, ac.last_computed_at
FROM students s
JOIN users u ON u.id = s.user_id
LEFT JOIN analytics_cache ac ON ac.student_id = s.id
WHERE s.class_id = $1
ORDER BY s.roll_number`
	var rows []classAnalyticsRow
	if err := r.db.SelectContext(ctx, &rows, query, classID); err != nil {
		return nil, fmt.Errorf("list class analytics: %w", err)
	}

	result := make([]models.ClassStudentAnalytics, 0, len(rows))
	for _, row := range rows {
		item := models.ClassStudentAnalytics{
			Student: models.StudentRef{ID: row.ID, Name: row.Name, RollNumber: row.RollNumber},
		}
		if row.CacheStudentID.Valid {
			item.Analytics = &models.AnalyticsCache{
				StudentID:      row.CacheStudentID.String,
				OverallPct:     row.OverallPct.Float64,
				SubjectWise:    row.SubjectWise,
				RateOfDecline:  row.RateOfDecline.Float64,
				Acceleration:   row.Acceleration.Float64,
				Variance:       row.Variance.Float64,
				WeeklyAvg:      row.WeeklyAvg.Float64,
				TermAvg:        row.TermAvg.Float64,
				RiskLevel:      models.RiskLevel(row.RiskLevel.String),
				LastComputedAt: row.LastComputedAt.Time,
			}
		}
		result = append(result, item)
	}
	return result, nil
}

// StudentRisks returns one row per student (optionally of one class) with the cached
// percentage and tier, both nil for students never computed.
func (r *AnalyticsRepository) StudentRisks(ctx context.Context, classID string) ([]models.StudentRisk, error) {
	var builder strings.Builder
	builder.WriteString(`SELECT s.id AS student_id, s.class_id, ac.overall_pct, ac.risk_level
FROM students s
LEFT JOIN analytics_cache ac ON ac.student_id = s.id`)
	var args []interface{}
	if classID != "" {
		args = append(args, classID)
		builder.WriteString(fmt.Sprintf(" WHERE s.class_id = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY s.class_id, s.roll_number")

	rows := make([]models.StudentRisk, 0)
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list student risks: %w", err)
	}
	return rows, nil
}

// Defaulters lists students in the high tier, lowest percentage first.
func (r *AnalyticsRepository) Defaulters(ctx context.Context, classID string) ([]models.Defaulter, error) {
	var builder strings.Builder
	builder.WriteString(`SELECT s.id AS student_id, u.name, s.roll_number, u.email, c.id AS class_id, c.name AS class_name,
	ac.overall_pct, ac.risk_level
FROM analytics_cache ac
JOIN students s ON s.id = ac.student_id
JOIN users u ON u.id = s.user_id
JOIN classes c ON c.id = s.class_id
WHERE ac.risk_level = $1`)
	args := []interface{}{models.RiskHigh}
	if classID != "" {
		args = append(args, classID)
		builder.WriteString(fmt.Sprintf(" AND s.class_id = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY ac.overall_pct, s.roll_number")

	rows := make([]models.Defaulter, 0)
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list defaulters: %w", err)
	}
	return rows, nil
}
