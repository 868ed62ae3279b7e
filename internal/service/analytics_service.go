package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	appErrors "github.com/bodhisatwazer00ne/WAA-100/pkg/errors"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/export"
)

// DefaultRemainingClasses is assumed by the recovery projection when the caller gives none.
const DefaultRemainingClasses = 30

var aggregateCachePatterns = []string{
	makeAnalyticsCacheKey("class") + ":*",
	makeAnalyticsCacheKey("risk") + ":*",
	makeAnalyticsCacheKey("department"),
	makeAnalyticsCacheKey("defaulters") + ":*",
}

// AnalyticsRepository persists the derived analytics rows.
type AnalyticsRepository interface {
	Upsert(ctx context.Context, a *models.AnalyticsCache) error
	FindByStudent(ctx context.Context, studentID string) (*models.AnalyticsCache, error)
	ListByClass(ctx context.Context, classID string) ([]models.ClassStudentAnalytics, error)
	StudentRisks(ctx context.Context, classID string) ([]models.StudentRisk, error)
	Defaulters(ctx context.Context, classID string) ([]models.Defaulter, error)
}

// HistoryReader exposes the attendance history the engine derives from.
type HistoryReader interface {
	StudentHistory(ctx context.Context, studentID string) ([]models.HistoryEntry, error)
	StudentTally(ctx context.Context, studentID string) (attended, total int, err error)
}

// StudentDirectory lists students for sweeps and access checks.
type StudentDirectory interface {
	StudentLookup
	ListIDs(ctx context.Context) ([]string, error)
}

// ClassLister lists classes for department views.
type ClassLister interface {
	List(ctx context.Context) ([]models.Class, error)
}

// Renderer encodes a dataset into a downloadable document.
type Renderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// RecomputeSummary reports the outcome of a full sweep.
type RecomputeSummary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"-"`
}

// ExportedFile is a rendered document ready to be served.
type ExportedFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// AnalyticsService recomputes the per-student analytics rows and serves the read views
// built on them, fronted by the Redis cache.
type AnalyticsService struct {
	repo      AnalyticsRepository
	history   HistoryReader
	students  StudentDirectory
	classes   ClassLister
	cache     *CacheService
	metrics   *MetricsService
	renderers map[models.ReportFormat]Renderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, history HistoryReader, students StudentDirectory, classes ClassLister, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{
		repo:     repo,
		history:  history,
		students: students,
		classes:  classes,
		cache:    cache,
		metrics:  metrics,
		renderers: map[models.ReportFormat]Renderer{
			models.ReportFormatCSV: export.NewCSVExporter(),
			models.ReportFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    time.Now,
	}
}

// RecomputeStudentAnalytics rebuilds and stores the analytics row for one student.
func (s *AnalyticsService) RecomputeStudentAnalytics(ctx context.Context, studentID string) (*models.AnalyticsCache, error) {
	start := time.Now()
	result, err := s.recompute(ctx, studentID)
	s.metrics.ObserveRecompute("student", time.Since(start), err)
	return result, err
}

func (s *AnalyticsService) recompute(ctx context.Context, studentID string) (*models.AnalyticsCache, error) {
	history, err := s.history.StudentHistory(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	analytics := ComputeStudentAnalytics(studentID, history, s.now().UTC())
	if err := s.repo.Upsert(ctx, &analytics); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store analytics")
	}
	if err := s.cache.InvalidateStudent(ctx, studentID); err != nil {
		s.logger.Warn("analytics cache invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
	s.logger.Debug("analytics recomputed",
		zap.String("student_id", studentID),
		zap.Int("records", len(history)),
		zap.Float64("overall_pct", analytics.OverallPct),
		zap.String("risk_level", string(analytics.RiskLevel)),
	)
	return &analytics, nil
}

// RecomputeAllStudentsAnalytics sweeps every student one after another. A failing student
// is logged and skipped; only failing to list students is returned.
func (s *AnalyticsService) RecomputeAllStudentsAnalytics(ctx context.Context) (RecomputeSummary, error) {
	start := time.Now()
	ids, err := s.students.ListIDs(ctx)
	if err != nil {
		s.metrics.ObserveRecompute("sweep", time.Since(start), err)
		return RecomputeSummary{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	summary := RecomputeSummary{Total: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.RecomputeStudentAnalytics(ctx, id); err != nil {
			summary.Failed++
			s.logger.Error("analytics recompute failed", zap.String("student_id", id), zap.Error(err))
			continue
		}
		summary.Succeeded++
	}
	summary.Duration = time.Since(start)
	s.metrics.ObserveRecompute("sweep", summary.Duration, ctx.Err())
	s.logger.Info("analytics sweep finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	)
	return summary, ctx.Err()
}

// StudentAnalytics returns the stored analytics row. Students may only read their own.
func (s *AnalyticsService) StudentAnalytics(ctx context.Context, actor models.Actor, studentID string) (*models.AnalyticsCache, error) {
	if err := authorizeStudentRead(ctx, s.students, actor, studentID); err != nil {
		return nil, err
	}
	key := studentAnalyticsKey(studentID)
	var cached models.AnalyticsCache
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}
	analytics, err := s.repo.FindByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load analytics")
	}
	if analytics == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Analytics not found")
	}
	_ = s.cache.Set(ctx, key, analytics, 0)
	return analytics, nil
}

// ClassAnalytics lists every student of the class with their analytics row, if any.
func (s *AnalyticsService) ClassAnalytics(ctx context.Context, classID string) ([]models.ClassStudentAnalytics, error) {
	key := makeAnalyticsCacheKey("class", classID)
	var cached []models.ClassStudentAnalytics
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}
	rows, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class analytics")
	}
	if rows == nil {
		rows = []models.ClassStudentAnalytics{}
	}
	_ = s.cache.Set(ctx, key, rows, 0)
	return rows, nil
}

// RiskDistribution counts students per risk tier, optionally within one class. Students
// without an analytics row count as safe.
func (s *AnalyticsService) RiskDistribution(ctx context.Context, classID string) (models.RiskDistribution, error) {
	key := makeAnalyticsCacheKey("risk", scopeKey(classID))
	var cached models.RiskDistribution
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}
	risks, err := s.repo.StudentRisks(ctx, classID)
	if err != nil {
		return models.RiskDistribution{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load risk distribution")
	}
	var dist models.RiskDistribution
	for _, r := range risks {
		dist.Add(r.RiskLevel)
	}
	_ = s.cache.Set(ctx, key, dist, 0)
	return dist, nil
}

// DepartmentSummary summarises every class: size, rounded average attendance and
// risk counts.
func (s *AnalyticsService) DepartmentSummary(ctx context.Context) ([]models.ClassSummary, error) {
	key := makeAnalyticsCacheKey("department")
	var cached []models.ClassSummary
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}
	classes, err := s.classes.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	risks, err := s.repo.StudentRisks(ctx, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student risks")
	}
	byClass := make(map[string][]models.StudentRisk, len(classes))
	for _, r := range risks {
		byClass[r.ClassID] = append(byClass[r.ClassID], r)
	}

	summaries := make([]models.ClassSummary, 0, len(classes))
	for _, class := range classes {
		members := byClass[class.ID]
		var dist models.RiskDistribution
		var sum float64
		for _, m := range members {
			if m.OverallPct != nil {
				sum += *m.OverallPct
			}
			dist.Add(m.RiskLevel)
		}
		divisor := len(members)
		if divisor == 0 {
			divisor = 1
		}
		summaries = append(summaries, models.ClassSummary{
			ID:       class.ID,
			Name:     class.Name,
			Students: len(members),
			AvgPct:   int(math.Round(sum / float64(divisor))),
			Safe:     dist.Safe,
			Moderate: dist.Moderate,
			High:     dist.High,
		})
	}
	_ = s.cache.Set(ctx, key, summaries, 0)
	return summaries, nil
}

// Defaulters lists students in the high risk tier, optionally within one class.
func (s *AnalyticsService) Defaulters(ctx context.Context, classID string) ([]models.Defaulter, error) {
	key := makeAnalyticsCacheKey("defaulters", scopeKey(classID))
	var cached []models.Defaulter
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}
	rows, err := s.repo.Defaulters(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load defaulters")
	}
	if rows == nil {
		rows = []models.Defaulter{}
	}
	_ = s.cache.Set(ctx, key, rows, 0)
	return rows, nil
}

// ExportDefaulters renders the defaulters list as CSV or PDF.
func (s *AnalyticsService) ExportDefaulters(ctx context.Context, classID string, format models.ReportFormat) (*ExportedFile, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	rows, err := s.Defaulters(ctx, classID)
	if err != nil {
		return nil, err
	}
	dataset := export.Dataset{
		Title:   "Defaulters (below 75% attendance)",
		Summary: []string{fmt.Sprintf("Generated: %s", s.now().UTC().Format(time.RFC3339)), fmt.Sprintf("Students: %d", len(rows))},
		Headers: []string{"Roll No", "Name", "Email", "Class", "Attendance %", "Risk"},
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, d := range rows {
		dataset.Rows = append(dataset.Rows, []string{d.RollNumber, d.Name, d.Email, d.ClassName, fmt.Sprintf("%.2f", d.OverallPct), strings.ToUpper(string(d.RiskLevel))})
	}
	body, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render defaulters")
	}
	return &ExportedFile{
		Filename:    fmt.Sprintf("defaulters-%s.%s", s.now().UTC().Format(models.DateLayout), format),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

// Recovery projects how many of the remaining classes the student must attend to reach
// the moderate and safe thresholds. remaining <= 0 uses DefaultRemainingClasses.
func (s *AnalyticsService) Recovery(ctx context.Context, actor models.Actor, studentID string, remaining int) (*models.RecoveryProjection, error) {
	if err := authorizeStudentRead(ctx, s.students, actor, studentID); err != nil {
		return nil, err
	}
	if remaining <= 0 {
		remaining = DefaultRemainingClasses
	}
	attended, total, err := s.history.StudentTally(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance tally")
	}
	projection := ProjectRecovery(attended, total, remaining)
	return &projection, nil
}

// ProjectRecovery computes the recovery projection from raw counts.
func ProjectRecovery(attended, conducted, remaining int) models.RecoveryProjection {
	needed := func(target float64) int {
		n := int(math.Ceil(target/100*float64(conducted+remaining) - float64(attended)))
		if n < 0 {
			return 0
		}
		return n
	}
	need75 := needed(models.ModerateThreshold)
	need85 := needed(models.SafeThreshold)
	return models.RecoveryProjection{
		TotalConducted:     conducted,
		TotalAttended:      attended,
		RemainingClasses:   remaining,
		CurrentPct:         int(math.Round(percentage(attended, conducted))),
		ClassesNeededFor75: need75,
		ClassesNeededFor85: need85,
		CanReach75:         need75 <= remaining,
		CanReach85:         need85 <= remaining,
		ProjectedMaxPct:    percentage(attended+remaining, conducted+remaining),
	}
}

// SystemMetrics returns system instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.SystemMetrics {
	return s.metrics.Snapshot()
}

func studentAnalyticsKey(studentID string) string {
	return makeAnalyticsCacheKey("student", studentID)
}

func scopeKey(classID string) string {
	if classID == "" {
		return "all"
	}
	return classID
}

func makeAnalyticsCacheKey(parts ...string) string {
	var builder strings.Builder
	builder.Grow(len(parts) * 16)
	builder.WriteString("analytics")
	for _, part := range parts {
		if part == "" {
			continue
		}
		builder.WriteByte(':')
		builder.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return builder.String()
}
