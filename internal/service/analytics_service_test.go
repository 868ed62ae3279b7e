package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	appErrors "github.com/bodhisatwazer00ne/WAA-100/pkg/errors"
)

type stubAnalyticsRepo struct {
	rows        map[string]models.AnalyticsCache
	upserts     []string
	classRows   []models.ClassStudentAnalytics
	risks       []models.StudentRisk
	defaulters  []models.Defaulter
	upsertErr   map[string]error
	findCalls   int
	riskClassID string
}

func (s *stubAnalyticsRepo) Upsert(_ context.Context, a *models.AnalyticsCache) error {
	if err := s.upsertErr[a.StudentID]; err != nil {
		return err
	}
	if s.rows == nil {
		s.rows = make(map[string]models.AnalyticsCache)
	}
	s.rows[a.StudentID] = *a
	s.upserts = append(s.upserts, a.StudentID)
	return nil
}

func (s *stubAnalyticsRepo) FindByStudent(_ context.Context, studentID string) (*models.AnalyticsCache, error) {
	s.findCalls++
	row, ok := s.rows[studentID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *stubAnalyticsRepo) ListByClass(context.Context, string) ([]models.ClassStudentAnalytics, error) {
	return s.classRows, nil
}

func (s *stubAnalyticsRepo) StudentRisks(_ context.Context, classID string) ([]models.StudentRisk, error) {
	s.riskClassID = classID
	if classID == "" {
		return s.risks, nil
	}
	var out []models.StudentRisk
	for _, r := range s.risks {
		if r.ClassID == classID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubAnalyticsRepo) Defaulters(context.Context, string) ([]models.Defaulter, error) {
	return s.defaulters, nil
}

type stubHistoryReader struct {
	history map[string][]models.HistoryEntry
	err     error
}

func (s *stubHistoryReader) StudentHistory(_ context.Context, studentID string) ([]models.HistoryEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.history[studentID], nil
}

func (s *stubHistoryReader) StudentTally(_ context.Context, studentID string) (int, int, error) {
	if s.err != nil {
		return 0, 0, s.err
	}
	attended := 0
	for _, h := range s.history[studentID] {
		if h.Status == models.AttendanceStatusPresent {
			attended++
		}
	}
	return attended, len(s.history[studentID]), nil
}

type stubStudentDirectory struct {
	students []models.Student
	listErr  error
}

func (s *stubStudentDirectory) FindByID(_ context.Context, id string) (*models.Student, error) {
	for i := range s.students {
		if s.students[i].ID == id {
			return &s.students[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubStudentDirectory) FindByUserID(_ context.Context, userID string) (*models.Student, error) {
	for i := range s.students {
		if s.students[i].UserID == userID {
			return &s.students[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubStudentDirectory) ListIDs(context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	ids := make([]string, 0, len(s.students))
	for _, st := range s.students {
		ids = append(ids, st.ID)
	}
	return ids, nil
}

func (s *stubStudentDirectory) ListByClass(_ context.Context, classID string) ([]models.Student, error) {
	var out []models.Student
	for _, st := range s.students {
		if st.ClassID == classID {
			out = append(out, st)
		}
	}
	return out, nil
}

type stubClassLister struct {
	classes []models.Class
}

func (s *stubClassLister) List(context.Context) ([]models.Class, error) {
	return s.classes, nil
}

func (s *stubClassLister) FindByID(_ context.Context, id string) (*models.Class, error) {
	for i := range s.classes {
		if s.classes[i].ID == id {
			return &s.classes[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

type stubCacheRepo struct {
	store    map[string][]byte
	deleted  []string
	patterns []string
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.store, key)
		s.deleted = append(s.deleted, key)
	}
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range s.store {
		if key == pattern || (strings.HasSuffix(pattern, "*") && strings.HasPrefix(key, prefix)) {
			delete(s.store, key)
		}
	}
	return nil
}

func newTestAnalyticsService(repo *stubAnalyticsRepo, hist *stubHistoryReader, students *stubStudentDirectory, cacheRepo *stubCacheRepo) *AnalyticsService {
	cache := NewCacheService(cacheRepo, CacheOptions{Enabled: cacheRepo != nil, TTL: time.Minute})
	svc := NewAnalyticsService(repo, hist, students, &stubClassLister{classes: []models.Class{{ID: "class-a", Name: "CSE-A"}, {ID: "class-b", Name: "CSE-B"}}}, cache, nil, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestRecomputeStudentAnalyticsIsIdempotent(t *testing.T) {
	repo := &stubAnalyticsRepo{}
	hist := &stubHistoryReader{history: map[string][]models.HistoryEntry{
		"stu-1": historyOf("math", pr, ab, pr, pr, ab, pr),
	}}
	svc := newTestAnalyticsService(repo, hist, &stubStudentDirectory{}, nil)

	first, err := svc.RecomputeStudentAnalytics(context.Background(), "stu-1")
	require.NoError(t, err)
	stored := repo.rows["stu-1"]

	second, err := svc.RecomputeStudentAnalytics(context.Background(), "stu-1")
	require.NoError(t, err)

	assert.Equal(t, *first, *second)
	assert.Equal(t, stored, repo.rows["stu-1"])
	assert.Len(t, repo.rows, 1)
	assert.Equal(t, []string{"stu-1", "stu-1"}, repo.upserts)
}

func TestRecomputeStudentAnalyticsEmptyHistoryStoresDefaults(t *testing.T) {
	repo := &stubAnalyticsRepo{}
	svc := newTestAnalyticsService(repo, &stubHistoryReader{}, &stubStudentDirectory{}, nil)

	got, err := svc.RecomputeStudentAnalytics(context.Background(), "stu-9")
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.OverallPct)
	assert.Equal(t, models.RiskSafe, got.RiskLevel)
	assert.Empty(t, got.SubjectWise)
	assert.Contains(t, repo.rows, "stu-9")
}

func TestRecomputeStudentAnalyticsInvalidatesCache(t *testing.T) {
	cacheRepo := &stubCacheRepo{store: map[string][]byte{
		"analytics:student:stu-1":    []byte(`{}`),
		"analytics:student:stu-2":    []byte(`{}`),
		"analytics:class:class-a":    []byte(`[]`),
		"analytics:risk:all":         []byte(`{}`),
		"analytics:department":       []byte(`[]`),
		"analytics:defaulters:all":   []byte(`[]`),
		"analytics:defaulters:other": []byte(`[]`),
	}}
	svc := newTestAnalyticsService(&stubAnalyticsRepo{}, &stubHistoryReader{}, &stubStudentDirectory{}, cacheRepo)

	_, err := svc.RecomputeStudentAnalytics(context.Background(), "stu-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"analytics:student:stu-1"}, cacheRepo.deleted)
	assert.Len(t, cacheRepo.store, 1)
	assert.Contains(t, cacheRepo.store, "analytics:student:stu-2")
}

func TestRecomputeStudentAnalyticsHistoryError(t *testing.T) {
	repo := &stubAnalyticsRepo{}
	svc := newTestAnalyticsService(repo, &stubHistoryReader{err: assert.AnError}, &stubStudentDirectory{}, nil)

	_, err := svc.RecomputeStudentAnalytics(context.Background(), "stu-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, repo.rows)
}

func TestRecomputeAllStudentsAnalyticsSkipsFailures(t *testing.T) {
	repo := &stubAnalyticsRepo{upsertErr: map[string]error{"stu-2": assert.AnError}}
	students := &stubStudentDirectory{students: []models.Student{{ID: "stu-1"}, {ID: "stu-2"}, {ID: "stu-3"}}}
	svc := newTestAnalyticsService(repo, &stubHistoryReader{}, students, nil)

	summary, err := svc.RecomputeAllStudentsAnalytics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"stu-1", "stu-3"}, repo.upserts)
}

func TestRecomputeAllStudentsAnalyticsListError(t *testing.T) {
	svc := newTestAnalyticsService(&stubAnalyticsRepo{}, &stubHistoryReader{}, &stubStudentDirectory{listErr: assert.AnError}, nil)

	_, err := svc.RecomputeAllStudentsAnalytics(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestStudentAnalyticsAccess(t *testing.T) {
	repo := &stubAnalyticsRepo{rows: map[string]models.AnalyticsCache{"stu-1": {StudentID: "stu-1", OverallPct: 80, RiskLevel: models.RiskModerate}}}
	students := &stubStudentDirectory{students: []models.Student{{ID: "stu-1", UserID: "user-1"}, {ID: "stu-2", UserID: "user-2"}}}
	svc := newTestAnalyticsService(repo, &stubHistoryReader{}, students, nil)
	ctx := context.Background()

	got, err := svc.StudentAnalytics(ctx, models.Actor{UserID: "user-1", Role: models.RoleStudent}, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, models.RiskModerate, got.RiskLevel)

	_, err = svc.StudentAnalytics(ctx, models.Actor{UserID: "user-2", Role: models.RoleStudent}, "stu-1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.StudentAnalytics(ctx, models.Actor{UserID: "t-1", Role: models.RoleTeacher}, "stu-2")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStudentAnalyticsServedFromCache(t *testing.T) {
	repo := &stubAnalyticsRepo{rows: map[string]models.AnalyticsCache{"stu-1": {StudentID: "stu-1", OverallPct: 90, RiskLevel: models.RiskSafe}}}
	svc := newTestAnalyticsService(repo, &stubHistoryReader{}, &stubStudentDirectory{}, &stubCacheRepo{})
	actor := models.Actor{UserID: "hod-1", Role: models.RoleHOD}

	_, err := svc.StudentAnalytics(context.Background(), actor, "stu-1")
	require.NoError(t, err)
	got, err := svc.StudentAnalytics(context.Background(), actor, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 90.0, got.OverallPct)
	assert.Equal(t, 1, repo.findCalls)
}

func TestRiskDistributionCountsMissingAnalyticsAsSafe(t *testing.T) {
	moderate, high := models.RiskModerate, models.RiskHigh
	repo := &stubAnalyticsRepo{risks: []models.StudentRisk{
		{StudentID: "s1", ClassID: "class-a"},
		{StudentID: "s2", ClassID: "class-a", RiskLevel: &moderate},
		{StudentID: "s3", ClassID: "class-a", RiskLevel: &high},
		{StudentID: "s4", ClassID: "class-b", RiskLevel: &high},
	}}
	svc := newTestAnalyticsService(repo, &stubHistoryReader{}, &stubStudentDirectory{}, nil)

	dist, err := svc.RiskDistribution(context.Background(), "class-a")
	require.NoError(t, err)
	assert.Equal(t, models.RiskDistribution{Safe: 1, Moderate: 1, High: 1, Total: 3}, dist)
	assert.Equal(t, "class-a", repo.riskClassID)

	all, err := svc.RiskDistribution(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 4, all.Total)
	assert.Equal(t, 2, all.High)
}

func TestDepartmentSummary(t *testing.T) {
	pct := func(v float64) *float64 { return &v }
	safe, high := models.RiskSafe, models.RiskHigh
	repo := &stubAnalyticsRepo{risks: []models.StudentRisk{
		{StudentID: "s1", ClassID: "class-a", OverallPct: pct(90), RiskLevel: &safe},
		{StudentID: "s2", ClassID: "class-a", OverallPct: pct(60.5), RiskLevel: &high},
		{StudentID: "s3", ClassID: "class-a"},
	}}
	svc := newTestAnalyticsService(repo, &stubHistoryReader{}, &stubStudentDirectory{}, nil)

	summary, err := svc.DepartmentSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, models.ClassSummary{ID: "class-a", Name: "CSE-A", Students: 3, AvgPct: 50, Safe: 2, High: 1}, summary[0])
	assert.Equal(t, models.ClassSummary{ID: "class-b", Name: "CSE-B"}, summary[1])
}

func TestExportDefaulters(t *testing.T) {
	repo := &stubAnalyticsRepo{defaulters: []models.Defaulter{{StudentID: "s1", Name: "Asha", RollNumber: "CS01", ClassName: "CSE-A", OverallPct: 61.25, RiskLevel: models.RiskHigh}}}
	svc := newTestAnalyticsService(repo, &stubHistoryReader{}, &stubStudentDirectory{}, nil)

	file, err := svc.ExportDefaulters(context.Background(), "", models.ReportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "defaulters-2024-03-10.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Contains(t, string(file.Body), "CS01,Asha,,CSE-A,61.25,HIGH")

	pdf, err := svc.ExportDefaulters(context.Background(), "", models.ReportFormatPDF)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf.Body), "%PDF"))

	_, err = svc.ExportDefaulters(context.Background(), "", models.ReportFormat("xml"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestProjectRecovery(t *testing.T) {
	got := ProjectRecovery(14, 20, 30)
	// 0.75*50 - 14 = 23.5 -> 24; 0.85*50 - 14 = 28.5 -> 29
	assert.Equal(t, 70, got.CurrentPct)
	assert.Equal(t, 24, got.ClassesNeededFor75)
	assert.Equal(t, 29, got.ClassesNeededFor85)
	assert.True(t, got.CanReach75)
	assert.True(t, got.CanReach85)
	assert.InDelta(t, 88.0, got.ProjectedMaxPct, 1e-9)

	fresh := ProjectRecovery(0, 0, 10)
	assert.Equal(t, 100, fresh.CurrentPct)
	assert.Equal(t, 8, fresh.ClassesNeededFor75)
	assert.Equal(t, 9, fresh.ClassesNeededFor85)

	doomed := ProjectRecovery(2, 40, 4)
	assert.False(t, doomed.CanReach75)
	assert.Equal(t, 31, doomed.ClassesNeededFor75)
}

func TestRecoveryDefaultsRemainingClasses(t *testing.T) {
	hist := &stubHistoryReader{history: map[string][]models.HistoryEntry{"stu-1": historyOf("math", pr, ab)}}
	svc := newTestAnalyticsService(&stubAnalyticsRepo{}, hist, &stubStudentDirectory{}, nil)

	got, err := svc.Recovery(context.Background(), models.Actor{UserID: "t", Role: models.RoleTeacher}, "stu-1", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultRemainingClasses, got.RemainingClasses)
	assert.Equal(t, 2, got.TotalConducted)
	assert.Equal(t, 1, got.TotalAttended)
	assert.Equal(t, 50, got.CurrentPct)
}
