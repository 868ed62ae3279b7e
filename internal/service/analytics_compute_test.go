package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
)

func historyOf(subject string, statuses ...models.AttendanceStatus) []models.HistoryEntry {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.HistoryEntry, 0, len(statuses))
	for i, status := range statuses {
		out = append(out, models.HistoryEntry{
			SubjectID:      subject,
			SubjectName:    "Subject " + subject,
			AttendanceDate: base.AddDate(0, 0, i),
			Status:         status,
		})
	}
	return out
}

const (
	pr = models.AttendanceStatusPresent
	ab = models.AttendanceStatusAbsent
)

func TestComputeStudentAnalyticsEmptyHistory(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	got := ComputeStudentAnalytics("stu-1", nil, now)

	assert.Equal(t, "stu-1", got.StudentID)
	assert.Equal(t, 100.0, got.OverallPct)
	assert.Equal(t, 100.0, got.WeeklyAvg)
	assert.Equal(t, 100.0, got.TermAvg)
	assert.Zero(t, got.RateOfDecline)
	assert.Zero(t, got.Acceleration)
	assert.Zero(t, got.Variance)
	assert.Equal(t, models.RiskSafe, got.RiskLevel)
	assert.NotNil(t, got.SubjectWise)
	assert.Empty(t, got.SubjectWise)
	assert.Equal(t, now, got.LastComputedAt)
}

func TestComputeStudentAnalyticsSubjectBreakdown(t *testing.T) {
	records := append(historyOf("math", pr, ab, pr, pr), historyOf("phys", ab, pr)...)
	got := ComputeStudentAnalytics("stu-1", records, time.Now())

	require.Len(t, got.SubjectWise, 2)
	assert.Equal(t, "math", got.SubjectWise[0].SubjectID)
	assert.Equal(t, 3, got.SubjectWise[0].Attended)
	assert.Equal(t, 4, got.SubjectWise[0].Total)
	assert.InDelta(t, 75.0, got.SubjectWise[0].Pct, 1e-9)
	assert.Equal(t, "phys", got.SubjectWise[1].SubjectID)
	assert.InDelta(t, 50.0, got.SubjectWise[1].Pct, 1e-9)

	assert.InDelta(t, 400.0/6.0, got.OverallPct, 1e-9)
	assert.Equal(t, got.OverallPct, got.WeeklyAvg)
	assert.Equal(t, got.OverallPct, got.TermAvg)
	assert.Equal(t, models.RiskHigh, got.RiskLevel)
}

func TestComputeStudentAnalyticsTrendUsesLastFiveRecords(t *testing.T) {
	// Older records must not influence the trend window.
	records := historyOf("math", ab, ab, ab, pr, pr, pr, pr, pr)
	got := ComputeStudentAnalytics("stu-1", records, time.Now())

	assert.Zero(t, got.RateOfDecline)
	assert.Zero(t, got.Acceleration)
	assert.Zero(t, got.Variance)
	assert.InDelta(t, 62.5, got.OverallPct, 1e-9)
	assert.Equal(t, models.RiskHigh, got.RiskLevel)
}

func TestComputeStudentAnalyticsTrendStatistics(t *testing.T) {
	// Points: (1,100) (2,50) (3,33.33) (4,50) (5,60)
	records := historyOf("math", pr, ab, ab, pr, pr)
	got := ComputeStudentAnalytics("stu-1", records, time.Now())

	ys := []float64{100, 50, 100.0 / 3.0, 50, 60}
	expectedSlope := olsSlope([]float64{1, 2, 3, 4, 5}, ys)
	assert.InDelta(t, expectedSlope, got.RateOfDecline, 1e-9)

	first := olsSlope([]float64{1, 2}, ys[:2])
	second := olsSlope([]float64{3, 4, 5}, ys[2:])
	assert.InDelta(t, second-first, got.Acceleration, 1e-9)

	mean := (ys[0] + ys[1] + ys[2] + ys[3] + ys[4]) / 5
	var squares float64
	for _, y := range ys {
		squares += (y - mean) * (y - mean)
	}
	assert.InDelta(t, squares/4, got.Variance, 1e-9)
}

func TestComputeStudentAnalyticsSingleRecord(t *testing.T) {
	got := ComputeStudentAnalytics("stu-1", historyOf("math", ab), time.Now())

	assert.Equal(t, 0.0, got.OverallPct)
	assert.Zero(t, got.RateOfDecline)
	assert.Zero(t, got.Variance)
	assert.Equal(t, models.RiskHigh, got.RiskLevel)
}

func TestComputeStudentAnalyticsThreePointsSplitsAtFloorHalf(t *testing.T) {
	// First half holds one point, so its slope is 0.
	records := historyOf("math", pr, pr, ab)
	got := ComputeStudentAnalytics("stu-1", records, time.Now())

	second := olsSlope([]float64{2, 3}, []float64{100, 200.0 / 3.0})
	assert.InDelta(t, second, got.Acceleration, 1e-9)
}

func TestComputeStudentAnalyticsIsDeterministic(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	records := append(historyOf("math", pr, ab, pr), historyOf("chem", pr, pr, ab, ab)...)

	first := ComputeStudentAnalytics("stu-1", records, now)
	second := ComputeStudentAnalytics("stu-1", records, now)
	assert.Equal(t, first, second)
}

func olsSlope(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sx, sy, sxy, sx2 float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
		sxy += xs[i] * ys[i]
		sx2 += xs[i] * xs[i]
	}
	return (n*sxy - sx*sy) / (n*sx2 - sx*sx)
}
