package service

import (
	"time"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
)

// trendWindow is the number of most recent records the trend statistics look at.
const trendWindow = 5

type trendPoint struct {
	x float64
	y float64
}

// ComputeStudentAnalytics derives the analytics row for one student from their full
// attendance history. history must be ordered oldest first. The function is pure: the
// same history and clock always produce the same row.
func ComputeStudentAnalytics(studentID string, history []models.HistoryEntry, now time.Time) models.AnalyticsCache {
	result := models.AnalyticsCache{
		StudentID:      studentID,
		OverallPct:     100,
		SubjectWise:    models.SubjectStats{},
		WeeklyAvg:      100,
		TermAvg:        100,
		RiskLevel:      models.RiskSafe,
		LastComputedAt: now,
	}
	if len(history) == 0 {
		return result
	}

	present := 0
	index := make(map[string]int)
	for _, entry := range history {
		attended := entry.Status == models.AttendanceStatusPresent
		if attended {
			present++
		}
		pos, ok := index[entry.SubjectID]
		if !ok {
			pos = len(result.SubjectWise)
			index[entry.SubjectID] = pos
			result.SubjectWise = append(result.SubjectWise, models.SubjectStat{SubjectID: entry.SubjectID, SubjectName: entry.SubjectName})
		}
		result.SubjectWise[pos].Total++
		if attended {
			result.SubjectWise[pos].Attended++
		}
	}
	for i := range result.SubjectWise {
		result.SubjectWise[i].Pct = percentage(result.SubjectWise[i].Attended, result.SubjectWise[i].Total)
	}

	overall := float64(present) / float64(len(history)) * 100
	result.OverallPct = overall
	result.WeeklyAvg = overall
	result.TermAvg = overall
	result.RiskLevel = models.ClassifyRisk(overall)

	points := trendPoints(history)
	n := len(points)
	if n >= 2 {
		result.RateOfDecline = slope(points)
		if n >= 3 {
			half := n / 2
			result.Acceleration = slope(points[half:]) - slope(points[:half])
		}
		result.Variance = sampleVariance(points)
	}
	return result
}

// percentage returns attended/total as a percentage, 100 when nothing was held.
func percentage(attended, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(attended) / float64(total) * 100
}

// trendPoints maps the last records onto (position, cumulative attendance %) pairs.
func trendPoints(history []models.HistoryEntry) []trendPoint {
	window := history
	if len(window) > trendWindow {
		window = window[len(window)-trendWindow:]
	}
	points := make([]trendPoint, 0, len(window))
	present := 0
	for i, entry := range window {
		if entry.Status == models.AttendanceStatusPresent {
			present++
		}
		points = append(points, trendPoint{x: float64(i + 1), y: float64(present) / float64(i+1) * 100})
	}
	return points
}

// slope is the ordinary least squares slope of the points, 0 when it is undefined.
func slope(points []trendPoint) float64 {
	n := float64(len(points))
	var sumX, sumY, sumXY, sumX2 float64
	for _, p := range points {
		sumX += p.x
		sumY += p.y
		sumXY += p.x * p.y
		sumX2 += p.x * p.x
	}
	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denominator
}

func sampleVariance(points []trendPoint) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.y
	}
	mean := sum / float64(n)
	var squares float64
	for _, p := range points {
		squares += (p.y - mean) * (p.y - mean)
	}
	return squares / float64(n-1)
}
