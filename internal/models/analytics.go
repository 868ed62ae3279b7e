package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RiskLevel classifies a student's attendance percentage.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// Risk thresholds in percent. Every consumer classifies through ClassifyRisk.
const (
	SafeThreshold     = 85.0
	ModerateThreshold = 75.0
)

// ClassifyRisk maps a percentage onto a risk tier: safe at or above 85, moderate at or
// above 75, high below.
func ClassifyRisk(pct float64) RiskLevel {
	switch {
	case pct >= SafeThreshold:
		return RiskSafe
	case pct >= ModerateThreshold:
		return RiskModerate
	default:
		return RiskHigh
	}
}

// SubjectStat is the per-subject slice of a student's analytics.
type SubjectStat struct {
	SubjectID   string  `json:"subjectId"`
	SubjectName string  `json:"subjectName"`
	Attended    int     `json:"attended"`
	Total       int     `json:"total"`
	Pct         float64 `json:"pct"`
}

// SubjectStats is persisted as JSONB.
type SubjectStats []SubjectStat

func (s SubjectStats) Value() (driver.Value, error) {
	if s == nil {
		s = SubjectStats{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal subject stats: %w", err)
	}
	return data, nil
}

func (s *SubjectStats) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*s = SubjectStats{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for SubjectStats", value)
	}
	if len(data) == 0 {
		*s = SubjectStats{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// AnalyticsCache is the derived analytics row kept per student. It is replaced
// wholesale on every recompute.
type AnalyticsCache struct {
	StudentID      string       `db:"student_id" json:"studentId"`
	OverallPct     float64      `db:"overall_pct" json:"overallPct"`
	SubjectWise    SubjectStats `db:"subject_wise" json:"subjectWise"`
	RateOfDecline  float64      `db:"rate_of_decline" json:"rateOfDecline"`
	Acceleration   float64      `db:"acceleration" json:"acceleration"`
	Variance       float64      `db:"variance" json:"variance"`
	WeeklyAvg      float64      `db:"weekly_avg" json:"weeklyAvg"`
	TermAvg        float64      `db:"term_avg" json:"termAvg"`
	RiskLevel      RiskLevel    `db:"risk_level" json:"riskLevel"`
	LastComputedAt time.Time    `db:"last_computed_at" json:"lastComputedAt"`
}

// StudentRef identifies a student in listings.
type StudentRef struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	RollNumber string `db:"roll_number" json:"rollNumber"`
}

// ClassStudentAnalytics pairs a student of a class with their cache row, if any.
type ClassStudentAnalytics struct {
	Student   StudentRef      `json:"student"`
	Analytics *AnalyticsCache `json:"analytics"`
}

// RiskDistribution counts students per tier. Students without analytics count as safe.
type RiskDistribution struct {
	Safe     int `json:"safe"`
	Moderate int `json:"moderate"`
	High     int `json:"high"`
	Total    int `json:"total"`
}

// Add counts one student.
func (d *RiskDistribution) Add(level *RiskLevel) {
	d.Total++
	if level == nil {
		d.Safe++
		return
	}
	switch *level {
	case RiskModerate:
		d.Moderate++
	case RiskHigh:
		d.High++
	default:
		d.Safe++
	}
}

// StudentRisk is the reduced analytics projection used by aggregate views.
type StudentRisk struct {
	StudentID  string     `db:"student_id"`
	ClassID    string     `db:"class_id"`
	OverallPct *float64   `db:"overall_pct"`
	RiskLevel  *RiskLevel `db:"risk_level"`
}

// ClassSummary is one row of the department overview.
type ClassSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Students int    `json:"students"`
	AvgPct   int    `json:"avgPct"`
	Safe     int    `json:"safe"`
	Moderate int    `json:"moderate"`
	High     int    `json:"high"`
}

// Defaulter is a student whose overall attendance is below the moderate threshold.
type Defaulter struct {
	StudentID  string    `db:"student_id" json:"studentId"`
	Name       string    `db:"name" json:"name"`
	RollNumber string    `db:"roll_number" json:"rollNumber"`
	Email      string    `db:"email" json:"email"`
	ClassID    string    `db:"class_id" json:"classId"`
	ClassName  string    `db:"class_name" json:"className"`
	OverallPct float64   `db:"overall_pct" json:"overallPct"`
	RiskLevel  RiskLevel `db:"risk_level" json:"riskLevel"`
}

// RecoveryProjection answers how many upcoming classes a student must attend.
type RecoveryProjection struct {
	TotalConducted     int     `json:"totalConducted"`
	TotalAttended      int     `json:"totalAttended"`
	RemainingClasses   int     `json:"remainingClasses"`
	CurrentPct         int     `json:"currentPct"`
	ClassesNeededFor75 int     `json:"classesNeededFor75"`
	ClassesNeededFor85 int     `json:"classesNeededFor85"`
	CanReach75         bool    `json:"canReach75"`
	CanReach85         bool    `json:"canReach85"`
	ProjectedMaxPct    float64 `json:"projectedMaxPct"`
}

// SystemMetrics is a snapshot of process instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	EmailsDelivered          uint64    `json:"emailsDelivered"`
	EmailsFailed             uint64    `json:"emailsFailed"`
	Recomputes               uint64    `json:"recomputes"`
	AverageRecomputeMs       float64   `json:"averageRecomputeMs"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
