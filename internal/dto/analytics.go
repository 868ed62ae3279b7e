package dto

// RecomputeRequest captures POST /analytics/recompute. An empty StudentID requests a
// sweep over every student.
type RecomputeRequest struct {
	StudentID string `json:"studentId"`
}

// RecomputeResponse acknowledges a queued recompute.
type RecomputeResponse struct {
	Scope     string `json:"scope"`
	StudentID string `json:"studentId,omitempty"`
	Queued    bool   `json:"queued"`
}
