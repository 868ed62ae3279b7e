package dto

// NotificationSummary reports the outbound e-mail outcome of a marking call.
type NotificationSummary struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// MarkAttendanceResponse is returned by POST /attendance/mark.
type MarkAttendanceResponse struct {
	Message       string              `json:"message"`
	Count         int                 `json:"count"`
	Notifications NotificationSummary `json:"notifications"`
}

// OverrideResponse is returned by POST /attendance/override.
type OverrideResponse struct {
	Message         string `json:"message"`
	OverriddenCount int    `json:"overriddenCount"`
}

// CheckSessionResponse reports whether a session has been recorded.
type CheckSessionResponse struct {
	Exists bool `json:"exists"`
}
