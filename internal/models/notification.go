package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// NotificationTypeAbsence is the only notification type produced by marking.
const NotificationTypeAbsence = "absence"

// NotificationMeta is the JSONB context attached to an absence notification.
type NotificationMeta struct {
	Class        string    `json:"class"`
	Subject      string    `json:"subject"`
	Date         string    `json:"date"`
	SubjectPct   float64   `json:"subjectPct"`
	RiskCategory RiskLevel `json:"riskCategory"`
}

func (m NotificationMeta) Value() (driver.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal notification meta: %w", err)
	}
	return data, nil
}

func (m *NotificationMeta) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = NotificationMeta{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported type %T for NotificationMeta", value)
	}
}

// Notification is an in-app message for a student.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"studentId"`
	Type      string           `db:"type" json:"type"`
	Message   string           `db:"message" json:"message"`
	Meta      NotificationMeta `db:"meta" json:"meta"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}

// NotificationView adds student details for staff listings.
type NotificationView struct {
	Notification
	StudentName string `db:"student_name" json:"studentName"`
	RollNumber  string `db:"roll_number" json:"rollNumber"`
}
