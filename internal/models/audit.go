package models

import "time"

// AttendanceAuditLog is an append-only trace of one override of one attendance record.
type AttendanceAuditLog struct {
	ID                 string           `db:"id" json:"id"`
	AttendanceRecordID string           `db:"attendance_record_id" json:"attendanceRecordId"`
	ActorUserID        string           `db:"actor_user_id" json:"actorUserId"`
	PreviousStatus     AttendanceStatus `db:"previous_status" json:"previousStatus"`
	NewStatus          AttendanceStatus `db:"new_status" json:"newStatus"`
	Reason             string           `db:"reason" json:"reason"`
	CreatedAt          time.Time        `db:"created_at" json:"createdAt"`
}
