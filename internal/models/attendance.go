package models

import "time"

// AttendanceStatus is the recorded presence of a student in one session.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusAbsent
}

// DateLayout is the calendar-day format used for attendance dates on the wire.
const DateLayout = "2006-01-02"

// AttendanceRecord is one student's status for one (class, subject, date) session.
// Rows are created by marking, mutated only by override and never deleted.
type AttendanceRecord struct {
	ID             string           `db:"id" json:"id"`
	ClassID        string           `db:"class_id" json:"classId"`
	SubjectID      string           `db:"subject_id" json:"subjectId"`
	TeacherID      string           `db:"teacher_id" json:"teacherId"`
	StudentID      string           `db:"student_id" json:"studentId"`
	AttendanceDate time.Time        `db:"attendance_date" json:"attendanceDate"`
	Status         AttendanceStatus `db:"status" json:"status"`
	OverrideReason *string          `db:"override_reason" json:"overrideReason,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updatedAt"`
}

// SessionKey identifies an attendance session.
type SessionKey struct {
	ClassID   string
	SubjectID string
	Date      time.Time
}

// LockKey is the string hashed into the session's advisory lock.
func (k SessionKey) LockKey() string {
	return "attendance:" + k.ClassID + ":" + k.SubjectID + ":" + k.Date.Format(DateLayout)
}

// AttendanceEntry is one line of a marking request.
type AttendanceEntry struct {
	StudentID string
	Status    AttendanceStatus
}

// HistoryEntry is the projection of an attendance record used by the analytics engine.
type HistoryEntry struct {
	SubjectID      string           `db:"subject_id"`
	SubjectName    string           `db:"subject_name"`
	AttendanceDate time.Time        `db:"attendance_date"`
	Status         AttendanceStatus `db:"status"`
}

// SessionRecordView lists a recorded session with student details.
type SessionRecordView struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"studentId"`
	Status      AttendanceStatus `db:"status" json:"status"`
	StudentName string           `db:"student_name" json:"studentName"`
	RollNumber  string           `db:"roll_number" json:"rollNumber"`
}

// StudentAttendanceView is a row of a student's own attendance history.
type StudentAttendanceView struct {
	ID             string           `db:"id" json:"id"`
	AttendanceDate time.Time        `db:"attendance_date" json:"-"`
	Date           string           `db:"-" json:"attendanceDate"`
	Status         AttendanceStatus `db:"status" json:"status"`
	SubjectID      string           `db:"subject_id" json:"subjectId"`
	SubjectName    string           `db:"subject_name" json:"subjectName"`
	ClassID        string           `db:"class_id" json:"classId"`
	ClassName      string           `db:"class_name" json:"className"`
}
