package models

import "time"

// MergedClassReport is the daily per-class attendance summary. One row per class and day.
type MergedClassReport struct {
	ID            string    `db:"id" json:"id"`
	ClassID       string    `db:"class_id" json:"classId"`
	ReportDate    time.Time `db:"report_date" json:"reportDate"`
	TotalStudents int       `db:"total_students" json:"totalStudents"`
	TotalPresent  int       `db:"total_present" json:"totalPresent"`
	TotalAbsent   int       `db:"total_absent" json:"totalAbsent"`
	FilePath      string    `db:"file_path" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// ClassDayTotals aggregates a class's records for one day across subjects.
type ClassDayTotals struct {
	ClassID           string  `db:"class_id"`
	ClassName         string  `db:"class_name"`
	ClassTeacherEmail *string `db:"class_teacher_email"`
	ClassTeacherName  *string `db:"class_teacher_name"`
	TotalStudents     int     `db:"total_students"`
	TotalPresent      int     `db:"total_present"`
	TotalAbsent       int     `db:"total_absent"`
}

// ClassDaySubjectRow is one subject line of a merged report.
type ClassDaySubjectRow struct {
	SubjectName string `db:"subject_name"`
	Present     int    `db:"present"`
	Absent      int    `db:"absent"`
}

// ReportFormat enumerates export encodings.
type ReportFormat string

const (
	ReportFormatJSON ReportFormat = "json"
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatPDF  ReportFormat = "pdf"
)
