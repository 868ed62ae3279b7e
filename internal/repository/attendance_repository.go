package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
)

// ErrSessionExists reports that a (class, subject, date) session is already recorded.
var ErrSessionExists = errors.New("attendance session already recorded")

const uniqueViolation = "23505"

// AttendanceTx is the part of an open marking transaction visible to side-effect
// preparation. Work done through it commits or rolls back with the attendance rows.
type AttendanceTx interface {
	SubjectTally(ctx context.Context, studentID, subjectID string) (attended, total int, err error)
	InsertNotification(ctx context.Context, n *models.Notification) error
}

// PrepareFunc runs inside the marking transaction after the rows are inserted.
type PrepareFunc func(ctx context.Context, tx AttendanceTx, created []models.AttendanceRecord) error

// AttendanceRepository persists attendance records, the only writer of that table.
type AttendanceRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db, now: time.Now}
}

// SessionExists reports whether any record exists for the session.
func (r *AttendanceRepository) SessionExists(ctx context.Context, key models.SessionKey) (bool, error) {
	return sessionExists(ctx, r.db, key)
}

func sessionExists(ctx context.Context, q sqlx.QueryerContext, key models.SessionKey) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM attendance_records WHERE class_id = $1 AND subject_id = $2 AND attendance_date = $3
)`
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, query, key.ClassID, key.SubjectID, key.Date); err != nil {
		return false, fmt.Errorf("check attendance session: %w", err)
	}
	return exists, nil
}

// CreateSession records a whole session atomically. The session key is serialised with a
// transaction-scoped advisory lock and re-checked under it; a concurrent winner surfaces
// as ErrSessionExists. prepare runs inside the same transaction.
func (r *AttendanceRepository) CreateSession(ctx context.Context, key models.SessionKey, teacherID string, entries []models.AttendanceEntry, prepare PrepareFunc) ([]models.AttendanceRecord, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("create attendance session: no entries")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin attendance session: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.LockKey()); err != nil {
		return nil, fmt.Errorf("lock attendance session: %w", err)
	}
	exists, err := sessionExists(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrSessionExists
	}

	const insert = `INSERT INTO attendance_records (id, class_id, subject_id, teacher_id, student_id, attendance_date, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`
	now := r.now().UTC()
	created := make([]models.AttendanceRecord, 0, len(entries))
	for _, entry := range entries {
		rec := models.AttendanceRecord{
			ID:             uuid.NewString(),
			ClassID:        key.ClassID,
			SubjectID:      key.SubjectID,
			TeacherID:      teacherID,
			StudentID:      entry.StudentID,
			AttendanceDate: key.Date,
			Status:         entry.Status,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if _, err := tx.ExecContext(ctx, insert, rec.ID, rec.ClassID, rec.SubjectID, rec.TeacherID, rec.StudentID, rec.AttendanceDate, rec.Status, rec.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return nil, ErrSessionExists
			}
			return nil, fmt.Errorf("insert attendance record for %s: %w", entry.StudentID, err)
		}
		created = append(created, rec)
	}

	if prepare != nil {
		if err := prepare(ctx, &attendanceTx{tx: tx, now: r.now}, created); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSessionExists
		}
		return nil, fmt.Errorf("commit attendance session: %w", err)
	}
	committed = true
	return created, nil
}

type attendanceTx struct {
	tx  *sqlx.Tx
	now func() time.Time
}

// SubjectTally counts a student's present and total records for a subject, including rows
// written earlier in the same transaction.
func (t *attendanceTx) SubjectTally(ctx context.Context, studentID, subjectID string) (int, int, error) {
	const query = `SELECT COUNT(*) FILTER (WHERE status = 'present') AS attended, COUNT(*) AS total
FROM attendance_records WHERE student_id = $1 AND subject_id = $2`
	var tally struct {
		Attended int `db:"attended"`
		Total    int `db:"total"`
	}
	if err := t.tx.GetContext(ctx, &tally, query, studentID, subjectID); err != nil {
		return 0, 0, fmt.Errorf("subject tally: %w", err)
	}
	return tally.Attended, tally.Total, nil
}

func (t *attendanceTx) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = t.now().UTC()
	}
	const query = `INSERT INTO notifications (id, student_id, type, message, meta, read, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := t.tx.ExecContext(ctx, query, n.ID, n.StudentID, n.Type, n.Message, n.Meta, n.Read, n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// SessionRecords lists a recorded session in insertion order.
func (r *AttendanceRepository) SessionRecords(ctx context.Context, key models.SessionKey) ([]models.SessionRecordView, error) {
	const query = `SELECT ar.id, ar.student_id, ar.status, u.name AS student_name, s.roll_number
FROM attendance_records ar
JOIN students s ON s.id = ar.student_id
JOIN users u ON u.id = s.user_id
WHERE ar.class_id = $1 AND ar.subject_id = $2 AND ar.attendance_date = $3
ORDER BY ar.created_at, ar.id`
	rows := make([]models.SessionRecordView, 0)
	if err := r.db.SelectContext(ctx, &rows, query, key.ClassID, key.SubjectID, key.Date); err != nil {
		return nil, fmt.Errorf("list session records: %w", err)
	}
	return rows, nil
}

// StudentRecords lists a student's attendance, most recent first.
func (r *AttendanceRepository) StudentRecords(ctx context.Context, studentID string) ([]models.StudentAttendanceView, error) {
	const query = `SELECT ar.id, ar.attendance_date, ar.status, ar.subject_id, sub.name AS subject_name, ar.class_id, c.name AS class_name
FROM attendance_records ar
JOIN subjects sub ON sub.id = ar.subject_id
JOIN classes c ON c.id = ar.class_id
WHERE ar.student_id = $1
ORDER BY ar.attendance_date DESC, ar.created_at DESC`
	rows := make([]models.StudentAttendanceView, 0)
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list student attendance: %w", err)
	}
	for i := range rows {
		rows[i].Date = rows[i].AttendanceDate.Format(models.DateLayout)
	}
	return rows, nil
}

// StudentHistory returns the full history used by the analytics engine, ordered by
// date, then insertion time, then id.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, studentID string) ([]models.HistoryEntry, error) {
	const query = `SELECT ar.subject_id, sub.name AS subject_name, ar.attendance_date, ar.status
FROM attendance_records ar
JOIN subjects sub ON sub.id = ar.subject_id
WHERE ar.student_id = $1
ORDER BY ar.attendance_date, ar.created_at, ar.id`
	rows := make([]models.HistoryEntry, 0)
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("load student history: %w", err)
	}
	return rows, nil
}

// StudentTally counts present and total records across all subjects.
func (r *AttendanceRepository) StudentTally(ctx context.Context, studentID string) (attended, total int, err error) {
	const query = `SELECT COUNT(*) FILTER (WHERE status = 'present') AS attended, COUNT(*) AS total
FROM attendance_records WHERE student_id = $1`
	var tally struct {
		Attended int `db:"attended"`
		Total    int `db:"total"`
	}
	if err := r.db.GetContext(ctx, &tally, query, studentID); err != nil {
		return 0, 0, fmt.Errorf("student tally: %w", err)
	}
	return tally.Attended, tally.Total, nil
}

// OverrideAbsences flips every absent record of the student on the given day to present
// and appends one audit row per record, all in one transaction. It returns the records as
// they were before the change; none found leaves the store untouched.
func (r *AttendanceRepository) OverrideAbsences(ctx context.Context, studentID string, day time.Time, reason, actorUserID string) ([]models.AttendanceRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin override: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const selectAbsent = `SELECT id, class_id, subject_id, teacher_id, student_id, attendance_date, status, override_reason, created_at, updated_at
FROM attendance_records
WHERE student_id = $1 AND attendance_date = $2 AND status = 'absent'
ORDER BY created_at, id
FOR UPDATE`
	var records []models.AttendanceRecord
	if err := tx.SelectContext(ctx, &records, selectAbsent, studentID, day); err != nil {
		return nil, fmt.Errorf("select absences: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	const update = `UPDATE attendance_records SET status = $1, override_reason = $2, updated_at = $3 WHERE id = $4`
	const audit = `INSERT INTO attendance_audit_logs (id, attendance_record_id, actor_user_id, previous_status, new_status, reason, created_at)
VALUES (:id, :attendance_record_id, :actor_user_id, :previous_status, :new_status, :reason, :created_at)`
	now := r.now().UTC()
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, update, models.AttendanceStatusPresent, reason, now, rec.ID); err != nil {
			return nil, fmt.Errorf("override record %s: %w", rec.ID, err)
		}
		entry := models.AttendanceAuditLog{
			ID:                 uuid.NewString(),
			AttendanceRecordID: rec.ID,
			ActorUserID:        actorUserID,
			PreviousStatus:     rec.Status,
			NewStatus:          models.AttendanceStatusPresent,
			Reason:             reason,
			CreatedAt:          now,
		}
		if _, err := tx.NamedExecContext(ctx, audit, entry); err != nil {
			return nil, fmt.Errorf("audit override of %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit override: %w", err)
	}
	committed = true
	return records, nil
}

// ClassDayTotals aggregates every class with records on day.
func (r *AttendanceRepository) ClassDayTotals(ctx context.Context, day time.Time) ([]models.ClassDayTotals, error) {
	const query = `SELECT c.id AS class_id, c.name AS class_name, u.email AS class_teacher_email, u.name AS class_teacher_name,
	COUNT(DISTINCT ar.student_id) AS total_students,
	COUNT(*) FILTER (WHERE ar.status = 'present') AS total_present,
	COUNT(*) FILTER (WHERE ar.status = 'absent') AS total_absent
FROM attendance_records ar
JOIN classes c ON c.id = ar.class_id
LEFT JOIN users u ON u.id = c.class_teacher_id
WHERE ar.attendance_date = $1
GROUP BY c.id, c.name, u.email, u.name
ORDER BY c.name`
	rows := make([]models.ClassDayTotals, 0)
	if err := r.db.SelectContext(ctx, &rows, query, day); err != nil {
		return nil, fmt.Errorf("class day totals: %w", err)
	}
	return rows, nil
}

// ClassDaySubjects breaks a class's day down by subject.
func (r *AttendanceRepository) ClassDaySubjects(ctx context.Context, classID string, day time.Time) ([]models.ClassDaySubjectRow, error) {
	const query = `SELECT sub.name AS subject_name,
	COUNT(*) FILTER (WHERE ar.status = 'present') AS present,
	COUNT(*) FILTER (WHERE ar.status = 'absent') AS absent
FROM attendance_records ar
JOIN subjects sub ON sub.id = ar.subject_id
WHERE ar.class_id = $1 AND ar.attendance_date = $2
GROUP BY sub.name
ORDER BY sub.name`
	rows := make([]models.ClassDaySubjectRow, 0)
	if err := r.db.SelectContext(ctx, &rows, query, classID, day); err != nil {
		return nil, fmt.Errorf("class day subjects: %w", err)
	}
	return rows, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
