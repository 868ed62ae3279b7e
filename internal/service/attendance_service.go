package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	"github.com/bodhisatwazer00ne/WAA-100/internal/repository"
	appErrors "github.com/bodhisatwazer00ne/WAA-100/pkg/errors"
)

type attendanceStore interface {
	SessionExists(ctx context.Context, key models.SessionKey) (bool, error)
	CreateSession(ctx context.Context, key models.SessionKey, teacherID string, entries []models.AttendanceEntry, prepare repository.PrepareFunc) ([]models.AttendanceRecord, error)
	SessionRecords(ctx context.Context, key models.SessionKey) ([]models.SessionRecordView, error)
	StudentRecords(ctx context.Context, studentID string) ([]models.StudentAttendanceView, error)
}

type teacherDirectory interface {
	FindByUserID(ctx context.Context, userID string) (*models.Teacher, error)
	Subjects(ctx context.Context, teacherID string) ([]models.Subject, error)
	ClassesForSubject(ctx context.Context, teacherID, subjectID string) ([]models.Class, error)
}

type subjectLookup interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type classLookup interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type classRoster interface {
	StudentLookup
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
	Contacts(ctx context.Context, ids []string) (map[string]models.StudentContact, error)
}

// AnalyticsRecomputer rebuilds a student's analytics row.
type AnalyticsRecomputer interface {
	RecomputeStudentAnalytics(ctx context.Context, studentID string) (*models.AnalyticsCache, error)
}

// AlertDispatcher delivers absence alerts after commit.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alerts []AbsenceAlert) DispatchResult
}

// AttendanceService records attendance sessions and runs their follow-up work.
type AttendanceService struct {
	store      attendanceStore
	teachers   teacherDirectory
	subjects   subjectLookup
	classes    classLookup
	students   classRoster
	analytics  AnalyticsRecomputer
	dispatcher AlertDispatcher
	recipients RecipientResolver
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// AttendanceServiceDeps groups the collaborators of AttendanceService.
type AttendanceServiceDeps struct {
	Store      attendanceStore
	Teachers   teacherDirectory
	Subjects   subjectLookup
	Classes    classLookup
	Students   classRoster
	Analytics  AnalyticsRecomputer
	Dispatcher AlertDispatcher
	Recipients RecipientResolver
	Metrics    *MetricsService
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(deps AttendanceServiceDeps, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Recipients == nil {
		deps.Recipients = NewRecipientResolver(nil)
	}
	svc := &AttendanceService{
		store:      deps.Store,
		teachers:   deps.Teachers,
		subjects:   deps.Subjects,
		classes:    deps.Classes,
		students:   deps.Students,
		analytics:  deps.Analytics,
		dispatcher: deps.Dispatcher,
		recipients: deps.Recipients,
		metrics:    deps.Metrics,
		validator:  validate,
		logger:     logger,
	}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToLower(fl.Field().String())).Valid()
	})
	return svc
}

// MarkAttendanceRequest is the payload for recording one session.
type MarkAttendanceRequest struct {
	ClassID    string                   `json:"classId" validate:"required"`
	SubjectID  string                   `json:"subjectId" validate:"required"`
	Date       string                   `json:"date" validate:"required"`
	Attendance []AttendanceEntryRequest `json:"attendance" validate:"required,min=1,dive"`
}

// AttendanceEntryRequest is one student's status in a marking request.
type AttendanceEntryRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	Status    string `json:"status" validate:"required,attendance_status"`
}

// SessionQuery identifies a session in read requests.
type SessionQuery struct {
	ClassID   string `form:"classId" validate:"required"`
	SubjectID string `form:"subjectId" validate:"required"`
	Date      string `form:"date" validate:"required"`
}

// MarkAttendanceResult summarises a recorded session.
type MarkAttendanceResult struct {
	Count         int                       `json:"count"`
	Records       []models.AttendanceRecord `json:"records"`
	Notifications DispatchResult            `json:"notifications"`
}

// MarkAttendance records the session atomically together with its notification rows,
// then e-mails the absent students and recomputes analytics for everyone marked. Only
// the transactional part can fail the call.
func (s *AttendanceService) MarkAttendance(ctx context.Context, req MarkAttendanceRequest, actor models.Actor) (*MarkAttendanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	key := models.SessionKey{ClassID: req.ClassID, SubjectID: req.SubjectID, Date: date}

	teacher, err := s.teachers.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "Teacher profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}
	subject, err := s.subjects.FindByID(ctx, req.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	entries, err := s.resolveEntries(ctx, req)
	if err != nil {
		return nil, err
	}

	exists, err := s.store.SessionExists(ctx, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance session")
	}
	if exists {
		return nil, appErrors.ErrDuplicateSession
	}

	var absentIDs []string
	for _, e := range entries {
		if e.Status == models.AttendanceStatusAbsent {
			absentIDs = append(absentIDs, e.StudentID)
		}
	}
	contacts, err := s.students.Contacts(ctx, absentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student contacts")
	}

	var alerts []AbsenceAlert
	prepare := func(ctx context.Context, tx repository.AttendanceTx, created []models.AttendanceRecord) error {
		alerts = alerts[:0]
		prepared, err := s.prepareSideEffects(ctx, tx, class, subject, created, contacts)
		if err != nil {
			return err
		}
		alerts = prepared
		return nil
	}

	created, err := s.store.CreateSession(ctx, key, teacher.ID, entries, prepare)
	if err != nil {
		if errors.Is(err, repository.ErrSessionExists) {
			return nil, appErrors.ErrDuplicateSession
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	s.metrics.RecordSessionMarked()
	s.logger.Info("attendance session recorded",
		zap.String("class_id", key.ClassID),
		zap.String("subject_id", key.SubjectID),
		zap.String("date", req.Date),
		zap.String("teacher_id", teacher.ID),
		zap.Int("records", len(created)),
		zap.Int("absent", len(absentIDs)),
	)

	// The session is committed; a caller that goes away must not cut e-mails or
	// recomputes short.
	detached := context.WithoutCancel(ctx)

	result := &MarkAttendanceResult{Count: len(created), Records: created}
	if len(alerts) > 0 {
		if s.dispatcher != nil {
			result.Notifications = s.dispatcher.Dispatch(detached, alerts)
		} else {
			result.Notifications = DispatchResult{Attempted: len(alerts), Failed: len(alerts)}
			s.logger.Warn("absence alerts dropped, no dispatcher configured", zap.Int("alerts", len(alerts)))
		}
	}

	for _, rec := range created {
		if _, err := s.analytics.RecomputeStudentAnalytics(detached, rec.StudentID); err != nil {
			s.logger.Error("analytics recompute after marking failed", zap.String("student_id", rec.StudentID), zap.Error(err))
		}
	}
	return result, nil
}

// resolveEntries checks the request against the class roster: no duplicates, no
// strangers, nobody left out.
func (s *AttendanceService) resolveEntries(ctx context.Context, req MarkAttendanceRequest) ([]models.AttendanceEntry, error) {
	roster, err := s.students.ListByClass(ctx, req.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	enrolled := make(map[string]struct{}, len(roster))
	for _, st := range roster {
		enrolled[st.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(req.Attendance))
	entries := make([]models.AttendanceEntry, 0, len(req.Attendance))
	for _, item := range req.Attendance {
		if _, dup := seen[item.StudentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate student %s in payload", item.StudentID))
		}
		seen[item.StudentID] = struct{}{}
		if _, ok := enrolled[item.StudentID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not enrolled in class", item.StudentID))
		}
		entries = append(entries, models.AttendanceEntry{
			StudentID: item.StudentID,
			Status:    models.AttendanceStatus(strings.ToLower(item.Status)),
		})
	}
	if missing := len(enrolled) - len(seen); missing > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("attendance missing for %d enrolled student(s)", missing))
	}
	return entries, nil
}

// prepareSideEffects runs inside the marking transaction. For every absent record it
// stores a notification carrying the subject percentage and risk snapshot, and returns
// the alerts to send once the transaction has committed.
func (s *AttendanceService) prepareSideEffects(ctx context.Context, tx repository.AttendanceTx, class *models.Class, subject *models.Subject, created []models.AttendanceRecord, contacts map[string]models.StudentContact) ([]AbsenceAlert, error) {
	var alerts []AbsenceAlert
	for _, rec := range created {
		if rec.Status != models.AttendanceStatusAbsent {
			continue
		}
		contact, hasContact := contacts[rec.StudentID]
		className := contact.ClassName
		if className == "" {
			className = class.Name
		}
		attended, total, err := tx.SubjectTally(ctx, rec.StudentID, rec.SubjectID)
		if err != nil {
			return nil, err
		}
		pct := percentage(attended, total)
		risk := models.ClassifyRisk(pct)
		date := rec.AttendanceDate.Format(models.DateLayout)

		notification := &models.Notification{
			StudentID: rec.StudentID,
			Type:      models.NotificationTypeAbsence,
			Message:   fmt.Sprintf("You were marked absent for %s on %s. Risk category: %s.", subject.Name, date, risk),
			Meta: models.NotificationMeta{
				Class:        className,
				Subject:      subject.Name,
				Date:         date,
				SubjectPct:   pct,
				RiskCategory: risk,
			},
		}
		if err := tx.InsertNotification(ctx, notification); err != nil {
			return nil, err
		}

		if !hasContact {
			s.logger.Warn("no contact for absent student", zap.String("student_id", rec.StudentID))
			continue
		}
		to, ok := s.recipients.Resolve(contact)
		if !ok {
			continue
		}
		alerts = append(alerts, AbsenceAlert{
			StudentID:   rec.StudentID,
			StudentName: contact.Name,
			To:          to,
			ClassName:   className,
			SubjectName: subject.Name,
			Date:        date,
			SubjectPct:  pct,
			Risk:        risk,
		})
	}
	return alerts, nil
}

// CheckSession reports whether the session has been recorded.
func (s *AttendanceService) CheckSession(ctx context.Context, q SessionQuery) (bool, error) {
	key, err := s.sessionKey(q)
	if err != nil {
		return false, err
	}
	exists, err := s.store.SessionExists(ctx, key)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance session")
	}
	return exists, nil
}

// SessionRecords lists a recorded session.
func (s *AttendanceService) SessionRecords(ctx context.Context, q SessionQuery) ([]models.SessionRecordView, error) {
	key, err := s.sessionKey(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.SessionRecords(ctx, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list session records")
	}
	return rows, nil
}

// StudentRecords lists a student's attendance. Students may only list their own.
func (s *AttendanceService) StudentRecords(ctx context.Context, actor models.Actor, studentID string) ([]models.StudentAttendanceView, error) {
	if err := authorizeStudentRead(ctx, s.students, actor, studentID); err != nil {
		return nil, err
	}
	rows, err := s.store.StudentRecords(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student attendance")
	}
	return rows, nil
}

// TeacherSubjects lists the subjects mapped to the calling teacher. A user without a
// teacher profile gets an empty list.
func (s *AttendanceService) TeacherSubjects(ctx context.Context, actor models.Actor) ([]models.Subject, error) {
	teacher, err := s.teachers.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.Subject{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}
	subjects, err := s.teachers.Subjects(ctx, teacher.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher subjects")
	}
	return subjects, nil
}

// TeacherClasses lists the classes the calling teacher teaches the subject in.
func (s *AttendanceService) TeacherClasses(ctx context.Context, actor models.Actor, subjectID string) ([]models.Class, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subjectId is required")
	}
	teacher, err := s.teachers.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.Class{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}
	classes, err := s.teachers.ClassesForSubject(ctx, teacher.ID, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher classes")
	}
	return classes, nil
}

// ClassStudents lists the roster of a class ordered by roll number.
func (s *AttendanceService) ClassStudents(ctx context.Context, classID string) ([]models.Student, error) {
	students, err := s.students.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, nil
}

func (s *AttendanceService) sessionKey(q SessionQuery) (models.SessionKey, error) {
	if err := s.validator.Struct(q); err != nil {
		return models.SessionKey{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "classId, subjectId and date are required")
	}
	date, err := parseDate(q.Date)
	if err != nil {
		return models.SessionKey{}, err
	}
	return models.SessionKey{ClassID: q.ClassID, SubjectID: q.SubjectID, Date: date}, nil
}

func parseDate(raw string) (time.Time, error) {
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	return date, nil
}
