package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodhisatwazer00ne/WAA-100/internal/dto"
	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	"github.com/bodhisatwazer00ne/WAA-100/internal/service"
	appErrors "github.com/bodhisatwazer00ne/WAA-100/pkg/errors"
)

type attendanceServiceMock struct {
	markReq    service.MarkAttendanceRequest
	markActor  models.Actor
	markResult *service.MarkAttendanceResult
	markErr    error
	exists     bool
	query      service.SessionQuery
	records    []models.SessionRecordView
	studentID  string
}

func (m *attendanceServiceMock) MarkAttendance(_ context.Context, req service.MarkAttendanceRequest, actor models.Actor) (*service.MarkAttendanceResult, error) {
	m.markReq = req
	m.markActor = actor
	return m.markResult, m.markErr
}

func (m *attendanceServiceMock) CheckSession(_ context.Context, q service.SessionQuery) (bool, error) {
	m.query = q
	return m.exists, nil
}

func (m *attendanceServiceMock) SessionRecords(_ context.Context, q service.SessionQuery) ([]models.SessionRecordView, error) {
	m.query = q
	return m.records, nil
}

func (m *attendanceServiceMock) StudentRecords(_ context.Context, actor models.Actor, studentID string) ([]models.StudentAttendanceView, error) {
	m.studentID = studentID
	if actor.Role == models.RoleStudent && actor.UserID != "u-"+studentID {
		return nil, appErrors.ErrForbidden
	}
	return []models.StudentAttendanceView{}, nil
}

func (m *attendanceServiceMock) TeacherSubjects(context.Context, models.Actor) ([]models.Subject, error) {
	return []models.Subject{{ID: "math", Name: "Mathematics"}}, nil
}

func (m *attendanceServiceMock) TeacherClasses(_ context.Context, _ models.Actor, subjectID string) ([]models.Class, error) {
	if subjectID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subjectId is required")
	}
	return []models.Class{{ID: "c1"}}, nil
}

func (m *attendanceServiceMock) ClassStudents(context.Context, string) ([]models.Student, error) {
	return []models.Student{{ID: "s1"}}, nil
}

type overrideServiceMock struct {
	req    service.OverrideRequest
	result *service.OverrideResult
	err    error
}

func (m *overrideServiceMock) OverrideToPresent(_ context.Context, req service.OverrideRequest, _ models.Actor) (*service.OverrideResult, error) {
	m.req = req
	return m.result, m.err
}

func TestAttendanceHandlerMark(t *testing.T) {
	svc := &attendanceServiceMock{markResult: &service.MarkAttendanceResult{
		Count:         5,
		Notifications: service.DispatchResult{Attempted: 2, Delivered: 1, Failed: 1},
	}}
	h := NewAttendanceHandler(svc, &overrideServiceMock{})

	payload, _ := json.Marshal(service.MarkAttendanceRequest{
		ClassID:    "c1",
		SubjectID:  "math",
		Date:       "2024-03-04",
		Attendance: []service.AttendanceEntryRequest{{StudentID: "s1", Status: "present"}},
	})
	c, w := newGinContext(http.MethodPost, "/attendance/mark", payload)
	withClaims(c, "u-t1", models.RoleTeacher)

	h.Mark(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var body dto.MarkAttendanceResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &body))
	assert.Equal(t, 5, body.Count)
	assert.Equal(t, dto.NotificationSummary{Attempted: 2, Delivered: 1, Failed: 1}, body.Notifications)
	assert.Equal(t, "c1", svc.markReq.ClassID)
	assert.Equal(t, models.Actor{UserID: "u-t1", Role: models.RoleTeacher}, svc.markActor)
}

func TestAttendanceHandlerMarkDuplicate(t *testing.T) {
	svc := &attendanceServiceMock{markErr: appErrors.ErrDuplicateSession}
	h := NewAttendanceHandler(svc, &overrideServiceMock{})

	c, w := newGinContext(http.MethodPost, "/attendance/mark", []byte(`{"classId":"c1","subjectId":"math","date":"2024-03-04","attendance":[{"studentId":"s1","status":"present"}]}`))
	withClaims(c, "u-t1", models.RoleTeacher)

	h.Mark(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_SESSION", decodeEnvelope(t, w).Error.Code)
}

func TestAttendanceHandlerMarkRejectsBadJSONAndAnonymous(t *testing.T) {
	h := NewAttendanceHandler(&attendanceServiceMock{}, &overrideServiceMock{})

	c, w := newGinContext(http.MethodPost, "/attendance/mark", []byte(`{"classId":`))
	withClaims(c, "u-t1", models.RoleTeacher)
	h.Mark(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodPost, "/attendance/mark", []byte(`{}`))
	h.Mark(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttendanceHandlerOverride(t *testing.T) {
	overrides := &overrideServiceMock{result: &service.OverrideResult{OverriddenCount: 3}}
	h := NewAttendanceHandler(&attendanceServiceMock{}, overrides)

	c, w := newGinContext(http.MethodPost, "/attendance/override", []byte(`{"studentId":"s1","date":"2024-03-04","reason":"medical leave"}`))
	withClaims(c, "u-ct", models.RoleClassTeacher)
	h.Override(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body dto.OverrideResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &body))
	assert.Equal(t, 3, body.OverriddenCount)
	assert.Equal(t, "medical leave", overrides.req.Reason)

	overrides.err = appErrors.ErrNoAbsenceFound
	c, w = newGinContext(http.MethodPost, "/attendance/override", []byte(`{"studentId":"s1","date":"2024-03-04","reason":"medical leave"}`))
	withClaims(c, "u-ct", models.RoleClassTeacher)
	h.Override(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttendanceHandlerCheckBindsQuery(t *testing.T) {
	svc := &attendanceServiceMock{exists: true}
	h := NewAttendanceHandler(svc, &overrideServiceMock{})

	c, w := newGinContext(http.MethodGet, "/attendance/check?classId=c1&subjectId=math&date=2024-03-04", nil)
	h.Check(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.SessionQuery{ClassID: "c1", SubjectID: "math", Date: "2024-03-04"}, svc.query)
	var body dto.CheckSessionResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &body))
	assert.True(t, body.Exists)
}

func TestAttendanceHandlerStudentRecords(t *testing.T) {
	svc := &attendanceServiceMock{}
	h := NewAttendanceHandler(svc, &overrideServiceMock{})

	c, w := newGinContext(http.MethodGet, "/attendance/student/s2", nil)
	c.Params = gin.Params{{Key: "studentId", Value: "s2"}}
	withClaims(c, "u-s1", models.RoleStudent)
	h.StudentRecords(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "s2", svc.studentID)
}

func TestAttendanceHandlerTeacherLookups(t *testing.T) {
	h := NewAttendanceHandler(&attendanceServiceMock{}, &overrideServiceMock{})

	c, w := newGinContext(http.MethodGet, "/attendance/teacher/subjects", nil)
	withClaims(c, "u-t1", models.RoleTeacher)
	h.TeacherSubjects(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/attendance/teacher/classes", nil)
	withClaims(c, "u-t1", models.RoleTeacher)
	h.TeacherClasses(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/attendance/classes/c1/students", nil)
	c.Params = gin.Params{{Key: "classId", Value: "c1"}}
	h.ClassStudents(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
