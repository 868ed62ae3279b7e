package service

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	appErrors "github.com/bodhisatwazer00ne/WAA-100/pkg/errors"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/export"
)

type reportAttendanceSource interface {
	ClassDayTotals(ctx context.Context, day time.Time) ([]models.ClassDayTotals, error)
	ClassDaySubjects(ctx context.Context, classID string, day time.Time) ([]models.ClassDaySubjectRow, error)
	StudentHistory(ctx context.Context, studentID string) ([]models.HistoryEntry, error)
}

type mergedReportStore interface {
	Upsert(ctx context.Context, report *models.MergedClassReport) (*models.MergedClassReport, error)
	FindByID(ctx context.Context, id string) (*models.MergedClassReport, error)
	ListByClass(ctx context.Context, classID string, limit int) ([]models.MergedClassReport, error)
}

type reportStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type urlSigner interface {
	Generate(subject, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (string, string, time.Time, error)
}

// ReportMailer sends report summaries.
type ReportMailer interface {
	SendEmail(ctx context.Context, req EmailRequest) (*DeliveryReceipt, error)
}

// ReportServiceConfig governs report links and retention.
type ReportServiceConfig struct {
	DownloadPath string
	RetentionTTL time.Duration
	ListLimit    int
}

// MergedReportRun summarises one generation pass.
type MergedReportRun struct {
	Date      string `json:"date"`
	Generated int    `json:"generated"`
	Emailed   int    `json:"emailed"`
	Failed    int    `json:"failed"`
}

// MergedReportView is a stored report with a signed download link.
type MergedReportView struct {
	models.MergedClassReport
	DownloadURL string    `json:"downloadUrl,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
}

// ReportDownload is an opened report file.
type ReportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
}

// ReportService produces the daily merged class reports and per-student PDFs.
type ReportService struct {
	attendance reportAttendanceSource
	reports    mergedReportStore
	students   StudentLookup
	storage    reportStorage
	signer     urlSigner
	mailer     ReportMailer
	pdf        Renderer
	logger     *zap.Logger
	cfg        ReportServiceConfig
}

// NewReportService constructs the report service.
func NewReportService(attendance reportAttendanceSource, reports mergedReportStore, students StudentLookup, storage reportStorage, signer urlSigner, mailer ReportMailer, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/api/v1/reports/download"
	}
	if cfg.RetentionTTL <= 0 {
		cfg.RetentionTTL = 90 * 24 * time.Hour
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 30
	}
	return &ReportService{
		attendance: attendance,
		reports:    reports,
		students:   students,
		storage:    storage,
		signer:     signer,
		mailer:     mailer,
		pdf:        export.NewPDFExporter(),
		logger:     logger,
		cfg:        cfg,
	}
}

// GenerateMergedReports builds one report per class that has attendance on day: a PDF
// on disk, an upserted row and a best-effort e-mail to the class teacher. A failing class
// is logged and skipped.
func (s *ReportService) GenerateMergedReports(ctx context.Context, day time.Time) (*MergedReportRun, error) {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	run := &MergedReportRun{Date: day.Format(models.DateLayout)}

	totals, err := s.attendance.ClassDayTotals(ctx, day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}
	for _, class := range totals {
		if ctx.Err() != nil {
			return run, ctx.Err()
		}
		report, err := s.generateForClass(ctx, class, day)
		if err != nil {
			run.Failed++
			s.logger.Error("merged report failed", zap.String("class_id", class.ClassID), zap.String("date", run.Date), zap.Error(err))
			continue
		}
		run.Generated++
		if s.notifyClassTeacher(ctx, class, report) {
			run.Emailed++
		}
	}
	s.logger.Info("merged reports generated",
		zap.String("date", run.Date),
		zap.Int("generated", run.Generated),
		zap.Int("emailed", run.Emailed),
		zap.Int("failed", run.Failed),
	)
	return run, nil
}

func (s *ReportService) generateForClass(ctx context.Context, class models.ClassDayTotals, day time.Time) (*models.MergedClassReport, error) {
	subjects, err := s.attendance.ClassDaySubjects(ctx, class.ClassID, day)
	if err != nil {
		return nil, err
	}
	dataset := export.Dataset{
		Title: "Daily Merged Attendance Report",
		Summary: []string{
			"Class: " + class.ClassName,
			"Date: " + day.Format(models.DateLayout),
			"Total Students: " + strconv.Itoa(class.TotalStudents),
			"Present: " + strconv.Itoa(class.TotalPresent),
			"Absent: " + strconv.Itoa(class.TotalAbsent),
		},
		Headers: []string{"Subject", "Present", "Absent"},
		Rows:    make([][]string, 0, len(subjects)),
	}
	for _, row := range subjects {
		dataset.Rows = append(dataset.Rows, []string{row.SubjectName, strconv.Itoa(row.Present), strconv.Itoa(row.Absent)})
	}
	body, err := s.pdf.Render(dataset)
	if err != nil {
		return nil, fmt.Errorf("render merged report: %w", err)
	}
	filePath, err := s.storage.Save(path.Join("merged", class.ClassID, day.Format(models.DateLayout)+".pdf"), body)
	if err != nil {
		return nil, err
	}
	return s.reports.Upsert(ctx, &models.MergedClassReport{
		ClassID:       class.ClassID,
		ReportDate:    day,
		TotalStudents: class.TotalStudents,
		TotalPresent:  class.TotalPresent,
		TotalAbsent:   class.TotalAbsent,
		FilePath:      filePath,
	})
}

func (s *ReportService) notifyClassTeacher(ctx context.Context, class models.ClassDayTotals, report *models.MergedClassReport) bool {
	if s.mailer == nil || class.ClassTeacherEmail == nil || *class.ClassTeacherEmail == "" {
		return false
	}
	date := report.ReportDate.Format(models.DateLayout)
	_, err := s.mailer.SendEmail(ctx, EmailRequest{
		To:      []string{*class.ClassTeacherEmail},
		Subject: fmt.Sprintf("Merged attendance report for %s - %s", class.ClassName, date),
		Text:    fmt.Sprintf("Merged attendance for %s: Present %d, Absent %d.", class.ClassName, class.TotalPresent, class.TotalAbsent),
	})
	if err != nil {
		s.logger.Warn("merged report e-mail failed", zap.String("class_id", class.ClassID), zap.Error(err))
		return false
	}
	return true
}

// ListMergedReports returns a class's recent reports with signed download links.
func (s *ReportService) ListMergedReports(ctx context.Context, classID string) ([]MergedReportView, error) {
	reports, err := s.reports.ListByClass(ctx, classID, s.cfg.ListLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list merged reports")
	}
	views := make([]MergedReportView, 0, len(reports))
	for _, report := range reports {
		view := MergedReportView{MergedClassReport: report}
		if report.FilePath != "" {
			token, expiresAt, err := s.signer.Generate(report.ID, report.FilePath)
			if err != nil {
				s.logger.Warn("sign report link failed", zap.String("report_id", report.ID), zap.Error(err))
			} else {
				view.DownloadURL = s.cfg.DownloadPath + "?token=" + url.QueryEscape(token)
				view.ExpiresAt = expiresAt
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// Download resolves a signed token to the report file.
func (s *ReportService) Download(ctx context.Context, token string) (*ReportDownload, error) {
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "token is required")
	}
	reportID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download link")
	}
	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	if report == nil || report.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Report not found")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "Report file not found")
	}
	return &ReportDownload{
		File:        file,
		Filename:    fmt.Sprintf("merged-%s-%s.pdf", report.ClassID, report.ReportDate.Format(models.DateLayout)),
		ContentType: s.pdf.ContentType(),
	}, nil
}

// StudentReport renders a student's per-subject attendance as a PDF. Students may only
// fetch their own.
func (s *ReportService) StudentReport(ctx context.Context, actor models.Actor, studentID string) (*ExportedFile, error) {
	if err := authorizeStudentRead(ctx, s.students, actor, studentID); err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found")
	}
	history, err := s.attendance.StudentHistory(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	analytics := ComputeStudentAnalytics(studentID, history, time.Now().UTC())

	dataset := export.Dataset{
		Title: "Student Attendance Report",
		Summary: []string{
			"Name: " + student.Name,
			"Roll No: " + student.RollNumber,
			fmt.Sprintf("Overall: %.2f%% (%s)", analytics.OverallPct, analytics.RiskLevel),
		},
		Headers: []string{"Subject", "Attended", "Total", "Percentage"},
		Rows:    make([][]string, 0, len(analytics.SubjectWise)),
	}
	for _, subj := range analytics.SubjectWise {
		dataset.Rows = append(dataset.Rows, []string{subj.SubjectName, strconv.Itoa(subj.Attended), strconv.Itoa(subj.Total), fmt.Sprintf("%.2f%%", subj.Pct)})
	}
	body, err := s.pdf.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render student report")
	}
	return &ExportedFile{
		Filename:    fmt.Sprintf("student-%s-attendance.pdf", student.RollNumber),
		ContentType: s.pdf.ContentType(),
		Body:        body,
	}, nil
}

// CleanupExpired deletes stored report files older than the retention window.
func (s *ReportService) CleanupExpired(context.Context) (int, error) {
	removed, err := s.storage.CleanupOlderThan(s.cfg.RetentionTTL)
	if err != nil {
		return len(removed), appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clean up reports")
	}
	if len(removed) > 0 {
		s.logger.Info("expired report files removed", zap.Int("count", len(removed)))
	}
	return len(removed), nil
}
