package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bodhisatwazer00ne/WAA-100/pkg/jobs"
)

// Job types understood by HandleRecomputeJob.
const (
	JobTypeRecomputeStudent = "analytics.recompute_student"
	JobTypeRecomputeAll     = "analytics.recompute_all"
)

// RecomputeStudentJob builds a queue job refreshing one student's analytics.
func RecomputeStudentJob(studentID string) jobs.Job {
	return jobs.Job{Key: "recompute:student:" + studentID, Type: JobTypeRecomputeStudent, Payload: studentID}
}

// RecomputeAllJob builds a queue job running the full sweep. Pending sweeps coalesce.
func RecomputeAllJob() jobs.Job {
	return jobs.Job{Key: "recompute:all", Type: JobTypeRecomputeAll}
}

// HandleRecomputeJob is the jobs.Handler for the analytics queue.
func (s *AnalyticsService) HandleRecomputeJob(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobTypeRecomputeStudent:
		studentID, ok := job.Payload.(string)
		if !ok || studentID == "" {
			return fmt.Errorf("job %s: missing student id", job.Key)
		}
		_, err := s.RecomputeStudentAnalytics(ctx, studentID)
		return err
	case JobTypeRecomputeAll:
		summary, err := s.RecomputeAllStudentsAnalytics(ctx)
		if err != nil {
			return err
		}
		s.logger.Info("queued analytics sweep finished",
			zap.Int("total", summary.Total),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
		)
		return nil
	default:
		return fmt.Errorf("job %s: unknown type %q", job.Key, job.Type)
	}
}
