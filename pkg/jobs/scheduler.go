package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is a scheduled unit of work bounded by a timeout.
type Task struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs Tasks on cron expressions. Overlapping runs of the same task are skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler builds a scheduler evaluating specs in loc (time.Local when nil).
func NewScheduler(loc *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds task to the schedule.
func (s *Scheduler) Register(task Task) error {
	if task.Run == nil {
		return fmt.Errorf("task %s has no run function", task.Name)
	}
	_, err := s.cron.AddFunc(task.Spec, func() { s.runTask(task) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", task.Name, task.Spec, err)
	}
	s.logger.Info("task scheduled", zap.String("task", task.Name), zap.String("spec", task.Spec))
	return nil
}

func (s *Scheduler) runTask(task Task) {
	ctx := s.ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}
	start := time.Now()
	if err := task.Run(ctx); err != nil {
		s.logger.Error("scheduled task failed", zap.String("task", task.Name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	s.logger.Info("scheduled task finished", zap.String("task", task.Name), zap.Duration("elapsed", time.Since(start)))
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling, cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	s.cancel()
	<-stopped.Done()
}

// LoadLocation resolves a timezone name, treating "" and "Local" as time.Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
