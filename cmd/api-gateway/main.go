package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/bodhisatwazer00ne/WAA-100/api/swagger"
	"github.com/bodhisatwazer00ne/WAA-100/internal/handler"
	"github.com/bodhisatwazer00ne/WAA-100/internal/repository"
	"github.com/bodhisatwazer00ne/WAA-100/internal/service"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/cache"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/config"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/database"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/jobs"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/logger"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/mailer"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/storage"
)

// @title WAA-100 Attendance API
// @version 1.0.0
// @description Attendance ingestion, analytics recomputation and notification pipeline.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const (
	reportCleanupCron = "30 3 * * *"
	shutdownTimeout   = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	attendanceRepo := repository.NewAttendanceRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	mergedReportRepo := repository.NewMergedReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, service.CacheOptions{
		Enabled: cfg.Analytics.CacheEnabled && redisClient != nil,
		TTL:     cfg.Analytics.CacheTTL,
		Metrics: metricsSvc,
		Logger:  logr,
	})
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	analyticsSvc := service.NewAnalyticsService(analyticsRepo, attendanceRepo, studentRepo, classRepo, cacheSvc, metricsSvc, logr)

	provider := mailer.FromConfig(cfg.Mail)
	dispatcher := service.NewNotificationDispatcher(provider, service.DispatcherConfig{
		From:           cfg.Mail.From,
		AppName:        cfg.Mail.AppName,
		MaxAttempts:    cfg.Mail.MaxAttempts,
		InitialBackoff: cfg.Mail.InitialBackoff,
		MaxBackoff:     cfg.Mail.MaxBackoff,
		RatePerSecond:  cfg.Mail.RatePerSecond,
	}, metricsSvc, logr)
	if !dispatcher.Enabled() {
		logr.Warn("no e-mail provider configured; absence alerts are recorded in-app only")
	}
	if len(cfg.Mail.RecipientOverrides) > 0 && cfg.Env == config.EnvProduction {
		logr.Warn("recipient overrides ignored in production")
		cfg.Mail.RecipientOverrides = nil
	}

	attendanceSvc := service.NewAttendanceService(service.AttendanceServiceDeps{
		Store:      attendanceRepo,
		Teachers:   teacherRepo,
		Subjects:   subjectRepo,
		Classes:    classRepo,
		Students:   studentRepo,
		Analytics:  analyticsSvc,
		Dispatcher: dispatcher,
		Recipients: service.NewRecipientResolver(cfg.Mail.RecipientOverrides),
		Metrics:    metricsSvc,
	}, validate, logr)
	overrideSvc := service.NewOverrideService(attendanceRepo, studentRepo, classRepo, analyticsSvc, metricsSvc, validate, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, studentRepo, logr)

	reportStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return fmt.Errorf("init report storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	reportSvc := service.NewReportService(attendanceRepo, mergedReportRepo, studentRepo, reportStorage, signer, dispatcher, logr, service.ReportServiceConfig{
		DownloadPath: cfg.APIPrefix + "/reports/download",
		RetentionTTL: cfg.Reports.RetentionTTL,
	})

	recomputeQueue := jobs.NewQueue("analytics", analyticsSvc.HandleRecomputeJob, jobs.QueueConfig{
		Workers:    cfg.Analytics.WorkerCount,
		BufferSize: cfg.Analytics.QueueSize,
		MaxRetries: cfg.Analytics.RecomputeRetry,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})
	recomputeQueue.Start(ctx)
	defer recomputeQueue.Stop()

	if cfg.Scheduler.Enabled {
		scheduler, err := newScheduler(cfg, logr, analyticsSvc, reportSvc)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	handlers := routeHandlers{
		attendance:    handler.NewAttendanceHandler(attendanceSvc, overrideSvc),
		analytics:     handler.NewAnalyticsHandler(analyticsSvc, recomputeQueue),
		notifications: handler.NewNotificationHandler(notificationSvc),
		reports:       handler.NewReportHandler(reportSvc),
		metrics: handler.NewMetricsHandler(metricsSvc, map[string]handler.ReadinessCheck{
			"postgres": db.PingContext,
			"redis":    cacheRepo.Ping,
		}),
	}
	router := newRouter(cfg, logr, authSvc, metricsSvc, handlers)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logr.Info("server exited gracefully")
	return nil
}

func newScheduler(cfg *config.Config, logr *zap.Logger, analyticsSvc *service.AnalyticsService, reportSvc *service.ReportService) (*jobs.Scheduler, error) {
	loc, err := jobs.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}
	scheduler := jobs.NewScheduler(loc, logr)

	tasks := []jobs.Task{
		{
			Name:    "analytics-sweep",
			Spec:    cfg.Scheduler.AnalyticsSweepCron,
			Timeout: time.Hour,
			Run: func(ctx context.Context) error {
				_, err := analyticsSvc.RecomputeAllStudentsAnalytics(ctx)
				return err
			},
		},
		{
			Name:    "merged-reports",
			Spec:    cfg.Scheduler.MergedReportCron,
			Timeout: 30 * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := reportSvc.GenerateMergedReports(ctx, time.Now().In(loc))
				return err
			},
		},
		{
			Name:    "report-cleanup",
			Spec:    reportCleanupCron,
			Timeout: 10 * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := reportSvc.CleanupExpired(ctx)
				return err
			},
		},
	}
	for _, task := range tasks {
		if err := scheduler.Register(task); err != nil {
			return nil, err
		}
	}
	return scheduler, nil
}
