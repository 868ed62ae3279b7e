package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/bodhisatwazer00ne/WAA-100/internal/handler"
	"github.com/bodhisatwazer00ne/WAA-100/internal/middleware"
	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	"github.com/bodhisatwazer00ne/WAA-100/internal/service"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/config"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/logger"
	corsmiddleware "github.com/bodhisatwazer00ne/WAA-100/pkg/middleware/cors"
	reqidmiddleware "github.com/bodhisatwazer00ne/WAA-100/pkg/middleware/requestid"
)

type routeHandlers struct {
	attendance    *handler.AttendanceHandler
	analytics     *handler.AnalyticsHandler
	notifications *handler.NotificationHandler
	reports       *handler.ReportHandler
	metrics       *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, authSvc *service.AuthService, metricsSvc *service.MetricsService, h routeHandlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/health", "/ready", "/metrics"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := []models.UserRole{models.RoleTeacher, models.RoleClassTeacher, models.RoleHOD, models.RoleAdmin}
	teaching := []models.UserRole{models.RoleTeacher, models.RoleClassTeacher, models.RoleHOD}
	supervisors := []models.UserRole{models.RoleClassTeacher, models.RoleHOD, models.RoleAdmin}
	operators := []models.UserRole{models.RoleHOD, models.RoleAdmin}

	api := r.Group(cfg.APIPrefix)

	// Signed links authenticate themselves.
	api.GET("/reports/download", h.reports.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))

	attendance := secured.Group("/attendance")
	attendance.POST("/mark", middleware.RequireRoles(teaching...), middleware.Audit(logr, "attendance.mark"), h.attendance.Mark)
	attendance.POST("/override", middleware.RequireRoles(supervisors...), middleware.Audit(logr, "attendance.override"), h.attendance.Override)
	attendance.GET("/check", middleware.RequireRoles(staff...), h.attendance.Check)
	attendance.GET("/records", middleware.RequireRoles(staff...), h.attendance.Records)
	attendance.GET("/student/:studentId", h.attendance.StudentRecords)
	attendance.GET("/teacher/subjects", middleware.RequireRoles(teaching...), h.attendance.TeacherSubjects)
	attendance.GET("/teacher/classes", middleware.RequireRoles(teaching...), h.attendance.TeacherClasses)
	attendance.GET("/classes/:classId/students", middleware.RequireRoles(staff...), h.attendance.ClassStudents)

	analytics := secured.Group("/analytics")
	analytics.GET("/student/:studentId", h.analytics.Student)
	analytics.GET("/class/:classId", middleware.RequireRoles(staff...), h.analytics.Class)
	analytics.GET("/risk-distribution", middleware.RequireRoles(staff...), h.analytics.RiskDistribution)
	analytics.GET("/department/summary", middleware.RequireRoles(operators...), h.analytics.DepartmentSummary)
	analytics.GET("/defaulters", middleware.RequireRoles(supervisors...), h.analytics.Defaulters)
	analytics.GET("/system", middleware.RequireRoles(operators...), h.analytics.System)
	analytics.POST("/recompute", middleware.RequireRoles(operators...), middleware.Audit(logr, "analytics.recompute"), h.analytics.Recompute)

	secured.GET("/recovery/student/:studentId", h.analytics.Recovery)

	notifications := secured.Group("/notifications")
	notifications.GET("/me", middleware.RequireRoles(models.RoleStudent), h.notifications.Mine)
	notifications.GET("/all", middleware.RequireRoles(models.RoleHOD, models.RoleClassTeacher, models.RoleAdmin), h.notifications.All)

	reports := secured.Group("/reports")
	reports.GET("/class/:classId/merged", middleware.RequireRoles(supervisors...), h.reports.MergedReports)
	reports.GET("/student/:studentId", h.reports.StudentReport)

	return r
}
