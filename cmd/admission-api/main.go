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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/acmst-college/admission-api/api/swagger"
	"github.com/acmst-college/admission-api/internal/handler"
	"github.com/acmst-college/admission-api/internal/middleware"
	"github.com/acmst-college/admission-api/internal/models"
	"github.com/acmst-college/admission-api/internal/repository"
	"github.com/acmst-college/admission-api/internal/service"
	"github.com/acmst-college/admission-api/pkg/cache"
	"github.com/acmst-college/admission-api/pkg/config"
	"github.com/acmst-college/admission-api/pkg/database"
	"github.com/acmst-college/admission-api/pkg/jobs"
	"github.com/acmst-college/admission-api/pkg/logger"
	"github.com/acmst-college/admission-api/pkg/mailer"
	corsmiddleware "github.com/acmst-college/admission-api/pkg/middleware/cors"
	reqidmiddleware "github.com/acmst-college/admission-api/pkg/middleware/requestid"
	"github.com/acmst-college/admission-api/pkg/storage"
)

// @title ACMST Admission API
// @version 1.0.0
// @description Multi-party approval pipeline for student admissions
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, redisErr := cache.NewRedis(cfg.Redis)
	if redisErr != nil {
		logr.Sugar().Warnw("redis unavailable, dashboard caching disabled", "error", redisErr)
	}

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	admissionRepo := repository.NewAdmissionRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	guardianRepo := repository.NewGuardianRepository(db)
	conditionRepo := repository.NewConditionRepository(db)
	healthRepo := repository.NewHealthRepository(db)
	programRepo := repository.NewProgramRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	emailRepo := repository.NewPendingEmailRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	exportSigner := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	// Services. The admission service sits in the middle: conditions escalate
	// through it, health decisions cascade through it, and notifications
	// resolve recipients through it, so those edges are wired after
	// construction.
	auditSvc := service.NewAuditService(auditRepo, cfg.Audit.RetentionDays, logr)
	authSvc := service.NewAuthService(userRepo, auditSvc, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "admission-api",
	})
	userSvc := service.NewUserService(userRepo, auditSvc, validate, logr)

	notificationSvc := service.NewNotificationService(emailRepo, mailer.NewSMTPMailer(cfg.Mail), mailer.NewRegistry(), auditSvc, logr,
		service.WithRetryLimits(cfg.Emails.MaxRetries, cfg.Emails.BatchSize))

	admissionSvc := service.NewAdmissionService(
		admissionRepo, approvalRepo, guardianRepo, conditionRepo, healthRepo,
		programRepo, studentRepo, notificationSvc, auditSvc, logr,
		service.WithAgeLimits(cfg.Admission.MinAge, cfg.Admission.MaxAge),
	)
	notificationSvc.SetResolver(admissionSvc)

	conditionSvc := service.NewConditionService(conditionRepo, admissionRepo, auditSvc, logr,
		service.WithDefaultDeadline(cfg.Admission.ConditionDeadlineDays))
	conditionSvc.SetEscalator(admissionSvc)

	healthSvc := service.NewHealthService(healthRepo, admissionRepo, auditSvc, logr)
	healthSvc.SetCascade(admissionSvc)

	workflowSvc := service.NewWorkflowService(workflowRepo, admissionRepo, notificationSvc, auditSvc, logr, cfg.Workflow.TimeoutBatch)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr,
		cfg.Dashboard.Enabled && redisErr == nil)
	dashboardSvc := service.NewDashboardService(admissionRepo, conditionRepo, emailRepo, cacheSvc, cfg.Dashboard.CacheTTL, logr)

	exportSvc := service.NewExportService(auditRepo, admissionRepo, exportStorage, exportSigner, auditSvc, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr)

	router := buildRouter(cfg, logr, metricsSvc, authSvc, auditSvc, handlers{
		auth:          handler.NewAuthHandler(authSvc),
		users:         handler.NewUserHandler(userSvc),
		admissions:    handler.NewAdmissionHandler(admissionSvc),
		health:        handler.NewHealthCheckHandler(healthSvc),
		conditions:    handler.NewConditionHandler(conditionSvc),
		workflows:     handler.NewWorkflowHandler(workflowSvc),
		notifications: handler.NewNotificationHandler(notificationSvc),
		audit:         handler.NewAuditHandler(auditSvc, exportSvc),
		dashboard:     handler.NewDashboardHandler(dashboardSvc),
		metrics:       handler.NewMetricsHandler(metricsSvc),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := jobs.NewScheduler(logr)
	scheduler.Register(jobs.Task{Name: "email-retry-sweep", Interval: cfg.Emails.RetryInterval, Run: func(ctx context.Context) error {
		_, err := notificationSvc.RetrySweep(ctx)
		return err
	}})
	scheduler.Register(jobs.Task{Name: "condition-overdue-sweep", Interval: 24 * time.Hour, Run: conditionSvc.SweepOverdue})
	scheduler.Register(jobs.Task{Name: "workflow-timeout-sweep", Interval: cfg.Workflow.TimeoutInterval, Run: func(ctx context.Context) error {
		_, err := workflowSvc.ProcessTimeouts(ctx)
		return err
	}})
	scheduler.Register(jobs.Task{Name: "audit-retention-cleanup", Interval: cfg.Audit.CleanupInterval, Run: auditSvc.Cleanup})
	scheduler.Register(jobs.Task{Name: "export-cleanup", Interval: 24 * time.Hour, Run: func(ctx context.Context) error {
		_, err := exportSvc.Cleanup(cfg.Exports.SignedURLTTL)
		return err
	}})
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}

type handlers struct {
	auth          *handler.AuthHandler
	users         *handler.UserHandler
	admissions    *handler.AdmissionHandler
	health        *handler.HealthCheckHandler
	conditions    *handler.ConditionHandler
	workflows     *handler.WorkflowHandler
	notifications *handler.NotificationHandler
	audit         *handler.AuditHandler
	dashboard     *handler.DashboardHandler
	metrics       *handler.MetricsHandler
}

func buildRouter(cfg *config.Config, logr *zap.Logger, metricsSvc *service.MetricsService, authSvc *service.AuthService, auditSvc *service.AuditService, h handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Health)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", h.auth.Login)
	auth.POST("/refresh", h.auth.Refresh)
	auth.POST("/forgot-password", h.auth.ForgotPassword)
	auth.POST("/reset-password", h.auth.ResetPassword)

	// Download links are self-authorizing via the signed token. The optional
	// JWT attributes the download when the caller is logged in.
	api.GET("/exports/:token",
		middleware.OptionalJWT(authSvc),
		middleware.Audit(auditSvc, models.AuditActionExport, "export", "token"),
		h.audit.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	protected.POST("/auth/logout", h.auth.Logout)
	protected.POST("/auth/change-password", h.auth.ChangePassword)
	protected.GET("/auth/me", h.auth.Me)

	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	officers := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleOfficer)

	users := protected.Group("/users")
	users.GET("", admins, h.users.List)
	users.GET("/:id", middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), "SELF"), h.users.Get)
	users.POST("", admins, h.users.Create)
	users.PUT("/:id", admins, h.users.Update)
	users.DELETE("/:id", middleware.RequireRoles(models.RoleSuperAdmin), h.users.Delete)

	admissions := protected.Group("/admissions")
	admissions.POST("", officers, h.admissions.Create)
	admissions.GET("", h.admissions.List)
	admissions.GET("/:id", h.admissions.Get)
	admissions.GET("/:id/approvals", h.admissions.Approvals)
	admissions.GET("/:id/audit", admins, h.audit.FileTrail)
	admissions.PUT("/:id", officers, h.admissions.Update)
	admissions.POST("/:id/submit", officers, h.admissions.Submit)
	admissions.POST("/:id/cancel", admins, h.admissions.Cancel)
	admissions.GET("/:id/revalidate", officers, h.admissions.Revalidate)
	admissions.POST("/export", admins, h.audit.ExportAdmissions)

	ministry := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleMinistry)
	admissions.POST("/:id/ministry/approve", ministry, h.admissions.MinistryApprove)
	admissions.POST("/:id/ministry/reject", ministry, h.admissions.MinistryReject)
	admissions.POST("/:id/health/dispatch", officers, h.admissions.DispatchToHealth)

	examiners := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleHealthExaminer)
	admissions.POST("/:id/health/approve", examiners, h.admissions.HealthApprove)
	admissions.POST("/:id/health/reject", examiners, h.admissions.HealthReject)

	coordinators := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleCoordinator)
	admissions.POST("/:id/coordinator/approve", coordinators, h.admissions.CoordinatorApprove)
	admissions.POST("/:id/coordinator/reject", coordinators, h.admissions.CoordinatorReject)
	admissions.POST("/:id/coordinator/conditional", coordinators, h.admissions.CoordinatorConditional)
	admissions.POST("/:id/coordinator/reenter", coordinators, h.admissions.ReenterCoordinatorReview)

	managers := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleManager)
	admissions.POST("/:id/manager/escalate", coordinators, h.admissions.EscalateToManager)
	admissions.POST("/:id/manager/approve", managers, h.admissions.ManagerApprove)
	admissions.POST("/:id/manager/reject", managers, h.admissions.ManagerReject)
	admissions.POST("/:id/complete", managers, h.admissions.Complete)

	admissions.POST("/:id/health-checks", examiners, h.health.Create)
	admissions.GET("/:id/health-checks", h.health.ListByFile)
	admissions.POST("/:id/conditions", coordinators, h.conditions.Create)
	admissions.GET("/:id/conditions", h.conditions.ListByFile)
	admissions.GET("/:id/conditions/summary", h.conditions.Summary)

	healthChecks := protected.Group("/health-checks")
	healthChecks.GET("/:id", h.health.Get)
	healthChecks.PUT("/:id", examiners, h.health.Update)
	healthChecks.POST("/:id/submit", examiners, h.health.Submit)
	healthChecks.POST("/:id/approve", examiners, h.health.Approve)
	healthChecks.POST("/:id/reject", examiners, h.health.Reject)
	healthChecks.POST("/:id/reset", examiners, h.health.Reset)

	conditions := protected.Group("/conditions")
	conditions.POST("/:id/complete", coordinators, h.conditions.Complete)
	conditions.POST("/:id/reject", coordinators, h.conditions.Reject)
	conditions.POST("/:id/reset", coordinators, h.conditions.Reset)

	workflows := protected.Group("/workflows", admins)
	workflows.POST("", h.workflows.Create)
	workflows.GET("", h.workflows.List)
	workflows.PUT("/:id/active", h.workflows.SetActive)
	workflows.POST("/:id/rules", h.workflows.AddRule)
	workflows.GET("/:id/rules", h.workflows.ListRules)
	workflows.POST("/execute", h.workflows.Execute)
	workflows.POST("/timeouts/process", h.workflows.ProcessTimeouts)

	rules := protected.Group("/rules", admins)
	rules.PUT("/:id/active", h.workflows.SetRuleActive)
	rules.DELETE("/:id", h.workflows.DeleteRule)

	notifications := protected.Group("/notifications", admins)
	notifications.GET("", h.notifications.List)
	notifications.GET("/summary", h.notifications.Summary)
	notifications.POST("/sweep", h.notifications.Sweep)
	notifications.POST("/:id/retry", h.notifications.Retry)
	notifications.POST("/:id/reset", h.notifications.Reset)
	notifications.DELETE("/:id", h.notifications.Cancel)

	audit := protected.Group("/audit", admins)
	audit.GET("", h.audit.Query)
	audit.GET("/trail/:model/:id", h.audit.Trail)
	audit.GET("/users/:id", h.audit.UserActivity)
	audit.GET("/security", h.audit.SecurityViolations)
	audit.GET("/report", h.audit.Report)
	audit.POST("/export", h.audit.Export)

	protected.GET("/dashboard", h.dashboard.Overview)
	protected.DELETE("/dashboard/cache", admins, h.dashboard.Invalidate)
	protected.GET("/metrics/snapshot", admins, h.metrics.Snapshot)

	return r
}
