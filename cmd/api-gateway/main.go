package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campuseval/teval-api/api/swagger"
	"github.com/campuseval/teval-api/db"
	"github.com/campuseval/teval-api/internal/handler"
	"github.com/campuseval/teval-api/internal/middleware"
	"github.com/campuseval/teval-api/internal/models"
	"github.com/campuseval/teval-api/internal/repository"
	"github.com/campuseval/teval-api/internal/service"
	"github.com/campuseval/teval-api/pkg/cache"
	"github.com/campuseval/teval-api/pkg/config"
	"github.com/campuseval/teval-api/pkg/database"
	"github.com/campuseval/teval-api/pkg/logger"
	corsmiddleware "github.com/campuseval/teval-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campuseval/teval-api/pkg/middleware/requestid"
	"github.com/campuseval/teval-api/pkg/migrate"
)

// @title Teacher Evaluation API
// @version 1.0.0
// @description Student-driven teacher evaluation service
// @BasePath /api/v1
// @schemes http

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

	sqlDB, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer sqlDB.Close()

	runner, err := migrate.New(sqlDB, db.Migrations, "migrations")
	if err != nil {
		logr.Sugar().Fatalw("migration setup failed", "error", err)
	}
	if err := runner.Up(context.Background()); err != nil {
		logr.Sugar().Fatalw("migrations failed", "error", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// CSRF verification depends on Redis; report caching degrades
		// gracefully but login would be broken without it.
		logr.Sugar().Fatalw("redis connection failed", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	// Repositories.
	studentRepo := repository.NewStudentRepository(sqlDB)
	teacherRepo := repository.NewTeacherRepository(sqlDB)
	subjectRepo := repository.NewSubjectRepository(sqlDB)
	teacherSubjectRepo := repository.NewTeacherSubjectRepository(sqlDB)
	courseRepo := repository.NewCourseRepository(sqlDB)
	questionRepo := repository.NewQuestionRepository(sqlDB)
	evaluationRepo := repository.NewEvaluationRepository(sqlDB)
	periodRepo := repository.NewPeriodRepository(sqlDB)
	auditRepo := repository.NewAuditRepository(sqlDB)
	adminRepo := repository.NewAdminRepository(sqlDB)
	resetRepo := repository.NewPasswordResetRepository(sqlDB)
	reportRepo := repository.NewReportRepository(sqlDB)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	auditSvc := service.NewAuditService(auditRepo, logr)
	authSvc := service.NewAuthService(
		studentRepo,
		adminRepo,
		resetRepo,
		cacheRepo,
		nil,
		auditSvc,
		validate,
		logr,
		service.AuthConfig{
			AccessTokenSecret:  cfg.JWT.Secret,
			AccessTokenExpiry:  cfg.JWT.Expiration,
			RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
			Issuer:             "teval-api",
			CSRFTokenTTL:       cfg.Evaluation.CSRFTokenTTL,
			ResetTokenTTL:      cfg.Reset.TokenTTL,
		},
	)
	eligibilitySvc := service.NewEligibilityService(teacherSubjectRepo, logr)
	reportSvc := service.NewReportService(reportRepo, teacherRepo, cacheRepo, metricsSvc, cfg.Reports.CacheTTL, logr)
	evaluationSvc := service.NewEvaluationService(service.EvaluationServiceDeps{
		Students:    studentRepo,
		Teachers:    teacherRepo,
		Evaluations: evaluationRepo,
		Questions:   questionRepo,
		Eligibility: eligibilitySvc,
		Dashboard:   teacherSubjectRepo,
		CSRF:        authSvc,
		Periods:     periodRepo,
		Audit:       auditSvc,
		Reports:     reportSvc,
		Metrics:     metricsSvc,
		PeriodGate:  cfg.Evaluation.PeriodGate,
		Logger:      logr,
	})
	studentSvc := service.NewStudentService(studentRepo, auditSvc, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, teacherSubjectRepo, auditSvc, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, auditSvc, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, auditSvc, validate, logr)
	questionSvc := service.NewQuestionService(questionRepo, auditSvc, validate, logr)
	periodSvc := service.NewPeriodService(periodRepo, auditSvc, validate, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	evaluationHandler := handler.NewEvaluationHandler(evaluationSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	questionHandler := handler.NewQuestionHandler(questionSvc)
	periodHandler := handler.NewPeriodHandler(periodSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public routes.
	api.POST("/auth/student/register", studentHandler.Register)
	api.POST("/auth/student/login", authHandler.StudentLogin)
	api.POST("/auth/admin/login", authHandler.AdminLogin)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.POST("/auth/forgot-password", authHandler.ForgotPassword)
	api.POST("/auth/reset-password", authHandler.ResetPassword)
	api.GET("/courses", courseHandler.List)
	api.GET("/periods/active", periodHandler.Active)

	// Any authenticated user.
	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)
	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)

	// Student routes. Submission verifies its CSRF token inside the
	// workflow so the rejection can be audited and counted.
	student := api.Group("/student")
	student.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleStudent))
	student.GET("/dashboard", evaluationHandler.Dashboard)
	student.GET("/evaluations/:id/form", evaluationHandler.Form)
	student.POST("/evaluations", evaluationHandler.Submit)

	// Admin routes, all behind the double-submit CSRF check.
	admin := api.Group("/admin")
	admin.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), middleware.CSRF(authSvc))
	admin.GET("/teachers", teacherHandler.List)
	admin.POST("/teachers", teacherHandler.Create)
	admin.GET("/teachers/:id", teacherHandler.Get)
	admin.PUT("/teachers/:id", teacherHandler.Update)
	admin.DELETE("/teachers/:id", teacherHandler.Delete)
	admin.PUT("/teachers/:id/subjects", teacherHandler.AssignSubjects)
	admin.GET("/teachers/:id/evaluations", evaluationHandler.ListByTeacher)

	admin.GET("/subjects", subjectHandler.List)
	admin.POST("/subjects", subjectHandler.Create)
	admin.GET("/subjects/:id", subjectHandler.Get)
	admin.PUT("/subjects/:id", subjectHandler.Update)
	admin.DELETE("/subjects/:id", subjectHandler.Delete)

	admin.POST("/courses", courseHandler.Create)
	admin.PUT("/courses/:id", courseHandler.Update)
	admin.DELETE("/courses/:id", courseHandler.Delete)

	admin.GET("/questions", questionHandler.List)
	admin.POST("/questions", questionHandler.Create)
	admin.PUT("/questions/:id", questionHandler.Update)
	admin.DELETE("/questions/:id", questionHandler.Delete)

	admin.GET("/students", studentHandler.List)
	admin.GET("/students/:id", studentHandler.Get)
	admin.PUT("/students/:id", studentHandler.Update)
	admin.DELETE("/students/:id", studentHandler.Delete)
	admin.GET("/students/:id/evaluations", evaluationHandler.ListByStudent)

	admin.GET("/periods", periodHandler.List)
	admin.POST("/periods", periodHandler.Create)
	admin.POST("/periods/:id/close", periodHandler.Close)

	admin.GET("/evaluations/:id", evaluationHandler.Detail)
	admin.DELETE("/evaluations/:id", evaluationHandler.Delete)

	admin.GET("/reports/teachers/:id", reportHandler.TeacherReport)
	admin.GET("/reports/teachers/:id/export", reportHandler.Export)
	admin.GET("/reports/monitor", reportHandler.Monitor)

	admin.GET("/audit-logs", auditHandler.List)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
