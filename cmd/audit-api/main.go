package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/openlms/enrol-audit-api/api/swagger"
	"github.com/openlms/enrol-audit-api/internal/handler"
	"github.com/openlms/enrol-audit-api/internal/middleware"
	"github.com/openlms/enrol-audit-api/internal/models"
	"github.com/openlms/enrol-audit-api/internal/repository"
	"github.com/openlms/enrol-audit-api/internal/service"
	"github.com/openlms/enrol-audit-api/pkg/cache"
	"github.com/openlms/enrol-audit-api/pkg/config"
	"github.com/openlms/enrol-audit-api/pkg/database"
	"github.com/openlms/enrol-audit-api/pkg/jobs"
	"github.com/openlms/enrol-audit-api/pkg/logger"
	corsmiddleware "github.com/openlms/enrol-audit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/openlms/enrol-audit-api/pkg/middleware/requestid"
	"github.com/openlms/enrol-audit-api/pkg/storage"
)

// @title Enrolment Audit API
// @version 1.0.0
// @description Audit trail for course enrolment changes
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	auditRepo := repository.NewAuditRepository(db)
	enrolmentRepo := repository.NewEnrolmentRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	metrics := service.NewMetricsService()

	var cacheRepo *repository.CacheRepository
	if cfg.Audit.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, report cache disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	recorder := service.NewRecorderService(auditRepo, metrics, nil, logr)
	reconciler := service.NewReconcilerService(auditRepo, enrolmentRepo, activityRepo, metrics, logr)
	reports := service.NewReportService(auditRepo, cacheRepo, metrics, cfg.Audit.ReportCacheTTL, cacheRepo != nil, logr)
	erasure := service.NewErasureService(auditRepo, reports, nil, logr)
	tokens := service.NewTokenService(cfg.JWT.Secret)

	// The bootstrap runs before the server accepts traffic so live recorder
	// writes never race the reconciler's emptiness guard.
	if written, err := reconciler.Run(ctx, cfg.Audit.BootstrapMode); err != nil {
		logr.Sugar().Fatalw("audit bootstrap failed", "mode", cfg.Audit.BootstrapMode, "error", err)
	} else if written > 0 {
		logr.Sugar().Infow("audit bootstrap finished", "mode", cfg.Audit.BootstrapMode, "rows", written)
	}

	var exportsSvc *service.ExportJobService
	if cfg.Exports.Enabled {
		files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportRepo := repository.NewExportRepository(db)
		exportsSvc = service.NewExportJobService(
			exportRepo, auditRepo, service.NewExportService(), files, signer, metrics,
			cfg.APIPrefix+"/export",
			jobs.QueueConfig{
				Workers:    cfg.Exports.WorkerConcurrency,
				MaxRetries: cfg.Exports.WorkerRetries,
				Logger:     logr,
			},
			logr,
		)
		exportsSvc.Start(ctx)
		defer exportsSvc.Stop()
		if err := exportsSvc.Recover(ctx); err != nil {
			logr.Sugar().Warnw("failed to recover queued exports", "error", err)
		}
		exportsSvc.StartCleanupLoop(ctx, cfg.Exports.CleanupInterval, cfg.Exports.SignedURLTTL)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	eventHandler := handler.NewEventHandler(recorder)
	api.POST("/enrolment-events",
		middleware.JWT(tokens),
		middleware.RequireRoles(models.RoleService, models.RoleAdmin),
		eventHandler.Ingest)

	reportHandler := handler.NewReportHandler(reports)
	api.GET("/audit-records",
		middleware.JWT(tokens),
		middleware.RequireRoles(models.RoleAdmin),
		reportHandler.List)

	erasureHandler := handler.NewErasureHandler(erasure)
	api.DELETE("/privacy/courses/:courseId",
		middleware.JWT(tokens),
		middleware.RequireRoles(models.RoleAdmin, models.RoleService),
		erasureHandler.EraseCourse)
	api.POST("/privacy/courses/:courseId/erasures",
		middleware.JWT(tokens),
		middleware.RequireRoles(models.RoleAdmin, models.RoleService),
		erasureHandler.EraseCourseUsers)

	if exportsSvc != nil {
		exportHandler := handler.NewExportHandler(exportsSvc)
		api.POST("/audit-records/exports",
			middleware.JWT(tokens),
			middleware.RequireRoles(models.RoleAdmin),
			exportHandler.Create)
		api.GET("/audit-records/exports/:id",
			middleware.JWT(tokens),
			middleware.RequireRoles(models.RoleAdmin),
			exportHandler.Status)
		// the signed token is the authorisation here
		api.GET("/export/:token", exportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down", zap.String("reason", "signal"))
	if err := server.Shutdown(context.Background()); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
