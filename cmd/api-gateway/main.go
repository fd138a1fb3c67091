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
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/content-approval-api/api/swagger"
	"github.com/noah-isme/content-approval-api/internal/handler"
	"github.com/noah-isme/content-approval-api/internal/middleware"
	"github.com/noah-isme/content-approval-api/internal/repository"
	"github.com/noah-isme/content-approval-api/internal/service"
	"github.com/noah-isme/content-approval-api/pkg/adminapi"
	"github.com/noah-isme/content-approval-api/pkg/cache"
	"github.com/noah-isme/content-approval-api/pkg/config"
	"github.com/noah-isme/content-approval-api/pkg/database"
	"github.com/noah-isme/content-approval-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/content-approval-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/content-approval-api/pkg/middleware/requestid"
)

// @title Content Publish Approval API
// @version 1.0.0
// @description Request, approve, reject and bulk publish content through an approval workflow.
// @BasePath /
// @schemes http https

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := service.NewMetricsService()
	admin := adminapi.New(cfg.AdminAPI, adminapi.WithObserver(metrics), adminapi.WithLogger(logr))

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("redis unavailable", zap.Error(err))
	}
	cacheRepo := repository.NewCacheRepository(redisClient, "publish-approval", logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Rules.CacheTTL, logr, redisClient != nil)

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("postgres unavailable", zap.Error(err))
	}
	if db != nil {
		defer db.Close() //nolint:errcheck
		if err := database.EnsureSchema(ctx, db); err != nil {
			logr.Fatal("failed to prepare decision log schema", zap.Error(err))
		}
	}

	validate := validator.New()
	sheets := repository.NewSheetRepository(admin, cfg.Sheet, logr)
	rules := repository.NewRuleConfigRepository(admin, cfg.Rules)
	approvers := service.NewApproverService(rules, cacheSvc, cfg.Rules.CacheTTL, logr)
	identity := service.NewIdentityService(cfg.Identity, cacheSvc, metrics, logr)

	notifications := service.NewNotificationService(service.NewNotifier(cfg.Notifier, metrics, logr), metrics, logr)
	retryQueue := notifications.NewRetryQueue(cfg.Notifier)
	retryQueue.Start(ctx)
	defer retryQueue.Stop()

	opts := []service.WorkflowOption{
		service.WithInFlightGuard(service.NewInFlightGuard()),
		service.WithMetrics(metrics),
	}
	if db != nil {
		opts = append(opts, service.WithDecisionStore(repository.NewDecisionRepository(db)))
	}
	requests := service.NewPublishRequestService(sheets, approvers, admin, notifications, validate, logr, opts...)
	bulk := service.NewBulkPublishService(sheets, approvers, admin, notifications, cfg.Bulk, validate, logr, opts...)
	exports := service.NewExportService(sheets, cfg.Export.Title, validate, logr, nil, nil)

	requestHandler := handler.NewPublishRequestHandler(requests, bulk, exports)
	metricsHandler := handler.NewMetricsHandler(metrics, readinessChecks(cacheRepo, redisClient != nil, db))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	repoRoutes := r.Group(cfg.APIPrefix + "/orgs/:org/repos/:repo")
	handler.RegisterRepoRoutes(repoRoutes, requestHandler, middleware.OptionalIdentity(identity), middleware.RequireIdentity(identity))

	// bulk approve may wait for the job, so the write timeout covers the poll ceiling
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Bulk.MaxWait + cfg.AdminAPI.Timeout + 15*time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func readinessChecks(cacheRepo *repository.CacheRepository, cacheEnabled bool, db *sqlx.DB) map[string]handler.ReadinessCheck {
	checks := make(map[string]handler.ReadinessCheck)
	if cacheEnabled {
		checks["redis"] = cacheRepo.Ping
	}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	return checks
}
