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

	_ "github.com/noah-isme/sma-gradebook-api/api/swagger"
	"github.com/noah-isme/sma-gradebook-api/internal/handler"
	"github.com/noah-isme/sma-gradebook-api/internal/middleware"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	"github.com/noah-isme/sma-gradebook-api/internal/store"
	"github.com/noah-isme/sma-gradebook-api/pkg/cache"
	"github.com/noah-isme/sma-gradebook-api/pkg/config"
	"github.com/noah-isme/sma-gradebook-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-gradebook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-gradebook-api/pkg/middleware/requestid"
)

// @title SMA Gradebook API
// @version 0.1.0
// @description Grade computation, course views, student roster import and consolidated reports
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open record store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer st.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	cacheSvc, closeCache := newCacheService(ctx, cfg, metrics, logr)
	defer closeCache()
	validate := validator.New()

	assignments := service.NewAssignmentService(st.Courses, st.GradeLevels, st.Students, cacheSvc, logr)
	settings := service.NewSettingsService(st.Settings, cfg.Academic.DefaultPeriodCount, logr)
	reports := service.NewConsolidatedReportService(st.Reports, validate, metrics, logr)
	gradebook := service.NewGradebookService(assignments, st.Courses, st.Grades, settings, reports, validate, metrics, logr)
	importer := service.NewStudentImportService(st.Students, st.GradeLevels, service.ImportOptions{
		TrailerSentinel:       cfg.Import.TrailerSentinel,
		MaxUnresolvedExamples: cfg.Import.MaxUnresolvedExamples,
	}, metrics, logr)
	importer.OnImported(assignments.InvalidateAll)
	exporter := service.NewStudentExportService(st.Students, st.GradeLevels, nil)
	metricsHandler := handler.NewMetricsHandler(metrics, st)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metrics, "/metrics"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	handler.Handlers{
		Courses:   handler.NewCourseHandler(assignments),
		Gradebook: handler.NewGradebookHandler(gradebook),
		Settings:  handler.NewSettingsHandler(settings),
		Students:  handler.NewStudentHandler(importer, exporter, cfg.Import.MaxFileSizeBytes),
		Reports:   handler.NewConsolidatedReportHandler(reports),
		Metrics:   metricsHandler,
	}.Register(r.Group(cfg.APIPrefix))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("store", st.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

// newCacheService connects Redis when caching is enabled. A Redis outage disables
// the cache instead of failing startup.
func newCacheService(ctx context.Context, cfg *config.Config, metrics *service.MetricsService, logr *zap.Logger) (*service.CacheService, func()) {
	noop := func() {}
	if !cfg.Cache.Enabled {
		return service.NewCacheService(nil, metrics, cfg.Cache.CourseTTL, logr, false), noop
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, course cache disabled", zap.Error(err))
		return service.NewCacheService(nil, metrics, cfg.Cache.CourseTTL, logr, false), noop
	}
	repo := repository.NewCacheRepository(client, "gradebook", logr)
	return service.NewCacheService(repo, metrics, cfg.Cache.CourseTTL, logr, true), func() {
		if err := repo.Close(); err != nil {
			logr.Warn("redis close failed", zap.Error(err))
		}
	}
}
