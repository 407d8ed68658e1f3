package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/reelhouse/reelhouse/internal/app"
	"github.com/reelhouse/reelhouse/internal/breakdown"
	"github.com/reelhouse/reelhouse/internal/observability"
	"github.com/reelhouse/reelhouse/internal/payments"
	"github.com/reelhouse/reelhouse/internal/platform/cache"
	"github.com/reelhouse/reelhouse/internal/platform/db"
	"github.com/reelhouse/reelhouse/internal/projects"
	"github.com/reelhouse/reelhouse/internal/rbac"
	"github.com/reelhouse/reelhouse/internal/reports"
	"github.com/reelhouse/reelhouse/internal/shared"
	"github.com/reelhouse/reelhouse/internal/submissions"
	"github.com/reelhouse/reelhouse/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, rollup caching disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	var emitter shared.EventEmitter = shared.NopEmitter{}
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, logger)
	if err != nil {
		logger.Warn("job client unavailable, events disabled", slog.Any("error", err))
	} else {
		emitter = jobClient
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	rbacMiddleware := rbac.Middleware{Logger: logger}

	reportsRepo := reports.NewRepository(pool)
	reportsCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	if err := reportsCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("rollup invalidation listener", slog.Any("error", err))
	}
	reportsService := reports.NewService(reportsRepo, reportsCache)

	projectsRepo := projects.NewRepository(pool)
	breakdownRepo := breakdown.NewRepository(pool)
	breakdownService := breakdown.NewService(breakdownRepo, projectsRepo, auditLogger, logger)

	paymentsRepo := payments.NewRepository(pool)
	paymentsService := payments.NewService(paymentsRepo, auditLogger, emitter, reportsCache, logger)
	paymentsService.WithProjectGate(projectsRepo)

	projectsService := projects.NewService(projectsRepo, breakdownService, paymentsService, auditLogger, emitter, logger)

	submissionsRepo := submissions.NewRepository(pool)
	breakdownService.WithReviewSink(submissionsRepo)
	projectsService.WithLateness(submissionsRepo)
	submissionsService := submissions.NewService(submissionsRepo, breakdownService, paymentsService, auditLogger, emitter, logger)

	var inspector *asynq.Inspector
	if redisClient != nil {
		inspector = asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ProjectsHandler:    projects.NewHandler(logger, projectsService, rbacMiddleware),
		BreakdownHandler:   breakdown.NewHandler(logger, breakdownService, rbacMiddleware),
		SubmissionsHandler: submissions.NewHandler(logger, submissionsService, rbacMiddleware),
		PaymentsHandler:    payments.NewHandler(logger, paymentsService, rbacMiddleware, metrics),
		ReportsHandler:     reports.NewHandler(logger, reportsService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
}
