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

	"github.com/odyssey-erp/retailstock/internal/app"
	"github.com/odyssey-erp/retailstock/internal/observability"
	"github.com/odyssey-erp/retailstock/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if cfg.RedisAddr == "" {
		logger.Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}
	if cfg.UsesMemoryStore() {
		logger.Warn("worker running against the in-memory store, results are not shared with the API")
	}

	metrics := observability.NewMetrics()
	container, err := app.Build(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	defer container.Close()

	revaluation := jobs.NewRevaluationJob(container.Inventory, logger, metrics.Jobs())
	scan := jobs.NewLowStockScanJob(container.Inventory, metrics, logger, metrics.Jobs())
	cleanup := jobs.NewIdempotencyCleanupJob(container.Keys, logger, metrics.Jobs())

	revaluationTask, err := jobs.NewRevaluationTask(jobs.RevaluationPayload{})
	if err != nil {
		logger.Error("build revaluation task", slog.Any("error", err))
		os.Exit(1)
	}
	scanTask, err := jobs.NewLowStockScanTask(jobs.LowStockScanPayload{IncludeApproaching: true})
	if err != nil {
		logger.Error("build low stock scan task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockRevaluation, Handler: revaluation.Handle},
			{Type: jobs.TaskLowStockScan, Handler: scan.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanup.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RevaluationCron, Task: revaluationTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.AlertScanCron, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: cfg.IdempotencyCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
