package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fiocam/panel/internal/app"
	jobmetrics "github.com/fiocam/panel/internal/jobs"
	"github.com/fiocam/panel/internal/locations"
	"github.com/fiocam/panel/internal/platform/db"
	"github.com/fiocam/panel/jobs"
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

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(nil)
	locationsRepo := locations.NewRepository(pool)
	simulator := locations.NewSimulator(locationsRepo, cfg.TrackingSteps, cfg.TrackingInterval, logger)
	trackingJob := jobs.NewTrackingSimulateJob(simulator, logger, metrics)
	pruneJob := jobs.NewTrackingPruneJob(locations.NewService(locationsRepo), logger, metrics)

	pruneTask, err := jobs.NewTrackingPruneTask(jobs.TrackingPrunePayload{RetentionHours: int(cfg.TrackingRetention / time.Hour)})
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Location:  cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTrackingSimulate, Handler: trackingJob.Handle},
			{Type: jobs.TaskTrackingPrune, Handler: pruneJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.TrackingPruneCron, Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
