package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fiocam/panel/internal/jobs"
	"github.com/fiocam/panel/internal/locations"
)

// Simulator is the part of locations.Simulator the job drives.
type Simulator interface {
	Run(ctx context.Context) (int, error)
}

// TrackingSimulateJob runs tracking simulations pulled from the queue.
type TrackingSimulateJob struct {
	Simulator Simulator
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewTrackingSimulateJob wires dependencies for the simulation handler.
func NewTrackingSimulateJob(sim Simulator, logger *slog.Logger, metrics *jobmetrics.Metrics) *TrackingSimulateJob {
	return &TrackingSimulateJob{Simulator: sim, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTrackingSimulate tasks.
func (j *TrackingSimulateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Simulator == nil {
		return errors.New("tracking simulate: handler not configured")
	}
	var payload TrackingSimulatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskTrackingSimulate)
	logger := j.logger().With(slog.Time("requested_at", payload.RequestedAt))
	logger.Info("starting tracking simulation")

	written, err := j.Simulator.Run(ctx)
	j.Metrics.AddTrackingPoints(written)
	if errors.Is(err, locations.ErrNoTecnicos) {
		logger.Warn("tracking simulation skipped: no technicians")
		return tracker.End(nil)
	}
	if err != nil {
		logger.Error("tracking simulation", slog.Int("written", written), slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("tracking simulation finished", slog.Int("written", written))
	return tracker.End(nil)
}

func (j *TrackingSimulateJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// Pruner is the part of locations.Service the prune job drives.
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// TrackingPruneJob deletes positions past their retention.
type TrackingPruneJob struct {
	Pruner  Pruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewTrackingPruneJob wires dependencies for the prune handler.
func NewTrackingPruneJob(pruner Pruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *TrackingPruneJob {
	return &TrackingPruneJob{Pruner: pruner, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTrackingPrune tasks.
func (j *TrackingPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pruner == nil {
		return errors.New("tracking prune: handler not configured")
	}
	var payload TrackingPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracker := j.Metrics.Track(TaskTrackingPrune)
	deleted, err := j.Pruner.Prune(ctx, time.Duration(payload.RetentionHours)*time.Hour)
	if err != nil {
		logger.Error("tracking prune", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("tracking prune finished", slog.Int64("deleted", deleted))
	return tracker.End(nil)
}
