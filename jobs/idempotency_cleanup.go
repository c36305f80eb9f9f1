package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/retailstock/internal/jobs"
)

// DefaultKeyRetention is used when a cleanup task carries no retention.
const DefaultKeyRetention = 7 * 24 * time.Hour

// KeyCleaner purges old idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob removes processed request keys past retention.
type IdempotencyCleanupJob struct {
	Store   KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(store KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload CleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = DefaultKeyRetention
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	removed, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		return tracker.End(err)
	}
	j.Metrics.AddProcessed(TaskIdempotencyCleanup, int(removed))
	if j.Logger != nil {
		j.Logger.Info("idempotency keys purged", slog.Int64("removed", removed), slog.Duration("retention", retention))
	}
	return tracker.End(nil)
}
