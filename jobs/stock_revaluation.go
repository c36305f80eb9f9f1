package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/retailstock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/retailstock/internal/jobs"
)

// Revaluer is the slice of the inventory service the revaluation job needs.
type Revaluer interface {
	ListStores(ctx context.Context) ([]inventory.Store, error)
	RevalueStore(ctx context.Context, storeID int64) (int, error)
}

// RevaluationJob recomputes every record's average cost, one goroutine per store.
type RevaluationJob struct {
	Service     Revaluer
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
}

// NewRevaluationJob initialises the revaluation handler.
func NewRevaluationJob(service Revaluer, logger *slog.Logger, metrics *jobmetrics.Metrics) *RevaluationJob {
	return &RevaluationJob{Service: service, Logger: logger, Metrics: metrics, Concurrency: 4}
}

// Handle executes the revaluation.
func (j *RevaluationJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("stock revaluation: handler not configured")
	}
	var payload RevaluationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskStockRevaluation)
	count, err := j.Run(ctx, payload.StoreID)
	j.Metrics.AddProcessed(TaskStockRevaluation, count)
	return tracker.End(err)
}

// Run revalues one store, or every active store when storeID is zero, and
// returns how many records were recomputed.
func (j *RevaluationJob) Run(ctx context.Context, storeID int64) (int, error) {
	start := time.Now()
	logger := j.logger().With(slog.Int64("store_id", storeID))

	storeIDs := []int64{storeID}
	if storeID == 0 {
		stores, err := j.Service.ListStores(ctx)
		if err != nil {
			logger.Error("list stores", slog.Any("error", err))
			return 0, err
		}
		storeIDs = storeIDs[:0]
		for _, s := range stores {
			storeIDs = append(storeIDs, s.ID)
		}
	}

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(j.Concurrency, 1))
	for _, id := range storeIDs {
		g.Go(func() error {
			n, err := j.Service.RevalueStore(gctx, id)
			total.Add(int64(n))
			if err != nil {
				logger.Error("revalue store failed", slog.Int64("store", id), slog.Int("revalued", n), slog.Any("error", err))
			}
			return err
		})
	}
	err := g.Wait()
	logger.Info("stock revaluation finished",
		slog.Int("stores", len(storeIDs)),
		slog.Int64("records", total.Load()),
		slog.Duration("duration", time.Since(start)),
	)
	return int(total.Load()), err
}

func (j *RevaluationJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
