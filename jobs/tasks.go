// Package jobs runs the stock background work on asynq: cost revaluation,
// low-stock scans and idempotency key cleanup.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskStockRevaluation recomputes average costs from purchase history.
	TaskStockRevaluation = "stock:revaluation"
	// TaskLowStockScan refreshes the low-stock gauges and logs new shortages.
	TaskLowStockScan = "stock:low_stock_scan"
	// TaskIdempotencyCleanup purges processed request keys past retention.
	TaskIdempotencyCleanup = "stock:idempotency_cleanup"
)

// RevaluationPayload limits a revaluation run to one store. Zero means every active store.
type RevaluationPayload struct {
	StoreID      int64     `json:"store_id,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// LowStockScanPayload configures a scan.
type LowStockScanPayload struct {
	StoreID            int64 `json:"store_id,omitempty"`
	IncludeApproaching bool  `json:"include_approaching"`
}

// CleanupPayload sets how long processed keys are kept.
type CleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewRevaluationTask constructs an Asynq task for stock revaluation.
func NewRevaluationTask(payload RevaluationPayload) (*asynq.Task, error) {
	return newTask(TaskStockRevaluation, payload)
}

// NewLowStockScanTask constructs a low-stock scan task.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	return newTask(TaskLowStockScan, payload)
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, CleanupPayload{Retention: retention})
}

func newTask(kind string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(kind, body, asynq.Queue(QueueDefault)), nil
}
