package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/retailstock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/retailstock/internal/jobs"
)

// AlertSource produces the low-stock feed.
type AlertSource interface {
	LowStockAlerts(ctx context.Context, filter inventory.AlertFilter) ([]inventory.Alert, error)
}

// AlertSink receives each scan's alerts, typically the Prometheus gauges.
// storeID is the scanned store, or 0 when the scan covered all stores.
type AlertSink interface {
	SetLowStock(storeID int64, alerts []inventory.Alert)
}

// LowStockScanJob refreshes low-stock gauges and logs critical shortages.
type LowStockScanJob struct {
	Source  AlertSource
	Sink    AlertSink
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the scan handler. sink may be nil.
func NewLowStockScanJob(source AlertSource, sink AlertSink, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Source: source, Sink: sink, Logger: logger, Metrics: metrics}
}

// Handle executes one scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskLowStockScan)
	alerts, err := j.Scan(ctx, payload)
	j.Metrics.AddProcessed(TaskLowStockScan, len(alerts))
	return tracker.End(err)
}

// Scan reads the alert feed once and publishes it.
func (j *LowStockScanJob) Scan(ctx context.Context, payload LowStockScanPayload) ([]inventory.Alert, error) {
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	alerts, err := j.Source.LowStockAlerts(ctx, inventory.AlertFilter{
		StoreID:            payload.StoreID,
		IncludeApproaching: payload.IncludeApproaching,
	})
	if err != nil {
		logger.Error("low stock scan failed", slog.Any("error", err))
		return nil, err
	}
	if j.Sink != nil {
		j.Sink.SetLowStock(payload.StoreID, alerts)
	}
	critical := 0
	for _, a := range alerts {
		if a.Level != inventory.AlertCritical {
			continue
		}
		critical++
		logger.Warn("product out of stock",
			slog.Int64("store_id", a.StoreID),
			slog.Int64("product_id", a.ProductID),
			slog.String("sku", a.SKU),
			slog.Int64("minimum_stock", a.MinimumStock),
		)
	}
	logger.Info("low stock scan finished", slog.Int("alerts", len(alerts)), slog.Int("critical", critical))
	return alerts, nil
}
