package inventory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retailstock/internal/shared"
)

// MetricsPort receives ledger counters.
type MetricsPort interface {
	MovementRecorded(t MovementType)
	MovementRejected(reason string)
}

// Service owns the stock ledger, the inventory records it projects and their costing.
type Service struct {
	repo    RepositoryPort
	audit   shared.AuditRecorder
	metrics MetricsPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service. audit and metrics may be nil.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{repo: repo, audit: audit, metrics: metrics, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// SetClock overrides the clock, used by tests that assert on dates.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Append writes a single movement in its own transaction.
func (s *Service) Append(ctx context.Context, in AppendInput) (Movement, error) {
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = s.AppendTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, shared.NewAuditLog(in.ActorID, "inventory:"+string(in.Type), "stock_movement", movement.ID, map[string]any{
		"store_id":   in.StoreID,
		"product_id": in.ProductID,
		"change":     in.QuantityChange,
		"origin":     in.Origin.String(),
	}))
	return movement, nil
}

// ReceivePurchase posts goods received at cost in its own transaction.
func (s *Service) ReceivePurchase(ctx context.Context, in ReceivePurchaseInput) (Movement, error) {
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movement, err = s.ReceivePurchaseTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, shared.NewAuditLog(in.ActorID, "inventory:receive_purchase", "stock_movement", movement.ID, map[string]any{
		"store_id":   in.StoreID,
		"product_id": in.ProductID,
		"quantity":   in.Quantity,
		"unit_cost":  in.UnitCost.String(),
	}))
	return movement, nil
}

// RecomputeAverageCost recomputes and stores the weighted average cost of a record.
func (s *Service) RecomputeAverageCost(ctx context.Context, storeID, productID int64) (decimal.Decimal, error) {
	var avg decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		avg, err = s.RecomputeAverageCostTx(ctx, tx, storeID, productID)
		return err
	})
	return avg, err
}

// RecordSale deducts stock sold at the point of sale.
func (s *Service) RecordSale(ctx context.Context, in SaleInput) (Movement, error) {
	if in.StoreID <= 0 || in.ProductID <= 0 {
		return Movement{}, shared.Invalid("store_id", "store and product required")
	}
	if in.Quantity <= 0 {
		return Movement{}, shared.Invalid("quantity", "must be greater than zero")
	}
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.EnsureAvailableTx(ctx, tx, in.StoreID, in.ProductID, in.Quantity); err != nil {
			return err
		}
		var err error
		movement, err = s.AppendTx(ctx, tx, AppendInput{
			StoreID:        in.StoreID,
			ProductID:      in.ProductID,
			ActorID:        in.ActorID,
			Type:           MovementSale,
			QuantityChange: -in.Quantity,
			Origin:         SaleOrigin(in.SaleID),
			Notes:          in.Notes,
		})
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, shared.NewAuditLog(in.ActorID, "inventory:sale", "stock_movement", movement.ID, map[string]any{
		"store_id": in.StoreID, "product_id": in.ProductID, "quantity": in.Quantity, "sale_id": in.SaleID,
	}))
	return movement, nil
}

// RecordReturn credits stock returned by a customer.
func (s *Service) RecordReturn(ctx context.Context, in ReturnInput) (Movement, error) {
	if in.StoreID <= 0 || in.ProductID <= 0 {
		return Movement{}, shared.Invalid("store_id", "store and product required")
	}
	if in.Quantity <= 0 {
		return Movement{}, shared.Invalid("quantity", "must be greater than zero")
	}
	movement, err := s.Append(ctx, AppendInput{
		StoreID:        in.StoreID,
		ProductID:      in.ProductID,
		ActorID:        in.ActorID,
		Type:           MovementReturn,
		QuantityChange: in.Quantity,
		UnitCost:       in.UnitCost,
		Origin:         ReturnOrigin(in.ReturnID),
		Notes:          in.Notes,
	})
	return movement, err
}

// EnsureAvailableTx fails with an insufficient stock error when the record holds less than quantity.
// The record stays locked for the rest of the transaction.
func (s *Service) EnsureAvailableTx(ctx context.Context, tx TxRepository, storeID, productID, quantity int64) error {
	var available int64
	rec, err := tx.LockRecord(ctx, storeID, productID)
	switch {
	case err == nil:
		available = rec.Quantity
	case shared.IsNotFound(err):
	default:
		return err
	}
	if available >= quantity {
		return nil
	}
	name := ""
	if p, err := tx.GetProduct(ctx, productID); err == nil {
		name = p.Name
	}
	s.rejected("insufficient_stock")
	return &shared.StockError{
		Kind:      shared.ErrInsufficientStock,
		StoreID:   storeID,
		ProductID: productID,
		Product:   name,
		Available: available,
		Requested: quantity,
	}
}

// UpdateSettings changes thresholds and location of an existing record. Quantity and cost are untouched.
func (s *Service) UpdateSettings(ctx context.Context, in SettingsInput) (RecordView, error) {
	if in.StoreID <= 0 || in.ProductID <= 0 {
		return RecordView{}, shared.Invalid("store_id", "store and product required")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.LockRecord(ctx, in.StoreID, in.ProductID)
		if err != nil {
			return err
		}
		if in.MinimumStock != nil {
			if *in.MinimumStock < 0 {
				return shared.Invalid("minimum_stock", "must not be negative")
			}
			rec.MinimumStock = *in.MinimumStock
		}
		if in.ClearMaximum {
			rec.MaximumStock = nil
		} else if in.MaximumStock != nil {
			maximum := *in.MaximumStock
			rec.MaximumStock = &maximum
		}
		if rec.MaximumStock != nil && *rec.MaximumStock < rec.MinimumStock {
			return shared.Invalid("maximum_stock", "must not be below minimum_stock")
		}
		if in.Location != nil {
			rec.Location = *in.Location
		}
		rec.UpdatedAt = s.now()
		return tx.UpdateRecord(ctx, rec)
	})
	if err != nil {
		return RecordView{}, err
	}
	s.recordAudit(ctx, shared.AuditLog{
		ActorID:  in.ActorID,
		Action:   "inventory:settings",
		Entity:   "inventory_record",
		EntityID: fmt.Sprintf("%d:%d", in.StoreID, in.ProductID),
	})
	return s.repo.GetRecord(ctx, in.StoreID, in.ProductID)
}

// RevalueStore recomputes the average cost of every record, optionally limited to one store.
// Each record is recomputed in its own transaction.
func (s *Service) RevalueStore(ctx context.Context, storeID int64) (int, error) {
	keys, err := s.repo.ListRecordKeys(ctx, storeID)
	if err != nil {
		return 0, err
	}
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := s.RecomputeAverageCost(ctx, key.StoreID, key.ProductID); err != nil {
			return i, fmt.Errorf("revalue %d/%d: %w", key.StoreID, key.ProductID, err)
		}
	}
	return len(keys), nil
}

// ListRecordKeys lists the keys that hold a record, optionally for one store.
func (s *Service) ListRecordKeys(ctx context.Context, storeID int64) ([]RecordKey, error) {
	return s.repo.ListRecordKeys(ctx, storeID)
}

// ListStores returns active stores.
func (s *Service) ListStores(ctx context.Context) ([]Store, error) {
	return s.repo.ListStores(ctx)
}

func (s *Service) recordAudit(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}

func (s *Service) rejected(reason string) {
	if s.metrics != nil {
		s.metrics.MovementRejected(reason)
	}
}
