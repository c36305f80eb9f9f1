package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/retailstock/internal/shared"
)

func validateAppend(in AppendInput) error {
	if in.StoreID <= 0 {
		return shared.Invalid("store_id", "store required")
	}
	if in.ProductID <= 0 {
		return shared.Invalid("product_id", "product required")
	}
	if !in.Type.Valid() {
		return shared.Invalid("type", fmt.Sprintf("unknown movement type %q", in.Type))
	}
	if in.QuantityChange == 0 {
		return shared.Invalid("quantity_change", "must be non zero")
	}
	if in.UnitCost.Valid && in.UnitCost.Decimal.IsNegative() {
		return shared.Invalid("unit_cost", "must be >= 0")
	}
	return in.Origin.Validate()
}

// AppendTx locks the record of the key, appends one movement chained to the
// ledger head and moves the record quantity to quantity_after. Credits against
// a key without a record create it at zero first.
func (s *Service) AppendTx(ctx context.Context, tx TxRepository, in AppendInput) (Movement, error) {
	if err := validateAppend(in); err != nil {
		s.rejected("validation")
		return Movement{}, err
	}
	now := s.now()
	rec, err := tx.LockRecord(ctx, in.StoreID, in.ProductID)
	if err != nil && !shared.IsNotFound(err) {
		return Movement{}, err
	}
	if shared.IsNotFound(err) {
		product, perr := tx.GetProduct(ctx, in.ProductID)
		if perr != nil {
			return Movement{}, perr
		}
		if in.QuantityChange < 0 {
			s.rejected("negative_stock")
			return Movement{}, &shared.StockError{
				Kind:      shared.ErrNegativeStock,
				StoreID:   in.StoreID,
				ProductID: in.ProductID,
				Product:   product.Name,
				Available: 0,
				Requested: -in.QuantityChange,
			}
		}
		if _, serr := tx.GetStore(ctx, in.StoreID); serr != nil {
			return Movement{}, serr
		}
		rec = Record{
			StoreID:      in.StoreID,
			ProductID:    in.ProductID,
			MinimumStock: product.MinimumStock,
			UpdatedAt:    now,
		}
		if err := tx.InsertRecord(ctx, rec); err != nil {
			return Movement{}, err
		}
	}

	head, ok, err := tx.LatestMovement(ctx, in.StoreID, in.ProductID)
	if err != nil {
		return Movement{}, err
	}
	var expected int64
	if ok {
		expected = head.QuantityAfter
	}
	if rec.Quantity != expected {
		s.rejected("ledger_divergence")
		return Movement{}, &shared.PersistenceError{
			Op:  "append movement",
			Err: fmt.Errorf("record %d/%d holds %d but ledger head is %d", in.StoreID, in.ProductID, rec.Quantity, expected),
		}
	}

	after := rec.Quantity + in.QuantityChange
	if after < 0 {
		s.rejected("negative_stock")
		name := ""
		if p, err := tx.GetProduct(ctx, in.ProductID); err == nil {
			name = p.Name
		}
		return Movement{}, &shared.StockError{
			Kind:      shared.ErrNegativeStock,
			StoreID:   in.StoreID,
			ProductID: in.ProductID,
			Product:   name,
			Available: rec.Quantity,
			Requested: -in.QuantityChange,
		}
	}

	movementDate := in.MovementDate
	if movementDate.IsZero() {
		movementDate = now
	}
	movement, err := tx.InsertMovement(ctx, Movement{
		StoreID:        in.StoreID,
		ProductID:      in.ProductID,
		ActorID:        in.ActorID,
		Type:           in.Type,
		QuantityBefore: rec.Quantity,
		QuantityChange: in.QuantityChange,
		QuantityAfter:  after,
		UnitCost:       in.UnitCost,
		Origin:         in.Origin,
		MovementDate:   movementDate,
		Notes:          in.Notes,
	})
	if err != nil {
		return Movement{}, err
	}
	rec.Quantity = after
	rec.UpdatedAt = now
	if err := tx.UpdateRecord(ctx, rec); err != nil {
		return Movement{}, err
	}
	if s.metrics != nil {
		s.metrics.MovementRecorded(in.Type)
	}
	return movement, nil
}

// VerifyChain replays the ledger of a key and reports the first broken link.
func (s *Service) VerifyChain(ctx context.Context, storeID, productID int64) (ChainReport, error) {
	if storeID <= 0 || productID <= 0 {
		return ChainReport{}, shared.Invalid("store_id", "store and product required")
	}
	report := ChainReport{StoreID: storeID, ProductID: productID, Consistent: true}
	view, err := s.repo.GetRecord(ctx, storeID, productID)
	if err != nil && !shared.IsNotFound(err) {
		return ChainReport{}, err
	}
	report.RecordQuantity = view.Quantity
	movements, err := s.repo.ListLedger(ctx, storeID, productID)
	if err != nil {
		return ChainReport{}, err
	}
	report.Movements = len(movements)
	var running int64
	for _, m := range movements {
		switch {
		case m.QuantityBefore != running:
			report.Consistent = false
			report.BrokenAt = m.ID
			report.Problem = fmt.Sprintf("quantity_before %d does not follow previous quantity_after %d", m.QuantityBefore, running)
		case m.QuantityBefore+m.QuantityChange != m.QuantityAfter:
			report.Consistent = false
			report.BrokenAt = m.ID
			report.Problem = fmt.Sprintf("%d %+d does not equal quantity_after %d", m.QuantityBefore, m.QuantityChange, m.QuantityAfter)
		case m.QuantityAfter < 0:
			report.Consistent = false
			report.BrokenAt = m.ID
			report.Problem = "negative quantity_after"
		}
		if !report.Consistent {
			break
		}
		running = m.QuantityAfter
	}
	report.LedgerQuantity = running
	if report.Consistent && running != report.RecordQuantity {
		report.Consistent = false
		report.Problem = fmt.Sprintf("record quantity %d differs from ledger %d", report.RecordQuantity, running)
	}
	if !report.Consistent {
		s.logger.Warn("ledger chain broken",
			slog.Int64("store_id", storeID),
			slog.Int64("product_id", productID),
			slog.String("problem", report.Problem))
	}
	return report, nil
}
