package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retailstock/internal/shared"
)

// CostPrecision is the number of decimal places kept for unit costs.
const CostPrecision = 4

// CostFallback names the catalog price used when a record carries no cost yet.
type CostFallback string

const (
	// CostFallbackSellingPrice uses the product selling price.
	CostFallbackSellingPrice CostFallback = "selling_price"
	// CostFallbackPurchasePrice uses the product nominal purchase price.
	CostFallbackPurchasePrice CostFallback = "purchase_price"
)

// Valid reports whether c is a known policy.
func (c CostFallback) Valid() bool {
	return c == CostFallbackSellingPrice || c == CostFallbackPurchasePrice
}

// DefaultUnitCost picks the average cost, then the last cost, then the catalog
// price selected by policy. rec may be nil when no record exists.
func DefaultUnitCost(rec *Record, product Product, policy CostFallback) decimal.Decimal {
	if rec != nil {
		if rec.AverageCost.IsPositive() {
			return rec.AverageCost
		}
		if rec.LastCost.IsPositive() {
			return rec.LastCost
		}
	}
	if policy == CostFallbackPurchasePrice {
		return product.PurchasePrice
	}
	return product.SellingPrice
}

// WeightedAverage returns sum(change x unit_cost) / sum(change) over purchase
// credits, rounded to CostPrecision. ok is false when there is nothing to average.
func WeightedAverage(movements []Movement) (avg decimal.Decimal, ok bool) {
	var units int64
	total := decimal.Zero
	for _, m := range movements {
		if m.Type != MovementPurchase || m.QuantityChange <= 0 || !m.UnitCost.Valid {
			continue
		}
		total = total.Add(m.UnitCost.Decimal.Mul(decimal.NewFromInt(m.QuantityChange)))
		units += m.QuantityChange
	}
	if units == 0 {
		return decimal.Zero, false
	}
	return total.Div(decimal.NewFromInt(units)).Round(CostPrecision), true
}

// RecomputeAverageCostTx recomputes the record's average cost from its full
// purchase history, falling back to the product purchase price.
func (s *Service) RecomputeAverageCostTx(ctx context.Context, tx TxRepository, storeID, productID int64) (decimal.Decimal, error) {
	rec, err := tx.LockRecord(ctx, storeID, productID)
	if err != nil {
		return decimal.Zero, err
	}
	movements, err := tx.ListPurchaseMovements(ctx, storeID, productID)
	if err != nil {
		return decimal.Zero, err
	}
	avg, ok := WeightedAverage(movements)
	if !ok {
		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return decimal.Zero, err
		}
		avg = product.PurchasePrice.Round(CostPrecision)
	}
	if avg.Equal(rec.AverageCost) {
		return rec.AverageCost, nil
	}
	rec.AverageCost = avg
	rec.UpdatedAt = s.now()
	if err := tx.UpdateRecord(ctx, rec); err != nil {
		return decimal.Zero, err
	}
	return avg, nil
}

// ReceivePurchaseTx appends a purchase movement, stamps last cost and restock
// date, then recomputes the average cost. Runs inside the caller's transaction.
func (s *Service) ReceivePurchaseTx(ctx context.Context, tx TxRepository, in ReceivePurchaseInput) (Movement, error) {
	if in.Quantity <= 0 {
		return Movement{}, shared.Invalid("quantity", "must be greater than zero")
	}
	if in.UnitCost.IsNegative() {
		return Movement{}, shared.Invalid("unit_cost", "must be >= 0")
	}
	origin := in.Origin
	if origin.Kind == "" {
		origin = ManualOrigin()
	}
	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	movement, err := s.AppendTx(ctx, tx, AppendInput{
		StoreID:        in.StoreID,
		ProductID:      in.ProductID,
		ActorID:        in.ActorID,
		Type:           MovementPurchase,
		QuantityChange: in.Quantity,
		UnitCost:       decimal.NewNullDecimal(in.UnitCost),
		Origin:         origin,
		Notes:          in.Notes,
		MovementDate:   receivedAt,
	})
	if err != nil {
		return Movement{}, err
	}
	rec, err := tx.LockRecord(ctx, in.StoreID, in.ProductID)
	if err != nil {
		return Movement{}, fmt.Errorf("reload record after purchase: %w", err)
	}
	rec.LastCost = in.UnitCost
	rec.LastRestockDate = &receivedAt
	rec.UpdatedAt = s.now()
	if err := tx.UpdateRecord(ctx, rec); err != nil {
		return Movement{}, err
	}
	if _, err := s.RecomputeAverageCostTx(ctx, tx, in.StoreID, in.ProductID); err != nil {
		return Movement{}, err
	}
	return movement, nil
}
