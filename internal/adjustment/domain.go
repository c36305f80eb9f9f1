// Package adjustment implements manual stock corrections that post to the ledger once approved.
package adjustment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retailstock/internal/shared"
)

// Type is the direction of an adjustment.
type Type string

const (
	TypeIncrease Type = "increase"
	TypeDecrease Type = "decrease"
)

// Valid reports whether t is known.
func (t Type) Valid() bool {
	return t == TypeIncrease || t == TypeDecrease
}

// Reason classifies why stock is corrected.
type Reason string

const (
	ReasonDamaged   Reason = "damaged"
	ReasonExpired   Reason = "expired"
	ReasonLost      Reason = "lost"
	ReasonFound     Reason = "found"
	ReasonStockTake Reason = "stock_take"
	ReasonOther     Reason = "other"
)

// Valid reports whether r is known.
func (r Reason) Valid() bool {
	switch r {
	case ReasonDamaged, ReasonExpired, ReasonLost, ReasonFound, ReasonStockTake, ReasonOther:
		return true
	}
	return false
}

// Status of an adjustment document.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is known.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusApproved || s == StatusRejected
}

// Adjustment is a stock correction document for one store.
type Adjustment struct {
	ID               int64           `json:"id"`
	Number           string          `json:"adjustment_number"`
	StoreID          int64           `json:"store_id"`
	Type             Type            `json:"type"`
	Reason           Reason          `json:"reason"`
	Status           Status          `json:"status"`
	Notes            string          `json:"notes"`
	TotalValueImpact decimal.Decimal `json:"total_value_impact"`
	CreatedBy        int64           `json:"created_by"`
	ApprovedBy       *int64          `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Items            []Item          `json:"items"`
}

// Item is one corrected product. CurrentQuantity is the snapshot taken when
// the line was last written.
type Item struct {
	ID               int64           `json:"id"`
	AdjustmentID     int64           `json:"adjustment_id"`
	ProductID        int64           `json:"product_id"`
	CurrentQuantity  int64           `json:"current_quantity"`
	AdjustedQuantity int64           `json:"adjusted_quantity"`
	NewQuantity      int64           `json:"new_quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	TotalValueImpact decimal.Decimal `json:"total_value_impact"`
	Notes            string          `json:"notes"`
}

// ItemInput describes one line. Quantity may be submitted unsigned; the
// adjustment type decides the sign.
type ItemInput struct {
	ProductID int64               `json:"product_id" validate:"required,gt=0"`
	Quantity  int64               `json:"quantity" validate:"required"`
	UnitCost  decimal.NullDecimal `json:"unit_cost"`
	Notes     string              `json:"notes" validate:"max=500"`
}

// CreateInput describes a new draft adjustment.
type CreateInput struct {
	StoreID int64       `json:"store_id" validate:"required,gt=0"`
	Type    Type        `json:"type" validate:"required,oneof=increase decrease"`
	Reason  Reason      `json:"reason" validate:"required,oneof=damaged expired lost found stock_take other"`
	Notes   string      `json:"notes" validate:"max=1000"`
	Items   []ItemInput `json:"items" validate:"required,min=1,dive"`
	ActorID int64       `json:"-"`
}

// UpdateInput rewrites a draft adjustment.
type UpdateInput struct {
	ID      int64       `json:"-"`
	Type    Type        `json:"type" validate:"required,oneof=increase decrease"`
	Reason  Reason      `json:"reason" validate:"required,oneof=damaged expired lost found stock_take other"`
	Notes   string      `json:"notes" validate:"max=1000"`
	Items   []ItemInput `json:"items" validate:"required,min=1,dive"`
	ActorID int64       `json:"-"`
}

// ListFilter narrows adjustment listings.
type ListFilter struct {
	StoreID int64
	Status  Status
	Type    Type
	Reason  Reason
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

// SignedQuantity forces the sign of quantity to match t.
func SignedQuantity(t Type, quantity int64) int64 {
	if quantity < 0 {
		quantity = -quantity
	}
	if t == TypeDecrease {
		return -quantity
	}
	return quantity
}

func validateHeader(t Type, reason Reason) error {
	if !t.Valid() {
		return shared.Invalid("type", "must be increase or decrease")
	}
	if !reason.Valid() {
		return shared.Invalid("reason", fmt.Sprintf("unknown reason %q", reason))
	}
	return nil
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return shared.Invalid("items", "at least one item required")
	}
	seen := make(map[int64]struct{}, len(items))
	for i, it := range items {
		field := fmt.Sprintf("items[%d]", i)
		if it.ProductID <= 0 {
			return shared.Invalid(field+".product_id", "product required")
		}
		if it.Quantity == 0 {
			return shared.Invalid(field+".quantity", "must be non zero")
		}
		if it.UnitCost.Valid && it.UnitCost.Decimal.IsNegative() {
			return shared.Invalid(field+".unit_cost", "must be >= 0")
		}
		if _, dup := seen[it.ProductID]; dup {
			return shared.Invalid(field+".product_id", "product listed twice")
		}
		seen[it.ProductID] = struct{}{}
	}
	return nil
}

// ErrAdjustmentNotFound indicates an unknown adjustment.
var ErrAdjustmentNotFound = fmt.Errorf("stock adjustment %w", shared.ErrNotFound)
