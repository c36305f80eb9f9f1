// Package transfer moves stock between stores through ship and receive steps.
package transfer

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retailstock/internal/shared"
)

// Status of a transfer document.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is known.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusInTransit, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

var allowedFrom = map[string][]Status{
	"submit":  {StatusDraft},
	"approve": {StatusPending},
	"ship":    {StatusPending},
	"receive": {StatusInTransit},
	"cancel":  {StatusDraft, StatusPending},
}

func checkTransition(status Status, action string) error {
	if slices.Contains(allowedFrom[action], status) {
		return nil
	}
	return &shared.TransitionError{Document: "stock transfer", Action: action, Status: string(status)}
}

// Transfer moves goods from one store to another.
type Transfer struct {
	ID           int64           `json:"id"`
	Number       string          `json:"transfer_number"`
	FromStoreID  int64           `json:"from_store_id"`
	ToStoreID    int64           `json:"to_store_id"`
	Status       Status          `json:"status"`
	TransferDate time.Time       `json:"transfer_date"`
	TotalValue   decimal.Decimal `json:"total_value"`
	Notes        string          `json:"notes"`
	CreatedBy    int64           `json:"created_by"`
	ApprovedBy   *int64          `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time      `json:"approved_at,omitempty"`
	ShippedBy    *int64          `json:"shipped_by,omitempty"`
	ShippedAt    *time.Time      `json:"shipped_at,omitempty"`
	ReceivedBy   *int64          `json:"received_by,omitempty"`
	ReceivedAt   *time.Time      `json:"received_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Items        []Item          `json:"items"`
}

// Item is one transferred product.
type Item struct {
	ID                int64           `json:"id"`
	TransferID        int64           `json:"transfer_id"`
	ProductID         int64           `json:"product_id"`
	QuantityRequested int64           `json:"quantity_requested"`
	QuantityShipped   int64           `json:"quantity_shipped"`
	QuantityReceived  int64           `json:"quantity_received"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	TotalCost         decimal.Decimal `json:"total_cost"`
}

// ItemInput requests a product.
type ItemInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// CreateInput describes a new transfer.
type CreateInput struct {
	FromStoreID  int64       `json:"from_store_id" validate:"required,gt=0"`
	ToStoreID    int64       `json:"to_store_id" validate:"required,gt=0,nefield=FromStoreID"`
	TransferDate time.Time   `json:"transfer_date"`
	Notes        string      `json:"notes" validate:"max=1000"`
	SaveAsDraft  bool        `json:"save_as_draft"`
	Items        []ItemInput `json:"items" validate:"required,min=1,dive"`
	ActorID      int64       `json:"-"`
}

// LineQuantity sets the quantity of one item. A nil Quantity takes the
// default of the step: requested when shipping, shipped when receiving.
type LineQuantity struct {
	ItemID   int64  `json:"item_id" validate:"required,gt=0"`
	Quantity *int64 `json:"quantity" validate:"omitempty,gte=0"`
}

// ShipInput ships a pending transfer. Unlisted items ship their requested quantity.
type ShipInput struct {
	ID             int64          `json:"-"`
	Items          []LineQuantity `json:"items" validate:"omitempty,dive"`
	ActorID        int64          `json:"-"`
	IdempotencyKey string         `json:"-"`
}

// ReceiveInput completes a transfer in transit. Unlisted items are received as zero.
type ReceiveInput struct {
	ID             int64          `json:"-"`
	Items          []LineQuantity `json:"items" validate:"required,min=1,dive"`
	Notes          string         `json:"notes" validate:"max=1000"`
	ActorID        int64          `json:"-"`
	IdempotencyKey string         `json:"-"`
}

// ListFilter narrows transfer listings. StoreID matches either side.
type ListFilter struct {
	StoreID     int64
	FromStoreID int64
	ToStoreID   int64
	Status      Status
	From        time.Time
	To          time.Time
	Page        int
	PerPage     int
}

// quantities indexes submitted lines by item id, rejecting unknown and repeated items.
func quantities(items []Item, lines []LineQuantity) (map[int64]*int64, error) {
	known := make(map[int64]struct{}, len(items))
	for _, it := range items {
		known[it.ID] = struct{}{}
	}
	out := make(map[int64]*int64, len(lines))
	for i, line := range lines {
		field := fmt.Sprintf("items[%d]", i)
		if _, ok := known[line.ItemID]; !ok {
			return nil, shared.Invalid(field+".item_id", "item does not belong to this transfer")
		}
		if _, dup := out[line.ItemID]; dup {
			return nil, shared.Invalid(field+".item_id", "item listed twice")
		}
		if line.Quantity != nil && *line.Quantity < 0 {
			return nil, shared.Invalid(field+".quantity", "must be >= 0")
		}
		out[line.ItemID] = line.Quantity
	}
	return out, nil
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
		if it.Quantity <= 0 {
			return shared.Invalid(field+".quantity", "must be greater than zero")
		}
		if _, dup := seen[it.ProductID]; dup {
			return shared.Invalid(field+".product_id", "product listed twice")
		}
		seen[it.ProductID] = struct{}{}
	}
	return nil
}

// ErrTransferNotFound indicates an unknown transfer.
var ErrTransferNotFound = fmt.Errorf("stock transfer %w", shared.ErrNotFound)
