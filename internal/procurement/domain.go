package procurement

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retailstock/internal/shared"
)

// POStatus is the purchase order lifecycle status.
type POStatus string

const (
	POStatusDraft           POStatus = "draft"
	POStatusPending         POStatus = "pending"
	POStatusApproved        POStatus = "approved"
	POStatusOrdered         POStatus = "ordered"
	POStatusPartialReceived POStatus = "partial_received"
	POStatusReceived        POStatus = "received"
	POStatusCancelled       POStatus = "cancelled"
	POStatusRejected        POStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s POStatus) Valid() bool {
	switch s {
	case POStatusDraft, POStatusPending, POStatusApproved, POStatusOrdered,
		POStatusPartialReceived, POStatusReceived, POStatusCancelled, POStatusRejected:
		return true
	}
	return false
}

// Action names a purchase order command.
type Action string

const (
	ActionUpdate  Action = "update"
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionOrder   Action = "mark ordered"
	ActionCancel  Action = "cancel"
	ActionDelete  Action = "delete"
	ActionReceive Action = "receive"
)

var allowedFrom = map[Action][]POStatus{
	ActionUpdate:  {POStatusDraft, POStatusPending},
	ActionSubmit:  {POStatusDraft},
	ActionApprove: {POStatusPending},
	ActionReject:  {POStatusPending},
	ActionOrder:   {POStatusApproved},
	ActionCancel:  {POStatusDraft, POStatusPending, POStatusApproved, POStatusOrdered},
	ActionDelete:  {POStatusDraft, POStatusCancelled},
	ActionReceive: {POStatusApproved, POStatusOrdered, POStatusPartialReceived},
}

// CheckTransition returns a TransitionError when action is not allowed in status.
func CheckTransition(status POStatus, action Action) error {
	if slices.Contains(allowedFrom[action], status) {
		return nil
	}
	return &shared.TransitionError{Document: "purchase order", Action: string(action), Status: string(status)}
}

// PurchaseOrder is a supplier order for one store.
type PurchaseOrder struct {
	ID             int64           `json:"id"`
	Number         string          `json:"po_number"`
	StoreID        int64           `json:"store_id"`
	SupplierID     int64           `json:"supplier_id"`
	Status         POStatus        `json:"status"`
	OrderDate      time.Time       `json:"order_date"`
	ExpectedDate   *time.Time      `json:"expected_date,omitempty"`
	ReceivedDate   *time.Time      `json:"received_date,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
	Notes          string          `json:"notes"`
	CreatedBy      int64           `json:"created_by"`
	ApprovedBy     *int64          `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Items          []POItem        `json:"items"`
}

// POItem is one ordered product.
type POItem struct {
	ID               int64           `json:"id"`
	POID             int64           `json:"po_id"`
	ProductID        int64           `json:"product_id"`
	QuantityOrdered  int64           `json:"quantity_ordered"`
	QuantityReceived int64           `json:"quantity_received"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	TotalCost        decimal.Decimal `json:"total_cost"`
}

// Remaining returns the quantity still expected.
func (i POItem) Remaining() int64 {
	return i.QuantityOrdered - i.QuantityReceived
}

// Receipt is the append-only record of one receiving event.
type Receipt struct {
	ID         int64         `json:"id"`
	POID       int64         `json:"po_id"`
	ReceivedBy int64         `json:"received_by"`
	ReceivedAt time.Time     `json:"received_at"`
	Notes      string        `json:"notes"`
	Items      []ReceiptLine `json:"items"`
}

// ReceiptLine snapshots what one line received in an event.
type ReceiptLine struct {
	ItemID            int64           `json:"item_id"`
	ProductID         int64           `json:"product_id"`
	QuantitySubmitted int64           `json:"quantity_submitted"`
	QuantityReceived  int64           `json:"quantity_received"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
}

// ItemInput describes an order line.
type ItemInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// CreateInput describes a new purchase order.
type CreateInput struct {
	StoreID        int64           `json:"store_id" validate:"required,gt=0"`
	SupplierID     int64           `json:"supplier_id" validate:"required,gt=0"`
	OrderDate      time.Time       `json:"order_date"`
	ExpectedDate   *time.Time      `json:"expected_date"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Notes          string          `json:"notes" validate:"max=1000"`
	Items          []ItemInput     `json:"items" validate:"required,min=1,dive"`
	ActorID        int64           `json:"-"`
}

// UpdateInput replaces the editable fields and all lines of a purchase order.
type UpdateInput struct {
	ID             int64           `json:"-"`
	SupplierID     int64           `json:"supplier_id" validate:"required,gt=0"`
	ExpectedDate   *time.Time      `json:"expected_date"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Notes          string          `json:"notes" validate:"max=1000"`
	Items          []ItemInput     `json:"items" validate:"required,min=1,dive"`
	ActorID        int64           `json:"-"`
}

// ReceiveLine is a submitted quantity for one PO item.
type ReceiveLine struct {
	ItemID   int64 `json:"item_id" validate:"required,gt=0"`
	Quantity int64 `json:"quantity_received" validate:"gte=0"`
}

// ReceiveInput records goods arriving against a purchase order.
type ReceiveInput struct {
	POID           int64         `json:"-"`
	Items          []ReceiveLine `json:"items" validate:"required,min=1,dive"`
	Notes          string        `json:"notes" validate:"max=1000"`
	ReceivedAt     time.Time     `json:"received_at"`
	ActorID        int64         `json:"-"`
	IdempotencyKey string        `json:"-"`
}

// ListFilter narrows purchase order listings.
type ListFilter struct {
	StoreID    int64
	SupplierID int64
	Status     POStatus
	From       time.Time
	To         time.Time
	Page       int
	PerPage    int
}

// Totals computes subtotal and total of a purchase order.
func Totals(items []POItem, tax, shipping, discount decimal.Decimal) (subtotal, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.TotalCost)
	}
	total = subtotal.Add(tax).Add(shipping).Sub(discount)
	return subtotal, total
}

// DeriveStatus returns received when every line is complete, partial_received
// when anything arrived, otherwise current.
func DeriveStatus(items []POItem, current POStatus) POStatus {
	complete := len(items) > 0
	received := false
	for _, it := range items {
		if it.QuantityReceived > 0 {
			received = true
		}
		if it.QuantityReceived != it.QuantityOrdered {
			complete = false
		}
	}
	switch {
	case complete:
		return POStatusReceived
	case received:
		return POStatusPartialReceived
	default:
		return current
	}
}

func validateAmounts(tax, shipping, discount decimal.Decimal) error {
	for field, v := range map[string]decimal.Decimal{"tax_amount": tax, "shipping_cost": shipping, "discount_amount": discount} {
		if v.IsNegative() {
			return shared.Invalid(field, "must be >= 0")
		}
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
		if it.Quantity <= 0 {
			return shared.Invalid(field+".quantity", "must be greater than zero")
		}
		if it.UnitCost.IsNegative() {
			return shared.Invalid(field+".unit_cost", "must be >= 0")
		}
		if _, dup := seen[it.ProductID]; dup {
			return shared.Invalid(field+".product_id", "product listed twice")
		}
		seen[it.ProductID] = struct{}{}
	}
	return nil
}

func buildItems(inputs []ItemInput) []POItem {
	items := make([]POItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, POItem{
			ProductID:       in.ProductID,
			QuantityOrdered: in.Quantity,
			UnitCost:        in.UnitCost,
			TotalCost:       in.UnitCost.Mul(decimal.NewFromInt(in.Quantity)),
		})
	}
	return items
}

var (
	// ErrPONotFound indicates an unknown purchase order.
	ErrPONotFound = fmt.Errorf("purchase order %w", shared.ErrNotFound)
	// ErrSupplierNotFound indicates an unknown or inactive supplier.
	ErrSupplierNotFound = fmt.Errorf("supplier %w", shared.ErrNotFound)
)
