package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retailstock/internal/shared"
)

// MovementType enumerates supported ledger movements.
type MovementType string

const (
	// MovementIn represents a generic inbound movement.
	MovementIn MovementType = "in"
	// MovementOut represents a generic outbound movement.
	MovementOut MovementType = "out"
	// MovementAdjustment is written by approved stock adjustments.
	MovementAdjustment MovementType = "adjustment"
	// MovementTransferIn credits the destination of a transfer.
	MovementTransferIn MovementType = "transfer_in"
	// MovementTransferOut debits the source of a transfer.
	MovementTransferOut MovementType = "transfer_out"
	// MovementSale records a point of sale deduction.
	MovementSale MovementType = "sale"
	// MovementPurchase records goods received against a purchase.
	MovementPurchase MovementType = "purchase"
	// MovementReturn records goods returned by a customer.
	MovementReturn MovementType = "return"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementTransferIn,
		MovementTransferOut, MovementSale, MovementPurchase, MovementReturn:
		return true
	}
	return false
}

// OriginKind names the workflow that produced a movement.
type OriginKind string

const (
	OriginManual        OriginKind = "manual"
	OriginPurchaseOrder OriginKind = "purchase_order"
	OriginAdjustment    OriginKind = "stock_adjustment"
	OriginTransfer      OriginKind = "stock_transfer"
	OriginSale          OriginKind = "sale"
	OriginReturn        OriginKind = "return"
)

// Origin links a movement to the document that caused it.
type Origin struct {
	Kind OriginKind `json:"kind"`
	ID   int64      `json:"id,omitempty"`
}

// ManualOrigin marks a movement entered without a source document.
func ManualOrigin() Origin { return Origin{Kind: OriginManual} }

// PurchaseOrderOrigin links to a purchase order.
func PurchaseOrderOrigin(id int64) Origin { return Origin{Kind: OriginPurchaseOrder, ID: id} }

// AdjustmentOrigin links to a stock adjustment.
func AdjustmentOrigin(id int64) Origin { return Origin{Kind: OriginAdjustment, ID: id} }

// TransferOrigin links to a stock transfer.
func TransferOrigin(id int64) Origin { return Origin{Kind: OriginTransfer, ID: id} }

// SaleOrigin links to a point of sale transaction.
func SaleOrigin(id int64) Origin { return Origin{Kind: OriginSale, ID: id} }

// ReturnOrigin links to a customer return.
func ReturnOrigin(id int64) Origin { return Origin{Kind: OriginReturn, ID: id} }

// Validate checks the kind is known and document backed origins carry an id.
func (o Origin) Validate() error {
	switch o.Kind {
	case OriginManual:
		return nil
	case OriginPurchaseOrder, OriginAdjustment, OriginTransfer, OriginSale, OriginReturn:
		if o.ID <= 0 {
			return shared.Invalid("origin", fmt.Sprintf("%s origin requires an id", o.Kind))
		}
		return nil
	default:
		return shared.Invalid("origin", fmt.Sprintf("unknown origin kind %q", o.Kind))
	}
}

func (o Origin) String() string {
	if o.Kind == OriginManual {
		return string(o.Kind)
	}
	return fmt.Sprintf("%s#%d", o.Kind, o.ID)
}

// Product is the catalog view the ledger needs. Owned by catalog management.
type Product struct {
	ID            int64
	SKU           string
	Barcode       string
	Name          string
	Category      string
	PurchasePrice decimal.Decimal
	SellingPrice  decimal.Decimal
	MinimumStock  int64
	Active        bool
}

// Store is a selling location.
type Store struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Record is the cached quantity and cost per (store, product).
type Record struct {
	StoreID         int64
	ProductID       int64
	Quantity        int64
	MinimumStock    int64
	MaximumStock    *int64
	AverageCost     decimal.Decimal
	LastCost        decimal.Decimal
	Location        string
	LastRestockDate *time.Time
	UpdatedAt       time.Time
}

// RecordKey identifies an inventory record.
type RecordKey struct {
	StoreID   int64
	ProductID int64
}

// Movement is one immutable ledger entry.
type Movement struct {
	ID             int64               `json:"id"`
	StoreID        int64               `json:"store_id"`
	ProductID      int64               `json:"product_id"`
	ActorID        int64               `json:"actor_id"`
	Type           MovementType        `json:"type"`
	QuantityBefore int64               `json:"quantity_before"`
	QuantityChange int64               `json:"quantity_change"`
	QuantityAfter  int64               `json:"quantity_after"`
	UnitCost       decimal.NullDecimal `json:"unit_cost"`
	Origin         Origin              `json:"origin"`
	MovementDate   time.Time           `json:"movement_date"`
	Notes          string              `json:"notes"`
	CreatedAt      time.Time           `json:"created_at"`
}

// AppendInput describes one ledger append.
type AppendInput struct {
	StoreID        int64
	ProductID      int64
	ActorID        int64
	Type           MovementType
	QuantityChange int64
	UnitCost       decimal.NullDecimal
	Origin         Origin
	Notes          string
	MovementDate   time.Time
}

// ReceivePurchaseInput describes goods received at cost.
type ReceivePurchaseInput struct {
	StoreID    int64
	ProductID  int64
	ActorID    int64
	Quantity   int64
	UnitCost   decimal.Decimal
	Origin     Origin
	Notes      string
	ReceivedAt time.Time
}

// SaleInput records a point of sale deduction.
type SaleInput struct {
	StoreID   int64  `json:"store_id" validate:"required,gt=0"`
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	SaleID    int64  `json:"sale_id" validate:"required,gt=0"`
	Notes     string `json:"notes" validate:"max=500"`
	ActorID   int64  `json:"-"`
}

// ReturnInput records goods coming back from a customer.
type ReturnInput struct {
	StoreID   int64               `json:"store_id" validate:"required,gt=0"`
	ProductID int64               `json:"product_id" validate:"required,gt=0"`
	Quantity  int64               `json:"quantity" validate:"required,gt=0"`
	ReturnID  int64               `json:"return_id" validate:"required,gt=0"`
	UnitCost  decimal.NullDecimal `json:"unit_cost"`
	Notes     string              `json:"notes" validate:"max=500"`
	ActorID   int64               `json:"-"`
}

// SettingsInput updates thresholds and location of an existing record.
type SettingsInput struct {
	StoreID      int64   `json:"-"`
	ProductID    int64   `json:"-"`
	MinimumStock *int64  `json:"minimum_stock" validate:"omitempty,gte=0"`
	MaximumStock *int64  `json:"maximum_stock" validate:"omitempty,gte=0"`
	ClearMaximum bool    `json:"clear_maximum"`
	Location     *string `json:"location" validate:"omitempty,max=100"`
	ActorID      int64   `json:"-"`
}

// StockStatus buckets a record by its quantity against the minimum.
type StockStatus string

const (
	StatusOutOfStock StockStatus = "out_of_stock"
	StatusLowStock   StockStatus = "low_stock"
	StatusInStock    StockStatus = "in_stock"
)

// Valid reports whether s is a known status.
func (s StockStatus) Valid() bool {
	return s == StatusOutOfStock || s == StatusLowStock || s == StatusInStock
}

// StockStatusOf classifies a quantity against its minimum.
func StockStatusOf(quantity, minimum int64) StockStatus {
	switch {
	case quantity <= 0:
		return StatusOutOfStock
	case quantity <= minimum:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// AlertLevel grades low-stock alerts.
type AlertLevel string

const (
	AlertCritical AlertLevel = "critical"
	AlertWarning  AlertLevel = "warning"
	AlertLow      AlertLevel = "low"
)

// Valid reports whether l is a known level.
func (l AlertLevel) Valid() bool {
	return l == AlertCritical || l == AlertWarning || l == AlertLow
}

// ClassifyAlert grades quantity against minimum. Records without a minimum
// never alert; quantities above 1.5 x minimum are healthy.
func ClassifyAlert(quantity, minimum int64) (AlertLevel, bool) {
	if minimum <= 0 {
		return "", false
	}
	switch {
	case quantity <= 0:
		return AlertCritical, true
	case quantity <= minimum:
		return AlertWarning, true
	case quantity*2 <= minimum*3:
		return AlertLow, true
	default:
		return "", false
	}
}

// RecordView joins a record with catalog details for listings.
type RecordView struct {
	StoreID         int64           `json:"store_id"`
	StoreName       string          `json:"store_name"`
	ProductID       int64           `json:"product_id"`
	ProductName     string          `json:"product_name"`
	SKU             string          `json:"sku"`
	Category        string          `json:"category"`
	Quantity        int64           `json:"quantity"`
	MinimumStock    int64           `json:"minimum_stock"`
	MaximumStock    *int64          `json:"maximum_stock,omitempty"`
	AverageCost     decimal.Decimal `json:"average_cost"`
	LastCost        decimal.Decimal `json:"last_cost"`
	Location        string          `json:"location"`
	LastRestockDate *time.Time      `json:"last_restock_date,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Status          StockStatus     `json:"status"`
}

// Alert is one entry of the low-stock feed.
type Alert struct {
	StoreID      int64      `json:"store_id"`
	StoreName    string     `json:"store_name"`
	ProductID    int64      `json:"product_id"`
	ProductName  string     `json:"product_name"`
	SKU          string     `json:"sku"`
	Category     string     `json:"category"`
	Quantity     int64      `json:"quantity"`
	MinimumStock int64      `json:"minimum_stock"`
	Shortage     int64      `json:"shortage"`
	Level        AlertLevel `json:"level"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RecordFilter narrows inventory listings.
type RecordFilter struct {
	StoreID  int64
	Category string
	Status   StockStatus
	Search   string
	Page     int
	PerPage  int
}

// AlertFilter narrows the alert feed.
type AlertFilter struct {
	StoreID            int64
	Category           string
	Level              AlertLevel
	IncludeApproaching bool
}

// MovementFilter narrows movement history.
type MovementFilter struct {
	StoreID   int64
	ProductID int64
	Type      MovementType
	From      time.Time
	To        time.Time
	Page      int
	PerPage   int
}

// ChainReport is the result of replaying a key's ledger.
type ChainReport struct {
	StoreID        int64  `json:"store_id"`
	ProductID      int64  `json:"product_id"`
	Movements      int    `json:"movements"`
	LedgerQuantity int64  `json:"ledger_quantity"`
	RecordQuantity int64  `json:"record_quantity"`
	Consistent     bool   `json:"consistent"`
	BrokenAt       int64  `json:"broken_at,omitempty"`
	Problem        string `json:"problem,omitempty"`
}

var (
	// ErrRecordNotFound indicates no inventory record exists for the key.
	ErrRecordNotFound = fmt.Errorf("inventory record %w", shared.ErrNotFound)
	// ErrProductNotFound indicates an unknown product.
	ErrProductNotFound = fmt.Errorf("product %w", shared.ErrNotFound)
	// ErrStoreNotFound indicates an unknown store.
	ErrStoreNotFound = fmt.Errorf("store %w", shared.ErrNotFound)
)
