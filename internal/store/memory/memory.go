// Package memory is an in-process store used when no database is configured
// and by service tests. Each transaction works on a copy of the state that is
// swapped in on success, so a failed command leaves nothing behind.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retailstock/internal/adjustment"
	"github.com/odyssey-erp/retailstock/internal/inventory"
	"github.com/odyssey-erp/retailstock/internal/procurement"
	"github.com/odyssey-erp/retailstock/internal/shared"
	"github.com/odyssey-erp/retailstock/internal/transfer"
)

// Supplier is the catalog view of a supplier.
type Supplier struct {
	ID     int64
	Name   string
	Active bool
}

type state struct {
	stores      map[int64]inventory.Store
	products    map[int64]inventory.Product
	suppliers   map[int64]Supplier
	records     map[inventory.RecordKey]inventory.Record
	movements   []inventory.Movement
	sequences   map[string]int64
	pos         map[int64]procurement.PurchaseOrder
	receipts    []procurement.Receipt
	adjustments map[int64]adjustment.Adjustment
	transfers   map[int64]transfer.Transfer
	lastID      int64
}

func newState() *state {
	return &state{
		stores:      map[int64]inventory.Store{},
		products:    map[int64]inventory.Product{},
		suppliers:   map[int64]Supplier{},
		records:     map[inventory.RecordKey]inventory.Record{},
		sequences:   map[string]int64{},
		pos:         map[int64]procurement.PurchaseOrder{},
		adjustments: map[int64]adjustment.Adjustment{},
		transfers:   map[int64]transfer.Transfer{},
	}
}

func (s *state) clone() *state {
	c := &state{
		stores:      maps.Clone(s.stores),
		products:    maps.Clone(s.products),
		suppliers:   maps.Clone(s.suppliers),
		records:     maps.Clone(s.records),
		movements:   slices.Clone(s.movements),
		sequences:   maps.Clone(s.sequences),
		pos:         make(map[int64]procurement.PurchaseOrder, len(s.pos)),
		receipts:    slices.Clone(s.receipts),
		adjustments: make(map[int64]adjustment.Adjustment, len(s.adjustments)),
		transfers:   make(map[int64]transfer.Transfer, len(s.transfers)),
		lastID:      s.lastID,
	}
	for id, po := range s.pos {
		po.Items = slices.Clone(po.Items)
		c.pos[id] = po
	}
	for id, adj := range s.adjustments {
		adj.Items = slices.Clone(adj.Items)
		c.adjustments[id] = adj
	}
	for id, t := range s.transfers {
		t.Items = slices.Clone(t.Items)
		c.transfers[id] = t
	}
	return c
}

// nextID hands out ids from one counter shared by every table.
func (s *state) nextID() int64 {
	s.lastID++
	return s.lastID
}

// Store holds all state behind one mutex. Transactions are serialised.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// NewSeeded returns a store with two stores, a supplier and a small catalog for local runs.
func NewSeeded() *Store {
	s := New()
	s.AddStore(inventory.Store{ID: 1, Name: "Main Street", Active: true})
	s.AddStore(inventory.Store{ID: 2, Name: "Harbour Mall", Active: true})
	s.AddSupplier(Supplier{ID: 1, Name: "Nusantara Wholesale", Active: true})
	for _, p := range []inventory.Product{
		{ID: 1, SKU: "SKU-COFFEE-250", Name: "Ground Coffee 250g", Category: "beverage", PurchasePrice: decimal.RequireFromString("42000"), SellingPrice: decimal.RequireFromString("55000"), MinimumStock: 10, Active: true},
		{ID: 2, SKU: "SKU-TEA-25", Name: "Tea Bags 25s", Category: "beverage", PurchasePrice: decimal.RequireFromString("9500"), SellingPrice: decimal.RequireFromString("12500"), MinimumStock: 20, Active: true},
		{ID: 3, SKU: "SKU-SUGAR-1K", Name: "Sugar 1kg", Category: "grocery", PurchasePrice: decimal.RequireFromString("15000"), SellingPrice: decimal.RequireFromString("17400"), MinimumStock: 15, Active: true},
	} {
		s.AddProduct(p)
	}
	return s
}

// AddStore upserts a store.
func (s *Store) AddStore(store inventory.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.stores[store.ID] = store
	s.st.lastID = max(s.st.lastID, store.ID)
}

// AddProduct upserts a product.
func (s *Store) AddProduct(p inventory.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
	s.st.lastID = max(s.st.lastID, p.ID)
}

// AddSupplier upserts a supplier.
func (s *Store) AddSupplier(sup Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.suppliers[sup.ID] = sup
	s.st.lastID = max(s.st.lastID, sup.ID)
}

// Tamper overwrites a record without a movement. Tests use it to simulate a
// projection that drifted from its ledger.
func (s *Store) Tamper(storeID, productID, quantity int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := inventory.RecordKey{StoreID: storeID, ProductID: productID}
	rec := s.st.records[key]
	rec.StoreID, rec.ProductID, rec.Quantity = storeID, productID, quantity
	s.st.records[key] = rec
}

// withTx runs fn against a private copy of the state and publishes it on success.
func (s *Store) withTx(ctx context.Context, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) read(fn func(*state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

// ledgerTx implements inventory.TxRepository over a working copy.
type ledgerTx struct {
	st *state
}

func (t *ledgerTx) GetProduct(_ context.Context, id int64) (inventory.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (t *ledgerTx) GetStore(_ context.Context, id int64) (inventory.Store, error) {
	store, ok := t.st.stores[id]
	if !ok {
		return inventory.Store{}, inventory.ErrStoreNotFound
	}
	return store, nil
}

func (t *ledgerTx) LockRecord(_ context.Context, storeID, productID int64) (inventory.Record, error) {
	rec, ok := t.st.records[inventory.RecordKey{StoreID: storeID, ProductID: productID}]
	if !ok {
		return inventory.Record{}, inventory.ErrRecordNotFound
	}
	return rec, nil
}

func (t *ledgerTx) InsertRecord(_ context.Context, rec inventory.Record) error {
	key := inventory.RecordKey{StoreID: rec.StoreID, ProductID: rec.ProductID}
	if _, exists := t.st.records[key]; exists {
		return shared.ErrConcurrentModification
	}
	t.st.records[key] = rec
	return nil
}

func (t *ledgerTx) UpdateRecord(_ context.Context, rec inventory.Record) error {
	key := inventory.RecordKey{StoreID: rec.StoreID, ProductID: rec.ProductID}
	if _, ok := t.st.records[key]; !ok {
		return inventory.ErrRecordNotFound
	}
	if rec.Quantity < 0 {
		return &shared.PersistenceError{Op: "update inventory record", Err: errNegativeQuantity}
	}
	t.st.records[key] = rec
	return nil
}

func (t *ledgerTx) LatestMovement(_ context.Context, storeID, productID int64) (inventory.Movement, bool, error) {
	for i := len(t.st.movements) - 1; i >= 0; i-- {
		m := t.st.movements[i]
		if m.StoreID == storeID && m.ProductID == productID {
			return m, true, nil
		}
	}
	return inventory.Movement{}, false, nil
}

func (t *ledgerTx) InsertMovement(_ context.Context, m inventory.Movement) (inventory.Movement, error) {
	m.ID = t.st.nextID()
	m.CreatedAt = m.MovementDate
	t.st.movements = append(t.st.movements, m)
	return m, nil
}

func (t *ledgerTx) ListPurchaseMovements(_ context.Context, storeID, productID int64) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, m := range t.st.movements {
		if m.StoreID == storeID && m.ProductID == productID && m.Type == inventory.MovementPurchase && m.QuantityChange > 0 {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b inventory.Movement) int { return a.MovementDate.Compare(b.MovementDate) })
	return out, nil
}

func (t *ledgerTx) NextSequence(_ context.Context, docType, day string) (int64, error) {
	key := docType + ":" + day
	t.st.sequences[key]++
	return t.st.sequences[key], nil
}

var errNegativeQuantity = errors.New("quantity check constraint violated")
