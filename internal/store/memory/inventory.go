package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/odyssey-erp/retailstock/internal/inventory"
	"github.com/odyssey-erp/retailstock/internal/shared"
)

// InventoryRepo adapts the store to inventory.RepositoryPort.
type InventoryRepo struct {
	s *Store
}

// Inventory returns the ledger repository.
func (s *Store) Inventory() *InventoryRepo {
	return &InventoryRepo{s: s}
}

// WithTx runs fn against a working copy of the state.
func (r *InventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.withTx(ctx, func(st *state) error {
		return fn(ctx, &ledgerTx{st: st})
	})
}

func (st *state) view(key inventory.RecordKey, rec inventory.Record) inventory.RecordView {
	store := st.stores[key.StoreID]
	product := st.products[key.ProductID]
	return inventory.RecordView{
		StoreID:         rec.StoreID,
		StoreName:       store.Name,
		ProductID:       rec.ProductID,
		ProductName:     product.Name,
		SKU:             product.SKU,
		Category:        product.Category,
		Quantity:        rec.Quantity,
		MinimumStock:    rec.MinimumStock,
		MaximumStock:    rec.MaximumStock,
		AverageCost:     rec.AverageCost,
		LastCost:        rec.LastCost,
		Location:        rec.Location,
		LastRestockDate: rec.LastRestockDate,
		UpdatedAt:       rec.UpdatedAt,
		Status:          inventory.StockStatusOf(rec.Quantity, rec.MinimumStock),
	}
}

func (st *state) views(keep func(inventory.RecordView) bool) []inventory.RecordView {
	var out []inventory.RecordView
	for key, rec := range st.records {
		v := st.view(key, rec)
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func byStoreAndProductName(a, b inventory.RecordView) int {
	return cmp.Or(
		cmp.Compare(a.StoreName, b.StoreName),
		cmp.Compare(a.ProductName, b.ProductName),
		cmp.Compare(a.StoreID, b.StoreID),
		cmp.Compare(a.ProductID, b.ProductID),
	)
}

// page slices items for a 1-based page.
func page[T any](items []T, pageNo, perPage int) []T {
	start, end := shared.PageWindow(pageNo, perPage, len(items))
	return items[start:end]
}

// GetRecord loads a record with catalog details.
func (r *InventoryRepo) GetRecord(_ context.Context, storeID, productID int64) (inventory.RecordView, error) {
	var (
		v  inventory.RecordView
		ok bool
	)
	r.s.read(func(st *state) {
		key := inventory.RecordKey{StoreID: storeID, ProductID: productID}
		var rec inventory.Record
		if rec, ok = st.records[key]; ok {
			v = st.view(key, rec)
		}
	})
	if !ok {
		return inventory.RecordView{}, inventory.ErrRecordNotFound
	}
	return v, nil
}

// ListRecords lists records ordered by store then product name.
func (r *InventoryRepo) ListRecords(_ context.Context, filter inventory.RecordFilter) ([]inventory.RecordView, int, error) {
	search := strings.ToLower(filter.Search)
	var all []inventory.RecordView
	r.s.read(func(st *state) {
		all = st.views(func(v inventory.RecordView) bool {
			if filter.StoreID != 0 && v.StoreID != filter.StoreID {
				return false
			}
			if filter.Category != "" && v.Category != filter.Category {
				return false
			}
			if search != "" && !strings.Contains(strings.ToLower(v.ProductName), search) &&
				!strings.Contains(strings.ToLower(v.SKU), search) {
				return false
			}
			return filter.Status == "" || v.Status == filter.Status
		})
	})
	slices.SortFunc(all, byStoreAndProductName)
	return page(all, filter.Page, filter.PerPage), len(all), nil
}

// ListAlertCandidates returns records at or below their minimum, or 1.5 x when approaching ones are wanted.
func (r *InventoryRepo) ListAlertCandidates(_ context.Context, filter inventory.AlertFilter) ([]inventory.RecordView, error) {
	var out []inventory.RecordView
	r.s.read(func(st *state) {
		out = st.views(func(v inventory.RecordView) bool {
			if v.MinimumStock <= 0 {
				return false
			}
			if filter.IncludeApproaching {
				if v.Quantity*2 > v.MinimumStock*3 {
					return false
				}
			} else if v.Quantity > v.MinimumStock {
				return false
			}
			if filter.StoreID != 0 && v.StoreID != filter.StoreID {
				return false
			}
			return filter.Category == "" || v.Category == filter.Category
		})
	})
	slices.SortFunc(out, func(a, b inventory.RecordView) int {
		return cmp.Or(cmp.Compare(a.Quantity, b.Quantity), byStoreAndProductName(a, b))
	})
	return out, nil
}

// ListMovements returns history newest first.
func (r *InventoryRepo) ListMovements(_ context.Context, filter inventory.MovementFilter) ([]inventory.Movement, int, error) {
	out := []inventory.Movement{}
	r.s.read(func(st *state) {
		for _, m := range st.movements {
			switch {
			case filter.StoreID != 0 && m.StoreID != filter.StoreID,
				filter.ProductID != 0 && m.ProductID != filter.ProductID,
				filter.Type != "" && m.Type != filter.Type,
				!filter.From.IsZero() && m.MovementDate.Before(filter.From),
				!filter.To.IsZero() && m.MovementDate.After(filter.To):
				continue
			}
			out = append(out, m)
		}
	})
	slices.SortFunc(out, func(a, b inventory.Movement) int {
		return cmp.Or(b.MovementDate.Compare(a.MovementDate), cmp.Compare(b.ID, a.ID))
	})
	return page(out, filter.Page, filter.PerPage), len(out), nil
}

// ListLedger returns every movement of a key in insertion order.
func (r *InventoryRepo) ListLedger(_ context.Context, storeID, productID int64) ([]inventory.Movement, error) {
	out := []inventory.Movement{}
	r.s.read(func(st *state) {
		for _, m := range st.movements {
			if m.StoreID == storeID && m.ProductID == productID {
				out = append(out, m)
			}
		}
	})
	return out, nil
}

// ListRecordKeys lists record keys, optionally for one store.
func (r *InventoryRepo) ListRecordKeys(_ context.Context, storeID int64) ([]inventory.RecordKey, error) {
	var keys []inventory.RecordKey
	r.s.read(func(st *state) {
		for key := range st.records {
			if storeID == 0 || key.StoreID == storeID {
				keys = append(keys, key)
			}
		}
	})
	slices.SortFunc(keys, func(a, b inventory.RecordKey) int {
		return cmp.Or(cmp.Compare(a.StoreID, b.StoreID), cmp.Compare(a.ProductID, b.ProductID))
	})
	return keys, nil
}

// ListStores returns active stores.
func (r *InventoryRepo) ListStores(_ context.Context) ([]inventory.Store, error) {
	var stores []inventory.Store
	r.s.read(func(st *state) {
		for _, s := range st.stores {
			if s.Active {
				stores = append(stores, s)
			}
		}
	})
	slices.SortFunc(stores, func(a, b inventory.Store) int { return cmp.Compare(a.ID, b.ID) })
	return stores, nil
}

var _ inventory.RepositoryPort = (*InventoryRepo)(nil)
