package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/odyssey-erp/retailstock/internal/adjustment"
	"github.com/odyssey-erp/retailstock/internal/procurement"
	"github.com/odyssey-erp/retailstock/internal/transfer"
)

func inRange(t, from, to time.Time) bool {
	return (from.IsZero() || !t.Before(from)) && (to.IsZero() || !t.After(to))
}

// ProcurementRepo adapts the store to procurement.RepositoryPort.
type ProcurementRepo struct {
	s *Store
}

// Procurement returns the purchase order repository.
func (s *Store) Procurement() *ProcurementRepo {
	return &ProcurementRepo{s: s}
}

type procurementTx struct {
	ledgerTx
}

// WithTx runs fn against a working copy of the state.
func (r *ProcurementRepo) WithTx(ctx context.Context, fn func(context.Context, procurement.TxRepository) error) error {
	return r.s.withTx(ctx, func(st *state) error {
		return fn(ctx, &procurementTx{ledgerTx{st: st}})
	})
}

// GetPO loads an order with its items.
func (r *ProcurementRepo) GetPO(_ context.Context, id int64) (procurement.PurchaseOrder, error) {
	var (
		po procurement.PurchaseOrder
		ok bool
	)
	r.s.read(func(st *state) {
		if po, ok = st.pos[id]; ok {
			po.Items = slices.Clone(po.Items)
		}
	})
	if !ok {
		return procurement.PurchaseOrder{}, procurement.ErrPONotFound
	}
	return po, nil
}

// ListPOs lists orders newest first without items.
func (r *ProcurementRepo) ListPOs(_ context.Context, filter procurement.ListFilter) ([]procurement.PurchaseOrder, int, error) {
	var out []procurement.PurchaseOrder
	r.s.read(func(st *state) {
		for _, po := range st.pos {
			switch {
			case filter.StoreID != 0 && po.StoreID != filter.StoreID,
				filter.SupplierID != 0 && po.SupplierID != filter.SupplierID,
				filter.Status != "" && po.Status != filter.Status,
				!inRange(po.OrderDate, filter.From, filter.To):
				continue
			}
			po.Items = nil
			out = append(out, po)
		}
	})
	slices.SortFunc(out, func(a, b procurement.PurchaseOrder) int {
		return cmp.Or(b.OrderDate.Compare(a.OrderDate), cmp.Compare(b.ID, a.ID))
	})
	return page(out, filter.Page, filter.PerPage), len(out), nil
}

// ListReceipts returns the receiving history of an order, oldest first.
func (r *ProcurementRepo) ListReceipts(_ context.Context, poID int64) ([]procurement.Receipt, error) {
	var out []procurement.Receipt
	r.s.read(func(st *state) {
		for _, rc := range st.receipts {
			if rc.POID == poID {
				out = append(out, rc)
			}
		}
	})
	slices.SortStableFunc(out, func(a, b procurement.Receipt) int { return a.ReceivedAt.Compare(b.ReceivedAt) })
	return out, nil
}

func (t *procurementTx) SupplierActive(_ context.Context, id int64) (bool, error) {
	sup, ok := t.st.suppliers[id]
	if !ok {
		return false, procurement.ErrSupplierNotFound
	}
	return sup.Active, nil
}

func (t *procurementTx) InsertPO(ctx context.Context, po procurement.PurchaseOrder) (int64, error) {
	po.ID = t.st.nextID()
	po.UpdatedAt = po.CreatedAt
	t.st.pos[po.ID] = po
	return po.ID, t.ReplaceItems(ctx, po.ID, po.Items)
}

func (t *procurementTx) LockPO(_ context.Context, id int64) (procurement.PurchaseOrder, error) {
	po, ok := t.st.pos[id]
	if !ok {
		return procurement.PurchaseOrder{}, procurement.ErrPONotFound
	}
	po.Items = slices.Clone(po.Items)
	return po, nil
}

func (t *procurementTx) UpdatePO(_ context.Context, po procurement.PurchaseOrder) error {
	stored, ok := t.st.pos[po.ID]
	if !ok {
		return procurement.ErrPONotFound
	}
	po.Number, po.StoreID, po.OrderDate = stored.Number, stored.StoreID, stored.OrderDate
	po.CreatedBy, po.CreatedAt = stored.CreatedBy, stored.CreatedAt
	po.Items = stored.Items
	t.st.pos[po.ID] = po
	return nil
}

func (t *procurementTx) ReplaceItems(_ context.Context, poID int64, items []procurement.POItem) error {
	po, ok := t.st.pos[poID]
	if !ok {
		return procurement.ErrPONotFound
	}
	po.Items = make([]procurement.POItem, len(items))
	for i, it := range items {
		it.ID, it.POID = t.st.nextID(), poID
		po.Items[i] = it
	}
	t.st.pos[poID] = po
	return nil
}

func (t *procurementTx) UpdateItemReceived(_ context.Context, itemID, quantityReceived int64) error {
	for id, po := range t.st.pos {
		for i := range po.Items {
			if po.Items[i].ID == itemID {
				po.Items[i].QuantityReceived = quantityReceived
				t.st.pos[id] = po
				return nil
			}
		}
	}
	return procurement.ErrPONotFound
}

func (t *procurementTx) InsertReceipt(_ context.Context, receipt procurement.Receipt) (int64, error) {
	receipt.ID = t.st.nextID()
	receipt.Items = slices.Clone(receipt.Items)
	t.st.receipts = append(t.st.receipts, receipt)
	return receipt.ID, nil
}

func (t *procurementTx) DeletePO(_ context.Context, id int64) error {
	if _, ok := t.st.pos[id]; !ok {
		return procurement.ErrPONotFound
	}
	delete(t.st.pos, id)
	t.st.receipts = slices.DeleteFunc(t.st.receipts, func(rc procurement.Receipt) bool { return rc.POID == id })
	return nil
}

// AdjustmentRepo adapts the store to adjustment.RepositoryPort.
type AdjustmentRepo struct {
	s *Store
}

// Adjustments returns the stock adjustment repository.
func (s *Store) Adjustments() *AdjustmentRepo {
	return &AdjustmentRepo{s: s}
}

type adjustmentTx struct {
	ledgerTx
}

// WithTx runs fn against a working copy of the state.
func (r *AdjustmentRepo) WithTx(ctx context.Context, fn func(context.Context, adjustment.TxRepository) error) error {
	return r.s.withTx(ctx, func(st *state) error {
		return fn(ctx, &adjustmentTx{ledgerTx{st: st}})
	})
}

// GetAdjustment loads an adjustment with its items.
func (r *AdjustmentRepo) GetAdjustment(_ context.Context, id int64) (adjustment.Adjustment, error) {
	var (
		adj adjustment.Adjustment
		ok  bool
	)
	r.s.read(func(st *state) {
		if adj, ok = st.adjustments[id]; ok {
			adj.Items = slices.Clone(adj.Items)
		}
	})
	if !ok {
		return adjustment.Adjustment{}, adjustment.ErrAdjustmentNotFound
	}
	return adj, nil
}

// ListAdjustments lists adjustments newest first without items.
func (r *AdjustmentRepo) ListAdjustments(_ context.Context, filter adjustment.ListFilter) ([]adjustment.Adjustment, int, error) {
	var out []adjustment.Adjustment
	r.s.read(func(st *state) {
		for _, adj := range st.adjustments {
			switch {
			case filter.StoreID != 0 && adj.StoreID != filter.StoreID,
				filter.Status != "" && adj.Status != filter.Status,
				filter.Type != "" && adj.Type != filter.Type,
				filter.Reason != "" && adj.Reason != filter.Reason,
				!inRange(adj.CreatedAt, filter.From, filter.To):
				continue
			}
			adj.Items = nil
			out = append(out, adj)
		}
	})
	slices.SortFunc(out, func(a, b adjustment.Adjustment) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	return page(out, filter.Page, filter.PerPage), len(out), nil
}

func (t *adjustmentTx) InsertAdjustment(ctx context.Context, adj adjustment.Adjustment) (int64, error) {
	adj.ID = t.st.nextID()
	adj.UpdatedAt = adj.CreatedAt
	t.st.adjustments[adj.ID] = adj
	return adj.ID, t.ReplaceItems(ctx, adj.ID, adj.Items)
}

func (t *adjustmentTx) LockAdjustment(_ context.Context, id int64) (adjustment.Adjustment, error) {
	adj, ok := t.st.adjustments[id]
	if !ok {
		return adjustment.Adjustment{}, adjustment.ErrAdjustmentNotFound
	}
	adj.Items = slices.Clone(adj.Items)
	return adj, nil
}

func (t *adjustmentTx) UpdateAdjustment(_ context.Context, adj adjustment.Adjustment) error {
	stored, ok := t.st.adjustments[adj.ID]
	if !ok {
		return adjustment.ErrAdjustmentNotFound
	}
	adj.Number, adj.CreatedBy, adj.CreatedAt = stored.Number, stored.CreatedBy, stored.CreatedAt
	adj.Items = stored.Items
	t.st.adjustments[adj.ID] = adj
	return nil
}

func (t *adjustmentTx) ReplaceItems(_ context.Context, adjustmentID int64, items []adjustment.Item) error {
	adj, ok := t.st.adjustments[adjustmentID]
	if !ok {
		return adjustment.ErrAdjustmentNotFound
	}
	adj.Items = make([]adjustment.Item, len(items))
	for i, it := range items {
		it.ID, it.AdjustmentID = t.st.nextID(), adjustmentID
		adj.Items[i] = it
	}
	t.st.adjustments[adjustmentID] = adj
	return nil
}

func (t *adjustmentTx) DeleteAdjustment(_ context.Context, id int64) error {
	if _, ok := t.st.adjustments[id]; !ok {
		return adjustment.ErrAdjustmentNotFound
	}
	delete(t.st.adjustments, id)
	return nil
}

// TransferRepo adapts the store to transfer.RepositoryPort.
type TransferRepo struct {
	s *Store
}

// Transfers returns the stock transfer repository.
func (s *Store) Transfers() *TransferRepo {
	return &TransferRepo{s: s}
}

type transferTx struct {
	ledgerTx
}

// WithTx runs fn against a working copy of the state.
func (r *TransferRepo) WithTx(ctx context.Context, fn func(context.Context, transfer.TxRepository) error) error {
	return r.s.withTx(ctx, func(st *state) error {
		return fn(ctx, &transferTx{ledgerTx{st: st}})
	})
}

// GetTransfer loads a transfer with its items.
func (r *TransferRepo) GetTransfer(_ context.Context, id int64) (transfer.Transfer, error) {
	var (
		t  transfer.Transfer
		ok bool
	)
	r.s.read(func(st *state) {
		if t, ok = st.transfers[id]; ok {
			t.Items = slices.Clone(t.Items)
		}
	})
	if !ok {
		return transfer.Transfer{}, transfer.ErrTransferNotFound
	}
	return t, nil
}

// ListTransfers lists transfers newest first without items.
func (r *TransferRepo) ListTransfers(_ context.Context, filter transfer.ListFilter) ([]transfer.Transfer, int, error) {
	var out []transfer.Transfer
	r.s.read(func(st *state) {
		for _, t := range st.transfers {
			switch {
			case filter.StoreID != 0 && t.FromStoreID != filter.StoreID && t.ToStoreID != filter.StoreID,
				filter.FromStoreID != 0 && t.FromStoreID != filter.FromStoreID,
				filter.ToStoreID != 0 && t.ToStoreID != filter.ToStoreID,
				filter.Status != "" && t.Status != filter.Status,
				!inRange(t.TransferDate, filter.From, filter.To):
				continue
			}
			t.Items = nil
			out = append(out, t)
		}
	})
	slices.SortFunc(out, func(a, b transfer.Transfer) int {
		return cmp.Or(b.TransferDate.Compare(a.TransferDate), cmp.Compare(b.ID, a.ID))
	})
	return page(out, filter.Page, filter.PerPage), len(out), nil
}

func (t *transferTx) InsertTransfer(_ context.Context, tr transfer.Transfer) (int64, error) {
	tr.ID = t.st.nextID()
	tr.UpdatedAt = tr.CreatedAt
	items := make([]transfer.Item, len(tr.Items))
	for i, it := range tr.Items {
		it.ID, it.TransferID = t.st.nextID(), tr.ID
		it.QuantityShipped, it.QuantityReceived = 0, 0
		items[i] = it
	}
	tr.Items = items
	t.st.transfers[tr.ID] = tr
	return tr.ID, nil
}

func (t *transferTx) LockTransfer(_ context.Context, id int64) (transfer.Transfer, error) {
	tr, ok := t.st.transfers[id]
	if !ok {
		return transfer.Transfer{}, transfer.ErrTransferNotFound
	}
	tr.Items = slices.Clone(tr.Items)
	return tr, nil
}

func (t *transferTx) UpdateTransfer(_ context.Context, tr transfer.Transfer) error {
	stored, ok := t.st.transfers[tr.ID]
	if !ok {
		return transfer.ErrTransferNotFound
	}
	stored.Status, stored.Notes = tr.Status, tr.Notes
	stored.ApprovedBy, stored.ApprovedAt = tr.ApprovedBy, tr.ApprovedAt
	stored.ShippedBy, stored.ShippedAt = tr.ShippedBy, tr.ShippedAt
	stored.ReceivedBy, stored.ReceivedAt = tr.ReceivedBy, tr.ReceivedAt
	stored.UpdatedAt = tr.UpdatedAt
	t.st.transfers[tr.ID] = stored
	return nil
}

func (t *transferTx) UpdateItemQuantities(_ context.Context, item transfer.Item) error {
	for id, tr := range t.st.transfers {
		for i := range tr.Items {
			if tr.Items[i].ID == item.ID {
				tr.Items[i].QuantityShipped = item.QuantityShipped
				tr.Items[i].QuantityReceived = item.QuantityReceived
				t.st.transfers[id] = tr
				return nil
			}
		}
	}
	return transfer.ErrTransferNotFound
}

var (
	_ procurement.RepositoryPort = (*ProcurementRepo)(nil)
	_ adjustment.RepositoryPort  = (*AdjustmentRepo)(nil)
	_ transfer.RepositoryPort    = (*TransferRepo)(nil)
)
