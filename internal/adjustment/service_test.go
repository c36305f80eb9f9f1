package adjustment_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retailstock/internal/adjustment"
	"github.com/odyssey-erp/retailstock/internal/inventory"
	"github.com/odyssey-erp/retailstock/internal/shared"
	"github.com/odyssey-erp/retailstock/internal/store/memory"
)

const (
	storeID = int64(1)
	prodA   = int64(10)
	prodB   = int64(11)
	clerk   = int64(50)
	manager = int64(51)
)

type fixture struct {
	svc       *adjustment.Service
	ledger    *inventory.Service
	approvals *shared.MemoryApprovals
}

func newFixture(t *testing.T, policy inventory.CostFallback) fixture {
	t.Helper()
	store := memory.New()
	store.AddStore(inventory.Store{ID: storeID, Name: "Main", Active: true})
	store.AddProduct(inventory.Product{ID: prodA, SKU: "A", Name: "Alpha", PurchasePrice: decimal.NewFromInt(6), SellingPrice: decimal.NewFromInt(9), Active: true})
	store.AddProduct(inventory.Product{ID: prodB, SKU: "B", Name: "Beta", PurchasePrice: decimal.NewFromInt(3), SellingPrice: decimal.NewFromInt(5), Active: true})

	ledger := inventory.NewService(store.Inventory(), nil, nil, nil)
	ledger.SetClock(func() time.Time { return time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC) })
	approvals := &shared.MemoryApprovals{}
	svc := adjustment.NewService(store.Adjustments(), ledger, adjustment.Options{
		CostFallback: policy,
		Approvals:    approvals,
		Audit:        &shared.MemoryAudit{},
	})
	return fixture{svc: svc, ledger: ledger, approvals: approvals}
}

func (f fixture) stock(t *testing.T, productID, qty int64, cost string) {
	t.Helper()
	_, err := f.ledger.ReceivePurchase(context.Background(), inventory.ReceivePurchaseInput{
		StoreID: storeID, ProductID: productID, Quantity: qty, UnitCost: decimal.RequireFromString(cost),
	})
	require.NoError(t, err)
}

func TestCreateRejectsNegativeResult(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.stock(t, prodA, 10, "4")

	_, err := f.svc.Create(ctx, adjustment.CreateInput{
		StoreID: storeID,
		Type:    adjustment.TypeDecrease,
		Reason:  adjustment.ReasonDamaged,
		Items:   []adjustment.ItemInput{{ProductID: prodA, Quantity: 30}},
		ActorID: clerk,
	})
	var stockErr *shared.StockError
	require.ErrorAs(t, err, &stockErr)
	require.ErrorIs(t, err, shared.ErrNegativeStock)
	require.Equal(t, int64(10), stockErr.Available)
	require.Equal(t, int64(30), stockErr.Requested)

	list, page, err := f.svc.List(ctx, adjustment.ListFilter{})
	require.NoError(t, err)
	require.Empty(t, list)
	require.Equal(t, 0, page.Total)
}

func TestCreateSnapshotsRecords(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.stock(t, prodA, 10, "4")

	adj, err := f.svc.Create(ctx, adjustment.CreateInput{
		StoreID: storeID,
		Type:    adjustment.TypeDecrease,
		Reason:  adjustment.ReasonExpired,
		Items:   []adjustment.ItemInput{{ProductID: prodA, Quantity: 3, Notes: "shelf 2"}},
		ActorID: clerk,
	})
	require.NoError(t, err)
	require.Equal(t, adjustment.StatusDraft, adj.Status)
	require.Equal(t, "ADJ202606010001", adj.Number)
	require.Len(t, adj.Items, 1)

	it := adj.Items[0]
	require.Equal(t, int64(10), it.CurrentQuantity)
	require.Equal(t, int64(-3), it.AdjustedQuantity)
	require.Equal(t, int64(7), it.NewQuantity)
	require.True(t, it.UnitCost.Equal(decimal.NewFromInt(4)), "average cost wins over catalog prices")
	require.True(t, adj.TotalValueImpact.Equal(decimal.NewFromInt(-12)))

	rec, err := f.ledger.GetRecord(ctx, storeID, prodA)
	require.NoError(t, err)
	require.Equal(t, int64(10), rec.Quantity, "drafts never move stock")
}

func TestCostFallbackPolicy(t *testing.T) {
	ctx := context.Background()
	in := adjustment.CreateInput{
		StoreID: storeID,
		Type:    adjustment.TypeIncrease,
		Reason:  adjustment.ReasonFound,
		Items:   []adjustment.ItemInput{{ProductID: prodB, Quantity: 2}},
		ActorID: clerk,
	}

	selling, err := newFixture(t, "").svc.Create(ctx, in)
	require.NoError(t, err)
	require.True(t, selling.Items[0].UnitCost.Equal(decimal.NewFromInt(5)))
	require.Equal(t, int64(0), selling.Items[0].CurrentQuantity)

	purchase, err := newFixture(t, inventory.CostFallbackPurchasePrice).svc.Create(ctx, in)
	require.NoError(t, err)
	require.True(t, purchase.Items[0].UnitCost.Equal(decimal.NewFromInt(3)))

	in.Items[0].UnitCost = decimal.NewNullDecimal(decimal.RequireFromString("1.23456"))
	explicit, err := newFixture(t, "").svc.Create(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "1.2346", explicit.Items[0].UnitCost.String())
}

func TestApprovePostsMovements(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.stock(t, prodA, 10, "4")

	adj, err := f.svc.Create(ctx, adjustment.CreateInput{
		StoreID: storeID,
		Type:    adjustment.TypeIncrease,
		Reason:  adjustment.ReasonStockTake,
		Items: []adjustment.ItemInput{
			{ProductID: prodB, Quantity: 4},
			{ProductID: prodA, Quantity: 2},
		},
		ActorID: clerk,
	})
	require.NoError(t, err)

	adj, err = f.svc.Approve(ctx, adj.ID, manager)
	require.NoError(t, err)
	require.Equal(t, adjustment.StatusApproved, adj.Status)
	require.Equal(t, manager, *adj.ApprovedBy)
	require.NotNil(t, adj.ApprovedAt)

	recA, err := f.ledger.GetRecord(ctx, storeID, prodA)
	require.NoError(t, err)
	require.Equal(t, int64(12), recA.Quantity)
	require.True(t, recA.AverageCost.Equal(decimal.NewFromInt(4)), "adjustments do not change the average")

	recB, err := f.ledger.GetRecord(ctx, storeID, prodB)
	require.NoError(t, err)
	require.Equal(t, int64(4), recB.Quantity)

	history, _, err := f.ledger.MovementHistory(ctx, inventory.MovementFilter{Type: inventory.MovementAdjustment})
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, m := range history {
		require.Equal(t, inventory.AdjustmentOrigin(adj.ID), m.Origin)
		require.Equal(t, manager, m.ActorID)
	}

	_, err = f.svc.Approve(ctx, adj.ID, manager)
	require.ErrorIs(t, err, shared.ErrIllegalTransition)

	logs, err := f.approvals.List(ctx, "stock_adjustment", shared.ApprovalRef("stock_adjustment", adj.ID))
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestApproveDetectsStaleSnapshot(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.stock(t, prodA, 10, "4")

	adj, err := f.svc.Create(ctx, adjustment.CreateInput{
		StoreID: storeID,
		Type:    adjustment.TypeDecrease,
		Reason:  adjustment.ReasonLost,
		Items:   []adjustment.ItemInput{{ProductID: prodA, Quantity: 2}},
		ActorID: clerk,
	})
	require.NoError(t, err)

	_, err = f.ledger.RecordSale(ctx, inventory.SaleInput{StoreID: storeID, ProductID: prodA, Quantity: 1, SaleID: 8})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, adj.ID, manager)
	require.ErrorIs(t, err, shared.ErrConcurrentModification)

	stale, err := f.svc.Get(ctx, adj.ID)
	require.NoError(t, err)
	require.Equal(t, adjustment.StatusDraft, stale.Status)

	refreshed, err := f.svc.Update(ctx, adjustment.UpdateInput{
		ID:      adj.ID,
		Type:    adjustment.TypeDecrease,
		Reason:  adjustment.ReasonLost,
		Items:   []adjustment.ItemInput{{ProductID: prodA, Quantity: 2}},
		ActorID: clerk,
	})
	require.NoError(t, err)
	require.Equal(t, int64(9), refreshed.Items[0].CurrentQuantity)

	_, err = f.svc.Approve(ctx, adj.ID, manager)
	require.NoError(t, err)
	rec, err := f.ledger.GetRecord(ctx, storeID, prodA)
	require.NoError(t, err)
	require.Equal(t, int64(7), rec.Quantity)
}

func TestApproveStaleSecondItemLeavesFirstUntouched(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.stock(t, prodA, 10, "4")
	f.stock(t, prodB, 8, "2")

	adj, err := f.svc.Create(ctx, adjustment.CreateInput{
		StoreID: storeID,
		Type:    adjustment.TypeDecrease,
		Reason:  adjustment.ReasonDamaged,
		Items: []adjustment.ItemInput{
			{ProductID: prodA, Quantity: 2},
			{ProductID: prodB, Quantity: 3},
		},
		ActorID: clerk,
	})
	require.NoError(t, err)

	// Beta is approved after Alpha, so Alpha's movement is already written when Beta fails.
	_, err = f.ledger.RecordSale(ctx, inventory.SaleInput{StoreID: storeID, ProductID: prodB, Quantity: 1, SaleID: 9})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, adj.ID, manager)
	require.ErrorIs(t, err, shared.ErrConcurrentModification)

	recA, err := f.ledger.GetRecord(ctx, storeID, prodA)
	require.NoError(t, err)
	require.Equal(t, int64(10), recA.Quantity)
	recB, err := f.ledger.GetRecord(ctx, storeID, prodB)
	require.NoError(t, err)
	require.Equal(t, int64(7), recB.Quantity)

	history, _, err := f.ledger.MovementHistory(ctx, inventory.MovementFilter{Type: inventory.MovementAdjustment})
	require.NoError(t, err)
	require.Empty(t, history)

	stale, err := f.svc.Get(ctx, adj.ID)
	require.NoError(t, err)
	require.Equal(t, adjustment.StatusDraft, stale.Status)
	require.Nil(t, stale.ApprovedBy)
}

func TestRejectAndDelete(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	in := adjustment.CreateInput{
		StoreID: storeID,
		Type:    adjustment.TypeIncrease,
		Reason:  adjustment.ReasonOther,
		Items:   []adjustment.ItemInput{{ProductID: prodA, Quantity: 1}},
		ActorID: clerk,
	}

	adj, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	adj, err = f.svc.Reject(ctx, adj.ID, manager, "count again")
	require.NoError(t, err)
	require.Equal(t, adjustment.StatusRejected, adj.Status)
	require.Contains(t, adj.Notes, "Rejected: count again")
	require.ErrorIs(t, f.svc.Delete(ctx, adj.ID, clerk), shared.ErrIllegalTransition)

	draft, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, draft.ID, clerk))
	_, err = f.svc.Get(ctx, draft.ID)
	require.ErrorIs(t, err, adjustment.ErrAdjustmentNotFound)

	_, err = f.ledger.GetRecord(ctx, storeID, prodA)
	require.ErrorIs(t, err, inventory.ErrRecordNotFound)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.svc.Create(ctx, adjustment.CreateInput{StoreID: storeID, Type: "sideways", Reason: adjustment.ReasonOther,
		Items: []adjustment.ItemInput{{ProductID: prodA, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(ctx, adjustment.CreateInput{StoreID: storeID, Type: adjustment.TypeIncrease, Reason: adjustment.ReasonOther,
		Items: []adjustment.ItemInput{{ProductID: prodA, Quantity: 1}, {ProductID: prodA, Quantity: 2}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(ctx, adjustment.CreateInput{StoreID: 42, Type: adjustment.TypeIncrease, Reason: adjustment.ReasonOther,
		Items: []adjustment.ItemInput{{ProductID: prodA, Quantity: 1}}})
	require.ErrorIs(t, err, inventory.ErrStoreNotFound)

	_, _, err = f.svc.List(ctx, adjustment.ListFilter{Reason: "theft"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSignedQuantity(t *testing.T) {
	require.Equal(t, int64(5), adjustment.SignedQuantity(adjustment.TypeIncrease, 5))
	require.Equal(t, int64(-5), adjustment.SignedQuantity(adjustment.TypeDecrease, 5))
	require.Equal(t, int64(-5), adjustment.SignedQuantity(adjustment.TypeDecrease, -5))
}
