package transfer_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retailstock/internal/inventory"
	"github.com/odyssey-erp/retailstock/internal/shared"
	"github.com/odyssey-erp/retailstock/internal/store/memory"
	"github.com/odyssey-erp/retailstock/internal/transfer"
)

const (
	storeA  = int64(1)
	storeB  = int64(2)
	closed  = int64(3)
	prodX   = int64(10)
	prodY   = int64(11)
	planner = int64(70)
	shipper = int64(71)
	keeper  = int64(72)
)

type fixture struct {
	svc    *transfer.Service
	ledger *inventory.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	store.AddStore(inventory.Store{ID: storeA, Name: "Alpha", Active: true})
	store.AddStore(inventory.Store{ID: storeB, Name: "Bravo", Active: true})
	store.AddStore(inventory.Store{ID: closed, Name: "Closed", Active: false})
	store.AddProduct(inventory.Product{ID: prodX, SKU: "X", Name: "Widget", PurchasePrice: decimal.NewFromInt(5), SellingPrice: decimal.NewFromInt(8), MinimumStock: 5, Active: true})
	store.AddProduct(inventory.Product{ID: prodY, SKU: "Y", Name: "Gadget", PurchasePrice: decimal.NewFromInt(7), SellingPrice: decimal.NewFromInt(11), Active: true})

	ledger := inventory.NewService(store.Inventory(), nil, nil, nil)
	ledger.SetClock(func() time.Time { return time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC) })
	svc := transfer.NewService(store.Transfers(), ledger, transfer.Options{
		Approvals:   &shared.MemoryApprovals{},
		Audit:       &shared.MemoryAudit{},
		Idempotency: shared.NewMemoryIdempotency(),
	})
	return fixture{svc: svc, ledger: ledger}
}

func (f fixture) stock(t *testing.T, storeID, productID, qty int64, cost string) {
	t.Helper()
	_, err := f.ledger.ReceivePurchase(context.Background(), inventory.ReceivePurchaseInput{
		StoreID: storeID, ProductID: productID, Quantity: qty, UnitCost: decimal.RequireFromString(cost),
	})
	require.NoError(t, err)
}

func (f fixture) quantity(t *testing.T, storeID, productID int64) int64 {
	t.Helper()
	rec, err := f.ledger.GetRecord(context.Background(), storeID, productID)
	if shared.IsNotFound(err) {
		return 0
	}
	require.NoError(t, err)
	return rec.Quantity
}

func qty(n int64) *int64 { return &n }

func TestShipAndReceiveShort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, storeA, prodX, 50, "6")

	tr, err := f.svc.Create(ctx, transfer.CreateInput{
		FromStoreID: storeA,
		ToStoreID:   storeB,
		Items:       []transfer.ItemInput{{ProductID: prodX, Quantity: 20}},
		ActorID:     planner,
	})
	require.NoError(t, err)
	require.Equal(t, transfer.StatusPending, tr.Status)
	require.Equal(t, "TRF202607150001", tr.Number)
	require.True(t, tr.Items[0].UnitCost.Equal(decimal.NewFromInt(6)))
	require.True(t, tr.TotalValue.Equal(decimal.NewFromInt(120)))
	require.Equal(t, int64(50), f.quantity(t, storeA, prodX), "creating a transfer reserves nothing")

	tr, err = f.svc.Ship(ctx, transfer.ShipInput{ID: tr.ID, ActorID: shipper})
	require.NoError(t, err)
	require.Equal(t, transfer.StatusInTransit, tr.Status)
	require.Equal(t, int64(20), tr.Items[0].QuantityShipped)
	require.Equal(t, int64(30), f.quantity(t, storeA, prodX))

	out, _, err := f.ledger.MovementHistory(ctx, inventory.MovementFilter{Type: inventory.MovementTransferOut})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(-20), out[0].QuantityChange)

	tr, err = f.svc.Receive(ctx, transfer.ReceiveInput{
		ID:      tr.ID,
		Items:   []transfer.LineQuantity{{ItemID: tr.Items[0].ID, Quantity: qty(18)}},
		Notes:   "two crushed",
		ActorID: keeper,
	})
	require.NoError(t, err)
	require.Equal(t, transfer.StatusCompleted, tr.Status)
	require.Equal(t, int64(18), tr.Items[0].QuantityReceived)
	require.Contains(t, tr.Notes, "Received: two crushed")
	require.Equal(t, keeper, *tr.ReceivedBy)

	dest, err := f.ledger.GetRecord(ctx, storeB, prodX)
	require.NoError(t, err)
	require.Equal(t, int64(18), dest.Quantity)
	require.Equal(t, int64(5), dest.MinimumStock)
	require.True(t, dest.AverageCost.Equal(decimal.NewFromInt(6)))
	require.NotNil(t, dest.LastRestockDate)

	in, _, err := f.ledger.MovementHistory(ctx, inventory.MovementFilter{Type: inventory.MovementTransferIn})
	require.NoError(t, err)
	require.Len(t, in, 1)
	require.Equal(t, inventory.TransferOrigin(tr.ID), in[0].Origin)

	for _, store := range []int64{storeA, storeB} {
		report, err := f.ledger.VerifyChain(ctx, store, prodX)
		require.NoError(t, err)
		require.True(t, report.Consistent, report.Problem)
	}
}

func TestShippedUnitsAreConserved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, storeA, prodX, 30, "5")
	f.stock(t, storeA, prodY, 10, "7")
	f.stock(t, storeB, prodY, 4, "9")

	tr, err := f.svc.Create(ctx, transfer.CreateInput{
		FromStoreID: storeA,
		ToStoreID:   storeB,
		Items: []transfer.ItemInput{
			{ProductID: prodY, Quantity: 6},
			{ProductID: prodX, Quantity: 12},
		},
		ActorID: planner,
	})
	require.NoError(t, err)
	byProduct := map[int64]transfer.Item{}
	for _, it := range tr.Items {
		byProduct[it.ProductID] = it
	}

	_, err = f.svc.Ship(ctx, transfer.ShipInput{
		ID:      tr.ID,
		Items:   []transfer.LineQuantity{{ItemID: byProduct[prodX].ID, Quantity: qty(10)}},
		ActorID: shipper,
	})
	require.NoError(t, err)
	require.Equal(t, int64(20), f.quantity(t, storeA, prodX))
	require.Equal(t, int64(4), f.quantity(t, storeA, prodY))

	_, err = f.svc.Receive(ctx, transfer.ReceiveInput{
		ID: tr.ID,
		Items: []transfer.LineQuantity{
			{ItemID: byProduct[prodX].ID},
			{ItemID: byProduct[prodY].ID, Quantity: qty(6)},
		},
		ActorID: keeper,
	})
	require.NoError(t, err)

	require.Equal(t, int64(30), f.quantity(t, storeA, prodX)+f.quantity(t, storeB, prodX))
	require.Equal(t, int64(14), f.quantity(t, storeA, prodY)+f.quantity(t, storeB, prodY))

	dest, err := f.ledger.GetRecord(ctx, storeB, prodY)
	require.NoError(t, err)
	require.True(t, dest.AverageCost.Equal(decimal.NewFromInt(9)), "an existing destination cost is kept")
}

func TestShipRejectsMoreThanRequested(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, storeA, prodX, 50, "6")
	tr, err := f.svc.Create(ctx, transfer.CreateInput{FromStoreID: storeA, ToStoreID: storeB, ActorID: planner,
		Items: []transfer.ItemInput{{ProductID: prodX, Quantity: 5}}})
	require.NoError(t, err)

	_, err = f.svc.Ship(ctx, transfer.ShipInput{ID: tr.ID, ActorID: shipper,
		Items: []transfer.LineQuantity{{ItemID: tr.Items[0].ID, Quantity: qty(6)}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Ship(ctx, transfer.ShipInput{ID: tr.ID, ActorID: shipper,
		Items: []transfer.LineQuantity{{ItemID: tr.Items[0].ID, Quantity: qty(0)}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Ship(ctx, transfer.ShipInput{ID: tr.ID, ActorID: shipper,
		Items: []transfer.LineQuantity{{ItemID: 4242}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	require.Equal(t, int64(50), f.quantity(t, storeA, prodX))
	got, err := f.svc.Get(ctx, tr.ID)
	require.NoError(t, err)
	require.Equal(t, transfer.StatusPending, got.Status)
}

func TestShipFailsWhenSourceSoldOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, storeA, prodX, 10, "6")
	f.stock(t, storeA, prodY, 10, "7")
	tr, err := f.svc.Create(ctx, transfer.CreateInput{FromStoreID: storeA, ToStoreID: storeB, ActorID: planner,
		Items: []transfer.ItemInput{{ProductID: prodX, Quantity: 5}, {ProductID: prodY, Quantity: 8}}})
	require.NoError(t, err)

	_, err = f.ledger.RecordSale(ctx, inventory.SaleInput{StoreID: storeA, ProductID: prodY, Quantity: 5, SaleID: 1})
	require.NoError(t, err)

	_, err = f.svc.Ship(ctx, transfer.ShipInput{ID: tr.ID, ActorID: shipper})
	require.ErrorIs(t, err, shared.ErrNegativeStock)
	require.Equal(t, int64(10), f.quantity(t, storeA, prodX), "the whole shipment rolls back")
}

func TestReceiveRejectsMoreThanShipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, storeA, prodX, 10, "6")
	tr, err := f.svc.Create(ctx, transfer.CreateInput{FromStoreID: storeA, ToStoreID: storeB, ActorID: planner,
		Items: []transfer.ItemInput{{ProductID: prodX, Quantity: 4}}})
	require.NoError(t, err)
	tr, err = f.svc.Ship(ctx, transfer.ShipInput{ID: tr.ID, ActorID: shipper})
	require.NoError(t, err)

	_, err = f.svc.Receive(ctx, transfer.ReceiveInput{ID: tr.ID, ActorID: keeper,
		Items: []transfer.LineQuantity{{ItemID: tr.Items[0].ID, Quantity: qty(5)}}})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, int64(0), f.quantity(t, storeB, prodX))

	got, err := f.svc.Get(ctx, tr.ID)
	require.NoError(t, err)
	require.Equal(t, transfer.StatusInTransit, got.Status)
}

func TestReceiveRequiresLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, storeA, prodX, 10, "6")
	tr, err := f.svc.Create(ctx, transfer.CreateInput{FromStoreID: storeA, ToStoreID: storeB, ActorID: planner,
		Items: []transfer.ItemInput{{ProductID: prodX, Quantity: 4}}})
	require.NoError(t, err)
	tr, err = f.svc.Ship(ctx, transfer.ShipInput{ID: tr.ID, ActorID: shipper})
	require.NoError(t, err)

	_, err = f.svc.Receive(ctx, transfer.ReceiveInput{ID: tr.ID, ActorID: keeper})
	require.ErrorIs(t, err, shared.ErrValidation)

	got, err := f.svc.Get(ctx, tr.ID)
	require.NoError(t, err)
	require.Equal(t, transfer.StatusInTransit, got.Status)
	require.Zero(t, got.Items[0].QuantityReceived)
}

func TestReceiveIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, storeA, prodX, 10, "6")
	tr, err := f.svc.Create(ctx, transfer.CreateInput{FromStoreID: storeA, ToStoreID: storeB, ActorID: planner,
		Items: []transfer.ItemInput{{ProductID: prodX, Quantity: 4}}})
	require.NoError(t, err)
	tr, err = f.svc.Ship(ctx, transfer.ShipInput{ID: tr.ID, ActorID: shipper, IdempotencyKey: "truck-1"})
	require.NoError(t, err)

	in := transfer.ReceiveInput{ID: tr.ID, ActorID: keeper, IdempotencyKey: "gate-3",
		Items: []transfer.LineQuantity{{ItemID: tr.Items[0].ID}}}
	_, err = f.svc.Receive(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.Receive(ctx, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, int64(4), f.quantity(t, storeB, prodX))
}

func TestDraftSubmitApproveCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, storeA, prodX, 10, "6")

	draft, err := f.svc.Create(ctx, transfer.CreateInput{FromStoreID: storeA, ToStoreID: storeB, SaveAsDraft: true,
		ActorID: planner, Items: []transfer.ItemInput{{ProductID: prodX, Quantity: 3}}})
	require.NoError(t, err)
	require.Equal(t, transfer.StatusDraft, draft.Status)

	_, err = f.svc.Ship(ctx, transfer.ShipInput{ID: draft.ID, ActorID: shipper})
	require.ErrorIs(t, err, shared.ErrIllegalTransition)

	pending, err := f.svc.Submit(ctx, draft.ID, planner)
	require.NoError(t, err)
	require.Equal(t, transfer.StatusPending, pending.Status)

	approved, err := f.svc.Approve(ctx, draft.ID, shipper)
	require.NoError(t, err)
	require.Equal(t, transfer.StatusPending, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	_, err = f.svc.Approve(ctx, draft.ID, shipper)
	require.ErrorIs(t, err, shared.ErrIllegalTransition)

	cancelled, err := f.svc.Cancel(ctx, draft.ID, planner, "wrong store")
	require.NoError(t, err)
	require.Equal(t, transfer.StatusCancelled, cancelled.Status)
	require.Contains(t, cancelled.Notes, "Cancelled: wrong store")
	require.Equal(t, int64(10), f.quantity(t, storeA, prodX))

	_, err = f.svc.Submit(ctx, draft.ID, planner)
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
}

func TestCancelAfterShipIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, storeA, prodX, 10, "6")
	tr, err := f.svc.Create(ctx, transfer.CreateInput{FromStoreID: storeA, ToStoreID: storeB, ActorID: planner,
		Items: []transfer.ItemInput{{ProductID: prodX, Quantity: 3}}})
	require.NoError(t, err)
	_, err = f.svc.Ship(ctx, transfer.ShipInput{ID: tr.ID, ActorID: shipper})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, tr.ID, planner, "")
	var te *shared.TransitionError
	require.ErrorAs(t, err, &te)
	require.Equal(t, string(transfer.StatusInTransit), te.Status)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, storeA, prodX, 2, "6")

	_, err := f.svc.Create(ctx, transfer.CreateInput{FromStoreID: storeA, ToStoreID: storeA,
		Items: []transfer.ItemInput{{ProductID: prodX, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(ctx, transfer.CreateInput{FromStoreID: storeA, ToStoreID: closed,
		Items: []transfer.ItemInput{{ProductID: prodX, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(ctx, transfer.CreateInput{FromStoreID: storeA, ToStoreID: storeB,
		Items: []transfer.ItemInput{{ProductID: prodX, Quantity: 3}}})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	_, err = f.svc.Create(ctx, transfer.CreateInput{FromStoreID: storeA, ToStoreID: storeB,
		Items: []transfer.ItemInput{{ProductID: prodY, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	list, _, err := f.svc.List(ctx, transfer.ListFilter{StoreID: storeB})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestListMatchesEitherSide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, storeA, prodX, 10, "6")
	f.stock(t, storeB, prodX, 10, "6")
	_, err := f.svc.Create(ctx, transfer.CreateInput{FromStoreID: storeA, ToStoreID: storeB, ActorID: planner,
		Items: []transfer.ItemInput{{ProductID: prodX, Quantity: 1}}})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, transfer.CreateInput{FromStoreID: storeB, ToStoreID: storeA, ActorID: planner,
		Items: []transfer.ItemInput{{ProductID: prodX, Quantity: 1}}})
	require.NoError(t, err)

	either, page, err := f.svc.List(ctx, transfer.ListFilter{StoreID: storeA})
	require.NoError(t, err)
	require.Len(t, either, 2)
	require.Equal(t, 2, page.Total)

	outbound, _, err := f.svc.List(ctx, transfer.ListFilter{FromStoreID: storeB})
	require.NoError(t, err)
	require.Len(t, outbound, 1)
	require.Equal(t, storeA, outbound[0].ToStoreID)
}
