package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retailstock/internal/inventory"
	"github.com/odyssey-erp/retailstock/internal/shared"
	"github.com/odyssey-erp/retailstock/internal/store/memory"
)

const (
	storeA   = int64(1)
	storeB   = int64(2)
	prodX    = int64(10)
	prodTea  = int64(11)
	prodSalt = int64(12)
)

type countingMetrics struct {
	recorded map[inventory.MovementType]int
	rejected map[string]int
}

func (m *countingMetrics) MovementRecorded(t inventory.MovementType) {
	m.recorded[t]++
}

func (m *countingMetrics) MovementRejected(reason string) {
	m.rejected[reason]++
}

func newFixture(t *testing.T) (*inventory.Service, *memory.Store, *countingMetrics) {
	t.Helper()
	store := memory.New()
	store.AddStore(inventory.Store{ID: storeA, Name: "Alpha", Active: true})
	store.AddStore(inventory.Store{ID: storeB, Name: "Bravo", Active: true})
	store.AddProduct(inventory.Product{ID: prodX, SKU: "X-1", Name: "Widget", Category: "tools",
		PurchasePrice: decimal.NewFromInt(9), SellingPrice: decimal.NewFromInt(15), MinimumStock: 10, Active: true})
	store.AddProduct(inventory.Product{ID: prodTea, SKU: "TEA-25", Name: "Tea", Category: "beverage",
		PurchasePrice: decimal.NewFromInt(4), SellingPrice: decimal.NewFromInt(6), MinimumStock: 20, Active: true})
	store.AddProduct(inventory.Product{ID: prodSalt, SKU: "SALT-1", Name: "Salt", Category: "grocery",
		PurchasePrice: decimal.NewFromInt(2), SellingPrice: decimal.NewFromInt(3), Active: true})
	metrics := &countingMetrics{recorded: map[inventory.MovementType]int{}, rejected: map[string]int{}}
	svc := inventory.NewService(store.Inventory(), &shared.MemoryAudit{}, metrics, nil)
	return svc, store, metrics
}

func receive(t *testing.T, svc *inventory.Service, storeID, productID, qty int64, cost string) inventory.Movement {
	t.Helper()
	m, err := svc.ReceivePurchase(context.Background(), inventory.ReceivePurchaseInput{
		StoreID: storeID, ProductID: productID, ActorID: 7, Quantity: qty, UnitCost: decimal.RequireFromString(cost),
	})
	require.NoError(t, err)
	return m
}

func TestReceivePurchaseFirstReceipt(t *testing.T) {
	svc, _, metrics := newFixture(t)
	ctx := context.Background()

	m := receive(t, svc, storeA, prodX, 100, "10")
	require.Equal(t, inventory.MovementPurchase, m.Type)
	require.Equal(t, int64(0), m.QuantityBefore)
	require.Equal(t, int64(100), m.QuantityChange)
	require.Equal(t, int64(100), m.QuantityAfter)

	rec, err := svc.GetRecord(ctx, storeA, prodX)
	require.NoError(t, err)
	require.Equal(t, int64(100), rec.Quantity)
	require.True(t, rec.AverageCost.Equal(decimal.NewFromInt(10)))
	require.True(t, rec.LastCost.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, rec.LastRestockDate)
	require.Equal(t, int64(10), rec.MinimumStock, "new records inherit the product minimum")

	history, page, err := svc.MovementHistory(ctx, inventory.MovementFilter{StoreID: storeA, ProductID: prodX})
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, 1, page.Total)
	require.Equal(t, 1, metrics.recorded[inventory.MovementPurchase])
}

func TestReceivePurchaseWeightedAverage(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	receive(t, svc, storeA, prodX, 100, "10")
	receive(t, svc, storeA, prodX, 50, "20")

	rec, err := svc.GetRecord(ctx, storeA, prodX)
	require.NoError(t, err)
	require.Equal(t, int64(150), rec.Quantity)
	require.Equal(t, "13.3333", rec.AverageCost.StringFixed(inventory.CostPrecision))
	require.True(t, rec.LastCost.Equal(decimal.NewFromInt(20)))

	again, err := svc.RecomputeAverageCost(ctx, storeA, prodX)
	require.NoError(t, err)
	require.True(t, again.Equal(rec.AverageCost))
}

func TestAverageIgnoresOutboundMovements(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	receive(t, svc, storeA, prodX, 10, "8")
	_, err := svc.RecordSale(ctx, inventory.SaleInput{StoreID: storeA, ProductID: prodX, Quantity: 4, SaleID: 55})
	require.NoError(t, err)
	_, err = svc.RecordReturn(ctx, inventory.ReturnInput{StoreID: storeA, ProductID: prodX, Quantity: 1, ReturnID: 9,
		UnitCost: decimal.NewNullDecimal(decimal.NewFromInt(100))})
	require.NoError(t, err)

	avg, err := svc.RecomputeAverageCost(ctx, storeA, prodX)
	require.NoError(t, err)
	require.True(t, avg.Equal(decimal.NewFromInt(8)))

	rec, err := svc.GetRecord(ctx, storeA, prodX)
	require.NoError(t, err)
	require.Equal(t, int64(7), rec.Quantity)
}

func TestRecomputeWithoutPurchasesFallsBackToCatalog(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	_, err := svc.Append(ctx, inventory.AppendInput{StoreID: storeA, ProductID: prodTea, Type: inventory.MovementIn,
		QuantityChange: 5, Origin: inventory.ManualOrigin()})
	require.NoError(t, err)

	avg, err := svc.RecomputeAverageCost(ctx, storeA, prodTea)
	require.NoError(t, err)
	require.True(t, avg.Equal(decimal.NewFromInt(4)))

	_, err = svc.RecomputeAverageCost(ctx, storeB, prodTea)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAppendRejectsNegativeStock(t *testing.T) {
	svc, _, metrics := newFixture(t)
	ctx := context.Background()

	_, err := svc.Append(ctx, inventory.AppendInput{StoreID: storeA, ProductID: prodX, Type: inventory.MovementOut,
		QuantityChange: -1, Origin: inventory.ManualOrigin()})
	require.ErrorIs(t, err, shared.ErrNegativeStock)

	receive(t, svc, storeA, prodX, 3, "5")
	_, err = svc.Append(ctx, inventory.AppendInput{StoreID: storeA, ProductID: prodX, Type: inventory.MovementOut,
		QuantityChange: -4, Origin: inventory.ManualOrigin()})
	var stockErr *shared.StockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(3), stockErr.Available)
	require.Equal(t, int64(4), stockErr.Requested)
	require.Equal(t, 2, metrics.rejected["negative_stock"])

	rec, err := svc.GetRecord(ctx, storeA, prodX)
	require.NoError(t, err)
	require.Equal(t, int64(3), rec.Quantity)
}

func TestAppendValidation(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	cases := map[string]inventory.AppendInput{
		"zero change":    {StoreID: storeA, ProductID: prodX, Type: inventory.MovementIn, Origin: inventory.ManualOrigin()},
		"unknown type":   {StoreID: storeA, ProductID: prodX, Type: "gift", QuantityChange: 1, Origin: inventory.ManualOrigin()},
		"origin no id":   {StoreID: storeA, ProductID: prodX, Type: inventory.MovementIn, QuantityChange: 1, Origin: inventory.Origin{Kind: inventory.OriginPurchaseOrder}},
		"negative cost":  {StoreID: storeA, ProductID: prodX, Type: inventory.MovementIn, QuantityChange: 1, Origin: inventory.ManualOrigin(), UnitCost: decimal.NewNullDecimal(decimal.NewFromInt(-1))},
		"missing store":  {ProductID: prodX, Type: inventory.MovementIn, QuantityChange: 1, Origin: inventory.ManualOrigin()},
		"missing origin": {StoreID: storeA, ProductID: prodX, Type: inventory.MovementIn, QuantityChange: 1},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Append(ctx, in)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}

	_, err := svc.Append(ctx, inventory.AppendInput{StoreID: storeA, ProductID: 999, Type: inventory.MovementIn,
		QuantityChange: 1, Origin: inventory.ManualOrigin()})
	require.ErrorIs(t, err, inventory.ErrProductNotFound)
}

func TestLedgerChainStaysConsistent(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	receive(t, svc, storeA, prodX, 20, "5")
	_, err := svc.RecordSale(ctx, inventory.SaleInput{StoreID: storeA, ProductID: prodX, Quantity: 6, SaleID: 1})
	require.NoError(t, err)
	_, err = svc.Append(ctx, inventory.AppendInput{StoreID: storeA, ProductID: prodX, Type: inventory.MovementAdjustment,
		QuantityChange: -2, Origin: inventory.AdjustmentOrigin(3)})
	require.NoError(t, err)
	_, err = svc.RecordReturn(ctx, inventory.ReturnInput{StoreID: storeA, ProductID: prodX, Quantity: 1, ReturnID: 4})
	require.NoError(t, err)

	report, err := svc.VerifyChain(ctx, storeA, prodX)
	require.NoError(t, err)
	require.True(t, report.Consistent, report.Problem)
	require.Equal(t, 4, report.Movements)
	require.Equal(t, int64(13), report.LedgerQuantity)
	require.Equal(t, int64(13), report.RecordQuantity)

	history, _, err := svc.MovementHistory(ctx, inventory.MovementFilter{StoreID: storeA, ProductID: prodX})
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i := 0; i+1 < len(history); i++ {
		newer, older := history[i], history[i+1]
		require.Equal(t, older.QuantityAfter, newer.QuantityBefore)
		require.Equal(t, newer.QuantityBefore+newer.QuantityChange, newer.QuantityAfter)
	}
}

func TestDriftedRecordBlocksAppend(t *testing.T) {
	svc, store, metrics := newFixture(t)
	ctx := context.Background()

	receive(t, svc, storeA, prodX, 10, "5")
	store.Tamper(storeA, prodX, 12)

	report, err := svc.VerifyChain(ctx, storeA, prodX)
	require.NoError(t, err)
	require.False(t, report.Consistent)
	require.Equal(t, int64(10), report.LedgerQuantity)
	require.Equal(t, int64(12), report.RecordQuantity)

	_, err = svc.RecordSale(ctx, inventory.SaleInput{StoreID: storeA, ProductID: prodX, Quantity: 1, SaleID: 2})
	require.ErrorIs(t, err, shared.ErrPersistence)
	require.Equal(t, 1, metrics.rejected["ledger_divergence"])
}

func TestRecordSaleChecksAvailability(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, inventory.SaleInput{StoreID: storeA, ProductID: prodX, Quantity: 1, SaleID: 1})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	receive(t, svc, storeA, prodX, 2, "5")
	m, err := svc.RecordSale(ctx, inventory.SaleInput{StoreID: storeA, ProductID: prodX, Quantity: 2, SaleID: 1})
	require.NoError(t, err)
	require.Equal(t, inventory.MovementSale, m.Type)
	require.Equal(t, int64(0), m.QuantityAfter)
	require.Equal(t, inventory.SaleOrigin(1), m.Origin)
}

func TestUpdateSettings(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()
	receive(t, svc, storeA, prodX, 5, "5")

	minimum, maximum, location := int64(3), int64(50), "Aisle 4"
	view, err := svc.UpdateSettings(ctx, inventory.SettingsInput{StoreID: storeA, ProductID: prodX,
		MinimumStock: &minimum, MaximumStock: &maximum, Location: &location})
	require.NoError(t, err)
	require.Equal(t, int64(3), view.MinimumStock)
	require.Equal(t, int64(50), *view.MaximumStock)
	require.Equal(t, "Aisle 4", view.Location)
	require.Equal(t, int64(5), view.Quantity)
	require.Equal(t, inventory.StatusInStock, view.Status)

	tooLow := int64(1)
	_, err = svc.UpdateSettings(ctx, inventory.SettingsInput{StoreID: storeA, ProductID: prodX, MaximumStock: &tooLow})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.UpdateSettings(ctx, inventory.SettingsInput{StoreID: storeB, ProductID: prodX, MinimumStock: &minimum})
	require.ErrorIs(t, err, inventory.ErrRecordNotFound)
}

func TestLowStockAlerts(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	receive(t, svc, storeA, prodX, 14, "5")
	receive(t, svc, storeB, prodX, 4, "5")
	receive(t, svc, storeA, prodTea, 100, "4")
	receive(t, svc, storeB, prodTea, 1, "4")
	_, err := svc.RecordSale(ctx, inventory.SaleInput{StoreID: storeB, ProductID: prodTea, Quantity: 1, SaleID: 3})
	require.NoError(t, err)
	receive(t, svc, storeA, prodSalt, 1, "2")

	alerts, err := svc.LowStockAlerts(ctx, inventory.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	require.Equal(t, inventory.AlertCritical, alerts[0].Level)
	require.Equal(t, prodTea, alerts[0].ProductID)
	require.Equal(t, int64(20), alerts[0].Shortage)
	require.Equal(t, inventory.AlertWarning, alerts[1].Level)
	require.Equal(t, int64(6), alerts[1].Shortage)

	withLow, err := svc.LowStockAlerts(ctx, inventory.AlertFilter{IncludeApproaching: true})
	require.NoError(t, err)
	require.Len(t, withLow, 3)
	require.Equal(t, inventory.AlertLow, withLow[2].Level)
	require.Equal(t, int64(0), withLow[2].Shortage)

	onlyLow, err := svc.LowStockAlerts(ctx, inventory.AlertFilter{Level: inventory.AlertLow})
	require.NoError(t, err)
	require.Len(t, onlyLow, 1)
	require.Equal(t, storeA, onlyLow[0].StoreID)

	perStore, err := svc.LowStockAlerts(ctx, inventory.AlertFilter{StoreID: storeB, Category: "beverage"})
	require.NoError(t, err)
	require.Len(t, perStore, 1)

	_, err = svc.LowStockAlerts(ctx, inventory.AlertFilter{Level: "panic"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestClassifyAlert(t *testing.T) {
	cases := []struct {
		qty, min int64
		level    inventory.AlertLevel
		ok       bool
	}{
		{0, 10, inventory.AlertCritical, true},
		{-1, 10, inventory.AlertCritical, true},
		{10, 10, inventory.AlertWarning, true},
		{15, 10, inventory.AlertLow, true},
		{16, 10, "", false},
		{0, 0, "", false},
	}
	for _, tc := range cases {
		level, ok := inventory.ClassifyAlert(tc.qty, tc.min)
		require.Equal(t, tc.ok, ok, "qty=%d min=%d", tc.qty, tc.min)
		require.Equal(t, tc.level, level, "qty=%d min=%d", tc.qty, tc.min)
	}
}

func TestListRecordsFilters(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	receive(t, svc, storeA, prodX, 50, "5")
	receive(t, svc, storeA, prodTea, 5, "4")
	receive(t, svc, storeB, prodX, 1, "5")
	_, err := svc.RecordSale(ctx, inventory.SaleInput{StoreID: storeB, ProductID: prodX, Quantity: 1, SaleID: 1})
	require.NoError(t, err)

	all, page, err := svc.ListRecords(ctx, inventory.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, 3, page.Total)
	require.Equal(t, "Alpha", all[0].StoreName)
	require.Equal(t, "Tea", all[0].ProductName)

	low, _, err := svc.ListRecords(ctx, inventory.RecordFilter{Status: inventory.StatusLowStock})
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, prodTea, low[0].ProductID)

	out, _, err := svc.ListRecords(ctx, inventory.RecordFilter{Status: inventory.StatusOutOfStock})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, storeB, out[0].StoreID)

	found, _, err := svc.ListRecords(ctx, inventory.RecordFilter{Search: "tea-"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	paged, page, err := svc.ListRecords(ctx, inventory.RecordFilter{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	require.Equal(t, 2, page.TotalPages)

	_, _, err = svc.ListRecords(ctx, inventory.RecordFilter{Status: "hoarded"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestMovementHistoryDateWindow(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range 3 {
		_, err := svc.ReceivePurchase(ctx, inventory.ReceivePurchaseInput{StoreID: storeA, ProductID: prodX, Quantity: 1,
			UnitCost: decimal.NewFromInt(5), ReceivedAt: day.AddDate(0, 0, i)})
		require.NoError(t, err)
	}
	window, page, err := svc.MovementHistory(ctx, inventory.MovementFilter{
		From: day.AddDate(0, 0, 1), To: day.AddDate(0, 0, 2),
	})
	require.NoError(t, err)
	require.Len(t, window, 2)
	require.Equal(t, 2, page.Total)
	require.True(t, window[0].MovementDate.After(window[1].MovementDate))

	_, _, err = svc.MovementHistory(ctx, inventory.MovementFilter{From: day, To: day.AddDate(0, 0, -1)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRevalueStore(t *testing.T) {
	svc, _, _ := newFixture(t)
	ctx := context.Background()

	receive(t, svc, storeA, prodX, 10, "5")
	receive(t, svc, storeA, prodTea, 10, "4")
	receive(t, svc, storeB, prodX, 10, "6")

	n, err := svc.RevalueStore(ctx, storeA)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = svc.RevalueStore(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
