package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retailstock/internal/inventory"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `retailstock_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `retailstock_http_request_duration_seconds_bucket{route="/test"`)
}

func TestStockCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.MovementRecorded(inventory.MovementSale)
	metrics.MovementRecorded(inventory.MovementSale)
	metrics.MovementRejected("negative_stock")

	body := scrape(t, metrics)
	require.Contains(t, body, `retailstock_stock_movements_total{type="sale"} 2`)
	require.Contains(t, body, `retailstock_stock_movement_rejections_total{reason="negative_stock"} 1`)
}

func TestSetLowStockReplacesPreviousScan(t *testing.T) {
	metrics := NewMetrics()
	metrics.SetLowStock(0, []inventory.Alert{
		{StoreID: 1, Level: inventory.AlertCritical},
		{StoreID: 1, Level: inventory.AlertCritical},
		{StoreID: 2, Level: inventory.AlertWarning},
	})
	body := scrape(t, metrics)
	require.Contains(t, body, `retailstock_low_stock_items{level="critical",store="1"} 2`)
	require.Contains(t, body, `retailstock_low_stock_items{level="warning",store="2"} 1`)

	metrics.SetLowStock(0, []inventory.Alert{{StoreID: 2, Level: inventory.AlertWarning}})
	body = scrape(t, metrics)
	require.NotContains(t, body, `store="1"`)
	require.Contains(t, body, `retailstock_low_stock_items{level="warning",store="2"} 1`)
}

func TestSetLowStockForOneStoreKeepsOthers(t *testing.T) {
	metrics := NewMetrics()
	metrics.SetLowStock(0, []inventory.Alert{
		{StoreID: 1, Level: inventory.AlertCritical},
		{StoreID: 2, Level: inventory.AlertCritical},
		{StoreID: 2, Level: inventory.AlertWarning},
	})

	metrics.SetLowStock(2, []inventory.Alert{{StoreID: 2, Level: inventory.AlertLow}})
	body := scrape(t, metrics)
	require.Contains(t, body, `retailstock_low_stock_items{level="critical",store="1"} 1`)
	require.Contains(t, body, `retailstock_low_stock_items{level="low",store="2"} 1`)
	require.NotContains(t, body, `level="critical",store="2"`)
	require.NotContains(t, body, `level="warning",store="2"`)

	metrics.SetLowStock(2, nil)
	body = scrape(t, metrics)
	require.Contains(t, body, `retailstock_low_stock_items{level="critical",store="1"} 1`)
	require.NotContains(t, body, `store="2"`)
}

func TestJobMetricsShareRegistry(t *testing.T) {
	metrics := NewMetrics()
	require.NoError(t, metrics.Jobs().Track("stock:revaluation").End(nil))
	metrics.Jobs().AddProcessed("stock:revaluation", 3)

	body := scrape(t, metrics)
	require.Contains(t, body, `retailstock_jobs_total{job="stock:revaluation",status="success"} 1`)
	require.Contains(t, body, `retailstock_job_items_processed_total{job="stock:revaluation"} 3`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.MovementRecorded(inventory.MovementSale)
	metrics.MovementRejected("x")
	metrics.SetLowStock(0, nil)
	require.Nil(t, metrics.Jobs())

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
