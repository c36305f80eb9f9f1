package inventory_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/retailstock/internal/inventory"
	"github.com/odyssey-erp/retailstock/internal/rbac"
	"github.com/odyssey-erp/retailstock/internal/shared"
)

func newRouter(t *testing.T, perms ...string) (http.Handler, *inventory.Service) {
	t.Helper()
	svc, _, _ := newFixture(t)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithActor(req.Context(), shared.Actor{ID: 9, Permissions: perms})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	inventory.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, rbac.Middleware{}).MountRoutes(r)
	return r, svc
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerSaleFlow(t *testing.T) {
	h, svc := newRouter(t, rbac.PermInventoryView, rbac.PermInventoryPOS)
	receive(t, svc, storeA, prodX, 5, "5")

	rec := do(h, http.MethodPost, "/sales", `{"store_id":1,"product_id":10,"quantity":2,"sale_id":31}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m inventory.Movement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	require.Equal(t, int64(3), m.QuantityAfter)
	require.Equal(t, int64(9), m.ActorID)

	rec = do(h, http.MethodPost, "/sales", `{"store_id":1,"product_id":10,"quantity":9,"sale_id":32}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = do(h, http.MethodPost, "/sales", `{"store_id":1,"product_id":10,"quantity":0,"sale_id":32}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "quantity", problem["field"])

	rec = do(h, http.MethodGet, "/records/1/10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view inventory.RecordView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, int64(3), view.Quantity)
	require.Equal(t, inventory.StatusLowStock, view.Status)

	rec = do(h, http.MethodGet, "/records/2/10", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerPermissions(t *testing.T) {
	h, _ := newRouter(t, rbac.PermInventoryView)

	rec := do(h, http.MethodPost, "/sales", `{"store_id":1,"product_id":10,"quantity":1,"sale_id":1}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, http.MethodGet, "/stores", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Alpha")
}

func TestHandlerAlertsAndExport(t *testing.T) {
	h, svc := newRouter(t, rbac.PermInventoryView)
	receive(t, svc, storeA, prodX, 4, "5")
	receive(t, svc, storeA, prodTea, 25, "4")

	rec := do(h, http.MethodGet, "/alerts?include_approaching=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []inventory.Alert `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.Equal(t, inventory.AlertWarning, body.Data[0].Level)
	require.Equal(t, inventory.AlertLow, body.Data[1].Level)

	rec = do(h, http.MethodGet, "/alerts?include_approaching=maybe", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodGet, "/alerts/export.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), "low-stock-")
	require.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte{0xEF, 0xBB, 0xBF}))
	require.Contains(t, rec.Body.String(), "Widget")
}

func TestHandlerMovementsRejectsBadDate(t *testing.T) {
	h, svc := newRouter(t, rbac.PermInventoryView)
	receive(t, svc, storeA, prodX, 4, "5")

	rec := do(h, http.MethodGet, "/movements?from=01-02-2026", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodGet, "/movements?store_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data       []inventory.Movement `json:"data"`
		Pagination shared.Pagination    `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, 1, body.Pagination.Total)
}
