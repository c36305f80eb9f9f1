package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/retailstock/internal/platform/httpx"
	"github.com/odyssey-erp/retailstock/internal/rbac"
	"github.com/odyssey-erp/retailstock/internal/shared"
)

type inventoryService interface {
	ListStores(ctx context.Context) ([]Store, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]RecordView, shared.Pagination, error)
	GetRecord(ctx context.Context, storeID, productID int64) (RecordView, error)
	UpdateSettings(ctx context.Context, in SettingsInput) (RecordView, error)
	VerifyChain(ctx context.Context, storeID, productID int64) (ChainReport, error)
	RecomputeAverageCost(ctx context.Context, storeID, productID int64) (decimal.Decimal, error)
	LowStockAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error)
	MovementHistory(ctx context.Context, filter MovementFilter) ([]Movement, shared.Pagination, error)
	RecordSale(ctx context.Context, in SaleInput) (Movement, error)
	RecordReturn(ctx context.Context, in ReturnInput) (Movement, error)
}

// Handler wires HTTP endpoints for the ledger and its read model.
type Handler struct {
	logger  *slog.Logger
	service inventoryService
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service inventoryService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryView))
		r.Get("/stores", h.handleListStores)
		r.Get("/records", h.handleListRecords)
		r.Get("/records/{storeID}/{productID}", h.handleGetRecord)
		r.Get("/records/{storeID}/{productID}/verify", h.handleVerifyChain)
		r.Get("/alerts", h.handleAlerts)
		r.Get("/alerts/export.csv", h.handleExportCSV)
		r.Get("/alerts/export.xlsx", h.handleExportXLSX)
		r.Get("/movements", h.handleMovements)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryAdjust))
		r.Patch("/records/{storeID}/{productID}", h.handleUpdateSettings)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryApprove))
		r.Post("/records/{storeID}/{productID}/recompute-cost", h.handleRecompute)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryPOS))
		r.Post("/sales", h.handleSale)
		r.Post("/returns", h.handleReturn)
	})
}

type listResponse[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func recordKey(r *http.Request) (int64, int64, error) {
	storeID, err := strconv.ParseInt(chi.URLParam(r, "storeID"), 10, 64)
	if err != nil {
		return 0, 0, shared.Invalid("store_id", "must be an integer")
	}
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		return 0, 0, shared.Invalid("product_id", "must be an integer")
	}
	return storeID, productID, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.service.ListStores(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": stores})
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := RecordFilter{Category: q.Get("category"), Status: StockStatus(q.Get("status")), Search: q.Get("search")}
	var err error
	if filter.StoreID, err = httpx.QueryInt64(r, "store_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.Page, err = httpx.QueryInt(r, "page"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.PerPage, err = httpx.QueryInt(r, "per_page"); err != nil {
		h.fail(w, r, err)
		return
	}
	views, page, err := h.service.ListRecords(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if views == nil {
		views = []RecordView{}
	}
	httpx.JSON(w, http.StatusOK, listResponse[RecordView]{Data: views, Pagination: page})
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	storeID, productID, err := recordKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.service.GetRecord(r.Context(), storeID, productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	storeID, productID, err := recordKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in SettingsInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	in.StoreID, in.ProductID, in.ActorID = storeID, productID, actor.ID
	view, err := h.service.UpdateSettings(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	storeID, productID, err := recordKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.service.VerifyChain(r.Context(), storeID, productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	storeID, productID, err := recordKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	avg, err := h.service.RecomputeAverageCost(r.Context(), storeID, productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"store_id": storeID, "product_id": productID, "average_cost": avg})
}

func alertFilterFromQuery(r *http.Request) (AlertFilter, error) {
	q := r.URL.Query()
	filter := AlertFilter{Category: q.Get("category"), Level: AlertLevel(q.Get("level"))}
	storeID, err := httpx.QueryInt64(r, "store_id")
	if err != nil {
		return AlertFilter{}, err
	}
	filter.StoreID = storeID
	if raw := q.Get("include_approaching"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return AlertFilter{}, shared.Invalid("include_approaching", "must be a boolean")
		}
		filter.IncludeApproaching = v
	}
	return filter, nil
}

func (h *Handler) loadAlerts(r *http.Request) ([]Alert, error) {
	filter, err := alertFilterFromQuery(r)
	if err != nil {
		return nil, err
	}
	return h.service.LowStockAlerts(r.Context(), filter)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.loadAlerts(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": alerts})
}

func exportName(ext string) string {
	return "low-stock-" + time.Now().UTC().Format("20060102") + "." + ext
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.loadAlerts(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+exportName("csv"))
	if err := WriteAlertsCSV(w, alerts); err != nil {
		h.logger.Error("export alerts csv", slog.Any("error", err))
	}
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.loadAlerts(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+exportName("xlsx"))
	if err := WriteAlertsXLSX(w, alerts); err != nil {
		h.logger.Error("export alerts xlsx", slog.Any("error", err))
	}
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{Type: MovementType(q.Get("type"))}
	var err error
	if filter.StoreID, err = httpx.QueryInt64(r, "store_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.ProductID, err = httpx.QueryInt64(r, "product_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.Page, err = httpx.QueryInt(r, "page"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.PerPage, err = httpx.QueryInt(r, "per_page"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.From, err = httpx.QueryDate(r, "from", false); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.To, err = httpx.QueryDate(r, "to", true); err != nil {
		h.fail(w, r, err)
		return
	}
	movements, page, err := h.service.MovementHistory(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Movement]{Data: movements, Pagination: page})
}

func (h *Handler) handleSale(w http.ResponseWriter, r *http.Request) {
	var in SaleInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	in.ActorID = actor.ID
	movement, err := h.service.RecordSale(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	var in ReturnInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	in.ActorID = actor.ID
	movement, err := h.service.RecordReturn(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}
