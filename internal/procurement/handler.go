package procurement

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/retailstock/internal/platform/httpx"
	"github.com/odyssey-erp/retailstock/internal/rbac"
	"github.com/odyssey-erp/retailstock/internal/shared"
)

type procurementService interface {
	Create(ctx context.Context, in CreateInput) (PurchaseOrder, error)
	Update(ctx context.Context, in UpdateInput) (PurchaseOrder, error)
	Submit(ctx context.Context, id, actorID int64) (PurchaseOrder, error)
	Approve(ctx context.Context, id, actorID int64) (PurchaseOrder, error)
	Reject(ctx context.Context, id, actorID int64, reason string) (PurchaseOrder, error)
	MarkOrdered(ctx context.Context, id, actorID int64) (PurchaseOrder, error)
	Cancel(ctx context.Context, id, actorID int64, reason string) (PurchaseOrder, error)
	Delete(ctx context.Context, id, actorID int64) error
	Receive(ctx context.Context, in ReceiveInput) (PurchaseOrder, error)
	Get(ctx context.Context, id int64) (PurchaseOrder, error)
	List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, shared.Pagination, error)
	Receipts(ctx context.Context, id int64) ([]Receipt, error)
	Approvals(ctx context.Context, id int64) ([]shared.ApprovalLog, error)
}

// Handler manages purchase order endpoints.
type Handler struct {
	logger  *slog.Logger
	service procurementService
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service procurementService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermProcurementManage, rbac.PermProcurementApprove, rbac.PermProcurementReceive))
		r.Get("/purchase-orders", h.handleList)
		r.Get("/purchase-orders/{id}", h.handleGet)
		r.Get("/purchase-orders/{id}/receipts", h.handleReceipts)
		r.Get("/purchase-orders/{id}/approvals", h.handleApprovals)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermProcurementManage))
		r.Post("/purchase-orders", h.handleCreate)
		r.Put("/purchase-orders/{id}", h.handleUpdate)
		r.Post("/purchase-orders/{id}/submit", h.handleSubmit)
		r.Post("/purchase-orders/{id}/order", h.handleMarkOrdered)
		r.Post("/purchase-orders/{id}/cancel", h.handleCancel)
		r.Delete("/purchase-orders/{id}", h.handleDelete)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermProcurementApprove))
		r.Post("/purchase-orders/{id}/approve", h.handleApprove)
		r.Post("/purchase-orders/{id}/reject", h.handleReject)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermProcurementReceive))
		r.Post("/purchase-orders/{id}/receive", h.handleReceive)
	})
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) int64 {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor.ID
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: POStatus(r.URL.Query().Get("status"))}
	var err error
	if filter.StoreID, err = httpx.QueryInt64(r, "store_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.SupplierID, err = httpx.QueryInt64(r, "supplier_id"); err != nil {
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
	if filter.Page, err = httpx.QueryInt(r, "page"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.PerPage, err = httpx.QueryInt(r, "per_page"); err != nil {
		h.fail(w, r, err)
		return
	}
	orders, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": orders, "pagination": page})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	po, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handleReceipts(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	receipts, err := h.service.Receipts(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": receipts})
}

func (h *Handler) handleApprovals(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logs, err := h.service.Approvals(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": logs})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.ActorID = actorID(r)
	po, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in UpdateInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.ID, in.ActorID = id, actorID(r)
	po, err := h.service.Update(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) simple(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actorID int64) (PurchaseOrder, error)) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	po, err := fn(r.Context(), id, actorID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) withReason(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actorID int64, reason string) (PurchaseOrder, error)) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeAndValidate(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	po, err := fn(r.Context(), id, actorID(r), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, h.service.Submit)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, h.service.Approve)
}

func (h *Handler) handleMarkOrdered(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, h.service.MarkOrdered)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, h.service.Reject)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, h.service.Cancel)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, actorID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in ReceiveInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.POID, in.ActorID, in.IdempotencyKey = id, actorID(r), httpx.IdempotencyKey(r)
	po, err := h.service.Receive(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}
