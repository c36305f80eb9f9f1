package transfer

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/retailstock/internal/platform/httpx"
	"github.com/odyssey-erp/retailstock/internal/rbac"
	"github.com/odyssey-erp/retailstock/internal/shared"
)

type transferService interface {
	Create(ctx context.Context, in CreateInput) (Transfer, error)
	Submit(ctx context.Context, id, actorID int64) (Transfer, error)
	Approve(ctx context.Context, id, actorID int64) (Transfer, error)
	Ship(ctx context.Context, in ShipInput) (Transfer, error)
	Receive(ctx context.Context, in ReceiveInput) (Transfer, error)
	Cancel(ctx context.Context, id, actorID int64, reason string) (Transfer, error)
	Get(ctx context.Context, id int64) (Transfer, error)
	List(ctx context.Context, filter ListFilter) ([]Transfer, shared.Pagination, error)
}

// Handler exposes stock transfer endpoints.
type Handler struct {
	logger  *slog.Logger
	service transferService
	rbac    rbac.Middleware
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service transferService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryView, rbac.PermTransferManage))
		r.Get("/transfers", h.handleList)
		r.Get("/transfers/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermTransferManage))
		r.Post("/transfers", h.handleCreate)
		r.Post("/transfers/{id}/submit", h.handleSubmit)
		r.Post("/transfers/{id}/cancel", h.handleCancel)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermTransferApprove))
		r.Post("/transfers/{id}/approve", h.handleApprove)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermTransferShip))
		r.Post("/transfers/{id}/ship", h.handleShip)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermTransferReceive))
		r.Post("/transfers/{id}/receive", h.handleReceive)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("transfer request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) int64 {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor.ID
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: Status(r.URL.Query().Get("status"))}
	var err error
	if filter.StoreID, err = httpx.QueryInt64(r, "store_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.FromStoreID, err = httpx.QueryInt64(r, "from_store_id"); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.ToStoreID, err = httpx.QueryInt64(r, "to_store_id"); err != nil {
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
	transfers, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": transfers, "pagination": page})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.ActorID = actorID(r)
	t, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) byID(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actorID int64) (Transfer, error)) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := fn(r.Context(), id, actorID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.service.Submit)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.service.Approve)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req struct {
		Reason string `json:"reason" validate:"max=500"`
	}
	if r.ContentLength != 0 {
		if err := httpx.DecodeAndValidate(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	t, err := h.service.Cancel(r.Context(), id, actorID(r), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) handleShip(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in ShipInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeAndValidate(r, &in); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	in.ID, in.ActorID, in.IdempotencyKey = id, actorID(r), httpx.IdempotencyKey(r)
	t, err := h.service.Ship(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
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
	in.ID, in.ActorID, in.IdempotencyKey = id, actorID(r), httpx.IdempotencyKey(r)
	t, err := h.service.Receive(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}
