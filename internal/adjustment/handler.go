package adjustment

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/retailstock/internal/platform/httpx"
	"github.com/odyssey-erp/retailstock/internal/rbac"
	"github.com/odyssey-erp/retailstock/internal/shared"
)

type adjustmentService interface {
	Create(ctx context.Context, in CreateInput) (Adjustment, error)
	Update(ctx context.Context, in UpdateInput) (Adjustment, error)
	Approve(ctx context.Context, id, actorID int64) (Adjustment, error)
	Reject(ctx context.Context, id, actorID int64, reason string) (Adjustment, error)
	Delete(ctx context.Context, id, actorID int64) error
	Get(ctx context.Context, id int64) (Adjustment, error)
	List(ctx context.Context, filter ListFilter) ([]Adjustment, shared.Pagination, error)
}

// Handler exposes stock adjustment endpoints.
type Handler struct {
	logger  *slog.Logger
	service adjustmentService
	rbac    rbac.Middleware
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service adjustmentService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers adjustment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryView))
		r.Get("/adjustments", h.handleList)
		r.Get("/adjustments/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryAdjust))
		r.Post("/adjustments", h.handleCreate)
		r.Put("/adjustments/{id}", h.handleUpdate)
		r.Delete("/adjustments/{id}", h.handleDelete)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInventoryApprove))
		r.Post("/adjustments/{id}/approve", h.handleApprove)
		r.Post("/adjustments/{id}/reject", h.handleReject)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("adjustment request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) int64 {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor.ID
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status")), Type: Type(q.Get("type")), Reason: Reason(q.Get("reason"))}
	var err error
	if filter.StoreID, err = httpx.QueryInt64(r, "store_id"); err != nil {
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
	adjustments, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": adjustments, "pagination": page})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	adj, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.ActorID = actorID(r)
	adj, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adj)
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
	adj, err := h.service.Update(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	adj, err := h.service.Approve(r.Context(), id, actorID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
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
	adj, err := h.service.Reject(r.Context(), id, actorID(r), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adj)
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
