package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/retailstock/internal/adjustment"
	"github.com/odyssey-erp/retailstock/internal/inventory"
	"github.com/odyssey-erp/retailstock/internal/observability"
	"github.com/odyssey-erp/retailstock/internal/platform/httpx"
	"github.com/odyssey-erp/retailstock/internal/procurement"
	"github.com/odyssey-erp/retailstock/internal/rbac"
	"github.com/odyssey-erp/retailstock/internal/transfer"
	"github.com/odyssey-erp/retailstock/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Authenticator      *rbac.Authenticator
	InventoryHandler   *inventory.Handler
	AdjustmentHandler  *adjustment.Handler
	TransferHandler    *transfer.Handler
	ProcurementHandler *procurement.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router. Everything under /api/v1 requires a bearer token.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" not supported on "+r.URL.Path)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.Authenticator != nil {
			r.Use(params.Authenticator.Middleware)
		}
		r.Route("/inventory", func(r chi.Router) {
			params.InventoryHandler.MountRoutes(r)
			if params.AdjustmentHandler != nil {
				params.AdjustmentHandler.MountRoutes(r)
			}
			if params.TransferHandler != nil {
				params.TransferHandler.MountRoutes(r)
			}
		})
		if params.ProcurementHandler != nil {
			r.Route("/procurement", params.ProcurementHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

// NewAPI builds the handlers of a container and returns the full router.
func NewAPI(cfg *Config, c *Container, jobHandler *jobs.Handler) http.Handler {
	guard := rbac.Middleware{Logger: c.Logger}
	return NewRouter(RouterParams{
		Logger:             c.Logger,
		Config:             cfg,
		Authenticator:      rbac.NewAuthenticator(cfg.ActorTokenSecret, c.Logger),
		InventoryHandler:   inventory.NewHandler(c.Logger, c.Inventory, guard),
		AdjustmentHandler:  adjustment.NewHandler(c.Logger, c.Adjustments, guard),
		TransferHandler:    transfer.NewHandler(c.Logger, c.Transfers, guard),
		ProcurementHandler: procurement.NewHandler(c.Logger, c.Procurement, guard),
		JobHandler:         jobHandler,
		Metrics:            c.Metrics,
	})
}
