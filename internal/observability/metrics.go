// Package observability mengumpulkan metrik Prometheus untuk API dan worker.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/retailstock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/retailstock/internal/jobs"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	movements       *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	lowStock        *prometheus.GaugeVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics menginisialisasi registry, metrik HTTP, metrik stok dan metrik job.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retailstock_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retailstock_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retailstock_stock_movements_total",
		Help: "Stock movements appended to the ledger by type.",
	}, []string{"type"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retailstock_stock_movement_rejections_total",
		Help: "Ledger appends refused, by reason.",
	}, []string{"reason"})
	lowStock := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "retailstock_low_stock_items",
		Help: "Products below their threshold per store and alert level, as of the last scan.",
	}, []string{"store", "level"})
	registry.MustRegister(requests, duration, movements, rejections, lowStock)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		movements:       movements,
		rejections:      rejections,
		lowStock:        lowStock,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Jobs returns the background job collectors sharing this registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// MovementRecorded implements inventory.MetricsPort.
func (m *Metrics) MovementRecorded(t inventory.MovementType) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(string(t)).Inc()
}

// MovementRejected implements inventory.MetricsPort.
func (m *Metrics) MovementRejected(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// SetLowStock replaces the low-stock gauges with counts derived from alerts.
// A storeID of 0 means the scan covered every store and all previous series
// are dropped; otherwise only that store's series are replaced.
func (m *Metrics) SetLowStock(storeID int64, alerts []inventory.Alert) {
	if m == nil {
		return
	}
	if storeID == 0 {
		m.lowStock.Reset()
	} else {
		m.lowStock.DeletePartialMatch(prometheus.Labels{"store": strconv.FormatInt(storeID, 10)})
	}
	for _, a := range alerts {
		m.lowStock.WithLabelValues(strconv.FormatInt(a.StoreID, 10), string(a.Level)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

var _ inventory.MetricsPort = (*Metrics)(nil)
