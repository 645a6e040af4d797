package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects HTTP and sync metrics on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pullRecords     *prometheus.CounterVec
	pushRecords     *prometheus.CounterVec
	pushBatches     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "infopos_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "infopos_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	pullRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "infopos_sync_pull_records_total",
		Help: "Records returned by delta pulls.",
	}, []string{"table"})
	pushRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "infopos_sync_push_records_total",
		Help: "Pushed records by outcome (synced or failed).",
	}, []string{"table", "outcome"})
	pushBatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "infopos_sync_push_batches_total",
		Help: "Push batches by outcome (committed or aborted).",
	}, []string{"table", "outcome"})
	registry.MustRegister(requests, duration, pullRecords, pushRecords, pushBatches)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		pullRecords:     pullRecords,
		pushRecords:     pushRecords,
		pushBatches:     pushBatches,
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency keyed by the chi route pattern.
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

func (m *Metrics) ObservePull(table string, records int) {
	if m == nil {
		return
	}
	m.pullRecords.WithLabelValues(table).Add(float64(records))
}

func (m *Metrics) ObservePush(table string, synced int, failed int, committed bool) {
	if m == nil {
		return
	}
	m.pushRecords.WithLabelValues(table, "synced").Add(float64(synced))
	m.pushRecords.WithLabelValues(table, "failed").Add(float64(failed))
	outcome := "committed"
	if !committed {
		outcome = "aborted"
	}
	m.pushBatches.WithLabelValues(table, outcome).Inc()
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
