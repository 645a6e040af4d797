package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/sync")

	req := httptest.NewRequest(http.MethodGet, "/api/sync", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `infopos_http_requests_total{code="418",route="/api/sync"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `infopos_http_request_duration_seconds_bucket{route="/api/sync"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestSyncCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObservePull("products", 3)
	metrics.ObservePush("sales", 2, 1, true)
	metrics.ObservePush("sales", 0, 0, false)

	body := scrape(t, metrics)
	for _, want := range []string{
		`infopos_sync_pull_records_total{table="products"} 3`,
		`infopos_sync_push_records_total{outcome="synced",table="sales"} 2`,
		`infopos_sync_push_records_total{outcome="failed",table="sales"} 1`,
		`infopos_sync_push_batches_total{outcome="committed",table="sales"} 1`,
		`infopos_sync_push_batches_total{outcome="aborted",table="sales"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObservePull("contacts", 1)
	metrics.ObservePush("contacts", 1, 0, true)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}
