package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsExposure(t *testing.T) {
	TickRuns.Inc()
	TickSkips.Inc()
	TickErrors.WithLabelValues("hashtag").Inc()
	EventsProcessed.WithLabelValues("vibe").Inc()
	IncAPIRetry("/test")
	ObserveTickDuration(time.Now().Add(-1500 * time.Millisecond))
	ViewRefreshDuration.WithLabelValues("1").Observe(0.1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"vibegraph_tick_runs_total",
		"vibegraph_tick_skips_total",
		"vibegraph_tick_errors_total",
		"vibegraph_events_processed_total",
		"vibegraph_api_retries_total",
		"vibegraph_view_refresh_duration_seconds",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}
