package metrics

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TickRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vibegraph_tick_runs_total",
		Help: "Total ingestion ticks executed",
	})
	TickSkips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vibegraph_tick_skips_total",
		Help: "Ticks skipped because the previous tick was still running",
	})
	TickErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vibegraph_tick_errors_total",
		Help: "Tick phase failures",
	}, []string{"phase"})
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vibegraph_tick_duration_seconds",
		Help:    "Ingestion tick duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	EventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vibegraph_events_processed_total",
		Help: "Domain events processed by kind",
	}, []string{"kind"})
	EventsDuplicate = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vibegraph_events_duplicate_total",
		Help: "Events skipped because their source id was already claimed",
	})
	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vibegraph_token_refreshes_total",
		Help: "Token refresh exchanges by outcome",
	}, []string{"outcome"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vibegraph_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	ViewRefreshDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vibegraph_view_refresh_duration_seconds",
		Help:    "Degree view refresh duration seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"degree"})
)

func init() {
	prometheus.MustRegister(TickRuns, TickSkips, TickErrors, TickDuration,
		EventsProcessed, EventsDuplicate, TokenRefreshes, APIRetries, ViewRefreshDuration)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveTickDuration records a tick duration.
func ObserveTickDuration(start time.Time) {
	TickDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

// ObserveViewRefresh records one degree view rebuild duration.
func ObserveViewRefresh(degree int, d time.Duration) {
	ViewRefreshDuration.WithLabelValues(strconv.Itoa(degree)).Observe(d.Seconds())
}
