// Package metrics exposes Prometheus collectors for the bookmarking service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	metadataResolutionsTotal   *prometheus.CounterVec
	realtimeEventsTotal        *prometheus.CounterVec
	listCacheLookupsTotal      *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route"},
		)

		metadataResolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metadata_resolutions_total",
				Help: "Metadata lookups, labeled by provider and the method that produced the result.",
			},
			[]string{"provider", "outcome"},
		)

		realtimeEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_events_total",
				Help: "Change notifications received, labeled by table.",
			},
			[]string{"table"},
		)

		listCacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "list_cache_lookups_total",
				Help: "Owner list cache lookups, labeled by kind and result.",
			},
			[]string{"kind", "result"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveResolution counts a metadata lookup. outcome is "oembed", "html" or "error".
func ObserveResolution(provider, outcome string) {
	Init()
	metadataResolutionsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveRealtimeEvent counts a change notification for table.
func ObserveRealtimeEvent(table string) {
	Init()
	realtimeEventsTotal.WithLabelValues(table).Inc()
}

// ObserveListCache counts a list cache hit or miss.
func ObserveListCache(kind string, hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	listCacheLookupsTotal.WithLabelValues(kind, result).Inc()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}

		ObserveHTTPRequest(r.Method, routePattern, rec.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
