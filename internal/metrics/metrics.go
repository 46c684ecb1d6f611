// Package metrics provides Prometheus metrics for the comparison API and the embedding provider.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "face_matcher"

var (
	// RequestsTotal counts HTTP requests by route pattern and status code.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	// RequestDuration tracks HTTP latency by route pattern.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	// Comparisons counts comparison outcomes.
	// kind: pair, mixed, rank; outcome: matched, not_matched, no_face, error
	Comparisons = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comparisons_total",
			Help:      "Total number of face comparisons by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// EmbeddingDuration tracks embedding server latency by outcome (face, no_face, error).
	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_duration_seconds",
			Help:      "Latency of descriptor extraction in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)
)

// Outcome labels shared by comparison and embedding metrics.
const (
	OutcomeMatched    = "matched"
	OutcomeNotMatched = "not_matched"
	OutcomeNoFace     = "no_face"
	OutcomeFace       = "face"
	OutcomeError      = "error"
)

// RecordComparison increments the comparison counter.
func RecordComparison(kind, outcome string) {
	Comparisons.WithLabelValues(kind, outcome).Inc()
}

// ObserveEmbedding records one descriptor extraction.
func ObserveEmbedding(outcome string, latency time.Duration) {
	EmbeddingDuration.WithLabelValues(outcome).Observe(latency.Seconds())
}

// Middleware records request count and latency per chi route pattern.
// Unmatched routes are reported as "unknown" to keep label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
