package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushwatch_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pushwatch_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 5, 30},
		},
		[]string{"method", "path"},
	)

	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushwatch_dispatch_total",
			Help: "Dispatch calls by outcome (sent, deduplicated, store_error, encode_error)",
		},
		[]string{"outcome"},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushwatch_deliveries_total",
			Help: "Per-subscription delivery attempts by status",
		},
		[]string{"status"},
	)

	deactivationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushwatch_deactivations_total",
			Help: "Subscriptions deactivated after a gone response",
		},
	)

	dedupSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushwatch_dedup_suppressed_total",
			Help: "Dispatch calls suppressed by the dedup window",
		},
	)

	checkRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushwatch_check_runs_total",
			Help: "Evaluator runs by check type and status",
		},
		[]string{"check", "status"},
	)

	checkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pushwatch_check_duration_seconds",
			Help:    "Evaluator run time including dispatch",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"check"},
	)

	mirrorTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushwatch_mirror_total",
			Help: "Mirror sink forwards by sink and status",
		},
		[]string{"sink", "status"},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushwatch_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"path"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDispatch records how a dispatch call ended
func RecordDispatch(outcome string) {
	dispatchTotal.WithLabelValues(outcome).Inc()
}

// RecordDelivery records one subscription delivery attempt
func RecordDelivery(status string) {
	deliveriesTotal.WithLabelValues(status).Inc()
}

// RecordDeactivation records a subscription removed after a gone response
func RecordDeactivation() {
	deactivationsTotal.Inc()
}

// RecordDedupSuppressed records a dispatch blocked by the dedup window
func RecordDedupSuppressed() {
	dedupSuppressed.Inc()
}

// RecordCheckRun records an evaluator run
func RecordCheckRun(check, status string, duration time.Duration) {
	checkRuns.WithLabelValues(check, status).Inc()
	checkDuration.WithLabelValues(check).Observe(duration.Seconds())
}

// RecordMirror records a mirror sink forward
func RecordMirror(sink, status string) {
	mirrorTotal.WithLabelValues(sink, status).Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(path string) {
	rateLimitRejections.WithLabelValues(path).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics. Paths
// are labelled by chi route pattern to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, routePattern(r), wrapped.status, time.Since(start))
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
