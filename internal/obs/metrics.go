package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics shared by every gateway endpoint.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Security decision metrics. Every gateway operation increments exactly one
// counter with its outcome; denials carry the denial reason.
var (
	securityDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_security_decisions_total",
			Help: "Security decisions by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	sandboxDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_sandbox_duration_seconds",
		Help:    "Wall-clock duration of sandboxed executions.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	rateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_rate_limited_total",
		Help: "Requests rejected by the sliding-window rate limiter.",
	})
)

// Init registers all gateway metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		securityDecisions, sandboxDuration, rateLimited,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Decision records the outcome of a gateway security operation.
func Decision(operation, outcome string) {
	securityDecisions.WithLabelValues(operation, outcome).Inc()
}

// SandboxObserved records the duration of a sandboxed execution.
func SandboxObserved(d time.Duration) {
	sandboxDuration.Observe(d.Seconds())
}

// RateLimited counts one rejected request.
func RateLimited() {
	rateLimited.Inc()
}

// CanonicalPath collapses variable path segments so metric cardinality stays
// bounded. Artifact ids are replaced with a placeholder.
func CanonicalPath(p string) string {
	if p == "" {
		return "/"
	}
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	parts := strings.Split(p, "/")
	// /v1/artifacts/:id and /v1/artifacts/:id/signature
	if len(parts) >= 4 && parts[1] == "v1" && parts[2] == "artifacts" && parts[3] != "" {
		if len(parts) == 4 {
			parts[3] = ":id"
		} else if len(parts) == 5 {
			parts[3] = ":id"
		}
		return strings.Join(parts, "/")
	}
	// /v1/tokens/:id
	if len(parts) == 4 && parts[1] == "v1" && parts[2] == "tokens" && parts[3] != "" {
		parts[3] = ":id"
		return strings.Join(parts, "/")
	}
	return p
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for instrumentation.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
