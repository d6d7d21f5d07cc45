// Package metrics exposes the application's Prometheus collectors.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scratchpad",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scratchpad",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scratchpad",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	executions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scratchpad",
			Subsystem: "executions",
			Name:      "total",
			Help:      "Total number of script executions.",
		},
		[]string{"status"},
	)

	executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scratchpad",
			Subsystem: "executions",
			Name:      "duration_seconds",
			Help:      "Duration of script executions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"status"},
	)

	compileDiagnostics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scratchpad",
			Subsystem: "compile",
			Name:      "failures_total",
			Help:      "Total number of executions rejected with compiler diagnostics.",
		},
	)

	reclamationPolls = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scratchpad",
			Subsystem: "reclaim",
			Name:      "poll_attempts",
			Help:      "Poll attempts consumed before a boundary was observed collected.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)

	boundariesUnreclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scratchpad",
			Subsystem: "reclaim",
			Name:      "unreclaimed_total",
			Help:      "Boundaries still reachable after the reclamation poll budget.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		executions,
		executionDuration,
		compileDiagnostics,
		reclamationPolls,
		boundariesUnreclaimed,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordExecution records one completed script execution.
func RecordExecution(status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	executions.WithLabelValues(status).Inc()
	executionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordCompileFailure counts an execution rejected with diagnostics.
func RecordCompileFailure() {
	compileDiagnostics.Inc()
}

// ObserveReclamation records the outcome of one reclamation poll.
func ObserveReclamation(collected bool, attempts int) {
	if collected {
		reclamationPolls.Observe(float64(attempts))
		return
	}
	boundariesUnreclaimed.Inc()
}

// canonicalPath collapses resource IDs so metric cardinality stays bounded.
func canonicalPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "executions" {
		if parts[1] == "stream" {
			return "/executions/stream"
		}
		return "/executions/{id}"
	}
	if len(parts) == 0 || parts[0] == "" {
		return "/"
	}
	return "/" + parts[0]
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack forwards to the underlying writer so WebSocket upgrades still work
// through the instrumentation wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}
