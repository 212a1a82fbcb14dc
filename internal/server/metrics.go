// metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/semsearch-go/internal/apperr"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec

	// buildsTotal counts vector store builds by backend and outcome.
	buildsTotal *prometheus.CounterVec

	// buildDurationSeconds records wall-clock build time by backend.
	buildDurationSeconds *prometheus.HistogramVec

	// searchesTotal counts searches by kind ("single" or "batch") and
	// outcome ("ok" or an error kind).
	searchesTotal *prometheus.CounterVec

	// searchDurationSeconds records search latency by kind.
	searchDurationSeconds *prometheus.HistogramVec

	// rateLimitedTotal counts requests rejected with 429.
	rateLimitedTotal prometheus.Counter
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) registers into the provided
// registry rather than the global default so unit tests stay hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semsearch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "semsearch",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),

		buildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semsearch",
			Subsystem: "vectorstore",
			Name:      "builds_total",
			Help:      "Total number of vector store builds, partitioned by backend and outcome.",
		}, []string{"vector_db", "outcome"}),

		buildDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "semsearch",
			Subsystem: "vectorstore",
			Name:      "build_duration_seconds",
			Help:      "Wall-clock duration of vector store builds.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"vector_db"}),

		searchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semsearch",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of search requests, partitioned by kind and outcome.",
		}, []string{"kind", "outcome"}),

		searchDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "semsearch",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Latency of search requests including query embedding.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),

		rateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "semsearch",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the per-IP rate limiter.",
		}),
	}
}

// instrument wraps h so every request is counted and timed under name.
func (m *serverMetrics) instrument(name string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h.ServeHTTP(rw, r)
		m.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
	})
}

func (m *serverMetrics) observeBuild(vectorDB string, err error, d time.Duration) {
	switch {
	case apperr.KindOf(err) == apperr.KindInvalidArgument:
		// Unrecognised names are caller input; keep them out of label values.
		vectorDB = "invalid"
	case vectorDB == "":
		vectorDB = "default"
	}
	m.buildsTotal.WithLabelValues(vectorDB, outcome(err)).Inc()
	m.buildDurationSeconds.WithLabelValues(vectorDB).Observe(d.Seconds())
}

func (m *serverMetrics) observeSearch(kind string, err error, d time.Duration) {
	m.searchesTotal.WithLabelValues(kind, outcome(err)).Inc()
	m.searchDurationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// outcome is "ok" for nil, otherwise the error kind.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}
