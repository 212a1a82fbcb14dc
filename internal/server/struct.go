package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/semsearch-go/internal/catalog"
	"github.com/54b3r/semsearch-go/internal/history"
	"github.com/54b3r/semsearch-go/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed BuildTimeout so build responses are not cut off.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// SearchTimeout bounds each search and batch search request.
	SearchTimeout time.Duration
	// BuildTimeout bounds each vector store build request.
	BuildTimeout time.Duration
	// MaxBodyBytes caps JSON request bodies (default: 1 MiB).
	MaxBodyBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency checks run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on search and
	// build endpoints (requests/second). Zero disables rate limiting.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// CORSOrigins lists origins allowed to call the API from a browser.
	// "*" allows any origin. Empty disables CORS headers.
	CORSOrigins []string
	// MetricsRegistry receives the server's metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// api is the service surface the handlers call. *service.Service satisfies
// it; tests may inject a fake.
type api interface {
	Models() service.ModelsResponse
	Build(ctx context.Context, req service.BuildRequest, progress func(string)) (*service.BuildResponse, error)
	Search(ctx context.Context, req service.SearchRequest) (*service.SearchResponse, error)
	SearchBatch(ctx context.Context, req service.BatchSearchRequest) (*service.BatchSearchResponse, error)
	ListStores(ctx context.Context) ([]catalog.StoreSummary, error)
	StoreInfo(ctx context.Context, id string) (*catalog.StoreSummary, error)
	History(ctx context.Context, limit int) ([]history.Entry, error)
}

// Server is the HTTP server that exposes the search service.
type Server struct {
	// svc handles every API request.
	svc api
	// cfg holds the resolved server configuration.
	cfg *Config
	// handler is the fully wrapped mux.
	handler http.Handler
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency checks for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	// Error is the human-readable message.
	Error string `json:"error"`
	// Kind is the stable error kind, e.g. "store_not_found".
	Kind string `json:"kind"`
	// Class tells the caller whether to fix the input, retry, or escalate.
	Class string `json:"class"`
}
