package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/semsearch-go/internal/logging"
	"github.com/54b3r/semsearch-go/internal/version"
)

// pingTimeout bounds each dependency check behind GET /api/ready.
const pingTimeout = 5 * time.Second

// Pinger is a dependency that GET /api/ready checks. Ping must be safe for
// concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is usable.
	Ping(ctx context.Context) error

	// Name labels the dependency in the readiness body, e.g. "store_root".
	Name() string
}

// healthResponse is the GET /api/health body.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// handleHealth reports liveness without touching any dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthResponse{Status: "ok", Version: version.Version})
}

// readyCheck is one dependency's line in the readiness body.
type readyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// readyResponse is the GET /api/ready body. Checks keeps the order of
// Config.Pingers.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady pings every configured dependency in turn. Any failure turns
// the response into a 503; the body lists each result either way.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true, Checks: make([]readyCheck, 0, len(s.pingers))}
	for _, p := range s.pingers {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		err := p.Ping(ctx)
		cancel()

		c := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			c.Error = err.Error()
			resp.Ready = false
			log.Warn("dependency not ready", slog.String("dependency", p.Name()), slog.Any("error", err))
		}
		resp.Checks = append(resp.Checks, c)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
