package server

import (
	"net/http"
	"time"

	"github.com/54b3r/semsearch-go/internal/service"
)

// handleSearch handles POST /api/search/query.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req service.SearchRequest
	if err := decodeJSON(w, r, s.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := withTimeout(r.Context(), s.cfg.SearchTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.svc.Search(ctx, req)
	s.metrics.observeSearch("single", err, time.Since(start))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleSearchBatch handles POST /api/search/batch. Per-query failures are
// reported inside a 200 response; only request-level failures are non-2xx.
func (s *Server) handleSearchBatch(w http.ResponseWriter, r *http.Request) {
	var req service.BatchSearchRequest
	if err := decodeJSON(w, r, s.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := withTimeout(r.Context(), s.cfg.SearchTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.svc.SearchBatch(ctx, req)
	s.metrics.observeSearch("batch", err, time.Since(start))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleHistory handles GET /api/search/history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.svc.History(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"searches": entries,
		"total":    len(entries),
	})
}
