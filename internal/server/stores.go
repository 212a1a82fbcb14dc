package server

import (
	"net/http"
	"time"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/logging"
	"github.com/54b3r/semsearch-go/internal/service"
)

// handleModels handles GET /api/embeddings/models.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.svc.Models())
}

// handleCreateStore handles POST /api/vectorstore/create. It rebuilds the
// requested store from the data directory and blocks until the build is
// committed or BuildTimeout expires.
func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req service.BuildRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, s.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	ctx, cancel := withTimeout(r.Context(), s.cfg.BuildTimeout)
	defer cancel()

	log := logging.FromContext(ctx)
	start := time.Now()
	resp, err := s.svc.Build(ctx, req, func(msg string) { log.Info("build progress", "msg", msg) })
	db := req.VectorDB
	if resp != nil {
		db = resp.VectorDB
	}
	s.metrics.observeBuild(db, err, time.Since(start))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleListStores handles GET /api/vectorstore/list.
func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := s.svc.ListStores(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"vector_stores": stores,
		"total":         len(stores),
	})
}

// handleStoreInfo handles GET /api/vectorstore/info?id=<key>.
func (s *Server) handleStoreInfo(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, r, apperr.Invalidf("query parameter id is required"))
		return
	}
	info, err := s.svc.StoreInfo(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, info)
}
