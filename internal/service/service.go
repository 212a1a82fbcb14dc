// Package service exposes the indexing and retrieval core through
// transport-agnostic request and response shapes. The HTTP server and the
// CLI both call it, so defaults, validation and history recording behave
// the same on every surface.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/audit"
	"github.com/54b3r/semsearch-go/internal/backend"
	"github.com/54b3r/semsearch-go/internal/catalog"
	"github.com/54b3r/semsearch-go/internal/embedder"
	"github.com/54b3r/semsearch-go/internal/history"
	"github.com/54b3r/semsearch-go/internal/ingestion"
	"github.com/54b3r/semsearch-go/internal/rag"
	"github.com/54b3r/semsearch-go/internal/retrieval"
)

// DefaultTopK is used when a search request omits top_k.
const DefaultTopK = 5

// Default and maximum history page sizes.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 1000
)

// Deps holds the collaborators a Service is built from.
type Deps struct {
	// DataDir is where source documents are loaded from.
	DataDir string
	// DefaultVectorDB is used when a build request omits vector_db.
	DefaultVectorDB string
	// Factory resolves embedding models.
	Factory *embedder.Factory
	// Registry lists the available backends.
	Registry *backend.Registry
	// Pipeline runs builds.
	Pipeline *ingestion.Pipeline
	// Engine runs searches.
	Engine *retrieval.Engine
	// Catalog lists stores.
	Catalog *catalog.Catalog
	// History records searches. Optional.
	History history.Recorder
	// Audit writes build and search records. Optional.
	Audit *audit.Logger
	// Logger is the structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Service is safe for concurrent use.
type Service struct {
	// deps are the wired collaborators.
	deps Deps
	// log is the structured logger.
	log *slog.Logger
}

// New checks that the required collaborators are present.
func New(d Deps) (*Service, error) {
	switch {
	case d.Factory == nil:
		return nil, errors.New("service: embedding factory must not be nil")
	case d.Registry == nil:
		return nil, errors.New("service: backend registry must not be nil")
	case d.Pipeline == nil:
		return nil, errors.New("service: pipeline must not be nil")
	case d.Engine == nil:
		return nil, errors.New("service: retrieval engine must not be nil")
	case d.Catalog == nil:
		return nil, errors.New("service: catalog must not be nil")
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{deps: d, log: log}, nil
}

// ---------------------------------------------------------------------------
// Models
// ---------------------------------------------------------------------------

// ModelsResponse lists what a build may ask for.
type ModelsResponse struct {
	// EmbeddingModels are the supported model names.
	EmbeddingModels []string `json:"embedding_models"`
	// DefaultEmbeddingModel is used when a build omits embedding_model.
	DefaultEmbeddingModel string `json:"default_embedding_model"`
	// VectorDBs are the registered backend names.
	VectorDBs []string `json:"vector_dbs"`
	// DefaultVectorDB is used when a build omits vector_db.
	DefaultVectorDB string `json:"default_vector_db"`
}

// Models returns the supported models and backends.
func (s *Service) Models() ModelsResponse {
	return ModelsResponse{
		EmbeddingModels:       s.deps.Factory.Supported(),
		DefaultEmbeddingModel: s.deps.Factory.Default(),
		VectorDBs:             s.deps.Registry.Names(),
		DefaultVectorDB:       s.deps.DefaultVectorDB,
	}
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// BuildRequest asks for a store to be (re)built from the data directory.
type BuildRequest struct {
	// EmbeddingModel is the fully qualified model name. Optional.
	EmbeddingModel string `json:"embedding_model"`
	// VectorDB is the backend name. Optional.
	VectorDB string `json:"vector_db"`
}

// BuildResponse reports a committed build.
type BuildResponse struct {
	// VectorStoreID is the key to search the new store with.
	VectorStoreID string `json:"vector_store_id"`
	// NumberOfDocuments is the number of documents loaded.
	NumberOfDocuments int `json:"number_of_documents"`
	// NumberOfChunks is the number of chunks indexed.
	NumberOfChunks int `json:"number_of_chunks"`
	// EmbeddingModel is the model used.
	EmbeddingModel string `json:"embedding_model"`
	// VectorDB is the backend used, in its registered spelling.
	VectorDB string `json:"vector_db"`
	// EmbeddingDimension is the vector length.
	EmbeddingDimension int `json:"embedding_dimension"`
	// TimeTakenSeconds is the wall time of the build.
	TimeTakenSeconds float64 `json:"time_taken_seconds"`
}

// Build rebuilds the (vector_db, embedding_model) store from the data
// directory. progress may be nil.
func (s *Service) Build(ctx context.Context, req BuildRequest, progress func(string)) (*BuildResponse, error) {
	start := time.Now()
	model := req.EmbeddingModel
	if model == "" {
		model = s.deps.Factory.Default()
	}
	db := req.VectorDB
	if db == "" {
		db = s.deps.DefaultVectorDB
	}

	resp, err := s.build(ctx, model, db, progress)
	rec := audit.BuildRecord{VectorDB: db, Model: model, Duration: time.Since(start), Err: err}
	if resp != nil {
		rec.Store = resp.VectorStoreID
		rec.NumChunks = resp.NumberOfChunks
	}
	s.deps.Audit.Build(ctx, rec)
	return resp, err
}

func (s *Service) build(ctx context.Context, model, db string, progress func(string)) (*BuildResponse, error) {
	provider, err := s.deps.Factory.Get(model)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	res, err := s.deps.Pipeline.Run(ctx, s.deps.DataDir, provider, db, model, progress)
	if err != nil {
		return nil, fmt.Errorf("service: build %s/%s: %w", db, model, err)
	}
	return &BuildResponse{
		VectorStoreID:      res.Handle.Key,
		NumberOfDocuments:  res.NumDocuments,
		NumberOfChunks:     res.NumChunks,
		EmbeddingModel:     res.Handle.Identity.Model,
		VectorDB:           res.Handle.Identity.Backend,
		EmbeddingDimension: res.Handle.Dimension,
		TimeTakenSeconds:   res.Elapsed.Seconds(),
	}, nil
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

// SearchRequest is a single-query search.
type SearchRequest struct {
	// Query is the natural-language query.
	Query string `json:"query"`
	// VectorStoreID is the store key.
	VectorStoreID string `json:"vector_store_id"`
	// TopK is the number of results; nil means DefaultTopK.
	TopK *int `json:"top_k,omitempty"`
}

// SearchResponse is the result of a single-query search.
type SearchResponse struct {
	// Query echoes the request query.
	Query string `json:"query"`
	// TotalResults is len(Results).
	TotalResults int `json:"total_results"`
	// VectorStoreUsed is the searched store key.
	VectorStoreUsed string `json:"vector_store_used"`
	// TimeTakenSeconds is the wall time of the search.
	TimeTakenSeconds float64 `json:"time_taken_seconds"`
	// Results are ranked best first.
	Results []rag.SearchResult `json:"results"`
}

// Search runs one query.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	topK := topKOrDefault(req.TopK)

	results, err := s.deps.Engine.Search(ctx, req.Query, req.VectorStoreID, topK)
	elapsed := time.Since(start)
	s.record(ctx, history.Entry{
		Query: req.Query, Store: req.VectorStoreID, TopK: topK,
		TotalResults: len(results), Error: errString(err), Duration: elapsed,
	})
	s.deps.Audit.Search(ctx, audit.SearchRecord{
		Store: req.VectorStoreID, Queries: 1, TopK: topK, Results: len(results), Duration: elapsed, Err: err,
	})
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	return &SearchResponse{
		Query:            req.Query,
		TotalResults:     len(results),
		VectorStoreUsed:  req.VectorStoreID,
		TimeTakenSeconds: elapsed.Seconds(),
		Results:          nonNil(results),
	}, nil
}

// BatchSearchRequest runs several queries against one store.
type BatchSearchRequest struct {
	// Queries are the query texts. Blank entries are skipped.
	Queries []string `json:"queries"`
	// VectorStoreID is the store key.
	VectorStoreID string `json:"vector_store_id"`
	// TopK is the number of results per query; nil means DefaultTopK.
	TopK *int `json:"top_k,omitempty"`
}

// QueryResponse is one query's outcome within a batch.
type QueryResponse struct {
	// Query is the query text.
	Query string `json:"query"`
	// TotalResults is len(Results).
	TotalResults int `json:"total_results"`
	// Results are ranked best first; empty when Error is set.
	Results []rag.SearchResult `json:"results"`
	// Error describes a failure of this query alone.
	Error string `json:"error,omitempty"`
	// ErrorKind is the stable kind of Error.
	ErrorKind apperr.Kind `json:"error_kind,omitempty"`
}

// BatchSearchResponse is the result of a batch search.
type BatchSearchResponse struct {
	// VectorStoreUsed is the searched store key.
	VectorStoreUsed string `json:"vector_store_used"`
	// TotalQueries is the number of non-blank queries run.
	TotalQueries int `json:"total_queries"`
	// TimeTakenSeconds is the wall time of the batch.
	TimeTakenSeconds float64 `json:"time_taken_seconds"`
	// Results holds one entry per non-blank query, in request order.
	Results []QueryResponse `json:"results"`
}

// SearchBatch runs every query against one load of the store. Per-query
// failures are reported inline; only request-level problems return an error.
func (s *Service) SearchBatch(ctx context.Context, req BatchSearchRequest) (*BatchSearchResponse, error) {
	start := time.Now()
	topK := topKOrDefault(req.TopK)

	out, err := s.deps.Engine.SearchMany(ctx, req.Queries, req.VectorStoreID, topK)
	elapsed := time.Since(start)
	if err != nil {
		s.deps.Audit.Search(ctx, audit.SearchRecord{
			Store: req.VectorStoreID, Queries: len(req.Queries), TopK: topK, Duration: elapsed, Err: err,
		})
		return nil, fmt.Errorf("service: %w", err)
	}

	resp := &BatchSearchResponse{
		VectorStoreUsed:  req.VectorStoreID,
		TotalQueries:     len(out),
		TimeTakenSeconds: elapsed.Seconds(),
		Results:          make([]QueryResponse, len(out)),
	}
	total := 0
	for i, qr := range out {
		r := QueryResponse{Query: qr.Query, TotalResults: len(qr.Results), Results: nonNil(qr.Results)}
		if qr.Err != nil {
			r.Error = qr.Err.Error()
			r.ErrorKind = apperr.KindOf(qr.Err)
		}
		resp.Results[i] = r
		total += len(qr.Results)
		s.record(ctx, history.Entry{
			Query: qr.Query, Store: req.VectorStoreID, TopK: topK,
			TotalResults: len(qr.Results), Error: errString(qr.Err), Duration: elapsed,
		})
	}
	s.deps.Audit.Search(ctx, audit.SearchRecord{
		Store: req.VectorStoreID, Queries: len(out), TopK: topK, Results: total, Duration: elapsed,
	})
	return resp, nil
}

// ---------------------------------------------------------------------------
// Catalog and history
// ---------------------------------------------------------------------------

// ListStores returns every store sorted by (vector_db, embedding_model).
func (s *Service) ListStores(ctx context.Context) ([]catalog.StoreSummary, error) {
	stores, err := s.deps.Catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	catalog.SortSummaries(stores)
	if stores == nil {
		stores = []catalog.StoreSummary{}
	}
	return stores, nil
}

// StoreInfo returns one store's summary.
func (s *Service) StoreInfo(ctx context.Context, id string) (*catalog.StoreSummary, error) {
	info, err := s.deps.Catalog.Info(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return &info, nil
}

// History returns up to limit recorded queries, newest first. limit <= 0
// means DefaultHistoryLimit; larger than MaxHistoryLimit is rejected.
func (s *Service) History(ctx context.Context, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return nil, fmt.Errorf("service: %w", apperr.Invalidf("limit must be at most %d", MaxHistoryLimit))
	}
	if s.deps.History == nil {
		return []history.Entry{}, nil
	}
	entries, err := s.deps.History.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return entries, nil
}

// record appends to history. Failures are logged and never fail a search.
func (s *Service) record(ctx context.Context, e history.Entry) {
	if s.deps.History == nil {
		return
	}
	if err := s.deps.History.Append(context.WithoutCancel(ctx), e); err != nil {
		s.log.Warn("failed to record search history", "store", e.Store, "error", err)
	}
}

func topKOrDefault(k *int) int {
	if k == nil {
		return DefaultTopK
	}
	return *k
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func nonNil(r []rag.SearchResult) []rag.SearchResult {
	if r == nil {
		return []rag.SearchResult{}
	}
	return r
}
