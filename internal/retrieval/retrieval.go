// Package retrieval answers natural-language queries against a persisted
// store: it loads the store's index, embeds each query with the model the
// store was built with and ranks the nearest chunks.
//
// Nothing is cached between calls, so a store rebuilt mid-session is seen on
// the next search.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/backend"
	"github.com/54b3r/semsearch-go/internal/embedder"
	"github.com/54b3r/semsearch-go/internal/identity"
	"github.com/54b3r/semsearch-go/internal/manifest"
	"github.com/54b3r/semsearch-go/internal/rag"
)

// Accepted top_k range, inclusive.
const (
	MinTopK = 1
	MaxTopK = 100
)

// Providers hands out the embedding provider for a model name.
// *embedder.Factory satisfies it.
type Providers interface {
	Get(model string) (*embedder.Provider, error)
}

// QueryResult is one entry of a SearchMany response. Err is set when that
// query alone failed; Results is then empty.
type QueryResult struct {
	// Query is the query text as given.
	Query string

	// Results are ranked best first.
	Results []rag.SearchResult

	// Err is the per-query failure, if any.
	Err error
}

// Engine runs searches. It is safe for concurrent use.
type Engine struct {
	// resolver maps store keys to directories.
	resolver *identity.Resolver

	// registry loads indexes by backend name.
	registry *backend.Registry

	// providers embeds queries.
	providers Providers

	// log receives fallback and skip notices.
	log *slog.Logger
}

// NewEngine returns an Engine. A nil log uses slog.Default().
func NewEngine(resolver *identity.Resolver, registry *backend.Registry, providers Providers, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{resolver: resolver, registry: registry, providers: providers, log: log}
}

// Similarity converts a squared L2 distance into a score in (0, 1].
// Slightly negative distances from rounding count as zero.
func Similarity(d float32) float64 {
	return 1 / (1 + float64(max(d, 0)))
}

// CheckTopK rejects top_k outside [MinTopK, MaxTopK].
func CheckTopK(topK int) error {
	if topK < MinTopK || topK > MaxTopK {
		return apperr.Invalidf("top_k must be between %d and %d, got %d", MinTopK, MaxTopK, topK)
	}
	return nil
}

// Search returns the topK chunks of store key nearest to query.
func (e *Engine) Search(ctx context.Context, query, key string, topK int) ([]rag.SearchResult, error) {
	if err := CheckTopK(topK); err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("retrieval: %w", apperr.Invalidf("query must not be empty"))
	}

	s, err := e.open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer s.close()

	return s.search(ctx, query, topK)
}

// SearchMany runs every query against one load of store key. Blank queries
// are skipped and do not appear in the output; the rest keep their input
// order. A failure of one query is reported in its QueryResult and does not
// affect the others. Only an unloadable store fails the whole call.
func (e *Engine) SearchMany(ctx context.Context, queries []string, key string, topK int) ([]QueryResult, error) {
	if err := CheckTopK(topK); err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("retrieval: %w", apperr.Invalidf("queries must not be empty"))
	}

	s, err := e.open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer s.close()

	kept := make([]string, 0, len(queries))
	for i, q := range queries {
		if strings.TrimSpace(q) == "" {
			e.log.Warn("skipping blank query", "store", key, "position", i)
			continue
		}
		kept = append(kept, q)
	}

	out := make([]QueryResult, len(kept))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, q := range kept {
		g.Go(func() error {
			res, err := s.search(ctx, q, topK)
			if err != nil {
				e.log.Warn("query failed", "store", key, "query", q, "error", err)
				res = []rag.SearchResult{}
			}
			out[i] = QueryResult{Query: q, Results: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// store is a loaded index plus the provider for its model.
type store struct {
	// key is the store key.
	key string

	// index is the loaded backend index.
	index backend.Index

	// provider embeds queries with the store's model.
	provider *embedder.Provider
}

// open resolves key and loads its index. Keys that are malformed or name
// no directory fail with apperr.ErrStoreNotFound.
func (e *Engine) open(ctx context.Context, key string) (*store, error) {
	dir, err := e.resolver.ResolvePath(key)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w: %q: %v", apperr.ErrStoreNotFound, key, err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("retrieval: %w: %q", apperr.ErrStoreNotFound, key)
	}

	id, m, err := e.identify(key, dir)
	if err != nil {
		return nil, err
	}

	provider, err := e.providers.Get(id.Model)
	if err != nil {
		return nil, fmt.Errorf("retrieval: store %q: %w: %v", key, apperr.ErrModelUnavailable, err)
	}
	be, err := e.registry.Get(id.Backend)
	if err != nil {
		return nil, fmt.Errorf("retrieval: store %q: %w", key, err)
	}

	dataDir, err := manifest.DataDir(dir, m)
	if err != nil {
		return nil, fmt.Errorf("retrieval: store %q: %w: %w", key, apperr.ErrBackend, err)
	}
	idx, err := be.Load(ctx, dataDir)
	if err != nil {
		return nil, fmt.Errorf("retrieval: load store %q: %w", key, err)
	}
	if m != nil && m.EmbeddingDimension > 0 && m.EmbeddingDimension != idx.Dimension() {
		_ = idx.Close()
		return nil, fmt.Errorf("retrieval: %w: store %q index dimension %d, manifest says %d",
			apperr.ErrBackend, key, idx.Dimension(), m.EmbeddingDimension)
	}
	return &store{key: key, index: idx, provider: provider}, nil
}

// identify returns the store identity, preferring the manifest and falling
// back to decoding the key. m is nil on fallback.
func (e *Engine) identify(key, dir string) (identity.Identity, *manifest.Manifest, error) {
	m, err := manifest.Read(dir)
	if err == nil {
		return identity.Identity{Backend: m.VectorDB, Model: m.EmbeddingModel}, m, nil
	}
	if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, apperr.ErrCorruptManifest) {
		return identity.Identity{}, nil, fmt.Errorf("retrieval: store %q: %w", key, err)
	}

	id, perr := e.resolver.ParseKey(key)
	if perr != nil {
		return identity.Identity{}, nil, fmt.Errorf("retrieval: %w: %q: %v", apperr.ErrStoreNotFound, key, perr)
	}
	e.log.Warn("manifest unavailable, identity taken from store name", "store", key, "model", id.Model, "error", err)
	return id, nil, nil
}

// search embeds one query and ranks its hits.
func (s *store) search(ctx context.Context, query string, topK int) ([]rag.SearchResult, error) {
	vec, err := s.provider.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	hits, err := s.index.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval: search %q: %w", s.key, err)
	}

	results := make([]rag.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = rag.SearchResult{
			Rank:       i + 1,
			Text:       h.Payload.Text,
			Source:     h.Payload.Source,
			Similarity: Similarity(h.Distance),
		}
	}
	return results, nil
}

func (s *store) close() {
	_ = s.index.Close()
}
