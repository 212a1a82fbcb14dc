// Package catalog lists the stores under the store root so clients can
// discover valid keys before querying.
//
// Listing never fails because of one bad store. A missing or unparsable
// manifest degrades to a summary synthesised from the directory name, with
// the chunk count reported as "unknown".
package catalog

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/identity"
	"github.com/54b3r/semsearch-go/internal/manifest"
)

// Unknown is reported for fields a fallback summary cannot know.
const Unknown = "unknown"

// ManifestStatus says where a summary's fields came from.
type ManifestStatus string

const (
	// StatusOK means the manifest was read.
	StatusOK ManifestStatus = "ok"
	// StatusMissing means there was no manifest.
	StatusMissing ManifestStatus = "missing"
	// StatusCorrupt means the manifest could not be parsed.
	StatusCorrupt ManifestStatus = "corrupt"
)

// ChunkCount is a chunk total that may be unknown. It marshals as a JSON
// number when known and as the string "unknown" otherwise.
type ChunkCount struct {
	// N is the count; meaningful only when Known.
	N int

	// Known is false for fallback summaries.
	Known bool
}

// Count returns a known ChunkCount.
func Count(n int) ChunkCount { return ChunkCount{N: n, Known: true} }

// String returns the count or "unknown".
func (c ChunkCount) String() string {
	if !c.Known {
		return Unknown
	}
	return strconv.Itoa(c.N)
}

// MarshalJSON implements json.Marshaler.
func (c ChunkCount) MarshalJSON() ([]byte, error) {
	if !c.Known {
		return json.Marshal(Unknown)
	}
	return json.Marshal(c.N)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *ChunkCount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != Unknown {
			return fmt.Errorf("catalog: invalid chunk count %q", s)
		}
		*c = ChunkCount{}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("catalog: invalid chunk count: %w", err)
	}
	*c = Count(n)
	return nil
}

// StoreSummary describes one store.
type StoreSummary struct {
	// StoreName is the store key, usable as vector_store_id.
	StoreName string `json:"store_name"`

	// VectorDB is the backend name.
	VectorDB string `json:"vector_db"`

	// EmbeddingModel is the fully qualified model name.
	EmbeddingModel string `json:"embedding_model"`

	// NumChunks is the indexed chunk count, or unknown.
	NumChunks ChunkCount `json:"num_chunks"`

	// CreatedAt is the manifest timestamp, or "unknown".
	CreatedAt string `json:"created_at"`

	// EmbeddingDimension is the vector length when recorded.
	EmbeddingDimension int `json:"embedding_dimension,omitempty"`

	// IndexVersion is the active index version when recorded.
	IndexVersion string `json:"index_version,omitempty"`

	// ManifestStatus is ok, missing or corrupt.
	ManifestStatus ManifestStatus `json:"manifest_status"`
}

// Catalog reads store directories under a resolver's root.
type Catalog struct {
	// resolver supplies the root and decodes directory names.
	resolver *identity.Resolver

	// log receives fallback warnings.
	log *slog.Logger
}

// New returns a Catalog. A nil log uses slog.Default().
func New(resolver *identity.Resolver, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{resolver: resolver, log: log}
}

// List returns a summary per store directory, in directory order. Hidden
// entries (including in-flight builds) and plain files are skipped, as are
// directories whose names cannot be decoded and that have no manifest.
// A missing root yields an empty list.
func (c *Catalog) List(ctx context.Context) ([]StoreSummary, error) {
	entries, err := os.ReadDir(c.resolver.Root())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: list %s: %w", c.resolver.Root(), err)
	}

	out := make([]StoreSummary, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		s, err := c.summarize(e.Name())
		if err != nil {
			c.log.Warn("skipping unrecognised store directory", "dir", e.Name(), "error", err)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Info returns the summary for key, or apperr.ErrStoreNotFound when no such
// store exists.
func (c *Catalog) Info(ctx context.Context, key string) (StoreSummary, error) {
	if err := ctx.Err(); err != nil {
		return StoreSummary{}, err
	}
	dir, err := c.resolver.ResolvePath(key)
	if err != nil {
		return StoreSummary{}, fmt.Errorf("catalog: %w: %q: %v", apperr.ErrStoreNotFound, key, err)
	}
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return StoreSummary{}, fmt.Errorf("catalog: %w: %q", apperr.ErrStoreNotFound, key)
	}
	s, err := c.summarize(key)
	if err != nil {
		return StoreSummary{}, fmt.Errorf("catalog: %w: %q: %v", apperr.ErrStoreNotFound, key, err)
	}
	return s, nil
}

// summarize reads one store's manifest, falling back to the key.
func (c *Catalog) summarize(key string) (StoreSummary, error) {
	dir, err := c.resolver.ResolvePath(key)
	if err != nil {
		return StoreSummary{}, err
	}

	m, err := manifest.Read(dir)
	if err == nil {
		return StoreSummary{
			StoreName:          key,
			VectorDB:           m.VectorDB,
			EmbeddingModel:     m.EmbeddingModel,
			NumChunks:          Count(m.NumChunks),
			CreatedAt:          m.CreatedAt,
			EmbeddingDimension: m.EmbeddingDimension,
			IndexVersion:       m.IndexVersion,
			ManifestStatus:     StatusOK,
		}, nil
	}

	status := StatusCorrupt
	if errors.Is(err, os.ErrNotExist) {
		status = StatusMissing
	}
	id, perr := c.resolver.ParseKey(key)
	if perr != nil {
		return StoreSummary{}, perr
	}
	c.log.Warn("manifest unavailable, using directory name", "store", key, "status", status, "error", err)
	return StoreSummary{
		StoreName:      key,
		VectorDB:       id.Backend,
		EmbeddingModel: id.Model,
		CreatedAt:      Unknown,
		ManifestStatus: status,
	}, nil
}

// SortSummaries orders summaries by (vector_db, embedding_model), then key.
func SortSummaries(s []StoreSummary) {
	slices.SortFunc(s, func(a, b StoreSummary) int {
		return cmp.Or(
			cmp.Compare(a.VectorDB, b.VectorDB),
			cmp.Compare(a.EmbeddingModel, b.EmbeddingModel),
			cmp.Compare(a.StoreName, b.StoreName),
		)
	})
}
