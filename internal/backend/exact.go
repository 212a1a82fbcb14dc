package backend

import (
	"context"
	"fmt"
	"slices"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/rag"
)

// Exact is an in-memory brute-force index using squared Euclidean
// distance, the metric of a FAISS IndexFlatL2 and of Chroma's default "l2"
// space. Backends that persist to local files load into an Exact.
type Exact struct {
	// dim is the vector length.
	dim int

	// vectors holds the indexed vectors in insertion order.
	vectors [][]float32

	// payloads is parallel to vectors.
	payloads []rag.Payload
}

// NewExact validates its input and returns an Exact over it. The slices are
// retained, not copied.
func NewExact(vectors [][]float32, payloads []rag.Payload) (*Exact, error) {
	dim, err := CheckInput(vectors, payloads)
	if err != nil {
		return nil, err
	}
	return &Exact{dim: dim, vectors: vectors, payloads: payloads}, nil
}

// Search scans every vector. Equal distances keep insertion order.
func (e *Exact) Search(ctx context.Context, query []float32, k int) ([]rag.Hit, error) {
	if len(query) != e.dim {
		return nil, fmt.Errorf("backend: %w: query has length %d, index has %d", apperr.ErrBackend, len(query), e.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type scored struct {
		i int
		d float32
	}
	all := make([]scored, len(e.vectors))
	for i, v := range e.vectors {
		all[i] = scored{i: i, d: SquaredL2(query, v)}
	}
	slices.SortStableFunc(all, func(a, b scored) int {
		switch {
		case a.d < b.d:
			return -1
		case a.d > b.d:
			return 1
		}
		return 0
	})

	k = min(k, len(all))
	hits := make([]rag.Hit, k)
	for j := range k {
		hits[j] = rag.Hit{Payload: e.payloads[all[j].i], Distance: all[j].d}
	}
	return hits, nil
}

// Len returns the number of vectors.
func (e *Exact) Len() int { return len(e.vectors) }

// Dimension returns the vector length.
func (e *Exact) Dimension() int { return e.dim }

// Vectors exposes the indexed vectors for persistence.
func (e *Exact) Vectors() [][]float32 { return e.vectors }

// Payloads exposes the stored payloads for persistence.
func (e *Exact) Payloads() []rag.Payload { return e.payloads }

// Close is a no-op.
func (e *Exact) Close() error { return nil }

// SquaredL2 returns the squared Euclidean distance between equal-length vectors.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
