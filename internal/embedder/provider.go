package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/rag"
)

// sampleText is embedded once per model to discover the vector length.
const sampleText = "test"

// maxInflightBatches bounds concurrent provider calls within one EmbedMany.
const maxInflightBatches = 4

// Provider binds one fully qualified model name to a raw rag.Embedder and
// enforces the model contract: every vector is L2-normalised, every vector
// from this model has the same length, and failures are reported as
// apperr.ErrModelUnavailable rather than silently served by another model.
//
// Provider is safe for concurrent use.
type Provider struct {
	// model is the fully qualified model name (e.g. "sentence-transformers/all-MiniLM-L6-v2").
	model string

	// backend performs the raw embedding calls.
	backend rag.Embedder

	// batchSize caps the number of texts per backend call.
	batchSize int

	// mu guards dim.
	mu sync.Mutex

	// dim is the memoised vector length; zero until first discovered.
	dim int
}

var _ embedding.Embedder = (*Provider)(nil)

// NewProvider binds model to backend. batchSize <= 0 sends each EmbedMany
// call as a single request.
func NewProvider(model string, backend rag.Embedder, batchSize int) *Provider {
	return &Provider{model: model, backend: backend, batchSize: batchSize}
}

// Model returns the fully qualified model name.
func (p *Provider) Model() string { return p.model }

// EmbedOne embeds a single text.
func (p *Provider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds texts in batches and returns vectors parallel to texts.
func (p *Provider) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	size := p.batchSize
	if size <= 0 || size > len(texts) {
		size = len(texts)
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInflightBatches)
	for lo := 0; lo < len(texts); lo += size {
		hi := min(lo+size, len(texts))
		g.Go(func() error {
			vecs, err := p.backend.Embed(gctx, texts[lo:hi])
			if err != nil {
				return err
			}
			if len(vecs) != hi-lo {
				return fmt.Errorf("%w: model %q returned %d vectors for %d texts",
					apperr.ErrModelUnavailable, p.model, len(vecs), hi-lo)
			}
			copy(out[lo:hi], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() == nil && !errors.Is(err, apperr.ErrModelUnavailable) {
			err = fmt.Errorf("%w: %w", apperr.ErrModelUnavailable, err)
		}
		return nil, fmt.Errorf("embedder: %s: %w", p.model, err)
	}

	want := len(out[0])
	for i, v := range out {
		if len(v) == 0 || len(v) != want {
			return nil, fmt.Errorf("embedder: %w: model %q returned vector %d with length %d, want %d",
				apperr.ErrModelUnavailable, p.model, i, len(v), want)
		}
		if err := normalize(v); err != nil {
			return nil, fmt.Errorf("embedder: %w: model %q vector %d: %v", apperr.ErrModelUnavailable, p.model, i, err)
		}
	}
	return out, nil
}

// Dimension returns the model's vector length, embedding the sample text on
// first use and memoising the result. Failed lookups are not memoised.
func (p *Provider) Dimension(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dim > 0 {
		return p.dim, nil
	}
	v, err := p.EmbedOne(ctx, sampleText)
	if err != nil {
		return 0, err
	}
	p.dim = len(v)
	return p.dim, nil
}

// Ping delegates to the backend when it can report reachability cheaply and
// falls back to embedding the sample text.
func (p *Provider) Ping(ctx context.Context) error {
	if pinger, ok := p.backend.(rag.Pinger); ok {
		return pinger.Ping(ctx)
	}
	_, err := p.EmbedOne(ctx, sampleText)
	return err
}

// EmbedStrings satisfies eino's embedding.Embedder.
func (p *Provider) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	vecs, err := p.EmbedMany(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(vecs))
	for i, v := range vecs {
		f := make([]float64, len(v))
		for j, x := range v {
			f[j] = float64(x)
		}
		out[i] = f
	}
	return out, nil
}

// normalize scales v to unit L2 length in place.
func normalize(v []float32) error {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 || math.IsNaN(sumSq) || math.IsInf(sumSq, 0) {
		return fmt.Errorf("cannot normalise vector with squared norm %v", sumSq)
	}
	inv := 1 / math.Sqrt(sumSq)
	for i, x := range v {
		v[i] = float32(float64(x) * inv)
	}
	return nil
}
