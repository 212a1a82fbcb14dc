// Package ingestion loads source documents from the data directory and runs
// them through chunking and index building. It is invoked by the
// `semsearch build` command and the vector store create endpoint.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/document"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/budget"
	"github.com/54b3r/semsearch-go/internal/chunker"
	"github.com/54b3r/semsearch-go/internal/index"
)

// Result summarises one pipeline run.
type Result struct {
	// Handle describes the committed store.
	Handle *index.Handle

	// NumDocuments is the number of documents loaded.
	NumDocuments int

	// NumChunks is the number of chunks indexed.
	NumChunks int

	// Elapsed is the wall time of the run.
	Elapsed time.Duration
}

// Pipeline orchestrates the load → chunk → embed → index flow.
type Pipeline struct {
	// splitter turns loaded documents into chunk documents.
	splitter document.Transformer

	// builder embeds chunks and commits the store.
	builder *index.Builder

	// log receives progress messages.
	log *slog.Logger
}

// NewPipeline constructs a Pipeline from the provided dependencies.
// splitter is usually chunker.NewTransformer.
func NewPipeline(splitter document.Transformer, b *index.Builder, log *slog.Logger) (*Pipeline, error) {
	if splitter == nil {
		return nil, fmt.Errorf("ingestion: splitter must not be nil")
	}
	if b == nil {
		return nil, fmt.Errorf("ingestion: builder must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{splitter: splitter, builder: b, log: log}, nil
}

// Run builds the (backendName, model) store from the documents in dataDir.
// The backend and model are validated before any file is read. Progress is
// reported via the optional progress callback.
func (p *Pipeline) Run(ctx context.Context, dataDir string, emb index.Embedder, backendName, model string, progress func(msg string)) (*Result, error) {
	if progress == nil {
		progress = func(string) {}
	}
	start := time.Now()

	id, err := p.builder.Check(emb, backendName, model)
	if err != nil {
		return nil, err
	}

	progress(fmt.Sprintf("loading documents from %s", dataDir))
	docs, err := LoadDir(ctx, dataDir, p.log)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("ingestion: %w: no .txt or .md documents in %s", apperr.ErrEmptyInput, dataDir)
	}

	split, err := p.splitter.Transform(ctx, chunker.FromDocuments(docs))
	if err != nil {
		return nil, fmt.Errorf("ingestion: split documents: %w", err)
	}
	chunks, err := chunker.ToChunks(split)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}
	progress(fmt.Sprintf("chunked %d documents into %d chunks", len(docs), len(chunks)))
	if r := budget.Check(chunks, model); r.Over > 0 {
		p.log.Warn("chunks exceed the model input window and will be truncated when embedded",
			slog.String("model", model),
			slog.Int("over", r.Over),
			slog.Int("largest_tokens", r.Largest),
			slog.Int("limit_tokens", r.Limit),
		)
	}

	progress(fmt.Sprintf("embedding with %s and indexing into %s", model, id.Backend))
	h, err := p.builder.Build(ctx, chunks, emb, id.Backend, model)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Handle:       h,
		NumDocuments: len(docs),
		NumChunks:    len(chunks),
		Elapsed:      time.Since(start),
	}
	progress(fmt.Sprintf("built store %s (%d chunks, dimension %d)", h.Key, res.NumChunks, h.Dimension))
	return res, nil
}
