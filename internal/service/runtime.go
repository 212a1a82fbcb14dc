package service

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/54b3r/semsearch-go/internal/audit"
	"github.com/54b3r/semsearch-go/internal/backend"
	"github.com/54b3r/semsearch-go/internal/backend/chroma"
	"github.com/54b3r/semsearch-go/internal/backend/flat"
	"github.com/54b3r/semsearch-go/internal/backend/qdrant"
	"github.com/54b3r/semsearch-go/internal/catalog"
	"github.com/54b3r/semsearch-go/internal/chunker"
	"github.com/54b3r/semsearch-go/internal/config"
	"github.com/54b3r/semsearch-go/internal/embedder"
	"github.com/54b3r/semsearch-go/internal/history"
	"github.com/54b3r/semsearch-go/internal/identity"
	"github.com/54b3r/semsearch-go/internal/index"
	"github.com/54b3r/semsearch-go/internal/ingestion"
	"github.com/54b3r/semsearch-go/internal/retrieval"
)

// Runtime is a fully wired Service plus the handles the serving layer needs
// for readiness checks and shutdown.
type Runtime struct {
	// Service is the wired service.
	Service *Service
	// Factory is the embedding factory, exposed for readiness checks.
	Factory *embedder.Factory
	// Qdrant is the remote backend, nil when QDRANT_HOST is unset.
	Qdrant *qdrant.Backend
	// StoreRoot is the directory holding every store.
	StoreRoot string
	// closers release resources in reverse order on Close.
	closers []func() error
}

// Open wires every component from cfg. Call Close when done.
func Open(cfg *config.Settings, log *slog.Logger) (*Runtime, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rt := &Runtime{StoreRoot: cfg.StoreDir}

	factory, err := embedder.NewFactory(cfg.Embedding, log)
	if err != nil {
		return nil, err
	}
	rt.Factory = factory

	backends := []backend.Backend{flat.New(), chroma.New()}
	if cfg.Qdrant.Host != "" {
		q, err := qdrant.New(qdrant.Config{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.TLS,
		})
		if err != nil {
			return nil, err
		}
		rt.Qdrant = q
		rt.closers = append(rt.closers, q.Close)
		backends = append(backends, q)
	}
	registry, err := backend.NewRegistry(backends...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	c, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	resolver := identity.NewResolver(cfg.StoreDir, cfg.Embedding.Namespace)
	pipeline, err := ingestion.NewPipeline(chunker.NewTransformer(c), index.NewBuilder(resolver, registry, log), log)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	var hist history.Recorder
	if cfg.HistoryDB != "" {
		h, err := history.Open(cfg.HistoryDB)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		hist = h
		rt.closers = append(rt.closers, h.Close)
	}

	svc, err := New(Deps{
		DataDir:         cfg.DataDir,
		DefaultVectorDB: cfg.DefaultVectorDB,
		Factory:         factory,
		Registry:        registry,
		Pipeline:        pipeline,
		Engine:          retrieval.NewEngine(resolver, registry, factory, log),
		Catalog:         catalog.New(resolver, log),
		History:         hist,
		Audit:           audit.New(log, cfg.Audit),
		Logger:          log,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Service = svc
	return rt, nil
}

// Close releases the history database and the Qdrant connection.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("service: close: %w", err)
	}
	return nil
}
