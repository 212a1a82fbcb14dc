// Package embedder turns text into unit-length dense vectors.
//
// Raw providers (Ollama, OpenAI / Azure OpenAI, Hugging Face TEI and the
// offline hash embedder) talk to their backends over plain HTTP or run
// in-process. [Provider] wraps one of them for a single fully qualified model
// name and enforces normalisation and dimension bookkeeping. [Factory] maps
// the configured set of supported model names onto Providers.
package embedder

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/config"
	"github.com/54b3r/semsearch-go/internal/rag"
)

// Provider names accepted in EMBEDDING_PROVIDER.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
	ProviderTEI    = "tei"
	ProviderHash   = "hash"
)

const (
	defaultOllamaHost     = "http://localhost:11434"
	defaultOpenAIBaseURL  = "https://api.openai.com/v1"
	defaultTEIHost        = "http://localhost:8080"
	defaultHashDimensions = 384
)

// builtinAliases maps fully qualified names to provider model tags when the
// provider publishes the model under a different name.
var builtinAliases = map[string]map[string]string{
	ProviderOllama: {
		"sentence-transformers/all-MiniLM-L6-v2": "all-minilm",
	},
}

// knownDimensions records the published output length of common
// sentence-transformers models. Only the hash provider consults it, so that
// offline stores have the same shape as the real model's.
var knownDimensions = map[string]int{
	"all-MiniLM-L6-v2":        384,
	"all-MiniLM-L12-v2":       384,
	"all-mpnet-base-v2":       768,
	"paraphrase-MiniLM-L3-v2": 384,
}

// Factory hands out one memoised Provider per supported model.
// It is safe for concurrent use.
type Factory struct {
	// cfg is the resolved embedding configuration.
	cfg config.EmbeddingSettings

	// log receives configuration warnings.
	log *slog.Logger

	// mu guards providers.
	mu sync.Mutex

	// providers caches Providers by fully qualified model name so each
	// model's dimension is discovered once per process.
	providers map[string]*Provider
}

// NewFactory validates cfg and returns a Factory.
func NewFactory(cfg config.EmbeddingSettings, log *slog.Logger) (*Factory, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := Validate(cfg, log); err != nil {
		return nil, err
	}
	return &Factory{
		cfg:       cfg,
		log:       log,
		providers: make(map[string]*Provider),
	}, nil
}

// Supported returns the configured model names in configuration order.
func (f *Factory) Supported() []string {
	return slices.Clone(f.cfg.Models)
}

// Default returns the default model name.
func (f *Factory) Default() string {
	return f.cfg.DefaultModel
}

// ProviderName returns the configured raw provider kind.
func (f *Factory) ProviderName() string {
	return f.cfg.Provider
}

// Get returns the Provider for model. Names outside the supported set fail
// with apperr.ErrUnsupportedModel; there is no fallback to another model.
func (f *Factory) Get(model string) (*Provider, error) {
	if !slices.Contains(f.cfg.Models, model) {
		return nil, fmt.Errorf("embedder: %w: %q (supported: %s)",
			apperr.ErrUnsupportedModel, model, strings.Join(f.cfg.Models, ", "))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.providers[model]; ok {
		return p, nil
	}
	backend, err := f.newBackend(model)
	if err != nil {
		return nil, err
	}
	p := NewProvider(model, backend, f.cfg.BatchSize)
	f.providers[model] = p
	return p, nil
}

// RemoteName returns the name sent to the provider for model: an explicit
// alias, then a built-in alias, then the model's short name.
func (f *Factory) RemoteName(model string) string {
	if a, ok := f.cfg.Aliases[model]; ok {
		return a
	}
	if a, ok := builtinAliases[f.cfg.Provider][model]; ok {
		return a
	}
	return shortName(model)
}

// newBackend constructs the raw embedder for model.
func (f *Factory) newBackend(model string) (rag.Embedder, error) {
	remote := f.RemoteName(model)
	switch f.cfg.Provider {
	case ProviderOllama:
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  orDefault(f.cfg.Endpoint, defaultOllamaHost),
			Model: remote,
		}), nil

	case ProviderOpenAI:
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL: orDefault(f.cfg.Endpoint, defaultOpenAIBaseURL),
			APIKey:  f.cfg.APIKey,
			Model:   remote,
		}), nil

	case ProviderAzure:
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(f.cfg.Endpoint, "/") + "/openai",
			APIKey:     f.cfg.APIKey,
			Model:      remote,
			Azure:      true,
			APIVersion: f.cfg.APIVersion,
		}), nil

	case ProviderTEI:
		return NewTEIEmbedder(orDefault(f.cfg.Endpoint, defaultTEIHost), remote), nil

	case ProviderHash:
		dim, ok := knownDimensions[shortName(model)]
		if !ok {
			dim = defaultHashDimensions
		}
		return NewHashEmbedder(dim), nil

	default:
		return nil, fmt.Errorf("embedder: unknown provider %q", f.cfg.Provider)
	}
}

// shortName returns the final "/" segment of a model name.
func shortName(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

// orDefault returns v, or fallback when v is empty.
func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
