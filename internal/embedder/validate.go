package embedder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/config"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If a configured model or alias
// matches any of these, a warning is emitted so the operator knows they may
// have misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"vicuna",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate checks that the embedding configuration can serve requests. It
// returns an error when the configuration is clearly broken (unknown
// provider, missing credentials) and logs a warning when a configured model
// or alias looks like a chat model rather than an embedding model.
//
// This is a pre-flight check so operators get a clear error at startup
// rather than a cryptic failure during the first embed call.
func Validate(cfg config.EmbeddingSettings, log *slog.Logger) error {
	switch cfg.Provider {
	case ProviderOllama, ProviderTEI, ProviderHash:

	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: %w: provider openai requires EMBEDDING_API_KEY", apperr.ErrInvalidArgument)
		}

	case ProviderAzure:
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: %w: provider azure requires EMBEDDING_API_KEY", apperr.ErrInvalidArgument)
		}
		if cfg.Endpoint == "" {
			return fmt.Errorf("embedder: %w: provider azure requires EMBEDDING_ENDPOINT", apperr.ErrInvalidArgument)
		}

	default:
		return fmt.Errorf("embedder: %w: unknown provider %q, valid values: ollama, openai, azure, tei, hash",
			apperr.ErrInvalidArgument, cfg.Provider)
	}

	if len(cfg.Models) == 0 {
		return fmt.Errorf("embedder: %w: no embedding models configured", apperr.ErrInvalidArgument)
	}

	names := append([]string{}, cfg.Models...)
	for _, alias := range cfg.Aliases {
		names = append(names, alias)
	}
	for _, name := range names {
		if looksLikeChatModel(name) {
			log.Warn("embedder: model looks like a chat model, not an embedding model; "+
				"this will likely produce poor or broken embeddings",
				slog.String("model", name),
				slog.String("hint", "use a dedicated embedding model e.g. all-minilm, nomic-embed-text"),
			)
		}
	}

	return nil
}
