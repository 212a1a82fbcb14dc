package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/semsearch-go/internal/apperr"
)

// Defaults applied by FromEnv when the corresponding env var is unset.
const (
	DefaultDataDir      = "data"
	DefaultStoreDir     = "Vector_Store"
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	DefaultProvider     = "ollama"
	DefaultBatchSize    = 32
	DefaultNamespace    = "sentence-transformers"
	DefaultModel        = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultVectorDB     = "FAISS"
	DefaultQdrantPort   = 6334
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 8000
	DefaultRateLimit    = 5.0
	DefaultRateBurst    = 10

	// HistoryDisabled is the SEMSEARCH_HISTORY_DB value that turns history off.
	HistoryDisabled = "off"
)

// DefaultModels is the supported model set when EMBEDDING_MODELS is unset.
var DefaultModels = []string{
	"sentence-transformers/all-MiniLM-L6-v2",
	"sentence-transformers/all-mpnet-base-v2",
	"sentence-transformers/paraphrase-MiniLM-L3-v2",
}

// Settings is the explicit, fully resolved configuration handed to every
// component constructor. Nothing below the command layer reads env vars.
type Settings struct {
	// DataDir is where source documents are read from.
	DataDir string

	// StoreDir is the root under which every vector store lives.
	StoreDir string

	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by adjacent chunks.
	ChunkOverlap int

	// Embedding holds provider and model-set settings.
	Embedding EmbeddingSettings

	// DefaultVectorDB is the backend used when a request names none.
	DefaultVectorDB string

	// Qdrant holds the optional Qdrant backend connection. Empty Host disables it.
	Qdrant QdrantSettings

	// Server holds HTTP server settings.
	Server ServerSettings

	// HistoryDB is the SQLite history path; empty disables history.
	HistoryDB string

	// Audit enables audit records.
	Audit bool
}

// EmbeddingSettings holds the resolved embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is one of ollama, openai, azure, tei, hash.
	Provider string

	// Endpoint is the provider base URL; empty selects the provider default.
	Endpoint string

	// APIKey authenticates against hosted providers.
	APIKey string

	// APIVersion is the Azure OpenAI API version.
	APIVersion string

	// BatchSize caps the number of texts per provider call.
	BatchSize int

	// Namespace is the publisher prefix re-applied when parsing store names.
	Namespace string

	// Models is the supported set of fully qualified model names.
	Models []string

	// DefaultModel is used when a request names no model.
	DefaultModel string

	// Aliases maps fully qualified names to provider-specific names.
	Aliases map[string]string
}

// QdrantSettings holds the Qdrant connection.
type QdrantSettings struct {
	// Host is the Qdrant hostname. Empty means the backend is not registered.
	Host string

	// Port is the Qdrant gRPC port.
	Port int

	// APIKey is the optional Qdrant API key.
	APIKey string

	// TLS enables TLS for the gRPC connection.
	TLS bool
}

// ServerSettings holds HTTP server settings.
type ServerSettings struct {
	// Host is the bind address.
	Host string

	// Port is the TCP port.
	Port int

	// RateLimit is the sustained per-IP request rate; zero disables limiting.
	RateLimit float64

	// RateBurst is the per-IP burst size.
	RateBurst int

	// CORSOrigins lists allowed browser origins; empty disables CORS headers.
	CORSOrigins []string

	// SearchTimeout bounds a single search request.
	SearchTimeout time.Duration

	// BuildTimeout bounds a single build request.
	BuildTimeout time.Duration
}

// FromEnv materialises Settings from the environment. Call Load first so
// YAML values have been applied.
func FromEnv() (*Settings, error) {
	s := &Settings{
		DataDir:         getEnvOrDefault("SEMSEARCH_DATA_DIR", DefaultDataDir),
		StoreDir:        getEnvOrDefault("SEMSEARCH_STORE_DIR", DefaultStoreDir),
		DefaultVectorDB: getEnvOrDefault("VECTOR_DB_DEFAULT", DefaultVectorDB),
		Audit:           getEnvBool("SEMSEARCH_AUDIT"),
		Embedding: EmbeddingSettings{
			Provider:     strings.ToLower(getEnvOrDefault("EMBEDDING_PROVIDER", DefaultProvider)),
			Endpoint:     os.Getenv("EMBEDDING_ENDPOINT"),
			APIKey:       os.Getenv("EMBEDDING_API_KEY"),
			APIVersion:   getEnvOrDefault("EMBEDDING_API_VERSION", "2025-04-01-preview"),
			Namespace:    getEnvOrDefault("EMBEDDING_NAMESPACE", DefaultNamespace),
			Models:       getEnvList("EMBEDDING_MODELS", DefaultModels),
			DefaultModel: getEnvOrDefault("EMBEDDING_DEFAULT_MODEL", DefaultModel),
		},
		Qdrant: QdrantSettings{
			Host:   os.Getenv("QDRANT_HOST"),
			APIKey: os.Getenv("QDRANT_API_KEY"),
			TLS:    getEnvBool("QDRANT_TLS"),
		},
		Server: ServerSettings{
			Host:        getEnvOrDefault("SEMSEARCH_HOST", DefaultHost),
			CORSOrigins: getEnvList("SEMSEARCH_CORS_ORIGINS", nil),
		},
	}

	var err error
	if s.ChunkSize, err = getEnvInt("SEMSEARCH_CHUNK_SIZE", DefaultChunkSize); err != nil {
		return nil, err
	}
	if s.ChunkOverlap, err = getEnvInt("SEMSEARCH_CHUNK_OVERLAP", DefaultChunkOverlap); err != nil {
		return nil, err
	}
	if s.Embedding.BatchSize, err = getEnvInt("EMBEDDING_BATCH_SIZE", DefaultBatchSize); err != nil {
		return nil, err
	}
	if s.Embedding.Aliases, err = getEnvMap("EMBEDDING_ALIASES"); err != nil {
		return nil, err
	}
	if s.Qdrant.Port, err = getEnvInt("QDRANT_PORT", DefaultQdrantPort); err != nil {
		return nil, err
	}
	if s.Server.Port, err = getEnvInt("SEMSEARCH_PORT", DefaultPort); err != nil {
		return nil, err
	}
	if s.Server.RateLimit, err = getEnvFloat("SEMSEARCH_RATE_LIMIT", DefaultRateLimit); err != nil {
		return nil, err
	}
	if s.Server.RateBurst, err = getEnvInt("SEMSEARCH_RATE_BURST", DefaultRateBurst); err != nil {
		return nil, err
	}
	if s.Server.SearchTimeout, err = getEnvDuration("SEMSEARCH_SEARCH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if s.Server.BuildTimeout, err = getEnvDuration("SEMSEARCH_BUILD_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}

	switch v := os.Getenv("SEMSEARCH_HISTORY_DB"); v {
	case "":
		s.HistoryDB = filepath.Join(s.StoreDir, ".history.db")
	case HistoryDisabled:
		s.HistoryDB = ""
	default:
		s.HistoryDB = v
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate rejects settings no component could run with.
func (s *Settings) Validate() error {
	if s.ChunkSize <= 0 {
		return fmt.Errorf("config: %w", apperr.Invalidf("chunk size must be positive, got %d", s.ChunkSize))
	}
	if s.ChunkOverlap < 0 {
		return fmt.Errorf("config: %w", apperr.Invalidf("chunk overlap must not be negative, got %d", s.ChunkOverlap))
	}
	if s.ChunkOverlap >= s.ChunkSize {
		return fmt.Errorf("config: %w", apperr.Invalidf("chunk overlap %d must be less than chunk size %d", s.ChunkOverlap, s.ChunkSize))
	}
	if s.Embedding.BatchSize <= 0 {
		return fmt.Errorf("config: %w", apperr.Invalidf("embedding batch size must be positive, got %d", s.Embedding.BatchSize))
	}
	if len(s.Embedding.Models) == 0 {
		return fmt.Errorf("config: %w", apperr.Invalidf("at least one embedding model must be configured"))
	}
	if !slices.Contains(s.Embedding.Models, s.Embedding.DefaultModel) {
		return fmt.Errorf("config: %w", apperr.Invalidf("default model %q is not in the supported set %v", s.Embedding.DefaultModel, s.Embedding.Models))
	}
	if s.DefaultVectorDB == "" || strings.Contains(s.DefaultVectorDB, "_") {
		return fmt.Errorf("config: %w", apperr.Invalidf("default vector db %q must be non-empty and contain no underscore", s.DefaultVectorDB))
	}
	if s.StoreDir == "" {
		return fmt.Errorf("config: %w", apperr.Invalidf("store dir must not be empty"))
	}
	return nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt parses the named env var as an int, returning fallback when unset.
func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer: %w", key, v, err)
	}
	return i, nil
}

// getEnvFloat parses the named env var as a float64, returning fallback when unset.
func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a number: %w", key, v, err)
	}
	return f, nil
}

// getEnvDuration parses the named env var as a time.Duration.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a duration: %w", key, v, err)
	}
	return d, nil
}

// getEnvBool reports whether the named env var is set to a true value.
func getEnvBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

// getEnvList splits a comma-separated env var, dropping blank entries.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return slices.Clone(fallback)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvMap parses "k=v,k2=v2" into a map.
func getEnvMap(key string) (map[string]string, error) {
	m := make(map[string]string)
	for _, pair := range getEnvList(key, nil) {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("config: %s entry %q must have the form name=alias", key, pair)
		}
		m[k] = v
	}
	return m, nil
}
