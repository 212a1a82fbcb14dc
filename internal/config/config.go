// Package config provides YAML-based configuration for semsearch.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so deployments driven purely by env keep working.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. SEMSEARCH_CONFIG environment variable
//  3. ~/.semsearch/config.yaml
//  4. ./semsearch.yaml
//
// If no file is found the system runs entirely from env vars. [FromEnv]
// then materialises the effective values into an explicit [Settings].
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Paths configures the document and store roots.
	Paths PathsConfig `yaml:"paths"`

	// Chunking configures the text splitter.
	Chunking ChunkingConfig `yaml:"chunking"`

	// Embedding configures the embedding provider and the supported model set.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// VectorDB configures backend selection.
	VectorDB VectorDBConfig `yaml:"vector_db"`

	// Qdrant configures the optional Qdrant backend.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures search history persistence.
	History HistoryConfig `yaml:"history"`

	// Audit configures audit records.
	Audit AuditConfig `yaml:"audit"`
}

// PathsConfig holds filesystem roots.
type PathsConfig struct {
	// DataDir is where source documents are read from.
	DataDir string `yaml:"data_dir"`
	// StoreDir is the root under which every vector store lives.
	StoreDir string `yaml:"store_dir"`
}

// ChunkingConfig holds splitter settings.
type ChunkingConfig struct {
	// Size is the maximum chunk length in characters.
	Size int `yaml:"size"`
	// Overlap is the number of characters shared by adjacent chunks.
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the backend: ollama, openai, azure, tei, hash.
	Provider string `yaml:"provider"`
	// Endpoint is the provider base URL.
	Endpoint string `yaml:"endpoint"`
	// APIKey is the provider API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
	// BatchSize caps the number of texts per provider call.
	BatchSize int `yaml:"batch_size"`
	// Namespace is the publisher prefix re-applied when parsing store names.
	Namespace string `yaml:"namespace"`
	// Models lists the fully qualified model names clients may request.
	Models []string `yaml:"models"`
	// DefaultModel is used when a request names no model.
	DefaultModel string `yaml:"default_model"`
	// Aliases maps fully qualified names to provider-specific model names.
	Aliases map[string]string `yaml:"aliases"`
}

// VectorDBConfig holds backend selection settings.
type VectorDBConfig struct {
	// Default is the backend used when a request names none.
	Default string `yaml:"default"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// RateLimit is the sustained per-IP request rate on search and build routes.
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the per-IP burst size.
	RateBurst int `yaml:"rate_burst"`
	// CORSOrigins lists origins allowed to call the API from a browser.
	CORSOrigins []string `yaml:"cors_origins"`
	// SearchTimeout bounds a single search request, e.g. "30s".
	SearchTimeout string `yaml:"search_timeout"`
	// BuildTimeout bounds a single build request, e.g. "10m".
	BuildTimeout string `yaml:"build_timeout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// HistoryConfig holds search history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "off" to disable.
	DBPath string `yaml:"db_path"`
}

// AuditConfig holds audit logging settings.
type AuditConfig struct {
	// Enabled turns on audit records for builds and searches.
	Enabled bool `yaml:"enabled"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"SEMSEARCH_DATA_DIR", func(c *Config) string { return c.Paths.DataDir }},
	{"SEMSEARCH_STORE_DIR", func(c *Config) string { return c.Paths.StoreDir }},
	{"SEMSEARCH_CHUNK_SIZE", func(c *Config) string { return intStr(c.Chunking.Size) }},
	{"SEMSEARCH_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Chunking.Overlap) }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_API_VERSION", func(c *Config) string { return c.Embedding.APIVersion }},
	{"EMBEDDING_BATCH_SIZE", func(c *Config) string { return intStr(c.Embedding.BatchSize) }},
	{"EMBEDDING_NAMESPACE", func(c *Config) string { return c.Embedding.Namespace }},
	{"EMBEDDING_MODELS", func(c *Config) string { return listStr(c.Embedding.Models) }},
	{"EMBEDDING_DEFAULT_MODEL", func(c *Config) string { return c.Embedding.DefaultModel }},
	{"EMBEDDING_ALIASES", func(c *Config) string { return mapStr(c.Embedding.Aliases) }},
	{"VECTOR_DB_DEFAULT", func(c *Config) string { return c.VectorDB.Default }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"SEMSEARCH_HOST", func(c *Config) string { return c.Server.Host }},
	{"SEMSEARCH_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"SEMSEARCH_RATE_LIMIT", func(c *Config) string { return floatStr(c.Server.RateLimit) }},
	{"SEMSEARCH_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"SEMSEARCH_CORS_ORIGINS", func(c *Config) string { return listStr(c.Server.CORSOrigins) }},
	{"SEMSEARCH_SEARCH_TIMEOUT", func(c *Config) string { return c.Server.SearchTimeout }},
	{"SEMSEARCH_BUILD_TIMEOUT", func(c *Config) string { return c.Server.BuildTimeout }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"SEMSEARCH_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"SEMSEARCH_AUDIT", func(c *Config) string { return boolStr(c.Audit.Enabled) }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set, do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("SEMSEARCH_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".semsearch", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("semsearch.yaml"); err == nil {
		return "semsearch.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// floatStr converts a float64 to string, returning "" for zero values.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

// listStr joins a YAML list into the comma form read by getEnvList.
func listStr(v []string) string {
	return strings.Join(v, ",")
}

// mapStr renders a YAML map as sorted "k=v" pairs, the form read by getEnvMap.
func mapStr(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+m[k])
	}
	return strings.Join(pairs, ",")
}
