// Package audit writes structured audit records: one per CLI command
// invocation, and one per store build or search when enabled. Records go
// through slog so they land wherever the process logs.
//
// Secrets are logged as presence/absence only, never their values.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// auditEntry defines an env var to include in the command audit record.
type auditEntry struct {
	// key is the environment variable name.
	key string
	// secret indicates the value should be redacted to presence/absence.
	secret bool
}

// auditKeys is the ordered list of env vars included in every command record.
var auditKeys = []auditEntry{
	{"SEMSEARCH_DATA_DIR", false},
	{"SEMSEARCH_STORE_DIR", false},
	{"SEMSEARCH_CHUNK_SIZE", false},
	{"SEMSEARCH_CHUNK_OVERLAP", false},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_ENDPOINT", false},
	{"EMBEDDING_API_KEY", true},
	{"EMBEDDING_DEFAULT_MODEL", false},
	{"VECTOR_DB_DEFAULT", false},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_API_KEY", true},
	{"SEMSEARCH_HISTORY_DB", false},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
}

// secretEnvKeys is derived from auditKeys.
var secretEnvKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, e := range auditKeys {
		if e.secret {
			m[e.key] = true
		}
	}
	return m
}()

// LogCommandStart emits a structured audit log entry when a CLI command begins.
// It records the command name, config file source, and sanitised environment.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}
	for _, entry := range auditKeys {
		attrs = append(attrs, slog.String(entry.key, SanitiseKey(entry.key, os.Getenv(entry.key))))
	}
	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start", attrs...)
}

// BuildRecord describes one store build attempt.
type BuildRecord struct {
	// VectorDB is the requested backend.
	VectorDB string
	// Model is the requested embedding model.
	Model string
	// Store is the resulting store key; empty on failure.
	Store string
	// NumChunks is the number of chunks indexed.
	NumChunks int
	// Duration is the wall time of the build.
	Duration time.Duration
	// Err is the build failure, if any.
	Err error
}

// SearchRecord describes one search request.
type SearchRecord struct {
	// Store is the queried store key.
	Store string
	// Queries is the number of queries in the request.
	Queries int
	// TopK is the requested result count.
	TopK int
	// Results is the total number of results returned.
	Results int
	// Duration is the wall time of the request.
	Duration time.Duration
	// Err is the request failure, if any.
	Err error
}

// Logger emits build and search records when enabled. The zero value and a
// nil *Logger are disabled.
type Logger struct {
	// log is the destination logger.
	log *slog.Logger
	// enabled gates every record.
	enabled bool
}

// New returns a Logger writing to log when enabled is true.
func New(log *slog.Logger, enabled bool) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{log: log, enabled: enabled}
}

// Build records a build attempt.
func (a *Logger) Build(ctx context.Context, r BuildRecord) {
	if a == nil || !a.enabled {
		return
	}
	a.log.LogAttrs(ctx, slog.LevelInfo, "audit: build",
		slog.String("vector_db", r.VectorDB),
		slog.String("embedding_model", r.Model),
		slog.String("store", r.Store),
		slog.Int("num_chunks", r.NumChunks),
		slog.Int64("duration_ms", r.Duration.Milliseconds()),
		slog.String("outcome", outcome(r.Err)),
	)
}

// Search records a search request. Query text is not logged.
func (a *Logger) Search(ctx context.Context, r SearchRecord) {
	if a == nil || !a.enabled {
		return
	}
	a.log.LogAttrs(ctx, slog.LevelInfo, "audit: search",
		slog.String("store", r.Store),
		slog.Int("queries", r.Queries),
		slog.Int("top_k", r.TopK),
		slog.Int("results", r.Results),
		slog.Int64("duration_ms", r.Duration.Milliseconds()),
		slog.String("outcome", outcome(r.Err)),
	)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// SanitiseKey returns "set" or "unset" for known secret keys, or the actual
// value for non-secret keys. This is safe to use in log messages.
func SanitiseKey(key, value string) string {
	if secretEnvKeys[key] {
		return presence(value)
	}
	return valOrUnset(value)
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
