// Package index builds vector stores: it embeds chunks, hands the vectors to
// a backend and commits the result under the store's canonical key.
//
// A store directory is never visible half-written. First builds are staged
// in a hidden directory under the store root and renamed into place.
// Rebuilds stage a new version, move it under versions/ and then swap the
// manifest, so readers keep seeing the previous complete version until the
// manifest rename lands. Builds for one identity are serialised, inside a
// process by a mutex and across processes by a lock file beside the store;
// builds for different identities run in parallel.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/backend"
	"github.com/54b3r/semsearch-go/internal/identity"
	"github.com/54b3r/semsearch-go/internal/manifest"
	"github.com/54b3r/semsearch-go/internal/rag"
)

// StagingPrefix marks in-flight build directories under the store root.
const StagingPrefix = ".staging-"

// keepVersions is the number of index versions retained after a rebuild:
// the current one and the one it replaced.
const keepVersions = 2

// lockRetry is how often a contended store lock file is polled.
const lockRetry = 50 * time.Millisecond

// Embedder is an eino embedder that names the model it serves.
// embedder.Provider satisfies it.
type Embedder interface {
	// Model returns the fully qualified model name served.
	Model() string

	embedding.Embedder
}

// Handle describes a committed store.
type Handle struct {
	// Identity is the (backend, model) pair of the store.
	Identity identity.Identity

	// Key is the canonical store key.
	Key string

	// Dir is the store directory.
	Dir string

	// Manifest is the manifest that was written.
	Manifest manifest.Manifest

	// Dimension is the length of every indexed vector.
	Dimension int
}

// Builder commits stores under a resolver's root. It is safe for
// concurrent use.
type Builder struct {
	// resolver maps keys to directories.
	resolver *identity.Resolver

	// registry selects the backend by name.
	registry *backend.Registry

	// log receives build progress and pruning warnings.
	log *slog.Logger

	// now returns the build timestamp.
	now func() time.Time

	// mu guards locks.
	mu sync.Mutex

	// locks holds one mutex per store key.
	locks map[string]*sync.Mutex
}

// NewBuilder returns a Builder. A nil log uses slog.Default().
func NewBuilder(resolver *identity.Resolver, registry *backend.Registry, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{
		resolver: resolver,
		registry: registry,
		log:      log,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lock acquires the per-key build mutex and then the key's lock file under
// the store root, and returns the release func. The lock file keeps a build
// in one process from committing or pruning while another process does.
func (b *Builder) lock(ctx context.Context, key string) (func(), error) {
	b.mu.Lock()
	m, ok := b.locks[key]
	if !ok {
		m = &sync.Mutex{}
		b.locks[key] = m
	}
	b.mu.Unlock()

	m.Lock()
	fl := flock.New(LockPath(b.resolver.Root(), key))
	locked, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil || !locked {
		_ = fl.Close()
		m.Unlock()
		if err == nil {
			err = errors.New("not acquired")
		}
		return nil, fmt.Errorf("index: lock store %q: %w", key, err)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			b.log.Warn("release store lock", "store", key, "error", err)
		}
		m.Unlock()
	}, nil
}

// LockPath is the lock file guarding commits of key under root. It is a
// dot file so catalog listings skip it.
func LockPath(root, key string) string {
	return filepath.Join(root, "."+key+".lock")
}

// Build embeds chunks with emb and commits a store for (backendName, model),
// fully replacing any previous store for that identity.
//
// Arguments are checked before anything is embedded: an unknown backend
// fails with apperr.ErrUnsupportedBackend, a provider serving a different
// model with apperr.ErrInvalidArgument, and zero chunks with
// apperr.ErrEmptyInput. Nothing is written for a failed build.
func (b *Builder) Build(ctx context.Context, chunks []rag.Chunk, emb Embedder, backendName, model string) (*Handle, error) {
	id, err := b.Check(emb, backendName, model)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("index: %w: no chunks to index", apperr.ErrEmptyInput)
	}
	be, err := b.registry.Get(id.Backend)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	key := id.Key()
	storeDir, err := b.resolver.ResolvePath(key)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	start := time.Now()
	log := b.log.With("store", key)

	texts := make([]string, len(chunks))
	payloads := make([]rag.Payload, len(chunks))
	sources := make(map[string]struct{})
	for i, c := range chunks {
		texts[i] = c.Text
		payloads[i] = rag.PayloadOf(c)
		sources[c.Source] = struct{}{}
	}

	log.Info("embedding chunks", "chunks", len(chunks), "model", model)
	embedded, err := emb.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("index: embed chunks: %w", err)
	}
	vectors := toFloat32(embedded)
	dim, err := backend.CheckInput(vectors, payloads)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	if err := os.MkdirAll(b.resolver.Root(), 0o755); err != nil {
		return nil, fmt.Errorf("index: create store root: %w", err)
	}
	unlock, err := b.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	version, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("index: new version id: %w", err)
	}
	m := manifest.Manifest{
		VectorDB:           id.Backend,
		EmbeddingModel:     id.Model,
		NumChunks:          len(chunks),
		CreatedAt:          manifest.Timestamp(b.now()),
		NumDocuments:       len(sources),
		EmbeddingDimension: dim,
		IndexVersion:       version.String(),
	}

	stage, err := os.MkdirTemp(b.resolver.Root(), StagingPrefix)
	if err != nil {
		return nil, fmt.Errorf("index: create staging dir: %w", err)
	}
	defer os.RemoveAll(stage) // empty after a successful commit

	previous, err := b.commit(ctx, be, stage, storeDir, &m, vectors, payloads)
	if err != nil {
		return nil, err
	}
	b.prune(ctx, be, storeDir, m.IndexVersion, previous)

	log.Info("store built",
		"vector_db", m.VectorDB,
		"num_chunks", m.NumChunks,
		"num_documents", m.NumDocuments,
		"dimension", dim,
		"index_version", m.IndexVersion,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &Handle{Identity: id, Key: key, Dir: storeDir, Manifest: m, Dimension: dim}, nil
}

// Check validates a build request without doing any work and returns the
// identity, with the backend name in its registered spelling.
func (b *Builder) Check(emb Embedder, backendName, model string) (identity.Identity, error) {
	be, err := b.registry.Get(backendName)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("index: %w", err)
	}
	if emb.Model() != model {
		return identity.Identity{}, fmt.Errorf("index: %w", apperr.Invalidf("embedding provider serves %q, build requested %q", emb.Model(), model))
	}
	id := identity.Identity{Backend: be.Name(), Model: model}
	if err := identity.ValidateKey(id.Key()); err != nil {
		return identity.Identity{}, fmt.Errorf("index: %w", err)
	}
	return id, nil
}

// commit writes the index into stage and publishes it at storeDir. It
// returns the index version the previous manifest pointed at, if any.
func (b *Builder) commit(ctx context.Context, be backend.Backend, stage, storeDir string, m *manifest.Manifest, vectors [][]float32, payloads []rag.Payload) (string, error) {
	_, statErr := os.Stat(storeDir)
	fresh := errors.Is(statErr, os.ErrNotExist)
	if statErr != nil && !fresh {
		return "", fmt.Errorf("index: stat %s: %w", storeDir, statErr)
	}

	// A fresh store is assembled whole inside stage; a rebuild stages only
	// the version directory. Either way the backend sees a directory named
	// after the version, which is unique per build.
	dataDir := manifest.VersionPath(stage, m.IndexVersion)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("index: create %s: %w", dataDir, err)
	}

	idx, err := be.Build(ctx, dataDir, vectors, payloads)
	if err != nil {
		return "", fmt.Errorf("index: build %s index: %w", be.Name(), err)
	}
	if err := idx.Close(); err != nil {
		b.drop(ctx, be, dataDir)
		return "", fmt.Errorf("index: close %s index: %w", be.Name(), err)
	}

	if fresh {
		if err := manifest.Write(stage, m); err != nil {
			b.drop(ctx, be, dataDir)
			return "", fmt.Errorf("index: %w", err)
		}
		if err := os.Rename(stage, storeDir); err != nil {
			b.drop(ctx, be, dataDir)
			return "", fmt.Errorf("index: publish %s: %w", storeDir, err)
		}
		return "", nil
	}

	var previous string
	if old, err := manifest.Read(storeDir); err == nil {
		previous = old.IndexVersion
	}

	final := manifest.VersionPath(storeDir, m.IndexVersion)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		b.drop(ctx, be, dataDir)
		return "", fmt.Errorf("index: create versions dir: %w", err)
	}
	if err := os.Rename(dataDir, final); err != nil {
		b.drop(ctx, be, dataDir)
		return "", fmt.Errorf("index: move version into %s: %w", storeDir, err)
	}
	if err := manifest.Write(storeDir, m); err != nil {
		b.drop(ctx, be, final)
		_ = os.RemoveAll(final)
		return "", fmt.Errorf("index: %w", err)
	}
	return previous, nil
}

// prune removes everything in storeDir except the manifest, the current
// version and the previous one. The version the manifest on disk names is
// always kept. Failures are logged; the new version is already committed.
func (b *Builder) prune(ctx context.Context, be backend.Backend, storeDir, current, previous string) {
	versions, err := manifest.Versions(storeDir)
	if err != nil {
		b.log.Warn("list versions for pruning", "dir", storeDir, "error", err)
		return
	}
	keep := map[string]bool{current: true}
	if previous != "" {
		keep[previous] = true
	}
	if m, err := manifest.Read(storeDir); err == nil && m.IndexVersion != "" && !keep[m.IndexVersion] {
		b.log.Warn("manifest names another version, keeping it", "dir", storeDir, "index_version", m.IndexVersion)
		keep[m.IndexVersion] = true
	}
	// Without a readable previous manifest, keep the newest older version.
	for i := len(versions) - 1; i >= 0 && len(keep) < keepVersions; i-- {
		keep[versions[i]] = true
	}
	for _, v := range versions {
		if keep[v] {
			continue
		}
		dir := manifest.VersionPath(storeDir, v)
		b.drop(ctx, be, dir)
		if err := os.RemoveAll(dir); err != nil {
			b.log.Warn("remove old index version", "dir", dir, "error", err)
		}
	}

	// Files from a flat layout, where the index lived beside the manifest.
	entries, err := os.ReadDir(storeDir)
	if err != nil {
		b.log.Warn("list store dir for pruning", "dir", storeDir, "error", err)
		return
	}
	for _, e := range entries {
		switch e.Name() {
		case manifest.FileName, manifest.VersionsDir:
			continue
		}
		if err := os.RemoveAll(filepath.Join(storeDir, e.Name())); err != nil {
			b.log.Warn("remove legacy store file", "path", e.Name(), "error", err)
		}
	}
}

// toFloat32 narrows eino's float64 vectors to the width backends store.
func toFloat32(in [][]float64) [][]float32 {
	out := make([][]float32, len(in))
	for i, v := range in {
		f := make([]float32, len(v))
		for j, x := range v {
			f[j] = float32(x)
		}
		out[i] = f
	}
	return out
}

// drop releases backend resources held outside dir.
func (b *Builder) drop(ctx context.Context, be backend.Backend, dir string) {
	d, ok := be.(backend.Dropper)
	if !ok {
		return
	}
	if err := d.Drop(context.WithoutCancel(ctx), dir); err != nil {
		b.log.Warn("drop backend resources", "backend", be.Name(), "dir", dir, "error", err)
	}
}
