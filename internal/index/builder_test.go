package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/backend"
	"github.com/54b3r/semsearch-go/internal/backend/chroma"
	"github.com/54b3r/semsearch-go/internal/backend/flat"
	"github.com/54b3r/semsearch-go/internal/embedder"
	"github.com/54b3r/semsearch-go/internal/identity"
	"github.com/54b3r/semsearch-go/internal/manifest"
	"github.com/54b3r/semsearch-go/internal/rag"
)

const miniLM = "sentence-transformers/all-MiniLM-L6-v2"

// countingEmbedder records how many texts reach the embedding backend.
type countingEmbedder struct {
	model string
	inner *embedder.Provider
	calls atomic.Int32
	err   error
}

func newCounting(model string) *countingEmbedder {
	return &countingEmbedder{model: model, inner: embedder.NewProvider(model, embedder.NewHashEmbedder(384), 8)}
}

func (c *countingEmbedder) Model() string { return c.model }

func (c *countingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.EmbedStrings(ctx, texts, opts...)
}

// axisEmbedder is a bare eino embedder mapping text i to basis vector i.
type axisEmbedder struct{ dim int }

func (axisEmbedder) Model() string { return miniLM }

func (a axisEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		v := make([]float64, a.dim)
		v[i%a.dim] = 1
		out[i] = v
	}
	return out, nil
}

// droppingBackend wraps the flat backend and records Drop calls.
type droppingBackend struct {
	flat.Backend
	mu      sync.Mutex
	dropped []string
}

func (d *droppingBackend) Drop(_ context.Context, dir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropped = append(d.dropped, filepath.Base(dir))
	return nil
}

// namingBackend wraps the flat backend and, like a server-side backend with
// one collection per directory name, refuses to build a name that is live.
type namingBackend struct {
	flat.Backend
	mu    sync.Mutex
	live  map[string]bool
	built []string
}

func (n *namingBackend) Build(ctx context.Context, dir string, vectors [][]float32, payloads []rag.Payload) (backend.Index, error) {
	name := filepath.Base(dir)
	n.mu.Lock()
	if n.live[name] {
		n.mu.Unlock()
		return nil, errors.New("collection " + name + " already exists")
	}
	n.live[name] = true
	n.built = append(n.built, name)
	n.mu.Unlock()
	return n.Backend.Build(ctx, dir, vectors, payloads)
}

func (n *namingBackend) Drop(_ context.Context, dir string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.live, filepath.Base(dir))
	return nil
}

func newBuilder(t *testing.T, backends ...backend.Backend) (*Builder, string) {
	t.Helper()
	if len(backends) == 0 {
		backends = []backend.Backend{flat.New(), chroma.New()}
	}
	reg, err := backend.NewRegistry(backends...)
	require.NoError(t, err)
	root := filepath.Join(t.TempDir(), "Vector_Store")
	return NewBuilder(identity.NewResolver(root, "sentence-transformers"), reg, nil), root
}

func sampleChunks() []rag.Chunk {
	return []rag.Chunk{
		{Text: "The cat sat on the mat.", Source: "cats.txt", Seq: 0},
		{Text: "Dogs bark loudly at night.", Source: "dogs.txt", Seq: 0},
		{Text: "Cats purr when content.", Source: "cats.txt", Seq: 1},
	}
}

// stagingDirs returns leftover staging directories under root.
func stagingDirs(t *testing.T, root string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(root, StagingPrefix+"*"))
	require.NoError(t, err)
	return matches
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

func TestBuild_FreshStore(t *testing.T) {
	t.Parallel()

	b, root := newBuilder(t)
	b.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC) }

	h, err := b.Build(context.Background(), sampleChunks(), newCounting(miniLM), "faiss", miniLM)
	require.NoError(t, err)

	assert.Equal(t, "FAISS_all-MiniLM-L6-v2", h.Key)
	assert.Equal(t, identity.Identity{Backend: "FAISS", Model: miniLM}, h.Identity)
	assert.Equal(t, filepath.Join(root, h.Key), h.Dir)
	assert.Equal(t, 384, h.Dimension)

	m, err := manifest.Read(h.Dir)
	require.NoError(t, err)
	assert.Equal(t, "FAISS", m.VectorDB)
	assert.Equal(t, miniLM, m.EmbeddingModel)
	assert.Equal(t, 3, m.NumChunks)
	assert.Equal(t, 2, m.NumDocuments)
	assert.Equal(t, 384, m.EmbeddingDimension)
	assert.Equal(t, "2024-05-01 12:30:00", m.CreatedAt)
	assert.Equal(t, h.Manifest, *m)

	versions, err := manifest.Versions(h.Dir)
	require.NoError(t, err)
	assert.Equal(t, []string{m.IndexVersion}, versions)

	idx, err := flat.New().Load(context.Background(), manifest.VersionPath(h.Dir, m.IndexVersion))
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, h.Dimension, idx.Dimension())

	assert.Empty(t, stagingDirs(t, root))
}

func TestBuild_ValidationBeforeWork(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		chunks  []rag.Chunk
		backend string
		model   string
		wantErr error
	}{
		{name: "unsupported backend", chunks: sampleChunks(), backend: "LanceDB", model: miniLM, wantErr: apperr.ErrUnsupportedBackend},
		{name: "model mismatch", chunks: sampleChunks(), backend: "FAISS", model: "sentence-transformers/all-mpnet-base-v2", wantErr: apperr.ErrInvalidArgument},
		{name: "no chunks", chunks: nil, backend: "FAISS", model: miniLM, wantErr: apperr.ErrEmptyInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b, root := newBuilder(t)
			emb := newCounting(miniLM)

			_, err := b.Build(context.Background(), tc.chunks, emb, tc.backend, tc.model)
			require.ErrorIs(t, err, tc.wantErr)
			assert.Zero(t, emb.calls.Load(), "nothing may be embedded for an invalid build")
			assert.NoDirExists(t, root)
		})
	}
}

func TestBuild_EmbedFailureWritesNothing(t *testing.T) {
	t.Parallel()

	b, root := newBuilder(t)
	emb := newCounting(miniLM)
	emb.err = errors.New("connection refused")

	_, err := b.Build(context.Background(), sampleChunks(), emb, "FAISS", miniLM)
	require.Error(t, err)
	assert.NoDirExists(t, filepath.Join(root, "FAISS_all-MiniLM-L6-v2"))
}

func TestBuild_RebuildReplacesAndPrunes(t *testing.T) {
	t.Parallel()

	drop := &droppingBackend{}
	b, _ := newBuilder(t, drop)
	ctx := context.Background()

	var handles []*Handle
	for n := 1; n <= 3; n++ {
		h, err := b.Build(ctx, sampleChunks()[:n], newCounting(miniLM), "FAISS", miniLM)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	dir := handles[0].Dir

	m, err := manifest.Read(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, m.NumChunks, "latest build wins")
	assert.Equal(t, handles[2].Manifest.IndexVersion, m.IndexVersion)

	versions, err := manifest.Versions(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{handles[1].Manifest.IndexVersion, handles[2].Manifest.IndexVersion}, versions)
	assert.Equal(t, []string{handles[0].Manifest.IndexVersion}, drop.dropped)
}

func TestBuild_ReplacesFlatLayout(t *testing.T) {
	t.Parallel()

	b, root := newBuilder(t)
	legacy := filepath.Join(root, "FAISS_all-MiniLM-L6-v2")
	require.NoError(t, os.MkdirAll(legacy, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(legacy, "index.faiss"), []byte("old"), 0o644))

	h, err := b.Build(context.Background(), sampleChunks(), newCounting(miniLM), "FAISS", miniLM)
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(legacy, "index.faiss"))
	assert.FileExists(t, filepath.Join(h.Dir, manifest.FileName))
	assert.Empty(t, stagingDirs(t, root))
}

func TestBuild_Concurrent(t *testing.T) {
	t.Parallel()

	b, root := newBuilder(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db := "FAISS"
			if i%2 == 1 {
				db = "Chroma"
			}
			_, err := b.Build(ctx, sampleChunks(), newCounting(miniLM), db, miniLM)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, key := range []string{"FAISS_all-MiniLM-L6-v2", "Chroma_all-MiniLM-L6-v2"} {
		dir := filepath.Join(root, key)
		m, err := manifest.Read(dir)
		require.NoError(t, err, key)
		versions, err := manifest.Versions(dir)
		require.NoError(t, err)
		assert.Len(t, versions, keepVersions, key)
		assert.Contains(t, versions, m.IndexVersion, key)
	}
	assert.Empty(t, stagingDirs(t, root))
}

func TestBuild_RebuildsUseDistinctVersionNames(t *testing.T) {
	t.Parallel()

	be := &namingBackend{live: make(map[string]bool)}
	b, _ := newBuilder(t, be)
	ctx := context.Background()

	var want []string
	for range 4 {
		h, err := b.Build(ctx, sampleChunks(), newCounting(miniLM), "FAISS", miniLM)
		require.NoError(t, err)
		want = append(want, h.Manifest.IndexVersion)
	}
	assert.Equal(t, want, be.built)
	// Pruned versions released their names.
	assert.Len(t, be.live, keepVersions)
	assert.True(t, be.live[want[3]])
}

func TestBuild_AcceptsAnyEinoEmbedder(t *testing.T) {
	t.Parallel()

	b, _ := newBuilder(t)
	h, err := b.Build(context.Background(), sampleChunks(), axisEmbedder{dim: 4}, "FAISS", miniLM)
	require.NoError(t, err)
	assert.Equal(t, 4, h.Dimension)

	idx, err := flat.New().Load(context.Background(), manifest.VersionPath(h.Dir, h.Manifest.IndexVersion))
	require.NoError(t, err)
	hits, err := idx.Search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Dogs bark loudly at night.", hits[0].Payload.Text)
}

func TestBuild_WaitsForStoreLockFile(t *testing.T) {
	t.Parallel()

	b, root := newBuilder(t)
	key := "FAISS_all-MiniLM-L6-v2"
	require.NoError(t, os.MkdirAll(root, 0o755))

	// Another process holding the lock file.
	held := flock.New(LockPath(root, key))
	require.NoError(t, held.Lock())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err := b.Build(ctx, sampleChunks(), newCounting(miniLM), "FAISS", miniLM)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoDirExists(t, filepath.Join(root, key))

	require.NoError(t, held.Unlock())
	h, err := b.Build(context.Background(), sampleChunks(), newCounting(miniLM), "FAISS", miniLM)
	require.NoError(t, err)
	assert.Equal(t, key, h.Key)
}

func TestBuild_SeparateBuildersShareRoot(t *testing.T) {
	t.Parallel()

	first, root := newBuilder(t)
	reg, err := backend.NewRegistry(flat.New(), chroma.New())
	require.NoError(t, err)
	second := NewBuilder(identity.NewResolver(root, "sentence-transformers"), reg, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		b := first
		if i%2 == 1 {
			b = second
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Build(ctx, sampleChunks(), newCounting(miniLM), "FAISS", miniLM)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	dir := filepath.Join(root, "FAISS_all-MiniLM-L6-v2")
	m, err := manifest.Read(dir)
	require.NoError(t, err)
	idx, err := flat.New().Load(ctx, manifest.VersionPath(dir, m.IndexVersion))
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Empty(t, stagingDirs(t, root))
}

func TestPrune_KeepsVersionNamedByManifest(t *testing.T) {
	t.Parallel()

	b, _ := newBuilder(t)
	ctx := context.Background()
	var versions []string
	for range 2 {
		h, err := b.Build(ctx, sampleChunks(), newCounting(miniLM), "FAISS", miniLM)
		require.NoError(t, err)
		versions = append(versions, h.Manifest.IndexVersion)
	}
	dir := filepath.Join(b.resolver.Root(), "FAISS_all-MiniLM-L6-v2")

	// A later build has moved the manifest back to the oldest version while
	// this one still believes a new directory is current.
	m, err := manifest.Read(dir)
	require.NoError(t, err)
	m.IndexVersion = versions[0]
	require.NoError(t, manifest.Write(dir, m))
	stale, err := uuid.NewV7()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(manifest.VersionPath(dir, stale.String()), 0o755))

	b.prune(ctx, flat.New(), dir, stale.String(), "")

	assert.DirExists(t, manifest.VersionPath(dir, versions[0]))
	_, err = flat.New().Load(ctx, manifest.VersionPath(dir, versions[0]))
	require.NoError(t, err)
}
