package chroma

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/rag"
)

func TestBuildLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	vectors := [][]float32{{0.6, 0.8}, {1, 0}, {0, 1}}
	payloads := []rag.Payload{
		{Text: "alpha", Source: "a.txt", Seq: 0},
		{Text: "beta", Source: "a.txt", Seq: 1},
		{Text: "gamma", Source: "b.md", Seq: 0},
	}

	_, err := New().Build(ctx, dir, vectors, payloads)
	require.NoError(t, err)

	idx, err := New().Load(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 2, idx.Dimension())

	hits, err := idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, payloads[1], hits[0].Payload)
	assert.Zero(t, hits[0].Distance)
	assert.Equal(t, payloads[0], hits[1].Payload)
	assert.InDelta(t, 0.8, hits[1].Distance, 1e-6) // (1-0.6)^2 + 0.8^2
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	v := []float32{0, -1.5, 3.25, 1e-7}
	assert.Equal(t, v, decode(encode(v)))
}

func TestLoad_CorruptRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	_, err := New().Build(ctx, dir, [][]float32{{1, 0}}, []rag.Payload{{Text: "x"}})
	require.NoError(t, err)

	db, err := sql.Open("sqlite", filepath.Join(dir, DBFile))
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE embeddings SET vector = x'0000'`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = New().Load(ctx, dir)
	assert.ErrorIs(t, err, apperr.ErrBackend)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := New().Load(context.Background(), dir)
	assert.ErrorIs(t, err, apperr.ErrBackend)
	assert.NoFileExists(t, filepath.Join(dir, DBFile), "Load must not create a collection")
}
