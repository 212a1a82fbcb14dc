package qdrant

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/rag"
)

func TestPointConversion(t *testing.T) {
	t.Parallel()

	p := rag.Payload{Text: "The cat sat on the mat.", Source: "cats.txt", Seq: 3}
	pt := toPoint(7, []float32{0.6, 0.8}, p)
	assert.Equal(t, uint64(7), pt.GetId().GetNum())

	hit := fromScored(&qdrant.ScoredPoint{Score: 0.5, Payload: pt.GetPayload()})
	assert.Equal(t, p, hit.Payload)
	assert.InDelta(t, 0.25, hit.Distance, 1e-6)
}

func TestFromScored_NoPayload(t *testing.T) {
	t.Parallel()

	hit := fromScored(&qdrant.ScoredPoint{Score: 0})
	assert.Equal(t, rag.Payload{}, hit.Payload)
	assert.Zero(t, hit.Distance)
}

func TestPointerFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	want := pointer{Collection: "semsearch-0192", Dimension: 384, Count: 10}
	require.NoError(t, writePointer(dir, want))

	got, err := readPointer(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = readPointer(t.TempDir())
	assert.True(t, os.IsNotExist(err))

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, PointerFile), []byte(`{"collection":""}`), 0o644))
	_, err = readPointer(bad)
	assert.ErrorIs(t, err, apperr.ErrBackend)
}
