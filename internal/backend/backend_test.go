package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/rag"
)

type namedBackend struct{ name string }

func (n namedBackend) Name() string { return n.name }
func (namedBackend) Build(context.Context, string, [][]float32, []rag.Payload) (Index, error) {
	return nil, nil
}
func (namedBackend) Load(context.Context, string) (Index, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(namedBackend{"FAISS"}, namedBackend{"Chroma"})
	require.NoError(t, err)

	b, err := r.Get("faiss")
	require.NoError(t, err)
	assert.Equal(t, "FAISS", b.Name())

	_, err = r.Get("LanceDB")
	require.ErrorIs(t, err, apperr.ErrUnsupportedBackend)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "Chroma, FAISS")

	assert.Equal(t, []string{"Chroma", "FAISS"}, r.Names())

	assert.ErrorIs(t, r.Register(namedBackend{"My_DB"}), apperr.ErrInvalidArgument)
	assert.ErrorIs(t, r.Register(namedBackend{"chroma"}), apperr.ErrInvalidArgument)
	assert.ErrorIs(t, r.Register(namedBackend{""}), apperr.ErrInvalidArgument)
}

func TestCheckInput(t *testing.T) {
	t.Parallel()

	p := []rag.Payload{{Text: "a"}, {Text: "b"}}

	dim, err := CheckInput([][]float32{{1, 0}, {0, 1}}, p)
	require.NoError(t, err)
	assert.Equal(t, 2, dim)

	_, err = CheckInput(nil, nil)
	assert.ErrorIs(t, err, apperr.ErrEmptyInput)
	_, err = CheckInput([][]float32{{1, 0}}, p)
	assert.ErrorIs(t, err, apperr.ErrBackend)
	_, err = CheckInput([][]float32{{1, 0}, {1}}, p)
	assert.ErrorIs(t, err, apperr.ErrBackend)
}

func TestExact_Search(t *testing.T) {
	t.Parallel()

	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{0, 1, 0}, // duplicate of #1; ties keep insertion order
	}
	payloads := []rag.Payload{
		{Text: "x", Source: "a.txt", Seq: 0},
		{Text: "y", Source: "a.txt", Seq: 1},
		{Text: "z", Source: "b.txt", Seq: 0},
		{Text: "y2", Source: "c.txt", Seq: 0},
	}
	idx, err := NewExact(vectors, payloads)
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, 3, idx.Dimension())

	hits, err := idx.Search(context.Background(), []float32{0, 1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "y", hits[0].Payload.Text)
	assert.Equal(t, "y2", hits[1].Payload.Text)
	assert.Zero(t, hits[0].Distance)
	assert.InDelta(t, 2.0, hits[2].Distance, 1e-6)

	all, err := idx.Search(context.Background(), []float32{1, 0, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Distance, all[i].Distance)
	}

	_, err = idx.Search(context.Background(), []float32{1, 0}, 1)
	assert.ErrorIs(t, err, apperr.ErrBackend)
}
