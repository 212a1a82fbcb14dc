package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/semsearch-go/internal/apperr"
)

func TestCanonicalKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		backend, model, want string
	}{
		{"FAISS", "sentence-transformers/all-MiniLM-L6-v2", "FAISS_all-MiniLM-L6-v2"},
		{"Chroma", "sentence-transformers/all-mpnet-base-v2", "Chroma_all-mpnet-base-v2"},
		{"FAISS", "bare-model", "FAISS_bare-model"},
		{"Qdrant", "org/team/model", "Qdrant_model"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CanonicalKey(tc.backend, tc.model))
		assert.Equal(t, tc.want, Identity{Backend: tc.backend, Model: tc.model}.Key())
	}
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	r := NewResolver(t.TempDir(), "sentence-transformers")

	id, err := r.ParseKey("FAISS_all-MiniLM-L6-v2")
	require.NoError(t, err)
	assert.Equal(t, Identity{Backend: "FAISS", Model: "sentence-transformers/all-MiniLM-L6-v2"}, id)

	// Only the first underscore splits.
	id, err = r.ParseKey("Chroma_my_model")
	require.NoError(t, err)
	assert.Equal(t, "Chroma", id.Backend)
	assert.Equal(t, "sentence-transformers/my_model", id.Model)

	for _, bad := range []string{"nounderscore", "_model", "FAISS_"} {
		_, err := r.ParseKey(bad)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument, bad)
	}
}

func TestParseKey_RoundTrip(t *testing.T) {
	t.Parallel()

	r := NewResolver("/stores", "sentence-transformers")
	for _, model := range []string{
		"sentence-transformers/all-MiniLM-L6-v2",
		"sentence-transformers/all-mpnet-base-v2",
		"sentence-transformers/paraphrase-MiniLM-L3-v2",
	} {
		for _, backend := range []string{"FAISS", "Chroma", "Qdrant"} {
			id, err := r.ParseKey(CanonicalKey(backend, model))
			require.NoError(t, err)
			assert.Equal(t, Identity{Backend: backend, Model: model}, id)
		}
	}
}

func TestResolvePath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	r := NewResolver(root, "ns")

	dir, err := r.ResolvePath("FAISS_all-MiniLM-L6-v2")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "FAISS_all-MiniLM-L6-v2"), dir)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "ResolvePath must not create the directory")

	created, err := r.EnsurePath("FAISS_all-MiniLM-L6-v2")
	require.NoError(t, err)
	info, err := os.Stat(created)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	for _, bad := range []string{"", ".staging-1", "../etc_passwd", "FAISS_a/b", `FAISS_a\b`, "noseparator"} {
		_, err := r.ResolvePath(bad)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument, bad)
	}
}

func TestQualify_EmptyNamespace(t *testing.T) {
	t.Parallel()

	r := NewResolver("/stores", "")
	id, err := r.ParseKey("FAISS_model")
	require.NoError(t, err)
	assert.Equal(t, "model", id.Model)
}
