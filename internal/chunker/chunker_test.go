package chunker

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/rag"
)

// reassemble drops the leading overlap of every chunk after the first.
func reassemble(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		b.WriteString(string([]rune(c)[overlap:]))
	}
	return b.String()
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"defaults", DefaultSize, DefaultOverlap, false},
		{"no overlap", 10, 0, false},
		{"overlap one below size", 10, 9, false},
		{"overlap equals size", 10, 10, true},
		{"overlap above size", 10, 20, true},
		{"negative overlap", 10, -1, true},
		{"zero size", 0, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, err := New(tc.size, tc.overlap)
			if tc.wantErr {
				require.ErrorIs(t, err, apperr.ErrInvalidArgument)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.size, c.Size())
			assert.Equal(t, tc.overlap, c.Overlap())
		})
	}
}

func TestSplit_Boundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{
			name: "fits in one window",
			text: "The cat sat on the mat.",
			size: 500,
			want: []string{"The cat sat on the mat."},
		},
		{
			name: "paragraph then sentence",
			text: "First paragraph here.\n\nSecond one. It has two sentences.",
			size: 30,
			want: []string{"First paragraph here.\n\n", "Second one. ", "It has two sentences."},
		},
		{
			name:    "sentence with overlap",
			text:    "One sentence. Another sentence follows here",
			size:    30,
			overlap: 5,
			want:    []string{"One sentence. ", "nce. Another sentence follows ", "lows here"},
		},
		{
			name: "whitespace",
			text: "alpha beta gamma delta",
			size: 12,
			want: []string{"alpha beta ", "gamma delta"},
		},
		{
			name:    "hard cut",
			text:    "abcdefghijklmnopqrstuvwxyz",
			size:    10,
			overlap: 3,
			want:    []string{"abcdefghij", "hijklmnopq", "opqrstuvwx", "vwxyz"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, err := New(tc.size, tc.overlap)
			require.NoError(t, err)
			assert.Equal(t, tc.want, c.Split(tc.text))
		})
	}
}

func TestSplit_RoundTrip(t *testing.T) {
	t.Parallel()

	texts := []string{
		"The cat sat on the mat.",
		strings.Repeat("word ", 400),
		strings.Repeat("x", 1234),
		"Para one is here.\n\nPara two follows! Does it? Yes. " + strings.Repeat("filler text ", 80),
		strings.Repeat("日本語のテキスト。", 120),
		"  leading and trailing whitespace survive  \n",
	}
	params := []struct{ size, overlap int }{
		{500, 50}, {100, 0}, {64, 63}, {10, 3}, {1, 0},
	}

	for _, text := range texts {
		for _, p := range params {
			c, err := New(p.size, p.overlap)
			require.NoError(t, err)

			chunks := c.Split(text)
			require.NotEmpty(t, chunks)
			for i, ch := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(ch), p.size, "chunk %d too long", i)
				if i > 0 {
					prev := []rune(chunks[i-1])
					head := []rune(ch)[:p.overlap]
					assert.Equal(t, string(prev[len(prev)-p.overlap:]), string(head), "chunk %d overlap mismatch", i)
				}
			}
			assert.Equal(t, text, reassemble(chunks, p.overlap), "size=%d overlap=%d", p.size, p.overlap)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	t.Parallel()

	c, err := New(40, 8)
	require.NoError(t, err)
	text := strings.Repeat("Deterministic splitting matters. ", 20)
	assert.Equal(t, c.Split(text), c.Split(text))
}

func TestChunk_EmptyDocuments(t *testing.T) {
	t.Parallel()

	chunks, err := Chunk([]rag.Document{
		{Content: "", Source: "empty.txt"},
		{Content: " \n\t ", Source: "blank.md"},
	}, DefaultSize, DefaultOverlap)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_InvalidOverlap(t *testing.T) {
	t.Parallel()

	_, err := Chunk([]rag.Document{{Content: "text"}}, 50, 50)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestChunk_Provenance(t *testing.T) {
	t.Parallel()

	docs := []rag.Document{
		{Content: "alpha beta gamma delta", Source: "a.txt", Path: "data/a.txt"},
		{Content: "The cat sat on the mat.", Source: "b.md", Path: "data/b.md"},
		{Content: "epsilon zeta", Source: "a.txt", Path: "data/again/a.txt"},
	}

	chunks, err := Chunk(docs, 12, 0)
	require.NoError(t, err)

	want := []rag.Chunk{
		{Text: "alpha beta ", Source: "a.txt", Path: "data/a.txt", Seq: 0},
		{Text: "gamma delta", Source: "a.txt", Path: "data/a.txt", Seq: 1},
		{Text: "The cat sat ", Source: "b.md", Path: "data/b.md", Seq: 0},
		{Text: "on the mat.", Source: "b.md", Path: "data/b.md", Seq: 1},
		{Text: "epsilon zeta", Source: "a.txt", Path: "data/again/a.txt", Seq: 2},
	}
	assert.Equal(t, want, chunks)
}

// ---------------------------------------------------------------------------
// Transformer
// ---------------------------------------------------------------------------

func TestTransformer(t *testing.T) {
	t.Parallel()

	c, err := New(12, 0)
	require.NoError(t, err)

	out, err := NewTransformer(c).Transform(context.Background(), []*schema.Document{
		{ID: "ignored", Content: "alpha beta gamma delta", MetaData: map[string]any{MetaSource: "a.txt", MetaFilePath: "data/a.txt"}},
		{ID: "fallback.md", Content: "short"},
		nil,
	})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "a.txt#0", out[0].ID)
	assert.Equal(t, "alpha beta ", out[0].Content)
	assert.Equal(t, "data/a.txt", out[0].MetaData[MetaFilePath])
	assert.Equal(t, 1, out[1].MetaData[MetaSeq])
	assert.Equal(t, "fallback.md", out[2].MetaData[MetaSource])
	assert.Equal(t, "short", out[2].Content)
}

func TestTransformer_RoundTripsChunks(t *testing.T) {
	t.Parallel()

	c, err := New(12, 4)
	require.NoError(t, err)
	docs := []rag.Document{
		{Content: "alpha beta gamma delta epsilon", Source: "a.txt", Path: "data/a.txt"},
		{Content: "zeta", Source: "b.md", Path: "data/b.md"},
	}

	out, err := NewTransformer(c).Transform(context.Background(), FromDocuments(docs))
	require.NoError(t, err)
	got, err := ToChunks(out)
	require.NoError(t, err)
	assert.Equal(t, c.Chunk(docs), got)
}

func TestToChunks_ForeignTransformerOutput(t *testing.T) {
	t.Parallel()

	got, err := ToChunks([]*schema.Document{
		{Content: "one", MetaData: map[string]any{MetaSource: "a.txt"}},
		{Content: "x", ID: "b.md"},
		nil,
		{Content: "two", MetaData: map[string]any{MetaSource: "a.txt"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []rag.Chunk{
		{Text: "one", Source: "a.txt", Seq: 0},
		{Text: "x", Source: "b.md", Seq: 0},
		{Text: "two", Source: "a.txt", Seq: 1},
	}, got)

	_, err = ToChunks([]*schema.Document{{Content: "orphan"}})
	assert.Error(t, err)
}
