package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/backend"
	"github.com/54b3r/semsearch-go/internal/backend/flat"
	"github.com/54b3r/semsearch-go/internal/chunker"
	"github.com/54b3r/semsearch-go/internal/embedder"
	"github.com/54b3r/semsearch-go/internal/identity"
	"github.com/54b3r/semsearch-go/internal/index"
)

const miniLM = "sentence-transformers/all-MiniLM-L6-v2"

// writeFiles creates name → content files in a fresh temp dir.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func newPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	root := t.TempDir()
	reg, err := backend.NewRegistry(flat.New())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	c, err := chunker.New(500, 50)
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}
	p, err := NewPipeline(chunker.NewTransformer(c), index.NewBuilder(identity.NewResolver(root, "sentence-transformers"), reg, nil), nil)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return p, root
}

func hashProvider() *embedder.Provider {
	return embedder.NewProvider(miniLM, embedder.NewHashEmbedder(384), 16)
}

// ---------------------------------------------------------------------------
// LoadDir
// ---------------------------------------------------------------------------

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string]string{
		"b.md":       "# Dogs\nDogs bark.",
		"a.txt":      "The cat sat on the mat.",
		"C.TXT":      "Upper case extension.",
		"image.png":  "not text",
		"notes.pdf":  "%PDF-1.4",
		"binary.txt": "\xff\xfe\x00bad",
	})
	if err := os.Mkdir(filepath.Join(dir, "nested.txt"), 0o755); err != nil {
		t.Fatal(err)
	}

	docs, err := LoadDir(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	var names []string
	for _, d := range docs {
		names = append(names, d.Source)
		if d.Path != filepath.Join(dir, d.Source) {
			t.Errorf("%s: path = %q", d.Source, d.Path)
		}
	}
	if got, want := strings.Join(names, ","), "C.TXT,a.txt,b.md"; got != want {
		t.Errorf("loaded %q, want %q", got, want)
	}
	if docs[1].Content != "The cat sat on the mat." {
		t.Errorf("content = %q", docs[1].Content)
	}
}

func TestLoadDir_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadDir(context.Background(), filepath.Join(t.TempDir(), "absent"), nil)
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("want ErrInvalidArgument, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun(t *testing.T) {
	t.Parallel()

	p, root := newPipeline(t)
	dir := writeFiles(t, map[string]string{
		"cats.txt": "The cat sat on the mat.",
		"dogs.md":  "Dogs bark loudly at night.",
	})

	var msgs []string
	res, err := p.Run(context.Background(), dir, hashProvider(), "faiss", miniLM, func(m string) { msgs = append(msgs, m) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.NumDocuments != 2 || res.NumChunks != 2 {
		t.Errorf("documents=%d chunks=%d, want 2/2", res.NumDocuments, res.NumChunks)
	}
	if res.Handle.Key != "FAISS_all-MiniLM-L6-v2" {
		t.Errorf("key = %q", res.Handle.Key)
	}
	if res.Handle.Dimension != 384 {
		t.Errorf("dimension = %d", res.Handle.Dimension)
	}
	if _, err := os.Stat(filepath.Join(root, res.Handle.Key)); err != nil {
		t.Errorf("store dir: %v", err)
	}
	if len(msgs) == 0 {
		t.Error("no progress reported")
	}
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	withDocs := writeFiles(t, map[string]string{"a.txt": "Some text."})
	blankDocs := writeFiles(t, map[string]string{"a.txt": "  \n\n "})
	noDocs := writeFiles(t, map[string]string{"a.png": "x"})

	tests := []struct {
		name    string
		dir     string
		backend string
		wantErr error
	}{
		{name: "unsupported backend", dir: withDocs, backend: "Pinecone", wantErr: apperr.ErrUnsupportedBackend},
		{name: "unsupported backend checked before loading", dir: filepath.Join(withDocs, "absent"), backend: "Pinecone", wantErr: apperr.ErrUnsupportedBackend},
		{name: "no documents", dir: noDocs, backend: "FAISS", wantErr: apperr.ErrEmptyInput},
		{name: "no chunks", dir: blankDocs, backend: "FAISS", wantErr: apperr.ErrEmptyInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, root := newPipeline(t)
			_, err := p.Run(context.Background(), tc.dir, hashProvider(), tc.backend, miniLM, nil)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			entries, _ := os.ReadDir(root)
			if len(entries) != 0 {
				t.Errorf("store root not empty after failed build: %v", entries)
			}
		})
	}
}

// countingSplitter wraps a transformer and counts the documents it sees.
type countingSplitter struct {
	inner document.Transformer
	seen  int
	err   error
}

func (c *countingSplitter) Transform(ctx context.Context, src []*schema.Document, opts ...document.TransformerOption) ([]*schema.Document, error) {
	c.seen += len(src)
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Transform(ctx, src, opts...)
}

func TestRun_SplitsThroughTransformer(t *testing.T) {
	t.Parallel()

	c, err := chunker.New(500, 50)
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}
	reg, err := backend.NewRegistry(flat.New())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	dir := writeFiles(t, map[string]string{
		"cats.txt": "The cat sat on the mat.",
		"dogs.md":  "Dogs bark loudly at night.",
	})

	splitter := &countingSplitter{inner: chunker.NewTransformer(c)}
	p, err := NewPipeline(splitter, index.NewBuilder(identity.NewResolver(t.TempDir(), "sentence-transformers"), reg, nil), nil)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	res, err := p.Run(context.Background(), dir, hashProvider(), "FAISS", miniLM, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if splitter.seen != 2 {
		t.Errorf("splitter saw %d documents, want 2", splitter.seen)
	}
	if res.NumChunks != 2 {
		t.Errorf("chunks = %d, want 2", res.NumChunks)
	}

	failing := &countingSplitter{inner: chunker.NewTransformer(c), err: errors.New("split failed")}
	p, err = NewPipeline(failing, index.NewBuilder(identity.NewResolver(t.TempDir(), "sentence-transformers"), reg, nil), nil)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if _, err := p.Run(context.Background(), dir, hashProvider(), "FAISS", miniLM, nil); err == nil || !strings.Contains(err.Error(), "split failed") {
		t.Errorf("want split error, got %v", err)
	}
}
