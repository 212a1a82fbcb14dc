package chunker

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/semsearch-go/internal/rag"
)

// Metadata keys set on documents produced by Transformer.
const (
	MetaSource   = "source"
	MetaFilePath = "file_path"
	MetaSeq      = "seq"
)

// Transformer adapts a Chunker to eino's document.Transformer. The ingestion
// pipeline splits through this interface, so any eino transformer that
// keeps MetaSource on its output can replace it.
type Transformer struct {
	// chunker performs the split.
	chunker *Chunker
}

var _ document.Transformer = (*Transformer)(nil)

// NewTransformer wraps c.
func NewTransformer(c *Chunker) *Transformer {
	return &Transformer{chunker: c}
}

// Transform splits each source document. MetaSource and MetaFilePath are
// read from the input metadata and copied onto every output document
// together with MetaSeq.
func (t *Transformer) Transform(_ context.Context, src []*schema.Document, _ ...document.TransformerOption) ([]*schema.Document, error) {
	docs := make([]rag.Document, 0, len(src))
	for _, d := range src {
		if d == nil {
			continue
		}
		source, _ := d.MetaData[MetaSource].(string)
		if source == "" {
			source = d.ID
		}
		path, _ := d.MetaData[MetaFilePath].(string)
		docs = append(docs, rag.Document{Content: d.Content, Source: source, Path: path})
	}

	chunks := t.chunker.Chunk(docs)
	out := make([]*schema.Document, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, &schema.Document{
			ID:      fmt.Sprintf("%s#%d", c.Source, c.Seq),
			Content: c.Text,
			MetaData: map[string]any{
				MetaSource:   c.Source,
				MetaFilePath: c.Path,
				MetaSeq:      c.Seq,
			},
		})
	}
	return out, nil
}

// FromDocuments converts loaded documents to eino documents carrying
// MetaSource and MetaFilePath.
func FromDocuments(docs []rag.Document) []*schema.Document {
	out := make([]*schema.Document, len(docs))
	for i, d := range docs {
		out[i] = &schema.Document{
			ID:      d.Source,
			Content: d.Content,
			MetaData: map[string]any{
				MetaSource:   d.Source,
				MetaFilePath: d.Path,
			},
		}
	}
	return out
}

// ToChunks converts transformer output back to chunks. Documents without
// MetaSeq are numbered in order of appearance within their source; a
// document with no source at all is an error.
func ToChunks(docs []*schema.Document) ([]rag.Chunk, error) {
	next := make(map[string]int)
	out := make([]rag.Chunk, 0, len(docs))
	for i, d := range docs {
		if d == nil {
			continue
		}
		source, _ := d.MetaData[MetaSource].(string)
		if source == "" {
			source = d.ID
		}
		if source == "" {
			return nil, fmt.Errorf("chunker: document %d has no source", i)
		}
		path, _ := d.MetaData[MetaFilePath].(string)

		seq, ok := d.MetaData[MetaSeq].(int)
		if !ok {
			seq = next[source]
		}
		next[source] = seq + 1
		out = append(out, rag.Chunk{Text: d.Content, Source: source, Path: path, Seq: seq})
	}
	return out, nil
}
