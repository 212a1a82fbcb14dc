// Package rag defines the data model shared by the indexing and retrieval
// pipeline: source documents, chunks, stored payloads, raw backend hits and
// ranked search results. Concrete components (chunker, embedders, backends)
// exchange these types so no component depends on another's internals.
package rag

import (
	"context"
)

// Document is one loaded source file. Immutable once loaded; it is
// discarded after chunking.
type Document struct {
	// Content is the raw text of the document.
	Content string

	// Source is the short source name (the file name) used for attribution.
	Source string

	// Path is the origin path the document was read from.
	Path string
}

// Chunk is a bounded window of a Document's text.
type Chunk struct {
	// Text is the chunk content, an exact substring of the parent document.
	Text string

	// Source is copied verbatim from the parent Document.
	Source string

	// Path is copied verbatim from the parent Document.
	Path string

	// Seq is the zero-based position of this chunk within its source.
	Seq int
}

// Payload is the data stored alongside each vector in an index.
type Payload struct {
	// Text is the chunk text.
	Text string `json:"text"`

	// Source is the originating document's source name.
	Source string `json:"source"`

	// Seq is the chunk's sequence number within its source.
	Seq int `json:"seq"`
}

// PayloadOf returns the payload stored for c.
func PayloadOf(c Chunk) Payload {
	return Payload{Text: c.Text, Source: c.Source, Seq: c.Seq}
}

// Hit is a raw nearest-neighbour match returned by a backend.
type Hit struct {
	// Payload is the stored data for the matched vector.
	Payload Payload

	// Distance is the squared Euclidean distance to the query vector.
	// Lower is more similar.
	Distance float32
}

// SearchResult is one ranked retrieval result.
type SearchResult struct {
	// Rank is 1-based and contiguous within a result list.
	Rank int `json:"rank"`

	// Text is the matched chunk's content.
	Text string `json:"content"`

	// Source is the matched chunk's source file name.
	Source string `json:"source_file"`

	// Similarity is 1/(1+distance), in (0,1].
	Similarity float64 `json:"similarity_score"`
}

// Embedder converts text into dense vectors. It is the raw provider
// contract; normalisation and dimension bookkeeping live one layer up.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Pinger is implemented by collaborators that can report reachability
// without doing real work.
type Pinger interface {
	// Ping returns nil when the collaborator is reachable.
	Ping(ctx context.Context) error
}
