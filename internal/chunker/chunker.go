// Package chunker splits documents into bounded, overlapping text windows.
//
// Every chunk is an exact substring of its document. A chunk ends on the
// best natural boundary inside its window, preferring a paragraph break,
// then a sentence end, then whitespace, and cutting hard only when none of
// those exist. The next chunk starts overlap characters before the previous
// one ended, so dropping the first overlap characters of every chunk after
// the first and concatenating reproduces the document.
//
// Lengths are measured in characters (runes), not bytes.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/rag"
)

// Default window settings.
const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// Chunker splits text into windows of at most Size characters.
// A Chunker is immutable and safe for concurrent use.
type Chunker struct {
	// size is the maximum chunk length in characters.
	size int

	// overlap is the number of trailing characters repeated at the start of
	// the next chunk from the same source.
	overlap int
}

// New returns a Chunker. It fails with apperr.ErrInvalidArgument when size
// is not positive, overlap is negative, or overlap >= size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: %w", apperr.Invalidf("max size must be positive, got %d", size))
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunker: %w", apperr.Invalidf("overlap must not be negative, got %d", overlap))
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunker: %w", apperr.Invalidf("overlap %d must be less than max size %d", overlap, size))
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the maximum chunk length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits every document and tags each chunk with its document's
// provenance and a zero-based sequence number per source. Empty or
// whitespace-only documents contribute no chunks.
func (c *Chunker) Chunk(docs []rag.Document) []rag.Chunk {
	var out []rag.Chunk
	seq := make(map[string]int)
	for _, doc := range docs {
		for _, text := range c.Split(doc.Content) {
			out = append(out, rag.Chunk{
				Text:   text,
				Source: doc.Source,
				Path:   doc.Path,
				Seq:    seq[doc.Source],
			})
			seq[doc.Source]++
		}
	}
	return out
}

// Chunk is a convenience wrapper for New(size, overlap).Chunk(docs).
func Chunk(docs []rag.Document, size, overlap int) ([]rag.Chunk, error) {
	c, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Chunk(docs), nil
}

// Split returns the windows of a single text.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	var out []string
	for start := 0; ; {
		if len(runes)-start <= c.size {
			out = append(out, string(runes[start:]))
			return out
		}
		end := c.cut(runes, start)
		out = append(out, string(runes[start:end]))
		start = end - c.overlap
	}
}

// cut picks the end offset of the window starting at start. The result lies
// in (start+overlap, start+size], which keeps every window within bounds and
// guarantees the next window starts further along.
func (c *Chunker) cut(runes []rune, start int) int {
	lo, hi := start+c.overlap+1, start+c.size

	for _, at := range []func([]rune, int) bool{paragraphEnd, sentenceEnd, spaceEnd} {
		for end := hi; end >= lo; end-- {
			if at(runes, end) {
				return end
			}
		}
	}
	return hi
}

// paragraphEnd reports whether a blank line ends right before end.
func paragraphEnd(r []rune, end int) bool {
	return end >= 2 && r[end-1] == '\n' && r[end-2] == '\n'
}

// sentenceEnd reports whether end follows terminal punctuation and one
// whitespace character.
func sentenceEnd(r []rune, end int) bool {
	if end < 2 || !unicode.IsSpace(r[end-1]) {
		return false
	}
	switch r[end-2] {
	case '.', '!', '?':
		return true
	}
	return false
}

// spaceEnd reports whether end follows any whitespace.
func spaceEnd(r []rune, end int) bool {
	return end >= 1 && unicode.IsSpace(r[end-1])
}
