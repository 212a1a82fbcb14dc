// Package budget estimates whether chunk text fits an embedding model's input
// window. Sentence-transformers models silently truncate input past their
// maximum sequence length, so an oversized chunk is indexed by its prefix
// only. Because providers use different tokenizers, this package uses a
// conservative character-based heuristic: 1 token ≈ 4 characters.
package budget

import (
	"strings"

	"github.com/54b3r/semsearch-go/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxInputTokens applies to models missing from maxInputTokens.
	DefaultMaxInputTokens = 512
)

// maxInputTokens is the published max_seq_length per model short name.
var maxInputTokens = map[string]int{
	"all-MiniLM-L6-v2":        256,
	"all-MiniLM-L12-v2":       256,
	"all-mpnet-base-v2":       384,
	"paraphrase-MiniLM-L3-v2": 128,
}

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// MaxInputTokens returns the input window for a fully qualified or short
// model name.
func MaxInputTokens(model string) int {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	if n, ok := maxInputTokens[model]; ok {
		return n
	}
	return DefaultMaxInputTokens
}

// Report summarises how a chunk set fits a model's window.
type Report struct {
	// Limit is the model's input window in tokens.
	Limit int
	// Largest is the highest per-chunk estimate.
	Largest int
	// Over counts chunks whose estimate exceeds Limit.
	Over int
}

// Check estimates every chunk against model's window.
func Check(chunks []rag.Chunk, model string) Report {
	r := Report{Limit: MaxInputTokens(model)}
	for _, c := range chunks {
		n := Estimate(c.Text)
		r.Largest = max(r.Largest, n)
		if n > r.Limit {
			r.Over++
		}
	}
	return r
}
