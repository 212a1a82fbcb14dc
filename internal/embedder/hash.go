package embedder

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder is an offline bag-of-words feature-hashing embedder. Each
// non-stopword token adds 1.0 to the dimension selected by its FNV-1a hash.
// It needs no network, is fully deterministic, and keeps the shape of the
// real model it stands in for, which makes it the provider of choice for
// tests and air-gapped demos. Output is L2-normalised by Provider.
type HashEmbedder struct {
	// dim is the output vector length.
	dim int
}

// NewHashEmbedder returns a HashEmbedder producing dim-length vectors.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = defaultHashDimensions
	}
	return &HashEmbedder{dim: dim}
}

// Dimensions returns the output vector length.
func (e *HashEmbedder) Dimensions() int { return e.dim }

// Embed hashes every text. It never returns a zero vector: a text made only
// of stopwords falls back to hashing all of its tokens, and a text with no
// tokens hashes its trimmed form.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec := make([]float32, e.dim)
		for _, tok := range hashTokens(t) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			vec[h.Sum32()%uint32(e.dim)] += 1.0
		}
		out[i] = vec
	}
	return out, nil
}

// Ping always succeeds.
func (e *HashEmbedder) Ping(context.Context) error { return nil }

// hashTokens lowercases t, splits on anything that is not a letter or digit
// and drops stopwords.
func hashTokens(t string) []string {
	words := strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	kept := words[:0:0]
	for _, w := range words {
		if !stopWords[w] {
			kept = append(kept, w)
		}
	}
	switch {
	case len(kept) > 0:
		return kept
	case len(words) > 0:
		return words
	default:
		return []string{strings.TrimSpace(t)}
	}
}

var stopWords = map[string]bool{
	"i": true, "me": true, "my": true, "we": true, "our": true, "you": true, "your": true,
	"he": true, "him": true, "his": true, "she": true, "her": true, "it": true, "its": true,
	"they": true, "them": true, "their": true, "what": true, "which": true, "who": true,
	"this": true, "that": true, "these": true, "those": true, "am": true, "is": true,
	"are": true, "was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true, "did": true,
	"a": true, "an": true, "the": true, "and": true, "but": true, "if": true, "or": true,
	"because": true, "as": true, "until": true, "while": true, "of": true, "at": true,
	"by": true, "for": true, "with": true, "about": true, "into": true, "through": true,
	"to": true, "from": true, "up": true, "down": true, "in": true, "out": true, "on": true,
	"off": true, "over": true, "under": true, "then": true, "here": true, "there": true,
	"when": true, "where": true, "why": true, "how": true, "all": true, "any": true,
	"both": true, "each": true, "no": true, "nor": true, "not": true, "only": true,
	"so": true, "than": true, "too": true, "very": true, "s": true, "t": true, "can": true,
	"will": true, "just": true, "should": true, "now": true,
}
