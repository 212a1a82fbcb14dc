package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/54b3r/semsearch-go/internal/apperr"
)

// TEIEmbedder implements rag.Embedder against a Hugging Face
// text-embeddings-inference server. A TEI server hosts exactly one model,
// so the model name is only used in error messages.
type TEIEmbedder struct {
	// host is the TEI server base URL (e.g. "http://localhost:8080").
	host string
	// model is the model the server is expected to host.
	model string
	// client is the shared HTTP client with a sensible timeout.
	client *http.Client
}

// NewTEIEmbedder constructs a TEIEmbedder.
func NewTEIEmbedder(host, model string) *TEIEmbedder {
	return &TEIEmbedder{
		host:   host,
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// teiEmbedRequest is the JSON body sent to POST /embed.
type teiEmbedRequest struct {
	Inputs    []string `json:"inputs"`
	Normalize bool     `json:"normalize"`
	Truncate  bool     `json:"truncate"`
}

// teiError is the JSON body TEI returns on failure.
type teiError struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

// Embed converts a batch of texts into their corresponding embeddings.
func (e *TEIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(teiEmbedRequest{Inputs: texts, Normalize: true, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("tei embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tei embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tei embedder: %w: model %q: %w", apperr.ErrModelUnavailable, e.model, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tei embedder: %w: read response: %w", apperr.ErrModelUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		var te teiError
		if json.Unmarshal(body, &te) == nil && te.Error != "" {
			msg = te.Error
		}
		return nil, fmt.Errorf("tei embedder: %w: model %q: %s", apperr.ErrModelUnavailable, e.model, msg)
	}

	var embeddings [][]float32
	if err := json.Unmarshal(body, &embeddings); err != nil {
		return nil, fmt.Errorf("tei embedder: %w: decode response: %w", apperr.ErrModelUnavailable, err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("tei embedder: %w: expected %d embeddings, got %d",
			apperr.ErrModelUnavailable, len(texts), len(embeddings))
	}
	return embeddings, nil
}

// Ping checks GET /health.
func (e *TEIEmbedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/health", nil)
	if err != nil {
		return fmt.Errorf("tei embedder: create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("tei embedder: %w: %w", apperr.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tei embedder: %w: /health returned HTTP %d", apperr.ErrModelUnavailable, resp.StatusCode)
	}
	return nil
}
