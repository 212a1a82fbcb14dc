// Package qdrant is the remote "Qdrant" backend. Each built index version
// lives in its own Qdrant collection; the local version directory only holds
// a pointer file naming that collection. Collections use Euclidean
// distance, and scores are squared on the way out so distances are
// comparable with the local backends.
package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/backend"
	"github.com/54b3r/semsearch-go/internal/rag"
)

// Name is the registered backend name.
const Name = "Qdrant"

// PointerFile names the collection backing an index version.
const PointerFile = "qdrant.json"

// upsertBatch bounds the number of points per Upsert call.
const upsertBatch = 256

// Payload keys.
const (
	keyText   = "text"
	keySource = "source"
	keySeq    = "seq"
)

// Config holds connection parameters for a Qdrant instance.
type Config struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// CollectionPrefix is prepended to every collection name (default: "semsearch-").
	CollectionPrefix string
}

// pointer is the JSON content of PointerFile.
type pointer struct {
	Collection string `json:"collection"`
	Dimension  int    `json:"dimension"`
	Count      int    `json:"count"`
}

// Backend implements backend.Backend and backend.Dropper on top of one
// shared Qdrant gRPC client.
type Backend struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// prefix is prepended to collection names.
	prefix string
}

var (
	_ backend.Backend = (*Backend)(nil)
	_ backend.Dropper = (*Backend)(nil)
)

// New creates the Qdrant client. The connection is established lazily.
func New(cfg Config) (*Backend, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = "semsearch-"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &Backend{client: client, prefix: cfg.CollectionPrefix}, nil
}

// Name returns "Qdrant".
func (b *Backend) Name() string { return Name }

// Build creates a fresh collection named after dir, upserts every point and
// writes the pointer file.
func (b *Backend) Build(ctx context.Context, dir string, vectors [][]float32, payloads []rag.Payload) (backend.Index, error) {
	dim, err := backend.CheckInput(vectors, payloads)
	if err != nil {
		return nil, err
	}

	collection := b.prefix + filepath.Base(dir)
	err = b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w: create collection %q: %w", apperr.ErrBackend, collection, err)
	}

	if err := b.upsert(ctx, collection, vectors, payloads); err != nil {
		_ = b.client.DeleteCollection(context.WithoutCancel(ctx), collection)
		return nil, err
	}

	ptr := pointer{Collection: collection, Dimension: dim, Count: len(vectors)}
	if err := writePointer(dir, ptr); err != nil {
		_ = b.client.DeleteCollection(context.WithoutCancel(ctx), collection)
		return nil, err
	}
	return &Index{client: b.client, ptr: ptr}, nil
}

// upsert writes points in batches and waits for each batch to be applied.
func (b *Backend) upsert(ctx context.Context, collection string, vectors [][]float32, payloads []rag.Payload) error {
	wait := true
	for lo := 0; lo < len(vectors); lo += upsertBatch {
		hi := min(lo+upsertBatch, len(vectors))
		points := make([]*qdrant.PointStruct, 0, hi-lo)
		for i := lo; i < hi; i++ {
			points = append(points, toPoint(i, vectors[i], payloads[i]))
		}
		if _, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           &wait,
			Points:         points,
		}); err != nil {
			return fmt.Errorf("qdrant: %w: upsert into %q: %w", apperr.ErrBackend, collection, err)
		}
	}
	return nil
}

// Load reads the pointer file and checks that its collection still exists.
func (b *Backend) Load(ctx context.Context, dir string) (backend.Index, error) {
	ptr, err := readPointer(dir)
	if err != nil {
		return nil, err
	}
	exists, err := b.client.CollectionExists(ctx, ptr.Collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w: failed to check collection existence: %w", apperr.ErrBackend, err)
	}
	if !exists {
		return nil, fmt.Errorf("qdrant: %w: collection %q referenced by %s is gone", apperr.ErrBackend, ptr.Collection, dir)
	}
	return &Index{client: b.client, ptr: ptr}, nil
}

// Drop deletes the collection referenced from dir. A missing pointer file
// is not an error.
func (b *Backend) Drop(ctx context.Context, dir string) error {
	ptr, err := readPointer(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := b.client.DeleteCollection(ctx, ptr.Collection); err != nil {
		return fmt.Errorf("qdrant: %w: delete collection %q: %w", apperr.ErrBackend, ptr.Collection, err)
	}
	return nil
}

// Ping checks server health.
func (b *Backend) Ping(ctx context.Context) error {
	if _, err := b.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (b *Backend) Close() error {
	return b.client.Close()
}

// Index searches one collection.
type Index struct {
	// client is shared with the Backend and not closed by the Index.
	client *qdrant.Client

	// ptr describes the collection.
	ptr pointer
}

// Search queries the collection and converts scores to squared distances.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]rag.Hit, error) {
	if len(query) != x.ptr.Dimension {
		return nil, fmt.Errorf("qdrant: %w: query has length %d, collection has %d", apperr.ErrBackend, len(query), x.ptr.Dimension)
	}
	if k <= 0 {
		return nil, nil
	}
	limit := uint64(k)
	results, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: x.ptr.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w: search failed: %w", apperr.ErrBackend, err)
	}

	hits := make([]rag.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, fromScored(r))
	}
	return hits, nil
}

// Len returns the number of points written at build time.
func (x *Index) Len() int { return x.ptr.Count }

// Dimension returns the collection's vector size.
func (x *Index) Dimension() int { return x.ptr.Dimension }

// Close is a no-op; the client belongs to the Backend.
func (x *Index) Close() error { return nil }

// toPoint converts one vector and payload to a Qdrant point with a numeric id.
func toPoint(i int, v []float32, p rag.Payload) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDNum(uint64(i)),
		Vectors: qdrant.NewVectors(v...),
		Payload: qdrant.NewValueMap(map[string]any{
			keyText:   p.Text,
			keySource: p.Source,
			keySeq:    p.Seq,
		}),
	}
}

// fromScored converts a Qdrant result. Euclid scores are plain L2
// distances; squaring them matches the squared-L2 local backends.
func fromScored(r *qdrant.ScoredPoint) rag.Hit {
	var p rag.Payload
	if m := r.GetPayload(); m != nil {
		p.Text = m[keyText].GetStringValue()
		p.Source = m[keySource].GetStringValue()
		p.Seq = int(m[keySeq].GetIntegerValue())
	}
	return rag.Hit{Payload: p, Distance: r.GetScore() * r.GetScore()}
}

func writePointer(dir string, ptr pointer) error {
	data, err := json.Marshal(ptr)
	if err != nil {
		return fmt.Errorf("qdrant: marshal pointer: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, PointerFile), data, 0o644); err != nil {
		return fmt.Errorf("qdrant: %w: write pointer: %w", apperr.ErrBackend, err)
	}
	return nil
}

func readPointer(dir string) (pointer, error) {
	var ptr pointer
	data, err := os.ReadFile(filepath.Join(dir, PointerFile))
	if err != nil {
		return ptr, err
	}
	if err := json.Unmarshal(data, &ptr); err != nil || ptr.Collection == "" || ptr.Dimension <= 0 {
		return ptr, fmt.Errorf("qdrant: %w: invalid pointer file in %s", apperr.ErrBackend, dir)
	}
	return ptr, nil
}
