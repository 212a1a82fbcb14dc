// Package backend defines the capability interface every vector index
// backend implements and a registry that selects one by name.
//
// Adding a backend means implementing Backend and registering it; nothing
// else in the pipeline switches on backend names.
package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/rag"
)

// Index is a loaded, searchable index. Implementations must be safe for
// concurrent Search calls.
type Index interface {
	// Search returns up to k hits ordered by ascending distance. Ties keep
	// the backend's insertion order.
	Search(ctx context.Context, query []float32, k int) ([]rag.Hit, error)

	// Len returns the number of indexed vectors.
	Len() int

	// Dimension returns the vector length.
	Dimension() int

	// Close releases resources held by the index.
	Close() error
}

// Backend builds indexes into, and loads them from, a directory.
type Backend interface {
	// Name returns the registered backend name. It must not contain "_".
	Name() string

	// Build indexes vectors tagged with payloads (parallel slices) and
	// persists everything needed to Load it again into dir, which already
	// exists and is empty.
	Build(ctx context.Context, dir string, vectors [][]float32, payloads []rag.Payload) (Index, error)

	// Load opens an index previously written to dir by Build.
	Load(ctx context.Context, dir string) (Index, error)
}

// Dropper is implemented by backends holding resources outside the store
// directory. Drop is called before a version directory is deleted.
type Dropper interface {
	Drop(ctx context.Context, dir string) error
}

// Registry maps backend names to implementations. Lookups are
// case-insensitive; the registered spelling is canonical.
type Registry struct {
	// mu guards byName.
	mu sync.RWMutex

	// byName is keyed by lower-cased name.
	byName map[string]Backend
}

// NewRegistry returns a registry holding backends.
func NewRegistry(backends ...Backend) (*Registry, error) {
	r := &Registry{byName: make(map[string]Backend)}
	for _, b := range backends {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds b. Names containing "_" or already registered are rejected.
func (r *Registry) Register(b Backend) error {
	name := b.Name()
	if name == "" || strings.Contains(name, "_") {
		return fmt.Errorf("backend: %w", apperr.Invalidf("backend name %q must be non-empty and contain no underscore", name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(name)
	if _, dup := r.byName[key]; dup {
		return fmt.Errorf("backend: %w", apperr.Invalidf("backend %q registered twice", name))
	}
	r.byName[key] = b
	return nil
}

// Get returns the backend registered under name, ignoring case. Unknown
// names fail with apperr.ErrUnsupportedBackend.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.byName[strings.ToLower(name)]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("backend: %w: %q (supported: %s)",
		apperr.ErrUnsupportedBackend, name, strings.Join(r.namesLocked(), ", "))
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.byName))
	for _, b := range r.byName {
		names = append(names, b.Name())
	}
	sort.Strings(names)
	return names
}

// CheckInput validates the arguments of Backend.Build and returns the
// shared vector length.
func CheckInput(vectors [][]float32, payloads []rag.Payload) (int, error) {
	if len(vectors) == 0 {
		return 0, fmt.Errorf("backend: %w: no vectors to index", apperr.ErrEmptyInput)
	}
	if len(vectors) != len(payloads) {
		return 0, fmt.Errorf("backend: %w: %d vectors but %d payloads", apperr.ErrBackend, len(vectors), len(payloads))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("backend: %w: zero-length vector", apperr.ErrBackend)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("backend: %w: vector %d has length %d, want %d", apperr.ErrBackend, i, len(v), dim)
		}
	}
	return dim, nil
}
