// Package identity derives the canonical name of a vector store from its
// (backend, model) pair and maps that name to a directory under the store
// root.
//
// The key format is "<backend>_<model short name>", where the short name is
// the last "/" segment of the fully qualified model name. Backend names
// never contain "_", so a key splits back at its first underscore. Turning
// the short name into a fully qualified one again assumes every supported
// model lives under one namespace; manifests record the full name and are
// preferred whenever they can be read.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/54b3r/semsearch-go/internal/apperr"
)

// Separator joins the backend and model short name in a key.
const Separator = "_"

// Identity is the (backend, model) pair that determines which embeddings
// are compatible with which index.
type Identity struct {
	// Backend is the registered backend name, e.g. "FAISS".
	Backend string

	// Model is the fully qualified embedding model name.
	Model string
}

// Key returns the canonical key for id.
func (id Identity) Key() string {
	return CanonicalKey(id.Backend, id.Model)
}

// String returns the canonical key.
func (id Identity) String() string { return id.Key() }

// CanonicalKey returns backend + "_" + the last path segment of model.
func CanonicalKey(backend, model string) string {
	return backend + Separator + ShortName(model)
}

// ShortName returns the final "/"-delimited segment of a model name.
func ShortName(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

// Resolver maps keys to directories under a fixed root.
type Resolver struct {
	// root is the directory holding one subdirectory per store.
	root string

	// namespace is re-prefixed onto short names by ParseKey.
	namespace string
}

// NewResolver returns a Resolver rooted at root.
func NewResolver(root, namespace string) *Resolver {
	return &Resolver{root: root, namespace: namespace}
}

// Root returns the store root.
func (r *Resolver) Root() string { return r.root }

// Namespace returns the namespace used to rebuild fully qualified names.
func (r *Resolver) Namespace() string { return r.namespace }

// CanonicalKey is the package-level CanonicalKey, exposed on the resolver
// for callers that only hold a *Resolver.
func (r *Resolver) CanonicalKey(backend, model string) string {
	return CanonicalKey(backend, model)
}

// ResolvePath returns the directory for key without touching the
// filesystem. Keys that could escape the root, or that are not of the form
// "<backend>_<short>", fail with apperr.ErrInvalidArgument.
func (r *Resolver) ResolvePath(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(r.root, key), nil
}

// EnsurePath resolves key and creates its directory if needed.
func (r *Resolver) EnsurePath(key string) (string, error) {
	dir, err := r.ResolvePath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("identity: create %s: %w", dir, err)
	}
	return dir, nil
}

// ParseKey splits key on its first "_" and rebuilds the fully qualified
// model name by prefixing the configured namespace.
func (r *Resolver) ParseKey(key string) (Identity, error) {
	backend, short, ok := strings.Cut(key, Separator)
	if !ok || backend == "" || short == "" {
		return Identity{}, fmt.Errorf("identity: %w", apperr.Invalidf("store key %q is not of the form <backend>_<model>", key))
	}
	return Identity{Backend: backend, Model: r.Qualify(short)}, nil
}

// Qualify prefixes short with the namespace. An empty namespace leaves it as is.
func (r *Resolver) Qualify(short string) string {
	if r.namespace == "" {
		return short
	}
	return r.namespace + "/" + short
}

// ValidateKey rejects keys that are empty, hidden, contain path separators
// or parent references, or lack the backend separator.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("identity: %w", apperr.Invalidf("store key must not be empty"))
	case strings.HasPrefix(key, "."):
		return fmt.Errorf("identity: %w", apperr.Invalidf("store key %q must not start with '.'", key))
	case strings.ContainsAny(key, `/\`) || strings.Contains(key, ".."):
		return fmt.Errorf("identity: %w", apperr.Invalidf("store key %q must not contain path elements", key))
	case !strings.Contains(key, Separator):
		return fmt.Errorf("identity: %w", apperr.Invalidf("store key %q is not of the form <backend>_<model>", key))
	}
	return nil
}
