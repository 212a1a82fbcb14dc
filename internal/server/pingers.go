package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/54b3r/semsearch-go/internal/rag"
)

// NamedPinger labels any [rag.Pinger] (an embedding provider, the Qdrant
// backend) for readiness responses.
type NamedPinger struct {
	// name identifies the dependency in readiness responses (e.g. "ollama").
	name string
	// target is the dependency to check.
	target rag.Pinger
}

// NewNamedPinger constructs a NamedPinger for target.
func NewNamedPinger(name string, target rag.Pinger) *NamedPinger {
	return &NamedPinger{name: name, target: target}
}

// Name returns the dependency label used in readiness responses.
func (p *NamedPinger) Name() string { return p.name }

// Ping delegates to the wrapped target.
func (p *NamedPinger) Ping(ctx context.Context) error {
	if err := p.target.Ping(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// DirPinger reports whether the vector store root exists (or can be created)
// and is writable, by creating and removing a temporary file in it.
type DirPinger struct {
	// dir is the directory to check.
	dir string
}

// NewDirPinger constructs a DirPinger for dir.
func NewDirPinger(dir string) *DirPinger {
	return &DirPinger{dir: dir}
}

// Name returns the dependency label used in readiness responses.
func (p *DirPinger) Name() string { return "vector_store_root" }

// Ping checks that dir is a writable directory.
func (p *DirPinger) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", p.dir, err)
	}
	f, err := os.CreateTemp(p.dir, ".ready-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", p.dir, err)
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("remove scratch file %s: %w", filepath.Base(name), err)
	}
	return nil
}
