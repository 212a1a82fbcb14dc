// Package manifest reads and writes the metadata.json file that describes a
// persisted vector store, and locates the index version it points at.
//
// Layout of one store:
//
//	<root>/<key>/metadata.json
//	<root>/<key>/versions/<version id>/   backend-native files
//
// The manifest is replaced with a temp-file rename so readers see either the
// old or the new file, never a partial one.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/semsearch-go/internal/apperr"
)

const (
	// FileName is the manifest file inside a store directory.
	FileName = "metadata.json"

	// VersionsDir holds one subdirectory per built index version.
	VersionsDir = "versions"

	// TimeLayout is the created_at format, YYYY-MM-DD HH:MM:SS.
	TimeLayout = "2006-01-02 15:04:05"
)

// Manifest describes a persisted store. The first four fields are the
// stable wire format; the rest are optional extensions.
type Manifest struct {
	// VectorDB is the backend name, e.g. "FAISS".
	VectorDB string `json:"vector_db"`

	// EmbeddingModel is the fully qualified embedding model name.
	EmbeddingModel string `json:"embedding_model"`

	// NumChunks is the number of vectors in the index.
	NumChunks int `json:"num_chunks"`

	// CreatedAt is the build time in TimeLayout.
	CreatedAt string `json:"created_at"`

	// NumDocuments is the number of source documents, when known.
	NumDocuments int `json:"num_documents,omitempty"`

	// EmbeddingDimension is the vector length.
	EmbeddingDimension int `json:"embedding_dimension,omitempty"`

	// IndexVersion names the versions/ subdirectory holding the index.
	IndexVersion string `json:"index_version,omitempty"`
}

// Timestamp formats t for CreatedAt.
func Timestamp(t time.Time) string {
	return t.Format(TimeLayout)
}

// Read loads the manifest in storeDir. A missing file returns an error
// satisfying errors.Is(err, os.ErrNotExist); an unparsable or incomplete
// file, or one whose index_version is not a version id, returns
// apperr.ErrCorruptManifest.
func Read(storeDir string) (*Manifest, error) {
	path := filepath.Join(storeDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: %w: %s: %v", apperr.ErrCorruptManifest, path, err)
	}
	if m.VectorDB == "" || m.EmbeddingModel == "" {
		return nil, fmt.Errorf("manifest: %w: %s: vector_db and embedding_model are required", apperr.ErrCorruptManifest, path)
	}
	if err := checkVersion(m.IndexVersion); err != nil {
		return nil, fmt.Errorf("manifest: %w: %s: %v", apperr.ErrCorruptManifest, path, err)
	}
	return &m, nil
}

// Write atomically replaces the manifest in storeDir.
func Write(storeDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(storeDir, "."+FileName+".*")
	if err != nil {
		return fmt.Errorf("manifest: create temp in %s: %w", storeDir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("manifest: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("manifest: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("manifest: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, filepath.Join(storeDir, FileName)); err != nil {
		return fmt.Errorf("manifest: commit %s: %w", storeDir, err)
	}
	return nil
}

// Versions lists the version ids under storeDir in ascending order. Version
// ids are UUIDv7 strings, so ascending order is build order.
func Versions(storeDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(storeDir, VersionsDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("manifest: list versions in %s: %w", storeDir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// checkVersion accepts an empty version (flat store) or a UUID. Anything
// else could point outside the versions directory.
func checkVersion(version string) error {
	if version == "" {
		return nil
	}
	if _, err := uuid.Parse(version); err != nil {
		return fmt.Errorf("index_version %q is not a version id", version)
	}
	return nil
}

// VersionPath returns the directory of version inside storeDir.
func VersionPath(storeDir, version string) string {
	return filepath.Join(storeDir, VersionsDir, version)
}

// DataDir returns the directory holding the backend files that m points at.
// Without a manifest (m == nil) it picks the newest version; a store with no
// versions directory at all is treated as a flat store whose files live
// directly in storeDir.
func DataDir(storeDir string, m *Manifest) (string, error) {
	if m != nil && m.IndexVersion != "" {
		if err := checkVersion(m.IndexVersion); err != nil {
			return "", fmt.Errorf("manifest: %w: %s: %v", apperr.ErrCorruptManifest, storeDir, err)
		}
		return VersionPath(storeDir, m.IndexVersion), nil
	}
	versions, err := Versions(storeDir)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return storeDir, nil
	}
	return VersionPath(storeDir, versions[len(versions)-1]), nil
}
