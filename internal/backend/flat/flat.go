// Package flat is the local "FAISS" backend: an exact, flat L2 index stored
// as a little-endian float32 matrix plus a JSON docstore of payloads. Search
// is a brute-force scan with squared Euclidean distance, matching the
// semantics of a FAISS IndexFlatL2.
package flat

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/backend"
	"github.com/54b3r/semsearch-go/internal/rag"
)

// Name is the registered backend name.
const Name = "FAISS"

// File names inside an index directory.
const (
	IndexFile    = "index.flat"
	DocstoreFile = "docstore.json"
)

// magic identifies an index file; formatVersion is bumped on layout changes.
var magic = [4]byte{'S', 'S', 'F', 'L'}

const formatVersion uint32 = 1

// header precedes the vector matrix in IndexFile.
type header struct {
	Magic   [4]byte
	Version uint32
	Dim     uint32
	Count   uint64
}

// Backend implements backend.Backend.
type Backend struct{}

var _ backend.Backend = Backend{}

// New returns the flat backend.
func New() Backend { return Backend{} }

// Name returns "FAISS".
func (Backend) Name() string { return Name }

// Build writes the matrix and docstore into dir and returns the in-memory index.
func (Backend) Build(ctx context.Context, dir string, vectors [][]float32, payloads []rag.Payload) (backend.Index, error) {
	idx, err := backend.NewExact(vectors, payloads)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := writeMatrix(filepath.Join(dir, IndexFile), idx.Dimension(), vectors); err != nil {
		return nil, err
	}
	if err := writeDocstore(filepath.Join(dir, DocstoreFile), payloads); err != nil {
		return nil, err
	}
	return idx, nil
}

// Load reads the matrix and docstore from dir.
func (Backend) Load(_ context.Context, dir string) (backend.Index, error) {
	vectors, err := readMatrix(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, err
	}
	payloads, err := readDocstore(filepath.Join(dir, DocstoreFile))
	if err != nil {
		return nil, err
	}
	if len(payloads) != len(vectors) {
		return nil, fmt.Errorf("flat: %w: %s holds %d vectors but docstore has %d payloads",
			apperr.ErrBackend, dir, len(vectors), len(payloads))
	}
	return backend.NewExact(vectors, payloads)
}

// writeMatrix writes header + row-major float32 data and fsyncs.
func writeMatrix(path string, dim int, vectors [][]float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("flat: %w: create %s: %w", apperr.ErrBackend, path, err)
	}
	w := bufio.NewWriter(f)
	h := header{Magic: magic, Version: formatVersion, Dim: uint32(dim), Count: uint64(len(vectors))}
	err = binary.Write(w, binary.LittleEndian, h)
	for _, v := range vectors {
		if err != nil {
			break
		}
		err = binary.Write(w, binary.LittleEndian, v)
	}
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("flat: %w: write %s: %w", apperr.ErrBackend, path, err)
	}
	return nil
}

// readMatrix validates the header and reads the matrix back.
func readMatrix(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("flat: %w: open %s: %w", apperr.ErrBackend, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("flat: %w: stat %s: %w", apperr.ErrBackend, path, err)
	}

	r := bufio.NewReader(f)
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("flat: %w: %s: truncated header: %w", apperr.ErrBackend, path, err)
	}
	if h.Magic != magic || h.Version != formatVersion {
		return nil, fmt.Errorf("flat: %w: %s is not a version %d flat index", apperr.ErrBackend, path, formatVersion)
	}
	want := int64(binary.Size(h)) + int64(h.Count)*int64(h.Dim)*4
	if h.Dim == 0 || info.Size() != want {
		return nil, fmt.Errorf("flat: %w: %s has %d bytes, header implies %d", apperr.ErrBackend, path, info.Size(), want)
	}

	vectors := make([][]float32, h.Count)
	for i := range vectors {
		v := make([]float32, h.Dim)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("flat: %w: %s truncated at vector %d", apperr.ErrBackend, path, i)
			}
			return nil, fmt.Errorf("flat: %w: read %s: %w", apperr.ErrBackend, path, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func writeDocstore(path string, payloads []rag.Payload) error {
	data, err := json.Marshal(payloads)
	if err != nil {
		return fmt.Errorf("flat: marshal docstore: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("flat: %w: write %s: %w", apperr.ErrBackend, path, err)
	}
	return nil
}

func readDocstore(path string) ([]rag.Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("flat: %w: read %s: %w", apperr.ErrBackend, path, err)
	}
	var payloads []rag.Payload
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, fmt.Errorf("flat: %w: decode %s: %w", apperr.ErrBackend, path, err)
	}
	return payloads, nil
}
