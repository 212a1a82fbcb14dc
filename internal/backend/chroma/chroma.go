// Package chroma is the local "Chroma" backend: a persistent collection in
// a single SQLite file (chroma.sqlite3), holding each chunk's document text,
// source metadata and embedding. Load reads the collection into memory and
// searches it with squared L2 distance, Chroma's default "l2" space.
package chroma

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/backend"
	"github.com/54b3r/semsearch-go/internal/rag"
)

// Name is the registered backend name.
const Name = "Chroma"

// DBFile is the collection file inside an index directory.
const DBFile = "chroma.sqlite3"

// Backend implements backend.Backend.
type Backend struct{}

var _ backend.Backend = Backend{}

// New returns the Chroma backend.
func New() Backend { return Backend{} }

// Name returns "Chroma".
func (Backend) Name() string { return Name }

// open opens (or creates) the collection file and runs the schema migration.
func open(path string) (*sql.DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("chroma: %w: open %s: %w", apperr.ErrBackend, path, err)
	}
	db.SetMaxOpenConns(1)

	const ddl = `
CREATE TABLE IF NOT EXISTS collection_metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS embeddings (
    id        INTEGER PRIMARY KEY,  -- insertion order
    source    TEXT    NOT NULL,
    seq       INTEGER NOT NULL,
    document  TEXT    NOT NULL,
    vector    BLOB    NOT NULL      -- little-endian float32
);
`
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("chroma: %w: migrate %s: %w", apperr.ErrBackend, path, err)
	}
	return db, nil
}

// Build writes every vector and payload into a new collection file in dir.
func (Backend) Build(ctx context.Context, dir string, vectors [][]float32, payloads []rag.Payload) (backend.Index, error) {
	idx, err := backend.NewExact(vectors, payloads)
	if err != nil {
		return nil, err
	}

	db, err := open(filepath.Join(dir, DBFile))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("chroma: %w: begin: %w", apperr.ErrBackend, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collection_metadata (key, value) VALUES ('dimension', ?), ('count', ?), ('space', 'l2')`,
		strconv.Itoa(idx.Dimension()), strconv.Itoa(idx.Len())); err != nil {
		return nil, fmt.Errorf("chroma: %w: write metadata: %w", apperr.ErrBackend, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO embeddings (id, source, seq, document, vector) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("chroma: %w: prepare: %w", apperr.ErrBackend, err)
	}
	defer stmt.Close()

	for i, v := range vectors {
		p := payloads[i]
		if _, err := stmt.ExecContext(ctx, i, p.Source, p.Seq, p.Text, encode(v)); err != nil {
			return nil, fmt.Errorf("chroma: %w: insert row %d: %w", apperr.ErrBackend, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("chroma: %w: commit: %w", apperr.ErrBackend, err)
	}
	return idx, nil
}

// Load reads the collection in dir into memory.
func (Backend) Load(ctx context.Context, dir string) (backend.Index, error) {
	path := filepath.Join(dir, DBFile)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("chroma: %w: %w", apperr.ErrBackend, err)
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var dimStr string
	if err := db.QueryRowContext(ctx, `SELECT value FROM collection_metadata WHERE key = 'dimension'`).Scan(&dimStr); err != nil {
		return nil, fmt.Errorf("chroma: %w: %s has no dimension metadata: %w", apperr.ErrBackend, dir, err)
	}
	dim, err := strconv.Atoi(dimStr)
	if err != nil || dim <= 0 {
		return nil, fmt.Errorf("chroma: %w: %s has invalid dimension %q", apperr.ErrBackend, dir, dimStr)
	}

	rows, err := db.QueryContext(ctx, `SELECT source, seq, document, vector FROM embeddings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("chroma: %w: query %s: %w", apperr.ErrBackend, dir, err)
	}
	defer rows.Close()

	var (
		vectors  [][]float32
		payloads []rag.Payload
	)
	for rows.Next() {
		var (
			p    rag.Payload
			blob []byte
		)
		if err := rows.Scan(&p.Source, &p.Seq, &p.Text, &blob); err != nil {
			return nil, fmt.Errorf("chroma: %w: scan: %w", apperr.ErrBackend, err)
		}
		if len(blob) != dim*4 {
			return nil, fmt.Errorf("chroma: %w: row %d has %d vector bytes, want %d",
				apperr.ErrBackend, len(vectors), len(blob), dim*4)
		}
		vectors = append(vectors, decode(blob))
		payloads = append(payloads, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chroma: %w: rows: %w", apperr.ErrBackend, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("chroma: %w: %s holds no embeddings", apperr.ErrBackend, dir)
	}
	return backend.NewExact(vectors, payloads)
}

// encode packs v as little-endian float32.
func encode(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

// decode unpacks a little-endian float32 blob.
func decode(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
