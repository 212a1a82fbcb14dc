package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/rag"
)

// Extensions lists the file suffixes LoadDir reads, lower case.
var Extensions = []string{".txt", ".md"}

// LoadDir reads every supported file directly inside dir, in name order.
// Subdirectories are not descended into. Files that cannot be read or are
// not valid UTF-8 are skipped with a warning. A missing dir fails with
// apperr.ErrInvalidArgument.
func LoadDir(ctx context.Context, dir string, log *slog.Logger) ([]rag.Document, error) {
	if log == nil {
		log = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("ingestion: %w", apperr.Invalidf("data directory %s does not exist", dir))
		}
		return nil, fmt.Errorf("ingestion: read %s: %w", dir, err)
	}

	var docs []rag.Document
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() || !supported(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("skipping unreadable document", "path", path, "error", err)
			continue
		}
		if !utf8.Valid(data) {
			log.Warn("skipping document that is not UTF-8 text", "path", path)
			continue
		}
		docs = append(docs, rag.Document{Content: string(data), Source: e.Name(), Path: path})
	}
	return docs, nil
}

func supported(name string) bool {
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(name)))
}
