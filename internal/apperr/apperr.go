// Package apperr defines the error taxonomy shared by every semsearch
// component. Callers wrap one of the sentinels below with context and use
// KindOf / ClassOf to decide how to react.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Wrap them with fmt.Errorf("...: %w", ErrX) so that
// errors.Is keeps working across package boundaries.
var (
	// ErrInvalidArgument indicates malformed caller input: bad top_k, empty
	// query, overlap >= chunk size, unsupported backend or model name.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmptyInput indicates a build was requested with zero documents or
	// zero chunks.
	ErrEmptyInput = errors.New("empty input")

	// ErrStoreNotFound indicates the requested store identity does not
	// resolve to a persisted store.
	ErrStoreNotFound = errors.New("store not found")

	// ErrModelUnavailable indicates the embedding backend cannot serve the
	// requested model.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrBackend indicates a failure inside the vector index backend.
	ErrBackend = errors.New("backend error")

	// ErrCorruptManifest indicates a manifest file exists but cannot be parsed.
	ErrCorruptManifest = errors.New("corrupt manifest")
)

// Derived sentinels. Both satisfy errors.Is(err, ErrInvalidArgument).
var (
	// ErrUnsupportedBackend indicates a vector_db name with no registered backend.
	ErrUnsupportedBackend = fmt.Errorf("%w: unsupported backend", ErrInvalidArgument)

	// ErrUnsupportedModel indicates an embedding model outside the configured set.
	ErrUnsupportedModel = fmt.Errorf("%w: unsupported embedding model", ErrInvalidArgument)
)

// Kind is the stable, machine-readable error category.
type Kind string

// Error kinds, in the order KindOf checks them.
const (
	KindInvalidArgument  Kind = "invalid_argument"
	KindEmptyInput       Kind = "empty_input"
	KindStoreNotFound    Kind = "store_not_found"
	KindModelUnavailable Kind = "model_unavailable"
	KindBackend          Kind = "backend_error"
	KindCorruptManifest  Kind = "corrupt_manifest"
	KindTimeout          Kind = "timeout"
	KindInternal         Kind = "internal"
)

// Class groups kinds by what the caller should do next.
type Class string

const (
	// ClassClient means the request itself must change.
	ClassClient Class = "client"
	// ClassRetry means the same request may succeed later.
	ClassRetry Class = "retry"
	// ClassSystem means the deployment is misconfigured or faulty.
	ClassSystem Class = "system"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidArgument, KindInvalidArgument},
	{ErrEmptyInput, KindEmptyInput},
	{ErrStoreNotFound, KindStoreNotFound},
	{ErrModelUnavailable, KindModelUnavailable},
	{ErrBackend, KindBackend},
	{ErrCorruptManifest, KindCorruptManifest},
	{context.DeadlineExceeded, KindTimeout},
}

// KindOf returns the kind of err. A nil error has no kind and returns "".
// Errors that do not wrap a known sentinel are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// ClassOf maps err onto the fix-input / retry / misconfigured split.
func ClassOf(err error) Class {
	switch KindOf(err) {
	case "":
		return ""
	case KindInvalidArgument, KindEmptyInput, KindStoreNotFound:
		return ClassClient
	case KindModelUnavailable, KindTimeout:
		return ClassRetry
	default:
		return ClassSystem
	}
}

// Invalidf returns an ErrInvalidArgument wrapped with a formatted message.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
