package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/54b3r/semsearch-go/internal/apperr"
	"github.com/54b3r/semsearch-go/internal/logging"
)

// statusByKind maps error kinds to HTTP status codes.
var statusByKind = map[apperr.Kind]int{
	apperr.KindInvalidArgument:  http.StatusBadRequest,
	apperr.KindEmptyInput:       http.StatusUnprocessableEntity,
	apperr.KindStoreNotFound:    http.StatusNotFound,
	apperr.KindModelUnavailable: http.StatusServiceUnavailable,
	apperr.KindTimeout:          http.StatusGatewayTimeout,
	apperr.KindBackend:          http.StatusInternalServerError,
	apperr.KindCorruptManifest:  http.StatusInternalServerError,
	apperr.KindInternal:         http.StatusInternalServerError,
}

// statusFor returns the HTTP status for err.
func statusFor(err error) int {
	if st, ok := statusByKind[apperr.KindOf(err)]; ok {
		return st
	}
	return http.StatusInternalServerError
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError writes the JSON error body for err. Server-side failures are
// logged at error, client mistakes at info.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	} else {
		log.Info("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	writeJSON(w, r, status, errorResponse{
		Error: err.Error(),
		Kind:  string(apperr.KindOf(err)),
		Class: string(apperr.ClassOf(err)),
	})
}

// decodeJSON reads a JSON body of at most limit bytes into dst. Unknown
// fields are rejected. Failures are apperr.ErrInvalidArgument.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Invalidf("request body exceeds %d bytes", tooLarge.Limit)
		}
		if errors.Is(err, io.EOF) {
			return apperr.Invalidf("request body is empty")
		}
		return apperr.Invalidf("invalid request body: %v", err)
	}
	if dec.More() {
		return apperr.Invalidf("invalid request body: trailing data")
	}
	return nil
}

// withTimeout derives the request context with d, or returns it unchanged
// when d is zero.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Invalidf("%s must be an integer, got %q", name, v)
	}
	return n, nil
}
