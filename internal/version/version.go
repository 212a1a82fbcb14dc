// Package version holds build-time version information for the semsearch
// binary. The variables are populated at build time via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/semsearch-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/semsearch-go/internal/version.Commit=abc1234" \
//	         ./cmd/semsearch
//
// Without ldflags the values fall back to "dev" and "unknown".
package version

import "fmt"

// Version is the semantic version of the binary. Defaults to "dev".
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date (RFC3339).
var BuildDate = "unknown"

// String returns the one-line version banner.
func String() string {
	return fmt.Sprintf("semsearch %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
