// Command semsearch builds and queries semantic search vector stores over a
// directory of text documents. It provides a CLI interface (via Cobra) and
// an optional HTTP JSON API.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/semsearch-go/cmd/semsearch/commands"
	"github.com/54b3r/semsearch-go/internal/apperr"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if apperr.ClassOf(err) == apperr.ClassClient {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
