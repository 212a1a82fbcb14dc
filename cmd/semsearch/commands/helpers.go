package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/54b3r/semsearch-go/internal/config"
	"github.com/54b3r/semsearch-go/internal/logging"
	"github.com/54b3r/semsearch-go/internal/service"
)

// openRuntime resolves Settings from the environment, lets the caller apply
// flag overrides, and wires the service. The caller must Close the runtime.
func openRuntime(cmd *cobra.Command, override func(*config.Settings)) (*service.Runtime, *config.Settings, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, err
	}
	if override != nil {
		override(cfg)
	}
	rt, err := service.Open(cfg, logging.FromContext(cmd.Context()))
	if err != nil {
		return nil, nil, err
	}
	return rt, cfg, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// truncate shortens s to n runes for table output.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
