// Package commands defines all Cobra CLI commands for the semsearch binary.
package commands

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/semsearch-go/internal/audit"
	"github.com/54b3r/semsearch-go/internal/config"
	"github.com/54b3r/semsearch-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// verbose forces debug logging regardless of LOG_LEVEL.
var verbose bool

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "semsearch",
		Short: "semsearch: semantic search over your documents",
		Long: `semsearch chunks the .txt and .md files in a data directory, embeds them
with a sentence-transformers model and stores the vectors in a named
vector store, one per (backend, model) pair. Queries are answered by
nearest-neighbour search with a similarity score in (0, 1].

Embedding provider, models and backends are selected via environment
variables, a .env file or a YAML config file (~/.semsearch/config.yaml).
See 'semsearch --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env never overrides variables already set in the environment.
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			level := os.Getenv("LOG_LEVEL")
			if verbose {
				level = "debug"
			}
			log := logging.NewWithOptions(logging.Options{
				Level:  level,
				Format: os.Getenv("LOG_FORMAT"),
			})

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			audit.LogCommandStart(log, cmd.Name(), path)
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ./semsearch.yaml or ~/.semsearch/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file; missing files are ignored")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		NewBuildCmd(),
		NewSearchCmd(),
		NewStoresCmd(),
		NewModelsCmd(),
		NewHistoryCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
