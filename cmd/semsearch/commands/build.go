package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/semsearch-go/internal/config"
	"github.com/54b3r/semsearch-go/internal/logging"
	"github.com/54b3r/semsearch-go/internal/service"
)

// NewBuildCmd constructs the `semsearch build` command, which (re)builds the
// vector store for one (backend, model) pair from the data directory.
func NewBuildCmd() *cobra.Command {
	var model, db, dataDir string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build or rebuild a vector store from the data directory",
		Long: `Chunk every .txt and .md file in the data directory, embed the chunks with
the selected model and write them to a new version of the vector store
named <backend>_<model short name>.

A rebuild replaces the previous version atomically; concurrent searches
keep using the old version until the new one is committed.

Examples:
  semsearch build
  semsearch build --db Chroma --model sentence-transformers/all-mpnet-base-v2
  semsearch build --data-dir ./docs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, _, err := openRuntime(cmd, func(c *config.Settings) {
				if dataDir != "" {
					c.DataDir = dataDir
				}
			})
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			log := logging.FromContext(cmd.Context())
			resp, err := rt.Service.Build(cmd.Context(), service.BuildRequest{
				EmbeddingModel: model,
				VectorDB:       db,
			}, func(msg string) { log.Info(msg) })
			if err != nil {
				return err
			}
			log.Debug("build finished", slog.String("vector_store_id", resp.VectorStoreID))

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, resp)
			}
			fmt.Fprintf(out, "Built %s: %d documents, %d chunks, %d dims in %.2fs\n",
				resp.VectorStoreID, resp.NumberOfDocuments, resp.NumberOfChunks,
				resp.EmbeddingDimension, resp.TimeTakenSeconds)
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Embedding model (default: EMBEDDING_DEFAULT_MODEL)")
	cmd.Flags().StringVar(&db, "db", "", "Vector backend: FAISS, Chroma or Qdrant (default: VECTOR_DB_DEFAULT)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory of .txt/.md files (default: SEMSEARCH_DATA_DIR)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the build response as JSON")

	return cmd
}
