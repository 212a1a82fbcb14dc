package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/54b3r/semsearch-go/internal/rag"
	"github.com/54b3r/semsearch-go/internal/service"
)

// NewSearchCmd constructs the `semsearch search` command. One query runs a
// single search; several run as a batch against the same store.
func NewSearchCmd() *cobra.Command {
	var store string
	var topK int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Search a vector store",
		Long: `Embed each query with the store's model and return the closest chunks,
ranked by similarity.

Use 'semsearch stores' to list valid store names.

Examples:
  semsearch search --store FAISS_all-MiniLM-L6-v2 "how do cats sleep"
  semsearch search -s Chroma_all-mpnet-base-v2 -k 3 "first query" "second query"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			k := topK
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				resp, err := rt.Service.Search(cmd.Context(), service.SearchRequest{
					Query: args[0], VectorStoreID: store, TopK: &k,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(out, resp)
				}
				printResults(out, resp.Query, resp.Results)
				return nil
			}

			resp, err := rt.Service.SearchBatch(cmd.Context(), service.BatchSearchRequest{
				Queries: args, VectorStoreID: store, TopK: &k,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(out, resp)
			}
			for _, q := range resp.Results {
				if q.Error != "" {
					fmt.Fprintf(out, "%q: error: %s\n\n", q.Query, q.Error)
					continue
				}
				printResults(out, q.Query, q.Results)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&store, "store", "s", "", "Vector store name, e.g. FAISS_all-MiniLM-L6-v2 (required)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", service.DefaultTopK, "Number of results per query (1-100)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the response as JSON")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}

// printResults renders one query's ranked results.
func printResults(w io.Writer, query string, results []rag.SearchResult) {
	fmt.Fprintf(w, "%q: %d result(s)\n", query, len(results))
	for _, r := range results {
		fmt.Fprintf(w, "%3d. [%.4f] %s\n     %s\n", r.Rank, r.Similarity, r.Source, truncate(r.Text, 160))
	}
	fmt.Fprintln(w)
}
