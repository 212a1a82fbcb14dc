package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewStoresCmd constructs the `semsearch stores` command, which lists every
// vector store under the store root. With an argument it shows one store.
func NewStoresCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stores [STORE]",
		Short: "List vector stores, or show one store's details",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				info, err := rt.Service.StoreInfo(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(out, info)
			}

			stores, err := rt.Service.ListStores(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(out, stores)
			}
			if len(stores) == 0 {
				fmt.Fprintln(out, "No vector stores found. Run 'semsearch build' first.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STORE\tVECTOR DB\tMODEL\tCHUNKS\tCREATED\tMANIFEST")
			for _, s := range stores {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					s.StoreName, s.VectorDB, s.EmbeddingModel, s.NumChunks, s.CreatedAt, s.ManifestStatus)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the list as JSON")
	return cmd
}

// NewModelsCmd constructs the `semsearch models` command.
func NewModelsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List supported embedding models and vector backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, _, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			m := rt.Service.Models()
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, m)
			}
			fmt.Fprintln(out, "Embedding models:")
			for _, name := range m.EmbeddingModels {
				mark := " "
				if name == m.DefaultEmbeddingModel {
					mark = "*"
				}
				fmt.Fprintf(out, "  %s %s\n", mark, name)
			}
			fmt.Fprintln(out, "Vector backends:")
			for _, name := range m.VectorDBs {
				mark := " "
				if name == m.DefaultVectorDB {
					mark = "*"
				}
				fmt.Fprintf(out, "  %s %s\n", mark, name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
