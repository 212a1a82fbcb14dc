package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/semsearch-go/internal/service"
)

// NewHistoryCmd constructs the `semsearch history` command, which prints the
// most recent searches recorded in the history database.
func NewHistoryCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent searches",
		Long: `Show the most recent searches, newest first, including failed ones.

History is stored in SQLite at SEMSEARCH_HISTORY_DB (default:
<store dir>/.history.db). Set SEMSEARCH_HISTORY_DB=off to disable it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, _, err := openRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			entries, err := rt.Service.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No searches recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tSTORE\tK\tRESULTS\tMS\tQUERY")
			for _, e := range entries {
				results := fmt.Sprint(e.TotalResults)
				if e.Error != "" {
					results = "error"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\n",
					e.CreatedAt.Local().Format(time.DateTime), e.Store, e.TopK, results,
					e.DurationMS, truncate(e.Query, 60))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", service.DefaultHistoryLimit, "Number of entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
