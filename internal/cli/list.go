package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage"
)

var (
	listLimit  int
	listOffset int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List past research queries",
	Long: `List shows past queries, newest first, with their status and source counts.

Examples:
  research-agent list
  research-agent list --limit 10 --offset 20`,
	RunE: runList,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "max results")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "skip this many results")
}

func runList(cmd *cobra.Command, args []string) error {
	queries, err := store.ListQueries(cmd.Context(), storage.Page{Limit: listLimit, Offset: listOffset})
	if err != nil {
		return fmt.Errorf("list queries: %w", err)
	}

	if len(queries) == 0 {
		fmt.Println("No research queries yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSOURCES\tREPORT\tCREATED\tQUERY")
	for _, q := range queries {
		report := "-"
		if q.HasReport {
			report = "yes"
		}
		text := queryColumn(q.Text)
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			q.ID, q.Status, q.SourcesExtracted, q.SourcesFound, report,
			q.CreatedAt.Format("2006-01-02 15:04"), text)
	}
	return w.Flush()
}

// queryColumn shortens long query text for the table, cutting at a rune
// boundary so multi-byte text stays valid.
func queryColumn(text string) string {
	if len(text) <= 60 {
		return text
	}
	n := 57
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n] + "..."
}
