package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage"
	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/synth"
)

var (
	showJSON    bool
	showSources bool
)

var showCmd = &cobra.Command{
	Use:   "show [query-id]",
	Short: "Show a query's report and sources",
	Long: `Show prints the stored report for a query, and optionally the
per-source extraction outcomes.

Examples:
  research-agent show 6a1f...
  research-agent show --sources 6a1f...
  research-agent show --json 6a1f...`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "emit the report as JSON")
	showCmd.Flags().BoolVar(&showSources, "sources", false, "include per-source outcomes")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	queryID := args[0]

	q, err := store.GetQuery(ctx, queryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no query with id %s", queryID)
		}
		return err
	}

	fmt.Printf("Query:   %s\n", q.Text)
	fmt.Printf("Status:  %s\n", q.Status)
	fmt.Printf("Sources: %d found, %d extracted\n", q.SourcesFound, q.SourcesExtracted)
	if q.ErrorMessage != "" {
		fmt.Printf("Error:   %s\n", q.ErrorMessage)
	}

	if showSources {
		sources, err := store.GetSources(ctx, queryID)
		if err != nil {
			return fmt.Errorf("load sources: %w", err)
		}
		fmt.Println()
		for _, s := range sources {
			status := "ok"
			if !s.Extracted {
				status = s.ExtractionError
			}
			fmt.Printf("  [%s] %s (%d words)\n", status, s.URL, s.WordCount)
		}
	}

	report, err := store.GetReport(ctx, queryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load report: %w", err)
	}

	fmt.Println()
	if showJSON {
		return synth.WriteJSON(os.Stdout, report)
	}
	return synth.WriteText(os.Stdout, report)
}
