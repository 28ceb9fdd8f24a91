package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cmwaseemyousef/ai-research-agent-atlas-guild/internal/storage"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate research statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	fmt.Printf("Queries: %d\n", stats.TotalQueries)
	fmt.Printf("Sources: %d\n", stats.TotalSources)
	fmt.Printf("Reports: %d\n", stats.TotalReports)

	if len(stats.ByStatus) > 0 {
		fmt.Println("\nBy status:")
		for _, s := range []storage.Status{
			storage.StatusCreated, storage.StatusSearching, storage.StatusExtracting,
			storage.StatusSynthesizing, storage.StatusCompleted, storage.StatusFailed,
		} {
			if n, ok := stats.ByStatus[s]; ok {
				fmt.Printf("  %-13s %d\n", s, n)
			}
		}
	}
	return nil
}
