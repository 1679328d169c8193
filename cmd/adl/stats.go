package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"adl/internal/store"
)

var (
	statsFrom    string
	statsTo      string
	statsProject string
	statsFormat  string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate decision statistics",
	Long: `Show grouped counts, a daily timeline, top tags, and recency buckets
for decisions matching the date range and project filter.

Examples:
  adl stats
  adl stats --project=payments --from=2026-01-01`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsFrom, "from", "", "Earliest creation date (inclusive)")
	statsCmd.Flags().StringVar(&statsTo, "to", "", "Latest creation date (inclusive)")
	statsCmd.Flags().StringVar(&statsProject, "project", "", "Filter by project")
	statsCmd.Flags().StringVar(&statsFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Stats(ctx, store.StatsQuery{
		DateFrom: statsFrom,
		DateTo:   statsTo,
		Project:  statsProject,
	})
	if err != nil {
		return fmt.Errorf("compute stats: %w", err)
	}

	if statsFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("Total decisions: %d\n", stats.Total)
	fmt.Printf("Recent: %d (24h), %d (7d), %d (30d)\n", stats.Last24h, stats.Last7d, stats.Last30d)
	printGroup("By status", stats.ByStatus)
	printGroup("By stakes", stats.ByStakes)
	printGroup("By category", stats.ByCategory)
	printGroup("By agent", stats.ByAgent)
	if len(stats.TopTags) > 0 {
		fmt.Println("Top tags:")
		for _, tc := range stats.TopTags {
			fmt.Printf("  %-20s %d\n", tc.Tag, tc.Count)
		}
	}
	return nil
}

func printGroup(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Println(title + ":")
	for key, n := range counts {
		fmt.Printf("  %-20s %d\n", key, n)
	}
}
