package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"adl/internal/store"
)

var (
	listCategory string
	listStakes   string
	listStatus   string
	listAgent    string
	listProject  string
	listFeature  string
	listTags     []string
	listFrom     string
	listTo       string
	listSearch   string
	listLimit    int
	listOffset   int
	listSort     string
	listOrder    string
	listFormat   string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List decisions",
	Long: `List decisions matching the given filters, sorted and paginated.

Examples:
  adl list
  adl list --status=pending --stakes=high
  adl list --tag=architecture --search="cache"
  adl list --from=2026-01-01 --to=2026-01-31 --sort=confidence --order=desc`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listCategory, "category", "", "Filter by category")
	listCmd.Flags().StringVar(&listStakes, "stakes", "", "Filter by stakes")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending, reviewed)")
	listCmd.Flags().StringVar(&listAgent, "agent", "", "Filter by recording agent")
	listCmd.Flags().StringVar(&listProject, "project", "", "Filter by project")
	listCmd.Flags().StringVar(&listFeature, "feature", "", "Filter by feature")
	listCmd.Flags().StringSliceVar(&listTags, "tag", nil, "Filter by tag, any match (repeatable)")
	listCmd.Flags().StringVar(&listFrom, "from", "", "Earliest creation date (inclusive)")
	listCmd.Flags().StringVar(&listTo, "to", "", "Latest creation date (inclusive)")
	listCmd.Flags().StringVar(&listSearch, "search", "", "Keyword search over description, context, pattern")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum decisions to return")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Number of matches to skip")
	listCmd.Flags().StringVar(&listSort, "sort", "created_at", "Sort field")
	listCmd.Flags().StringVar(&listOrder, "order", "desc", "Sort order (asc, desc)")
	listCmd.Flags().StringVar(&listFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.List(ctx, store.ListQuery{
		Limit:     listLimit,
		Offset:    listOffset,
		Category:  listCategory,
		Stakes:    listStakes,
		Status:    listStatus,
		Agent:     listAgent,
		Project:   listProject,
		Feature:   listFeature,
		Tags:      listTags,
		DateFrom:  listFrom,
		DateTo:    listTo,
		Search:    listSearch,
		SortBy:    listSort,
		SortOrder: listOrder,
	})
	if err != nil {
		return fmt.Errorf("list decisions: %w", err)
	}

	if listFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("%d of %d decision(s)\n", len(result.Decisions), result.Total)
	for _, d := range result.Decisions {
		line := fmt.Sprintf("  %s  %-8s %-8s %.2f  %s", d.ID, d.Stakes, d.Status, d.Confidence, d.Description)
		if len(d.Tags) > 0 {
			line += "  [" + strings.Join(d.Tags, ", ") + "]"
		}
		fmt.Println(line)
	}
	return nil
}
