package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"adl/internal/model"
	"adl/internal/store"
)

var (
	reviewOutcome string
	reviewResult  string
	reviewLessons string
	reviewNotes   string
)

var reviewCmd = &cobra.Command{
	Use:   "review ID",
	Short: "Record the reviewed outcome of a decision",
	Long: `Record how a decision actually turned out. The decision's status moves
to reviewed and never reverts.

Examples:
  adl review a1b2c3d4 --outcome=success
  adl review a1b2c3d4 --outcome=failure --result="query latency doubled" --lessons="benchmark first"`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().StringVar(&reviewOutcome, "outcome", "", "Outcome: success, partial, failure, abandoned (required)")
	reviewCmd.Flags().StringVar(&reviewResult, "result", "", "What actually happened")
	reviewCmd.Flags().StringVar(&reviewLessons, "lessons", "", "Lessons learned")
	reviewCmd.Flags().StringVar(&reviewNotes, "notes", "", "Review notes")
	_ = reviewCmd.MarkFlagRequired("outcome")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	if !model.IsValidOutcome(reviewOutcome) {
		return fmt.Errorf("invalid outcome %q (expected success, partial, failure, or abandoned)", reviewOutcome)
	}

	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	updated, err := s.UpdateOutcome(ctx, args[0], store.Review{
		Outcome:      reviewOutcome,
		ActualResult: reviewResult,
		Lessons:      reviewLessons,
		ReviewNotes:  reviewNotes,
	})
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if !updated {
		return fmt.Errorf("decision %s not found", args[0])
	}
	fmt.Printf("Recorded %s outcome for %s\n", reviewOutcome, args[0])
	return nil
}
