package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"adl/internal/model"
)

var (
	recordID          string
	recordDescription string
	recordConfidence  float64
	recordCategory    string
	recordStakes      string
	recordContext     string
	recordAgent       string
	recordPattern     string
	recordProject     string
	recordFeature     string
	recordDate        string
	recordTags        []string
	recordReasons     []string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a new decision",
	Long: `Record a decision with its confidence, metadata, and supporting reasons.

An identifier is generated when none is provided. Reasons take the form
"kind:text", for example --reason "evidence:benchmarks favored sqlite".

Examples:
  adl record --description="Use SQLite for persistence" --confidence=0.85
  adl record --description="Retry on 503" --tag=reliability --reason="evidence:observed flakes"`,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVar(&recordID, "id", "", "Decision identifier (generated when omitted)")
	recordCmd.Flags().StringVar(&recordDescription, "description", "", "What was decided (required)")
	recordCmd.Flags().Float64Var(&recordConfidence, "confidence", 0, "Confidence in the decision (0.0-1.0)")
	recordCmd.Flags().StringVar(&recordCategory, "category", "", "Category label")
	recordCmd.Flags().StringVar(&recordStakes, "stakes", "", "Stakes: low, medium, high, critical")
	recordCmd.Flags().StringVar(&recordContext, "context", "", "Surrounding context")
	recordCmd.Flags().StringVar(&recordAgent, "agent", "", "Recording agent identifier")
	recordCmd.Flags().StringVar(&recordPattern, "pattern", "", "Pattern the decision instantiates")
	recordCmd.Flags().StringVar(&recordProject, "project", "", "Project the decision belongs to")
	recordCmd.Flags().StringVar(&recordFeature, "feature", "", "Feature the decision belongs to")
	recordCmd.Flags().StringVar(&recordDate, "date", "", "Decision date (YYYY-MM-DD)")
	recordCmd.Flags().StringSliceVar(&recordTags, "tag", nil, "Tag (repeatable)")
	recordCmd.Flags().StringSliceVar(&recordReasons, "reason", nil, "Supporting reason as kind:text (repeatable)")
	_ = recordCmd.MarkFlagRequired("description")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	if recordStakes != "" && !model.IsValidStakes(recordStakes) {
		return fmt.Errorf("invalid stakes %q (expected low, medium, high, or critical)", recordStakes)
	}

	d := &model.Decision{
		ID:          recordID,
		Description: recordDescription,
		Confidence:  recordConfidence,
		Category:    recordCategory,
		Stakes:      recordStakes,
		Context:     recordContext,
		Agent:       recordAgent,
		Pattern:     recordPattern,
		Project:     recordProject,
		Feature:     recordFeature,
		Date:        recordDate,
		Tags:        recordTags,
	}
	if d.ID == "" {
		d.ID = model.NewID()
	}
	for _, raw := range recordReasons {
		kind, text, _ := strings.Cut(raw, ":")
		d.Reasons = append(d.Reasons, model.Reason{Kind: kind, Text: text})
	}

	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Save(ctx, d); err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	fmt.Printf("Recorded decision %s\n", d.ID)
	return nil
}
