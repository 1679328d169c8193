package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"adl/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all decisions as compressed JSON lines",
	Long: `Write every decision to a gzip-compressed JSON-lines snapshot,
independent of which backend is active.

Example:
  adl export --out decisions.jsonl.gz`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file path (required)")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := export.WriteFile(ctx, s, exportOut)
	if err != nil {
		return fmt.Errorf("export decisions: %w", err)
	}
	fmt.Printf("Exported %d decision(s) to %s\n", n, exportOut)
	return nil
}
