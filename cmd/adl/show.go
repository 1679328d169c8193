package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gopkg.in/yaml.v3"
)

var showFormat string

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one decision in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().StringVar(&showFormat, "format", "yaml", "Output format (json, yaml)")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := s.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get decision: %w", err)
	}
	if d == nil {
		return fmt.Errorf("decision %s not found", args[0])
	}

	if showFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}
	return yaml.NewEncoder(os.Stdout).Encode(d)
}
