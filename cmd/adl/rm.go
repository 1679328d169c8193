package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a decision and all its child data",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	deleted, err := s.Delete(ctx, args[0])
	if err != nil {
		return fmt.Errorf("delete decision: %w", err)
	}
	if !deleted {
		return fmt.Errorf("decision %s not found", args[0])
	}
	fmt.Printf("Deleted decision %s\n", args[0])
	return nil
}
