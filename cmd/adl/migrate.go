package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"adl/internal/store"
)

var (
	migrateSource string
	migrateDB     string
	migrateForce  bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Import file-based decisions into the sqlite backend",
	Long: `One-way import of a file-backend decision tree into a sqlite database.

Imports are upserts, so re-running converges to the same state. Without
--force the import is skipped entirely when the destination already holds
records, making the command safe to run unconditionally at startup.
Malformed source files are counted and skipped, never fatal.

Examples:
  adl migrate --source .adl/decisions --db .adl/adl.db
  adl migrate --source /srv/decisions --db /srv/adl.db --force`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateSource, "source", "", "Source decision tree directory (required)")
	migrateCmd.Flags().StringVar(&migrateDB, "db", "", "Destination sqlite database path (required)")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "Import even when the destination is not empty")
	_ = migrateCmd.MarkFlagRequired("source")
	_ = migrateCmd.MarkFlagRequired("db")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	dest, err := store.NewSQLiteStore(migrateDB, logger)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer dest.Close()

	ctx := cmd.Context()
	if err := dest.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize destination: %w", err)
	}

	migrator := store.NewMigrator(migrateSource, dest, logger)
	var report *store.MigrationReport
	if migrateForce {
		report, err = migrator.Run(ctx)
	} else {
		report, err = migrator.RunIfEmpty(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d decision(s) (%d skipped, %d errors, %d total)\n",
		report.Imported, report.Skipped, report.Errors, report.Total)
	return nil
}
