package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"adl/internal/config"
	"adl/internal/logging"
	"adl/internal/store"
)

var (
	// dirFlag is the base directory holding .adl/ state.
	dirFlag string
	// backendFlag overrides the configured store backend.
	backendFlag string
	// logLevelFlag overrides the configured log level.
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "adl",
	Short: "ADL - Agent Decision Ledger",
	Long: `ADL (Agent Decision Ledger) records, queries, and aggregates decision
records produced by autonomous agents: what was decided, with what confidence,
for what reasons, and how it turned out once reviewed.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", ".", "Base directory holding .adl state")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Store backend: memory, file, or sqlite (default: from config)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (default: from config)")
}

// loadConfig resolves the effective configuration: config file values with
// CLI flag overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(dirFlag)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if backendFlag != "" {
		cfg.Backend = backendFlag
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.Level(cfg.Logging.Level),
	})
}

// openStore constructs and initializes the configured backend through the
// factory singleton. The returned store is ready for use; the caller closes.
func openStore(ctx context.Context) (store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	s, err := store.Configure(store.Options{
		Backend:  cfg.Backend,
		FileRoot: cfg.Decisions.Root,
		DBPath:   cfg.Database.Path,
		Logger:   newLogger(cfg),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	store.MarkInitialized()
	return s, nil
}
