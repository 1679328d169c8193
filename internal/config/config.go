// Package config loads the process configuration from .adl/config.json.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the complete adl configuration.
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	// Backend selects the active store: memory, file, or sqlite.
	// Anything else is a configuration error, never a silent fallback.
	Backend string `json:"backend" mapstructure:"backend"`

	Decisions DecisionsConfig `json:"decisions" mapstructure:"decisions"`
	Database  DatabaseConfig  `json:"database" mapstructure:"database"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// DecisionsConfig configures the file backend.
type DecisionsConfig struct {
	// Root is the base directory of the year/month decision tree.
	Root string `json:"root" mapstructure:"root"`
}

// DatabaseConfig configures the sqlite backend.
type DatabaseConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration rooted at baseDir.
func DefaultConfig(baseDir string) *Config {
	return &Config{
		Version: 1,
		Backend: "sqlite",
		Decisions: DecisionsConfig{
			Root: filepath.Join(baseDir, ".adl", "decisions"),
		},
		Database: DatabaseConfig{
			Path: filepath.Join(baseDir, ".adl", "adl.db"),
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <baseDir>/.adl/config.json, falling
// back to defaults when no file exists.
func LoadConfig(baseDir string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig(baseDir)
	v.SetDefault("version", defaults.Version)
	v.SetDefault("backend", defaults.Backend)
	v.SetDefault("decisions.root", defaults.Decisions.Root)
	v.SetDefault("database.path", defaults.Database.Path)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.level", defaults.Logging.Level)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(baseDir, ".adl"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration to <baseDir>/.adl/config.json.
func (c *Config) Save(baseDir string) error {
	dir := filepath.Join(baseDir, ".adl")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}

// Validate checks the configuration. An unrecognized backend selector is
// rejected here, at construction time, not deferred to first use.
func (c *Config) Validate() error {
	switch c.Backend {
	case "memory", "file", "sqlite":
	default:
		return &ConfigError{Field: "backend", Message: "must be one of memory, file, sqlite"}
	}
	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
