package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"adl/internal/logging"
	"adl/internal/model"
)

// Migrator imports decisions one-way from a file-backend tree into a
// destination store. Because Save is an upsert, re-running a migration
// converges to the same state. Per-file failures are logged, counted, and
// skipped; they never abort the run.
type Migrator struct {
	sourceRoot string
	dest       Store
	logger     *logging.Logger
}

// MigrationReport summarizes one run. Skipped counts unparsable source
// documents; Errors counts destination write failures.
type MigrationReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
	Total    int `json:"total"`
}

// NewMigrator builds a migrator from the file tree at sourceRoot into dest.
func NewMigrator(sourceRoot string, dest Store, logger *logging.Logger) *Migrator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Migrator{sourceRoot: sourceRoot, dest: dest, logger: logger}
}

// Run scans the source tree and upserts every parsable decision into the
// destination. The identifier comes from the filename suffix, falling back
// to the embedded id field.
func (m *Migrator) Run(ctx context.Context) (*MigrationReport, error) {
	report := &MigrationReport{}

	walkErr := filepath.WalkDir(m.sourceRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == m.sourceRoot {
				return fmt.Errorf("open source tree: %w", err)
			}
			m.logger.Warn("skipping unreadable path", logging.Fields{"path": path, "error": err.Error()})
			report.Errors++
			return nil
		}
		if entry.IsDir() || !strings.HasSuffix(path, fileExt) || !strings.Contains(entry.Name(), fileMarker) {
			return nil
		}

		report.Total++
		d, perr := m.parseSource(path)
		if perr != nil {
			m.logger.Warn("skipping malformed decision file", logging.Fields{
				"path":  path,
				"error": perr.Error(),
			})
			report.Skipped++
			return nil
		}

		if serr := m.dest.Save(ctx, d); serr != nil {
			m.logger.Error("failed to import decision", logging.Fields{
				"id":    d.ID,
				"path":  path,
				"error": serr.Error(),
			})
			report.Errors++
			return nil
		}
		report.Imported++
		return nil
	})
	if walkErr != nil {
		return report, walkErr
	}

	m.logger.Info("migration complete", logging.Fields{
		"imported": report.Imported,
		"skipped":  report.Skipped,
		"errors":   report.Errors,
		"total":    report.Total,
	})
	return report, nil
}

// RunIfEmpty migrates only when the destination holds no records, so it is
// safe to invoke unconditionally at every startup without clobbering
// manual edits.
func (m *Migrator) RunIfEmpty(ctx context.Context) (*MigrationReport, error) {
	n, err := m.dest.Count(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("check destination: %w", err)
	}
	if n > 0 {
		m.logger.Info("destination not empty, skipping migration", logging.Fields{"existing": n})
		return &MigrationReport{}, nil
	}
	return m.Run(ctx)
}

func (m *Migrator) parseSource(path string) (*model.Decision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	var d model.Decision
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	if id := idFromFilename(path); id != "" {
		d.ID = id
	}
	if d.ID == "" {
		return nil, fmt.Errorf("no identifier in filename or document")
	}
	return &d, nil
}
