package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"adl/internal/logging"
	"adl/internal/model"
)

// fileExt is the extension of every decision document.
const fileExt = ".yaml"

// fileMarker separates the date prefix from the identifier in a filename.
const fileMarker = "-decision-"

// FileStore persists each decision as one YAML document under a year/month
// directory tree: <root>/<YYYY>/<MM>/<YYYY-MM-DD>-decision-<id>.yaml. The
// filename doubles as the by-id lookup key. Writes go through a temp file
// plus atomic rename so a reader never observes a partial document;
// concurrent writers to the same decision race at the rename with
// last-writer-wins semantics.
type FileStore struct {
	root   string
	logger *logging.Logger
}

// NewFileStore returns a file backend rooted at the given directory.
func NewFileStore(root string, logger *logging.Logger) *FileStore {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FileStore{root: root, logger: logger}
}

// Root returns the base directory of the tree.
func (s *FileStore) Root() string {
	return s.root
}

// Initialize creates the base directory. Safe to call repeatedly.
func (s *FileStore) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create decision root: %w", err)
	}
	return nil
}

func (s *FileStore) Save(ctx context.Context, d *model.Decision) error {
	cp := d.Clone()
	cp.ApplyDefaults()

	prior, priorPath, _ := s.locate(cp.ID)
	touch(cp, prior, time.Now().UTC())

	path := s.pathFor(cp)
	if err := s.writeDocument(path, cp); err != nil {
		return err
	}

	// A changed date field moves the document; drop the stale copy so the
	// id never resolves to two files.
	if priorPath != "" && priorPath != path {
		if err := os.Remove(priorPath); err != nil {
			s.logger.Warn("failed to remove superseded decision file", logging.Fields{
				"path":  priorPath,
				"error": err.Error(),
			})
		}
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*model.Decision, error) {
	d, _, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) (bool, error) {
	_, path, err := s.locate(id)
	if err != nil {
		return false, err
	}
	if path == "" {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		s.logger.Error("failed to delete decision file", logging.Fields{
			"path":  path,
			"error": err.Error(),
		})
		return false, nil
	}
	return true, nil
}

func (s *FileStore) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	all := s.loadAll()
	matched := Filter(all, q)
	Sort(matched, q.SortBy, q.SortOrder)
	page := Page(matched, q.Limit, q.Offset)
	return &ListResult{Decisions: page, Total: len(matched)}, nil
}

func (s *FileStore) Stats(ctx context.Context, q StatsQuery) (*Stats, error) {
	matched := Filter(s.loadAll(), statsListQuery(q))
	return ComputeStats(matched, time.Now().UTC()), nil
}

func (s *FileStore) UpdateOutcome(ctx context.Context, id string, rev Review) (bool, error) {
	d, path, err := s.locate(id)
	if err != nil || path == "" {
		return false, err
	}
	applyReview(d, rev, time.Now().UTC())
	if err := s.writeDocument(path, d); err != nil {
		s.logger.Error("failed to write review", logging.Fields{"id": id, "error": err.Error()})
		return false, nil
	}
	return true, nil
}

func (s *FileStore) UpdateFields(ctx context.Context, id string, fields map[string]any) (bool, error) {
	d, path, err := s.locate(id)
	if err != nil || path == "" {
		return false, err
	}
	if err := applyFields(d, fields); err != nil {
		return false, err
	}
	d.UpdatedAt = time.Now().UTC()

	newPath := s.pathFor(d)
	if err := s.writeDocument(newPath, d); err != nil {
		s.logger.Error("failed to write field update", logging.Fields{"id": id, "error": err.Error()})
		return false, nil
	}
	if newPath != path {
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to remove superseded decision file", logging.Fields{
				"path":  path,
				"error": err.Error(),
			})
		}
	}
	return true, nil
}

func (s *FileStore) Count(ctx context.Context, filters CountFilters) (int, error) {
	all := s.loadAll()
	if len(filters) == 0 {
		return len(all), nil
	}
	n := 0
	for _, d := range all {
		if matchesCountFilters(d, filters) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op; each operation opens and releases its own files.
func (s *FileStore) Close() error {
	return nil
}

// pathFor derives the document path from the decision's own date, falling
// back to creation time when the date is absent or unparsable.
func (s *FileStore) pathFor(d *model.Decision) string {
	day, err := time.Parse(dayFormat, d.Date)
	if err != nil {
		day = d.CreatedAt
		if day.IsZero() {
			day = time.Now().UTC()
		}
	}
	name := fmt.Sprintf("%s%s%s%s", day.Format(dayFormat), fileMarker, d.ID, fileExt)
	return filepath.Join(s.root, day.Format("2006"), day.Format("01"), name)
}

// locate finds a decision file by the filename's id suffix. Returns
// (nil, "", nil) when no file matches. Unreadable candidates are skipped so
// one corrupt file never shadows the id.
func (s *FileStore) locate(id string) (*model.Decision, string, error) {
	if id == "" {
		return nil, "", nil
	}
	pattern := filepath.Join(s.root, "*", "*", "*"+fileMarker+id+fileExt)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, "", fmt.Errorf("glob decision files: %w", err)
	}
	for _, path := range matches {
		d, perr := s.parseFile(path)
		if perr != nil {
			s.logger.Warn("skipping unreadable decision file", logging.Fields{
				"path":  path,
				"error": perr.Error(),
			})
			continue
		}
		return d, path, nil
	}
	return nil, "", nil
}

// loadAll scans the whole tree, parsing every decision document and
// skipping anything unreadable, unparsable, or empty.
func (s *FileStore) loadAll() []*model.Decision {
	var out []*model.Decision
	walkErr := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn("skipping unreadable path", logging.Fields{"path": path, "error": err.Error()})
			}
			return nil
		}
		if entry.IsDir() || !strings.HasSuffix(path, fileExt) || !strings.Contains(entry.Name(), fileMarker) {
			return nil
		}
		d, perr := s.parseFile(path)
		if perr != nil {
			s.logger.Warn("skipping malformed decision file", logging.Fields{
				"path":  path,
				"error": perr.Error(),
			})
			return nil
		}
		out = append(out, d)
		return nil
	})
	if walkErr != nil {
		s.logger.Error("decision tree scan failed", logging.Fields{"root": s.root, "error": walkErr.Error()})
	}
	return out
}

func (s *FileStore) parseFile(path string) (*model.Decision, error) {
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
	if d.ID == "" {
		d.ID = idFromFilename(path)
	}
	return &d, nil
}

// idFromFilename recovers the identifier from the filename suffix, used for
// documents whose body omits the id.
func idFromFilename(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), fileExt)
	idx := strings.LastIndex(name, fileMarker)
	if idx < 0 {
		return ""
	}
	return name[idx+len(fileMarker):]
}

// writeDocument marshals the decision and writes it atomically: a temp file
// in the destination directory, then a rename over the target. The temp is
// removed on every failure path so aborted writes leave nothing behind.
func (s *FileStore) writeDocument(path string, d *model.Decision) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create decision directory: %w", err)
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode decision %s: %w", d.ID, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".decision-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write decision %s: %w", d.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
