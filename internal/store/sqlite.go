package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"adl/internal/logging"
	"adl/internal/model"
)

// SQLiteStore persists decisions in a relational schema: one primary table
// plus normalized child tables for tags, reasons, the bridge block, and the
// deliberation trace, all with cascading delete. An FTS5 index over the
// searchable text columns is kept in sync by triggers, so free-text search
// never needs an explicit reindex. WAL journaling allows concurrent readers
// during a writer; structural mutations are additionally serialized by an
// internal mutex so child-table replacement never interleaves.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *logging.Logger

	// mu serializes mutating operations (Save, Delete, Update*).
	mu sync.Mutex
}

// NewSQLiteStore opens or creates the database file. An unopenable
// destination is a hard error, not a deferred one.
func NewSQLiteStore(dbPath string, logger *logging.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return &SQLiteStore{db: db, path: dbPath, logger: logger}, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// decisionColumns is the scalar column list, in insert order.
const decisionColumns = `id, description, confidence, category, stakes, status, context,
	agent, pattern, project, feature, pull_request, file_path, line, commit_sha, date,
	outcome, actual_result, lessons, review_notes, reviewed_at, created_at, updated_at`

// Initialize creates the schema if missing. Safe to call repeatedly.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id            TEXT PRIMARY KEY,
			description   TEXT NOT NULL DEFAULT '',
			confidence    REAL NOT NULL DEFAULT 0,
			category      TEXT NOT NULL DEFAULT '',
			stakes        TEXT NOT NULL DEFAULT 'medium',
			status        TEXT NOT NULL DEFAULT 'pending',
			context       TEXT NOT NULL DEFAULT '',
			agent         TEXT NOT NULL DEFAULT '',
			pattern       TEXT NOT NULL DEFAULT '',
			project       TEXT NOT NULL DEFAULT '',
			feature       TEXT NOT NULL DEFAULT '',
			pull_request  TEXT NOT NULL DEFAULT '',
			file_path     TEXT NOT NULL DEFAULT '',
			line          INTEGER NOT NULL DEFAULT 0,
			commit_sha    TEXT NOT NULL DEFAULT '',
			date          TEXT NOT NULL DEFAULT '',
			outcome       TEXT NOT NULL DEFAULT '',
			actual_result TEXT NOT NULL DEFAULT '',
			lessons       TEXT NOT NULL DEFAULT '',
			review_notes  TEXT NOT NULL DEFAULT '',
			reviewed_at   TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL DEFAULT '',
			updated_at    TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS decision_tags (
			decision_id TEXT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
			tag         TEXT NOT NULL,
			PRIMARY KEY (decision_id, tag)
		)`,
		`CREATE TABLE IF NOT EXISTS decision_reasons (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			decision_id TEXT NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
			kind        TEXT NOT NULL DEFAULT '',
			text        TEXT NOT NULL DEFAULT '',
			strength    REAL NOT NULL DEFAULT 0.8
		)`,
		`CREATE TABLE IF NOT EXISTS decision_bridges (
			decision_id TEXT PRIMARY KEY REFERENCES decisions(id) ON DELETE CASCADE,
			structural  TEXT NOT NULL DEFAULT '',
			functional  TEXT NOT NULL DEFAULT '',
			tolerance   TEXT NOT NULL DEFAULT '',
			enforcement TEXT NOT NULL DEFAULT '',
			prevention  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS decision_deliberations (
			decision_id TEXT PRIMARY KEY REFERENCES decisions(id) ON DELETE CASCADE,
			inputs      TEXT NOT NULL DEFAULT '[]',
			steps       TEXT NOT NULL DEFAULT '[]',
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_category ON decisions(category)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_status ON decisions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_stakes ON decisions(stakes)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_agent ON decisions(agent)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_project ON decisions(project)`,
		`CREATE INDEX IF NOT EXISTS idx_decision_tags_tag ON decision_tags(tag)`,
		`CREATE INDEX IF NOT EXISTS idx_decision_reasons_decision ON decision_reasons(decision_id)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS decisions_fts USING fts5(
			description,
			context,
			pattern,
			content='decisions',
			content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS decisions_fts_ai AFTER INSERT ON decisions BEGIN
			INSERT INTO decisions_fts(rowid, description, context, pattern)
			VALUES (new.rowid, new.description, new.context, new.pattern);
		END`,
		`CREATE TRIGGER IF NOT EXISTS decisions_fts_au AFTER UPDATE ON decisions BEGIN
			INSERT INTO decisions_fts(decisions_fts, rowid, description, context, pattern)
			VALUES ('delete', old.rowid, old.description, old.context, old.pattern);
			INSERT INTO decisions_fts(rowid, description, context, pattern)
			VALUES (new.rowid, new.description, new.context, new.pattern);
		END`,
		`CREATE TRIGGER IF NOT EXISTS decisions_fts_ad AFTER DELETE ON decisions BEGIN
			INSERT INTO decisions_fts(decisions_fts, rowid, description, context, pattern)
			VALUES ('delete', old.rowid, old.description, old.context, old.pattern);
		END`,
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, d *model.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := d.Clone()
	cp.ApplyDefaults()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var priorCreated string
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM decisions WHERE id = ?`, cp.ID).Scan(&priorCreated)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("look up prior record: %w", err)
	}

	now := time.Now().UTC()
	if priorCreated != "" {
		cp.CreatedAt = parseStoredTime(priorCreated)
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO decisions (`+decisionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			confidence = excluded.confidence,
			category = excluded.category,
			stakes = excluded.stakes,
			status = excluded.status,
			context = excluded.context,
			agent = excluded.agent,
			pattern = excluded.pattern,
			project = excluded.project,
			feature = excluded.feature,
			pull_request = excluded.pull_request,
			file_path = excluded.file_path,
			line = excluded.line,
			commit_sha = excluded.commit_sha,
			date = excluded.date,
			outcome = excluded.outcome,
			actual_result = excluded.actual_result,
			lessons = excluded.lessons,
			review_notes = excluded.review_notes,
			reviewed_at = excluded.reviewed_at,
			updated_at = excluded.updated_at`,
		cp.ID, cp.Description, cp.Confidence, cp.Category, cp.Stakes, cp.Status, cp.Context,
		cp.Agent, cp.Pattern, cp.Project, cp.Feature, cp.PullRequest, cp.FilePath, cp.Line,
		cp.Commit, cp.Date, cp.Outcome, cp.ActualResult, cp.Lessons, cp.ReviewNotes,
		formatStoredTimePtr(cp.ReviewedAt), formatStoredTime(cp.CreatedAt), formatStoredTime(cp.UpdatedAt),
	); err != nil {
		return fmt.Errorf("upsert decision %s: %w", cp.ID, err)
	}

	if err := replaceChildren(ctx, tx, cp); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// replaceChildren applies the delete-then-reinsert strategy for all child
// tables inside the caller's transaction.
func replaceChildren(ctx context.Context, tx *sql.Tx, d *model.Decision) error {
	if err := replaceTags(ctx, tx, d.ID, d.Tags); err != nil {
		return err
	}
	if err := replaceReasons(ctx, tx, d.ID, d.Reasons); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM decision_bridges WHERE decision_id = ?`, d.ID); err != nil {
		return fmt.Errorf("clear bridge for %s: %w", d.ID, err)
	}
	if d.Bridge != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO decision_bridges (decision_id, structural, functional, tolerance, enforcement, prevention)
			VALUES (?, ?, ?, ?, ?, ?)`,
			d.ID, d.Bridge.Structural, d.Bridge.Functional, d.Bridge.Tolerance,
			d.Bridge.Enforcement, d.Bridge.Prevention,
		); err != nil {
			return fmt.Errorf("insert bridge for %s: %w", d.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM decision_deliberations WHERE decision_id = ?`, d.ID); err != nil {
		return fmt.Errorf("clear deliberation for %s: %w", d.ID, err)
	}
	if d.Deliberation != nil {
		inputs, err := json.Marshal(orEmpty(d.Deliberation.Inputs))
		if err != nil {
			return fmt.Errorf("encode deliberation inputs for %s: %w", d.ID, err)
		}
		steps, err := json.Marshal(orEmpty(d.Deliberation.Steps))
		if err != nil {
			return fmt.Errorf("encode deliberation steps for %s: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO decision_deliberations (decision_id, inputs, steps, duration_ms)
			VALUES (?, ?, ?, ?)`,
			d.ID, string(inputs), string(steps), d.Deliberation.DurationMs,
		); err != nil {
			return fmt.Errorf("insert deliberation for %s: %w", d.ID, err)
		}
	}
	return nil
}

func replaceTags(ctx context.Context, tx *sql.Tx, id string, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM decision_tags WHERE decision_id = ?`, id); err != nil {
		return fmt.Errorf("clear tags for %s: %w", id, err)
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO decision_tags (decision_id, tag) VALUES (?, ?)`, id, tag); err != nil {
			return fmt.Errorf("insert tag for %s: %w", id, err)
		}
	}
	return nil
}

func replaceReasons(ctx context.Context, tx *sql.Tx, id string, reasons []model.Reason) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM decision_reasons WHERE decision_id = ?`, id); err != nil {
		return fmt.Errorf("clear reasons for %s: %w", id, err)
	}
	for _, r := range reasons {
		strength := r.Strength
		if strength == 0 {
			strength = model.DefaultReasonStrength
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO decision_reasons (decision_id, kind, text, strength) VALUES (?, ?, ?, ?)`,
			id, r.Kind, r.Text, strength); err != nil {
			return fmt.Errorf("insert reason for %s: %w", id, err)
		}
	}
	return nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Decision, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE id = ?`, id)
	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get decision %s: %w", id, err)
	}

	if err := s.loadTags(ctx, d); err != nil {
		return nil, err
	}
	if err := s.loadReasons(ctx, d); err != nil {
		return nil, err
	}
	if err := s.loadBridge(ctx, d); err != nil {
		return nil, err
	}
	if err := s.loadDeliberation(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM decisions WHERE id = ?`, id)
	if err != nil {
		s.logger.Error("failed to delete decision", logging.Fields{"id": id, "error": err.Error()})
		return false, nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete decision %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	where, args := buildListPredicate(q)

	var total int
	countQuery := `SELECT COUNT(*) FROM decisions` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count matches: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + decisionColumns + ` FROM decisions` + where +
		` ORDER BY ` + orderClause(q.SortBy, q.SortOrder) + ` LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*model.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}

	if err := s.attachTags(ctx, decisions); err != nil {
		return nil, err
	}
	return &ListResult{Decisions: decisions, Total: total}, nil
}

// buildListPredicate assembles a WHERE clause from the recognized filter
// fields only; nothing caller-supplied ever reaches the SQL text except
// through placeholders.
func buildListPredicate(q ListQuery) (string, []any) {
	var where []string
	var args []any

	equalities := []struct {
		column string
		value  string
	}{
		{"category", q.Category},
		{"stakes", q.Stakes},
		{"status", q.Status},
		{"agent", q.Agent},
		{"project", q.Project},
		{"feature", q.Feature},
	}
	for _, eq := range equalities {
		if eq.value != "" {
			where = append(where, eq.column+" = ?")
			args = append(args, eq.value)
		}
	}

	if len(q.Tags) > 0 {
		placeholders := strings.Repeat("?, ", len(q.Tags)-1) + "?"
		where = append(where, "id IN (SELECT decision_id FROM decision_tags WHERE tag IN ("+placeholders+"))")
		for _, tag := range q.Tags {
			args = append(args, tag)
		}
	}

	if from, ok := parseQueryTime(q.DateFrom, false); ok {
		where = append(where, createdExpr+" >= ?")
		args = append(args, formatStoredTime(from))
	}
	if to, ok := parseQueryTime(q.DateTo, true); ok {
		where = append(where, createdExpr+" <= ?")
		args = append(args, formatStoredTime(to))
	}

	if match := sanitizeFTSQuery(q.Search); match != "" {
		where = append(where, "rowid IN (SELECT rowid FROM decisions_fts WHERE decisions_fts MATCH ?)")
		args = append(args, match)
	}

	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// createdExpr is the effective creation timestamp, falling back to the
// decision's own date when the stored timestamp is empty. The fallback is
// widened to midnight UTC so it compares correctly against RFC3339 range
// bounds. Mirrors the shared helpers' behavior for records that predate
// store stamping.
const createdExpr = `CASE WHEN created_at != '' THEN created_at WHEN date != '' THEN date || 'T00:00:00Z' ELSE '' END`

// orderClause validates the requested sort column against the allow-list,
// falling back to the default for anything unrecognized so an unchecked
// sort parameter can never inject SQL.
func orderClause(field, order string) string {
	if !sortFields[field] {
		field = DefaultSortField
	}
	dir := "ASC"
	if strings.EqualFold(order, OrderDesc) {
		dir = "DESC"
	}

	var expr string
	switch field {
	case "created_at":
		expr = createdExpr
	case "updated_at":
		expr = `CASE WHEN updated_at != '' THEN updated_at WHEN date != '' THEN date || 'T00:00:00Z' ELSE '' END`
	default:
		expr = field
	}
	return expr + " " + dir + ", id ASC"
}

// sanitizeFTSQuery strips FTS5 structural operators and treats every
// remaining word as an independent required token: each is quoted and the
// implicit AND of FTS5 joins them. Returns "" when nothing searchable
// survives.
func sanitizeFTSQuery(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '"', '*', '(', ')', ':', '^', '-', '+', '{', '}':
			return ' '
		default:
			return r
		}
	}, input)

	words := strings.Fields(cleaned)
	if len(words) == 0 {
		return ""
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + w + `"`
	}
	return strings.Join(quoted, " ")
}

// attachTags batch-fetches tag rows for one page of results in a single IN
// query rather than one query per row.
func (s *SQLiteStore) attachTags(ctx context.Context, decisions []*model.Decision) error {
	if len(decisions) == 0 {
		return nil
	}
	byID := make(map[string]*model.Decision, len(decisions))
	args := make([]any, len(decisions))
	for i, d := range decisions {
		byID[d.ID] = d
		args[i] = d.ID
	}

	placeholders := strings.Repeat("?, ", len(args)-1) + "?"
	rows, err := s.db.QueryContext(ctx,
		`SELECT decision_id, tag FROM decision_tags WHERE decision_id IN (`+placeholders+`) ORDER BY tag`, args...)
	if err != nil {
		return fmt.Errorf("fetch tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return fmt.Errorf("scan tag: %w", err)
		}
		if d := byID[id]; d != nil {
			d.Tags = append(d.Tags, tag)
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context, q StatsQuery) (*Stats, error) {
	where, args := buildStatsPredicate(q)

	stats := &Stats{
		ByCategory: make(map[string]int),
		ByStakes:   make(map[string]int),
		ByStatus:   make(map[string]int),
		ByAgent:    make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions`+where, args...).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("stats total: %w", err)
	}

	grouped := []struct {
		expr string
		dest map[string]int
	}{
		{`COALESCE(NULLIF(category, ''), 'unknown')`, stats.ByCategory},
		{`COALESCE(NULLIF(stakes, ''), 'medium')`, stats.ByStakes},
		{`COALESCE(NULLIF(status, ''), 'pending')`, stats.ByStatus},
	}
	for _, g := range grouped {
		if err := s.groupCounts(ctx, g.expr, where, args, g.dest); err != nil {
			return nil, err
		}
	}

	agentWhere := where
	if agentWhere == "" {
		agentWhere = ` WHERE agent != ''`
	} else {
		agentWhere += ` AND agent != ''`
	}
	if err := s.groupCounts(ctx, "agent", agentWhere, args, stats.ByAgent); err != nil {
		return nil, err
	}

	if err := s.timeline(ctx, where, args, stats); err != nil {
		return nil, err
	}
	if err := s.topTags(ctx, where, args, stats); err != nil {
		return nil, err
	}

	// Recency filters layer "now minus N days" on top of the base filter.
	now := time.Now().UTC()
	recency := []struct {
		since time.Time
		dest  *int
	}{
		{now.Add(-24 * time.Hour), &stats.Last24h},
		{now.Add(-7 * 24 * time.Hour), &stats.Last7d},
		{now.Add(-30 * 24 * time.Hour), &stats.Last30d},
	}
	for _, r := range recency {
		cond := createdExpr + ` >= ? AND ` + createdExpr + ` != ''`
		recencyWhere := where
		if recencyWhere == "" {
			recencyWhere = ` WHERE ` + cond
		} else {
			recencyWhere += ` AND ` + cond
		}
		recencyArgs := append(append([]any{}, args...), formatStoredTime(r.since))
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions`+recencyWhere, recencyArgs...).Scan(r.dest); err != nil {
			return nil, fmt.Errorf("stats recency: %w", err)
		}
	}

	return stats, nil
}

func buildStatsPredicate(q StatsQuery) (string, []any) {
	var where []string
	var args []any

	if q.Project != "" {
		where = append(where, "project = ?")
		args = append(args, q.Project)
	}
	if from, ok := parseQueryTime(q.DateFrom, false); ok {
		where = append(where, createdExpr+" >= ?")
		args = append(args, formatStoredTime(from))
	}
	if to, ok := parseQueryTime(q.DateTo, true); ok {
		where = append(where, createdExpr+" <= ?")
		args = append(args, formatStoredTime(to))
	}

	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (s *SQLiteStore) groupCounts(ctx context.Context, expr, where string, args []any, dest map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+expr+` AS k, COUNT(*) FROM decisions`+where+` GROUP BY k`, args...)
	if err != nil {
		return fmt.Errorf("stats group: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan group: %w", err)
		}
		dest[key] = n
	}
	return rows.Err()
}

func (s *SQLiteStore) timeline(ctx context.Context, where string, args []any, stats *Stats) error {
	dayExpr := `substr(` + createdExpr + `, 1, 10)`
	cond := dayExpr + ` != ''`
	if where == "" {
		where = ` WHERE ` + cond
	} else {
		where += ` AND ` + cond
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dayExpr+` AS day, COUNT(*) FROM decisions`+where+` GROUP BY day ORDER BY day ASC`, args...)
	if err != nil {
		return fmt.Errorf("stats timeline: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return fmt.Errorf("scan timeline: %w", err)
		}
		stats.Timeline = append(stats.Timeline, dc)
	}
	return rows.Err()
}

func (s *SQLiteStore) topTags(ctx context.Context, where string, args []any, stats *Stats) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.tag, COUNT(*) AS n
		FROM decision_tags t
		JOIN decisions ON decisions.id = t.decision_id`+where+`
		GROUP BY t.tag
		ORDER BY n DESC, t.tag ASC
		LIMIT ?`, append(append([]any{}, args...), topTagLimit)...)
	if err != nil {
		return fmt.Errorf("stats tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return fmt.Errorf("scan tag count: %w", err)
		}
		stats.TopTags = append(stats.TopTags, tc)
	}
	return rows.Err()
}

func (s *SQLiteStore) UpdateOutcome(ctx context.Context, id string, rev Review) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatStoredTime(time.Now().UTC())
	set := []string{"outcome = ?", "status = 'reviewed'", "reviewed_at = ?", "updated_at = ?"}
	args := []any{rev.Outcome, now, now}

	// Empty review text fields keep their stored values, matching the
	// shared helper behavior.
	optional := []struct {
		column string
		value  string
	}{
		{"actual_result", rev.ActualResult},
		{"lessons", rev.Lessons},
		{"review_notes", rev.ReviewNotes},
	}
	for _, o := range optional {
		if o.value != "" {
			set = append(set, o.column+" = ?")
			args = append(args, o.value)
		}
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE decisions SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		s.logger.Error("failed to record outcome", logging.Fields{"id": id, "error": err.Error()})
		return false, nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record outcome for %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdateFields(ctx context.Context, id string, fields map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin field update: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM decisions WHERE id = ?`, id).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("look up decision %s: %w", id, err)
	}

	var set []string
	var args []any
	for key, raw := range fields {
		if !updatableFields[key] {
			continue
		}
		switch key {
		case "tags":
			if err := replaceTags(ctx, tx, id, model.NormalizeTags(toStringSlice(raw))); err != nil {
				return false, err
			}
		case "reasons":
			reasons, convErr := toReasons(raw)
			if convErr != nil {
				return false, fmt.Errorf("field %q: %w", key, convErr)
			}
			if err := replaceReasons(ctx, tx, id, reasons); err != nil {
				return false, err
			}
		case "confidence":
			f, ok := toFloat(raw)
			if !ok {
				return false, fmt.Errorf("field %q: expected number, got %T", key, raw)
			}
			set = append(set, "confidence = ?")
			args = append(args, f)
		case "line":
			f, ok := toFloat(raw)
			if !ok {
				return false, fmt.Errorf("field %q: expected number, got %T", key, raw)
			}
			set = append(set, "line = ?")
			args = append(args, int(f))
		default:
			v, ok := raw.(string)
			if !ok {
				return false, fmt.Errorf("field %q: expected string, got %T", key, raw)
			}
			set = append(set, scalarColumn(key)+" = ?")
			args = append(args, v)
		}
	}

	set = append(set, "updated_at = ?")
	args = append(args, formatStoredTime(time.Now().UTC()), id)
	if _, err := tx.ExecContext(ctx,
		`UPDATE decisions SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...); err != nil {
		s.logger.Error("failed to update fields", logging.Fields{"id": id, "error": err.Error()})
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit field update: %w", err)
	}
	return true, nil
}

// scalarColumn maps an allow-listed field name to its column. The field
// name is already validated; this only renames the reserved-word clash.
func scalarColumn(field string) string {
	if field == "commit" {
		return "commit_sha"
	}
	return field
}

func (s *SQLiteStore) Count(ctx context.Context, filters CountFilters) (int, error) {
	var where []string
	var args []any

	for _, key := range countFilterFields {
		raw, ok := filters[key]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok || value == "" {
			continue
		}
		where = append(where, key+" = ?")
		args = append(args, value)
	}
	if raw, ok := filters["tags"]; ok {
		if tags := toStringSlice(raw); len(tags) > 0 {
			placeholders := strings.Repeat("?, ", len(tags)-1) + "?"
			where = append(where, "id IN (SELECT decision_id FROM decision_tags WHERE tag IN ("+placeholders+"))")
			for _, tag := range tags {
				args = append(args, tag)
			}
		}
	}

	query := `SELECT COUNT(*) FROM decisions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count decisions: %w", err)
	}
	return n, nil
}

// Close releases the connection. Safe even if Initialize never ran.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*model.Decision, error) {
	var d model.Decision
	var reviewedAt, createdAt, updatedAt string

	err := row.Scan(
		&d.ID, &d.Description, &d.Confidence, &d.Category, &d.Stakes, &d.Status, &d.Context,
		&d.Agent, &d.Pattern, &d.Project, &d.Feature, &d.PullRequest, &d.FilePath, &d.Line,
		&d.Commit, &d.Date, &d.Outcome, &d.ActualResult, &d.Lessons, &d.ReviewNotes,
		&reviewedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if reviewedAt != "" {
		t := parseStoredTime(reviewedAt)
		d.ReviewedAt = &t
	}
	d.CreatedAt = parseStoredTime(createdAt)
	d.UpdatedAt = parseStoredTime(updatedAt)
	return &d, nil
}

func (s *SQLiteStore) loadTags(ctx context.Context, d *model.Decision) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag FROM decision_tags WHERE decision_id = ? ORDER BY tag`, d.ID)
	if err != nil {
		return fmt.Errorf("load tags for %s: %w", d.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return fmt.Errorf("scan tag: %w", err)
		}
		d.Tags = append(d.Tags, tag)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadReasons(ctx context.Context, d *model.Decision) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, text, strength FROM decision_reasons WHERE decision_id = ? ORDER BY id`, d.ID)
	if err != nil {
		return fmt.Errorf("load reasons for %s: %w", d.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r model.Reason
		if err := rows.Scan(&r.Kind, &r.Text, &r.Strength); err != nil {
			return fmt.Errorf("scan reason: %w", err)
		}
		d.Reasons = append(d.Reasons, r)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadBridge(ctx context.Context, d *model.Decision) error {
	var b model.Bridge
	err := s.db.QueryRowContext(ctx, `
		SELECT structural, functional, tolerance, enforcement, prevention
		FROM decision_bridges WHERE decision_id = ?`, d.ID).
		Scan(&b.Structural, &b.Functional, &b.Tolerance, &b.Enforcement, &b.Prevention)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load bridge for %s: %w", d.ID, err)
	}
	d.Bridge = &b
	return nil
}

func (s *SQLiteStore) loadDeliberation(ctx context.Context, d *model.Decision) error {
	var inputs, steps string
	var dl model.Deliberation
	err := s.db.QueryRowContext(ctx, `
		SELECT inputs, steps, duration_ms
		FROM decision_deliberations WHERE decision_id = ?`, d.ID).
		Scan(&inputs, &steps, &dl.DurationMs)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load deliberation for %s: %w", d.ID, err)
	}

	if err := json.Unmarshal([]byte(inputs), &dl.Inputs); err != nil {
		return fmt.Errorf("decode deliberation inputs for %s: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(steps), &dl.Steps); err != nil {
		return fmt.Errorf("decode deliberation steps for %s: %w", d.ID, err)
	}
	d.Deliberation = &dl
	return nil
}

func formatStoredTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatStoredTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatStoredTime(*t)
}

func parseStoredTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
