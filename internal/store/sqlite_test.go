package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"adl/internal/logging"
	"adl/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "adl.db"), logging.NewNopLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return s
}

func (s *SQLiteStore) childRowCount(t *testing.T, table, id string) int {
	t.Helper()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE decision_id = ?`, id).Scan(&n)
	if err != nil {
		t.Fatalf("count %s rows: %v", table, err)
	}
	return n
}

func TestSQLiteSaveGetRoundtrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	reviewed := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	d := mkDecision("aaaa0001", func(d *model.Decision) {
		d.Category = "architecture"
		d.Context = "choosing a storage engine"
		d.Commit = "deadbeef"
		d.Line = 42
		d.Date = "2026-03-10"
		d.Tags = []string{"go", "storage"}
		d.Reasons = []model.Reason{
			{Kind: "constraint", Text: "pure Go build", Strength: 0.9},
			{Kind: "evidence", Text: "benchmarked"},
		}
		d.Bridge = &model.Bridge{Structural: "adapter", Tolerance: "strict"}
		d.Deliberation = &model.Deliberation{Inputs: []string{"benchmarks"}, Steps: []string{"compare", "decide"}, DurationMs: 800}
		d.Outcome = model.OutcomeSuccess
		d.ReviewedAt = &reviewed
	})
	if err := s.Save(ctx, d); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, "aaaa0001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected decision, got nil")
	}
	if got.Commit != "deadbeef" || got.Line != 42 {
		t.Errorf("Provenance fields lost: %q %d", got.Commit, got.Line)
	}
	if len(got.Tags) != 2 {
		t.Errorf("Expected 2 tags, got %v", got.Tags)
	}
	if len(got.Reasons) != 2 {
		t.Fatalf("Expected 2 reasons, got %v", got.Reasons)
	}
	if got.Reasons[0].Kind != "constraint" {
		t.Error("Reason order not preserved")
	}
	if got.Reasons[1].Strength != model.DefaultReasonStrength {
		t.Errorf("Expected defaulted strength, got %v", got.Reasons[1].Strength)
	}
	if got.Bridge == nil || got.Bridge.Tolerance != "strict" {
		t.Error("Bridge not preserved")
	}
	if got.Deliberation == nil || len(got.Deliberation.Steps) != 2 || got.Deliberation.DurationMs != 800 {
		t.Error("Deliberation not preserved")
	}
	if got.ReviewedAt == nil || !got.ReviewedAt.Equal(reviewed) {
		t.Errorf("ReviewedAt not preserved: %v", got.ReviewedAt)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("Expected store-maintained timestamps")
	}
}

func TestSQLiteGetUnknownReturnsNilNil(t *testing.T) {
	s := newTestSQLiteStore(t)

	got, err := s.Get(context.Background(), "missing1")
	if err != nil || got != nil {
		t.Fatalf("Expected (nil, nil) for unknown ID, got (%v, %v)", got, err)
	}
}

func TestSQLiteSaveIsUpsert(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	s.Save(ctx, mkDecision("aaaa0001", func(d *model.Decision) {
		d.Tags = []string{"old-a", "old-b"}
		d.Reasons = []model.Reason{{Kind: "hunch", Text: "felt right"}}
	}))
	first, _ := s.Get(ctx, "aaaa0001")

	s.Save(ctx, mkDecision("aaaa0001", func(d *model.Decision) {
		d.Description = "revised"
		d.Tags = []string{"new"}
	}))

	n, _ := s.Count(ctx, nil)
	if n != 1 {
		t.Fatalf("Expected 1 row after upsert, got %d", n)
	}
	got, _ := s.Get(ctx, "aaaa0001")
	if got.Description != "revised" {
		t.Errorf("Expected revised description, got %q", got.Description)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "new" {
		t.Errorf("Expected tags fully replaced, got %v", got.Tags)
	}
	if len(got.Reasons) != 0 {
		t.Errorf("Expected reasons cleared by replacement, got %v", got.Reasons)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Error("CreatedAt must survive an upsert")
	}
}

func TestSQLiteDeleteCascades(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	s.Save(ctx, mkDecision("aaaa0001", func(d *model.Decision) {
		d.Tags = []string{"go"}
		d.Reasons = []model.Reason{{Kind: "constraint", Text: "x"}}
		d.Bridge = &model.Bridge{Structural: "adapter"}
		d.Deliberation = &model.Deliberation{Steps: []string{"decide"}}
	}))

	existed, err := s.Delete(ctx, "aaaa0001")
	if err != nil || !existed {
		t.Fatalf("Expected delete to report existence, got (%v, %v)", existed, err)
	}

	for _, table := range []string{"decision_tags", "decision_reasons", "decision_bridges", "decision_deliberations"} {
		if n := s.childRowCount(t, table, "aaaa0001"); n != 0 {
			t.Errorf("Expected %s rows cascaded away, found %d", table, n)
		}
	}

	existed, _ = s.Delete(ctx, "aaaa0001")
	if existed {
		t.Error("Second delete must report false")
	}
}

func TestSQLiteListFiltersAndPagination(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	s.Save(ctx, mkDecision("aaaa0001", func(d *model.Decision) {
		d.Category = "architecture"
		d.Tags = []string{"a"}
	}))
	s.Save(ctx, mkDecision("aaaa0002", func(d *model.Decision) {
		d.Category = "architecture"
		d.Tags = []string{"b"}
	}))
	s.Save(ctx, mkDecision("aaaa0003", func(d *model.Decision) {
		d.Category = "process"
		d.Tags = []string{"a", "b"}
	}))

	res, err := s.List(ctx, ListQuery{Tags: []string{"a"}, Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("Expected 2 decisions tagged 'a', got %d", res.Total)
	}

	res, _ = s.List(ctx, ListQuery{Category: "architecture", Limit: 1, Offset: 1, SortBy: "created_at"})
	if res.Total != 2 || len(res.Decisions) != 1 {
		t.Errorf("Expected total 2 with a 1-record page, got total %d, page %d", res.Total, len(res.Decisions))
	}

	// Page records carry their tags.
	res, _ = s.List(ctx, ListQuery{Limit: 10})
	for _, d := range res.Decisions {
		if len(d.Tags) == 0 {
			t.Errorf("Decision %s missing tags on list page", d.ID)
		}
	}
}

func TestSQLiteSearchFTS(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	s.Save(ctx, mkDecision("aaaa0001", func(d *model.Decision) {
		d.Description = "Adopt SQLite with write-ahead logging"
	}))
	s.Save(ctx, mkDecision("aaaa0002", func(d *model.Decision) {
		d.Context = "evaluated sqlite against flat files"
	}))
	s.Save(ctx, mkDecision("aaaa0003", func(d *model.Decision) {
		d.Description = "Unrelated retry policy"
	}))

	res, err := s.List(ctx, ListQuery{Search: "sqlite", Limit: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if res.Total != 2 {
		t.Errorf("Expected 2 FTS matches, got %d", res.Total)
	}

	// Updated text is immediately searchable through the sync triggers.
	s.Save(ctx, mkDecision("aaaa0003", func(d *model.Decision) {
		d.Description = "Retry policy now uses sqlite-backed queue"
	}))
	res, _ = s.List(ctx, ListQuery{Search: "sqlite", Limit: 10})
	if res.Total != 3 {
		t.Errorf("Expected 3 matches after update, got %d", res.Total)
	}

	// Deleted rows leave the index.
	s.Delete(ctx, "aaaa0001")
	res, _ = s.List(ctx, ListQuery{Search: "sqlite", Limit: 10})
	if res.Total != 2 {
		t.Errorf("Expected 2 matches after delete, got %d", res.Total)
	}
}

func TestSQLiteSearchOperatorsAreLiteral(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	s.Save(ctx, mkDecision("aaaa0001", func(d *model.Decision) {
		d.Description = "switch to column store"
	}))

	// Operator-laden input must not produce a syntax error.
	for _, q := range []string{`"unbalanced`, `a AND (b OR`, `col* -store`, `^{}:`} {
		if _, err := s.List(ctx, ListQuery{Search: q, Limit: 10}); err != nil {
			t.Errorf("Search %q must not error: %v", q, err)
		}
	}

	res, err := s.List(ctx, ListQuery{Search: "column store", Limit: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if res.Total != 1 {
		t.Errorf("Expected multi-word query to match, got %d", res.Total)
	}
}

func TestSanitizeFTSQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hello world", `"hello" "world"`},
		{`"quoted"`, `"quoted"`},
		{"a* (b) -c", `"a" "b" "c"`},
		{"^{}:-+", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := sanitizeFTSQuery(tc.in); got != tc.want {
			t.Errorf("sanitizeFTSQuery(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSQLiteSortUnknownColumnFallsBack(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	s.Save(ctx, mkDecision("aaaa0001", func(d *model.Decision) { d.Date = "2026-03-10" }))
	s.Save(ctx, mkDecision("aaaa0002", func(d *model.Decision) { d.Date = "2026-03-11" }))

	res, err := s.List(ctx, ListQuery{SortBy: "id; DROP TABLE decisions", Limit: 10})
	if err != nil {
		t.Fatalf("List with bad sort column must fall back, got %v", err)
	}
	if res.Total != 2 {
		t.Errorf("Expected both rows, got %d", res.Total)
	}
	if n, _ := s.Count(ctx, nil); n != 2 {
		t.Fatalf("Table damaged by sort input, count %d", n)
	}
}

func TestSQLiteDateRangeInclusive(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	s.Save(ctx, mkDecision("aaaa0001", func(d *model.Decision) {
		d.CreatedAt = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	}))
	s.Save(ctx, mkDecision("aaaa0002", func(d *model.Decision) {
		d.CreatedAt = time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC)
	}))

	res, err := s.List(ctx, ListQuery{DateTo: "2026-03-10", Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if res.Total != 1 || res.Decisions[0].ID != "aaaa0001" {
		t.Fatalf("Date-only DateTo must cover the whole day, got total %d", res.Total)
	}

	res, _ = s.List(ctx, ListQuery{DateFrom: "2026-03-11", Limit: 10})
	if res.Total != 1 || res.Decisions[0].ID != "aaaa0002" {
		t.Fatalf("Expected only the later decision, got total %d", res.Total)
	}
}

func TestSQLiteDateFallbackComparesAsTimestamp(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	// A row written outside this module may carry a date but no stored
	// creation timestamp. Range bounds must still treat it as midnight UTC.
	if _, err := s.db.Exec(
		`INSERT INTO decisions (id, description, date) VALUES (?, ?, ?)`,
		"lega0001", "legacy row", "2026-03-10"); err != nil {
		t.Fatal(err)
	}
	s.Save(ctx, mkDecision("aaaa0002", func(d *model.Decision) {
		d.CreatedAt = time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
	}))

	res, err := s.List(ctx, ListQuery{DateFrom: "2026-03-10", DateTo: "2026-03-10", Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if res.Total != 1 || res.Decisions[0].ID != "lega0001" {
		t.Fatalf("Legacy row on the range boundary must be included, got total %d", res.Total)
	}

	res, _ = s.List(ctx, ListQuery{SortBy: "created_at", SortOrder: OrderAsc, Limit: 10})
	if len(res.Decisions) != 2 || res.Decisions[0].ID != "lega0001" {
		t.Fatalf("Date fallback must sort before later timestamps, got %v", listIDs(res))
	}

	stats, err := s.Stats(ctx, StatsQuery{})
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if len(stats.Timeline) != 2 || stats.Timeline[0].Day != "2026-03-10" {
		t.Errorf("Legacy row missing from timeline: %v", stats.Timeline)
	}
}

func TestSQLiteStats(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s.Save(ctx, mkDecision("aaaa0001", func(d *model.Decision) {
		d.Category = "architecture"
		d.Agent = "planner"
		d.Project = "adl"
		d.Tags = []string{"go", "storage"}
		d.CreatedAt = now.Add(-2 * time.Hour)
	}))
	s.Save(ctx, mkDecision("aaaa0002", func(d *model.Decision) {
		d.Project = "adl"
		d.Tags = []string{"go"}
		d.CreatedAt = now.Add(-40 * 24 * time.Hour)
	}))
	s.Save(ctx, mkDecision("aaaa0003", func(d *model.Decision) {
		d.Project = "other"
	}))

	stats, err := s.Stats(ctx, StatsQuery{Project: "adl"})
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 2 {
		t.Fatalf("Expected total 2 for project filter, got %d", stats.Total)
	}
	if stats.ByCategory["architecture"] != 1 || stats.ByCategory["unknown"] != 1 {
		t.Errorf("Unexpected category counts: %v", stats.ByCategory)
	}
	if stats.ByStakes["medium"] != 2 || stats.ByStatus["pending"] != 2 {
		t.Errorf("Expected defaulted buckets: %v %v", stats.ByStakes, stats.ByStatus)
	}
	if len(stats.ByAgent) != 1 || stats.ByAgent["planner"] != 1 {
		t.Errorf("Expected only present agents, got %v", stats.ByAgent)
	}
	if len(stats.TopTags) != 2 || stats.TopTags[0].Tag != "go" || stats.TopTags[0].Count != 2 {
		t.Errorf("Unexpected top tags: %v", stats.TopTags)
	}
	if stats.Last24h != 1 || stats.Last7d != 1 || stats.Last30d != 1 {
		t.Errorf("Unexpected recency buckets: %d %d %d", stats.Last24h, stats.Last7d, stats.Last30d)
	}
	if len(stats.Timeline) != 2 || stats.Timeline[0].Day >= stats.Timeline[1].Day {
		t.Errorf("Expected ascending 2-day timeline, got %v", stats.Timeline)
	}
}

func TestSQLiteUpdateOutcome(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	s.Save(ctx, mkDecision("aaaa0001", func(d *model.Decision) {
		d.Lessons = "original lesson"
	}))

	ok, err := s.UpdateOutcome(ctx, "aaaa0001", Review{Outcome: model.OutcomeFailure, ReviewNotes: "rolled back"})
	if err != nil || !ok {
		t.Fatalf("UpdateOutcome failed: (%v, %v)", ok, err)
	}

	got, _ := s.Get(ctx, "aaaa0001")
	if got.Status != model.StatusReviewed || got.Outcome != model.OutcomeFailure {
		t.Errorf("Review not applied: %q %q", got.Status, got.Outcome)
	}
	if got.Lessons != "original lesson" {
		t.Errorf("Empty review field must not clobber stored value, got %q", got.Lessons)
	}
	if got.ReviewNotes != "rolled back" {
		t.Errorf("Expected review notes applied, got %q", got.ReviewNotes)
	}
	if got.ReviewedAt == nil {
		t.Error("Expected ReviewedAt stamped")
	}

	ok, err = s.UpdateOutcome(ctx, "missing1", Review{Outcome: model.OutcomeSuccess})
	if err != nil || ok {
		t.Fatalf("Unknown ID must report false, got (%v, %v)", ok, err)
	}
}

func TestSQLiteUpdateFields(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	s.Save(ctx, mkDecision("aaaa0001", func(d *model.Decision) {
		d.Tags = []string{"old"}
	}))

	ok, err := s.UpdateFields(ctx, "aaaa0001", map[string]any{
		"description": "updated",
		"commit":      "cafebabe",
		"confidence":  0.9,
		"line":        7,
		"tags":        []string{"x", "y"},
		"reasons":     []any{map[string]any{"kind": "evidence", "text": "measured", "strength": 0.6}},
		"unknown_key": "ignored",
	})
	if err != nil || !ok {
		t.Fatalf("UpdateFields failed: (%v, %v)", ok, err)
	}

	got, _ := s.Get(ctx, "aaaa0001")
	if got.Description != "updated" || got.Commit != "cafebabe" {
		t.Errorf("Scalar fields not applied: %q %q", got.Description, got.Commit)
	}
	if got.Confidence != 0.9 || got.Line != 7 {
		t.Errorf("Numeric fields not applied: %v %d", got.Confidence, got.Line)
	}
	if len(got.Tags) != 2 {
		t.Errorf("Expected tags replaced, got %v", got.Tags)
	}
	if len(got.Reasons) != 1 || got.Reasons[0].Strength != 0.6 {
		t.Errorf("Expected reasons replaced, got %v", got.Reasons)
	}

	ok, err = s.UpdateFields(ctx, "missing1", map[string]any{"description": "x"})
	if err != nil || ok {
		t.Fatalf("Unknown ID must report false, got (%v, %v)", ok, err)
	}
}

func TestSQLiteUpdateFieldsTypeError(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	s.Save(ctx, mkDecision("aaaa0001", nil))

	if _, err := s.UpdateFields(ctx, "aaaa0001", map[string]any{"confidence": "high"}); err == nil {
		t.Error("Expected a type error for non-numeric confidence")
	}
	if _, err := s.UpdateFields(ctx, "aaaa0001", map[string]any{"description": 42}); err == nil {
		t.Error("Expected a type error for non-string description")
	}
}

func TestSQLiteCountWithFilters(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	s.Save(ctx, mkDecision("aaaa0001", func(d *model.Decision) {
		d.Category = "architecture"
		d.Tags = []string{"go"}
	}))
	s.Save(ctx, mkDecision("aaaa0002", func(d *model.Decision) {
		d.Category = "process"
	}))

	n, err := s.Count(ctx, nil)
	if err != nil || n != 2 {
		t.Fatalf("Expected unfiltered count 2, got (%d, %v)", n, err)
	}
	n, _ = s.Count(ctx, CountFilters{"category": "architecture"})
	if n != 1 {
		t.Errorf("Expected 1 architecture decision, got %d", n)
	}
	n, _ = s.Count(ctx, CountFilters{"tags": []string{"go", "rust"}})
	if n != 1 {
		t.Errorf("Expected 1 tagged decision, got %d", n)
	}
	n, _ = s.Count(ctx, CountFilters{"not_a_column": "x"})
	if n != 2 {
		t.Errorf("Unknown filter keys must be ignored, got %d", n)
	}
}

func TestSQLiteInitializeIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	s.Save(ctx, mkDecision("aaaa0001", nil))
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Second Initialize failed: %v", err)
	}
	if n, _ := s.Count(ctx, nil); n != 1 {
		t.Errorf("Reinitialize must not drop data, count %d", n)
	}
}
