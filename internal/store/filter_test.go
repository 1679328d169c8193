package store

import (
	"testing"
	"time"

	"adl/internal/model"
)

func mkDecision(id string, mutate func(*model.Decision)) *model.Decision {
	d := &model.Decision{
		ID:          id,
		Description: "decision " + id,
		Confidence:  0.5,
		Stakes:      model.StakesMedium,
		Status:      model.StatusPending,
	}
	if mutate != nil {
		mutate(d)
	}
	return d
}

func TestFilterEqualityAndTags(t *testing.T) {
	decisions := []*model.Decision{
		mkDecision("aaaa0001", func(d *model.Decision) {
			d.Category = "architecture"
			d.Tags = []string{"a"}
		}),
		mkDecision("aaaa0002", func(d *model.Decision) {
			d.Category = "architecture"
			d.Tags = []string{"b"}
		}),
		mkDecision("aaaa0003", func(d *model.Decision) {
			d.Category = "process"
			d.Tags = []string{"a", "b"}
		}),
	}

	got := Filter(decisions, ListQuery{Category: "architecture"})
	if len(got) != 2 {
		t.Fatalf("Expected 2 architecture decisions, got %d", len(got))
	}

	got = Filter(decisions, ListQuery{Tags: []string{"a"}})
	if len(got) != 2 {
		t.Fatalf("Expected 2 decisions tagged 'a', got %d", len(got))
	}
	if got[0].ID != "aaaa0001" || got[1].ID != "aaaa0003" {
		t.Errorf("Expected aaaa0001 and aaaa0003, got %s and %s", got[0].ID, got[1].ID)
	}

	got = Filter(decisions, ListQuery{Category: "process", Tags: []string{"b"}})
	if len(got) != 1 || got[0].ID != "aaaa0003" {
		t.Fatalf("Expected only aaaa0003, got %d results", len(got))
	}
}

func TestFilterDateRangeInclusive(t *testing.T) {
	onBoundary := mkDecision("aaaa0001", func(d *model.Decision) {
		d.CreatedAt = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	})
	after := mkDecision("aaaa0002", func(d *model.Decision) {
		d.CreatedAt = time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC)
	})

	// A date-only upper bound covers the entire day.
	got := Filter([]*model.Decision{onBoundary, after}, ListQuery{DateTo: "2026-03-10"})
	if len(got) != 1 || got[0].ID != "aaaa0001" {
		t.Fatalf("Expected only the on-boundary decision, got %d results", len(got))
	}

	got = Filter([]*model.Decision{onBoundary, after}, ListQuery{DateFrom: "2026-03-11"})
	if len(got) != 1 || got[0].ID != "aaaa0002" {
		t.Fatalf("Expected only the later decision, got %d results", len(got))
	}
}

func TestFilterDateFallsBackToDateField(t *testing.T) {
	d := mkDecision("aaaa0001", func(d *model.Decision) {
		d.Date = "2026-03-10"
	})

	got := Filter([]*model.Decision{d}, ListQuery{DateFrom: "2026-03-10", DateTo: "2026-03-10"})
	if len(got) != 1 {
		t.Fatalf("Expected date-field fallback to match, got %d results", len(got))
	}
}

func TestFilterSearchCaseInsensitive(t *testing.T) {
	decisions := []*model.Decision{
		mkDecision("aaaa0001", func(d *model.Decision) { d.Description = "Use SQLite for persistence" }),
		mkDecision("aaaa0002", func(d *model.Decision) { d.Context = "considered sqlite and postgres" }),
		mkDecision("aaaa0003", func(d *model.Decision) { d.Pattern = "repository" }),
	}

	got := Filter(decisions, ListQuery{Search: "SQLITE"})
	if len(got) != 2 {
		t.Fatalf("Expected 2 matches across description and context, got %d", len(got))
	}

	got = Filter(decisions, ListQuery{Search: "repo"})
	if len(got) != 1 || got[0].ID != "aaaa0003" {
		t.Fatalf("Expected pattern field match, got %d results", len(got))
	}
}

func TestSortStableWithFallback(t *testing.T) {
	decisions := []*model.Decision{
		mkDecision("aaaa0002", func(d *model.Decision) {
			d.CreatedAt = time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
		}),
		mkDecision("aaaa0001", func(d *model.Decision) {
			// No created timestamp; the date field stands in.
			d.Date = "2026-03-11"
		}),
		mkDecision("aaaa0003", func(d *model.Decision) {
			d.CreatedAt = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
		}),
	}

	Sort(decisions, "created_at", OrderAsc)
	wantOrder := []string{"aaaa0003", "aaaa0001", "aaaa0002"}
	for i, want := range wantOrder {
		if decisions[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, decisions[i].ID)
		}
	}

	Sort(decisions, "created_at", OrderDesc)
	if decisions[0].ID != "aaaa0002" {
		t.Errorf("Expected aaaa0002 first in descending order, got %s", decisions[0].ID)
	}
}

func TestSortUnknownFieldFallsBack(t *testing.T) {
	decisions := []*model.Decision{
		mkDecision("aaaa0002", func(d *model.Decision) {
			d.CreatedAt = time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
		}),
		mkDecision("aaaa0001", func(d *model.Decision) {
			d.CreatedAt = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
		}),
	}

	Sort(decisions, "robert'); DROP TABLE decisions;--", OrderAsc)
	if decisions[0].ID != "aaaa0001" {
		t.Errorf("Expected fallback to created_at ascending, got %s first", decisions[0].ID)
	}
}

func TestSortConfidenceTiesBreakByID(t *testing.T) {
	decisions := []*model.Decision{
		mkDecision("aaaa0002", func(d *model.Decision) { d.Confidence = 0.7 }),
		mkDecision("aaaa0001", func(d *model.Decision) { d.Confidence = 0.7 }),
		mkDecision("aaaa0003", func(d *model.Decision) { d.Confidence = 0.9 }),
	}

	Sort(decisions, "confidence", OrderDesc)
	if decisions[0].ID != "aaaa0003" {
		t.Fatalf("Expected highest confidence first, got %s", decisions[0].ID)
	}
	if decisions[1].ID != "aaaa0001" || decisions[2].ID != "aaaa0002" {
		t.Errorf("Expected tie broken by id ascending, got %s then %s", decisions[1].ID, decisions[2].ID)
	}
}

func TestPageBounds(t *testing.T) {
	decisions := []*model.Decision{
		mkDecision("aaaa0001", nil),
		mkDecision("aaaa0002", nil),
		mkDecision("aaaa0003", nil),
	}

	page := Page(decisions, 2, 0)
	if len(page) != 2 {
		t.Errorf("Expected page of 2, got %d", len(page))
	}

	page = Page(decisions, 2, 2)
	if len(page) != 1 {
		t.Errorf("Expected final partial page of 1, got %d", len(page))
	}

	page = Page(decisions, 2, 10)
	if page != nil {
		t.Errorf("Expected nil page past the end, got %d records", len(page))
	}
}

func TestComputeStatsGroupsAndDefaults(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	decisions := []*model.Decision{
		mkDecision("aaaa0001", func(d *model.Decision) {
			d.Category = "architecture"
			d.Agent = "planner"
			d.Tags = []string{"go", "storage"}
			d.CreatedAt = now.Add(-2 * time.Hour)
		}),
		mkDecision("aaaa0002", func(d *model.Decision) {
			// No category, stakes, or status: the defaults bucket these.
			d.Stakes = ""
			d.Status = ""
			d.Tags = []string{"go"}
			d.CreatedAt = now.Add(-40 * 24 * time.Hour)
		}),
	}

	stats := ComputeStats(decisions, now)
	if stats.Total != 2 {
		t.Fatalf("Expected total 2, got %d", stats.Total)
	}
	if stats.ByCategory["unknown"] != 1 || stats.ByCategory["architecture"] != 1 {
		t.Errorf("Unexpected category counts: %v", stats.ByCategory)
	}
	if stats.ByStakes["medium"] != 2 {
		t.Errorf("Expected default stakes bucket of 2, got %v", stats.ByStakes)
	}
	if stats.ByStatus["pending"] != 2 {
		t.Errorf("Expected default status bucket of 2, got %v", stats.ByStatus)
	}
	if len(stats.ByAgent) != 1 || stats.ByAgent["planner"] != 1 {
		t.Errorf("Expected only present agents, got %v", stats.ByAgent)
	}
	if len(stats.TopTags) != 2 || stats.TopTags[0].Tag != "go" || stats.TopTags[0].Count != 2 {
		t.Errorf("Unexpected top tags: %v", stats.TopTags)
	}
	if len(stats.Timeline) != 2 {
		t.Fatalf("Expected 2 timeline days, got %d", len(stats.Timeline))
	}
	if stats.Timeline[0].Day >= stats.Timeline[1].Day {
		t.Errorf("Expected timeline ascending, got %v", stats.Timeline)
	}
}

func TestComputeStatsRecencyBuckets(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	decisions := []*model.Decision{
		mkDecision("aaaa0001", func(d *model.Decision) {
			d.CreatedAt = now.Add(-2 * time.Hour)
		}),
		mkDecision("aaaa0002", func(d *model.Decision) {
			d.CreatedAt = now.Add(-40 * 24 * time.Hour)
		}),
	}

	stats := ComputeStats(decisions, now)
	if stats.Last24h != 1 {
		t.Errorf("Expected 1 in 24h bucket, got %d", stats.Last24h)
	}
	if stats.Last7d != 1 {
		t.Errorf("Expected 1 in 7d bucket, got %d", stats.Last7d)
	}
	if stats.Last30d != 1 {
		t.Errorf("Expected 1 in 30d bucket, got %d", stats.Last30d)
	}
}

func TestComputeStatsSkipsUnparsableTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	decisions := []*model.Decision{
		mkDecision("aaaa0001", func(d *model.Decision) {
			d.Date = "not-a-date"
		}),
	}

	stats := ComputeStats(decisions, now)
	if stats.Total != 1 {
		t.Fatalf("Unparsable timestamp must still count toward total, got %d", stats.Total)
	}
	if stats.Last30d != 0 || len(stats.Timeline) != 0 {
		t.Errorf("Unparsable timestamp must be excluded from recency and timeline")
	}
}

func TestParseQueryTimeFormats(t *testing.T) {
	if _, ok := parseQueryTime("", false); ok {
		t.Error("Empty input must not parse")
	}
	if _, ok := parseQueryTime("garbage", false); ok {
		t.Error("Garbage input must not parse")
	}

	got, ok := parseQueryTime("2026-03-10", true)
	if !ok {
		t.Fatal("Date-only input must parse")
	}
	want := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected end-of-day extension to %v, got %v", want, got)
	}

	got, ok = parseQueryTime("2026-03-10T08:00:00Z", true)
	if !ok || got.Hour() != 8 {
		t.Errorf("Timestamped input must parse without end-of-day extension, got %v", got)
	}
}
