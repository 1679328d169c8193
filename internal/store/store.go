// Package store persists and queries decision records. Three interchangeable
// backends implement the same contract: a volatile in-memory map, a
// YAML-file-per-decision tree, and a SQLite database with full-text search.
// Callers obtain a backend through the factory and never depend on a
// concrete implementation.
package store

import (
	"context"
	"time"

	"adl/internal/model"
)

// Backend selector values recognized by the factory.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// SortOrder values accepted by ListQuery.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// DefaultSortField is used when a requested sort column is not recognized.
const DefaultSortField = "created_at"

// DefaultListLimit bounds a List page when the caller supplies none.
const DefaultListLimit = 50

// Store is the contract every backend satisfies. Every implementation must
// produce identical observable results for identical inputs.
//
// Not-found is never an error: Get returns (nil, nil), and Delete,
// UpdateOutcome, and UpdateFields return false, when no record matches.
type Store interface {
	// Initialize prepares the schema or filesystem. It is idempotent and
	// must be called before any other operation.
	Initialize(ctx context.Context) error

	// Save is an upsert keyed by the decision's ID: a second Save with the
	// same ID overwrites the record. Tags, reasons, bridge, and
	// deliberation are fully replaced on every save. The store maintains
	// CreatedAt and UpdatedAt.
	Save(ctx context.Context, d *model.Decision) error

	// Get returns the full record with all child collections populated,
	// or (nil, nil) when the ID is unknown. Never a partial record.
	Get(ctx context.Context, id string) (*model.Decision, error)

	// Delete removes the record and all child data. Returns whether a
	// matching record existed.
	Delete(ctx context.Context, id string) (bool, error)

	// List applies filters, sorts, counts all matches, then returns one
	// page. Total always reflects the filter, not the page size.
	List(ctx context.Context, q ListQuery) (*ListResult, error)

	// Stats aggregates over all records matching the query's date range
	// and project filter.
	Stats(ctx context.Context, q StatsQuery) (*Stats, error)

	// UpdateOutcome records a review: outcome classification, actual
	// result, lessons, notes, and the review timestamp. The status moves
	// to reviewed and never reverts.
	UpdateOutcome(ctx context.Context, id string, rev Review) (bool, error)

	// UpdateFields applies an allow-listed set of field updates, including
	// the tags and reasons child collections. Unknown fields are ignored.
	UpdateFields(ctx context.Context, id string, fields map[string]any) (bool, error)

	// Count returns the number of records matching the allow-listed
	// equality filters; tag filters use any-of semantics. Nil filters
	// count everything.
	Count(ctx context.Context, filters CountFilters) (int, error)

	// Close releases the backend's handle. Safe to call even if
	// Initialize never completed.
	Close() error
}

// ListQuery carries pagination, equality filters, a tag any-match filter, an
// inclusive date range, a free-text keyword filter, and sort selection.
type ListQuery struct {
	Limit  int
	Offset int

	Category string
	Stakes   string
	Status   string
	Agent    string
	Project  string
	Feature  string

	// Tags matches decisions carrying any of the given tags.
	Tags []string

	// DateFrom and DateTo bound the creation time inclusively. A date-only
	// DateTo ("2006-01-02") covers the entire day.
	DateFrom string
	DateTo   string

	// Search is a case-insensitive keyword filter over description,
	// context, and pattern.
	Search string

	SortBy    string
	SortOrder string
}

// ListResult is one page of matches plus the true total for the filter.
type ListResult struct {
	Decisions []*model.Decision `json:"decisions"`
	Total     int               `json:"total"`
}

// StatsQuery narrows Stats to a date range and project.
type StatsQuery struct {
	DateFrom string
	DateTo   string
	Project  string
}

// DayCount is one day's bucket in the stats timeline.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// TagCount is one entry in the top-tags ranking.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Stats aggregates a filtered set of decisions.
type Stats struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"byCategory"`
	ByStakes   map[string]int `json:"byStakes"`
	ByStatus   map[string]int `json:"byStatus"`
	ByAgent    map[string]int `json:"byAgent"`
	Timeline   []DayCount     `json:"timeline"`
	TopTags    []TagCount     `json:"topTags"`

	// Recency buckets relative to the moment the stats were computed.
	Last24h int `json:"last24h"`
	Last7d  int `json:"last7d"`
	Last30d int `json:"last30d"`
}

// Review carries the outcome-specific fields recorded by UpdateOutcome.
type Review struct {
	Outcome      string
	ActualResult string
	Lessons      string
	ReviewNotes  string
}

// CountFilters restricts Count to an allow-listed set of equality fields.
// Recognized keys: category, stakes, status, agent, project, feature, and
// tags (a []string matched with any-of semantics). Anything else is ignored
// so arbitrary predicates can never reach the relational backend.
type CountFilters map[string]any

// countFilterFields is the equality-field allow-list shared by all backends.
var countFilterFields = []string{"category", "stakes", "status", "agent", "project", "feature"}

// updatableFields is the UpdateFields allow-list. Tags and reasons are child
// collections replaced wholesale when present.
var updatableFields = map[string]bool{
	"description":  true,
	"confidence":   true,
	"category":     true,
	"stakes":       true,
	"status":       true,
	"context":      true,
	"agent":        true,
	"pattern":      true,
	"project":      true,
	"feature":      true,
	"pull_request": true,
	"file_path":    true,
	"line":         true,
	"commit":       true,
	"date":         true,
	"tags":         true,
	"reasons":      true,
}

// sortFields is the sort-column allow-list. Unrecognized columns fall back
// to DefaultSortField rather than reaching the SQL layer.
var sortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"date":       true,
	"confidence": true,
	"category":   true,
	"stakes":     true,
	"status":     true,
	"agent":      true,
}

// touch stamps the store-owned timestamps for an upsert. createdAt survives
// from the prior version when one exists.
func touch(d *model.Decision, prior *model.Decision, now time.Time) {
	if prior != nil && !prior.CreatedAt.IsZero() {
		d.CreatedAt = prior.CreatedAt
	} else if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
}
