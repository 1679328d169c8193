// Package model defines the decision record and its child structures.
package model

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stakes levels recognized for a decision.
const (
	StakesLow      = "low"
	StakesMedium   = "medium"
	StakesHigh     = "high"
	StakesCritical = "critical"
)

// Status values a decision moves through.
const (
	StatusPending  = "pending"
	StatusReviewed = "reviewed"
)

// Outcome classifications recorded at review time.
const (
	OutcomeSuccess   = "success"
	OutcomePartial   = "partial"
	OutcomeFailure   = "failure"
	OutcomeAbandoned = "abandoned"
)

// DefaultReasonStrength is applied when a reason carries no explicit weight.
const DefaultReasonStrength = 0.8

// IDLength is the fixed length of a decision identifier.
const IDLength = 8

// Decision is the unit of storage: an agent's logged choice plus metadata
// and an optional review outcome. The identifier is immutable once assigned.
// CreatedAt and UpdatedAt are maintained by the store, never by the caller.
type Decision struct {
	ID          string  `yaml:"id" json:"id"`
	Description string  `yaml:"description" json:"description"`
	Confidence  float64 `yaml:"confidence" json:"confidence"`
	Category    string  `yaml:"category,omitempty" json:"category,omitempty"`
	Stakes      string  `yaml:"stakes,omitempty" json:"stakes,omitempty"`
	Status      string  `yaml:"status,omitempty" json:"status,omitempty"`
	Context     string  `yaml:"context,omitempty" json:"context,omitempty"`
	Agent       string  `yaml:"agent,omitempty" json:"agent,omitempty"`
	Pattern     string  `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	// Optional provenance metadata.
	Project     string `yaml:"project,omitempty" json:"project,omitempty"`
	Feature     string `yaml:"feature,omitempty" json:"feature,omitempty"`
	PullRequest string `yaml:"pull_request,omitempty" json:"pullRequest,omitempty"`
	FilePath    string `yaml:"file_path,omitempty" json:"filePath,omitempty"`
	Line        int    `yaml:"line,omitempty" json:"line,omitempty"`
	Commit      string `yaml:"commit,omitempty" json:"commit,omitempty"`

	// Date is the decision's own date (YYYY-MM-DD), distinct from CreatedAt.
	// It selects the directory used by the file backend and serves as the
	// sort fallback when a stored timestamp is absent.
	Date string `yaml:"date,omitempty" json:"date,omitempty"`

	Tags    []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Reasons []Reason `yaml:"reasons,omitempty" json:"reasons,omitempty"`

	Bridge       *Bridge       `yaml:"bridge,omitempty" json:"bridge,omitempty"`
	Deliberation *Deliberation `yaml:"deliberation,omitempty" json:"deliberation,omitempty"`

	// Review fields, populated once an outcome is recorded.
	Outcome      string     `yaml:"outcome,omitempty" json:"outcome,omitempty"`
	ActualResult string     `yaml:"actual_result,omitempty" json:"actualResult,omitempty"`
	Lessons      string     `yaml:"lessons,omitempty" json:"lessons,omitempty"`
	ReviewNotes  string     `yaml:"review_notes,omitempty" json:"reviewNotes,omitempty"`
	ReviewedAt   *time.Time `yaml:"reviewed_at,omitempty" json:"reviewedAt,omitempty"`

	CreatedAt time.Time `yaml:"created_at,omitempty" json:"createdAt,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updatedAt,omitempty"`
}

// Reason is a typed, weighted piece of supporting rationale.
type Reason struct {
	Kind     string  `yaml:"kind" json:"kind"`
	Text     string  `yaml:"text" json:"text"`
	Strength float64 `yaml:"strength,omitempty" json:"strength,omitempty"`
}

// Bridge is the optional structural/functional description of the pattern a
// decision instantiates. At most one per decision.
type Bridge struct {
	Structural  string `yaml:"structural,omitempty" json:"structural,omitempty"`
	Functional  string `yaml:"functional,omitempty" json:"functional,omitempty"`
	Tolerance   string `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	Enforcement string `yaml:"enforcement,omitempty" json:"enforcement,omitempty"`
	Prevention  string `yaml:"prevention,omitempty" json:"prevention,omitempty"`
}

// Deliberation is the optional ordered trace of reasoning inputs and steps
// that preceded a decision. At most one per decision.
type Deliberation struct {
	Inputs     []string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Steps      []string `yaml:"steps,omitempty" json:"steps,omitempty"`
	DurationMs int64    `yaml:"duration_ms,omitempty" json:"durationMs,omitempty"`
}

// NewID returns a fresh 8-character opaque decision identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:IDLength]
}

// ApplyDefaults fills the defaulted fields the storage layer relies on:
// stakes, status, per-reason strength, and the normalized tag set.
// Validation beyond defaulting happens upstream.
func (d *Decision) ApplyDefaults() {
	if d.Stakes == "" {
		d.Stakes = StakesMedium
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	for i := range d.Reasons {
		if d.Reasons[i].Strength == 0 {
			d.Reasons[i].Strength = DefaultReasonStrength
		}
	}
	d.Tags = NormalizeTags(d.Tags)
}

// NormalizeTags sorts and dedupes a tag list. Tags are an unordered set;
// normalizing at write time keeps every backend's observable order and
// cardinality identical.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// Reviewed reports whether an outcome has been recorded.
func (d *Decision) Reviewed() bool {
	return d.Outcome != ""
}

// Clone returns a deep copy so callers can mutate the result without
// affecting a store-held instance.
func (d *Decision) Clone() *Decision {
	cp := *d
	if d.Tags != nil {
		cp.Tags = append([]string(nil), d.Tags...)
	}
	if d.Reasons != nil {
		cp.Reasons = append([]Reason(nil), d.Reasons...)
	}
	if d.Bridge != nil {
		b := *d.Bridge
		cp.Bridge = &b
	}
	if d.Deliberation != nil {
		dl := *d.Deliberation
		dl.Inputs = append([]string(nil), d.Deliberation.Inputs...)
		dl.Steps = append([]string(nil), d.Deliberation.Steps...)
		cp.Deliberation = &dl
	}
	if d.ReviewedAt != nil {
		t := *d.ReviewedAt
		cp.ReviewedAt = &t
	}
	return &cp
}

// IsValidStakes checks a stakes label against the recognized set.
func IsValidStakes(s string) bool {
	switch s {
	case StakesLow, StakesMedium, StakesHigh, StakesCritical:
		return true
	default:
		return false
	}
}

// IsValidOutcome checks an outcome label against the recognized set.
func IsValidOutcome(o string) bool {
	switch o {
	case OutcomeSuccess, OutcomePartial, OutcomeFailure, OutcomeAbandoned:
		return true
	default:
		return false
	}
}
