package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"adl/internal/model"
)

// Shared filtering, sorting, and aggregation for the backends that have no
// query engine of their own (memory, file). The SQLite backend expresses the
// same semantics in SQL; cross-backend equivalence tests hold the two in line.

const dayFormat = "2006-01-02"

// queryTimeFormats are accepted for DateFrom/DateTo values, tried in order.
var queryTimeFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	dayFormat,
}

// parseQueryTime parses a user-supplied range bound. When the value is
// date-only and marks the end of the range, the bound extends to the end of
// that day so the range stays inclusive.
func parseQueryTime(s string, endOfRange bool) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range queryTimeFormats {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if layout == dayFormat && endOfRange {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t, true
	}
	return time.Time{}, false
}

// effectiveCreated resolves the timestamp a decision is bucketed and
// range-filtered by: CreatedAt when the store stamped one, otherwise the
// decision's own date field. The second return is false when neither parses.
func effectiveCreated(d *model.Decision) (time.Time, bool) {
	if !d.CreatedAt.IsZero() {
		return d.CreatedAt, true
	}
	if t, err := time.Parse(dayFormat, d.Date); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Filter applies every predicate of the query, ANDed together, and returns
// the matching subset in input order.
func Filter(decisions []*model.Decision, q ListQuery) []*model.Decision {
	from, hasFrom := parseQueryTime(q.DateFrom, false)
	to, hasTo := parseQueryTime(q.DateTo, true)
	search := strings.ToLower(strings.TrimSpace(q.Search))

	var out []*model.Decision
	for _, d := range decisions {
		if q.Category != "" && d.Category != q.Category {
			continue
		}
		if q.Stakes != "" && d.Stakes != q.Stakes {
			continue
		}
		if q.Status != "" && d.Status != q.Status {
			continue
		}
		if q.Agent != "" && d.Agent != q.Agent {
			continue
		}
		if q.Project != "" && d.Project != q.Project {
			continue
		}
		if q.Feature != "" && d.Feature != q.Feature {
			continue
		}
		if len(q.Tags) > 0 && !hasAnyTag(d.Tags, q.Tags) {
			continue
		}
		if hasFrom || hasTo {
			created, ok := effectiveCreated(d)
			if !ok {
				continue
			}
			if hasFrom && created.Before(from) {
				continue
			}
			if hasTo && created.After(to) {
				continue
			}
		}
		if search != "" && !matchesSearch(d, search) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// matchesSearch checks a lowercased keyword against the fixed set of
// searchable text fields.
func matchesSearch(d *model.Decision, keyword string) bool {
	for _, field := range []string{d.Description, d.Context, d.Pattern} {
		if strings.Contains(strings.ToLower(field), keyword) {
			return true
		}
	}
	return false
}

// Sort orders decisions by the requested field, ties broken by ID ascending
// so every backend pages identically. Unrecognized fields fall back to
// created_at. Missing string values sort as the empty string; the two
// timestamp fields fall back to the decision's date field when unset.
func Sort(decisions []*model.Decision, field, order string) {
	if !sortFields[field] {
		field = DefaultSortField
	}
	desc := strings.EqualFold(order, OrderDesc)

	sort.SliceStable(decisions, func(i, j int) bool {
		a, b := decisions[i], decisions[j]
		var less, equal bool
		if field == "confidence" {
			less = a.Confidence < b.Confidence
			equal = a.Confidence == b.Confidence
		} else {
			ka, kb := sortKey(a, field), sortKey(b, field)
			less = ka < kb
			equal = ka == kb
		}
		if equal {
			return a.ID < b.ID
		}
		if desc {
			return !less
		}
		return less
	})
}

func sortKey(d *model.Decision, field string) string {
	switch field {
	case "created_at":
		if d.CreatedAt.IsZero() {
			return dateSortKey(d.Date)
		}
		return d.CreatedAt.UTC().Format(time.RFC3339)
	case "updated_at":
		if d.UpdatedAt.IsZero() {
			return dateSortKey(d.Date)
		}
		return d.UpdatedAt.UTC().Format(time.RFC3339)
	case "date":
		return d.Date
	case "category":
		return d.Category
	case "stakes":
		return d.Stakes
	case "status":
		return d.Status
	case "agent":
		return d.Agent
	default:
		return ""
	}
}

// dateSortKey widens a date-only fallback to midnight UTC so it compares
// against RFC3339 keys the same way the relational backend's expression does.
func dateSortKey(date string) string {
	if date == "" {
		return ""
	}
	return date + "T00:00:00Z"
}

// Page slices one page out of a sorted result set.
func Page(decisions []*model.Decision, limit, offset int) []*model.Decision {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(decisions) {
		return nil
	}
	end := offset + limit
	if end > len(decisions) {
		end = len(decisions)
	}
	return decisions[offset:end]
}

// topTagLimit caps the tag-frequency ranking in stats.
const topTagLimit = 20

// ComputeStats aggregates the given decisions relative to now. Records whose
// creation time cannot be resolved are excluded from the recency buckets and
// the timeline but still count everywhere else.
func ComputeStats(decisions []*model.Decision, now time.Time) *Stats {
	s := &Stats{
		Total:      len(decisions),
		ByCategory: make(map[string]int),
		ByStakes:   make(map[string]int),
		ByStatus:   make(map[string]int),
		ByAgent:    make(map[string]int),
	}

	tagCounts := make(map[string]int)
	timeline := make(map[string]int)

	for _, d := range decisions {
		category := d.Category
		if category == "" {
			category = "unknown"
		}
		s.ByCategory[category]++

		stakes := d.Stakes
		if stakes == "" {
			stakes = model.StakesMedium
		}
		s.ByStakes[stakes]++

		status := d.Status
		if status == "" {
			status = model.StatusPending
		}
		s.ByStatus[status]++

		if d.Agent != "" {
			s.ByAgent[d.Agent]++
		}

		for _, tag := range d.Tags {
			tagCounts[tag]++
		}

		created, ok := effectiveCreated(d)
		if !ok {
			continue
		}
		timeline[created.UTC().Format(dayFormat)]++
		age := now.Sub(created)
		if age <= 24*time.Hour {
			s.Last24h++
		}
		if age <= 7*24*time.Hour {
			s.Last7d++
		}
		if age <= 30*24*time.Hour {
			s.Last30d++
		}
	}

	days := make([]string, 0, len(timeline))
	for day := range timeline {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		s.Timeline = append(s.Timeline, DayCount{Day: day, Count: timeline[day]})
	}

	s.TopTags = rankTags(tagCounts)
	return s
}

// rankTags orders tags by descending frequency, name ascending on ties, and
// keeps the top entries.
func rankTags(counts map[string]int) []TagCount {
	ranked := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		ranked = append(ranked, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Tag < ranked[j].Tag
	})
	if len(ranked) > topTagLimit {
		ranked = ranked[:topTagLimit]
	}
	return ranked
}

// statsListQuery widens a stats query into the shared filter vocabulary.
func statsListQuery(q StatsQuery) ListQuery {
	return ListQuery{DateFrom: q.DateFrom, DateTo: q.DateTo, Project: q.Project}
}

// matchesCountFilters implements Count's allow-listed predicate for the
// non-relational backends. Unrecognized keys are ignored.
func matchesCountFilters(d *model.Decision, filters CountFilters) bool {
	for _, key := range countFilterFields {
		raw, ok := filters[key]
		if !ok {
			continue
		}
		want, ok := raw.(string)
		if !ok || want == "" {
			continue
		}
		if fieldValue(d, key) != want {
			return false
		}
	}
	if raw, ok := filters["tags"]; ok {
		if tags := toStringSlice(raw); len(tags) > 0 && !hasAnyTag(d.Tags, tags) {
			return false
		}
	}
	return true
}

func fieldValue(d *model.Decision, key string) string {
	switch key {
	case "category":
		return d.Category
	case "stakes":
		return d.Stakes
	case "status":
		return d.Status
	case "agent":
		return d.Agent
	case "project":
		return d.Project
	case "feature":
		return d.Feature
	default:
		return ""
	}
}

func toStringSlice(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// applyFields mutates a decision in place from an allow-listed field map.
// Shared by the memory and file backends; the SQLite backend performs the
// same updates in SQL. Unknown keys are skipped, bad value types are an
// error so silent data loss cannot hide behind a type mismatch.
func applyFields(d *model.Decision, fields map[string]any) error {
	for key, raw := range fields {
		if !updatableFields[key] {
			continue
		}
		switch key {
		case "confidence":
			f, ok := toFloat(raw)
			if !ok {
				return fmt.Errorf("field %q: expected number, got %T", key, raw)
			}
			d.Confidence = f
		case "line":
			f, ok := toFloat(raw)
			if !ok {
				return fmt.Errorf("field %q: expected number, got %T", key, raw)
			}
			d.Line = int(f)
		case "tags":
			d.Tags = model.NormalizeTags(toStringSlice(raw))
		case "reasons":
			reasons, err := toReasons(raw)
			if err != nil {
				return fmt.Errorf("field %q: %w", key, err)
			}
			d.Reasons = reasons
		default:
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("field %q: expected string, got %T", key, raw)
			}
			setStringField(d, key, s)
		}
	}
	for i := range d.Reasons {
		if d.Reasons[i].Strength == 0 {
			d.Reasons[i].Strength = model.DefaultReasonStrength
		}
	}
	return nil
}

func setStringField(d *model.Decision, key, value string) {
	switch key {
	case "description":
		d.Description = value
	case "category":
		d.Category = value
	case "stakes":
		d.Stakes = value
	case "status":
		d.Status = value
	case "context":
		d.Context = value
	case "agent":
		d.Agent = value
	case "pattern":
		d.Pattern = value
	case "project":
		d.Project = value
	case "feature":
		d.Feature = value
	case "pull_request":
		d.PullRequest = value
	case "file_path":
		d.FilePath = value
	case "commit":
		d.Commit = value
	case "date":
		d.Date = value
	}
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// toReasons accepts either typed reasons or the generic map shape produced
// by JSON/YAML decoding.
func toReasons(raw any) ([]model.Reason, error) {
	switch v := raw.(type) {
	case []model.Reason:
		return append([]model.Reason(nil), v...), nil
	case []any:
		out := make([]model.Reason, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expected reason object, got %T", item)
			}
			var r model.Reason
			if s, ok := m["kind"].(string); ok {
				r.Kind = s
			}
			if s, ok := m["text"].(string); ok {
				r.Text = s
			}
			if f, ok := toFloat(m["strength"]); ok {
				r.Strength = f
			}
			out = append(out, r)
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("expected reason list, got %T", raw)
	}
}

// applyReview folds a review into a decision. Status moves to reviewed and
// never reverts; empty review text fields do not clobber existing values.
func applyReview(d *model.Decision, rev Review, now time.Time) {
	d.Outcome = rev.Outcome
	if rev.ActualResult != "" {
		d.ActualResult = rev.ActualResult
	}
	if rev.Lessons != "" {
		d.Lessons = rev.Lessons
	}
	if rev.ReviewNotes != "" {
		d.ReviewNotes = rev.ReviewNotes
	}
	d.Status = model.StatusReviewed
	t := now
	d.ReviewedAt = &t
	d.UpdatedAt = now
}
