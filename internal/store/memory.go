package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"adl/internal/model"
)

// MemoryStore is the volatile reference backend. Its output for any
// filter/sort/pagination combination defines correct behavior for the
// persistent backends.
type MemoryStore struct {
	mu        sync.RWMutex
	decisions map[string]*model.Decision
}

// NewMemoryStore returns an uninitialized in-memory backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{decisions: make(map[string]*model.Decision)}
}

// Initialize clears all state.
func (s *MemoryStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = make(map[string]*model.Decision)
	return nil
}

func (s *MemoryStore) Save(ctx context.Context, d *model.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := d.Clone()
	cp.ApplyDefaults()
	touch(cp, s.decisions[cp.ID], time.Now().UTC())
	s.decisions[cp.ID] = cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.decisions[id]
	if !ok {
		return nil, nil
	}
	return d.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.decisions[id]; !ok {
		return false, nil
	}
	delete(s.decisions, id)
	return true, nil
}

func (s *MemoryStore) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	s.mu.RLock()
	all := s.snapshot()
	s.mu.RUnlock()

	matched := Filter(all, q)
	Sort(matched, q.SortBy, q.SortOrder)
	page := Page(matched, q.Limit, q.Offset)
	return &ListResult{Decisions: page, Total: len(matched)}, nil
}

func (s *MemoryStore) Stats(ctx context.Context, q StatsQuery) (*Stats, error) {
	s.mu.RLock()
	all := s.snapshot()
	s.mu.RUnlock()

	matched := Filter(all, statsListQuery(q))
	return ComputeStats(matched, time.Now().UTC()), nil
}

func (s *MemoryStore) UpdateOutcome(ctx context.Context, id string, rev Review) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[id]
	if !ok {
		return false, nil
	}
	applyReview(d, rev, time.Now().UTC())
	return true, nil
}

func (s *MemoryStore) UpdateFields(ctx context.Context, id string, fields map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[id]
	if !ok {
		return false, nil
	}

	// Apply to a copy and swap in only on success, so a failed type check
	// never leaves a half-updated record behind.
	cp := d.Clone()
	if err := applyFields(cp, fields); err != nil {
		return false, err
	}
	cp.UpdatedAt = time.Now().UTC()
	s.decisions[id] = cp
	return true, nil
}

func (s *MemoryStore) Count(ctx context.Context, filters CountFilters) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(filters) == 0 {
		return len(s.decisions), nil
	}
	n := 0
	for _, d := range s.decisions {
		if matchesCountFilters(d, filters) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op; the backend holds no external resources.
func (s *MemoryStore) Close() error {
	return nil
}

// snapshot returns independent copies in a deterministic order: cloning
// under the lock means callers never touch map-held records after the lock
// is released, and the fixed order makes sorting ties resolve identically
// across calls. Callers must hold at least a read lock.
func (s *MemoryStore) snapshot() []*model.Decision {
	all := make([]*model.Decision, 0, len(s.decisions))
	for _, d := range s.decisions {
		all = append(all, d.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}
