package history

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemStore is an in-memory [Store].
type MemStore struct {
	mu       sync.RWMutex
	attempts map[string]*memEntry
	seq      uint64
	now      func() time.Time
}

type memEntry struct {
	a   Attempt
	seq uint64
}

var _ Store = (*MemStore)(nil)

// MemOption configures a [MemStore].
type MemOption func(*MemStore)

// WithClock overrides the clock used for UpdatedAt and missing CreatedAt
// timestamps.
func WithClock(now func() time.Time) MemOption {
	return func(m *MemStore) {
		m.now = now
	}
}

// NewMemStore returns an empty MemStore.
func NewMemStore(opts ...MemOption) *MemStore {
	m := &MemStore{
		attempts: make(map[string]*memEntry),
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Append implements [Store].
func (m *MemStore) Append(_ context.Context, a Attempt) error {
	if err := validateAppend(a); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[a.ID]; ok {
		return persistErr("append", errDuplicate(a.ID))
	}
	now := m.now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	m.seq++
	m.attempts[a.ID] = &memEntry{a: copyAttempt(a), seq: m.seq}
	return nil
}

// UpdateIntermediate implements [Store].
func (m *MemStore) UpdateIntermediate(_ context.Context, id, transcript string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.attempts[id]
	if !ok {
		return ErrNotFound
	}
	if e.a.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	e.a.Transcript = transcript
	e.a.UpdatedAt = m.now().UTC()
	return nil
}

// UpdateTerminal implements [Store].
func (m *MemStore) UpdateTerminal(_ context.Context, id string, t Terminal) error {
	if err := validateTerminal(t); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.attempts[id]
	if !ok {
		return ErrNotFound
	}
	if e.a.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	a := &e.a
	a.Status = t.Status
	if t.Transcript != nil {
		a.Transcript = *t.Transcript
	}
	a.Intent = t.Intent
	a.Entities = maps.Clone(t.Entities)
	a.ErrorMessage = t.ErrorMessage
	a.Response = maps.Clone(t.Response)
	a.ActionTaken = copyAction(t.ActionTaken)
	a.ProcessingTimeSeconds = t.ProcessingTimeSeconds
	a.ConfidenceScore = t.ConfidenceScore
	a.AudioReference = t.AudioReference
	a.UpdatedAt = m.now().UTC()
	return nil
}

// Get implements [Store].
func (m *MemStore) Get(_ context.Context, userID, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.attempts[id]
	if !ok || e.a.UserID != userID {
		return Attempt{}, ErrNotFound
	}
	return copyAttempt(e.a), nil
}

// Query implements [Store].
func (m *MemStore) Query(_ context.Context, userID string, f Filter, page, limit int) (Page, error) {
	page, limit = NormalizePaging(page, limit)

	m.mu.RLock()
	var matched []*memEntry
	for _, e := range m.attempts {
		if e.a.UserID == userID && matches(e.a, f) {
			matched = append(matched, e)
		}
	}
	slices.SortFunc(matched, newestFirst)

	items := []Attempt{}
	start := (page - 1) * limit
	for i := start; i < len(matched) && i < start+limit; i++ {
		items = append(items, copyAttempt(matched[i].a))
	}
	m.mu.RUnlock()

	return Page{Items: items, Pagination: newPagination(page, limit, len(matched))}, nil
}

// Delete implements [Store].
func (m *MemStore) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.attempts[id]
	if !ok || e.a.UserID != userID {
		return ErrNotFound
	}
	delete(m.attempts, id)
	return nil
}

// Clear implements [Store].
func (m *MemStore) Clear(_ context.Context, userID string) (int, error) {
	return m.deleteWhere(func(a Attempt) bool { return a.UserID == userID }), nil
}

// PurgeOlderThan implements [Store].
func (m *MemStore) PurgeOlderThan(_ context.Context, userID string, cutoff time.Time) (int, error) {
	return m.deleteWhere(func(a Attempt) bool {
		return a.UserID == userID && a.Status.Terminal() && a.CreatedAt.Before(cutoff)
	}), nil
}

// Users implements [Store].
func (m *MemStore) Users(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, e := range m.attempts {
		seen[e.a.UserID] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (m *MemStore) deleteWhere(pred func(Attempt) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.attempts {
		if pred(e.a) {
			delete(m.attempts, id)
			n++
		}
	}
	return n
}

// newestFirst orders by CreatedAt descending, then by append order
// descending.
func newestFirst(x, y *memEntry) int {
	if c := y.a.CreatedAt.Compare(x.a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(y.seq, x.seq)
}

func matches(a Attempt, f Filter) bool {
	if !f.From.IsZero() && a.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.CreatedAt.After(f.To) {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Intent != "" && (a.Intent == nil || *a.Intent != f.Intent) {
		return false
	}
	return true
}

func copyAttempt(a Attempt) Attempt {
	a.Entities = maps.Clone(a.Entities)
	a.Response = maps.Clone(a.Response)
	a.ActionTaken = copyAction(a.ActionTaken)
	if a.Intent != nil {
		v := *a.Intent
		a.Intent = &v
	}
	if a.ConfidenceScore != nil {
		v := *a.ConfidenceScore
		a.ConfidenceScore = &v
	}
	return a
}

func copyAction(a *Action) *Action {
	if a == nil {
		return nil
	}
	c := *a
	c.Parameters = maps.Clone(a.Parameters)
	return &c
}

type errDuplicate string

func (e errDuplicate) Error() string { return "duplicate attempt id " + string(e) }
