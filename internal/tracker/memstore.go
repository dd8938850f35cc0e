package tracker

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Service interface.
var _ Service = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Service].
type MemStore struct {
	mu       sync.RWMutex
	tickets  map[int64]Ticket
	projects map[int64]Project
	nextID   int64
	now      func() time.Time
}

// MemOption configures a [MemStore].
type MemOption func(*MemStore)

// WithClock replaces the time source used for ticket timestamps.
func WithClock(now func() time.Time) MemOption {
	return func(s *MemStore) { s.now = now }
}

// NewMemStore returns an empty [MemStore].
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		tickets:  make(map[int64]Ticket),
		projects: make(map[int64]Project),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddProject stores p. A zero ID is replaced with the next free one.
func (s *MemStore) AddProject(_ context.Context, p Project) (Project, error) {
	if strings.TrimSpace(p.Name) == "" {
		return Project{}, fmt.Errorf("%w: project name must not be empty", ErrInvalid)
	}
	if p.Status == "" {
		p.Status = ProjectActive
	}
	if !slices.Contains(projectStatuses, p.Status) {
		return Project{}, fmt.Errorf("%w: project status %q is not recognised", ErrInvalid, p.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextID++
		p.ID = s.nextID
	} else if _, exists := s.projects[p.ID]; exists {
		return Project{}, fmt.Errorf("%w: project %d already exists", ErrInvalid, p.ID)
	}
	s.nextID = max(s.nextID, p.ID)
	s.projects[p.ID] = p
	return p, nil
}

// CreateTicket implements [Service.CreateTicket].
func (s *MemStore) CreateTicket(_ context.Context, t Ticket) (Ticket, error) {
	t.Status = cmp.Or(t.Status, StatusOpen)
	t.Priority = cmp.Or(t.Priority, PriorityMedium)
	t.Type = cmp.Or(t.Type, TypeTask)
	if err := ValidateTicket(t); err != nil {
		return Ticket{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ProjectID != 0 {
		if _, ok := s.projects[t.ProjectID]; !ok {
			return Ticket{}, fmt.Errorf("tracker: project %d: %w", t.ProjectID, ErrNotFound)
		}
	}
	if t.ID == 0 {
		s.nextID++
		t.ID = s.nextID
	} else if _, exists := s.tickets[t.ID]; exists {
		return Ticket{}, fmt.Errorf("%w: ticket %d already exists", ErrInvalid, t.ID)
	}
	s.nextID = max(s.nextID, t.ID)
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	s.tickets[t.ID] = t
	return t, nil
}

// Ticket implements [Service.Ticket].
func (s *MemStore) Ticket(_ context.Context, id int64) (Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, fmt.Errorf("tracker: ticket %d: %w", id, ErrNotFound)
	}
	return t, nil
}

// FindTickets implements [Service.FindTickets].
func (s *MemStore) FindTickets(_ context.Context, f TicketFilter) ([]Ticket, error) {
	s.mu.RLock()
	out := make([]Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		if matchesTicket(t, f) {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Ticket) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// UpdateTicket implements [Service.UpdateTicket].
func (s *MemStore) UpdateTicket(_ context.Context, id int64, p TicketPatch) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, fmt.Errorf("tracker: ticket %d: %w", id, ErrNotFound)
	}
	applyPatch(&t, p)
	if err := ValidateTicket(t); err != nil {
		return Ticket{}, err
	}
	t.UpdatedAt = s.now()
	s.tickets[id] = t
	return t, nil
}

// FindProjects implements [Service.FindProjects].
func (s *MemStore) FindProjects(_ context.Context, f ProjectFilter) ([]Project, error) {
	q := strings.ToLower(strings.TrimSpace(f.Query))

	s.mu.RLock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) &&
			!strings.Contains(strings.ToLower(p.Key), q) &&
			!strings.Contains(strings.ToLower(p.Description), q) {
			continue
		}
		out = append(out, p)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Project) int {
		return cmp.Or(cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// Project implements [Service.Project].
func (s *MemStore) Project(_ context.Context, id int64) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("tracker: project %d: %w", id, ErrNotFound)
	}
	return p, nil
}

// ProjectByName implements [Service.ProjectByName].
func (s *MemStore) ProjectByName(_ context.Context, name string) (Project, error) {
	name = strings.TrimSpace(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if strings.EqualFold(p.Key, name) || strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Project{}, fmt.Errorf("tracker: project %q: %w", name, ErrNotFound)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func matchesTicket(t Ticket, f TicketFilter) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Assignee != "" && !strings.EqualFold(t.Assignee, f.Assignee) {
		return false
	}
	if f.ProjectID != 0 && t.ProjectID != f.ProjectID {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(t.Title), q) && !strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	return true
}

func applyPatch(t *Ticket, p TicketPatch) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Assignee != nil {
		t.Assignee = *p.Assignee
	}
}
