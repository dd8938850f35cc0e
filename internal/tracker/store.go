package tracker

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a ticket or project does not exist.
var ErrNotFound = errors.New("tracker: not found")

// ErrInvalid wraps validation failures of tickets, patches and filters.
var ErrInvalid = errors.New("tracker: invalid")

// TicketFilter narrows [Service.FindTickets]. Zero fields match everything;
// set fields are ANDed.
type TicketFilter struct {
	Status    string
	Priority  string
	Type      string
	Assignee  string
	ProjectID int64
	// Query matches case-insensitively against title and description.
	Query string
	// Limit caps the result size. Zero means no limit.
	Limit int
}

// TicketPatch carries the fields of an update. Nil fields are left unchanged.
type TicketPatch struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	Type        *string
	Assignee    *string
}

// ProjectFilter narrows [Service.FindProjects].
type ProjectFilter struct {
	Status string
	Query  string
}

// Service is the ticket/project surface used by command handlers.
//
// All implementations must be safe for concurrent use.
type Service interface {
	// FindTickets returns matching tickets, most recently updated first.
	FindTickets(ctx context.Context, f TicketFilter) ([]Ticket, error)

	// Ticket returns one ticket. Returns [ErrNotFound] if it does not exist.
	Ticket(ctx context.Context, id int64) (Ticket, error)

	// CreateTicket validates t, assigns an ID and timestamps, and stores it.
	// Missing status, priority and type default to open, medium and task.
	CreateTicket(ctx context.Context, t Ticket) (Ticket, error)

	// UpdateTicket applies p and returns the updated ticket.
	UpdateTicket(ctx context.Context, id int64, p TicketPatch) (Ticket, error)

	// FindProjects returns matching projects ordered by name.
	FindProjects(ctx context.Context, f ProjectFilter) ([]Project, error)

	// Project returns one project by ID.
	Project(ctx context.Context, id int64) (Project, error)

	// ProjectByName resolves a project by key or name, case-insensitively.
	ProjectByName(ctx context.Context, name string) (Project, error)
}
