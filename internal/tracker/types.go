// Package tracker is the ticket and project domain reached by voice command
// handlers.
//
// The real application owns ticket/project persistence; this package defines
// the narrow [Service] contract the command handlers depend on and ships a
// thread-safe in-memory implementation ([MemStore]) that can be seeded from a
// YAML file for demos and tests.
package tracker

import "time"

// Ticket is a unit of tracked work.
type Ticket struct {
	ID          int64     `yaml:"id" json:"id"`
	Title       string    `yaml:"title" json:"title"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Type        string    `yaml:"type" json:"type"`
	Status      string    `yaml:"status" json:"status"`
	Priority    string    `yaml:"priority" json:"priority"`
	ProjectID   int64     `yaml:"project_id" json:"projectId"`
	Assignee    string    `yaml:"assignee,omitempty" json:"assignee,omitempty"`
	Reporter    string    `yaml:"reporter,omitempty" json:"reporter,omitempty"`
	CreatedAt   time.Time `yaml:"-" json:"createdAt"`
	UpdatedAt   time.Time `yaml:"-" json:"updatedAt"`
}

// Project groups tickets.
type Project struct {
	ID          int64  `yaml:"id" json:"id"`
	Key         string `yaml:"key" json:"key"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Status      string `yaml:"status" json:"status"`
}

// Ticket statuses.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

// Ticket priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Ticket types.
const (
	TypeBug         = "bug"
	TypeFeature     = "feature"
	TypeTask        = "task"
	TypeImprovement = "improvement"
)

// Project statuses.
const (
	ProjectActive   = "active"
	ProjectArchived = "archived"
)

var (
	ticketStatuses   = []string{StatusOpen, StatusInProgress, StatusReview, StatusResolved, StatusClosed}
	ticketPriorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
	ticketTypes      = []string{TypeBug, TypeFeature, TypeTask, TypeImprovement}
	projectStatuses  = []string{ProjectActive, ProjectArchived}
)

// TicketStatuses returns the recognised ticket statuses.
func TicketStatuses() []string { return append([]string(nil), ticketStatuses...) }

// TicketPriorities returns the recognised priorities, lowest first.
func TicketPriorities() []string { return append([]string(nil), ticketPriorities...) }

// TicketTypes returns the recognised ticket types.
func TicketTypes() []string { return append([]string(nil), ticketTypes...) }
