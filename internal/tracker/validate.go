package tracker

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ValidateTicket checks t for required fields and recognised enumerations.
//
// Rules:
//   - Title must be non-empty.
//   - Status, Priority and Type must be recognised values.
//   - ProjectID must not be negative.
func ValidateTicket(t Ticket) error {
	var errs []error

	if strings.TrimSpace(t.Title) == "" {
		errs = append(errs, errors.New("title must not be empty"))
	}
	if !slices.Contains(ticketStatuses, t.Status) {
		errs = append(errs, fmt.Errorf("status %q is not recognised", t.Status))
	}
	if !slices.Contains(ticketPriorities, t.Priority) {
		errs = append(errs, fmt.Errorf("priority %q is not recognised", t.Priority))
	}
	if !slices.Contains(ticketTypes, t.Type) {
		errs = append(errs, fmt.Errorf("type %q is not recognised", t.Type))
	}
	if t.ProjectID < 0 {
		errs = append(errs, errors.New("project id must not be negative"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// NormalizeStatus maps spoken variants ("in progress", "done") onto a
// ticket status. Returns "" for unrecognised input.
func NormalizeStatus(s string) string {
	s = normalizeWord(s)
	switch s {
	case "inprogress", "in_progress", "started", "active", "doing", "working":
		return StatusInProgress
	case "todo", "new", "opened", "pending", "open":
		return StatusOpen
	case "in_review", "reviewing", "review":
		return StatusReview
	case "done", "fixed", "complete", "completed", "resolved":
		return StatusResolved
	case "closed", "close":
		return StatusClosed
	}
	return ""
}

// NormalizePriority maps spoken variants ("urgent", "highest") onto a
// priority. Returns "" for unrecognised input.
func NormalizePriority(s string) string {
	switch normalizeWord(s) {
	case "low", "lowest", "minor", "trivial":
		return PriorityLow
	case "medium", "normal", "moderate":
		return PriorityMedium
	case "high", "important", "major":
		return PriorityHigh
	case "critical", "urgent", "highest", "blocker":
		return PriorityCritical
	}
	return ""
}

// NormalizeType maps spoken variants ("defect", "story") onto a ticket type.
// Returns "" for unrecognised input.
func NormalizeType(s string) string {
	switch normalizeWord(s) {
	case "bug", "bugs", "defect", "issue", "error":
		return TypeBug
	case "feature", "features", "story", "request":
		return TypeFeature
	case "task", "tasks", "chore":
		return TypeTask
	case "improvement", "enhancement", "refactor":
		return TypeImprovement
	}
	return ""
}

func normalizeWord(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}
