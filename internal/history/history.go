// Package history records every command attempt and its outcome.
//
// An [Attempt] is appended in [StatusProcessing] as soon as a command arrives,
// may receive intermediate transcript updates while it is processed, and
// receives exactly one terminal write ([StatusSuccessful] or [StatusFailed]).
// Stores reject any mutation of a terminal attempt with [ErrAlreadyTerminal].
package history

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrPersistence marks failures of the backing store.
	ErrPersistence = errors.New("history: persistence failure")

	// ErrNotFound is returned when an attempt does not exist or belongs to a
	// different user.
	ErrNotFound = errors.New("history: attempt not found")

	// ErrAlreadyTerminal is returned when an attempt that already reached a
	// terminal status is written again.
	ErrAlreadyTerminal = errors.New("history: attempt already terminal")

	// ErrInvalid is returned for malformed attempts or terminal updates.
	ErrInvalid = errors.New("history: invalid attempt")
)

// Status is the lifecycle state of an [Attempt].
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusSuccessful || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusProcessing || s.Terminal()
}

// Action is the domain action a command performed.
type Action struct {
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Attempt is one transcribe, interpret and execute cycle.
type Attempt struct {
	ID                    string         `json:"id"`
	UserID                string         `json:"userId"`
	Transcript            string         `json:"transcript"`
	Intent                *string        `json:"intent"`
	Entities              map[string]any `json:"entities"`
	Status                Status         `json:"status"`
	ErrorMessage          string         `json:"errorMessage,omitempty"`
	Response              map[string]any `json:"response"`
	ActionTaken           *Action        `json:"actionTaken"`
	AudioReference        string         `json:"audioReference,omitempty"`
	ProcessingTimeSeconds float64        `json:"processingTimeSeconds"`
	ConfidenceScore       *float64       `json:"confidenceScore"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
}

// Terminal holds the fields written by [Store.UpdateTerminal].
type Terminal struct {
	Status Status

	// Transcript replaces the stored transcript when non-nil.
	Transcript *string

	Intent                *string
	Entities              map[string]any
	ErrorMessage          string
	Response              map[string]any
	ActionTaken           *Action
	ProcessingTimeSeconds float64
	ConfidenceScore       *float64

	// AudioReference identifies the spoken confirmation, if one was
	// synthesized.
	AudioReference string
}

// Filter narrows [Store.Query]. Zero fields do not filter.
type Filter struct {
	// From and To bound CreatedAt, inclusive.
	From, To time.Time
	Status   Status
	Intent   string
}

// Pagination describes one page of a query.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Page is the result of [Store.Query].
type Page struct {
	Items      []Attempt  `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Paging defaults.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// NormalizePaging clamps page to at least 1 and limit to [1, MaxLimit],
// substituting DefaultLimit for a non-positive limit.
func NormalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return page, min(limit, MaxLimit)
}

func newPagination(page, limit, total int) Pagination {
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}
}

// Store persists attempts. Implementations must be safe for concurrent use.
type Store interface {
	// Append inserts a new attempt. It must be in StatusProcessing.
	Append(ctx context.Context, a Attempt) error

	// UpdateIntermediate replaces the transcript of a processing attempt
	// without changing its status.
	UpdateIntermediate(ctx context.Context, id, transcript string) error

	// UpdateTerminal writes the final outcome. It fails with
	// ErrAlreadyTerminal if the attempt is no longer processing.
	UpdateTerminal(ctx context.Context, id string, t Terminal) error

	// Get returns one of the user's attempts.
	Get(ctx context.Context, userID, id string) (Attempt, error)

	// Query lists the user's attempts newest first.
	Query(ctx context.Context, userID string, f Filter, page, limit int) (Page, error)

	// Delete removes one of the user's attempts.
	Delete(ctx context.Context, userID, id string) error

	// Clear removes all of the user's attempts and returns how many were
	// removed.
	Clear(ctx context.Context, userID string) (int, error)

	// PurgeOlderThan removes the user's terminal attempts created before
	// cutoff and returns how many were removed.
	PurgeOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error)

	// Users lists every user that has at least one attempt.
	Users(ctx context.Context) ([]string, error)
}

func validateAppend(a Attempt) error {
	switch {
	case a.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalid)
	case a.UserID == "":
		return fmt.Errorf("%w: missing user id", ErrInvalid)
	case a.Status != StatusProcessing:
		return fmt.Errorf("%w: new attempts must be %s, got %q", ErrInvalid, StatusProcessing, a.Status)
	}
	return nil
}

func validateTerminal(t Terminal) error {
	if !t.Status.Terminal() {
		return fmt.Errorf("%w: terminal status required, got %q", ErrInvalid, t.Status)
	}
	return nil
}

func persistErr(op string, err error) error {
	return fmt.Errorf("history: %s: %w: %w", op, ErrPersistence, err)
}
