// Package executor dispatches interpreted intents to command handlers.
//
// A [Registry] maps intent names to [Handler] values. It is populated once at
// startup and checked with [Registry.Validate] against every intent the
// interpreter can produce, so a missing handler is a configuration error
// rather than a runtime surprise. Dispatching an intent that was never
// registered yields [ErrUnknownIntent].
package executor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrUnknownIntent is returned by [Registry.Execute] for unregistered intents.
var ErrUnknownIntent = errors.New("executor: unknown intent")

// User identifies the authenticated caller of a command.
type User struct {
	ID    string
	Name  string
	Email string
}

// Action describes what the client should do or what was done.
type Action struct {
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Response is the user-facing result of a command. Payload carries
// domain data (tickets, projects) next to the message.
type Response struct {
	Message string
	Payload map[string]any
}

// Map flattens r into a single object with "message" next to the payload
// keys, the shape returned to clients.
func (r Response) Map() map[string]any {
	out := make(map[string]any, len(r.Payload)+1)
	maps.Copy(out, r.Payload)
	out["message"] = r.Message
	return out
}

// Outcome is the result of a successful handler call.
type Outcome struct {
	Action   Action
	Response Response
}

// HandlerError is a handler failure with a message fit for display.
type HandlerError struct {
	Message string
	Err     error
}

func (e *HandlerError) Error() string { return e.Message }
func (e *HandlerError) Unwrap() error { return e.Err }

// Failf returns a [*HandlerError] with a formatted message and no cause.
func Failf(format string, args ...any) error {
	return &HandlerError{Message: fmt.Sprintf(format, args...)}
}

// Handler executes one intent.
//
// Implementations must be safe for concurrent use. Errors from domain
// collaborators are returned, never swallowed; wrap them in a
// [*HandlerError] to control the displayed message.
type Handler interface {
	Handle(ctx context.Context, user User, entities map[string]any) (Outcome, error)
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(ctx context.Context, user User, entities map[string]any) (Outcome, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, user User, entities map[string]any) (Outcome, error) {
	return f(ctx, user, entities)
}

// Registry maps intents to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under intent. Empty intents, nil handlers and duplicate
// registrations are rejected.
func (r *Registry) Register(intent string, h Handler) error {
	if intent == "" {
		return errors.New("executor: intent must not be empty")
	}
	if h == nil {
		return fmt.Errorf("executor: handler for %q must not be nil", intent)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[intent]; dup {
		return fmt.Errorf("executor: intent %q already registered", intent)
	}
	r.handlers[intent] = h
	return nil
}

// Intents returns the registered intent names in sorted order.
func (r *Registry) Intents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.handlers))
}

// Validate reports every name in intents that has no handler.
func (r *Registry) Validate(intents []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for _, in := range intents {
		if _, ok := r.handlers[in]; !ok {
			errs = append(errs, fmt.Errorf("executor: no handler registered for intent %q", in))
		}
	}
	return errors.Join(errs...)
}

// Execute dispatches intent to its handler. An unregistered intent returns an
// error wrapping [ErrUnknownIntent]; handler errors are returned unchanged.
func (r *Registry) Execute(ctx context.Context, user User, intent string, entities map[string]any) (Outcome, error) {
	r.mu.RLock()
	h, ok := r.handlers[intent]
	r.mu.RUnlock()
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownIntent, intent)
	}
	if entities == nil {
		entities = map[string]any{}
	}
	return h.Handle(ctx, user, entities)
}
