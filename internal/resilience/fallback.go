package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned by [Do] when no entry of a group produced a
// result. The per-entry errors are joined onto it.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is the template for each entry's breaker; Name is set per
// entry.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// EntryHealth is one entry's breaker state at a point in time.
type EntryHealth struct {
	Name  string
	State State
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup is an ordered list of interchangeable values, each behind its
// own circuit breaker. Build it completely before sharing it.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	members []member[T]
}

// NewFallbackGroup returns a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends an entry tried after all earlier ones.
func (g *FallbackGroup[T]) AddFallback(name string, v T) {
	bc := g.cfg.CircuitBreaker
	bc.Name = name
	g.members = append(g.members, member[T]{name: name, value: v, breaker: NewCircuitBreaker(bc)})
}

// Primary returns the first entry.
func (g *FallbackGroup[T]) Primary() T { return g.members[0].value }

// Health lists every entry's breaker state in order.
func (g *FallbackGroup[T]) Health() []EntryHealth {
	out := make([]EntryHealth, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, EntryHealth{Name: m.name, State: m.breaker.State()})
	}
	return out
}

// Healthy reports whether any entry's breaker would admit a call.
func (g *FallbackGroup[T]) Healthy() bool {
	for _, m := range g.members {
		if m.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Do calls fn on each entry in order and returns the first success. Entries
// whose breaker is open are skipped.
//
// When ctx ends, Do stops and returns the context error rather than
// [ErrAllFailed]. A call that fails after ctx ended is not charged to the
// entry's breaker.
func Do[T, R any](ctx context.Context, g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for _, m := range g.members {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("resilience: %w", err)
		}

		var (
			res     R
			callErr error
		)
		err := m.breaker.Execute(func() error {
			res, callErr = fn(m.value)
			if callErr != nil && ctx.Err() != nil {
				return nil
			}
			return callErr
		})
		switch {
		case err == nil && callErr == nil:
			return res, nil
		case err == nil:
			return zero, fmt.Errorf("resilience: %s: %w", m.name, callErr)
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("resilience: skipping provider with open circuit", "provider", m.name)
		default:
			slog.Warn("resilience: provider failed, trying next", "provider", m.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
