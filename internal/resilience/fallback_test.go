package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newGroup(maxFailures int) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: maxFailures, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestDo_PrimarySuccess(t *testing.T) {
	t.Parallel()
	fg := newGroup(3)
	got, err := Do(context.Background(), fg, func(v string) (string, error) {
		return "from-" + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-primary" {
		t.Fatalf("got %q, want from-primary", got)
	}
}

func TestDo_Failover(t *testing.T) {
	t.Parallel()
	fg := newGroup(3)
	got, err := Do(context.Background(), fg, func(v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return "from-" + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-secondary" {
		t.Fatalf("got %q, want from-secondary", got)
	}
}

func TestDo_AllFail(t *testing.T) {
	t.Parallel()
	fg := newGroup(3)
	_, err := Do(context.Background(), fg, func(string) (int, error) { return 0, errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestDo_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	fg := newGroup(2)
	fail := func(v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	}
	for range 2 {
		_, _ = Do(context.Background(), fg, fail)
	}

	var calls []string
	_, err := Do(context.Background(), fg, func(v string) (string, error) {
		calls = append(calls, v)
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 || calls[0] != "secondary" {
		t.Fatalf("calls = %v, want [secondary]", calls)
	}

	h := fg.Health()
	if h[0].State != StateOpen || h[1].State != StateClosed {
		t.Errorf("health = %+v", h)
	}
	if !fg.Healthy() {
		t.Error("group with a closed entry must be healthy")
	}
}

func TestDo_StopsOnContextDone(t *testing.T) {
	t.Parallel()
	fg := newGroup(1)
	ctx, cancel := context.WithCancel(context.Background())

	var calls []string
	_, err := Do(ctx, fg, func(v string) (string, error) {
		calls = append(calls, v)
		cancel()
		return "", context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrAllFailed) {
		t.Error("cancellation must not be reported as ErrAllFailed")
	}
	if len(calls) != 1 {
		t.Errorf("calls = %v, want only the primary", calls)
	}
	// The primary's breaker must not have tripped on a cancelled call.
	if fg.Health()[0].State != StateClosed {
		t.Errorf("primary state = %v, want closed", fg.Health()[0].State)
	}
}

func TestDo_ExpiredContextTriesNothing(t *testing.T) {
	t.Parallel()
	fg := newGroup(3)
	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	called := false
	_, err := Do(ctx, fg, func(string) (string, error) {
		called = true
		return "", nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if called {
		t.Error("no entry should be called after the deadline")
	}
}

func TestFallbackGroup_Unhealthy(t *testing.T) {
	t.Parallel()
	fg := newGroup(1)
	_, _ = Do(context.Background(), fg, func(string) (string, error) { return "", errTest })
	if fg.Healthy() {
		t.Error("group with every breaker open must be unhealthy")
	}
}

func TestDo_AllFailJoinsEntryErrors(t *testing.T) {
	t.Parallel()
	fg := newGroup(3)
	errSecondary := errors.New("secondary quota")
	_, err := Do(context.Background(), fg, func(v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return "", errSecondary
	})
	for _, want := range []error{ErrAllFailed, errTest, errSecondary} {
		if !errors.Is(err, want) {
			t.Errorf("err = %v, does not wrap %v", err, want)
		}
	}
}
