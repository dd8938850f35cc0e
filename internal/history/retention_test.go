package history

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSweeper_SweepOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemStore()
	now := base

	add := func(id, user string, age time.Duration) {
		_ = store.Append(ctx, processing(id, user, now.Add(-age)))
		_ = store.UpdateTerminal(ctx, id, Terminal{Status: StatusSuccessful})
	}
	add("u1-old", "u1", 10*24*time.Hour)
	add("u1-new", "u1", 2*24*time.Hour)
	add("u2-old", "u2", 10*24*time.Hour)
	add("u3-old", "u3", 10*24*time.Hour)

	policy := RetentionFunc(func(_ context.Context, user string) (int, error) {
		switch user {
		case "u1":
			return 7, nil
		case "u2":
			return 30, nil
		default:
			return 0, errors.New("settings unavailable")
		}
	})

	purged := map[string]int{}
	sw := NewSweeper(store, policy, time.Minute,
		WithSweepClock(func() time.Time { return now }),
		WithPurgeHook(func(_ context.Context, user string, n int) { purged[user] += n }),
	)
	n, err := sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	for _, keep := range []struct{ user, id string }{{"u1", "u1-new"}, {"u2", "u2-old"}, {"u3", "u3-old"}} {
		if _, err := store.Get(ctx, keep.user, keep.id); err != nil {
			t.Errorf("%s should have been kept: %v", keep.id, err)
		}
	}
	if _, err := store.Get(ctx, "u1", "u1-old"); !errors.Is(err, ErrNotFound) {
		t.Error("u1-old should have been purged")
	}
	if len(purged) != 1 || purged["u1"] != 1 {
		t.Errorf("purge hook saw %v, want map[u1:1]", purged)
	}
}

func TestSweeper_ClosesStaleProcessing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemStore()
	now := base

	for id, age := range map[string]time.Duration{
		"stuck":   time.Hour,
		"fresh":   time.Minute,
		"ancient": 10 * 24 * time.Hour,
	} {
		if err := store.Append(ctx, processing(id, "u1", now.Add(-age))); err != nil {
			t.Fatal(err)
		}
	}

	sw := NewSweeper(store, RetentionFunc(func(context.Context, string) (int, error) { return 7, nil }), time.Minute,
		WithSweepClock(func() time.Time { return now }),
		WithStaleAfter(15*time.Minute),
	)
	n, err := sw.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}

	stuck, err := store.Get(ctx, "u1", "stuck")
	if err != nil {
		t.Fatalf("Get stuck: %v", err)
	}
	if stuck.Status != StatusFailed || stuck.ErrorMessage != MsgAbandoned {
		t.Errorf("stuck = %s / %q, want failed / %q", stuck.Status, stuck.ErrorMessage, MsgAbandoned)
	}
	if stuck.ProcessingTimeSeconds != time.Hour.Seconds() {
		t.Errorf("stuck processing time = %v", stuck.ProcessingTimeSeconds)
	}
	if fresh, _ := store.Get(ctx, "u1", "fresh"); fresh.Status != StatusProcessing {
		t.Errorf("fresh status = %s, want processing", fresh.Status)
	}
	if _, err := store.Get(ctx, "u1", "ancient"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ancient attempt should be closed and purged, Get err = %v", err)
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	sw := NewSweeper(NewMemStore(), RetentionFunc(func(context.Context, string) (int, error) { return 1, nil }), time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
