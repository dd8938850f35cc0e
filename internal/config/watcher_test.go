package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/tickvox/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  llm:
    name: openai
auth:
  jwt_secret: x
rate_limit:
  enabled: true
  per_minute: 10
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  llm:
    name: openai
auth:
  jwt_secret: x
rate_limit:
  enabled: true
  per_minute: 60
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// reloads records watcher callbacks.
type reloads struct {
	mu    sync.Mutex
	calls [][2]*config.Config
	ch    chan struct{}
}

func newReloads() *reloads { return &reloads{ch: make(chan struct{}, 8)} }

func (r *reloads) record(old, next *config.Config) {
	r.mu.Lock()
	r.calls = append(r.calls, [2]*config.Config{old, next})
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *reloads) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// watch writes initial to a temp file and runs a fast-polling watcher on it
// until the test ends.
func watch(t *testing.T, initial string, r *reloads) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, initial)

	var cb func(old, next *config.Config)
	if r != nil {
		cb = r.record
	}
	w, err := config.NewWatcher(path, cb, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	})
	return w, path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _ := watch(t, watcherValidYAML, nil)
	cfg := w.Current()
	if cfg == nil || cfg.Server.LogLevel != config.LogInfo {
		t.Fatalf("Current() = %+v, want log_level info", cfg)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherInvalidYAML)
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config")
	}
}

func TestWatcher_AppliesChange(t *testing.T) {
	t.Parallel()
	r := newReloads()
	w, path := watch(t, watcherValidYAML, r)

	writeFile(t, path, watcherUpdatedYAML)
	select {
	case <-r.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no reload within 2s")
	}

	r.mu.Lock()
	old, next := r.calls[0][0], r.calls[0][1]
	r.mu.Unlock()
	if old.Server.LogLevel != config.LogInfo || next.Server.LogLevel != config.LogDebug {
		t.Errorf("reload log levels: %q -> %q", old.Server.LogLevel, next.Server.LogLevel)
	}
	if d := config.Diff(old, next); !d.RateLimitChanged || d.NewRateLimit.PerMinute != 60 {
		t.Errorf("Diff of reload = %+v", d)
	}
	if w.Current() != next {
		t.Error("Current() is not the reloaded config")
	}
}

func TestWatcher_IgnoresRevisionsWithoutEffect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		change func(t *testing.T, path string)
	}{
		{"invalid file", func(t *testing.T, path string) { writeFile(t, path, watcherInvalidYAML) }},
		{"comment only", func(t *testing.T, path string) {
			writeFile(t, path, "# tuned for staging\n"+watcherValidYAML)
		}},
		{"touch", func(t *testing.T, path string) {
			later := time.Now().Add(time.Second)
			if err := os.Chtimes(path, later, later); err != nil {
				t.Fatalf("Chtimes: %v", err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newReloads()
			w, path := watch(t, watcherValidYAML, r)
			before := w.Current()

			tt.change(t, path)
			time.Sleep(150 * time.Millisecond)

			if n := r.count(); n != 0 {
				t.Errorf("callback fired %d times", n)
			}
			if w.Current() != before {
				t.Error("Current() changed")
			}
		})
	}
}
