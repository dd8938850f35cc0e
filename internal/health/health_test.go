package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/tickvox/internal/resilience"
)

func pass(context.Context) error { return nil }

// get serves path through a mux with h registered.
func get(t *testing.T, h *Handler, ctx context.Context, path string) (int, result, string) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx))

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("%s: decode body: %v", path, err)
	}
	return rec.Code, body, rec.Header().Get("Content-Type")
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	// Liveness never runs the readiness checks.
	h := New(Checker{Name: "postgres", Check: func(context.Context) error {
		t.Error("healthz ran a checker")
		return nil
	}})

	code, body, ct := get(t, h, context.Background(), "/healthz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %+v", code, body)
	}
	if ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body.Checks != nil {
		t.Errorf("healthz reported checks: %v", body.Checks)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	down := func(context.Context) error { return errors.New("connection refused") }
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "all pass",
			checkers:   []Checker{{"postgres", pass}, {"llm", pass}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"postgres": "ok", "llm": "ok"},
		},
		{
			name:       "one fails",
			checkers:   []Checker{{"postgres", down}, {"llm", pass}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"postgres": "fail: connection refused", "llm": "ok"},
		},
		{
			name:       "all fail",
			checkers:   []Checker{{"postgres", down}, {"stt", down}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"postgres": "fail: connection refused", "stt": "fail: connection refused"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body, _ := get(t, New(tt.checkers...), context.Background(), "/readyz")
			if code != tt.wantCode || body.Status != tt.wantStatus {
				t.Errorf("readyz = %d %q, want %d %q", code, body.Status, tt.wantCode, tt.wantStatus)
			}
			if len(body.Checks) != len(tt.wantChecks) {
				t.Errorf("checks = %v, want %v", body.Checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if body.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, body.Checks[name], want)
				}
			}
		})
	}
}

func TestNew_CopiesCheckers(t *testing.T) {
	t.Parallel()
	cs := []Checker{{"postgres", pass}}
	h := New(cs...)
	cs[0] = Checker{"postgres", func(context.Context) error { return errors.New("swapped") }}

	if code, _, _ := get(t, h, context.Background(), "/readyz"); code != http.StatusOK {
		t.Errorf("readyz = %d; mutating the caller's slice changed the handler", code)
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "postgres", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code, body, _ := get(t, h, ctx, "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503", code)
	}
	if !strings.Contains(body.Checks["postgres"], "context canceled") {
		t.Errorf("postgres check = %q", body.Checks["postgres"])
	}
}

func TestReadyz_ChecksOverlap(t *testing.T) {
	t.Parallel()
	var running atomic.Int32
	both := make(chan struct{})
	check := func(ctx context.Context) error {
		if running.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if code, _, _ := get(t, New(Checker{"stt", check}, Checker{"tts", check}), ctx, "/readyz"); code != http.StatusOK {
		t.Errorf("readyz = %d; checks did not run concurrently", code)
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeGroup struct {
	healthy bool
	entries []resilience.EntryHealth
}

func (g fakeGroup) Healthy() bool                    { return g.healthy }
func (g fakeGroup) Health() []resilience.EntryHealth { return g.entries }

func TestCheckers(t *testing.T) {
	t.Parallel()

	open := fakeGroup{entries: []resilience.EntryHealth{
		{Name: "llm/openai", State: resilience.StateOpen},
		{Name: "llm/groq", State: resilience.StateOpen},
	}}
	tests := []struct {
		name    string
		checker Checker
		wantErr error
		mention []string
	}{
		{"pool up", PingCheck("postgres", fakePinger{}), nil, nil},
		{"pool down", PingCheck("postgres", fakePinger{err: errors.New("dial tcp: refused")}), nil, []string{"refused"}},
		{"group healthy", ProviderCheck("llm", fakeGroup{healthy: true}), nil, nil},
		{"group open", ProviderCheck("llm", open), ErrAllCircuitsOpen, []string{"llm/openai", "llm/groq"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.checker.Check(context.Background())
			if tt.mention == nil {
				if err != nil {
					t.Fatalf("Check: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Check succeeded, want failure")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			for _, m := range tt.mention {
				if !strings.Contains(err.Error(), m) {
					t.Errorf("err %q does not mention %q", err, m)
				}
			}
		})
	}
}
