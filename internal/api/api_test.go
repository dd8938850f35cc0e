package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/tickvox/internal/api"
	"github.com/MrWong99/tickvox/internal/executor"
	"github.com/MrWong99/tickvox/internal/gateway"
	"github.com/MrWong99/tickvox/internal/history"
	"github.com/MrWong99/tickvox/internal/orchestrator"
	"github.com/MrWong99/tickvox/internal/settings"
	"github.com/MrWong99/tickvox/pkg/provider/tts"
)

const secret = "test-secret"

var alice = executor.User{ID: "u-alice", Name: "alice", Email: "alice@example.com"}

// ─── Fakes ───────────────────────────────────────────────────────────────────

type fakeProcessor struct {
	mu     sync.Mutex
	inputs []orchestrator.Input
	users  []executor.User
	result orchestrator.Result
}

func (p *fakeProcessor) Process(_ context.Context, u executor.User, in orchestrator.Input) orchestrator.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, in)
	p.users = append(p.users, u)
	return p.result
}

type fakeSynth struct {
	err           error
	voice         string
	speed         float64
	providerVoice []tts.VoiceProfile
}

func (f *fakeSynth) TextToSpeech(_ context.Context, _, voiceID string, speed float64) (string, string, error) {
	f.voice, f.speed = voiceID, speed
	if f.err != nil {
		return "", "", f.err
	}
	return "UklGRg==", "audio/wav", nil
}

func (f *fakeSynth) Voices(context.Context) ([]tts.VoiceProfile, error) {
	return f.providerVoice, nil
}

// ─── Harness ─────────────────────────────────────────────────────────────────

type env struct {
	srv      http.Handler
	proc     *fakeProcessor
	settings *settings.MemStore
	history  *history.MemStore
}

func newEnv(t *testing.T, opts ...api.Option) *env {
	t.Helper()
	auth, err := api.NewAuthenticator(api.AuthConfig{Secret: secret, Issuer: "tickets"})
	if err != nil {
		t.Fatal(err)
	}
	e := &env{
		proc:     &fakeProcessor{result: orchestrator.Result{Success: true, Transcript: "help", Intent: "help", AttemptID: "a1"}},
		settings: settings.NewMemStore(),
		history:  history.NewMemStore(),
	}
	s, err := api.New(e.proc, e.settings, e.history, auth, opts...)
	if err != nil {
		t.Fatal(err)
	}
	e.srv = s.Handler()
	return e
}

func token(t *testing.T, u executor.User) string {
	t.Helper()
	tok, err := api.SignToken(secret, u, "tickets", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *env) do(t *testing.T, method, path, body string, u *executor.User) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, *u))
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

type errResp struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ─── Auth ────────────────────────────────────────────────────────────────────

func TestAuth(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	wrongSecret, _ := api.SignToken("other", alice, "tickets", time.Hour)
	expired, _ := api.SignToken(secret, alice, "tickets", -time.Hour)
	wrongIssuer, _ := api.SignToken(secret, alice, "elsewhere", time.Hour)
	noSubject, _ := api.SignToken(secret, executor.User{Name: "ghost"}, "tickets", time.Hour)

	for name, header := range map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc",
		"wrong secret": "Bearer " + wrongSecret,
		"expired":      "Bearer " + expired,
		"wrong issuer": "Bearer " + wrongIssuer,
		"no subject":   "Bearer " + noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest("GET", "/api/voice/settings", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			e.srv.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if body := decode[errResp](t, rec); body.Success || body.Error != "Unauthorized" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestAuth_Verify(t *testing.T) {
	t.Parallel()
	auth, err := api.NewAuthenticator(api.AuthConfig{Secret: secret})
	if err != nil {
		t.Fatal(err)
	}
	u, err := auth.Verify(token(t, alice))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if u != alice {
		t.Errorf("user = %+v, want %+v", u, alice)
	}
}

func TestAuth_Disabled(t *testing.T) {
	t.Parallel()
	auth, err := api.NewAuthenticator(api.AuthConfig{Disabled: true, DevUser: "dev"})
	if err != nil {
		t.Fatal(err)
	}
	proc := &fakeProcessor{}
	s, err := api.New(proc, settings.NewMemStore(), history.NewMemStore(), auth)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", "/api/voice/command", strings.NewReader(`{"type":"text","content":"help"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if proc.users[0].ID != "dev" {
		t.Errorf("user = %+v, want dev", proc.users[0])
	}
}

func TestNewAuthenticator_RequiresSecret(t *testing.T) {
	t.Parallel()
	if _, err := api.NewAuthenticator(api.AuthConfig{}); err == nil {
		t.Fatal("expected error without secret")
	}
}

// ─── Commands ────────────────────────────────────────────────────────────────

func TestCommand_Text(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	rec := e.do(t, "POST", "/api/voice/command",
		`{"type":"text","content":"help","context":{"page":"/tickets"},"requireWakeWord":true}`, &alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	res := decode[orchestrator.Result](t, rec)
	if !res.Success || res.AttemptID != "a1" {
		t.Errorf("result = %+v", res)
	}

	in := e.proc.inputs[0]
	if in.Type != orchestrator.InputText || in.Content != "help" || !in.RequireWakeWord || in.Context["page"] != "/tickets" {
		t.Errorf("input = %+v", in)
	}
	if e.proc.users[0] != alice {
		t.Errorf("user = %+v", e.proc.users[0])
	}
}

func TestCommand_FailedAttemptIs200(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.proc.result = orchestrator.Result{Error: "Unknown intent: dance", AttemptID: "a2"}

	rec := e.do(t, "POST", "/api/voice/command", `{"type":"text","content":"dance"}`, &alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if res := decode[orchestrator.Result](t, rec); res.Success || res.Error != "Unknown intent: dance" {
		t.Errorf("result = %+v", res)
	}
}

func TestCommand_RecordFailureIs500(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.proc.result = orchestrator.Result{Error: orchestrator.MsgRecordFailed}

	rec := e.do(t, "POST", "/api/voice/command", `{"type":"text","content":"help"}`, &alice)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCommand_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		status  int
		wantErr string
	}{
		{"missing type", `{"content":"help"}`, http.StatusBadRequest, "type is required"},
		{"bad type", `{"type":"video","content":"x"}`, http.StatusBadRequest, "type must be one of: audio text"},
		{"missing content", `{"type":"audio"}`, http.StatusBadRequest, "content is required"},
		{"unknown field", `{"type":"text","content":"x","extra":1}`, http.StatusBadRequest, "Invalid JSON body"},
		{"malformed", `{"type":`, http.StatusBadRequest, "Invalid JSON body"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t)
			rec := e.do(t, "POST", "/api/voice/command", tc.body, &alice)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if body := decode[errResp](t, rec); body.Error != tc.wantErr {
				t.Errorf("error = %q, want %q", body.Error, tc.wantErr)
			}
			if len(e.proc.inputs) != 0 {
				t.Error("processor must not run for invalid requests")
			}
		})
	}
}

func TestCommand_BodyTooLarge(t *testing.T) {
	t.Parallel()
	e := newEnv(t, api.WithMaxBodyBytes(64))
	body := `{"type":"audio","content":"` + strings.Repeat("A", 200) + `"}`
	rec := e.do(t, "POST", "/api/voice/command", body, &alice)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestCommand_RateLimited(t *testing.T) {
	t.Parallel()
	e := newEnv(t, api.WithRateLimiter(api.NewRateLimiter(true, 1, 1)))
	bob := executor.User{ID: "u-bob", Name: "bob"}

	if rec := e.do(t, "POST", "/api/voice/command", `{"type":"text","content":"help"}`, &alice); rec.Code != http.StatusOK {
		t.Fatalf("first call status = %d", rec.Code)
	}
	rec := e.do(t, "POST", "/api/voice/command", `{"type":"text","content":"help"}`, &alice)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second call status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if rec := e.do(t, "POST", "/api/voice/command", `{"type":"text","content":"help"}`, &bob); rec.Code != http.StatusOK {
		t.Errorf("other user status = %d, buckets must be per user", rec.Code)
	}
	if rec := e.do(t, "GET", "/api/voice/history", "", &alice); rec.Code != http.StatusOK {
		t.Errorf("history status = %d, reads must not be limited", rec.Code)
	}
}

func TestRateLimiter_Configure(t *testing.T) {
	t.Parallel()
	l := api.NewRateLimiter(false, 1, 1)
	for range 5 {
		if ok, _ := l.Allow("u"); !ok {
			t.Fatal("disabled limiter must allow everything")
		}
	}
	l.Configure(true, 60, 2)
	okCount := 0
	for range 3 {
		if ok, _ := l.Allow("u"); ok {
			okCount++
		}
	}
	if okCount != 2 {
		t.Errorf("allowed %d of 3 with burst 2", okCount)
	}
}

// ─── History ─────────────────────────────────────────────────────────────────

func seedHistory(t *testing.T, s *history.MemStore, userID string, n int, status history.Status, intent string) {
	t.Helper()
	ctx := context.Background()
	for i := range n {
		id := userID + "-" + intent + "-" + string(rune('a'+i))
		if err := s.Append(ctx, history.Attempt{ID: id, UserID: userID, Transcript: "x", Status: history.StatusProcessing}); err != nil {
			t.Fatal(err)
		}
		in := intent
		if err := s.UpdateTerminal(ctx, id, history.Terminal{Status: status, Intent: &in}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestHistory_List(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	seedHistory(t, e.history, alice.ID, 3, history.StatusSuccessful, "find_tickets")
	seedHistory(t, e.history, alice.ID, 2, history.StatusFailed, "navigate")
	seedHistory(t, e.history, "u-bob", 4, history.StatusSuccessful, "help")

	type page struct {
		Success    bool               `json:"success"`
		Items      []history.Attempt  `json:"items"`
		Pagination history.Pagination `json:"pagination"`
	}

	rec := e.do(t, "GET", "/api/voice/history?page=1&limit=2", "", &alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	p := decode[page](t, rec)
	if len(p.Items) != 2 || p.Pagination.Total != 5 || p.Pagination.TotalPages != 3 {
		t.Errorf("page = %+v", p.Pagination)
	}

	rec = e.do(t, "GET", "/api/voice/history?status=failed&intent=navigate", "", &alice)
	p = decode[page](t, rec)
	if p.Pagination.Total != 2 {
		t.Errorf("filtered total = %d, want 2", p.Pagination.Total)
	}
	for _, a := range p.Items {
		if a.Status != history.StatusFailed || a.UserID != alice.ID {
			t.Errorf("item = %+v", a)
		}
	}

	rec = e.do(t, "GET", "/api/voice/history?from=2000-01-01&to="+time.Now().UTC().Format(time.DateOnly), "", &alice)
	if p = decode[page](t, rec); p.Pagination.Total != 5 {
		t.Errorf("date-bounded total = %d, want 5", p.Pagination.Total)
	}
}

func TestHistory_EmptyListIsArray(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	rec := e.do(t, "GET", "/api/voice/history", "", &alice)
	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("body = %s, want empty items array", rec.Body)
	}
}

func TestHistory_BadQuery(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	for _, q := range []string{"page=x", "limit=ten", "status=done", "from=yesterday", "to=13/01/2026"} {
		if rec := e.do(t, "GET", "/api/voice/history?"+q, "", &alice); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestHistory_GetDeleteClear(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	seedHistory(t, e.history, alice.ID, 3, history.StatusSuccessful, "help")
	seedHistory(t, e.history, "u-bob", 1, history.StatusSuccessful, "help")

	if rec := e.do(t, "GET", "/api/voice/history/u-alice-help-a", "", &alice); rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}
	if rec := e.do(t, "GET", "/api/voice/history/u-bob-help-a", "", &alice); rec.Code != http.StatusNotFound {
		t.Errorf("foreign get status = %d, want 404", rec.Code)
	}
	if rec := e.do(t, "DELETE", "/api/voice/history/u-bob-help-a", "", &alice); rec.Code != http.StatusNotFound {
		t.Errorf("foreign delete status = %d, want 404", rec.Code)
	}
	if rec := e.do(t, "DELETE", "/api/voice/history/u-alice-help-a", "", &alice); rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}

	rec := e.do(t, "DELETE", "/api/voice/history", "", &alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	if body := decode[map[string]any](t, rec); body["deleted"] != float64(2) {
		t.Errorf("deleted = %v, want 2", body["deleted"])
	}
	if _, err := e.history.Get(context.Background(), "u-bob", "u-bob-help-a"); err != nil {
		t.Errorf("other users' history must survive: %v", err)
	}
}

// ─── Settings ────────────────────────────────────────────────────────────────

type settingsResp struct {
	Success  bool                   `json:"success"`
	Settings settings.VoiceSettings `json:"settings"`
}

func TestSettings_GetDefaults(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	rec := e.do(t, "GET", "/api/voice/settings", "", &alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[settingsResp](t, rec).Settings
	want := settings.Defaults()
	if got.WakeWord != want.WakeWord || got.VoiceType != want.VoiceType || got.Sensitivity != want.Sensitivity {
		t.Errorf("settings = %+v, want defaults", got)
	}
}

func TestSettings_UpdateAndReset(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	rec := e.do(t, "PUT", "/api/voice/settings",
		`{"wakeWord":"Computer","sensitivity":5,"voiceType":"nova","customCommands":[{"phrase":"my bugs","action":"find_tickets","entities":{"type":"bug"}}],"privacy":{"storeHistory":false}}`, &alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	got := decode[settingsResp](t, rec).Settings
	if got.WakeWord != "Computer" || got.VoiceType != "nova" {
		t.Errorf("settings = %+v", got)
	}
	if got.Sensitivity != settings.MaxSensitivity {
		t.Errorf("sensitivity = %v, want clamped to %v", got.Sensitivity, settings.MaxSensitivity)
	}
	if len(got.CustomCommands) != 1 || got.CustomCommands[0].Entities["type"] != "bug" {
		t.Errorf("custom commands = %+v", got.CustomCommands)
	}
	if got.Privacy.StoreHistory || !got.Privacy.FilterSensitiveInfo {
		t.Errorf("privacy = %+v, want only storeHistory changed", got.Privacy)
	}

	rec = e.do(t, "POST", "/api/voice/settings/reset", "", &alice)
	if got := decode[settingsResp](t, rec).Settings; got.WakeWord != settings.Defaults().WakeWord {
		t.Errorf("after reset wake word = %q", got.WakeWord)
	}
}

func TestSettings_UpdateRejected(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown voice", `{"voiceType":"robot"}`, "Unknown voice type: robot"},
		{"blank wake word", `{"wakeWord":"   "}`, "wake word must not be empty"},
		{"custom command without action", `{"customCommands":[{"phrase":"x"}]}`, "action is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t)
			rec := e.do(t, "PUT", "/api/voice/settings", tc.body, &alice)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if body := decode[errResp](t, rec); body.Error != tc.wantErr {
				t.Errorf("error = %q, want %q", body.Error, tc.wantErr)
			}
		})
	}
}

// ─── Voices ──────────────────────────────────────────────────────────────────

func TestVoices(t *testing.T) {
	t.Parallel()
	synth := &fakeSynth{providerVoice: []tts.VoiceProfile{{ID: "21m00", Name: "Rachel"}}}
	e := newEnv(t, api.WithSynthesizer(synth))

	rec := e.do(t, "GET", "/api/voice/voices", "", &alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Voices         []struct{ ID, Name string } `json:"voices"`
		ProviderVoices []struct{ ID, Name string } `json:"providerVoices"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Voices) != len(settings.ListVoiceTypes()) || body.Voices[0].ID != "alloy" || body.Voices[0].Name != "Alloy" {
		t.Errorf("voices = %+v", body.Voices)
	}
	if len(body.ProviderVoices) != 1 || body.ProviderVoices[0].Name != "Rachel" {
		t.Errorf("provider voices = %+v", body.ProviderVoices)
	}
}

func TestVoiceTest(t *testing.T) {
	t.Parallel()

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		if rec := e.do(t, "POST", "/api/voice/test", `{"text":"hi"}`, &alice); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("uses stored voice", func(t *testing.T) {
		t.Parallel()
		synth := &fakeSynth{}
		e := newEnv(t, api.WithSynthesizer(synth))
		voiceType, speed := "echo", 1.5
		if _, err := e.settings.Update(context.Background(), alice.ID, settings.Patch{VoiceType: &voiceType, VoiceSpeed: &speed}); err != nil {
			t.Fatal(err)
		}

		rec := e.do(t, "POST", "/api/voice/test", `{"text":"This is a test"}`, &alice)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
		}
		if synth.voice != "echo" || synth.speed != 1.5 {
			t.Errorf("voice = %q speed = %v", synth.voice, synth.speed)
		}
		body := decode[map[string]any](t, rec)
		if body["audioData"] != "UklGRg==" || body["audioMimeType"] != "audio/wav" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("explicit voice", func(t *testing.T) {
		t.Parallel()
		synth := &fakeSynth{}
		e := newEnv(t, api.WithSynthesizer(synth))
		if rec := e.do(t, "POST", "/api/voice/test", `{"text":"hi","voiceId":"onyx","speed":0.75}`, &alice); rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if synth.voice != "onyx" || synth.speed != 0.75 {
			t.Errorf("voice = %q speed = %v", synth.voice, synth.speed)
		}
	})

	t.Run("invalid speed", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, api.WithSynthesizer(&fakeSynth{}))
		if rec := e.do(t, "POST", "/api/voice/test", `{"text":"hi","speed":9}`, &alice); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("synthesis failure", func(t *testing.T) {
		t.Parallel()
		synth := &fakeSynth{err: &gateway.SynthesisError{Reason: "synthesis timed out after 15s"}}
		e := newEnv(t, api.WithSynthesizer(synth))
		rec := e.do(t, "POST", "/api/voice/test", `{"text":"hi"}`, &alice)
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", rec.Code)
		}
		if body := decode[errResp](t, rec); body.Error != "synthesis timed out after 15s" {
			t.Errorf("error = %q", body.Error)
		}
	})
}

// ─── Extra routes ────────────────────────────────────────────────────────────

func TestExtraRoutes(t *testing.T) {
	t.Parallel()
	var seen executor.User
	authed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = api.UserFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	public := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	e := newEnv(t, api.WithRoute("/mcp", authed), api.WithPublicRoute("GET /healthz", public))

	if rec := e.do(t, "POST", "/mcp", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated /mcp status = %d, want 401", rec.Code)
	}
	if rec := e.do(t, "POST", "/mcp", "", &alice); rec.Code != http.StatusNoContent || seen.ID != alice.ID {
		t.Errorf("authenticated /mcp status = %d user = %+v", rec.Code, seen)
	}
	if rec := e.do(t, "GET", "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("public route status = %d", rec.Code)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()
	if _, err := api.New(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
