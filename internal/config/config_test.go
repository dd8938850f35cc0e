package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/tickvox/internal/config"
	"github.com/MrWong99/tickvox/pkg/provider/llm"
	llmmock "github.com/MrWong99/tickvox/pkg/provider/llm/mock"
	"github.com/MrWong99/tickvox/pkg/provider/stt"
	sttmock "github.com/MrWong99/tickvox/pkg/provider/stt/mock"
	"github.com/MrWong99/tickvox/pkg/provider/tts"
	ttsmock "github.com/MrWong99/tickvox/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  read_timeout: 20s
  write_timeout: 90s

providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
    fallbacks:
      - name: anthropic
        api_key: ant-test
        model: claude-haiku
  stt:
    name: deepgram
    api_key: dg-test
    options:
      language: en
  tts:
    name: elevenlabs
    api_key: el-test

pipeline:
  transcription_timeout: 25s
  temperature: 0.2
  vocabulary: [WEB, Sprint]
  breaker:
    max_failures: 3
    reset_timeout: 10s

storage:
  postgres_dsn: "postgres://localhost/tickvox"
  retention_interval: 30m

auth:
  jwt_secret: s3cret
  issuer: tickets.example.com

rate_limit:
  enabled: true
  per_minute: 30

mcp:
  enabled: true
`

// ── Config loading ───────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Server.WriteTimeout != 90*time.Second {
		t.Errorf("write_timeout: got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("providers.llm: got %+v", cfg.Providers.LLM.ProviderEntry)
	}
	if len(cfg.Providers.LLM.Fallbacks) != 1 || cfg.Providers.LLM.Fallbacks[0].Name != "anthropic" {
		t.Errorf("providers.llm.fallbacks: got %+v", cfg.Providers.LLM.Fallbacks)
	}
	if got := cfg.Providers.STT.OptString("language"); got != "en" {
		t.Errorf("providers.stt.options.language: got %q", got)
	}
	if cfg.Pipeline.TranscriptionTimeout != 25*time.Second {
		t.Errorf("pipeline.transcription_timeout: got %v", cfg.Pipeline.TranscriptionTimeout)
	}
	if cfg.Pipeline.Temperature == nil || *cfg.Pipeline.Temperature != 0.2 {
		t.Errorf("pipeline.temperature: got %v", cfg.Pipeline.Temperature)
	}
	if cfg.Pipeline.Breaker.MaxFailures != 3 || cfg.Pipeline.Breaker.ResetTimeout != 10*time.Second {
		t.Errorf("pipeline.breaker: got %+v", cfg.Pipeline.Breaker)
	}
	if cfg.Storage.RetentionInterval != 30*time.Minute {
		t.Errorf("storage.retention_interval: got %v", cfg.Storage.RetentionInterval)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.PerMinute != 30 {
		t.Errorf("rate_limit: got %+v", cfg.RateLimit)
	}
	if !cfg.MCP.Enabled {
		t.Error("mcp.enabled: got false")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
auth:
  jwt_secret: x
webhooks: []
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected validation error for empty config, got nil")
	}
	if !strings.Contains(err.Error(), "providers.llm.name") {
		t.Errorf("error should mention providers.llm.name, got: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/tickvox.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()
	cfg := config.Config{Auth: config.AuthConfig{Disabled: true}}.WithDefaults()

	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Pipeline.TranscriptionTimeout != 30*time.Second ||
		cfg.Pipeline.InterpretationTimeout != 20*time.Second ||
		cfg.Pipeline.SynthesisTimeout != 15*time.Second {
		t.Errorf("pipeline timeouts: got %+v", cfg.Pipeline)
	}
	if cfg.Storage.RetentionInterval != time.Hour {
		t.Errorf("retention_interval: got %v", cfg.Storage.RetentionInterval)
	}
	if cfg.MCP.Path != "/mcp" {
		t.Errorf("mcp.path: got %q", cfg.MCP.Path)
	}
	if cfg.Auth.DevUser != "dev" {
		t.Errorf("auth.dev_user: got %q", cfg.Auth.DevUser)
	}

	disabled := config.Config{Storage: config.StorageConfig{RetentionInterval: -1}}.WithDefaults()
	if disabled.Storage.RetentionInterval != -1 {
		t.Errorf("negative retention_interval must be kept, got %v", disabled.Storage.RetentionInterval)
	}
}

func TestProviderSlot_Entries(t *testing.T) {
	t.Parallel()
	var empty config.ProviderSlot
	if got := empty.Entries(); got != nil {
		t.Errorf("Entries of empty slot: got %v, want nil", got)
	}

	slot := config.ProviderSlot{
		ProviderEntry: config.ProviderEntry{Name: "openai"},
		Fallbacks:     []config.ProviderEntry{{Name: "groq"}, {Name: "ollama"}},
	}
	got := slot.Entries()
	if len(got) != 3 || got[0].Name != "openai" || got[2].Name != "ollama" {
		t.Errorf("Entries: got %+v", got)
	}
}

func TestProviderEntry_OptDuration(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{"timeout": "1500ms", "idle": 7, "bad": "soon"}}
	tests := []struct {
		key  string
		want time.Duration
	}{
		{"timeout", 1500 * time.Millisecond},
		{"idle", 7 * time.Second},
		{"bad", 0},
		{"missing", 0},
	}
	for _, tc := range tests {
		if got := e.OptDuration(tc.key); got != tc.want {
			t.Errorf("OptDuration(%q): got %v, want %v", tc.key, got, tc.want)
		}
	}
}

func TestProviderEntry_OptInt(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{"seed": 42, "zero": 0, "text": "42"}}
	if n, ok := e.OptInt("seed"); !ok || n != 42 {
		t.Errorf("OptInt(seed) = %d, %v", n, ok)
	}
	if n, ok := e.OptInt("zero"); !ok || n != 0 {
		t.Errorf("OptInt(zero) = %d, %v", n, ok)
	}
	for _, key := range []string{"text", "missing"} {
		if _, ok := e.OptInt(key); ok {
			t.Errorf("OptInt(%q) reported a value", key)
		}
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.ProviderEntry
	reg.RegisterLLM("fake", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return &llmmock.Provider{}, nil
	})
	reg.RegisterSTT("fake", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	reg.RegisterTTS("fake", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })

	entry := config.ProviderEntry{Name: "fake", Model: "m1"}
	if _, err := reg.CreateLLM(entry); err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if gotEntry.Model != "m1" {
		t.Errorf("factory received %+v", gotEntry)
	}
	if _, err := reg.CreateSTT(entry); err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if _, err := reg.CreateTTS(entry); err != nil {
		t.Fatalf("CreateTTS: %v", err)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "missing"}

	if _, err := reg.CreateLLM(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM: got %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateSTT(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT: got %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateTTS(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS: got %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("bad key")
	reg.RegisterTTS("broken", func(config.ProviderEntry) (tts.Provider, error) { return nil, boom })

	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("CreateTTS: got %v, want %v", err, boom)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	for _, n := range []string{"whisper", "deepgram", "openai"} {
		reg.RegisterSTT(n, func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	}
	got := reg.Names("stt")
	want := []string{"deepgram", "openai", "whisper"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Names(stt): got %v, want %v", got, want)
	}
	if got := reg.Names("llm"); len(got) != 0 {
		t.Errorf("Names(llm): got %v, want empty", got)
	}
}

func TestRegistry_OverwriteRegistration(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	first := &llmmock.Provider{}
	second := &llmmock.Provider{}
	reg.RegisterLLM("p", func(config.ProviderEntry) (llm.Provider, error) { return first, nil })
	reg.RegisterLLM("p", func(config.ProviderEntry) (llm.Provider, error) { return second, nil })

	got, err := reg.CreateLLM(config.ProviderEntry{Name: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if got != second {
		t.Error("second registration should win")
	}
}
