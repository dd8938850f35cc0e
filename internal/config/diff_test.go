package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/tickvox/internal/config"
)

func baseConfig() *config.Config {
	temp := 0.1
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo, ListenAddr: ":8080"},
		Providers: config.ProvidersConfig{
			LLM: config.ProviderSlot{
				ProviderEntry: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini", Options: map[string]any{"timeout": "10s"}},
			},
		},
		Pipeline: config.PipelineConfig{
			TranscriptionTimeout: 30 * time.Second,
			Temperature:          &temp,
			Vocabulary:           []string{"WEB"},
		},
		RateLimit: config.RateLimitConfig{Enabled: true, PerMinute: 20},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level alone must not require a restart, got %v", d.RestartRequired)
	}
}

func TestDiff_RateLimitChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.RateLimit.Burst = 5

	d := config.Diff(old, new)
	if !d.RateLimitChanged {
		t.Fatal("expected RateLimitChanged=true")
	}
	if d.NewRateLimit.Burst != 5 {
		t.Errorf("NewRateLimit: got %+v", d.NewRateLimit)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9090" }, "server"},
		{"tls added", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "a", KeyFile: "b"} }, "server"},
		{"model", func(c *config.Config) { c.Providers.LLM.Model = "gpt-4o" }, "providers"},
		{"provider option", func(c *config.Config) { c.Providers.LLM.Options = map[string]any{"timeout": "20s"} }, "providers"},
		{"fallback added", func(c *config.Config) {
			c.Providers.LLM.Fallbacks = []config.ProviderEntry{{Name: "groq"}}
		}, "providers"},
		{"timeout", func(c *config.Config) { c.Pipeline.TranscriptionTimeout = time.Minute }, "pipeline"},
		{"temperature", func(c *config.Config) { c.Pipeline.Temperature = nil }, "pipeline"},
		{"vocabulary", func(c *config.Config) { c.Pipeline.Vocabulary = []string{"APP"} }, "pipeline"},
		{"dsn", func(c *config.Config) { c.Storage.PostgresDSN = "postgres://db" }, "storage"},
		{"auth", func(c *config.Config) { c.Auth.JWTSecret = "rotated" }, "auth"},
		{"mcp", func(c *config.Config) { c.MCP.Enabled = true }, "mcp"},
		{"telemetry", func(c *config.Config) { c.Telemetry.SampleRatio = 0.1 }, "telemetry"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tc.mutate(new)
			d := config.Diff(old, new)
			if !slices.Contains(d.RestartRequired, tc.want) {
				t.Errorf("RestartRequired: got %v, want it to contain %q", d.RestartRequired, tc.want)
			}
			if d.LogLevelChanged || d.RateLimitChanged {
				t.Errorf("unexpected hot-reload change: %+v", d)
			}
		})
	}
}
