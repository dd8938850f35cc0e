package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"openai", "deepgram", "whisper"},
	"tts": {"openai", "elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
// An empty document yields an empty config, which fails validation because
// no interpretation provider is configured.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must not be negative"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, fmt.Errorf("server.tls requires both cert_file and key_file"))
	}

	// Providers. Interpretation is mandatory; audio stages are optional and
	// the service degrades to text commands without STT and silent replies
	// without TTS.
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, fmt.Errorf("providers.llm.name is required"))
	}
	errs = append(errs, validateSlot("llm", cfg.Providers.LLM)...)
	errs = append(errs, validateSlot("stt", cfg.Providers.STT)...)
	errs = append(errs, validateSlot("tts", cfg.Providers.TTS)...)
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; only text commands will be accepted")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; responses will not be spoken")
	}

	// Pipeline
	for name, d := range map[string]time.Duration{
		"pipeline.transcription_timeout":  cfg.Pipeline.TranscriptionTimeout,
		"pipeline.interpretation_timeout": cfg.Pipeline.InterpretationTimeout,
		"pipeline.synthesis_timeout":      cfg.Pipeline.SynthesisTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if t := cfg.Pipeline.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("pipeline.temperature %.2f is out of range [0, 2]", *t))
	}
	if th := cfg.Pipeline.CustomCommandThreshold; th < 0 || th > 1 {
		errs = append(errs, fmt.Errorf("pipeline.custom_command_threshold %.2f is out of range [0, 1]", th))
	}

	// Storage
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; settings and history are kept in memory only")
	}

	// Auth
	if !cfg.Auth.Disabled && cfg.Auth.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("auth.jwt_secret is required unless auth.disabled is set"))
	}
	if cfg.Auth.Disabled {
		slog.Warn("auth is disabled; every request is attributed to the dev user", "dev_user", cfg.Auth.DevUser)
	}

	// Rate limit
	if rl := cfg.RateLimit; rl.Enabled {
		if rl.PerMinute <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.per_minute must be positive when rate_limit.enabled is set"))
		}
		if rl.Burst < 0 {
			errs = append(errs, fmt.Errorf("rate_limit.burst must not be negative"))
		}
	}

	// Telemetry
	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio %.2f is out of range [0, 1]", r))
	}

	return errors.Join(errs...)
}

func validateSlot(kind string, slot ProviderSlot) []error {
	var errs []error
	if slot.Name == "" && len(slot.Fallbacks) > 0 {
		errs = append(errs, fmt.Errorf("providers.%s.fallbacks requires a primary providers.%s.name", kind, kind))
	}
	validateProviderName(kind, slot.Name)
	for i, fb := range slot.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
			continue
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
