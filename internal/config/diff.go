package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (providers, storage, auth, listen address) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	RateLimitChanged bool
	NewRateLimit     RateLimitConfig

	// RestartRequired lists the top-level sections that changed but cannot
	// be applied at runtime.
	RestartRequired []string
}

// Empty reports whether d carries no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.RateLimitChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.RateLimit != new.RateLimit {
		d.RateLimitChanged = true
		d.NewRateLimit = new.RateLimit
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !serverEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !pipelineEqual(old.Pipeline, new.Pipeline) {
		d.RestartRequired = append(d.RestartRequired, "pipeline")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.Auth != new.Auth {
		d.RestartRequired = append(d.RestartRequired, "auth")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

func serverEqual(a, b ServerConfig) bool {
	if (a.TLS == nil) != (b.TLS == nil) {
		return false
	}
	if a.TLS != nil && *a.TLS != *b.TLS {
		return false
	}
	a.TLS, b.TLS = nil, nil
	return a == b
}

func providersEqual(a, b ProvidersConfig) bool {
	return slotEqual(a.LLM, b.LLM) && slotEqual(a.STT, b.STT) && slotEqual(a.TTS, b.TTS)
}

func slotEqual(a, b ProviderSlot) bool {
	ea, eb := a.Entries(), b.Entries()
	if len(ea) != len(eb) {
		return false
	}
	for i := range ea {
		if !entryEqual(ea[i], eb[i]) {
			return false
		}
	}
	return true
}

// entryEqual compares the scalar fields and the string form of Options.
// Options values are decoded YAML scalars, so formatting them is stable.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, va := range a.Options {
		vb, ok := b.Options[k]
		if !ok || optString(va) != optString(vb) {
			return false
		}
	}
	return true
}

func pipelineEqual(a, b PipelineConfig) bool {
	if a.TranscriptionTimeout != b.TranscriptionTimeout ||
		a.InterpretationTimeout != b.InterpretationTimeout ||
		a.SynthesisTimeout != b.SynthesisTimeout ||
		a.Language != b.Language ||
		a.CustomCommandThreshold != b.CustomCommandThreshold ||
		a.Breaker != b.Breaker {
		return false
	}
	if (a.Temperature == nil) != (b.Temperature == nil) || (a.Temperature != nil && *a.Temperature != *b.Temperature) {
		return false
	}
	if len(a.Vocabulary) != len(b.Vocabulary) {
		return false
	}
	for i := range a.Vocabulary {
		if a.Vocabulary[i] != b.Vocabulary[i] {
			return false
		}
	}
	return true
}
