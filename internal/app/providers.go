package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/tickvox/internal/config"
	"github.com/MrWong99/tickvox/internal/observe"
	"github.com/MrWong99/tickvox/internal/resilience"
	"github.com/MrWong99/tickvox/pkg/provider/llm"
	"github.com/MrWong99/tickvox/pkg/provider/stt"
	"github.com/MrWong99/tickvox/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via [BuildProviders].
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// BuildProviders instantiates every configured provider through reg and
// wraps each slot in a fallback group with one circuit breaker per entry.
// Breaker transitions are logged and counted on m.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	b := cfg.Pipeline.Breaker
	fc := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  b.MaxFailures,
		ResetTimeout: b.ResetTimeout,
		HalfOpenMax:  b.HalfOpenMax,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			m.RecordBreakerTransition(context.Background(), name, to.String())
		},
	}}

	ps := &Providers{}

	llms, err := createAll("llm", cfg.Providers.LLM, reg.CreateLLM)
	if err != nil {
		return nil, err
	}
	if len(llms) > 0 {
		g := resilience.NewLLMFallback(llms[0].p, llms[0].label, fc)
		for _, e := range llms[1:] {
			g.AddFallback(e.label, e.p)
		}
		ps.LLM = g
	}

	stts, err := createAll("stt", cfg.Providers.STT, reg.CreateSTT)
	if err != nil {
		return nil, err
	}
	if len(stts) > 0 {
		g := resilience.NewSTTFallback(stts[0].p, stts[0].label, fc)
		for _, e := range stts[1:] {
			g.AddFallback(e.label, e.p)
		}
		ps.STT = g
	}

	ttss, err := createAll("tts", cfg.Providers.TTS, reg.CreateTTS)
	if err != nil {
		return nil, err
	}
	if len(ttss) > 0 {
		g := resilience.NewTTSFallback(ttss[0].p, ttss[0].label, fc)
		for _, e := range ttss[1:] {
			g.AddFallback(e.label, e.p)
		}
		ps.TTS = g
	}

	return ps, nil
}

type built[P any] struct {
	label string
	p     P
}

// createAll instantiates the primary and fallbacks of slot. Labels are
// "<kind>/<name>", suffixed with the position when a name repeats.
func createAll[P any](kind string, slot config.ProviderSlot, create func(config.ProviderEntry) (P, error)) ([]built[P], error) {
	var out []built[P]
	seen := make(map[string]bool)
	for i, e := range slot.Entries() {
		p, err := create(e)
		if err != nil {
			return nil, fmt.Errorf("create %s provider %q: %w", kind, e.Name, err)
		}
		label := kind + "/" + e.Name
		if seen[label] {
			label = fmt.Sprintf("%s#%d", label, i)
		}
		seen[label] = true
		out = append(out, built[P]{label: label, p: p})
		slog.Info("provider created", "kind", kind, "name", e.Name, "model", e.Model, "fallback", i > 0)
	}
	return out, nil
}
