package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/tickvox/pkg/provider/llm"
	"github.com/MrWong99/tickvox/pkg/provider/stt"
	"github.com/MrWong99/tickvox/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when a config entry names a provider
// no factory was registered for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factories is the table for one provider kind.
type factories[P any] struct {
	kind string
	mu   sync.RWMutex
	m    map[string]Factory[P]
}

func newFactories[P any](kind string) *factories[P] {
	return &factories[P]{kind: kind, m: make(map[string]Factory[P])}
}

func (f *factories[P]) register(name string, fn Factory[P]) {
	f.mu.Lock()
	f.m[name] = fn
	f.mu.Unlock()
}

func (f *factories[P]) create(e ProviderEntry) (P, error) {
	f.mu.RLock()
	fn, ok := f.m[e.Name]
	f.mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, e.Name)
	}
	return fn(e)
}

func (f *factories[P]) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.m))
}

// Registry resolves the provider names used in config to constructors.
// Registering a name again replaces the earlier factory.
type Registry struct {
	llm *factories[llm.Provider]
	stt *factories[stt.Provider]
	tts *factories[tts.Provider]
}

func NewRegistry() *Registry {
	return &Registry{
		llm: newFactories[llm.Provider]("llm"),
		stt: newFactories[stt.Provider]("stt"),
		tts: newFactories[tts.Provider]("tts"),
	}
}

func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) { r.llm.register(name, f) }
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) { r.stt.register(name, f) }
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) { r.tts.register(name, f) }

// CreateLLM builds the LLM provider entry names.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) { return r.llm.create(entry) }

// CreateSTT builds the STT provider entry names.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) { return r.stt.create(entry) }

// CreateTTS builds the TTS provider entry names.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) { return r.tts.create(entry) }

// Names lists the registered names of kind ("llm", "stt" or "tts"),
// sorted. An unknown kind has none.
func (r *Registry) Names(kind string) []string {
	switch kind {
	case "llm":
		return r.llm.names()
	case "stt":
		return r.stt.names()
	case "tts":
		return r.tts.names()
	}
	return nil
}
