package resilience

import (
	"context"

	"github.com/MrWong99/tickvox/pkg/provider/llm"
	"github.com/MrWong99/tickvox/pkg/provider/stt"
	"github.com/MrWong99/tickvox/pkg/provider/tts"
)

var (
	_ llm.Provider = (*LLMFallback)(nil)
	_ stt.Provider = (*STTFallback)(nil)
	_ tts.Provider = (*TTSFallback)(nil)
)

// LLMFallback is an llm.Provider that fails over across a group of backends.
type LLMFallback struct {
	*FallbackGroup[llm.Provider]
}

// NewLLMFallback returns an LLMFallback preferring primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, f.FallbackGroup, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities are the primary's, except JSON mode, which is claimed only
// if every backend has it since any of them may answer.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	caps := f.Primary().Capabilities()
	for _, m := range f.members[1:] {
		caps.SupportsJSONMode = caps.SupportsJSONMode && m.value.Capabilities().SupportsJSONMode
	}
	return caps
}

// STTFallback is an stt.Provider that fails over across a group of backends.
type STTFallback struct {
	*FallbackGroup[stt.Provider]
}

// NewSTTFallback returns an STTFallback preferring primary.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	return Do(ctx, f.FallbackGroup, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
}

// TTSFallback is a tts.Provider that fails over across a group of backends.
// Every backend gets the same VoiceProfile; one that does not know the ID is
// expected to fall back to its default voice.
type TTSFallback struct {
	*FallbackGroup[tts.Provider]
}

// NewTTSFallback returns a TTSFallback preferring primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	return Do(ctx, f.FallbackGroup, func(p tts.Provider) (tts.Audio, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices lists the voices of the first backend that answers.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return Do(ctx, f.FallbackGroup, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
