package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/tickvox/internal/observe"
	"github.com/MrWong99/tickvox/pkg/audio"
	"github.com/MrWong99/tickvox/pkg/provider/tts"
)

// SynthesizerOption configures a [Synthesizer].
type SynthesizerOption func(*Synthesizer)

// WithSynthesisTimeout bounds each TextToSpeech call. Non-positive values keep
// the default.
func WithSynthesisTimeout(d time.Duration) SynthesizerOption {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSynthesizerMetrics overrides the metrics sink.
func WithSynthesizerMetrics(m *observe.Metrics) SynthesizerOption {
	return func(s *Synthesizer) { s.metrics = m }
}

// Synthesizer renders response text as speech and returns it base64 encoded.
type Synthesizer struct {
	provider tts.Provider
	name     string
	timeout  time.Duration
	metrics  *observe.Metrics
}

// NewSynthesizer returns a Synthesizer backed by provider. name labels the
// provider in telemetry.
func NewSynthesizer(provider tts.Provider, name string, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		provider: provider,
		name:     name,
		timeout:  DefaultSynthesisTimeout,
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TextToSpeech synthesises text with voiceID at the given speed (0 leaves the
// provider default) and returns the base64 encoded clip together with its MIME
// type. Raw PCM output is wrapped in a WAV container so clients can play it
// directly.
//
// All failures are [*SynthesisError].
func (s *Synthesizer) TextToSpeech(ctx context.Context, text, voiceID string, speed float64) (string, string, error) {
	ctx, span := observe.StartSpan(ctx, "gateway.synthesize")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", &SynthesisError{Reason: "Nothing to synthesize", Err: errors.New("gateway: empty text")}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	clip, err := s.provider.Synthesize(callCtx, text, tts.VoiceProfile{ID: voiceID, SpeedFactor: speed})
	recordStage(ctx, callCtx, s.metrics, observe.StageTTS, s.name, start, err)

	if err != nil {
		observe.RecordError(span, err)
		reason, marker := failureReason(ctx, callCtx, StageSynthesis, s.timeout, "Failed to synthesize speech")
		return "", "", &SynthesisError{Reason: reason, Err: wrapCause(marker, err)}
	}

	if len(clip.Data) == 0 {
		err := errors.New("gateway: provider returned no audio")
		observe.RecordError(span, err)
		return "", "", &SynthesisError{Reason: "Failed to synthesize speech", Err: err}
	}

	data, container := clip.Data, clip.Format.Container
	if clip.Format.IsPCM() {
		data = audio.EncodeWAV(data, clip.Format)
		container = audio.ContainerWAV
	}
	if container == "" {
		container = audio.ContainerWAV
	}
	return audio.EncodeBase64(data), audio.MIMEType(container), nil
}

// Voices lists the voices offered by the synthesis provider.
func (s *Synthesizer) Voices(ctx context.Context) ([]tts.VoiceProfile, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.provider.ListVoices(callCtx)
}
