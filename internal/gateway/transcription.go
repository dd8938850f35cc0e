package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/tickvox/internal/observe"
	"github.com/MrWong99/tickvox/pkg/audio"
	"github.com/MrWong99/tickvox/pkg/provider/stt"
)

// TranscriberOption configures a [Transcriber].
type TranscriberOption func(*Transcriber)

// WithTranscriptionTimeout bounds each Transcribe call. Non-positive values
// keep the default.
func WithTranscriptionTimeout(d time.Duration) TranscriberOption {
	return func(t *Transcriber) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithLanguage sets the recognition language passed to the provider.
func WithLanguage(lang string) TranscriberOption {
	return func(t *Transcriber) { t.language = lang }
}

// WithVocabulary sets a biasing prompt (e.g. project names) sent with every
// clip to providers that support it.
func WithVocabulary(prompt string) TranscriberOption {
	return func(t *Transcriber) { t.prompt = prompt }
}

// WithTranscriberMetrics overrides the metrics sink.
func WithTranscriberMetrics(m *observe.Metrics) TranscriberOption {
	return func(t *Transcriber) { t.metrics = m }
}

// Transcriber turns a base64 audio payload into text.
type Transcriber struct {
	provider stt.Provider
	name     string
	timeout  time.Duration
	language string
	prompt   string
	metrics  *observe.Metrics
}

// NewTranscriber returns a Transcriber backed by provider. name labels the
// provider in telemetry.
func NewTranscriber(provider stt.Provider, name string, opts ...TranscriberOption) *Transcriber {
	t := &Transcriber{
		provider: provider,
		name:     name,
		timeout:  DefaultTranscriptionTimeout,
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transcribe decodes audioBase64 (raw base64 or a data URI) and returns the
// recognised text. format names the container ("wav", "webm", ...); when
// empty it is taken from the data URI's MIME type. Raw PCM is wrapped in a
// WAV container at the speech sample rate before upload.
//
// All failures are [*TranscriptionError].
func (t *Transcriber) Transcribe(ctx context.Context, audioBase64, format string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "gateway.transcribe")
	defer span.End()

	clip, mime, err := audio.Decode(audioBase64)
	if err != nil {
		observe.RecordError(span, err)
		return "", &TranscriptionError{Reason: "Invalid audio payload", Err: err}
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = audio.ContainerFromMIME(mime)
	}
	if format == "" {
		format = audio.ContainerWebM
	}
	if format == audio.ContainerPCM {
		clip = audio.EncodeWAV(clip, audio.SpeechPCM)
		format = audio.ContainerWAV
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	res, err := t.provider.Transcribe(callCtx, stt.Request{
		Audio:    clip,
		Format:   format,
		Language: t.language,
		Prompt:   t.prompt,
	})
	recordStage(ctx, callCtx, t.metrics, observe.StageSTT, t.name, start, err)

	if err != nil {
		observe.RecordError(span, err)
		reason, marker := failureReason(ctx, callCtx, StageTranscription, t.timeout, "Failed to transcribe audio")
		observe.Logger(ctx).Warn("transcription failed", "provider", t.name, "err", err)
		return "", &TranscriptionError{Reason: reason, Err: wrapCause(marker, err)}
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		err := errors.New("gateway: empty transcript")
		observe.RecordError(span, err)
		return "", &TranscriptionError{Reason: "No speech detected", Err: err}
	}
	return text, nil
}
