// Package gateway wraps the external speech-to-text, intent extraction and
// text-to-speech capabilities behind three small adapters used by the command
// orchestrator.
//
// Every call is bounded by its own timeout. Failures are returned as typed
// errors ([*TranscriptionError], [*InterpretationError], [*SynthesisError])
// whose Error text is a short, user-presentable reason. The underlying
// provider error stays reachable through errors.Unwrap for logging but is
// never part of the message.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/tickvox/internal/observe"
)

// Stage names used in timeout messages and telemetry.
const (
	StageTranscription  = "transcription"
	StageInterpretation = "interpretation"
	StageSynthesis      = "synthesis"
)

// Default per-call timeouts.
const (
	DefaultTranscriptionTimeout  = 30 * time.Second
	DefaultInterpretationTimeout = 20 * time.Second
	DefaultSynthesisTimeout      = 15 * time.Second
)

// TranscriptionError is returned by [Transcriber.Transcribe].
type TranscriptionError struct {
	Reason string
	Err    error
}

func (e *TranscriptionError) Error() string { return e.Reason }
func (e *TranscriptionError) Unwrap() error { return e.Err }

// InterpretationError is returned by [Interpreter.Interpret].
type InterpretationError struct {
	Reason string
	Err    error
}

func (e *InterpretationError) Error() string { return e.Reason }
func (e *InterpretationError) Unwrap() error { return e.Err }

// SynthesisError is returned by [Synthesizer.TextToSpeech].
type SynthesisError struct {
	Reason string
	Err    error
}

func (e *SynthesisError) Error() string { return e.Reason }
func (e *SynthesisError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a gateway failure caused by the stage's
// own deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, errStageTimeout)
}

var errStageTimeout = errors.New("gateway: stage timed out")

// failureReason maps the outcome of a bounded call to the message recorded on
// the attempt. callCtx is the context derived with the stage timeout, parent
// the caller's context.
func failureReason(parent, callCtx context.Context, stage string, timeout time.Duration, generic string) (string, error) {
	switch {
	case parent.Err() != nil:
		return stage + " cancelled", parent.Err()
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("%s timed out after %s", stage, timeout), errStageTimeout
	default:
		return generic, nil
	}
}

// wrapCause joins the stage marker (if any) with the provider error so both
// errors.Is(err, ...) checks keep working.
func wrapCause(marker, cause error) error {
	if marker == nil {
		return cause
	}
	if cause == nil {
		return marker
	}
	return errors.Join(marker, cause)
}

// recordStage records a provider call that began at start. A call that ran
// past callCtx's deadline counts as a timeout even when the provider error
// does not wrap it.
func recordStage(ctx, callCtx context.Context, m *observe.Metrics, stage, provider string, start time.Time, err error) {
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = errors.Join(callCtx.Err(), err)
	}
	m.RecordStage(ctx, stage, provider, time.Since(start), err)
}
