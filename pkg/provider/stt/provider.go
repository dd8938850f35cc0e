// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., the OpenAI
// transcription API or a local whisper.cpp server) and exposes a uniform
// request/response interface. A voice command is always a complete, short
// recording, so providers receive the whole encoded clip at once and return a
// single authoritative Transcript.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Request describes one recorded clip to transcribe.
type Request struct {
	// Audio holds the encoded audio bytes exactly as captured by the client
	// (e.g., a WAV or WebM container).
	Audio []byte

	// Format is the container format of Audio without a leading dot
	// (e.g., "wav", "webm", "mp3"). Providers use it to derive a file name and
	// MIME type for upload.
	Format string

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string

	// Prompt is an optional vocabulary hint (e.g., project names) passed to
	// providers that support biasing.
	Prompt string
}

// Transcript represents a speech-to-text result from an STT provider.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Language is the detected or requested language, when reported.
	Language string

	// Duration is the length of the transcribed clip, when reported.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe sends the clip in req to the backend and waits for the final
	// transcript.
	//
	// Returns an error if the provider cannot be reached, rejects the audio, or
	// if ctx is cancelled before a result arrives.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}
