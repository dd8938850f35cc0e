// Package tts is the interface behind spoken confirmations. Confirmations are
// one sentence, so backends render the whole text in one call and return a
// single clip. Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/tickvox/pkg/audio"
)

// Provider is a speech synthesis backend.
type Provider interface {
	// Synthesize renders text in voice. Backends without rate control ignore
	// voice.SpeedFactor.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (Audio, error)

	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}

// Audio is a synthesized clip. For raw PCM, Format also carries the sample
// rate and channel count; otherwise Data is a complete WAV or MP3 file.
type Audio struct {
	Data   []byte
	Format audio.Format
}

// VoiceProfile selects a voice. ID is backend-specific.
type VoiceProfile struct {
	ID       string
	Name     string
	Provider string

	// SpeedFactor scales the speaking rate, typically 0.5 to 2.0. Zero
	// leaves the backend default.
	SpeedFactor float64

	// Metadata carries backend attributes such as labels, and may tune
	// synthesis, for example ElevenLabs "stability".
	Metadata map[string]string
}
