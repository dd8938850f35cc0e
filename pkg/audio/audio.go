// Package audio holds the payload conventions shared by the capture and
// playback state machines and by the server-side transcription path.
//
// Audio travels between client and server as a base64 string (optionally
// wrapped in a data URI) of an encoded container such as WAV or WebM. Raw PCM
// produced by a capture device is normalised to 16 kHz mono and wrapped in a
// WAV container before it leaves the client.
package audio

import (
	"fmt"
	"strings"
	"time"
)

// Container names understood throughout the module.
const (
	ContainerPCM  = "pcm"
	ContainerWAV  = "wav"
	ContainerWebM = "webm"
	ContainerOgg  = "ogg"
	ContainerMP3  = "mp3"
)

// Format describes an audio stream. SampleRate and Channels are only
// meaningful for raw PCM; encoded containers carry their own metadata.
type Format struct {
	Container  string
	SampleRate int
	Channels   int
}

// SpeechPCM is the format transcription backends prefer: 16-bit mono at 16 kHz.
var SpeechPCM = Format{Container: ContainerPCM, SampleRate: 16000, Channels: 1}

// IsPCM reports whether f describes raw 16-bit little-endian PCM.
func (f Format) IsPCM() bool { return f.Container == ContainerPCM }

// String returns a human-readable form, e.g. "pcm 48000Hz stereo" or "webm".
func (f Format) String() string {
	if !f.IsPCM() {
		return f.Container
	}
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("pcm %dHz %s", f.SampleRate, ch)
}

// PCMDuration returns the playing time of n bytes of 16-bit PCM in format f.
// Returns 0 for invalid formats.
func PCMDuration(n int, f Format) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	bytesPerSec := f.SampleRate * f.Channels * 2
	return time.Duration(n) * time.Second / time.Duration(bytesPerSec)
}

var mimeTypes = map[string]string{
	ContainerWAV:  "audio/wav",
	ContainerWebM: "audio/webm",
	ContainerOgg:  "audio/ogg",
	ContainerMP3:  "audio/mpeg",
	ContainerPCM:  "audio/L16",
}

// MIMEType returns the MIME type for a container name. Unknown containers map
// to "application/octet-stream".
func MIMEType(container string) string {
	if m, ok := mimeTypes[strings.ToLower(container)]; ok {
		return m
	}
	return "application/octet-stream"
}

// ContainerFromMIME is the inverse of MIMEType. Parameters such as
// ";codecs=opus" are ignored. Returns "" for unknown types.
func ContainerFromMIME(mime string) string {
	mime, _, _ = strings.Cut(strings.ToLower(strings.TrimSpace(mime)), ";")
	switch mime {
	case "audio/x-wav", "audio/wave":
		return ContainerWAV
	case "audio/mp3":
		return ContainerMP3
	}
	for c, m := range mimeTypes {
		if m == mime {
			return c
		}
	}
	return ""
}
