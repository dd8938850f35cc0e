package audio_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/tickvox/pkg/audio"
)

func TestDecode(t *testing.T) {
	t.Parallel()
	raw := []byte("hello audio")
	b64 := audio.EncodeBase64(raw)

	tests := []struct {
		name     string
		in       string
		wantMIME string
		wantErr  bool
	}{
		{name: "raw base64", in: b64},
		{name: "raw base64 without padding", in: "aGVsbG8gYXVkaW8"},
		{name: "data URI", in: audio.DataURI(raw, "audio/wav"), wantMIME: "audio/wav"},
		{name: "data URI with codec param", in: "data:audio/webm;codecs=opus;base64," + b64, wantMIME: "audio/webm"},
		{name: "empty", in: "", wantErr: true},
		{name: "not base64", in: "!!!not base64!!!", wantErr: true},
		{name: "data URI without base64 marker", in: "data:audio/wav,abc", wantErr: true},
		{name: "data URI without comma", in: "data:audio/wav;base64", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			data, mime, err := audio.Decode(tc.in)
			if tc.wantErr {
				if !errors.Is(err, audio.ErrInvalidPayload) {
					t.Fatalf("err = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if string(data) != string(raw) {
				t.Errorf("data = %q, want %q", data, raw)
			}
			if mime != tc.wantMIME {
				t.Errorf("mime = %q, want %q", mime, tc.wantMIME)
			}
		})
	}
}

func TestContainerFromMIME(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"audio/webm;codecs=opus": audio.ContainerWebM,
		"audio/wav":              audio.ContainerWAV,
		"audio/x-wav":            audio.ContainerWAV,
		"audio/mpeg":             audio.ContainerMP3,
		"video/mp4":              "",
	}
	for in, want := range tests {
		if got := audio.ContainerFromMIME(in); got != want {
			t.Errorf("ContainerFromMIME(%q) = %q, want %q", in, got, want)
		}
	}
}
