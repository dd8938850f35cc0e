package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/tickvox/pkg/audio"
	"github.com/MrWong99/tickvox/pkg/provider/tts"
)

// session is what the fake server saw on one stream.
type session struct {
	path, query, apiKey string
	msgs                []outbound
}

// fakeServer answers /v1/voices and accepts stream sessions, replying to
// each with replies once the client's end-of-stream message arrives.
func fakeServer(t *testing.T, replies []inbound, seen chan<- session) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == voicesPath {
			if r.Header.Get(apiKeyHdr) != "key" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"voices":[
				{"voice_id":"abc123","name":"Rachel","category":"premade","labels":{"gender":"female","accent":"american"}},
				{"voice_id":"x1","name":"Ghost","category":"","labels":null}
			]}`))
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		s := session{path: r.URL.Path, query: r.URL.RawQuery, apiKey: r.Header.Get(apiKeyHdr)}
		for {
			_, b, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var m outbound
			_ = json.Unmarshal(b, &m)
			s.msgs = append(s.msgs, m)
			if m.Text == "" {
				break
			}
		}
		seen <- s

		for _, rep := range replies {
			b, _ := json.Marshal(rep)
			if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, srv *httptest.Server, opts ...Option) *Provider {
	t.Helper()
	opts = append([]Option{WithBaseURLs("ws"+strings.TrimPrefix(srv.URL, "http"), srv.URL)}, opts...)
	p, err := New("key", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func fragment(b ...byte) inbound {
	return inbound{Audio: base64.StdEncoding.EncodeToString(b)}
}

func TestSynthesize_Stream(t *testing.T) {
	t.Parallel()
	seen := make(chan session, 1)
	final := fragment(5)
	final.IsFinal = true
	srv := fakeServer(t, []inbound{fragment(1, 2), {Message: "keepalive"}, fragment(3, 4), final}, seen)

	p := newTestProvider(t, srv, WithOutputFormat("pcm_24000"))
	clip, err := p.Synthesize(context.Background(), "Ticket created.", tts.VoiceProfile{
		ID:          "voice/1",
		SpeedFactor: 1.5,
		Metadata:    map[string]string{"stability": "0.9", "similarity_boost": "loud"},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(clip.Data) != string([]byte{1, 2, 3, 4, 5}) {
		t.Errorf("data = %v", clip.Data)
	}
	if clip.Format != (audio.Format{Container: audio.ContainerPCM, SampleRate: 24000, Channels: 1}) {
		t.Errorf("format = %+v", clip.Format)
	}

	s := <-seen
	if s.apiKey != "key" {
		t.Errorf("api key header = %q", s.apiKey)
	}
	if s.path != "/v1/text-to-speech/voice/1/stream-input" && s.path != "/v1/text-to-speech/voice%2F1/stream-input" {
		t.Errorf("path = %q", s.path)
	}
	if !strings.Contains(s.query, "model_id="+defaultModel) || !strings.Contains(s.query, "output_format=pcm_24000") {
		t.Errorf("query = %q", s.query)
	}
	if len(s.msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(s.msgs))
	}
	vs := s.msgs[0].VoiceSettings
	if vs == nil || vs.Stability != 0.9 || vs.SimilarityBoost != 0.75 || vs.Speed == nil || *vs.Speed != maxSpeed {
		t.Errorf("voice settings = %+v", vs)
	}
	if s.msgs[1].Text != "Ticket created. " || !s.msgs[1].Flush {
		t.Errorf("text message = %+v", s.msgs[1])
	}
}

func TestSynthesize_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		replies []inbound
		want    string
	}{
		{"server error", []inbound{{Error: "quota_exceeded", Message: "out of credits"}}, "quota_exceeded"},
		{"final without audio", []inbound{{IsFinal: true}}, "no audio"},
		{"closed without audio", nil, "read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := fakeServer(t, tt.replies, make(chan session, 1))
			_, err := newTestProvider(t, srv).Synthesize(context.Background(), "hi", tts.VoiceProfile{ID: "v1"})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestSynthesize_Validation(t *testing.T) {
	t.Parallel()
	p, _ := New("key")
	if _, err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{}); err == nil {
		t.Error("expected error for empty voice ID")
	}
	if _, err := p.Synthesize(context.Background(), "  ", tts.VoiceProfile{ID: "v"}); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestSettingsFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		voice     tts.VoiceProfile
		stability float64
		speed     float64 // 0 means unset
	}{
		{"defaults", tts.VoiceProfile{}, 0.5, 0},
		{"slow clamped", tts.VoiceProfile{SpeedFactor: 0.5}, 0.5, minSpeed},
		{"in range", tts.VoiceProfile{SpeedFactor: 1.1}, 0.5, 1.1},
		{"stability override", tts.VoiceProfile{Metadata: map[string]string{"stability": "0.2"}}, 0.2, 0},
		{"stability out of range", tts.VoiceProfile{Metadata: map[string]string{"stability": "3"}}, 0.5, 0},
	}
	for _, tt := range tests {
		vs := settingsFor(tt.voice)
		if vs.Stability != tt.stability {
			t.Errorf("%s: stability = %v, want %v", tt.name, vs.Stability, tt.stability)
		}
		switch {
		case tt.speed == 0 && vs.Speed != nil:
			t.Errorf("%s: speed = %v, want unset", tt.name, *vs.Speed)
		case tt.speed != 0 && (vs.Speed == nil || *vs.Speed != tt.speed):
			t.Errorf("%s: speed = %v, want %v", tt.name, vs.Speed, tt.speed)
		}
	}
}

func TestParseOutputFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want audio.Format
	}{
		{"pcm_16000", audio.Format{Container: audio.ContainerPCM, SampleRate: 16000, Channels: 1}},
		{"pcm_24000", audio.Format{Container: audio.ContainerPCM, SampleRate: 24000, Channels: 1}},
		{"pcm_x", audio.Format{Container: audio.ContainerPCM, SampleRate: 16000, Channels: 1}},
		{"mp3_44100_128", audio.Format{Container: audio.ContainerMP3}},
	}
	for _, tc := range tests {
		if got := parseOutputFormat(tc.in); got != tc.want {
			t.Errorf("parseOutputFormat(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()
	srv := fakeServer(t, nil, make(chan session, 1))

	voices, err := newTestProvider(t, srv).ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	rachel, ghost := voices[0], voices[1]
	if rachel.ID != "abc123" || rachel.Provider != "elevenlabs" || rachel.Metadata["gender"] != "female" || rachel.Metadata["category"] != "premade" {
		t.Errorf("rachel = %+v", rachel)
	}
	if _, ok := ghost.Metadata["category"]; ok || ghost.Metadata == nil {
		t.Errorf("ghost metadata = %v, want empty non-nil", ghost.Metadata)
	}

	bad, _ := New("wrong", WithBaseURLs("ws://unused", srv.URL))
	if _, err := bad.ListVoices(context.Background()); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, want status 401", err)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
	p, err := New("key", WithModel("eleven_multilingual_v2"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "eleven_multilingual_v2" || p.outputFormat != defaultOutputFmt {
		t.Errorf("model/format = %q/%q", p.model, p.outputFormat)
	}
}
