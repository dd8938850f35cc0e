package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/tickvox/pkg/audio"
	"github.com/MrWong99/tickvox/pkg/provider/llm"
	llmmock "github.com/MrWong99/tickvox/pkg/provider/llm/mock"
	"github.com/MrWong99/tickvox/pkg/provider/stt"
	sttmock "github.com/MrWong99/tickvox/pkg/provider/stt/mock"
	"github.com/MrWong99/tickvox/pkg/provider/tts"
	ttsmock "github.com/MrWong99/tickvox/pkg/provider/tts/mock"
)

var testCfg = FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3}}

func TestSTTFallback_Failover(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Err: errors.New("primary down")}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "show my tickets"}}

	fb := NewSTTFallback(primary, "whisper", testCfg)
	fb.AddFallback("deepgram", secondary)

	tr, err := fb.Transcribe(context.Background(), stt.Request{Audio: []byte{1}, Format: "wav"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "show my tickets" {
		t.Errorf("text = %q", tr.Text)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.CallCount(), secondary.CallCount())
	}
	if len(fb.Health()) != 2 || !fb.Healthy() {
		t.Errorf("health = %+v", fb.Health())
	}
}

func TestLLMFallback_CompleteAndCapabilities(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: "primary"},
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 8000, SupportsJSONMode: true},
	}
	secondary := &llmmock.Provider{ModelCapabilities: llm.ModelCapabilities{SupportsJSONMode: false}}

	fb := NewLLMFallback(primary, "openai", testCfg)
	if !fb.Capabilities().SupportsJSONMode {
		t.Error("single JSON-capable backend should report JSON mode")
	}
	fb.AddFallback("anyllm", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "primary" {
		t.Errorf("content = %q", resp.Content)
	}
	caps := fb.Capabilities()
	if caps.ContextWindow != 8000 {
		t.Errorf("context window = %d, want primary's 8000", caps.ContextWindow)
	}
	if caps.SupportsJSONMode {
		t.Error("JSON mode must be off when a fallback lacks it")
	}
}

func TestTTSFallback_SynthesizeFailover(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("quota")}
	secondary := &ttsmock.Provider{Result: tts.Audio{Data: []byte("wav"), Format: audio.Format{Container: audio.ContainerWAV}}}

	fb := NewTTSFallback(primary, "elevenlabs", testCfg)
	fb.AddFallback("openai", secondary)

	clip, err := fb.Synthesize(context.Background(), "Done.", tts.VoiceProfile{ID: "alloy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(clip.Data) != "wav" {
		t.Errorf("data = %q", clip.Data)
	}
	if secondary.SynthesizeCalls[0].Voice.ID != "alloy" {
		t.Errorf("fallback voice = %q", secondary.SynthesizeCalls[0].Voice.ID)
	}
}

func TestTTSFallback_ListVoices(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{ListVoicesErr: errors.New("down")}
	secondary := &ttsmock.Provider{ListVoicesResult: []tts.VoiceProfile{{ID: "nova"}}}
	fb := NewTTSFallback(primary, "a", testCfg)
	fb.AddFallback("b", secondary)

	voices, err := fb.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "nova" {
		t.Errorf("voices = %+v", voices)
	}
}
