// Package elevenlabs synthesizes speech over the ElevenLabs stream-input
// WebSocket. A confirmation is short, so the whole text goes out in one
// flushed message and the streamed fragments are joined into one clip.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/tickvox/pkg/audio"
	"github.com/MrWong99/tickvox/pkg/provider/tts"
)

const (
	defaultWSBase    = "wss://api.elevenlabs.io"
	defaultAPIBase   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"

	voicesPath = "/v1/voices"
	apiKeyHdr  = "xi-api-key"
)

// Speed limits accepted by the API.
const (
	minSpeed = 0.7
	maxSpeed = 1.2
)

var _ tts.Provider = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel sets the model ID. Default "eleven_flash_v2_5".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat sets the output format, for example "pcm_16000" or
// "mp3_44100_128".
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// WithBaseURLs points the provider at another WebSocket and REST host.
func WithBaseURLs(wsBase, apiBase string) Option {
	return func(p *Provider) {
		p.wsBase = strings.TrimRight(wsBase, "/")
		p.apiBase = strings.TrimRight(apiBase, "/")
	}
}

// Provider implements tts.Provider.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	wsBase       string
	apiBase      string
	httpClient   *http.Client
}

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		wsBase:       defaultWSBase,
		apiBase:      defaultAPIBase,
		httpClient:   http.DefaultClient,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// outbound is every client message; the first carries voice settings, the
// last has empty text and ends the stream.
type outbound struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	Flush         bool           `json:"flush,omitempty"`
}

type voiceSettings struct {
	Stability       float64  `json:"stability"`
	SimilarityBoost float64  `json:"similarity_boost"`
	Speed           *float64 `json:"speed,omitempty"`
}

type inbound struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Synthesize implements tts.Provider. "stability" and "similarity_boost" in
// voice.Metadata override the defaults of 0.5 and 0.75.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	switch {
	case voice.ID == "":
		return tts.Audio{}, errors.New("elevenlabs: voice ID must not be empty")
	case strings.TrimSpace(text) == "":
		return tts.Audio{}, errors.New("elevenlabs: text must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice.ID), &websocket.DialOptions{
		HTTPHeader: http.Header{apiKeyHdr: {p.apiKey}},
	})
	if err != nil {
		return tts.Audio{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()

	// The API rejects an empty first text; a single space opens the stream.
	script := []outbound{
		{Text: " ", VoiceSettings: settingsFor(voice)},
		{Text: text + " ", Flush: true},
		{Text: ""},
	}
	for _, msg := range script {
		b, err := json.Marshal(msg)
		if err != nil {
			return tts.Audio{}, fmt.Errorf("elevenlabs: encode: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return tts.Audio{}, fmt.Errorf("elevenlabs: write: %w", err)
		}
	}

	data, err := collect(ctx, conn)
	if err != nil {
		return tts.Audio{}, err
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
	return tts.Audio{Data: data, Format: parseOutputFormat(p.outputFormat)}, nil
}

// collect reads fragments until the final one or a normal close.
func collect(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var data []byte
	for {
		_, raw, err := conn.Read(ctx)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure && len(data) > 0 {
			return data, nil
		}
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}

		var msg inbound
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		if msg.Error != "" {
			return nil, fmt.Errorf("elevenlabs: %s: %s", msg.Error, msg.Message)
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			data = append(data, chunk...)
		}
		if msg.IsFinal {
			if len(data) == 0 {
				return nil, errors.New("elevenlabs: no audio received")
			}
			return data, nil
		}
	}
}

func (p *Provider) streamURL(voiceID string) string {
	q := url.Values{"model_id": {p.model}, "output_format": {p.outputFormat}}
	return p.wsBase + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input?" + q.Encode()
}

func settingsFor(voice tts.VoiceProfile) *voiceSettings {
	vs := &voiceSettings{
		Stability:       metaFloat(voice.Metadata, "stability", 0.5),
		SimilarityBoost: metaFloat(voice.Metadata, "similarity_boost", 0.75),
	}
	if voice.SpeedFactor > 0 {
		s := min(max(voice.SpeedFactor, minSpeed), maxSpeed)
		vs.Speed = &s
	}
	return vs
}

// metaFloat reads a float in [0, 1] from meta, or returns def.
func metaFloat(meta map[string]string, key string, def float64) float64 {
	f, err := strconv.ParseFloat(meta[key], 64)
	if err != nil || f < 0 || f > 1 {
		return def
	}
	return f
}

// parseOutputFormat maps "pcm_24000" to mono PCM at that rate and
// "mp3_44100_128" to MP3.
func parseOutputFormat(name string) audio.Format {
	codec, rest, _ := strings.Cut(name, "_")
	switch codec {
	case "pcm":
		rate, err := strconv.Atoi(rest)
		if err != nil {
			rate = 16000
		}
		return audio.Format{Container: audio.ContainerPCM, SampleRate: rate, Channels: 1}
	case "mp3":
		return audio.Format{Container: audio.ContainerMP3}
	}
	return audio.Format{Container: codec}
}

type voiceEntry struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns the voices visible to the API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set(apiKeyHdr, p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: status %d", resp.StatusCode)
	}

	var body struct {
		Voices []voiceEntry `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	out := make([]tts.VoiceProfile, len(body.Voices))
	for i, v := range body.Voices {
		out[i] = v.profile()
	}
	return out, nil
}

// profile keeps the voice's labels as metadata, plus its category if set.
func (v voiceEntry) profile() tts.VoiceProfile {
	meta := maps.Clone(v.Labels)
	if meta == nil {
		meta = make(map[string]string, 1)
	}
	if v.Category != "" {
		meta["category"] = v.Category
	}
	return tts.VoiceProfile{ID: v.VoiceID, Name: v.Name, Provider: "elevenlabs", Metadata: meta}
}
