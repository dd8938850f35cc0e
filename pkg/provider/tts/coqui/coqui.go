// Package coqui synthesizes confirmations on a self-hosted Coqui server.
//
// Two server flavours are spoken. [APIModeStandard], the default, is the
// stock `tts-server` image: GET /api/tts with query parameters, voices from
// GET /details. [APIModeXTTS] is the XTTS v2 API server: POST /tts_to_audio/
// with a JSON body, voices from GET /studio_speakers. Both answer with WAV,
// which is validated and passed through untouched.
package coqui

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/tickvox/pkg/audio"
	"github.com/MrWong99/tickvox/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
)

// APIMode selects the server flavour.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

// dialect is what differs between the two server flavours.
type dialect interface {
	synthesisRequest(ctx context.Context, base, lang, text string, voice tts.VoiceProfile) (*http.Request, error)
	voicesPath() string
	decodeVoices(r io.Reader) ([]tts.VoiceProfile, error)
}

var dialects = map[APIMode]dialect{
	APIModeStandard: standard{},
	APIModeXTTS:     xtts{},
}

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage sets the language code sent with each request. Default "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout bounds each HTTP request. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithAPIMode selects the server flavour.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.apiMode = APIMode(strings.ToLower(string(mode))) }
}

// Provider implements tts.Provider against a Coqui server.
type Provider struct {
	serverURL  string
	language   string
	apiMode    APIMode
	dialect    dialect
	httpClient *http.Client
}

// New returns a Provider for the server at serverURL, for example
// "http://localhost:5002".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	d, ok := dialects[p.apiMode]
	if !ok {
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	p.dialect = d
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Audio{}, errors.New("coqui: text must not be empty")
	}
	req, err := p.dialect.synthesisRequest(ctx, p.serverURL, p.language, text, voice)
	if err != nil {
		return tts.Audio{}, err
	}
	req.Header.Set("Accept", "audio/wav")

	body, err := p.do(req)
	if err != nil {
		return tts.Audio{}, err
	}
	defer body.Close()

	wav, err := io.ReadAll(body)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("coqui: read audio: %w", err)
	}
	if _, _, err := audio.ParseWAV(wav); err != nil {
		return tts.Audio{}, fmt.Errorf("coqui: %w", err)
	}
	return tts.Audio{Data: wav, Format: audio.Format{Container: audio.ContainerWAV}}, nil
}

// ListVoices returns the server's voices sorted by ID.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	path := p.dialect.voicesPath()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: build voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := p.do(req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	voices, err := p.dialect.decodeVoices(body)
	if err != nil {
		return nil, fmt.Errorf("coqui: decode %s: %w", path, err)
	}
	return voices, nil
}

// do sends req and returns the body of a 200 response.
func (p *Provider) do(req *http.Request) (io.ReadCloser, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("coqui: %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return resp.Body, nil
}

// standard is the stock tts-server. Speed is not supported; an empty voice
// ID uses the model's default speaker.
type standard struct{}

func (standard) synthesisRequest(ctx context.Context, base, lang, text string, voice tts.VoiceProfile) (*http.Request, error) {
	q := url.Values{"text": {text}}
	if voice.ID != "" {
		q.Set("speaker_id", voice.ID)
	}
	if lang != "" {
		q.Set("language_id", lang)
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, base+apiTTSEndpoint+"?"+q.Encode(), nil)
}

func (standard) voicesPath() string { return detailsEndpoint }

// decodeVoices reads /details. Single-speaker models list no speakers and
// yield one voice named after the model.
func (standard) decodeVoices(r io.Reader) ([]tts.VoiceProfile, error) {
	var details struct {
		ModelName string   `json:"model_name"`
		Speakers  []string `json:"speakers"`
	}
	if err := json.NewDecoder(r).Decode(&details); err != nil {
		return nil, err
	}
	if len(details.Speakers) > 0 {
		return voiceList(details.Speakers, map[string]string{"type": "speaker", "model_name": details.ModelName}), nil
	}
	name := cmp.Or(details.ModelName, "default")
	return voiceList([]string{name}, map[string]string{"type": "single-speaker", "model_name": name}), nil
}

// ttsRequest is the body of POST /tts_to_audio/.
type ttsRequest struct {
	Text       string  `json:"text"`
	SpeakerWav string  `json:"speaker_wav"`
	Language   string  `json:"language"`
	Speed      float64 `json:"speed,omitempty"`
}

// xtts is the XTTS v2 API server, which always needs a speaker.
type xtts struct{}

func (xtts) synthesisRequest(ctx context.Context, base, lang, text string, voice tts.VoiceProfile) (*http.Request, error) {
	if voice.ID == "" {
		return nil, errors.New("coqui: xtts requires a voice ID")
	}
	body, err := json.Marshal(ttsRequest{Text: text, SpeakerWav: voice.ID, Language: lang, Speed: voice.SpeedFactor})
	if err != nil {
		return nil, fmt.Errorf("coqui: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+ttsEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (xtts) voicesPath() string { return studioSpeakersEndpoint }

// decodeVoices reads /studio_speakers, an object keyed by speaker name.
func (xtts) decodeVoices(r io.Reader) ([]tts.VoiceProfile, error) {
	var speakers map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&speakers); err != nil {
		return nil, err
	}
	return voiceList(slices.Collect(maps.Keys(speakers)), map[string]string{"type": "studio"}), nil
}

func voiceList(ids []string, meta map[string]string) []tts.VoiceProfile {
	ids = slices.Sorted(slices.Values(ids))
	out := make([]tts.VoiceProfile, len(ids))
	for i, id := range ids {
		out[i] = tts.VoiceProfile{ID: id, Name: id, Provider: "coqui", Metadata: maps.Clone(meta)}
	}
	return out
}
