// Package client talks to a tickvox server over its HTTP API.
//
// [Client] covers every /api/voice route. [VoiceSession] ties a capture
// recorder, command submission and a playback player together for
// push-to-talk style front ends.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 90 * time.Second

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tickvox: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// IsStatus reports whether err is an [APIError] with the given status code.
func IsStatus(err error, code int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == code
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default client, which has a 90s timeout to
// cover transcription, interpretation and synthesis of a single command.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("tickvox: invalid base URL %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ─── Commands ────────────────────────────────────────────────────────────────

// Submit sends a command. A processed command that failed is returned with
// Success false and a nil error; transport, auth and validation problems are
// returned as errors.
func (c *Client) Submit(ctx context.Context, cmd Command) (*CommandResult, error) {
	var res CommandResult
	if err := c.do(ctx, http.MethodPost, "/api/voice/command", nil, cmd, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitText is a shortcut for a text command.
func (c *Client) SubmitText(ctx context.Context, text string, requireWakeWord bool) (*CommandResult, error) {
	return c.Submit(ctx, Command{Type: CommandText, Content: text, RequireWakeWord: requireWakeWord})
}

// ─── History ─────────────────────────────────────────────────────────────────

// History lists the caller's past commands.
func (c *Client) History(ctx context.Context, q HistoryQuery) (*HistoryPage, error) {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if !q.From.IsZero() {
		v.Set("from", q.From.Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.Format(time.RFC3339))
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Intent != "" {
		v.Set("intent", q.Intent)
	}
	var page HistoryPage
	if err := c.do(ctx, http.MethodGet, "/api/voice/history", v, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// HistoryEntry returns one attempt.
func (c *Client) HistoryEntry(ctx context.Context, id string) (*Attempt, error) {
	var res struct {
		Item Attempt `json:"item"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/voice/history/"+url.PathEscape(id), nil, nil, &res); err != nil {
		return nil, err
	}
	return &res.Item, nil
}

// DeleteHistoryEntry removes one attempt.
func (c *Client) DeleteHistoryEntry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/voice/history/"+url.PathEscape(id), nil, nil, nil)
}

// ClearHistory removes all of the caller's attempts and returns how many
// were deleted.
func (c *Client) ClearHistory(ctx context.Context) (int, error) {
	var res struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/voice/history", nil, nil, &res); err != nil {
		return 0, err
	}
	return res.Deleted, nil
}

// ─── Settings ────────────────────────────────────────────────────────────────

type settingsEnvelope struct {
	Settings Settings `json:"settings"`
}

// Settings returns the caller's settings, or the defaults if none are stored.
func (c *Client) Settings(ctx context.Context) (*Settings, error) {
	var res settingsEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/voice/settings", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res.Settings, nil
}

// UpdateSettings applies a partial update and returns the stored result.
func (c *Client) UpdateSettings(ctx context.Context, p SettingsPatch) (*Settings, error) {
	var res settingsEnvelope
	if err := c.do(ctx, http.MethodPut, "/api/voice/settings", nil, p, &res); err != nil {
		return nil, err
	}
	return &res.Settings, nil
}

// ResetSettings restores the defaults.
func (c *Client) ResetSettings(ctx context.Context) (*Settings, error) {
	var res settingsEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/voice/settings/reset", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res.Settings, nil
}

// ─── Voices ──────────────────────────────────────────────────────────────────

// Voices lists selectable voices.
func (c *Client) Voices(ctx context.Context) (*Voices, error) {
	var res Voices
	if err := c.do(ctx, http.MethodGet, "/api/voice/voices", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TestVoice synthesizes text. Empty voiceID and zero speed use the caller's
// stored preferences.
func (c *Client) TestVoice(ctx context.Context, text, voiceID string, speed float64) (*VoiceSample, error) {
	body := struct {
		Text    string   `json:"text"`
		VoiceID string   `json:"voiceId,omitempty"`
		Speed   *float64 `json:"speed,omitempty"`
	}{Text: text, VoiceID: voiceID}
	if speed != 0 {
		body.Speed = &speed
	}
	var res VoiceSample
	if err := c.do(ctx, http.MethodPost, "/api/voice/test", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ─── Transport ───────────────────────────────────────────────────────────────

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("tickvox: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("tickvox: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tickvox: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("tickvox: read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &eb) != nil || eb.Error == "" {
			eb.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: eb.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("tickvox: decode %s %s: %w", method, path, err)
	}
	return nil
}
