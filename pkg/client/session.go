package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/tickvox/pkg/audio/capture"
	"github.com/MrWong99/tickvox/pkg/audio/playback"
)

// ErrNotRecording is returned by StopAndSubmit when nothing was recorded.
var ErrNotRecording = errors.New("tickvox: not recording")

// SessionOption configures a [VoiceSession].
type SessionOption func(*VoiceSession)

// WithRequireWakeWord makes every submitted command require the user's wake
// word.
func WithRequireWakeWord(on bool) SessionOption {
	return func(s *VoiceSession) { s.requireWakeWord = on }
}

// WithAutoPlay controls whether spoken responses start playing as soon as
// they arrive. Default true.
func WithAutoPlay(on bool) SessionOption {
	return func(s *VoiceSession) { s.autoPlay = on }
}

// WithCommandContext attaches client state to every command, e.g. the
// project currently open in the UI.
func WithCommandContext(ctx map[string]any) SessionOption {
	return func(s *VoiceSession) { s.cmdContext = ctx }
}

// VoiceSession drives one push-to-talk loop: record, submit, play the answer.
// The recorder and player stay owned by the caller-visible session so their
// event channels can be consumed directly. Not safe for concurrent use.
type VoiceSession struct {
	client   *Client
	recorder *capture.Recorder
	player   *playback.Player

	requireWakeWord bool
	autoPlay        bool
	cmdContext      map[string]any
}

// NewVoiceSession joins c with a recorder and an optional player. A nil
// player disables spoken responses.
func NewVoiceSession(c *Client, rec *capture.Recorder, player *playback.Player, opts ...SessionOption) (*VoiceSession, error) {
	if c == nil || rec == nil {
		return nil, errors.New("tickvox: voice session needs a client and a recorder")
	}
	s := &VoiceSession{client: c, recorder: rec, player: player, autoPlay: true}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *VoiceSession) Recorder() *capture.Recorder { return s.recorder }
func (s *VoiceSession) Player() *playback.Player    { return s.player }

// StartRecording begins capturing a command.
func (s *VoiceSession) StartRecording(ctx context.Context) error {
	return s.recorder.Start(ctx)
}

// StopAndSubmit ends the recording and submits it as an audio command. An
// encode failure leaves the recorder in processing; the caller may Retry or
// Abandon it through Recorder. Response audio that cannot be played is
// logged and does not fail the call.
func (s *VoiceSession) StopAndSubmit(ctx context.Context) (*CommandResult, error) {
	p, err := s.recorder.Stop()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotRecording
	}
	return s.SubmitRecording(ctx, p)
}

// SubmitRecording submits a finished recording, e.g. one recovered through
// Recorder().Retry. The recorder's pending payload is cleared on success.
func (s *VoiceSession) SubmitRecording(ctx context.Context, p *capture.Payload) (*CommandResult, error) {
	res, err := s.client.Submit(ctx, Command{
		Type:            CommandAudio,
		Content:         p.Data,
		Format:          p.Format,
		Context:         s.cmdContext,
		RequireWakeWord: s.requireWakeWord,
	})
	if err != nil {
		return nil, fmt.Errorf("submit recording: %w", err)
	}
	if err := s.recorder.Reset(); err != nil {
		slog.Debug("voice session: reset recorder", "err", err)
	}
	s.respond(ctx, res)
	return res, nil
}

// SubmitText submits a typed command and plays the answer like a spoken one.
func (s *VoiceSession) SubmitText(ctx context.Context, text string) (*CommandResult, error) {
	res, err := s.client.Submit(ctx, Command{
		Type:            CommandText,
		Content:         text,
		Context:         s.cmdContext,
		RequireWakeWord: s.requireWakeWord,
	})
	if err != nil {
		return nil, err
	}
	s.respond(ctx, res)
	return res, nil
}

// Cancel stops an ongoing recording and discards it. Nothing is submitted.
func (s *VoiceSession) Cancel() {
	if s.recorder.State() == capture.StateRecording {
		if _, err := s.recorder.Stop(); err != nil {
			s.recorder.Abandon()
		}
	}
	if err := s.recorder.Reset(); err != nil {
		slog.Debug("voice session: reset recorder", "err", err)
	}
}

// Close releases the recorder and the player.
func (s *VoiceSession) Close() error {
	err := s.recorder.Close()
	if s.player != nil {
		err = errors.Join(err, s.player.Close())
	}
	return err
}

func (s *VoiceSession) respond(ctx context.Context, res *CommandResult) {
	if s.player == nil || res.AudioData == "" {
		return
	}
	if err := s.player.SetSource(ctx, res.AudioData, res.AudioMIMEType); err != nil {
		slog.Warn("voice session: load response audio", "err", err)
		return
	}
	if !s.autoPlay {
		return
	}
	if err := s.player.Play(); err != nil {
		slog.Warn("voice session: play response audio", "err", err)
	}
}
