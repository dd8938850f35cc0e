// Package playback plays back the synthesized response of a voice command.
//
// A [Player] moves through idle → loading → ready → playing ⇄ paused and back
// to idle when the audio ends. Decoding and output are delegated to a
// [Decoder] and a [Sink] so the state machine runs the same against real
// hardware, a file and test fakes.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/tickvox/pkg/audio"
)

var (
	// ErrInvalidAudioSource is returned by SetSource when the payload cannot
	// be decoded.
	ErrInvalidAudioSource = errors.New("playback: invalid audio source")

	// ErrSeekOutOfRange is returned by Seek for positions outside [0, duration].
	ErrSeekOutOfRange = errors.New("playback: seek out of range")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("playback: player closed")
)

// State is the lifecycle phase of a [Player].
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Source is decoded audio ready for a [Sink].
type Source interface {
	Duration() time.Duration
	Close() error
}

// Decoder turns an encoded payload into a [Source].
type Decoder interface {
	Decode(ctx context.Context, data []byte, mime string) (Source, error)
}

// Sink starts output of a source at an offset.
type Sink interface {
	Play(src Source, from time.Duration) (Voice, error)
}

// Voice is one running output started by a [Sink].
type Voice interface {
	// Position is the current offset into the source.
	Position() time.Duration
	// Done is closed when output reaches the end or Stop is called.
	Done() <-chan struct{}
	// Stop halts output. Safe to call more than once.
	Stop() error
}

// EventType discriminates [Event].
type EventType int

const (
	EventLoading EventType = iota
	EventReady
	EventPlaying
	EventPaused
	EventProgress
	EventEnded
	EventError
)

// Event is pushed on the player's single event channel.
type Event struct {
	Type     EventType
	State    State
	Progress time.Duration
	Duration time.Duration
	Err      error
}

// Option configures a [Player].
type Option func(*Player)

// WithProgressInterval sets how often EventProgress is pushed while playing.
// Default 100ms.
func WithProgressInterval(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithEventBuffer sets the capacity of the event channel. Default 64.
func WithEventBuffer(n int) Option {
	return func(p *Player) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// Player is the playback state machine. Safe for concurrent use.
type Player struct {
	decoder  Decoder
	sink     Sink
	interval time.Duration
	bufSize  int

	mu       sync.Mutex
	state    State
	src      Source
	voice    Voice
	progress time.Duration
	duration time.Duration
	closed   bool
	events   chan Event
}

// New returns an idle player.
func New(dec Decoder, sink Sink, opts ...Option) *Player {
	p := &Player{
		decoder:  dec,
		sink:     sink,
		interval: 100 * time.Millisecond,
		bufSize:  64,
	}
	for _, o := range opts {
		o(p)
	}
	p.events = make(chan Event, p.bufSize)
	return p
}

// Events returns the event channel. It is closed by Close.
func (p *Player) Events() <-chan Event { return p.events }

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) Progress() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StatePlaying && p.voice != nil {
		return p.voice.Position()
	}
	return p.progress
}

func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// SetSource replaces the current audio with payload, which may be raw base64
// or a data URI. mime is used when the payload carries none. Any prior source
// is stopped and released first. On failure the player is idle with no source
// and the error wraps [ErrInvalidAudioSource].
func (p *Player) SetSource(ctx context.Context, payload, mime string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	p.releaseLocked()
	p.setState(StateLoading)
	p.emit(Event{Type: EventLoading})

	data, uriMIME, err := audio.Decode(payload)
	if err == nil {
		if uriMIME != "" {
			mime = uriMIME
		}
		var src Source
		src, err = p.decoder.Decode(ctx, data, mime)
		if err == nil {
			p.src = src
			p.duration = src.Duration()
			p.progress = 0
			p.setState(StateReady)
			p.emit(Event{Type: EventReady})
			return nil
		}
	}

	err = fmt.Errorf("%w: %w", ErrInvalidAudioSource, err)
	p.setState(StateIdle)
	p.emit(Event{Type: EventError, Err: err})
	return err
}

// Play starts or resumes output. A no-op without a source or while already
// playing. After the audio ended, Play starts again from the beginning.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.src == nil || p.state == StatePlaying {
		return nil
	}
	return p.startLocked(p.progress)
}

// Pause halts output and keeps the position. A no-op unless playing.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying {
		return nil
	}
	p.progress = p.stopVoiceLocked()
	p.setState(StatePaused)
	p.emit(Event{Type: EventPaused})
	return nil
}

// TogglePlayPause pauses while playing and plays otherwise.
func (p *Player) TogglePlayPause() error {
	if p.State() == StatePlaying {
		return p.Pause()
	}
	return p.Play()
}

// Seek moves to t. While playing, output restarts at t.
func (p *Player) Seek(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.src == nil {
		return nil
	}
	if t < 0 || t > p.duration {
		return fmt.Errorf("%w: %v not in [0, %v]", ErrSeekOutOfRange, t, p.duration)
	}
	if p.state == StatePlaying {
		p.stopVoiceLocked()
		if err := p.startLocked(t); err != nil {
			// Output is gone; hold the new position so Play can retry.
			p.progress = t
			p.setState(StatePaused)
			p.emit(Event{Type: EventPaused})
			return err
		}
		return nil
	}
	p.progress = t
	p.emit(Event{Type: EventProgress})
	return nil
}

// Close stops output, releases the source and closes the event channel.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.releaseLocked()
	p.setState(StateIdle)
	p.closed = true
	close(p.events)
	return nil
}

func (p *Player) startLocked(from time.Duration) error {
	v, err := p.sink.Play(p.src, from)
	if err != nil {
		p.emit(Event{Type: EventError, Err: err})
		return fmt.Errorf("playback: start output: %w", err)
	}
	p.voice = v
	p.progress = from
	p.setState(StatePlaying)
	p.emit(Event{Type: EventPlaying})
	go p.watch(v)
	return nil
}

// watch pushes progress for v until it ends or is replaced.
func (p *Player) watch(v Voice) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.mu.Lock()
			if p.voice != v {
				p.mu.Unlock()
				return
			}
			p.progress = v.Position()
			p.emit(Event{Type: EventProgress})
			p.mu.Unlock()
		case <-v.Done():
			p.mu.Lock()
			if p.voice == v {
				p.voice = nil
				p.progress = 0
				p.setState(StateIdle)
				p.emit(Event{Type: EventEnded})
			}
			p.mu.Unlock()
			return
		}
	}
}

// stopVoiceLocked halts the running voice and returns its last position.
func (p *Player) stopVoiceLocked() time.Duration {
	v := p.voice
	if v == nil {
		return p.progress
	}
	p.voice = nil
	pos := v.Position()
	if err := v.Stop(); err != nil {
		slog.Warn("playback: stop output", "err", err)
	}
	return pos
}

func (p *Player) releaseLocked() {
	p.stopVoiceLocked()
	if p.src != nil {
		if err := p.src.Close(); err != nil {
			slog.Warn("playback: release source", "err", err)
		}
		p.src = nil
	}
	p.progress = 0
	p.duration = 0
}

func (p *Player) setState(s State) { p.state = s }

// emit sends ev without blocking. Caller holds p.mu.
func (p *Player) emit(ev Event) {
	if p.closed {
		return
	}
	ev.State = p.state
	ev.Duration = p.duration
	if ev.Progress == 0 {
		ev.Progress = p.progress
	}
	select {
	case p.events <- ev:
	default:
		slog.Debug("playback: event dropped", "type", ev.Type)
	}
}
