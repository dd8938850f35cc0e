// Package capture records a single voice command from an input device.
//
// A [Recorder] moves through idle → recording → processing → idle. Chunks
// delivered by the device stream are buffered in arrival order; on [Recorder.Stop]
// they are joined, wrapped in a container (raw PCM becomes 16 kHz mono WAV)
// and base64-encoded into a [Payload] ready for submission.
//
// A Recorder owns at most one device stream at a time and releases it on every
// exit path: stop, stream failure and [Recorder.Close].
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/tickvox/pkg/audio"
)

var (
	// ErrDeviceUnavailable wraps any failure to acquire the input device,
	// including denied permission and a missing device.
	ErrDeviceUnavailable = errors.New("capture: input device unavailable")

	// ErrAlreadyRecording is returned by Start when the recorder is not idle.
	ErrAlreadyRecording = errors.New("capture: already recording")

	// ErrEncodingFailed is returned when the buffered audio cannot be turned
	// into a payload. The recorder stays in [StateProcessing].
	ErrEncodingFailed = errors.New("capture: encoding failed")

	// ErrRecording is returned by Reset while a recording is in progress.
	ErrRecording = errors.New("capture: recording in progress")

	// ErrNothingPending is returned by Retry when no encode is outstanding.
	ErrNothingPending = errors.New("capture: no pending recording")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("capture: recorder closed")
)

// State is the lifecycle phase of a [Recorder].
type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Device grants access to an audio input.
type Device interface {
	// Open acquires the input and starts streaming. Implementations return an
	// error when access is denied or no input exists.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open device handle.
type Stream interface {
	// Chunks delivers captured audio. The channel is closed when the stream
	// ends, either because Close was called or because the device failed.
	Chunks() <-chan []byte

	// Err reports why the stream ended. Only meaningful after Chunks closes;
	// nil after a regular Close.
	Err() error

	// Format describes the chunk encoding.
	Format() audio.Format

	// Close releases the device. Safe to call more than once.
	Close() error
}

// Payload is a finished recording.
type Payload struct {
	// Data is the base64-encoded container.
	Data     string
	MIMEType string
	// Format is the container name sent with the command, e.g. "wav".
	Format   string
	Duration time.Duration
}

// Encoder turns the joined chunks of one recording into a payload.
type Encoder func(data []byte, f audio.Format) (Payload, error)

// EventType discriminates [Event].
type EventType int

const (
	EventStarted EventType = iota
	EventTick
	EventCompleted
	EventError
	EventReset
)

// Event is pushed on the recorder's single event channel.
type Event struct {
	Type    EventType
	State   State
	Elapsed time.Duration
	// Payload is set for EventCompleted.
	Payload *Payload
	// Err is set for EventError.
	Err error
}

// Option configures a [Recorder].
type Option func(*Recorder)

// WithTickInterval sets how often elapsed time advances. Default 1s.
func WithTickInterval(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.tick = d
		}
	}
}

// WithEncoder replaces [EncodePayload].
func WithEncoder(enc Encoder) Option {
	return func(r *Recorder) {
		if enc != nil {
			r.encode = enc
		}
	}
}

// WithEventBuffer sets the capacity of the event channel. Default 32.
func WithEventBuffer(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.bufSize = n
		}
	}
}

// session is one Start→Stop cycle.
type session struct {
	stream    Stream
	format    audio.Format
	stop      chan struct{}
	pumpDone  chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

func (s *session) halt() { s.stopOnce.Do(func() { close(s.stop) }) }

func (s *session) release() {
	s.closeOnce.Do(func() {
		if err := s.stream.Close(); err != nil {
			slog.Warn("capture: close stream", "err", err)
		}
	})
}

// Recorder is the capture state machine. All methods are safe for concurrent
// use; the lock is per instance, so independent recorders never block each
// other.
type Recorder struct {
	device  Device
	encode  Encoder
	tick    time.Duration
	bufSize int

	mu      sync.Mutex
	state   State
	sess    *session
	chunks  [][]byte
	elapsed time.Duration
	// pending holds joined audio whose encode failed, awaiting Retry or Abandon.
	pending []byte
	pendFmt audio.Format
	result  *Payload
	closed  bool
	events  chan Event
}

// New returns an idle recorder reading from dev.
func New(dev Device, opts ...Option) *Recorder {
	r := &Recorder{
		device:  dev,
		encode:  EncodePayload,
		tick:    time.Second,
		bufSize: 32,
	}
	for _, o := range opts {
		o(r)
	}
	r.events = make(chan Event, r.bufSize)
	return r
}

// Events returns the recorder's event channel. It is closed by Close. Events
// are dropped when the consumer falls behind by more than the buffer size.
func (r *Recorder) Events() <-chan Event { return r.events }

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Elapsed returns the recording time counted so far.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Payload returns the last completed recording that has not been cleared by
// Reset, or nil.
func (r *Recorder) Payload() *Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Start acquires the device and begins buffering audio.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.state != StateIdle {
		return ErrAlreadyRecording
	}

	stream, err := r.device.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	s := &session{
		stream:   stream,
		format:   stream.Format(),
		stop:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	r.sess = s
	r.state = StateRecording
	r.chunks = nil
	r.elapsed = 0
	r.result = nil
	r.pending = nil

	go r.pump(s)
	go r.ticker(s)

	r.emit(Event{Type: EventStarted})
	return nil
}

// pump copies chunks into the buffer until the stream ends. An end while still
// recording is a device failure.
func (r *Recorder) pump(s *session) {
	defer close(s.pumpDone)
	for c := range s.stream.Chunks() {
		r.mu.Lock()
		if r.sess == s {
			r.chunks = append(r.chunks, c)
		}
		r.mu.Unlock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess != s || r.state != StateRecording {
		return
	}
	err := s.stream.Err()
	if err == nil {
		err = errors.New("stream ended")
	}
	s.halt()
	s.release()
	r.sess = nil
	r.chunks = nil
	r.state = StateIdle
	slog.Warn("capture: stream failed while recording", "err", err)
	r.emit(Event{Type: EventError, Err: fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)})
}

func (r *Recorder) ticker(s *session) {
	t := time.NewTicker(r.tick)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			r.mu.Lock()
			if r.sess == s && r.state == StateRecording {
				r.elapsed += r.tick
				r.emit(Event{Type: EventTick})
			}
			r.mu.Unlock()
		}
	}
}

// Stop ends the recording, releases the device and encodes the buffered
// audio. It is a no-op returning (nil, nil) when not recording. On encode
// failure the error wraps [ErrEncodingFailed] and the recorder stays in
// processing until Retry or Abandon.
func (r *Recorder) Stop() (*Payload, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return nil, nil
	}
	s := r.sess
	r.state = StateProcessing
	s.halt()
	r.mu.Unlock()

	// Drain chunks already in flight before joining.
	s.release()
	<-s.pumpDone

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess != s {
		// Closed underneath us.
		return nil, ErrClosed
	}
	r.sess = nil
	r.pending = bytes.Join(r.chunks, nil)
	r.pendFmt = s.format
	r.chunks = nil
	return r.finish()
}

// Retry re-runs a failed encode.
func (r *Recorder) Retry() (*Payload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateProcessing || r.sess != nil {
		return nil, ErrNothingPending
	}
	return r.finish()
}

// Abandon discards a recording whose encode failed and returns to idle.
func (r *Recorder) Abandon() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateProcessing || r.sess != nil {
		return
	}
	r.pending = nil
	r.state = StateIdle
	r.emit(Event{Type: EventReset})
}

// Reset clears a completed payload that was never submitted. Rejected while
// recording.
func (r *Recorder) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.state == StateRecording:
		return ErrRecording
	case r.state == StateProcessing && r.sess != nil:
		// Stop is draining the stream.
		return ErrRecording
	}
	r.result = nil
	r.pending = nil
	r.elapsed = 0
	r.state = StateIdle
	r.emit(Event{Type: EventReset})
	return nil
}

// Close releases any open stream, returns to idle and closes the event
// channel. Further Start calls fail with [ErrClosed].
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if s := r.sess; s != nil {
		s.halt()
		s.release()
		r.sess = nil
	}
	r.chunks = nil
	r.pending = nil
	r.state = StateIdle
	close(r.events)
	return nil
}

// finish encodes r.pending. Caller holds r.mu and the state is processing.
func (r *Recorder) finish() (*Payload, error) {
	p, err := r.encode(r.pending, r.pendFmt)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrEncodingFailed, err)
		r.emit(Event{Type: EventError, Err: err})
		return nil, err
	}
	if p.Duration == 0 {
		p.Duration = r.elapsed
	}
	r.pending = nil
	r.result = &p
	r.state = StateIdle
	r.emit(Event{Type: EventCompleted, Payload: &p})
	return &p, nil
}

// emit sends ev without blocking. Caller holds r.mu.
func (r *Recorder) emit(ev Event) {
	if r.closed {
		return
	}
	ev.State = r.state
	ev.Elapsed = r.elapsed
	select {
	case r.events <- ev:
	default:
		slog.Debug("capture: event dropped", "type", ev.Type)
	}
}

// EncodePayload is the default [Encoder]. Raw PCM is normalised to
// [audio.SpeechPCM] and wrapped in WAV; encoded containers pass through.
func EncodePayload(data []byte, f audio.Format) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, errors.New("no audio captured")
	}
	if !f.IsPCM() {
		if f.Container == "" {
			return Payload{}, errors.New("unknown stream format")
		}
		return Payload{
			Data:     audio.EncodeBase64(data),
			MIMEType: audio.MIMEType(f.Container),
			Format:   f.Container,
		}, nil
	}

	n := &audio.Normalizer{Target: audio.SpeechPCM}
	pcm := n.Normalize(data, f)
	if len(pcm) == 0 {
		return Payload{}, errors.New("malformed PCM")
	}
	return Payload{
		Data:     audio.EncodeBase64(audio.EncodeWAV(pcm, audio.SpeechPCM)),
		MIMEType: audio.MIMEType(audio.ContainerWAV),
		Format:   audio.ContainerWAV,
		Duration: audio.PCMDuration(len(pcm), audio.SpeechPCM),
	}, nil
}
