package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/tickvox/pkg/audio"
)

// PCMSource is decoded 16-bit PCM.
type PCMSource struct {
	PCM    []byte
	Format audio.Format
}

func (s *PCMSource) Duration() time.Duration { return audio.PCMDuration(len(s.PCM), s.Format) }
func (s *PCMSource) Close() error            { return nil }

// offset returns the byte offset of t, aligned to a frame.
func (s *PCMSource) offset(t time.Duration) int {
	frame := s.Format.Channels * 2
	bytesPerSec := s.Format.SampleRate * frame
	n := int(int64(t) * int64(bytesPerSec) / int64(time.Second))
	n -= n % frame
	return min(max(n, 0), len(s.PCM))
}

// WAVDecoder decodes WAV payloads, the container every TTS backend in this
// module can produce. Other containers are rejected.
type WAVDecoder struct{}

func (WAVDecoder) Decode(_ context.Context, data []byte, mime string) (Source, error) {
	if c := audio.ContainerFromMIME(mime); c != "" && c != audio.ContainerWAV {
		return nil, fmt.Errorf("unsupported container %q", c)
	}
	pcm, f, err := audio.ParseWAV(data)
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, errors.New("no samples")
	}
	return &PCMSource{PCM: pcm, Format: f}, nil
}

// WriterSink writes PCM to W at real-time pace, e.g. to a pipe into aplay.
// It only accepts [PCMSource].
type WriterSink struct {
	W io.Writer
	// Block is the write size. Default 20ms of audio.
	Block time.Duration
}

func (s *WriterSink) Play(src Source, from time.Duration) (Voice, error) {
	pcm, ok := src.(*PCMSource)
	if !ok {
		return nil, fmt.Errorf("writer sink: unsupported source %T", src)
	}
	block := s.Block
	if block <= 0 {
		block = 20 * time.Millisecond
	}
	v := &writerVoice{
		src:  pcm,
		pos:  from,
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	go v.run(s.W, block)
	return v, nil
}

type writerVoice struct {
	src      *PCMSource
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	pos time.Duration
}

func (v *writerVoice) run(w io.Writer, block time.Duration) {
	defer close(v.done)
	t := time.NewTicker(block)
	defer t.Stop()
	for {
		v.mu.Lock()
		pos := v.pos
		v.mu.Unlock()

		start := v.src.offset(pos)
		end := v.src.offset(pos + block)
		if start >= len(v.src.PCM) {
			return
		}
		if _, err := w.Write(v.src.PCM[start:end]); err != nil {
			return
		}
		v.mu.Lock()
		v.pos = min(pos+block, v.src.Duration())
		v.mu.Unlock()

		select {
		case <-v.stop:
			return
		case <-t.C:
		}
	}
}

func (v *writerVoice) Position() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pos
}

func (v *writerVoice) Done() <-chan struct{} { return v.done }

func (v *writerVoice) Stop() error {
	v.stopOnce.Do(func() { close(v.stop) })
	return nil
}
