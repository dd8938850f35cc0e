package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/MrWong99/tickvox/pkg/audio"
)

// ReaderDevice streams audio from whatever Source returns, e.g. a file, a pipe
// from arecord, or a network source. It is the device used by the CLI client.
type ReaderDevice struct {
	// Source yields a fresh reader per recording.
	Source func(ctx context.Context) (io.ReadCloser, error)
	// Format describes the bytes Source yields.
	Format audio.Format
	// ChunkSize is the read size. Default 3200 bytes (100 ms of speech PCM).
	ChunkSize int
}

// FileDevice returns a ReaderDevice reading path. WAV files are unwrapped to
// PCM; other files are passed through with a format derived from mime.
func FileDevice(path, mime string) *ReaderDevice {
	container := audio.ContainerFromMIME(mime)
	d := &ReaderDevice{Format: audio.Format{Container: container}}
	d.Source = func(context.Context) (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		if container != audio.ContainerWAV && container != "" {
			return f, nil
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		pcm, format, err := audio.ParseWAV(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		d.Format = format
		return io.NopCloser(bytes.NewReader(pcm)), nil
	}
	return d
}

// Open implements [Device].
func (d *ReaderDevice) Open(ctx context.Context) (Stream, error) {
	if d.Source == nil {
		return nil, errors.New("no source configured")
	}
	rc, err := d.Source(ctx)
	if err != nil {
		return nil, err
	}
	size := d.ChunkSize
	if size <= 0 {
		size = 3200
	}
	s := &readerStream{
		rc:     rc,
		format: d.Format,
		chunks: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go s.run(size)
	return s, nil
}

type readerStream struct {
	rc     io.ReadCloser
	format audio.Format
	chunks chan []byte
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

func (s *readerStream) run(size int) {
	defer close(s.chunks)
	for {
		buf := make([]byte, size)
		n, err := s.rc.Read(buf)
		if n > 0 {
			select {
			case s.chunks <- buf[:n]:
			case <-s.done:
				return
			}
		}
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, io.EOF) {
				// A drained source behaves like a silent microphone.
				<-s.done
				return
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
	}
}

func (s *readerStream) Chunks() <-chan []byte { return s.chunks }
func (s *readerStream) Format() audio.Format  { return s.format }

func (s *readerStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *readerStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.rc.Close()
	})
	return err
}
