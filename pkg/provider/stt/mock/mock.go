// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to verify that the caller submits the expected audio and to feed
// controlled Transcript values without a live transcription backend.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Transcript{Text: "show my tickets"}}
//	tr, _ := p.Transcribe(ctx, stt.Request{Audio: clip, Format: "wav"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tickvox/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is a copy of the Request passed to Transcribe.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Err is nil.
	Result stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Block makes Transcribe wait until ctx is done and return ctx.Err().
	// Useful for exercising timeouts.
	Block bool

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	p.mu.Lock()
	cp := req
	cp.Audio = append([]byte(nil), req.Audio...)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: cp})
	block := p.Block
	res, err := p.Result, p.Err
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return stt.Transcript{}, ctx.Err()
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	return res, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
