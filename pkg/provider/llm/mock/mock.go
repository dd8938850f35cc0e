// Package mock is an in-memory llm.Provider for tests.
//
//	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"intent":"help"}`}}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/tickvox/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider answers Complete from its fields and records every request.
// Configure it before first use.
type Provider struct {
	// CompleteResponse and CompleteErr are returned as-is. Both zero yields
	// (nil, nil), which callers must treat as an empty completion.
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// CompleteFunc, when set, computes the result instead.
	CompleteFunc func(req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Block makes Complete wait for ctx and return its error.
	Block bool

	ModelCapabilities llm.ModelCapabilities

	mu       sync.Mutex
	requests []llm.CompletionRequest
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	switch {
	case p.Block:
		<-ctx.Done()
		return nil, ctx.Err()
	case p.CompleteFunc != nil:
		return p.CompleteFunc(req)
	}
	return p.CompleteResponse, p.CompleteErr
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities { return p.ModelCapabilities }

// Requests returns the requests seen so far, oldest first.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.requests)
}

// CallCount is len(Requests()).
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
