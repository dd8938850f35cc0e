// Package llm is the interface the interpretation gateway uses to turn a
// transcript into an intent. Backends live in subpackages; all of them must
// be safe for concurrent use.
package llm

import "context"

// Provider is a chat-completion backend.
type Provider interface {
	// Complete runs req to completion. It returns ctx's error if ctx ends
	// first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities describes the configured model and never changes.
	Capabilities() ModelCapabilities
}

// Message is one turn of a conversation. Role is "system", "user" or
// "assistant".
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is a single completion call.
type CompletionRequest struct {
	// SystemPrompt is sent ahead of Messages, as a system message where the
	// backend has no dedicated field.
	SystemPrompt string
	Messages     []Message

	// Temperature in [0, 2]; zero keeps the backend default. So does a zero
	// MaxTokens.
	Temperature float64
	MaxTokens   int

	// JSONMode asks for a single JSON object. Backends that cannot enforce
	// it ignore the flag, so callers validate the reply regardless.
	JSONMode bool
}

// CompletionResponse is the reply text and its token cost.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ModelCapabilities are the static limits of a model. Token counts cover
// input plus output for ContextWindow and one reply for MaxOutputTokens.
type ModelCapabilities struct {
	ContextWindow    int
	MaxOutputTokens  int
	SupportsJSONMode bool
}
