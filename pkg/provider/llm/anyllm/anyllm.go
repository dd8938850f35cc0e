// Package anyllm reaches the non-OpenAI interpretation backends through
// github.com/mozilla-ai/any-llm-go. One [Provider] wraps one vendor backend
// and one model:
//
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
//
// Without an API key option each backend reads its usual environment
// variable (ANTHROPIC_API_KEY, GEMINI_API_KEY, ...). Local backends (ollama,
// llamacpp, llamafile) connect to their default address unless
// anyllmlib.WithBaseURL is given.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/tickvox/pkg/provider/llm"
)

type backendFactory func(opts ...anyllmlib.Option) (anyllmlib.Provider, error)

// backends maps vendor names to any-llm-go constructors. The constructors
// return concrete types, hence the wrapping.
var backends = map[string]backendFactory{
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
}

// Backends returns the supported vendor names in sorted order.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ErrUnsupportedBackend is returned by [New] for vendor names not listed by
// [Backends].
var ErrUnsupportedBackend = errors.New("anyllm: unsupported backend")

// Provider implements llm.Provider on top of one any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New creates a Provider for the named vendor backend and model.
func New(backendName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	factory, ok := backends[strings.ToLower(backendName)]
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %s)", ErrUnsupportedBackend, backendName, strings.Join(Backends(), ", "))
	}
	backend, err := factory(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %s backend: %w", backendName, err)
	}
	return &Provider{backend: backend, model: model}, nil
}

// jsonInstruction is appended to the system prompt in JSON mode. Most
// any-llm backends have no response-format switch, so the prompt carries it.
const jsonInstruction = "Respond with a single JSON object and nothing else."

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.model)
	}

	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	system := req.SystemPrompt
	if req.JSONMode {
		system = strings.TrimSpace(system + "\n\n" + jsonInstruction)
	}

	messages := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if system != "" {
		messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: system})
	}
	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: messages}
	if t := req.Temperature; t != 0 {
		params.Temperature = &t
	}
	if n := req.MaxTokens; n > 0 {
		params.MaxTokens = &n
	}
	return params
}

// modelFamily describes models whose lowercased name starts with prefix.
type modelFamily struct {
	prefix  string
	context int
	output  int
	json    bool
}

// families is checked in order, so longer prefixes come first. JSON mode is
// only reported where the vendor API enforces it; the prompt instruction is
// sent regardless.
var families = []modelFamily{
	{"claude-3-opus", 200_000, 4_096, false},
	{"claude", 200_000, 8_192, false},
	{"gemini-1.5-pro", 2_097_152, 8_192, true},
	{"gemini-1.5-flash", 1_048_576, 8_192, true},
	{"gemini-2", 1_048_576, 8_192, true},
	{"gemini", 128_000, 8_192, true},
	{"mistral-large", 128_000, 4_096, true},
	{"mistral-small", 32_000, 4_096, true},
	{"deepseek-chat", 64_000, 8_192, true},
	{"llama-3.1", 128_000, 4_096, false},
	{"llama3", 8_192, 2_048, false},
}

func modelCapabilities(model string) llm.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, f := range families {
		if strings.HasPrefix(lower, f.prefix) {
			return llm.ModelCapabilities{ContextWindow: f.context, MaxOutputTokens: f.output, SupportsJSONMode: f.json}
		}
	}
	return llm.ModelCapabilities{ContextWindow: 32_000, MaxOutputTokens: 2_048}
}
