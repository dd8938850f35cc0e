package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/tickvox/internal/observe"
	"github.com/MrWong99/tickvox/pkg/provider/llm"
)

const defaultTemperature = 0.1

// IntentSpec describes one intent the model may choose.
type IntentSpec struct {
	Name        string
	Description string
	// Entities lists the entity keys the model should try to fill.
	Entities []string
}

// DefaultIntents is the catalogue of intents understood by the built-in
// command handlers.
var DefaultIntents = []IntentSpec{
	{Name: "find_tickets", Description: "search or list tickets", Entities: []string{"status", "priority", "type", "assignee", "project", "query"}},
	{Name: "create_ticket", Description: "create a new ticket", Entities: []string{"title", "description", "type", "priority", "project"}},
	{Name: "update_ticket", Description: "change fields of an existing ticket", Entities: []string{"ticket_id", "status", "priority", "title"}},
	{Name: "assign_ticket", Description: "assign a ticket to a person", Entities: []string{"ticket_id", "assignee"}},
	{Name: "get_ticket_details", Description: "show one ticket", Entities: []string{"ticket_id"}},
	{Name: "find_projects", Description: "search or list projects", Entities: []string{"query", "status"}},
	{Name: "get_project_details", Description: "show one project", Entities: []string{"project_id", "project"}},
	{Name: "navigate", Description: "open a page of the application", Entities: []string{"destination"}},
	{Name: "help", Description: "explain what commands are available", Entities: nil},
}

const systemPromptTemplate = `You are the command interpreter of a ticket tracking application.

Your task: map the user's spoken or typed command to exactly one intent and extract its entities.

Known intents:
%s
Rules:
- Choose the single best matching intent name from the list above.
- If nothing fits, still answer with your best short snake_case intent name.
- Entity values are plain strings or numbers. Omit entities that are not mentioned.
- Ticket and project identifiers are numbers when spoken as numbers.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"intent": "<intent>", "entities": {"<key>": <value>}, "confidence": <0.0-1.0>}`

// Interpretation is the structured result of Interpret.
type Interpretation struct {
	Intent     string
	Entities   map[string]any
	Confidence float64
}

// InterpreterOption configures an [Interpreter].
type InterpreterOption func(*Interpreter)

// WithInterpretationTimeout bounds each Interpret call. Non-positive values
// keep the default.
func WithInterpretationTimeout(d time.Duration) InterpreterOption {
	return func(i *Interpreter) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithIntents replaces the intent catalogue presented to the model.
func WithIntents(specs []IntentSpec) InterpreterOption {
	return func(i *Interpreter) { i.intents = specs }
}

// WithTemperature sets the sampling temperature. Default: 0.1.
func WithTemperature(temp float64) InterpreterOption {
	return func(i *Interpreter) { i.temperature = temp }
}

// WithInterpreterMetrics overrides the metrics sink.
func WithInterpreterMetrics(m *observe.Metrics) InterpreterOption {
	return func(i *Interpreter) { i.metrics = m }
}

// Interpreter extracts an intent and its entities from a transcript using an
// [llm.Provider]. It is safe for concurrent use.
type Interpreter struct {
	llm         llm.Provider
	name        string
	timeout     time.Duration
	temperature float64
	intents     []IntentSpec
	metrics     *observe.Metrics
	prompt      string
}

// NewInterpreter returns an Interpreter backed by provider. name labels the
// provider in telemetry.
func NewInterpreter(provider llm.Provider, name string, opts ...InterpreterOption) *Interpreter {
	i := &Interpreter{
		llm:         provider,
		name:        name,
		timeout:     DefaultInterpretationTimeout,
		temperature: defaultTemperature,
		intents:     DefaultIntents,
		metrics:     observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(i)
	}
	i.prompt = buildSystemPrompt(i.intents)
	return i
}

// Intents returns the names of every intent the interpreter offers the model.
func (i *Interpreter) Intents() []string {
	names := make([]string, len(i.intents))
	for n, s := range i.intents {
		names[n] = s.Name
	}
	return names
}

// Interpret asks the model for the intent behind transcript. cmdContext is
// optional client state (current page, selected ticket) forwarded verbatim.
//
// All failures are [*InterpretationError].
func (i *Interpreter) Interpret(ctx context.Context, transcript string, cmdContext map[string]any) (Interpretation, error) {
	ctx, span := observe.StartSpan(ctx, "gateway.interpret")
	defer span.End()

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		err := errors.New("gateway: empty transcript")
		return Interpretation{}, &InterpretationError{Reason: "Nothing to interpret", Err: err}
	}

	userMsg := transcript
	if len(cmdContext) > 0 {
		if raw, err := json.Marshal(cmdContext); err == nil {
			userMsg = fmt.Sprintf("Command: %s\n\nContext: %s", transcript, raw)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	start := time.Now()
	resp, err := i.llm.Complete(callCtx, llm.CompletionRequest{
		SystemPrompt: i.prompt,
		Messages:     []llm.Message{{Role: "user", Content: userMsg}},
		Temperature:  i.temperature,
		JSONMode:     true,
	})
	recordStage(ctx, callCtx, i.metrics, observe.StageLLM, i.name, start, err)

	if err != nil {
		observe.RecordError(span, err)
		reason, marker := failureReason(ctx, callCtx, StageInterpretation, i.timeout, "Failed to interpret command")
		observe.Logger(ctx).Warn("interpretation failed", "provider", i.name, "err", err)
		return Interpretation{}, &InterpretationError{Reason: reason, Err: wrapCause(marker, err)}
	}

	if resp == nil {
		err := errors.New("gateway: nil completion")
		observe.RecordError(span, err)
		return Interpretation{}, &InterpretationError{Reason: "Failed to interpret command", Err: err}
	}
	out, err := parseInterpretation(resp.Content)
	if err != nil {
		observe.RecordError(span, err)
		observe.Logger(ctx).Warn("unparseable interpretation", "provider", i.name, "err", err)
		return Interpretation{}, &InterpretationError{Reason: "Could not understand the command", Err: err}
	}
	return out, nil
}

type interpretationJSON struct {
	Intent     string         `json:"intent"`
	Entities   map[string]any `json:"entities"`
	Confidence *float64       `json:"confidence"`
}

func parseInterpretation(content string) (Interpretation, error) {
	var r interpretationJSON
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &r); err != nil {
		return Interpretation{}, fmt.Errorf("gateway: parse interpretation: %w", err)
	}
	intent := strings.ToLower(strings.TrimSpace(r.Intent))
	if intent == "" {
		return Interpretation{}, errors.New("gateway: interpretation has no intent")
	}
	out := Interpretation{Intent: intent, Entities: r.Entities, Confidence: 1}
	if out.Entities == nil {
		out.Entities = map[string]any{}
	}
	if r.Confidence != nil {
		out.Confidence = min(max(*r.Confidence, 0), 1)
	}
	return out, nil
}

func buildSystemPrompt(specs []IntentSpec) string {
	var sb strings.Builder
	for _, s := range specs {
		sb.WriteString("- ")
		sb.WriteString(s.Name)
		if s.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(s.Description)
		}
		if len(s.Entities) > 0 {
			sb.WriteString(" (entities: ")
			sb.WriteString(strings.Join(s.Entities, ", "))
			sb.WriteString(")")
		}
		sb.WriteByte('\n')
	}
	return fmt.Sprintf(systemPromptTemplate, sb.String())
}

// stripMarkdown removes optional ```json fences some models wrap around
// their output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
