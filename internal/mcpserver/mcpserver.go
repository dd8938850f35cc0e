// Package mcpserver exposes voice command submission to MCP clients.
//
// The endpoint runs in stateless streamable-HTTP mode: every request builds a
// server bound to the user authenticated for that request, so a session can
// never act on behalf of someone else. Authentication itself happens in front
// of [Server.Handler] (see api.WithRoute).
//
// Tools:
//   - "submit_command"  runs a text command through the pipeline.
//   - "list_history"    pages through the caller's command history.
//   - "get_settings"    returns the caller's voice settings.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/tickvox/internal/api"
	"github.com/MrWong99/tickvox/internal/executor"
	"github.com/MrWong99/tickvox/internal/history"
	"github.com/MrWong99/tickvox/internal/orchestrator"
	"github.com/MrWong99/tickvox/internal/settings"
)

// Implementation names this server in the MCP handshake.
var Implementation = &mcpsdk.Implementation{Name: "tickvox", Version: "1.0.0"}

// Server builds per-user MCP servers over the command pipeline.
type Server struct {
	proc     api.Processor
	settings settings.Store
	history  history.Store
}

// New returns a Server. All collaborators are required.
func New(proc api.Processor, st settings.Store, hist history.Store) (*Server, error) {
	if proc == nil || st == nil || hist == nil {
		return nil, errors.New("mcpserver: processor, settings and history are required")
	}
	return &Server{proc: proc, settings: st, history: hist}, nil
}

// Handler serves the streamable-HTTP transport. Requests must carry an
// authenticated user in their context; others are rejected with 401.
func (s *Server) Handler() http.Handler {
	h := mcpsdk.NewStreamableHTTPHandler(func(r *http.Request) *mcpsdk.Server {
		u, _ := api.UserFrom(r.Context())
		return s.ForUser(u)
	}, &mcpsdk.StreamableHTTPOptions{Stateless: true})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := api.UserFrom(r.Context()); !ok || u.ID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// ForUser returns an MCP server whose tools act as u.
func (s *Server) ForUser(u executor.User) *mcpsdk.Server {
	srv := mcpsdk.NewServer(Implementation, nil)
	t := &tools{Server: s, user: u}

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "submit_command",
		Description: "Run a spoken-style command such as \"show my open bugs\" or \"create a ticket for the login page\" against the ticket system.",
	}, t.submitCommand)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "list_history",
		Description: "List previously submitted voice commands, newest first.",
	}, t.listHistory)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "get_settings",
		Description: "Return the caller's voice settings, including wake word and custom commands.",
	}, t.getSettings)

	return srv
}

type tools struct {
	*Server
	user executor.User
}

type submitArgs struct {
	Text            string `json:"text" jsonschema:"the command text"`
	RequireWakeWord bool   `json:"require_wake_word,omitempty" jsonschema:"only act when the text starts with the user's wake word"`
}

func (t *tools) submitCommand(ctx context.Context, _ *mcpsdk.CallToolRequest, in submitArgs) (*mcpsdk.CallToolResult, any, error) {
	res := t.proc.Process(ctx, t.user, orchestrator.Input{
		Type:            orchestrator.InputText,
		Content:         in.Text,
		RequireWakeWord: in.RequireWakeWord,
	})
	// Audio is meaningless to MCP clients.
	res.AudioData, res.AudioMIMEType = "", ""
	return jsonResult(res, !res.Success)
}

type historyArgs struct {
	Page   int    `json:"page,omitempty" jsonschema:"1-based page number"`
	Limit  int    `json:"limit,omitempty" jsonschema:"entries per page, at most 100"`
	Status string `json:"status,omitempty" jsonschema:"processing, successful or failed"`
	Intent string `json:"intent,omitempty" jsonschema:"only entries with this intent"`
}

func (t *tools) listHistory(ctx context.Context, _ *mcpsdk.CallToolRequest, in historyArgs) (*mcpsdk.CallToolResult, any, error) {
	f := history.Filter{Status: history.Status(in.Status), Intent: in.Intent}
	if f.Status != "" && !f.Status.Valid() {
		return errorResult(fmt.Sprintf("unknown status %q", in.Status)), nil, nil
	}
	page, err := t.history.Query(ctx, t.user.ID, f, max(in.Page, 1), in.Limit)
	if err != nil {
		return nil, nil, fmt.Errorf("mcpserver: list history: %w", err)
	}
	return jsonResult(page, false)
}

func (t *tools) getSettings(ctx context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, any, error) {
	vs, err := t.settings.Get(ctx, t.user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("mcpserver: get settings: %w", err)
	}
	return jsonResult(vs, false)
}

func jsonResult(v any, isError bool) (*mcpsdk.CallToolResult, any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(b)}},
		IsError: isError,
	}, nil, nil
}

func errorResult(msg string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
		IsError: true,
	}
}
