package executor_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/tickvox/internal/executor"
	"github.com/MrWong99/tickvox/internal/gateway"
	"github.com/MrWong99/tickvox/internal/tracker"
)

var alice = executor.User{ID: "u-1", Name: "alice"}

func newRegistry(t *testing.T) (*executor.Registry, *tracker.MemStore) {
	t.Helper()
	ctx := context.Background()
	svc := tracker.NewMemStore()
	if _, err := svc.AddProject(ctx, tracker.Project{ID: 1, Key: "WEB", Name: "Website"}); err != nil {
		t.Fatal(err)
	}
	for _, tk := range []tracker.Ticket{
		{ID: 10, Title: "Login page crashes", Type: tracker.TypeBug, Priority: tracker.PriorityHigh, ProjectID: 1, Assignee: "alice"},
		{ID: 11, Title: "Dark mode", Type: tracker.TypeFeature, ProjectID: 1, Status: tracker.StatusResolved},
		{ID: 12, Title: "Update docs", Assignee: "bob"},
	} {
		if _, err := svc.CreateTicket(ctx, tk); err != nil {
			t.Fatal(err)
		}
	}
	r := executor.NewRegistry()
	if err := executor.RegisterBuiltins(r, svc); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	return r, svc
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()
	r := executor.NewRegistry()
	h := executor.HandlerFunc(func(context.Context, executor.User, map[string]any) (executor.Outcome, error) {
		return executor.Outcome{}, nil
	})
	if err := r.Register("ping", h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("ping", h); err == nil {
		t.Error("duplicate registration must fail")
	}
	if err := r.Register("", h); err == nil {
		t.Error("empty intent must fail")
	}
	if err := r.Register("nil", nil); err == nil {
		t.Error("nil handler must fail")
	}
	if got := r.Intents(); len(got) != 1 || got[0] != "ping" {
		t.Errorf("Intents() = %v", got)
	}
}

func TestRegistry_Validate(t *testing.T) {
	t.Parallel()
	r, _ := newRegistry(t)

	gw := gateway.NewInterpreter(nil, "none")
	if err := r.Validate(gw.Intents()); err != nil {
		t.Errorf("built-ins do not cover the default intent catalogue: %v", err)
	}

	err := r.Validate([]string{"help", "deploy", "rollback"})
	if err == nil {
		t.Fatal("expected error for unregistered intents")
	}
	for _, want := range []string{`"deploy"`, `"rollback"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not name %s", err, want)
		}
	}
}

func TestRegistry_UnknownIntent(t *testing.T) {
	t.Parallel()
	r, _ := newRegistry(t)
	_, err := r.Execute(context.Background(), alice, "dance", nil)
	if !errors.Is(err, executor.ErrUnknownIntent) {
		t.Fatalf("err = %v, want ErrUnknownIntent", err)
	}
}

func TestFindTickets(t *testing.T) {
	t.Parallel()
	r, _ := newRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		entities  map[string]any
		wantIDs   []int64
		wantMsg   string
		wantError string
	}{
		{
			name:     "open tickets",
			entities: map[string]any{"status": "open"},
			wantIDs:  []int64{12, 10},
			wantMsg:  "Found tickets matching your criteria",
		},
		{
			name:     "my tickets",
			entities: map[string]any{"assignee": "me"},
			wantIDs:  []int64{10},
			wantMsg:  "Found tickets matching your criteria",
		},
		{
			name:     "bugs in project",
			entities: map[string]any{"type": "bugs", "project": "website"},
			wantIDs:  []int64{10},
			wantMsg:  "Found tickets matching your criteria",
		},
		{
			name:     "nothing critical",
			entities: map[string]any{"priority": "urgent"},
			wantMsg:  "No tickets found matching your criteria",
		},
		{
			name:      "unknown project",
			entities:  map[string]any{"project": "mobile"},
			wantError: "Project mobile not found",
		},
		{
			name:      "unknown status",
			entities:  map[string]any{"status": "sleeping"},
			wantError: "Unknown ticket status: sleeping",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, err := r.Execute(ctx, alice, executor.IntentFindTickets, tc.entities)
			if tc.wantError != "" {
				var he *executor.HandlerError
				if !errors.As(err, &he) || he.Message != tc.wantError {
					t.Fatalf("err = %v, want HandlerError %q", err, tc.wantError)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if out.Response.Message != tc.wantMsg {
				t.Errorf("message = %q, want %q", out.Response.Message, tc.wantMsg)
			}
			tickets := out.Response.Payload["tickets"].([]tracker.Ticket)
			if len(tickets) != len(tc.wantIDs) {
				t.Fatalf("tickets = %d, want %d", len(tickets), len(tc.wantIDs))
			}
			for i, id := range tc.wantIDs {
				if tickets[i].ID != id {
					t.Errorf("tickets[%d].ID = %d, want %d", i, tickets[i].ID, id)
				}
			}
			if out.Action.Type != "search_tickets" {
				t.Errorf("action = %q", out.Action.Type)
			}
		})
	}
}

func TestCreateTicket(t *testing.T) {
	t.Parallel()
	r, svc := newRegistry(t)
	ctx := context.Background()

	out, err := r.Execute(ctx, alice, executor.IntentCreateTicket, map[string]any{
		"title": "Checkout fails", "type": "defect", "priority": "urgent", "project": "WEB",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	created := out.Response.Payload["ticket"].(tracker.Ticket)
	if created.Type != tracker.TypeBug || created.Priority != tracker.PriorityCritical || created.ProjectID != 1 {
		t.Errorf("created = %+v", created)
	}
	if created.Reporter != "alice" {
		t.Errorf("reporter = %q, want caller", created.Reporter)
	}
	if !strings.HasPrefix(out.Response.Message, "Created ticket #") {
		t.Errorf("message = %q", out.Response.Message)
	}
	if _, err := svc.Ticket(ctx, created.ID); err != nil {
		t.Errorf("ticket not stored: %v", err)
	}

	_, err = r.Execute(ctx, alice, executor.IntentCreateTicket, map[string]any{})
	var he *executor.HandlerError
	if !errors.As(err, &he) || he.Message != "Please provide a title for the ticket" {
		t.Errorf("missing title err = %v", err)
	}
}

func TestUpdateAndAssignTicket(t *testing.T) {
	t.Parallel()
	r, svc := newRegistry(t)
	ctx := context.Background()

	out, err := r.Execute(ctx, alice, executor.IntentUpdateTicket, map[string]any{"ticket_id": float64(12), "status": "in progress"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if out.Response.Message != "Updated ticket #12" {
		t.Errorf("message = %q", out.Response.Message)
	}
	if tk, _ := svc.Ticket(ctx, 12); tk.Status != tracker.StatusInProgress {
		t.Errorf("status = %q", tk.Status)
	}

	out, err = r.Execute(ctx, alice, executor.IntentAssignTicket, map[string]any{"ticket_id": "#12", "assignee": "me"})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if out.Response.Message != "Assigned ticket #12 to alice" {
		t.Errorf("message = %q", out.Response.Message)
	}

	tests := []struct {
		intent   string
		entities map[string]any
		want     string
	}{
		{executor.IntentUpdateTicket, map[string]any{"status": "open"}, "Please specify which ticket to update"},
		{executor.IntentUpdateTicket, map[string]any{"ticket_id": 12}, "Please specify what to change on ticket #12"},
		{executor.IntentUpdateTicket, map[string]any{"ticket_id": 99, "status": "open"}, "Ticket #99 not found"},
		{executor.IntentAssignTicket, map[string]any{"ticket_id": 12}, "Please specify who should work on ticket #12"},
		{executor.IntentGetTicketDetails, map[string]any{"ticket_id": "ticket 404"}, "Ticket #404 not found"},
	}
	for _, tc := range tests {
		_, err := r.Execute(ctx, alice, tc.intent, tc.entities)
		var he *executor.HandlerError
		if !errors.As(err, &he) || he.Message != tc.want {
			t.Errorf("%s %v: err = %v, want %q", tc.intent, tc.entities, err, tc.want)
		}
	}
}

func TestTicketAndProjectDetails(t *testing.T) {
	t.Parallel()
	r, _ := newRegistry(t)
	ctx := context.Background()

	out, err := r.Execute(ctx, alice, executor.IntentGetTicketDetails, map[string]any{"ticket_id": 10})
	if err != nil {
		t.Fatalf("ticket details: %v", err)
	}
	if out.Response.Message != "Ticket #10: Login page crashes (open, high priority)" {
		t.Errorf("message = %q", out.Response.Message)
	}
	if out.Action.Parameters["path"] != "/tickets/10" {
		t.Errorf("action = %+v", out.Action)
	}

	out, err = r.Execute(ctx, alice, executor.IntentGetProjectDetails, map[string]any{"project": "Website"})
	if err != nil {
		t.Fatalf("project details: %v", err)
	}
	if out.Response.Message != "Project Website has 1 open of 2 tickets" {
		t.Errorf("message = %q", out.Response.Message)
	}

	out, err = r.Execute(ctx, alice, executor.IntentFindProjects, map[string]any{"query": "web"})
	if err != nil {
		t.Fatalf("find projects: %v", err)
	}
	if out.Response.Payload["count"] != 1 {
		t.Errorf("count = %v, want 1", out.Response.Payload["count"])
	}
}

func TestNavigateAndHelp(t *testing.T) {
	t.Parallel()
	r, _ := newRegistry(t)
	ctx := context.Background()

	out, err := r.Execute(ctx, alice, executor.IntentNavigate, map[string]any{"destination": "the Dashboard"})
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if out.Action.Type != "navigate" || out.Action.Parameters["path"] != "/dashboard" {
		t.Errorf("action = %+v", out.Action)
	}

	_, err = r.Execute(ctx, alice, executor.IntentNavigate, map[string]any{"destination": "moon"})
	var he *executor.HandlerError
	if !errors.As(err, &he) || he.Message != "Unknown destination: moon" {
		t.Errorf("err = %v", err)
	}

	out, err = r.Execute(ctx, alice, executor.IntentHelp, nil)
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	if _, ok := out.Response.Payload["examples"]; !ok {
		t.Error("help payload missing examples")
	}
}

func TestResponse_Map(t *testing.T) {
	t.Parallel()
	r := executor.Response{Message: "hi", Payload: map[string]any{"count": 2, "message": "shadowed"}}
	m := r.Map()
	if m["message"] != "hi" || m["count"] != 2 {
		t.Errorf("Map() = %v", m)
	}
}

func TestEntityHelpers(t *testing.T) {
	t.Parallel()
	e := map[string]any{"a": "  ", "b": float64(42), "c": "WEB-7", "d": 3.5, "e": "none"}
	if got := executor.String(e, "a", "b"); got != "42" {
		t.Errorf("String = %q, want 42", got)
	}
	for _, tc := range []struct {
		key  string
		want int64
		ok   bool
	}{
		{"b", 42, true},
		{"c", 7, true},
		{"d", 0, false},
		{"e", 0, false},
		{"missing", 0, false},
	} {
		got, ok := executor.ID(e, tc.key)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ID(%q) = %d, %v; want %d, %v", tc.key, got, ok, tc.want, tc.ok)
		}
	}
	if got := executor.Int(e, 25, "missing"); got != 25 {
		t.Errorf("Int default = %d", got)
	}
}
