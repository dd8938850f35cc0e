package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/tickvox/internal/tracker"
)

// Built-in intent names.
const (
	IntentFindTickets       = "find_tickets"
	IntentCreateTicket      = "create_ticket"
	IntentUpdateTicket      = "update_ticket"
	IntentAssignTicket      = "assign_ticket"
	IntentGetTicketDetails  = "get_ticket_details"
	IntentFindProjects      = "find_projects"
	IntentGetProjectDetails = "get_project_details"
	IntentNavigate          = "navigate"
	IntentHelp              = "help"
)

const defaultSearchLimit = 25

// Destinations maps spoken navigation targets to client routes.
var Destinations = map[string]string{
	"dashboard": "/dashboard",
	"home":      "/dashboard",
	"tickets":   "/tickets",
	"projects":  "/projects",
	"reports":   "/reports",
	"settings":  "/settings",
	"profile":   "/profile",
	"history":   "/voice/history",
}

var helpExamples = []string{
	"Show my open tickets",
	"Create a bug called login page crashes in project Website",
	"Assign ticket 42 to me",
	"Set ticket 42 to in progress",
	"Show details for ticket 42",
	"List active projects",
	"Go to the dashboard",
}

// Builtins returns the handlers for every built-in intent, backed by svc.
func Builtins(svc tracker.Service) map[string]Handler {
	b := builtins{svc: svc}
	return map[string]Handler{
		IntentFindTickets:       HandlerFunc(b.findTickets),
		IntentCreateTicket:      HandlerFunc(b.createTicket),
		IntentUpdateTicket:      HandlerFunc(b.updateTicket),
		IntentAssignTicket:      HandlerFunc(b.assignTicket),
		IntentGetTicketDetails:  HandlerFunc(b.ticketDetails),
		IntentFindProjects:      HandlerFunc(b.findProjects),
		IntentGetProjectDetails: HandlerFunc(b.projectDetails),
		IntentNavigate:          HandlerFunc(navigate),
		IntentHelp:              HandlerFunc(help),
	}
}

// RegisterBuiltins registers every built-in handler in r.
func RegisterBuiltins(r *Registry, svc tracker.Service) error {
	var errs []error
	for intent, h := range Builtins(svc) {
		errs = append(errs, r.Register(intent, h))
	}
	return errors.Join(errs...)
}

type builtins struct {
	svc tracker.Service
}

func (b builtins) findTickets(ctx context.Context, user User, e map[string]any) (Outcome, error) {
	f := tracker.TicketFilter{
		Query: String(e, "query", "keyword", "search"),
		Limit: Int(e, defaultSearchLimit, "limit"),
	}
	if s := String(e, "status"); s != "" {
		if f.Status = tracker.NormalizeStatus(s); f.Status == "" {
			return Outcome{}, Failf("Unknown ticket status: %s", s)
		}
	}
	if s := String(e, "priority"); s != "" {
		if f.Priority = tracker.NormalizePriority(s); f.Priority == "" {
			return Outcome{}, Failf("Unknown priority: %s", s)
		}
	}
	if s := String(e, "type", "ticket_type"); s != "" {
		if f.Type = tracker.NormalizeType(s); f.Type == "" {
			return Outcome{}, Failf("Unknown ticket type: %s", s)
		}
	}
	f.Assignee = resolveAssignee(user, String(e, "assignee", "assigned_to"))
	if name := String(e, "project", "project_name"); name != "" {
		p, err := b.project(ctx, name)
		if err != nil {
			return Outcome{}, err
		}
		f.ProjectID = p.ID
	}

	tickets, err := b.svc.FindTickets(ctx, f)
	if err != nil {
		return Outcome{}, fmt.Errorf("find tickets: %w", err)
	}

	msg := "Found tickets matching your criteria"
	if len(tickets) == 0 {
		msg = "No tickets found matching your criteria"
	}
	return Outcome{
		Action: Action{Type: "search_tickets", Parameters: filterParams(f)},
		Response: Response{
			Message: msg,
			Payload: map[string]any{"tickets": tickets, "count": len(tickets)},
		},
	}, nil
}

func (b builtins) createTicket(ctx context.Context, user User, e map[string]any) (Outcome, error) {
	t := tracker.Ticket{
		Title:       String(e, "title", "summary", "name"),
		Description: String(e, "description", "details"),
		Reporter:    user.Name,
		Assignee:    resolveAssignee(user, String(e, "assignee")),
	}
	if t.Title == "" {
		return Outcome{}, Failf("Please provide a title for the ticket")
	}
	if s := String(e, "type", "ticket_type"); s != "" {
		if t.Type = tracker.NormalizeType(s); t.Type == "" {
			return Outcome{}, Failf("Unknown ticket type: %s", s)
		}
	}
	if s := String(e, "priority"); s != "" {
		if t.Priority = tracker.NormalizePriority(s); t.Priority == "" {
			return Outcome{}, Failf("Unknown priority: %s", s)
		}
	}
	if name := String(e, "project", "project_name"); name != "" {
		p, err := b.project(ctx, name)
		if err != nil {
			return Outcome{}, err
		}
		t.ProjectID = p.ID
	}

	created, err := b.svc.CreateTicket(ctx, t)
	if err != nil {
		if errors.Is(err, tracker.ErrInvalid) {
			return Outcome{}, &HandlerError{Message: "The ticket could not be created: invalid fields", Err: err}
		}
		return Outcome{}, fmt.Errorf("create ticket: %w", err)
	}
	return Outcome{
		Action: Action{Type: "create_ticket", Parameters: map[string]any{"ticketId": created.ID}},
		Response: Response{
			Message: fmt.Sprintf("Created ticket #%d: %s", created.ID, created.Title),
			Payload: map[string]any{"ticket": created},
		},
	}, nil
}

func (b builtins) updateTicket(ctx context.Context, _ User, e map[string]any) (Outcome, error) {
	id, ok := ID(e, "ticket_id", "ticketId", "id", "ticket")
	if !ok {
		return Outcome{}, Failf("Please specify which ticket to update")
	}

	var p tracker.TicketPatch
	changed := map[string]any{}
	if s := String(e, "status"); s != "" {
		st := tracker.NormalizeStatus(s)
		if st == "" {
			return Outcome{}, Failf("Unknown ticket status: %s", s)
		}
		p.Status, changed["status"] = &st, st
	}
	if s := String(e, "priority"); s != "" {
		pr := tracker.NormalizePriority(s)
		if pr == "" {
			return Outcome{}, Failf("Unknown priority: %s", s)
		}
		p.Priority, changed["priority"] = &pr, pr
	}
	if s := String(e, "type", "ticket_type"); s != "" {
		ty := tracker.NormalizeType(s)
		if ty == "" {
			return Outcome{}, Failf("Unknown ticket type: %s", s)
		}
		p.Type, changed["type"] = &ty, ty
	}
	if s := String(e, "title"); s != "" {
		p.Title, changed["title"] = &s, s
	}
	if s := String(e, "description"); s != "" {
		p.Description, changed["description"] = &s, s
	}
	if len(changed) == 0 {
		return Outcome{}, Failf("Please specify what to change on ticket #%d", id)
	}

	t, err := b.svc.UpdateTicket(ctx, id, p)
	if err != nil {
		return Outcome{}, ticketErr(id, "update", err)
	}
	changed["ticketId"] = id
	return Outcome{
		Action: Action{Type: "update_ticket", Parameters: changed},
		Response: Response{
			Message: fmt.Sprintf("Updated ticket #%d", t.ID),
			Payload: map[string]any{"ticket": t},
		},
	}, nil
}

func (b builtins) assignTicket(ctx context.Context, user User, e map[string]any) (Outcome, error) {
	id, ok := ID(e, "ticket_id", "ticketId", "id", "ticket")
	if !ok {
		return Outcome{}, Failf("Please specify which ticket to assign")
	}
	assignee := resolveAssignee(user, String(e, "assignee", "assigned_to", "user"))
	if assignee == "" {
		return Outcome{}, Failf("Please specify who should work on ticket #%d", id)
	}

	t, err := b.svc.UpdateTicket(ctx, id, tracker.TicketPatch{Assignee: &assignee})
	if err != nil {
		return Outcome{}, ticketErr(id, "assign", err)
	}
	return Outcome{
		Action: Action{Type: "assign_ticket", Parameters: map[string]any{"ticketId": id, "assignee": assignee}},
		Response: Response{
			Message: fmt.Sprintf("Assigned ticket #%d to %s", t.ID, assignee),
			Payload: map[string]any{"ticket": t},
		},
	}, nil
}

func (b builtins) ticketDetails(ctx context.Context, _ User, e map[string]any) (Outcome, error) {
	id, ok := ID(e, "ticket_id", "ticketId", "id", "ticket")
	if !ok {
		return Outcome{}, Failf("Please specify which ticket to show")
	}
	t, err := b.svc.Ticket(ctx, id)
	if err != nil {
		return Outcome{}, ticketErr(id, "load", err)
	}
	return Outcome{
		Action: Action{Type: "view_ticket", Parameters: map[string]any{"ticketId": id, "path": fmt.Sprintf("/tickets/%d", id)}},
		Response: Response{
			Message: fmt.Sprintf("Ticket #%d: %s (%s, %s priority)", t.ID, t.Title, strings.ReplaceAll(t.Status, "_", " "), t.Priority),
			Payload: map[string]any{"ticket": t},
		},
	}, nil
}

func (b builtins) findProjects(ctx context.Context, _ User, e map[string]any) (Outcome, error) {
	f := tracker.ProjectFilter{
		Query:  String(e, "query", "name", "project"),
		Status: strings.ToLower(String(e, "status")),
	}
	projects, err := b.svc.FindProjects(ctx, f)
	if err != nil {
		return Outcome{}, fmt.Errorf("find projects: %w", err)
	}
	msg := "Found projects matching your criteria"
	if len(projects) == 0 {
		msg = "No projects found matching your criteria"
	}
	return Outcome{
		Action: Action{Type: "search_projects", Parameters: map[string]any{"query": f.Query, "status": f.Status}},
		Response: Response{
			Message: msg,
			Payload: map[string]any{"projects": projects, "count": len(projects)},
		},
	}, nil
}

func (b builtins) projectDetails(ctx context.Context, _ User, e map[string]any) (Outcome, error) {
	var (
		p   tracker.Project
		err error
	)
	if id, ok := ID(e, "project_id", "projectId", "id"); ok {
		p, err = b.svc.Project(ctx, id)
		if errors.Is(err, tracker.ErrNotFound) {
			return Outcome{}, &HandlerError{Message: fmt.Sprintf("Project #%d not found", id), Err: err}
		}
	} else if name := String(e, "project", "project_name", "name"); name != "" {
		p, err = b.project(ctx, name)
	} else {
		return Outcome{}, Failf("Please specify which project to show")
	}
	if err != nil {
		return Outcome{}, err
	}

	tickets, err := b.svc.FindTickets(ctx, tracker.TicketFilter{ProjectID: p.ID})
	if err != nil {
		return Outcome{}, fmt.Errorf("project tickets: %w", err)
	}
	open := 0
	for _, t := range tickets {
		if t.Status != tracker.StatusResolved && t.Status != tracker.StatusClosed {
			open++
		}
	}
	return Outcome{
		Action: Action{Type: "view_project", Parameters: map[string]any{"projectId": p.ID, "path": fmt.Sprintf("/projects/%d", p.ID)}},
		Response: Response{
			Message: fmt.Sprintf("Project %s has %d open of %d tickets", p.Name, open, len(tickets)),
			Payload: map[string]any{"project": p, "openTickets": open, "totalTickets": len(tickets)},
		},
	}, nil
}

func navigate(_ context.Context, _ User, e map[string]any) (Outcome, error) {
	dest := strings.ToLower(String(e, "destination", "page", "target"))
	dest = strings.TrimPrefix(dest, "the ")
	if dest == "" {
		return Outcome{}, Failf("Please say where you want to go")
	}
	path, ok := Destinations[dest]
	if !ok {
		path, ok = Destinations[strings.TrimSuffix(dest, " page")]
	}
	if !ok {
		return Outcome{}, Failf("Unknown destination: %s", dest)
	}
	return Outcome{
		Action:   Action{Type: "navigate", Parameters: map[string]any{"path": path}},
		Response: Response{Message: "Navigating to " + dest},
	}, nil
}

func help(context.Context, User, map[string]any) (Outcome, error) {
	return Outcome{
		Action: Action{Type: "show_help"},
		Response: Response{
			Message: "You can search, create, update and assign tickets, look up projects, or navigate. Try: " + helpExamples[0],
			Payload: map[string]any{"examples": helpExamples},
		},
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (b builtins) project(ctx context.Context, name string) (tracker.Project, error) {
	p, err := b.svc.ProjectByName(ctx, name)
	if errors.Is(err, tracker.ErrNotFound) {
		return tracker.Project{}, &HandlerError{Message: fmt.Sprintf("Project %s not found", name), Err: err}
	}
	if err != nil {
		return tracker.Project{}, fmt.Errorf("resolve project %q: %w", name, err)
	}
	return p, nil
}

func ticketErr(id int64, op string, err error) error {
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		return &HandlerError{Message: fmt.Sprintf("Ticket #%d not found", id), Err: err}
	case errors.Is(err, tracker.ErrInvalid):
		return &HandlerError{Message: fmt.Sprintf("Ticket #%d could not be changed: invalid fields", id), Err: err}
	default:
		return fmt.Errorf("%s ticket %d: %w", op, id, err)
	}
}

// resolveAssignee maps self references ("me", "myself") to the caller.
func resolveAssignee(user User, name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return ""
	case "me", "myself", "my", "mine", "i":
		return user.Name
	}
	return name
}

func filterParams(f tracker.TicketFilter) map[string]any {
	out := map[string]any{}
	for k, v := range map[string]string{
		"status": f.Status, "priority": f.Priority, "type": f.Type,
		"assignee": f.Assignee, "query": f.Query,
	} {
		if v != "" {
			out[k] = v
		}
	}
	if f.ProjectID != 0 {
		out["projectId"] = f.ProjectID
	}
	return out
}
