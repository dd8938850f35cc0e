// Package api is the HTTP surface of the voice command service.
//
// Every /api route requires a verified bearer token (see [Authenticator]).
// Errors are always JSON of the form {"success": false, "error": "..."} and
// never carry internal details; those are logged instead.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/MrWong99/tickvox/internal/executor"
	"github.com/MrWong99/tickvox/internal/history"
	"github.com/MrWong99/tickvox/internal/observe"
	"github.com/MrWong99/tickvox/internal/orchestrator"
	"github.com/MrWong99/tickvox/internal/settings"
	"github.com/MrWong99/tickvox/pkg/provider/tts"
)

// DefaultMaxBodyBytes caps request bodies. Audio commands are base64 and
// dominate the size.
const DefaultMaxBodyBytes = 10 << 20

// Processor runs a command through the pipeline.
type Processor interface {
	Process(ctx context.Context, user executor.User, in orchestrator.Input) orchestrator.Result
}

// Synthesizer renders speech for the voice test endpoint.
type Synthesizer interface {
	TextToSpeech(ctx context.Context, text, voiceID string, speed float64) (string, string, error)
	Voices(ctx context.Context) ([]tts.VoiceProfile, error)
}

// Option configures a [Server].
type Option func(*Server)

// WithSynthesizer enables the voice test endpoint and provider voice listing.
func WithSynthesizer(s Synthesizer) Option {
	return func(srv *Server) { srv.tts = s }
}

// WithRateLimiter limits command submissions per user.
func WithRateLimiter(l *RateLimiter) Option {
	return func(srv *Server) { srv.limiter = l }
}

// WithMaxBodyBytes overrides [DefaultMaxBodyBytes].
func WithMaxBodyBytes(n int64) Option {
	return func(srv *Server) {
		if n > 0 {
			srv.maxBody = n
		}
	}
}

// WithMetrics overrides the metrics used by the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// WithRoute mounts an additional authenticated handler, e.g. the MCP
// endpoint. pattern uses [http.ServeMux] syntax.
func WithRoute(pattern string, h http.Handler) Option {
	return func(srv *Server) { srv.extra = append(srv.extra, route{pattern, h}) }
}

// WithPublicRoute mounts a handler outside authentication, e.g. health
// probes or /metrics.
func WithPublicRoute(pattern string, h http.Handler) Option {
	return func(srv *Server) { srv.public = append(srv.public, route{pattern, h}) }
}

type route struct {
	pattern string
	handler http.Handler
}

// Server holds the collaborators of the HTTP handlers.
type Server struct {
	proc     Processor
	settings settings.Store
	history  history.Store
	auth     *Authenticator
	tts      Synthesizer
	limiter  *RateLimiter
	metrics  *observe.Metrics
	validate *validator.Validate
	maxBody  int64
	extra    []route
	public   []route
}

// New returns a Server. All four collaborators are required.
func New(proc Processor, st settings.Store, hist history.Store, auth *Authenticator, opts ...Option) (*Server, error) {
	var errs []error
	if proc == nil {
		errs = append(errs, errors.New("api: processor is required"))
	}
	if st == nil {
		errs = append(errs, errors.New("api: settings store is required"))
	}
	if hist == nil {
		errs = append(errs, errors.New("api: history store is required"))
	}
	if auth == nil {
		errs = append(errs, errors.New("api: authenticator is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	s := &Server{
		proc:     proc,
		settings: st,
		history:  hist,
		auth:     auth,
		metrics:  observe.DefaultMetrics(),
		validate: newValidator(),
		maxBody:  DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the complete HTTP handler including telemetry middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

// Register adds all routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	authed := func(h http.HandlerFunc) http.Handler { return s.auth.Middleware(h) }
	limited := func(h http.HandlerFunc) http.Handler { return s.auth.Middleware(s.limit(h)) }

	mux.Handle("POST /api/voice/command", limited(s.handleCommand))
	mux.Handle("GET /api/voice/history", authed(s.handleHistoryList))
	mux.Handle("GET /api/voice/history/{id}", authed(s.handleHistoryGet))
	mux.Handle("DELETE /api/voice/history/{id}", authed(s.handleHistoryDelete))
	mux.Handle("DELETE /api/voice/history", authed(s.handleHistoryClear))
	mux.Handle("GET /api/voice/settings", authed(s.handleSettingsGet))
	mux.Handle("PUT /api/voice/settings", authed(s.handleSettingsUpdate))
	mux.Handle("POST /api/voice/settings/reset", authed(s.handleSettingsReset))
	mux.Handle("GET /api/voice/voices", authed(s.handleVoices))
	mux.Handle("POST /api/voice/test", limited(s.handleVoiceTest))

	for _, r := range s.extra {
		mux.Handle(r.pattern, s.auth.Middleware(r.handler))
	}
	for _, r := range s.public {
		mux.Handle(r.pattern, r.handler)
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"success":false,"error":"internal error"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Success: false, Error: msg})
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
// On failure it writes the response and returns false.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}
