package api

import (
	"cmp"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/tickvox/internal/gateway"
	"github.com/MrWong99/tickvox/internal/history"
	"github.com/MrWong99/tickvox/internal/observe"
	"github.com/MrWong99/tickvox/internal/orchestrator"
	"github.com/MrWong99/tickvox/internal/settings"
)

// ─── Commands ────────────────────────────────────────────────────────────────

// handleCommand answers 200 with the pipeline result for every processed
// command, including failed ones: the attempt exists and the body says why
// it failed. Only input and bookkeeping errors use other status codes.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	user, _ := UserFrom(r.Context())

	res := s.proc.Process(r.Context(), user, orchestrator.Input{
		Type:            orchestrator.InputType(req.Type),
		Content:         req.Content,
		Format:          req.Format,
		Context:         req.Context,
		RequireWakeWord: req.RequireWakeWord,
	})

	switch res.Error {
	case orchestrator.MsgInvalidInput:
		writeJSON(w, http.StatusBadRequest, res)
	case orchestrator.MsgRecordFailed:
		writeJSON(w, http.StatusInternalServerError, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// ─── History ─────────────────────────────────────────────────────────────────

type historyResponse struct {
	Success    bool               `json:"success"`
	Items      []history.Attempt  `json:"items"`
	Pagination history.Pagination `json:"pagination"`
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be a number")
		return
	}
	limit, err := intParam(q.Get("limit"), history.DefaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a number")
		return
	}

	var f history.Filter
	if f.From, err = timeParam(q.Get("from"), false); err != nil {
		writeError(w, http.StatusBadRequest, "from must be a date (YYYY-MM-DD) or RFC 3339 time")
		return
	}
	if f.To, err = timeParam(q.Get("to"), true); err != nil {
		writeError(w, http.StatusBadRequest, "to must be a date (YYYY-MM-DD) or RFC 3339 time")
		return
	}
	if st := q.Get("status"); st != "" {
		f.Status = history.Status(st)
		if !f.Status.Valid() {
			writeError(w, http.StatusBadRequest, "status must be one of: processing, successful, failed")
			return
		}
	}
	f.Intent = strings.TrimSpace(q.Get("intent"))

	p, err := s.history.Query(r.Context(), user.ID, f, page, limit)
	if err != nil {
		s.internalError(w, r, "query history", err)
		return
	}
	if p.Items == nil {
		p.Items = []history.Attempt{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Success: true, Items: p.Items, Pagination: p.Pagination})
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	a, err := s.history.Get(r.Context(), user.ID, r.PathValue("id"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Command not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "get history entry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "item": a})
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	err := s.history.Delete(r.Context(), user.ID, r.PathValue("id"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Command not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "delete history entry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	n, err := s.history.Clear(r.Context(), user.ID)
	if err != nil {
		s.internalError(w, r, "clear history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})
}

// ─── Settings ────────────────────────────────────────────────────────────────

type settingsResponse struct {
	Success  bool                   `json:"success"`
	Settings settings.VoiceSettings `json:"settings"`
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	vs, err := s.settings.Get(r.Context(), user.ID)
	if err != nil {
		s.internalError(w, r, "load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Success: true, Settings: vs})
}

func (s *Server) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	user, _ := UserFrom(r.Context())
	vs, err := s.settings.Update(r.Context(), user.ID, req.patch())
	if errors.Is(err, settings.ErrInvalid) {
		writeError(w, http.StatusBadRequest, invalidMessage(err))
		return
	}
	if err != nil {
		s.internalError(w, r, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Success: true, Settings: vs})
}

func (s *Server) handleSettingsReset(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	vs, err := s.settings.Reset(r.Context(), user.ID)
	if err != nil {
		s.internalError(w, r, "reset settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Success: true, Settings: vs})
}

// ─── Voices ──────────────────────────────────────────────────────────────────

type voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type voicesResponse struct {
	Success bool    `json:"success"`
	Voices  []voice `json:"voices"`
	// ProviderVoices lists what the configured synthesis backend offers
	// beyond the catalogue. Omitted when synthesis is unavailable.
	ProviderVoices []voice `json:"providerVoices,omitempty"`
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	ids := settings.ListVoiceTypes()
	res := voicesResponse{Success: true, Voices: make([]voice, len(ids))}
	for i, id := range ids {
		res.Voices[i] = voice{ID: id, Name: strings.ToUpper(id[:1]) + id[1:]}
	}
	if s.tts != nil {
		profiles, err := s.tts.Voices(r.Context())
		if err != nil {
			observe.Logger(r.Context()).Warn("list provider voices", "err", err)
		}
		for _, p := range profiles {
			res.ProviderVoices = append(res.ProviderVoices, voice{ID: p.ID, Name: cmp.Or(p.Name, p.ID)})
		}
	}
	writeJSON(w, http.StatusOK, res)
}

type voiceTestResponse struct {
	Success       bool   `json:"success"`
	AudioData     string `json:"audioData"`
	AudioMIMEType string `json:"audioMimeType"`
}

// handleVoiceTest synthesizes a sample with the requested voice, falling
// back to the user's stored voice and speed.
func (s *Server) handleVoiceTest(w http.ResponseWriter, r *http.Request) {
	if s.tts == nil {
		writeError(w, http.StatusServiceUnavailable, "Speech synthesis is not configured")
		return
	}
	var req voiceTestRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	user, _ := UserFrom(r.Context())

	vs, err := s.settings.Get(r.Context(), user.ID)
	if err != nil {
		observe.Logger(r.Context()).Warn("load settings for voice test, using defaults", "err", err)
		vs = settings.Defaults()
	}
	voiceID := cmp.Or(req.VoiceID, vs.VoiceType)
	speed := vs.VoiceSpeed
	if req.Speed != nil {
		speed = *req.Speed
	}

	data, mime, err := s.tts.TextToSpeech(r.Context(), req.Text, voiceID, speed)
	if err != nil {
		var se *gateway.SynthesisError
		if errors.As(err, &se) {
			writeError(w, http.StatusBadGateway, se.Reason)
			return
		}
		s.internalError(w, r, "voice test", err)
		return
	}
	writeJSON(w, http.StatusOK, voiceTestResponse{Success: true, AudioData: data, AudioMIMEType: mime})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	observe.Logger(r.Context()).Error(op, "err", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// timeParam accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func timeParam(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// invalidMessage strips the package prefix from a store validation error.
func invalidMessage(err error) string {
	msg := err.Error()
	if _, after, ok := strings.Cut(msg, settings.ErrInvalid.Error()+": "); ok {
		return after
	}
	return "Invalid settings"
}
