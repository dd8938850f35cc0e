// Package orchestrator runs one voice or text command through the full
// pipeline: transcription, optional wake-word check, interpretation, dispatch
// to a command handler and optional speech synthesis of the reply.
//
// Each call to [Orchestrator.Process] owns exactly one history attempt. The
// attempt is appended in processing state before any external call, may
// receive an intermediate transcript update, and gets exactly one terminal
// write. Gateway and handler failures end the attempt as failed; synthesis
// failures are logged and never change the outcome. A command whose
// terminal write fails is reported as failed with [MsgRecordFailed].
//
// Calls are independent. Nothing is shared between two Process calls except
// the stores, so concurrent commands of the same user create independent
// attempts.
package orchestrator

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MrWong99/tickvox/internal/executor"
	"github.com/MrWong99/tickvox/internal/gateway"
	"github.com/MrWong99/tickvox/internal/history"
	"github.com/MrWong99/tickvox/internal/observe"
	"github.com/MrWong99/tickvox/internal/phrase"
	"github.com/MrWong99/tickvox/internal/settings"
	"github.com/MrWong99/tickvox/internal/wakeword"
)

// InputType distinguishes recorded audio from typed text.
type InputType string

const (
	InputAudio InputType = "audio"
	InputText  InputType = "text"
)

// ProcessingPlaceholder is the transcript stored for audio input until the
// transcription is known.
const ProcessingPlaceholder = "[processing]"

// Messages recorded for pipeline failures that do not come from a gateway
// or handler.
const (
	MsgWakeWordNotDetected = "Wake word not detected"
	MsgAudioUnsupported    = "Audio commands are not supported"
	MsgExecutionFailed     = "Failed to execute command"
	MsgRecordFailed        = "Failed to record command"
	MsgInvalidInput        = "Invalid command input"
)

// maxStoredCause bounds the handler error text kept in history.
const maxStoredCause = 200

// ErrInvalidInput is returned by [Input.Validate].
var ErrInvalidInput = errors.New("orchestrator: invalid input")

// Input is one submitted command.
type Input struct {
	Type InputType
	// Content is base64 audio (optionally a data URI) for audio input and the
	// command text for text input.
	Content string
	// Format is the audio container ("webm", "wav", ...). Ignored for text.
	Format string
	// Context is optional client state forwarded to the interpreter.
	Context map[string]any
	// RequireWakeWord makes the pipeline reject transcripts that do not
	// contain the user's wake word and strip it before interpretation.
	RequireWakeWord bool
}

// Validate checks the input shape.
func (in Input) Validate() error {
	switch in.Type {
	case InputAudio, InputText:
	default:
		return fmt.Errorf("%w: type must be %q or %q", ErrInvalidInput, InputAudio, InputText)
	}
	if blank(in.Content) {
		return fmt.Errorf("%w: content must not be empty", ErrInvalidInput)
	}
	return nil
}

// Result mirrors the persisted attempt for the caller. It never carries
// redactions: the caller sees its own command.
type Result struct {
	Success        bool             `json:"success"`
	Transcript     string           `json:"transcript"`
	Intent         string           `json:"intent,omitempty"`
	Entities       map[string]any   `json:"entities,omitempty"`
	Action         *executor.Action `json:"action,omitempty"`
	Response       map[string]any   `json:"response,omitempty"`
	Error          string           `json:"error,omitempty"`
	AudioData      string           `json:"audioData,omitempty"`
	AudioMIMEType  string           `json:"audioMimeType,omitempty"`
	Confidence     *float64         `json:"confidence,omitempty"`
	AttemptID      string           `json:"attemptId,omitempty"`
	ProcessingTime float64          `json:"processingTime"`
}

// Transcriber converts base64 audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioBase64, format string) (string, error)
}

// Interpreter extracts intent and entities from a transcript.
type Interpreter interface {
	Interpret(ctx context.Context, transcript string, cmdContext map[string]any) (gateway.Interpretation, error)
}

// Synthesizer renders text to base64 audio and its MIME type.
type Synthesizer interface {
	TextToSpeech(ctx context.Context, text, voiceID string, speed float64) (string, string, error)
}

// Executor dispatches an intent to its handler.
type Executor interface {
	Execute(ctx context.Context, user executor.User, intent string, entities map[string]any) (executor.Outcome, error)
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithTranscriber enables audio input. Without it audio commands fail.
func WithTranscriber(t Transcriber) Option {
	return func(o *Orchestrator) { o.stt = t }
}

// WithSynthesizer enables spoken replies for successful commands.
func WithSynthesizer(s Synthesizer) Option {
	return func(o *Orchestrator) { o.tts = s }
}

// WithPhraseMatcher replaces the matcher used for custom command phrases.
func WithPhraseMatcher(m *phrase.Matcher) Option {
	return func(o *Orchestrator) { o.phrases = m }
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces the time source used for timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator replaces the attempt ID generator (default: UUIDv4).
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	stt      Transcriber
	llm      Interpreter
	exec     Executor
	tts      Synthesizer
	settings settings.Store
	history  history.Store
	phrases  *phrase.Matcher
	metrics  *observe.Metrics
	now      func() time.Time
	newID    func() string
}

// New returns an Orchestrator. Interpreter, executor and both stores are
// required.
func New(interp Interpreter, exec Executor, st settings.Store, hist history.Store, opts ...Option) (*Orchestrator, error) {
	var errs []error
	if interp == nil {
		errs = append(errs, errors.New("orchestrator: interpreter is required"))
	}
	if exec == nil {
		errs = append(errs, errors.New("orchestrator: executor is required"))
	}
	if st == nil {
		errs = append(errs, errors.New("orchestrator: settings store is required"))
	}
	if hist == nil {
		errs = append(errs, errors.New("orchestrator: history store is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		llm:      interp,
		exec:     exec,
		settings: st,
		history:  hist,
		phrases:  phrase.New(),
		metrics:  observe.DefaultMetrics(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// attempt carries the state of one Process call.
type attempt struct {
	id         string
	user       executor.User
	input      Input
	start      time.Time
	privacy    privacyFilter
	log        *slog.Logger
	transcript string
	interp     *gateway.Interpretation
	outcome    *executor.Outcome
	// storedErr replaces the reply error in history when set.
	storedErr string
	audio     string
	audioMIME string
}

// Process runs in through the pipeline on behalf of user and returns the
// outcome. Process never returns an error: every failure is reported through
// Result.Error with Result.Success false.
func (o *Orchestrator) Process(ctx context.Context, user executor.User, in Input) Result {
	ctx, span := observe.StartSpan(ctx, "orchestrator.process")
	defer span.End()

	if err := in.Validate(); err != nil {
		return Result{Error: MsgInvalidInput}
	}

	o.metrics.ActiveCommands.Add(ctx, 1)
	defer o.metrics.ActiveCommands.Add(ctx, -1)

	a := &attempt{
		id:    o.newID(),
		user:  user,
		input: in,
		start: o.now(),
		log:   observe.Logger(ctx).With("user_id", user.ID, "input", string(in.Type)),
	}
	a.log = a.log.With("attempt_id", a.id)

	vs := o.loadSettings(ctx, a)
	a.privacy = newPrivacyFilter(vs.Privacy)

	initial := ProcessingPlaceholder
	if in.Type == InputText {
		a.transcript = in.Content
		initial = a.privacy.text(in.Content)
	}
	if err := o.history.Append(ctx, history.Attempt{
		ID:         a.id,
		UserID:     user.ID,
		Transcript: initial,
		Status:     history.StatusProcessing,
		CreatedAt:  a.start,
		UpdatedAt:  a.start,
	}); err != nil {
		a.log.Error("append attempt", "err", err)
		observe.RecordError(span, err)
		return Result{Transcript: a.transcript, Error: MsgRecordFailed, ProcessingTime: o.since(a.start)}
	}

	if in.Type == InputAudio {
		if o.stt == nil {
			return o.fail(ctx, a, MsgAudioUnsupported)
		}
		text, err := o.stt.Transcribe(ctx, in.Content, in.Format)
		if err != nil {
			return o.fail(ctx, a, gatewayMessage(err))
		}
		a.transcript = text
	}

	if in.RequireWakeWord {
		if !wakeword.Detect(a.transcript, vs.WakeWord, vs.Sensitivity) {
			o.metrics.WakeWordRejections.Add(ctx, 1)
			return o.fail(ctx, a, MsgWakeWordNotDetected)
		}
		a.transcript = wakeword.ExtractCommand(a.transcript, vs.WakeWord)
	}

	if in.Type == InputAudio || in.RequireWakeWord {
		if err := o.history.UpdateIntermediate(ctx, a.id, a.privacy.text(a.transcript)); err != nil {
			a.log.Warn("store transcript", "err", err)
		}
	}

	if cc, score, ok := o.matchCustomCommand(a.transcript, vs.CustomCommands); ok {
		a.log.Debug("custom command matched", "phrase", cc.Phrase, "action", cc.Action, "score", score)
		a.interp = &gateway.Interpretation{Intent: cc.Action, Entities: maps.Clone(cc.Entities), Confidence: score}
		if a.interp.Entities == nil {
			a.interp.Entities = map[string]any{}
		}
	} else {
		interp, err := o.llm.Interpret(ctx, a.transcript, in.Context)
		if err != nil {
			return o.fail(ctx, a, gatewayMessage(err))
		}
		a.interp = &interp
	}

	out, err := o.exec.Execute(ctx, user, a.interp.Intent, a.interp.Entities)
	if err != nil {
		return o.fail(ctx, a, o.executionMessage(a, err))
	}
	a.outcome = &out

	if o.tts != nil && !blank(out.Response.Message) {
		data, mime, err := o.tts.TextToSpeech(ctx, out.Response.Message, vs.VoiceType, vs.VoiceSpeed)
		if err != nil {
			a.log.Warn("response synthesis failed", "err", err)
		} else {
			a.audio, a.audioMIME = data, mime
		}
	}
	return o.succeed(ctx, a)
}

func (o *Orchestrator) loadSettings(ctx context.Context, a *attempt) settings.VoiceSettings {
	vs, err := o.settings.Get(ctx, a.user.ID)
	if err != nil {
		a.log.Warn("load voice settings, using defaults", "err", err)
		return settings.Defaults()
	}
	return settings.Clamp(vs)
}

func (o *Orchestrator) matchCustomCommand(transcript string, cmds []settings.CustomCommand) (settings.CustomCommand, float64, bool) {
	if len(cmds) == 0 || blank(transcript) {
		return settings.CustomCommand{}, 0, false
	}
	phrases := make([]string, len(cmds))
	for i, c := range cmds {
		phrases[i] = c.Phrase
	}
	idx, score, ok := o.phrases.Match(transcript, phrases)
	if !ok {
		return settings.CustomCommand{}, 0, false
	}
	return cmds[idx], score, true
}

func (o *Orchestrator) executionMessage(a *attempt, err error) string {
	var he *executor.HandlerError
	switch {
	case errors.Is(err, executor.ErrUnknownIntent):
		return "Unknown intent: " + a.interp.Intent
	case errors.As(err, &he):
		if he.Err != nil {
			a.log.Info("handler rejected command", "intent", a.interp.Intent, "err", he.Err)
		}
		return he.Message
	default:
		a.log.Error("handler failed", "intent", a.interp.Intent, "err", err)
		a.storedErr = MsgExecutionFailed + ": " + a.privacy.text(truncate(err.Error(), maxStoredCause))
		return MsgExecutionFailed
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// fail performs the terminal write for a failed attempt.
func (o *Orchestrator) fail(ctx context.Context, a *attempt, msg string) Result {
	res := a.result()
	res.Error = msg
	o.finish(ctx, a, history.StatusFailed, &res)
	return res
}

// succeed performs the terminal write for a successful attempt.
func (o *Orchestrator) succeed(ctx context.Context, a *attempt) Result {
	res := a.result()
	res.Success = true
	res.AudioData, res.AudioMIMEType = a.audio, a.audioMIME
	o.finish(ctx, a, history.StatusSuccessful, &res)
	return res
}

// finish writes the terminal state. If the write fails the caller is told
// the command failed, since history does not reflect the outcome.
func (o *Orchestrator) finish(ctx context.Context, a *attempt, status history.Status, res *Result) {
	res.ProcessingTime = o.since(a.start)

	term := history.Terminal{
		Status:                status,
		ErrorMessage:          cmp.Or(a.storedErr, res.Error),
		Entities:              a.privacy.entities(res.Entities),
		Response:              a.privacy.response(res.Response),
		ProcessingTimeSeconds: res.ProcessingTime,
		ConfidenceScore:       res.Confidence,
	}
	if a.transcript != "" {
		stored := a.privacy.text(a.transcript)
		term.Transcript = &stored
	}
	if res.Intent != "" {
		intent := res.Intent
		term.Intent = &intent
	}
	if res.Action != nil {
		act := &history.Action{Type: res.Action.Type, Parameters: res.Action.Parameters}
		if !a.privacy.store {
			act.Parameters = nil
		}
		term.ActionTaken = act
	}
	if res.AudioData != "" {
		term.AudioReference = audioReference(res.AudioData)
	}

	if err := o.history.UpdateTerminal(ctx, a.id, term); err != nil {
		a.log.Error("terminal write", "status", string(status), "err", err)
		status = history.StatusFailed
		res.Success = false
		res.Error = MsgRecordFailed
		res.AudioData, res.AudioMIMEType = "", ""
	}
	o.metrics.RecordCommand(ctx, string(a.input.Type), res.Intent, string(status), res.ProcessingTime)
	a.log.Info("command finished", "status", string(status), "intent", res.Intent,
		"duration", time.Duration(res.ProcessingTime*float64(time.Second)))
}

// audioReference identifies synthesized audio by content hash.
func audioReference(data string) string {
	sum := sha256.Sum256([]byte(data))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func (a *attempt) result() Result {
	res := Result{AttemptID: a.id, Transcript: a.transcript}
	if a.interp != nil {
		res.Intent = a.interp.Intent
		res.Entities = a.interp.Entities
		conf := a.interp.Confidence
		res.Confidence = &conf
	}
	if a.outcome != nil {
		act := a.outcome.Action
		res.Action = &act
		res.Response = a.outcome.Response.Map()
	}
	return res
}

func (o *Orchestrator) since(start time.Time) float64 {
	return o.now().Sub(start).Seconds()
}

// gatewayMessage extracts the display reason of a gateway failure.
func gatewayMessage(err error) string {
	var (
		te *gateway.TranscriptionError
		ie *gateway.InterpretationError
	)
	switch {
	case errors.As(err, &te):
		return te.Reason
	case errors.As(err, &ie):
		return ie.Reason
	default:
		return err.Error()
	}
}
