package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/tickvox"

// AttrUserID is the span attribute carrying the authenticated user.
const AttrUserID = "enduser.id"

// Tracer returns the tickvox tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named after a pipeline stage. Spans started under a
// context from [WithUserID] are tagged with the user. The caller must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id := UserID(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(attribute.String(AttrUserID, id)))
	}
	return Tracer().Start(ctx, name, opts...)
}

type userIDKey struct{}

// WithUserID records the user a request acts for. The active span, usually
// the HTTP server span, is tagged as well.
func WithUserID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(AttrUserID, id))
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserID returns the user recorded by [WithUserID], or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// CorrelationID is the trace ID of the active span, or "". The API returns it
// as X-Correlation-ID so clients can quote it when reporting a failed command.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id, span_id and user_id
// attached when ctx carries them.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id := UserID(ctx); id != "" {
		l = l.With(slog.String("user_id", id))
	}
	return l
}

// RecordError marks span as failed with err. A nil err is a no-op.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
