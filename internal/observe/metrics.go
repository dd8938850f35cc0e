// Package observe carries tickvox's telemetry: OpenTelemetry metrics and
// traces, trace-aware slog loggers, and the HTTP middleware joining them.
//
// Metrics go through the OpenTelemetry API. [InitProvider] bridges them to
// Prometheus for the /metrics endpoint. Components default to the shared
// [DefaultMetrics]; tests build their own with [NewMetrics] and a
// ManualReader so they never see each other's data points.
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/tickvox"

// Pipeline stages as reported in the "stage" attribute.
const (
	StageSTT = "stt"
	StageLLM = "llm"
	StageTTS = "tts"
)

// Stage outcomes as reported in the "outcome" attribute.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Metrics holds the application's instruments. Safe for concurrent use.
type Metrics struct {
	// StageDuration is the latency of one provider call, by stage, provider
	// and outcome. Its count doubles as the request counter.
	StageDuration metric.Float64Histogram

	// CommandDuration is end-to-end processing time by input type and status.
	CommandDuration metric.Float64Histogram

	// Commands counts terminal outcomes by intent and status.
	Commands metric.Int64Counter

	// ActiveCommands is the number of commands in flight.
	ActiveCommands metric.Int64UpDownCounter

	WakeWordRejections metric.Int64Counter

	// BreakerTransitions counts breaker state changes by breaker and target
	// state.
	BreakerTransitions metric.Int64Counter

	// HistoryPurged counts attempts removed by the retention sweeper.
	HistoryPurged metric.Int64Counter

	// HTTPRequestDuration is request latency by method, route and status.
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets spans a fast intent lookup up to a slow transcription of a
// long recording.
var stageBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30}

var httpBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	met := &Metrics{}

	hist := func(dst *metric.Float64Histogram, name, desc string, buckets []float64) error {
		h, err := meter.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(buckets...),
		)
		*dst = h
		return err
	}
	count := func(dst *metric.Int64Counter, name, desc string) error {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		*dst = c
		return err
	}

	active, err := meter.Int64UpDownCounter("tickvox.active_commands",
		metric.WithDescription("Commands currently being processed."))
	met.ActiveCommands = active

	err = errors.Join(err,
		hist(&met.StageDuration, "tickvox.stage.duration", "Provider call latency per pipeline stage.", stageBuckets),
		hist(&met.CommandDuration, "tickvox.command.duration", "End-to-end command processing time.", stageBuckets),
		hist(&met.HTTPRequestDuration, "tickvox.http.request.duration", "HTTP request latency by method and route.", httpBuckets),
		count(&met.Commands, "tickvox.commands", "Commands by intent and terminal status."),
		count(&met.WakeWordRejections, "tickvox.wakeword.rejections", "Commands rejected for a missing wake word."),
		count(&met.BreakerTransitions, "tickvox.breaker.transitions", "Circuit breaker state transitions."),
		count(&met.HistoryPurged, "tickvox.history.purged", "Command attempts removed by retention."),
	)
	if err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide instance on the global meter
// provider, created on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// Outcome classifies a provider call result. Deadline errors count as
// timeouts.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}

// RecordStage records one provider call of stage that took d.
func (m *Metrics) RecordStage(ctx context.Context, stage, provider string, d time.Duration, err error) {
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		Attr("stage", stage),
		Attr("provider", provider),
		Attr("outcome", Outcome(err)),
	))
}

// RecordCommand records a terminal command outcome. An empty intent is
// reported as "none".
func (m *Metrics) RecordCommand(ctx context.Context, input, intent, status string, seconds float64) {
	if intent == "" {
		intent = "none"
	}
	m.Commands.Add(ctx, 1, metric.WithAttributes(Attr("intent", intent), Attr("status", status)))
	m.CommandDuration.Record(ctx, seconds, metric.WithAttributes(Attr("input", input), Attr("status", status)))
}

// RecordBreakerTransition records a breaker moving to state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(Attr("breaker", breaker), Attr("state", state)))
}
