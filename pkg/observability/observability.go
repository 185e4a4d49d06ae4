// Package observability centralizes the OpenTelemetry instruments used
// around decision runs: a shared tracer, RED-style counters, and a
// duration histogram. It binds to whatever global provider the host
// process installs; without one, the instruments are no-ops.
package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/Mindburn-Labs/arbiter"

// Instruments bundles the decision-path telemetry handles.
type Instruments struct {
	tracer trace.Tracer
	meter  metric.Meter

	decisions    metric.Int64Counter
	failures     metric.Int64Counter
	durationHist metric.Float64Histogram
}

// New binds instruments against the global OpenTelemetry providers.
func New() (*Instruments, error) {
	i := &Instruments{
		tracer: otel.Tracer(scope),
		meter:  otel.Meter(scope),
	}
	var err error
	if i.decisions, err = i.meter.Int64Counter("arbiter.decisions",
		metric.WithDescription("Decisions produced"),
	); err != nil {
		return nil, err
	}
	if i.failures, err = i.meter.Int64Counter("arbiter.decision_failures",
		metric.WithDescription("Decision runs that returned an error"),
	); err != nil {
		return nil, err
	}
	if i.durationHist, err = i.meter.Float64Histogram("arbiter.decision_duration_ms",
		metric.WithDescription("Decision latency in milliseconds"),
	); err != nil {
		return nil, err
	}
	return i, nil
}

var (
	defaultOnce sync.Once
	defaultInst *Instruments
)

// Default returns process-wide instruments, bound lazily to whatever
// global providers are installed by then. Instrument construction
// failures degrade to trace-only instruments.
func Default() *Instruments {
	defaultOnce.Do(func() {
		inst, err := New()
		if err != nil {
			inst = &Instruments{tracer: otel.Tracer(scope), meter: otel.Meter(scope)}
		}
		defaultInst = inst
	})
	return defaultInst
}

// Tracer exposes the shared tracer.
func (i *Instruments) Tracer() trace.Tracer { return i.tracer }

// RecordDecision records one completed decision run.
func (i *Instruments) RecordDecision(ctx context.Context, outcome string, strategy string, elapsed time.Duration, err error) {
	if i.decisions == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("arbiter.strategy", strategy),
		attribute.String("arbiter.outcome", outcome),
	)
	if err != nil {
		i.failures.Add(ctx, 1, attrs)
		return
	}
	i.decisions.Add(ctx, 1, attrs)
	i.durationHist.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}
