// Package obs provides a minimal, progressive-disclosure telemetry facade
// over OpenTelemetry: a handful of package-level functions that work as
// no-ops until Init wires up a real MeterProvider/TracerProvider, mirroring
// the "telemetry should never be required to get a program running" design
// used throughout the rest of the codebase.
package obs

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/contractforge/forge"

var activeMeter atomic.Pointer[metric.Meter]

// Init registers the process-wide meter used by Counter/Histogram. Call it
// once at startup after configuring an OpenTelemetry MeterProvider; before
// Init is called, Counter/Histogram are no-ops.
func Init(provider metric.MeterProvider) {
	m := provider.Meter(instrumentationName)
	activeMeter.Store(&m)
}

func meter() metric.Meter {
	if m := activeMeter.Load(); m != nil {
		return *m
	}
	return nil
}

// Counter increments a counter metric by one. labels are flattened
// key/value pairs, e.g. Counter("orchestrator.stage.failures", "stage", "compilation").
func Counter(ctx context.Context, name string, labels ...string) {
	m := meter()
	if m == nil {
		return
	}
	c, err := m.Int64Counter(name)
	if err != nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(toAttrs(labels)...))
}

// Histogram records a single observation, e.g. a stage's duration in
// milliseconds or a token count.
func Histogram(ctx context.Context, name string, value float64, labels ...string) {
	m := meter()
	if m == nil {
		return
	}
	h, err := m.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(ctx, value, metric.WithAttributes(toAttrs(labels)...))
}

func toAttrs(labels []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}
	return attrs
}

// AddSpanEvent adds a named event with attributes to the span active in ctx,
// if any. It is a no-op when ctx carries no recording span, so call sites
// never need to check for a live tracer first.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// StartSpan starts a span named name under the tracer registered with
// OpenTelemetry's global TracerProvider (set via otel.SetTracerProvider).
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, name)
}
