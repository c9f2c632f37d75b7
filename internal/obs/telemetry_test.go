package obs

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric"
)

func TestCounterNoopBeforeInit(t *testing.T) {
	// No Init call in this test binary path exercised here; Counter must not panic.
	Counter(context.Background(), "test.counter.noop")
}

func TestCounterAfterInit(t *testing.T) {
	provider := metric.NewMeterProvider()
	Init(provider)
	defer Init(provider) // leave a meter registered for subsequent tests in the package

	Counter(context.Background(), "test.counter", "stage", "generation")
	Histogram(context.Background(), "test.histogram", 12.5, "stage", "generation")
}

func TestAddSpanEventNoTracerIsNoop(t *testing.T) {
	AddSpanEvent(context.Background(), "event-without-span")
	AddSpanEvent(nil, "event-with-nil-ctx")
}
