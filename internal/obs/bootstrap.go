package obs

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// BootstrapConfig controls where spans go. An empty OTLPEndpoint falls back
// to a pretty-printed stdout exporter, which is enough to see span output
// during local development without standing up a collector.
type BootstrapConfig struct {
	OTLPEndpoint   string
	ServiceName    string
	ShutdownWriter *os.File // defaults to os.Stdout for the stdout fallback
}

// Bootstrap wires a TracerProvider (OTLP over gRPC if OTLPEndpoint is set,
// otherwise stdout) and installs it as the global provider. It returns a
// shutdown func the caller must defer; shutdown flushes any buffered spans.
func Bootstrap(ctx context.Context, cfg BootstrapConfig) (shutdown func(context.Context) error, err error) {
	var exporter sdktrace.SpanExporter
	if cfg.OTLPEndpoint != "" {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("obs: otlp exporter: %w", err)
		}
	} else {
		writer := cfg.ShutdownWriter
		if writer == nil {
			writer = os.Stdout
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(writer), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("obs: stdout exporter: %w", err)
		}
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = instrumentationName
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(2*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
