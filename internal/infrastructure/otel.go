package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// ServiceName identifies this service in traces.
	ServiceName = "sdea-ownership-pipeline"
	// ServiceVersion is the instrumented service version.
	ServiceVersion = "1.0.0"
)

// TracingProviders holds the tracer provider and the tracer used by the
// pipeline. Shutdown must be called on exit to flush spans.
type TracingProviders struct {
	TracerProvider *sdktrace.TracerProvider
	Tracer         trace.Tracer
}

// InitializeTracing sets up an OpenTelemetry tracer with a stdout exporter.
// Tracing is disabled (a no-op tracer is returned) unless SDEA_TRACING=1.
func InitializeTracing(logger *slog.Logger) (*TracingProviders, error) {
	if os.Getenv("SDEA_TRACING") != "1" {
		return &TracingProviders{
			Tracer: otel.Tracer(ServiceName),
		}, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create otel resource: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing_initialized",
		slog.String("service", ServiceName),
		slog.String("exporter", "stdout"))

	return &TracingProviders{
		TracerProvider: tp,
		Tracer:         tp.Tracer(ServiceName),
	}, nil
}

// Shutdown flushes and stops the tracer provider.
func (p *TracingProviders) Shutdown(ctx context.Context) error {
	if p == nil || p.TracerProvider == nil {
		return nil
	}
	return p.TracerProvider.Shutdown(ctx)
}
