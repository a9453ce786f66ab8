package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"tunecrate/internal/config"
)

const ServiceVersion = "1.0.0"

// Tracer owns the process-wide tracer provider
type Tracer struct {
	tracer trace.Tracer
	tp     *sdktrace.TracerProvider
}

// Setup installs a global tracer provider according to cfg. When tracing is
// disabled the global no-op provider stays in place and a nil Tracer is
// returned; Shutdown on a nil Tracer is a no-op.
func Setup(ctx context.Context, cfg config.TracingConfig) (*Tracer, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var (
		exp sdktrace.SpanExporter
		err error
	)
	if cfg.UseOTLP {
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		exp, err = otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	} else {
		exp, err = newStdoutExporter(os.Stdout)
		if err != nil {
			return nil, err
		}
	}

	return NewTracer(cfg.ServiceName, exp), nil
}

func newStdoutExporter(w io.Writer) (sdktrace.SpanExporter, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}
	return exp, nil
}

// NewTracer registers a batching tracer provider around exp as the global provider
func NewTracer(serviceName string, exp sdktrace.SpanExporter) *Tracer {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Tracer{
		tracer: tp.Tracer(serviceName),
		tp:     tp,
	}
}

// StartSpan starts a new span with the provided name
func (t *Tracer) StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

// Shutdown flushes pending spans and stops the provider
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.tp.Shutdown(ctx)
}

// AddEvent adds an event to the current span
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// SetSpanError marks the current span as having an error
func SetSpanError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.RecordError(err)
	}
}

// SweepTracingAttrs returns common attributes for maintenance sweeps
func SweepTracingAttrs(taskID string, dryRun bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("component", "maintenance.sweep"),
		attribute.Bool("sweep.dry_run", dryRun),
	}
	if taskID != "" {
		attrs = append(attrs, attribute.String("job.id", taskID))
	}
	return attrs
}

// OwnerAttrs returns the owner attribute for catalog operations
func OwnerAttrs(owner uuid.UUID) []attribute.KeyValue {
	if owner == uuid.Nil {
		return nil
	}
	return []attribute.KeyValue{attribute.String("owner_id", owner.String())}
}
