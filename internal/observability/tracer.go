package observability

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fluxbase-eu/islet/internal/config"
)

// Tracer owns the OpenTelemetry provider spans are exported through
type Tracer struct {
	provider *sdktrace.TracerProvider
}

// NewNoopTracer returns a disabled tracer. Spans still work through the global
// no-op provider.
func NewNoopTracer() *Tracer {
	return &Tracer{}
}

// NewTracer exports spans over OTLP/gRPC and installs the provider globally
func NewTracer(ctx context.Context, cfg config.TracingConfig) (*Tracer, error) {
	if !cfg.Enabled {
		log.Debug().Msg("OpenTelemetry tracing is disabled")
		return NewNoopTracer(), nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "islet"
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(cfg.Environment),
			attribute.String("service.namespace", "islet"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().
		Str("endpoint", cfg.Endpoint).
		Str("service_name", serviceName).
		Float64("sample_rate", cfg.SampleRate).
		Msg("OpenTelemetry tracing initialized")

	return &Tracer{provider: provider}, nil
}

// sampler samples everything at rate 1 (or an unset rate) and a ratio of new
// traces otherwise, following the parent's decision when there is one
func sampler(rate float64) sdktrace.Sampler {
	if rate <= 0 || rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// IsEnabled reports whether spans are exported
func (t *Tracer) IsEnabled() bool {
	return t != nil && t.provider != nil
}

// Shutdown flushes pending spans
func (t *Tracer) Shutdown(ctx context.Context) error {
	if !t.IsEnabled() {
		return nil
	}
	log.Info().Msg("Shutting down OpenTelemetry tracer")
	return t.provider.Shutdown(ctx)
}

// SetSpanAttributes sets attributes on the span carried by ctx
func SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// EndSpan ends a span and records err on it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartBuildSpan starts a span covering the post-processing of one build pass
func StartBuildSpan(ctx context.Context, mode string) (context.Context, trace.Span) {
	return otel.Tracer("islet-build").Start(ctx, "build."+mode,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("build.mode", mode)),
	)
}

// StartRenderSpan starts a span for rendering one page
func StartRenderSpan(ctx context.Context, route string) (context.Context, trace.Span) {
	return otel.Tracer("islet-render").Start(ctx, "render.page",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("render.route", route)),
	)
}

// StartStorageSpan starts a span for a manifest store operation
func StartStorageSpan(ctx context.Context, operation, provider, key string) (context.Context, trace.Span) {
	return otel.Tracer("islet-storage").Start(ctx, "storage."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("storage.operation", operation),
			attribute.String("storage.provider", provider),
			attribute.String("storage.key", key),
		),
	)
}
