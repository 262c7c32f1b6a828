package middleware

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures request spans
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	SkipPaths   []string
}

// DefaultTracingConfig traces everything except probe endpoints
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:     true,
		ServiceName: "islet",
		SkipPaths:   []string{"/health", "/metrics"},
	}
}

// TracingMiddleware starts a server span per request, continuing any trace
// propagated in the request headers
func TracingMiddleware(cfg TracingConfig) fiber.Handler {
	if !cfg.Enabled {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	tracer := otel.Tracer("islet-http")
	skipped := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipped[path] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := skipped[c.Path()]; ok {
			return c.Next()
		}

		carrier := propagation.HeaderCarrier(c.GetReqHeaders())
		ctx := otel.GetTextMapPropagator().Extract(c.Context(), carrier)
		ctx, span := tracer.Start(ctx, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(utils.CopyString(c.Method())),
				semconv.HTTPURL(utils.CopyString(c.OriginalURL())),
				attribute.String("http.request_id", utils.CopyString(c.Get(fiber.HeaderXRequestID))),
				attribute.String("service.name", cfg.ServiceName),
			),
		)
		defer span.End()

		c.Locals(traceContextKey, ctx)
		c.Locals(traceSpanKey, span)
		if sc := span.SpanContext(); sc.HasTraceID() {
			c.Set("X-Trace-ID", sc.TraceID().String())
		}

		err := c.Next()
		finishSpan(c, span, err)
		return err
	}
}

const (
	traceContextKey = "trace_ctx"
	traceSpanKey    = "trace_span"
)

// spanName names request spans after the matched route, e.g. "GET /islands/:identifier".
// The route is only known once the handler chain has run.
func spanName(c *fiber.Ctx) string {
	route := c.Route().Path
	if route == "" {
		route = c.Path()
	}
	return c.Method() + " " + route
}

// finishSpan records the response and the build that rendered it
func finishSpan(c *fiber.Ctx, span trace.Span, err error) {
	status := c.Response().StatusCode()
	span.SetName(spanName(c))
	span.SetAttributes(
		semconv.HTTPRoute(c.Route().Path),
		semconv.HTTPStatusCode(status),
		attribute.Int("http.response_size", len(c.Response().Body())),
	)
	if buildID, ok := c.Locals(BuildIDKey).(string); ok {
		span.SetAttributes(attribute.String("islet.build_id", buildID))
	}
	if roots, ok := c.Locals(RenderedRootsKey).(int); ok {
		span.SetAttributes(attribute.Int("islet.hydration_roots", roots))
	}

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case status >= 400:
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
	default:
		span.SetStatus(codes.Ok, "")
	}
}

// TraceContext returns the request's trace context, or the fiber context when
// the request is not traced
func TraceContext(c *fiber.Ctx) context.Context {
	if ctx, ok := c.Locals(traceContextKey).(context.Context); ok {
		return ctx
	}
	return c.UserContext()
}

// GetTraceID returns the hex trace id of the request span, or ""
func GetTraceID(c *fiber.Ctx) string {
	span, ok := c.Locals(traceSpanKey).(trace.Span)
	if !ok || !span.SpanContext().HasTraceID() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
