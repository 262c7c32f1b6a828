package middleware

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// =============================================================================
// DefaultTracingConfig Tests
// =============================================================================

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "islet", cfg.ServiceName)
	assert.Contains(t, cfg.SkipPaths, "/health")
	assert.Contains(t, cfg.SkipPaths, "/metrics")
}

// =============================================================================
// TracingMiddleware Tests
// =============================================================================

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	return recorder
}

func TestTracingMiddleware_Disabled(t *testing.T) {
	recorder := withRecorder(t)

	app := fiber.New()
	app.Use(TracingMiddleware(TracingConfig{Enabled: false}))
	app.Get("/", func(c *fiber.Ctx) error {
		assert.Nil(t, c.Locals("trace_span"))
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, recorder.Ended())
}

func TestTracingMiddleware_CreatesSpan(t *testing.T) {
	recorder := withRecorder(t)

	app := fiber.New()
	app.Use(TracingMiddleware(DefaultTracingConfig()))
	app.Get("/islands/:identifier", func(c *fiber.Ctx) error {
		c.Locals(BuildIDKey, "build-1")
		assert.NotEmpty(t, GetTraceID(c))
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/islands/Counter", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /islands/:identifier", spans[0].Name())

	var buildID string
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "islet.build_id" {
			buildID = attr.Value.AsString()
		}
	}
	assert.Equal(t, "build-1", buildID)
}

func TestTracingMiddleware_SkipPaths(t *testing.T) {
	recorder := withRecorder(t)

	app := fiber.New()
	app.Use(TracingMiddleware(DefaultTracingConfig()))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	_, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)

	assert.Empty(t, recorder.Ended())
}

func TestTracingMiddleware_ErrorStatus(t *testing.T) {
	recorder := withRecorder(t)

	app := fiber.New()
	app.Use(TracingMiddleware(DefaultTracingConfig()))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) })

	_, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP 404", spans[0].Status().Description)
}

func TestTraceContext(t *testing.T) {
	withRecorder(t)

	app := fiber.New()
	app.Get("/plain", func(c *fiber.Ctx) error {
		assert.Equal(t, c.UserContext(), TraceContext(c))
		assert.Empty(t, GetTraceID(c))
		return nil
	})
	app.Get("/traced", TracingMiddleware(DefaultTracingConfig()), func(c *fiber.Ctx) error {
		ctx := TraceContext(c)
		assert.NotEqual(t, context.Background(), ctx)
		return nil
	})

	_, err := app.Test(httptest.NewRequest("GET", "/plain", nil))
	require.NoError(t, err)
	_, err = app.Test(httptest.NewRequest("GET", "/traced", nil))
	require.NoError(t, err)
}
