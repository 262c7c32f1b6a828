package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Locals keys set by handlers and picked up by the request logger
const (
	BuildIDKey       = "build_id"
	RenderedRootsKey = "hydration_roots"
)

const redacted = "[redacted]"

// redactedParams are lower-cased query parameter names never written to logs
var redactedParams = map[string]struct{}{
	"token": {}, "access_token": {}, "api_key": {}, "apikey": {},
	"key": {}, "secret": {}, "password": {},
}

// StructuredLoggerConfig configures the request logger
type StructuredLoggerConfig struct {
	SkipPaths              []string
	SkipSuccessfulRequests bool
	// Logger defaults to the global zerolog logger
	Logger *zerolog.Logger
	// SlowRequestThreshold raises successful requests to WARN; zero disables it
	SlowRequestThreshold time.Duration
}

// DefaultStructuredLoggerConfig skips probe endpoints and flags requests slower than 500ms
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipPaths:            []string{"/health", "/metrics"},
		SlowRequestThreshold: 500 * time.Millisecond,
	}
}

func redactQueryString(raw string) string {
	if raw == "" {
		return ""
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return redacted
	}
	for name := range values {
		if _, ok := redactedParams[strings.ToLower(name)]; ok {
			values.Set(name, redacted)
		}
	}
	return values.Encode()
}

// StructuredLogger writes one zerolog line per request
func StructuredLogger(config ...StructuredLoggerConfig) fiber.Handler {
	cfg := DefaultStructuredLoggerConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	logger := &log.Logger
	if cfg.Logger != nil {
		logger = cfg.Logger
	}

	skipped := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipped[path] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := skipped[c.Path()]; ok {
			return c.Next()
		}

		started := time.Now()
		err := c.Next()
		elapsed := time.Since(started)

		status := c.Response().StatusCode()
		if cfg.SkipSuccessfulRequests && status >= 200 && status < 300 {
			return err
		}

		slow := cfg.SlowRequestThreshold > 0 && elapsed > cfg.SlowRequestThreshold
		event := eventFor(logger, err, status, slow).
			Str("request_id", requestID(c)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", c.IP()).
			Int("status", status).
			Int64("duration_ms", elapsed.Milliseconds()).
			Int("response_bytes", len(c.Response().Body()))

		if query := c.Request().URI().QueryString(); len(query) > 0 {
			event.Str("query", redactQueryString(string(query)))
		}
		if buildID := localString(c, BuildIDKey); buildID != "" {
			event.Str("build_id", buildID)
		}
		if roots, ok := c.Locals(RenderedRootsKey).(int); ok {
			event.Int("hydration_roots", roots)
		}

		event.Msg("HTTP request")
		return err
	}
}

func eventFor(logger *zerolog.Logger, err error, status int, slow bool) *zerolog.Event {
	switch {
	case err != nil:
		return logger.Error().Err(err)
	case status >= 500:
		return logger.Error()
	case status >= 400:
		return logger.Warn()
	case slow:
		return logger.Warn().Bool("slow_request", true)
	default:
		return logger.Info()
	}
}

// requestID prefers the id assigned by the requestid middleware over the inbound header
func requestID(c *fiber.Ctx) string {
	if id := localString(c, "requestid"); id != "" {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}

func localString(c *fiber.Ctx, key string) string {
	s, _ := c.Locals(key).(string)
	return s
}
