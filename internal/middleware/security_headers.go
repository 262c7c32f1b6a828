package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// SecurityHeadersConfig holds the security headers set on every response.
// Empty values are not sent.
type SecurityHeadersConfig struct {
	ContentSecurityPolicy string
	XFrameOptions         string
	XContentTypeOptions   string
	ReferrerPolicy        string
}

// DefaultSecurityHeadersConfig returns headers for rendered pages. Pages load
// same-origin module scripts and the WebAssembly coordinator; the manifest slot
// is a JSON script element and needs no inline script allowance.
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		ContentSecurityPolicy: "default-src 'self'; " +
			"script-src 'self' 'wasm-unsafe-eval'; " +
			"img-src 'self' data: blob:; " +
			"frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
	}
}

func (cfg SecurityHeadersConfig) headers() [][2]string {
	all := [][2]string{
		{"Content-Security-Policy", cfg.ContentSecurityPolicy},
		{"X-Frame-Options", cfg.XFrameOptions},
		{"X-Content-Type-Options", cfg.XContentTypeOptions},
		{"Referrer-Policy", cfg.ReferrerPolicy},
	}

	set := all[:0]
	for _, header := range all {
		if header[1] != "" {
			set = append(set, header)
		}
	}
	return set
}

// SecurityHeaders returns a middleware that adds security headers to all responses
func SecurityHeaders(config ...SecurityHeadersConfig) fiber.Handler {
	cfg := DefaultSecurityHeadersConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	headers := cfg.headers()

	return func(c *fiber.Ctx) error {
		for _, header := range headers {
			c.Set(header[0], header[1])
		}
		return c.Next()
	}
}
