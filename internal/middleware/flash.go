package middleware

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// FlashMessagesKey is the locals key holding the request's flash messages
const FlashMessagesKey = "flash_messages"

// DefaultFlashCookie is the cookie flash messages travel in
const DefaultFlashCookie = "islet_flash"

// Flash reads flash messages from the named cookie into locals and clears the
// cookie. The cookie holds a URL-escaped JSON object keyed by flash message
// identifier; a plain "type:message" value becomes {type: message}.
func Flash(cookieName string) fiber.Handler {
	if cookieName == "" {
		cookieName = DefaultFlashCookie
	}

	return func(c *fiber.Ctx) error {
		raw := c.Cookies(cookieName)
		if raw == "" {
			return c.Next()
		}

		c.Cookie(&fiber.Cookie{Name: cookieName, Path: "/", Expires: time.Unix(0, 0), MaxAge: -1})

		messages, ok := parseFlash(raw)
		if !ok {
			log.Debug().Str("cookie", cookieName).Msg("Ignoring malformed flash cookie")
			return c.Next()
		}

		c.Locals(FlashMessagesKey, messages)
		return c.Next()
	}
}

func parseFlash(raw string) (map[string]any, bool) {
	value, err := url.QueryUnescape(raw)
	if err != nil {
		return nil, false
	}

	if strings.HasPrefix(value, "{") {
		var messages map[string]any
		if err := json.Unmarshal([]byte(value), &messages); err != nil {
			return nil, false
		}
		return messages, true
	}

	if kind, message, ok := strings.Cut(value, ":"); ok && kind != "" {
		return map[string]any{kind: message}, true
	}
	return map[string]any{"error": value}, true
}

// FlashMessages returns the flash messages of the request, never nil
func FlashMessages(c *fiber.Ctx) map[string]any {
	if messages, ok := c.Locals(FlashMessagesKey).(map[string]any); ok {
		return messages
	}
	return map[string]any{}
}

// SetFlash stores messages in the flash cookie for the next request
func SetFlash(c *fiber.Ctx, cookieName string, messages map[string]any) error {
	if cookieName == "" {
		cookieName = DefaultFlashCookie
	}

	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     cookieName,
		Value:    url.QueryEscape(string(data)),
		Path:     "/",
		MaxAge:   10,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return nil
}
