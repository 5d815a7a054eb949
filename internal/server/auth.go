package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// openPaths never require the API key: probes, metrics, and the OAuth
// browser flow (the provider redirect cannot carry a bearer header).
var openPaths = map[string]struct{}{
	"/healthz":                   {},
	"/readyz":                    {},
	"/metrics":                   {},
	"/api/spotify/auth/login":    {},
	"/api/spotify/auth/callback": {},
}

// newAPIKeyMiddleware enforces the bearer API key on every other route.
// With no key configured all requests are rejected: this service drives
// real devices in a real home, so fail closed.
func newAPIKeyMiddleware(apiKey string, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, open := openPaths[c.Path()]; open {
			return c.Next()
		}

		if apiKey == "" {
			logger.Error().Str("path", c.Path()).Msg("DASHBOARD_API_KEY not configured")
			return c.Status(fiber.StatusUnauthorized).JSON(errorBody{
				Code:    "auth",
				Message: "authentication not configured",
			})
		}

		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			logger.Warn().Str("path", c.Path()).Str("ip", c.IP()).Msg("invalid or missing API key")
			return c.Status(fiber.StatusUnauthorized).JSON(errorBody{
				Code:    "auth",
				Message: "invalid or missing API key",
			})
		}

		return c.Next()
	}
}
