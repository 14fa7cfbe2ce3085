package server

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/oggyb/matchchat/internal/auth"
	"github.com/oggyb/matchchat/internal/utils/response"
)

// AuthConfig configures RequireAuth.
type AuthConfig struct {
	Tokens *auth.TokenManager
	// Next skips the check when it returns true.
	Next func(c *fiber.Ctx) bool
}

// RequireAuth verifies the bearer token and stores the user id in
// Locals("user_id").
func RequireAuth(cfg AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}
		uid, err := cfg.Tokens.Parse(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return response.Write(c, fiber.StatusUnauthorized, "unauthorized", nil)
		}
		c.Locals("user_id", uid)
		return c.Next()
	}
}

func skipPrefix(prefix string) func(c *fiber.Ctx) bool {
	return func(c *fiber.Ctx) bool {
		return strings.HasPrefix(c.Path(), prefix)
	}
}

// accessLog logs one line per request after the handler chain ran.
func accessLog(log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		rid, _ := c.Locals("requestid").(string)
		log.Info("http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration", time.Since(start),
			"request_id", rid,
		)
		return err
	}
}
