package response

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Envelope is the body of every REST response.
type Envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// OK writes a 200 envelope.
func OK(c *fiber.Ctx, message string, data any) error {
	return Write(c, fiber.StatusOK, message, data)
}

// Created writes a 201 envelope.
func Created(c *fiber.Ctx, message string, data any) error {
	return Write(c, fiber.StatusCreated, message, data)
}

func Write(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Envelope{
		Success:   status < 400,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// UserID reads the authenticated user id set by the auth middleware.
func UserID(c *fiber.Ctx) uint64 {
	id, _ := c.Locals("user_id").(uint64)
	return id
}

// ParamID parses a numeric path parameter; 0 when missing or malformed.
func ParamID(c *fiber.Ctx, name string) uint64 {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
