package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/aetherhost/internal/core/domain"
)

// statusFor maps domain errors onto HTTP statuses. Anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrContainerNotFound), errors.Is(err, domain.ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrContainerNotRunning),
		errors.Is(err, domain.ErrEmptyCommand),
		errors.Is(err, domain.ErrImageRequired),
		errors.Is(err, domain.ErrUserExists):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrAuth):
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

func sendError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
