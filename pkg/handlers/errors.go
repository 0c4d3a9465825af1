package handlers

import (
	"errors"

	"campusride/pkg/logger"
	"campusride/pkg/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// statusFor maps service errors onto HTTP status codes. Hub actions reuse the
// same codes in their error envelopes.
func statusFor(err error) (int, string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return fiber.StatusBadRequest, verr.Error()
	case errors.Is(err, services.ErrAccessDenied), errors.Is(err, services.ErrForbidden):
		return fiber.StatusForbidden, err.Error()
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrInvalidTransition):
		return fiber.StatusConflict, err.Error()
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrUnauthorized):
		return fiber.StatusUnauthorized, err.Error()
	}
	return fiber.StatusInternalServerError, "internal server error"
}

func writeError(c *fiber.Ctx, log *logger.Logger, err error) error {
	code, msg := statusFor(err)
	if code == fiber.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func uuidParam(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}
