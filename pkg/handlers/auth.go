package handlers

import (
	"campusride/pkg/logger"
	"campusride/pkg/middleware"
	"campusride/pkg/models"
	"campusride/pkg/services"

	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	service services.AuthService
	log     *logger.Logger
}

func NewAuth(service services.AuthService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{service: service, log: log.Component("auth")}
}

// POST /auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON")
	}
	resp, err := h.service.Register(c.UserContext(), req)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// POST /auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON")
	}
	resp, err := h.service.Login(c.UserContext(), req)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(resp)
}

// GET /auth/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	resp, err := h.service.Me(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(resp)
}
