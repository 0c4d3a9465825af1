package handlers

import (
	"campusride/pkg/logger"
	"campusride/pkg/middleware"
	"campusride/pkg/models"
	"campusride/pkg/services"

	"github.com/gofiber/fiber/v2"
)

// ownProfile exposes the phone number, which the public profile hides.
type ownProfile struct {
	models.Profile
	PhoneNumber string `json:"phone_number"`
}

type ProfileHandler struct {
	service services.ProfileService
	log     *logger.Logger
}

func NewProfiles(service services.ProfileService, log *logger.Logger) *ProfileHandler {
	return &ProfileHandler{service: service, log: log.Component("profiles")}
}

// GET /profile
func (h *ProfileHandler) Me(c *fiber.Ctx) error {
	p, err := h.service.Get(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(ownProfile{Profile: p, PhoneNumber: p.PhoneNumber})
}

// PUT /profile
func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	var req models.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON")
	}
	p, err := h.service.Update(c.UserContext(), middleware.UserID(c), req)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(ownProfile{Profile: p, PhoneNumber: p.PhoneNumber})
}

// GET /profiles/:id
func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid profile id")
	}
	p, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(p.Public())
}
