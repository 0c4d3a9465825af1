package handlers

import (
	"strings"

	"campusride/pkg/logger"
	"campusride/pkg/middleware"
	"campusride/pkg/services"

	"github.com/gofiber/fiber/v2"
)

// AdminHandler serves the moderation endpoints. Routes are mounted behind
// middleware.RequireAdmin.
type AdminHandler struct {
	profiles services.ProfileService
	rides    services.RideService
	log      *logger.Logger
}

func NewAdmin(profiles services.ProfileService, rides services.RideService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{profiles: profiles, rides: rides, log: log.Component("admin")}
}

// GET /admin/users?limit=&offset=
func (h *AdminHandler) Users(c *fiber.Ctx) error {
	users, err := h.profiles.List(c.UserContext(), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(users)
}

// POST /admin/promote {"student_id": "..."}
func (h *AdminHandler) Promote(c *fiber.Ctx) error {
	var body struct {
		StudentID string `json:"student_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid JSON")
	}
	studentID := strings.TrimSpace(body.StudentID)
	if studentID == "" {
		return badRequest(c, "student_id is required")
	}
	p, err := h.profiles.PromoteToAdmin(c.UserContext(), studentID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.log.WithFields(map[string]interface{}{
		"by":         middleware.UserID(c),
		"student_id": studentID,
	}).Info("user promoted to admin")
	return c.JSON(p)
}

// DELETE /admin/rides/:id
func (h *AdminHandler) DeleteRide(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid ride id")
	}
	if err := h.rides.Delete(c.UserContext(), id, middleware.UserID(c), true); err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// POST /admin/cleanup
func (h *AdminHandler) Cleanup(c *fiber.Ctx) error {
	res, err := h.rides.CleanupExpired(c.UserContext())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(res)
}
