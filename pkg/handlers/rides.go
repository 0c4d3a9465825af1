package handlers

import (
	"time"

	"campusride/pkg/logger"
	"campusride/pkg/middleware"
	"campusride/pkg/models"
	"campusride/pkg/services"

	"github.com/gofiber/fiber/v2"
)

type RideHandler struct {
	rides    services.RideService
	requests services.RequestService
	log      *logger.Logger
}

func NewRides(rides services.RideService, requests services.RequestService, log *logger.Logger) *RideHandler {
	return &RideHandler{rides: rides, requests: requests, log: log.Component("rides")}
}

// GET /rides?origin=&destination=&after=&limit=&offset=
func (h *RideHandler) List(c *fiber.Ctx) error {
	filter := models.RideFilter{
		Origin:      c.Query("origin"),
		Destination: c.Query("destination"),
		Limit:       c.QueryInt("limit", 20),
		Offset:      c.QueryInt("offset", 0),
	}
	if after := c.Query("after"); after != "" {
		t, err := time.Parse(time.RFC3339, after)
		if err != nil {
			return badRequest(c, "after must be an RFC 3339 timestamp")
		}
		filter.After = t
	}

	rides, err := h.rides.List(c.UserContext(), filter)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(rides)
}

// GET /rides/mine
func (h *RideHandler) Mine(c *fiber.Ctx) error {
	rides, err := h.rides.ListMine(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(rides)
}

// GET /rides/:id
func (h *RideHandler) Get(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid ride id")
	}
	ride, err := h.rides.Get(c.UserContext(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(ride)
}

// POST /rides
func (h *RideHandler) Create(c *fiber.Ctx) error {
	var req models.CreateRideRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON")
	}
	ride, err := h.rides.Create(c.UserContext(), middleware.UserID(c), req)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ride)
}

// DELETE /rides/:id
func (h *RideHandler) Delete(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid ride id")
	}
	if err := h.rides.Delete(c.UserContext(), id, middleware.UserID(c), middleware.IsAdmin(c)); err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// POST /rides/:id/requests
func (h *RideHandler) CreateRequest(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid ride id")
	}
	var body models.CreateRideRequestBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid JSON")
		}
	}
	req, err := h.requests.Create(c.UserContext(), id, middleware.UserID(c), body.Message)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// GET /rides/:id/requests (owner)
func (h *RideHandler) ListRequests(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid ride id")
	}
	reqs, err := h.requests.ListForRide(c.UserContext(), id, middleware.UserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(reqs)
}

// GET /requests/mine
func (h *RideHandler) MyRequests(c *fiber.Ctx) error {
	reqs, err := h.requests.ListMine(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(reqs)
}

// PUT /requests/:id {"status": "accepted" | "rejected" | "declined"}
func (h *RideHandler) RespondRequest(c *fiber.Ctx) error {
	id, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid request id")
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid JSON")
	}
	status, ok := models.ParseRequestStatus(body.Status)
	if !ok {
		return badRequest(c, "status must be accepted or rejected")
	}
	req, err := h.requests.Respond(c.UserContext(), id, middleware.UserID(c), status)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(req)
}
