package handlers

import (
	"campusride/pkg/logger"
	"campusride/pkg/middleware"
	"campusride/pkg/models"
	"campusride/pkg/services"

	"github.com/gofiber/fiber/v2"
)

type ChatHandler struct {
	chat   services.ChatService
	roster services.RosterService
	phone  services.PhoneService
	log    *logger.Logger
}

func NewChat(chat services.ChatService, roster services.RosterService, phone services.PhoneService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, roster: roster, phone: phone, log: log.Component("chat")}
}

// GET /chats
func (h *ChatHandler) Roster(c *fiber.Ctx) error {
	rides, err := h.roster.ListChatRides(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(rides)
}

// GET /rides/:id/messages
func (h *ChatHandler) Messages(c *fiber.Ctx) error {
	rideID, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid ride id")
	}
	msgs, err := h.chat.GetMessages(c.UserContext(), rideID, middleware.UserID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(msgs)
}

// POST /rides/:id/messages
func (h *ChatHandler) Send(c *fiber.Ctx) error {
	rideID, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid ride id")
	}
	var req models.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON")
	}
	msg, err := h.chat.SendMessage(c.UserContext(), rideID, middleware.UserID(c), req.Content)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// DELETE /rides/:id/messages/:messageId
func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	rideID, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid ride id")
	}
	msgID, ok := uuidParam(c, "messageId")
	if !ok {
		return badRequest(c, "invalid message id")
	}
	if err := h.chat.DeleteMessage(c.UserContext(), rideID, msgID, middleware.UserID(c)); err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// POST /rides/:id/phone/request
func (h *ChatHandler) RequestPhone(c *fiber.Ctx) error {
	rideID, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid ride id")
	}
	var body models.PhoneRequestBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid JSON")
		}
	}
	req, err := h.phone.RequestPhone(c.UserContext(), rideID, middleware.UserID(c), body.Note)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// POST /rides/:id/phone/respond
func (h *ChatHandler) RespondPhone(c *fiber.Ctx) error {
	rideID, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid ride id")
	}
	var body models.PhoneResponseBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid JSON")
	}
	msg, err := h.phone.RespondPhoneRequest(c.UserContext(), rideID, middleware.UserID(c), body.RequesterID, body.Approve)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(msg)
}

// POST /rides/:id/phone/share
func (h *ChatHandler) SharePhone(c *fiber.Ctx) error {
	rideID, ok := uuidParam(c, "id")
	if !ok {
		return badRequest(c, "invalid ride id")
	}
	var body models.SharePhoneRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid JSON")
	}
	msg, err := h.phone.SharePhone(c.UserContext(), rideID, middleware.UserID(c), body.Share, body.Message)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}
