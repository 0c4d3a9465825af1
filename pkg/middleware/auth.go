package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	localUserID  = "user_id"
	localIsAdmin = "is_admin"
)

type TokenParser interface {
	ParseToken(tokenStr string) (uuid.UUID, error)
}

type RoleChecker interface {
	IsAdmin(ctx context.Context, id uuid.UUID) bool
}

// BearerToken reads the token from the Authorization header, falling back to
// the token query parameter that browser WebSocket clients have to use.
func BearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return c.Query("token")
}

// Auth rejects requests without a valid access token and stores the caller's
// id in the request locals.
func Auth(tokens TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := BearerToken(c)
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing token"})
		}
		id, err := tokens.ParseToken(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals(localUserID, id)
		return c.Next()
	}
}

// RequireAdmin lets through only callers whose profile role is admin.
func RequireAdmin(roles RoleChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !roles.IsAdmin(c.UserContext(), UserID(c)) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin access required"})
		}
		c.Locals(localIsAdmin, true)
		return c.Next()
	}
}

// LoadRole marks admins without blocking anyone else.
func LoadRole(roles RoleChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(localIsAdmin, roles.IsAdmin(c.UserContext(), UserID(c)))
		return c.Next()
	}
}

func UserID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(localUserID).(uuid.UUID)
	return id
}

func IsAdmin(c *fiber.Ctx) bool {
	ok, _ := c.Locals(localIsAdmin).(bool)
	return ok
}
