package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aisentinel/session-service/internal/domain"
)

// RequireRoleLevel admits users whose role level is at least required.
// It must run after SessionAuth.
func RequireRoleLevel(required int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := CurrentIdentity(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		if !domain.HasRoleLevel(identity.User.RoleLevel, required) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":               "Forbidden: insufficient role level",
				"required_role_level": required,
			})
		}

		return c.Next()
	}
}

// RequireAdmin is a convenience middleware for administrator routes
func RequireAdmin() fiber.Handler {
	return RequireRoleLevel(domain.RoleLevelAdmin)
}

// RejectDemo blocks mutating requests from the shared demo account. Reads
// pass through untouched.
func RejectDemo() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		identity, ok := CurrentIdentity(c)
		if ok && identity.User.RoleLevel == domain.RoleLevelDemo {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "demo mode: changes are disabled",
				"demo":  true,
			})
		}

		return c.Next()
	}
}
