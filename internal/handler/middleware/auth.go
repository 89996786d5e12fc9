package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aisentinel/session-service/internal/domain"
	"github.com/aisentinel/session-service/internal/service"
)

// Locals keys set by SessionAuth.
const (
	LocalIdentity = "identity"
	LocalSession  = "session"
	LocalToken    = "token"
)

const SessionTokenHeader = "X-Session-Token"

// SessionToken resolves the raw credential of a request. Explicit headers win
// over the cookie; clients usually send the same value through all of them.
func SessionToken(c *fiber.Ctx, cookieName string) string {
	if authHeader := c.Get(fiber.HeaderAuthorization); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && strings.TrimSpace(parts[1]) != "" {
			return strings.TrimSpace(parts[1])
		}
	}
	if token := strings.TrimSpace(c.Get(SessionTokenHeader)); token != "" {
		return token
	}
	return c.Cookies(cookieName)
}

// SessionAuth rejects requests without a live, authenticated session and
// stores the resolved identity for downstream handlers.
func SessionAuth(authService *service.AuthService, cookieName string, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := SessionToken(c, cookieName)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing session token",
			})
		}

		identity, session, err := authService.Me(c.Context(), token)
		if err != nil {
			logger.Error("failed to resolve session", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to verify session",
			})
		}

		if !identity.SessionValid || !identity.Authenticated {
			message := "invalid session"
			if identity.SessionExists {
				message = "session has been revoked"
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": message,
			})
		}

		c.Locals(LocalIdentity, identity)
		c.Locals(LocalSession, session)
		c.Locals(LocalToken, token)

		return c.Next()
	}
}

// CurrentIdentity returns the identity stored by SessionAuth.
func CurrentIdentity(c *fiber.Ctx) (*domain.Identity, bool) {
	identity, ok := c.Locals(LocalIdentity).(*domain.Identity)
	return identity, ok && identity != nil && identity.User != nil
}

// CurrentSession returns the session stored by SessionAuth.
func CurrentSession(c *fiber.Ctx) (*domain.Session, bool) {
	session, ok := c.Locals(LocalSession).(*domain.Session)
	return session, ok && session != nil
}
