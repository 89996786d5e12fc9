package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aisentinel/session-service/internal/events"
	"github.com/aisentinel/session-service/internal/handler/middleware"
	"github.com/aisentinel/session-service/internal/service"
)

type AdminHandler struct {
	authService *service.AuthService
	hub         *events.Hub
	logger      *zap.Logger
}

func NewAdminHandler(authService *service.AuthService, hub *events.Hub, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		authService: authService,
		hub:         hub,
		logger:      logger,
	}
}

// Overview summarises service state for administrators
// GET /api/admin/overview
func (h *AdminHandler) Overview(c *fiber.Ctx) error {
	identity, _ := middleware.CurrentIdentity(c)

	return c.JSON(fiber.Map{
		"user":              identity.User,
		"databaseConnected": h.authService.DatabaseConnected(),
		"liveSubscribers":   h.hub.Subscribers(),
	})
}

// PruneSessions removes expired sessions
// POST /api/admin/sessions/prune
func (h *AdminHandler) PruneSessions(c *fiber.Ctx) error {
	n, err := h.authService.PruneExpiredSessions(c.Context())
	if err != nil {
		h.logger.Error("failed to prune sessions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to prune sessions",
		})
	}
	return c.JSON(fiber.Map{
		"deleted": n,
	})
}
