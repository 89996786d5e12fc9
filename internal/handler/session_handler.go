package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aisentinel/session-service/internal/config"
	"github.com/aisentinel/session-service/internal/handler/middleware"
	"github.com/aisentinel/session-service/internal/service"
)

type SessionHandler struct {
	authService *service.AuthService
	cfg         *config.Config
	logger      *zap.Logger
}

func NewSessionHandler(authService *service.AuthService, cfg *config.Config, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		authService: authService,
		cfg:         cfg,
		logger:      logger,
	}
}

// SessionResponse represents a session without sensitive data
type SessionResponse struct {
	ID         string `json:"id"`
	UserAgent  string `json:"userAgent,omitempty"`
	IPAddress  string `json:"ipAddress,omitempty"`
	ExpiresAt  string `json:"expiresAt"`
	CreatedAt  string `json:"createdAt"`
	LastSeenAt string `json:"lastSeenAt"`
	IsCurrent  bool   `json:"isCurrent"`
}

// GetMySessions lists all active sessions for the current user
// GET /api/auth/sessions
func (h *SessionHandler) GetMySessions(c *fiber.Ctx) error {
	userID, current, ok := h.currentUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	sessions, err := h.authService.ListSessions(c.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve sessions",
		})
	}

	response := make([]SessionResponse, len(sessions))
	for i, session := range sessions {
		response[i] = SessionResponse{
			ID:         session.ID.String(),
			UserAgent:  session.UserAgent,
			IPAddress:  session.IPAddress,
			ExpiresAt:  session.ExpiresAt.Format(time.RFC3339),
			CreatedAt:  session.CreatedAt.Format(time.RFC3339),
			LastSeenAt: session.LastSeenAt.Format(time.RFC3339),
			IsCurrent:  session.ID == current,
		}
	}

	return c.JSON(fiber.Map{
		"sessions": response,
		"count":    len(response),
	})
}

// DeleteAllSessions signs the current user out everywhere
// DELETE /api/auth/sessions
func (h *SessionHandler) DeleteAllSessions(c *fiber.Ctx) error {
	userID, _, ok := h.currentUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	if err := h.authService.RevokeAllSessions(c.Context(), userID); err != nil {
		h.logger.Error("failed to revoke sessions", zap.String("user_id", userID.String()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sessions",
		})
	}

	clearSessionCookie(c, h.cfg)
	return c.JSON(fiber.Map{
		"message": "All sessions closed successfully",
	})
}

func (h *SessionHandler) currentUser(c *fiber.Ctx) (uuid.UUID, uuid.UUID, bool) {
	session, ok := middleware.CurrentSession(c)
	if !ok || session.UserID == nil {
		return uuid.Nil, uuid.Nil, false
	}
	return *session.UserID, session.ID, true
}
