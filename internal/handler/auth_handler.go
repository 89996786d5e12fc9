package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aisentinel/session-service/internal/config"
	"github.com/aisentinel/session-service/internal/domain"
	"github.com/aisentinel/session-service/internal/handler/middleware"
	"github.com/aisentinel/session-service/internal/service"
	"github.com/aisentinel/session-service/pkg/validator"
)

type AuthHandler struct {
	authService *service.AuthService
	validator   *validator.Validator
	cfg         *config.Config
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, validator *validator.Validator, cfg *config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validator:   validator,
		cfg:         cfg,
		logger:      logger,
	}
}

// Me reports who the request's credential belongs to. Always 200; problems
// with the credential show up in the flags.
// GET /api/auth/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	token := middleware.SessionToken(c, h.cfg.Session.CookieName)

	identity, _, err := h.authService.Me(c.Context(), token)
	if err != nil {
		h.logger.Error("identity lookup failed", zap.Error(err))
		identity = &domain.Identity{DatabaseConnected: h.authService.DatabaseConnected()}
	}

	return c.Status(fiber.StatusOK).JSON(identity)
}

// ActivateSession confirms a URL-borne session token and sets it as cookie
// POST /api/auth/activate-session
func (h *AuthHandler) ActivateSession(c *fiber.Ctx) error {
	var req service.ActivateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if err := h.validator.Validate(req); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	if _, err := h.authService.ActivateSession(c.Context(), req.SessionToken); err != nil {
		if errors.Is(err, service.ErrInvalidSessionToken) ||
			errors.Is(err, service.ErrSessionNotFound) ||
			errors.Is(err, service.ErrSessionRevoked) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		h.logger.Error("failed to activate session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to activate session",
		})
	}

	setSessionCookie(c, h.cfg, req.SessionToken)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Session activated",
	})
}

// CreateSession provisions a session for a client that has none
// POST /api/auth/create-session
func (h *AuthHandler) CreateSession(c *fiber.Ctx) error {
	issued, err := h.authService.CreateSession(c.Context(), sessionMeta(c))
	if err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success":           false,
			"message":           "Failed to create session",
			"databaseConnected": h.authService.DatabaseConnected(),
		})
	}

	setSessionCookie(c, h.cfg, issued.Token)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":           true,
		"sessionId":         issued.Session.ID.String(),
		"sessionToken":      issued.Token,
		"userId":            issued.User.ID.String(),
		"email":             issued.User.Email,
		"databaseConnected": h.authService.DatabaseConnected(),
	})
}

// Login handles password sign-in
// POST /api/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req service.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.validator.Validate(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	issued, err := h.authService.Login(c.Context(), req, sessionMeta(c))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.logger.Error("login failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to sign in",
		})
	}

	setSessionCookie(c, h.cfg, issued.Token)
	resp := fiber.Map{
		"success":      true,
		"sessionToken": issued.Token,
		"email":        issued.User.Email,
		"role":         issued.User.Role,
		"roleLevel":    issued.User.RoleLevel,
	}
	if issued.Company != nil {
		resp["companyId"] = issued.Company.ID
		resp["companyName"] = issued.Company.Name
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// Logout revokes the current session and clears the cookie
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token := middleware.SessionToken(c, h.cfg.Session.CookieName)

	if err := h.authService.Logout(c.Context(), token); err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to logout",
		})
	}

	clearSessionCookie(c, h.cfg)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Logged out successfully",
	})
}

// RequestVerification e-mails a sign-in link
// POST /api/auth/request-verification
func (h *AuthHandler) RequestVerification(c *fiber.Ctx) error {
	var req service.VerificationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.validator.Validate(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.authService.RequestVerification(c.Context(), req.Email); err != nil {
		if errors.Is(err, service.ErrVerificationDisabled) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.logger.Error("failed to send verification email", zap.String("email", req.Email), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to send verification email",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"message": "Verification email sent",
	})
}

// Verify consumes a verification link and hands the new session to the web
// app through the redirect query.
// GET /api/auth/verify?token=
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return c.Redirect("/?verified=false", fiber.StatusFound)
	}

	issued, err := h.authService.Verify(c.Context(), token, sessionMeta(c))
	if err != nil {
		if !errors.Is(err, service.ErrInvalidVerification) {
			h.logger.Error("verification failed", zap.Error(err))
		}
		return c.Redirect("/?verified=false", fiber.StatusFound)
	}

	setSessionCookie(c, h.cfg, issued.Token)
	return c.Redirect("/?"+service.RedirectQuery(issued).Encode(), fiber.StatusFound)
}
