package handler

import (
	"github.com/gofiber/fiber/v2"
)

func SetupRoutes(
	app *fiber.App,
	authHandler *AuthHandler,
	sessionHandler *SessionHandler,
	adminHandler *AdminHandler,
	healthHandler *HealthHandler,
	sessionAuth fiber.Handler,
	requireAdmin fiber.Handler,
	rejectDemo fiber.Handler,
) {
	// Health checks (public)
	app.Get("/health", healthHandler.Health)
	app.Get("/ready", healthHandler.Ready)

	api := app.Group("/api")

	// Auth routes (public)
	auth := api.Group("/auth")
	auth.Get("/me", authHandler.Me)
	auth.Post("/activate-session", authHandler.ActivateSession)
	auth.Post("/create-session", authHandler.CreateSession)
	auth.Post("/login", authHandler.Login)
	auth.Post("/logout", authHandler.Logout)
	auth.Post("/request-verification", authHandler.RequestVerification)
	auth.Get("/verify", authHandler.Verify)

	// Session management (authenticated, read-only for demo)
	sessions := auth.Group("/sessions", sessionAuth, rejectDemo)
	sessions.Get("/", sessionHandler.GetMySessions)
	sessions.Delete("/", sessionHandler.DeleteAllSessions)

	// Admin routes (role level 998+)
	admin := api.Group("/admin", sessionAuth, requireAdmin, rejectDemo)
	admin.Get("/overview", adminHandler.Overview)
	admin.Post("/sessions/prune", adminHandler.PruneSessions)
}
