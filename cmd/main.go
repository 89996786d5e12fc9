package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aisentinel/session-service/internal/config"
	"github.com/aisentinel/session-service/internal/events"
	"github.com/aisentinel/session-service/internal/handler"
	"github.com/aisentinel/session-service/internal/handler/middleware"
	"github.com/aisentinel/session-service/internal/realtime"
	"github.com/aisentinel/session-service/internal/repository"
	"github.com/aisentinel/session-service/internal/repository/memory"
	"github.com/aisentinel/session-service/internal/repository/postgres"
	"github.com/aisentinel/session-service/internal/service"
	"github.com/aisentinel/session-service/pkg/blacklist"
	"github.com/aisentinel/session-service/pkg/cache"
	"github.com/aisentinel/session-service/pkg/email"
	"github.com/aisentinel/session-service/pkg/hash"
	"github.com/aisentinel/session-service/pkg/jwt"
	"github.com/aisentinel/session-service/pkg/logger"
	"github.com/aisentinel/session-service/pkg/validator"
)

const pruneInterval = time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	// Repositories: PostgreSQL when reachable, in-memory otherwise
	var (
		users             repository.UserRepository
		companies         repository.CompanyRepository
		sessions          repository.SessionRepository
		pinger            handler.Pinger
		databaseConnected bool
	)
	db, err := initDB(cfg, zl)
	switch {
	case err == nil:
		defer func() {
			if err := db.Close(); err != nil {
				zl.Warn("error closing database connection", zap.Error(err))
			}
		}()
		migrateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = postgres.Migrate(migrateCtx, db)
		cancel()
		if err != nil {
			zl.Fatal("failed to migrate database", zap.Error(err))
		}
		users = postgres.NewUserRepository(db)
		companies = postgres.NewCompanyRepository(db)
		sessions = postgres.NewSessionRepository(db)
		pinger = db
		databaseConnected = true
		zl.Info("database connection established")
	case cfg.Database.Required:
		zl.Fatal("failed to initialize database", zap.Error(err))
	default:
		zl.Warn("database unavailable, using in-memory repositories", zap.Error(err))
		users = memory.NewUserRepo()
		companies = memory.NewCompanyRepo()
		sessions = memory.NewSessionRepo()
	}

	// Cache: Redis when enabled and reachable
	var sessionCache cache.Cache = cache.NewMemoryCache()
	if cfg.Redis.Enabled {
		redisClient, err := initRedis(cfg)
		if err != nil {
			zl.Warn("redis unavailable, using in-memory cache", zap.Error(err))
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					zl.Warn("error closing redis connection", zap.Error(err))
				}
			}()
			sessionCache = cache.NewRedisCache(redisClient)
			zl.Info("redis connection established", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	// Verification links need the RSA key pair
	var tokenService *jwt.TokenService
	privateKey, publicKey, err := loadRSAKeys(cfg)
	if err != nil {
		zl.Warn("RSA keys not loaded, email verification disabled", zap.Error(err))
	} else if tokenService, err = jwt.NewTokenService(privateKey, publicKey, cfg.JWT.VerificationExpiry, cfg.JWT.Issuer); err != nil {
		zl.Fatal("failed to initialize token service", zap.Error(err))
	}

	// Initialize email service
	var emailService email.EmailService = email.NewLogEmailService(zl)
	if cfg.Email.Enabled {
		resendService, err := email.NewResendEmailService(&email.EmailConfig{
			APIKey:    cfg.Email.APIKey,
			FromEmail: cfg.Email.FromEmail,
			FromName:  cfg.Email.FromName,
		}, zl)
		if err != nil {
			zl.Warn("failed to initialize email service, logging emails instead", zap.Error(err))
		} else {
			emailService = resendService
			zl.Info("email service initialized (Resend)")
		}
	} else {
		zl.Info("email delivery disabled (set EMAIL_ENABLED=true to enable)")
	}

	hub := events.NewHub()
	authService := service.NewAuthService(service.Dependencies{
		Users:             users,
		Companies:         companies,
		Sessions:          sessions,
		Blacklist:         blacklist.NewSessionBlacklist(sessionCache),
		Cache:             sessionCache,
		TokenService:      tokenService,
		EmailService:      emailService,
		Hasher:            hash.NewPasswordHasher(hash.DefaultConfig),
		Hub:               hub,
		Config:            cfg,
		Logger:            zl,
		DatabaseConnected: databaseConnected,
	})

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := authService.EnsureDemoUser(seedCtx); err != nil {
		zl.Warn("failed to seed demo user", zap.Error(err))
	}
	cancelSeed()

	// Initialize handlers
	validate := validator.NewValidator()
	authHandler := handler.NewAuthHandler(authService, validate, cfg, zl)
	sessionHandler := handler.NewSessionHandler(authService, cfg, zl)
	adminHandler := handler.NewAdminHandler(authService, hub, zl)
	healthHandler := handler.NewHealthHandler(pinger, sessionCache)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:               "AI Sentinel Session Service",
		DisableStartupMessage: cfg.Server.IsProduction(),
		ErrorHandler:          handler.ErrorHandler(zl),
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
	})

	// Setup global middlewares
	app.Use(middleware.RecoveryMiddleware(zl))
	app.Use(middleware.LoggerMiddleware(zl))
	app.Use(middleware.CORSMiddleware(cfg.Server.AllowOrigins))

	handler.SetupRoutes(
		app,
		authHandler,
		sessionHandler,
		adminHandler,
		healthHandler,
		middleware.SessionAuth(authService, cfg.Session.CookieName, zl),
		middleware.RequireAdmin(),
		middleware.RejectDemo(),
	)

	wsServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.WSPort),
		Handler:           realtime.NewServer(authService, hub, cfg.Session.CookieName, cfg.Server.AllowOrigins, zl).Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		zl.Info("server starting", zap.String("addr", addr), zap.String("environment", cfg.Server.Environment))
		if err := app.Listen(addr); err != nil {
			zl.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	go func() {
		zl.Info("realtime server starting", zap.String("addr", wsServer.Addr))
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("realtime server failed", zap.Error(err))
			stop()
		}
	}()

	go pruneSessions(ctx, authService, zl)

	<-ctx.Done()
	zl.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		zl.Warn("realtime server forced to shutdown", zap.Error(err))
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zl.Warn("server forced to shutdown", zap.Error(err))
	}

	zl.Info("server stopped")
}

func pruneSessions(ctx context.Context, authService *service.AuthService, zl *zap.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := authService.PruneExpiredSessions(ctx); err != nil {
				zl.Warn("session pruning failed", zap.Error(err))
			}
		}
	}
}

// initDB initializes PostgreSQL database connection with retry logic
func initDB(cfg *config.Config, zl *zap.Logger) (*sqlx.DB, error) {
	dsn := cfg.Database.DSN()

	var db *sqlx.DB
	var err error

	maxRetries := 5
	retryInterval := 2 * time.Second
	if !cfg.Database.Required {
		maxRetries = 1
	}

	for i := 0; i < maxRetries; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			break
		}

		zl.Warn("failed to connect to database",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Error(err))
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// initRedis initializes Redis client and verifies connection
func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}

// loadRSAKeys loads the key pair that signs verification links
func loadRSAKeys(cfg *config.Config) ([]byte, []byte, error) {
	privateKey, err := os.ReadFile(cfg.JWT.PrivateKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	publicKey, err := os.ReadFile(cfg.JWT.PublicKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read public key file: %w", err)
	}

	if len(privateKey) == 0 || len(publicKey) == 0 {
		return nil, nil, fmt.Errorf("key files must not be empty")
	}

	return privateKey, publicKey, nil
}
