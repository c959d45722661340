package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authpkg "github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/auth"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/clock"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/config"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/database"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/elastic"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/handlers"
	middlewareCustom "github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/middleware"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/models"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/repositories"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/routes"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/services"
	pkgauth "github.com/HORIAALEX/LoginAttemptMonitoringAPI/pkg/auth"
	pkghttp "github.com/HORIAALEX/LoginAttemptMonitoringAPI/pkg/http"
	pkglogger "github.com/HORIAALEX/LoginAttemptMonitoringAPI/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// userStore is the credential store plus the seed-only Create used at
// bootstrap.
type userStore interface {
	services.CredentialStore
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("user_store", cfg.Auth.UserStore))

	// Attempt store (Elasticsearch)
	esClient, err := elastic.NewClient(&cfg.Elastic, logger)
	if err != nil {
		logger.Error("failed to initialize elasticsearch client", slog.Any("error", err))
		os.Exit(1)
	}

	// Credential store
	var users userStore
	switch cfg.Auth.UserStore {
	case "postgres":
		db, err := database.NewConnection(&cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()
		users = repositories.NewUserRepository(db)
	default:
		users = repositories.NewMemoryUserRepository()
	}

	// Token issuer
	tokenManager := authpkg.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	auditLogger := pkglogger.NewAuditLogger(logger)

	authService := services.NewAuthService(
		users,
		esClient,
		esClient,
		tokenManager,
		cfg.BruteForce,
		clock.Real{},
		logger,
		auditLogger,
	)

	// Bootstrap the seed user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureSeedUser(ctx, users, logger); err != nil {
		logger.Error("failed to ensure seed user", slog.Any("error", err))
	}
	cancel()

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	sessionHandler := handlers.NewSessionHandler(authService, ipConfig)
	lockoutHandler := handlers.NewLockoutHandler(authService)
	healthHandler := handlers.NewHealthHandler(authService)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, sessionHandler, lockoutHandler, healthHandler, middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.BruteForce.MaxAttemptsPerIPPerMinute,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureSeedUser creates the first user if SEED_USERNAME and
// SEED_PASSWORD are set. Accounts are otherwise provisioned out-of-band.
func ensureSeedUser(ctx context.Context, users userStore, logger *slog.Logger) error {
	seedUsername := os.Getenv("SEED_USERNAME")
	seedPassword := os.Getenv("SEED_PASSWORD")

	if seedUsername == "" || seedPassword == "" {
		logger.Info("no SEED_USERNAME or SEED_PASSWORD set, skipping seed user creation")
		return nil
	}

	_, err := users.GetByUsername(ctx, seedUsername)
	if err == nil {
		logger.Info("seed user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if seed user exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(seedPassword)
	if err != nil {
		return fmt.Errorf("failed to hash seed password: %w", err)
	}

	_, err = users.Create(ctx, &models.User{
		Username:     seedUsername,
		PasswordHash: hashedPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create seed user: %w", err)
	}

	logger.Info("seed user created", slog.String("username", pkglogger.SanitizedUsername(seedUsername)))
	return nil
}
