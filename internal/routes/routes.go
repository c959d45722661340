package routes

import (
	"net/http"

	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/handlers"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/middleware"
	pkghttp "github.com/HORIAALEX/LoginAttemptMonitoringAPI/pkg/http"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	sessionHandler *handlers.SessionHandler,
	lockoutHandler *handlers.LockoutHandler,
	healthHandler *handlers.HealthHandler,
	loginRateLimit middleware.RateLimitConfig,
) {
	// Session creation carries the per-IP gate; everything behind it is
	// the orchestrator's responsibility.
	router.With(middleware.RateLimitByIP(loginRateLimit)).Post("/sessions", sessionHandler.Create)
	router.Post("/sessions/refresh", sessionHandler.Refresh)

	// Operator-facing lockout management
	router.Get("/users/{username}/lockout", lockoutHandler.Status)
	router.Post("/users/{username}/lockout/unblock", lockoutHandler.Unblock)

	// Health probes
	router.Get("/health", healthHandler.Liveness)
	router.Get("/health/elasticsearch", healthHandler.Elasticsearch)

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
			"message": "Login Attempt Monitoring API is running",
		})
	})
}
