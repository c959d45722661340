package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/models"
	pkghttp "github.com/HORIAALEX/LoginAttemptMonitoringAPI/pkg/http"
)

// AuthServiceInterface defines the interface for the authentication core
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password, ipAddress, userAgent string) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	LockoutStatus(ctx context.Context, username string) models.LockoutStatus
	Unblock(ctx context.Context, username string)
	PingAttemptStore(ctx context.Context) error
}

// SessionHandler handles session creation and refresh
type SessionHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *SessionHandler {
	return &SessionHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// LoginRequest represents the request body for session creation
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest represents the request body for session refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Create handles POST /sessions. Responds 201 with a token pair on
// success; 401, 423 and 429 carry no hint of whether the username
// exists.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	pair, err := h.service.Login(r.Context(), req.Username, req.Password, ipAddress, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case errors.Is(err, models.ErrAccountLocked):
			pkghttp.WriteLocked(w, "Account is temporarily locked. Please try again later.")
		case errors.Is(err, models.ErrRateLimitExceeded):
			pkghttp.WriteTooManyRequests(w, "Too many login attempts. Please try again later.")
		case errors.Is(err, models.ErrDependencyUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Unable to issue session tokens")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, pair)
}

// Refresh handles POST /sessions/refresh
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid refresh token")
		case errors.Is(err, models.ErrDependencyUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Unable to issue session tokens")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, pair)
}
