package handlers

import (
	"net/http"

	pkghttp "github.com/HORIAALEX/LoginAttemptMonitoringAPI/pkg/http"
	"github.com/go-chi/chi/v5"
)

// LockoutHandler exposes the operator-facing lockout management surface
type LockoutHandler struct {
	service AuthServiceInterface
}

// NewLockoutHandler creates a new LockoutHandler
func NewLockoutHandler(service AuthServiceInterface) *LockoutHandler {
	return &LockoutHandler{service: service}
}

// Status handles GET /users/{username}/lockout. A username with no
// lockout record reports clear rather than 404.
func (h *LockoutHandler) Status(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		pkghttp.WriteBadRequest(w, "username is required")
		return
	}

	status := h.service.LockoutStatus(r.Context(), username)
	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// Unblock handles POST /users/{username}/lockout/unblock. Idempotent:
// unblocking an already-clear user still acknowledges with 200.
func (h *LockoutHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		pkghttp.WriteBadRequest(w, "username is required")
		return
	}

	h.service.Unblock(r.Context(), username)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "lockout cleared",
	})
}
