package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/HORIAALEX/LoginAttemptMonitoringAPI/pkg/http"
)

// HealthHandler serves liveness and dependency health probes
type HealthHandler struct {
	service AuthServiceInterface
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(service AuthServiceInterface) *HealthHandler {
	return &HealthHandler{service: service}
}

// HealthResponse is the body of dependency health probes
type HealthResponse struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// Liveness handles GET /health
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Elasticsearch handles GET /health/elasticsearch. Always 200: a
// degraded store is reported in the body, since the service itself keeps
// authenticating without it.
func (h *HealthHandler) Elasticsearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.service.PingAttemptStore(ctx); err != nil {
		pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "degraded",
			Details: err.Error(),
		})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}
