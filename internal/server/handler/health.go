package handler

import (
	"net/http"
	"time"

	"github.com/quantbay/tradebot/internal/domain"
)

// HealthHandler serves liveness and engine status.
type HealthHandler struct {
	status func() domain.EngineStatus
}

func NewHealthHandler(status func() domain.EngineStatus) *HealthHandler {
	return &HealthHandler{status: status}
}

// HealthCheck responds with a simple alive marker.
// GET /api/healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetStatus responds with the engine status snapshot.
// GET /api/status
func (h *HealthHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}
