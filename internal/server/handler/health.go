package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health-check and status endpoints.
type HealthHandler struct {
	mode   string
	feeBps uint32
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting the given run mode.
func NewHealthHandler(mode string, feeBps uint32, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{mode: mode, feeBps: feeBps, logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetStatus responds with the run mode and active fee schedule.
// GET /api/status
func (h *HealthHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":    h.mode,
		"fee_bps": h.feeBps,
	})
}
