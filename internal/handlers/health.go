package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/landreg/verification-server/internal/models"
)

var startTime = time.Now()

// Pinger is a dependency the server cannot work without
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints
type HealthHandler struct {
	api      Pinger
	sessions Pinger
	version  string
	logger   *zap.SugaredLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(api, sessions Pinger, version string, logger *zap.SugaredLogger) *HealthHandler {
	return &HealthHandler{api: api, sessions: sessions, version: version, logger: logger}
}

// Check handles GET /health (liveness probe)
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthStatus{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(startTime).String(),
	})
}

// Ready handles GET /health/ready (readiness probe)
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatus{
		Status:          "ready",
		Version:         h.version,
		Uptime:          time.Since(startTime).String(),
		VerificationAPI: "connected",
		Sessions:        "connected",
	}
	code := http.StatusOK

	if err := h.api.Ping(r.Context()); err != nil {
		h.logger.Warnw("Verification API is unreachable", "error", err)
		status.VerificationAPI = "disconnected"
		status.Status = "not ready"
		code = http.StatusServiceUnavailable
	}
	if err := h.sessions.Ping(r.Context()); err != nil {
		h.logger.Warnw("Session store is unreachable", "error", err)
		status.Sessions = "disconnected"
		status.Status = "not ready"
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, status)
}
