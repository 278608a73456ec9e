package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/landreg/verification-server/internal/models"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// ActivityReader reads the audit trail of staff actions
type ActivityReader interface {
	FetchByCase(ctx context.Context, caseID string, limit int) ([]models.ActivityLog, error)
	FetchRecent(ctx context.Context, limit int) ([]models.ActivityLog, error)
}

// ActivityHandler handles audit trail endpoints
type ActivityHandler struct {
	svc    ActivityReader
	logger *zap.SugaredLogger
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(svc ActivityReader, logger *zap.SugaredLogger) *ActivityHandler {
	return &ActivityHandler{svc: svc, logger: logger}
}

// ByCase handles GET /verification/activity/case/{caseID}
func (h *ActivityHandler) ByCase(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if caseID == "" {
		respondError(w, http.StatusBadRequest, "Case id required")
		return
	}

	logs, err := h.svc.FetchByCase(r.Context(), caseID, limitParam(r))
	if err != nil {
		h.logger.Errorw("Failed to fetch case activity", "case_id", caseID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch logs")
		return
	}

	respondJSON(w, http.StatusOK, logs)
}

// Recent handles GET /verification/activity/recent
func (h *ActivityHandler) Recent(w http.ResponseWriter, r *http.Request) {
	logs, err := h.svc.FetchRecent(r.Context(), limitParam(r))
	if err != nil {
		h.logger.Errorw("Failed to fetch recent activity", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch recent activity")
		return
	}

	respondJSON(w, http.StatusOK, logs)
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultActivityLimit
	}
	return min(limit, maxActivityLimit)
}
