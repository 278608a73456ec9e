// Package handlers contains HTTP request handlers for the verification server.
// Handlers parse requests, call services, and return JSON page models or
// redirects.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/landreg/verification-server/internal/services"
)

// Helper: respond with JSON
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Helper: respond with error
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps workflow errors onto responses
func respondServiceError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	var userErr *services.UserFacingError
	var invalid *services.ValidationError

	switch {
	case errors.As(err, &invalid):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"errors": invalid.Fields})
	case errors.Is(err, services.ErrCaseNotFound):
		respondError(w, http.StatusNotFound, "Page not found")
	case errors.As(err, &userErr):
		respondJSON(w, userErr.HTTPCode, map[string]string{"error": userErr.Message, "trace_id": userErr.TraceID})
	default:
		logger.Errorw("Unhandled workflow error", "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// redirect sends the browser on after a successful form post
func redirect(w http.ResponseWriter, r *http.Request, outcome *services.Outcome) {
	http.Redirect(w, r, outcome.Redirect, http.StatusSeeOther)
}
