package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/landreg/verification-server/internal/services"
)

// Workflow is the staff workflow served over HTTP
type Workflow interface {
	Worklist(ctx context.Context) (*services.WorklistPage, error)
	Item(ctx context.Context, itemID string, fromSearch bool) (*services.CasePage, error)
	Approve(ctx context.Context, itemID string) (*services.Outcome, error)
	Decline(ctx context.Context, itemID, reason, advice string) (*services.Outcome, error)
	CloseAccount(ctx context.Context, itemID, requester, reason string) (*services.Outcome, error)
	AddNote(ctx context.Context, itemID, noteText string) (*services.Outcome, error)
	LockCase(ctx context.Context, itemID string) (*services.Outcome, error)
	UnlockCase(ctx context.Context, itemID string) (*services.Outcome, error)
	Search(ctx context.Context, query url.Values) (*services.SearchPage, error)
	ContactPreferences(ctx context.Context, itemID string, contactBy bool) (*services.ContactPreferencesPage, error)
	UpdateContactPreferences(ctx context.Context, itemID string, form url.Values) (*services.Outcome, *services.ContactPreferencesPage, error)
	UpdateDatasetAccess(ctx context.Context, itemID string, form url.Values) (*services.Outcome, error)
}

// WorkflowHandler handles the worklist endpoints
type WorkflowHandler struct {
	workflow Workflow
	logger   *zap.SugaredLogger
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(workflow Workflow, logger *zap.SugaredLogger) *WorkflowHandler {
	return &WorkflowHandler{workflow: workflow, logger: logger}
}

// Routes mounts the worklist endpoints. Every route except lock and unlock
// is wrapped in requireRole.
func (h *WorkflowHandler) Routes(r chi.Router, requireRole func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(requireRole)
		r.Get("/", h.Worklist)
		r.Get("/search", h.Search)
		r.Post("/approve", h.Approve)
		r.Post("/decline", h.Decline)
		r.Post("/close", h.Close)
		r.Post("/note", h.AddNote)
		r.Post("/update_dataset_access", h.UpdateDatasetAccess)
		r.Get("/{itemID}", h.Item)
		r.Get("/{itemID}/contact_preferences", h.ContactPreferences)
		r.Post("/{itemID}/contact_preferences", h.UpdateContactPreferences)
	})
	r.Post("/lock", h.Lock)
	r.Post("/unlock", h.Unlock)
}

// Worklist handles GET /verification/worklist
func (h *WorkflowHandler) Worklist(w http.ResponseWriter, r *http.Request) {
	page, err := h.workflow.Worklist(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// Item handles GET /verification/worklist/{itemID}
func (h *WorkflowHandler) Item(w http.ResponseWriter, r *http.Request) {
	fromSearch := r.URL.Query().Get("from") == "search"
	page, err := h.workflow.Item(r.Context(), chi.URLParam(r, "itemID"), fromSearch)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// Approve handles POST /verification/worklist/approve
func (h *WorkflowHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, func(ctx context.Context, itemID string) (*services.Outcome, error) {
		return h.workflow.Approve(ctx, itemID)
	})
}

// Decline handles POST /verification/worklist/decline
func (h *WorkflowHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, func(ctx context.Context, itemID string) (*services.Outcome, error) {
		return h.workflow.Decline(ctx, itemID, r.PostForm.Get("decline_reason"), r.PostForm.Get("decline_advice"))
	})
}

// Close handles POST /verification/worklist/close
func (h *WorkflowHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, func(ctx context.Context, itemID string) (*services.Outcome, error) {
		return h.workflow.CloseAccount(ctx, itemID, r.PostForm.Get("close_requester"), r.PostForm.Get("close_reason"))
	})
}

// AddNote handles POST /verification/worklist/note
func (h *WorkflowHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, func(ctx context.Context, itemID string) (*services.Outcome, error) {
		return h.workflow.AddNote(ctx, itemID, r.PostForm.Get("note_text"))
	})
}

// Lock handles POST /verification/worklist/lock
func (h *WorkflowHandler) Lock(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, h.workflow.LockCase)
}

// Unlock handles POST /verification/worklist/unlock
func (h *WorkflowHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, h.workflow.UnlockCase)
}

// UpdateDatasetAccess handles POST /verification/worklist/update_dataset_access
func (h *WorkflowHandler) UpdateDatasetAccess(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, func(ctx context.Context, itemID string) (*services.Outcome, error) {
		return h.workflow.UpdateDatasetAccess(ctx, itemID, r.PostForm)
	})
}

// Search handles GET /verification/worklist/search
func (h *WorkflowHandler) Search(w http.ResponseWriter, r *http.Request) {
	page, err := h.workflow.Search(r.Context(), r.URL.Query())
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// ContactPreferences handles GET /verification/worklist/{itemID}/contact_preferences
func (h *WorkflowHandler) ContactPreferences(w http.ResponseWriter, r *http.Request) {
	contactBy := r.URL.Query().Get("contact_by") == "true"
	page, err := h.workflow.ContactPreferences(r.Context(), chi.URLParam(r, "itemID"), contactBy)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// UpdateContactPreferences handles POST /verification/worklist/{itemID}/contact_preferences.
// A rejected form is answered with the form page and its messages.
func (h *WorkflowHandler) UpdateContactPreferences(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	outcome, page, err := h.workflow.UpdateContactPreferences(r.Context(), chi.URLParam(r, "itemID"), r.PostForm)
	var invalid *services.ValidationError
	switch {
	case errors.As(err, &invalid) && page != nil:
		respondJSON(w, http.StatusUnprocessableEntity, page)
	case err != nil:
		respondServiceError(w, h.logger, err)
	default:
		redirect(w, r, outcome)
	}
}

// post parses a worklist form, runs action against its item_id and redirects
func (h *WorkflowHandler) post(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, itemID string) (*services.Outcome, error)) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	itemID := r.PostForm.Get("item_id")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "item_id required")
		return
	}

	outcome, err := action(r.Context(), itemID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	redirect(w, r, outcome)
}
