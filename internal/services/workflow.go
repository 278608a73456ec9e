package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/landreg/verification-server/internal/formatting"
	"github.com/landreg/verification-server/internal/lock"
	"github.com/landreg/verification-server/internal/metrics"
	"github.com/landreg/verification-server/internal/models"
	"github.com/landreg/verification-server/internal/requestcontext"
	"github.com/landreg/verification-server/internal/verification"
)

// WorklistPath is where most actions send the browser afterwards
const WorklistPath = "/verification/worklist"

// Audit actions
const (
	ActionApprove                  = "approve"
	ActionDecline                  = "decline"
	ActionClose                    = "close"
	ActionAddNote                  = "add_note"
	ActionLock                     = "lock"
	ActionUnlock                   = "unlock"
	ActionUpdateContactPreferences = "update_contact_preferences"
	ActionUpdateDatasetAccess      = "update_dataset_access"
)

// Close requesters. A customer request also emails the account holder.
const (
	RequesterCustomer = "customer"
	RequesterHMLR     = "hmlr"
)

// contactChoices are the ways a user may agree to be contacted
var contactChoices = []formatting.Choice{
	{Value: "telephone", Label: "Telephone"},
	{Value: "email", Label: "Email"},
	{Value: "post", Label: "Post"},
}

// CasePath is the case page for itemID
func CasePath(itemID string) string {
	return WorklistPath + "/" + url.PathEscape(itemID)
}

// VerificationAPI is the subset of the verification client the workflow uses
type VerificationAPI interface {
	GetWorklist(ctx context.Context) ([]models.Case, error)
	GetItem(ctx context.Context, itemID string) (*models.Case, error)
	ApproveWorklistItem(ctx context.Context, itemID, staffID string) error
	DeclineWorklistItem(ctx context.Context, itemID, staffID, reason, advice string) error
	CloseAccount(ctx context.Context, itemID, staffID, requester, reason string) error
	AddNote(ctx context.Context, itemID, staffID, noteText string) error
	PerformSearch(ctx context.Context, params models.SearchParams) ([]models.Case, error)
	GetDeclineReasons(ctx context.Context) ([]models.DeclineReason, error)
	UpdateUserDetails(ctx context.Context, caseID string, params any) error
	GetDatasetActivity(ctx context.Context, caseID string) ([]models.DatasetActivity, error)
	GetUserDatasetAccess(ctx context.Context, caseID string) ([]models.DatasetAccess, error)
	UpdateDatasetAccess(ctx context.Context, caseID, staffID string, currentAccess []models.DatasetAccess, updatedAccess url.Values) ([]models.LicenceUpdate, error)
}

// SessionStore keeps per-session identity, search and flash state
type SessionStore interface {
	Username(ctx context.Context, sessionID string) (string, error)
	SetUsername(ctx context.Context, sessionID, username string) error
	SearchParams(ctx context.Context, sessionID string) (*models.SearchParams, error)
	SetSearchParams(ctx context.Context, sessionID string, params models.SearchParams) error
	ClearSearchParams(ctx context.Context, sessionID string) error
	AddFlash(ctx context.Context, sessionID, message string) error
	PopFlashes(ctx context.Context, sessionID string) ([]string, error)
	Destroy(ctx context.Context, sessionID string) error
}

// AuditLog records staff actions
type AuditLog interface {
	Log(ctx context.Context, entry *models.ActivityLogEntry) error
}

// WorkflowService drives every staff action on the worklist
type WorkflowService struct {
	client      VerificationAPI
	locks       *lock.Coordinator
	sessions    SessionStore
	audit       AuditLog
	logger      *zap.SugaredLogger
	metrics     *metrics.Metrics
	searchLimit int
	now         func() time.Time
}

// NewWorkflowService creates a new workflow service. audit may be nil.
func NewWorkflowService(client VerificationAPI, locks *lock.Coordinator, sessions SessionStore, audit AuditLog, searchLimit int, logger *zap.SugaredLogger) *WorkflowService {
	return &WorkflowService{
		client:      client,
		locks:       locks,
		sessions:    sessions,
		audit:       audit,
		logger:      logger,
		searchLimit: searchLimit,
		now:         time.Now,
	}
}

// WithMetrics counts completed and refused actions in m
func (s *WorkflowService) WithMetrics(m *metrics.Metrics) *WorkflowService {
	s.metrics = m
	return s
}

// Worklist returns every case awaiting attention
func (s *WorkflowService) Worklist(ctx context.Context) (*WorklistPage, error) {
	const failure = "when retrieving the worklist"
	s.logger.Infow("User requested to view worklist")

	items, err := s.client.GetWorklist(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}
	staffID, err := s.username(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	rows, err := formatting.BuildRows(items, false, staffID)
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	return &WorklistPage{Items: rows, Flashes: s.popFlashes(ctx)}, nil
}

// Item returns a single case. Viewing an unlocked Pending or In Progress
// case locks it to the viewer. The session's cached search is kept only
// when the case was opened from the search results.
func (s *WorkflowService) Item(ctx context.Context, itemID string, fromSearch bool) (*CasePage, error) {
	const failure = "when requesting the application details"
	s.logger.Infow("User requested to view item", "case_id", itemID)

	staffID, err := s.username(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	item, err := s.client.GetItem(ctx, itemID)
	if verification.IsNotFound(err) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	var lockedTo string
	if item.IsLockable() {
		if lockedTo, err = s.locks.Handle(ctx, item, staffID); err != nil {
			return nil, s.fail(ctx, err, failure)
		}
	}

	var (
		activity []models.DatasetActivity
		access   []models.DatasetAccess
	)
	if item.Status == models.StatusApproved {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			activity, err = s.client.GetDatasetActivity(gctx, itemID)
			return err
		})
		g.Go(func() error {
			var err error
			access, err = s.client.GetUserDatasetAccess(gctx, itemID)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, s.fail(ctx, err, failure)
		}
	}

	if !fromSearch {
		if err := s.clearSearch(ctx); err != nil {
			return nil, s.fail(ctx, err, failure)
		}
	}

	page := &CasePage{
		ID:         itemID,
		Status:     item.Status,
		Info:       formatting.BuildDetailsTable(item),
		Notes:      make([]NoteView, 0, len(item.Notes)),
		FromSearch: fromSearch,
		LockedTo:   lockedTo,
	}
	for _, note := range item.Notes {
		meta, err := formatting.FormatNoteMetadata(note)
		if err != nil {
			return nil, s.fail(ctx, err, failure)
		}
		page.Notes = append(page.Notes, NoteView{Text: note.NoteText, MetaData: meta})
	}

	switch item.Status {
	case models.StatusPending, models.StatusInProgress, models.StatusDeclined:
		if lockedTo == "" {
			page.Forms.Note = true
			if item.IsLockable() {
				reasons, err := s.client.GetDeclineReasons(ctx)
				if err != nil {
					return nil, s.fail(ctx, err, failure)
				}
				page.Forms.Decline = &DeclineForm{
					Templates: formatting.BuildDeclineTemplates(reasons),
					Reasons:   reasons,
				}
			}
		}
	default:
		reg := item.RegistrationData
		page.AccountName = strings.Join([]string{reg.Title, reg.FirstName, reg.LastName}, " ")
		page.Forms.Note = true

		if item.Status == models.StatusApproved {
			page.Forms.Close = true
			if len(access) > 0 {
				page.Forms.Access = formatting.BuildDatasetAccessGroups(access)
			}
			if page.Activity, err = formatting.BuildDatasetActivity(activity, s.now()); err != nil {
				return nil, s.fail(ctx, err, failure)
			}
		}
	}

	page.Flashes = s.popFlashes(ctx)
	return page, nil
}

// Approve approves an application. Staff who do not hold the case lock are
// sent back to the worklist with a warning and nothing is changed.
func (s *WorkflowService) Approve(ctx context.Context, itemID string) (*Outcome, error) {
	const failure = "when approving the application"

	staffID, err := s.prepare(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	if outcome, err := s.requireLock(ctx, itemID, staffID, ActionApprove); outcome != nil || err != nil {
		if err != nil {
			return nil, s.fail(ctx, err, failure)
		}
		return outcome, nil
	}

	s.logger.Infow("Approving worklist item", "case_id", itemID, "staff_id", staffID)
	if err := s.client.ApproveWorklistItem(ctx, itemID, staffID); err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	s.logger.Infow("Worklist item was approved", "case_id", itemID)
	s.record(ctx, itemID, staffID, ActionApprove, "Application was approved")
	return s.redirect(ctx, WorklistPath, "Application was approved"), nil
}

// Decline declines an application with a reason and next steps for the
// applicant. Lock ownership is enforced as for Approve.
func (s *WorkflowService) Decline(ctx context.Context, itemID, reason, advice string) (*Outcome, error) {
	const failure = "when declining the application"

	invalid := &ValidationError{}
	if strings.TrimSpace(reason) == "" {
		invalid.add("decline_reason", "Please enter a decline reason")
	}
	if strings.TrimSpace(advice) == "" {
		invalid.add("decline_advice", "Please enter next steps")
	}
	if err := invalid.orNil(); err != nil {
		return nil, err
	}

	staffID, err := s.prepare(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	if outcome, err := s.requireLock(ctx, itemID, staffID, ActionDecline); outcome != nil || err != nil {
		if err != nil {
			return nil, s.fail(ctx, err, failure)
		}
		return outcome, nil
	}

	s.logger.Infow("Declining worklist item", "case_id", itemID, "staff_id", staffID)
	if err := s.client.DeclineWorklistItem(ctx, itemID, staffID, reason, advice); err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	s.logger.Infow("Worklist item was declined", "case_id", itemID)
	s.record(ctx, itemID, staffID, ActionDecline, reason)
	return s.redirect(ctx, WorklistPath, "Application was declined"), nil
}

// CloseAccount closes an approved account. There is no lock on accounts.
func (s *WorkflowService) CloseAccount(ctx context.Context, itemID, requester, reason string) (*Outcome, error) {
	const failure = "when closing the account"

	invalid := &ValidationError{}
	if requester != RequesterCustomer && requester != RequesterHMLR {
		invalid.add("close_requester", "Choose who requested to close this account")
	}
	if strings.TrimSpace(reason) == "" {
		invalid.add("close_reason", "Please enter a reason for closing this account")
	}
	if err := invalid.orNil(); err != nil {
		return nil, err
	}

	staffID, err := s.prepare(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	s.logger.Infow("Closing account", "case_id", itemID, "staff_id", staffID, "requester", requester)
	if err := s.client.CloseAccount(ctx, itemID, staffID, requester, reason); err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	s.logger.Infow("Account was closed", "case_id", itemID)
	s.record(ctx, itemID, staffID, ActionClose, fmt.Sprintf("Closed at request of %s: %s", requester, reason))

	flash := "Account was closed"
	if requester == RequesterCustomer {
		flash = "Account was closed and email was sent to account holder"
	}
	return s.redirect(ctx, WorklistPath, flash), nil
}

// AddNote appends a note to the case notepad
func (s *WorkflowService) AddNote(ctx context.Context, itemID, noteText string) (*Outcome, error) {
	const failure = "when adding a note"

	if strings.TrimSpace(noteText) == "" {
		return nil, &ValidationError{Fields: map[string]string{"note_text": "Note text is required"}}
	}

	staffID, err := s.username(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	s.logger.Infow("Adding note to notepad", "case_id", itemID, "staff_id", staffID)
	if err := s.client.AddNote(ctx, itemID, staffID, noteText); err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	s.record(ctx, itemID, staffID, ActionAddNote, noteText)
	return s.redirect(ctx, CasePath(itemID), "Your note was added to the notepad"), nil
}

// LockCase takes the case lock for the current user, whoever held it before
func (s *WorkflowService) LockCase(ctx context.Context, itemID string) (*Outcome, error) {
	const failure = "while locking the application"

	staffID, err := s.prepare(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	if err := s.locks.Lock(ctx, itemID, staffID); err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	s.record(ctx, itemID, staffID, ActionLock, "Lock transferred to "+staffID)
	return s.redirect(ctx, CasePath(itemID), ""), nil
}

// UnlockCase releases the case lock
func (s *WorkflowService) UnlockCase(ctx context.Context, itemID string) (*Outcome, error) {
	const failure = "while unlocking the application"

	staffID, err := s.prepare(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	if err := s.locks.Unlock(ctx, itemID); err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	s.record(ctx, itemID, staffID, ActionUnlock, "Lock released")
	return s.redirect(ctx, WorklistPath, ""), nil
}

// Search runs a search. A non-empty query starts a new search and replaces
// the session's cached one; otherwise the cached search, if any, is replayed.
// At most searchLimit results are returned.
func (s *WorkflowService) Search(ctx context.Context, query url.Values) (*SearchPage, error) {
	const failure = "when performing last search"

	sessionID := requestcontext.SessionID(ctx)
	params, err := s.sessions.SearchParams(ctx, sessionID)
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	page := &SearchPage{Items: [][]formatting.Cell{}}
	if len(query) > 0 {
		page.NewSearch = true
		params = &models.SearchParams{
			FirstName:        queryParam(query, "first_name"),
			LastName:         queryParam(query, "last_name"),
			OrganisationName: queryParam(query, "organisation_name"),
			Email:            queryParam(query, "email"),
		}
	}

	if params != nil {
		staffID, err := s.username(ctx)
		if err != nil {
			return nil, s.fail(ctx, err, failure)
		}

		results, err := s.client.PerformSearch(ctx, *params)
		if err != nil {
			return nil, s.fail(ctx, err, failure)
		}

		page.HasHitLimit = len(results) > s.searchLimit
		if page.HasHitLimit {
			results = results[:s.searchLimit]
		}
		if page.Items, err = formatting.BuildRows(results, true, staffID); err != nil {
			return nil, s.fail(ctx, err, failure)
		}

		if err := s.sessions.SetSearchParams(ctx, sessionID, *params); err != nil {
			return nil, s.fail(ctx, err, failure)
		}
		page.Params = params
	}

	page.Flashes = s.popFlashes(ctx)
	return page, nil
}

// ContactPreferences returns the contact preferences form for a case.
// contactBy preselects "yes" for users being asked how to be contacted.
func (s *WorkflowService) ContactPreferences(ctx context.Context, itemID string, contactBy bool) (*ContactPreferencesPage, error) {
	const failure = "while updating user contact preferences"

	if _, err := s.client.GetItem(ctx, itemID); err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	page := &ContactPreferencesPage{
		ItemID:             itemID,
		ContactPreferences: []string{},
		Choices:            contactChoices,
	}
	if contactBy {
		page.Contactable = "yes"
	}
	return page, nil
}

// UpdateContactPreferences validates and saves the contact preferences form.
// Contactable users need at least one preference and others may have none.
// A rejected form comes back as a page carrying the messages, with a
// *ValidationError.
func (s *WorkflowService) UpdateContactPreferences(ctx context.Context, itemID string, form url.Values) (*Outcome, *ContactPreferencesPage, error) {
	const failure = "while updating user contact preferences"

	if _, err := s.client.GetItem(ctx, itemID); err != nil {
		return nil, nil, s.fail(ctx, err, failure)
	}

	contactable := form.Get("contactable")
	preferences := form["contact_preferences"]
	if preferences == nil {
		preferences = []string{}
	}

	if invalid := validateContactPreferences(contactable, preferences); invalid != nil {
		return nil, &ContactPreferencesPage{
			ItemID:             itemID,
			Contactable:        contactable,
			ContactPreferences: preferences,
			Choices:            contactChoices,
			Errors:             invalid.Fields,
		}, invalid
	}

	staffID, err := s.username(ctx)
	if err != nil {
		return nil, nil, s.fail(ctx, err, failure)
	}

	var update models.ContactPreferencesUpdate
	update.UpdatedData.Contactable = contactable == "yes"
	update.UpdatedData.ContactPreferences = preferences
	update.StaffID = staffID

	if err := s.client.UpdateUserDetails(ctx, itemID, update); err != nil {
		return nil, nil, s.fail(ctx, err, failure)
	}

	s.record(ctx, itemID, staffID, ActionUpdateContactPreferences,
		fmt.Sprintf("contactable=%t preferences=%s", update.UpdatedData.Contactable, strings.Join(preferences, ",")))
	return s.redirect(ctx, CasePath(itemID), ""), nil, nil
}

func validateContactPreferences(contactable string, preferences []string) *ValidationError {
	invalid := &ValidationError{}

	if contactable != "" && contactable != "yes" && contactable != "no" {
		invalid.add("contactable", "Not a valid choice")
	}
	for _, preference := range preferences {
		if !isContactChoice(preference) {
			invalid.add("contact_preferences", fmt.Sprintf("'%s' is not a valid choice for this field", preference))
		}
	}

	wantsContact := contactable == "yes"
	if wantsContact && len(preferences) == 0 {
		invalid.add("contact_preferences", "Choose one option")
	}
	if !wantsContact && len(preferences) > 0 {
		invalid.add("contact_preferences", "You can only select an option if user wants to take part in research")
	}

	if len(invalid.Fields) == 0 {
		return nil
	}
	return invalid
}

func isContactChoice(value string) bool {
	for _, choice := range contactChoices {
		if choice.Value == value {
			return true
		}
	}
	return false
}

// UpdateDatasetAccess applies the dataset access form. Sample and direct
// licences and the read-only dataset cannot be changed from here and are
// left out before comparing with the submitted form.
func (s *WorkflowService) UpdateDatasetAccess(ctx context.Context, itemID string, form url.Values) (*Outcome, error) {
	const failure = "when updating users data access"
	s.logger.Infow("Updating dataset access", "case_id", itemID)

	staffID, err := s.username(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	current, err := s.client.GetUserDatasetAccess(ctx, itemID)
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	changes, err := s.client.UpdateDatasetAccess(ctx, itemID, staffID, verification.FilterEditable(current), form)
	if err != nil {
		return nil, s.fail(ctx, err, failure)
	}

	if len(changes) > 0 {
		parts := make([]string, 0, len(changes))
		for _, change := range changes {
			parts = append(parts, fmt.Sprintf("%s=%t", change.LicenceID, change.Agreed))
		}
		s.record(ctx, itemID, staffID, ActionUpdateDatasetAccess, strings.Join(parts, ","))
	}
	return s.redirect(ctx, CasePath(itemID), "User's data access was updated"), nil
}

// prepare clears the cached search and resolves the acting staff member
func (s *WorkflowService) prepare(ctx context.Context) (string, error) {
	if err := s.clearSearch(ctx); err != nil {
		return "", err
	}
	return s.username(ctx)
}

// requireLock returns a warning outcome when staffID may not act on the case
func (s *WorkflowService) requireLock(ctx context.Context, itemID, staffID, action string) (*Outcome, error) {
	ok, err := s.locks.CheckCorrectLockUser(ctx, itemID, staffID)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}

	s.logger.Warnw("Action refused, case locked to another user", "case_id", itemID, "staff_id", staffID, "action", action)
	s.metrics.IncrementAction(action, "refused")
	return s.redirect(ctx, WorklistPath,
		fmt.Sprintf("You are not the current locked user of Worklist item %s", itemID)), nil
}

// username returns the authenticated staff id and caches it on the session.
// A session cached for somebody else is reset first, so search results and
// flashes never carry over between staff.
func (s *WorkflowService) username(ctx context.Context) (string, error) {
	sessionID := requestcontext.SessionID(ctx)

	staffID := requestcontext.StaffID(ctx)
	if staffID == "" {
		return "", ErrNoIdentity
	}

	cached, err := s.sessions.Username(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if cached == staffID {
		return staffID, nil
	}

	if cached != "" {
		s.logger.Warnw("Session belongs to another user, resetting", "staff_id", staffID, "session_user", cached)
		if err := s.sessions.Destroy(ctx, sessionID); err != nil {
			return "", err
		}
	}
	if err := s.sessions.SetUsername(ctx, sessionID, staffID); err != nil {
		return "", err
	}
	return staffID, nil
}

func (s *WorkflowService) clearSearch(ctx context.Context) error {
	return s.sessions.ClearSearchParams(ctx, requestcontext.SessionID(ctx))
}

// redirect queues flash, if any, for the next page
func (s *WorkflowService) redirect(ctx context.Context, target, flash string) *Outcome {
	if flash != "" {
		if err := s.sessions.AddFlash(ctx, requestcontext.SessionID(ctx), flash); err != nil {
			s.logger.Warnw("Failed to queue flash message", "error", err)
		}
	}
	return &Outcome{Redirect: target, Flash: flash}
}

func (s *WorkflowService) popFlashes(ctx context.Context) []string {
	flashes, err := s.sessions.PopFlashes(ctx, requestcontext.SessionID(ctx))
	if err != nil {
		s.logger.Warnw("Failed to read flash messages", "error", err)
	}
	if flashes == nil {
		flashes = []string{}
	}
	return flashes
}

// record counts a completed action and writes it to the audit log.
// Audit failures are logged, never returned.
func (s *WorkflowService) record(ctx context.Context, caseID, staffID, action, description string) {
	s.metrics.IncrementAction(action, "ok")
	if s.audit == nil {
		return
	}
	entry := &models.ActivityLogEntry{
		CaseID:      caseID,
		StaffID:     staffID,
		Action:      action,
		Description: description,
		TraceID:     requestcontext.TraceID(ctx),
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logger.Warnw("Failed to record activity", "case_id", caseID, "action", action, "error", err)
	}
}

// fail logs err and replaces it with a message staff can quote to support
func (s *WorkflowService) fail(ctx context.Context, err error, failure string) error {
	traceID := requestcontext.TraceID(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}

	fields := []any{"trace_id", traceID, "error", err}
	if appErr, ok := verification.AsApplicationError(err); ok {
		fields = append(fields, "code", appErr.Code, "http_code", appErr.HTTPCode)
	}
	s.logger.Errorw("Something went wrong "+failure, fields...)

	return &UserFacingError{
		Message:  fmt.Sprintf("Something went wrong %s. Please raise an incident quoting the following id: %s", failure, traceID),
		TraceID:  traceID,
		HTTPCode: http.StatusInternalServerError,
		Err:      err,
	}
}

// queryParam is nil when key is absent and the (possibly empty) value otherwise
func queryParam(query url.Values, key string) *string {
	values, ok := query[key]
	if !ok || len(values) == 0 {
		return nil
	}
	value := values[0]
	return &value
}
