// Package verification is the typed HTTP client for the verification API,
// the backend service that owns every case, note, licence and download record.
//
// All calls go through a single request primitive: GET when there is no body,
// POST with a JSON body otherwise. Failures are converted into an
// ApplicationError carrying a stable code (E401 HTTP error, E402 connection
// failure, E403 timeout). The client never retries.
package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/landreg/verification-server/internal/metrics"
	"github.com/landreg/verification-server/internal/models"
)

// maxErrorBody bounds how much of a failed response is kept for the error message
const maxErrorBody = 4 << 10

// Client calls the verification API
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.SugaredLogger
	metrics    *metrics.Metrics
}

// NewClient creates a client for baseURL whose requests time out after timeout
func NewClient(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// NewClientWithHTTPClient creates a client from an existing http.Client
func NewClientWithHTTPClient(baseURL string, httpClient *http.Client, logger *zap.SugaredLogger) *Client {
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}
}

// WithMetrics records every call's outcome and latency in m
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

// request performs a single API call. A nil body issues a GET, anything else
// is JSON encoded and POSTed. When out is non-nil a 2xx JSON response is
// decoded into it; a 204 leaves it untouched.
func (c *Client) request(ctx context.Context, uri string, body any, out any) error {
	start := time.Now()
	err := c.do(ctx, uri, body, out)
	c.metrics.ObserveAPIRequest(endpointLabel(uri), outcomeLabel(err), time.Since(start))
	return err
}

func (c *Client) do(ctx context.Context, uri string, body any, out any) error {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, uri)

	method := http.MethodGet
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		method = http.MethodPost
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) && !isDialFailure(err) {
			c.logger.Errorw("Encountered a timeout while accessing Verification API", "url", endpoint, "error", err)
			return newRequestTimeout(err)
		}
		c.logger.Errorw("Encountered an error while connecting to Verification API", "url", endpoint, "error", err)
		return newConnectionFailure(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Warnw("Verification API returned not found", "url", endpoint)
		return newNotFound()
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		cause := &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
		c.logger.Errorw("Encountered non-2xx HTTP code when accessing Verification API",
			"url", endpoint,
			"status", resp.StatusCode,
			"error", cause,
		)
		return newHTTPError(cause)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if isTimeout(err) {
			return newRequestTimeout(err)
		}
		c.logger.Errorw("Could not decode Verification API response", "url", endpoint, "error", err)
		return newHTTPError(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// endpointLabel drops ids from uri: "case/12/approve" becomes "case/approve"
func endpointLabel(uri string) string {
	parts := strings.Split(uri, "/")
	if len(parts) >= 3 && parts[0] == "case" {
		return "case/" + parts[2]
	}
	return parts[0]
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if appErr, ok := AsApplicationError(err); ok {
		return appErr.Code
	}
	return "error"
}

// isDialFailure reports whether the connection was never established.
// A connect timeout counts as a connection failure.
func isDialFailure(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// GetWorklist returns the applications pending approval
func (c *Client) GetWorklist(ctx context.Context) ([]models.Case, error) {
	c.logger.Info("Retrieving list of applications pending approval")
	var worklist []models.Case
	if err := c.request(ctx, "worklist", nil, &worklist); err != nil {
		return nil, err
	}
	return worklist, nil
}

// GetItem returns a single case
func (c *Client) GetItem(ctx context.Context, itemID string) (*models.Case, error) {
	c.logger.Infow("Retrieving details for case", "case_id", itemID)
	var item models.Case
	if err := c.request(ctx, "case/"+url.PathEscape(itemID), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ApproveWorklistItem approves a pending application
func (c *Client) ApproveWorklistItem(ctx context.Context, itemID, staffID string) error {
	c.logger.Infow("Approving worklist item", "case_id", itemID, "staff_id", staffID)
	body := map[string]string{"staff_id": staffID}
	return c.request(ctx, casePath(itemID, "approve"), body, nil)
}

// DeclineWorklistItem declines a pending application with a reason and next steps
func (c *Client) DeclineWorklistItem(ctx context.Context, itemID, staffID, reason, advice string) error {
	c.logger.Infow("Declining worklist item", "case_id", itemID, "staff_id", staffID)
	body := map[string]string{
		"staff_id": staffID,
		"reason":   reason,
		"advice":   advice,
	}
	return c.request(ctx, casePath(itemID, "decline"), body, nil)
}

// CloseAccount closes an approved account. requester is "customer" or "hmlr".
func (c *Client) CloseAccount(ctx context.Context, itemID, staffID, requester, reason string) error {
	c.logger.Infow("Closing account", "case_id", itemID, "staff_id", staffID, "requester", requester)
	body := map[string]string{
		"staff_id":     staffID,
		"requester":    requester,
		"close_detail": reason,
	}
	return c.request(ctx, casePath(itemID, "close"), body, nil)
}

// AddNote appends a note to the case notepad
func (c *Client) AddNote(ctx context.Context, itemID, staffID, noteText string) error {
	c.logger.Infow("Adding note to notepad", "case_id", itemID, "staff_id", staffID)
	body := map[string]string{
		"staff_id":  staffID,
		"note_text": noteText,
	}
	return c.request(ctx, casePath(itemID, "note"), body, nil)
}

// Lock locks the case to staffID
func (c *Client) Lock(ctx context.Context, itemID, staffID string) error {
	c.logger.Infow("Locking item to user", "case_id", itemID, "staff_id", staffID)
	body := map[string]string{"staff_id": staffID}
	return c.request(ctx, casePath(itemID, "lock"), body, nil)
}

// Unlock releases the case lock
func (c *Client) Unlock(ctx context.Context, itemID string) error {
	c.logger.Infow("Unlocking item", "case_id", itemID)
	return c.request(ctx, casePath(itemID, "unlock"), struct{}{}, nil)
}

// PerformSearch searches cases by name, organisation or email
func (c *Client) PerformSearch(ctx context.Context, params models.SearchParams) ([]models.Case, error) {
	c.logger.Info("Performing search")
	var results []models.Case
	if err := c.request(ctx, "search", params, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// GetDeclineReasons returns the common decline templates
func (c *Client) GetDeclineReasons(ctx context.Context) ([]models.DeclineReason, error) {
	c.logger.Info("Retrieving common decline reasons")
	var reasons []models.DeclineReason
	if err := c.request(ctx, "decline-reasons", nil, &reasons); err != nil {
		return nil, err
	}
	return reasons, nil
}

// UpdateUserDetails posts arbitrary update params for the case's account
func (c *Client) UpdateUserDetails(ctx context.Context, caseID string, params any) error {
	c.logger.Infow("Updating user details", "case_id", caseID)
	return c.request(ctx, casePath(caseID, "update"), params, nil)
}

// GetDatasetActivity returns licence and download history per dataset
func (c *Client) GetDatasetActivity(ctx context.Context, caseID string) ([]models.DatasetActivity, error) {
	c.logger.Infow("Getting download history for case", "case_id", caseID)
	var activity []models.DatasetActivity
	if err := c.request(ctx, "dataset-activity/"+url.PathEscape(caseID), nil, &activity); err != nil {
		return nil, err
	}
	return activity, nil
}

// GetUserDatasetAccess returns the licence state of every dataset for the account
func (c *Client) GetUserDatasetAccess(ctx context.Context, caseID string) ([]models.DatasetAccess, error) {
	c.logger.Infow("Getting data access for case", "case_id", caseID)
	var access []models.DatasetAccess
	if err := c.request(ctx, "dataset-access/"+url.PathEscape(caseID), nil, &access); err != nil {
		return nil, err
	}
	return access, nil
}

// UpdateDatasetAccess sends only the licences whose agreed state differs
// between currentAccess and the submitted form. No request is made when
// nothing changed. The changes sent are returned.
func (c *Client) UpdateDatasetAccess(ctx context.Context, caseID, staffID string, currentAccess []models.DatasetAccess, updatedAccess url.Values) ([]models.LicenceUpdate, error) {
	c.logger.Infow("Updating users access to datasets", "case_id", caseID, "staff_id", staffID)

	changes := DiffLicences(currentAccess, updatedAccess)
	if len(changes) == 0 {
		c.logger.Infow("Dataset access unchanged, skipping update", "case_id", caseID)
		return nil, nil
	}

	body := models.DatasetAccessUpdate{StaffID: staffID, Licences: changes}
	if err := c.request(ctx, casePath(caseID, "update_dataset_access"), body, nil); err != nil {
		return nil, err
	}
	return changes, nil
}

// Ping checks the API is reachable
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("verification api unhealthy: %d", resp.StatusCode)
	}
	return nil
}

func casePath(itemID, action string) string {
	return fmt.Sprintf("case/%s/%s", url.PathEscape(itemID), action)
}
