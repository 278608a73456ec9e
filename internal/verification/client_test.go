package verification

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/landreg/verification-server/internal/metrics"
	"github.com/landreg/verification-server/internal/models"
)

type recordedRequest struct {
	Method      string
	Path        string
	Accept      string
	ContentType string
	Body        map[string]any
}

// newTestAPI starts a fake verification API that records the last request and
// replies with status and body.
func newTestAPI(t *testing.T, status int, body string) (*Client, *recordedRequest, *int32) {
	t.Helper()
	rec := &recordedRequest{}
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		rec.Method = r.Method
		rec.Path = r.URL.Path
		rec.Accept = r.Header.Get("Accept")
		rec.ContentType = r.Header.Get("Content-Type")
		rec.Body = nil
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			assert.NoError(t, json.Unmarshal(data, &rec.Body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/v1", 2*time.Second, zap.NewNop().Sugar()), rec, &calls
}

func TestGetWorklist(t *testing.T) {
	client, rec, _ := newTestAPI(t, http.StatusOK,
		`[{"case_id": 1, "status": "Pending", "staff_id": null, "date_added": "2019-01-01 12:12:12.000000",
		  "registration_data": {"user_type": "personal-uk", "first_name": "Test"}, "notes": []}]`)

	worklist, err := client.GetWorklist(context.Background())
	require.NoError(t, err)

	require.Len(t, worklist, 1)
	assert.Equal(t, models.ID("1"), worklist[0].CaseID)
	assert.Nil(t, worklist[0].StaffID)
	assert.Equal(t, "Test", worklist[0].RegistrationData.FirstName)
	assert.Equal(t, http.MethodGet, rec.Method)
	assert.Equal(t, "/v1/worklist", rec.Path)
	assert.Equal(t, "application/json", rec.Accept)
	assert.Empty(t, rec.ContentType)
}

func TestGetItem(t *testing.T) {
	client, rec, _ := newTestAPI(t, http.StatusOK, `{"case_id": "42", "status": "Approved", "staff_id": "LRTM101"}`)

	item, err := client.GetItem(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, "/v1/case/42", rec.Path)
	assert.Equal(t, "42", item.CaseID.String())
	assert.Equal(t, "LRTM101", item.LockedTo())
}

func TestPostEndpoints(t *testing.T) {
	tests := []struct {
		name     string
		call     func(c *Client) error
		path     string
		expected map[string]any
	}{
		{
			name:     "approve",
			call:     func(c *Client) error { return c.ApproveWorklistItem(context.Background(), "1", "LRTM101") },
			path:     "/v1/case/1/approve",
			expected: map[string]any{"staff_id": "LRTM101"},
		},
		{
			name: "decline",
			call: func(c *Client) error {
				return c.DeclineWorklistItem(context.Background(), "1", "LRTM101", "Bad address", "Try again")
			},
			path:     "/v1/case/1/decline",
			expected: map[string]any{"staff_id": "LRTM101", "reason": "Bad address", "advice": "Try again"},
		},
		{
			name: "close",
			call: func(c *Client) error {
				return c.CloseAccount(context.Background(), "1", "LRTM101", "customer", "No longer needed")
			},
			path:     "/v1/case/1/close",
			expected: map[string]any{"staff_id": "LRTM101", "requester": "customer", "close_detail": "No longer needed"},
		},
		{
			name:     "note",
			call:     func(c *Client) error { return c.AddNote(context.Background(), "1", "LRTM101", "Called customer") },
			path:     "/v1/case/1/note",
			expected: map[string]any{"staff_id": "LRTM101", "note_text": "Called customer"},
		},
		{
			name:     "lock",
			call:     func(c *Client) error { return c.Lock(context.Background(), "1", "LRTM101") },
			path:     "/v1/case/1/lock",
			expected: map[string]any{"staff_id": "LRTM101"},
		},
		{
			name:     "unlock",
			call:     func(c *Client) error { return c.Unlock(context.Background(), "1") },
			path:     "/v1/case/1/unlock",
			expected: map[string]any{},
		},
		{
			name: "update user details",
			call: func(c *Client) error {
				return c.UpdateUserDetails(context.Background(), "1", map[string]any{"staff_id": "LRTM101"})
			},
			path:     "/v1/case/1/update",
			expected: map[string]any{"staff_id": "LRTM101"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, rec, _ := newTestAPI(t, http.StatusOK, `{}`)

			require.NoError(t, tt.call(client))

			assert.Equal(t, http.MethodPost, rec.Method)
			assert.Equal(t, tt.path, rec.Path)
			assert.Equal(t, "application/json", rec.Accept)
			assert.Equal(t, "application/json", rec.ContentType)
			assert.Equal(t, tt.expected, rec.Body)
		})
	}
}

func TestPerformSearchSendsParams(t *testing.T) {
	client, rec, _ := newTestAPI(t, http.StatusOK, `[]`)
	first := "Test"

	results, err := client.PerformSearch(context.Background(), models.SearchParams{FirstName: &first})
	require.NoError(t, err)

	assert.Empty(t, results)
	assert.Equal(t, "/v1/search", rec.Path)
	assert.Equal(t, map[string]any{
		"first_name":        "Test",
		"last_name":         nil,
		"organisation_name": nil,
		"email":             nil,
	}, rec.Body)
}

func TestNoContentReturnsEmptyResult(t *testing.T) {
	client, _, _ := newTestAPI(t, http.StatusNoContent, "")

	reasons, err := client.GetDeclineReasons(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reasons)
}

func TestNotFoundPreserves404(t *testing.T) {
	client, _, _ := newTestAPI(t, http.StatusNotFound, `{"error": "missing"}`)

	_, err := client.GetItem(context.Background(), "999")
	require.Error(t, err)

	appErr, ok := AsApplicationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeHTTPError, appErr.Code)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPCode)
	assert.True(t, IsNotFound(err))
}

func TestHTTPErrorIsE401(t *testing.T) {
	client, _, _ := newTestAPI(t, http.StatusInternalServerError, `{"error": "boom"}`)

	err := client.ApproveWorklistItem(context.Background(), "1", "LRTM101")
	require.Error(t, err)

	appErr, ok := AsApplicationError(err)
	require.True(t, ok)
	assert.Equal(t, "E401", appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPCode)
	assert.Contains(t, appErr.Message, "boom")
	assert.False(t, IsNotFound(err))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestMalformedJSONIsE401(t *testing.T) {
	client, _, _ := newTestAPI(t, http.StatusOK, `not json`)

	_, err := client.GetWorklist(context.Background())

	appErr, ok := AsApplicationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeHTTPError, appErr.Code)
}

func TestConnectionFailureIsE402(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	client := NewClient(baseURL, time.Second, zap.NewNop().Sugar())

	operations := map[string]func() error{
		"worklist": func() error { _, err := client.GetWorklist(context.Background()); return err },
		"item":     func() error { _, err := client.GetItem(context.Background(), "1"); return err },
		"approve":  func() error { return client.ApproveWorklistItem(context.Background(), "1", "A") },
		"unlock":   func() error { return client.Unlock(context.Background(), "1") },
	}
	for name, op := range operations {
		t.Run(name, func(t *testing.T) {
			appErr, ok := AsApplicationError(op())
			require.True(t, ok)
			assert.Equal(t, "E402", appErr.Code)
			assert.Equal(t, http.StatusInternalServerError, appErr.HTTPCode)
		})
	}
}

func TestTimeoutIsE403(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	client := NewClient(srv.URL, 50*time.Millisecond, zap.NewNop().Sugar())

	_, err := client.GetWorklist(context.Background())

	appErr, ok := AsApplicationError(err)
	require.True(t, ok)
	assert.Equal(t, "E403", appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPCode)
}

type dialTimeout struct{}

func (dialTimeout) Error() string { return "i/o timeout" }
func (dialTimeout) Timeout() bool { return true }
func (dialTimeout) Temporary() bool { return true }

func TestConnectTimeoutIsE402(t *testing.T) {
	httpClient := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return nil, &net.OpError{Op: "dial", Net: network, Err: dialTimeout{}}
		},
	}}
	client := NewClientWithHTTPClient("http://verification.invalid/v1", httpClient, zap.NewNop().Sugar())

	_, err := client.GetWorklist(context.Background())

	appErr, ok := AsApplicationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeConnectionFailure, appErr.Code)
}

func TestUpdateDatasetAccessSendsDiff(t *testing.T) {
	client, rec, calls := newTestAPI(t, http.StatusOK, `{}`)
	current := []models.DatasetAccess{{
		Name: "nps",
		Licences: map[string]models.Licence{
			"nps":        {Agreed: true, Title: "National Polygon Service"},
			"nps_sample": {Agreed: false, Title: "Sample"},
		},
	}}
	updated := url.Values{"nps": {"nps_sample"}}

	changes, err := client.UpdateDatasetAccess(context.Background(), "7", "LRTM101", current, updated)
	require.NoError(t, err)

	assert.Equal(t, []models.LicenceUpdate{
		{LicenceID: "nps", Agreed: false},
		{LicenceID: "nps_sample", Agreed: true},
	}, changes)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Equal(t, "/v1/case/7/update_dataset_access", rec.Path)
	assert.Equal(t, "LRTM101", rec.Body["staff_id"])
	assert.Len(t, rec.Body["licences"], 2)
}

func TestUpdateDatasetAccessSkipsCallWhenUnchanged(t *testing.T) {
	client, _, calls := newTestAPI(t, http.StatusOK, `{}`)
	current := []models.DatasetAccess{{
		Name: "nps",
		Licences: map[string]models.Licence{
			"nps":        {Agreed: true},
			"nps_sample": {Agreed: false},
		},
	}}

	changes, err := client.UpdateDatasetAccess(context.Background(), "7", "LRTM101", current, url.Values{"nps": {"nps"}})
	require.NoError(t, err)

	assert.Empty(t, changes)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestRequestsAreCounted(t *testing.T) {
	client, _, _ := newTestAPI(t, http.StatusNoContent, "")
	m := metrics.New(prometheus.NewRegistry())
	client.WithMetrics(m)

	require.NoError(t, client.ApproveWorklistItem(context.Background(), "12", "LRTM101"))
	require.NoError(t, client.Lock(context.Background(), "12", "LRTM101"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIRequests.WithLabelValues("case/approve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIRequests.WithLabelValues("case/lock", "ok")))
}

func TestFailedRequestsAreCountedByCode(t *testing.T) {
	client, _, _ := newTestAPI(t, http.StatusInternalServerError, `{"error": "boom"}`)
	m := metrics.New(prometheus.NewRegistry())
	client.WithMetrics(m)

	_, err := client.GetWorklist(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIRequests.WithLabelValues("worklist", CodeHTTPError)))
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "worklist", endpointLabel("worklist"))
	assert.Equal(t, "case", endpointLabel("case/12"))
	assert.Equal(t, "case/update_dataset_access", endpointLabel("case/12/update_dataset_access"))
	assert.Equal(t, "dataset-access", endpointLabel("dataset-access/12"))
}
