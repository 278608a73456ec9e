package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/landreg/verification-server/internal/auth"
	"github.com/landreg/verification-server/internal/requestcontext"
)

type stubVerifier struct {
	identity *auth.Identity
	err      error
	tokens   []string
}

func (s *stubVerifier) Verify(_ context.Context, token string) (*auth.Identity, error) {
	s.tokens = append(s.tokens, token)
	return s.identity, s.err
}

// capture records the request context seen by the wrapped handler
func capture(ctx *context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*ctx = r.Context()
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestTraceIDGeneratesAndEchoes(t *testing.T) {
	var ctx context.Context
	rec := httptest.NewRecorder()

	TraceID()(capture(&ctx)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	traceID := rec.Header().Get(TraceHeader)
	_, err := uuid.Parse(traceID)
	require.NoError(t, err)
	assert.Equal(t, traceID, requestcontext.TraceID(ctx))
}

func TestTraceIDReusesUpstreamID(t *testing.T) {
	var ctx context.Context
	upstream := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, upstream)

	TraceID()(capture(&ctx)).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, upstream, requestcontext.TraceID(ctx))

	req.Header.Set(TraceHeader, "<script>")
	TraceID()(capture(&ctx)).ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "<script>", requestcontext.TraceID(ctx))
}

func TestSessionIssuesCookie(t *testing.T) {
	var ctx context.Context
	rec := httptest.NewRecorder()

	Session(time.Hour, true)(capture(&ctx)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.Equal(t, cookies[0].Value, requestcontext.SessionID(ctx))
}

func TestSessionKeepsExistingID(t *testing.T) {
	var ctx context.Context
	existing := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: existing})

	Session(time.Hour, false)(capture(&ctx)).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, existing, requestcontext.SessionID(ctx))
}

func TestSessionReplacesMalformedID(t *testing.T) {
	var ctx context.Context
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "forged"})

	Session(time.Hour, false)(capture(&ctx)).ServeHTTP(httptest.NewRecorder(), req)

	_, err := uuid.Parse(requestcontext.SessionID(ctx))
	assert.NoError(t, err)
}

func TestSecurityHeaders(t *testing.T) {
	var ctx context.Context
	rec := httptest.NewRecorder()

	SecurityHeaders()(capture(&ctx)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRequireAuth(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	t.Run("missing token", func(t *testing.T) {
		var ctx context.Context
		rec := httptest.NewRecorder()
		verifier := &stubVerifier{}

		RequireAuth(verifier, false, logger)(capture(&ctx)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"error": "Authorization required"}`, rec.Body.String())
		assert.Empty(t, verifier.tokens)
		assert.Nil(t, ctx)
	})

	t.Run("valid token", func(t *testing.T) {
		var ctx context.Context
		rec := httptest.NewRecorder()
		verifier := &stubVerifier{identity: &auth.Identity{StaffID: "LRTM101", Roles: []string{"verification-admin"}}}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc.def.ghi")

		RequireAuth(verifier, false, logger)(capture(&ctx)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, []string{"abc.def.ghi"}, verifier.tokens)
		assert.Equal(t, "LRTM101", requestcontext.StaffID(ctx))
		assert.Equal(t, []string{"verification-admin"}, requestcontext.Roles(ctx))
	})

	t.Run("auth error keeps its status and code", func(t *testing.T) {
		var ctx context.Context
		rec := httptest.NewRecorder()
		verifier := &stubVerifier{err: &auth.Error{Code: auth.CodeADFSUnavailable, Message: "Unable to connect to ADFS", HTTPCode: http.StatusInternalServerError}}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc")

		RequireAuth(verifier, false, logger)(capture(&ctx)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"error": "Unable to connect to ADFS", "code": "E802"}`, rec.Body.String())
		assert.Nil(t, ctx)
	})

	t.Run("unexpected error is forbidden", func(t *testing.T) {
		var ctx context.Context
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc")

		RequireAuth(&stubVerifier{err: errors.New("boom")}, false, logger)(capture(&ctx)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "E803")
	})

	t.Run("login disabled", func(t *testing.T) {
		var ctx context.Context
		rec := httptest.NewRecorder()
		verifier := &stubVerifier{}

		RequireAuth(verifier, true, logger)(capture(&ctx)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, DisabledLoginUser, requestcontext.StaffID(ctx))
		assert.Empty(t, verifier.tokens)
	})
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name          string
		roles         []string
		loginDisabled bool
		expected      int
	}{
		{name: "member", roles: []string{"staff", "verification-admin"}, expected: http.StatusNoContent},
		{name: "not a member", roles: []string{"staff"}, expected: http.StatusForbidden},
		{name: "no roles", expected: http.StatusForbidden},
		{name: "login disabled", loginDisabled: true, expected: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctx context.Context
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(requestcontext.WithRoles(req.Context(), tt.roles))

			RequireRole("verification-admin", tt.loginDisabled)(capture(&ctx)).ServeHTTP(rec, req)
			assert.Equal(t, tt.expected, rec.Code)
			if tt.expected == http.StatusForbidden {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestStructuredLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := TraceID()(StructuredLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSeeOther)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/verification/worklist/approve", nil))

	entries := logs.FilterMessage("HTTP Request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "/verification/worklist/approve", fields["path"])
	assert.Equal(t, int64(http.StatusSeeOther), fields["status"])
	assert.Equal(t, rec.Header().Get(TraceHeader), fields["trace_id"])
}
