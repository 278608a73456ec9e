// Package middleware provides HTTP middleware for the verification server.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/landreg/verification-server/internal/auth"
	"github.com/landreg/verification-server/internal/requestcontext"
)

// TraceHeader carries the id quoted in user facing error messages
const TraceHeader = "X-Trace-ID"

// SessionCookie names the cookie holding the browser session id
const SessionCookie = "verification_session"

// DisabledLoginUser is the identity used when LOGIN_DISABLED is set
const DisabledLoginUser = "TestUser"

// TokenVerifier validates access tokens
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Identity, error)
}

// StructuredLogger returns a middleware that logs HTTP requests with zap
func StructuredLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			logger.Info("HTTP Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.statusCode),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", r.Header.Get("X-Request-ID")),
				zap.String("trace_id", ww.Header().Get(TraceHeader)),
			)
		})
	}
}

// TraceID assigns every request a trace id, reusing one sent by an upstream
// proxy, and echoes it in the response.
func TraceID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(TraceHeader)
			if _, err := uuid.Parse(traceID); err != nil {
				traceID = uuid.NewString()
			}
			w.Header().Set(TraceHeader, traceID)
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTraceID(r.Context(), traceID)))
		})
	}
}

// Session binds the request to a browser session, issuing a new session
// cookie when none (or a malformed one) was sent.
func Session(ttl time.Duration, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionID string
			if cookie, err := r.Cookie(SessionCookie); err == nil {
				if _, err := uuid.Parse(cookie.Value); err == nil {
					sessionID = cookie.Value
				}
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    sessionID,
				Path:     "/",
				MaxAge:   int(ttl.Seconds()),
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(requestcontext.WithSessionID(r.Context(), sessionID)))
		})
	}
}

// SecurityHeaders sets the response headers every page carries
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "same-origin")
			w.Header().Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth validates the ADFS access token on protected routes and puts
// the staff member's identity on the request context.
func RequireAuth(verifier TokenVerifier, loginDisabled bool, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if loginDisabled {
				ctx := requestcontext.WithStaffID(r.Context(), DisabledLoginUser)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				respondError(w, http.StatusUnauthorized, map[string]string{"error": "Authorization required"})
				return
			}

			identity, err := verifier.Verify(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				var authErr *auth.Error
				if !errors.As(err, &authErr) {
					authErr = &auth.Error{Code: auth.CodeInvalidLogin, Message: "Invalid or expired token", HTTPCode: http.StatusForbidden}
				}
				logger.Warnw("Rejected access token", "code", authErr.Code, "error", err)
				respondError(w, authErr.HTTPCode, map[string]string{"error": authErr.Message, "code": authErr.Code})
				return
			}

			ctx := requestcontext.WithStaffID(r.Context(), identity.StaffID)
			ctx = requestcontext.WithRoles(ctx, identity.Roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole refuses staff who are not in role. Must run after RequireAuth.
func RequireRole(role string, loginDisabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !loginDisabled && !slices.Contains(requestcontext.Roles(r.Context()), role) {
				respondError(w, http.StatusForbidden, map[string]string{"error": "You do not have permission to access this page"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondError(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
