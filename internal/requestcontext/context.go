// Package requestcontext provides HTTP-independent accessors for
// request-scoped values set by middleware and read by services.
package requestcontext

import "context"

type (
	staffIDKey   struct{}
	sessionIDKey struct{}
	traceIDKey   struct{}
	rolesKey     struct{}
)

// StaffID returns the authenticated staff member's id, or "" if not set
func StaffID(ctx context.Context) string {
	if staffID, ok := ctx.Value(staffIDKey{}).(string); ok {
		return staffID
	}
	return ""
}

// WithStaffID injects the authenticated staff id into the context
func WithStaffID(ctx context.Context, staffID string) context.Context {
	return context.WithValue(ctx, staffIDKey{}, staffID)
}

// SessionID returns the browser session id, or "" if not set
func SessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return sessionID
	}
	return ""
}

// WithSessionID injects the browser session id into the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// TraceID returns the id quoted to users when a request fails, or "" if not set
func TraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithTraceID injects the request's trace id into the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// Roles returns the authenticated staff member's groups
func Roles(ctx context.Context) []string {
	roles, _ := ctx.Value(rolesKey{}).([]string)
	return roles
}

// WithRoles injects the authenticated staff member's groups into the context
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, rolesKey{}, roles)
}
