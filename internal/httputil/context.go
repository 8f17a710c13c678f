package httputil

import (
	"context"
	"net/http"
)

// Context key type to avoid collisions
type contextKey string

const (
	userIDKey    contextKey = "userID"
	tenantIDKey  contextKey = "tenantID"
	requestIDKey contextKey = "requestID"
)

// WithIdentity adds the authenticated user and tenant to the request context
func WithIdentity(r *http.Request, userID, tenantID string) *http.Request {
	ctx := context.WithValue(r.Context(), userIDKey, userID)
	ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	return r.WithContext(ctx)
}

// GetUserID retrieves userID from context, returns empty string if not found
func GetUserID(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey).(string)
	return userID
}

// GetTenantID retrieves the tenant from context, returns empty string if not found
func GetTenantID(r *http.Request) string {
	tenantID, _ := r.Context().Value(tenantIDKey).(string)
	return tenantID
}

// WithRequestID tags the request context with a correlation ID
func WithRequestID(r *http.Request, id string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), requestIDKey, id))
}

// GetRequestID returns the correlation ID, or empty string if none was set
func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}
