package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// AccessTokenKey is the context key for the delegated access token
	AccessTokenKey contextKey = "access_token"
)

// GetRequestIDFromContext retrieves the request ID from context, falling back to
// the ID assigned by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimiddleware.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// EnsureRequestID returns ctx carrying a request ID, generating one when none is present
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := GetRequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}

// GetAccessTokenFromContext retrieves the access token from context
func GetAccessTokenFromContext(ctx context.Context) string {
	if val := ctx.Value(AccessTokenKey); val != nil {
		if token, ok := val.(string); ok {
			return token
		}
	}
	return ""
}

// WithAccessToken adds the access token to the context
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, AccessTokenKey, token)
}
