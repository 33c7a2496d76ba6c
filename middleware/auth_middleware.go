package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// AccessTokenHeader carries the user's delegated token from the Teams client
const AccessTokenHeader = "X-Teams-Accesstoken"

// AuthMiddleware moves the inbound access token into the request context.
// It never rejects a request; the profile service decides what a missing token means.
type AuthMiddleware struct {
	logger *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		logger: logger,
	}
}

// ExtractAccessToken stores the trimmed X-Teams-Accesstoken header value in the context
func (m *AuthMiddleware) ExtractAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := extractToken(r)
		if token == "" {
			m.logger.Debug("no access token in request",
				zap.String("request_id", GetRequestIDFromContext(ctx)))
		} else {
			ctx = WithAccessToken(ctx, token)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken reads the access token header. Surrounding whitespace is dropped.
func extractToken(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(AccessTokenHeader))
}
