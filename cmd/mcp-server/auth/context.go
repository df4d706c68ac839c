package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const UserContextKey contextKey = "user"

// Authentication methods reported in UserContext.AuthType.
const (
	AuthTypeAPIKey = "api_key"
	AuthTypeJWT    = "jwt"
	AuthTypeOAuth  = "oauth"
)

// UserContext describes the authenticated caller of a request.
type UserContext struct {
	Subject  string
	AuthType string
	OdooUID  int
}

// WithUserContext stores user in ctx.
func WithUserContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// GetUserContext returns the caller stored by the middleware, if any.
func GetUserContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(UserContextKey).(*UserContext)
	return user, ok && user != nil
}

// ExtractTokenFromHeader returns the bearer token from the Authorization header.
func ExtractTokenFromHeader(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
