package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/providentiaww/odoo-mcp-gateway/internal/logging"
)

var ErrUnauthenticated = errors.New("invalid authentication credentials")

// TokenValidator accepts opaque OAuth access tokens.
type TokenValidator interface {
	ValidateToken(accessToken string) bool
}

// Authenticator resolves bearer tokens to callers. API keys are tried first,
// then login JWTs, then OAuth access tokens.
type Authenticator struct {
	apiKeys             [][]byte
	jwt                 *TokenIssuer
	oauth               TokenValidator
	resourceMetadataURL string
	logger              zerolog.Logger
}

// Option customises an Authenticator.
type Option func(*Authenticator)

// WithResourceMetadata advertises the protected resource document in 401s.
func WithResourceMetadata(url string) Option {
	return func(a *Authenticator) { a.resourceMetadataURL = url }
}

// NewAuthenticator builds an authenticator. issuer and validator may be nil.
func NewAuthenticator(apiKeys []string, issuer *TokenIssuer, validator TokenValidator, logger zerolog.Logger, opts ...Option) *Authenticator {
	a := &Authenticator{
		jwt:    issuer,
		oauth:  validator,
		logger: logger.With().Str("component", "auth").Logger(),
	}
	for _, key := range apiKeys {
		if key != "" {
			a.apiKeys = append(a.apiKeys, []byte(key))
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate checks token against every configured method in order.
func (a *Authenticator) Authenticate(token string) (*UserContext, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	if a.matchAPIKey(token) {
		return &UserContext{Subject: "api_key:" + logging.TokenPrefix(token), AuthType: AuthTypeAPIKey}, nil
	}
	if a.jwt != nil {
		if claims, err := a.jwt.Verify(token); err == nil {
			return &UserContext{Subject: claims.Subject, AuthType: AuthTypeJWT, OdooUID: claims.OdooUID}, nil
		}
	}
	if a.oauth != nil && a.oauth.ValidateToken(token) {
		return &UserContext{Subject: "oauth:" + logging.TokenPrefix(token), AuthType: AuthTypeOAuth}, nil
	}
	return nil, ErrUnauthenticated
}

func (a *Authenticator) matchAPIKey(token string) bool {
	candidate := []byte(token)
	found := 0
	for _, key := range a.apiKeys {
		found |= subtle.ConstantTimeCompare(candidate, key)
	}
	return found == 1
}

// Handler rejects requests without valid credentials.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS preflight carries no credentials.
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := ExtractTokenFromHeader(r)
		user, err := a.Authenticate(token)
		if err != nil {
			a.logger.Warn().
				Str("path", r.URL.Path).
				Bool("token_present", token != "").
				Msg("authentication failed")
			a.unauthorized(w)
			return
		}

		a.logger.Debug().Str("auth_type", user.AuthType).Str("subject", user.Subject).Msg("authenticated")
		next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), user)))
	})
}

func (a *Authenticator) unauthorized(w http.ResponseWriter) {
	challenge := "Bearer"
	if a.resourceMetadataURL != "" {
		challenge += ` resource_metadata="` + a.resourceMetadataURL + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": ErrUnauthenticated.Error()})
}
