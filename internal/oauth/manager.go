// Package oauth implements an in-memory OAuth 2.0 authorization server:
// dynamic client registration, single-use authorization codes, opaque access
// tokens and refresh rotation.
package oauth

import (
	"fmt"
	"time"

	"github.com/providentiaww/odoo-mcp-gateway/internal/logging"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	AuthCodeTTL    = 10 * time.Minute
	AccessTokenTTL = 24 * time.Hour

	tokenTypeBearer = "Bearer"
)

var (
	defaultGrantTypes    = []string{"authorization_code", "refresh_token"}
	defaultResponseTypes = []string{"code"}
)

// Manager owns all authorization server state for one process.
type Manager struct {
	cfg          Config
	store        *Store
	now          func() time.Time
	logger       zerolog.Logger
	staticSecret string
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager provisions the static client and returns a ready manager. A
// random static secret is generated when none is configured.
func NewManager(cfg Config, logger zerolog.Logger, opts ...Option) (*Manager, error) {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:    cfg,
		store:  NewStore(),
		now:    time.Now,
		logger: logger.With().Str("component", "oauth").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}

	secret := cfg.StaticClientSecret
	if secret == "" {
		var err error
		if secret, err = RandomString(32); err != nil {
			return nil, fmt.Errorf("generating static client secret: %w", err)
		}
		// Shown once, otherwise the static client is unusable until restart
		// with OAUTH_CLIENT_SECRET set.
		m.logger.Warn().
			Str("client_id", cfg.StaticClientID).
			Str("client_secret", secret).
			Msg("OAUTH_CLIENT_SECRET not set, generated a static client secret; set it to keep the client stable across restarts")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing static client secret: %w", err)
	}
	m.staticSecret = secret

	m.store.SaveClient(&Client{
		ClientID:                cfg.StaticClientID,
		ClientSecretHash:        string(hash),
		ClientName:              "ChatGPT",
		RedirectURIs:            cfg.StaticRedirectURIs,
		GrantTypes:              defaultGrantTypes,
		ResponseTypes:           defaultResponseTypes,
		TokenEndpointAuthMethod: AuthMethodClientSecretPost,
		Scope:                   cfg.DefaultScope,
		IssuedAt:                m.now(),
		Static:                  true,
	})
	return m, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Store exposes the underlying state, mainly for diagnostics.
func (m *Manager) Store() *Store { return m.store }

// StaticClientCredentials returns the pre-provisioned client's id and secret.
func (m *Manager) StaticClientCredentials() (clientID, clientSecret string) {
	return m.cfg.StaticClientID, m.staticSecret
}

// RegisterClient creates a dynamic client. The returned secret is empty for
// public clients and is never retrievable again.
func (m *Manager) RegisterClient(reg Registration) (*Client, string, error) {
	if len(reg.RedirectURIs) == 0 {
		return nil, "", metadataError("redirect_uris is required")
	}
	for _, uri := range reg.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return nil, "", metadataError(err.Error())
		}
	}

	method := reg.TokenEndpointAuthMethod
	switch method {
	case "":
		method = AuthMethodClientSecretBasic
	case AuthMethodNone, AuthMethodClientSecretBasic, AuthMethodClientSecretPost:
	default:
		return nil, "", metadataError("unsupported token_endpoint_auth_method: " + method)
	}

	grantTypes := reg.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = defaultGrantTypes
	}
	responseTypes := reg.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = defaultResponseTypes
	}
	scope := reg.Scope
	if scope == "" {
		scope = m.cfg.DefaultScope
	}

	clientID, err := randomID("client")
	if err != nil {
		return nil, "", fmt.Errorf("generating client_id: %w", err)
	}

	var secret, secretHash string
	if method != AuthMethodNone {
		if secret, err = RandomString(secretBytes); err != nil {
			return nil, "", fmt.Errorf("generating client_secret: %w", err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), m.cfg.BcryptCost)
		if err != nil {
			return nil, "", fmt.Errorf("hashing client_secret: %w", err)
		}
		secretHash = string(hash)
	}

	client := &Client{
		ClientID:                clientID,
		ClientSecretHash:        secretHash,
		ClientName:              reg.ClientName,
		RedirectURIs:            reg.RedirectURIs,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		TokenEndpointAuthMethod: method,
		Scope:                   scope,
		IssuedAt:                m.now(),
	}
	m.store.SaveClient(client)
	tokensIssued.WithLabelValues("registration").Inc()

	m.logger.Info().
		Str("client_id", clientID).
		Str("client_name", reg.ClientName).
		Str("auth_method", method).
		Msg("client registered")

	return cloneClient(client), secret, nil
}

// GetClient resolves the static client or a registered one.
func (m *Manager) GetClient(clientID string) (*Client, bool) {
	return m.store.GetClient(clientID)
}

// GenerateAuthorizationCode issues a code bound to clientID and redirectURI.
func (m *Manager) GenerateAuthorizationCode(clientID, redirectURI, state, scope string) (string, error) {
	client, ok := m.store.GetClient(clientID)
	if !ok {
		m.logger.Warn().Str("client_id", clientID).Msg("authorization for unknown client")
		return "", ErrInvalidClient
	}
	if !isRedirectAllowed(redirectURI, client.RedirectURIs) {
		m.logger.Warn().Str("client_id", clientID).Str("redirect_uri", redirectURI).Msg("redirect_uri not registered")
		return "", ErrUnauthorizedRedirect
	}
	if scope == "" {
		scope = client.Scope
	}
	if scope == "" {
		scope = m.cfg.DefaultScope
	}

	code, err := RandomString(codeBytes)
	if err != nil {
		return "", fmt.Errorf("generating authorization code: %w", err)
	}
	now := m.now()
	m.store.SaveAuthCode(&AuthCode{
		Code:        code,
		ClientID:    clientID,
		RedirectURI: redirectURI,
		State:       state,
		Scope:       scope,
		CreatedAt:   now,
		ExpiresAt:   now.Add(AuthCodeTTL),
	})
	tokensIssued.WithLabelValues("authorization_code").Inc()

	m.logger.Info().
		Str("code_prefix", logging.TokenPrefix(code)).
		Str("client_id", clientID).
		Str("redirect_uri", redirectURI).
		Msg("authorization code generated")
	return code, nil
}

// ExchangeCodeForToken redeems an authorization code. Checks run in a fixed
// order and the first failure wins.
func (m *Manager) ExchangeCodeForToken(code, clientID, clientSecret, redirectURI string) (*TokenResponse, error) {
	now := m.now()

	authCode, ok := m.store.GetAuthCode(code)
	if !ok {
		m.logger.Warn().Str("code_prefix", logging.TokenPrefix(code)).Msg("invalid authorization code")
		return nil, ErrInvalidGrant
	}
	if now.After(authCode.ExpiresAt) {
		m.store.DeleteAuthCode(code)
		m.logger.Warn().Str("code_prefix", logging.TokenPrefix(code)).Msg("expired authorization code")
		return nil, ErrExpiredGrant
	}
	if authCode.ClientID != clientID {
		m.logger.Warn().Str("expected", authCode.ClientID).Str("got", clientID).Msg("client_id mismatch")
		return nil, ErrClientMismatch
	}
	client, ok := m.store.GetClient(clientID)
	if !ok {
		return nil, ErrInvalidClient
	}
	if err := checkSecret(client, clientSecret); err != nil {
		m.logger.Warn().Str("client_id", clientID).Msg("invalid client secret")
		return nil, err
	}
	if authCode.RedirectURI != redirectURI {
		m.logger.Warn().Str("expected", authCode.RedirectURI).Str("got", redirectURI).Msg("redirect_uri mismatch")
		return nil, ErrRedirectMismatch
	}

	token, err := newToken(clientID, authCode.Scope, now)
	if err != nil {
		return nil, err
	}
	if !m.store.RedeemCode(code, token) {
		// Lost a race with a concurrent exchange of the same code.
		return nil, ErrInvalidGrant
	}
	tokensIssued.WithLabelValues("access_token").Inc()

	m.logger.Info().
		Str("token_prefix", logging.TokenPrefix(token.AccessToken)).
		Str("client_id", clientID).
		Str("scope", token.Scope).
		Msg("access token issued")
	return token.response(), nil
}

// RefreshAccessToken rotates a token pair. The old access token stops
// validating in the same critical section that stores the new one.
func (m *Manager) RefreshAccessToken(refreshToken, clientID, clientSecret string) (*TokenResponse, error) {
	old, ok := m.store.FindByRefreshToken(refreshToken)
	if !ok {
		m.logger.Warn().Msg("invalid refresh token")
		return nil, ErrInvalidGrant
	}
	if old.ClientID != clientID {
		m.logger.Warn().Str("expected", old.ClientID).Str("got", clientID).Msg("client_id mismatch on refresh")
		return nil, ErrClientMismatch
	}
	client, ok := m.store.GetClient(clientID)
	if !ok {
		return nil, ErrInvalidClient
	}
	if err := checkSecret(client, clientSecret); err != nil {
		m.logger.Warn().Str("client_id", clientID).Msg("invalid client secret on refresh")
		return nil, err
	}

	token, err := newToken(clientID, old.Scope, m.now())
	if err != nil {
		return nil, err
	}
	if !m.store.RotateToken(old, token) {
		return nil, ErrInvalidGrant
	}
	tokensIssued.WithLabelValues("refresh").Inc()

	m.logger.Info().Str("token_prefix", logging.TokenPrefix(token.AccessToken)).Msg("access token refreshed")
	return token.response(), nil
}

// ValidateToken reports whether accessToken is known and unexpired.
func (m *Manager) ValidateToken(accessToken string) bool {
	if _, ok := m.store.LookupToken(accessToken, m.now()); !ok {
		m.logger.Debug().Str("token_prefix", logging.TokenPrefix(accessToken)).Msg("access token rejected")
		return false
	}
	return true
}

// TokenInfo returns the live record behind accessToken.
func (m *Manager) TokenInfo(accessToken string) (Token, bool) {
	return m.store.LookupToken(accessToken, m.now())
}

// CleanupExpired drops expired codes and tokens. It is the only compaction.
func (m *Manager) CleanupExpired() (codes, tokens int) {
	codes, tokens = m.store.DeleteExpired(m.now())
	if codes > 0 || tokens > 0 {
		m.logger.Info().Int("expired_codes", codes).Int("expired_tokens", tokens).Msg("oauth cleanup")
	}
	return codes, tokens
}

func checkSecret(client *Client, secret string) error {
	if !client.RequiresSecret() {
		return nil
	}
	if secret == "" {
		return ErrInvalidClientSecret
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(secret)); err != nil {
		return ErrInvalidClientSecret
	}
	return nil
}

func newToken(clientID, scope string, now time.Time) (*Token, error) {
	access, err := RandomString(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}
	refresh, err := RandomString(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}
	return &Token{
		AccessToken:  access,
		RefreshToken: refresh,
		ClientID:     clientID,
		Scope:        scope,
		CreatedAt:    now,
		ExpiresAt:    now.Add(AccessTokenTTL),
	}, nil
}

func (t *Token) response() *TokenResponse {
	return &TokenResponse{
		AccessToken:  t.AccessToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int(AccessTokenTTL.Seconds()),
		RefreshToken: t.RefreshToken,
		Scope:        t.Scope,
	}
}
