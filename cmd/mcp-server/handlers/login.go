package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/providentiaww/odoo-mcp-gateway/cmd/mcp-server/auth"
)

// BackendAuthenticator establishes the Odoo identity.
type BackendAuthenticator interface {
	Authenticate(ctx context.Context) (int, error)
}

// LoginHandler issues login JWTs to callers presenting the configured Odoo
// credentials.
type LoginHandler struct {
	backend  BackendAuthenticator
	issuer   *auth.TokenIssuer
	username string
	password string
	logger   zerolog.Logger
}

// NewLoginHandler creates a new login handler.
func NewLoginHandler(backend BackendAuthenticator, issuer *auth.TokenIssuer, username, password string, logger zerolog.Logger) *LoginHandler {
	return &LoginHandler{
		backend:  backend,
		issuer:   issuer,
		username: username,
		password: password,
		logger:   logger.With().Str("component", "login").Logger(),
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin checks credentials, verifies the backend accepts them and
// returns a signed token.
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	log := h.logger.With().Str("username", req.Username).Logger()
	log.Info().Msg("login attempt")

	if h.username == "" || h.password == "" {
		log.Error().Msg("login unavailable, no credentials configured")
		writeDetail(w, http.StatusServiceUnavailable, "Server authentication not configured. Set ODOO_USERNAME and ODOO_PASSWORD.")
		return
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username))
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password))
	if userOK&passOK != 1 {
		log.Warn().Msg("login failed, invalid credentials")
		writeDetail(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	uid, err := h.backend.Authenticate(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("backend authentication failed during login")
		writeDetail(w, http.StatusUnauthorized, "Authentication failed: unable to verify credentials with Odoo")
		return
	}

	token, _, err := h.issuer.Issue(req.Username, uid)
	if err != nil {
		log.Error().Err(err).Msg("token signing failed")
		writeDetail(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	log.Info().Int("odoo_uid", uid).Msg("login successful")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int(h.issuer.TTL().Seconds()),
	})
}
