// Package oauth exposes the authorization server over HTTP.
package oauth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/providentiaww/odoo-mcp-gateway/internal/oauth"
)

var validate = validator.New()

var supportedScopes = []string{"odoo:read", "odoo:write"}

// Server provides the OAuth 2.0 endpoints.
type Server struct {
	mgr    *oauth.Manager
	cfg    oauth.Config
	logger zerolog.Logger
}

// NewServer creates a new OAuth server.
func NewServer(mgr *oauth.Manager, logger zerolog.Logger) *Server {
	return &Server{
		mgr:    mgr,
		cfg:    mgr.Config(),
		logger: logger.With().Str("component", "oauth_http").Logger(),
	}
}

// Routes mounts the OAuth endpoints and discovery documents on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/oauth/register", s.HandleRegister)
	r.Get("/oauth/authorize", s.HandleAuthorize)
	r.Post("/oauth/token", s.HandleToken)
	r.Get("/.well-known/oauth-authorization-server", s.HandleWellKnown)
	r.Get("/.well-known/oauth-protected-resource", s.HandleProtectedResource)
}

type registerRequest struct {
	RedirectURIs            []string `json:"redirect_uris" validate:"required,min=1,dive,required"`
	ClientName              string   `json:"client_name" validate:"max=256"`
	GrantTypes              []string `json:"grant_types" validate:"omitempty,dive,oneof=authorization_code refresh_token"`
	ResponseTypes           []string `json:"response_types" validate:"omitempty,dive,oneof=code"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method" validate:"omitempty,oneof=none client_secret_basic client_secret_post"`
}

type registerResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at"`
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	Scope                   string   `json:"scope"`
}

// HandleRegister registers dynamic clients (RFC 7591).
func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	switch s.cfg.DCRMode {
	case oauth.DCRModeDisabled:
		writeError(w, http.StatusForbidden, "access_denied", "dynamic client registration is disabled", "registration_disabled")
		return
	case oauth.DCRModeProtected:
		if !s.checkDCRAccess(r) {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid_token", "a valid registration access token is required", "registration_unauthorized")
			return
		}
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_client_metadata", "invalid JSON body", "invalid_client_metadata")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_client_metadata", err.Error(), "invalid_client_metadata")
		return
	}

	client, secret, err := s.mgr.RegisterClient(oauth.Registration{
		ClientName:              req.ClientName,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
		Scope:                   req.Scope,
	})
	if err != nil {
		s.writeOAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		ClientID:                client.ClientID,
		ClientSecret:            secret,
		ClientIDIssuedAt:        client.IssuedAt.Unix(),
		ClientName:              client.ClientName,
		RedirectURIs:            client.RedirectURIs,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		Scope:                   client.Scope,
	})
}

// HandleAuthorize approves the request and redirects with a code. Errors are
// reported to the caller directly and never sent to the redirect_uri.
func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if rt := query.Get("response_type"); rt != "code" {
		writeError(w, http.StatusBadRequest, "unsupported_response_type", "response_type must be code", "unsupported_response_type")
		return
	}
	clientID := query.Get("client_id")
	redirectURI := query.Get("redirect_uri")
	if clientID == "" || redirectURI == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "client_id and redirect_uri are required", "missing_parameter")
		return
	}

	state := query.Get("state")
	code, err := s.mgr.GenerateAuthorizationCode(clientID, redirectURI, state, strings.TrimSpace(query.Get("scope")))
	if err != nil {
		s.writeOAuthError(w, err)
		return
	}

	target, err := buildRedirect(redirectURI, code, state)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not a valid URL", "invalid_redirect_uri")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleToken exchanges authorization codes or refresh tokens.
func (s *Server) HandleToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid form body", "invalid_form")
		return
	}
	clientID, clientSecret := clientCredentials(r)
	if clientID == "" {
		writeError(w, http.StatusUnauthorized, "invalid_client", "client_id is required", "invalid_client")
		return
	}

	var (
		resp *oauth.TokenResponse
		err  error
	)
	switch grantType := r.PostFormValue("grant_type"); grantType {
	case "authorization_code":
		code := r.PostFormValue("code")
		if code == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "code is required", "missing_parameter")
			return
		}
		resp, err = s.mgr.ExchangeCodeForToken(code, clientID, clientSecret, r.PostFormValue("redirect_uri"))
	case "refresh_token":
		refresh := r.PostFormValue("refresh_token")
		if refresh == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required", "missing_parameter")
			return
		}
		resp, err = s.mgr.RefreshAccessToken(refresh, clientID, clientSecret)
	default:
		s.logger.Warn().Str("grant_type", grantType).Msg("unsupported grant_type")
		writeError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token", "unsupported_grant_type")
		return
	}
	if err != nil {
		s.writeOAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleWellKnown serves authorization server metadata (RFC 8414).
func (s *Server) HandleWellKnown(w http.ResponseWriter, r *http.Request) {
	issuer := s.issuer(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/oauth/authorize",
		"token_endpoint":                        issuer + "/oauth/token",
		"registration_endpoint":                 issuer + "/oauth/register",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"token_endpoint_auth_methods_supported": []string{oauth.AuthMethodNone, oauth.AuthMethodClientSecretBasic, oauth.AuthMethodClientSecretPost},
		"scopes_supported":                      supportedScopes,
		"code_challenge_methods_supported":      []string{"S256"},
	})
}

// HandleProtectedResource serves protected resource metadata (RFC 9728).
func (s *Server) HandleProtectedResource(w http.ResponseWriter, r *http.Request) {
	issuer := s.issuer(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resource":                 issuer + "/mcp",
		"authorization_servers":    []string{issuer},
		"bearer_methods_supported": []string{"header"},
		"scopes_supported":         supportedScopes,
	})
}

// issuer falls back to the request's own origin when none is configured.
func (s *Server) issuer(r *http.Request) string {
	if s.cfg.Issuer != "" {
		return s.cfg.Issuer
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func (s *Server) checkDCRAccess(r *http.Request) bool {
	if s.cfg.DCRAccessToken == "" {
		return false
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.DCRAccessToken)) == 1
}

func (s *Server) writeOAuthError(w http.ResponseWriter, err error) {
	var oerr *oauth.Error
	if !errors.As(err, &oerr) {
		s.logger.Error().Err(err).Msg("oauth request failed")
		writeError(w, http.StatusInternalServerError, "server_error", "internal error", "server_error")
		return
	}
	status := http.StatusBadRequest
	if oerr.Code == "invalid_client" {
		status = http.StatusUnauthorized
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
	}
	writeError(w, status, oerr.Code, oerr.Description, oerr.Reason)
}

// clientCredentials prefers HTTP Basic over form fields. Basic credentials
// are form-encoded per RFC 6749 section 2.3.1.
func clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		if v, err := url.QueryUnescape(id); err == nil {
			id = v
		}
		if v, err := url.QueryUnescape(secret); err == nil {
			secret = v
		}
		return id, secret
	}
	return r.PostFormValue("client_id"), r.PostFormValue("client_secret")
}

func buildRedirect(base, code, state string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func writeError(w http.ResponseWriter, status int, code, description, detail string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
		"detail":            detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
