package oauth

import "time"

// Token endpoint auth methods accepted at registration.
const (
	AuthMethodNone              = "none"
	AuthMethodClientSecretBasic = "client_secret_basic"
	AuthMethodClientSecretPost  = "client_secret_post"
)

// Client is an OAuth client. Dynamic clients live for the process lifetime.
type Client struct {
	ClientID                string
	ClientSecretHash        string
	ClientName              string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	TokenEndpointAuthMethod string
	Scope                   string
	IssuedAt                time.Time
	Static                  bool
}

// RequiresSecret reports whether token requests must carry the client secret.
func (c *Client) RequiresSecret() bool {
	return c.TokenEndpointAuthMethod != AuthMethodNone
}

// Registration is the client metadata accepted by RegisterClient.
type Registration struct {
	ClientName              string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	TokenEndpointAuthMethod string
	Scope                   string
}

// AuthCode is a single-use authorization code bound to one client and redirect URI.
type AuthCode struct {
	Code        string
	ClientID    string
	RedirectURI string
	State       string
	Scope       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Token is an access token record and the refresh token minted with it.
type Token struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	Scope        string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// TokenResponse is the token endpoint payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}
