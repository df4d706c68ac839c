package oauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/providentiaww/odoo-mcp-gateway/internal/oauth"
)

const redirectURI = "https://app.example.com/cb"

func newTestRouter(t *testing.T, cfg oauth.Config) http.Handler {
	t.Helper()
	cfg.BcryptCost = bcrypt.MinCost
	mgr, err := oauth.NewManager(cfg, zerolog.Nop())
	require.NoError(t, err)
	r := chi.NewRouter()
	NewServer(mgr, zerolog.Nop()).Routes(r)
	return r
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func register(t *testing.T, h http.Handler, payload string) map[string]interface{} {
	t.Helper()
	rec, body := do(t, h, httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(payload)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return body
}

func authorize(t *testing.T, h http.Handler, clientID, state string) string {
	t.Helper()
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {redirectURI},
		"state":         {state},
	}
	rec, _ := do(t, h, httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+q.Encode(), nil))
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", loc.Host)
	assert.Equal(t, state, loc.Query().Get("state"))
	return loc.Query().Get("code")
}

func tokenRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestRegisterAuthorizeTokenRefresh(t *testing.T) {
	h := newTestRouter(t, oauth.Config{Issuer: "https://mcp.example.com"})

	client := register(t, h, `{"client_name":"n8n","redirect_uris":["`+redirectURI+`"]}`)
	clientID := client["client_id"].(string)
	secret := client["client_secret"].(string)
	assert.Equal(t, "client_secret_basic", client["token_endpoint_auth_method"])
	assert.Equal(t, float64(0), client["client_secret_expires_at"])

	code := authorize(t, h, clientID, "s1")

	req := tokenRequest(url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	})
	req.SetBasicAuth(clientID, secret)
	rec, tok := do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "Bearer", tok["token_type"])
	assert.Equal(t, float64(86400), tok["expires_in"])
	assert.Equal(t, "odoo:read odoo:write", tok["scope"])

	rec, refreshed := do(t, h, tokenRequest(url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tok["refresh_token"].(string)},
		"client_id":     {clientID},
		"client_secret": {secret},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEqual(t, tok["access_token"], refreshed["access_token"])

	// The code cannot be replayed.
	req = tokenRequest(url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	})
	req.SetBasicAuth(clientID, secret)
	rec, body := do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_grant", body["error"])
	assert.Equal(t, "invalid_grant", body["detail"])
}

func TestTokenBasicAuthTakesPrecedence(t *testing.T) {
	h := newTestRouter(t, oauth.Config{})
	client := register(t, h, `{"redirect_uris":["`+redirectURI+`"]}`)
	clientID := client["client_id"].(string)
	secret := client["client_secret"].(string)

	// Valid Basic credentials win over bogus form fields.
	req := tokenRequest(url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {authorize(t, h, clientID, "")},
		"redirect_uri":  {redirectURI},
		"client_id":     {"bogus"},
		"client_secret": {"bogus"},
	})
	req.SetBasicAuth(clientID, secret)
	rec, tok := do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, tok["access_token"])

	// A wrong Basic secret is not rescued by a correct form secret.
	req = tokenRequest(url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {authorize(t, h, clientID, "")},
		"redirect_uri":  {redirectURI},
		"client_id":     {clientID},
		"client_secret": {secret},
	})
	req.SetBasicAuth(clientID, "bogus")
	rec, body := do(t, h, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_client", body["error"])
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestPublicClientFlow(t *testing.T) {
	h := newTestRouter(t, oauth.Config{})

	client := register(t, h, `{"redirect_uris":["`+redirectURI+`"],"token_endpoint_auth_method":"none"}`)
	_, hasSecret := client["client_secret"]
	assert.False(t, hasSecret)

	clientID := client["client_id"].(string)
	code := authorize(t, h, clientID, "")

	rec, tok := do(t, h, tokenRequest(url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
		"client_id":    {clientID},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, tok["access_token"])
}

func TestTokenErrors(t *testing.T) {
	h := newTestRouter(t, oauth.Config{})
	client := register(t, h, `{"redirect_uris":["`+redirectURI+`"]}`)
	clientID := client["client_id"].(string)
	code := authorize(t, h, clientID, "")

	rec, body := do(t, h, tokenRequest(url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {clientID},
		"client_secret": {"wrong"},
	}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_client", body["error"])
	assert.Equal(t, "invalid_client_secret", body["detail"])
	assert.NotContains(t, rec.Body.String(), "wrong")

	rec, body = do(t, h, tokenRequest(url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://app.example.com/other"},
		"client_id":     {clientID},
		"client_secret": {client["client_secret"].(string)},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "redirect_mismatch", body["detail"])

	rec, body = do(t, h, tokenRequest(url.Values{"grant_type": {"password"}, "client_id": {clientID}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_grant_type", body["error"])

	rec, body = do(t, h, tokenRequest(url.Values{"grant_type": {"authorization_code"}}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_client", body["error"])

	rec, body = do(t, h, tokenRequest(url.Values{"grant_type": {"refresh_token"}, "client_id": {clientID}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", body["error"])
}

func TestAuthorizeErrorsDoNotRedirect(t *testing.T) {
	h := newTestRouter(t, oauth.Config{})
	client := register(t, h, `{"redirect_uris":["`+redirectURI+`"]}`)
	clientID := client["client_id"].(string)

	cases := map[string]struct {
		query  url.Values
		detail string
	}{
		"response type": {url.Values{"response_type": {"token"}, "client_id": {clientID}, "redirect_uri": {redirectURI}}, "unsupported_response_type"},
		"missing":       {url.Values{"response_type": {"code"}}, "missing_parameter"},
		"unknown":       {url.Values{"response_type": {"code"}, "client_id": {"client_x"}, "redirect_uri": {redirectURI}}, "invalid_client"},
		"redirect":      {url.Values{"response_type": {"code"}, "client_id": {clientID}, "redirect_uri": {"https://evil.example.com/cb"}}, "unauthorized_redirect"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec, body := do(t, h, httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+tc.query.Encode(), nil))
			assert.NotEqual(t, http.StatusFound, rec.Code)
			assert.Empty(t, rec.Header().Get("Location"))
			assert.Equal(t, tc.detail, body["detail"])
		})
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newTestRouter(t, oauth.Config{})

	for _, payload := range []string{
		`not json`,
		`{}`,
		`{"redirect_uris":[]}`,
		`{"redirect_uris":["http://insecure.example.com/cb"]}`,
		`{"redirect_uris":["` + redirectURI + `"],"token_endpoint_auth_method":"private_key_jwt"}`,
		`{"redirect_uris":["` + redirectURI + `"],"grant_types":["implicit"]}`,
	} {
		rec, body := do(t, h, httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(payload)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
		assert.Equal(t, "invalid_client_metadata", body["error"], payload)
	}
}

func TestRegisterDCRModes(t *testing.T) {
	payload := `{"redirect_uris":["` + redirectURI + `"]}`

	h := newTestRouter(t, oauth.Config{DCRMode: oauth.DCRModeDisabled})
	rec, _ := do(t, h, httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(payload)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	h = newTestRouter(t, oauth.Config{DCRMode: oauth.DCRModeProtected, DCRAccessToken: "dcr-token"})
	rec, _ = do(t, h, httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(payload)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer nope")
	rec, _ = do(t, h, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer dcr-token")
	rec, _ = do(t, h, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestDiscoveryDocuments(t *testing.T) {
	h := newTestRouter(t, oauth.Config{Issuer: "https://mcp.example.com/"})

	rec, body := do(t, h, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://mcp.example.com", body["issuer"])
	assert.Equal(t, "https://mcp.example.com/oauth/token", body["token_endpoint"])
	assert.Equal(t, "https://mcp.example.com/oauth/register", body["registration_endpoint"])
	assert.Equal(t, []interface{}{"S256"}, body["code_challenge_methods_supported"])

	rec, body = do(t, h, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://mcp.example.com/mcp", body["resource"])

	h = newTestRouter(t, oauth.Config{})
	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil)
	req.Host = "gateway.internal:5000"
	req.Header.Set("X-Forwarded-Proto", "https")
	_, body = do(t, h, req)
	assert.Equal(t, "https://gateway.internal:5000", body["issuer"])
}
