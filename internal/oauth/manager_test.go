package oauth

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const testRedirect = "https://app.example.com/cb"

func newTestManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	m, err := NewManager(Config{
		Issuer:             "https://mcp.example.com/",
		StaticClientSecret: "static-secret",
		BcryptCost:         bcrypt.MinCost,
	}, zerolog.Nop(), WithClock(clock.Now))
	require.NoError(t, err)
	return m, clock
}

func registerClient(t *testing.T, m *Manager, method string) (*Client, string) {
	t.Helper()
	client, secret, err := m.RegisterClient(Registration{
		ClientName:              "test",
		RedirectURIs:            []string{testRedirect},
		TokenEndpointAuthMethod: method,
	})
	require.NoError(t, err)
	return client, secret
}

func TestNewManagerProvisionsStaticClient(t *testing.T) {
	m, _ := newTestManager(t)

	id, secret := m.StaticClientCredentials()
	assert.Equal(t, DefaultStaticClientID, id)
	assert.Equal(t, "static-secret", secret)
	assert.Equal(t, "https://mcp.example.com", m.Config().Issuer)

	client, ok := m.GetClient(id)
	require.True(t, ok)
	assert.True(t, client.Static)
	assert.Equal(t, AuthMethodClientSecretPost, client.TokenEndpointAuthMethod)
	assert.Equal(t, DefaultScope, client.Scope)
	assert.NotEqual(t, "static-secret", client.ClientSecretHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte("static-secret")))
}

func TestNewManagerGeneratesStaticSecret(t *testing.T) {
	var buf bytes.Buffer
	m, err := NewManager(Config{BcryptCost: bcrypt.MinCost}, zerolog.New(&buf))
	require.NoError(t, err)

	id, secret := m.StaticClientCredentials()
	assert.NotEmpty(t, secret)
	assert.Contains(t, buf.String(), `"client_id":"`+id+`"`)
	assert.Contains(t, buf.String(), `"client_secret":"`+secret+`"`, "a generated secret is announced once")
}

func TestNewManagerDoesNotLogConfiguredSecret(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewManager(Config{StaticClientSecret: "configured-secret", BcryptCost: bcrypt.MinCost}, zerolog.New(&buf))
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "configured-secret")
}

func TestStaticClientWildcardRedirect(t *testing.T) {
	m, _ := newTestManager(t)
	id, _ := m.StaticClientCredentials()

	_, err := m.GenerateAuthorizationCode(id, "https://chatgpt.com/aip/g-abc123/oauth/callback", "", "")
	assert.NoError(t, err)

	_, err = m.GenerateAuthorizationCode(id, "https://chatgpt.com/aip/g-abc/evil/oauth/callback", "", "")
	assert.ErrorIs(t, err, ErrUnauthorizedRedirect)
}

func TestRegisterClient(t *testing.T) {
	m, _ := newTestManager(t)

	client, secret := registerClient(t, m, "")
	assert.Regexp(t, `^client_[A-Za-z0-9_-]{24}$`, client.ClientID)
	assert.Equal(t, AuthMethodClientSecretBasic, client.TokenEndpointAuthMethod)
	assert.Equal(t, []string{"authorization_code", "refresh_token"}, client.GrantTypes)
	assert.Equal(t, []string{"code"}, client.ResponseTypes)
	assert.Equal(t, DefaultScope, client.Scope)
	assert.NotEmpty(t, secret)

	stored, ok := m.GetClient(client.ClientID)
	require.True(t, ok)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.ClientSecretHash), []byte(secret)))
}

func TestRegisterPublicClientHasNoSecret(t *testing.T) {
	m, _ := newTestManager(t)

	client, secret := registerClient(t, m, AuthMethodNone)
	assert.Empty(t, secret)
	assert.Empty(t, client.ClientSecretHash)
	assert.False(t, client.RequiresSecret())
}

func TestRegisterClientRejectsBadMetadata(t *testing.T) {
	m, _ := newTestManager(t)

	cases := map[string]Registration{
		"no redirect":     {},
		"plain http":      {RedirectURIs: []string{"http://app.example.com/cb"}},
		"fragment":        {RedirectURIs: []string{"https://app.example.com/cb#x"}},
		"relative":        {RedirectURIs: []string{"/cb"}},
		"foreign wildcard": {RedirectURIs: []string{"https://evil.example.com/aip/g-*/oauth/callback"}},
		"auth method":     {RedirectURIs: []string{testRedirect}, TokenEndpointAuthMethod: "private_key_jwt"},
	}
	for name, reg := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := m.RegisterClient(reg)
			assert.ErrorIs(t, err, ErrInvalidClientMetadata)
		})
	}
}

func TestRegisterClientAcceptsLocalhostHTTP(t *testing.T) {
	m, _ := newTestManager(t)

	_, _, err := m.RegisterClient(Registration{RedirectURIs: []string{"http://localhost:3000/cb", "http://127.0.0.1/cb"}})
	assert.NoError(t, err)
}

func TestAuthorizationCodeFlow(t *testing.T) {
	m, _ := newTestManager(t)
	client, secret := registerClient(t, m, "")

	code, err := m.GenerateAuthorizationCode(client.ClientID, testRedirect, "xyz", "")
	require.NoError(t, err)
	assert.Len(t, code, 43)

	resp, err := m.ExchangeCodeForToken(code, client.ClientID, secret, testRedirect)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 86400, resp.ExpiresIn)
	assert.Equal(t, DefaultScope, resp.Scope)
	assert.Len(t, resp.AccessToken, 64)
	assert.NotEqual(t, resp.AccessToken, resp.RefreshToken)
	assert.True(t, m.ValidateToken(resp.AccessToken))

	info, ok := m.TokenInfo(resp.AccessToken)
	require.True(t, ok)
	assert.Equal(t, client.ClientID, info.ClientID)
}

func TestAuthorizationCodeIsSingleUse(t *testing.T) {
	m, _ := newTestManager(t)
	client, secret := registerClient(t, m, "")

	code, err := m.GenerateAuthorizationCode(client.ClientID, testRedirect, "", "")
	require.NoError(t, err)

	_, err = m.ExchangeCodeForToken(code, client.ClientID, secret, testRedirect)
	require.NoError(t, err)

	_, err = m.ExchangeCodeForToken(code, client.ClientID, secret, testRedirect)
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestConcurrentExchangeMintsOneToken(t *testing.T) {
	m, _ := newTestManager(t)
	client, _ := registerClient(t, m, AuthMethodNone)

	code, err := m.GenerateAuthorizationCode(client.ClientID, testRedirect, "", "")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.ExchangeCodeForToken(code, client.ClientID, "", testRedirect); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	_, _, tokens := m.Store().Stats()
	assert.Equal(t, 1, tokens)
}

func TestExpiredCodeIsDeleted(t *testing.T) {
	m, clock := newTestManager(t)
	client, secret := registerClient(t, m, "")

	code, err := m.GenerateAuthorizationCode(client.ClientID, testRedirect, "", "")
	require.NoError(t, err)

	clock.Advance(AuthCodeTTL + time.Second)
	_, err = m.ExchangeCodeForToken(code, client.ClientID, secret, testRedirect)
	assert.ErrorIs(t, err, ErrExpiredGrant)

	_, err = m.ExchangeCodeForToken(code, client.ClientID, secret, testRedirect)
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestCodeUsableAtExpiryBoundary(t *testing.T) {
	m, clock := newTestManager(t)
	client, secret := registerClient(t, m, "")

	code, err := m.GenerateAuthorizationCode(client.ClientID, testRedirect, "", "")
	require.NoError(t, err)

	clock.Advance(AuthCodeTTL)
	_, err = m.ExchangeCodeForToken(code, client.ClientID, secret, testRedirect)
	assert.NoError(t, err)
}

func TestExchangeValidationOrder(t *testing.T) {
	m, clock := newTestManager(t)
	client, secret := registerClient(t, m, "")
	other, otherSecret := registerClient(t, m, "")

	code, err := m.GenerateAuthorizationCode(client.ClientID, testRedirect, "", "")
	require.NoError(t, err)

	_, err = m.ExchangeCodeForToken("nope", client.ClientID, secret, testRedirect)
	assert.ErrorIs(t, err, ErrInvalidGrant)

	// Client mismatch wins over a bad secret and a bad redirect.
	_, err = m.ExchangeCodeForToken(code, other.ClientID, "wrong", "https://other.example.com/cb")
	assert.ErrorIs(t, err, ErrClientMismatch)

	// Bad secret wins over a bad redirect.
	_, err = m.ExchangeCodeForToken(code, client.ClientID, otherSecret, "https://other.example.com/cb")
	assert.ErrorIs(t, err, ErrInvalidClientSecret)

	_, err = m.ExchangeCodeForToken(code, client.ClientID, "", testRedirect)
	assert.ErrorIs(t, err, ErrInvalidClientSecret)

	_, err = m.ExchangeCodeForToken(code, client.ClientID, secret, "https://other.example.com/cb")
	assert.ErrorIs(t, err, ErrRedirectMismatch)

	// Failed attempts do not consume the code.
	_, err = m.ExchangeCodeForToken(code, client.ClientID, secret, testRedirect)
	require.NoError(t, err)

	// Expiry is checked before client identity.
	code, err = m.GenerateAuthorizationCode(client.ClientID, testRedirect, "", "")
	require.NoError(t, err)
	clock.Advance(AuthCodeTTL + time.Minute)
	_, err = m.ExchangeCodeForToken(code, other.ClientID, otherSecret, testRedirect)
	assert.ErrorIs(t, err, ErrExpiredGrant)
}

func TestGenerateAuthorizationCodeErrors(t *testing.T) {
	m, _ := newTestManager(t)
	client, _ := registerClient(t, m, "")

	_, err := m.GenerateAuthorizationCode("client_unknown", testRedirect, "", "")
	assert.ErrorIs(t, err, ErrInvalidClient)

	_, err = m.GenerateAuthorizationCode(client.ClientID, "https://app.example.com/other", "", "")
	assert.ErrorIs(t, err, ErrUnauthorizedRedirect)
}

func TestPublicClientExchangeWithoutSecret(t *testing.T) {
	m, _ := newTestManager(t)
	client, _ := registerClient(t, m, AuthMethodNone)

	code, err := m.GenerateAuthorizationCode(client.ClientID, testRedirect, "", "odoo:read")
	require.NoError(t, err)

	resp, err := m.ExchangeCodeForToken(code, client.ClientID, "", testRedirect)
	require.NoError(t, err)
	assert.Equal(t, "odoo:read", resp.Scope)
}

func TestRefreshRotatesTokens(t *testing.T) {
	m, _ := newTestManager(t)
	client, secret := registerClient(t, m, "")

	code, err := m.GenerateAuthorizationCode(client.ClientID, testRedirect, "", "")
	require.NoError(t, err)
	first, err := m.ExchangeCodeForToken(code, client.ClientID, secret, testRedirect)
	require.NoError(t, err)

	second, err := m.RefreshAccessToken(first.RefreshToken, client.ClientID, secret)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.Scope, second.Scope)

	assert.False(t, m.ValidateToken(first.AccessToken))
	assert.True(t, m.ValidateToken(second.AccessToken))

	_, err = m.RefreshAccessToken(first.RefreshToken, client.ClientID, secret)
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestRefreshValidationOrder(t *testing.T) {
	m, _ := newTestManager(t)
	client, secret := registerClient(t, m, "")
	other, otherSecret := registerClient(t, m, "")

	code, err := m.GenerateAuthorizationCode(client.ClientID, testRedirect, "", "")
	require.NoError(t, err)
	tok, err := m.ExchangeCodeForToken(code, client.ClientID, secret, testRedirect)
	require.NoError(t, err)

	_, err = m.RefreshAccessToken("unknown", client.ClientID, secret)
	assert.ErrorIs(t, err, ErrInvalidGrant)

	_, err = m.RefreshAccessToken(tok.RefreshToken, other.ClientID, otherSecret)
	assert.ErrorIs(t, err, ErrClientMismatch)

	_, err = m.RefreshAccessToken(tok.RefreshToken, client.ClientID, "wrong")
	assert.ErrorIs(t, err, ErrInvalidClientSecret)

	assert.True(t, m.ValidateToken(tok.AccessToken))
}

func TestValidateTokenExpiry(t *testing.T) {
	m, clock := newTestManager(t)
	client, _ := registerClient(t, m, AuthMethodNone)

	code, err := m.GenerateAuthorizationCode(client.ClientID, testRedirect, "", "")
	require.NoError(t, err)
	tok, err := m.ExchangeCodeForToken(code, client.ClientID, "", testRedirect)
	require.NoError(t, err)

	assert.False(t, m.ValidateToken(""))
	assert.False(t, m.ValidateToken("garbage"))

	clock.Advance(AccessTokenTTL)
	assert.True(t, m.ValidateToken(tok.AccessToken))

	clock.Advance(time.Second)
	assert.False(t, m.ValidateToken(tok.AccessToken))
	_, _, tokens := m.Store().Stats()
	assert.Zero(t, tokens, "expired token is evicted on lookup")
}

func TestCleanupExpired(t *testing.T) {
	m, clock := newTestManager(t)
	client, _ := registerClient(t, m, AuthMethodNone)

	code, err := m.GenerateAuthorizationCode(client.ClientID, testRedirect, "", "")
	require.NoError(t, err)
	_, err = m.ExchangeCodeForToken(code, client.ClientID, "", testRedirect)
	require.NoError(t, err)
	_, err = m.GenerateAuthorizationCode(client.ClientID, testRedirect, "", "")
	require.NoError(t, err)

	codes, tokens := m.CleanupExpired()
	assert.Zero(t, codes)
	assert.Zero(t, tokens)

	clock.Advance(AccessTokenTTL + time.Second)
	codes, tokens = m.CleanupExpired()
	assert.Equal(t, 1, codes)
	assert.Equal(t, 1, tokens)

	clients, _, _ := m.Store().Stats()
	assert.Equal(t, 2, clients, "clients are never expired")
}
