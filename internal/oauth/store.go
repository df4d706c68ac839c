package oauth

import (
	"sync"
	"time"
)

// Store holds clients, codes and tokens in memory behind a single mutex.
// Every method is one critical section; callers get copies, never live records.
type Store struct {
	mu      sync.Mutex
	clients map[string]*Client
	codes   map[string]*AuthCode
	tokens  map[string]*Token
	// refresh token -> access token
	refresh map[string]string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		clients: make(map[string]*Client),
		codes:   make(map[string]*AuthCode),
		tokens:  make(map[string]*Token),
		refresh: make(map[string]string),
	}
}

// SaveClient stores or replaces a client.
func (s *Store) SaveClient(client *Client) {
	c := cloneClient(client)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ClientID] = c
}

// GetClient fetches a client by id.
func (s *Store) GetClient(clientID string) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, false
	}
	return cloneClient(c), true
}

// SaveAuthCode stores a freshly issued code.
func (s *Store) SaveAuthCode(code *AuthCode) {
	c := *code
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[c.Code] = &c
}

// GetAuthCode returns a copy of the code record.
func (s *Store) GetAuthCode(code string) (AuthCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return AuthCode{}, false
	}
	return *c, true
}

// DeleteAuthCode removes a code.
func (s *Store) DeleteAuthCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
}

// RedeemCode deletes the code and stores the token in one step. It reports
// false when the code is already gone, so a code can mint at most one token.
func (s *Store) RedeemCode(code string, token *Token) bool {
	t := *token
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code]; !ok {
		return false
	}
	delete(s.codes, code)
	s.putToken(&t)
	return true
}

// LookupToken returns the token record if it exists and has not expired.
// Expired records are deleted.
func (s *Store) LookupToken(accessToken string, now time.Time) (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[accessToken]
	if !ok {
		return Token{}, false
	}
	if now.After(t.ExpiresAt) {
		s.deleteToken(t)
		return Token{}, false
	}
	return *t, true
}

// FindByRefreshToken resolves the live token record minted with refreshToken.
func (s *Store) FindByRefreshToken(refreshToken string) (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	access, ok := s.refresh[refreshToken]
	if !ok {
		return Token{}, false
	}
	t, ok := s.tokens[access]
	if !ok {
		return Token{}, false
	}
	return *t, true
}

// RotateToken replaces old with next. It reports false when old was already
// rotated or removed, which keeps each refresh chain to one current token.
func (s *Store) RotateToken(old Token, next *Token) bool {
	n := *next
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tokens[old.AccessToken]
	if !ok || cur.RefreshToken != old.RefreshToken {
		return false
	}
	s.deleteToken(cur)
	s.putToken(&n)
	return true
}

// DeleteExpired removes every code and token past its expiry.
func (s *Store) DeleteExpired(now time.Time) (codes, tokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.codes {
		if now.After(c.ExpiresAt) {
			delete(s.codes, k)
			codes++
		}
	}
	for _, t := range s.tokens {
		if now.After(t.ExpiresAt) {
			s.deleteToken(t)
			tokens++
		}
	}
	return codes, tokens
}

// Stats reports the number of live records.
func (s *Store) Stats() (clients, codes, tokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients), len(s.codes), len(s.tokens)
}

func (s *Store) putToken(t *Token) {
	s.tokens[t.AccessToken] = t
	s.refresh[t.RefreshToken] = t.AccessToken
}

func (s *Store) deleteToken(t *Token) {
	delete(s.tokens, t.AccessToken)
	delete(s.refresh, t.RefreshToken)
}

func cloneClient(c *Client) *Client {
	out := *c
	out.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	out.GrantTypes = append([]string(nil), c.GrantTypes...)
	out.ResponseTypes = append([]string(nil), c.ResponseTypes...)
	return &out
}
