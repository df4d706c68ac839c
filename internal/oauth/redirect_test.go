package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWildcardMatch(t *testing.T) {
	pattern := "https://chatgpt.com/aip/g-*/oauth/callback"

	assert.True(t, wildcardMatch(pattern, "https://chatgpt.com/aip/g-123/oauth/callback"))
	assert.True(t, wildcardMatch(pattern, "https://chatgpt.com/aip/g-/oauth/callback"))
	assert.False(t, wildcardMatch(pattern, "https://chatgpt.com/aip/g-1/2/oauth/callback"))
	assert.False(t, wildcardMatch(pattern, "https://chatgpt.com/aip/g-1?x=/oauth/callback"))
	assert.False(t, wildcardMatch(pattern, "https://evil.com/aip/g-1/oauth/callback"))
	assert.True(t, wildcardMatch("https://a.com/x", "https://a.com/x"))
}

func TestIsRedirectAllowed(t *testing.T) {
	allowed := []string{"https://app.example.com/cb", "https://chat.openai.com/aip/g-*/oauth/callback"}

	assert.True(t, isRedirectAllowed("https://app.example.com/cb", allowed))
	assert.True(t, isRedirectAllowed("https://chat.openai.com/aip/g-xyz/oauth/callback", allowed))
	assert.False(t, isRedirectAllowed("https://app.example.com/cb/", allowed))
	assert.False(t, isRedirectAllowed("https://app.example.com/cb?next=1", allowed))
	assert.False(t, isRedirectAllowed("", allowed))
}

func TestValidateRedirectURI(t *testing.T) {
	valid := []string{
		"https://app.example.com/cb",
		"http://localhost:8080/cb",
		"http://127.0.0.1/cb",
		"https://chatgpt.com/aip/g-*/oauth/callback",
	}
	for _, uri := range valid {
		assert.NoError(t, validateRedirectURI(uri), uri)
	}

	invalid := []string{
		"",
		"not a url",
		"http://app.example.com/cb",
		"https://app.example.com/cb#frag",
		"http://chatgpt.com/aip/g-*/oauth/callback",
		"https://chatgpt.com/other/*",
	}
	for _, uri := range invalid {
		assert.Error(t, validateRedirectURI(uri), uri)
	}
}
