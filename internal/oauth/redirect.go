package oauth

import (
	"fmt"
	"net/url"
	"strings"
)

// isRedirectAllowed matches exactly or against a registered wildcard pattern.
func isRedirectAllowed(redirectURI string, allowed []string) bool {
	for _, uri := range allowed {
		if uri == redirectURI {
			return true
		}
		if strings.Contains(uri, "*") && wildcardMatch(uri, redirectURI) {
			return true
		}
	}
	return false
}

func validateRedirectURI(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid redirect_uri: %s", raw)
	}
	if parsed.Fragment != "" {
		return fmt.Errorf("redirect_uri must not contain a fragment: %s", raw)
	}
	if strings.Contains(raw, "*") {
		return validateWildcardRedirect(parsed)
	}
	if parsed.Scheme == "https" {
		return nil
	}
	host := parsed.Hostname()
	if parsed.Scheme == "http" && (host == "localhost" || host == "127.0.0.1") {
		return nil
	}
	return fmt.Errorf("redirect_uri must use https (or localhost http): %s", raw)
}

// Wildcards are only accepted for ChatGPT GPT-action callbacks.
func validateWildcardRedirect(parsed *url.URL) error {
	if parsed.Scheme != "https" {
		return fmt.Errorf("wildcard redirect_uri must use https")
	}
	host := parsed.Hostname()
	if host != "chat.openai.com" && host != "chatgpt.com" {
		return fmt.Errorf("wildcard redirect_uri only allowed for chat.openai.com or chatgpt.com")
	}
	if !strings.HasPrefix(parsed.Path, "/aip/g-") || !strings.HasSuffix(parsed.Path, "/oauth/callback") {
		return fmt.Errorf("wildcard redirect_uri must match /aip/g-*/oauth/callback")
	}
	return nil
}

// wildcardMatch treats '*' as any run of characters within one path segment.
func wildcardMatch(pattern, value string) bool {
	star := strings.IndexByte(pattern, '*')
	if star < 0 {
		return pattern == value
	}
	if !strings.HasPrefix(value, pattern[:star]) {
		return false
	}
	value = value[star:]
	rest := pattern[star+1:]
	for i := 0; i <= len(value); i++ {
		if i > 0 && strings.ContainsRune("/?#", rune(value[i-1])) {
			break
		}
		if wildcardMatch(rest, value[i:]) {
			return true
		}
	}
	return false
}
