package oauth

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultStaticClientID = "chatgpt-odoo-mcp"
	DefaultScope          = "odoo:read odoo:write"

	DCRModeOpen      = "open"
	DCRModeProtected = "protected"
	DCRModeDisabled  = "disabled"
)

// DefaultStaticRedirectURIs cover the ChatGPT action and connector callbacks.
var DefaultStaticRedirectURIs = []string{
	"https://chat.openai.com/aip/g-*/oauth/callback",
	"https://chatgpt.com/aip/g-*/oauth/callback",
	"https://chatgpt.com/connector_platform_oauth_redirect",
}

// Config holds authorization server settings.
type Config struct {
	Issuer             string
	StaticClientID     string
	StaticClientSecret string
	StaticRedirectURIs []string
	DefaultScope       string
	DCRMode            string
	DCRAccessToken     string
	BcryptCost         int
}

func (c Config) withDefaults() Config {
	c.Issuer = strings.TrimRight(c.Issuer, "/")
	if c.StaticClientID == "" {
		c.StaticClientID = DefaultStaticClientID
	}
	if len(c.StaticRedirectURIs) == 0 {
		c.StaticRedirectURIs = append([]string(nil), DefaultStaticRedirectURIs...)
	}
	if c.DefaultScope == "" {
		c.DefaultScope = DefaultScope
	}
	c.DCRMode = strings.ToLower(strings.TrimSpace(c.DCRMode))
	if c.DCRMode == "" {
		c.DCRMode = DCRModeOpen
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	return c
}
