// Package config assembles gateway settings from AWS Secrets Manager, a .env
// file, an optional YAML file and the process environment, in that order of
// increasing precedence.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/providentiaww/odoo-mcp-gateway/internal/oauth"
	"github.com/providentiaww/odoo-mcp-gateway/internal/odoo"
)

// DevSecretKey signs login JWTs when SECRET_KEY is unset.
const DevSecretKey = "dev-secret-key-change-in-production"

var validate = validator.New()

type Settings struct {
	Odoo   OdooSettings   `yaml:"odoo"`
	Server ServerSettings `yaml:"server"`
	Auth   AuthSettings   `yaml:"auth"`
	Cache  CacheSettings  `yaml:"cache"`
	Log    LogSettings    `yaml:"log"`
	OAuth  OAuthSettings  `yaml:"oauth"`
}

type OdooSettings struct {
	URL        string        `yaml:"url" validate:"omitempty,url"`
	Database   string        `yaml:"database"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries int           `yaml:"max_retries" validate:"min=1,max=10"`
}

type ServerSettings struct {
	Mode      string `yaml:"mode" validate:"oneof=http stdio"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port" validate:"min=1,max=65535"`
	RateLimit string `yaml:"rate_limit"`

	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool `yaml:"trust_proxy"`
}

type AuthSettings struct {
	SecretKey                string   `yaml:"secret_key" validate:"required"`
	AccessTokenExpireMinutes int      `yaml:"access_token_expire_minutes" validate:"min=1"`
	APIKeys                  []string `yaml:"api_keys"`
}

type CacheSettings struct {
	RedisEnabled bool          `yaml:"redis_enabled"`
	RedisURL     string        `yaml:"redis_url" validate:"required_if=RedisEnabled true"`
	TTL          time.Duration `yaml:"ttl" validate:"gt=0"`
}

type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

type OAuthSettings struct {
	Issuer          string        `yaml:"issuer" validate:"omitempty,url"`
	ClientID        string        `yaml:"client_id"`
	ClientSecret    string        `yaml:"client_secret"`
	RedirectURIs    []string      `yaml:"redirect_uris"`
	DCRMode         string        `yaml:"dcr_mode" validate:"omitempty,oneof=open protected disabled"`
	DCRAccessToken  string        `yaml:"dcr_access_token" validate:"required_if=DCRMode protected"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"gt=0"`
}

// Defaults returns the settings used when nothing else is configured.
func Defaults() Settings {
	return Settings{
		Odoo: OdooSettings{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Server: ServerSettings{
			Mode:      "http",
			Host:      "0.0.0.0",
			Port:      5000,
			RateLimit: "60/minute",
		},
		Auth: AuthSettings{
			SecretKey:                DevSecretKey,
			AccessTokenExpireMinutes: 30,
		},
		Cache: CacheSettings{
			RedisURL: "redis://localhost:6379/0",
			TTL:      300 * time.Second,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "json",
		},
		OAuth: OAuthSettings{
			ClientID:        oauth.DefaultStaticClientID,
			CleanupInterval: time.Minute,
		},
	}
}

// Load builds Settings. defaultEnvPath is the .env file consulted when
// ENV_FILE_PATH is unset.
func Load(ctx context.Context, logger zerolog.Logger, defaultEnvPath string) (*Settings, error) {
	LoadEnv(ctx, logger, defaultEnvPath)

	s := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := s.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Auth.SecretKey == DevSecretKey {
		logger.Warn().Msg("SECRET_KEY is not set, using the development default")
	}
	if !s.Odoo.Configured() {
		logger.Warn().Msg("Odoo connection is not fully configured, set ODOO_URL, ODOO_DB, ODOO_USERNAME and ODOO_PASSWORD")
	}
	return &s, nil
}

func (s *Settings) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (s *Settings) applyEnv() error {
	setString(&s.Odoo.URL, "ODOO_URL")
	setString(&s.Odoo.Database, "ODOO_DB")
	setString(&s.Odoo.Username, "ODOO_USERNAME")
	setString(&s.Odoo.Password, "ODOO_PASSWORD")
	setString(&s.Server.Mode, "SERVER_MODE")
	setString(&s.Server.Host, "HOST")
	setString(&s.Server.RateLimit, "RATE_LIMIT")
	setString(&s.Auth.SecretKey, "SECRET_KEY")
	setString(&s.Cache.RedisURL, "REDIS_URL")
	setString(&s.Log.Level, "LOG_LEVEL")
	setString(&s.Log.Format, "LOG_FORMAT")
	setString(&s.OAuth.Issuer, "OAUTH_ISSUER")
	setString(&s.OAuth.ClientID, "OAUTH_CLIENT_ID")
	setString(&s.OAuth.ClientSecret, "OAUTH_CLIENT_SECRET")
	setString(&s.OAuth.DCRMode, "OAUTH_DCR_MODE")
	setString(&s.OAuth.DCRAccessToken, "OAUTH_DCR_ACCESS_TOKEN")
	setList(&s.Auth.APIKeys, "API_KEYS")
	setList(&s.OAuth.RedirectURIs, "OAUTH_REDIRECT_URIS")

	for _, f := range []func() error{
		func() error { return setInt(&s.Server.Port, "PORT") },
		func() error { return setInt(&s.Odoo.MaxRetries, "ODOO_MAX_RETRIES") },
		func() error { return setInt(&s.Auth.AccessTokenExpireMinutes, "ACCESS_TOKEN_EXPIRE_MINUTES") },
		func() error { return setBool(&s.Cache.RedisEnabled, "REDIS_ENABLED") },
		func() error { return setBool(&s.Server.TrustProxy, "TRUST_PROXY") },
		func() error { return setSeconds(&s.Odoo.Timeout, "ODOO_TIMEOUT") },
		func() error { return setSeconds(&s.Cache.TTL, "CACHE_TTL") },
		func() error { return setSeconds(&s.OAuth.CleanupInterval, "OAUTH_CLEANUP_INTERVAL") },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks struct constraints and the rate limit syntax.
func (s *Settings) Validate() error {
	s.Server.Mode = strings.ToLower(s.Server.Mode)
	s.Log.Format = strings.ToLower(s.Log.Format)
	s.OAuth.DCRMode = strings.ToLower(s.OAuth.DCRMode)
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, _, err := s.Server.Rate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Configured reports whether every Odoo connection field is set.
func (o OdooSettings) Configured() bool {
	return o.Session().Configured()
}

// Session converts the settings into a session config.
func (o OdooSettings) Session() odoo.Config {
	return odoo.Config{
		URL:        o.URL,
		Database:   o.Database,
		Username:   o.Username,
		Password:   o.Password,
		Timeout:    o.Timeout,
		MaxRetries: o.MaxRetries,
	}
}

// Addr is the HTTP listen address.
func (s ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Rate parses RateLimit ("60/minute", "10/s", "1000/hour"). An empty value
// disables limiting and yields zero requests.
func (s ServerSettings) Rate() (requests int, per time.Duration, err error) {
	if strings.TrimSpace(s.RateLimit) == "" {
		return 0, 0, nil
	}
	count, unit, ok := strings.Cut(strings.TrimSpace(s.RateLimit), "/")
	if !ok {
		return 0, 0, fmt.Errorf("rate limit %q: expected <count>/<unit>", s.RateLimit)
	}
	requests, err = strconv.Atoi(strings.TrimSpace(count))
	if err != nil || requests <= 0 {
		return 0, 0, fmt.Errorf("rate limit %q: count must be a positive integer", s.RateLimit)
	}
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "s", "sec", "second":
		per = time.Second
	case "m", "min", "minute":
		per = time.Minute
	case "h", "hour":
		per = time.Hour
	default:
		return 0, 0, fmt.Errorf("rate limit %q: unknown unit %q", s.RateLimit, unit)
	}
	return requests, per, nil
}

// Manager converts the settings into an authorization server config.
func (o OAuthSettings) Manager() oauth.Config {
	return oauth.Config{
		Issuer:             o.Issuer,
		StaticClientID:     o.ClientID,
		StaticClientSecret: o.ClientSecret,
		StaticRedirectURIs: o.RedirectURIs,
		DCRMode:            o.DCRMode,
		DCRAccessToken:     o.DCRAccessToken,
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

// setSeconds accepts a bare number of seconds or a Go duration string.
func setSeconds(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
