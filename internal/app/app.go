// Package app wires the cache, session and gateway from settings. Both
// binaries share it.
package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/providentiaww/odoo-mcp-gateway/internal/cache"
	"github.com/providentiaww/odoo-mcp-gateway/internal/config"
	"github.com/providentiaww/odoo-mcp-gateway/internal/odoo"
)

// Backend is the assembled Odoo gateway and the resources it holds.
type Backend struct {
	Gateway *odoo.Gateway
	Cache   *cache.Cache
	closers []func() error
}

// Close releases the cache connection, if any.
func (b *Backend) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewBackend builds the gateway. A Redis cache that cannot be reached
// degrades to the in-process cache with a warning.
func NewBackend(ctx context.Context, s *config.Settings, logger zerolog.Logger) (*Backend, error) {
	b := &Backend{}

	var backend cache.Backend = cache.NewMemoryBackend()
	if s.Cache.RedisEnabled {
		rb, err := cache.NewRedisBackendFromURL(ctx, s.Cache.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using in-process cache")
		} else {
			backend = rb
			b.closers = append(b.closers, rb.Close)
			logger.Info().Msg("redis cache connected")
		}
	}
	b.Cache = cache.New(backend, s.Cache.TTL, logger)

	session, err := odoo.NewSession(s.Odoo.Session(), logger)
	if err != nil {
		return nil, err
	}
	b.Gateway = odoo.NewGateway(session, b.Cache, logger)
	return b, nil
}

// WarmUp authenticates once at startup when credentials are present.
// Failure is logged, not fatal, so the service can come up before the
// backend does.
func WarmUp(ctx context.Context, b *Backend, s *config.Settings, logger zerolog.Logger) {
	if !s.Odoo.Configured() {
		return
	}
	uid, err := b.Gateway.Authenticate(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("odoo authentication failed at startup")
		return
	}
	logger.Info().Int("uid", uid).Msg("odoo authenticated")
}
