// Package cache is a best-effort response cache. Backend failures are logged
// and reported to callers as misses, never as errors.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL applies when no TTL is configured.
const DefaultTTL = 300 * time.Second

// Backend stores serialized values with a TTL.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// CacheError describes a failed cache operation. It is logged, never returned.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// Cache JSON-encodes values on top of a Backend.
type Cache struct {
	backend Backend
	ttl     time.Duration
	logger  zerolog.Logger
}

// New creates a cache. A ttl <= 0 selects DefaultTTL.
func New(backend Backend, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		backend: backend,
		ttl:     ttl,
		logger:  logger.With().Str("component", "cache").Logger(),
	}
}

// TTL returns the default entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get decodes the cached value into dest. It reports false on a miss or any failure.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.fail(&CacheError{Op: "get", Key: key, Err: err})
		return false
	}
	if !ok {
		cacheOps.WithLabelValues("get", "miss").Inc()
		c.logger.Debug().Str("key", key).Msg("cache miss")
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.fail(&CacheError{Op: "decode", Key: key, Err: err})
		return false
	}
	cacheOps.WithLabelValues("get", "hit").Inc()
	c.logger.Debug().Str("key", key).Msg("cache hit")
	return true
}

// Set stores value under key. A ttl <= 0 uses the cache default.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.ttl
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.fail(&CacheError{Op: "encode", Key: key, Err: err})
		return false
	}
	if err := c.backend.Set(ctx, key, raw, ttl); err != nil {
		c.fail(&CacheError{Op: "set", Key: key, Err: err})
		return false
	}
	cacheOps.WithLabelValues("set", "ok").Inc()
	c.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("cache set")
	return true
}

func (c *Cache) Delete(ctx context.Context, key string) bool {
	if err := c.backend.Delete(ctx, key); err != nil {
		c.fail(&CacheError{Op: "delete", Key: key, Err: err})
		return false
	}
	cacheOps.WithLabelValues("delete", "ok").Inc()
	return true
}

func (c *Cache) Clear(ctx context.Context) bool {
	if err := c.backend.Clear(ctx); err != nil {
		c.fail(&CacheError{Op: "clear", Err: err})
		return false
	}
	cacheOps.WithLabelValues("clear", "ok").Inc()
	c.logger.Info().Msg("cache cleared")
	return true
}

func (c *Cache) fail(err *CacheError) {
	cacheOps.WithLabelValues(err.Op, "error").Inc()
	c.logger.Error().Err(err.Err).Str("op", err.Op).Str("key", err.Key).Msg("cache operation failed")
}

// MakeKey joins a prefix and the stringified parts with ":".
func MakeKey(prefix string, parts ...interface{}) string {
	out := make([]string, 0, len(parts)+1)
	out = append(out, prefix)
	for _, p := range parts {
		out = append(out, fmt.Sprint(p))
	}
	return strings.Join(out, ":")
}
