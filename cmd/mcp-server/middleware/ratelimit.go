package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/providentiaww/odoo-mcp-gateway/cmd/mcp-server/auth"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per caller. Authenticated requests are
// keyed by subject, everything else by client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	per      time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewRateLimiter allows requests per period with a burst of the full
// allowance. A zero request count disables limiting.
func NewRateLimiter(requests int, per time.Duration, logger zerolog.Logger) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		burst:    requests,
		per:      per,
		now:      time.Now,
		logger:   logger,
	}
	if requests > 0 && per > 0 {
		rl.limit = rate.Every(per / time.Duration(requests))
	}
	return rl
}

// Enabled reports whether any limit is configured.
func (rl *RateLimiter) Enabled() bool { return rl.limit > 0 }

// Allow consumes one token for key.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.Enabled() {
		return true
	}
	now := rl.now()

	rl.mu.Lock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Sweep forgets callers idle for longer than one period, by which time
// their bucket is full again. It returns the number removed.
func (rl *RateLimiter) Sweep() int {
	cutoff := rl.now().Add(-rl.per)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// Handler rejects over-limit requests with 429.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !rl.Allow(key) {
			rateLimitedTotal.Inc()
			rl.logger.Warn().Str("key", key).Str("path", r.URL.Path).Msg("rate limit exceeded")

			retry := rl.per / time.Duration(rl.burst)
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if user, ok := auth.GetUserContext(r.Context()); ok && user.Subject != "" {
		return "sub:" + user.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
