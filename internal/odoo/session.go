// Package odoo talks to an Odoo backend over XML-RPC. Session owns the
// authenticated uid and the retry policy; Gateway layers typed operations and
// response caching on top of it.
package odoo

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
)

const (
	commonEndpoint = "common"
	objectEndpoint = "object"

	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
)

// Config holds the backend location and credentials.
type Config struct {
	URL        string
	Database   string
	Username   string
	Password   string
	Timeout    time.Duration
	MaxRetries int
}

// Configured reports whether enough settings are present to authenticate.
func (c Config) Configured() bool {
	return c.URL != "" && c.Database != "" && c.Username != "" && c.Password != ""
}

// rpcCaller is the subset of *xmlrpc.Client the session needs.
type rpcCaller interface {
	Call(serviceMethod string, args interface{}, reply interface{}) error
}

// Session authenticates lazily and memoizes the uid for the process lifetime.
type Session struct {
	cfg        Config
	common     rpcCaller
	object     rpcCaller
	newBackoff func() retry.Backoff
	logger     zerolog.Logger

	mu    sync.RWMutex
	uid   int
	group singleflight.Group
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithBackoff replaces the retry schedule factory. A fresh Backoff is requested
// for every retried operation.
func WithBackoff(fn func() retry.Backoff) SessionOption {
	return func(s *Session) { s.newBackoff = fn }
}

func withCallers(common, object rpcCaller) SessionOption {
	return func(s *Session) {
		s.common = common
		s.object = object
	}
}

// NewSession builds XML-RPC clients for the common and object endpoints.
func NewSession(cfg Config, logger zerolog.Logger, opts ...SessionOption) (*Session, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = defaultMaxRetries
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	s := &Session{
		cfg:    cfg,
		logger: logger.With().Str("component", "odoo").Logger(),
	}
	s.newBackoff = func() retry.Backoff { return exponentialBackoff(s.cfg.MaxRetries) }
	for _, opt := range opts {
		opt(s)
	}

	if s.common == nil || s.object == nil {
		transport, err := newTransport(cfg.URL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		common, err := xmlrpc.NewClient(cfg.URL+"/xmlrpc/2/"+commonEndpoint, transport)
		if err != nil {
			return nil, fmt.Errorf("creating common client: %w", err)
		}
		object, err := xmlrpc.NewClient(cfg.URL+"/xmlrpc/2/"+objectEndpoint, transport)
		if err != nil {
			return nil, fmt.Errorf("creating object client: %w", err)
		}
		s.common, s.object = common, object
	}

	s.logger.Info().Str("url", cfg.URL).Str("db", cfg.Database).Msg("odoo session initialized")
	return s, nil
}

// newTransport pins TLS verification to the URL scheme: https gets strict
// certificate and hostname checks, http gets a plain transport.
func newTransport(rawURL string, timeout time.Duration) (*http.Transport, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	switch {
	case strings.HasPrefix(rawURL, "https://"):
		transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		transport.TLSHandshakeTimeout = 10 * time.Second
	case strings.HasPrefix(rawURL, "http://"), rawURL == "":
	default:
		return nil, fmt.Errorf("unsupported odoo url %q: scheme must be http or https", rawURL)
	}
	return transport, nil
}

// exponentialBackoff sleeps 1s, 2s, 4s... between attempts and allows
// maxRetries attempts in total.
func exponentialBackoff(maxRetries int) retry.Backoff {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return retry.WithMaxRetries(uint64(maxRetries-1), retry.NewExponential(time.Second))
}

// UID returns the memoized uid, or 0 before the first successful authentication.
func (s *Session) UID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uid
}

// Authenticate returns the cached uid or logs in against the common endpoint.
func (s *Session) Authenticate(ctx context.Context) (int, error) {
	if uid := s.UID(); uid != 0 {
		return uid, nil
	}
	if !s.cfg.Configured() {
		return 0, &AuthenticationError{Database: s.cfg.Database, Username: s.cfg.Username, Err: ErrNotConfigured}
	}

	// Shared by every concurrent caller, so one caller's cancellation must not
	// abort the login for the rest.
	authCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do("authenticate", func() (interface{}, error) {
		if uid := s.UID(); uid != 0 {
			return uid, nil
		}

		s.logger.Info().Str("username", s.cfg.Username).Msg("authenticating with odoo")

		// Only transport failures are retried. A rejected login answers
		// false and is final.
		var reply interface{}
		err := s.withRetry(authCtx, commonEndpoint, func(ctx context.Context) error {
			var err error
			reply, err = s.call(ctx, s.common, commonEndpoint, "authenticate",
				[]interface{}{s.cfg.Database, s.cfg.Username, s.cfg.Password, map[string]interface{}{}})
			return err
		})
		if err == nil {
			if id, ok := asInt(reply); !ok || id <= 0 {
				err = ErrLoginRejected
			}
		}
		if err != nil {
			s.logger.Error().Err(err).Msg("odoo authentication failed")
			return 0, &AuthenticationError{Database: s.cfg.Database, Username: s.cfg.Username, Err: err}
		}
		uid, _ := asInt(reply)

		s.mu.Lock()
		s.uid = uid
		s.mu.Unlock()

		s.logger.Info().Int("uid", uid).Msg("odoo authentication successful")
		return uid, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Invoke runs execute_kw for model.method with the memoized identity.
func (s *Session) Invoke(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	uid, err := s.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}

	s.logger.Debug().Str("model", model).Str("method", method).Msg("executing odoo method")

	var result interface{}
	err = s.withRetry(ctx, objectEndpoint, func(ctx context.Context) error {
		reply, err := s.call(ctx, s.object, objectEndpoint, "execute_kw",
			[]interface{}{s.cfg.Database, uid, s.cfg.Password, model, method, args, kwargs})
		if err != nil {
			return err
		}
		result = reply
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("model", model).Str("method", method).Msg("odoo method failed")
		return nil, &RemoteCallError{Model: model, Method: method, Err: err}
	}
	return result, nil
}

// withRetry runs fn until it succeeds or the backoff gives up, returning the
// last error unchanged.
func (s *Session) withRetry(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, s.newBackoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt < s.cfg.MaxRetries {
			rpcRetries.WithLabelValues(endpoint).Inc()
			s.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", s.cfg.MaxRetries).
				Msg("retrying odoo call")
		}
		return retry.RetryableError(err)
	})
}

// call performs one XML-RPC request bounded by the configured timeout.
func (s *Session) call(ctx context.Context, c rpcCaller, endpoint, method string, args []interface{}) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	type callResult struct {
		reply interface{}
		err   error
	}
	resCh := make(chan callResult, 1)
	start := time.Now()
	go func() {
		var reply interface{}
		err := c.Call(method, args, &reply)
		resCh <- callResult{reply: reply, err: err}
	}()

	select {
	case res := <-resCh:
		rpcDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if res.err != nil {
			rpcCalls.WithLabelValues(endpoint, "error").Inc()
			return nil, res.err
		}
		rpcCalls.WithLabelValues(endpoint, "ok").Inc()
		return res.reply, nil
	case <-ctx.Done():
		rpcCalls.WithLabelValues(endpoint, "timeout").Inc()
		return nil, fmt.Errorf("%s/%s did not respond within %s: %w", endpoint, method, s.cfg.Timeout, ctx.Err())
	}
}
