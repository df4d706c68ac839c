package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// ClientIP returns chi's RealIP when proxy headers are trusted. Otherwise
// the peer address is left alone, so callers cannot pick their own rate
// limit key by sending X-Forwarded-For.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	if trustProxy {
		return chimw.RealIP
	}
	return func(next http.Handler) http.Handler { return next }
}
