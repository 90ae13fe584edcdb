// Package middleware disponibiliza os middlewares HTTP da aplicação.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/JeanGrijp/request-guard/internal/adapters/session"
	"github.com/JeanGrijp/request-guard/internal/core/domain"
	"github.com/JeanGrijp/request-guard/internal/core/ports"
)

const (
	blockedMessage = "access denied"
	loopbackIP     = "127.0.0.1"
)

// KeyFunc picks the identifier a request is counted under.
type KeyFunc func(r *http.Request) string

// ClientIP is a best-effort guess at the caller's address from proxy headers:
// first X-Forwarded-For hop, then X-Real-IP, then CF-Connecting-IP, else
// loopback. All of these can be spoofed unless the upstream proxy strips them.
// Parseable addresses come back in canonical form.
func ClientIP(h http.Header) string {
	if xff := strings.TrimSpace(h.Get("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return canonicalIP(first)
		}
	}
	if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
		return canonicalIP(ip)
	}
	if ip := strings.TrimSpace(h.Get("CF-Connecting-IP")); ip != "" {
		return canonicalIP(ip)
	}
	return loopbackIP
}

func canonicalIP(ip string) string {
	if c, ok := domain.CanonicalIP(ip); ok {
		return c
	}
	return ip
}

func IPKey(r *http.Request) string {
	return ClientIP(r.Header)
}

// UserOrIPKey counts authenticated callers by user id and everyone else by IP.
func UserOrIPKey(r *http.Request) string {
	if s, ok := session.FromContext(r.Context()); ok && s.UserID != "" {
		return "user:" + s.UserID
	}
	return ClientIP(r.Header)
}

func NewRateLimiterMiddleware(limiter ports.RateLimiter, rule domain.RateLimitRule, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = IPKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.Check(r.Context(), key(r), rule)
			if err != nil {
				log.Error().Err(err).Str("prefix", rule.Prefix).Msg("rate limiter failed")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				writeTooManyRequests(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewBlocklistMiddleware rejects requests from blocked IPs before any other
// work happens.
func NewBlocklistMiddleware(limiter ports.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r.Header)
			if err := limiter.CheckBlocked(r.Context(), ip); err != nil {
				if domain.IsBlockedError(err) {
					log.Debug().Str("ip", ip).Str("path", r.URL.Path).Msg("blocked ip rejected")
					writeText(w, http.StatusForbidden, blockedMessage)
					return
				}
				log.Error().Err(err).Str("ip", ip).Msg("blocklist lookup failed")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter, result domain.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfterSeconds()))
	writeText(w, http.StatusTooManyRequests, result.Message())
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
