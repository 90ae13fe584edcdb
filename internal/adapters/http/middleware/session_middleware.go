package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/JeanGrijp/request-guard/internal/adapters/session"
	"github.com/JeanGrijp/request-guard/internal/core/domain"
)

type SessionVerifier interface {
	Verify(token string) (domain.Session, error)
}

// NewSessionMiddleware attaches the session proven by the cookie or bearer
// token to the request context. Requests without a valid token pass through
// anonymously; the guards decide whether that is acceptable.
func NewSessionMiddleware(verifier SessionVerifier, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r, cookieName)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			s, err := verifier.Verify(token)
			if err != nil {
				log.Debug().Err(err).Str("ip", ClientIP(r.Header)).Msg("rejected session token")
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

func sessionToken(r *http.Request, cookieName string) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookieName == "" {
		return ""
	}
	c, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
