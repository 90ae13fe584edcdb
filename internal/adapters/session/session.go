// Package session autentica requisições com tokens de sessão JWT (HS256) e
// expõe o resultado ao núcleo por meio de ports.SessionResolver.
//
// O token só prova qual user id o portador é. O papel nunca vai no token; o
// serviço de segurança o lê do user store a cada verificação.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
	"github.com/JeanGrijp/request-guard/internal/core/ports"
)

const minSecretLength = 32

type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", minSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns an HS256 JWT whose subject is userID.
func (s *Signer) Issue(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

// Verify checks signature, algorithm and expiry. Every failure is reported as
// domain.ErrInvalidSession.
func (s *Signer) Verify(token string) (domain.Session, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return domain.Session{}, domain.ErrInvalidSession
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Session{}, domain.ErrInvalidSession
	}
	return domain.Session{UserID: claims.Subject}, nil
}

type contextKey struct{}

func WithSession(ctx context.Context, s domain.Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (domain.Session, bool) {
	s, ok := ctx.Value(contextKey{}).(domain.Session)
	return s, ok
}

// ContextResolver resolves the session a middleware attached to the request
// context.
type ContextResolver struct{}

var _ ports.SessionResolver = ContextResolver{}

func (ContextResolver) Resolve(ctx context.Context) (domain.Session, bool, error) {
	s, ok := FromContext(ctx)
	return s, ok, nil
}
