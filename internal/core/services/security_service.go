package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
	"github.com/JeanGrijp/request-guard/internal/core/ports"
)

// SecurityService resolves who is calling and what they may do. The role is
// always re-read from the user store; nothing carried by the session is
// trusted beyond the user id, and nothing is cached between calls.
type SecurityService struct {
	sessions ports.SessionResolver
	users    ports.UserStore
}

func NewSecurityService(sessions ports.SessionResolver, users ports.UserStore) (*SecurityService, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session resolver is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	return &SecurityService{sessions: sessions, users: users}, nil
}

// Context builds a fresh SecurityContext for the request carried by ctx.
// A session whose user no longer exists yields an unauthenticated context.
func (s *SecurityService) Context(ctx context.Context) (*domain.SecurityContext, error) {
	session, ok, err := s.sessions.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if !ok || session.UserID == "" {
		return domain.NewSecurityContext(nil), nil
	}

	record, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		if domain.IsUserNotFound(err) {
			log.Debug().Str("user_id", session.UserID).Msg("session user no longer exists")
			return domain.NewSecurityContext(nil), nil
		}
		return nil, fmt.Errorf("load user %s: %w", session.UserID, err)
	}

	return domain.NewSecurityContext(&domain.AuthenticatedUser{
		ID:       record.ID,
		Email:    record.Email,
		Role:     record.Role,
		Username: record.Username,
	}), nil
}

func (s *SecurityService) RequireAuth(ctx context.Context) (*domain.AuthenticatedUser, error) {
	sc, err := s.Context(ctx)
	if err != nil {
		return nil, err
	}
	if !sc.IsAuthenticated() {
		return nil, domain.NewSecurityError(domain.CodeUnauthenticated, "authentication required")
	}
	return sc.User, nil
}

func (s *SecurityService) RequireRole(ctx context.Context, roles ...domain.Role) (*domain.AuthenticatedUser, error) {
	sc, err := s.Context(ctx)
	if err != nil {
		return nil, err
	}
	if !sc.IsAuthenticated() {
		return nil, domain.NewSecurityError(domain.CodeUnauthenticated, "authentication required")
	}
	if !sc.HasRole(roles...) {
		return nil, domain.NewSecurityError(domain.CodeForbidden, "insufficient role")
	}
	return sc.User, nil
}

func (s *SecurityService) RequireMinRole(ctx context.Context, min domain.Role) (*domain.AuthenticatedUser, error) {
	sc, err := s.Context(ctx)
	if err != nil {
		return nil, err
	}
	if !sc.IsAuthenticated() {
		return nil, domain.NewSecurityError(domain.CodeUnauthenticated, "authentication required")
	}
	if !sc.HasMinRole(min) {
		return nil, domain.NewSecurityError(domain.CodeForbidden, "insufficient role")
	}
	return sc.User, nil
}

func (s *SecurityService) RequireOwnerOrRole(ctx context.Context, ownerID string, roles ...domain.Role) (*domain.AuthenticatedUser, error) {
	sc, err := s.Context(ctx)
	if err != nil {
		return nil, err
	}
	if !sc.IsAuthenticated() {
		return nil, domain.NewSecurityError(domain.CodeUnauthenticated, "authentication required")
	}
	if !sc.CanManage(ownerID, roles...) {
		return nil, domain.NewSecurityError(domain.CodeForbidden, "not owner")
	}
	return sc.User, nil
}
