package handlers

import (
	"context"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
)

// Guard is the part of the security service the handlers depend on.
type Guard interface {
	RequireAuth(ctx context.Context) (*domain.AuthenticatedUser, error)
	RequireRole(ctx context.Context, roles ...domain.Role) (*domain.AuthenticatedUser, error)
}
