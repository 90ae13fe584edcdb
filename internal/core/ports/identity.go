package ports

import (
	"context"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
)

// SessionResolver authenticates the ambient request and yields who it claims
// to be, if anyone.
type SessionResolver interface {
	Resolve(ctx context.Context) (domain.Session, bool, error)
}

// UserStore is the system of record for users. FindByID returns
// domain.ErrUserNotFound when no record exists.
type UserStore interface {
	FindByID(ctx context.Context, id string) (domain.UserRecord, error)
}
