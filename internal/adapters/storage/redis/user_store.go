package redis

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
	"github.com/JeanGrijp/request-guard/internal/core/ports"
)

// UserStore reads user records kept as one hash per user:
// <prefix>user:<id> -> {email, role, username}.
type UserStore struct {
	client *redis.Client
	prefix string
}

var _ ports.UserStore = (*UserStore)(nil)

func NewUserStore(client *redis.Client, keyPrefix string) *UserStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &UserStore{client: client, prefix: keyPrefix}
}

func (s *UserStore) key(id string) string {
	return s.prefix + "user:" + id
}

func (s *UserStore) FindByID(ctx context.Context, id string) (domain.UserRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return domain.UserRecord{}, fmt.Errorf("redis user lookup: %w", err)
	}
	if len(fields) == 0 {
		return domain.UserRecord{}, domain.ErrUserNotFound
	}

	role, err := domain.ParseRole(fields["role"])
	if err != nil {
		return domain.UserRecord{}, fmt.Errorf("user %s: %w", id, err)
	}

	return domain.UserRecord{
		ID:       id,
		Email:    fields["email"],
		Role:     role,
		Username: fields["username"],
	}, nil
}

func (s *UserStore) Save(ctx context.Context, u domain.UserRecord) error {
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	if !u.Role.Valid() {
		return fmt.Errorf("user %s: invalid role %q", u.ID, u.Role)
	}
	return s.client.HSet(ctx, s.key(u.ID),
		"email", u.Email,
		"role", string(u.Role),
		"username", u.Username,
	).Err()
}
