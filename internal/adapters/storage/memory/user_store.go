package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
	"github.com/JeanGrijp/request-guard/internal/core/ports"
)

// UserStore is a thread-safe in-memory user table, meant for development and
// tests.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]domain.UserRecord
}

var _ ports.UserStore = (*UserStore)(nil)

func NewUserStore(seed ...domain.UserRecord) *UserStore {
	s := &UserStore{users: make(map[string]domain.UserRecord, len(seed))}
	for _, u := range seed {
		s.users[u.ID] = u
	}
	return s
}

func (s *UserStore) FindByID(_ context.Context, id string) (domain.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return domain.UserRecord{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *UserStore) Save(_ context.Context, u domain.UserRecord) error {
	if u.ID == "" {
		return errors.New("user id is required")
	}
	if !u.Role.Valid() {
		return errors.New("user role is invalid")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *UserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}
