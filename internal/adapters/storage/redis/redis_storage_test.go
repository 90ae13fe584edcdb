package redis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
)

// testStorage connects to the Redis at REDIS_TEST_ADDR. Tests are skipped when
// it is unset or unreachable. Each test gets its own key prefix.
func testStorage(t *testing.T) *Storage {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	s, err := New(Config{
		Addr:      addr,
		KeyPrefix: fmt.Sprintf("guardtest:%s:%d:", t.Name(), time.Now().UnixNano()),
		ThreatTTL: time.Minute,
	})
	if err != nil {
		t.Skipf("could not connect to redis at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		ctx := context.Background()
		_ = s.scan(ctx, s.prefix+"*", func(key string) error {
			return s.client.Del(ctx, key).Err()
		})
		_ = s.Close()
	})
	return s
}

func TestRedisStorage_Hit(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()
	now := time.Now()

	e, err := s.Hit(ctx, "auth:1.2.3.4", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Count)
	assert.WithinDuration(t, now.Add(time.Minute), e.ResetAt, time.Second)

	e, err = s.Hit(ctx, "auth:1.2.3.4", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Count)

	e, err = s.Hit(ctx, "api:1.2.3.4", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Count, "prefixes do not share counters")
}

func TestRedisStorage_HitWindowExpires(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	_, err := s.Hit(ctx, "k", 100*time.Millisecond, time.Now())
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	e, err := s.Hit(ctx, "k", 100*time.Millisecond, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Count)
}

func TestRedisStorage_HitConcurrent(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Hit(ctx, "k", time.Minute, time.Now())
		}()
	}
	wg.Wait()

	e, err := s.Hit(ctx, "k", time.Minute, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(51), e.Count)
}

func TestRedisStorage_BlocklistAndSnapshot(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Block(ctx, "5.6.7.8", now.Add(time.Minute), now))
	blocked, err := s.IsBlocked(ctx, "5.6.7.8", now)
	require.NoError(t, err)
	assert.True(t, blocked)

	entry, err := s.RecordViolation(ctx, "5.6.7.8", "suspicious_path:/.env", 10, now)
	require.NoError(t, err)
	assert.Equal(t, float64(10), entry.Score)
	assert.True(t, entry.Blocked)
	assert.Equal(t, []string{"suspicious_path:/.env"}, entry.Violations)

	entry, err = s.RecordViolation(ctx, "9.9.9.9", "empty_user_agent", 2, now)
	require.NoError(t, err)
	assert.False(t, entry.Blocked)

	_, err = s.Hit(ctx, "api:x", time.Minute, now)
	require.NoError(t, err)

	active, threats, err := s.Snapshot(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
	stats := domain.NewSecurityStats(active, threats, now)
	assert.Equal(t, 2, stats.TrackedThreats)
	assert.Equal(t, 1, stats.BlockedCount)

	require.NoError(t, s.Unblock(ctx, "5.6.7.8"))
	blocked, err = s.IsBlocked(ctx, "5.6.7.8", now)
	require.NoError(t, err)
	assert.False(t, blocked)

	res, err := s.Sweep(ctx, now, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestRedisUserStore(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()
	users := NewUserStore(s.Client(), s.prefix)

	_, err := users.FindByID(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	require.NoError(t, users.Save(ctx, domain.UserRecord{ID: "u1", Email: "a@example.com", Role: domain.RoleModerator}))
	u, err := users.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleModerator, u.Role)
	assert.Equal(t, "a@example.com", u.Email)

	assert.Error(t, users.Save(ctx, domain.UserRecord{ID: "u2", Role: "ROOT"}))
}
