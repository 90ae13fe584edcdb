package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JeanGrijp/request-guard/internal/adapters/storage/memory"
	"github.com/JeanGrijp/request-guard/internal/core/domain"
)

type failingStorage struct {
	*memory.Storage
	err error
}

func (f *failingStorage) Hit(context.Context, string, time.Duration, time.Time) (domain.RateLimitEntry, error) {
	return domain.RateLimitEntry{}, f.err
}

// blockingSweepStorage parks the first Sweep until release is closed.
type blockingSweepStorage struct {
	*memory.Storage
	entered   chan struct{}
	release   chan struct{}
	enterOnce sync.Once
	sweeps    atomic.Int64
}

func newBlockingSweepStorage() *blockingSweepStorage {
	return &blockingSweepStorage{
		Storage: memory.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingSweepStorage) Sweep(ctx context.Context, now time.Time, idle time.Duration) (domain.SweepResult, error) {
	b.sweeps.Add(1)
	b.enterOnce.Do(func() { close(b.entered) })
	<-b.release
	return b.Storage.Sweep(ctx, now, idle)
}

type countingSweepStorage struct {
	*memory.Storage
	sweeps        atomic.Int64
	inFlight      atomic.Int64
	maxConcurrent atomic.Int64
}

func newCountingSweepStorage() *countingSweepStorage {
	return &countingSweepStorage{Storage: memory.New()}
}

func (c *countingSweepStorage) Sweep(ctx context.Context, now time.Time, idle time.Duration) (domain.SweepResult, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		cur := c.maxConcurrent.Load()
		if n <= cur || c.maxConcurrent.CompareAndSwap(cur, n) {
			break
		}
	}
	c.sweeps.Add(1)
	return c.Storage.Sweep(ctx, now, idle)
}

type staticSessions struct {
	session domain.Session
	ok      bool
	err     error
	calls   atomic.Int64
}

func (s *staticSessions) Resolve(context.Context) (domain.Session, bool, error) {
	s.calls.Add(1)
	return s.session, s.ok, s.err
}

// countingUsers wraps the memory store and counts lookups.
type countingUsers struct {
	*memory.UserStore
	err     error
	lookups atomic.Int64
}

func (c *countingUsers) FindByID(ctx context.Context, id string) (domain.UserRecord, error) {
	c.lookups.Add(1)
	if c.err != nil {
		return domain.UserRecord{}, c.err
	}
	return c.UserStore.FindByID(ctx, id)
}
