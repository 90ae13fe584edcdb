// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"
	"time"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
)

// Storage keeps rate-limit windows, threat entries and the blocklist.
// Implementations must make Hit atomic per key: replace the entry when its
// window has ended, otherwise increment it.
type Storage interface {
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (domain.RateLimitEntry, error)
	Block(ctx context.Context, ip string, until time.Time, now time.Time) error
	Unblock(ctx context.Context, ip string) error
	IsBlocked(ctx context.Context, ip string, now time.Time) (bool, error)
	RecordViolation(ctx context.Context, ip, reason string, score float64, now time.Time) (domain.ThreatEntry, error)
	Snapshot(ctx context.Context, now time.Time) (activeRateLimits int, threats []domain.ThreatEntry, err error)
	Sweep(ctx context.Context, now time.Time, threatIdle time.Duration) (domain.SweepResult, error)
}
