package ports

import (
	"context"
	"time"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
)

type RateLimiter interface {
	Check(ctx context.Context, identifier string, rule domain.RateLimitRule) (domain.RateLimitResult, error)
	IsBlocked(ctx context.Context, ip string) (bool, error)
	// CheckBlocked returns an error wrapping domain.ErrBlocked for blocked IPs.
	CheckBlocked(ctx context.Context, ip string) error
}

// Blocklist is the administrative surface of the limiter.
type Blocklist interface {
	BlockIP(ctx context.Context, ip string, d time.Duration) (time.Time, error)
	UnblockIP(ctx context.Context, ip string) error
	Stats(ctx context.Context) (domain.SecurityStats, error)
}

type ThreatRecorder interface {
	RecordViolation(ctx context.Context, ip, reason string, score float64) (domain.ThreatEntry, error)
}
