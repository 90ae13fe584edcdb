package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
	"github.com/JeanGrijp/request-guard/internal/core/ports"
)

const (
	DefaultSweepInterval     = 5 * time.Minute
	DefaultThreatIdleTTL     = time.Hour
	DefaultAutoBlockDuration = 15 * time.Minute
)

// ErrSweepInProgress is returned by Sweep when another sweep holds the lock.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Config agrega os limites e as configurações de manutenção do serviço.
type Config struct {
	Rules         map[string]domain.RateLimitRule
	SweepInterval time.Duration
	ThreatIdleTTL time.Duration

	// AutoBlockThreshold turns on automatic blocking once an IP's threat score
	// reaches it. Zero leaves blocking to administrators.
	AutoBlockThreshold float64
	AutoBlockDuration  time.Duration

	Metrics ports.Metrics
	Now     func() time.Time
}

// RateLimiterService implementa a lógica central de rate limiting, a blocklist
// e a limpeza periódica.
type RateLimiterService struct {
	storage ports.Storage
	config  Config
	now     func() time.Time
	metrics ports.Metrics

	sweepMu   sync.Mutex
	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	stopped   chan struct{}
	started   bool
	mu        sync.Mutex
}

var (
	_ ports.RateLimiter    = (*RateLimiterService)(nil)
	_ ports.Blocklist      = (*RateLimiterService)(nil)
	_ ports.ThreatRecorder = (*RateLimiterService)(nil)
)

// NewRateLimiterService cria uma nova instância do serviço.
func NewRateLimiterService(storage ports.Storage, cfg Config) (*RateLimiterService, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	for name, rule := range cfg.Rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
	}
	if cfg.Rules == nil {
		cfg.Rules = make(map[string]domain.RateLimitRule)
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.ThreatIdleTTL <= 0 {
		cfg.ThreatIdleTTL = DefaultThreatIdleTTL
	}
	if cfg.AutoBlockDuration <= 0 {
		cfg.AutoBlockDuration = DefaultAutoBlockDuration
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &RateLimiterService{
		storage: storage,
		config:  cfg,
		now:     now,
		metrics: cfg.Metrics,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Rule returns the named limiter configured for prefix.
func (s *RateLimiterService) Rule(prefix string) (domain.RateLimitRule, error) {
	rule, ok := s.config.Rules[prefix]
	if !ok {
		return domain.RateLimitRule{}, fmt.Errorf("%w: %s", domain.ErrUnknownRule, prefix)
	}
	return rule, nil
}

// Check counts one event for identifier under rule. Exceeding the budget is a
// normal result with Allowed=false, not an error; errors only come from an
// invalid rule or a failing storage.
func (s *RateLimiterService) Check(ctx context.Context, identifier string, rule domain.RateLimitRule) (domain.RateLimitResult, error) {
	if err := rule.Validate(); err != nil {
		return domain.RateLimitResult{}, err
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return domain.RateLimitResult{}, fmt.Errorf("identifier is required")
	}

	now := s.now()
	entry, err := s.storage.Hit(ctx, rule.Key(identifier), rule.Window, now)
	if err != nil {
		return domain.RateLimitResult{}, fmt.Errorf("rate limit %s: %w", rule.Prefix, err)
	}

	result := domain.NewRateLimitResult(rule, entry, now)
	if s.metrics != nil {
		s.metrics.ObserveDecision(rule.Prefix, result.Allowed)
	}
	if !result.Allowed {
		log.Debug().
			Str("prefix", rule.Prefix).
			Str("identifier", identifier).
			Int64("count", entry.Count).
			Int("retry_after", result.RetryAfterSeconds()).
			Msg("rate limit exceeded")
	}
	return result, nil
}

func (s *RateLimiterService) IsBlocked(ctx context.Context, ip string) (bool, error) {
	ip = normalizeIP(ip)
	if ip == "" {
		return false, nil
	}
	return s.storage.IsBlocked(ctx, ip, s.now())
}

// CheckBlocked returns an error wrapping domain.ErrBlocked when ip is on the
// blocklist, and nil when it may proceed.
func (s *RateLimiterService) CheckBlocked(ctx context.Context, ip string) error {
	blocked, err := s.IsBlocked(ctx, ip)
	if err != nil {
		return fmt.Errorf("blocklist lookup %s: %w", ip, err)
	}
	if blocked {
		return fmt.Errorf("%w: %s", domain.ErrBlocked, normalizeIP(ip))
	}
	return nil
}

// BlockIP blocks ip for d and returns the moment the block ends.
func (s *RateLimiterService) BlockIP(ctx context.Context, ip string, d time.Duration) (time.Time, error) {
	canonical, ok := domain.CanonicalIP(ip)
	if !ok {
		return time.Time{}, domain.NewSecurityError(domain.CodeInvalidInput, "invalid ip")
	}
	if d <= 0 {
		return time.Time{}, domain.NewSecurityError(domain.CodeInvalidInput, "block duration must be positive")
	}
	now := s.now()
	until := now.Add(d)
	if err := s.storage.Block(ctx, canonical, until, now); err != nil {
		return time.Time{}, fmt.Errorf("block %s: %w", canonical, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveBlock("block")
	}
	log.Info().Str("ip", canonical).Dur("duration", d).Time("until", until).Msg("ip blocked")
	return until, nil
}

func (s *RateLimiterService) UnblockIP(ctx context.Context, ip string) error {
	canonical, ok := domain.CanonicalIP(ip)
	if !ok {
		return domain.NewSecurityError(domain.CodeInvalidInput, "invalid ip")
	}
	if err := s.storage.Unblock(ctx, canonical); err != nil {
		return fmt.Errorf("unblock %s: %w", canonical, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveBlock("unblock")
	}
	log.Info().Str("ip", canonical).Msg("ip unblocked")
	return nil
}

// RecordViolation adds score to ip's threat entry. When auto-blocking is
// configured and the score crosses the threshold, the ip is blocked.
func (s *RateLimiterService) RecordViolation(ctx context.Context, ip, reason string, score float64) (domain.ThreatEntry, error) {
	ip = normalizeIP(ip)
	if ip == "" {
		return domain.ThreatEntry{}, fmt.Errorf("ip is required")
	}
	now := s.now()
	entry, err := s.storage.RecordViolation(ctx, ip, reason, score, now)
	if err != nil {
		return domain.ThreatEntry{}, fmt.Errorf("record violation for %s: %w", ip, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveViolation(reason)
	}

	if s.config.AutoBlockThreshold > 0 && entry.Score >= s.config.AutoBlockThreshold && !entry.BlockedAt(now) {
		until := now.Add(s.config.AutoBlockDuration)
		if err := s.storage.Block(ctx, ip, until, now); err != nil {
			return entry, fmt.Errorf("auto-block %s: %w", ip, err)
		}
		entry.Blocked = true
		entry.BlockedUntil = until
		if s.metrics != nil {
			s.metrics.ObserveBlock("auto_block")
		}
		log.Warn().
			Str("ip", ip).
			Float64("score", entry.Score).
			Time("until", until).
			Msg("ip auto-blocked")
	}
	return entry, nil
}

func (s *RateLimiterService) Stats(ctx context.Context) (domain.SecurityStats, error) {
	now := s.now()
	active, threats, err := s.storage.Snapshot(ctx, now)
	if err != nil {
		return domain.SecurityStats{}, fmt.Errorf("security stats: %w", err)
	}
	return domain.NewSecurityStats(active, threats, now), nil
}

// Sweep runs one cleanup pass. Only one pass runs at a time; a concurrent
// call returns ErrSweepInProgress without touching storage.
func (s *RateLimiterService) Sweep(ctx context.Context) (domain.SweepResult, error) {
	if !s.sweepMu.TryLock() {
		return domain.SweepResult{}, ErrSweepInProgress
	}
	defer s.sweepMu.Unlock()

	result, err := s.storage.Sweep(ctx, s.now(), s.config.ThreatIdleTTL)
	if err != nil {
		return result, fmt.Errorf("sweep: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveSweep(result)
	}
	if !result.Empty() {
		log.Debug().
			Int("expired_rate_limits", result.ExpiredRateLimits).
			Int("expired_threats", result.ExpiredThreats).
			Int("unblocked", result.Unblocked).
			Msg("security sweep completed")
	}
	return result, nil
}

// Start launches the periodic sweep. Calling it more than once has no effect.
func (s *RateLimiterService) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		go s.sweepLoop(ctx)
	})
}

// Stop ends the sweep loop and waits for it to exit. Safe to call multiple
// times, and before Start.
func (s *RateLimiterService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.stopped
	}
}

func (s *RateLimiterService) sweepLoop(ctx context.Context) {
	defer close(s.stopped)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
				log.Error().Err(err).Msg("security sweep failed")
			}
		}
	}
}

// normalizeIP canonicalizes addresses so that spellings of the same IP share
// one blocklist and threat entry. Anything unparseable is only trimmed.
func normalizeIP(ip string) string {
	if canonical, ok := domain.CanonicalIP(ip); ok {
		return canonical
	}
	return strings.TrimSpace(ip)
}
