// Package redis fornece a implementação de storage baseada em Redis. Contadores
// e bloqueios vivem no Redis com expiração nativa, então todas as instâncias
// compartilham a mesma visão e os limites valem globalmente.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
	"github.com/JeanGrijp/request-guard/internal/core/ports"
)

const (
	defaultKeyPrefix  = "guard:"
	defaultThreatTTL  = time.Hour
	maxViolationsKept = 50
	scanCount         = 500
)

// hitScript increments the window counter and starts the window on the first
// hit, so replace-on-expiry is atomic across instances.
var hitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

type Storage struct {
	client    *redis.Client
	prefix    string
	threatTTL time.Duration
}

var _ ports.Storage = (*Storage)(nil)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	ThreatTTL time.Duration
}

func New(cfg Config) (*Storage, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromClient(client, cfg), nil
}

// NewFromClient wraps an existing client; Addr/Password/DB in cfg are ignored.
func NewFromClient(client *redis.Client, cfg Config) *Storage {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	ttl := cfg.ThreatTTL
	if ttl <= 0 {
		ttl = defaultThreatTTL
	}
	return &Storage{client: client, prefix: prefix, threatTTL: ttl}
}

func (s *Storage) Client() *redis.Client {
	return s.client
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) counterKey(key string) string   { return s.prefix + "rl:" + key }
func (s *Storage) blockKey(ip string) string      { return s.prefix + "block:" + ip }
func (s *Storage) threatKey(ip string) string     { return s.prefix + "threat:" + ip }
func (s *Storage) violationsKey(ip string) string { return s.prefix + "violations:" + ip }

func (s *Storage) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (domain.RateLimitEntry, error) {
	vals, err := hitScript.Run(ctx, s.client, []string{s.counterKey(key)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.RateLimitEntry{}, err
	}
	if len(vals) != 2 {
		return domain.RateLimitEntry{}, fmt.Errorf("unexpected hit script reply: %v", vals)
	}
	return domain.RateLimitEntry{
		Count:   vals[0],
		ResetAt: now.Add(time.Duration(vals[1]) * time.Millisecond),
	}, nil
}

func (s *Storage) Block(ctx context.Context, ip string, until time.Time, now time.Time) error {
	ttl := until.Sub(now)
	if ttl <= 0 {
		return s.client.Del(ctx, s.blockKey(ip)).Err()
	}
	return s.client.Set(ctx, s.blockKey(ip), strconv.FormatInt(until.UnixMilli(), 10), ttl).Err()
}

func (s *Storage) Unblock(ctx context.Context, ip string) error {
	return s.client.Del(ctx, s.blockKey(ip)).Err()
}

func (s *Storage) IsBlocked(ctx context.Context, ip string, _ time.Time) (bool, error) {
	exists, err := s.client.Exists(ctx, s.blockKey(ip)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (s *Storage) RecordViolation(ctx context.Context, ip, reason string, score float64, now time.Time) (domain.ThreatEntry, error) {
	tk, vk := s.threatKey(ip), s.violationsKey(ip)

	pipe := s.client.TxPipeline()
	scoreCmd := pipe.HIncrByFloat(ctx, tk, "score", score)
	pipe.HSet(ctx, tk, "last_seen", now.UnixMilli())
	pipe.RPush(ctx, vk, reason)
	pipe.LTrim(ctx, vk, -maxViolationsKept, -1)
	pipe.Expire(ctx, tk, s.threatTTL)
	pipe.Expire(ctx, vk, s.threatTTL)
	violationsCmd := pipe.LRange(ctx, vk, 0, -1)
	blockCmd := pipe.Get(ctx, s.blockKey(ip))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.ThreatEntry{}, err
	}

	entry := domain.ThreatEntry{
		IP:         ip,
		Score:      scoreCmd.Val(),
		LastSeen:   now,
		Violations: violationsCmd.Val(),
	}
	if until, ok := parseUnixMilli(blockCmd.Val()); ok && now.Before(until) {
		entry.Blocked = true
		entry.BlockedUntil = until
	}
	return entry, nil
}

func (s *Storage) Snapshot(ctx context.Context, now time.Time) (int, []domain.ThreatEntry, error) {
	active, err := s.countKeys(ctx, s.prefix+"rl:*")
	if err != nil {
		return 0, nil, err
	}

	threats := make(map[string]*domain.ThreatEntry)
	get := func(ip string) *domain.ThreatEntry {
		t, ok := threats[ip]
		if !ok {
			t = &domain.ThreatEntry{IP: ip}
			threats[ip] = t
		}
		return t
	}

	err = s.scan(ctx, s.prefix+"threat:*", func(key string) error {
		ip := strings.TrimPrefix(key, s.prefix+"threat:")
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		t := get(ip)
		t.Score, _ = strconv.ParseFloat(fields["score"], 64)
		if seen, ok := parseUnixMilli(fields["last_seen"]); ok {
			t.LastSeen = seen
		}
		violations, err := s.client.LRange(ctx, s.violationsKey(ip), 0, -1).Result()
		if err != nil {
			return err
		}
		t.Violations = violations
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	err = s.scan(ctx, s.prefix+"block:*", func(key string) error {
		ip := strings.TrimPrefix(key, s.prefix+"block:")
		val, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if until, ok := parseUnixMilli(val); ok && now.Before(until) {
			t := get(ip)
			t.Blocked = true
			t.BlockedUntil = until
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	out := make([]domain.ThreatEntry, 0, len(threats))
	for _, t := range threats {
		out = append(out, *t)
	}
	return active, out, nil
}

// Sweep has nothing to do: Redis expiry removes ended windows, elapsed blocks
// and idle threat entries on its own.
func (s *Storage) Sweep(_ context.Context, _ time.Time, _ time.Duration) (domain.SweepResult, error) {
	return domain.SweepResult{}, nil
}

func (s *Storage) countKeys(ctx context.Context, pattern string) (int, error) {
	n := 0
	err := s.scan(ctx, pattern, func(string) error {
		n++
		return nil
	})
	return n, err
}

func (s *Storage) scan(ctx context.Context, pattern string, fn func(key string) error) error {
	iter := s.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	return iter.Err()
}

func parseUnixMilli(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
