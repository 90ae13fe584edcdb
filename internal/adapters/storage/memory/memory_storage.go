// Package memory fornece implementações em memória local das portas de storage.
// Counters reset on restart and every instance keeps its own view, so with N
// instances the effective limit is N times the configured one.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
	"github.com/JeanGrijp/request-guard/internal/core/ports"
)

type Storage struct {
	mu      sync.Mutex
	limits  map[string]domain.RateLimitEntry
	threats map[string]*domain.ThreatEntry
}

var _ ports.Storage = (*Storage)(nil)

func New() *Storage {
	return &Storage{
		limits:  make(map[string]domain.RateLimitEntry),
		threats: make(map[string]*domain.ThreatEntry),
	}
}

func (s *Storage) Hit(_ context.Context, key string, window time.Duration, now time.Time) (domain.RateLimitEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.limits[key]
	if !ok || entry.Expired(now) {
		entry = domain.RateLimitEntry{Count: 1, ResetAt: now.Add(window)}
	} else {
		entry.Count++
	}
	s.limits[key] = entry
	return entry, nil
}

func (s *Storage) Block(_ context.Context, ip string, until time.Time, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.threat(ip, now)
	t.Blocked = true
	t.BlockedUntil = until
	return nil
}

func (s *Storage) Unblock(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.threats[ip]; ok {
		t.Blocked = false
		t.BlockedUntil = time.Time{}
	}
	return nil
}

func (s *Storage) IsBlocked(_ context.Context, ip string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threats[ip]
	if !ok {
		return false, nil
	}
	return t.BlockedAt(now), nil
}

func (s *Storage) RecordViolation(_ context.Context, ip, reason string, score float64, now time.Time) (domain.ThreatEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.threat(ip, now)
	t.AddViolation(reason, score, now)
	return copyThreat(t), nil
}

func (s *Storage) Snapshot(_ context.Context, now time.Time) (int, []domain.ThreatEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, e := range s.limits {
		if !e.Expired(now) {
			active++
		}
	}

	threats := make([]domain.ThreatEntry, 0, len(s.threats))
	for _, t := range s.threats {
		threats = append(threats, copyThreat(t))
	}
	return active, threats, nil
}

// Sweep drops ended windows, lifts elapsed blocks and forgets threat entries
// that have been idle longer than threatIdle and are not blocked.
func (s *Storage) Sweep(_ context.Context, now time.Time, threatIdle time.Duration) (domain.SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res domain.SweepResult
	for key, e := range s.limits {
		if e.Expired(now) {
			delete(s.limits, key)
			res.ExpiredRateLimits++
		}
	}

	for ip, t := range s.threats {
		if t.Blocked && !now.Before(t.BlockedUntil) {
			t.Blocked = false
			t.BlockedUntil = time.Time{}
			res.Unblocked++
		}
		if !t.Blocked && now.Sub(t.LastSeen) > threatIdle {
			delete(s.threats, ip)
			res.ExpiredThreats++
		}
	}
	return res, nil
}

// threat returns ip's entry, creating it on first sight. Caller holds s.mu.
func (s *Storage) threat(ip string, now time.Time) *domain.ThreatEntry {
	t, ok := s.threats[ip]
	if !ok {
		t = &domain.ThreatEntry{IP: ip, LastSeen: now}
		s.threats[ip] = t
	}
	return t
}

func copyThreat(t *domain.ThreatEntry) domain.ThreatEntry {
	c := *t
	if t.Violations != nil {
		c.Violations = append([]string(nil), t.Violations...)
	}
	return c
}
