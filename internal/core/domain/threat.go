package domain

import (
	"net"
	"sort"
	"strings"
	"time"
)

// ThreatEntry accumulates suspicion for one source IP. Blocked implies
// BlockedUntil is in the future; the sweep clears it once that passes.
type ThreatEntry struct {
	IP           string    `json:"ip"`
	Score        float64   `json:"score"`
	LastSeen     time.Time `json:"last_seen"`
	Blocked      bool      `json:"blocked"`
	BlockedUntil time.Time `json:"blocked_until,omitempty"`
	Violations   []string  `json:"violations,omitempty"`
}

// maxViolations bounds the per-IP violation history.
const maxViolations = 50

func (t *ThreatEntry) AddViolation(reason string, score float64, now time.Time) {
	t.Score += score
	t.LastSeen = now
	t.Violations = append(t.Violations, reason)
	if len(t.Violations) > maxViolations {
		t.Violations = t.Violations[len(t.Violations)-maxViolations:]
	}
}

func (t *ThreatEntry) BlockedAt(now time.Time) bool {
	return t.Blocked && now.Before(t.BlockedUntil)
}

type BlockedIP struct {
	IP           string    `json:"ip"`
	BlockedUntil time.Time `json:"blocked_until"`
}

type ThreatSummary struct {
	IP         string    `json:"ip"`
	Score      float64   `json:"score"`
	Violations int       `json:"violations"`
	LastSeen   time.Time `json:"last_seen"`
}

// SecurityStats is the read-only operational snapshot served to admins.
type SecurityStats struct {
	ActiveRateLimits int             `json:"active_rate_limits"`
	TrackedThreats   int             `json:"tracked_threats"`
	BlockedCount     int             `json:"blocked_count"`
	BlockedIPs       []BlockedIP     `json:"blocked_ips"`
	TopThreats       []ThreatSummary `json:"top_threats"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// topThreatCount is how many entries TopThreats keeps.
const topThreatCount = 10

// NewSecurityStats builds a snapshot from the raw threat entries a storage
// returns. Blocks that have already elapsed at now are not reported.
func NewSecurityStats(activeRateLimits int, threats []ThreatEntry, now time.Time) SecurityStats {
	stats := SecurityStats{
		ActiveRateLimits: activeRateLimits,
		TrackedThreats:   len(threats),
		BlockedIPs:       []BlockedIP{},
		TopThreats:       []ThreatSummary{},
		GeneratedAt:      now,
	}

	for i := range threats {
		t := &threats[i]
		if t.BlockedAt(now) {
			stats.BlockedIPs = append(stats.BlockedIPs, BlockedIP{IP: t.IP, BlockedUntil: t.BlockedUntil})
		}
		if t.Score > 0 {
			stats.TopThreats = append(stats.TopThreats, ThreatSummary{
				IP:         t.IP,
				Score:      t.Score,
				Violations: len(t.Violations),
				LastSeen:   t.LastSeen,
			})
		}
	}
	stats.BlockedCount = len(stats.BlockedIPs)

	sort.Slice(stats.BlockedIPs, func(i, j int) bool {
		return stats.BlockedIPs[i].IP < stats.BlockedIPs[j].IP
	})
	sort.Slice(stats.TopThreats, func(i, j int) bool {
		if stats.TopThreats[i].Score == stats.TopThreats[j].Score {
			return stats.TopThreats[i].IP < stats.TopThreats[j].IP
		}
		return stats.TopThreats[i].Score > stats.TopThreats[j].Score
	})
	if len(stats.TopThreats) > topThreatCount {
		stats.TopThreats = stats.TopThreats[:topThreatCount]
	}
	return stats
}

// SweepResult counts what one cleanup pass removed.
type SweepResult struct {
	ExpiredRateLimits int
	ExpiredThreats    int
	Unblocked         int
}

func (r SweepResult) Empty() bool {
	return r.ExpiredRateLimits == 0 && r.ExpiredThreats == 0 && r.Unblocked == 0
}

// ValidIP is the shape check used before an address reaches the blocklist:
// dotted IPv4 or a hex-colon IPv6 literal.
func ValidIP(ip string) bool {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if strings.Contains(ip, ":") {
		return true
	}
	return parsed.To4() != nil
}

// CanonicalIP returns the canonical text form of ip: lower-case compressed
// IPv6, and dotted IPv4 for IPv4-mapped addresses. ok is false when ip fails
// ValidIP.
func CanonicalIP(ip string) (string, bool) {
	if !ValidIP(ip) {
		return "", false
	}
	return net.ParseIP(strings.TrimSpace(ip)).String(), true
}
