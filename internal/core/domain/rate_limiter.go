// Package domain concentra entidades e estruturas centrais do request guard.
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// RateLimitRule names a limiter and its budget. Two rules with different
// prefixes never share counters, even for the same identifier.
type RateLimitRule struct {
	Prefix   string
	Requests int
	Window   time.Duration
}

func (r RateLimitRule) Validate() error {
	if strings.TrimSpace(r.Prefix) == "" {
		return fmt.Errorf("%w: prefix is required", ErrInvalidRule)
	}
	if r.Requests <= 0 {
		return fmt.Errorf("%w: %s requests must be positive", ErrInvalidRule, r.Prefix)
	}
	if r.Window <= 0 {
		return fmt.Errorf("%w: %s window must be positive", ErrInvalidRule, r.Prefix)
	}
	return nil
}

// Key returns the storage key for identifier under this rule.
func (r RateLimitRule) Key(identifier string) string {
	return r.Prefix + ":" + identifier
}

// RateLimitEntry is one caller's usage inside the current window.
type RateLimitEntry struct {
	Count   int64
	ResetAt time.Time
}

// Expired reports whether the window has ended. An expired entry is replaced,
// never incremented.
func (e RateLimitEntry) Expired(now time.Time) bool {
	return !now.Before(e.ResetAt)
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// NewRateLimitResult derives the decision for entry as returned by a storage Hit.
func NewRateLimitResult(rule RateLimitRule, entry RateLimitEntry, now time.Time) RateLimitResult {
	res := RateLimitResult{
		Limit:   rule.Requests,
		ResetAt: entry.ResetAt,
	}
	if entry.Count > int64(rule.Requests) {
		res.RetryAfter = entry.ResetAt.Sub(now)
		if res.RetryAfter < 0 {
			res.RetryAfter = 0
		}
		return res
	}
	res.Allowed = true
	res.Remaining = rule.Requests - int(entry.Count)
	return res
}

// RetryAfterSeconds rounds the remaining wait up to whole seconds.
func (r RateLimitResult) RetryAfterSeconds() int {
	if r.Allowed || r.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

func (r RateLimitResult) Message() string {
	if r.Allowed {
		return ""
	}
	secs := r.RetryAfterSeconds()
	if secs <= 60 {
		return fmt.Sprintf("Too many requests. Please try again in %d seconds.", secs)
	}
	return fmt.Sprintf("Too many requests. Please try again in %d minutes.", int(math.Ceil(float64(secs)/60)))
}
