package guest

import (
	"sync"
	"time"

	"github.com/tykeal/homeassistant-captive-portal/internal/telemetry"
)

// cleanupInterval is how often stale per-IP buckets are swept from memory
// (spec §4.I.2: "automatic lazy cleanup of stale entries every 5 minutes").
const cleanupInterval = 5 * time.Minute

// RateLimiter enforces a per-IP rolling window, entirely in memory (spec
// §4.I.2 mandates this explicitly, unlike the teacher's Redis-backed login
// limiter — see internal/auth.RateLimiter, whose Check/Record/Reset naming
// this mirrors conceptually even though the storage and the single-call
// Allow shape differ). max and window are passed per-call rather than
// fixed at construction, since both are administrator-tunable at runtime
// via the PortalConfig singleton (pkg/portalconfig).
type RateLimiter struct {
	mu          sync.Mutex
	attempts    map[string][]time.Time
	lastCleanup time.Time
}

// NewRateLimiter creates an in-memory per-IP rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{attempts: make(map[string][]time.Time)}
}

// Allow reports whether an attempt from ip at now fits within a rolling
// window of `window` holding at most `max` attempts, and records the attempt
// only when it is allowed. When it is not, retryAfter is the time until the
// oldest attempt in the window ages out (spec §4.I.2).
func (l *RateLimiter) Allow(ip string, max int, window time.Duration, now time.Time) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanupLocked(now, window)

	cutoff := now.Add(-window)
	times := dropStale(l.attempts[ip], cutoff)

	if len(times) >= max {
		l.attempts[ip] = times
		telemetry.RateLimitRejectionsTotal.Inc()
		return false, times[0].Add(window).Sub(now)
	}

	l.attempts[ip] = append(times, now)
	return true, 0
}

// Reset clears ip's attempt history (used on successful authorization).
func (l *RateLimiter) Reset(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, ip)
}

func dropStale(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// cleanupLocked drops entries with no attempts left in the window, at most
// once per cleanupInterval. Caller must hold l.mu.
func (l *RateLimiter) cleanupLocked(now time.Time, window time.Duration) {
	if now.Sub(l.lastCleanup) < cleanupInterval {
		return
	}
	l.lastCleanup = now

	cutoff := now.Add(-window)
	for ip, times := range l.attempts {
		remaining := dropStale(times, cutoff)
		if len(remaining) == 0 {
			delete(l.attempts, ip)
		} else {
			l.attempts[ip] = remaining
		}
	}
}
