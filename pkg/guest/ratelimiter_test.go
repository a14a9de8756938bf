package guest

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToMax(t *testing.T) {
	l := NewRateLimiter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	window := 60 * time.Second

	for i := 0; i < 5; i++ {
		allowed, _ := l.Allow("10.0.0.5", 5, window, now.Add(time.Duration(i)*time.Second))
		if !allowed {
			t.Fatalf("attempt %d: expected allowed", i+1)
		}
	}

	allowed, retryAfter := l.Allow("10.0.0.5", 5, window, now.Add(5*time.Second))
	if allowed {
		t.Fatal("6th attempt within the window should be rate-limited")
	}
	if retryAfter <= 0 {
		t.Errorf("expected a positive retry-after, got %v", retryAfter)
	}
}

func TestRateLimiterOldestAttemptAgesOut(t *testing.T) {
	l := NewRateLimiter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	window := 60 * time.Second

	for i := 0; i < 5; i++ {
		l.Allow("10.0.0.5", 5, window, now)
	}

	// t = W - 1: the oldest attempt (at t=0) is still inside the window.
	if allowed, _ := l.Allow("10.0.0.5", 5, window, now.Add(window-time.Second)); allowed {
		t.Fatal("expected still rate-limited one second before the window closes")
	}

	// t = W: the oldest attempt has aged out exactly as the window elapses.
	if allowed, _ := l.Allow("10.0.0.5", 5, window, now.Add(window)); !allowed {
		t.Fatal("expected allowed once the oldest attempt ages out of the window")
	}
}

func TestRateLimiterIsolatesByIP(t *testing.T) {
	l := NewRateLimiter()
	now := time.Now().UTC()
	window := time.Minute

	for i := 0; i < 5; i++ {
		l.Allow("10.0.0.5", 5, window, now)
	}
	if allowed, _ := l.Allow("10.0.0.6", 5, window, now); !allowed {
		t.Fatal("a different IP must not share the rate-limited IP's bucket")
	}
}

func TestRateLimiterReset(t *testing.T) {
	l := NewRateLimiter()
	now := time.Now().UTC()
	window := time.Minute

	for i := 0; i < 5; i++ {
		l.Allow("10.0.0.5", 5, window, now)
	}
	l.Reset("10.0.0.5")
	if allowed, _ := l.Allow("10.0.0.5", 5, window, now); !allowed {
		t.Fatal("expected allowed immediately after Reset")
	}
}
