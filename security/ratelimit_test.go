package security

import (
	"log/slog"
	"sync"
	"testing"
	"time"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(10, 20, nil)
	defer rl.Stop()

	if rl.burst != 20 {
		t.Errorf("burst = %d, want 20", rl.burst)
	}
	if rl.maxEntries != DefaultMaxLimiterEntries {
		t.Errorf("maxEntries = %d, want %d", rl.maxEntries, DefaultMaxLimiterEntries)
	}
	if rl.logger == nil {
		t.Error("logger should not be nil")
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 3, slog.Default())
	defer rl.Stop()
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	rl.SetClock(clock)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("Allow() request %d should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("Allow() should return false once the burst is spent")
	}

	clock.Advance(time.Second)
	if !rl.Allow("10.0.0.1") {
		t.Error("Allow() should refill one token per second")
	}
}

func TestRateLimiter_SeparateIdentifiers(t *testing.T) {
	rl := NewRateLimiter(1, 1, slog.Default())
	defer rl.Stop()
	rl.SetClock(&stepClock{now: time.Unix(1_700_000_000, 0)})

	if !rl.Allow("a") {
		t.Fatal("first request for a should be allowed")
	}
	if rl.Allow("a") {
		t.Error("second request for a should be limited")
	}
	if !rl.Allow("b") {
		t.Error("b has its own bucket and should be allowed")
	}
}

func TestRateLimiter_EvictsOldest(t *testing.T) {
	rl := NewRateLimiterWithConfig(1, 1, 2, slog.Default())
	defer rl.Stop()
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	rl.SetClock(clock)

	rl.Allow("first")
	clock.Advance(time.Millisecond)
	rl.Allow("second")
	clock.Advance(time.Millisecond)
	rl.Allow("third")

	stats := rl.GetStats()
	if stats.CurrentEntries != 2 {
		t.Errorf("CurrentEntries = %d, want 2", stats.CurrentEntries)
	}
	if stats.TotalEvictions != 1 {
		t.Errorf("TotalEvictions = %d, want 1", stats.TotalEvictions)
	}
	if _, ok := rl.entries["first"]; ok {
		t.Error("least recently seen identifier should have been evicted")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, slog.Default())
	defer rl.Stop()
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	rl.SetClock(clock)

	rl.Allow("idle")
	clock.Advance(time.Hour)
	rl.Allow("active")

	rl.Cleanup(30 * time.Minute)

	stats := rl.GetStats()
	if stats.CurrentEntries != 1 {
		t.Errorf("CurrentEntries = %d, want 1", stats.CurrentEntries)
	}
	if stats.TotalCleanups != 1 {
		t.Errorf("TotalCleanups = %d, want 1", stats.TotalCleanups)
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.Stop()
	rl.Stop()
}
