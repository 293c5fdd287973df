package security

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMaxLimiterEntries caps the number of identifiers tracked at once.
	DefaultMaxLimiterEntries = 10000

	defaultLimiterCleanupInterval = 5 * time.Minute
	defaultLimiterIdleTimeout     = 30 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides per-identifier token bucket rate limiting.
// Idle identifiers are swept periodically, and when maxEntries is reached the
// least recently seen identifier is dropped to make room.
type RateLimiter struct {
	mu         sync.Mutex
	entries    map[string]*limiterEntry
	rate       rate.Limit
	burst      int
	maxEntries int
	clock      Clock
	logger     *slog.Logger

	idleTimeout time.Duration
	stop        chan struct{}
	stopOnce    sync.Once

	evictions int64
	cleanups  int64
}

// NewRateLimiter creates a rate limiter allowing requestsPerSecond with the given burst,
// tracking at most DefaultMaxLimiterEntries identifiers.
func NewRateLimiter(requestsPerSecond, burst int, logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(requestsPerSecond, burst, DefaultMaxLimiterEntries, logger)
}

// NewRateLimiterWithConfig creates a rate limiter with a custom identifier cap.
// maxEntries of 0 means unlimited; negative values fall back to the default.
func NewRateLimiterWithConfig(requestsPerSecond, burst, maxEntries int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxEntries < 0 {
		logger.Warn("Invalid maxEntries, using default", "max_entries", maxEntries)
		maxEntries = DefaultMaxLimiterEntries
	}

	rl := &RateLimiter{
		entries:     make(map[string]*limiterEntry),
		rate:        rate.Limit(requestsPerSecond),
		burst:       burst,
		maxEntries:  maxEntries,
		clock:       SystemClock{},
		logger:      logger,
		idleTimeout: defaultLimiterIdleTimeout,
		stop:        make(chan struct{}),
	}

	go rl.cleanupLoop(defaultLimiterCleanupInterval)

	return rl
}

// SetClock replaces the clock used for bucket refills and idle tracking.
func (rl *RateLimiter) SetClock(clock Clock) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if clock != nil {
		rl.clock = clock
	}
}

// Allow reports whether a request from identifier may proceed now.
func (rl *RateLimiter) Allow(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()

	entry, ok := rl.entries[identifier]
	if !ok {
		if rl.maxEntries > 0 && len(rl.entries) >= rl.maxEntries {
			rl.evictOldestLocked()
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.entries[identifier] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// evictOldestLocked drops the least recently seen identifier. Caller must hold mu.
func (rl *RateLimiter) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, e := range rl.entries {
		if oldestID == "" || e.lastSeen.Before(oldest) {
			oldestID, oldest = id, e.lastSeen
		}
	}
	if oldestID == "" {
		return
	}

	delete(rl.entries, oldestID)
	rl.evictions++
	rl.logger.Debug("Rate limiter eviction",
		"total_evictions", rl.evictions,
		"current_entries", len(rl.entries))
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(rl.idleTimeout)
		case <-rl.stop:
			return
		}
	}
}

// Cleanup removes identifiers that have been idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	removed := 0
	for id, e := range rl.entries {
		if now.Sub(e.lastSeen) > maxIdle {
			delete(rl.entries, id)
			removed++
		}
	}

	if removed > 0 {
		rl.cleanups++
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.entries))
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Stats holds rate limiter statistics for monitoring
type Stats struct {
	CurrentEntries int
	MaxEntries     int
	TotalEvictions int64
	TotalCleanups  int64
}

// GetStats returns current rate limiter statistics.
func (rl *RateLimiter) GetStats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return Stats{
		CurrentEntries: len(rl.entries),
		MaxEntries:     rl.maxEntries,
		TotalEvictions: rl.evictions,
		TotalCleanups:  rl.cleanups,
	}
}
