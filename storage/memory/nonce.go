package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/oauth1-oob/instrumentation"
	"github.com/giantswarm/oauth1-oob/security"
	"github.com/giantswarm/oauth1-oob/storage"
)

const (
	// DefaultNonceWindow is the maximum allowed distance between a request
	// timestamp and the server clock.
	DefaultNonceWindow = 300 * time.Second

	// DefaultNonceRetention is how long past its timestamp a pair is kept.
	// It must not be shorter than the window, or a pair could be purged while
	// a replay of it would still pass the timestamp check.
	DefaultNonceRetention = 350 * time.Second
)

type nonceKey struct {
	timestamp int64
	nonce     string
}

// ReplayGuard is an in-memory implementation of storage.NonceGuard.
// Stale pairs are purged on each successful Accept; there is no background timer.
type ReplayGuard struct {
	mu   sync.Mutex
	seen map[nonceKey]struct{}

	window    int64 // seconds
	retention int64 // seconds

	clock           security.Clock
	logger          *slog.Logger
	instrumentation *instrumentation.Instrumentation

	size atomic.Int64
}

var _ storage.NonceGuard = (*ReplayGuard)(nil)

// NewReplayGuard creates a guard with the default 300s window and 350s retention.
func NewReplayGuard() *ReplayGuard {
	g, _ := NewReplayGuardWithWindow(DefaultNonceWindow, DefaultNonceRetention)
	return g
}

// NewReplayGuardWithWindow creates a guard with a custom window and retention.
// Both are truncated to whole seconds; retention must be at least the window.
func NewReplayGuardWithWindow(window, retention time.Duration) (*ReplayGuard, error) {
	if err := validateWindow(window, retention); err != nil {
		return nil, err
	}

	return &ReplayGuard{
		seen:      make(map[nonceKey]struct{}),
		window:    int64(window / time.Second),
		retention: int64(retention / time.Second),
		clock:     security.SystemClock{},
		logger:    slog.Default(),
	}, nil
}

func validateWindow(window, retention time.Duration) error {
	if window < time.Second {
		return fmt.Errorf("nonce window must be at least one second, got %s", window)
	}
	if retention < window {
		return fmt.Errorf("nonce retention (%s) must not be shorter than the window (%s)", retention, window)
	}
	return nil
}

// SetWindow changes the window and retention. Pairs already recorded are kept
// until the new retention purges them.
func (g *ReplayGuard) SetWindow(window, retention time.Duration) error {
	if err := validateWindow(window, retention); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.window = int64(window / time.Second)
	g.retention = int64(retention / time.Second)
	return nil
}

// SetClock replaces the clock used as "now".
func (g *ReplayGuard) SetClock(clock security.Clock) {
	if clock == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clock = clock
}

// SetLogger sets a custom logger
func (g *ReplayGuard) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logger = logger
}

// SetInstrumentation enables replay metrics and the nonce cache size gauge.
func (g *ReplayGuard) SetInstrumentation(inst *instrumentation.Instrumentation) {
	g.mu.Lock()
	g.instrumentation = inst
	g.mu.Unlock()

	if inst != nil {
		if err := inst.RegisterStorageSizeCallbacks(nil, nil, func() int64 { return g.size.Load() }); err != nil {
			g.logger.Warn("Failed to register nonce cache size callback", "error", err)
		}
	}
}

// Len returns the number of retained pairs.
func (g *ReplayGuard) Len() int {
	return int(g.size.Load())
}

// Check reports whether the pair would be accepted now, without recording it.
func (g *ReplayGuard) Check(timestamp, nonce string) error {
	key, err := parseNonceKey(timestamp, nonce)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checkLocked(key, g.clock.Now().Unix())
}

// Accept records the pair and reports true if it is well-formed, inside the
// window and not seen before. On success, pairs older than the retention
// period are purged.
func (g *ReplayGuard) Accept(timestamp, nonce string) bool {
	key, err := parseNonceKey(timestamp, nonce)
	if err != nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now().Unix()
	if err := g.checkLocked(key, now); err != nil {
		return false
	}

	g.seen[key] = struct{}{}
	g.purgeLocked(now)
	g.size.Store(int64(len(g.seen)))
	return true
}

func (g *ReplayGuard) checkLocked(key nonceKey, now int64) error {
	// compared this way round so extreme timestamps cannot overflow
	if key.timestamp < now-g.window || key.timestamp > now+g.window {
		return fmt.Errorf("%w: %d", storage.ErrTimestampOutOfWindow, key.timestamp)
	}

	if _, replay := g.seen[key]; replay {
		if g.instrumentation != nil {
			g.instrumentation.Metrics().RecordNonceReplay(context.Background())
		}
		g.logger.Debug("Replayed nonce rejected", "timestamp", key.timestamp)
		return storage.ErrNonceReplayed
	}
	return nil
}

// purgeLocked drops pairs whose timestamp is more than retention seconds before now.
func (g *ReplayGuard) purgeLocked(now int64) {
	for key := range g.seen {
		if key.timestamp < now-g.retention {
			delete(g.seen, key)
		}
	}
}

func parseNonceKey(timestamp, nonce string) (nonceKey, error) {
	if nonce == "" {
		return nonceKey{}, storage.ErrNonceEmpty
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nonceKey{}, fmt.Errorf("%w: %q", storage.ErrTimestampUnparseable, timestamp)
	}
	return nonceKey{timestamp: ts, nonce: nonce}, nil
}
