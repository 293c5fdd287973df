package security

import "time"

// Clock abstracts wall-clock time so timestamp windows, nonce retention and
// token expiry can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// IsExpired reports whether expiresAt lies in the past relative to now.
// A zero expiresAt never expires.
func IsExpired(now, expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt)
}

// WithinWindow reports whether the absolute distance between ts and now is at most window.
func WithinWindow(now, ts time.Time, window time.Duration) bool {
	d := now.Sub(ts)
	if d < 0 {
		d = -d
	}
	return d <= window
}
