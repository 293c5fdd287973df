package testutil

import (
	"strconv"
	"sync"
	"time"
)

// TestEpoch is a fixed instant used as the starting point of mock clocks.
var TestEpoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// MockTime provides a controllable time source for deterministic testing.
// It is safe for concurrent use.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Unix returns the mock time as a decimal Unix timestamp string, as sent in oauth_timestamp.
func (m *MockTime) Unix() string {
	return formatUnix(m.Now())
}

func formatUnix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
