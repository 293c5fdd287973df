package security

import (
	"testing"
	"time"
)

func TestIsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	if IsExpired(now, time.Time{}) {
		t.Error("zero expiry must never expire")
	}
	if IsExpired(now, now) {
		t.Error("expiry equal to now is not yet expired")
	}
	if !IsExpired(now, now.Add(-time.Second)) {
		t.Error("past expiry should be expired")
	}
}

func TestWithinWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	window := 300 * time.Second

	tests := []struct {
		offset time.Duration
		want   bool
	}{
		{0, true},
		{300 * time.Second, true},
		{-300 * time.Second, true},
		{301 * time.Second, false},
		{-301 * time.Second, false},
	}
	for _, tt := range tests {
		if got := WithinWindow(now, now.Add(tt.offset), window); got != tt.want {
			t.Errorf("WithinWindow(offset %v) = %v, want %v", tt.offset, got, tt.want)
		}
	}
}
