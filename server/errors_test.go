package server

import (
	"errors"
	"fmt"
	"testing"
)

func TestProblem(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: missing oauth_nonce", ErrMalformedRequest), ProblemMalformedRequest},
		{ErrUnknownClient, ProblemUnknownClient},
		{fmt.Errorf("%w: stale", ErrReplayOrExpired), ProblemReplayOrExpired},
		{fmt.Errorf("outer: %w", fmt.Errorf("%w: gone", ErrInvalidToken)), ProblemInvalidToken},
		{ErrBadSignature, ProblemBadSignature},
		{ErrVerifierMismatch, ProblemVerifierMismatch},
		{errors.New("disk on fire"), ProblemServerError},
	}
	for _, tt := range tests {
		if got := Problem(tt.err); got != tt.want {
			t.Errorf("Problem(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestIsClientError(t *testing.T) {
	if IsClientError(nil) {
		t.Error("IsClientError(nil) = true")
	}
	if !IsClientError(ErrBadSignature) {
		t.Error("IsClientError(ErrBadSignature) = false")
	}
	if IsClientError(errors.New("boom")) {
		t.Error("IsClientError(internal) = true")
	}
}
