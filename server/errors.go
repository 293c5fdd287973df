package server

import "errors"

// Validation failures. Each maps to a stable problem code through Problem.
var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrUnknownClient    = errors.New("unknown client")
	ErrReplayOrExpired  = errors.New("replayed or expired request")
	ErrInvalidToken     = errors.New("invalid token")
	ErrBadSignature     = errors.New("bad signature")
	ErrVerifierMismatch = errors.New("verifier mismatch")
)

// Problem codes returned to clients.
const (
	ProblemMalformedRequest = "malformed_request"
	ProblemUnknownClient    = "unknown_client"
	ProblemReplayOrExpired  = "replay_or_expired"
	ProblemInvalidToken     = "invalid_token"
	ProblemBadSignature     = "bad_signature"
	ProblemVerifierMismatch = "verifier_mismatch"
	ProblemServerError      = "server_error"
)

// Problem classifies err into a problem code. Errors that do not wrap one of
// the validation sentinels are internal faults.
func Problem(err error) string {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return ProblemMalformedRequest
	case errors.Is(err, ErrUnknownClient):
		return ProblemUnknownClient
	case errors.Is(err, ErrReplayOrExpired):
		return ProblemReplayOrExpired
	case errors.Is(err, ErrInvalidToken):
		return ProblemInvalidToken
	case errors.Is(err, ErrBadSignature):
		return ProblemBadSignature
	case errors.Is(err, ErrVerifierMismatch):
		return ProblemVerifierMismatch
	}
	return ProblemServerError
}

// IsClientError reports whether err was caused by the request rather than by the server.
func IsClientError(err error) bool {
	return err != nil && Problem(err) != ProblemServerError
}
