package oauth1

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/giantswarm/oauth1-oob/server"
)

// Problem codes as returned in oauth_problem.
const (
	ProblemMalformedRequest = server.ProblemMalformedRequest
	ProblemUnknownClient    = server.ProblemUnknownClient
	ProblemReplayOrExpired  = server.ProblemReplayOrExpired
	ProblemInvalidToken     = server.ProblemInvalidToken
	ProblemBadSignature     = server.ProblemBadSignature
	ProblemVerifierMismatch = server.ProblemVerifierMismatch
	ProblemServerError      = server.ProblemServerError
	ProblemRateLimited      = "rate_limited"
)

// Error is a protocol error response.
type Error struct {
	Problem     string // oauth_problem code
	Description string // oauth_problem_advice, safe to show to the client
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Problem, e.Description)
}

// NewError creates a new protocol error
func NewError(problem, description string, status int) *Error {
	return &Error{
		Problem:     problem,
		Description: description,
		Status:      status,
	}
}

var (
	// ErrMalformedRequest indicates missing, duplicated or unsupported parameters
	ErrMalformedRequest = func(desc string) *Error {
		return NewError(ProblemMalformedRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidToken indicates an unknown, expired or wrong-state token
	ErrInvalidToken = func(desc string) *Error {
		return NewError(ProblemInvalidToken, desc, http.StatusUnauthorized)
	}

	// ErrRateLimited indicates the client IP exceeded its request budget
	ErrRateLimited = func(desc string) *Error {
		return NewError(ProblemRateLimited, desc, http.StatusTooManyRequests)
	}

	// ErrServerError indicates an internal server error occurred
	ErrServerError = func(desc string) *Error {
		return NewError(ProblemServerError, desc, http.StatusInternalServerError)
	}
)

// advice is the client-facing text per problem. Internal error detail is
// logged, never returned.
var advice = map[string]string{
	ProblemMalformedRequest: "The request is missing, duplicating or misusing an OAuth parameter",
	ProblemUnknownClient:    "The consumer key is not registered",
	ProblemReplayOrExpired:  "The timestamp is outside the allowed window or the nonce was already used",
	ProblemInvalidToken:     "The token is unknown, expired or not valid for this step",
	ProblemBadSignature:     "The signature does not match",
	ProblemVerifierMismatch: "The verifier does not match",
	ProblemServerError:      "An internal error occurred",
}

// errorFromServer maps an error returned by the server package to a protocol
// error. Malformed requests are 400, other client faults 401, anything else 500.
func errorFromServer(err error) *Error {
	var protoErr *Error
	if errors.As(err, &protoErr) {
		return protoErr
	}

	problem := server.Problem(err)
	status := http.StatusUnauthorized
	switch problem {
	case ProblemMalformedRequest:
		status = http.StatusBadRequest
	case ProblemServerError:
		status = http.StatusInternalServerError
	}
	return NewError(problem, advice[problem], status)
}
