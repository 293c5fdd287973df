package security

// Event type constants for security audit logging.
const (
	// Token lifecycle events

	// EventRequestTokenIssued is logged when a request token is issued to the client
	EventRequestTokenIssued = "request_token_issued" //nolint:gosec // G101: event type name, not a credential

	// EventRequestTokenAuthorized is logged when the resource owner authorizes a request token
	EventRequestTokenAuthorized = "request_token_authorized" //nolint:gosec // G101: event type name, not a credential

	// EventRequestTokenReauthorized is logged when an already authorized request token
	// receives a new verifier (only possible when re-authorization is enabled)
	EventRequestTokenReauthorized = "request_token_reauthorized" //nolint:gosec // G101: event type name, not a credential

	// EventAccessTokenIssued is logged when a request token is exchanged for an access token
	EventAccessTokenIssued = "access_token_issued" //nolint:gosec // G101: event type name, not a credential

	// EventTokenInvalidated is logged when a request token is burned after a failed exchange
	EventTokenInvalidated = "token_invalidated" //nolint:gosec // G101: event type name, not a credential

	// EventTokensExpired is logged when the cleanup loop evicts stale tokens
	EventTokensExpired = "tokens_expired" //nolint:gosec // G101: event type name, not a credential

	// Security violation events

	// EventAuthFailure is logged when a signed request fails validation
	EventAuthFailure = "auth_failure"

	// EventNonceReplayDetected is logged when a timestamp/nonce pair is presented twice
	EventNonceReplayDetected = "nonce_replay_detected"

	// EventVerifierMismatch is logged when an exchange carries the wrong verifier
	EventVerifierMismatch = "verifier_mismatch"

	// EventAuthorizationRejected is logged when the authorize step is called for an
	// unknown, consumed or already authorized token
	EventAuthorizationRejected = "authorization_rejected"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventInternalError is logged when a handler recovers from an unexpected fault
	EventInternalError = "internal_error"
)
