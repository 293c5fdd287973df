// Package security provides the security plumbing around the OAuth 1.0a flow:
// audit logging, per-client-IP rate limiting, secret encryption at rest,
// response security headers, client IP extraction, request IDs and the clock
// used by all time-dependent checks.
//
// # Rate Limiting
//
// RateLimiter applies a token bucket (golang.org/x/time/rate) per identifier,
// normally the client IP. The number of tracked identifiers is capped; when the
// cap is reached the identifier that was seen least recently is dropped. A
// background loop removes identifiers idle for longer than the idle timeout.
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // answer 429
//	}
//
// # Encryption at Rest
//
// Encryptor seals token secrets and verifiers with AES-256-GCM before they are
// placed in the token store. Keys are either 32 random bytes (base64 encoded
// in configuration) or derived from a passphrase with HKDF-SHA256.
//
// # Audit Logging
//
// Auditor writes one structured "security_audit" record per security relevant
// event. Token values are never logged; events carry a short hash instead.
package security
