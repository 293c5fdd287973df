// Package storage defines the contracts for holding OAuth 1.0a token state
// and for replay detection of timestamp and nonce pairs.
//
//   - TokenStore: owns request and access tokens through their lifecycle
//     (unauthorized, authorized, consumed).
//   - NonceGuard: remembers accepted (timestamp, nonce) pairs and rejects replays.
//
// The package also provides the shared Token model, sentinel errors and helpers
// for encrypting token secrets at rest.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-memory storage for single-instance deployments
package storage
