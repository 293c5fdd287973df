// Package memory provides in-memory implementations of the storage interfaces.
//
// Store implements storage.TokenStore and ReplayGuard implements
// storage.NonceGuard. Both are safe for concurrent use and keep all state in
// process memory, so they fit single-instance deployments where tokens need
// not survive a restart.
//
// Features:
//   - Mutex-guarded lifecycle transitions with an atomic check-and-consume exchange
//   - Background cleanup of expired request and access tokens
//   - Nonce garbage collection on every accepted request
//   - Token secret and verifier encryption at rest via security.Encryptor
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//	store.RegisterClient(clientKey)
//
//	guard := memory.NewReplayGuard()
package memory
