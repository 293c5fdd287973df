// Package server implements the OAuth 1.0a authorization core: the
// per-request validator and the three steps of the out-of-band flow.
//
// The Server type coordinates:
//   - Token lifecycle (storage.TokenStore)
//   - Replay detection (storage.NonceGuard)
//   - Signature checks (signature.Verifier)
//   - Security auditing and metrics (security, instrumentation packages)
//
// A flow moves a request token from created, through awaiting authorization
// and authorized, to exchanged. Every signed step is checked in a fixed
// order and a failed check leaves no trace in the nonce cache or the token
// store, except that a request token whose verifier was already confirmed
// is burned when the exchange fails afterwards.
//
// Example usage:
//
//	store := memory.New()
//	store.RegisterClient(clientKey)
//
//	srv, err := server.New(store, memory.NewReplayGuard(), signature.NewEngine(),
//	    &server.Config{ClientKey: clientKey, ClientSecret: clientSecret}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server
