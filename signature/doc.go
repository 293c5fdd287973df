// Package signature implements OAuth 1.0a request signing and verification
// (RFC 5849 section 3).
//
// A Request collects the protocol and request parameters from the
// Authorization header, the form-encoded body and the query string. Engine
// rebuilds the signature base string from a Request and checks the
// oauth_signature against the client and token secrets using HMAC-SHA1,
// HMAC-SHA256, PLAINTEXT or RSA-SHA1.
//
// Client performs the inverse operation for outgoing requests and is used by
// the demo client and by tests.
package signature
