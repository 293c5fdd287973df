// Package oauth1 serves the OAuth 1.0a three-legged flow with out-of-band
// (PIN) verification over HTTP.
//
// A client obtains a request token with a signed POST to /oauth/request_token
// (oauth_callback=oob), sends the resource owner to
// /oauth/authorize?oauth_token=..., where a six digit verifier is shown, and
// exchanges the request token plus verifier for an access token with a signed
// POST to /oauth/access_token. Requests signed with the access token pass the
// ValidateToken middleware.
//
// Handler is a thin adapter: validation and token state live in the server
// and storage packages, signature math in the signature package. Responses
// are application/x-www-form-urlencoded; errors carry oauth_problem and
// oauth_problem_advice.
//
// Process configuration is read from OAUTH1_ environment variables with
// LoadConfig.
package oauth1
