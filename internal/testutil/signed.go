package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/giantswarm/oauth1-oob/signature"
)

// Credentials of the client registered in tests.
const (
	ClientKey    = "ClientKeyMustBeLongEnough00001"
	ClientSecret = "ClientSecretMustBeLongEnough01"
)

var nonceCounter atomic.Int64

// NewClient returns an HMAC-SHA1 signing client whose timestamps follow clock
// and whose nonces are unique within the test binary.
func NewClient(clock *MockTime) *signature.Client {
	return &signature.Client{
		ConsumerKey:    ClientKey,
		ConsumerSecret: ClientSecret,
		Method:         signature.MethodHMACSHA1,
		Now:            clock.Now,
		Nonce: func() string {
			return "nonce-" + strconv.FormatInt(nonceCounter.Add(1), 10)
		},
	}
}

// SignedHTTPRequest builds a POST to target signed by c. A non-empty body is
// sent as a form.
func SignedHTTPRequest(t testing.TB, c *signature.Client, target, body, token, tokenSecret string, extra map[string]string) *http.Request {
	t.Helper()

	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		r = httptest.NewRequest(http.MethodPost, target, nil)
	}
	if err := c.Sign(r, token, tokenSecret, extra); err != nil {
		t.Fatalf("failed to sign request: %v", err)
	}
	return r
}

// SignedRequest is SignedHTTPRequest parsed into its protocol parameters, as
// the transport would hand it to the server.
func SignedRequest(t testing.TB, c *signature.Client, target, token, tokenSecret string, extra map[string]string) *signature.Request {
	t.Helper()
	return Parse(t, SignedHTTPRequest(t, c, target, "", token, tokenSecret, extra))
}

// Parse collects the protocol parameters of r using its own scheme and host.
func Parse(t testing.TB, r *http.Request) *signature.Request {
	t.Helper()

	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "http"
	}
	req, err := signature.FromHTTP(r, signature.BaseURL(scheme, r.Host, r.URL.EscapedPath()))
	if err != nil {
		t.Fatalf("failed to parse request: %v", err)
	}
	return req
}
