package signature

import (
	"bytes"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Client signs outgoing requests with the consumer credentials.
type Client struct {
	ConsumerKey    string
	ConsumerSecret string

	// Method defaults to HMAC-SHA1.
	Method string
	// PrivateKey is required for RSA-SHA1.
	PrivateKey *rsa.PrivateKey

	// Now and Nonce default to the wall clock and a random string.
	Now   func() time.Time
	Nonce func() string
}

// Sign sets the OAuth Authorization header on r. token and tokenSecret may be
// empty for the request-token step. extra holds additional protocol
// parameters such as oauth_callback or oauth_verifier.
//
// Form bodies are read to include their parameters and then restored.
func (c *Client) Sign(r *http.Request, token, tokenSecret string, extra map[string]string) error {
	method := c.Method
	if method == "" {
		method = MethodHMACSHA1
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	nonce := oauth2.GenerateVerifier
	if c.Nonce != nil {
		nonce = c.Nonce
	}

	oauthParams := map[string]string{
		ParamConsumerKey:     c.ConsumerKey,
		ParamSignatureMethod: method,
		ParamTimestamp:       strconv.FormatInt(now().Unix(), 10),
		ParamNonce:           nonce(),
		ParamVersion:         Version,
	}
	if token != "" {
		oauthParams[ParamToken] = token
	}
	for k, v := range extra {
		oauthParams[k] = v
	}

	scheme, host := r.URL.Scheme, r.URL.Host
	if scheme == "" {
		scheme = "http"
	}
	if host == "" {
		host = r.Host
	}
	req := &Request{
		Method:  r.Method,
		BaseURL: BaseURL(scheme, host, r.URL.EscapedPath()),
	}
	for k, v := range oauthParams {
		req.Header = append(req.Header, Param{Key: k, Value: v})
	}

	query, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return fmt.Errorf("failed to parse query: %w", err)
	}
	req.Query = flatten(query)

	if hasFormBody(r) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return fmt.Errorf("failed to parse body: %w", err)
		}
		req.Body = flatten(form)
	}

	sig, err := Sign(method, BaseString(req), c.ConsumerSecret, tokenSecret, c.PrivateKey)
	if err != nil {
		return err
	}
	oauthParams[ParamSignature] = sig

	r.Header.Set("Authorization", AuthorizationHeader(oauthParams))
	return nil
}

// AuthorizationHeader formats protocol parameters as an OAuth Authorization
// header value with parameters in name order.
func AuthorizationHeader(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, Encode(k), Encode(params[k])))
	}
	return headerScheme + " " + strings.Join(parts, ", ")
}
