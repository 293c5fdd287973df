package signature

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Protocol parameter names.
const (
	ParamConsumerKey     = "oauth_consumer_key"
	ParamToken           = "oauth_token"
	ParamSignatureMethod = "oauth_signature_method"
	ParamSignature       = "oauth_signature"
	ParamTimestamp       = "oauth_timestamp"
	ParamNonce           = "oauth_nonce"
	ParamVersion         = "oauth_version"
	ParamCallback        = "oauth_callback"
	ParamVerifier        = "oauth_verifier"

	// Version is the only protocol version accepted.
	Version = "1.0"

	// CallbackOOB is the callback value for out-of-band flows.
	CallbackOOB = "oob"

	oauthParamPrefix = "oauth_"
	headerScheme     = "OAuth"
	formContentType  = "application/x-www-form-urlencoded"
)

// ErrMalformed is returned when request parameters cannot be parsed.
var ErrMalformed = errors.New("malformed oauth parameters")

// Param is a single decoded name/value pair.
type Param struct {
	Key   string
	Value string
}

// Request is the wire-level view of a signed request: the pieces that feed
// the signature base string, kept apart by source.
type Request struct {
	Method string
	// BaseURL is the base string URI: scheme://host[:port]/path with no query.
	BaseURL string

	Header []Param // Authorization header, realm excluded
	Body   []Param // form-encoded body
	Query  []Param // URL query
}

// FromHTTP collects the parameters of r. baseURL is the externally visible
// URL of the endpoint (see BaseURL); the transport decides its scheme.
func FromHTTP(r *http.Request, baseURL string) (*Request, error) {
	req := &Request{
		Method:  strings.ToUpper(r.Method),
		BaseURL: baseURL,
	}

	if auth := r.Header.Get("Authorization"); auth != "" {
		params, isOAuth, err := ParseAuthorizationHeader(auth)
		if err != nil {
			return nil, err
		}
		if isOAuth {
			req.Header = params
		}
	}

	query, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrMalformed, err)
	}
	req.Query = flatten(query)

	if hasFormBody(r) {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: body: %v", ErrMalformed, err)
		}
		req.Body = flatten(r.PostForm)
	}

	return req, nil
}

func hasFormBody(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return false
	}
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && ct == formContentType
}

func flatten(values url.Values) []Param {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var params []Param
	for _, k := range keys {
		for _, v := range values[k] {
			params = append(params, Param{Key: k, Value: v})
		}
	}
	return params
}

// ParseAuthorizationHeader parses an "OAuth" Authorization header value.
// isOAuth is false for other schemes. The realm parameter is dropped.
func ParseAuthorizationHeader(value string) (params []Param, isOAuth bool, err error) {
	scheme, rest, _ := strings.Cut(strings.TrimSpace(value), " ")
	if !strings.EqualFold(scheme, headerScheme) {
		return nil, false, nil
	}

	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		rawKey, rawValue, found := strings.Cut(part, "=")
		if !found {
			return nil, true, fmt.Errorf("%w: header parameter %q has no value", ErrMalformed, rawKey)
		}
		rawValue = strings.TrimSpace(rawValue)
		if len(rawValue) < 2 || rawValue[0] != '"' || rawValue[len(rawValue)-1] != '"' {
			return nil, true, fmt.Errorf("%w: header parameter %q is not quoted", ErrMalformed, rawKey)
		}

		key, err := Decode(strings.TrimSpace(rawKey))
		if err != nil {
			return nil, true, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if strings.EqualFold(key, "realm") {
			continue
		}
		val, err := Decode(rawValue[1 : len(rawValue)-1])
		if err != nil {
			return nil, true, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		params = append(params, Param{Key: key, Value: val})
	}

	return params, true, nil
}

// All returns every parameter from every source.
func (r *Request) All() []Param {
	all := make([]Param, 0, len(r.Header)+len(r.Body)+len(r.Query))
	all = append(all, r.Header...)
	all = append(all, r.Body...)
	all = append(all, r.Query...)
	return all
}

// Values returns every value of name across all sources.
func (r *Request) Values(name string) []string {
	var out []string
	for _, p := range r.All() {
		if p.Key == name {
			out = append(out, p.Value)
		}
	}
	return out
}

// Get returns the first value of name, preferring the header, then the body,
// then the query.
func (r *Request) Get(name string) string {
	for _, p := range r.All() {
		if p.Key == name {
			return p.Value
		}
	}
	return ""
}

// Has reports whether name appears in any source.
func (r *Request) Has(name string) bool {
	for _, p := range r.All() {
		if p.Key == name {
			return true
		}
	}
	return false
}

// DuplicateProtocolParams lists oauth_* parameters that appear more than once.
func (r *Request) DuplicateProtocolParams() []string {
	seen := make(map[string]int)
	for _, p := range r.All() {
		if strings.HasPrefix(p.Key, oauthParamPrefix) {
			seen[p.Key]++
		}
	}

	var dups []string
	for k, n := range seen {
		if n > 1 {
			dups = append(dups, k)
		}
	}
	sort.Strings(dups)
	return dups
}

// BaseURL builds the base string URI (RFC 5849 section 3.4.1.2): scheme and
// host are lowercased, default ports are dropped and an empty path becomes "/".
func BaseURL(scheme, host, path string) string {
	scheme = strings.ToLower(scheme)
	host = strings.ToLower(host)

	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}

	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}
