package signature

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := map[string]string{
		"abcABC123-._~": "abcABC123-._~",
		"a b":           "a%20b",
		"a+b":           "a%2Bb",
		"=%3D":          "%3D%253D",
		"c@":            "c%40",
		"ü":             "%C3%BC",
		"":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Encode(in), "Encode(%q)", in)
	}
}

func TestDecode(t *testing.T) {
	got, err := Decode("a%20b%2Bc+d")
	require.NoError(t, err)
	assert.Equal(t, "a b+c+d", got)

	_, err = Decode("bad%2")
	assert.Error(t, err)
	_, err = Decode("bad%zz")
	assert.Error(t, err)
}

func TestParseAuthorizationHeader(t *testing.T) {
	params, isOAuth, err := ParseAuthorizationHeader(
		`OAuth realm="Example", oauth_consumer_key="9djdj82h48djs9d2", oauth_signature="bYT5CMsGcbgUdFHObYMEfcx6bsw%3D"`)
	require.NoError(t, err)
	assert.True(t, isOAuth)
	assert.Equal(t, []Param{
		{Key: "oauth_consumer_key", Value: "9djdj82h48djs9d2"},
		{Key: "oauth_signature", Value: "bYT5CMsGcbgUdFHObYMEfcx6bsw="},
	}, params)

	_, isOAuth, err = ParseAuthorizationHeader("Bearer abc")
	require.NoError(t, err)
	assert.False(t, isOAuth)

	_, _, err = ParseAuthorizationHeader(`OAuth oauth_nonce=unquoted`)
	assert.ErrorIs(t, err, ErrMalformed)

	_, _, err = ParseAuthorizationHeader(`OAuth oauth_nonce`)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://example.com/r%20v/X", BaseURL("HTTP", "EXAMPLE.COM:80", "/r%20v/X"))
	assert.Equal(t, "https://www.example.net:8080/", BaseURL("https", "www.example.net:8080", "/"))
	assert.Equal(t, "https://example.com/", BaseURL("https", "example.com:443", ""))
}

// Example from RFC 5849 section 3.4.1.1.
func TestBaseString_RFC5849(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost,
		"http://example.com/request?b5=%3D%253D&a3=a&c%40=&a2=r%20b",
		strings.NewReader("c2&a3=2+q"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("Authorization", `OAuth realm="Example", oauth_consumer_key="9djdj82h48djs9d2", `+
		`oauth_token="kkk9d7dh3k39sjv7", oauth_signature_method="HMAC-SHA1", `+
		`oauth_timestamp="137131201", oauth_nonce="7d8f3e4a", oauth_signature="bYT5CMsGcbgUdFHObYMEfcx6bsw%3D"`)

	req, err := FromHTTP(r, BaseURL("http", r.Host, r.URL.EscapedPath()))
	require.NoError(t, err)

	want := "POST&http%3A%2F%2Fexample.com%2Frequest&a2%3Dr%2520b%26a3%3D2%2520q" +
		"%26a3%3Da%26b5%3D%253D%25253D%26c%2540%3D%26c2%3D%26oauth_consumer_key%3D9dj" +
		"dj82h48djs9d2%26oauth_nonce%3D7d8f3e4a%26oauth_signature_method%3DHMAC-SHA1" +
		"%26oauth_timestamp%3D137131201%26oauth_token%3Dkkk9d7dh3k39sjv7"
	assert.Equal(t, want, BaseString(req))
}

// Worked example from OAuth Core 1.0, appendix A.5.
func TestSign_HMACSHA1_KnownVector(t *testing.T) {
	req := &Request{
		Method:  "GET",
		BaseURL: "http://photos.example.net/photos",
		Query: []Param{
			{Key: "file", Value: "vacation.jpg"},
			{Key: "size", Value: "original"},
		},
		Header: []Param{
			{Key: ParamConsumerKey, Value: "dpf43f3p2l4k3l03"},
			{Key: ParamToken, Value: "nnch734d00sl2jdk"},
			{Key: ParamSignatureMethod, Value: MethodHMACSHA1},
			{Key: ParamTimestamp, Value: "1191242096"},
			{Key: ParamNonce, Value: "kllo9940pd9333jh"},
			{Key: ParamVersion, Value: "1.0"},
		},
	}

	base := BaseString(req)
	assert.Equal(t, "GET&http%3A%2F%2Fphotos.example.net%2Fphotos&file%3Dvacation.jpg"+
		"%26oauth_consumer_key%3Ddpf43f3p2l4k3l03%26oauth_nonce%3Dkllo9940pd9333jh"+
		"%26oauth_signature_method%3DHMAC-SHA1%26oauth_timestamp%3D1191242096"+
		"%26oauth_token%3Dnnch734d00sl2jdk%26oauth_version%3D1.0%26size%3Doriginal", base)

	sig, err := Sign(MethodHMACSHA1, base, "kd94hf93k423kf44", "pfkkdhi9sl3r4s00", nil)
	require.NoError(t, err)
	assert.Equal(t, "tR3+Ty81lMeYAr/Fid0kMTYa/WM=", sig)

	req.Header = append(req.Header, Param{Key: ParamSignature, Value: sig})
	assert.True(t, NewEngine().Verify(req, "kd94hf93k423kf44", "pfkkdhi9sl3r4s00"))
	assert.False(t, NewEngine().Verify(req, "kd94hf93k423kf44", "wrong"))
}

func TestSign_Plaintext(t *testing.T) {
	sig, err := Sign(MethodPlaintext, "ignored", "djr9rjt0jd78jf88", "jjd99$tj88uiths3", nil)
	require.NoError(t, err)
	assert.Equal(t, "djr9rjt0jd78jf88&jjd99%24tj88uiths3", sig)

	sig, err = Sign(MethodPlaintext, "ignored", "secret", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "secret&", sig)
}

func TestSign_Unsupported(t *testing.T) {
	_, err := Sign("MD5", "base", "a", "b", nil)
	assert.ErrorIs(t, err, ErrUnsupportedMethod)

	_, err = Sign(MethodRSASHA1, "base", "a", "b", nil)
	assert.Error(t, err)
}

func TestEngine_Supports(t *testing.T) {
	e := NewEngine()
	assert.True(t, e.Supports(MethodHMACSHA1))
	assert.True(t, e.Supports(MethodHMACSHA256))
	assert.True(t, e.Supports(MethodPlaintext))
	assert.False(t, e.Supports(MethodRSASHA1), "RSA needs a public key")
	assert.False(t, e.Supports("HMAC-MD5"))

	e.Disable(MethodPlaintext)
	assert.False(t, e.Supports(MethodPlaintext))
}

func signedRequest(t *testing.T, c *Client, target, body, token, tokenSecret string, extra map[string]string) *http.Request {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		r = httptest.NewRequest(http.MethodPost, target, nil)
	}
	require.NoError(t, c.Sign(r, token, tokenSecret, extra))
	return r
}

func parse(t *testing.T, r *http.Request) *Request {
	t.Helper()
	req, err := FromHTTP(r, BaseURL("http", r.Host, r.URL.EscapedPath()))
	require.NoError(t, err)
	return req
}

func TestClient_SignAndVerify(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	engine := NewEngine()
	engine.SetRSAPublicKey(&priv.PublicKey)

	for _, method := range []string{MethodHMACSHA1, MethodHMACSHA256, MethodPlaintext, MethodRSASHA1} {
		t.Run(method, func(t *testing.T) {
			c := &Client{
				ConsumerKey:    "ClientKeyMustBeLongEnough00001",
				ConsumerSecret: "ClientSecretMustBeLongEnough01",
				Method:         method,
				PrivateKey:     priv,
				Now:            func() time.Time { return time.Unix(1700000000, 0) },
				Nonce:          func() string { return "abc123" },
			}

			r := signedRequest(t, c, "http://example.com/oauth/access_token?x=1", "extra=value+1",
				"request-token", "token-secret", map[string]string{ParamVerifier: "482913"})
			req := parse(t, r)

			assert.Equal(t, "abc123", req.Get(ParamNonce))
			assert.Equal(t, "1700000000", req.Get(ParamTimestamp))
			assert.Equal(t, "482913", req.Get(ParamVerifier))
			assert.Equal(t, "value 1", req.Get("extra"))

			assert.True(t, engine.Verify(req, c.ConsumerSecret, "token-secret"))
			if method != MethodRSASHA1 {
				assert.False(t, engine.Verify(req, c.ConsumerSecret, "other-secret"))
				assert.False(t, engine.Verify(req, "wrong", "token-secret"))
			}

			// Tampering with any signed parameter breaks the signature.
			req.Query = []Param{{Key: "x", Value: "2"}}
			if method != MethodPlaintext {
				assert.False(t, engine.Verify(req, c.ConsumerSecret, "token-secret"))
			}
		})
	}
}

func TestClient_SignRestoresBody(t *testing.T) {
	c := &Client{ConsumerKey: "key", ConsumerSecret: "secret"}
	r := signedRequest(t, c, "http://example.com/api", "a=1&b=2", "", "", nil)

	require.NoError(t, r.ParseForm())
	assert.Equal(t, "1", r.PostForm.Get("a"))
	assert.Equal(t, "2", r.PostForm.Get("b"))
}

func TestFromHTTP_Sources(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://example.com/p?oauth_nonce=q", strings.NewReader("oauth_nonce=b"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("Authorization", `OAuth oauth_nonce="h"`)

	req := parse(t, r)
	assert.Equal(t, "h", req.Get(ParamNonce), "header wins")
	assert.Equal(t, []string{"h", "b", "q"}, req.Values(ParamNonce))
	assert.Equal(t, []string{ParamNonce}, req.DuplicateProtocolParams())
	assert.True(t, req.Has(ParamNonce))
	assert.False(t, req.Has(ParamToken))
}

func TestFromHTTP_IgnoresNonFormBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://example.com/p", strings.NewReader(`{"oauth_nonce":"x"}`))
	r.Header.Set("Content-Type", "application/json")

	req := parse(t, r)
	assert.Empty(t, req.Body)
}

func TestFromHTTP_MalformedHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://example.com/p", nil)
	r.Header.Set("Authorization", `OAuth oauth_nonce="%zz"`)

	_, err := FromHTTP(r, "http://example.com/p")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseRSAKeys(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	pub, err := ParseRSAPublicKey(pubPEM)
	require.NoError(t, err)
	assert.True(t, pub.Equal(&priv.PublicKey))

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	parsed, err := ParseRSAPrivateKey(privPEM)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(priv))

	_, err = ParseRSAPublicKey([]byte("not pem"))
	assert.Error(t, err)
}
