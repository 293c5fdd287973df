package signature

import (
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // HMAC-SHA1 and RSA-SHA1 are mandated by the protocol
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"hash"
)

// Signature methods.
const (
	MethodHMACSHA1   = "HMAC-SHA1"
	MethodHMACSHA256 = "HMAC-SHA256"
	MethodPlaintext  = "PLAINTEXT"
	MethodRSASHA1    = "RSA-SHA1"
)

// ErrUnsupportedMethod is returned for signature methods the engine cannot handle.
var ErrUnsupportedMethod = errors.New("unsupported signature method")

// Verifier checks the signature of a request. Implementations must be pure:
// no shared state and no I/O.
type Verifier interface {
	Supports(method string) bool
	Verify(r *Request, clientSecret, tokenSecret string) bool
}

// Engine verifies signatures for the HMAC, PLAINTEXT and (when a public key
// is configured) RSA-SHA1 methods.
type Engine struct {
	rsaPublicKey *rsa.PublicKey
	disabled     map[string]bool
}

var _ Verifier = (*Engine)(nil)

// NewEngine creates an engine supporting HMAC-SHA1, HMAC-SHA256 and PLAINTEXT.
func NewEngine() *Engine {
	return &Engine{disabled: make(map[string]bool)}
}

// SetRSAPublicKey enables RSA-SHA1 for the client owning key.
func (e *Engine) SetRSAPublicKey(key *rsa.PublicKey) {
	e.rsaPublicKey = key
}

// Disable turns off a signature method, e.g. PLAINTEXT on deployments
// without TLS.
func (e *Engine) Disable(method string) {
	e.disabled[method] = true
}

// Supports reports whether requests signed with method can be verified.
func (e *Engine) Supports(method string) bool {
	if e.disabled[method] {
		return false
	}
	switch method {
	case MethodHMACSHA1, MethodHMACSHA256, MethodPlaintext:
		return true
	case MethodRSASHA1:
		return e.rsaPublicKey != nil
	}
	return false
}

// Verify recomputes the signature of r and compares it with oauth_signature.
// tokenSecret is empty when the request carries no token.
func (e *Engine) Verify(r *Request, clientSecret, tokenSecret string) bool {
	method := r.Get(ParamSignatureMethod)
	provided := r.Get(ParamSignature)
	if provided == "" || !e.Supports(method) {
		return false
	}

	switch method {
	case MethodRSASHA1:
		sig, err := base64.StdEncoding.DecodeString(provided)
		if err != nil {
			return false
		}
		digest := sha1.Sum([]byte(BaseString(r))) //nolint:gosec // protocol mandated
		return rsa.VerifyPKCS1v15(e.rsaPublicKey, crypto.SHA1, digest[:], sig) == nil
	default:
		expected, err := Sign(method, BaseString(r), clientSecret, tokenSecret, nil)
		if err != nil {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
	}
}

// Sign computes the oauth_signature value for baseString. privateKey is only
// used by RSA-SHA1.
func Sign(method, baseString, clientSecret, tokenSecret string, privateKey *rsa.PrivateKey) (string, error) {
	switch method {
	case MethodHMACSHA1:
		return hmacSign(sha1.New, baseString, clientSecret, tokenSecret), nil
	case MethodHMACSHA256:
		return hmacSign(sha256.New, baseString, clientSecret, tokenSecret), nil
	case MethodPlaintext:
		return signingKey(clientSecret, tokenSecret), nil
	case MethodRSASHA1:
		if privateKey == nil {
			return "", fmt.Errorf("%s requires a private key", MethodRSASHA1)
		}
		digest := sha1.Sum([]byte(baseString)) //nolint:gosec // protocol mandated
		sig, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA1, digest[:])
		if err != nil {
			return "", fmt.Errorf("failed to sign: %w", err)
		}
		return base64.StdEncoding.EncodeToString(sig), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
}

func signingKey(clientSecret, tokenSecret string) string {
	return Encode(clientSecret) + "&" + Encode(tokenSecret)
}

func hmacSign(h func() hash.Hash, baseString, clientSecret, tokenSecret string) string {
	mac := hmac.New(h, []byte(signingKey(clientSecret, tokenSecret)))
	mac.Write([]byte(baseString))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ParseRSAPublicKey reads a PEM encoded PKIX public key or X.509 certificate.
func ParseRSAPublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	var pub any
	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		pub = cert.PublicKey
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		pub = key
	default:
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		pub = key
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, not RSA", pub)
	}
	return rsaKey, nil
}

// ParseRSAPrivateKey reads a PEM encoded PKCS#1 or PKCS#8 RSA private key.
func ParseRSAPrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not RSA", parsed)
	}
	return key, nil
}
