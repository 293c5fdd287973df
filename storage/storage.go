package storage

import (
	"context"
	"errors"
	"time"
)

// TokenKind distinguishes temporary credentials from token credentials.
type TokenKind string

const (
	// KindRequest is a short-lived request token awaiting authorization and exchange.
	KindRequest TokenKind = "request"
	// KindAccess is a token credential used for signed resource requests.
	KindAccess TokenKind = "access"
)

// TokenStatus is the lifecycle position of a token.
type TokenStatus string

const (
	StatusUnauthorized TokenStatus = "unauthorized"
	StatusAuthorized   TokenStatus = "authorized"
	// StatusConsumed is set on a request token at the moment it is exchanged.
	// Consumed tokens are removed from the store immediately afterwards.
	StatusConsumed TokenStatus = "consumed"
)

// Token is a request or access token together with its shared secret.
type Token struct {
	Value     string
	Secret    string
	Kind      TokenKind
	Status    TokenStatus
	Verifier  string
	ClientKey string

	// FlowID correlates every event of one authorization flow. It is carried
	// from the request token to the access token and is safe to log.
	FlowID string

	CreatedAt    time.Time
	AuthorizedAt time.Time
	// ExpiresAt is zero for tokens that never expire.
	ExpiresAt time.Time
}

// Clone returns a copy of the token.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// IsAuthorizedRequest reports whether t is a request token that may be exchanged.
func (t *Token) IsAuthorizedRequest() bool {
	return t != nil && t.Kind == KindRequest && t.Status == StatusAuthorized && t.Verifier != ""
}

var (
	// ErrUnknownClient is returned when a token is requested for an unregistered client key.
	ErrUnknownClient = errors.New("unknown client")

	// ErrTokenNotFound is returned when a token does not exist, has expired, or was consumed.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenRejected is returned by ExchangeForAccessToken when the request
	// token cannot be exchanged.
	ErrTokenRejected = errors.New("token rejected")

	// ErrNonceEmpty is returned when the nonce is missing.
	ErrNonceEmpty = errors.New("nonce is empty")

	// ErrTimestampUnparseable is returned when the timestamp is not a base-10 integer.
	ErrTimestampUnparseable = errors.New("timestamp is not an integer")

	// ErrTimestampOutOfWindow is returned when the timestamp is too far from the server clock.
	ErrTimestampOutOfWindow = errors.New("timestamp outside of accepted window")

	// ErrNonceReplayed is returned when the timestamp and nonce pair was already accepted.
	ErrNonceReplayed = errors.New("nonce already used")
)

// TokenStore owns every token and performs each lifecycle transition atomically.
// All methods accept context.Context for tracing.
type TokenStore interface {
	// IssueRequestToken creates an unauthorized request token for a registered client.
	IssueRequestToken(ctx context.Context, clientKey string) (*Token, error)

	// LookupSecret returns the secret of a live token. Unknown, expired and
	// consumed tokens report ok=false rather than an error.
	LookupSecret(ctx context.Context, value string) (secret string, ok bool)

	// MarkAuthorized moves an unauthorized request token to authorized and
	// attaches the verifier. It returns false if the transition is not allowed.
	MarkAuthorized(ctx context.Context, value, verifier string) bool

	// IsAuthorized reports whether value is an authorized request token.
	IsAuthorized(ctx context.Context, value string) bool

	// CheckVerifier reports whether candidate exactly equals the stored verifier.
	CheckVerifier(ctx context.Context, value, candidate string) bool

	// ExchangeForAccessToken burns an authorized request token and returns a new
	// access token. It succeeds at most once per request token.
	ExchangeForAccessToken(ctx context.Context, requestValue string) (*Token, error)

	// Invalidate removes a token permanently. Unknown tokens are ignored.
	Invalidate(ctx context.Context, value string)

	// GetToken returns a copy of a live token.
	GetToken(ctx context.Context, value string) (*Token, error)
}

// NonceGuard rejects replayed or stale (timestamp, nonce) pairs.
type NonceGuard interface {
	// Check reports whether the pair would currently be accepted without recording it.
	Check(timestamp, nonce string) error

	// Accept records the pair if it passes every check and reports whether it did.
	Accept(timestamp, nonce string) bool
}
