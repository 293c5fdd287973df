package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth1-oob/instrumentation"
	"github.com/giantswarm/oauth1-oob/signature"
	"github.com/giantswarm/oauth1-oob/storage"
)

// Step identifies which protocol step a signed request belongs to.
type Step string

const (
	StepRequestToken Step = "request_token"
	StepAccessToken  Step = "access_token"
	StepResource     Step = "resource"
)

// requiredParams must be present and non-empty on every signed request.
var requiredParams = []string{
	signature.ParamConsumerKey,
	signature.ParamSignatureMethod,
	signature.ParamSignature,
	signature.ParamTimestamp,
	signature.ParamNonce,
}

// Validation is the outcome of a successful Validate. It must be committed
// before any state is changed on its behalf.
type Validation struct {
	Step      Step
	ClientKey string
	Timestamp string
	Nonce     string

	// Token is the referenced request or access token, nil on the request-token step.
	Token *storage.Token
}

// Validator runs the ordered checks every signed request must pass.
// It never mutates state; Commit records the nonce once the caller is
// ready to act on the request.
type Validator struct {
	clientKey    string
	clientSecret string

	tokens   storage.TokenStore
	nonces   storage.NonceGuard
	verifier signature.Verifier

	tracer trace.Tracer
}

// NewValidator creates a validator for the single registered client.
func NewValidator(clientKey, clientSecret string, tokens storage.TokenStore, nonces storage.NonceGuard, verifier signature.Verifier) *Validator {
	return &Validator{
		clientKey:    clientKey,
		clientSecret: clientSecret,
		tokens:       tokens,
		nonces:       nonces,
		verifier:     verifier,
	}
}

// setTracer enables a span per validation.
func (v *Validator) setTracer(tracer trace.Tracer) {
	v.tracer = tracer
}

// Validate checks req for step. Checks run cheapest first and stop at the
// first failure:
//
//  1. the client key is registered
//  2. the timestamp and nonce would be accepted
//  3. the referenced token exists in the state the step expects
//  4. the signature matches
//  5. on the access-token step, the verifier matches
//
// Parameter shape is checked before any of them.
func (v *Validator) Validate(ctx context.Context, step Step, req *signature.Request) (*Validation, error) {
	if v.tracer != nil {
		var span trace.Span
		ctx, span = v.tracer.Start(ctx, "oauth1.validate",
			trace.WithAttributes(attribute.String(instrumentation.AttrStep, string(step))))
		defer span.End()

		val, err := v.validate(ctx, step, req)
		if err != nil {
			instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrProblem, Problem(err)))
			instrumentation.SetSpanError(span, Problem(err))
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		return val, err
	}
	return v.validate(ctx, step, req)
}

func (v *Validator) validate(ctx context.Context, step Step, req *signature.Request) (*Validation, error) {
	if err := v.checkParams(step, req); err != nil {
		return nil, err
	}

	val := &Validation{
		Step:      step,
		ClientKey: req.Get(signature.ParamConsumerKey),
		Timestamp: req.Get(signature.ParamTimestamp),
		Nonce:     req.Get(signature.ParamNonce),
	}

	// 1. client
	if subtle.ConstantTimeCompare([]byte(val.ClientKey), []byte(v.clientKey)) != 1 {
		return nil, ErrUnknownClient
	}

	// 2. timestamp and nonce, without recording
	if err := v.nonces.Check(val.Timestamp, val.Nonce); err != nil {
		// an unparseable timestamp fails here like a stale one
		if errors.Is(err, storage.ErrNonceEmpty) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrReplayOrExpired, err)
	}

	// 3. token state
	var tokenSecret string
	if step != StepRequestToken {
		tokenValue := req.Get(signature.ParamToken)
		token, err := v.tokens.GetToken(ctx, tokenValue)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if token.ClientKey != val.ClientKey {
			return nil, fmt.Errorf("%w: token issued to another client", ErrInvalidToken)
		}
		switch step {
		case StepAccessToken:
			if !token.IsAuthorizedRequest() {
				return nil, fmt.Errorf("%w: request token is %s", ErrInvalidToken, token.Status)
			}
		case StepResource:
			if token.Kind != storage.KindAccess {
				return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
			}
		}
		val.Token = token

		// 4a. a token that vanished since the state check fails the signature
		secret, ok := v.tokens.LookupSecret(ctx, tokenValue)
		if !ok {
			return nil, fmt.Errorf("%w: token secret unavailable", ErrBadSignature)
		}
		tokenSecret = secret
	}

	// 4. signature
	if !v.verifier.Verify(req, v.clientSecret, tokenSecret) {
		return nil, ErrBadSignature
	}

	// 5. verifier
	if step == StepAccessToken {
		if !v.tokens.CheckVerifier(ctx, val.Token.Value, req.Get(signature.ParamVerifier)) {
			return nil, ErrVerifierMismatch
		}
	}

	// the caller only needs identifiers; secrets stay in the store
	if val.Token != nil {
		val.Token.Secret = ""
		val.Token.Verifier = ""
	}
	return val, nil
}

// checkParams rejects requests whose protocol parameters are missing,
// duplicated or unsupported.
func (v *Validator) checkParams(step Step, req *signature.Request) error {
	if dups := req.DuplicateProtocolParams(); len(dups) > 0 {
		return fmt.Errorf("%w: duplicated parameters %s", ErrMalformedRequest, strings.Join(dups, ", "))
	}

	var missing []string
	for _, name := range requiredParams {
		if req.Get(name) == "" {
			missing = append(missing, name)
		}
	}
	switch step {
	case StepRequestToken:
		if !req.Has(signature.ParamCallback) {
			missing = append(missing, signature.ParamCallback)
		}
	case StepAccessToken:
		for _, name := range []string{signature.ParamToken, signature.ParamVerifier} {
			if req.Get(name) == "" {
				missing = append(missing, name)
			}
		}
	case StepResource:
		if req.Get(signature.ParamToken) == "" {
			missing = append(missing, signature.ParamToken)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformedRequest, strings.Join(missing, ", "))
	}

	if version := req.Get(signature.ParamVersion); req.Has(signature.ParamVersion) && version != signature.Version {
		return fmt.Errorf("%w: unsupported oauth_version %q", ErrMalformedRequest, version)
	}

	if method := req.Get(signature.ParamSignatureMethod); !v.verifier.Supports(method) {
		return fmt.Errorf("%w: unsupported signature method %q", ErrMalformedRequest, method)
	}

	if step == StepRequestToken {
		if cb := req.Get(signature.ParamCallback); cb != signature.CallbackOOB {
			return fmt.Errorf("%w: only the out-of-band callback is supported", ErrMalformedRequest)
		}
	}

	return nil
}

// Commit records the nonce of a validated request. A concurrent request with
// the same nonce that committed first makes this fail with ErrReplayOrExpired.
func (v *Validator) Commit(val *Validation) error {
	if !v.nonces.Accept(val.Timestamp, val.Nonce) {
		return fmt.Errorf("%w: nonce was used concurrently or expired", ErrReplayOrExpired)
	}
	return nil
}
