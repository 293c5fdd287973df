package server

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth1-oob/instrumentation"
	"github.com/giantswarm/oauth1-oob/internal/util"
	"github.com/giantswarm/oauth1-oob/security"
	"github.com/giantswarm/oauth1-oob/signature"
	"github.com/giantswarm/oauth1-oob/storage"
)

// Reasons a request token is burned after a failed exchange.
const (
	invalidationNonceCommit = "nonce_commit"
	invalidationExchange    = "exchange_rejected"
)

// Authorization is the result of the resource owner approving a request token.
type Authorization struct {
	// Verifier is the PIN shown to the resource owner.
	Verifier     string
	ClientKey    string
	FlowID       string
	Reauthorized bool
}

// ObtainRequestToken validates a signed request-token request and issues an
// unauthorized request token. The returned token carries its secret.
func (s *Server) ObtainRequestToken(ctx context.Context, req *signature.Request, clientIP string) (*storage.Token, error) {
	ctx, span := s.tracer.Start(ctx, "oauth1.request_token")
	defer span.End()

	val, err := s.validator.Validate(ctx, StepRequestToken, req)
	if err != nil {
		s.recordFailure(ctx, span, StepRequestToken, req.Get(signature.ParamConsumerKey), clientIP, err)
		return nil, err
	}

	// Issue before recording the nonce, so an issuing fault leaves no state.
	token, err := s.tokenStore.IssueRequestToken(ctx, val.ClientKey)
	if err != nil {
		if errors.Is(err, storage.ErrUnknownClient) {
			err = fmt.Errorf("%w: %v", ErrUnknownClient, err)
		} else {
			err = fmt.Errorf("failed to issue request token: %w", err)
		}
		s.recordFailure(ctx, span, StepRequestToken, val.ClientKey, clientIP, err)
		return nil, err
	}
	if err := s.validator.Commit(val); err != nil {
		s.tokenStore.Invalidate(ctx, token.Value)
		s.recordFailure(ctx, span, StepRequestToken, val.ClientKey, clientIP, err)
		return nil, err
	}

	instrumentation.AddFlowAttributes(span, token.ClientKey, token.FlowID)
	instrumentation.SetSpanSuccess(span)
	if m := s.metrics(); m != nil {
		m.RecordRequestTokenIssued(ctx, token.ClientKey)
	}
	s.Auditor.LogRequestTokenIssued(token.ClientKey, token.FlowID, clientIP)
	s.Logger.Debug("Issued request token",
		"client_key", token.ClientKey,
		"flow_id", token.FlowID,
		"token_prefix", util.TokenPrefix(token.Value))

	return token, nil
}

// Authorize approves a request token on behalf of the resource owner and
// returns the verifier to display. The step is not signed.
func (s *Server) Authorize(ctx context.Context, tokenValue, clientIP string) (*Authorization, error) {
	ctx, span := s.tracer.Start(ctx, "oauth1.authorize")
	defer span.End()

	if tokenValue == "" {
		err := fmt.Errorf("%w: missing %s", ErrMalformedRequest, signature.ParamToken)
		s.rejectAuthorization(ctx, span, "", "", clientIP, err)
		return nil, err
	}

	token, err := s.tokenStore.GetToken(ctx, tokenValue)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidToken, err)
		s.rejectAuthorization(ctx, span, "", tokenValue, clientIP, err)
		return nil, err
	}
	if token.Kind != storage.KindRequest {
		err = fmt.Errorf("%w: not a request token", ErrInvalidToken)
		s.rejectAuthorization(ctx, span, token.ClientKey, tokenValue, clientIP, err)
		return nil, err
	}
	instrumentation.AddFlowAttributes(span, token.ClientKey, token.FlowID)

	verifier, err := generateVerifier()
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	reauthorized := token.Status == storage.StatusAuthorized
	if !s.tokenStore.MarkAuthorized(ctx, tokenValue, verifier) {
		err = fmt.Errorf("%w: request token cannot be authorized in state %s", ErrInvalidToken, token.Status)
		s.rejectAuthorization(ctx, span, token.ClientKey, tokenValue, clientIP, err)
		return nil, err
	}

	instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrReauthorized, reauthorized))
	instrumentation.SetSpanSuccess(span)
	if m := s.metrics(); m != nil {
		m.RecordAuthorization(ctx, instrumentation.ResultSuccess, reauthorized)
	}
	s.Auditor.LogTokenAuthorized(token.ClientKey, token.FlowID, clientIP, reauthorized)
	s.Logger.Info("Request token authorized",
		"client_key", token.ClientKey,
		"flow_id", token.FlowID,
		"reauthorized", reauthorized)

	return &Authorization{
		Verifier:     verifier,
		ClientKey:    token.ClientKey,
		FlowID:       token.FlowID,
		Reauthorized: reauthorized,
	}, nil
}

// ExchangeAccessToken validates a signed exchange request and trades the
// authorized request token for an access token. Failures before the verifier
// is confirmed leave the request token untouched; failures after it burn the
// request token.
func (s *Server) ExchangeAccessToken(ctx context.Context, req *signature.Request, clientIP string) (*storage.Token, error) {
	ctx, span := s.tracer.Start(ctx, "oauth1.access_token")
	defer span.End()

	val, err := s.validator.Validate(ctx, StepAccessToken, req)
	if err != nil {
		s.recordFailure(ctx, span, StepAccessToken, req.Get(signature.ParamConsumerKey), clientIP, err)
		return nil, err
	}
	requestToken := val.Token
	instrumentation.AddFlowAttributes(span, requestToken.ClientKey, requestToken.FlowID)

	if err := s.validator.Commit(val); err != nil {
		s.invalidate(ctx, requestToken, invalidationNonceCommit)
		s.recordFailure(ctx, span, StepAccessToken, val.ClientKey, clientIP, err)
		return nil, err
	}

	access, err := s.tokenStore.ExchangeForAccessToken(ctx, requestToken.Value)
	if err != nil {
		s.invalidate(ctx, requestToken, invalidationExchange)
		if errors.Is(err, storage.ErrTokenRejected) || errors.Is(err, storage.ErrTokenNotFound) {
			err = fmt.Errorf("%w: %v", ErrInvalidToken, err)
		} else {
			err = fmt.Errorf("failed to exchange request token: %w", err)
		}
		s.recordFailure(ctx, span, StepAccessToken, val.ClientKey, clientIP, err)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	if m := s.metrics(); m != nil {
		m.RecordAccessTokenIssued(ctx, access.ClientKey)
	}
	s.Auditor.LogAccessTokenIssued(access.ClientKey, access.FlowID, clientIP)
	s.Logger.Info("Access token issued",
		"client_key", access.ClientKey,
		"flow_id", access.FlowID,
		"token_prefix", util.TokenPrefix(access.Value))

	return access, nil
}

// ValidateResourceRequest validates a request signed with an access token
// and returns that token without its secret.
func (s *Server) ValidateResourceRequest(ctx context.Context, req *signature.Request, clientIP string) (*storage.Token, error) {
	ctx, span := s.tracer.Start(ctx, "oauth1.resource")
	defer span.End()

	val, err := s.validator.Validate(ctx, StepResource, req)
	if err == nil {
		err = s.validator.Commit(val)
	}
	if err != nil {
		if m := s.metrics(); m != nil {
			m.RecordResourceRequest(ctx, instrumentation.ResultFailure)
		}
		s.recordFailure(ctx, span, StepResource, req.Get(signature.ParamConsumerKey), clientIP, err)
		return nil, err
	}

	instrumentation.AddFlowAttributes(span, val.Token.ClientKey, val.Token.FlowID)
	instrumentation.SetSpanSuccess(span)
	if m := s.metrics(); m != nil {
		m.RecordResourceRequest(ctx, instrumentation.ResultSuccess)
	}
	return val.Token, nil
}

// invalidate burns a request token after a failed exchange.
func (s *Server) invalidate(ctx context.Context, token *storage.Token, reason string) {
	s.tokenStore.Invalidate(ctx, token.Value)

	if m := s.metrics(); m != nil {
		m.RecordExchangeInvalidation(ctx, reason)
	}
	s.Auditor.LogTokenInvalidated(token.ClientKey, token.FlowID, token.Value, reason)
	s.Logger.Warn("Request token invalidated after failed exchange",
		"client_key", token.ClientKey,
		"flow_id", token.FlowID,
		"reason", reason)
}

// recordFailure reports a rejected signed request to metrics, the audit log
// and the span.
func (s *Server) recordFailure(ctx context.Context, span trace.Span, step Step, clientKey, clientIP string, err error) {
	problem := Problem(err)

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrProblem, problem))
	instrumentation.RecordError(span, err)
	if m := s.metrics(); m != nil {
		m.RecordValidationFailure(ctx, string(step), problem)
	}

	switch {
	case errors.Is(err, ErrReplayOrExpired):
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventNonceReplayDetected,
			ClientKey: clientKey,
			IPAddress: clientIP,
			Details:   map[string]any{"step": string(step)},
		})
	case errors.Is(err, ErrVerifierMismatch):
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventVerifierMismatch,
			ClientKey: clientKey,
			IPAddress: clientIP,
		})
	case problem == ProblemServerError:
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventInternalError,
			ClientKey: clientKey,
			IPAddress: clientIP,
			Details:   map[string]any{"step": string(step)},
		})
	default:
		s.Auditor.LogAuthFailure(clientKey, clientIP, string(step), problem)
	}

	if problem == ProblemServerError {
		s.Logger.Error("Signed request failed", "step", step, "error", err)
		return
	}
	s.Logger.Debug("Signed request rejected", "step", step, "problem", problem, "error", err)
}

// rejectAuthorization reports a failed authorize step.
func (s *Server) rejectAuthorization(ctx context.Context, span trace.Span, clientKey, tokenValue, clientIP string, err error) {
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrProblem, Problem(err)))
	instrumentation.RecordError(span, err)
	if m := s.metrics(); m != nil {
		m.RecordAuthorization(ctx, instrumentation.ResultFailure, false)
	}
	s.Auditor.LogEvent(security.Event{
		Type:      security.EventAuthorizationRejected,
		ClientKey: clientKey,
		Token:     tokenValue,
		IPAddress: clientIP,
		Details:   map[string]any{"problem": Problem(err)},
	})
	s.Logger.Debug("Authorization rejected", "problem", Problem(err), "error", err)
}
