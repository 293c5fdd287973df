package oauth1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth1-oob/instrumentation"
	"github.com/giantswarm/oauth1-oob/security"
	"github.com/giantswarm/oauth1-oob/server"
	"github.com/giantswarm/oauth1-oob/signature"
	"github.com/giantswarm/oauth1-oob/storage"
)

// Endpoint paths.
const (
	RequestTokenPath = "/oauth/request_token"
	AuthorizePath    = "/oauth/authorize"
	AccessTokenPath  = "/oauth/access_token"
	HealthPath       = "/healthz"
	MetricsPath      = "/metrics"
	WhoAmIPath       = "/api/whoami"
)

const formContentType = "application/x-www-form-urlencoded"

// Handler is a thin HTTP adapter for the authorization Server.
// It parses wire parameters, delegates to the Server and shapes responses.
type Handler struct {
	server *server.Server
	logger *slog.Logger
	tracer trace.Tracer // OpenTelemetry tracer for HTTP layer
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *server.Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: srv,
		logger: logger,
		tracer: tracenoop.NewTracerProvider().Tracer(""),
	}

	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	return h
}

// Routes returns the router serving all endpoints.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(security.RequestIDMiddleware)
	r.Use(h.recoverer)
	r.Use(h.observe)

	r.Post(RequestTokenPath, h.ServeRequestToken)
	r.Get(AuthorizePath, h.ServeAuthorize)
	r.Post(AccessTokenPath, h.ServeAccessToken)
	r.Get(HealthPath, h.ServeHealth)

	if h.server.Instrumentation != nil {
		if metrics := h.server.Instrumentation.MetricsHandler(); metrics != nil {
			r.Method(http.MethodGet, MetricsPath, metrics)
		}
	}

	r.With(h.ValidateToken).Get(WhoAmIPath, h.ServeWhoAmI)

	return r
}

// ServeRequestToken issues a request token to a signed client request.
func (h *Handler) ServeRequestToken(w http.ResponseWriter, r *http.Request) {
	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	req, err := h.parseSignedRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := h.server.ObtainRequestToken(r.Context(), req, clientIP)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeTokenResponse(w, r, TokenResponse{
		Token:             token.Value,
		TokenSecret:       token.Secret,
		CallbackConfirmed: true,
	})
}

// ServeAuthorize authorizes the request token named in the query and shows
// the verifier to the resource owner.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	auth, err := h.server.Authorize(r.Context(), r.URL.Query().Get(signature.ParamToken), clientIP)
	if err != nil {
		status := http.StatusBadRequest
		message := "This authorization link is invalid, expired or was already used."
		if server.Problem(err) == ProblemServerError {
			status = http.StatusInternalServerError
			message = "Something went wrong. Please try again."
			h.logger.Error("Authorization failed", "request_id", security.GetRequestID(r.Context()), "error", err)
		}
		h.renderAuthorizePage(w, r, status, authorizePageData{Message: message})
		return
	}

	h.renderAuthorizePage(w, r, http.StatusOK, authorizePageData{
		Verifier:     auth.Verifier,
		Reauthorized: auth.Reauthorized,
	})
}

// ServeAccessToken exchanges an authorized request token for an access token.
func (h *Handler) ServeAccessToken(w http.ResponseWriter, r *http.Request) {
	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	req, err := h.parseSignedRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := h.server.ExchangeAccessToken(r.Context(), req, clientIP)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeTokenResponse(w, r, TokenResponse{
		Token:       token.Value,
		TokenSecret: token.Secret,
	})
}

// ServeHealth reports liveness.
func (h *Handler) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ServeWhoAmI is a sample protected resource describing the caller.
func (h *Handler) ServeWhoAmI(w http.ResponseWriter, r *http.Request) {
	token, ok := TokenFromContext(r.Context())
	if !ok {
		h.writeError(w, r, ErrInvalidToken("No access token"))
		return
	}

	h.setSecurityHeaders(w, r, false)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(WhoAmIResponse{
		ClientKey: token.ClientKey,
		FlowID:    token.FlowID,
	})
}

type contextKey string

const accessTokenKey contextKey = "oauth1_access_token"

// TokenFromContext returns the access token authenticated by ValidateToken.
// The token carries no secret.
func TokenFromContext(ctx context.Context) (*storage.Token, bool) {
	token, ok := ctx.Value(accessTokenKey).(*storage.Token)
	return token, ok
}

// ContextWithToken adds an authenticated access token to the context.
func ContextWithToken(ctx context.Context, token *storage.Token) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// ValidateToken is middleware that requires a request signed with a valid
// access token.
func (h *Handler) ValidateToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := h.clientIP(r)
		if h.checkIPRateLimit(w, r, clientIP) {
			return
		}

		req, err := h.parseSignedRequest(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		token, err := h.server.ValidateResourceRequest(r.Context(), req, clientIP)
		if err != nil {
			h.logger.Warn("Resource request rejected", "ip", clientIP, "problem", server.Problem(err))
			h.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithToken(r.Context(), token)))
	})
}

// parseSignedRequest collects the OAuth parameters of r against its
// externally visible URL.
func (h *Handler) parseSignedRequest(r *http.Request) (*signature.Request, error) {
	req, err := signature.FromHTTP(r, h.baseURL(r))
	if err != nil {
		if errors.Is(err, signature.ErrMalformed) {
			return nil, fmt.Errorf("%w: %v", server.ErrMalformedRequest, err)
		}
		return nil, err
	}
	return req, nil
}

// baseURL reconstructs scheme://host/path as the client signed it.
func (h *Handler) baseURL(r *http.Request) string {
	scheme := "http"
	if h.isHTTPS(r) {
		scheme = "https"
	}
	return signature.BaseURL(scheme, r.Host, r.URL.EscapedPath())
}

func (h *Handler) isHTTPS(r *http.Request) bool {
	return r.TLS != nil || h.server.Config.ForceHTTPS || security.IsForwardedHTTPS(r, h.server.Config.TrustProxy)
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
}

// checkIPRateLimit checks if the client IP is rate limited. Returns true if limited.
func (h *Handler) checkIPRateLimit(w http.ResponseWriter, r *http.Request, clientIP string) bool {
	if h.server.RateLimiter == nil || h.server.RateLimiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "path", r.URL.Path)
	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(r.Context(), r.URL.Path)
	}
	h.server.Auditor.LogRateLimitExceeded(clientIP, r.URL.Path)

	w.Header().Set("Retry-After", "60")
	h.writeError(w, r, ErrRateLimited("Rate limit exceeded. Please try again later."))
	return true
}

func (h *Handler) setSecurityHeaders(w http.ResponseWriter, r *http.Request, page bool) {
	if page {
		security.SetPageHeaders(w, h.isHTTPS(r))
		return
	}
	security.SetSecurityHeaders(w, h.isHTTPS(r))
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, r *http.Request, resp TokenResponse) {
	h.setSecurityHeaders(w, r, false)
	w.Header().Set("Content-Type", formContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(resp.Encode()))
}

// writeError writes err as a form-encoded protocol error.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	protoErr := errorFromServer(err)
	if protoErr.Status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"request_id", security.GetRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err)
	}

	h.setSecurityHeaders(w, r, false)
	if protoErr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `OAuth realm=""`)
	}
	w.Header().Set("Content-Type", formContentType)
	w.WriteHeader(protoErr.Status)
	_, _ = w.Write([]byte(ErrorResponse{Problem: protoErr.Problem, Advice: protoErr.Description}.Encode()))
}

// recoverer turns a panic into a server_error response.
func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			requestID := security.GetRequestID(r.Context())
			h.logger.Error("Recovered from panic",
				"request_id", requestID,
				"path", r.URL.Path,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()))
			h.server.Auditor.LogEvent(security.Event{
				Type:      security.EventInternalError,
				IPAddress: h.clientIP(r),
				Details:   map[string]any{"request_id": requestID, "path": r.URL.Path},
			})
			h.writeError(w, r, ErrServerError("An internal error occurred"))
		}()

		next.ServeHTTP(w, r)
	})
}

// observe wraps each request in a span and records HTTP metrics.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ctx, span := h.tracer.Start(r.Context(), "oauth1.http."+r.Method,
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		instrumentation.AddHTTPAttributes(span, r.Method, endpoint, status)
		span.SetAttributes(attribute.String("http.request_id", security.GetRequestID(r.Context())))
		if h.server.Instrumentation != nil {
			if h.server.Instrumentation.ShouldLogClientIPs() {
				instrumentation.AddSecurityAttributes(span, h.clientIP(r))
			}
			h.server.Instrumentation.Metrics().RecordHTTPRequest(ctx, r.Method, endpoint, status,
				float64(time.Since(startTime).Microseconds())/1000)
		}
	})
}
