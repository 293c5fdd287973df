package server

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth1-oob/instrumentation"
	"github.com/giantswarm/oauth1-oob/security"
	"github.com/giantswarm/oauth1-oob/signature"
	"github.com/giantswarm/oauth1-oob/storage"
)

// Server implements the OAuth 1.0a out-of-band flow (transport-agnostic).
// It coordinates the validator, the token store and the nonce guard.
type Server struct {
	tokenStore storage.TokenStore
	nonceGuard storage.NonceGuard
	validator  *Validator
	tracer     trace.Tracer

	Encryptor       *security.Encryptor
	Auditor         *security.Auditor
	RateLimiter     *security.RateLimiter // IP-based rate limiter
	Logger          *slog.Logger
	Config          *Config
	Instrumentation *instrumentation.Instrumentation
}

// New creates a new authorization server
func New(
	tokenStore storage.TokenStore,
	nonceGuard storage.NonceGuard,
	verifier signature.Verifier,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if nonceGuard == nil {
		return nil, fmt.Errorf("nonce guard is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("signature verifier is required")
	}
	if config == nil {
		config = &Config{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	config, err := applySecureDefaults(config, logger)
	if err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	srv := &Server{
		tokenStore: tokenStore,
		nonceGuard: nonceGuard,
		validator:  NewValidator(config.ClientKey, config.ClientSecret, tokenStore, nonceGuard, verifier),
		tracer:     tracenoop.NewTracerProvider().Tracer(""),
		Config:     config,
		Logger:     logger,
	}

	type windowSetter interface {
		SetWindow(window, retention time.Duration) error
	}
	if setter, ok := nonceGuard.(windowSetter); ok {
		if err := setter.SetWindow(config.NonceWindow, config.NonceRetention); err != nil {
			return nil, fmt.Errorf("invalid nonce window: %w", err)
		}
	}

	// Configure the store if it supports it
	type clientRegistrar interface {
		RegisterClient(clientKey string)
	}
	if registrar, ok := tokenStore.(clientRegistrar); ok {
		registrar.RegisterClient(config.ClientKey)
	}

	type ttlSetter interface {
		SetRequestTokenTTL(ttl time.Duration)
		SetAccessTokenTTL(ttl time.Duration)
	}
	if setter, ok := tokenStore.(ttlSetter); ok {
		setter.SetRequestTokenTTL(config.RequestTokenTTL)
		setter.SetAccessTokenTTL(config.AccessTokenTTL)
	}

	type reauthorizationSetter interface {
		SetAllowReauthorization(allow bool)
	}
	if setter, ok := tokenStore.(reauthorizationSetter); ok {
		setter.SetAllowReauthorization(config.AllowReauthorization)
	}

	return srv, nil
}

// SetEncryptor sets the secret encryptor for server and storage
func (s *Server) SetEncryptor(enc *security.Encryptor) {
	s.Encryptor = enc

	type encryptorSetter interface {
		SetEncryptor(*security.Encryptor)
	}
	if setter, ok := s.tokenStore.(encryptorSetter); ok {
		setter.SetEncryptor(enc)
	}
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetRateLimiter sets the IP-based rate limiter
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.RateLimiter = rl
}

// SetInstrumentation enables metrics and tracing for the server and, where
// supported, for its token store and nonce guard.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst == nil {
		return
	}
	s.tracer = inst.Tracer("server")
	s.validator.setTracer(s.tracer)

	type instrumentationSetter interface {
		SetInstrumentation(*instrumentation.Instrumentation)
	}
	if setter, ok := s.tokenStore.(instrumentationSetter); ok {
		setter.SetInstrumentation(inst)
	}
	if setter, ok := s.nonceGuard.(instrumentationSetter); ok {
		setter.SetInstrumentation(inst)
	}
}

// metrics returns the metric instruments, or nil when instrumentation is off.
func (s *Server) metrics() *instrumentation.Metrics {
	if s.Instrumentation == nil {
		return nil
	}
	return s.Instrumentation.Metrics()
}

// generateVerifier returns a VerifierLength digit code, each digit drawn
// uniformly from crypto/rand.
func generateVerifier() (string, error) {
	var b strings.Builder
	b.Grow(VerifierLength)
	ten := big.NewInt(10)
	for range VerifierLength {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate verifier: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
