package memory

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth1-oob/instrumentation"
	"github.com/giantswarm/oauth1-oob/internal/util"
	"github.com/giantswarm/oauth1-oob/security"
	"github.com/giantswarm/oauth1-oob/storage"
)

const (
	// DefaultCleanupInterval is how often expired tokens are swept.
	DefaultCleanupInterval = time.Minute

	// DefaultRequestTokenTTL bounds how long an abandoned flow occupies memory.
	DefaultRequestTokenTTL = 10 * time.Minute

	storageType = "memory"
)

// Store is an in-memory implementation of storage.TokenStore.
// Secrets and verifiers are encrypted at rest when an encryptor is set.
type Store struct {
	mu sync.RWMutex

	tokens  map[string]*storage.Token
	clients map[string]struct{}

	requestTokenTTL      time.Duration
	accessTokenTTL       time.Duration
	allowReauthorization bool

	encryptor *security.Encryptor
	clock     security.Clock

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// read by metric callbacks without taking mu
	requestTokensCount atomic.Int64
	accessTokensCount  atomic.Int64

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

var _ storage.TokenStore = (*Store)(nil)

// New creates a new in-memory store with the default cleanup interval (1 minute).
func New() *Store {
	return NewWithInterval(DefaultCleanupInterval)
}

// NewWithInterval creates a new in-memory store with a custom cleanup interval.
// If cleanupInterval is 0 or negative, the default is used.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	s := &Store{
		tokens:          make(map[string]*storage.Token),
		clients:         make(map[string]struct{}),
		requestTokenTTL: DefaultRequestTokenTTL,
		clock:           security.SystemClock{},
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// RegisterClient adds a client key that may obtain request tokens.
func (s *Store) RegisterClient(clientKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[clientKey] = struct{}{}
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetClock replaces the clock used for token timestamps and expiry.
func (s *Store) SetClock(clock security.Clock) {
	if clock == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// SetRequestTokenTTL sets how long a request token stays usable. Zero disables expiry.
func (s *Store) SetRequestTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestTokenTTL = ttl
}

// SetAccessTokenTTL sets how long an access token stays usable. Zero disables expiry.
func (s *Store) SetAccessTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokenTTL = ttl
}

// SetAllowReauthorization lets MarkAuthorized replace the verifier of an
// already authorized, not yet exchanged request token.
func (s *Store) SetAllowReauthorization(allow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowReauthorization = allow
}

// SetEncryptor sets the encryptor for secrets and verifiers at rest.
// It must be called before any token is issued.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
	if enc.IsEnabled() {
		s.logger.Info("Token secret encryption at rest enabled for storage")
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.requestTokensCount.Load() },
			func() int64 { return s.accessTokensCount.Load() },
			nil,
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// Stats is a snapshot of the store's contents.
type Stats struct {
	RequestTokens    int
	AuthorizedTokens int
	AccessTokens     int
}

// Stats counts live tokens by kind.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	for _, t := range s.tokens {
		switch t.Kind {
		case storage.KindRequest:
			st.RequestTokens++
			if t.Status == storage.StatusAuthorized {
				st.AuthorizedTokens++
			}
		case storage.KindAccess:
			st.AccessTokens++
		}
	}
	return st
}

// IssueRequestToken creates an unauthorized request token for clientKey.
func (s *Store) IssueRequestToken(ctx context.Context, clientKey string) (*storage.Token, error) {
	ctx, span := s.startStorageSpan(ctx, "issue_request_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "issue_request_token", err, startTime)
	}()

	s.mu.RLock()
	_, registered := s.clients[clientKey]
	encryptor := s.encryptor
	s.mu.RUnlock()

	if !registered {
		err = fmt.Errorf("%w: %s", storage.ErrUnknownClient, util.SafeTruncate(clientKey, util.TokenLogLength))
		return nil, err
	}

	secret := oauth2.GenerateVerifier()
	storedSecret, err := storage.EncryptSecret(secret, encryptor)
	s.recordEncryption(ctx, "encrypt", encryptor, err)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	now := s.clock.Now()
	record := &storage.Token{
		Value:     s.newTokenValueLocked(),
		Secret:    storedSecret,
		Kind:      storage.KindRequest,
		Status:    storage.StatusUnauthorized,
		ClientKey: clientKey,
		FlowID:    uuid.NewString(),
		CreatedAt: now,
	}
	if s.requestTokenTTL > 0 {
		record.ExpiresAt = now.Add(s.requestTokenTTL)
	}
	s.tokens[record.Value] = record
	s.requestTokensCount.Add(1)
	s.mu.Unlock()

	s.logger.Debug("Issued request token",
		"token_prefix", util.TokenPrefix(record.Value),
		"flow_id", record.FlowID)

	issued := record.Clone()
	issued.Secret = secret
	return issued, nil
}

// LookupSecret returns the decrypted secret of a live token.
func (s *Store) LookupSecret(ctx context.Context, value string) (string, bool) {
	ctx, span := s.startStorageSpan(ctx, "lookup_secret")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "lookup_secret", err, startTime)
	}()

	s.mu.RLock()
	record, ok := s.liveLocked(value)
	var sealed string
	if ok {
		sealed = record.Secret
	}
	encryptor := s.encryptor
	s.mu.RUnlock()

	if !ok {
		return "", false
	}

	secret, err := storage.DecryptSecret(sealed, encryptor)
	s.recordEncryption(ctx, "decrypt", encryptor, err)
	if err != nil {
		s.logger.Error("Failed to decrypt token secret",
			"token_prefix", util.TokenPrefix(value),
			"error", err)
		return "", false
	}
	return secret, true
}

// MarkAuthorized moves an unauthorized request token to authorized.
// Re-authorizing an authorized token replaces its verifier only when
// re-authorization is allowed.
func (s *Store) MarkAuthorized(ctx context.Context, value, verifier string) bool {
	ctx, span := s.startStorageSpan(ctx, "mark_authorized")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "mark_authorized", err, startTime)
	}()

	if verifier == "" {
		err = fmt.Errorf("verifier cannot be empty")
		return false
	}

	s.mu.RLock()
	encryptor := s.encryptor
	s.mu.RUnlock()

	sealed, err := storage.EncryptSecret(verifier, encryptor)
	s.recordEncryption(ctx, "encrypt", encryptor, err)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.liveLocked(value)
	if !ok || record.Kind != storage.KindRequest {
		err = storage.ErrTokenNotFound
		return false
	}

	switch record.Status {
	case storage.StatusUnauthorized:
	case storage.StatusAuthorized:
		if !s.allowReauthorization {
			err = fmt.Errorf("%w: already authorized", storage.ErrTokenRejected)
			return false
		}
		s.logger.Info("Replacing verifier of authorized request token",
			"flow_id", record.FlowID)
	default:
		err = storage.ErrTokenRejected
		return false
	}

	record.Status = storage.StatusAuthorized
	record.Verifier = sealed
	record.AuthorizedAt = s.clock.Now()
	return true
}

// IsAuthorized reports whether value is an authorized request token.
func (s *Store) IsAuthorized(_ context.Context, value string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.liveLocked(value)
	return ok && record.IsAuthorizedRequest()
}

// CheckVerifier compares candidate with the stored verifier in constant time.
func (s *Store) CheckVerifier(ctx context.Context, value, candidate string) bool {
	s.mu.RLock()
	record, ok := s.liveLocked(value)
	var sealed string
	if ok && record.IsAuthorizedRequest() {
		sealed = record.Verifier
	}
	encryptor := s.encryptor
	s.mu.RUnlock()

	if sealed == "" {
		return false
	}

	verifier, err := storage.DecryptSecret(sealed, encryptor)
	s.recordEncryption(ctx, "decrypt", encryptor, err)
	if err != nil {
		s.logger.Error("Failed to decrypt verifier",
			"token_prefix", util.TokenPrefix(value),
			"error", err)
		return false
	}

	return subtle.ConstantTimeCompare([]byte(verifier), []byte(candidate)) == 1
}

// ExchangeForAccessToken burns an authorized request token and creates an
// access token in the same critical section, so it succeeds at most once.
func (s *Store) ExchangeForAccessToken(ctx context.Context, requestValue string) (*storage.Token, error) {
	ctx, span := s.startStorageSpan(ctx, "exchange_for_access_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "exchange_for_access_token", err, startTime)
	}()

	s.mu.RLock()
	encryptor := s.encryptor
	s.mu.RUnlock()

	secret := oauth2.GenerateVerifier()
	storedSecret, err := storage.EncryptSecret(secret, encryptor)
	s.recordEncryption(ctx, "encrypt", encryptor, err)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	request, ok := s.liveLocked(requestValue)
	if !ok || !request.IsAuthorizedRequest() {
		s.mu.Unlock()
		err = storage.ErrTokenRejected
		return nil, err
	}

	request.Status = storage.StatusConsumed
	delete(s.tokens, requestValue)
	s.requestTokensCount.Add(-1)

	now := s.clock.Now()
	access := &storage.Token{
		Value:        s.newTokenValueLocked(),
		Secret:       storedSecret,
		Kind:         storage.KindAccess,
		Status:       storage.StatusAuthorized,
		ClientKey:    request.ClientKey,
		FlowID:       request.FlowID,
		CreatedAt:    now,
		AuthorizedAt: request.AuthorizedAt,
	}
	if s.accessTokenTTL > 0 {
		access.ExpiresAt = now.Add(s.accessTokenTTL)
	}
	s.tokens[access.Value] = access
	s.accessTokensCount.Add(1)
	s.mu.Unlock()

	span.SetAttributes(attribute.String(instrumentation.AttrFlowID, access.FlowID))
	s.logger.Debug("Exchanged request token",
		"request_token_prefix", util.TokenPrefix(requestValue),
		"access_token_prefix", util.TokenPrefix(access.Value),
		"flow_id", access.FlowID)

	issued := access.Clone()
	issued.Secret = secret
	return issued, nil
}

// Invalidate removes a token. Unknown tokens are ignored.
func (s *Store) Invalidate(ctx context.Context, value string) {
	ctx, span := s.startStorageSpan(ctx, "invalidate")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "invalidate", nil, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.tokens[value]; ok {
		s.deleteLocked(value, record)
		s.logger.Debug("Invalidated token",
			"token_prefix", util.TokenPrefix(value),
			"kind", record.Kind,
			"flow_id", record.FlowID)
	}
}

// GetToken returns a decrypted copy of a live token.
func (s *Store) GetToken(ctx context.Context, value string) (*storage.Token, error) {
	ctx, span := s.startStorageSpan(ctx, "get_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_token", err, startTime)
	}()

	s.mu.RLock()
	record, ok := s.liveLocked(value)
	var token *storage.Token
	if ok {
		token = record.Clone()
	}
	encryptor := s.encryptor
	s.mu.RUnlock()

	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrTokenNotFound, util.TokenPrefix(value))
		return nil, err
	}

	if token.Secret, err = storage.DecryptSecret(token.Secret, encryptor); err != nil {
		return nil, err
	}
	if token.Verifier, err = storage.DecryptSecret(token.Verifier, encryptor); err != nil {
		return nil, err
	}
	return token, nil
}

// liveLocked returns the token for value unless it is missing or expired.
// Caller must hold mu.
func (s *Store) liveLocked(value string) (*storage.Token, bool) {
	record, ok := s.tokens[value]
	if !ok || security.IsExpired(s.clock.Now(), record.ExpiresAt) {
		return nil, false
	}
	return record, true
}

// newTokenValueLocked draws token values until one is unused. Caller must hold mu.
func (s *Store) newTokenValueLocked() string {
	for {
		v := oauth2.GenerateVerifier()
		if _, exists := s.tokens[v]; !exists {
			return v
		}
	}
}

func (s *Store) deleteLocked(value string, record *storage.Token) {
	delete(s.tokens, value)
	switch record.Kind {
	case storage.KindRequest:
		s.requestTokensCount.Add(-1)
	case storage.KindAccess:
		s.accessTokensCount.Add(-1)
	}
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes expired tokens.
func (s *Store) cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	cleaned := 0
	for value, record := range s.tokens {
		if security.IsExpired(now, record.ExpiresAt) {
			s.deleteLocked(value, record)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired tokens", "count", cleaned)
	}
	return cleaned
}

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	s.mu.RLock()
	tracer := s.tracer
	s.mu.RUnlock()

	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, storageType)
	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	s.mu.RLock()
	inst := s.instrumentation
	s.mu.RUnlock()

	if inst == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	result := instrumentation.ResultSuccess
	if err != nil {
		result = instrumentation.ResultFailure
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	inst.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}

func (s *Store) recordEncryption(ctx context.Context, operation string, enc *security.Encryptor, err error) {
	if !enc.IsEnabled() {
		return
	}
	s.mu.RLock()
	inst := s.instrumentation
	s.mu.RUnlock()
	if inst == nil {
		return
	}

	result := instrumentation.ResultSuccess
	if err != nil {
		result = instrumentation.ResultFailure
	}
	inst.Metrics().RecordEncryptionOperation(ctx, operation, result)
}
