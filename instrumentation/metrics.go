package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Result label values shared by several counters.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds all metric instruments for the authorization server
type Metrics struct {
	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Three-legged flow
	RequestTokensIssued    metric.Int64Counter
	AuthorizationsTotal    metric.Int64Counter
	AccessTokensIssued     metric.Int64Counter
	ResourceRequestsTotal  metric.Int64Counter
	ExchangeInvalidations  metric.Int64Counter
	SignatureValidationErr metric.Int64Counter

	// Security
	NonceReplayDetected metric.Int64Counter
	RateLimitExceeded   metric.Int64Counter
	AuditEventsTotal    metric.Int64Counter

	// Storage
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StorageRequestTokens     metric.Int64ObservableGauge
	StorageAccessTokens      metric.Int64ObservableGauge
	StorageNonces            metric.Int64ObservableGauge

	// Encryption at rest
	EncryptionOperationsTotal metric.Int64Counter
}

type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) counter(name, description, unit string) metric.Int64Counter {
	if b.err != nil {
		return nil
	}
	c, err := b.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s counter: %w", name, err)
	}
	return c
}

func (b *instrumentBuilder) histogram(name, description, unit string) metric.Float64Histogram {
	if b.err != nil {
		return nil
	}
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}

func (b *instrumentBuilder) gauge(name, description, unit string) metric.Int64ObservableGauge {
	if b.err != nil {
		return nil
	}
	g, err := b.meter.Int64ObservableGauge(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s gauge: %w", name, err)
	}
	return g
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpLayer := &instrumentBuilder{meter: inst.Meter("http")}
	m.HTTPRequestsTotal = httpLayer.counter("oauth1.http.requests.total", "Total number of HTTP requests", "{request}")
	m.HTTPRequestDuration = httpLayer.histogram("oauth1.http.request.duration", "HTTP request duration in milliseconds", "ms")
	if httpLayer.err != nil {
		return nil, httpLayer.err
	}

	server := &instrumentBuilder{meter: inst.Meter("server")}
	m.RequestTokensIssued = server.counter("oauth1.request_token.issued", "Number of temporary credentials issued", "{token}")
	m.AuthorizationsTotal = server.counter("oauth1.authorization.total", "Number of resource owner authorization attempts", "{authorization}")
	m.AccessTokensIssued = server.counter("oauth1.access_token.issued", "Number of token credentials issued", "{token}")
	m.ResourceRequestsTotal = server.counter("oauth1.resource.requests.total", "Number of signed resource requests validated", "{request}")
	m.ExchangeInvalidations = server.counter("oauth1.exchange.invalidations", "Request tokens burned after a failed exchange", "{token}")
	m.SignatureValidationErr = server.counter("oauth1.validation.failures", "Signed requests rejected by the validator", "{request}")
	if server.err != nil {
		return nil, server.err
	}

	security := &instrumentBuilder{meter: inst.Meter("security")}
	m.NonceReplayDetected = security.counter("oauth1.nonce.replay_detected", "Requests rejected because the nonce was already used", "{request}")
	m.RateLimitExceeded = security.counter("oauth1.rate_limit.exceeded", "Requests rejected by the rate limiter", "{request}")
	m.AuditEventsTotal = security.counter("oauth1.audit.events.total", "Security audit events emitted", "{event}")
	m.EncryptionOperationsTotal = security.counter("oauth1.encryption.operations.total", "Token secret encryption and decryption operations", "{operation}")
	if security.err != nil {
		return nil, security.err
	}

	storage := &instrumentBuilder{meter: inst.Meter("storage")}
	m.StorageOperationTotal = storage.counter("oauth1.storage.operations.total", "Total storage operations", "{operation}")
	m.StorageOperationDuration = storage.histogram("oauth1.storage.operation.duration", "Storage operation duration in milliseconds", "ms")
	m.StorageRequestTokens = storage.gauge("oauth1.storage.request_tokens.count", "Request tokens currently stored", "{token}")
	m.StorageAccessTokens = storage.gauge("oauth1.storage.access_tokens.count", "Access tokens currently stored", "{token}")
	m.StorageNonces = storage.gauge("oauth1.storage.nonces.count", "Timestamp and nonce pairs currently retained", "{nonce}")
	if storage.err != nil {
		return nil, storage.err
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with its outcome and duration
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

// RecordRequestTokenIssued records the first leg of a flow
func (m *Metrics) RecordRequestTokenIssued(ctx context.Context, clientKey string) {
	m.RequestTokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_key", clientKey),
	))
}

// RecordAuthorization records a resource owner authorization attempt
func (m *Metrics) RecordAuthorization(ctx context.Context, result string, reauthorized bool) {
	m.AuthorizationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.Bool("reauthorized", reauthorized),
	))
}

// RecordAccessTokenIssued records a successful exchange
func (m *Metrics) RecordAccessTokenIssued(ctx context.Context, clientKey string) {
	m.AccessTokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_key", clientKey),
	))
}

// RecordResourceRequest records a signed resource request
func (m *Metrics) RecordResourceRequest(ctx context.Context, result string) {
	m.ResourceRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordExchangeInvalidation records a request token invalidated by a failed exchange
func (m *Metrics) RecordExchangeInvalidation(ctx context.Context, reason string) {
	m.ExchangeInvalidations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordValidationFailure records a rejected signed request
func (m *Metrics) RecordValidationFailure(ctx context.Context, step, reason string) {
	m.SignatureValidationErr.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("reason", reason),
	))
}

// RecordNonceReplay records a replayed or stale timestamp and nonce pair
func (m *Metrics) RecordNonceReplay(ctx context.Context) {
	m.NonceReplayDetected.Add(ctx, 1)
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordEncryptionOperation records an encryption or decryption of a stored secret
func (m *Metrics) RecordEncryptionOperation(ctx context.Context, operation, result string) {
	m.EncryptionOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
}
