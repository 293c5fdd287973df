package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
//
// Token values, token secrets, verifiers and signatures must never be
// attached to spans. Only identifiers and outcomes are recorded.
const (
	// Flow attributes
	AttrClientKey       = "oauth1.client_key"
	AttrFlowID          = "oauth1.flow_id"
	AttrStep            = "oauth1.step"
	AttrSignatureMethod = "oauth1.signature_method"
	AttrTokenKind       = "oauth1.token_kind" //nolint:gosec // token kind, not a token
	AttrReauthorized    = "oauth1.reauthorized"
	AttrProblem         = "oauth1.problem"
	AttrValidationCheck = "oauth1.validation.check"

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"

	// Security attributes
	AttrClientIP       = "security.client_ip"
	AttrAuditEventType = "security.audit.event_type"

	// HTTP attributes
	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddFlowAttributes adds the client key and flow ID to a span, skipping empty values.
func AddFlowAttributes(span trace.Span, clientKey, flowID string) {
	if clientKey != "" {
		SetSpanAttributes(span, attribute.String(AttrClientKey, clientKey))
	}
	if flowID != "" {
		SetSpanAttributes(span, attribute.String(AttrFlowID, flowID))
	}
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe)
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe)
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}

// AddSecurityAttributes adds the client IP to a span.
// Callers check ShouldLogClientIPs first.
func AddSecurityAttributes(span trace.Span, clientIP string) {
	if clientIP != "" {
		SetSpanAttributes(span, attribute.String(AttrClientIP, clientIP))
	}
}
