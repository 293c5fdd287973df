// Package instrumentation wires OpenTelemetry metrics and tracing into the
// authorization server.
//
// Metrics can be exported in Prometheus format through a dedicated registry:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:         true,
//		ServiceName:     "oauth1-oob",
//		MetricsExporter: instrumentation.MetricsExporterPrometheus,
//	})
//	if err != nil {
//		return err
//	}
//	defer inst.Shutdown(context.Background())
//
//	router.Handle("/metrics", inst.MetricsHandler())
//
// Tracing is enabled by supplying a SpanExporter. Without one the tracer
// provider is a no-op.
//
// # Available Metrics
//
// HTTP:
//   - oauth1.http.requests.total{method, endpoint, status}
//   - oauth1.http.request.duration{endpoint}
//
// Flow:
//   - oauth1.request_token.issued{client_key}
//   - oauth1.authorization.total{result, reauthorized}
//   - oauth1.access_token.issued{client_key}
//   - oauth1.resource.requests.total{result}
//   - oauth1.exchange.invalidations{reason}
//   - oauth1.validation.failures{step, reason}
//
// Security:
//   - oauth1.nonce.replay_detected
//   - oauth1.rate_limit.exceeded{endpoint}
//   - oauth1.audit.events.total{event_type}
//   - oauth1.encryption.operations.total{operation, result}
//
// Storage:
//   - oauth1.storage.operations.total{operation, result}
//   - oauth1.storage.operation.duration{operation}
//   - oauth1.storage.request_tokens.count
//   - oauth1.storage.access_tokens.count
//   - oauth1.storage.nonces.count
//
// Span attributes never carry token values, secrets or verifiers.
package instrumentation
