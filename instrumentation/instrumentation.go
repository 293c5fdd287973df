package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is used when Config.ServiceName is empty
	DefaultServiceName = "oauth1-oob"

	// DefaultServiceVersion is the default service version used when none is provided
	DefaultServiceVersion = "unknown"

	// scopePrefix is prepended to every meter and tracer name.
	scopePrefix = "github.com/giantswarm/oauth1-oob/"
)

// Metrics exporter names accepted by Config.MetricsExporter.
const (
	MetricsExporterNone       = "none"
	MetricsExporterPrometheus = "prometheus"
)

// Config holds instrumentation configuration
type Config struct {
	// ServiceName is the name of the service (e.g., "oauth1-oob")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Enabled controls whether instrumentation is active.
	// When false, no-op providers are used.
	Enabled bool

	// LogClientIPs controls whether client IP addresses are attached to spans.
	// Client IPs may be personal data in some jurisdictions.
	LogClientIPs bool

	// MetricsExporter selects where metrics go: "prometheus" or "none".
	// Empty means "none".
	MetricsExporter string

	// SpanExporter receives finished spans. When nil, tracing is a no-op.
	SpanExporter sdktrace.SpanExporter

	// Resource allows custom resource attributes.
	// If nil, a resource is created with service name and version.
	Resource *resource.Resource
}

// Instrumentation provides OpenTelemetry instrumentation components
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	// set only when the Prometheus exporter is active
	registry       *prometheus.Registry
	metricsHandler http.Handler

	metrics *Metrics

	// registered during New() only
	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}
	if config.MetricsExporter == "" {
		config.MetricsExporter = MetricsExporterNone
	}

	var res *resource.Resource
	var err error
	if config.Resource != nil {
		res = config.Resource
	} else {
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	if config.Enabled {
		if err := inst.initializeProviders(); err != nil {
			return nil, fmt.Errorf("failed to initialize providers: %w", err)
		}
	} else {
		inst.meterProvider = noop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

func (i *Instrumentation) initializeProviders() error {
	switch i.config.MetricsExporter {
	case MetricsExporterPrometheus:
		reg := prometheus.NewRegistry()
		exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
			sdkmetric.WithResource(i.resource),
		)
		i.meterProvider = mp
		i.registry = reg
		i.metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		i.shutdownFuncs = append(i.shutdownFuncs, mp.Shutdown)
	case MetricsExporterNone:
		i.meterProvider = noop.NewMeterProvider()
	default:
		return fmt.Errorf("unsupported metrics exporter %q", i.config.MetricsExporter)
	}

	if i.config.SpanExporter != nil {
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(i.config.SpanExporter),
			sdktrace.WithResource(i.resource),
		)
		i.tracerProvider = tp
		i.shutdownFuncs = append(i.shutdownFuncs, tp.Shutdown)
	} else {
		i.tracerProvider = tracenoop.NewTracerProvider()
	}

	return nil
}

// Shutdown flushes and shuts down all instrumentation providers.
// Only the first call has any effect.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var errs []error

	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})

	return errors.Join(errs...)
}

// ForceFlush exports all spans that have not been exported yet.
func (i *Instrumentation) ForceFlush(ctx context.Context) error {
	if tp, ok := i.tracerProvider.(*sdktrace.TracerProvider); ok {
		return tp.ForceFlush(ctx)
	}
	return nil
}

// Meter returns a named meter for the given scope.
// The full name is "github.com/giantswarm/oauth1-oob/{scope}".
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(scopePrefix + scope)
}

// Tracer returns a named tracer for the given scope.
// The full name is "github.com/giantswarm/oauth1-oob/{scope}".
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(scopePrefix + scope)
}

// Metrics returns the metrics holder for recording metric values
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// MetricsHandler serves the Prometheus exposition format.
// It returns nil unless the Prometheus exporter is enabled.
func (i *Instrumentation) MetricsHandler() http.Handler {
	return i.metricsHandler
}

// TracerProvider returns the underlying tracer provider
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider returns the underlying meter provider
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// ShouldLogClientIPs returns whether client IP addresses should be recorded
func (i *Instrumentation) ShouldLogClientIPs() bool {
	return i.config.LogClientIPs
}

// StorageSizeCallback is a function that returns the current size of a storage component
type StorageSizeCallback func() int64

// RegisterStorageSizeCallbacks registers gauges for the live token and nonce counts.
// Nil callbacks are skipped.
func (i *Instrumentation) RegisterStorageSizeCallbacks(
	requestTokens, accessTokens, nonces StorageSizeCallback,
) error {
	if i.meterProvider == nil {
		return fmt.Errorf("meter provider not initialized")
	}

	meter := i.Meter("storage")

	_, err := meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			if requestTokens != nil {
				observer.ObserveInt64(i.metrics.StorageRequestTokens, requestTokens())
			}
			if accessTokens != nil {
				observer.ObserveInt64(i.metrics.StorageAccessTokens, accessTokens())
			}
			if nonces != nil {
				observer.ObserveInt64(i.metrics.StorageNonces, nonces())
			}
			return nil
		},
		i.metrics.StorageRequestTokens,
		i.metrics.StorageAccessTokens,
		i.metrics.StorageNonces,
	)

	return err
}
