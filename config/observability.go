package config

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/AntonStoeckl/specquery-go/specquery"
	"github.com/AntonStoeckl/specquery-go/specquery/oteladapters"
	"github.com/AntonStoeckl/specquery-go/specquery/sqlengine"
)

// ErrObservabilitySetupFailed is returned when an OpenTelemetry provider or exporter cannot be created.
var ErrObservabilitySetupFailed = errors.New("observability setup failed")

var (
	newTraceExporter = func(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	}

	newMetricExporter = func(ctx context.Context, endpoint string) (sdkmetric.Exporter, error) {
		return otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
	}
)

// Observability holds the OpenTelemetry providers and the specquery adapters built on top of them.
type Observability struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Resource       *resource.Resource

	metricsCollector *oteladapters.MetricsCollector
	tracingCollector *oteladapters.TracingCollector
	contextualLogger *oteladapters.SlogBridgeLogger
}

// NewObservability creates tracer and meter providers for the telemetry settings.
// Spans and metrics are exported over OTLP gRPC only to the endpoints that are configured.
func (c *Config) NewObservability(ctx context.Context) (*Observability, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(c.Telemetry.ServiceName),
		),
	)
	if err != nil {
		return nil, errors.Join(ErrObservabilitySetupFailed, err)
	}

	traceOptions := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	var traceExporter sdktrace.SpanExporter

	if c.Telemetry.TraceEndpoint != "" {
		exporter, exporterErr := newTraceExporter(ctx, c.Telemetry.TraceEndpoint)
		if exporterErr != nil {
			return nil, errors.Join(ErrObservabilitySetupFailed, exporterErr)
		}

		traceExporter = exporter
		traceOptions = append(traceOptions, sdktrace.WithBatcher(traceExporter))
	}

	meterOptions := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if c.Telemetry.MetricEndpoint != "" {
		metricExporter, exporterErr := newMetricExporter(ctx, c.Telemetry.MetricEndpoint)
		if exporterErr != nil {
			return nil, errors.Join(ErrObservabilitySetupFailed, exporterErr, shutdownExporter(ctx, traceExporter))
		}

		meterOptions = append(meterOptions, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(c.Telemetry.MetricInterval)),
		))
	}

	tracerProvider := sdktrace.NewTracerProvider(traceOptions...)
	meterProvider := sdkmetric.NewMeterProvider(meterOptions...)
	name := c.Telemetry.ServiceName

	return &Observability{
		TracerProvider:   tracerProvider,
		MeterProvider:    meterProvider,
		Resource:         res,
		metricsCollector: oteladapters.NewMetricsCollector(meterProvider.Meter(name)),
		tracingCollector: oteladapters.NewTracingCollector(tracerProvider.Tracer(name)),
		contextualLogger: oteladapters.NewSlogBridgeLogger(name),
	}, nil
}

// shutdownExporter stops an exporter that was created before a later setup step failed.
func shutdownExporter(ctx context.Context, exporter sdktrace.SpanExporter) error {
	if exporter == nil {
		return nil
	}

	return exporter.Shutdown(ctx)
}

// Install makes the providers the global OpenTelemetry providers.
func (o *Observability) Install() {
	otel.SetTracerProvider(o.TracerProvider)
	otel.SetMeterProvider(o.MeterProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
}

// ResolverOptions wires metrics, tracing and the slog bridge logger into a specquery.Resolver.
func (o *Observability) ResolverOptions() []specquery.Option {
	return []specquery.Option{
		specquery.WithMetrics(o.metricsCollector),
		specquery.WithTracing(o.tracingCollector),
		specquery.WithContextualLogger(o.contextualLogger),
	}
}

// ProviderOptions wires metrics and the slog bridge logger into a sqlengine.Provider.
func (o *Observability) ProviderOptions() []sqlengine.Option {
	return []sqlengine.Option{
		sqlengine.WithMetrics(o.metricsCollector),
		sqlengine.WithContextualLogger(o.contextualLogger),
	}
}

// NewResolverOptions returns the options for a specquery.Resolver that logs to logger and, when
// observability is not nil, also records metrics and spans and emits slog bridge records.
func NewResolverOptions(logger specquery.Logger, observability *Observability) []specquery.Option {
	var options []specquery.Option

	if logger != nil {
		options = append(options, specquery.WithLogger(logger))
	}

	if observability != nil {
		options = append(options, observability.ResolverOptions()...)
	}

	return options
}

// NewProviderOptions is the sqlengine.Provider counterpart of NewResolverOptions.
func NewProviderOptions(logger specquery.Logger, observability *Observability) []sqlengine.Option {
	var options []sqlengine.Option

	if logger != nil {
		options = append(options, sqlengine.WithLogger(logger))
	}

	if observability != nil {
		options = append(options, observability.ProviderOptions()...)
	}

	return options
}

// Shutdown flushes and stops both providers.
func (o *Observability) Shutdown(ctx context.Context) error {
	return errors.Join(
		o.TracerProvider.Shutdown(ctx),
		o.MeterProvider.Shutdown(ctx),
	)
}
