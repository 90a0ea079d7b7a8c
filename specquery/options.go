package specquery

// Option defines a functional option for configuring a Resolver.
type Option func(*Resolver) error

// WithLogger sets the logger for the Resolver.
//
// Info level: resolution outcomes with durations (production-safe)
// Error level: failures that end a resolution call.
func WithLogger(logger Logger) Option {
	return func(r *Resolver) error {
		r.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, which receives the same messages as
// the Logger but with the call's context for trace correlation.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(r *Resolver) error {
		r.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Resolver.
func WithMetrics(collector MetricsCollector) Option {
	return func(r *Resolver) error {
		r.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Resolver.
func WithTracing(collector TracingCollector) Option {
	return func(r *Resolver) error {
		r.tracingCollector = collector
		return nil
	}
}
