package eventproc

// Option configures a Processor with optional dependencies.
type Option func(*processorOptions)

// processorOptions holds optional Processor configuration applied by
// functional Options at construction time.
type processorOptions struct {
	logger  Logger
	metrics MetricsCollector
}

// WithLogger sets a logger. Any structured logger that satisfies the
// Logger interface can be used.
func WithLogger(logger Logger) Option {
	return func(o *processorOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *processorOptions) {
		o.metrics = metrics
	}
}
