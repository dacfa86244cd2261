package deltatracker

import (
	"time"
)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine) error

// WithLogger sets the logger for the Engine.
//
// Debug level: every aggregate query the engine issues
// Info level: run outcomes with counts and durations
// Warn level: data-consistency anomalies
// Error level: failures that abort a run.
func WithLogger(logger Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Engine.
// It receives the same messages as the Logger, together with the run context for trace correlation.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
func WithMetrics(collector MetricsCollector) Option {
	return func(e *Engine) error {
		e.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine.
func WithTracing(collector TracingCollector) Option {
	return func(e *Engine) error {
		e.tracingCollector = collector
		return nil
	}
}

// WithStrictConsistency makes data-consistency anomalies fatal: the run returns ErrDataConsistencyAnomaly
// and writes nothing.
func WithStrictConsistency() Option {
	return func(e *Engine) error {
		e.strict = true
		return nil
	}
}

// WithClock replaces the wall clock the run identifier is derived from.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) error {
		if clock == nil {
			return ErrNilClock
		}

		e.clock = clock

		return nil
	}
}

// WithRunIDGranularity sets the time unit of the run identifier, the default is one microsecond.
func WithRunIDGranularity(granularity time.Duration) Option {
	return func(e *Engine) error {
		if granularity <= 0 {
			return ErrInvalidRunIDGranularity
		}

		e.runIDGranularity = granularity

		return nil
	}
}

// WithSequentialReads disables the single-statement ConsistentSourceAggregator path even if the source
// supports it, so every aggregate is read with its own query.
func WithSequentialReads() Option {
	return func(e *Engine) error {
		e.sequentialReads = true
		return nil
	}
}
