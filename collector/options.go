package collector

import (
	"github.com/uber/jaeger-lib/metrics"
	"go.uber.org/zap"
)

// An Option is a functional option.
type Option interface {
	apply(options) options
}

type option func(options) options

func (f option) apply(opts options) options { return f(opts) }

type options struct {
	logger  *zap.Logger
	metrics metrics.Factory
}

// WithLogger sets the logger used for dropped references.
func WithLogger(logger *zap.Logger) Option {
	return option(func(opts options) options {
		opts.logger = logger
		return opts
	})
}

// WithMetrics sets the factory for the submit and drop counters.
func WithMetrics(factory metrics.Factory) Option {
	return option(func(opts options) options {
		opts.metrics = factory
		return opts
	})
}
