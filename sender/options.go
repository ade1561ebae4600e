package sender

import (
	"time"

	"github.com/uber/jaeger-lib/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultChunkLimit is the number of spans per batch.
	DefaultChunkLimit = 1
	// DefaultFlushInterval is the period of the backlog gauge reporter.
	DefaultFlushInterval = 10 * time.Second
)

// An Option is a functional option.
type Option interface {
	apply(options) options
}

type option func(options) options

func (f option) apply(opts options) options { return f(opts) }

type options struct {
	chunkLimit    int
	flushInterval time.Duration
	processTags   map[string]interface{}
	logger        *zap.Logger
	metrics       metrics.Factory
}

// WithChunkLimit bounds the number of spans per transmitted batch. Values
// below one fall back to DefaultChunkLimit.
func WithChunkLimit(limit int) Option {
	return option(func(opts options) options {
		opts.chunkLimit = limit
		return opts
	})
}

// WithFlushInterval sets how often the backlog gauge is published. Draining
// does not wait for it: spans are sent as soon as they are available.
func WithFlushInterval(d time.Duration) Option {
	return option(func(opts options) options {
		opts.flushInterval = d
		return opts
	})
}

// WithProcessTags adds static tags to the process of every batch.
func WithProcessTags(tags map[string]interface{}) Option {
	return option(func(opts options) options {
		opts.processTags = tags
		return opts
	})
}

// WithLogger sets the logger for lifecycle and emit failures.
func WithLogger(logger *zap.Logger) Option {
	return option(func(opts options) options {
		opts.logger = logger
		return opts
	})
}

// WithMetrics sets the factory for batch, span and backlog metrics.
func WithMetrics(factory metrics.Factory) Option {
	return option(func(opts options) options {
		opts.metrics = factory
		return opts
	})
}
