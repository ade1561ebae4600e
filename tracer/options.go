package tracer

import (
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"github.com/census-instrumentation/jaeger-udp-client/model"
)

// An Option configures a Tracer.
type Option interface {
	apply(options) options
}

type option func(options) options

func (f option) apply(opts options) options { return f(opts) }

type options struct {
	logger  *zap.Logger
	timeNow func() time.Time
}

// WithLogger sets the logger for carrier extraction failures.
func WithLogger(logger *zap.Logger) Option {
	return option(func(opts options) options {
		opts.logger = logger
		return opts
	})
}

// WithTimeNow overrides the clock used for span start and finish times.
func WithTimeNow(now func() time.Time) Option {
	return option(func(opts options) options {
		opts.timeNow = now
		return opts
	})
}

// A StartOption configures one span at creation.
type StartOption func(*startOptions)

type startOptions struct {
	references []model.Reference
	startTime  time.Time
	tags       map[string]interface{}
}

// ChildOf makes ctx the parent of the new span.
func ChildOf(ctx model.SpanContext) StartOption {
	return Reference(model.Reference{Type: opentracing.ChildOfRef, Context: ctx})
}

// FollowsFrom links the new span to ctx, which does not wait for it.
func FollowsFrom(ctx model.SpanContext) StartOption {
	return Reference(model.Reference{Type: opentracing.FollowsFromRef, Context: ctx})
}

// Reference attaches an arbitrary reference to the new span.
func Reference(ref model.Reference) StartOption {
	return func(o *startOptions) {
		o.references = append(o.references, ref)
	}
}

// StartTime sets an explicit start time.
func StartTime(t time.Time) StartOption {
	return func(o *startOptions) {
		o.startTime = t
	}
}

// Tag sets a tag on the new span.
func Tag(key string, value interface{}) StartOption {
	return func(o *startOptions) {
		if o.tags == nil {
			o.tags = make(map[string]interface{})
		}
		o.tags[key] = value
	}
}
