// Package collector turns finished spans into their wire form and queues
// them for the sender.
package collector

import (
	"time"

	"github.com/jaegertracing/jaeger/thrift-gen/jaeger"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-lib/metrics"
	"go.uber.org/zap"

	"github.com/census-instrumentation/jaeger-udp-client/buffer"
	"github.com/census-instrumentation/jaeger-udp-client/model"
)

// Collector gates finished spans on their sampling flags and feeds the
// handoff buffer. Submit is safe for concurrent use.
type Collector struct {
	logger *zap.Logger
	buffer *buffer.Buffer[*jaeger.Span]

	submitted       metrics.Counter
	unsampled       metrics.Counter
	unsupportedRefs metrics.Counter
}

// New creates a Collector with an empty buffer.
func New(opts ...Option) *Collector {
	options := options{
		logger:  zap.NewNop(),
		metrics: metrics.NullFactory,
	}
	for _, o := range opts {
		options = o.apply(options)
	}
	return &Collector{
		logger:          options.logger,
		buffer:          buffer.New[*jaeger.Span](),
		submitted:       options.metrics.Counter(metrics.Options{Name: "spans.submitted"}),
		unsampled:       options.metrics.Counter(metrics.Options{Name: "spans.dropped", Tags: map[string]string{"reason": "unsampled"}}),
		unsupportedRefs: options.metrics.Counter(metrics.Options{Name: "references.unsupported"}),
	}
}

// Submit queues span unless its context is neither sampled nor debug, in
// which case the span is dropped.
func (c *Collector) Submit(span *model.Span, finishTime time.Time) {
	ctx := span.Context
	if !ctx.IsSampled() && !ctx.IsDebug() {
		c.unsampled.Inc(1)
		return
	}

	startTime, duration := buildTimestamps(span.StartTime, finishTime)
	c.buffer.Push(&jaeger.Span{
		TraceIdLow:    int64(ctx.TraceID().Low),
		TraceIdHigh:   int64(ctx.TraceID().High),
		SpanId:        int64(ctx.SpanID()),
		ParentSpanId:  int64(ctx.ParentID()),
		OperationName: span.OperationName,
		References:    c.buildReferences(span.References),
		Flags:         int32(ctx.Flags()),
		StartTime:     startTime,
		Duration:      duration,
		Tags:          buildTags(span.Tags),
		Logs:          buildLogs(span.Logs),
	})
	c.submitted.Inc(1)
}

// Drain hands queued wire spans to the sender. See buffer.Buffer.Drain.
func (c *Collector) Drain(limit int, blocking bool) []*jaeger.Span {
	return c.buffer.Drain(limit, blocking)
}

// Len returns the number of queued spans.
func (c *Collector) Len() int {
	return c.buffer.Len()
}

// Close releases a sender blocked in Drain.
func (c *Collector) Close() {
	c.buffer.Close()
}

// buildReferences converts span references. Kinds other than child-of and
// follows-from are logged and left out of the result.
func (c *Collector) buildReferences(refs []model.Reference) []*jaeger.SpanRef {
	if len(refs) == 0 {
		return nil
	}
	out := make([]*jaeger.SpanRef, 0, len(refs))
	for _, ref := range refs {
		refType, ok := spanRefType(ref.Type)
		if !ok {
			c.unsupportedRefs.Inc(1)
			c.logger.Warn("Span reference type is not supported, skipping it",
				zap.Int("type", int(ref.Type)),
				zap.Stringer("trace_id", ref.Context.TraceID()),
				zap.Stringer("span_id", ref.Context.SpanID()))
			continue
		}
		out = append(out, &jaeger.SpanRef{
			RefType:     refType,
			TraceIdLow:  int64(ref.Context.TraceID().Low),
			TraceIdHigh: int64(ref.Context.TraceID().High),
			SpanId:      int64(ref.Context.SpanID()),
		})
	}
	return out
}

func spanRefType(t opentracing.SpanReferenceType) (jaeger.SpanRefType, bool) {
	switch t {
	case opentracing.ChildOfRef:
		return jaeger.SpanRefType_CHILD_OF, true
	case opentracing.FollowsFromRef:
		return jaeger.SpanRefType_FOLLOWS_FROM, true
	default:
		return 0, false
	}
}

// buildTimestamps returns the start time and duration in microseconds.
func buildTimestamps(start, finish time.Time) (int64, int64) {
	startUs := toMicros(start)
	return startUs, toMicros(finish) - startUs
}

func toMicros(t time.Time) int64 {
	return t.UnixNano() / int64(time.Microsecond)
}
