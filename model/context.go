package model

import (
	opentracing "github.com/opentracing/opentracing-go"
)

// Flags is the bitmask carried by every SpanContext.
type Flags byte

const (
	// FlagSampled marks a trace whose spans are recorded and forwarded.
	FlagSampled Flags = 1
	// FlagDebug forces recording regardless of the sampling decision.
	FlagDebug Flags = 2
)

// SpanContext is the propagable identity of a span. It is immutable: every
// method that would change it returns a new value instead.
type SpanContext struct {
	traceID  TraceID
	spanID   SpanID
	parentID SpanID
	flags    Flags
	baggage  map[string]string
}

var _ opentracing.SpanContext = SpanContext{}

// NewSpanContext assembles a context from already known parts, as done when
// decoding a carrier. The baggage map is copied.
func NewSpanContext(traceID TraceID, spanID, parentID SpanID, flags Flags, baggage map[string]string) SpanContext {
	return SpanContext{
		traceID:  traceID,
		spanID:   spanID,
		parentID: parentID,
		flags:    flags,
		baggage:  copyBaggage(baggage, 0),
	}
}

// NewRootContext starts a new trace.
func NewRootContext(sampled, debug bool) SpanContext {
	var flags Flags
	if sampled {
		flags |= FlagSampled
	}
	if debug {
		flags |= FlagDebug
	}
	return SpanContext{
		traceID: NewTraceID(),
		spanID:  NewSpanID(),
		flags:   flags,
	}
}

// NewChildContext derives the context of a span caused by parent. Trace id,
// flags and baggage are inherited; the child never re-samples.
func NewChildContext(parent SpanContext) SpanContext {
	return SpanContext{
		traceID:  parent.traceID,
		spanID:   NewSpanID(),
		parentID: parent.spanID,
		flags:    parent.flags,
		baggage:  parent.baggage,
	}
}

// TraceID returns the id shared by every span of the trace.
func (c SpanContext) TraceID() TraceID { return c.traceID }

// SpanID returns the id of this span.
func (c SpanContext) SpanID() SpanID { return c.spanID }

// ParentID returns zero for root spans.
func (c SpanContext) ParentID() SpanID { return c.parentID }

// Flags returns the sampling flags.
func (c SpanContext) Flags() Flags { return c.flags }

// IsSampled reports whether the trace is recorded.
func (c SpanContext) IsSampled() bool { return c.flags&FlagSampled == FlagSampled }

// IsDebug reports whether sampling was forced for this trace.
func (c SpanContext) IsDebug() bool { return c.flags&FlagDebug == FlagDebug }

// IsRoot reports whether the span has no parent.
func (c SpanContext) IsRoot() bool { return c.parentID == 0 }

// IsValid reports whether both trace and span ids are set.
func (c SpanContext) IsValid() bool {
	return c.traceID.IsValid() && c.spanID != 0
}

// BaggageItem returns the baggage value for key, or "" when absent.
func (c SpanContext) BaggageItem(key string) string {
	return c.baggage[key]
}

// ForeachBaggageItem implements opentracing.SpanContext.
func (c SpanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	for k, v := range c.baggage {
		if !handler(k, v) {
			break
		}
	}
}

// WithBaggageItem returns a copy of the context with key set to value. The
// receiver and every context sharing its baggage are left untouched.
func (c SpanContext) WithBaggageItem(key, value string) SpanContext {
	c.baggage = copyBaggage(c.baggage, 1)
	c.baggage[key] = value
	return c
}

func copyBaggage(src map[string]string, extra int) map[string]string {
	if len(src) == 0 && extra == 0 {
		return nil
	}
	dst := make(map[string]string, len(src)+extra)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
