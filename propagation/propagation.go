// Package propagation encodes SpanContexts into text carriers and back, so a
// trace can continue across process boundaries.
//
// The main field is "{trace-id}:{span-id}:{parent-id}:{flags}" in hex, with
// a zero parent id for root spans. Baggage travels as one entry per item
// under a reserved key prefix.
package propagation

import (
	"net/url"
	"strconv"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"

	"github.com/census-instrumentation/jaeger-udp-client/model"
)

const (
	// TraceContextHeaderName carries the main context field.
	TraceContextHeaderName = "uber-trace-id"
	// TraceBaggageHeaderPrefix namespaces baggage entries.
	TraceBaggageHeaderPrefix = "uberctx-"
	// DebugHeaderName asks for a forced-debug root trace when no context is present.
	DebugHeaderName = "jaeger-debug-id"

	maxHeaderLength = 200
)

// ContextToString renders the main context field.
func ContextToString(ctx model.SpanContext) string {
	var b strings.Builder
	b.WriteString(ctx.TraceID().String())
	b.WriteByte(':')
	b.WriteString(ctx.SpanID().String())
	b.WriteByte(':')
	b.WriteString(ctx.ParentID().String())
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(uint64(ctx.Flags()), 16))
	return b.String()
}

// ContextFromString parses the main context field. It never substitutes a
// default id: any malformed part fails the whole decode.
func ContextFromString(value string) (model.SpanContext, error) {
	if value == "" {
		return model.SpanContext{}, notFound("empty context value")
	}
	if len(value) > maxHeaderLength {
		return model.SpanContext{}, corrupted("context value longer than %d characters", maxHeaderLength)
	}
	parts := strings.Split(value, ":")
	if len(parts) != 4 {
		return model.SpanContext{}, corrupted("expected 4 fields, got %d in %q", len(parts), value)
	}
	traceID, err := model.TraceIDFromString(parts[0])
	if err != nil {
		return model.SpanContext{}, corrupted("bad trace id: %v", err)
	}
	if !traceID.IsValid() {
		return model.SpanContext{}, corrupted("trace id is zero")
	}
	spanID, err := model.SpanIDFromString(parts[1])
	if err != nil {
		return model.SpanContext{}, corrupted("bad span id: %v", err)
	}
	parentID, err := model.SpanIDFromString(parts[2])
	if err != nil {
		return model.SpanContext{}, corrupted("bad parent id: %v", err)
	}
	flags, err := strconv.ParseUint(parts[3], 16, 8)
	if err != nil {
		return model.SpanContext{}, corrupted("bad flags %q", parts[3])
	}
	return model.NewSpanContext(traceID, spanID, parentID, model.Flags(flags), nil), nil
}

// Propagator injects and extracts contexts through opentracing text map
// carriers.
type Propagator struct {
	headerName    string
	baggagePrefix string
	debugHeader   string
	encodeValues  bool
}

// NewTextMapPropagator returns a propagator for plain string maps.
func NewTextMapPropagator() *Propagator {
	return &Propagator{
		headerName:    TraceContextHeaderName,
		baggagePrefix: TraceBaggageHeaderPrefix,
		debugHeader:   DebugHeaderName,
	}
}

// NewHTTPHeaderPropagator returns a propagator for HTTP headers. Baggage
// values are URL-escaped since header values are restricted.
func NewHTTPHeaderPropagator() *Propagator {
	p := NewTextMapPropagator()
	p.encodeValues = true
	return p
}

// Inject writes ctx into carrier.
func (p *Propagator) Inject(ctx model.SpanContext, carrier opentracing.TextMapWriter) {
	carrier.Set(p.headerName, ContextToString(ctx))
	ctx.ForeachBaggageItem(func(k, v string) bool {
		if p.encodeValues {
			v = url.QueryEscape(v)
		}
		carrier.Set(p.baggagePrefix+k, v)
		return true
	})
}

// Extract reads a context from carrier. Keys are matched case-insensitively.
// The returned error is always an *ExtractionError.
func (p *Propagator) Extract(carrier opentracing.TextMapReader) (model.SpanContext, error) {
	var (
		ctx     model.SpanContext
		found   bool
		debugID string
		baggage map[string]string
	)
	err := carrier.ForeachKey(func(rawKey, value string) error {
		key := strings.ToLower(rawKey)
		switch {
		case key == p.headerName:
			var err error
			if ctx, err = ContextFromString(value); err != nil {
				return err
			}
			found = true
		case key == p.debugHeader:
			debugID = value
		case strings.HasPrefix(key, p.baggagePrefix):
			if p.encodeValues {
				if unescaped, err := url.QueryUnescape(value); err == nil {
					value = unescaped
				}
			}
			if baggage == nil {
				baggage = make(map[string]string)
			}
			// HTTP header names come back canonicalized, so only the
			// lowercased name matches what was injected.
			name := rawKey[len(p.baggagePrefix):]
			if p.encodeValues {
				name = key[len(p.baggagePrefix):]
			}
			baggage[name] = value
		}
		return nil
	})
	if err != nil {
		if extractErr, ok := err.(*ExtractionError); ok {
			return model.SpanContext{}, extractErr
		}
		return model.SpanContext{}, corrupted("reading carrier: %v", err)
	}
	if !found {
		e := notFound("no " + p.headerName + " entry")
		e.DebugID = debugID
		return model.SpanContext{}, e
	}
	if baggage != nil {
		ctx = model.NewSpanContext(ctx.TraceID(), ctx.SpanID(), ctx.ParentID(), ctx.Flags(), baggage)
	}
	return ctx, nil
}

var defaultPropagator = NewTextMapPropagator()

// Encode renders ctx as a text map carrier.
func Encode(ctx model.SpanContext) opentracing.TextMapCarrier {
	carrier := opentracing.TextMapCarrier{}
	defaultPropagator.Inject(ctx, carrier)
	return carrier
}

// Decode is the inverse of Encode.
func Decode(carrier opentracing.TextMapReader) (model.SpanContext, error) {
	return defaultPropagator.Extract(carrier)
}
