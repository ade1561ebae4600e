// Package tracer starts and finishes spans on top of the sampler and the
// collector. A Tracer is built once and handed to the code that needs it;
// there is no process-wide instance.
package tracer

import (
	"context"
	"sync"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"go.uber.org/zap"

	"github.com/census-instrumentation/jaeger-udp-client/model"
	"github.com/census-instrumentation/jaeger-udp-client/propagation"
	"github.com/census-instrumentation/jaeger-udp-client/sampler"
)

// DebugIDTagKey records the debug id of a forced-debug root span.
const DebugIDTagKey = propagation.DebugHeaderName

// SpanRecorder receives finished spans; *collector.Collector satisfies it.
type SpanRecorder interface {
	Submit(span *model.Span, finishTime time.Time)
}

// Tracer creates spans. It is safe for concurrent use.
type Tracer struct {
	options
	sampler  sampler.Sampler
	recorder SpanRecorder
	textMap  *propagation.Propagator
	headers  *propagation.Propagator
}

// New creates a Tracer.
func New(s sampler.Sampler, recorder SpanRecorder, opts ...Option) *Tracer {
	options := options{
		logger:  zap.NewNop(),
		timeNow: time.Now,
	}
	for _, o := range opts {
		options = o.apply(options)
	}
	return &Tracer{
		options:  options,
		sampler:  s,
		recorder: recorder,
		textMap:  propagation.NewTextMapPropagator(),
		headers:  propagation.NewHTTPHeaderPropagator(),
	}
}

// StartSpan starts a span. The first child-of reference, or failing that the
// first follows-from reference, becomes the parent; without one a new trace
// is started and the sampler consulted.
func (t *Tracer) StartSpan(operationName string, opts ...StartOption) *Span {
	var so startOptions
	for _, o := range opts {
		o(&so)
	}
	return t.startSpan(operationName, so, nil)
}

func (t *Tracer) startSpan(operationName string, so startOptions, rootCtx *model.SpanContext) *Span {
	if so.startTime.IsZero() {
		so.startTime = t.timeNow()
	}
	tags := make(map[string]interface{}, len(so.tags))
	for k, v := range so.tags {
		tags[k] = v
	}

	var ctx model.SpanContext
	if parent, ok := pickParent(so.references); ok {
		ctx = model.NewChildContext(parent)
	} else {
		if rootCtx != nil {
			ctx = *rootCtx
		} else {
			ctx = model.NewRootContext(false, false)
		}
		if !ctx.IsDebug() {
			sampled, samplerTags := t.sampler.Decide(operationName, ctx.TraceID())
			ctx = model.NewSpanContext(ctx.TraceID(), ctx.SpanID(), 0, flagsFor(sampled), nil)
			for k, v := range samplerTags {
				tags[k] = v
			}
		}
	}

	return &Span{
		tracer: t,
		span: model.Span{
			Context:       ctx,
			OperationName: operationName,
			StartTime:     so.startTime,
			Tags:          tags,
			References:    so.references,
		},
	}
}

func flagsFor(sampled bool) model.Flags {
	if sampled {
		return model.FlagSampled
	}
	return 0
}

func pickParent(refs []model.Reference) (model.SpanContext, bool) {
	for _, want := range []opentracing.SpanReferenceType{opentracing.ChildOfRef, opentracing.FollowsFromRef} {
		for _, ref := range refs {
			if ref.Type == want && ref.Context.IsValid() {
				return ref.Context, true
			}
		}
	}
	return model.SpanContext{}, false
}

// Inject writes ctx into a text map carrier.
func (t *Tracer) Inject(ctx model.SpanContext, carrier opentracing.TextMapWriter) {
	t.textMap.Inject(ctx, carrier)
}

// InjectHTTP writes ctx into HTTP headers.
func (t *Tracer) InjectHTTP(ctx model.SpanContext, carrier opentracing.HTTPHeadersCarrier) {
	t.headers.Inject(ctx, carrier)
}

// StartSpanFromCarrier continues the trace found in carrier. A missing or
// malformed context starts a new trace instead; a debug id without a context
// starts a forced-debug trace tagged with that id.
func (t *Tracer) StartSpanFromCarrier(operationName string, carrier opentracing.TextMapReader, opts ...StartOption) *Span {
	propagator := t.textMap
	if _, ok := carrier.(opentracing.HTTPHeadersCarrier); ok {
		propagator = t.headers
	}

	var so startOptions
	for _, o := range opts {
		o(&so)
	}

	parent, err := propagator.Extract(carrier)
	if err == nil {
		so.references = append([]model.Reference{{Type: opentracing.ChildOfRef, Context: parent}}, so.references...)
		return t.startSpan(operationName, so, nil)
	}

	t.logger.Debug("No usable incoming span context, starting a new trace", zap.Error(err))
	if extractErr, ok := err.(*propagation.ExtractionError); ok && extractErr.DebugID != "" {
		root := model.NewRootContext(true, true)
		span := t.startSpan(operationName, so, &root)
		span.span.Tags[DebugIDTagKey] = extractErr.DebugID
		return span
	}
	return t.startSpan(operationName, so, nil)
}

// Close releases the sampler.
func (t *Tracer) Close() {
	t.sampler.Close()
}

// Span is a span in progress. Its methods are safe for concurrent use;
// after Finish they do nothing.
type Span struct {
	tracer *Tracer

	mu       sync.Mutex
	span     model.Span
	finished bool
}

// Context returns the span's context.
func (s *Span) Context() model.SpanContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.span.Context
}

// SetTag sets a tag.
func (s *Span) SetTag(key string, value interface{}) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.span.Tags[key] = value
	}
	return s
}

// SetOperationName renames the span.
func (s *Span) SetOperationName(name string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.span.OperationName = name
	}
	return s
}

// LogFields appends a timestamped log record.
func (s *Span) LogFields(fields ...log.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.span.Logs = append(s.span.Logs, opentracing.LogRecord{Timestamp: s.tracer.timeNow(), Fields: fields})
	}
}

// SetBaggageItem replaces the span context with one carrying key=value.
// Contexts already handed out are not affected.
func (s *Span) SetBaggageItem(key, value string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.span.Context = s.span.Context.WithBaggageItem(key, value)
	}
	return s
}

// Finish records the span with the current time.
func (s *Span) Finish() {
	s.FinishWithTime(s.tracer.timeNow())
}

// FinishWithTime records the span once; later calls are ignored.
func (s *Span) FinishWithTime(t time.Time) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	span := s.span
	s.mu.Unlock()

	s.tracer.recorder.Submit(&span, t)
}

type spanKey struct{}

// ContextWithSpan returns a context carrying span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanKey{}, span)
}

// SpanFromContext returns the span stored by ContextWithSpan, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

// StartSpanFromContext starts a child of the span in ctx, if any, and
// returns it along with a context carrying it.
func (t *Tracer) StartSpanFromContext(ctx context.Context, operationName string, opts ...StartOption) (*Span, context.Context) {
	if parent := SpanFromContext(ctx); parent != nil {
		opts = append([]StartOption{ChildOf(parent.Context())}, opts...)
	}
	span := t.StartSpan(operationName, opts...)
	return span, ContextWithSpan(ctx, span)
}
