// Package ocexporter feeds spans finished by go.opencensus.io/trace into the
// collector, so OpenCensus-instrumented code ships through the same UDP
// sender.
package ocexporter

import (
	"encoding/binary"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"go.opencensus.io/trace"

	"github.com/census-instrumentation/jaeger-udp-client/model"
	"github.com/census-instrumentation/jaeger-udp-client/tracer"
)

const (
	statusCodeTagKey    = "status.code"
	statusMessageTagKey = "status.message"
	errorTagKey         = "error"
	spanKindTagKey      = "span.kind"
)

// Exporter implements trace.Exporter.
type Exporter struct {
	recorder tracer.SpanRecorder
}

var _ trace.Exporter = (*Exporter)(nil)

// New creates an Exporter writing to recorder.
func New(recorder tracer.SpanRecorder) *Exporter {
	return &Exporter{recorder: recorder}
}

// ExportSpan converts and submits one OpenCensus span. The sampling gate
// still applies.
func (e *Exporter) ExportSpan(sd *trace.SpanData) {
	if sd == nil {
		return
	}
	span := spanDataToSpan(sd)
	e.recorder.Submit(span, sd.EndTime)
}

func spanDataToSpan(sd *trace.SpanData) *model.Span {
	var flags model.Flags
	if sd.IsSampled() {
		flags |= model.FlagSampled
	}
	ctx := model.NewSpanContext(
		traceIDFromBytes(sd.TraceID),
		spanIDFromBytes(sd.SpanID),
		spanIDFromBytes(sd.ParentSpanID),
		flags,
		nil,
	)

	tags := make(map[string]interface{}, len(sd.Attributes)+3)
	for k, v := range sd.Attributes {
		tags[k] = v
	}
	switch sd.SpanKind {
	case trace.SpanKindClient:
		tags[spanKindTagKey] = "client"
	case trace.SpanKindServer:
		tags[spanKindTagKey] = "server"
	}
	if sd.Status.Code != trace.StatusCodeOK {
		tags[statusCodeTagKey] = sd.Status.Code
		tags[errorTagKey] = true
		if sd.Status.Message != "" {
			tags[statusMessageTagKey] = sd.Status.Message
		}
	}

	logs := make([]opentracing.LogRecord, 0, len(sd.Annotations))
	for _, a := range sd.Annotations {
		fields := []log.Field{log.String("message", a.Message)}
		for k, v := range a.Attributes {
			fields = append(fields, log.Object(k, v))
		}
		logs = append(logs, opentracing.LogRecord{Timestamp: a.Time, Fields: fields})
	}

	refs := make([]model.Reference, 0, len(sd.Links))
	for _, l := range sd.Links {
		refType := opentracing.FollowsFromRef
		if l.Type == trace.LinkTypeParent {
			refType = opentracing.ChildOfRef
		}
		refs = append(refs, model.Reference{
			Type:    refType,
			Context: model.NewSpanContext(traceIDFromBytes(l.TraceID), spanIDFromBytes(l.SpanID), 0, flags, nil),
		})
	}

	return &model.Span{
		Context:       ctx,
		OperationName: sd.Name,
		StartTime:     sd.StartTime,
		Tags:          tags,
		Logs:          logs,
		References:    refs,
	}
}

func traceIDFromBytes(id trace.TraceID) model.TraceID {
	return model.TraceID{
		High: binary.BigEndian.Uint64(id[0:8]),
		Low:  binary.BigEndian.Uint64(id[8:16]),
	}
}

func spanIDFromBytes(id trace.SpanID) model.SpanID {
	return model.SpanID(binary.BigEndian.Uint64(id[:]))
}
