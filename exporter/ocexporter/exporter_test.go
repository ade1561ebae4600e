package ocexporter

import (
	"testing"
	"time"

	"github.com/jaegertracing/jaeger/thrift-gen/jaeger"
	opentracing "github.com/opentracing/opentracing-go"
	"go.opencensus.io/trace"

	"github.com/census-instrumentation/jaeger-udp-client/collector"
	"github.com/census-instrumentation/jaeger-udp-client/model"
)

var (
	testTraceID = trace.TraceID{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
	testSpanID  = trace.SpanID{0, 0, 0, 0, 0, 0, 0, 1}
	testParent  = trace.SpanID{0, 0, 0, 0, 0, 0, 0, 2}
)

func testSpanData(options trace.TraceOptions) *trace.SpanData {
	start := time.Unix(50, 0)
	return &trace.SpanData{
		SpanContext: trace.SpanContext{
			TraceID:      testTraceID,
			SpanID:       testSpanID,
			TraceOptions: options,
		},
		ParentSpanID: testParent,
		SpanKind:     trace.SpanKindClient,
		Name:         "/cart",
		StartTime:    start,
		EndTime:      start.Add(2 * time.Millisecond),
		Attributes:   map[string]interface{}{"http.method": "GET"},
		Annotations: []trace.Annotation{
			{Time: start.Add(time.Millisecond), Message: "cache miss"},
		},
		Status: trace.Status{Code: trace.StatusCodeUnavailable, Message: "backend down"},
		Links: []trace.Link{
			{TraceID: testTraceID, SpanID: testParent, Type: trace.LinkTypeParent},
			{TraceID: testTraceID, SpanID: trace.SpanID{0, 0, 0, 0, 0, 0, 0, 3}, Type: trace.LinkTypeChild},
		},
	}
}

func TestSpanDataToSpan(t *testing.T) {
	span := spanDataToSpan(testSpanData(1))

	wantTrace := model.TraceID{High: 0x0123456789abcdef, Low: 0x0123456789abcdef}
	if span.Context.TraceID() != wantTrace {
		t.Fatalf("TraceID = %s, want %s", span.Context.TraceID(), wantTrace)
	}
	if span.Context.SpanID() != 1 || span.Context.ParentID() != 2 {
		t.Fatalf("span/parent = %s/%s, want 1/2", span.Context.SpanID(), span.Context.ParentID())
	}
	if !span.Context.IsSampled() {
		t.Fatal("sampled trace option lost")
	}
	if span.Tags["span.kind"] != "client" || span.Tags["error"] != true || span.Tags["status.message"] != "backend down" {
		t.Fatalf("tags = %v", span.Tags)
	}
	if len(span.Logs) != 1 || len(span.References) != 2 {
		t.Fatalf("logs = %v, references = %v", span.Logs, span.References)
	}
	if span.References[0].Type != opentracing.ChildOfRef || span.References[1].Type != opentracing.FollowsFromRef {
		t.Fatalf("reference types = %v, %v", span.References[0].Type, span.References[1].Type)
	}
}

func TestExportSpanThroughCollector(t *testing.T) {
	c := collector.New()
	e := New(c)

	e.ExportSpan(nil)
	e.ExportSpan(testSpanData(0))
	if c.Len() != 0 {
		t.Fatal("unsampled OpenCensus span was queued")
	}

	e.ExportSpan(testSpanData(1))
	spans := c.Drain(0, false)
	if len(spans) != 1 {
		t.Fatalf("drained %d spans, want 1", len(spans))
	}
	got := spans[0]
	if got.OperationName != "/cart" || got.Duration != 2000 || got.StartTime != 50000000 {
		t.Fatalf("wire span = %+v", got)
	}
	if len(got.References) != 2 || got.References[0].RefType != jaeger.SpanRefType_CHILD_OF {
		t.Fatalf("references = %+v", got.References)
	}
}
