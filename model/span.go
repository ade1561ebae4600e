package model

import (
	"time"

	opentracing "github.com/opentracing/opentracing-go"
)

// Reference records a causal relationship to another span, beyond the
// single parent link.
type Reference struct {
	Type    opentracing.SpanReferenceType
	Context SpanContext
}

// Span is a finished unit of work as handed to the collector. Its mutators
// live with the tracer; once finished it is not modified again.
type Span struct {
	Context       SpanContext
	OperationName string
	StartTime     time.Time
	Tags          map[string]interface{}
	Logs          []opentracing.LogRecord
	References    []Reference
}
