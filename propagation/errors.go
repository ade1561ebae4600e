package propagation

import (
	"fmt"

	opentracing "github.com/opentracing/opentracing-go"
)

// ExtractionError reports a carrier that could not be turned into a
// SpanContext. Callers treat it as "no incoming context" and start a new
// root span.
type ExtractionError struct {
	// Reason describes what was wrong with the carrier.
	Reason string
	// Err is opentracing.ErrSpanContextNotFound when the carrier holds no
	// context, opentracing.ErrSpanContextCorrupted when it holds a bad one.
	Err error
	// DebugID is the value of the debug header, if the carrier carried one
	// without a trace context.
	DebugID string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Reason)
}

// Cause lets github.com/pkg/errors.Cause reach the opentracing sentinel.
func (e *ExtractionError) Cause() error { return e.Err }

func (e *ExtractionError) Unwrap() error { return e.Err }

func notFound(reason string) *ExtractionError {
	return &ExtractionError{Reason: reason, Err: opentracing.ErrSpanContextNotFound}
}

func corrupted(format string, args ...interface{}) *ExtractionError {
	return &ExtractionError{Reason: fmt.Sprintf(format, args...), Err: opentracing.ErrSpanContextCorrupted}
}
