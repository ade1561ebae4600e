// Package model holds the identifiers, span contexts and span records shared
// by the tracer, the propagation formats and the collector.
package model

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// TraceID is a random 128bit identifier for a trace.
type TraceID struct {
	High uint64
	Low  uint64
}

// SpanID is a random 64bit identifier for a span.
type SpanID uint64

// IsValid reports whether the trace id is not the all-zero value.
func (t TraceID) IsValid() bool {
	return t.High != 0 || t.Low != 0
}

func (t TraceID) String() string {
	if t.High == 0 {
		return fmt.Sprintf("%016x", t.Low)
	}
	return fmt.Sprintf("%016x%016x", t.High, t.Low)
}

// TraceIDFromString parses a trace id of up to 32 hexadecimal characters.
func TraceIDFromString(s string) (TraceID, error) {
	var hi, lo uint64
	var err error
	switch {
	case s == "":
		return TraceID{}, errors.New("empty trace id")
	case len(s) > 32:
		return TraceID{}, errors.Errorf("trace id cannot be longer than 32 hex characters: %s", s)
	case len(s) > 16:
		hiLen := len(s) - 16
		if hi, err = strconv.ParseUint(s[:hiLen], 16, 64); err != nil {
			return TraceID{}, errors.Wrapf(err, "invalid trace id %q", s)
		}
		if lo, err = strconv.ParseUint(s[hiLen:], 16, 64); err != nil {
			return TraceID{}, errors.Wrapf(err, "invalid trace id %q", s)
		}
	default:
		if lo, err = strconv.ParseUint(s, 16, 64); err != nil {
			return TraceID{}, errors.Wrapf(err, "invalid trace id %q", s)
		}
	}
	return TraceID{High: hi, Low: lo}, nil
}

func (s SpanID) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// SpanIDFromString parses a span id of up to 16 hexadecimal characters.
func SpanIDFromString(s string) (SpanID, error) {
	if len(s) > 16 {
		return 0, errors.Errorf("span id cannot be longer than 16 hex characters: %s", s)
	}
	id, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid span id %q", s)
	}
	return SpanID(id), nil
}

// idSource hands out random ids. math/rand sources are not safe for
// concurrent use, hence the mutex.
type idSource struct {
	mu  sync.Mutex
	rnd *mrand.Rand
}

var ids = newIDSource()

func newIDSource() *idSource {
	var seed int64
	if err := binary.Read(rand.Reader, binary.LittleEndian, &seed); err != nil {
		panic(errors.Wrap(err, "cannot seed span id generator"))
	}
	return &idSource{rnd: mrand.New(mrand.NewSource(seed))}
}

// next returns a random non-zero id.
func (s *idSource) next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var id uint64
	for id == 0 {
		id = s.rnd.Uint64()
	}
	return id
}

// NewSpanID returns a fresh random span id. It never returns zero.
func NewSpanID() SpanID {
	return SpanID(ids.next())
}

// NewTraceID returns a fresh random 128bit trace id.
func NewTraceID() TraceID {
	return TraceID{High: ids.next(), Low: ids.next()}
}
