// Package sampler decides, once per trace, whether its spans are recorded.
package sampler

import (
	"fmt"
	"math"

	"github.com/uber/jaeger-lib/utils"

	"github.com/census-instrumentation/jaeger-udp-client/model"
)

const (
	// TypeConst always returns the decision it was built with.
	TypeConst = "const"
	// TypeProbabilistic samples a fixed fraction of traces.
	TypeProbabilistic = "probabilistic"
	// TypeRateLimiting samples up to a number of traces per second.
	TypeRateLimiting = "ratelimiting"
	// TypeRemote follows the strategy served by the agent.
	TypeRemote = "remote"

	// TagType and TagParam are attached to root spans to describe the decision.
	TagType  = "sampler.type"
	TagParam = "sampler.param"
)

// Sampler makes the sampling decision for a new trace. It is consulted only
// when a root span is created; descendants inherit the decision through the
// context flags.
type Sampler interface {
	// Decide reports whether the trace should be sampled and the tags to put
	// on its root span.
	Decide(operation string, id model.TraceID) (bool, map[string]interface{})
	// Close releases any background resources.
	Close()
}

// ConstSampler returns the same decision for every trace.
type ConstSampler struct {
	decision bool
	tags     map[string]interface{}
}

// NewConstSampler creates a ConstSampler.
func NewConstSampler(sample bool) *ConstSampler {
	return &ConstSampler{
		decision: sample,
		tags:     map[string]interface{}{TagType: TypeConst, TagParam: sample},
	}
}

// Decide implements Sampler.
func (s *ConstSampler) Decide(operation string, id model.TraceID) (bool, map[string]interface{}) {
	return s.decision, s.tags
}

// Close implements Sampler; there is nothing to release.
func (s *ConstSampler) Close() {}

// String describes the sampler and its parameter.
func (s *ConstSampler) String() string {
	return fmt.Sprintf("ConstSampler(decision=%t)", s.decision)
}

const maxRandomNumber = ^(uint64(1) << 63) // 0x7fffffffffffffff

// ProbabilisticSampler samples a fraction of traces, using the low word of
// the trace id as the source of randomness so every process reaching the
// same trace agrees.
type ProbabilisticSampler struct {
	rate     float64
	boundary uint64
	tags     map[string]interface{}
}

// NewProbabilisticSampler creates a sampler for rate, clamped to [0, 1].
func NewProbabilisticSampler(rate float64) *ProbabilisticSampler {
	rate = math.Max(0, math.Min(1, rate))
	return &ProbabilisticSampler{
		rate:     rate,
		boundary: uint64(float64(maxRandomNumber) * rate),
		tags:     map[string]interface{}{TagType: TypeProbabilistic, TagParam: rate},
	}
}

// SamplingRate returns the effective rate.
func (s *ProbabilisticSampler) SamplingRate() float64 { return s.rate }

// Decide implements Sampler.
func (s *ProbabilisticSampler) Decide(operation string, id model.TraceID) (bool, map[string]interface{}) {
	return s.boundary >= id.Low&maxRandomNumber, s.tags
}

// Close implements Sampler; there is nothing to release.
func (s *ProbabilisticSampler) Close() {}

// String describes the sampler and its parameter.
func (s *ProbabilisticSampler) String() string {
	return fmt.Sprintf("ProbabilisticSampler(rate=%v)", s.rate)
}

// RateLimitingSampler samples at most a given number of traces per second.
type RateLimitingSampler struct {
	maxTracesPerSecond float64
	limiter            utils.RateLimiter
	tags               map[string]interface{}
}

// NewRateLimitingSampler creates a sampler admitting maxTracesPerSecond.
func NewRateLimitingSampler(maxTracesPerSecond float64) *RateLimitingSampler {
	return &RateLimitingSampler{
		maxTracesPerSecond: maxTracesPerSecond,
		limiter:            utils.NewRateLimiter(maxTracesPerSecond, math.Max(maxTracesPerSecond, 1.0)),
		tags:               map[string]interface{}{TagType: TypeRateLimiting, TagParam: maxTracesPerSecond},
	}
}

// MaxTracesPerSecond returns the configured limit.
func (s *RateLimitingSampler) MaxTracesPerSecond() float64 { return s.maxTracesPerSecond }

// Decide implements Sampler.
func (s *RateLimitingSampler) Decide(operation string, id model.TraceID) (bool, map[string]interface{}) {
	return s.limiter.CheckCredit(1.0), s.tags
}

// Close implements Sampler; there is nothing to release.
func (s *RateLimitingSampler) Close() {}

// String describes the sampler and its parameter.
func (s *RateLimitingSampler) String() string {
	return fmt.Sprintf("RateLimitingSampler(maxTracesPerSecond=%v)", s.maxTracesPerSecond)
}
