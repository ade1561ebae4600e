// Package sender owns the background goroutine that drains finished spans
// and ships them to the agent in batches.
package sender

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jaegertracing/jaeger/thrift-gen/jaeger"
	"github.com/uber/jaeger-lib/metrics"
	"go.uber.org/zap"
)

// SpanSource is where the sender takes spans from; *collector.Collector
// satisfies it.
type SpanSource interface {
	Drain(limit int, blocking bool) []*jaeger.Span
	Len() int
	Close()
}

var (
	errNilSource      = errors.New("nil span source")
	errNilTransport   = errors.New("nil transport")
	errAlreadyStarted = errors.New("already started")
	errAlreadyStopped = errors.New("already stopped")
)

// Sender batches spans from a SpanSource and transmits them over a
// Transport. The transport is only touched by the worker goroutine, and by
// Stop once the worker has exited.
type Sender struct {
	options
	process   *jaeger.Process
	source    SpanSource
	transport Transport

	// mu protects started and stopped.
	mu      sync.Mutex
	started bool
	stopped bool

	// stopping is read by the worker between drain cycles.
	stopping   int32
	stop       chan struct{}
	workerDone chan struct{}
	reportDone chan struct{}

	batchesEmitted metrics.Counter
	batchesFailed  metrics.Counter
	spansEmitted   metrics.Counter
	spansFailed    metrics.Counter
	backlog        metrics.Gauge
}

// New creates a Sender for serviceName. Process metadata is computed here,
// once.
func New(serviceName string, source SpanSource, transport Transport, opts ...Option) (*Sender, error) {
	if source == nil {
		return nil, errNilSource
	}
	if transport == nil {
		return nil, errNilTransport
	}
	options := options{
		chunkLimit:    DefaultChunkLimit,
		flushInterval: DefaultFlushInterval,
		logger:        zap.NewNop(),
		metrics:       metrics.NullFactory,
	}
	for _, o := range opts {
		options = o.apply(options)
	}
	if options.chunkLimit < 1 {
		options.chunkLimit = DefaultChunkLimit
	}

	m := options.metrics
	return &Sender{
		options:        options,
		process:        buildProcess(serviceName, options.processTags),
		source:         source,
		transport:      transport,
		stop:           make(chan struct{}),
		workerDone:     make(chan struct{}),
		reportDone:     make(chan struct{}),
		batchesEmitted: m.Counter(metrics.Options{Name: "batches", Tags: map[string]string{"result": "ok"}}),
		batchesFailed:  m.Counter(metrics.Options{Name: "batches", Tags: map[string]string{"result": "err"}}),
		spansEmitted:   m.Counter(metrics.Options{Name: "spans.emitted", Tags: map[string]string{"result": "ok"}}),
		spansFailed:    m.Counter(metrics.Options{Name: "spans.emitted", Tags: map[string]string{"result": "err"}}),
		backlog:        m.Gauge(metrics.Options{Name: "buffer.length"}),
	}, nil
}

// Process returns the process metadata attached to every batch.
func (s *Sender) Process() *jaeger.Process {
	return s.process
}

// Start launches the worker goroutine.
func (s *Sender) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errAlreadyStopped
	}
	if s.started {
		return errAlreadyStarted
	}
	s.started = true

	go s.run()
	if s.flushInterval > 0 {
		go s.reportBacklog()
	} else {
		close(s.reportDone)
	}
	s.logger.Info("Span sender started",
		zap.String("service", s.process.ServiceName),
		zap.Int("chunk_limit", s.chunkLimit),
		zap.Duration("flush_interval", s.flushInterval))
	return nil
}

func (s *Sender) isStopping() bool {
	return atomic.LoadInt32(&s.stopping) == 1
}

// run blocks until spans are available, then keeps draining without waiting
// for as long as the backlog lasts.
func (s *Sender) run() {
	defer close(s.workerDone)
	for !s.isStopping() {
		spans := s.source.Drain(s.chunkLimit, true)
		for len(spans) > 0 {
			s.emit(spans)
			if s.isStopping() {
				return
			}
			spans = s.source.Drain(s.chunkLimit, false)
		}
	}
}

func (s *Sender) reportBacklog() {
	defer close(s.reportDone)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.backlog.Update(int64(s.source.Len()))
		}
	}
}

// emit wraps spans and the process metadata into one batch and transmits
// it once. Failures are logged and counted but never retried. Only the worker,
// or Stop after the worker has exited, may call it.
func (s *Sender) emit(spans []*jaeger.Span) error {
	if len(spans) == 0 {
		return nil
	}
	batch := &jaeger.Batch{Process: s.process, Spans: spans}
	if err := s.send(batch); err != nil {
		s.batchesFailed.Inc(1)
		s.spansFailed.Inc(int64(len(spans)))
		s.logger.Warn("Failed to emit span batch", zap.Int("spans", len(spans)), zap.Error(err))
		return err
	}
	s.batchesEmitted.Inc(1)
	s.spansEmitted.Inc(int64(len(spans)))
	return nil
}

// send turns a transport panic into an error.
func (s *Sender) send(batch *jaeger.Batch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panicked: %v", r)
		}
	}()
	return s.transport.EmitBatch(batch)
}

// Stop stops the worker, then drains and emits whatever is still queued and
// closes the transport. Spans pushed concurrently with Stop may or may not
// make it into the final drain.
func (s *Sender) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return errAlreadyStopped
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	atomic.StoreInt32(&s.stopping, 1)
	close(s.stop)
	s.source.Close()
	if started {
		<-s.workerDone
		<-s.reportDone
	}

	flushed := 0
	for {
		spans := s.source.Drain(s.chunkLimit, false)
		if len(spans) == 0 {
			break
		}
		s.emit(spans)
		flushed += len(spans)
	}
	s.backlog.Update(0)
	s.logger.Info("Span sender stopped", zap.Int("flushed_spans", flushed))
	return s.transport.Close()
}
