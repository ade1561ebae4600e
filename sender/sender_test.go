package sender

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jaegertracing/jaeger/thrift-gen/jaeger"
	"github.com/uber/jaeger-lib/metrics/metricstest"

	"github.com/census-instrumentation/jaeger-udp-client/collector"
	"github.com/census-instrumentation/jaeger-udp-client/model"
)

// recordingTransport remembers the span ids of every batch it is given.
type recordingTransport struct {
	mu      sync.Mutex
	batches [][]int64
	fail    func(n int) error
	closed  bool
	emitted chan struct{}
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{emitted: make(chan struct{}, 1024)}
}

func (r *recordingTransport) EmitBatch(batch *jaeger.Batch) error {
	r.mu.Lock()
	n := len(r.batches)
	ids := make([]int64, 0, len(batch.Spans))
	for _, s := range batch.Spans {
		ids = append(ids, s.SpanId)
	}
	r.batches = append(r.batches, ids)
	fail := r.fail
	r.mu.Unlock()
	r.emitted <- struct{}{}
	if fail != nil {
		return fail(n)
	}
	return nil
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingTransport) snapshot() [][]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]int64(nil), r.batches...)
}

func (r *recordingTransport) waitFor(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.emitted:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for batch %d of %d", i+1, n)
		}
	}
}

func submit(c *collector.Collector, spanID model.SpanID) {
	ctx := model.NewSpanContext(model.TraceID{Low: 1}, spanID, 0, model.FlagSampled, nil)
	c.Submit(&model.Span{Context: ctx, OperationName: "op", StartTime: time.Now()}, time.Now())
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New("svc", nil, newRecordingTransport()); err != errNilSource {
		t.Fatalf("New(nil source) = %v, want errNilSource", err)
	}
	if _, err := New("svc", collector.New(), nil); err != errNilTransport {
		t.Fatalf("New(nil transport) = %v, want errNilTransport", err)
	}
}

func TestProcessMetadata(t *testing.T) {
	s, err := New("checkout", collector.New(), newRecordingTransport(),
		WithProcessTags(map[string]interface{}{"zone": "us-east1", "build": 7}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	p := s.Process()
	if p.ServiceName != "checkout" {
		t.Fatalf("ServiceName = %q", p.ServiceName)
	}
	tags := map[string]*jaeger.Tag{}
	for _, tag := range p.Tags {
		tags[tag.Key] = tag
	}
	if v := tags[clientVersionTagKey]; v == nil || *v.VStr != "Go-"+Version {
		t.Fatalf("missing client version tag in %v", p.Tags)
	}
	if _, ok := tags[hostnameTagKey]; !ok {
		t.Fatalf("missing hostname tag in %v", p.Tags)
	}
	if v := tags["zone"]; v == nil || *v.VStr != "us-east1" {
		t.Fatalf("missing zone tag in %v", p.Tags)
	}
	if v := tags["build"]; v == nil || v.VType != jaeger.TagType_LONG || *v.VLong != 7 {
		t.Fatalf("missing build tag in %v", p.Tags)
	}
}

func TestEmitEmptyIsNoop(t *testing.T) {
	tr := newRecordingTransport()
	s, _ := New("svc", collector.New(), tr)
	if err := s.emit(nil); err != nil {
		t.Fatalf("emit(nil) = %v", err)
	}
	if got := tr.snapshot(); len(got) != 0 {
		t.Fatalf("emit(nil) transmitted %v", got)
	}
}

func TestChunkedBatches(t *testing.T) {
	c := collector.New()
	tr := newRecordingTransport()
	s, err := New("svc", c, tr, WithChunkLimit(2))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	submit(c, 1)
	submit(c, 2)
	submit(c, 3)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tr.waitFor(t, 2)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if diff := cmp.Diff([][]int64{{1, 2}, {3}}, tr.snapshot()); diff != "" {
		t.Fatalf("batches mismatch (-want +got):\n%s", diff)
	}
}

func TestStopDrainsEverything(t *testing.T) {
	c := collector.New()
	tr := newRecordingTransport()
	mf := metricstest.NewFactory(0)
	s, _ := New("svc", c, tr, WithChunkLimit(3), WithMetrics(mf))
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	const total = 50
	for i := 1; i <= total; i++ {
		submit(c, model.SpanID(i))
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if c.Len() != 0 {
		t.Fatalf("buffer still holds %d spans after Stop", c.Len())
	}
	var seen []int64
	for _, batch := range tr.snapshot() {
		if len(batch) == 0 || len(batch) > 3 {
			t.Fatalf("batch of %d spans violates the chunk limit", len(batch))
		}
		seen = append(seen, batch...)
	}
	if len(seen) != total {
		t.Fatalf("transmitted %d spans, want %d", len(seen), total)
	}
	for i, id := range seen {
		if id != int64(i+1) {
			t.Fatalf("span %d transmitted out of order: got id %d", i+1, id)
		}
	}
	if !tr.closed {
		t.Fatal("transport not closed by Stop")
	}
	mf.AssertCounterMetrics(t, metricstest.ExpectedMetric{Name: "spans.emitted", Tags: map[string]string{"result": "ok"}, Value: total})
}

func TestStopWithoutStart(t *testing.T) {
	c := collector.New()
	tr := newRecordingTransport()
	s, _ := New("svc", c, tr, WithChunkLimit(2))
	for i := 1; i <= 5; i++ {
		submit(c, model.SpanID(i))
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if diff := cmp.Diff([][]int64{{1, 2}, {3, 4}, {5}}, tr.snapshot()); diff != "" {
		t.Fatalf("batches mismatch (-want +got):\n%s", diff)
	}
	if err := s.Stop(); err != errAlreadyStopped {
		t.Fatalf("second Stop = %v, want errAlreadyStopped", err)
	}
	if err := s.Start(); err != errAlreadyStopped {
		t.Fatalf("Start after Stop = %v, want errAlreadyStopped", err)
	}
}

func TestStartTwice(t *testing.T) {
	s, _ := New("svc", collector.New(), newRecordingTransport())
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()
	if err := s.Start(); err != errAlreadyStarted {
		t.Fatalf("second Start = %v, want errAlreadyStarted", err)
	}
}

func TestStopReleasesIdleWorker(t *testing.T) {
	s, _ := New("svc", collector.New(), newRecordingTransport())
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the worker block in Drain

	done := make(chan error)
	go func() { done <- s.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop hung on an idle worker")
	}
}

func TestTransportFailuresDoNotStopWorker(t *testing.T) {
	c := collector.New()
	tr := newRecordingTransport()
	tr.fail = func(n int) error {
		switch n {
		case 0:
			return errors.New("no route to host")
		case 1:
			panic("socket exploded")
		}
		return nil
	}
	mf := metricstest.NewFactory(0)
	s, _ := New("svc", c, tr, WithMetrics(mf))
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		submit(c, model.SpanID(i))
		tr.waitFor(t, 1)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if diff := cmp.Diff([][]int64{{1}, {2}, {3}}, tr.snapshot()); diff != "" {
		t.Fatalf("batches mismatch (-want +got):\n%s", diff)
	}
	mf.AssertCounterMetrics(t,
		metricstest.ExpectedMetric{Name: "batches", Tags: map[string]string{"result": "err"}, Value: 2},
		metricstest.ExpectedMetric{Name: "batches", Tags: map[string]string{"result": "ok"}, Value: 1},
	)
}

func TestBacklogGauge(t *testing.T) {
	c := collector.New()
	mf := metricstest.NewFactory(0)
	s, _ := New("svc", c, newRecordingTransport(), WithFlushInterval(time.Millisecond), WithMetrics(mf))
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	mf.AssertGaugeMetrics(t, metricstest.ExpectedMetric{Name: "buffer.length", Value: 0})
}

// exclusiveTransport fails the test if EmitBatch is ever entered while
// another call is still in progress.
type exclusiveTransport struct {
	*recordingTransport
	inFlight int32
	overlap  int32
}

func (e *exclusiveTransport) EmitBatch(batch *jaeger.Batch) error {
	if atomic.AddInt32(&e.inFlight, 1) > 1 {
		atomic.StoreInt32(&e.overlap, 1)
	}
	defer atomic.AddInt32(&e.inFlight, -1)
	time.Sleep(100 * time.Microsecond)
	return e.recordingTransport.EmitBatch(batch)
}

func TestTransportUsedFromOneGoroutine(t *testing.T) {
	c := collector.New()
	tr := &exclusiveTransport{recordingTransport: newRecordingTransport()}
	s, _ := New("svc", c, tr, WithChunkLimit(4))
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	const producers, perProducer = 8, 25
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				submit(c, model.SpanID(p*perProducer+i+1))
			}
		}(p)
	}
	wg.Wait()
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if atomic.LoadInt32(&tr.overlap) != 0 {
		t.Fatal("transport entered concurrently")
	}
	n := 0
	for _, batch := range tr.snapshot() {
		n += len(batch)
	}
	if n != producers*perProducer {
		t.Fatalf("transmitted %d spans, want %d", n, producers*perProducer)
	}
}
