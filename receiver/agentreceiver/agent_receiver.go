// Package agentreceiver listens where a tracing agent would and decodes the
// compact thrift batches sent to it. It backs the CLI's listen mode and the
// end-to-end tests of the UDP sender.
package agentreceiver

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/jaegertracing/jaeger/thrift-gen/agent"
	"github.com/jaegertracing/jaeger/thrift-gen/jaeger"
	"github.com/jaegertracing/jaeger/thrift-gen/zipkincore"
	"go.uber.org/zap"
)

const (
	defaultAddress = "127.0.0.1:6831"
	maxPacketSize  = 65000
)

// BatchConsumer receives every decoded batch.
type BatchConsumer interface {
	ConsumeBatch(ctx context.Context, batch *jaeger.Batch) error
}

// BatchConsumerFunc adapts a function to BatchConsumer.
type BatchConsumerFunc func(ctx context.Context, batch *jaeger.Batch) error

// ConsumeBatch calls f.
func (f BatchConsumerFunc) ConsumeBatch(ctx context.Context, batch *jaeger.Batch) error {
	return f(ctx, batch)
}

// AgentReceiver reads emitBatch datagrams from a UDP socket.
type AgentReceiver struct {
	// mu protects the fields of this struct
	mu sync.Mutex

	// addr is the UDP address the receiver binds to
	addr string

	nextConsumer BatchConsumer
	logger       *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	conn      *net.UDPConn
	done      chan struct{}
}

var (
	_ agent.Agent = (*agentHandler)(nil)

	errNilNextConsumer = errors.New("nil nextConsumer")
	errAlreadyStarted  = errors.New("already started")
	errAlreadyStopped  = errors.New("already stopped")
	errNotStarted      = errors.New("not started")
	errZipkinBatch     = errors.New("zipkin batches are not supported")
)

// New creates a new agentreceiver.AgentReceiver reference.
func New(address string, nextConsumer BatchConsumer, logger *zap.Logger) (*AgentReceiver, error) {
	if nextConsumer == nil {
		return nil, errNilNextConsumer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentReceiver{
		addr:         address,
		nextConsumer: nextConsumer,
		logger:       logger,
		done:         make(chan struct{}),
	}, nil
}

func (ar *AgentReceiver) address() string {
	addr := ar.addr
	if addr == "" {
		addr = defaultAddress
	}
	return addr
}

// Addr returns the bound address, or nil before StartBatchReception.
func (ar *AgentReceiver) Addr() net.Addr {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	if ar.conn == nil {
		return nil
	}
	return ar.conn.LocalAddr()
}

// StartBatchReception binds the UDP socket and starts reading in the
// background. Read errors other than the socket being closed are reported on
// asyncErrorChan.
func (ar *AgentReceiver) StartBatchReception(ctx context.Context, asyncErrorChan chan<- error) error {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	var err = errAlreadyStarted

	ar.startOnce.Do(func() {
		udpAddr, rerr := net.ResolveUDPAddr("udp", ar.address())
		if rerr != nil {
			err = rerr
			return
		}
		conn, lerr := net.ListenUDP("udp", udpAddr)
		if lerr != nil {
			err = lerr
			return
		}
		ar.conn = conn
		go ar.serve(ctx, conn, asyncErrorChan)
		err = nil
	})

	return err
}

// StopBatchReception closes the socket and waits for the reader to exit.
func (ar *AgentReceiver) StopBatchReception(ctx context.Context) error {
	ar.mu.Lock()
	conn := ar.conn
	ar.mu.Unlock()
	if conn == nil {
		return errNotStarted
	}

	var err = errAlreadyStopped
	ar.stopOnce.Do(func() {
		err = conn.Close()
		select {
		case <-ar.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

func (ar *AgentReceiver) serve(ctx context.Context, conn *net.UDPConn, asyncErrorChan chan<- error) {
	defer close(ar.done)
	handler := &agentHandler{ctx: ctx, next: ar.nextConsumer}
	processor := agent.NewAgentProcessor(handler)
	buf := make([]byte, maxPacketSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				continue
			}
			if !errors.Is(err, net.ErrClosed) && asyncErrorChan != nil {
				asyncErrorChan <- err
			}
			return
		}
		if err := processDatagram(processor, buf[:n]); err != nil {
			ar.logger.Warn("Dropping undecodable datagram", zap.Int("bytes", n), zap.Error(err))
		}
	}
}

func processDatagram(processor thrift.TProcessor, data []byte) error {
	trans := thrift.NewTMemoryBufferLen(len(data))
	if _, err := trans.Write(data); err != nil {
		return err
	}
	protocol := thrift.NewTCompactProtocolFactory().GetProtocol(trans)
	if _, err := processor.Process(protocol, protocol); err != nil {
		return err
	}
	return nil
}

// DecodeBatch decodes one emitBatch datagram without a socket.
func DecodeBatch(data []byte) (*jaeger.Batch, error) {
	var got *jaeger.Batch
	handler := &agentHandler{
		ctx: context.Background(),
		next: BatchConsumerFunc(func(_ context.Context, b *jaeger.Batch) error {
			got = b
			return nil
		}),
	}
	if err := processDatagram(agent.NewAgentProcessor(handler), data); err != nil {
		return nil, err
	}
	if got == nil {
		return nil, errors.New("datagram carried no batch")
	}
	return got, nil
}

type agentHandler struct {
	ctx  context.Context
	next BatchConsumer
}

func (h *agentHandler) EmitBatch(batch *jaeger.Batch) error {
	return h.next.ConsumeBatch(h.ctx, batch)
}

func (h *agentHandler) EmitZipkinBatch(spans []*zipkincore.Span) error {
	return errZipkinBatch
}
