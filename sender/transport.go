package sender

import (
	"net"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/jaegertracing/jaeger/thrift-gen/agent"
	"github.com/jaegertracing/jaeger/thrift-gen/jaeger"
	"github.com/pkg/errors"
)

const (
	// DefaultAgentHostPort is where the tracing agent listens for compact
	// thrift batches.
	DefaultAgentHostPort = "127.0.0.1:6831"

	// UDPPacketMaxLength is the largest datagram the agent accepts.
	UDPPacketMaxLength = 65000
)

// Transport delivers one batch per call. Implementations are only used from
// one goroutine at a time and need not be thread-safe.
type Transport interface {
	EmitBatch(batch *jaeger.Batch) error
	Close() error
}

// UDPTransport sends each batch as a single emitBatch call, compact thrift
// encoded, in one UDP datagram. No response is read.
type UDPTransport struct {
	connUDP       *net.UDPConn
	client        *agent.AgentClient
	maxPacketSize int
	thriftBuffer  *thrift.TMemoryBuffer
}

var _ Transport = (*UDPTransport)(nil)

// NewUDPTransport connects a UDP socket to hostPort. A maxPacketSize of zero
// means UDPPacketMaxLength.
func NewUDPTransport(hostPort string, maxPacketSize int) (*UDPTransport, error) {
	if maxPacketSize == 0 {
		maxPacketSize = UDPPacketMaxLength
	}

	thriftBuffer := thrift.NewTMemoryBufferLen(maxPacketSize)
	protocolFactory := thrift.NewTCompactProtocolFactory()
	client := agent.NewAgentClientFactory(thriftBuffer, protocolFactory)

	destAddr, err := net.ResolveUDPAddr("udp", hostPort)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve agent address %q", hostPort)
	}
	connUDP, err := net.DialUDP(destAddr.Network(), nil, destAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot dial agent at %q", hostPort)
	}
	if err := connUDP.SetWriteBuffer(maxPacketSize); err != nil {
		connUDP.Close()
		return nil, errors.Wrap(err, "cannot size the UDP write buffer")
	}

	return &UDPTransport{
		connUDP:       connUDP,
		client:        client,
		maxPacketSize: maxPacketSize,
		thriftBuffer:  thriftBuffer,
	}, nil
}

// EmitBatch serializes batch and writes it as one datagram. Batches larger
// than the packet limit are rejected without sending anything.
func (t *UDPTransport) EmitBatch(batch *jaeger.Batch) error {
	t.thriftBuffer.Reset()
	// One-way datagrams carry no responses to match, so sequence ids are moot.
	t.client.SeqId = 0
	if err := t.client.EmitBatch(batch); err != nil {
		return errors.Wrap(err, "cannot serialize batch")
	}
	if t.thriftBuffer.Len() > t.maxPacketSize {
		return errors.Errorf("data does not fit within one UDP packet; size %d, max %d, spans %d",
			t.thriftBuffer.Len(), t.maxPacketSize, len(batch.Spans))
	}
	_, err := t.connUDP.Write(t.thriftBuffer.Bytes())
	return errors.Wrap(err, "cannot write UDP packet")
}

// Close closes the UDP socket.
func (t *UDPTransport) Close() error {
	return t.connUDP.Close()
}
