// Package client assembles the tracer, collector, sampler and sender from
// configuration.
package client

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/uber/jaeger-lib/metrics"
	"go.uber.org/zap"

	"github.com/census-instrumentation/jaeger-udp-client/collector"
	"github.com/census-instrumentation/jaeger-udp-client/internal/builder"
	"github.com/census-instrumentation/jaeger-udp-client/sampler"
	"github.com/census-instrumentation/jaeger-udp-client/sender"
	"github.com/census-instrumentation/jaeger-udp-client/tracer"
)

// Client is the running object graph. Pass it, or its Tracer, to the code
// that creates spans.
type Client struct {
	Tracer    *tracer.Tracer
	Collector *collector.Collector
	Sampler   sampler.Sampler
	Sender    *sender.Sender
}

// Start reads the configuration from v, connects to the agent and starts
// the sender.
func Start(logger *zap.Logger, v *viper.Viper, metricsFactory metrics.Factory) (*Client, error) {
	cfg, err := builder.NewDefaultClientCfg().InitFromViper(v)
	if err != nil {
		return nil, err
	}
	transport, err := sender.NewUDPTransport(cfg.AgentHostPort(), cfg.MaxPacketSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create the agent transport")
	}
	c, err := New(logger, cfg, transport, metricsFactory)
	if err != nil {
		transport.Close()
		return nil, err
	}
	if err := c.Sender.Start(); err != nil {
		c.Sampler.Close()
		transport.Close()
		return nil, errors.Wrap(err, "cannot start the span sender")
	}

	logger.Info("Tracing client is running.",
		zap.String("service", cfg.ServiceName),
		zap.String("agent", cfg.AgentHostPort()),
		zap.String("sampler", cfg.Sampler.Type))
	return c, nil
}

// New builds the object graph around transport without starting it.
func New(logger *zap.Logger, cfg *builder.ClientCfg, transport sender.Transport, metricsFactory metrics.Factory) (*Client, error) {
	if metricsFactory == nil {
		metricsFactory = metrics.NullFactory
	}
	smp, err := cfg.NewSampler(logger, metricsFactory)
	if err != nil {
		return nil, err
	}
	coll := collector.New(collector.WithLogger(logger), collector.WithMetrics(metricsFactory))
	snd, err := sender.New(cfg.ServiceName, coll, transport,
		sender.WithChunkLimit(cfg.ChunkLimit),
		sender.WithFlushInterval(cfg.FlushInterval),
		sender.WithProcessTags(cfg.Tags),
		sender.WithLogger(logger),
		sender.WithMetrics(metricsFactory),
	)
	if err != nil {
		smp.Close()
		return nil, err
	}
	return &Client{
		Tracer:    tracer.New(smp, coll, tracer.WithLogger(logger)),
		Collector: coll,
		Sampler:   smp,
		Sender:    snd,
	}, nil
}

// Close stops the sender, flushing queued spans, and releases the sampler.
func (c *Client) Close() error {
	err := c.Sender.Stop()
	c.Tracer.Close()
	return err
}
