// Package builder reads the client configuration from viper.
package builder

import (
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"github.com/uber/jaeger-lib/metrics"
	"go.uber.org/zap"

	"github.com/census-instrumentation/jaeger-udp-client/sampler"
	"github.com/census-instrumentation/jaeger-udp-client/sender"
)

// Keys under which the configuration is read.
const (
	ServiceNameKey         = "jaeger.service-name"
	AgentHostKey           = "jaeger.agent.host"
	AgentPortKey           = "jaeger.agent.port"
	MaxPacketSizeKey       = "jaeger.agent.max-packet-size"
	ChunkLimitKey          = "jaeger.flush-span-chunk-limit"
	FlushIntervalKey       = "jaeger.flush-interval"
	TagsKey                = "jaeger.tags"
	SamplerTypeKey         = "jaeger.sampler.type"
	SamplerParamKey        = "jaeger.sampler.param"
	SamplingServerURLKey   = "jaeger.sampler.sampling-server-url"
	SamplerRefreshKey      = "jaeger.sampler.refresh-interval"
	defaultAgentHost       = "127.0.0.1"
	defaultAgentPort       = 6831
	defaultSamplerType     = sampler.TypeConst
	defaultSamplerParam    = 1.0
	defaultRefreshInterval = sampler.DefaultRefreshInterval
)

var errMissingServiceName = errors.New("service name is required")

// SamplerCfg selects and parameterizes the sampler.
type SamplerCfg struct {
	Type              string
	Param             float64
	SamplingServerURL string
	RefreshInterval   time.Duration
}

// ClientCfg holds everything needed to build the tracing client.
type ClientCfg struct {
	ServiceName   string
	AgentHost     string
	AgentPort     int
	MaxPacketSize int
	ChunkLimit    int
	FlushInterval time.Duration
	Tags          map[string]interface{}
	Sampler       SamplerCfg
}

// NewDefaultClientCfg returns the defaults: agent on 127.0.0.1:6831, one span
// per batch, a 10s flush interval and a const sampler that samples everything.
func NewDefaultClientCfg() *ClientCfg {
	return &ClientCfg{
		AgentHost:     defaultAgentHost,
		AgentPort:     defaultAgentPort,
		MaxPacketSize: sender.UDPPacketMaxLength,
		ChunkLimit:    sender.DefaultChunkLimit,
		FlushInterval: sender.DefaultFlushInterval,
		Sampler: SamplerCfg{
			Type:              defaultSamplerType,
			Param:             defaultSamplerParam,
			SamplingServerURL: sampler.DefaultSamplingServerURL,
			RefreshInterval:   defaultRefreshInterval,
		},
	}
}

// InitFromViper overrides the receiver's fields with whatever v sets.
func (cfg *ClientCfg) InitFromViper(v *viper.Viper) (*ClientCfg, error) {
	if v.IsSet(ServiceNameKey) {
		cfg.ServiceName = v.GetString(ServiceNameKey)
	}
	if v.IsSet(AgentHostKey) {
		cfg.AgentHost = v.GetString(AgentHostKey)
	}
	if v.IsSet(AgentPortKey) {
		cfg.AgentPort = v.GetInt(AgentPortKey)
	}
	if v.IsSet(MaxPacketSizeKey) {
		cfg.MaxPacketSize = v.GetInt(MaxPacketSizeKey)
	}
	if v.IsSet(ChunkLimitKey) {
		cfg.ChunkLimit = v.GetInt(ChunkLimitKey)
	}
	if v.IsSet(FlushIntervalKey) {
		cfg.FlushInterval = v.GetDuration(FlushIntervalKey)
	}
	if v.IsSet(TagsKey) {
		tags, err := cast.ToStringMapE(v.Get(TagsKey))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", TagsKey)
		}
		cfg.Tags = tags
	}
	if v.IsSet(SamplerTypeKey) {
		cfg.Sampler.Type = v.GetString(SamplerTypeKey)
	}
	if v.IsSet(SamplerParamKey) {
		cfg.Sampler.Param = v.GetFloat64(SamplerParamKey)
	}
	if v.IsSet(SamplingServerURLKey) {
		cfg.Sampler.SamplingServerURL = v.GetString(SamplingServerURLKey)
	}
	if v.IsSet(SamplerRefreshKey) {
		cfg.Sampler.RefreshInterval = v.GetDuration(SamplerRefreshKey)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration is usable.
func (cfg *ClientCfg) Validate() error {
	if cfg.ServiceName == "" {
		return errMissingServiceName
	}
	if cfg.AgentPort <= 0 || cfg.AgentPort > 65535 {
		return errors.Errorf("agent port %d out of range", cfg.AgentPort)
	}
	if cfg.ChunkLimit < 1 {
		return errors.Errorf("flush span chunk limit must be positive, got %d", cfg.ChunkLimit)
	}
	if cfg.MaxPacketSize < 0 || cfg.MaxPacketSize > sender.UDPPacketMaxLength {
		return errors.Errorf("max packet size must be between 0 and %d, got %d", sender.UDPPacketMaxLength, cfg.MaxPacketSize)
	}
	switch cfg.Sampler.Type {
	case sampler.TypeConst, sampler.TypeProbabilistic, sampler.TypeRateLimiting, sampler.TypeRemote:
	default:
		return errors.Errorf("unknown sampler type %q", cfg.Sampler.Type)
	}
	return nil
}

// AgentHostPort joins the agent host and port.
func (cfg *ClientCfg) AgentHostPort() string {
	return net.JoinHostPort(cfg.AgentHost, strconv.Itoa(cfg.AgentPort))
}

// NewSampler builds the configured sampler.
func (cfg *ClientCfg) NewSampler(logger *zap.Logger, factory metrics.Factory) (sampler.Sampler, error) {
	sc := cfg.Sampler
	switch sc.Type {
	case sampler.TypeConst:
		return sampler.NewConstSampler(sc.Param != 0), nil
	case sampler.TypeProbabilistic:
		if sc.Param < 0 || sc.Param > 1 {
			return nil, errors.Errorf("probabilistic sampler param must be within [0, 1], got %v", sc.Param)
		}
		return sampler.NewProbabilisticSampler(sc.Param), nil
	case sampler.TypeRateLimiting:
		return sampler.NewRateLimitingSampler(sc.Param), nil
	case sampler.TypeRemote:
		return sampler.NewRemoteSampler(cfg.ServiceName,
			sampler.WithSamplingServerURL(sc.SamplingServerURL),
			sampler.WithRefreshInterval(sc.RefreshInterval),
			sampler.WithInitialSampler(sampler.NewProbabilisticSampler(sc.Param)),
			sampler.WithLogger(logger),
			sampler.WithMetrics(factory),
		), nil
	}
	return nil, errors.Errorf("unknown sampler type %q", sc.Type)
}
