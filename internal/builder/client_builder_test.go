package builder

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/uber/jaeger-lib/metrics"
	"go.uber.org/zap"

	"github.com/census-instrumentation/jaeger-udp-client/model"
	"github.com/census-instrumentation/jaeger-udp-client/sampler"
)

const yamlConfig = `
jaeger:
  service-name: checkout
  agent:
    host: jaeger-agent
    port: 6832
  flush-span-chunk-limit: 20
  flush-interval: 2s
  tags:
    zone: us-east1
    canary: true
  sampler:
    type: probabilistic
    param: 0.25
`

func TestInitFromViper(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBufferString(yamlConfig)); err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}

	cfg, err := NewDefaultClientCfg().InitFromViper(v)
	if err != nil {
		t.Fatalf("InitFromViper failed: %v", err)
	}

	want := NewDefaultClientCfg()
	want.ServiceName = "checkout"
	want.AgentHost = "jaeger-agent"
	want.AgentPort = 6832
	want.ChunkLimit = 20
	want.FlushInterval = 2 * time.Second
	want.Tags = map[string]interface{}{"zone": "us-east1", "canary": true}
	want.Sampler.Type = sampler.TypeProbabilistic
	want.Sampler.Param = 0.25
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.AgentHostPort(); got != "jaeger-agent:6832" {
		t.Fatalf("AgentHostPort = %q", got)
	}
}

func TestDefaults(t *testing.T) {
	v := viper.New()
	v.Set(ServiceNameKey, "svc")
	cfg, err := NewDefaultClientCfg().InitFromViper(v)
	if err != nil {
		t.Fatalf("InitFromViper failed: %v", err)
	}
	if cfg.AgentHostPort() != "127.0.0.1:6831" {
		t.Fatalf("AgentHostPort = %q, want 127.0.0.1:6831", cfg.AgentHostPort())
	}
	if cfg.ChunkLimit != 1 || cfg.FlushInterval != 10*time.Second {
		t.Fatalf("chunk limit %d, flush interval %v", cfg.ChunkLimit, cfg.FlushInterval)
	}
	s, err := cfg.NewSampler(zap.NewNop(), metrics.NullFactory)
	if err != nil {
		t.Fatalf("NewSampler failed: %v", err)
	}
	if _, ok := s.(*sampler.ConstSampler); !ok {
		t.Fatalf("default sampler = %T, want *sampler.ConstSampler", s)
	}
	if sampled, _ := s.Decide("op", model.NewTraceID()); !sampled {
		t.Fatal("default sampler should sample everything")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ClientCfg)
	}{
		{"missing service name", func(c *ClientCfg) { c.ServiceName = "" }},
		{"port out of range", func(c *ClientCfg) { c.AgentPort = 70000 }},
		{"zero chunk limit", func(c *ClientCfg) { c.ChunkLimit = 0 }},
		{"oversized packets", func(c *ClientCfg) { c.MaxPacketSize = 1 << 20 }},
		{"unknown sampler", func(c *ClientCfg) { c.Sampler.Type = "adaptive" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultClientCfg()
			cfg.ServiceName = "svc"
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("Validate succeeded, want error")
			}
		})
	}
}

func TestNewSamplerVariants(t *testing.T) {
	tests := []struct {
		typ   string
		param float64
		want  interface{}
	}{
		{sampler.TypeConst, 0, &sampler.ConstSampler{}},
		{sampler.TypeProbabilistic, 0.5, &sampler.ProbabilisticSampler{}},
		{sampler.TypeRateLimiting, 3, &sampler.RateLimitingSampler{}},
		{sampler.TypeRemote, 0.1, &sampler.RemoteSampler{}},
	}
	for _, tt := range tests {
		cfg := NewDefaultClientCfg()
		cfg.ServiceName = "svc"
		cfg.Sampler.Type = tt.typ
		cfg.Sampler.Param = tt.param
		cfg.Sampler.RefreshInterval = 0
		s, err := cfg.NewSampler(zap.NewNop(), metrics.NullFactory)
		if err != nil {
			t.Fatalf("NewSampler(%s) failed: %v", tt.typ, err)
		}
		if got, want := fmt.Sprintf("%T", s), fmt.Sprintf("%T", tt.want); got != want {
			t.Errorf("NewSampler(%s) = %s, want %s", tt.typ, got, want)
		}
		s.Close()
	}

	cfg := NewDefaultClientCfg()
	cfg.Sampler.Type = sampler.TypeProbabilistic
	cfg.Sampler.Param = 2
	if _, err := cfg.NewSampler(zap.NewNop(), metrics.NullFactory); err == nil {
		t.Fatal("probabilistic sampler accepted rate 2")
	}
}
