package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/census-instrumentation/jaeger-udp-client/internal/builder"
)

const metricsAddrKey = "metrics-addr"

var (
	cfgFile string
	verbose bool

	v = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "tracegen",
	Short: "Generate traces for a Jaeger agent",
	Long: `Tracegen drives the UDP tracing client: it builds spans, samples them,
and ships them to a Jaeger agent in compact thrift batches.

Settings come from flags or from a YAML config file whose keys mirror the flag
names under the "jaeger" section.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	def := builder.NewDefaultClientCfg()
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file path")
	flags.BoolVarP(&verbose, "verbose", "v", false, "development logging")
	flags.String("service-name", "tracegen", "service name reported in the process")
	flags.String("agent-host", def.AgentHost, "agent host")
	flags.Int("agent-port", def.AgentPort, "agent compact thrift port")
	flags.Int("max-packet-size", def.MaxPacketSize, "largest datagram the sender writes")
	flags.String("sampler-type", def.Sampler.Type, "const, probabilistic, ratelimiting or remote")
	flags.Float64("sampler-param", def.Sampler.Param, "sampler parameter")
	flags.String("sampling-server-url", def.Sampler.SamplingServerURL, "remote sampler endpoint")
	flags.Int("chunk-limit", def.ChunkLimit, "spans per emitted batch")
	flags.Duration("flush-interval", def.FlushInterval, "backlog gauge reporting interval")
	flags.String(metricsAddrKey, "", "serve prometheus metrics on this address")

	bindings := map[string]string{
		builder.ServiceNameKey:       "service-name",
		builder.AgentHostKey:         "agent-host",
		builder.AgentPortKey:         "agent-port",
		builder.MaxPacketSizeKey:     "max-packet-size",
		builder.SamplerTypeKey:       "sampler-type",
		builder.SamplerParamKey:      "sampler-param",
		builder.SamplingServerURLKey: "sampling-server-url",
		builder.ChunkLimitKey:        "chunk-limit",
		builder.FlushIntervalKey:     "flush-interval",
		metricsAddrKey:               metricsAddrKey,
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read config %q: %v\n", cfgFile, err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
