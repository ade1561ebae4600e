package main

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opencensus.io/trace"
	"go.uber.org/zap"

	"github.com/census-instrumentation/jaeger-udp-client/exporter/ocexporter"
	"github.com/census-instrumentation/jaeger-udp-client/internal/client"
	"github.com/census-instrumentation/jaeger-udp-client/tracer"
)

var emitFlags struct {
	traces     int
	depth      int
	pause      time.Duration
	opencensus bool
}

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Emit sample traces to the agent",
	Long: `Emit builds the given number of traces, each a chain of nested spans, and
stops the client once they are generated so every queued span is flushed.

Examples:
  # Five traces of three spans each
  tracegen emit --traces 5 --depth 3

  # Also route spans created with go.opencensus.io through the client
  tracegen emit --opencensus`,
	RunE: runEmit,
}

func init() {
	rootCmd.AddCommand(emitCmd)

	emitCmd.Flags().IntVarP(&emitFlags.traces, "traces", "n", 1, "number of traces")
	emitCmd.Flags().IntVar(&emitFlags.depth, "depth", 3, "spans per trace")
	emitCmd.Flags().DurationVar(&emitFlags.pause, "pause", 0, "delay between traces")
	emitCmd.Flags().BoolVar(&emitFlags.opencensus, "opencensus", false, "also emit one opencensus trace per trace")
}

func runEmit(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	if srv := serveMetrics(logger, v.GetString(metricsAddrKey), reg); srv != nil {
		defer srv.Close()
	}

	c, err := client.Start(logger, v, newMetricsFactory(reg))
	if err != nil {
		return err
	}

	if emitFlags.opencensus {
		exp := ocexporter.New(c.Collector)
		trace.RegisterExporter(exp)
		defer trace.UnregisterExporter(exp)
		trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
	}

	ctx := context.Background()
	for i := 0; i < emitFlags.traces; i++ {
		emitTrace(ctx, c.Tracer, i, emitFlags.depth)
		if emitFlags.opencensus {
			emitOpenCensusTrace(ctx, i, emitFlags.depth)
		}
		if emitFlags.pause > 0 {
			time.Sleep(emitFlags.pause)
		}
	}

	if err := c.Close(); err != nil {
		return err
	}
	logger.Info("Traces emitted.", zap.Int("traces", emitFlags.traces), zap.Int("depth", emitFlags.depth))
	return nil
}

func emitTrace(ctx context.Context, t *tracer.Tracer, n, depth int) {
	var spans []*tracer.Span
	for d := 0; d < depth; d++ {
		var span *tracer.Span
		span, ctx = t.StartSpanFromContext(ctx, fmt.Sprintf("tracegen-%d", d), tracer.Tag("trace.index", n))
		span.LogFields(log.String("event", "start"), log.Int("depth", d))
		spans = append(spans, span)
	}
	for i := len(spans) - 1; i >= 0; i-- {
		spans[i].Finish()
	}
}

func emitOpenCensusTrace(ctx context.Context, n, depth int) {
	var spans []*trace.Span
	for d := 0; d < depth; d++ {
		var span *trace.Span
		ctx, span = trace.StartSpan(ctx, fmt.Sprintf("opencensus-%d", d), trace.WithSpanKind(trace.SpanKindClient))
		span.AddAttributes(trace.Int64Attribute("trace.index", int64(n)))
		span.Annotate([]trace.Attribute{trace.Int64Attribute("depth", int64(d))}, "start")
		spans = append(spans, span)
	}
	for i := len(spans) - 1; i >= 0; i-- {
		spans[i].End()
	}
}
