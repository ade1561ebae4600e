package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jaegertracing/jaeger/thrift-gen/jaeger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/census-instrumentation/jaeger-udp-client/receiver/agentreceiver"
)

var listenAddr string

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Receive batches like an agent and log them",
	Long: `Listen binds the agent's compact thrift UDP port and logs a one-line summary
of every batch until interrupted.

Examples:
  tracegen listen --listen-addr 127.0.0.1:6831`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().StringVar(&listenAddr, "listen-addr", "127.0.0.1:6831", "UDP address to receive batches on")
}

func runListen(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ar, err := agentreceiver.New(listenAddr, logBatches(logger), logger)
	if err != nil {
		return err
	}
	asyncErrorChan := make(chan error, 1)
	if err := ar.StartBatchReception(context.Background(), asyncErrorChan); err != nil {
		return err
	}
	logger.Info("Agent receiver is running.", zap.Stringer("addr", ar.Addr()))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigs:
		logger.Info("Shutting down.", zap.Stringer("signal", sig))
	case err = <-asyncErrorChan:
		logger.Error("Agent receiver failed", zap.Error(err))
	}
	if stopErr := ar.StopBatchReception(context.Background()); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

func logBatches(logger *zap.Logger) agentreceiver.BatchConsumer {
	return agentreceiver.BatchConsumerFunc(func(_ context.Context, batch *jaeger.Batch) error {
		service := ""
		if batch.Process != nil {
			service = batch.Process.ServiceName
		}
		ops := make([]string, 0, len(batch.Spans))
		for _, s := range batch.Spans {
			ops = append(ops, s.OperationName)
		}
		logger.Info("Batch received",
			zap.String("service", service),
			zap.Int("spans", len(batch.Spans)),
			zap.Strings("operations", ops))
		return nil
	})
}
