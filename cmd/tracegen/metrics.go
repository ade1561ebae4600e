package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uber/jaeger-lib/metrics"
	jprom "github.com/uber/jaeger-lib/metrics/prometheus"
	"go.uber.org/zap"
)

func newMetricsFactory(reg *prometheus.Registry) metrics.Factory {
	return jprom.New(jprom.WithRegisterer(reg)).Namespace(metrics.NSOptions{Name: "tracegen"})
}

func newMetricsRouter(reg *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// serveMetrics starts the metrics endpoint when addr is set. The returned
// server is nil otherwise.
func serveMetrics(logger *zap.Logger, addr string, reg *prometheus.Registry) *http.Server {
	if addr == "" {
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: newMetricsRouter(reg)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics endpoint failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("Metrics endpoint is running.", zap.String("addr", addr))
	return srv
}
