// Package observability exposes Prometheus metrics for the rollup
// services and the HTTP endpoint they are scraped from.
package observability

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

//nolint:gochecknoglobals // One metrics listener per process.
var metricsOnce sync.Once

// StartMetricsServer serves /metrics on addr. The first caller wins and
// later calls are no-ops, so the engine's combined services share one
// listener.
func StartMetricsServer(log logrus.FieldLogger, addr string) {
	metricsOnce.Do(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		srv := &http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 15 * time.Second,
			Handler:           mux,
		}

		go func() {
			log.WithField("addr", addr).Info("Starting metrics server")

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	})
}
