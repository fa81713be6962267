// Package metrics exposes the daemon's Prometheus instrumentation on a
// dedicated registry. The listener only starts when an address is
// configured; the collectors themselves are always live so instrumented
// code never branches on whether metrics are enabled.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the pipeline's collectors.
type Metrics struct {
	registry *prometheus.Registry

	EventsPolled     *prometheus.CounterVec
	EventsDispatched *prometheus.CounterVec
	DispatchErrors   *prometheus.CounterVec
	ResolveFailures  *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
}

// New creates the collector set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		EventsPolled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gdpoller_events_polled_total",
			Help: "Activity records pulled from the Drive Activity API.",
		}, []string{"poller"}),
		EventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gdpoller_events_dispatched_total",
			Help: "Events delivered to a dispatcher.",
		}, []string{"poller", "dispatcher"}),
		DispatchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gdpoller_dispatch_errors_total",
			Help: "Dispatcher deliveries that returned an error or panicked.",
		}, []string{"poller", "dispatcher"}),
		ResolveFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gdpoller_resolve_failures_total",
			Help: "Path resolutions that fell back to /unknown.",
		}, []string{"poller"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gdpoller_dispatch_queue_depth",
			Help: "Events waiting in the dispatch queue.",
		}, []string{"poller"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the exposition listener until the context is cancelled.
func (m *Metrics) Serve(ctx context.Context, address string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{Addr: address, Handler: mux}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics listener shutdown", slog.String("error", err.Error()))
		}
	}()

	logger.Info("metrics listener started", slog.String("address", address))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
