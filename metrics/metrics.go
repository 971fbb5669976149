// Package metrics exposes Prometheus metrics on a dedicated listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RecoverySessionsInitiated counts successfully initiated recovery
	// sessions.
	RecoverySessionsInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recovery_sessions_initiated_total",
		Help: "Number of recovery sessions initiated.",
	})

	// GrantsActivated counts successfully consumed access grants.
	GrantsActivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recovery_grants_activated_total",
		Help: "Number of access grants consumed by account activation.",
	})

	// RequestErrors counts API requests rejected per error kind.
	RequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_request_errors_total",
		Help: "Number of API requests rejected, by error kind.",
	}, []string{"kind"})
)

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr, serving /metrics from the
// default registry.
func New(name, addr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe starts serving; it blocks until Shutdown or failure.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
