package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ince88/prv/internal/logging"
)

const (
	// DefaultMetricsAddr is the default address for the metrics server.
	DefaultMetricsAddr = ":9090"

	// DefaultMetricsReadTimeout is the default read timeout for the metrics server.
	DefaultMetricsReadTimeout = 10 * time.Second

	// DefaultMetricsWriteTimeout is the default write timeout for the metrics server.
	DefaultMetricsWriteTimeout = 10 * time.Second

	// DefaultMetricsIdleTimeout is the default idle timeout for the metrics server.
	DefaultMetricsIdleTimeout = 60 * time.Second
)

// Metrics holds the Prometheus instruments of the API server.
type Metrics struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// NewMetrics registers the application metrics with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prv_http_requests_total",
			Help: "Number of handled HTTP requests.",
		}, []string{"path", "method", "code"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prv_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		upstreamRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prv_upstream_requests_total",
			Help: "Number of calls to dependent services.",
		}, []string{"service", "operation", "status"}),
		upstreamDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prv_upstream_request_duration_seconds",
			Help:    "Latency of calls to dependent services.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "operation"}),
	}
}

// ObserveUpstream records the outcome of one upstream call.
func (m *Metrics) ObserveUpstream(service, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(service, operation, status).Inc()
	m.upstreamDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// MetricsServer serves Prometheus metrics on a dedicated port, isolating
// operational metrics from the main API traffic.
type MetricsServer struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewMetricsServer creates a metrics server exposing /metrics for scraping.
func NewMetricsServer(addr string, logger *slog.Logger) *MetricsServer {
	if addr == "" {
		addr = DefaultMetricsAddr
	}
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  DefaultMetricsReadTimeout,
			WriteTimeout: DefaultMetricsWriteTimeout,
			IdleTimeout:  DefaultMetricsIdleTimeout,
		},
		logger: logging.WithService(logger, "metrics"),
	}
}

// Start starts the metrics listener in a blocking manner.
func (s *MetricsServer) Start() error {
	s.logger.Info("metrics server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the metrics listener.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
