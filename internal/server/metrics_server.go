package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/devrev/histtree/internal/health"
	"github.com/devrev/histtree/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricsServer serves Prometheus metrics and health probes via HTTP
type MetricsServer struct {
	httpServer      *http.Server
	handler         http.Handler
	metrics         *metrics.Metrics
	disk            health.DiskSource
	collectInterval time.Duration
	logger          *zap.Logger
	stopChan        chan struct{}
	doneChan        chan struct{}
}

// MetricsServerConfig holds configuration for the metrics server
type MetricsServerConfig struct {
	Port int
	Path string
	// CollectInterval is how often system stats are refreshed
	CollectInterval time.Duration
}

// NewMetricsServer creates a new metrics server exposing gatherer. checker and
// disk may be nil.
func NewMetricsServer(cfg *MetricsServerConfig, gatherer prometheus.Gatherer, m *metrics.Metrics,
	checker *health.HealthChecker, disk health.DiskSource, logger *zap.Logger) *MetricsServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	interval := cfg.CollectInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if checker != nil {
		mux.HandleFunc("/health", checker.LivenessHandler)
		mux.HandleFunc("/ready", checker.ReadinessHandler)
	}

	return &MetricsServer{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		handler:         mux,
		metrics:         m,
		disk:            disk,
		collectInterval: interval,
		logger:          logger,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Handler returns the HTTP handler of the server
func (s *MetricsServer) Handler() http.Handler {
	return s.handler
}

// Start starts the metrics server
func (s *MetricsServer) Start() error {
	s.logger.Info("Starting metrics server", zap.String("addr", s.httpServer.Addr))

	go s.collectSystemMetrics()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the metrics server
func (s *MetricsServer) Stop() error {
	s.logger.Info("Stopping metrics server")

	close(s.stopChan)
	<-s.doneChan

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	return nil
}

// collectSystemMetrics periodically collects system-level metrics
func (s *MetricsServer) collectSystemMetrics() {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.collectInterval)
	defer ticker.Stop()

	s.UpdateSystemMetrics()
	for {
		select {
		case <-ticker.C:
			s.UpdateSystemMetrics()
		case <-s.stopChan:
			return
		}
	}
}

// UpdateSystemMetrics refreshes disk, memory and goroutine gauges
func (s *MetricsServer) UpdateSystemMetrics() {
	var used, available int64
	if s.disk != nil {
		stats := s.disk.GetDiskUsage()
		used, available = int64(stats.UsedBytes()), int64(stats.AvailableBytes)
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s.metrics.UpdateSystemStats(used, available, int64(memStats.Alloc), runtime.NumGoroutine())
}
