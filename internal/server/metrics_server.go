// Package server serves metrics and health over HTTP while the fabric runs.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Dans-labs/laf-fabric/internal/health"
	"github.com/Dans-labs/laf-fabric/internal/metrics"
)

// MetricsServer serves Prometheus metrics via HTTP
type MetricsServer struct {
	httpServer *http.Server
	metrics    *metrics.Metrics
	health     *health.HealthChecker
	disk       health.DiskState
	logger     *zap.Logger
	interval   time.Duration
	stopChan   chan struct{}
}

// MetricsServerConfig holds configuration for the metrics server
type MetricsServerConfig struct {
	Port     int
	Path     string
	Interval time.Duration
	Disk     health.DiskState
}

// NewMetricsServer creates a new metrics server
func NewMetricsServer(cfg *MetricsServerConfig, m *metrics.Metrics, h *health.HealthChecker, logger *zap.Logger) *MetricsServer {
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ms := &MetricsServer{
		metrics:  m,
		health:   h,
		disk:     cfg.Disk,
		logger:   logger,
		interval: cfg.Interval,
		stopChan: make(chan struct{}),
	}
	ms.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      ms.routes(cfg.Path),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return ms
}

func (s *MetricsServer) routes(path string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{Registry: s.metrics.Registry}))
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	return mux
}

// Handler returns the HTTP handler of the server
func (s *MetricsServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the metrics server
func (s *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("metrics server cannot listen on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("Starting metrics server", zap.String("addr", ln.Addr().String()))

	go s.collectSystemMetrics()
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully stops the metrics server
func (s *MetricsServer) Stop() error {
	s.logger.Info("Stopping metrics server")
	close(s.stopChan)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// healthHandler reports what the fabric is doing
func (s *MetricsServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "unknown"})
		return
	}
	writeJSON(w, http.StatusOK, s.health.Status())
}

// readyHandler reports whether the fabric can take work
func (s *MetricsServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.health == nil || s.health.IsReady() {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ready",
			"timestamp": time.Now().Format(time.RFC3339),
		})
		return
	}
	reasons := make(map[string]string)
	for name, c := range s.health.Checks() {
		if c.Status == "critical" {
			reasons[name] = c.Message
		}
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
		"status":  "not_ready",
		"fabric":  s.health.Status().Status,
		"reasons": reasons,
	})
}

// collectSystemMetrics periodically collects disk figures
func (s *MetricsServer) collectSystemMetrics() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.updateSystemMetrics()
	for {
		select {
		case <-ticker.C:
			s.updateSystemMetrics()
		case <-s.stopChan:
			return
		}
	}
}

func (s *MetricsServer) updateSystemMetrics() {
	if s.health != nil {
		s.health.RunChecks()
	}
	if s.disk == nil {
		return
	}
	stats := s.disk.GetDiskUsage()
	s.metrics.UpdateDiskStats(stats.UsedBytes(), stats.AvailableBytes)
}
