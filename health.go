package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthServer manages the HTTP health and metrics endpoints
type HealthServer struct {
	service   *Service
	port      string
	startTime time.Time
}

// NewHealthServer creates a new health server
func NewHealthServer(service *Service, port string) *HealthServer {
	return &HealthServer{
		service:   service,
		port:      port,
		startTime: time.Now(),
	}
}

// Start starts the health and metrics HTTP server
func (h *HealthServer) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.handleHealth)

	// Ready endpoint (for k8s readiness probes)
	mux.HandleFunc("/ready", h.handleReady)

	// Live endpoint (for k8s liveness probes)
	mux.HandleFunc("/live", h.handleLive)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	return http.ListenAndServe(":"+h.port, mux)
}

// handleHealth returns detailed health information
func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.service.GetStats()

	health := map[string]interface{}{
		"status":         "healthy",
		"service":        h.service.config.Service.Name,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"stats": map[string]interface{}{
			"runs_total":               stats.RunsTotal,
			"run_errors":               stats.RunErrors,
			"last_run_time":            stats.LastRunTime,
			"last_run_duration_seconds": stats.LastRunDuration.Seconds(),
			"last_run": map[string]interface{}{
				"run_id":            stats.LastReport.RunID,
				"batches_processed": stats.LastReport.BatchesProcessed,
				"failures":          stats.LastReport.Failures,
				"warnings":          stats.LastReport.Warnings,
			},
		},
		"config": map[string]interface{}{
			"run_interval_minutes": h.service.config.Service.RunIntervalMinutes,
			"warehouse_path":       h.service.config.Warehouse.Path,
			"landing_root":         h.service.config.Landing.Root,
			"max_parallel_batches": h.service.config.Pipeline.MaxParallelBatches,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleReady returns readiness status (for k8s)
func (h *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ready")
}

// handleLive returns liveness status (for k8s)
func (h *HealthServer) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "live")
}
