package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Prometheus metrics
	batchesTotalMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "silver_batches_total",
		Help: "Total number of successful silver batches",
	})

	batchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "silver_batch_errors_total",
		Help: "Total number of failed silver batches",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "silver_batch_duration_seconds",
		Help:    "Duration of silver batch runs",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	})

	rowsTransformedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silver_rows_transformed_total",
		Help: "Total number of rows transformed per table",
	}, []string{"table_name"})

	qualityCheckFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "silver_quality_check_failures_total",
		Help: "Total number of failed quality checks per check",
	}, []string{"check_name"})
)

// HealthServer manages the HTTP health and metrics endpoints
type HealthServer struct {
	orchestrator *Orchestrator
	port         string
	startTime    time.Time
}

// NewHealthServer creates a new health server
func NewHealthServer(orchestrator *Orchestrator, port string) *HealthServer {
	return &HealthServer{
		orchestrator: orchestrator,
		port:         port,
		startTime:    time.Now(),
	}
}

// Start starts the health and metrics HTTP server
func (h *HealthServer) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/ready", h.handleReady)
	mux.HandleFunc("/live", h.handleLive)
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + h.port
	log.Printf("🏥 Health server listening on %s", addr)

	return http.ListenAndServe(addr, mux)
}

// handleHealth returns detailed health information
func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.orchestrator.GetStats()

	health := map[string]interface{}{
		"status":         "healthy",
		"service":        h.orchestrator.config.Service.Name,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"stats": map[string]interface{}{
			"batches_total":               stats.BatchesTotal,
			"batch_errors":                stats.BatchErrors,
			"last_batch_id":               stats.LastBatchID,
			"last_batch_time":             stats.LastBatchTime,
			"last_batch_duration_seconds": stats.LastBatchDuration.Seconds(),
			"last_batch_row_count":        stats.LastBatchRowCount,
		},
		"config": map[string]interface{}{
			"poll_interval_seconds": h.orchestrator.config.Service.PollIntervalSeconds,
			"watermark_buffer_days": h.orchestrator.config.Watermark.BufferDays,
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
