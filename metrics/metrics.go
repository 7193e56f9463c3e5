// Package metrics exposes Prometheus instrumentation for the order pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts completed pipeline runs
	RunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_pipeline_runs_total",
		Help: "Total number of completed pipeline runs",
	})

	// RunErrors counts runs that aborted with a coordinator-level error
	RunErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_pipeline_run_errors_total",
		Help: "Total number of pipeline runs that failed outright",
	})

	// RunDuration observes wall-clock time for a full run
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_pipeline_run_duration_seconds",
		Help:    "Duration of pipeline runs",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	})

	// BatchesTotal counts batches by the terminal status they reached in a run
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_pipeline_batches_total",
		Help: "Total number of batches by terminal status",
	}, []string{"status"})

	// StageDuration observes per-stage execution time
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_pipeline_stage_duration_seconds",
		Help:    "Duration of individual pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"stage"})

	// RecordsLoaded counts staged order records written by the loader
	RecordsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_pipeline_records_loaded_total",
		Help: "Total number of order line records staged",
	})

	// RecordsRejected counts malformed records routed to the reject pile
	RecordsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_pipeline_records_rejected_total",
		Help: "Total number of malformed records rejected during load",
	})

	// FactRowsWritten counts fact rows upserted by the transformer
	FactRowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_pipeline_fact_rows_written_total",
		Help: "Total number of fact rows written",
	})

	// QualityResults counts quality check results by severity
	QualityResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_pipeline_quality_results_total",
		Help: "Total number of quality check results by severity",
	}, []string{"severity"})

	// RetryAttempts counts stage retries
	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_pipeline_retry_attempts_total",
		Help: "Total number of stage retry attempts",
	}, []string{"stage"})

	// LastRunTimestamp records the unix time of the last successful run
	LastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "order_pipeline_last_run_timestamp_seconds",
		Help: "Unix timestamp of the last completed run",
	})
)
