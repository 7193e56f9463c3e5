package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Zackkki/ecomm-datapipeline/landing"
	"github.com/Zackkki/ecomm-datapipeline/logging"
	"github.com/Zackkki/ecomm-datapipeline/metrics"
	"github.com/Zackkki/ecomm-datapipeline/warehouse"
)

// Options configures the coordinator.
type Options struct {
	OrdersPrefix    string
	CustomersPrefix string
	ProductsPrefix  string
	ArchivePrefix   string

	AmountTolerance float64
	SnapshotMaxAge  time.Duration

	Retry              *RetryPolicy
	MaxParallelBatches int
	StageTimeout       time.Duration
}

// ApplyDefaults sets default values for unset options.
func (o *Options) ApplyDefaults() {
	if o.OrdersPrefix == "" {
		o.OrdersPrefix = "landing/orders"
	}
	if o.CustomersPrefix == "" {
		o.CustomersPrefix = "landing/customers"
	}
	if o.ProductsPrefix == "" {
		o.ProductsPrefix = "landing/products"
	}
	if o.ArchivePrefix == "" {
		o.ArchivePrefix = "archive"
	}
	if o.AmountTolerance == 0 {
		o.AmountTolerance = 0.01
	}
	if o.Retry == nil {
		o.Retry = DefaultRetryPolicy()
	}
	if o.MaxParallelBatches <= 0 {
		o.MaxParallelBatches = 4
	}
	if o.StageTimeout <= 0 {
		o.StageTimeout = 2 * time.Minute
	}
}

// RunReport summarizes one pipeline run for the external trigger.
type RunReport struct {
	RunID            string
	BatchesProcessed int
	Failures         int
	Warnings         int
	Duration         time.Duration
}

// Coordinator sequences the stage DAG per batch:
// Detect -> Load -> Quality -> Transform -> Aggregate -> Archive.
// It owns the durable batch state, applies the retry policy uniformly around
// each stage, and isolates failures to the batch they occur in.
type Coordinator struct {
	store       *warehouse.Store
	landing     landing.ObjectStore
	opts        Options
	detector    *Detector
	loader      *Loader
	gate        *QualityGate
	transformer *Transformer
	aggregator  *Aggregator
	archiver    *Archiver
	logger      *logging.ComponentLogger
}

// NewCoordinator wires the pipeline stages over the given stores.
func NewCoordinator(store *warehouse.Store, landingStore landing.ObjectStore, opts Options, logger *logging.ComponentLogger) *Coordinator {
	opts.ApplyDefaults()

	return &Coordinator{
		store:       store,
		landing:     landingStore,
		opts:        opts,
		detector:    NewDetector(landingStore, opts.OrdersPrefix, logger),
		loader:      NewLoader(store, landingStore, logger),
		gate:        NewQualityGate(store, opts.AmountTolerance, opts.SnapshotMaxAge, logger),
		transformer: NewTransformer(store, logger),
		aggregator:  NewAggregator(store, logger),
		archiver:    NewArchiver(landingStore, opts.ArchivePrefix, logger),
		logger:      logger,
	}
}

// RunOnce executes one full pipeline run: detect new batches and advance each
// through the DAG on a bounded worker pool. Batches never block each other;
// a quality failure or processing failure is terminal for that batch only.
// Only a coordinator-level failure (store unreachable) returns an error.
func (c *Coordinator) RunOnce(ctx context.Context) (RunReport, error) {
	start := time.Now()
	report := RunReport{RunID: uuid.NewString()}

	known, err := c.store.BatchStatuses(ctx)
	if err != nil {
		metrics.RunErrors.Inc()
		return report, fmt.Errorf("failed to load batch state: %w", err)
	}

	snapshot, err := c.store.LoadDimensionSnapshot(ctx)
	if err != nil {
		metrics.RunErrors.Inc()
		return report, fmt.Errorf("failed to load dimension snapshot: %w", err)
	}

	batches, err := c.detector.Detect(ctx, known)
	if err != nil {
		metrics.RunErrors.Inc()
		return report, fmt.Errorf("failed to detect batches: %w", err)
	}

	runStamp := start.UTC().Format("20060102_150405")
	c.logger.Info().
		Str("run_id", report.RunID).
		Int("batches", len(batches)).
		Msg("Pipeline run starting")

	sem := make(chan struct{}, c.opts.MaxParallelBatches)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, batch := range batches {
		// Cancellation is cooperative at batch boundaries: an in-flight
		// batch continues to its next durable state, new ones do not start.
		if ctx.Err() != nil {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(b *Batch) {
			defer wg.Done()
			defer func() { <-sem }()

			warnings := c.processBatch(ctx, b, snapshot, runStamp)

			mu.Lock()
			report.BatchesProcessed++
			report.Warnings += warnings
			if b.Status == warehouse.StatusFailed || b.Status == warehouse.StatusQualityFailed {
				report.Failures++
			}
			mu.Unlock()

			metrics.BatchesTotal.WithLabelValues(string(b.Status)).Inc()
		}(batch)
	}
	wg.Wait()

	report.Duration = time.Since(start)
	metrics.RunsTotal.Inc()
	metrics.RunDuration.Observe(report.Duration.Seconds())
	metrics.LastRunTimestamp.SetToCurrentTime()

	c.logger.Info().
		Str("run_id", report.RunID).
		Int("batches_processed", report.BatchesProcessed).
		Int("failures", report.Failures).
		Int("warnings", report.Warnings).
		Dur("duration", report.Duration).
		Msg("Pipeline run complete")

	return report, nil
}

// processBatch advances one batch through the DAG from its current durable
// status. Every transition is checkpointed before the next stage runs, so
// a crash leaves the batch resumable at its last completed stage.
// It returns the number of quality warnings raised.
func (c *Coordinator) processBatch(ctx context.Context, b *Batch, snapshot *warehouse.DimensionSnapshot, runStamp string) int {
	log := c.logger.ForBatch(b.ID)
	warnings := 0

	attempts := 1
	if prev, err := c.store.GetBatch(ctx, b.ID); err == nil && prev != nil {
		attempts = prev.Attempts + 1
		b.RecordCount = prev.RecordCount
	}

	var facts []warehouse.FactOrderLine

	if b.Status == warehouse.StatusDetected || b.Status == warehouse.StatusLoading {
		if !c.persist(ctx, b, warehouse.StatusLoading, attempts, "") {
			return warnings
		}
		err := c.runStage(ctx, "load", log, func(sctx context.Context) error {
			result, err := c.loader.Load(sctx, b)
			if err == nil {
				b.RecordCount = int64(result.RecordsLoaded)
			}
			return err
		})
		if err != nil {
			c.failBatch(ctx, b, log, attempts, "load", err)
			return warnings
		}
		if !c.persist(ctx, b, warehouse.StatusLoaded, attempts, "") {
			return warnings
		}
	}

	if b.Status == warehouse.StatusLoaded {
		var results []warehouse.QualityCheckResult
		err := c.runStage(ctx, "quality", log, func(sctx context.Context) error {
			var qerr error
			results, qerr = c.gate.Evaluate(sctx, b.ID, snapshot)
			return qerr
		})
		if err != nil {
			c.failBatch(ctx, b, log, attempts, "quality", err)
			return warnings
		}

		warnings = WarnCount(results)
		if HasFailure(results) {
			// Terminal for this batch, not for the run: the raw input stays
			// in the landing area for manual remediation.
			c.persist(ctx, b, warehouse.StatusQualityFailed, attempts, "quality gate failure")
			log.Warn().Msg("Batch halted by quality gate")
			return warnings
		}

		err = c.runStage(ctx, "transform", log, func(sctx context.Context) error {
			var terr error
			facts, terr = c.transformer.Transform(sctx, b.ID, snapshot)
			return terr
		})
		if err != nil {
			c.failBatch(ctx, b, log, attempts, "transform", err)
			return warnings
		}
		if !c.persist(ctx, b, warehouse.StatusTransformed, attempts, "") {
			return warnings
		}
	}

	if b.Status == warehouse.StatusTransformed {
		if facts == nil {
			// Resumed past transform; recover this batch's fact rows
			var err error
			facts, err = c.store.FactRows(ctx, b.ID)
			if err != nil {
				c.failBatch(ctx, b, log, attempts, "aggregate", Transient("aggregate", err))
				return warnings
			}
		}
		err := c.runStage(ctx, "aggregate", log, func(sctx context.Context) error {
			return c.aggregator.Aggregate(sctx, b.ID, facts)
		})
		if err != nil {
			c.failBatch(ctx, b, log, attempts, "aggregate", err)
			return warnings
		}
		if !c.persist(ctx, b, warehouse.StatusAggregated, attempts, "") {
			return warnings
		}
	}

	if b.Status == warehouse.StatusAggregated {
		err := c.runStage(ctx, "archive", log, func(sctx context.Context) error {
			return c.archiver.Archive(sctx, b, runStamp)
		})
		if err != nil {
			c.failBatch(ctx, b, log, attempts, "archive", err)
			return warnings
		}
		c.persist(ctx, b, warehouse.StatusArchived, attempts, "")
	}

	return warnings
}

// runStage applies the retry policy and the stage timeout around one stage
// call. A timeout surfaces as a transient failure eligible for retry.
func (c *Coordinator) runStage(ctx context.Context, stage string, log *logging.ComponentLogger, fn func(context.Context) error) error {
	return c.opts.Retry.Execute(ctx, stage, log, func() error {
		sctx, cancel := context.WithTimeout(ctx, c.opts.StageTimeout)
		defer cancel()

		start := time.Now()
		err := fn(sctx)
		metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())

		if err != nil && errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !IsTransient(err) {
			return Transient(stage, err)
		}
		return err
	})
}

// persist checkpoints the batch's new status. Returns false when the write
// fails, in which case processing stops and the batch resumes next run from
// its previous durable state.
func (c *Coordinator) persist(ctx context.Context, b *Batch, status warehouse.BatchStatus, attempts int, lastError string) bool {
	b.Status = status
	if err := c.store.UpsertBatch(ctx, b.Record(attempts, lastError)); err != nil {
		c.logger.ForBatch(b.ID).Error().Err(err).
			Str("status", string(status)).
			Msg("Failed to checkpoint batch state")
		return false
	}
	return true
}

// failBatch marks the batch failed unless the run was cancelled, in which
// case the batch keeps its last durable state and resumes next run.
func (c *Coordinator) failBatch(ctx context.Context, b *Batch, log *logging.ComponentLogger, attempts int, stage string, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		log.Warn().Str("stage", stage).Msg("Run cancelled, batch left resumable")
		return
	}

	log.Error().Str("stage", stage).Err(err).Msg("Batch failed")
	c.persist(ctx, b, warehouse.StatusFailed, attempts, err.Error())
}
