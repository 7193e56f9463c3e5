package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Zackkki/ecomm-datapipeline/landing"
	"github.com/Zackkki/ecomm-datapipeline/logging"
	"github.com/Zackkki/ecomm-datapipeline/pipeline"
	"github.com/Zackkki/ecomm-datapipeline/warehouse"
)

// Service owns the warehouse connection and the pipeline coordinator, and
// drives runs on the configured cadence.
type Service struct {
	config      *Config
	store       *warehouse.Store
	coordinator *pipeline.Coordinator
	logger      *logging.ComponentLogger
	stopChan    chan struct{}

	// Stats
	mu              sync.RWMutex
	runsTotal       int64
	runErrors       int64
	lastRunTime     time.Time
	lastRunDuration time.Duration
	lastReport      pipeline.RunReport
}

// ServiceStats holds pipeline run statistics
type ServiceStats struct {
	RunsTotal       int64
	RunErrors       int64
	LastRunTime     time.Time
	LastRunDuration time.Duration
	LastReport      pipeline.RunReport
}

// NewService creates a new pipeline service instance
func NewService(config *Config, logger *logging.ComponentLogger) (*Service, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := warehouse.Open(config.Warehouse.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}

	if err := store.InitSchema(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize warehouse schema: %w", err)
	}

	landingStore, err := landing.NewDirStore(config.Landing.Root)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open landing area: %w", err)
	}

	coordinator := pipeline.NewCoordinator(store, landingStore, config.PipelineOptions(), logger)

	logger.Info().
		Str("warehouse", config.Warehouse.Path).
		Str("landing_root", config.Landing.Root).
		Msg("Service initialized")

	return &Service{
		config:      config,
		store:       store,
		coordinator: coordinator,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}, nil
}

// Start begins the run scheduler. It runs one cycle immediately, then on
// every tick, until Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.config.RunInterval()).
		Msg("Starting order pipeline")

	s.runCycle(ctx)

	ticker := time.NewTicker(s.config.RunInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCycle(ctx)
		case <-s.stopChan:
			s.logger.Info().Msg("Stopping pipeline")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop gracefully stops the scheduler
func (s *Service) Stop() {
	close(s.stopChan)
}

// Close releases the warehouse connection
func (s *Service) Close() error {
	return s.store.Close()
}

// RunOnce refreshes dimensions and executes a single pipeline run.
func (s *Service) RunOnce(ctx context.Context) (pipeline.RunReport, error) {
	if err := s.coordinator.RefreshDimensions(ctx); err != nil {
		// A failed refresh is not fatal: order batches still process
		// against the previous snapshot, and staleness is caught by the
		// quality gate.
		s.logger.Warn().Err(err).Msg("Dimension refresh failed, using previous snapshot")
	}
	return s.coordinator.RunOnce(ctx)
}

// RefreshDimensions applies pending dimension snapshots without running
// the order pipeline.
func (s *Service) RefreshDimensions(ctx context.Context) error {
	return s.coordinator.RefreshDimensions(ctx)
}

func (s *Service) runCycle(ctx context.Context) {
	report, err := s.RunOnce(ctx)

	s.mu.Lock()
	s.runsTotal++
	s.lastRunTime = time.Now().UTC()
	s.lastRunDuration = report.Duration
	s.lastReport = report
	if err != nil {
		s.runErrors++
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Msg("Pipeline run failed")
	}
}

// GetStats returns a snapshot of the run statistics
func (s *Service) GetStats() ServiceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ServiceStats{
		RunsTotal:       s.runsTotal,
		RunErrors:       s.runErrors,
		LastRunTime:     s.lastRunTime,
		LastRunDuration: s.lastRunDuration,
		LastReport:      s.lastReport,
	}
}
