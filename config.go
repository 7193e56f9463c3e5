package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Zackkki/ecomm-datapipeline/pipeline"
)

// Config holds all configuration for the order pipeline service
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Landing   LandingConfig   `yaml:"landing"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Quality   QualityConfig   `yaml:"quality"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig contains service-level settings
type ServiceConfig struct {
	Name               string `yaml:"name"`
	HealthPort         string `yaml:"health_port"`
	RunIntervalMinutes int    `yaml:"run_interval_minutes"`
}

// LandingConfig locates the landing area prefixes
type LandingConfig struct {
	Root            string `yaml:"root"`
	OrdersPrefix    string `yaml:"orders_prefix"`
	CustomersPrefix string `yaml:"customers_prefix"`
	ProductsPrefix  string `yaml:"products_prefix"`
	ArchivePrefix   string `yaml:"archive_prefix"`
}

// WarehouseConfig locates the DuckDB warehouse
type WarehouseConfig struct {
	Path string `yaml:"path"`
}

// PipelineConfig contains batch processing settings.
// RetryCount is a pointer so an explicit 0 (retries disabled) survives
// default application.
type PipelineConfig struct {
	RetryCount          *int `yaml:"retry_count"`
	RetryDelaySeconds   int  `yaml:"retry_delay_seconds"`
	MaxParallelBatches  int  `yaml:"max_parallel_batches"`
	StageTimeoutSeconds int  `yaml:"stage_timeout_seconds"`
}

// QualityConfig contains quality gate thresholds.
// DimensionSnapshotMaxAgeHours is a pointer so an explicit 0 (staleness
// escalation disabled) survives default application.
type QualityConfig struct {
	AmountTolerance              float64 `yaml:"amount_tolerance"`
	DimensionSnapshotMaxAgeHours *int    `yaml:"dimension_snapshot_max_age_hours"`
}

// LoggingConfig contains log settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig loads configuration from YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults sets default values for unset fields
func (c *Config) ApplyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "order-pipeline"
	}
	if c.Service.HealthPort == "" {
		c.Service.HealthPort = "8093"
	}
	if c.Service.RunIntervalMinutes == 0 {
		c.Service.RunIntervalMinutes = 15
	}
	if c.Landing.OrdersPrefix == "" {
		c.Landing.OrdersPrefix = "landing/orders"
	}
	if c.Landing.CustomersPrefix == "" {
		c.Landing.CustomersPrefix = "landing/customers"
	}
	if c.Landing.ProductsPrefix == "" {
		c.Landing.ProductsPrefix = "landing/products"
	}
	if c.Landing.ArchivePrefix == "" {
		c.Landing.ArchivePrefix = "archive"
	}
	if c.Pipeline.RetryCount == nil {
		retries := 2
		c.Pipeline.RetryCount = &retries
	}
	if c.Pipeline.RetryDelaySeconds == 0 {
		c.Pipeline.RetryDelaySeconds = 300
	}
	if c.Pipeline.MaxParallelBatches == 0 {
		c.Pipeline.MaxParallelBatches = 4
	}
	if c.Pipeline.StageTimeoutSeconds == 0 {
		c.Pipeline.StageTimeoutSeconds = 120
	}
	if c.Quality.AmountTolerance == 0 {
		c.Quality.AmountTolerance = 0.01
	}
	if c.Quality.DimensionSnapshotMaxAgeHours == nil {
		hours := 48
		c.Quality.DimensionSnapshotMaxAgeHours = &hours
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Landing.Root == "" {
		return fmt.Errorf("landing.root is required")
	}
	if c.Warehouse.Path == "" {
		return fmt.Errorf("warehouse.path is required")
	}
	if c.Service.RunIntervalMinutes < 1 {
		return fmt.Errorf("service.run_interval_minutes must be at least 1")
	}
	if c.Pipeline.RetryCount != nil && *c.Pipeline.RetryCount < 0 {
		return fmt.Errorf("pipeline.retry_count must not be negative")
	}
	if c.Quality.AmountTolerance < 0 {
		return fmt.Errorf("quality.amount_tolerance must not be negative")
	}
	if c.Quality.DimensionSnapshotMaxAgeHours != nil && *c.Quality.DimensionSnapshotMaxAgeHours < 0 {
		return fmt.Errorf("quality.dimension_snapshot_max_age_hours must not be negative")
	}
	return nil
}

// RunInterval returns the pipeline cadence as a Duration
func (c *Config) RunInterval() time.Duration {
	return time.Duration(c.Service.RunIntervalMinutes) * time.Minute
}

// PipelineOptions builds the coordinator options from the config
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		OrdersPrefix:    c.Landing.OrdersPrefix,
		CustomersPrefix: c.Landing.CustomersPrefix,
		ProductsPrefix:  c.Landing.ProductsPrefix,
		ArchivePrefix:   c.Landing.ArchivePrefix,
		AmountTolerance: c.Quality.AmountTolerance,
		SnapshotMaxAge:  time.Duration(*c.Quality.DimensionSnapshotMaxAgeHours) * time.Hour,
		Retry: &pipeline.RetryPolicy{
			MaxAttempts:   *c.Pipeline.RetryCount + 1,
			Delay:         time.Duration(c.Pipeline.RetryDelaySeconds) * time.Second,
			BackoffFactor: 1.0,
		},
		MaxParallelBatches: c.Pipeline.MaxParallelBatches,
		StageTimeout:       time.Duration(c.Pipeline.StageTimeoutSeconds) * time.Second,
	}
}
