package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zackkki/ecomm-datapipeline/logging"
)

const serviceVersion = "1.2.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	runOnce := flag.Bool("once", false, "Run a single pipeline cycle and exit")
	refreshDims := flag.Bool("refresh-dimensions", false, "Apply pending dimension snapshots and exit")
	flag.Parse()

	config, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewComponentLogger(config.Service.Name, serviceVersion)
	logging.SetLevel(config.Logging.Level)
	logger.Info().Str("config", *configPath).Msg("Configuration loaded")

	service, err := NewService(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create service")
	}
	defer service.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *refreshDims {
		if err := service.RefreshDimensions(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Dimension refresh failed")
		}
		return
	}

	if *runOnce {
		report, err := service.RunOnce(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("Pipeline run failed")
		}
		logger.Info().
			Str("run_id", report.RunID).
			Int("batches_processed", report.BatchesProcessed).
			Int("failures", report.Failures).
			Msg("Run complete")
		return
	}

	healthServer := NewHealthServer(service, config.Service.HealthPort)
	go func() {
		if err := healthServer.Start(); err != nil {
			logger.Error().Err(err).Msg("Health server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- service.Start(ctx)
	}()

	select {
	case <-sigChan:
		logger.Info().Msg("Received shutdown signal")
		cancel()
		service.Stop()
		logger.Info().Msg("Graceful shutdown complete")
	case err := <-errChan:
		if err != nil {
			logger.Fatal().Err(err).Msg("Service error")
		}
	}
}
