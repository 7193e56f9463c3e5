package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Zackkki/ecomm-datapipeline/logging"
	"github.com/Zackkki/ecomm-datapipeline/metrics"
)

// RetryPolicy defines uniform retry behavior applied by the coordinator
// around each stage call. Only transient errors are retried.
type RetryPolicy struct {
	MaxAttempts   int
	Delay         time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy matches the pipeline's declared policy: two retries
// with a fixed five-minute delay.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   3,
		Delay:         5 * time.Minute,
		BackoffFactor: 1.0,
	}
}

// Execute runs fn, retrying transient failures per the policy. Schema and
// quality errors return immediately; context cancellation aborts the wait.
func (p *RetryPolicy) Execute(ctx context.Context, operation string, logger *logging.ComponentLogger, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("operation", operation).
					Int("attempts", attempt).
					Msg("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}

		if attempt >= p.MaxAttempts {
			logger.Error().
				Str("operation", operation).
				Int("attempts", attempt).
				Err(err).
				Msg("Operation failed after max attempts")
			return fmt.Errorf("operation %s failed after %d attempts: %w", operation, attempt, err)
		}

		delay := p.delayFor(attempt)
		metrics.RetryAttempts.WithLabelValues(operation).Inc()
		logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Err(err).
			Msg("Operation failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

func (p *RetryPolicy) delayFor(attempt int) time.Duration {
	if p.BackoffFactor <= 1.0 {
		return p.Delay
	}
	return time.Duration(float64(p.Delay) * math.Pow(p.BackoffFactor, float64(attempt-1)))
}
