package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HourlyBucket holds the rolling metrics for one UTC hour.
type HourlyBucket struct {
	MetricHour      time.Time
	OrderCount      int64
	RevenueSum      float64
	AvgOrderValue   float64
	UniqueCustomers int64
	UpdatedAt       time.Time
}

// CategoryBucket holds the rolling revenue metrics for one category and day.
type CategoryBucket struct {
	Category   string
	MetricDate time.Time
	OrderCount int64
	RevenueSum float64
	UpdatedAt  time.Time
}

// RecomputeHourlyBucket re-sums the hourly metrics for one hour directly from
// fact_orders and replaces the bucket row. Re-summing from scratch instead of
// incrementing keeps replays idempotent without decrement logic.
func (s *Store) RecomputeHourlyBucket(ctx context.Context, hour time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO agg_hourly_metrics
		(metric_hour, order_count, revenue_sum, avg_order_value, unique_customers, updated_at)
		SELECT
			? AS metric_hour,
			COUNT(DISTINCT order_id),
			COALESCE(SUM(line_total), 0),
			COALESCE(SUM(line_total) / NULLIF(COUNT(DISTINCT order_id), 0), 0),
			COUNT(DISTINCT customer_id),
			CURRENT_TIMESTAMP
		FROM fact_orders
		WHERE date_trunc('hour', order_timestamp) = ?`,
		hour, hour)
	if err != nil {
		return fmt.Errorf("failed to recompute hourly bucket %s: %w", hour.Format(time.RFC3339), err)
	}
	return nil
}

// RecomputeCategoryBucket re-sums one (category, day) revenue bucket from
// fact_orders and replaces the bucket row.
func (s *Store) RecomputeCategoryBucket(ctx context.Context, category string, date time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO agg_category_revenue
		(category, metric_date, order_count, revenue_sum, updated_at)
		SELECT
			?, ?,
			COUNT(DISTINCT order_id),
			COALESCE(SUM(line_total), 0),
			CURRENT_TIMESTAMP
		FROM fact_orders
		WHERE product_category = ? AND partition_date = ?`,
		category, date, category, date)
	if err != nil {
		return fmt.Errorf("failed to recompute category bucket %s/%s: %w",
			category, date.Format("2006-01-02"), err)
	}
	return nil
}

// RecordContribution marks that a batch has contributed to a bucket.
// The (bucket_key, batch_id) key makes replayed contributions visible as
// no-ops rather than double counts.
func (s *Store) RecordContribution(ctx context.Context, bucketKey, batchID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO agg_contributions (bucket_key, batch_id, recorded_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)`, bucketKey, batchID)
	if err != nil {
		return fmt.Errorf("failed to record contribution %s/%s: %w", bucketKey, batchID, err)
	}
	return nil
}

// BucketContributions returns the batch ids recorded against a bucket, in
// batch id order. Replayed batches appear once, so the ledger answers which
// batches fed a bucket when its totals are questioned.
func (s *Store) BucketContributions(ctx context.Context, bucketKey string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id FROM agg_contributions
		WHERE bucket_key = ?
		ORDER BY batch_id`, bucketKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query contributions for %s: %w", bucketKey, err)
	}
	defer rows.Close()

	var batchIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		batchIDs = append(batchIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contributions: %w", err)
	}
	return batchIDs, nil
}

// GetHourlyBucket reads one hourly bucket. Returns nil if absent.
func (s *Store) GetHourlyBucket(ctx context.Context, hour time.Time) (*HourlyBucket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT metric_hour, order_count, revenue_sum, avg_order_value,
		       unique_customers, updated_at
		FROM agg_hourly_metrics WHERE metric_hour = ?`, hour)

	b := &HourlyBucket{}
	err := row.Scan(&b.MetricHour, &b.OrderCount, &b.RevenueSum,
		&b.AvgOrderValue, &b.UniqueCustomers, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load hourly bucket: %w", err)
	}
	return b, nil
}

// GetCategoryBucket reads one category bucket. Returns nil if absent.
func (s *Store) GetCategoryBucket(ctx context.Context, category string, date time.Time) (*CategoryBucket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT category, metric_date, order_count, revenue_sum, updated_at
		FROM agg_category_revenue WHERE category = ? AND metric_date = ?`,
		category, date)

	b := &CategoryBucket{}
	err := row.Scan(&b.Category, &b.MetricDate, &b.OrderCount, &b.RevenueSum, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load category bucket: %w", err)
	}
	return b, nil
}
