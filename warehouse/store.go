// Package warehouse manages the DuckDB-backed analytical store: staging and
// fact tables, dimension snapshots, rolling aggregates, the append-only data
// quality audit log, and durable per-batch pipeline state.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Table DDL. DuckDB enforces the primary keys, which is what makes
// INSERT OR REPLACE behave as an upsert.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS staging_orders (
		order_id        VARCHAR NOT NULL,
		line_item_index INTEGER NOT NULL,
		batch_id        VARCHAR NOT NULL,
		occurrence      INTEGER NOT NULL DEFAULT 1,
		customer_id     VARCHAR NOT NULL,
		product_id      VARCHAR NOT NULL,
		quantity        INTEGER NOT NULL,
		unit_price      DOUBLE NOT NULL,
		order_timestamp TIMESTAMP NOT NULL,
		total_amount    DOUBLE NOT NULL,
		payment_status  VARCHAR,
		city            VARCHAR,
		state           VARCHAR,
		country         VARCHAR,
		ingested_at     TIMESTAMP NOT NULL,
		PRIMARY KEY (order_id, line_item_index, batch_id, occurrence)
	)`,
	`CREATE TABLE IF NOT EXISTS fact_orders (
		order_id          VARCHAR NOT NULL,
		line_item_index   INTEGER NOT NULL,
		customer_id       VARCHAR NOT NULL,
		product_id        VARCHAR NOT NULL,
		quantity          INTEGER NOT NULL,
		unit_price        DOUBLE NOT NULL,
		line_total        DOUBLE NOT NULL,
		order_timestamp   TIMESTAMP NOT NULL,
		partition_date    DATE NOT NULL,
		order_hour        INTEGER NOT NULL,
		customer_tier     VARCHAR NOT NULL,
		product_category  VARCHAR NOT NULL,
		region            VARCHAR NOT NULL,
		batch_id          VARCHAR NOT NULL,
		PRIMARY KEY (order_id, line_item_index)
	)`,
	`CREATE TABLE IF NOT EXISTS dim_customers (
		customer_id       VARCHAR NOT NULL,
		name              VARCHAR,
		email             VARCHAR,
		registration_date DATE,
		customer_tier     VARCHAR NOT NULL,
		snapshot_at       TIMESTAMP NOT NULL,
		PRIMARY KEY (customer_id)
	)`,
	`CREATE TABLE IF NOT EXISTS dim_products (
		product_id   VARCHAR NOT NULL,
		product_name VARCHAR,
		category     VARCHAR NOT NULL,
		price        DOUBLE,
		snapshot_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS agg_hourly_metrics (
		metric_hour      TIMESTAMP NOT NULL,
		order_count      BIGINT NOT NULL,
		revenue_sum      DOUBLE NOT NULL,
		avg_order_value  DOUBLE NOT NULL,
		unique_customers BIGINT NOT NULL,
		updated_at       TIMESTAMP NOT NULL,
		PRIMARY KEY (metric_hour)
	)`,
	`CREATE TABLE IF NOT EXISTS agg_category_revenue (
		category    VARCHAR NOT NULL,
		metric_date DATE NOT NULL,
		order_count BIGINT NOT NULL,
		revenue_sum DOUBLE NOT NULL,
		updated_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (category, metric_date)
	)`,
	`CREATE TABLE IF NOT EXISTS agg_contributions (
		bucket_key  VARCHAR NOT NULL,
		batch_id    VARCHAR NOT NULL,
		recorded_at TIMESTAMP NOT NULL,
		PRIMARY KEY (bucket_key, batch_id)
	)`,
	`CREATE TABLE IF NOT EXISTS data_quality_checks (
		check_id           VARCHAR NOT NULL,
		check_name         VARCHAR NOT NULL,
		batch_id           VARCHAR NOT NULL,
		severity           VARCHAR NOT NULL,
		affected_row_count BIGINT NOT NULL,
		detail             VARCHAR,
		recorded_at        TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pipeline_batches (
		batch_id          VARCHAR NOT NULL,
		source_path       VARCHAR NOT NULL,
		checksum          VARCHAR NOT NULL,
		record_count      BIGINT NOT NULL,
		arrival_timestamp TIMESTAMP NOT NULL,
		status            VARCHAR NOT NULL,
		attempts          INTEGER NOT NULL,
		last_error        VARCHAR,
		updated_at        TIMESTAMP NOT NULL,
		PRIMARY KEY (batch_id)
	)`,
}

// Store wraps the DuckDB connection pool for the warehouse.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the warehouse database at path.
// An empty path opens an in-memory database, which tests rely on.
func Open(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DuckDB: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// InitSchema creates all warehouse tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create warehouse table: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying connection pool for ad-hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the warehouse connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
