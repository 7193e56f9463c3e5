package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BatchStatus is the persisted lifecycle state of a batch.
type BatchStatus string

const (
	StatusDetected      BatchStatus = "detected"
	StatusLoading       BatchStatus = "loading"
	StatusLoaded        BatchStatus = "loaded"
	StatusQualityFailed BatchStatus = "quality_failed"
	StatusTransformed   BatchStatus = "transformed"
	StatusAggregated    BatchStatus = "aggregated"
	StatusArchived      BatchStatus = "archived"
	StatusFailed        BatchStatus = "failed"
)

// Terminal reports whether the status ends the batch's lifecycle.
func (s BatchStatus) Terminal() bool {
	switch s {
	case StatusArchived, StatusQualityFailed, StatusFailed:
		return true
	}
	return false
}

// BatchRecord is the durable state of one input batch, owned by the
// coordinator and checkpointed after every stage transition.
type BatchRecord struct {
	BatchID          string
	SourcePath       string
	Checksum         string
	RecordCount      int64
	ArrivalTimestamp time.Time
	Status           BatchStatus
	Attempts         int
	LastError        string
	UpdatedAt        time.Time
}

// UpsertBatch writes the batch record, replacing any previous state.
func (s *Store) UpsertBatch(ctx context.Context, b *BatchRecord) error {
	b.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pipeline_batches
		(batch_id, source_path, checksum, record_count, arrival_timestamp,
		 status, attempts, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BatchID, b.SourcePath, b.Checksum, b.RecordCount, b.ArrivalTimestamp,
		string(b.Status), b.Attempts, b.LastError, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert batch %s: %w", b.BatchID, err)
	}
	return nil
}

// BatchStatuses returns the persisted status of every known batch.
func (s *Store) BatchStatuses(ctx context.Context) (map[string]BatchStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT batch_id, status FROM pipeline_batches`)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch statuses: %w", err)
	}
	defer rows.Close()

	statuses := make(map[string]BatchStatus)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan batch status: %w", err)
		}
		statuses[id] = BatchStatus(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batch statuses: %w", err)
	}
	return statuses, nil
}

// GetBatch loads a single batch record. Returns nil if unknown.
func (s *Store) GetBatch(ctx context.Context, batchID string) (*BatchRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT batch_id, source_path, checksum, record_count, arrival_timestamp,
		       status, attempts, last_error, updated_at
		FROM pipeline_batches WHERE batch_id = ?`, batchID)

	b := &BatchRecord{}
	var status string
	err := row.Scan(&b.BatchID, &b.SourcePath, &b.Checksum, &b.RecordCount,
		&b.ArrivalTimestamp, &status, &b.Attempts, &b.LastError, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}
	b.Status = BatchStatus(status)
	return b, nil
}
