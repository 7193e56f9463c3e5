package warehouse

import (
	"context"
	"fmt"
	"time"
)

// Severity classifies a quality check result.
type Severity string

const (
	SeverityInfo Severity = "info"
	SeverityWarn Severity = "warn"
	SeverityFail Severity = "fail"
)

// QualityCheckResult is one row of the append-only data quality audit log.
type QualityCheckResult struct {
	CheckID          string
	CheckName        string
	BatchID          string
	Severity         Severity
	AffectedRowCount int64
	Detail           string
	RecordedAt       time.Time
}

// AppendQualityResults appends results to the audit log. The log is
// append-only; rows are never updated or deleted.
func (s *Store) AppendQualityResults(ctx context.Context, results []QualityCheckResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO data_quality_checks
		(check_id, check_name, batch_id, severity, affected_row_count, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		_, err := stmt.ExecContext(ctx, r.CheckID, r.CheckName, r.BatchID,
			string(r.Severity), r.AffectedRowCount, r.Detail, r.RecordedAt)
		if err != nil {
			return fmt.Errorf("failed to append quality result %s: %w", r.CheckName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit log: %w", err)
	}
	return nil
}

// QualityResults returns the audit rows recorded for a batch, oldest first.
func (s *Store) QualityResults(ctx context.Context, batchID string) ([]QualityCheckResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT check_id, check_name, batch_id, severity, affected_row_count,
		       detail, recorded_at
		FROM data_quality_checks
		WHERE batch_id = ?
		ORDER BY recorded_at, check_name`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality results: %w", err)
	}
	defer rows.Close()

	var results []QualityCheckResult
	for rows.Next() {
		var r QualityCheckResult
		var severity string
		err := rows.Scan(&r.CheckID, &r.CheckName, &r.BatchID, &severity,
			&r.AffectedRowCount, &r.Detail, &r.RecordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quality result: %w", err)
		}
		r.Severity = Severity(severity)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quality results: %w", err)
	}
	return results, nil
}
