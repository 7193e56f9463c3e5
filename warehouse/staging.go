package warehouse

import (
	"context"
	"fmt"
	"time"
)

// StagedOrder is one raw-shape order line staged by the loader, carrying
// batch lineage. Downstream stages read it but never mutate it; re-loads of
// the same batch supersede it via the upsert key.
type StagedOrder struct {
	OrderID        string
	LineItemIndex  int
	BatchID        string
	// Occurrence disambiguates the same (order_id, line_item_index) key
	// appearing more than once in one raw batch, so the quality gate can
	// still see intra-batch duplicates after the upsert.
	Occurrence     int
	CustomerID     string
	ProductID      string
	Quantity       int
	UnitPrice      float64
	OrderTimestamp time.Time
	TotalAmount    float64
	PaymentStatus  string
	City           string
	State          string
	Country        string
	IngestedAt     time.Time
}

// UpsertStagedOrders writes the batch's staged rows in one transaction.
// Rerunning with the same rows is a no-op beyond the first write.
func (s *Store) UpsertStagedOrders(ctx context.Context, rows []StagedOrder) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO staging_orders
		(order_id, line_item_index, batch_id, occurrence, customer_id, product_id,
		 quantity, unit_price, order_timestamp, total_amount, payment_status,
		 city, state, country, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare staging upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.OrderID, r.LineItemIndex, r.BatchID, r.Occurrence, r.CustomerID,
			r.ProductID, r.Quantity, r.UnitPrice, r.OrderTimestamp, r.TotalAmount,
			r.PaymentStatus, r.City, r.State, r.Country, r.IngestedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to stage order %s line %d: %w", r.OrderID, r.LineItemIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit staging batch: %w", err)
	}
	return nil
}

// StagedOrders returns all staged rows for a batch, in key order.
func (s *Store) StagedOrders(ctx context.Context, batchID string) ([]StagedOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, line_item_index, batch_id, occurrence, customer_id,
		       product_id, quantity, unit_price, order_timestamp, total_amount,
		       payment_status, city, state, country, ingested_at
		FROM staging_orders
		WHERE batch_id = ?
		ORDER BY order_id, line_item_index, occurrence`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged orders: %w", err)
	}
	defer rows.Close()

	var staged []StagedOrder
	for rows.Next() {
		var r StagedOrder
		err := rows.Scan(&r.OrderID, &r.LineItemIndex, &r.BatchID, &r.Occurrence,
			&r.CustomerID, &r.ProductID, &r.Quantity, &r.UnitPrice,
			&r.OrderTimestamp, &r.TotalAmount, &r.PaymentStatus,
			&r.City, &r.State, &r.Country, &r.IngestedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staged order: %w", err)
		}
		staged = append(staged, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating staged orders: %w", err)
	}
	return staged, nil
}

// DuplicateKey identifies an (order_id, line_item_index) pair staged more
// than once, either inside one batch or colliding across batches.
type DuplicateKey struct {
	OrderID       string
	LineItemIndex int
	RowCount      int
}

// IntraBatchDuplicates finds keys staged more than once within the batch.
func (s *Store) IntraBatchDuplicates(ctx context.Context, batchID string) ([]DuplicateKey, error) {
	return s.queryDuplicates(ctx, `
		SELECT order_id, line_item_index, COUNT(*) AS cnt
		FROM staging_orders
		WHERE batch_id = ?
		GROUP BY order_id, line_item_index
		HAVING COUNT(*) > 1
		ORDER BY order_id, line_item_index`, batchID)
}

// CrossBatchCollisions finds keys of this batch already staged by another batch.
func (s *Store) CrossBatchCollisions(ctx context.Context, batchID string) ([]DuplicateKey, error) {
	return s.queryDuplicates(ctx, `
		SELECT a.order_id, a.line_item_index, COUNT(DISTINCT b.batch_id) AS cnt
		FROM staging_orders a
		JOIN staging_orders b
		  ON a.order_id = b.order_id AND a.line_item_index = b.line_item_index
		WHERE a.batch_id = ? AND b.batch_id <> a.batch_id
		GROUP BY a.order_id, a.line_item_index
		ORDER BY a.order_id, a.line_item_index`, batchID)
}

func (s *Store) queryDuplicates(ctx context.Context, query, batchID string) ([]DuplicateKey, error) {
	rows, err := s.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicates: %w", err)
	}
	defer rows.Close()

	var dups []DuplicateKey
	for rows.Next() {
		var d DuplicateKey
		if err := rows.Scan(&d.OrderID, &d.LineItemIndex, &d.RowCount); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate key: %w", err)
		}
		dups = append(dups, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duplicates: %w", err)
	}
	return dups, nil
}

// AmountMismatch describes an order whose declared total deviates from the
// sum of its line totals by more than the configured tolerance.
type AmountMismatch struct {
	OrderID       string
	DeclaredTotal float64
	SummedTotal   float64
}

// AmountMismatches finds orders in the batch violating the amount tolerance.
func (s *Store) AmountMismatches(ctx context.Context, batchID string, tolerance float64) ([]AmountMismatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, MAX(total_amount) AS declared,
		       ROUND(SUM(quantity * unit_price), 2) AS summed
		FROM staging_orders
		WHERE batch_id = ?
		GROUP BY order_id
		HAVING ROUND(ABS(ROUND(SUM(quantity * unit_price), 2) - MAX(total_amount)), 2) > ?
		ORDER BY order_id`, batchID, tolerance)
	if err != nil {
		return nil, fmt.Errorf("failed to query amount mismatches: %w", err)
	}
	defer rows.Close()

	var mismatches []AmountMismatch
	for rows.Next() {
		var m AmountMismatch
		if err := rows.Scan(&m.OrderID, &m.DeclaredTotal, &m.SummedTotal); err != nil {
			return nil, fmt.Errorf("failed to scan amount mismatch: %w", err)
		}
		mismatches = append(mismatches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating amount mismatches: %w", err)
	}
	return mismatches, nil
}

// IncompleteRowCount counts staged rows with empty required fields.
func (s *Store) IncompleteRowCount(ctx context.Context, batchID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM staging_orders
		WHERE batch_id = ?
		  AND (order_id = '' OR customer_id = '' OR product_id = ''
		       OR quantity <= 0 OR unit_price < 0)`, batchID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count incomplete rows: %w", err)
	}
	return count, nil
}

// MissingDimensionRefs counts staged rows whose customer or product is absent
// from the current dimension snapshot.
func (s *Store) MissingDimensionRefs(ctx context.Context, batchID string) (missingCustomers, missingProducts int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM staging_orders o
		WHERE o.batch_id = ?
		  AND NOT EXISTS (SELECT 1 FROM dim_customers c WHERE c.customer_id = o.customer_id)`,
		batchID).Scan(&missingCustomers)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count missing customer refs: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM staging_orders o
		WHERE o.batch_id = ?
		  AND NOT EXISTS (SELECT 1 FROM dim_products p WHERE p.product_id = o.product_id)`,
		batchID).Scan(&missingProducts)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count missing product refs: %w", err)
	}

	return missingCustomers, missingProducts, nil
}
