package warehouse

import (
	"context"
	"fmt"
	"time"
)

// FactOrderLine is one row of the fact_orders star-schema table.
// Grain: one row per (order_id, line_item_index).
type FactOrderLine struct {
	OrderID         string
	LineItemIndex   int
	CustomerID      string
	ProductID       string
	Quantity        int
	UnitPrice       float64
	LineTotal       float64
	OrderTimestamp  time.Time
	PartitionDate   time.Time
	OrderHour       int
	CustomerTier    string
	ProductCategory string
	Region          string
	BatchID         string
}

// UpsertFactRows writes fact rows in one transaction, keyed on
// (order_id, line_item_index) so re-transforming a batch overwrites rather
// than duplicates.
func (s *Store) UpsertFactRows(ctx context.Context, rows []FactOrderLine) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO fact_orders
		(order_id, line_item_index, customer_id, product_id, quantity, unit_price,
		 line_total, order_timestamp, partition_date, order_hour, customer_tier,
		 product_category, region, batch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare fact upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.OrderID, r.LineItemIndex, r.CustomerID, r.ProductID, r.Quantity,
			r.UnitPrice, r.LineTotal, r.OrderTimestamp, r.PartitionDate,
			r.OrderHour, r.CustomerTier, r.ProductCategory, r.Region, r.BatchID,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert fact row %s/%d: %w", r.OrderID, r.LineItemIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fact rows: %w", err)
	}
	return nil
}

// FactRows returns the fact rows written for a batch, in key order.
func (s *Store) FactRows(ctx context.Context, batchID string) ([]FactOrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, line_item_index, customer_id, product_id, quantity,
		       unit_price, line_total, order_timestamp, partition_date, order_hour,
		       customer_tier, product_category, region, batch_id
		FROM fact_orders
		WHERE batch_id = ?
		ORDER BY order_id, line_item_index`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fact rows: %w", err)
	}
	defer rows.Close()

	var facts []FactOrderLine
	for rows.Next() {
		var r FactOrderLine
		err := rows.Scan(&r.OrderID, &r.LineItemIndex, &r.CustomerID, &r.ProductID,
			&r.Quantity, &r.UnitPrice, &r.LineTotal, &r.OrderTimestamp,
			&r.PartitionDate, &r.OrderHour, &r.CustomerTier, &r.ProductCategory,
			&r.Region, &r.BatchID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fact row: %w", err)
		}
		facts = append(facts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fact rows: %w", err)
	}
	return facts, nil
}
