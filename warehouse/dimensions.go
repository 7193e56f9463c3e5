package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Customer is one slowly-changing customer dimension row.
type Customer struct {
	CustomerID       string
	Name             string
	Email            string
	RegistrationDate time.Time
	Tier             string
}

// Product is one slowly-changing product dimension row.
type Product struct {
	ProductID string
	Name      string
	Category  string
	Price     float64
}

// DimensionSnapshot is an explicit, immutable view of the dimension tables
// taken at the start of a run. Passing it into the transformer keeps the
// transform a pure function of (staged record, snapshot).
type DimensionSnapshot struct {
	Customers  map[string]Customer
	Products   map[string]Product
	SnapshotAt time.Time
}

// Age returns how stale the snapshot is relative to now.
func (d *DimensionSnapshot) Age(now time.Time) time.Duration {
	if d.SnapshotAt.IsZero() {
		return 0
	}
	return now.Sub(d.SnapshotAt)
}

// LoadDimensionSnapshot reads the latest known dimension state.
func (s *Store) LoadDimensionSnapshot(ctx context.Context) (*DimensionSnapshot, error) {
	snapshot := &DimensionSnapshot{
		Customers: make(map[string]Customer),
		Products:  make(map[string]Product),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_id, name, email, registration_date, customer_tier, snapshot_at
		FROM dim_customers`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dim_customers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Customer
		var name, email sql.NullString
		var regDate sql.NullTime
		var snapAt time.Time
		if err := rows.Scan(&c.CustomerID, &name, &email, &regDate, &c.Tier, &snapAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		c.Name = name.String
		c.Email = email.String
		c.RegistrationDate = regDate.Time
		snapshot.Customers[c.CustomerID] = c
		if snapAt.After(snapshot.SnapshotAt) {
			snapshot.SnapshotAt = snapAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}

	prows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, category, price, snapshot_at
		FROM dim_products`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dim_products: %w", err)
	}
	defer prows.Close()

	for prows.Next() {
		var p Product
		var name sql.NullString
		var price sql.NullFloat64
		var snapAt time.Time
		if err := prows.Scan(&p.ProductID, &name, &p.Category, &price, &snapAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.Name = name.String
		p.Price = price.Float64
		snapshot.Products[p.ProductID] = p
		if snapAt.After(snapshot.SnapshotAt) {
			snapshot.SnapshotAt = snapAt
		}
	}
	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return snapshot, nil
}

// UpsertCustomers writes a customer dimension snapshot.
func (s *Store) UpsertCustomers(ctx context.Context, customers []Customer, snapshotAt time.Time) error {
	if len(customers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO dim_customers
		(customer_id, name, email, registration_date, customer_tier, snapshot_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare customer upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range customers {
		if _, err := stmt.ExecContext(ctx, c.CustomerID, c.Name, c.Email,
			c.RegistrationDate, c.Tier, snapshotAt); err != nil {
			return fmt.Errorf("failed to upsert customer %s: %w", c.CustomerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit customer snapshot: %w", err)
	}
	return nil
}

// UpsertProducts writes a product dimension snapshot.
func (s *Store) UpsertProducts(ctx context.Context, products []Product, snapshotAt time.Time) error {
	if len(products) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO dim_products
		(product_id, product_name, category, price, snapshot_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare product upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		if _, err := stmt.ExecContext(ctx, p.ProductID, p.Name, p.Category,
			p.Price, snapshotAt); err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", p.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product snapshot: %w", err)
	}
	return nil
}
