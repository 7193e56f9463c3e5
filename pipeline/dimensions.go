package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Zackkki/ecomm-datapipeline/landing"
	"github.com/Zackkki/ecomm-datapipeline/warehouse"
)

// RefreshDimensions ingests customer and product dimension snapshots from
// the landing area. Dimension files arrive as CSVs on their own cadence,
// independent of order batches. Consumed files are moved to the archive so
// the next refresh only sees new snapshots.
func (c *Coordinator) RefreshDimensions(ctx context.Context) error {
	now := time.Now().UTC()
	runStamp := now.Format("20060102_150405")

	customerFiles, err := c.landing.List(ctx, c.opts.CustomersPrefix)
	if err != nil {
		return Transient("list customer snapshots", err)
	}
	productFiles, err := c.landing.List(ctx, c.opts.ProductsPrefix)
	if err != nil {
		return Transient("list product snapshots", err)
	}

	consumed := 0

	for _, obj := range customerFiles {
		if !strings.HasSuffix(obj.Path, ".csv") {
			continue
		}
		customers, err := c.parseCustomerFile(ctx, obj)
		if err != nil {
			return err
		}
		if err := c.store.UpsertCustomers(ctx, customers, now); err != nil {
			return Transient("upsert customers", err)
		}
		if err := c.archiveDimensionFile(ctx, obj, runStamp); err != nil {
			return err
		}
		consumed++
		c.logger.Info().
			Str("path", obj.Path).
			Int("customers", len(customers)).
			Msg("Customer dimension snapshot applied")
	}

	for _, obj := range productFiles {
		if !strings.HasSuffix(obj.Path, ".csv") {
			continue
		}
		products, err := c.parseProductFile(ctx, obj)
		if err != nil {
			return err
		}
		if err := c.store.UpsertProducts(ctx, products, now); err != nil {
			return Transient("upsert products", err)
		}
		if err := c.archiveDimensionFile(ctx, obj, runStamp); err != nil {
			return err
		}
		consumed++
		c.logger.Info().
			Str("path", obj.Path).
			Int("products", len(products)).
			Msg("Product dimension snapshot applied")
	}

	if consumed == 0 {
		c.logger.Debug().Msg("No dimension snapshots to refresh")
	}
	return nil
}

func (c *Coordinator) parseCustomerFile(ctx context.Context, obj landing.ObjectInfo) ([]warehouse.Customer, error) {
	records, err := c.readCSV(ctx, obj)
	if err != nil {
		return nil, err
	}

	customers := make([]warehouse.Customer, 0, len(records))
	for i, rec := range records {
		if len(rec) < 5 {
			return nil, &SchemaError{Path: obj.Path, Reason: fmt.Sprintf("customer row %d has %d columns, want 5", i+2, len(rec))}
		}
		cust := warehouse.Customer{
			CustomerID: strings.TrimSpace(rec[0]),
			Name:       strings.TrimSpace(rec[1]),
			Email:      strings.TrimSpace(rec[2]),
			Tier:       strings.TrimSpace(rec[4]),
		}
		if cust.CustomerID == "" {
			return nil, &SchemaError{Path: obj.Path, Reason: fmt.Sprintf("customer row %d has empty customer_id", i+2)}
		}
		if regDate := strings.TrimSpace(rec[3]); regDate != "" {
			t, err := time.Parse("2006-01-02", regDate)
			if err != nil {
				return nil, &SchemaError{Path: obj.Path, Reason: fmt.Sprintf("customer row %d has bad registration_date %q", i+2, regDate)}
			}
			cust.RegistrationDate = t
		}
		if cust.Tier == "" {
			cust.Tier = DefaultCustomerTier
		}
		customers = append(customers, cust)
	}
	return customers, nil
}

func (c *Coordinator) parseProductFile(ctx context.Context, obj landing.ObjectInfo) ([]warehouse.Product, error) {
	records, err := c.readCSV(ctx, obj)
	if err != nil {
		return nil, err
	}

	products := make([]warehouse.Product, 0, len(records))
	for i, rec := range records {
		if len(rec) < 4 {
			return nil, &SchemaError{Path: obj.Path, Reason: fmt.Sprintf("product row %d has %d columns, want at least 4", i+2, len(rec))}
		}
		prod := warehouse.Product{
			ProductID: strings.TrimSpace(rec[0]),
			Name:      strings.TrimSpace(rec[1]),
			Category:  strings.TrimSpace(rec[2]),
		}
		if prod.ProductID == "" {
			return nil, &SchemaError{Path: obj.Path, Reason: fmt.Sprintf("product row %d has empty product_id", i+2)}
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		if err != nil {
			return nil, &SchemaError{Path: obj.Path, Reason: fmt.Sprintf("product row %d has bad price %q", i+2, rec[3])}
		}
		prod.Price = price
		products = append(products, prod)
	}
	return products, nil
}

// readCSV returns the data rows of a CSV object, skipping the header.
func (c *Coordinator) readCSV(ctx context.Context, obj landing.ObjectInfo) ([][]string, error) {
	data, err := c.landing.Read(ctx, obj.Path)
	if err != nil {
		return nil, Transient("read dimension snapshot", err)
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &SchemaError{Path: obj.Path, Reason: fmt.Sprintf("malformed CSV: %v", err)}
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	return rows[1:], nil
}

func (c *Coordinator) archiveDimensionFile(ctx context.Context, obj landing.ObjectInfo, runStamp string) error {
	dest := path.Join(c.opts.ArchivePrefix, runStamp, path.Base(obj.Path))
	if err := c.landing.Move(ctx, obj.Path, dest); err != nil {
		return Transient("archive dimension snapshot", err)
	}
	return nil
}
