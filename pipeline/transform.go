package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/Zackkki/ecomm-datapipeline/logging"
	"github.com/Zackkki/ecomm-datapipeline/metrics"
	"github.com/Zackkki/ecomm-datapipeline/warehouse"
)

// Dimension fallbacks for references the snapshot cannot resolve. Facts are
// emitted with sentinels rather than dropped; the referential-integrity check
// has already logged the misses.
const (
	DefaultCustomerTier = "bronze"
	UnknownCategory     = "unknown"
)

// Transformer flattens staged orders into fact rows, resolving dimensions
// against an explicit snapshot. Given fixed staged content and a fixed
// snapshot, the output is a pure function of its inputs.
type Transformer struct {
	store  *warehouse.Store
	logger *logging.ComponentLogger
}

// NewTransformer creates a transformer.
func NewTransformer(store *warehouse.Store, logger *logging.ComponentLogger) *Transformer {
	return &Transformer{store: store, logger: logger}
}

// Transform builds and upserts one fact row per staged line item. Re-running
// for an already-transformed batch overwrites the same keys with the same
// values (or the latest dimension mapping if the snapshot advanced).
func (t *Transformer) Transform(ctx context.Context, batchID string, snapshot *warehouse.DimensionSnapshot) ([]warehouse.FactOrderLine, error) {
	staged, err := t.store.StagedOrders(ctx, batchID)
	if err != nil {
		return nil, Transient("transform", err)
	}

	facts := make([]warehouse.FactOrderLine, 0, len(staged))
	for _, s := range staged {
		facts = append(facts, buildFactRow(s, snapshot))
	}

	if err := t.store.UpsertFactRows(ctx, facts); err != nil {
		return nil, Transient("transform", err)
	}

	metrics.FactRowsWritten.Add(float64(len(facts)))
	t.logger.ForBatch(batchID).Info().
		Int("fact_rows", len(facts)).
		Time("snapshot_at", snapshot.SnapshotAt).
		Msg("Batch transformed")

	return facts, nil
}

// buildFactRow derives one fact row from a staged record and the snapshot.
func buildFactRow(s warehouse.StagedOrder, snapshot *warehouse.DimensionSnapshot) warehouse.FactOrderLine {
	tier := DefaultCustomerTier
	if c, ok := snapshot.Customers[s.CustomerID]; ok {
		tier = c.Tier
	}

	category := UnknownCategory
	if p, ok := snapshot.Products[s.ProductID]; ok {
		category = p.Category
	}

	ts := s.OrderTimestamp.UTC()
	return warehouse.FactOrderLine{
		OrderID:         s.OrderID,
		LineItemIndex:   s.LineItemIndex,
		CustomerID:      s.CustomerID,
		ProductID:       s.ProductID,
		Quantity:        s.Quantity,
		UnitPrice:       s.UnitPrice,
		LineTotal:       round2(float64(s.Quantity) * s.UnitPrice),
		OrderTimestamp:  ts,
		PartitionDate:   ts.Truncate(24 * time.Hour),
		OrderHour:       ts.Hour(),
		CustomerTier:    tier,
		ProductCategory: category,
		Region:          regionForState(s.State),
		BatchID:         s.BatchID,
	}
}

// regionForState maps a US state code to its sales region.
func regionForState(state string) string {
	switch state {
	case "CA", "OR", "WA":
		return "West"
	case "NY", "NJ", "PA":
		return "East"
	case "TX", "AZ", "NM":
		return "South"
	default:
		return "Other"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
