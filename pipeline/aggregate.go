package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Zackkki/ecomm-datapipeline/logging"
	"github.com/Zackkki/ecomm-datapipeline/warehouse"
)

// Aggregator maintains the rolling hourly and category aggregates from newly
// written fact rows. Each touched bucket is re-summed from fact_orders rather
// than incremented, so replaying a batch converges to identical totals.
type Aggregator struct {
	store  *warehouse.Store
	logger *logging.ComponentLogger
}

// NewAggregator creates an aggregator.
func NewAggregator(store *warehouse.Store, logger *logging.ComponentLogger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Aggregate recomputes every bucket the batch's fact rows touch and records
// the batch's contribution per bucket for replay dedup.
func (a *Aggregator) Aggregate(ctx context.Context, batchID string, facts []warehouse.FactOrderLine) error {
	hours := make(map[time.Time]bool)
	type categoryKey struct {
		category string
		date     time.Time
	}
	categories := make(map[categoryKey]bool)

	for _, f := range facts {
		hours[f.OrderTimestamp.UTC().Truncate(time.Hour)] = true
		categories[categoryKey{f.ProductCategory, f.PartitionDate}] = true
	}

	for hour := range hours {
		if err := a.store.RecomputeHourlyBucket(ctx, hour); err != nil {
			return Transient("aggregate", err)
		}
		key := fmt.Sprintf("hour:%s", hour.Format("2006-01-02T15"))
		if err := a.store.RecordContribution(ctx, key, batchID); err != nil {
			return Transient("aggregate", err)
		}
	}

	for ck := range categories {
		if err := a.store.RecomputeCategoryBucket(ctx, ck.category, ck.date); err != nil {
			return Transient("aggregate", err)
		}
		key := fmt.Sprintf("category:%s:%s", ck.category, ck.date.Format("2006-01-02"))
		if err := a.store.RecordContribution(ctx, key, batchID); err != nil {
			return Transient("aggregate", err)
		}
	}

	a.logger.ForBatch(batchID).Info().
		Int("hourly_buckets", len(hours)).
		Int("category_buckets", len(categories)).
		Msg("Aggregates updated")

	return nil
}
