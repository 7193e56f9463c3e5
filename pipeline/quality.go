package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Zackkki/ecomm-datapipeline/logging"
	"github.com/Zackkki/ecomm-datapipeline/metrics"
	"github.com/Zackkki/ecomm-datapipeline/warehouse"
)

// Check names, in their fixed evaluation order.
const (
	CheckDuplicateOrders      = "duplicate_orders"
	CheckAmountMismatch       = "amount_mismatch"
	CheckSchemaCompleteness   = "schema_completeness"
	CheckReferentialIntegrity = "referential_integrity"
)

// QualityGate runs the ordered data-quality checks against staged content.
type QualityGate struct {
	store           *warehouse.Store
	amountTolerance float64
	snapshotMaxAge  time.Duration
	logger          *logging.ComponentLogger
}

// NewQualityGate creates a quality gate. snapshotMaxAge of zero disables the
// staleness escalation for referential-integrity findings.
func NewQualityGate(store *warehouse.Store, amountTolerance float64, snapshotMaxAge time.Duration, logger *logging.ComponentLogger) *QualityGate {
	return &QualityGate{
		store:           store,
		amountTolerance: amountTolerance,
		snapshotMaxAge:  snapshotMaxAge,
		logger:          logger,
	}
}

// Evaluate runs the full check sequence for a batch and appends every result
// to the audit log. The classification is deterministic for identical staged
// content. The caller halts the batch when HasFailure reports true.
func (g *QualityGate) Evaluate(ctx context.Context, batchID string, snapshot *warehouse.DimensionSnapshot) ([]warehouse.QualityCheckResult, error) {
	now := time.Now().UTC()
	var results []warehouse.QualityCheckResult

	dup, err := g.checkDuplicates(ctx, batchID, now)
	if err != nil {
		return nil, err
	}
	results = append(results, dup)

	amount, err := g.checkAmounts(ctx, batchID, now)
	if err != nil {
		return nil, err
	}
	results = append(results, amount)

	completeness, err := g.checkCompleteness(ctx, batchID, now)
	if err != nil {
		return nil, err
	}
	results = append(results, completeness)

	referential, err := g.checkReferential(ctx, batchID, snapshot, now)
	if err != nil {
		return nil, err
	}
	results = append(results, referential)

	if err := g.store.AppendQualityResults(ctx, results); err != nil {
		return nil, Transient("quality", err)
	}

	log := g.logger.ForBatch(batchID)
	for _, r := range results {
		metrics.QualityResults.WithLabelValues(string(r.Severity)).Inc()
		event := log.Info()
		switch r.Severity {
		case warehouse.SeverityWarn:
			event = log.Warn()
		case warehouse.SeverityFail:
			event = log.Error()
		}
		event.
			Str("check", r.CheckName).
			Int64("affected_rows", r.AffectedRowCount).
			Str("detail", r.Detail).
			Msg("Quality check evaluated")
	}

	return results, nil
}

// HasFailure reports whether any result carries fail severity.
func HasFailure(results []warehouse.QualityCheckResult) bool {
	for _, r := range results {
		if r.Severity == warehouse.SeverityFail {
			return true
		}
	}
	return false
}

// WarnCount counts warn-severity results.
func WarnCount(results []warehouse.QualityCheckResult) int {
	n := 0
	for _, r := range results {
		if r.Severity == warehouse.SeverityWarn {
			n++
		}
	}
	return n
}

func (g *QualityGate) checkDuplicates(ctx context.Context, batchID string, now time.Time) (warehouse.QualityCheckResult, error) {
	intra, err := g.store.IntraBatchDuplicates(ctx, batchID)
	if err != nil {
		return warehouse.QualityCheckResult{}, Transient("quality", err)
	}
	cross, err := g.store.CrossBatchCollisions(ctx, batchID)
	if err != nil {
		return warehouse.QualityCheckResult{}, Transient("quality", err)
	}

	dups := append(intra, cross...)
	result := newResult(CheckDuplicateOrders, batchID, now)
	if len(dups) == 0 {
		result.Detail = "no duplicate order lines"
		return result, nil
	}

	keys := make([]string, 0, len(dups))
	for _, d := range dups {
		keys = append(keys, fmt.Sprintf("%s/%d", d.OrderID, d.LineItemIndex))
	}
	result.Severity = warehouse.SeverityFail
	result.AffectedRowCount = int64(len(dups))
	result.Detail = fmt.Sprintf("duplicate order lines: %s", strings.Join(keys, ", "))
	return result, nil
}

func (g *QualityGate) checkAmounts(ctx context.Context, batchID string, now time.Time) (warehouse.QualityCheckResult, error) {
	mismatches, err := g.store.AmountMismatches(ctx, batchID, g.amountTolerance)
	if err != nil {
		return warehouse.QualityCheckResult{}, Transient("quality", err)
	}

	result := newResult(CheckAmountMismatch, batchID, now)
	if len(mismatches) == 0 {
		result.Detail = fmt.Sprintf("all order totals within tolerance %.2f", g.amountTolerance)
		return result, nil
	}

	details := make([]string, 0, len(mismatches))
	for _, m := range mismatches {
		details = append(details, fmt.Sprintf("%s calculated %.2f vs recorded %.2f",
			m.OrderID, m.SummedTotal, m.DeclaredTotal))
	}
	result.Severity = warehouse.SeverityWarn
	result.AffectedRowCount = int64(len(mismatches))
	result.Detail = strings.Join(details, "; ")
	return result, nil
}

func (g *QualityGate) checkCompleteness(ctx context.Context, batchID string, now time.Time) (warehouse.QualityCheckResult, error) {
	count, err := g.store.IncompleteRowCount(ctx, batchID)
	if err != nil {
		return warehouse.QualityCheckResult{}, Transient("quality", err)
	}

	result := newResult(CheckSchemaCompleteness, batchID, now)
	if count == 0 {
		result.Detail = "all required fields present"
		return result, nil
	}
	result.Severity = warehouse.SeverityFail
	result.AffectedRowCount = count
	result.Detail = fmt.Sprintf("%d staged rows missing required fields", count)
	return result, nil
}

func (g *QualityGate) checkReferential(ctx context.Context, batchID string, snapshot *warehouse.DimensionSnapshot, now time.Time) (warehouse.QualityCheckResult, error) {
	missingCustomers, missingProducts, err := g.store.MissingDimensionRefs(ctx, batchID)
	if err != nil {
		return warehouse.QualityCheckResult{}, Transient("quality", err)
	}

	result := newResult(CheckReferentialIntegrity, batchID, now)
	missing := missingCustomers + missingProducts
	if missing == 0 {
		result.Detail = "all dimension references resolved"
		return result, nil
	}

	result.Severity = warehouse.SeverityWarn
	result.AffectedRowCount = missing
	result.Detail = fmt.Sprintf("%d rows with unknown customer, %d rows with unknown product",
		missingCustomers, missingProducts)

	// Unresolved references stay soft while the snapshot is fresh; once it
	// ages past the bound the misses cannot be told apart from data loss.
	if g.snapshotMaxAge > 0 && snapshot.Age(now) > g.snapshotMaxAge {
		result.Severity = warehouse.SeverityFail
		result.Detail += fmt.Sprintf("; dimension snapshot is %s old (max %s)",
			snapshot.Age(now).Round(time.Minute), g.snapshotMaxAge)
	}
	return result, nil
}

func newResult(name, batchID string, now time.Time) warehouse.QualityCheckResult {
	return warehouse.QualityCheckResult{
		CheckID:    uuid.NewString(),
		CheckName:  name,
		BatchID:    batchID,
		Severity:   warehouse.SeverityInfo,
		RecordedAt: now,
	}
}
