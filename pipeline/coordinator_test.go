package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Zackkki/ecomm-datapipeline/landing"
	"github.com/Zackkki/ecomm-datapipeline/warehouse"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *warehouse.Store, *landing.DirStore, string) {
	t.Helper()
	wh := newTestStore(t)
	ls, root := newTestLanding(t)
	opts := Options{
		Retry:        &RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond, BackoffFactor: 1.0},
		StageTimeout: 30 * time.Second,
	}
	return NewCoordinator(wh, ls, opts, testLogger()), wh, ls, root
}

func TestRunOnceProcessesBatchEndToEnd(t *testing.T) {
	coord, wh, _, root := newTestCoordinator(t)
	seedDimensions(t, wh, time.Now().UTC())
	ctx := context.Background()

	writeLandingFile(t, root, "landing/orders/orders_1.json", strings.Join([]string{
		orderLine("ORD-001", "CUST-001", "PROD-001", 2, 10.00, 20.00, "2026-03-01T10:15:00"),
		orderLine("ORD-002", "CUST-002", "PROD-002", 1, 34.50, 34.50, "2026-03-01T10:45:00"),
	}, "\n"))

	report, err := coord.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.BatchesProcessed != 1 {
		t.Errorf("expected 1 batch processed, got %d", report.BatchesProcessed)
	}
	if report.Failures != 0 {
		t.Errorf("expected no failures, got %d", report.Failures)
	}
	if report.RunID == "" {
		t.Error("run id missing")
	}

	// The batch reached its archived terminal state
	statuses, err := wh.BatchStatuses(ctx)
	if err != nil {
		t.Fatalf("failed to read statuses: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected 1 tracked batch, got %d", len(statuses))
	}
	for id, status := range statuses {
		if status != warehouse.StatusArchived {
			t.Errorf("batch %s finished as %s, want archived", id, status)
		}
		rows, err := wh.FactRows(ctx, id)
		if err != nil {
			t.Fatalf("failed to read fact rows: %v", err)
		}
		if len(rows) != 2 {
			t.Errorf("expected 2 fact rows, got %d", len(rows))
		}
	}

	// The raw file moved out of the landing prefix into the archive
	if _, err := os.Stat(filepath.Join(root, "landing", "orders", "orders_1.json")); !os.IsNotExist(err) {
		t.Error("raw file should have left the landing area")
	}
	archived, err := filepath.Glob(filepath.Join(root, "archive", "*", "orders_1.json"))
	if err != nil || len(archived) != 1 {
		t.Errorf("expected archived copy, got %v (err %v)", archived, err)
	}

	bucket, err := wh.GetHourlyBucket(ctx, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("failed to read hourly bucket: %v", err)
	}
	if bucket == nil || math.Abs(bucket.RevenueSum-54.50) > 1e-9 {
		t.Errorf("expected hourly revenue 54.50, got %+v", bucket)
	}
}

func TestRunOnceIsIdempotent(t *testing.T) {
	coord, wh, _, root := newTestCoordinator(t)
	seedDimensions(t, wh, time.Now().UTC())
	ctx := context.Background()

	writeLandingFile(t, root, "landing/orders/orders_1.json",
		orderLine("ORD-001", "CUST-001", "PROD-001", 2, 10.00, 20.00, "2026-03-01T10:15:00"))

	if _, err := coord.RunOnce(ctx); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := coord.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.BatchesProcessed != 0 {
		t.Errorf("archived batch must not be reprocessed, got %d", second.BatchesProcessed)
	}

	bucket, err := wh.GetHourlyBucket(ctx, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("failed to read hourly bucket: %v", err)
	}
	if bucket.OrderCount != 1 {
		t.Errorf("second run inflated order count to %d", bucket.OrderCount)
	}
}

func TestRunOnceIsolatesFailingBatch(t *testing.T) {
	coord, wh, _, root := newTestCoordinator(t)
	seedDimensions(t, wh, time.Now().UTC())
	ctx := context.Background()

	// orders_1 carries a duplicate order line and fails the quality gate;
	// orders_2 is clean and must still complete.
	dup := orderLine("ORD-001", "CUST-001", "PROD-001", 2, 10.00, 20.00, "2026-03-01T10:15:00")
	writeLandingFile(t, root, "landing/orders/orders_1.json", dup+"\n"+dup)
	writeLandingFile(t, root, "landing/orders/orders_2.json",
		orderLine("ORD-002", "CUST-002", "PROD-002", 1, 34.50, 34.50, "2026-03-01T10:45:00"))

	report, err := coord.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.BatchesProcessed != 2 {
		t.Errorf("expected 2 batches processed, got %d", report.BatchesProcessed)
	}
	if report.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", report.Failures)
	}

	statuses, err := wh.BatchStatuses(ctx)
	if err != nil {
		t.Fatalf("failed to read statuses: %v", err)
	}
	var sawQualityFailed, sawArchived bool
	for _, status := range statuses {
		switch status {
		case warehouse.StatusQualityFailed:
			sawQualityFailed = true
		case warehouse.StatusArchived:
			sawArchived = true
		}
	}
	if !sawQualityFailed {
		t.Error("duplicate batch should end quality_failed")
	}
	if !sawArchived {
		t.Error("clean batch should still be archived")
	}

	// The failed batch's raw file stays in the landing area for inspection
	if _, err := os.Stat(filepath.Join(root, "landing", "orders", "orders_1.json")); err != nil {
		t.Errorf("quality-failed raw file must stay in landing: %v", err)
	}
}

func TestRunOnceResumesMidFlightBatch(t *testing.T) {
	coord, wh, ls, root := newTestCoordinator(t)
	seedDimensions(t, wh, time.Now().UTC())
	ctx := context.Background()

	writeLandingFile(t, root, "landing/orders/orders_1.json",
		orderLine("ORD-001", "CUST-001", "PROD-001", 2, 10.00, 20.00, "2026-03-01T10:15:00"))

	// Simulate a previous run that crashed after transform: stage, transform
	// and checkpoint the batch at transformed by hand.
	batch := stageBatch(t, wh, ls, "landing/orders")
	transformer := NewTransformer(wh, testLogger())
	if _, err := transformer.Transform(ctx, batch.ID, loadSnapshot(t, wh)); err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	batch.Status = warehouse.StatusTransformed
	if err := wh.UpsertBatch(ctx, batch.Record(1, "")); err != nil {
		t.Fatalf("failed to checkpoint: %v", err)
	}

	report, err := coord.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.BatchesProcessed != 1 {
		t.Errorf("expected the mid-flight batch picked up, got %d", report.BatchesProcessed)
	}

	rec, err := wh.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("failed to read batch record: %v", err)
	}
	if rec.Status != warehouse.StatusArchived {
		t.Errorf("resumed batch finished as %s, want archived", rec.Status)
	}

	// Aggregates were produced even though transform was skipped on resume
	bucket, err := wh.GetHourlyBucket(ctx, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("failed to read hourly bucket: %v", err)
	}
	if bucket == nil || bucket.OrderCount != 1 {
		t.Errorf("expected aggregates from resumed batch, got %+v", bucket)
	}
}

func TestRunOnceMarksUnparseableBatchFailed(t *testing.T) {
	coord, wh, _, root := newTestCoordinator(t)
	seedDimensions(t, wh, time.Now().UTC())
	ctx := context.Background()

	writeLandingFile(t, root, "landing/orders/orders_1.json", "{broken\n{also broken")

	report, err := coord.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", report.Failures)
	}

	statuses, err := wh.BatchStatuses(ctx)
	if err != nil {
		t.Fatalf("failed to read statuses: %v", err)
	}
	for id, status := range statuses {
		if status != warehouse.StatusFailed {
			t.Errorf("batch %s finished as %s, want failed", id, status)
		}
		rec, err := wh.GetBatch(ctx, id)
		if err != nil {
			t.Fatalf("failed to read batch record: %v", err)
		}
		if rec.LastError == "" {
			t.Error("failed batch should record its last error")
		}
	}
}

func TestArchiveRefusesUnaggregatedBatch(t *testing.T) {
	ls, root := newTestLanding(t)
	writeLandingFile(t, root, "landing/orders/orders_1.json", "{}")

	archiver := NewArchiver(ls, "archive", testLogger())
	batch := &Batch{
		ID:         "deadbeef00000000",
		SourcePath: "landing/orders/orders_1.json",
		Status:     warehouse.StatusLoaded,
	}

	err := archiver.Archive(context.Background(), batch, "20260301_101500")
	if err == nil {
		t.Fatal("expected archival refusal")
	}
	if _, statErr := os.Stat(filepath.Join(root, "landing", "orders", "orders_1.json")); statErr != nil {
		t.Errorf("refused batch must stay in landing: %v", statErr)
	}
}

func TestRefreshDimensionsLoadsAndArchivesSnapshots(t *testing.T) {
	coord, wh, _, root := newTestCoordinator(t)
	ctx := context.Background()

	writeLandingFile(t, root, "landing/customers/customers_1.csv", strings.Join([]string{
		"customer_id,name,email,registration_date,customer_tier",
		"CUST-001,Ada Lovelace,ada@example.com,2024-06-01,gold",
		"CUST-002,Grace Hopper,grace@example.com,2024-07-15,",
	}, "\n"))
	writeLandingFile(t, root, "landing/products/products_1.csv", strings.Join([]string{
		"product_id,product_name,category,price,stock_level",
		"PROD-001,Mechanical Keyboard,electronics,89.99,42",
	}, "\n"))

	if err := coord.RefreshDimensions(ctx); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	snapshot := loadSnapshot(t, wh)
	if len(snapshot.Customers) != 2 {
		t.Errorf("expected 2 customers, got %d", len(snapshot.Customers))
	}
	if got := snapshot.Customers["CUST-002"].Tier; got != DefaultCustomerTier {
		t.Errorf("blank tier should default to %q, got %q", DefaultCustomerTier, got)
	}
	if got := snapshot.Products["PROD-001"].Category; got != "electronics" {
		t.Errorf("expected category electronics, got %q", got)
	}
	if snapshot.SnapshotAt.IsZero() {
		t.Error("snapshot timestamp missing")
	}

	// Consumed snapshots leave the landing area
	if _, err := os.Stat(filepath.Join(root, "landing", "customers", "customers_1.csv")); !os.IsNotExist(err) {
		t.Error("consumed customer snapshot should be archived")
	}
	if _, err := os.Stat(filepath.Join(root, "landing", "products", "products_1.csv")); !os.IsNotExist(err) {
		t.Error("consumed product snapshot should be archived")
	}
}
