package warehouse

import (
	"context"
	"testing"
	"time"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return store
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	store := newStore(t)
	// A second init must not fail on existing tables
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("re-init failed: %v", err)
	}
}

func TestBatchCheckpointRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	rec := &BatchRecord{
		BatchID:          "abc123def4567890",
		SourcePath:       "landing/orders/orders_1.json",
		Checksum:         "deadbeef",
		RecordCount:      42,
		ArrivalTimestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:           StatusLoading,
		Attempts:         1,
	}
	if err := store.UpsertBatch(ctx, rec); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// Advancing the state overwrites, not duplicates
	rec.Status = StatusLoaded
	if err := store.UpsertBatch(ctx, rec); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	statuses, err := store.BatchStatuses(ctx)
	if err != nil {
		t.Fatalf("failed to read statuses: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(statuses))
	}
	if statuses[rec.BatchID] != StatusLoaded {
		t.Errorf("expected loaded, got %s", statuses[rec.BatchID])
	}

	got, err := store.GetBatch(ctx, rec.BatchID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("batch not found")
	}
	if got.RecordCount != 42 || got.SourcePath != rec.SourcePath {
		t.Errorf("round trip mismatch: %+v", got)
	}

	missing, err := store.GetBatch(ctx, "ffffffffffffffff")
	if err != nil {
		t.Fatalf("get missing failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown batch, got %+v", missing)
	}
}

func TestBatchStatusTerminal(t *testing.T) {
	terminal := []BatchStatus{StatusArchived, StatusQualityFailed, StatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []BatchStatus{StatusDetected, StatusLoading, StatusLoaded, StatusTransformed, StatusAggregated}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
