package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Zackkki/ecomm-datapipeline/landing"
	"github.com/Zackkki/ecomm-datapipeline/logging"
	"github.com/Zackkki/ecomm-datapipeline/warehouse"
)

func newTestStore(t *testing.T) *warehouse.Store {
	t.Helper()
	store, err := warehouse.Open("")
	if err != nil {
		t.Fatalf("failed to open in-memory warehouse: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return store
}

func newTestLanding(t *testing.T) (*landing.DirStore, string) {
	t.Helper()
	root := t.TempDir()
	store, err := landing.NewDirStore(root)
	if err != nil {
		t.Fatalf("failed to create landing store: %v", err)
	}
	return store, root
}

func testLogger() *logging.ComponentLogger {
	return logging.NewComponentLogger("pipeline-test", "test")
}

// writeLandingFile writes content under the landing root, creating parents.
func writeLandingFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}

// orderLine renders one valid NDJSON order document with a single item.
func orderLine(orderID, customerID, productID string, qty int, unitPrice, total float64, ts string) string {
	return fmt.Sprintf(`{"order_id":%q,"customer_id":%q,"order_timestamp":%q,`+
		`"items":[{"product_id":%q,"quantity":%d,"unit_price":%g}],`+
		`"total_amount":%g,"payment_status":"paid",`+
		`"shipping_address":{"street":"1 Main St","city":"Portland","state":"OR","zipcode":"97201","country":"US"}}`,
		orderID, customerID, ts, productID, qty, unitPrice, total)
}

// detectOne lists the orders prefix and returns the single expected batch.
func detectOne(t *testing.T, store landing.ObjectStore, prefix string) *Batch {
	t.Helper()
	detector := NewDetector(store, prefix, testLogger())
	batches, err := detector.Detect(context.Background(), nil)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	return batches[0]
}

// stageBatch loads one batch's file into staging and returns it.
func stageBatch(t *testing.T, wh *warehouse.Store, ls landing.ObjectStore, prefix string) *Batch {
	t.Helper()
	batch := detectOne(t, ls, prefix)
	loader := NewLoader(wh, ls, testLogger())
	if _, err := loader.Load(context.Background(), batch); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return batch
}

// touchLandingFile backdates a landing object's mod time.
func touchLandingFile(root, rel string, when time.Time) error {
	return os.Chtimes(filepath.Join(root, filepath.FromSlash(rel)), when, when)
}

func seedDimensions(t *testing.T, wh *warehouse.Store, snapshotAt time.Time) {
	t.Helper()
	ctx := context.Background()
	customers := []warehouse.Customer{
		{CustomerID: "CUST-001", Name: "Ada Lovelace", Email: "ada@example.com", Tier: "gold"},
		{CustomerID: "CUST-002", Name: "Grace Hopper", Email: "grace@example.com", Tier: "silver"},
	}
	products := []warehouse.Product{
		{ProductID: "PROD-001", Name: "Mechanical Keyboard", Category: "electronics", Price: 89.99},
		{ProductID: "PROD-002", Name: "Desk Lamp", Category: "home", Price: 34.50},
	}
	if err := wh.UpsertCustomers(ctx, customers, snapshotAt); err != nil {
		t.Fatalf("failed to seed customers: %v", err)
	}
	if err := wh.UpsertProducts(ctx, products, snapshotAt); err != nil {
		t.Fatalf("failed to seed products: %v", err)
	}
}

func loadSnapshot(t *testing.T, wh *warehouse.Store) *warehouse.DimensionSnapshot {
	t.Helper()
	snapshot, err := wh.LoadDimensionSnapshot(context.Background())
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}
	return snapshot
}
