package landing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newStore(t *testing.T) (*DirStore, string) {
	t.Helper()
	root := t.TempDir()
	store, err := NewDirStore(root)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestNewDirStoreRejectsMissingRoot(t *testing.T) {
	if _, err := NewDirStore("/does/not/exist"); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestListReturnsObjectsWithChecksums(t *testing.T) {
	store, root := newStore(t)
	writeFile(t, root, "landing/orders/orders_1.json", `{"order_id":"ORD-001"}`)
	writeFile(t, root, "landing/orders/orders_2.json", `{"order_id":"ORD-002"}`)
	writeFile(t, root, "landing/customers/customers_1.csv", "customer_id\nCUST-001")

	objects, err := store.List(context.Background(), "landing/orders")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objects))
	}

	for _, obj := range objects {
		if obj.Size == 0 {
			t.Errorf("object %s has zero size", obj.Path)
		}
		if len(obj.Checksum) != 64 {
			t.Errorf("object %s has malformed checksum %q", obj.Path, obj.Checksum)
		}
		if obj.ModTime.IsZero() {
			t.Errorf("object %s has zero mod time", obj.Path)
		}
	}
}

func TestListChecksumTracksContent(t *testing.T) {
	store, root := newStore(t)
	ctx := context.Background()
	writeFile(t, root, "landing/orders/orders_1.json", "v1")

	before, err := store.List(ctx, "landing/orders")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	writeFile(t, root, "landing/orders/orders_1.json", "v2")
	after, err := store.List(ctx, "landing/orders")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if before[0].Checksum == after[0].Checksum {
		t.Error("checksum did not change with content")
	}
}

func TestListMissingPrefixIsEmpty(t *testing.T) {
	store, _ := newStore(t)
	objects, err := store.List(context.Background(), "landing/never-written")
	if err != nil {
		t.Fatalf("missing prefix must not error: %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("expected no objects, got %d", len(objects))
	}
}

func TestReadReturnsContent(t *testing.T) {
	store, root := newStore(t)
	writeFile(t, root, "landing/orders/orders_1.json", "payload")

	data, err := store.Read(context.Background(), "landing/orders/orders_1.json")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("got %q", data)
	}

	if _, err := store.Read(context.Background(), "landing/orders/gone.json"); err == nil {
		t.Error("expected error for missing object")
	}
}

func TestMoveRelocatesObject(t *testing.T) {
	store, root := newStore(t)
	ctx := context.Background()
	writeFile(t, root, "landing/orders/orders_1.json", "payload")

	err := store.Move(ctx, "landing/orders/orders_1.json", "archive/20260301_101500/orders_1.json")
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "landing", "orders", "orders_1.json")); !os.IsNotExist(err) {
		t.Error("source should be gone after move")
	}
	data, err := store.Read(ctx, "archive/20260301_101500/orders_1.json")
	if err != nil {
		t.Fatalf("archived object unreadable: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("archived content mismatch: %q", data)
	}
}
