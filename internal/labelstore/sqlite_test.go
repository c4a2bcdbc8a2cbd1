package labelstore

import (
	"path/filepath"
	"testing"
)

func TestSetLoadClearRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Set("0xAAAA000000000000000000000000000000000A", "exchange hot wallet"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	labels, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if got := labels["0xaaaa000000000000000000000000000000000a"]; got != "exchange hot wallet" {
		t.Fatalf("label = %q, want %q", got, "exchange hot wallet")
	}

	if err := store.Set("0xAAAA000000000000000000000000000000000A", "updated label"); err != nil {
		t.Fatalf("Set (update): %v", err)
	}
	labels, _ = store.LoadAll()
	if got := labels["0xaaaa000000000000000000000000000000000a"]; got != "updated label" {
		t.Fatalf("label after update = %q, want %q", got, "updated label")
	}

	if err := store.Clear("0xAAAA000000000000000000000000000000000A"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	labels, _ = store.LoadAll()
	if _, ok := labels["0xaaaa000000000000000000000000000000000a"]; ok {
		t.Fatalf("expected label to be cleared")
	}
}

func TestLoadAllOnFreshStoreIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	labels, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(labels) != 0 {
		t.Fatalf("expected an empty label set, got %v", labels)
	}
}
