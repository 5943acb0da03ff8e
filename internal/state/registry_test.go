package state

import (
	"path/filepath"
	"testing"
)

func TestRegistry_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keeper", "orders.json")

	r := NewRegistry()
	r.Add("ord-1", 1000)
	r.Add("ord-2", 2000)
	r.Remove("ord-1")

	if err := SaveRegistry(path, r); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, found, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatalf("expected found=true")
	}
	if loaded.Len() != 1 || !loaded.Has("ord-2") || loaded.Has("ord-1") {
		t.Fatalf("loaded=%+v want only ord-2", loaded.Orders)
	}
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	r, found, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Fatalf("expected found=false")
	}
	if r.Orders == nil || r.Len() != 0 {
		t.Fatalf("expected empty usable registry, got %+v", r.Orders)
	}
}

func TestLoadRegistry_EmptyPathIsNoop(t *testing.T) {
	r, found, err := LoadRegistry("")
	if err != nil || found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	r.Add("x", 1) // must not panic on the zero-value path
	if err := SaveRegistry("", r); err != nil {
		t.Fatalf("save noop: %v", err)
	}
}
