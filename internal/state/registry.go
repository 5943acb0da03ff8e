// Package state persists the keeper's placed-order registry across restarts,
// so a restarted process can tell its own orders apart from the rest of the
// book before it has placed anything new.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Registry records the order IDs this keeper placed, keyed to the placement
// time in unix milliseconds.
type Registry struct {
	Orders map[string]int64 `json:"orders"`
}

func NewRegistry() Registry {
	return Registry{Orders: make(map[string]int64)}
}

func (r *Registry) Add(orderID string, placedAtMs int64) {
	if orderID == "" {
		return
	}
	if r.Orders == nil {
		r.Orders = make(map[string]int64)
	}
	r.Orders[orderID] = placedAtMs
}

func (r *Registry) Remove(orderID string) {
	delete(r.Orders, orderID)
}

func (r *Registry) Has(orderID string) bool {
	_, ok := r.Orders[orderID]
	return ok
}

func (r *Registry) Len() int { return len(r.Orders) }

// LoadRegistry reads a registry file. A missing file is not an error; it
// returns an empty registry with found=false.
func LoadRegistry(path string) (Registry, bool, error) {
	if path == "" {
		return NewRegistry(), false, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewRegistry(), false, nil
		}
		return NewRegistry(), false, err
	}

	var r Registry
	if err := json.Unmarshal(b, &r); err != nil {
		return NewRegistry(), false, fmt.Errorf("parse registry %s: %w", path, err)
	}
	if r.Orders == nil {
		r.Orders = make(map[string]int64)
	}
	return r, true, nil
}

// SaveRegistry writes the registry atomically (write temp file, rename).
func SaveRegistry(path string, r Registry) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
