package band

import (
	"errors"
	"fmt"

	"mm-keeper/internal/micros"
)

// ErrOverlap marks a band set whose margin ranges intersect. An overlapping
// policy is ambiguous and the keeper must not trade under it.
var ErrOverlap = errors.New("band margin ranges overlap")

// Set is a validated collection of bands of one side.
type Set struct {
	side  Side
	bands []Band
}

// NewSet validates that every band matches side and that no two margin ranges
// overlap, then returns the set. Overlap is a fatal configuration error.
func NewSet(side Side, bands []Band) (*Set, error) {
	for i, b := range bands {
		if b.Side != side {
			return nil, fmt.Errorf("band %d: side %q in %q set", i, b.Side, side)
		}
	}
	s := &Set{side: side, bands: append([]Band(nil), bands...)}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate re-checks the pairwise no-overlap invariant.
func (s *Set) Validate() error {
	for i := 0; i < len(s.bands); i++ {
		for j := i + 1; j < len(s.bands); j++ {
			a, b := s.bands[i], s.bands[j]
			if a.MinMarginMicros < b.MaxMarginMicros && b.MinMarginMicros < a.MaxMarginMicros {
				return fmt.Errorf("%w: bands %d (%s..%s) and %d (%s..%s)",
					ErrOverlap,
					i, micros.FormatSigned(a.MinMarginMicros), micros.FormatSigned(a.MaxMarginMicros),
					j, micros.FormatSigned(b.MinMarginMicros), micros.FormatSigned(b.MaxMarginMicros))
			}
		}
	}
	return nil
}

func (s *Set) Side() Side { return s.side }

// Bands returns the bands in configuration order. Callers must not mutate.
func (s *Set) Bands() []Band { return s.bands }

// CancellableOrders is the union of the two independent cancel reasons:
// excessive orders per band, and orphans that no band includes at the current
// target price. The result is deduplicated by order ID.
func (s *Set) CancellableOrders(orders []Order, targetMicros uint64) []Order {
	seen := make(map[string]struct{}, len(orders))
	var out []Order

	add := func(o Order) {
		if _, ok := seen[o.ID]; ok {
			return
		}
		seen[o.ID] = struct{}{}
		out = append(out, o)
	}

	for _, b := range s.bands {
		for _, o := range b.ExcessiveOrders(orders, targetMicros) {
			add(o)
		}
	}

	for _, o := range orders {
		included := false
		for _, b := range s.bands {
			if b.Includes(o, targetMicros) {
				included = true
				break
			}
		}
		if !included {
			add(o)
		}
	}
	return out
}
