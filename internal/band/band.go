// Package band implements the pricing/inventory policy tiers of the keeper:
// each band describes a margin range around the target price and the amount
// of open inventory the keeper should maintain inside that range.
package band

import (
	"fmt"
	"math/bits"

	"mm-keeper/internal/micros"
)

// Side selects the price-comparison polarity of a band.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is the read-only view of an open order the band logic needs.
// RemainingMicros is denominated in the order's sell unit (quote for buys,
// base for sells).
type Order struct {
	ID              string
	PriceMicros     uint64
	RemainingMicros uint64
}

// Band is one margin/inventory tier. Margins are signed fractional offsets
// from the target price in micros (0.01 => 10_000); amounts are micros of the
// side's sell asset. A Band is immutable after construction.
type Band struct {
	Side Side

	MinMarginMicros int64
	AvgMarginMicros int64
	MaxMarginMicros int64

	MinAmountMicros uint64
	AvgAmountMicros uint64
	MaxAmountMicros uint64

	// DustCutoffMicros is the smallest order worth placing; top-ups below it
	// are skipped.
	DustCutoffMicros uint64
}

// New validates field ordering and returns the band. Margin ordering must be
// min <= avg <= max with min < max strict; amount ordering min <= avg <= max.
func New(b Band) (Band, error) {
	if b.Side != SideBuy && b.Side != SideSell {
		return Band{}, fmt.Errorf("band: unknown side %q", b.Side)
	}
	if b.MinMarginMicros > b.AvgMarginMicros || b.AvgMarginMicros > b.MaxMarginMicros {
		return Band{}, fmt.Errorf("band: margins out of order (min=%s avg=%s max=%s)",
			micros.FormatSigned(b.MinMarginMicros), micros.FormatSigned(b.AvgMarginMicros), micros.FormatSigned(b.MaxMarginMicros))
	}
	if b.MinMarginMicros >= b.MaxMarginMicros {
		return Band{}, fmt.Errorf("band: degenerate margin range (min=%s max=%s)",
			micros.FormatSigned(b.MinMarginMicros), micros.FormatSigned(b.MaxMarginMicros))
	}
	if b.MinAmountMicros > b.AvgAmountMicros || b.AvgAmountMicros > b.MaxAmountMicros {
		return Band{}, fmt.Errorf("band: amounts out of order (min=%s avg=%s max=%s)",
			micros.Format(b.MinAmountMicros), micros.Format(b.AvgAmountMicros), micros.Format(b.MaxAmountMicros))
	}
	// Margins beyond +/-100% would price an order at or below zero.
	if b.MinMarginMicros <= -int64(micros.Scale) || b.MaxMarginMicros >= int64(micros.Scale) {
		return Band{}, fmt.Errorf("band: margin outside (-1, 1) (min=%s max=%s)",
			micros.FormatSigned(b.MinMarginMicros), micros.FormatSigned(b.MaxMarginMicros))
	}
	return b, nil
}

// priceAtMargin applies a margin to the target price. Buying below target is
// favorable, so buy prices shrink with margin; sell prices grow.
func (b Band) priceAtMargin(targetMicros uint64, marginMicros int64) uint64 {
	var factor int64
	switch b.Side {
	case SideBuy:
		factor = int64(micros.Scale) - marginMicros
	default:
		factor = int64(micros.Scale) + marginMicros
	}
	if factor <= 0 {
		return 0
	}
	return micros.MulDiv(targetMicros, uint64(factor), micros.Scale)
}

// AvgPriceMicros is the price a top-up order for this band is placed at.
func (b Band) AvgPriceMicros(targetMicros uint64) uint64 {
	return b.priceAtMargin(targetMicros, b.AvgMarginMicros)
}

// Includes reports whether the order's price falls inside this band at the
// given target price. For buys the order must be priced above the max-margin
// bound and at or below the min-margin bound; sells are mirrored.
func (b Band) Includes(o Order, targetMicros uint64) bool {
	if b.Side == SideBuy {
		lo := b.priceAtMargin(targetMicros, b.MaxMarginMicros)
		hi := b.priceAtMargin(targetMicros, b.MinMarginMicros)
		return o.PriceMicros > lo && o.PriceMicros <= hi
	}
	lo := b.priceAtMargin(targetMicros, b.MinMarginMicros)
	hi := b.priceAtMargin(targetMicros, b.MaxMarginMicros)
	return o.PriceMicros > lo && o.PriceMicros <= hi
}

// TotalRemainingMicros sums remaining amounts over a set of orders. Exact
// integer addition; amounts this size cannot overflow uint64 in practice.
func TotalRemainingMicros(orders []Order) uint64 {
	var sum uint64
	for i := range orders {
		sum += orders[i].RemainingMicros
	}
	return sum
}

// ExcessiveOrders returns the orders that must be cancelled once the band's
// total open amount exceeds MaxAmount. A band sitting at exactly MaxAmount is
// left alone; once over, the kept total must come back strictly below the
// maximum. It keeps as many orders open as possible (each cancel costs a
// transaction), and among equally-sized keep-sets prefers the one retaining
// the largest total amount.
//
// The search enumerates every subset of the in-band orders, which is
// exponential in their count. That is acceptable because a band holds
// single-digit open orders in practice; callers fanning out wider than that
// need a different algorithm with the same selection semantics.
func (b Band) ExcessiveOrders(orders []Order, targetMicros uint64) []Order {
	inBand := make([]Order, 0, len(orders))
	for _, o := range orders {
		if b.Includes(o, targetMicros) {
			inBand = append(inBand, o)
		}
	}
	if TotalRemainingMicros(inBand) <= b.MaxAmountMicros {
		return nil
	}

	n := len(inBand)
	sums := make([]uint64, 1<<n)
	bestMask := 0
	bestCount := -1
	var bestSum uint64
	for mask := 0; mask < 1<<n; mask++ {
		if mask > 0 {
			low := mask & (-mask)
			sums[mask] = sums[mask^low] + inBand[bits.TrailingZeros(uint(mask))].RemainingMicros
		}
		if sums[mask] >= b.MaxAmountMicros {
			continue
		}
		count := bits.OnesCount(uint(mask))
		if count > bestCount || (count == bestCount && sums[mask] > bestSum) {
			bestMask = mask
			bestCount = count
			bestSum = sums[mask]
		}
	}

	// The complement of the kept subset is the cancel list.
	out := make([]Order, 0, n-bestCount)
	for i, o := range inBand {
		if bestMask&(1<<i) == 0 {
			out = append(out, o)
		}
	}
	return out
}
