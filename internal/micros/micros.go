// Package micros holds the fixed-point arithmetic used everywhere money or
// prices appear: amounts and prices are integer "micro" units (1e6 scale),
// margins are signed micros. No float64 touches an invariant-bearing value.
package micros

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is one whole unit (1.0) in micros.
const Scale = uint64(1_000_000)

// MulDiv returns a*b/div with full 128-bit intermediate precision.
func MulDiv(a, b, div uint64) uint64 {
	if div == 0 {
		panic("micros: MulDiv div=0")
	}

	hi, lo := bits.Mul64(a, b)
	if hi == 0 {
		return lo / div
	}

	// Overflow path: exact 128-bit division via big.Int.
	var x big.Int
	x.SetUint64(hi)
	x.Lsh(&x, 64)

	var y big.Int
	y.SetUint64(lo)
	x.Add(&x, &y)

	var d big.Int
	d.SetUint64(div)
	x.Div(&x, &d)

	if x.IsUint64() {
		return x.Uint64()
	}
	return math.MaxUint64
}

// RoundDown truncates m to a multiple of step. A zero step means no rounding.
func RoundDown(m, step uint64) uint64 {
	if step == 0 {
		return m
	}
	return m - m%step
}

// FromDecimal converts a non-negative decimal into micros, truncating beyond
// six fractional digits.
func FromDecimal(d decimal.Decimal) (uint64, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("negative not supported: %s", d.String())
	}
	scaled := d.Shift(6).Truncate(0)
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("decimal overflow: %s", d.String())
	}
	return bi.Uint64(), nil
}

// SignedFromDecimal converts a decimal into signed micros, truncating beyond
// six fractional digits. Used for margins, which may be negative.
func SignedFromDecimal(d decimal.Decimal) (int64, error) {
	scaled := d.Shift(6).Truncate(0)
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("decimal overflow: %s", d.String())
	}
	return bi.Int64(), nil
}

// Parse converts a base-10 decimal string into micros.
func Parse(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty decimal")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return FromDecimal(d)
}

// ParseSigned converts a base-10 decimal string into signed micros.
func ParseSigned(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty decimal")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return SignedFromDecimal(d)
}

// Format renders micros as a minimal decimal string ("1.5", not "1.500000").
func Format(m uint64) string {
	whole := m / Scale
	frac := m % Scale
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	fs := fmt.Sprintf("%06d", frac)
	fs = strings.TrimRight(fs, "0")
	return fmt.Sprintf("%d.%s", whole, fs)
}

// FormatSigned renders signed micros as a minimal decimal string.
func FormatSigned(m int64) string {
	if m < 0 {
		return "-" + Format(uint64(-m))
	}
	return Format(uint64(m))
}
