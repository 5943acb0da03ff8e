package band

import (
	"testing"
)

// mustBand builds a validated band or fails the test.
func mustBand(t *testing.T, b Band) Band {
	t.Helper()
	out, err := New(b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return out
}

func buyBand(t *testing.T) Band {
	t.Helper()
	return mustBand(t, Band{
		Side:            SideBuy,
		MinMarginMicros: 10_000, // 0.01
		AvgMarginMicros: 30_000, // 0.03
		MaxMarginMicros: 50_000, // 0.05
		MinAmountMicros: 5_000_000,
		AvgAmountMicros: 8_000_000,
		MaxAmountMicros: 10_000_000,
	})
}

func TestNew_RejectsBadOrdering(t *testing.T) {
	base := Band{
		Side:            SideBuy,
		MinMarginMicros: 10_000,
		AvgMarginMicros: 30_000,
		MaxMarginMicros: 50_000,
		MinAmountMicros: 1,
		AvgAmountMicros: 2,
		MaxAmountMicros: 3,
	}

	tests := []struct {
		name   string
		mutate func(*Band)
	}{
		{"avg margin below min", func(b *Band) { b.AvgMarginMicros = 5_000 }},
		{"avg margin above max", func(b *Band) { b.AvgMarginMicros = 60_000 }},
		{"degenerate margins", func(b *Band) { b.MinMarginMicros = 50_000; b.AvgMarginMicros = 50_000 }},
		{"avg amount below min", func(b *Band) { b.AvgAmountMicros = 0 }},
		{"avg amount above max", func(b *Band) { b.AvgAmountMicros = 4 }},
		{"unknown side", func(b *Band) { b.Side = "HODL" }},
		{"margin at -100%", func(b *Band) { b.MinMarginMicros = -1_000_000 }},
	}
	for _, tt := range tests {
		b := base
		tt.mutate(&b)
		if _, err := New(b); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}

	if _, err := New(base); err != nil {
		t.Fatalf("valid band rejected: %v", err)
	}
}

func TestIncludes_BuyPolarity(t *testing.T) {
	b := buyBand(t)
	target := uint64(100_000_000) // price 100

	tests := []struct {
		price uint64
		want  bool
	}{
		{97_000_000, true},  // margin 0.03, inside
		{96_000_000, true},  // margin 0.04, inside
		{94_000_000, false}, // margin 0.06, outside max
		{99_500_000, false}, // margin 0.005, tighter than min
		{99_000_000, true},  // exactly at min-margin bound (inclusive)
		{95_000_000, false}, // exactly at max-margin bound (exclusive)
	}
	for _, tt := range tests {
		o := Order{ID: "o", PriceMicros: tt.price, RemainingMicros: 1}
		if got := b.Includes(o, target); got != tt.want {
			t.Fatalf("Includes(price=%d)=%v want %v", tt.price, got, tt.want)
		}
	}
}

func TestIncludes_SellPolarity(t *testing.T) {
	b := mustBand(t, Band{
		Side:            SideSell,
		MinMarginMicros: 10_000,
		AvgMarginMicros: 30_000,
		MaxMarginMicros: 50_000,
		MinAmountMicros: 1,
		AvgAmountMicros: 1,
		MaxAmountMicros: 1,
	})
	target := uint64(100_000_000)

	tests := []struct {
		price uint64
		want  bool
	}{
		{103_000_000, true},  // margin 0.03
		{106_000_000, false}, // outside max
		{100_500_000, false}, // tighter than min
		{105_000_000, true},  // at max bound (inclusive)
		{101_000_000, false}, // at min bound (exclusive)
	}
	for _, tt := range tests {
		o := Order{ID: "o", PriceMicros: tt.price, RemainingMicros: 1}
		if got := b.Includes(o, target); got != tt.want {
			t.Fatalf("Includes(price=%d)=%v want %v", tt.price, got, tt.want)
		}
	}
}

func TestAvgPriceMicros(t *testing.T) {
	target := uint64(100_000_000)
	buy := buyBand(t)
	if got := buy.AvgPriceMicros(target); got != 97_000_000 {
		t.Fatalf("buy avg price=%d want %d", got, 97_000_000)
	}

	sell := mustBand(t, Band{
		Side:            SideSell,
		MinMarginMicros: 10_000,
		AvgMarginMicros: 30_000,
		MaxMarginMicros: 50_000,
	})
	if got := sell.AvgPriceMicros(target); got != 103_000_000 {
		t.Fatalf("sell avg price=%d want %d", got, 103_000_000)
	}
}

func TestAvgPriceMicros_NegativeMargin(t *testing.T) {
	// Negative margins price buys above target (crossing bands).
	b := mustBand(t, Band{
		Side:            SideBuy,
		MinMarginMicros: -20_000,
		AvgMarginMicros: -10_000,
		MaxMarginMicros: 10_000,
	})
	if got := b.AvgPriceMicros(100_000_000); got != 101_000_000 {
		t.Fatalf("avg price=%d want %d", got, 101_000_000)
	}
}

func TestExcessiveOrders_UnderMaxIsEmpty(t *testing.T) {
	b := buyBand(t)
	orders := []Order{
		{ID: "a", PriceMicros: 97_000_000, RemainingMicros: 4_000_000},
		{ID: "b", PriceMicros: 96_000_000, RemainingMicros: 5_000_000},
	}
	if got := b.ExcessiveOrders(orders, 100_000_000); len(got) != 0 {
		t.Fatalf("expected no cancels, got %d", len(got))
	}
}

func TestExcessiveOrders_MinimalCancelSet(t *testing.T) {
	// maxAmount=10; orders 6,5,4 total 15. The only single cancel that brings
	// the kept total under the max is the 6 (leaves 9); cancelling the 5 would
	// leave exactly 10, which is not under.
	b := buyBand(t)
	orders := []Order{
		{ID: "six", PriceMicros: 97_000_000, RemainingMicros: 6_000_000},
		{ID: "five", PriceMicros: 96_500_000, RemainingMicros: 5_000_000},
		{ID: "four", PriceMicros: 96_000_000, RemainingMicros: 4_000_000},
	}
	got := b.ExcessiveOrders(orders, 100_000_000)
	if len(got) != 1 {
		t.Fatalf("cancel set size=%d want 1 (%+v)", len(got), got)
	}
	if got[0].ID != "six" {
		t.Fatalf("cancelled %q want %q", got[0].ID, "six")
	}
}

func TestExcessiveOrders_TieBreakKeepsLargestAmount(t *testing.T) {
	// maxAmount=10; orders 5,4,3 total 12. Every two-order keep-set is under
	// the max; {5,4}=9 retains the most, so only the 3 is cancelled.
	b := buyBand(t)
	orders := []Order{
		{ID: "five", PriceMicros: 97_000_000, RemainingMicros: 5_000_000},
		{ID: "four", PriceMicros: 96_500_000, RemainingMicros: 4_000_000},
		{ID: "three", PriceMicros: 96_000_000, RemainingMicros: 3_000_000},
	}
	got := b.ExcessiveOrders(orders, 100_000_000)
	if len(got) != 1 || got[0].ID != "three" {
		t.Fatalf("cancel set=%+v want exactly [three]", got)
	}
}

func TestExcessiveOrders_AtExactlyMaxIsEmpty(t *testing.T) {
	b := buyBand(t)
	orders := []Order{
		{ID: "six", PriceMicros: 97_000_000, RemainingMicros: 6_000_000},
		{ID: "four", PriceMicros: 96_000_000, RemainingMicros: 4_000_000},
	}
	if got := b.ExcessiveOrders(orders, 100_000_000); len(got) != 0 {
		t.Fatalf("band at exactly max must not cancel, got %+v", got)
	}
}

func TestExcessiveOrders_Idempotent(t *testing.T) {
	b := buyBand(t)
	orders := []Order{
		{ID: "a", PriceMicros: 97_000_000, RemainingMicros: 6_000_000},
		{ID: "b", PriceMicros: 96_500_000, RemainingMicros: 5_000_000},
		{ID: "c", PriceMicros: 96_000_000, RemainingMicros: 4_000_000},
		{ID: "d", PriceMicros: 95_500_000, RemainingMicros: 3_000_000},
	}
	cancels := b.ExcessiveOrders(orders, 100_000_000)

	cancelled := make(map[string]bool, len(cancels))
	for _, o := range cancels {
		cancelled[o.ID] = true
	}
	var kept []Order
	for _, o := range orders {
		if !cancelled[o.ID] {
			kept = append(kept, o)
		}
	}
	if TotalRemainingMicros(kept) > b.MaxAmountMicros {
		t.Fatalf("kept set exceeds max: %d > %d", TotalRemainingMicros(kept), b.MaxAmountMicros)
	}
	if again := b.ExcessiveOrders(kept, 100_000_000); len(again) != 0 {
		t.Fatalf("re-run on kept set not empty: %+v", again)
	}
}

func TestExcessiveOrders_IgnoresOrdersOutsideBand(t *testing.T) {
	b := buyBand(t)
	orders := []Order{
		{ID: "in", PriceMicros: 97_000_000, RemainingMicros: 20_000_000},
		{ID: "out", PriceMicros: 90_000_000, RemainingMicros: 20_000_000},
	}
	got := b.ExcessiveOrders(orders, 100_000_000)
	if len(got) != 1 || got[0].ID != "in" {
		t.Fatalf("cancel set=%+v want exactly [in]", got)
	}
}

func TestTotalRemainingMicros(t *testing.T) {
	orders := []Order{
		{RemainingMicros: 1},
		{RemainingMicros: 2},
		{RemainingMicros: 3},
	}
	if got := TotalRemainingMicros(orders); got != 6 {
		t.Fatalf("total=%d want 6", got)
	}
	if got := TotalRemainingMicros(nil); got != 0 {
		t.Fatalf("total=%d want 0", got)
	}
}
