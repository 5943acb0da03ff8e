package band

import (
	"errors"
	"testing"
)

const validBands = `{
  "buyBands": [
    {
      "minMargin": "0.01",
      "avgMargin": "0.03",
      "maxMargin": "0.05",
      "minAmount": "5",
      "avgAmount": "8",
      "maxAmount": "10",
      "dustCutoff": "0.5"
    }
  ],
  "sellBands": [
    {
      "minMargin": 0.01,
      "avgMargin": 0.03,
      "maxMargin": 0.05,
      "minAmount": 5,
      "avgAmount": 8,
      "maxAmount": 10,
      "dustCutoff": 0.5
    }
  ]
}`

func TestParse_DecimalStringsAndNumbers(t *testing.T) {
	buys, sells, err := Parse([]byte(validBands))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(buys.Bands()) != 1 || len(sells.Bands()) != 1 {
		t.Fatalf("bands: buy=%d sell=%d want 1/1", len(buys.Bands()), len(sells.Bands()))
	}

	b := buys.Bands()[0]
	if b.MinMarginMicros != 10_000 || b.AvgMarginMicros != 30_000 || b.MaxMarginMicros != 50_000 {
		t.Fatalf("buy margins=%d/%d/%d", b.MinMarginMicros, b.AvgMarginMicros, b.MaxMarginMicros)
	}
	if b.AvgAmountMicros != 8_000_000 || b.DustCutoffMicros != 500_000 {
		t.Fatalf("buy amounts: avg=%d dust=%d", b.AvgAmountMicros, b.DustCutoffMicros)
	}

	// Numeric and quoted fields must parse identically.
	s := sells.Bands()[0]
	if s.MinMarginMicros != b.MinMarginMicros || s.AvgAmountMicros != b.AvgAmountMicros {
		t.Fatalf("sell band differs from buy band: %+v vs %+v", s, b)
	}
}

func TestParse_OverlapIsFatal(t *testing.T) {
	overlapping := `{
  "buyBands": [
    {"minMargin":"0.01","avgMargin":"0.03","maxMargin":"0.05","minAmount":"1","avgAmount":"1","maxAmount":"1","dustCutoff":"0"},
    {"minMargin":"0.04","avgMargin":"0.06","maxMargin":"0.08","minAmount":"1","avgAmount":"1","maxAmount":"1","dustCutoff":"0"}
  ],
  "sellBands": []
}`
	_, _, err := Parse([]byte(overlapping))
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("err=%v want ErrOverlap", err)
	}
}

func TestParse_OrderingViolation(t *testing.T) {
	bad := `{
  "buyBands": [
    {"minMargin":"0.05","avgMargin":"0.03","maxMargin":"0.06","minAmount":"1","avgAmount":"1","maxAmount":"1","dustCutoff":"0"}
  ],
  "sellBands": []
}`
	if _, _, err := Parse([]byte(bad)); err == nil {
		t.Fatalf("expected ordering error")
	}
}

func TestParse_MissingField(t *testing.T) {
	bad := `{
  "buyBands": [
    {"minMargin":"0.01","avgMargin":"0.03","maxMargin":"0.05","minAmount":"1","avgAmount":"1","maxAmount":"1"}
  ],
  "sellBands": []
}`
	if _, _, err := Parse([]byte(bad)); err == nil {
		t.Fatalf("expected missing-field error")
	}
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	bad := `{"buyBands": [], "sellBands": [], "midBands": []}`
	if _, _, err := Parse([]byte(bad)); err == nil {
		t.Fatalf("expected unknown-field error")
	}
}

func TestParse_NegativeMargin(t *testing.T) {
	crossing := `{
  "buyBands": [
    {"minMargin":"-0.02","avgMargin":"-0.01","maxMargin":"0.01","minAmount":"1","avgAmount":"1","maxAmount":"1","dustCutoff":"0"}
  ],
  "sellBands": []
}`
	buys, _, err := Parse([]byte(crossing))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := buys.Bands()[0].MinMarginMicros; got != -20_000 {
		t.Fatalf("minMargin=%d want %d", got, -20_000)
	}
}
