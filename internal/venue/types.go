package venue

import (
	"bytes"
	"encoding/json"

	"mm-keeper/internal/micros"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is a per-tick snapshot of one of our open orders. RemainingMicros is
// in the order's sell unit: quote currency for buys, base for sells.
type Order struct {
	ID              string
	Side            Side
	PriceMicros     uint64
	RemainingMicros uint64
}

// NewOrder is a placement request. AmountMicros is in the sell unit;
// CounterMicros is the derived amount of the opposite asset.
type NewOrder struct {
	Side          Side
	PriceMicros   uint64
	AmountMicros  uint64
	CounterMicros uint64
}

// decimalMicros accepts a JSON number or decimal string and parses it into
// micros. Venue APIs are inconsistent about quoting numeric fields.
type decimalMicros uint64

func (d *decimalMicros) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*d = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	m, err := micros.Parse(s)
	if err != nil {
		return err
	}
	*d = decimalMicros(m)
	return nil
}
