package band

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"mm-keeper/internal/micros"
)

// decimalField accepts a JSON number or a decimal string and keeps the exact
// decimal value. Band files commonly quote amounts to avoid float formatting.
type decimalField struct {
	d   decimal.Decimal
	set bool
}

func (f *decimalField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	f.d = d
	f.set = true
	return nil
}

// bandRecord mirrors one entry of the band file.
type bandRecord struct {
	MinMargin  decimalField `json:"minMargin"`
	AvgMargin  decimalField `json:"avgMargin"`
	MaxMargin  decimalField `json:"maxMargin"`
	MinAmount  decimalField `json:"minAmount"`
	AvgAmount  decimalField `json:"avgAmount"`
	MaxAmount  decimalField `json:"maxAmount"`
	DustCutoff decimalField `json:"dustCutoff"`
}

type bandsFile struct {
	BuyBands  []bandRecord `json:"buyBands"`
	SellBands []bandRecord `json:"sellBands"`
}

func (r bandRecord) toBand(side Side) (Band, error) {
	signed := func(name string, f decimalField) (int64, error) {
		if !f.set {
			return 0, fmt.Errorf("missing field %s", name)
		}
		v, err := micros.SignedFromDecimal(f.d)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return v, nil
	}
	unsigned := func(name string, f decimalField) (uint64, error) {
		if !f.set {
			return 0, fmt.Errorf("missing field %s", name)
		}
		v, err := micros.FromDecimal(f.d)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return v, nil
	}

	var b Band
	var err error
	b.Side = side
	if b.MinMarginMicros, err = signed("minMargin", r.MinMargin); err != nil {
		return Band{}, err
	}
	if b.AvgMarginMicros, err = signed("avgMargin", r.AvgMargin); err != nil {
		return Band{}, err
	}
	if b.MaxMarginMicros, err = signed("maxMargin", r.MaxMargin); err != nil {
		return Band{}, err
	}
	if b.MinAmountMicros, err = unsigned("minAmount", r.MinAmount); err != nil {
		return Band{}, err
	}
	if b.AvgAmountMicros, err = unsigned("avgAmount", r.AvgAmount); err != nil {
		return Band{}, err
	}
	if b.MaxAmountMicros, err = unsigned("maxAmount", r.MaxAmount); err != nil {
		return Band{}, err
	}
	if b.DustCutoffMicros, err = unsigned("dustCutoff", r.DustCutoff); err != nil {
		return Band{}, err
	}
	return New(b)
}

// Parse decodes a band file and returns the validated buy and sell sets.
func Parse(data []byte) (buys, sells *Set, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var f bandsFile
	if err := dec.Decode(&f); err != nil {
		return nil, nil, fmt.Errorf("parse bands: %w", err)
	}

	build := func(side Side, records []bandRecord) (*Set, error) {
		bands := make([]Band, 0, len(records))
		for i, r := range records {
			b, err := r.toBand(side)
			if err != nil {
				return nil, fmt.Errorf("%s band %d: %w", side, i, err)
			}
			bands = append(bands, b)
		}
		return NewSet(side, bands)
	}

	if buys, err = build(SideBuy, f.BuyBands); err != nil {
		return nil, nil, err
	}
	if sells, err = build(SideSell, f.SellBands); err != nil {
		return nil, nil, err
	}
	return buys, sells, nil
}

// LoadFile reads and parses a band file.
func LoadFile(path string) (buys, sells *Set, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read bands %s: %w", path, err)
	}
	buys, sells, err = Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return buys, sells, nil
}
