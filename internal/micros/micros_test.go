package micros

import (
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"0", 0},
		{"1", 1_000_000},
		{"1.0", 1_000_000},
		{"0.55", 550_000},
		{".5", 500_000},
		{"1.000001", 1_000_001},
		{"1.0000019", 1_000_001}, // truncate beyond 6dp
		{"  0.0100 ", 10_000},
		{"100", 100_000_000},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("Parse(%q)=%d want %d", tt.in, got, tt.want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	bad := []string{"", "   ", "-1", "1.2.3", "abc", "1-2"}
	for _, in := range bad {
		if _, err := Parse(in); err == nil {
			t.Fatalf("Parse(%q) expected error", in)
		}
	}
}

func TestParseSigned(t *testing.T) {
	got, err := ParseSigned("-0.01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != -10_000 {
		t.Fatalf("ParseSigned(-0.01)=%d want %d", got, -10_000)
	}
}

func TestMulDiv_NoOverflow(t *testing.T) {
	if got := MulDiv(3_000_000, 500_000, Scale); got != 1_500_000 {
		t.Fatalf("MulDiv=%d want %d", got, 1_500_000)
	}
}

func TestMulDiv_OverflowPath(t *testing.T) {
	// a*b overflows 64 bits but the quotient fits.
	a := uint64(math.MaxUint64 / 2)
	got := MulDiv(a, 4, 2)
	if got != math.MaxUint64 {
		// (2^63-1)*4/2 = 2^64-2, still a uint64.
		if got != math.MaxUint64-1 {
			t.Fatalf("MulDiv=%d want %d", got, uint64(math.MaxUint64-1))
		}
	}
}

func TestRoundDown(t *testing.T) {
	tests := []struct {
		m, step, want uint64
	}{
		{1_234_567, 10_000, 1_230_000},
		{1_234_567, 0, 1_234_567},
		{9_999, 10_000, 0},
		{20_000, 10_000, 20_000},
	}
	for _, tt := range tests {
		if got := RoundDown(tt.m, tt.step); got != tt.want {
			t.Fatalf("RoundDown(%d,%d)=%d want %d", tt.m, tt.step, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0"},
		{1_000_000, "1"},
		{1_500_000, "1.5"},
		{10_000, "0.01"},
		{1_000_001, "1.000001"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Fatalf("Format(%d)=%q want %q", tt.in, got, tt.want)
		}
	}
	if got := FormatSigned(-10_000); got != "-0.01" {
		t.Fatalf("FormatSigned=%q want %q", got, "-0.01")
	}
}
