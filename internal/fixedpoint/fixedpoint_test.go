package fixedpoint_test

import (
	"math/big"
	"testing"

	"PaperPerps/internal/fixedpoint"
)

func TestWad(t *testing.T) {
	got := fixedpoint.Wad(100)
	want, _ := new(big.Int).SetString("100000000000000000000", 10)
	if got.Cmp(want) != 0 {
		t.Errorf("Wad(100): got %s, want %s", got, want)
	}
}

func TestRelativeReturn_LongGain(t *testing.T) {
	// entry 100, exit 120 -> +0.2
	rel, err := fixedpoint.RelativeReturn(fixedpoint.Wad(100), fixedpoint.Wad(120), true)
	if err != nil {
		t.Fatalf("RelativeReturn: %v", err)
	}
	want := big.NewInt(200_000_000_000_000_000)
	if rel.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", rel, want)
	}
}

func TestRelativeReturn_ShortGain(t *testing.T) {
	// short, entry 100, exit 80 -> +0.2
	rel, err := fixedpoint.RelativeReturn(fixedpoint.Wad(100), fixedpoint.Wad(80), false)
	if err != nil {
		t.Fatalf("RelativeReturn: %v", err)
	}
	want := big.NewInt(200_000_000_000_000_000)
	if rel.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", rel, want)
	}
}

func TestRelativeReturn_TruncatesTowardZero(t *testing.T) {
	// entry 3, exit 4 -> 1/3, truncated: 0.333...333 (18 threes)
	rel, err := fixedpoint.RelativeReturn(fixedpoint.Wad(3), fixedpoint.Wad(4), true)
	if err != nil {
		t.Fatalf("RelativeReturn: %v", err)
	}
	want := big.NewInt(333_333_333_333_333_333)
	if rel.Cmp(want) != 0 {
		t.Errorf("positive: got %s, want %s", rel, want)
	}

	// entry 3, exit 2 -> -1/3. Truncation toward zero, NOT floor:
	// -0.333...333, not -0.333...334.
	rel, err = fixedpoint.RelativeReturn(fixedpoint.Wad(3), fixedpoint.Wad(2), true)
	if err != nil {
		t.Fatalf("RelativeReturn: %v", err)
	}
	want = big.NewInt(-333_333_333_333_333_333)
	if rel.Cmp(want) != 0 {
		t.Errorf("negative: got %s, want %s", rel, want)
	}
}

func TestRelativeReturn_ZeroEntry(t *testing.T) {
	_, err := fixedpoint.RelativeReturn(big.NewInt(0), fixedpoint.Wad(1), true)
	if err != fixedpoint.ErrAmountRange {
		t.Errorf("zero entry: got %v, want ErrAmountRange", err)
	}
}

func TestPnL_ReferenceValues(t *testing.T) {
	// entry=100, margin=1000, leverage=10:
	//   long exit 120  -> +2000
	//   long exit 90   -> -1000
	//   short exit 80  -> +2000
	//   short exit 110 -> -1000
	cases := []struct {
		name   string
		exit   int64
		isLong bool
		want   int64
	}{
		{"long take profit", 120, true, 2000},
		{"long stop loss", 90, true, -1000},
		{"short take profit", 80, false, 2000},
		{"short stop loss", 110, false, -1000},
	}

	for _, tc := range cases {
		pnl, err := fixedpoint.PnL(fixedpoint.Wad(100), fixedpoint.Wad(tc.exit), fixedpoint.Wad(1000), 10, tc.isLong)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if pnl.Cmp(fixedpoint.Wad(tc.want)) != 0 {
			t.Errorf("%s: got %s, want %s", tc.name, pnl, fixedpoint.Wad(tc.want))
		}
	}
}

func TestPnL_ScalePreservedExactly(t *testing.T) {
	// entry=3, exit=4, margin=3, leverage=1:
	// rel = 333333333333333333, pnl = rel*3*1/1e18 = 0.999999999999999999
	pnl, err := fixedpoint.PnL(fixedpoint.Wad(3), fixedpoint.Wad(4), fixedpoint.Wad(3), 1, true)
	if err != nil {
		t.Fatalf("PnL: %v", err)
	}
	want := big.NewInt(999_999_999_999_999_999)
	if pnl.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", pnl, want)
	}
}

func TestCheckRange(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))

	if err := fixedpoint.CheckRange(max); err != nil {
		t.Errorf("2^255-1 should be in range: %v", err)
	}
	over := new(big.Int).Add(max, big.NewInt(1))
	if err := fixedpoint.CheckRange(over); err != fixedpoint.ErrAmountRange {
		t.Errorf("2^255 should be out of range, got %v", err)
	}
	negOver := new(big.Int).Neg(over)
	if err := fixedpoint.CheckRange(negOver); err != fixedpoint.ErrAmountRange {
		t.Errorf("-2^255 should be out of range, got %v", err)
	}
}

func TestParseFormat_RoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		out  string
		want *big.Int
	}{
		{"100", "100", fixedpoint.Wad(100)},
		{"0", "0", big.NewInt(0)},
		{"64250.75", "64250.75", new(big.Int).Add(fixedpoint.Wad(64250), big.NewInt(750_000_000_000_000_000))},
		{"0.000000000000000001", "0.000000000000000001", big.NewInt(1)},
	}

	for _, tc := range cases {
		got, err := fixedpoint.Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if got.Cmp(tc.want) != 0 {
			t.Errorf("Parse(%q): got %s, want %s", tc.in, got, tc.want)
		}
		if s := fixedpoint.Format(got); s != tc.out {
			t.Errorf("Format(Parse(%q)): got %q, want %q", tc.in, s, tc.out)
		}
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{"-1", "abc", "1.0000000000000000001", ""} {
		if _, err := fixedpoint.Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}
