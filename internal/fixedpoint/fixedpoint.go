package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// DecimalPrecision is the number of decimal places carried by every amount
// and price in the system. All quantities are integers scaled by 10^18.
const DecimalPrecision = 18

// Scale is 10^18 as a big.Int. Treat as read-only.
var Scale = big.NewInt(1_000_000_000_000_000_000)

// maxAmount bounds every value that leaves this package: 2^255 - 1.
// Intermediate products use big.Int and cannot wrap, but results must fit
// the checked 256-bit range before they are applied to a balance.
var maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))

// ErrAmountRange is returned when a result falls outside the representable
// range, or when a division by a zero entry price is attempted. The caller
// must abort the operation; silent wrapping is never acceptable.
var ErrAmountRange = errors.New("fixedpoint: amount out of range")

// Wad returns units scaled to fixed-point, i.e. units * 10^18.
func Wad(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), Scale)
}

// CheckRange verifies x fits the checked 256-bit range.
func CheckRange(x *big.Int) error {
	if x.CmpAbs(maxAmount) > 0 {
		return ErrAmountRange
	}
	return nil
}

// RelativeReturn computes the signed fractional price move of an exit price
// against an entry price, scaled by 10^18 and truncated toward zero:
//
//	(exit - entry) * Scale / entry
//
// negated for short positions. A zero entry price aborts with ErrAmountRange.
func RelativeReturn(entry, exit *big.Int, isLong bool) (*big.Int, error) {
	if entry.Sign() == 0 {
		return nil, ErrAmountRange
	}

	diff := new(big.Int).Sub(exit, entry)
	if !isLong {
		diff.Neg(diff)
	}

	diff.Mul(diff, Scale)
	// Quo truncates toward zero, matching the reference rounding exactly.
	return diff.Quo(diff, entry), nil
}

// PnL computes the signed profit or loss of closing a position:
//
//	relativeReturn * margin * leverage / Scale
//
// All intermediates are arbitrary precision; the final value is range-checked
// before being returned.
func PnL(entry, exit, margin *big.Int, leverage uint32, isLong bool) (*big.Int, error) {
	rel, err := RelativeReturn(entry, exit, isLong)
	if err != nil {
		return nil, err
	}

	pnl := new(big.Int).Mul(rel, margin)
	pnl.Mul(pnl, big.NewInt(int64(leverage)))
	pnl.Quo(pnl, Scale)

	if err := CheckRange(pnl); err != nil {
		return nil, err
	}
	return pnl, nil
}

// Parse converts a non-negative decimal string ("100", "64250.75") into a
// fixed-point amount. More than 18 fractional digits is an error rather than
// a silent truncation.
func Parse(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("fixedpoint: parse %q: %w", s, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("fixedpoint: negative amount %q", s)
	}
	if d.Exponent() < -DecimalPrecision {
		return nil, fmt.Errorf("fixedpoint: %q exceeds %d decimal places", s, DecimalPrecision)
	}

	scaled := d.Shift(DecimalPrecision)
	out := scaled.BigInt()
	if err := CheckRange(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Format renders a fixed-point amount back to a decimal string with trailing
// zeros trimmed. It is the inverse of Parse for all in-range values.
func Format(x *big.Int) string {
	return decimal.NewFromBigInt(x, -DecimalPrecision).String()
}
