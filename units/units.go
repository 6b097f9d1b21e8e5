// Package units converts between base-unit integers and human-readable
// decimal amounts.
package units

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Parse converts a decimal string such as "1.5" into base units of an asset
// with the given decimals. Negative amounts and amounts finer than one base
// unit are rejected.
func Parse(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("parse amount %q: negative", s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("parse amount %q: more than %d decimals", s, decimals)
	}
	return scaled.BigInt(), nil
}

// Decimal returns x base units as a decimal value.
func Decimal(x *big.Int, decimals uint8) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, -int32(decimals))
}

// Format renders x base units without trailing zeros.
func Format(x *big.Int, decimals uint8) string {
	return Decimal(x, decimals).String()
}

// FormatFixed renders x base units rounded to places decimals.
func FormatFixed(x *big.Int, decimals uint8, places int32) string {
	return Decimal(x, decimals).StringFixed(places)
}

// Ether parses s as an 18-decimal amount.
func Ether(s string) (*big.Int, error) {
	return Parse(s, 18)
}

// Bps renders basis points as a percentage, e.g. 300 as "3%".
func Bps(bps uint64) string {
	return decimal.NewFromInt(int64(bps)).Div(decimal.NewFromInt(100)).String() + "%"
}
