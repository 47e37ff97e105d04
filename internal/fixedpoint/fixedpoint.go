// Package fixedpoint provides exact integer arithmetic over base-unit amounts.
//
// Amounts are uint64 values in the smallest unit of their asset (lamports for SOL,
// 10^decimals for tokens). Products are carried in 256-bit integers so that no
// formula overflows or loses precision before the final, explicitly rounded division.
package fixedpoint

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// PriceScale is the number of decimal places kept when a ratio is turned into a decimal.
const PriceScale int32 = 30

// BpsDenominator is the basis-point denominator.
const BpsDenominator = 10_000

// U converts a uint64 into a fresh 256-bit integer.
func U(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// Mul returns a*b as a 256-bit integer.
func Mul(a, b uint64) *uint256.Int {
	return new(uint256.Int).Mul(U(a), U(b))
}

// DivUp returns ceil(x/d). It returns zero when d is zero.
func DivUp(x, d *uint256.Int) *uint256.Int {
	if d.IsZero() {
		return new(uint256.Int)
	}
	q, r := new(uint256.Int).DivMod(x, d, new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}

// MulDiv returns floor(a*b/d). ok is false when d is zero or the result does not fit in 64 bits.
func MulDiv(a, b, d uint64) (uint64, bool) {
	if d == 0 {
		return 0, false
	}
	q := new(uint256.Int).Div(Mul(a, b), U(d))
	if !q.IsUint64() {
		return 0, false
	}
	return q.Uint64(), true
}

// MulDivUp returns ceil(a*b/d). ok is false when d is zero or the result does not fit in 64 bits.
func MulDivUp(a, b, d uint64) (uint64, bool) {
	if d == 0 {
		return 0, false
	}
	q := DivUp(Mul(a, b), U(d))
	if !q.IsUint64() {
		return 0, false
	}
	return q.Uint64(), true
}

// ToUint64 narrows x, reporting whether it fit.
func ToUint64(x *uint256.Int) (uint64, bool) {
	if !x.IsUint64() {
		return 0, false
	}
	return x.Uint64(), true
}

// Decimal converts a 256-bit integer into a decimal.
func Decimal(x *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(x.ToBig(), 0)
}

// ToDecimal converts a base-unit amount into whole units.
func ToDecimal(amount uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(U(amount).ToBig(), -decimals)
}

// Ratio returns num/den * 10^shift rounded to PriceScale places. A zero denominator yields zero.
func Ratio(num, den *uint256.Int, shift int32) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return Decimal(num).Shift(shift).DivRound(Decimal(den), PriceScale)
}

// Percent returns (a-b)/b * 100 rounded to PriceScale places. A zero b yields zero.
func Percent(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Sub(b).DivRound(b, PriceScale).Mul(decimal.NewFromInt(100))
}
