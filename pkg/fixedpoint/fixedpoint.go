// Package fixedpoint is the core's Precision Arithmetic module (spec.md
// §4.1): fixed-point integer math at a 10^18 base, routed through
// holiman/uint256 rather than float64, so that no matching, fee, or
// margin decision ever touches binary floating point.
package fixedpoint

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Base is 10^18, the scale shared by every quantity and price in the
// system (spec.md §3).
const BaseDecimals = 18

var baseUnit = mustUint256FromDecimal("1000000000000000000")

// UInt is a non-negative 256-bit fixed-point value at 10^18 scale.
type UInt struct {
	v *uint256.Int
}

// Zero is the additive identity.
func Zero() UInt { return UInt{v: uint256.NewInt(0)} }

func mustUint256FromDecimal(s string) *uint256.Int {
	z := new(uint256.Int)
	if err := z.SetFromDecimal(s); err != nil {
		panic(fmt.Sprintf("fixedpoint: invalid literal %q: %v", s, err))
	}
	return z
}

// FromU64 builds a base-unit value directly from an integer (no scaling).
func FromU64(n uint64) UInt { return UInt{v: uint256.NewInt(n)} }

// ToBase parses a decimal string (e.g. "1.25") into its base-unit integer
// representation (spec.md §4.1 to_base). Up to 78 significant digits are
// accepted; fractional digits beyond BaseDecimals are rejected rather than
// silently truncated, since truncation at this boundary would corrupt a
// persisted monetary value.
func ToBase(decimal string) (UInt, error) {
	decimal = strings.TrimSpace(decimal)
	if decimal == "" {
		return UInt{}, fmt.Errorf("fixedpoint: empty decimal string")
	}
	neg := strings.HasPrefix(decimal, "-")
	if neg {
		return UInt{}, fmt.Errorf("fixedpoint: negative value %q not representable", decimal)
	}

	whole, frac, hasFrac := strings.Cut(decimal, ".")
	if hasFrac {
		if len(frac) > BaseDecimals {
			return UInt{}, fmt.Errorf("fixedpoint: %q has more than %d fractional digits", decimal, BaseDecimals)
		}
		frac = frac + strings.Repeat("0", BaseDecimals-len(frac))
	} else {
		frac = strings.Repeat("0", BaseDecimals)
	}
	if whole == "" {
		whole = "0"
	}

	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		combined = "0"
	}

	z := new(uint256.Int)
	if err := z.SetFromDecimal(combined); err != nil {
		return UInt{}, fmt.Errorf("fixedpoint: %q is not a valid decimal: %w", decimal, err)
	}
	return UInt{v: z}, nil
}

// FromBase renders a base-unit integer as a decimal string, truncating
// trailing zeros beyond the significant digits (spec.md §4.1 from_base).
// Display-only formatting for non-canonical shapes should instead go
// through shopspring/decimal at the presentation boundary.
func (u UInt) FromBase() string {
	if u.v == nil {
		return "0"
	}
	digits := u.v.Dec()
	for len(digits) <= BaseDecimals {
		digits = "0" + digits
	}
	whole := digits[:len(digits)-BaseDecimals]
	frac := digits[len(digits)-BaseDecimals:]
	frac = strings.TrimRight(frac, "0")
	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// String implements fmt.Stringer via FromBase.
func (u UInt) String() string { return u.FromBase() }

// Raw returns the underlying base-unit integer as a decimal string with no
// scale conversion — the exact value persisted in a NUMERIC(78,0) column.
func (u UInt) Raw() string {
	if u.v == nil {
		return "0"
	}
	return u.v.Dec()
}

// RawFromString reconstructs a UInt from a persisted NUMERIC(78,0) string.
func RawFromString(s string) (UInt, error) {
	z := new(uint256.Int)
	if err := z.SetFromDecimal(s); err != nil {
		return UInt{}, fmt.Errorf("fixedpoint: invalid stored value %q: %w", s, err)
	}
	return UInt{v: z}, nil
}

func (u UInt) int() *uint256.Int {
	if u.v == nil {
		return uint256.NewInt(0)
	}
	return u.v
}

// Add returns u + other.
func (u UInt) Add(other UInt) UInt {
	z := new(uint256.Int)
	z.Add(u.int(), other.int())
	return UInt{v: z}
}

// Sub returns u - other. Panics on underflow: callers must check
// GTE before subtracting, since a negative monetary value is never
// representable (spec.md §3).
func (u UInt) Sub(other UInt) UInt {
	if u.LT(other) {
		panic(fmt.Sprintf("fixedpoint: %s - %s underflows", u.Raw(), other.Raw()))
	}
	z := new(uint256.Int)
	z.Sub(u.int(), other.int())
	return UInt{v: z}
}

// Mul returns u * other in raw base-unit space (no /10^18 rescale). Most
// callers want MulDiv instead.
func (u UInt) Mul(other UInt) UInt {
	z := new(uint256.Int)
	z.Mul(u.int(), other.int())
	return UInt{v: z}
}

// MulDiv computes a*b/divisor with a full 512-bit intermediate product so
// that a*b cannot silently overflow 256 bits before the division brings
// the result back into range (spec.md §4.1). This is the routing point
// for every quote-quantity, fee, and margin computation.
func MulDiv(a, b, divisor UInt) (UInt, error) {
	if divisor.int().IsZero() {
		return UInt{}, fmt.Errorf("fixedpoint: division by zero")
	}
	result, overflow := new(uint256.Int).MulDivOverflow(a.int(), b.int(), divisor.int())
	if overflow {
		return UInt{}, fmt.Errorf("fixedpoint: mul_div overflow computing %s*%s/%s", a.Raw(), b.Raw(), divisor.Raw())
	}
	return UInt{v: result}, nil
}

// MulOverBase computes a*b/10^18 — the standard rescale after multiplying
// two base-unit values together (e.g. price*quantity, or size*rate).
func MulOverBase(a, b UInt) (UInt, error) {
	return MulDiv(a, b, UInt{v: baseUnit})
}

// DivOverBase computes a*10^18/b — the standard rescale for a base-unit
// division (e.g. quote/quantity to recover a price, or margin/leverage).
func DivOverBase(a, b UInt) (UInt, error) {
	return MulDiv(a, UInt{v: baseUnit}, b)
}

// FeeBps computes floor(amount * bps / 10_000), the basis-point fee
// convention used throughout settlement and spot/perp trade fees
// (spec.md §4.1).
func FeeBps(amount UInt, bps int64) (UInt, error) {
	if bps < 0 {
		return UInt{}, fmt.Errorf("fixedpoint: negative bps %d", bps)
	}
	bpsVal := UInt{v: uint256.NewInt(uint64(bps))}
	tenThousand := UInt{v: uint256.NewInt(10_000)}
	return MulDiv(amount, bpsVal, tenThousand)
}

// IsZero reports whether u is the zero value.
func (u UInt) IsZero() bool { return u.int().IsZero() }

// GT reports u > other.
func (u UInt) GT(other UInt) bool { return u.int().Gt(other.int()) }

// GTE reports u >= other.
func (u UInt) GTE(other UInt) bool { return !u.int().Lt(other.int()) }

// LT reports u < other.
func (u UInt) LT(other UInt) bool { return u.int().Lt(other.int()) }

// LTE reports u <= other.
func (u UInt) LTE(other UInt) bool { return !u.int().Gt(other.int()) }

// Eq reports u == other.
func (u UInt) Eq(other UInt) bool { return u.int().Eq(other.int()) }

// Cmp returns -1/0/1 as u is less than, equal to, or greater than other.
func (u UInt) Cmp(other UInt) int { return u.int().Cmp(other.int()) }

// Float64Approx renders u as an approximate float64 of its raw base-unit
// magnitude. This is lossy and is reserved for the one place spec.md
// permits floating point: VWAP's volume-observation bias (spec.md §4.4),
// which is a scheduling heuristic rather than a matching/fee/margin
// decision. Never use this for anything that determines a fill, fee, or
// balance.
func (u UInt) Float64Approx() float64 {
	f := new(big.Float).SetInt(u.int().ToBig())
	v, _ := f.Float64()
	return v
}

// FromFloat64Approx is the inverse of Float64Approx, for the same
// VWAP-bias-only use case. Negative or non-finite input yields Zero.
func FromFloat64Approx(f float64) UInt {
	if f <= 0 {
		return Zero()
	}
	bf := new(big.Float).SetFloat64(f)
	bi, _ := bf.Int(nil)
	z := new(uint256.Int)
	if overflow := z.SetFromBig(bi); overflow {
		return Zero()
	}
	return UInt{v: z}
}

// Min returns the smaller of a, b.
func Min(a, b UInt) UInt {
	if a.LT(b) {
		return a
	}
	return b
}
