package wad

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimal is an unsigned fixed-point number with 18 decimal places. The zero
// value is 0.
type Decimal struct {
	v uint256.Int
}

// DecimalZero returns 0.
func DecimalZero() Decimal { return Decimal{} }

// DecimalOne returns 1.
func DecimalOne() Decimal { return Decimal{v: *wadInt} }

// NewDecimal converts an integer amount into a Decimal.
func NewDecimal(n uint64) Decimal {
	var d Decimal
	d.v.Mul(uint256.NewInt(n), wadInt)
	return d
}

// DecimalFromPercent converts a whole percentage (e.g. 50 for 50%) into a ratio.
func DecimalFromPercent(percent uint8) Decimal {
	var d Decimal
	d.v.Mul(uint256.NewInt(uint64(percent)), uint256.NewInt(percentScaler))
	return d
}

// DecimalFromScaled builds a Decimal from an already scaled integer.
func DecimalFromScaled(scaled uint64) Decimal {
	return Decimal{v: *uint256.NewInt(scaled)}
}

// DecimalFromScaledInt builds a Decimal from a scaled 256-bit integer, failing
// when the value exceeds the Decimal range.
func DecimalFromScaledInt(scaled *uint256.Int) (Decimal, error) {
	if scaled == nil {
		return Decimal{}, nil
	}
	if !fits(scaled, decimalBits) {
		return Decimal{}, ErrMathOverflow
	}
	return Decimal{v: *scaled}, nil
}

// ParseDecimal parses a human readable, non-negative decimal string such as
// "12.5" or "0.0001". Digits beyond 18 decimal places are truncated.
func ParseDecimal(s string) (Decimal, error) {
	parsed, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("wad: parse %q: %w", s, err)
	}
	if parsed.IsNegative() {
		return Decimal{}, fmt.Errorf("wad: parse %q: negative value", s)
	}
	scaled, overflow := uint256.FromBig(parsed.Shift(Scale).Truncate(0).BigInt())
	if overflow {
		return Decimal{}, ErrMathOverflow
	}
	return DecimalFromScaledInt(scaled)
}

// Scaled returns a copy of the underlying scaled integer.
func (d Decimal) Scaled() *uint256.Int {
	return d.v.Clone()
}

// IsZero reports whether the value is 0.
func (d Decimal) IsZero() bool { return d.v.IsZero() }

// Cmp compares d and other and returns -1, 0 or +1.
func (d Decimal) Cmp(other Decimal) int { return d.v.Cmp(&other.v) }

// Min returns the smaller of d and other.
func (d Decimal) Min(other Decimal) Decimal {
	if d.Cmp(other) <= 0 {
		return d
	}
	return other
}

// TryAdd returns d + other.
func (d Decimal) TryAdd(other Decimal) (Decimal, error) {
	out, err := checkedAdd(&d.v, &other.v, decimalBits)
	return Decimal{v: out}, err
}

// TrySub returns d - other, failing when other is larger than d.
func (d Decimal) TrySub(other Decimal) (Decimal, error) {
	out, err := checkedSub(&d.v, &other.v)
	return Decimal{v: out}, err
}

// TryMul returns d * other, rounded down.
func (d Decimal) TryMul(other Decimal) (Decimal, error) {
	out, err := checkedMulDiv(&d.v, &other.v, wadInt, decimalBits)
	return Decimal{v: out}, err
}

// TryDiv returns d / other, rounded down.
func (d Decimal) TryDiv(other Decimal) (Decimal, error) {
	out, err := checkedMulDiv(&d.v, wadInt, &other.v, decimalBits)
	return Decimal{v: out}, err
}

// TryMulUint64 multiplies d by an integer scalar.
func (d Decimal) TryMulUint64(n uint64) (Decimal, error) {
	out, err := checkedMulDiv(&d.v, uint256.NewInt(n), uint256.NewInt(1), decimalBits)
	return Decimal{v: out}, err
}

// TryDivUint64 divides d by an integer scalar, rounded down.
func (d Decimal) TryDivUint64(n uint64) (Decimal, error) {
	if n == 0 {
		return Decimal{}, ErrMathOverflow
	}
	var out uint256.Int
	out.Div(&d.v, uint256.NewInt(n))
	return Decimal{v: out}, nil
}

// TryMulRate multiplies d by a rate.
func (d Decimal) TryMulRate(r Rate) (Decimal, error) {
	return d.TryMul(r.Decimal())
}

// TryDivRate divides d by a rate.
func (d Decimal) TryDivRate(r Rate) (Decimal, error) {
	return d.TryDiv(r.Decimal())
}

// TryRate narrows d into a Rate.
func (d Decimal) TryRate() (Rate, error) {
	if !fits(&d.v, rateBits) {
		return Rate{}, ErrMathOverflow
	}
	return Rate{v: d.v}, nil
}

// TryFloorUint64 truncates d to an integer.
func (d Decimal) TryFloorUint64() (uint64, error) { return floorUint64(&d.v) }

// TryCeilUint64 rounds d up to the next integer.
func (d Decimal) TryCeilUint64() (uint64, error) { return ceilUint64(&d.v) }

// TryRoundUint64 rounds d to the nearest integer, halves rounding up.
func (d Decimal) TryRoundUint64() (uint64, error) { return roundUint64(&d.v) }

// PutUint128LE writes the scaled value as a little-endian 128-bit integer.
func (d Decimal) PutUint128LE(dst []byte) error {
	if len(dst) < 16 {
		return fmt.Errorf("wad: need 16 bytes, have %d", len(dst))
	}
	if !fits(&d.v, 128) {
		return ErrMathOverflow
	}
	binary.LittleEndian.PutUint64(dst[0:8], d.v[0])
	binary.LittleEndian.PutUint64(dst[8:16], d.v[1])
	return nil
}

// DecimalFromUint128LE reads a scaled little-endian 128-bit integer.
func DecimalFromUint128LE(src []byte) (Decimal, error) {
	if len(src) < 16 {
		return Decimal{}, fmt.Errorf("wad: need 16 bytes, have %d", len(src))
	}
	var d Decimal
	d.v[0] = binary.LittleEndian.Uint64(src[0:8])
	d.v[1] = binary.LittleEndian.Uint64(src[8:16])
	return d, nil
}

// String renders d with up to 18 decimal places and no trailing zeros.
func (d Decimal) String() string {
	return decimal.NewFromBigInt(d.v.ToBig(), -Scale).String()
}
