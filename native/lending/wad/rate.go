package wad

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Rate is a fixed-point ratio with 18 decimal places and a narrower range than
// Decimal. It is used for interest rates and exchange rates.
type Rate struct {
	v uint256.Int
}

// RateZero returns 0%.
func RateZero() Rate { return Rate{} }

// RateOne returns 100%.
func RateOne() Rate { return Rate{v: *wadInt} }

// RateFromPercent converts a whole percentage into a rate.
func RateFromPercent(percent uint8) Rate {
	return Rate{v: DecimalFromPercent(percent).v}
}

// RateFromScaled builds a Rate from an already scaled integer.
func RateFromScaled(scaled uint64) Rate {
	return Rate{v: *uint256.NewInt(scaled)}
}

// Scaled returns a copy of the underlying scaled integer.
func (r Rate) Scaled() *uint256.Int { return r.v.Clone() }

// Decimal widens the rate into a Decimal.
func (r Rate) Decimal() Decimal { return Decimal{v: r.v} }

// IsZero reports whether the rate is 0.
func (r Rate) IsZero() bool { return r.v.IsZero() }

// Cmp compares r and other and returns -1, 0 or +1.
func (r Rate) Cmp(other Rate) int { return r.v.Cmp(&other.v) }

// TryAdd returns r + other.
func (r Rate) TryAdd(other Rate) (Rate, error) {
	out, err := checkedAdd(&r.v, &other.v, rateBits)
	return Rate{v: out}, err
}

// TrySub returns r - other.
func (r Rate) TrySub(other Rate) (Rate, error) {
	out, err := checkedSub(&r.v, &other.v)
	return Rate{v: out}, err
}

// TryMul returns r * other, rounded down.
func (r Rate) TryMul(other Rate) (Rate, error) {
	out, err := checkedMulDiv(&r.v, &other.v, wadInt, rateBits)
	return Rate{v: out}, err
}

// TryDiv returns r / other, rounded down.
func (r Rate) TryDiv(other Rate) (Rate, error) {
	out, err := checkedMulDiv(&r.v, wadInt, &other.v, rateBits)
	return Rate{v: out}, err
}

// TryMulUint64 multiplies the rate by an integer scalar and returns a Decimal.
func (r Rate) TryMulUint64(n uint64) (Decimal, error) {
	return r.Decimal().TryMulUint64(n)
}

// TryDivUint64 divides the rate by an integer scalar.
func (r Rate) TryDivUint64(n uint64) (Rate, error) {
	if n == 0 {
		return Rate{}, ErrMathOverflow
	}
	var out uint256.Int
	out.Div(&r.v, uint256.NewInt(n))
	return Rate{v: out}, nil
}

// TryPow raises r to an integer power by repeated squaring. Any intermediate
// product that leaves the Rate range fails the whole computation.
func (r Rate) TryPow(exp uint64) (Rate, error) {
	base := r
	ret := RateOne()
	if exp%2 != 0 {
		ret = base
	}
	var err error
	for exp > 0 {
		exp /= 2
		if exp == 0 {
			break
		}
		if base, err = base.TryMul(base); err != nil {
			return Rate{}, err
		}
		if exp%2 != 0 {
			if ret, err = ret.TryMul(base); err != nil {
				return Rate{}, err
			}
		}
	}
	return ret, nil
}

// TryRoundUint64 rounds the rate to the nearest integer.
func (r Rate) TryRoundUint64() (uint64, error) { return roundUint64(&r.v) }

// Float64 returns the nearest float64. Use it for reporting only.
func (r Rate) Float64() float64 {
	f, _ := decimal.NewFromBigInt(r.v.ToBig(), -Scale).Float64()
	return f
}

// String renders the rate with up to 18 decimal places.
func (r Rate) String() string {
	return decimal.NewFromBigInt(r.v.ToBig(), -Scale).String()
}
