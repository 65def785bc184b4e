// Package wad implements the unsigned fixed-point arithmetic used by the lending
// engine. Values are scaled by 10^18 ("wad") and every operation is checked:
// results that would wrap, underflow or divide by zero return ErrMathOverflow.
package wad

import (
	"errors"

	"github.com/holiman/uint256"
)

// Scale is the number of decimal places carried by Decimal and Rate values.
const Scale = 18

const (
	// decimalBits bounds the scaled value of a Decimal.
	decimalBits = 192
	// rateBits bounds the scaled value of a Rate.
	rateBits = 128
	// percentScaler converts a whole percentage into a wad.
	percentScaler uint64 = 10_000_000_000_000_000
)

// ErrMathOverflow is returned whenever a checked operation cannot be represented.
var ErrMathOverflow = errors.New("wad: math operation overflow")

var (
	wadInt     = uint256.NewInt(1_000_000_000_000_000_000)
	halfWadInt = uint256.NewInt(500_000_000_000_000_000)
	wadMinus1  = uint256.NewInt(999_999_999_999_999_999)
)

// WAD returns 10^18 as a plain integer, the scaled representation of one.
func WAD() uint64 { return wadInt.Uint64() }

func fits(v *uint256.Int, bits int) bool {
	return v.BitLen() <= bits
}

func checkedAdd(a, b *uint256.Int, bits int) (uint256.Int, error) {
	var out uint256.Int
	if _, overflow := out.AddOverflow(a, b); overflow || !fits(&out, bits) {
		return uint256.Int{}, ErrMathOverflow
	}
	return out, nil
}

func checkedSub(a, b *uint256.Int) (uint256.Int, error) {
	var out uint256.Int
	if _, underflow := out.SubOverflow(a, b); underflow {
		return uint256.Int{}, ErrMathOverflow
	}
	return out, nil
}

// checkedMulDiv computes a*b/d with a 256-bit intermediate product.
func checkedMulDiv(a, b, d *uint256.Int, bits int) (uint256.Int, error) {
	if d.IsZero() {
		return uint256.Int{}, ErrMathOverflow
	}
	var out uint256.Int
	if _, overflow := out.MulOverflow(a, b); overflow {
		return uint256.Int{}, ErrMathOverflow
	}
	out.Div(&out, d)
	if !fits(&out, bits) {
		return uint256.Int{}, ErrMathOverflow
	}
	return out, nil
}

func toUint64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, ErrMathOverflow
	}
	return v.Uint64(), nil
}

func floorUint64(v *uint256.Int) (uint64, error) {
	var out uint256.Int
	out.Div(v, wadInt)
	return toUint64(&out)
}

func ceilUint64(v *uint256.Int) (uint64, error) {
	var out uint256.Int
	if _, overflow := out.AddOverflow(v, wadMinus1); overflow {
		return 0, ErrMathOverflow
	}
	out.Div(&out, wadInt)
	return toUint64(&out)
}

func roundUint64(v *uint256.Int) (uint64, error) {
	var out uint256.Int
	if _, overflow := out.AddOverflow(v, halfWadInt); overflow {
		return 0, ErrMathOverflow
	}
	out.Div(&out, wadInt)
	return toUint64(&out)
}
