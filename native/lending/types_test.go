package lending

import (
	"math"
	"testing"
)

func TestAmountWireEncoding(t *testing.T) {
	all := AmountFromWire(math.MaxUint64)
	if !all.IsAll() || all.Value() != 0 {
		t.Fatalf("max u64 should decode as all, got %v", all)
	}
	if all.Wire() != math.MaxUint64 || AllAmount().Wire() != math.MaxUint64 {
		t.Fatalf("all should encode as max u64")
	}
	for _, n := range []uint64{0, 1, 1_000_000, math.MaxUint64 - 1} {
		amount := AmountFromWire(n)
		if amount.IsAll() || amount.Value() != n {
			t.Fatalf("%d decoded as %v", n, amount)
		}
		if amount.Wire() != n || ExactAmount(n).Wire() != n {
			t.Fatalf("%d did not survive the wire round trip", n)
		}
	}
	if !AmountFromWire(0).IsZero() || all.IsZero() {
		t.Fatalf("only an exact zero is zero")
	}
}
