package lending

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"tokenlending/native/lending/wad"
)

func sampleReserve(t *testing.T) *Reserve {
	t.Helper()
	aggregator := testKey("aggregator")
	reserve := testReserve(1000, mustDecimal(t, "42.123456789"))
	reserve.Liquidity.Aggregator = &aggregator
	reserve.Liquidity.MintDecimals = 6
	reserve.Liquidity.CumulativeBorrowRate = mustDecimal(t, "1.05")
	reserve.Liquidity.MedianPrice = 23_000
	reserve.Collateral.MintTotalSupply = 5000
	reserve.Config.Fees = ReserveFees{BorrowFeeWad: 1_000_000_000_000_000, HostFeePercentage: 20}
	reserve.LastUpdate.UpdateSlot(77)
	return reserve
}

func TestReservePackRoundTrip(t *testing.T) {
	reserve := sampleReserve(t)
	data, err := PackReserve(reserve)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if len(data) != ReserveLen {
		t.Fatalf("expected %d bytes, got %d", ReserveLen, len(data))
	}
	decoded, err := UnpackReserve(data)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !reflect.DeepEqual(reserve, decoded) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, reserve)
	}

	reserve.Liquidity.Aggregator = nil
	if data, err = PackReserve(reserve); err != nil {
		t.Fatalf("pack without aggregator: %v", err)
	}
	if decoded, err = UnpackReserve(data); err != nil {
		t.Fatalf("unpack without aggregator: %v", err)
	}
	if decoded.Liquidity.Aggregator != nil {
		t.Fatalf("expected no aggregator")
	}
}

func TestReserveUnpackRejectsBadEncodings(t *testing.T) {
	data, err := PackReserve(sampleReserve(t))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	badBool := append([]byte(nil), data...)
	badBool[9] = 2
	if _, err := UnpackReserve(badBool); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("expected invalid data for bool byte, got %v", err)
	}

	// version, slot, stale, market, mint, decimals, supply, fee receiver
	tagOffset := 1 + 8 + 1 + 32 + 32 + 1 + 32 + 32
	badTag := append([]byte(nil), data...)
	badTag[tagOffset] = 7
	if _, err := UnpackReserve(badTag); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("expected invalid data for option tag, got %v", err)
	}

	if _, err := UnpackReserve(data[:ReserveLen-1]); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("expected invalid data for short buffer, got %v", err)
	}

	if _, err := UnpackReserve(make([]byte, ReserveLen)); !errors.Is(err, ErrUninitializedAccount) {
		t.Fatalf("expected uninitialised account, got %v", err)
	}

	future := append([]byte(nil), data...)
	future[0] = ProgramVersion + 1
	if _, err := UnpackReserve(future); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("expected invalid data for unknown version, got %v", err)
	}
}

func TestReservePackRejectsOversizedDecimal(t *testing.T) {
	reserve := sampleReserve(t)
	huge, err := wad.NewDecimal(^uint64(0)).TryMulUint64(^uint64(0))
	if err != nil {
		t.Fatalf("huge: %v", err)
	}
	reserve.Liquidity.BorrowedAmount = huge
	if _, err := PackReserve(reserve); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected overflow packing a value wider than 128 bits, got %v", err)
	}
}

func sampleObligation(t *testing.T, deposits, borrows int) *Obligation {
	t.Helper()
	obligation := NewObligation(12, testKey("market"), testKey("owner"))
	obligation.DepositedValue = wad.NewDecimal(900)
	obligation.BorrowedValue = mustDecimal(t, "300.5")
	obligation.AllowedBorrowValue = wad.NewDecimal(450)
	obligation.UnhealthyBorrowValue = wad.NewDecimal(495)
	for i := 0; i < deposits; i++ {
		obligation.Deposits = append(obligation.Deposits, ObligationCollateral{
			DepositReserve:  testKey(fmt.Sprintf("deposit-%d", i)),
			DepositedAmount: uint64(100 * (i + 1)),
			MarketValue:     wad.NewDecimal(uint64(10 * (i + 1))),
		})
	}
	for i := 0; i < borrows; i++ {
		obligation.Borrows = append(obligation.Borrows, ObligationLiquidity{
			BorrowReserve:        testKey(fmt.Sprintf("borrow-%d", i)),
			CumulativeBorrowRate: mustDecimal(t, "1.01"),
			BorrowedAmount:       mustDecimal(t, "12.75"),
			MarketValue:          wad.NewDecimal(uint64(i + 1)),
		})
	}
	return obligation
}

func TestObligationPackRoundTrip(t *testing.T) {
	for _, shape := range [][2]int{{0, 0}, {1, 1}, {3, 2}, {1, 9}, {10, 0}} {
		t.Run(fmt.Sprintf("%dx%d", shape[0], shape[1]), func(t *testing.T) {
			obligation := sampleObligation(t, shape[0], shape[1])
			data, err := PackObligation(obligation)
			if err != nil {
				t.Fatalf("pack: %v", err)
			}
			if len(data) != ObligationLen {
				t.Fatalf("expected %d bytes, got %d", ObligationLen, len(data))
			}
			decoded, err := UnpackObligation(data)
			if err != nil {
				t.Fatalf("unpack: %v", err)
			}
			if !reflect.DeepEqual(obligation, decoded) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, obligation)
			}
		})
	}
}

func TestObligationPackRejectsOverflowingPositions(t *testing.T) {
	if _, err := PackObligation(sampleObligation(t, 0, 10)); !errors.Is(err, ErrObligationReserveLimit) {
		t.Fatalf("expected reserve limit for ten borrows, got %v", err)
	}
	if _, err := PackObligation(sampleObligation(t, 6, 5)); !errors.Is(err, ErrObligationReserveLimit) {
		t.Fatalf("expected reserve limit for eleven positions, got %v", err)
	}

	data, err := PackObligation(sampleObligation(t, 1, 1))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	corrupt := append([]byte(nil), data...)
	countOffset := obligationHeaderLen - 2
	corrupt[countOffset] = 0
	corrupt[countOffset+1] = 10
	if _, err := UnpackObligation(corrupt); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("expected invalid data for oversized borrow count, got %v", err)
	}
}

func TestLendingMarketPackRoundTrip(t *testing.T) {
	quote, err := QuoteCurrencyFromString("USD")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	market := &LendingMarket{
		Version:         ProgramVersion,
		BumpSeed:        254,
		Owner:           testKey("owner"),
		QuoteCurrency:   quote,
		TokenProgramID:  testKey("token"),
		OracleProgramID: testKey("oracle"),
	}
	data, err := PackLendingMarket(market)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if len(data) != LendingMarketLen {
		t.Fatalf("expected %d bytes, got %d", LendingMarketLen, len(data))
	}
	decoded, err := UnpackLendingMarket(data)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !reflect.DeepEqual(market, decoded) {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, market)
	}
	if _, err := UnpackLendingMarket(make([]byte, LendingMarketLen)); !errors.Is(err, ErrUninitializedAccount) {
		t.Fatalf("expected uninitialised market, got %v", err)
	}
}
