package lending

import (
	"math/rand"
	"testing"

	"tokenlending/native/lending/wad"
)

func liquidationFixture(borrowed, borrowValue wad.Decimal, deposited uint64, collateralValue wad.Decimal) (*Reserve, *Obligation) {
	reserve := testReserve(0, borrowed)
	reserve.Config.LiquidationBonus = 10
	obligation := NewObligation(1, testKey("market"), testKey("owner"))
	obligation.Borrows = []ObligationLiquidity{{
		BorrowReserve:        testKey("usdc"),
		CumulativeBorrowRate: wad.DecimalOne(),
		BorrowedAmount:       borrowed,
		MarketValue:          borrowValue,
	}}
	obligation.Deposits = []ObligationCollateral{{
		DepositReserve:  testKey("sol"),
		DepositedAmount: deposited,
		MarketValue:     collateralValue,
	}}
	obligation.BorrowedValue = borrowValue
	obligation.DepositedValue = collateralValue
	return reserve, obligation
}

func TestLiquidateDustClosesWholeBorrow(t *testing.T) {
	reserve, obligation := liquidationFixture(wad.DecimalOne(), wad.DecimalOne(), 100, wad.NewDecimal(100))
	reserve.Config.LiquidationBonus = 5
	result, err := reserve.LiquidateObligation(AllAmount(), obligation, &obligation.Borrows[0], &obligation.Deposits[0])
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.SettleAmount.Cmp(wad.DecimalOne()) != 0 {
		t.Fatalf("expected whole borrow settled, got %s", result.SettleAmount)
	}
	if result.RepayAmount != 1 || result.WithdrawAmount != 2 {
		t.Fatalf("unexpected result: repay=%d withdraw=%d", result.RepayAmount, result.WithdrawAmount)
	}
}

func TestLiquidateDustExhaustedCollateral(t *testing.T) {
	borrowed := mustDecimal(t, "1.5")
	reserve, obligation := liquidationFixture(borrowed, wad.NewDecimal(15), 3, wad.NewDecimal(10))
	result, err := reserve.LiquidateObligation(AllAmount(), obligation, &obligation.Borrows[0], &obligation.Deposits[0])
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.SettleAmount.Cmp(borrowed) != 0 {
		t.Fatalf("dust borrow must settle fully, got %s", result.SettleAmount)
	}
	if result.WithdrawAmount != 3 {
		t.Fatalf("expected whole deposit seized, got %d", result.WithdrawAmount)
	}
	if result.RepayAmount != 1 {
		t.Fatalf("expected repay scaled to collateral value, got %d", result.RepayAmount)
	}
}

func TestLiquidateCloseFactor(t *testing.T) {
	reserve, obligation := liquidationFixture(wad.NewDecimal(100), wad.NewDecimal(100), 200, wad.NewDecimal(200))
	result, err := reserve.LiquidateObligation(AllAmount(), obligation, &obligation.Borrows[0], &obligation.Deposits[0])
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.SettleAmount.Cmp(wad.NewDecimal(50)) != 0 {
		t.Fatalf("expected half the borrow settled, got %s", result.SettleAmount)
	}
	if result.RepayAmount != 50 || result.WithdrawAmount != 55 {
		t.Fatalf("unexpected result: repay=%d withdraw=%d", result.RepayAmount, result.WithdrawAmount)
	}
}

func TestLiquidateExactAmountBelowCloseFactor(t *testing.T) {
	reserve, obligation := liquidationFixture(wad.NewDecimal(100), wad.NewDecimal(100), 200, wad.NewDecimal(200))
	result, err := reserve.LiquidateObligation(ExactAmount(20), obligation, &obligation.Borrows[0], &obligation.Deposits[0])
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.RepayAmount != 20 || result.WithdrawAmount != 22 {
		t.Fatalf("unexpected result: repay=%d withdraw=%d", result.RepayAmount, result.WithdrawAmount)
	}
}

func TestLiquidateCollateralWorthLessThanRepay(t *testing.T) {
	reserve, obligation := liquidationFixture(wad.NewDecimal(100), wad.NewDecimal(100), 40, wad.NewDecimal(40))
	result, err := reserve.LiquidateObligation(AllAmount(), obligation, &obligation.Borrows[0], &obligation.Deposits[0])
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.WithdrawAmount != 40 {
		t.Fatalf("expected whole deposit seized, got %d", result.WithdrawAmount)
	}
	// 50 * 40/55 rounds up to 37.
	if result.RepayAmount != 37 {
		t.Fatalf("expected repay 37, got %d", result.RepayAmount)
	}
	if result.SettleAmount.Cmp(wad.NewDecimal(37)) >= 0 || result.SettleAmount.Cmp(wad.NewDecimal(36)) <= 0 {
		t.Fatalf("unexpected settle amount %s", result.SettleAmount)
	}
}

func TestLiquidateBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		borrowedUnits := uint64(rng.Int63n(1_000_000_000)) + 1
		fraction := wad.DecimalFromScaled(uint64(rng.Int63n(1_000_000_000_000_000_000)))
		borrowed, err := wad.NewDecimal(borrowedUnits).TryAdd(fraction)
		if err != nil {
			t.Fatalf("borrowed: %v", err)
		}
		price := uint64(rng.Int63n(1000)) + 1
		borrowValue, err := borrowed.TryMulUint64(price)
		if err != nil {
			t.Fatalf("borrow value: %v", err)
		}
		deposited := uint64(rng.Int63n(1_000_000_000)) + 1
		collateralValue := wad.NewDecimal(uint64(rng.Int63n(1_000_000_000_000)) + 1)
		reserve, obligation := liquidationFixture(borrowed, borrowValue, deposited, collateralValue)
		reserve.Config.LiquidationBonus = uint8(rng.Intn(51))

		amount := AllAmount()
		if rng.Intn(2) == 0 {
			amount = ExactAmount(uint64(rng.Int63n(int64(borrowedUnits))) + 1)
		}
		result, err := reserve.LiquidateObligation(amount, obligation, &obligation.Borrows[0], &obligation.Deposits[0])
		if err != nil {
			t.Fatalf("case %d: liquidate: %v", i, err)
		}
		if result.SettleAmount.Cmp(borrowed) > 0 {
			t.Fatalf("case %d: settled %s of %s borrowed", i, result.SettleAmount, borrowed)
		}
		if result.WithdrawAmount > deposited {
			t.Fatalf("case %d: withdrew %d of %d deposited", i, result.WithdrawAmount, deposited)
		}
		ceilBorrowed, err := borrowed.TryCeilUint64()
		if err != nil {
			t.Fatalf("ceil: %v", err)
		}
		if result.RepayAmount > ceilBorrowed {
			t.Fatalf("case %d: repay %d exceeds debt %s", i, result.RepayAmount, borrowed)
		}
		settleFloor, err := result.SettleAmount.TryFloorUint64()
		if err != nil {
			t.Fatalf("floor: %v", err)
		}
		if result.RepayAmount < settleFloor {
			t.Fatalf("case %d: repay %d below settle %s", i, result.RepayAmount, result.SettleAmount)
		}
	}
}
