package lending

import (
	"errors"
	"testing"

	"tokenlending/native/lending/wad"
)

func TestRefreshAccruesInterestIntoObligation(t *testing.T) {
	tm := newTestMarket(t)
	usdc := tm.addReserve(t, "usdc", 1, 0, 1000, testConfig())
	obligation := testKey("obligation")
	if err := tm.engine.InitObligation(obligation, tm.market, tm.owner); err != nil {
		t.Fatalf("init obligation: %v", err)
	}
	if err := tm.engine.RefreshReserve(usdc.reserve); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := tm.engine.DepositObligationCollateral(ObligationCollateralParams{
		Obligation: obligation, Reserve: usdc.reserve, SourceCollateral: usdc.ownerCollateral, Owner: tm.owner, Amount: 5000,
	}); err != nil {
		t.Fatalf("deposit collateral: %v", err)
	}
	tm.refresh(t, obligation, usdc.reserve)
	if _, err := tm.engine.BorrowObligationLiquidity(BorrowParams{
		Obligation: obligation, Reserve: usdc.reserve, DestinationLiquidity: usdc.ownerLiquidity, Owner: tm.owner, Amount: ExactAmount(400),
	}); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// 40% utilization sits halfway up the lower segment: 2% a year.
	tm.engine.SetSlot(10 + SlotsPerYear)
	tm.refresh(t, obligation, usdc.reserve)

	reserve, err := tm.state.GetReserve(usdc.reserve)
	if err != nil {
		t.Fatalf("load reserve: %v", err)
	}
	low, high := mustDecimal(t, "1.0202"), mustDecimal(t, "1.0203")
	if rate := reserve.Liquidity.CumulativeBorrowRate; rate.Cmp(low) < 0 || rate.Cmp(high) > 0 {
		t.Fatalf("cumulative borrow rate %s outside [1.0202, 1.0203]", rate)
	}
	loaded, err := tm.state.GetObligation(obligation)
	if err != nil {
		t.Fatalf("load obligation: %v", err)
	}
	if loaded.Borrows[0].BorrowedAmount.Cmp(reserve.Liquidity.BorrowedAmount) != 0 {
		t.Fatalf("obligation debt %s does not track reserve debt %s", loaded.Borrows[0].BorrowedAmount, reserve.Liquidity.BorrowedAmount)
	}
	if loaded.Borrows[0].CumulativeBorrowRate.Cmp(reserve.Liquidity.CumulativeBorrowRate) != 0 {
		t.Fatalf("obligation rate snapshot not advanced")
	}

	result, err := tm.engine.RepayObligationLiquidity(RepayParams{
		Obligation: obligation, Reserve: usdc.reserve, SourceLiquidity: usdc.ownerLiquidity, Authority: tm.owner, Amount: AllAmount(),
	})
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if result.RepayAmount != 409 {
		t.Fatalf("expected 409 repaid including interest, got %d", result.RepayAmount)
	}
	if reserve, err = tm.state.GetReserve(usdc.reserve); err != nil {
		t.Fatalf("load reserve: %v", err)
	}
	if !reserve.Liquidity.BorrowedAmount.IsZero() {
		t.Fatalf("reserve still owed %s", reserve.Liquidity.BorrowedAmount)
	}
	if reserve.Liquidity.AvailableAmount != 1009 {
		t.Fatalf("expected 1009 available, got %d", reserve.Liquidity.AvailableAmount)
	}
}

func TestRepayWithoutObligationRefresh(t *testing.T) {
	tm := newTestMarket(t)
	usdc := tm.addReserve(t, "usdc", 1, 0, 1000, testConfig())
	obligation := testKey("obligation")
	if err := tm.engine.InitObligation(obligation, tm.market, tm.owner); err != nil {
		t.Fatalf("init obligation: %v", err)
	}
	if err := tm.engine.RefreshReserve(usdc.reserve); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := tm.engine.DepositObligationCollateral(ObligationCollateralParams{
		Obligation: obligation, Reserve: usdc.reserve, SourceCollateral: usdc.ownerCollateral, Owner: tm.owner, Amount: 5000,
	}); err != nil {
		t.Fatalf("deposit collateral: %v", err)
	}
	tm.refresh(t, obligation, usdc.reserve)
	if _, err := tm.engine.BorrowObligationLiquidity(BorrowParams{
		Obligation: obligation, Reserve: usdc.reserve, DestinationLiquidity: usdc.ownerLiquidity, Owner: tm.owner, Amount: ExactAmount(400),
	}); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	tm.engine.SetSlot(10 + SlotsPerYear)
	if err := tm.engine.RefreshReserve(usdc.reserve); err != nil {
		t.Fatalf("refresh reserve: %v", err)
	}
	result, err := tm.engine.RepayObligationLiquidity(RepayParams{
		Obligation: obligation, Reserve: usdc.reserve, SourceLiquidity: usdc.ownerLiquidity, Authority: tm.owner, Amount: ExactAmount(100),
	})
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if result.SettleAmount.Cmp(wad.NewDecimal(100)) != 0 {
		t.Fatalf("expected 100 settled, got %s", result.SettleAmount)
	}
	loaded, err := tm.state.GetObligation(obligation)
	if err != nil {
		t.Fatalf("load obligation: %v", err)
	}
	if loaded.Borrows[0].BorrowedAmount.Cmp(wad.NewDecimal(308)) < 0 {
		t.Fatalf("interest not accrued before repay: %s", loaded.Borrows[0].BorrowedAmount)
	}
}

func TestRefreshRejectsClockRegression(t *testing.T) {
	tm := newTestMarket(t)
	usdc := tm.addReserve(t, "usdc", 1, 0, 1000, testConfig())
	if err := tm.engine.RefreshReserve(usdc.reserve); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	tm.engine.SetSlot(5)
	if err := tm.engine.RefreshReserve(usdc.reserve); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected overflow for earlier slot, got %v", err)
	}
}

func TestRefreshObligationRequiresFreshReserves(t *testing.T) {
	tm := newTestMarket(t)
	usdc := tm.addReserve(t, "usdc", 1, 0, 1000, testConfig())
	obligation := testKey("obligation")
	if err := tm.engine.InitObligation(obligation, tm.market, tm.owner); err != nil {
		t.Fatalf("init obligation: %v", err)
	}
	if err := tm.engine.RefreshReserve(usdc.reserve); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := tm.engine.DepositObligationCollateral(ObligationCollateralParams{
		Obligation: obligation, Reserve: usdc.reserve, SourceCollateral: usdc.ownerCollateral, Owner: tm.owner, Amount: 10,
	}); err != nil {
		t.Fatalf("deposit collateral: %v", err)
	}
	tm.engine.SetSlot(11)
	if err := tm.engine.RefreshObligation(obligation); !errors.Is(err, ErrReserveStale) {
		t.Fatalf("expected stale reserve, got %v", err)
	}
}
