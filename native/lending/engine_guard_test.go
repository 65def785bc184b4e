package lending

import (
	"context"
	"errors"
	"testing"
)

type stubPauseView struct {
	modules map[string]bool
}

func (s stubPauseView) IsPaused(module string) bool {
	if s.modules == nil {
		return false
	}
	return s.modules[module]
}

func TestEngineRespectsPause(t *testing.T) {
	tm := newTestMarket(t)
	usdc := tm.addReserve(t, "usdc", 1, 0, 1000, testConfig())
	tm.engine.SetPauses(stubPauseView{modules: map[string]bool{moduleName: true}})

	obligation := testKey("obligation")
	checks := map[string]func() error{
		"refresh reserve":    func() error { return tm.engine.RefreshReserve(usdc.reserve) },
		"init obligation":    func() error { return tm.engine.InitObligation(obligation, tm.market, tm.owner) },
		"refresh obligation": func() error { return tm.engine.RefreshObligation(obligation) },
		"deposit": func() error {
			_, err := tm.engine.DepositReserveLiquidity(DepositParams{Reserve: usdc.reserve, Amount: 1})
			return err
		},
		"redeem": func() error {
			_, err := tm.engine.RedeemReserveCollateral(RedeemParams{Reserve: usdc.reserve, Amount: 1})
			return err
		},
		"borrow": func() error {
			_, err := tm.engine.BorrowObligationLiquidity(BorrowParams{Obligation: obligation, Reserve: usdc.reserve, Amount: ExactAmount(1)})
			return err
		},
		"repay": func() error {
			_, err := tm.engine.RepayObligationLiquidity(RepayParams{Obligation: obligation, Reserve: usdc.reserve, Amount: AllAmount()})
			return err
		},
		"liquidate": func() error {
			_, err := tm.engine.LiquidateObligation(LiquidateParams{Obligation: obligation, RepayReserve: usdc.reserve, WithdrawReserve: usdc.reserve, Amount: AllAmount()})
			return err
		},
		"set owner": func() error { return tm.engine.SetLendingMarketOwner(tm.market, tm.owner, tm.owner) },
	}
	for name, call := range checks {
		if err := call(); !errors.Is(err, ErrModulePaused) {
			t.Fatalf("%s: expected module paused, got %v", name, err)
		}
	}

	// Reads stay available while paused.
	if _, err := tm.engine.Reserve(context.Background(), usdc.reserve); err != nil {
		t.Fatalf("read reserve while paused: %v", err)
	}

	tm.engine.SetPauses(stubPauseView{modules: map[string]bool{moduleName: false}})
	if err := tm.engine.RefreshReserve(usdc.reserve); err != nil {
		t.Fatalf("refresh after unpause: %v", err)
	}
}

func TestEngineRequiresState(t *testing.T) {
	engine := NewEngine(testKey("program"))
	if err := engine.RefreshReserve(testKey("reserve")); !errors.Is(err, errNilState) {
		t.Fatalf("expected missing state error, got %v", err)
	}
	engine.SetState(newMockEngineState())
	if _, err := engine.DepositReserveLiquidity(DepositParams{Amount: 1}); !errors.Is(err, errNilLedger) {
		t.Fatalf("expected missing ledger error, got %v", err)
	}
	if err := engine.RefreshReserve(testKey("reserve")); !errors.Is(err, ErrUninitializedAccount) {
		t.Fatalf("expected uninitialised reserve, got %v", err)
	}

	var nilEngine *Engine
	nilEngine.SetLedger(newMockLedger())
	nilEngine.SetSlot(3)
	if nilEngine.Slot() != 0 {
		t.Fatalf("nil engine should report slot zero")
	}
}

func TestEngineRequiresOracleForAggregator(t *testing.T) {
	tm := newTestMarket(t)
	sol := tm.addReserve(t, "sol", 0, 50, 100, testConfig())
	tm.engine.SetOracle(nil)
	if err := tm.engine.RefreshReserve(sol.reserve); !errors.Is(err, errNilOracle) {
		t.Fatalf("expected missing oracle error, got %v", err)
	}
}

func TestReadsHonourContext(t *testing.T) {
	tm := newTestMarket(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tm.engine.Obligation(ctx, testKey("obligation")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled context, got %v", err)
	}
}
