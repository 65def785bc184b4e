package lending

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"tokenlending/crypto"
	nativecommon "tokenlending/native/common"
	"tokenlending/native/lending/wad"
)

var (
	errNilState  = errors.New("lending engine: state not configured")
	errNilLedger = errors.New("lending engine: token ledger not configured")
	errNilOracle = errors.New("lending engine: reserve has an aggregator but no price oracle is configured")
)

// engineState loads and stores typed accounts. Getters return (nil, nil) for
// accounts that do not exist yet.
type engineState interface {
	GetLendingMarket(key crypto.Pubkey) (*LendingMarket, error)
	PutLendingMarket(key crypto.Pubkey, market *LendingMarket) error
	GetReserve(key crypto.Pubkey) (*Reserve, error)
	PutReserve(key crypto.Pubkey, reserve *Reserve) error
	GetObligation(key crypto.Pubkey) (*Obligation, error)
	PutObligation(key crypto.Pubkey, obligation *Obligation) error
	// Reserves lists every stored reserve key.
	Reserves() ([]crypto.Pubkey, error)
}

// TokenAccountInfo describes a token account held by the ledger.
type TokenAccountInfo struct {
	Mint   crypto.Pubkey
	Owner  crypto.Pubkey
	Amount uint64
}

// TokenLedger is the fungible token service the engine asks to move funds.
// Every call either applies fully or fails.
type TokenLedger interface {
	TokenAccount(account crypto.Pubkey) (TokenAccountInfo, error)
	Debit(account crypto.Pubkey, amount uint64) error
	Credit(account crypto.Pubkey, amount uint64) error
	Mint(account crypto.Pubkey, amount uint64) error
	Burn(account crypto.Pubkey, amount uint64) error
}

// PriceOracle supplies median prices for reserves that reference an aggregator.
type PriceOracle interface {
	MedianPrice(aggregator crypto.Pubkey) (uint64, error)
}

// Recorder receives operation outcomes and reserve gauges.
type Recorder interface {
	RecordOperation(operation string, err error)
	RecordReserve(reserve crypto.Pubkey, utilization float64, available uint64)
}

// Engine executes lending instructions against accounts loaded from state.
// It is not safe for concurrent use; the host serialises invocations.
type Engine struct {
	state     engineState
	ledger    TokenLedger
	oracle    PriceOracle
	pauses    nativecommon.PauseView
	programID crypto.Pubkey
	slot      uint64
	logger    *slog.Logger
	recorder  Recorder
}

// NewEngine constructs an engine for the program identified by programID.
func NewEngine(programID crypto.Pubkey) *Engine {
	return &Engine{
		programID: programID,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the token ledger used for transfers, mints and burns.
func (e *Engine) SetLedger(ledger TokenLedger) {
	if e == nil {
		return
	}
	e.ledger = ledger
}

// SetOracle configures the price source consulted by RefreshReserve.
func (e *Engine) SetOracle(oracle PriceOracle) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetSlot records the current slot supplied by the host clock.
func (e *Engine) SetSlot(slot uint64) {
	if e == nil {
		return
	}
	e.slot = slot
}

// Slot returns the slot the engine operates at.
func (e *Engine) Slot() uint64 {
	if e == nil {
		return 0
	}
	return e.slot
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// SetRecorder installs a metrics sink. Nil disables recording.
func (e *Engine) SetRecorder(r Recorder) {
	if e == nil {
		return
	}
	e.recorder = r
}

// ProgramID returns the program identity used to derive market authorities.
func (e *Engine) ProgramID() crypto.Pubkey { return e.programID }

func (e *Engine) begin(needsLedger bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if needsLedger && e.ledger == nil {
		return errNilLedger
	}
	return nil
}

func (e *Engine) observe(operation string, err *error) {
	if e == nil {
		return
	}
	if e.recorder != nil {
		e.recorder.RecordOperation(operation, *err)
	}
	if e.logger == nil {
		return
	}
	if *err != nil {
		e.logger.Debug("lending operation failed", slog.String("operation", operation), slog.Uint64("slot", e.slot), slog.String("error", (*err).Error()))
		return
	}
	e.logger.Debug("lending operation applied", slog.String("operation", operation), slog.Uint64("slot", e.slot))
}

func (e *Engine) recordReserve(key crypto.Pubkey, reserve *Reserve) {
	if e.recorder == nil {
		return
	}
	utilization, err := reserve.Liquidity.UtilizationRate()
	if err != nil {
		return
	}
	e.recorder.RecordReserve(key, utilization.Float64(), reserve.Liquidity.AvailableAmount)
}

// MarketAuthority derives the address that owns a market's reserve supply
// accounts.
func (e *Engine) MarketAuthority(market crypto.Pubkey) (crypto.Pubkey, error) {
	if err := e.begin(false); err != nil {
		return crypto.Pubkey{}, err
	}
	lendingMarket, err := e.loadMarket(market)
	if err != nil {
		return crypto.Pubkey{}, err
	}
	return crypto.CreateProgramAddress([][]byte{market[:], {lendingMarket.BumpSeed}}, e.programID)
}

func (e *Engine) loadMarket(key crypto.Pubkey) (*LendingMarket, error) {
	market, err := e.state.GetLendingMarket(key)
	if err != nil {
		return nil, err
	}
	if !market.IsInitialized() {
		return nil, fmt.Errorf("lending market %s: %w", key, ErrUninitializedAccount)
	}
	return market, nil
}

func (e *Engine) loadReserve(key crypto.Pubkey) (*Reserve, error) {
	reserve, err := e.state.GetReserve(key)
	if err != nil {
		return nil, err
	}
	if !reserve.IsInitialized() {
		return nil, fmt.Errorf("reserve %s: %w", key, ErrUninitializedAccount)
	}
	return reserve, nil
}

// expectUniqueReserve rejects a second reserve for the same liquidity mint
// within one market.
func (e *Engine) expectUniqueReserve(market, mint crypto.Pubkey) error {
	keys, err := e.state.Reserves()
	if err != nil {
		return err
	}
	for _, key := range keys {
		reserve, err := e.state.GetReserve(key)
		if err != nil {
			return err
		}
		if !reserve.IsInitialized() {
			continue
		}
		if reserve.LendingMarket == market && reserve.Liquidity.MintPubkey == mint {
			return fmt.Errorf("mint %s already backs reserve %s: %w", mint, key, ErrDuplicateReserve)
		}
	}
	return nil
}

func (e *Engine) loadObligation(key crypto.Pubkey) (*Obligation, error) {
	obligation, err := e.state.GetObligation(key)
	if err != nil {
		return nil, err
	}
	if !obligation.IsInitialized() {
		return nil, fmt.Errorf("obligation %s: %w", key, ErrUninitializedAccount)
	}
	return obligation, nil
}

func (e *Engine) requireFreshReserve(key crypto.Pubkey, reserve *Reserve) error {
	stale, err := reserve.LastUpdate.IsStale(e.slot)
	if err != nil {
		return err
	}
	if stale {
		return fmt.Errorf("reserve %s: %w", key, ErrReserveStale)
	}
	return nil
}

func (e *Engine) requireFreshObligation(key crypto.Pubkey, obligation *Obligation) error {
	stale, err := obligation.LastUpdate.IsStale(e.slot)
	if err != nil {
		return err
	}
	if stale {
		return fmt.Errorf("obligation %s: %w", key, ErrObligationStale)
	}
	return nil
}

// expectTokenAccount checks the mint and, when owner is non-nil, the owner of
// a token account.
func (e *Engine) expectTokenAccount(account, mint crypto.Pubkey, owner *crypto.Pubkey) error {
	info, err := e.ledger.TokenAccount(account)
	if err != nil {
		return err
	}
	if info.Mint != mint {
		return fmt.Errorf("token account %s: %w", account, ErrInvalidTokenMint)
	}
	if owner != nil && info.Owner != *owner {
		return fmt.Errorf("token account %s: %w", account, ErrInvalidTokenOwner)
	}
	return nil
}

func (e *Engine) transfer(from, to crypto.Pubkey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := e.ledger.Debit(from, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenTransferFailed, err)
	}
	if err := e.ledger.Credit(to, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenTransferFailed, err)
	}
	return nil
}

func (e *Engine) mintTo(account crypto.Pubkey, amount uint64) error {
	if err := e.ledger.Mint(account, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenMintToFailed, err)
	}
	return nil
}

func (e *Engine) burnFrom(account crypto.Pubkey, amount uint64) error {
	if err := e.ledger.Burn(account, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenBurnFailed, err)
	}
	return nil
}

// InitLendingMarket creates a market owned by owner and persists the bump
// seed of its derived authority.
func (e *Engine) InitLendingMarket(market, owner crypto.Pubkey, quoteCurrency [32]byte, tokenProgram, oracleProgram crypto.Pubkey) (err error) {
	defer e.observe("init_lending_market", &err)
	if err := e.begin(false); err != nil {
		return err
	}
	existing, err := e.state.GetLendingMarket(market)
	if err != nil {
		return err
	}
	if existing.IsInitialized() {
		return fmt.Errorf("lending market %s: %w", market, ErrAlreadyInitialized)
	}
	_, bump, err := crypto.FindProgramAddress([][]byte{market[:]}, e.programID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMarketAuthority, err)
	}
	return e.state.PutLendingMarket(market, &LendingMarket{
		Version:         ProgramVersion,
		BumpSeed:        bump,
		Owner:           owner,
		QuoteCurrency:   quoteCurrency,
		TokenProgramID:  tokenProgram,
		OracleProgramID: oracleProgram,
	})
}

// SetLendingMarketOwner transfers market ownership. signer must be the
// current owner.
func (e *Engine) SetLendingMarketOwner(market, signer, newOwner crypto.Pubkey) (err error) {
	defer e.observe("set_lending_market_owner", &err)
	if err := e.begin(false); err != nil {
		return err
	}
	lendingMarket, err := e.loadMarket(market)
	if err != nil {
		return err
	}
	if lendingMarket.Owner != signer {
		return ErrInvalidMarketOwner
	}
	lendingMarket.Owner = newOwner
	return e.state.PutLendingMarket(market, lendingMarket)
}

// InitReserveParams names the accounts of a new reserve. The market owner
// seeds the reserve with an initial deposit.
type InitReserveParams struct {
	Reserve       crypto.Pubkey
	LendingMarket crypto.Pubkey
	MarketOwner   crypto.Pubkey
	// LiquidityAmount is the initial deposit, taken from SourceLiquidity.
	LiquidityAmount       uint64
	SourceLiquidity       crypto.Pubkey
	DestinationCollateral crypto.Pubkey
	LiquidityMint         crypto.Pubkey
	LiquidityMintDecimals uint8
	LiquiditySupply       crypto.Pubkey
	LiquidityFeeReceiver  crypto.Pubkey
	CollateralMint        crypto.Pubkey
	CollateralSupply      crypto.Pubkey
	// Aggregator, when set, is the price feed consulted on refresh.
	Aggregator *crypto.Pubkey
	// MedianPrice seeds the price of reserves without an aggregator.
	MedianPrice uint64
	Config      ReserveConfig
}

// InitReserve creates a reserve and returns the collateral minted for the
// initial deposit.
func (e *Engine) InitReserve(p InitReserveParams) (collateral uint64, err error) {
	defer e.observe("init_reserve", &err)
	if err := e.begin(true); err != nil {
		return 0, err
	}
	if p.LiquidityAmount == 0 {
		return 0, ErrInvalidAmount
	}
	if err := p.Config.Validate(); err != nil {
		return 0, err
	}
	market, err := e.loadMarket(p.LendingMarket)
	if err != nil {
		return 0, err
	}
	if market.Owner != p.MarketOwner {
		return 0, ErrInvalidMarketOwner
	}
	existing, err := e.state.GetReserve(p.Reserve)
	if err != nil {
		return 0, err
	}
	if existing.IsInitialized() {
		return 0, fmt.Errorf("reserve %s: %w", p.Reserve, ErrAlreadyInitialized)
	}
	if p.LiquiditySupply == p.LiquidityFeeReceiver || p.LiquiditySupply == p.SourceLiquidity {
		return 0, ErrInvalidAccountInput
	}

	authority, err := crypto.CreateProgramAddress([][]byte{p.LendingMarket[:], {market.BumpSeed}}, e.programID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidMarketAuthority, err)
	}
	if err := e.expectTokenAccount(p.SourceLiquidity, p.LiquidityMint, &p.MarketOwner); err != nil {
		return 0, err
	}
	if err := e.expectTokenAccount(p.LiquiditySupply, p.LiquidityMint, &authority); err != nil {
		return 0, err
	}
	if err := e.expectTokenAccount(p.LiquidityFeeReceiver, p.LiquidityMint, nil); err != nil {
		return 0, err
	}
	if err := e.expectTokenAccount(p.CollateralSupply, p.CollateralMint, &authority); err != nil {
		return 0, err
	}
	if err := e.expectTokenAccount(p.DestinationCollateral, p.CollateralMint, nil); err != nil {
		return 0, err
	}

	price := p.MedianPrice
	if p.Aggregator != nil {
		if e.oracle == nil {
			return 0, errNilOracle
		}
		if price, err = e.oracle.MedianPrice(*p.Aggregator); err != nil {
			return 0, err
		}
	}
	if price == 0 {
		return 0, fmt.Errorf("%w: median price must be positive", ErrInvalidConfig)
	}
	if err := e.expectUniqueReserve(p.LendingMarket, p.LiquidityMint); err != nil {
		return 0, err
	}

	liquidity := NewReserveLiquidity(p.LiquidityMint, p.LiquidityMintDecimals, p.LiquiditySupply, p.LiquidityFeeReceiver, p.Aggregator, price)
	reserveCollateral := ReserveCollateral{MintPubkey: p.CollateralMint, SupplyPubkey: p.CollateralSupply}
	reserve := NewReserve(e.slot, p.LendingMarket, liquidity, reserveCollateral, p.Config)
	if collateral, err = reserve.DepositLiquidity(p.LiquidityAmount); err != nil {
		return 0, err
	}
	if err := e.state.PutReserve(p.Reserve, reserve); err != nil {
		return 0, err
	}
	if err := e.transfer(p.SourceLiquidity, p.LiquiditySupply, p.LiquidityAmount); err != nil {
		return 0, err
	}
	if err := e.mintTo(p.DestinationCollateral, collateral); err != nil {
		return 0, err
	}
	e.recordReserve(p.Reserve, reserve)
	return collateral, nil
}

// RefreshReserve pulls the latest price, accrues interest up to the current
// slot and marks the reserve fresh.
func (e *Engine) RefreshReserve(key crypto.Pubkey) (err error) {
	defer e.observe("refresh_reserve", &err)
	if err := e.begin(false); err != nil {
		return err
	}
	reserve, err := e.loadReserve(key)
	if err != nil {
		return err
	}
	if reserve.Liquidity.Aggregator != nil {
		if e.oracle == nil {
			return errNilOracle
		}
		price, err := e.oracle.MedianPrice(*reserve.Liquidity.Aggregator)
		if err != nil {
			return err
		}
		reserve.Liquidity.MedianPrice = price
	}
	if err := reserve.AccrueInterest(e.slot); err != nil {
		return err
	}
	reserve.LastUpdate.UpdateSlot(e.slot)
	if err := e.state.PutReserve(key, reserve); err != nil {
		return err
	}
	e.recordReserve(key, reserve)
	return nil
}

// DepositParams moves liquidity into a reserve in exchange for collateral.
type DepositParams struct {
	Reserve               crypto.Pubkey
	SourceLiquidity       crypto.Pubkey
	DestinationCollateral crypto.Pubkey
	// Authority owns SourceLiquidity.
	Authority crypto.Pubkey
	Amount    uint64
}

// DepositReserveLiquidity deposits liquidity and returns the collateral minted.
func (e *Engine) DepositReserveLiquidity(p DepositParams) (collateral uint64, err error) {
	defer e.observe("deposit_reserve_liquidity", &err)
	if err := e.begin(true); err != nil {
		return 0, err
	}
	if p.Amount == 0 {
		return 0, ErrInvalidAmount
	}
	reserve, err := e.loadReserve(p.Reserve)
	if err != nil {
		return 0, err
	}
	if err := e.requireFreshReserve(p.Reserve, reserve); err != nil {
		return 0, err
	}
	if p.SourceLiquidity == reserve.Liquidity.SupplyPubkey || p.DestinationCollateral == reserve.Collateral.SupplyPubkey {
		return 0, ErrInvalidAccountInput
	}
	if err := e.expectTokenAccount(p.SourceLiquidity, reserve.Liquidity.MintPubkey, &p.Authority); err != nil {
		return 0, err
	}
	if err := e.expectTokenAccount(p.DestinationCollateral, reserve.Collateral.MintPubkey, nil); err != nil {
		return 0, err
	}

	if collateral, err = reserve.DepositLiquidity(p.Amount); err != nil {
		return 0, err
	}
	reserve.LastUpdate.MarkStale()
	if err := e.state.PutReserve(p.Reserve, reserve); err != nil {
		return 0, err
	}
	if err := e.transfer(p.SourceLiquidity, reserve.Liquidity.SupplyPubkey, p.Amount); err != nil {
		return 0, err
	}
	if err := e.mintTo(p.DestinationCollateral, collateral); err != nil {
		return 0, err
	}
	e.recordReserve(p.Reserve, reserve)
	return collateral, nil
}

// RedeemParams burns collateral in exchange for liquidity.
type RedeemParams struct {
	Reserve              crypto.Pubkey
	SourceCollateral     crypto.Pubkey
	DestinationLiquidity crypto.Pubkey
	// Authority owns SourceCollateral.
	Authority crypto.Pubkey
	Amount    uint64
}

// RedeemReserveCollateral burns collateral and returns the liquidity paid out.
func (e *Engine) RedeemReserveCollateral(p RedeemParams) (liquidity uint64, err error) {
	defer e.observe("redeem_reserve_collateral", &err)
	if err := e.begin(true); err != nil {
		return 0, err
	}
	if p.Amount == 0 {
		return 0, ErrInvalidAmount
	}
	reserve, err := e.loadReserve(p.Reserve)
	if err != nil {
		return 0, err
	}
	if err := e.requireFreshReserve(p.Reserve, reserve); err != nil {
		return 0, err
	}
	if p.SourceCollateral == reserve.Collateral.SupplyPubkey || p.DestinationLiquidity == reserve.Liquidity.SupplyPubkey {
		return 0, ErrInvalidAccountInput
	}
	if err := e.expectTokenAccount(p.SourceCollateral, reserve.Collateral.MintPubkey, &p.Authority); err != nil {
		return 0, err
	}
	if err := e.expectTokenAccount(p.DestinationLiquidity, reserve.Liquidity.MintPubkey, nil); err != nil {
		return 0, err
	}

	if liquidity, err = reserve.RedeemCollateral(p.Amount); err != nil {
		return 0, err
	}
	reserve.LastUpdate.MarkStale()
	if err := e.state.PutReserve(p.Reserve, reserve); err != nil {
		return 0, err
	}
	if err := e.burnFrom(p.SourceCollateral, p.Amount); err != nil {
		return 0, err
	}
	if err := e.transfer(reserve.Liquidity.SupplyPubkey, p.DestinationLiquidity, liquidity); err != nil {
		return 0, err
	}
	e.recordReserve(p.Reserve, reserve)
	return liquidity, nil
}

// InitObligation creates an empty obligation for owner in market.
func (e *Engine) InitObligation(obligation, market, owner crypto.Pubkey) (err error) {
	defer e.observe("init_obligation", &err)
	if err := e.begin(false); err != nil {
		return err
	}
	if _, err := e.loadMarket(market); err != nil {
		return err
	}
	existing, err := e.state.GetObligation(obligation)
	if err != nil {
		return err
	}
	if existing.IsInitialized() {
		return fmt.Errorf("obligation %s: %w", obligation, ErrAlreadyInitialized)
	}
	return e.state.PutObligation(obligation, NewObligation(e.slot, market, owner))
}

// RefreshObligation accrues interest on every borrow and recomputes the
// obligation's values from fresh reserves.
func (e *Engine) RefreshObligation(key crypto.Pubkey) (err error) {
	defer e.observe("refresh_obligation", &err)
	if err := e.begin(false); err != nil {
		return err
	}
	obligation, err := e.loadObligation(key)
	if err != nil {
		return err
	}

	depositedValue := wad.DecimalZero()
	allowedBorrowValue := wad.DecimalZero()
	unhealthyBorrowValue := wad.DecimalZero()
	for i := range obligation.Deposits {
		collateral := &obligation.Deposits[i]
		reserve, err := e.refreshedReserveFor(obligation, collateral.DepositReserve)
		if err != nil {
			return err
		}
		rate, err := reserve.CollateralExchangeRate()
		if err != nil {
			return err
		}
		liquidityAmount, err := rate.DecimalCollateralToLiquidity(wad.NewDecimal(collateral.DepositedAmount))
		if err != nil {
			return err
		}
		decimals, err := decimalsFactor(reserve.Liquidity.MintDecimals)
		if err != nil {
			return err
		}
		if collateral.MarketValue, err = marketValue(liquidityAmount, reserve.Liquidity.MedianPrice, decimals); err != nil {
			return err
		}
		if depositedValue, err = depositedValue.TryAdd(collateral.MarketValue); err != nil {
			return err
		}
		allowed, err := collateral.MarketValue.TryMulRate(wad.RateFromPercent(reserve.Config.LoanToValueRatio))
		if err != nil {
			return err
		}
		if allowedBorrowValue, err = allowedBorrowValue.TryAdd(allowed); err != nil {
			return err
		}
		unhealthy, err := collateral.MarketValue.TryMulRate(wad.RateFromPercent(reserve.Config.LiquidationThreshold))
		if err != nil {
			return err
		}
		if unhealthyBorrowValue, err = unhealthyBorrowValue.TryAdd(unhealthy); err != nil {
			return err
		}
	}

	borrowedValue := wad.DecimalZero()
	for i := range obligation.Borrows {
		liquidity := &obligation.Borrows[i]
		reserve, err := e.refreshedReserveFor(obligation, liquidity.BorrowReserve)
		if err != nil {
			return err
		}
		if err := liquidity.AccrueInterest(reserve.Liquidity.CumulativeBorrowRate); err != nil {
			return err
		}
		decimals, err := decimalsFactor(reserve.Liquidity.MintDecimals)
		if err != nil {
			return err
		}
		if liquidity.MarketValue, err = marketValue(liquidity.BorrowedAmount, reserve.Liquidity.MedianPrice, decimals); err != nil {
			return err
		}
		if borrowedValue, err = borrowedValue.TryAdd(liquidity.MarketValue); err != nil {
			return err
		}
	}

	obligation.DepositedValue = depositedValue
	obligation.BorrowedValue = borrowedValue
	obligation.AllowedBorrowValue = allowedBorrowValue
	obligation.UnhealthyBorrowValue = unhealthyBorrowValue
	obligation.LastUpdate.UpdateSlot(e.slot)
	return e.state.PutObligation(key, obligation)
}

func (e *Engine) refreshedReserveFor(obligation *Obligation, key crypto.Pubkey) (*Reserve, error) {
	reserve, err := e.state.GetReserve(key)
	if err != nil {
		return nil, err
	}
	if !reserve.IsInitialized() || reserve.LendingMarket != obligation.LendingMarket {
		return nil, fmt.Errorf("reserve %s: %w", key, ErrInvalidAccountInput)
	}
	if err := e.requireFreshReserve(key, reserve); err != nil {
		return nil, err
	}
	return reserve, nil
}

// ObligationCollateralParams deposits collateral tokens into an obligation.
type ObligationCollateralParams struct {
	Obligation       crypto.Pubkey
	Reserve          crypto.Pubkey
	SourceCollateral crypto.Pubkey
	// Owner owns both the obligation and SourceCollateral.
	Owner  crypto.Pubkey
	Amount uint64
}

// DepositObligationCollateral pledges collateral to an obligation.
func (e *Engine) DepositObligationCollateral(p ObligationCollateralParams) (err error) {
	defer e.observe("deposit_obligation_collateral", &err)
	if err := e.begin(true); err != nil {
		return err
	}
	if p.Amount == 0 {
		return ErrInvalidAmount
	}
	reserve, err := e.loadReserve(p.Reserve)
	if err != nil {
		return err
	}
	if err := e.requireFreshReserve(p.Reserve, reserve); err != nil {
		return err
	}
	if reserve.Config.LoanToValueRatio == 0 {
		return fmt.Errorf("reserve %s: %w", p.Reserve, ErrReserveCollateralDisabled)
	}
	obligation, err := e.loadObligation(p.Obligation)
	if err != nil {
		return err
	}
	if obligation.LendingMarket != reserve.LendingMarket {
		return ErrInvalidAccountInput
	}
	if obligation.Owner != p.Owner {
		return ErrInvalidObligationOwner
	}
	if p.SourceCollateral == reserve.Collateral.SupplyPubkey {
		return ErrInvalidAccountInput
	}
	if err := e.expectTokenAccount(p.SourceCollateral, reserve.Collateral.MintPubkey, &p.Owner); err != nil {
		return err
	}

	collateral, err := obligation.FindOrAddCollateralToDeposits(p.Reserve)
	if err != nil {
		return err
	}
	if err := collateral.Deposit(p.Amount); err != nil {
		return err
	}
	obligation.LastUpdate.MarkStale()
	if err := e.state.PutObligation(p.Obligation, obligation); err != nil {
		return err
	}
	return e.transfer(p.SourceCollateral, reserve.Collateral.SupplyPubkey, p.Amount)
}

// WithdrawCollateralParams withdraws collateral tokens from an obligation.
type WithdrawCollateralParams struct {
	Obligation            crypto.Pubkey
	Reserve               crypto.Pubkey
	DestinationCollateral crypto.Pubkey
	Owner                 crypto.Pubkey
	Amount                Amount
}

// WithdrawObligationCollateral releases collateral while keeping the
// obligation's borrows within its allowed borrow value. It returns the
// amount withdrawn.
func (e *Engine) WithdrawObligationCollateral(p WithdrawCollateralParams) (withdrawn uint64, err error) {
	defer e.observe("withdraw_obligation_collateral", &err)
	if err := e.begin(true); err != nil {
		return 0, err
	}
	if p.Amount.IsZero() {
		return 0, ErrInvalidAmount
	}
	reserve, err := e.loadReserve(p.Reserve)
	if err != nil {
		return 0, err
	}
	if err := e.requireFreshReserve(p.Reserve, reserve); err != nil {
		return 0, err
	}
	obligation, err := e.loadObligation(p.Obligation)
	if err != nil {
		return 0, err
	}
	if obligation.LendingMarket != reserve.LendingMarket {
		return 0, ErrInvalidAccountInput
	}
	if obligation.Owner != p.Owner {
		return 0, ErrInvalidObligationOwner
	}
	if err := e.requireFreshObligation(p.Obligation, obligation); err != nil {
		return 0, err
	}
	if err := e.expectTokenAccount(p.DestinationCollateral, reserve.Collateral.MintPubkey, nil); err != nil {
		return 0, err
	}

	collateral, index, err := obligation.FindCollateralInDeposits(p.Reserve)
	if err != nil {
		return 0, err
	}
	if collateral.DepositedAmount == 0 {
		return 0, ErrObligationCollateralEmpty
	}
	if withdrawn, err = withdrawAmount(obligation, collateral, p.Amount); err != nil {
		return 0, err
	}

	if err := obligation.Withdraw(withdrawn, index); err != nil {
		return 0, err
	}
	obligation.LastUpdate.MarkStale()
	if err := e.state.PutObligation(p.Obligation, obligation); err != nil {
		return 0, err
	}
	if err := e.transfer(reserve.Collateral.SupplyPubkey, p.DestinationCollateral, withdrawn); err != nil {
		return 0, err
	}
	return withdrawn, nil
}

// withdrawAmount sizes a collateral withdrawal. Without borrows the whole
// deposit is available; otherwise the withdrawal is capped by the value that
// keeps the obligation healthy.
func withdrawAmount(obligation *Obligation, collateral *ObligationCollateral, amount Amount) (uint64, error) {
	if len(obligation.Borrows) == 0 {
		if amount.IsAll() || amount.Value() > collateral.DepositedAmount {
			return collateral.DepositedAmount, nil
		}
		return amount.Value(), nil
	}
	if obligation.DepositedValue.IsZero() || collateral.MarketValue.IsZero() {
		return 0, ErrObligationCollateralEmpty
	}
	maxWithdrawValue, err := obligation.MaxWithdrawValue()
	if err != nil {
		return 0, err
	}
	if maxWithdrawValue.IsZero() {
		return 0, ErrWithdrawTooLarge
	}

	var withdrawn uint64
	if amount.IsAll() {
		withdrawValue := maxWithdrawValue.Min(collateral.MarketValue)
		pct, err := withdrawValue.TryDiv(collateral.MarketValue)
		if err != nil {
			return 0, err
		}
		share, err := wad.NewDecimal(collateral.DepositedAmount).TryMul(pct)
		if err != nil {
			return 0, err
		}
		if withdrawn, err = share.TryFloorUint64(); err != nil {
			return 0, err
		}
		if withdrawn > collateral.DepositedAmount {
			withdrawn = collateral.DepositedAmount
		}
	} else {
		withdrawn = amount.Value()
		if withdrawn > collateral.DepositedAmount {
			withdrawn = collateral.DepositedAmount
		}
		pct, err := wad.NewDecimal(withdrawn).TryDivUint64(collateral.DepositedAmount)
		if err != nil {
			return 0, err
		}
		withdrawValue, err := collateral.MarketValue.TryMul(pct)
		if err != nil {
			return 0, err
		}
		if withdrawValue.Cmp(maxWithdrawValue) > 0 {
			return 0, ErrWithdrawTooLarge
		}
	}
	if withdrawn == 0 {
		return 0, ErrWithdrawTooSmall
	}
	return withdrawn, nil
}

// BorrowParams borrows liquidity against an obligation's collateral.
type BorrowParams struct {
	Obligation           crypto.Pubkey
	Reserve              crypto.Pubkey
	DestinationLiquidity crypto.Pubkey
	Owner                crypto.Pubkey
	// HostFeeReceiver, when set, receives the host share of the borrow fee.
	HostFeeReceiver *crypto.Pubkey
	Amount          Amount
}

// BorrowObligationLiquidity borrows from a reserve and pays out the receive
// amount, the owner fee and the optional host fee.
func (e *Engine) BorrowObligationLiquidity(p BorrowParams) (result BorrowLiquidityResult, err error) {
	defer e.observe("borrow_obligation_liquidity", &err)
	if err := e.begin(true); err != nil {
		return BorrowLiquidityResult{}, err
	}
	if p.Amount.IsZero() {
		return BorrowLiquidityResult{}, ErrInvalidAmount
	}
	reserve, err := e.loadReserve(p.Reserve)
	if err != nil {
		return BorrowLiquidityResult{}, err
	}
	if err := e.requireFreshReserve(p.Reserve, reserve); err != nil {
		return BorrowLiquidityResult{}, err
	}
	obligation, err := e.loadObligation(p.Obligation)
	if err != nil {
		return BorrowLiquidityResult{}, err
	}
	if obligation.LendingMarket != reserve.LendingMarket {
		return BorrowLiquidityResult{}, ErrInvalidAccountInput
	}
	if obligation.Owner != p.Owner {
		return BorrowLiquidityResult{}, ErrInvalidObligationOwner
	}
	if err := e.requireFreshObligation(p.Obligation, obligation); err != nil {
		return BorrowLiquidityResult{}, err
	}
	if len(obligation.Deposits) == 0 || obligation.DepositedValue.IsZero() {
		return BorrowLiquidityResult{}, ErrObligationCollateralEmpty
	}
	if p.DestinationLiquidity == reserve.Liquidity.SupplyPubkey {
		return BorrowLiquidityResult{}, ErrInvalidAccountInput
	}
	if err := e.expectTokenAccount(p.DestinationLiquidity, reserve.Liquidity.MintPubkey, nil); err != nil {
		return BorrowLiquidityResult{}, err
	}
	if p.HostFeeReceiver != nil {
		if err := e.expectTokenAccount(*p.HostFeeReceiver, reserve.Liquidity.MintPubkey, nil); err != nil {
			return BorrowLiquidityResult{}, err
		}
	}

	remaining := obligation.RemainingBorrowValue()
	if remaining.IsZero() {
		return BorrowLiquidityResult{}, ErrBorrowTooLarge
	}
	if result, err = reserve.BorrowLiquidity(p.Amount, remaining); err != nil {
		return BorrowLiquidityResult{}, err
	}
	if result.ReceiveAmount == 0 {
		return BorrowLiquidityResult{}, ErrBorrowTooSmall
	}
	if err := reserve.Liquidity.Borrow(result.BorrowAmount); err != nil {
		return BorrowLiquidityResult{}, err
	}
	reserve.LastUpdate.MarkStale()

	liquidity, err := obligation.FindOrAddLiquidityToBorrows(p.Reserve, reserve.Liquidity.CumulativeBorrowRate)
	if err != nil {
		return BorrowLiquidityResult{}, err
	}
	if err := liquidity.Borrow(result.BorrowAmount); err != nil {
		return BorrowLiquidityResult{}, err
	}
	obligation.LastUpdate.MarkStale()

	if err := e.state.PutReserve(p.Reserve, reserve); err != nil {
		return BorrowLiquidityResult{}, err
	}
	if err := e.state.PutObligation(p.Obligation, obligation); err != nil {
		return BorrowLiquidityResult{}, err
	}

	ownerFee := result.BorrowFee
	if p.HostFeeReceiver != nil && result.HostFee > 0 {
		ownerFee -= result.HostFee
		if err := e.transfer(reserve.Liquidity.SupplyPubkey, *p.HostFeeReceiver, result.HostFee); err != nil {
			return BorrowLiquidityResult{}, err
		}
	}
	if err := e.transfer(reserve.Liquidity.SupplyPubkey, reserve.Liquidity.FeeReceiver, ownerFee); err != nil {
		return BorrowLiquidityResult{}, err
	}
	if err := e.transfer(reserve.Liquidity.SupplyPubkey, p.DestinationLiquidity, result.ReceiveAmount); err != nil {
		return BorrowLiquidityResult{}, err
	}
	e.recordReserve(p.Reserve, reserve)
	return result, nil
}

// RepayParams repays borrowed liquidity on behalf of an obligation.
type RepayParams struct {
	Obligation      crypto.Pubkey
	Reserve         crypto.Pubkey
	SourceLiquidity crypto.Pubkey
	// Authority owns SourceLiquidity. Anyone may repay any obligation.
	Authority crypto.Pubkey
	Amount    Amount
}

// RepayObligationLiquidity repays a borrow. Interest is accrued to the
// reserve's cumulative rate first, so only the reserve needs to be fresh.
func (e *Engine) RepayObligationLiquidity(p RepayParams) (result RepayLiquidityResult, err error) {
	defer e.observe("repay_obligation_liquidity", &err)
	if err := e.begin(true); err != nil {
		return RepayLiquidityResult{}, err
	}
	if p.Amount.IsZero() {
		return RepayLiquidityResult{}, ErrInvalidAmount
	}
	reserve, err := e.loadReserve(p.Reserve)
	if err != nil {
		return RepayLiquidityResult{}, err
	}
	if err := e.requireFreshReserve(p.Reserve, reserve); err != nil {
		return RepayLiquidityResult{}, err
	}
	obligation, err := e.loadObligation(p.Obligation)
	if err != nil {
		return RepayLiquidityResult{}, err
	}
	if obligation.LendingMarket != reserve.LendingMarket {
		return RepayLiquidityResult{}, ErrInvalidAccountInput
	}
	if p.SourceLiquidity == reserve.Liquidity.SupplyPubkey {
		return RepayLiquidityResult{}, ErrInvalidAccountInput
	}
	if err := e.expectTokenAccount(p.SourceLiquidity, reserve.Liquidity.MintPubkey, &p.Authority); err != nil {
		return RepayLiquidityResult{}, err
	}

	liquidity, index, err := obligation.FindLiquidityInBorrows(p.Reserve)
	if err != nil {
		return RepayLiquidityResult{}, err
	}
	if err := liquidity.AccrueInterest(reserve.Liquidity.CumulativeBorrowRate); err != nil {
		return RepayLiquidityResult{}, err
	}
	if liquidity.BorrowedAmount.IsZero() {
		return RepayLiquidityResult{}, ErrObligationLiquidityEmpty
	}
	if result, err = reserve.RepayLiquidity(p.Amount, liquidity.BorrowedAmount); err != nil {
		return RepayLiquidityResult{}, err
	}
	if result.RepayAmount == 0 {
		return RepayLiquidityResult{}, ErrRepayTooSmall
	}
	if err := reserve.Liquidity.Repay(result.RepayAmount, result.SettleAmount); err != nil {
		return RepayLiquidityResult{}, err
	}
	reserve.LastUpdate.MarkStale()
	if err := obligation.Repay(result.SettleAmount, index); err != nil {
		return RepayLiquidityResult{}, err
	}
	obligation.LastUpdate.MarkStale()

	if err := e.state.PutReserve(p.Reserve, reserve); err != nil {
		return RepayLiquidityResult{}, err
	}
	if err := e.state.PutObligation(p.Obligation, obligation); err != nil {
		return RepayLiquidityResult{}, err
	}
	if err := e.transfer(p.SourceLiquidity, reserve.Liquidity.SupplyPubkey, result.RepayAmount); err != nil {
		return RepayLiquidityResult{}, err
	}
	e.recordReserve(p.Reserve, reserve)
	return result, nil
}

// LiquidateParams repays part of an unhealthy obligation's borrow in
// exchange for its collateral plus a bonus.
type LiquidateParams struct {
	Obligation            crypto.Pubkey
	RepayReserve          crypto.Pubkey
	WithdrawReserve       crypto.Pubkey
	SourceLiquidity       crypto.Pubkey
	DestinationCollateral crypto.Pubkey
	// Authority owns SourceLiquidity.
	Authority crypto.Pubkey
	Amount    Amount
}

// LiquidateObligation settles debt from RepayReserve and pays the liquidator
// collateral from WithdrawReserve. The collateral reserve's liquidation bonus
// applies.
func (e *Engine) LiquidateObligation(p LiquidateParams) (result LiquidateObligationResult, err error) {
	defer e.observe("liquidate_obligation", &err)
	if err := e.begin(true); err != nil {
		return LiquidateObligationResult{}, err
	}
	if p.Amount.IsZero() {
		return LiquidateObligationResult{}, ErrInvalidAmount
	}
	repayReserve, err := e.loadReserve(p.RepayReserve)
	if err != nil {
		return LiquidateObligationResult{}, err
	}
	if err := e.requireFreshReserve(p.RepayReserve, repayReserve); err != nil {
		return LiquidateObligationResult{}, err
	}
	withdrawReserve := repayReserve
	if p.WithdrawReserve != p.RepayReserve {
		if withdrawReserve, err = e.loadReserve(p.WithdrawReserve); err != nil {
			return LiquidateObligationResult{}, err
		}
		if err := e.requireFreshReserve(p.WithdrawReserve, withdrawReserve); err != nil {
			return LiquidateObligationResult{}, err
		}
	}
	if repayReserve.LendingMarket != withdrawReserve.LendingMarket {
		return LiquidateObligationResult{}, ErrInvalidAccountInput
	}
	obligation, err := e.loadObligation(p.Obligation)
	if err != nil {
		return LiquidateObligationResult{}, err
	}
	if obligation.LendingMarket != repayReserve.LendingMarket {
		return LiquidateObligationResult{}, ErrInvalidAccountInput
	}
	if err := e.requireFreshObligation(p.Obligation, obligation); err != nil {
		return LiquidateObligationResult{}, err
	}
	if p.SourceLiquidity == repayReserve.Liquidity.SupplyPubkey || p.DestinationCollateral == withdrawReserve.Collateral.SupplyPubkey {
		return LiquidateObligationResult{}, ErrInvalidAccountInput
	}
	if err := e.expectTokenAccount(p.SourceLiquidity, repayReserve.Liquidity.MintPubkey, &p.Authority); err != nil {
		return LiquidateObligationResult{}, err
	}
	if err := e.expectTokenAccount(p.DestinationCollateral, withdrawReserve.Collateral.MintPubkey, nil); err != nil {
		return LiquidateObligationResult{}, err
	}

	if len(obligation.Deposits) == 0 || obligation.DepositedValue.IsZero() {
		return LiquidateObligationResult{}, ErrObligationCollateralEmpty
	}
	if len(obligation.Borrows) == 0 || obligation.BorrowedValue.IsZero() {
		return LiquidateObligationResult{}, ErrObligationLiquidityEmpty
	}
	if obligation.BorrowedValue.Cmp(obligation.UnhealthyBorrowValue) < 0 {
		return LiquidateObligationResult{}, ErrObligationHealthy
	}

	liquidity, liquidityIndex, err := obligation.FindLiquidityInBorrows(p.RepayReserve)
	if err != nil {
		return LiquidateObligationResult{}, err
	}
	if liquidity.MarketValue.IsZero() {
		return LiquidateObligationResult{}, ErrObligationLiquidityEmpty
	}
	collateral, collateralIndex, err := obligation.FindCollateralInDeposits(p.WithdrawReserve)
	if err != nil {
		return LiquidateObligationResult{}, err
	}
	if collateral.MarketValue.IsZero() {
		return LiquidateObligationResult{}, ErrObligationCollateralEmpty
	}

	if result, err = withdrawReserve.LiquidateObligation(p.Amount, obligation, liquidity, collateral); err != nil {
		return LiquidateObligationResult{}, err
	}
	if result.RepayAmount == 0 || result.WithdrawAmount == 0 {
		return LiquidateObligationResult{}, ErrLiquidationTooSmall
	}

	if err := repayReserve.Liquidity.Repay(result.RepayAmount, result.SettleAmount); err != nil {
		return LiquidateObligationResult{}, err
	}
	repayReserve.LastUpdate.MarkStale()
	if err := obligation.Repay(result.SettleAmount, liquidityIndex); err != nil {
		return LiquidateObligationResult{}, err
	}
	if err := obligation.Withdraw(result.WithdrawAmount, collateralIndex); err != nil {
		return LiquidateObligationResult{}, err
	}
	obligation.LastUpdate.MarkStale()

	if err := e.state.PutReserve(p.RepayReserve, repayReserve); err != nil {
		return LiquidateObligationResult{}, err
	}
	if err := e.state.PutObligation(p.Obligation, obligation); err != nil {
		return LiquidateObligationResult{}, err
	}
	if err := e.transfer(p.SourceLiquidity, repayReserve.Liquidity.SupplyPubkey, result.RepayAmount); err != nil {
		return LiquidateObligationResult{}, err
	}
	if err := e.transfer(withdrawReserve.Collateral.SupplyPubkey, p.DestinationCollateral, result.WithdrawAmount); err != nil {
		return LiquidateObligationResult{}, err
	}
	e.logger.Info("obligation liquidated",
		slog.String("obligation", p.Obligation.String()),
		slog.String("repay_reserve", p.RepayReserve.String()),
		slog.String("withdraw_reserve", p.WithdrawReserve.String()),
		slog.Uint64("repay_amount", result.RepayAmount),
		slog.Uint64("withdraw_amount", result.WithdrawAmount),
	)
	e.recordReserve(p.RepayReserve, repayReserve)
	return result, nil
}

// Reserve returns a copy of a stored reserve for inspection.
func (e *Engine) Reserve(ctx context.Context, key crypto.Pubkey) (*Reserve, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.begin(false); err != nil && !errors.Is(err, ErrModulePaused) {
		return nil, err
	}
	return e.loadReserve(key)
}

// Obligation returns a copy of a stored obligation for inspection.
func (e *Engine) Obligation(ctx context.Context, key crypto.Pubkey) (*Obligation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.begin(false); err != nil && !errors.Is(err, ErrModulePaused) {
		return nil, err
	}
	return e.loadObligation(key)
}
