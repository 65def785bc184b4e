package lending

import (
	"fmt"

	"tokenlending/crypto"
	"tokenlending/native/lending/wad"
)

// ReserveLiquidity tracks the pooled token of a reserve.
type ReserveLiquidity struct {
	MintPubkey   crypto.Pubkey
	MintDecimals uint8
	SupplyPubkey crypto.Pubkey
	FeeReceiver  crypto.Pubkey
	// Aggregator is the optional price feed account. Nil when prices are
	// set by the market owner.
	Aggregator           *crypto.Pubkey
	CumulativeBorrowRate wad.Decimal
	// MedianPrice is the price of one whole token in the quote currency.
	MedianPrice     uint64
	AvailableAmount uint64
	BorrowedAmount  wad.Decimal
}

// NewReserveLiquidity returns liquidity with no supply and a cumulative borrow
// rate of one.
func NewReserveLiquidity(mint crypto.Pubkey, decimals uint8, supply, feeReceiver crypto.Pubkey, aggregator *crypto.Pubkey, price uint64) ReserveLiquidity {
	return ReserveLiquidity{
		MintPubkey:           mint,
		MintDecimals:         decimals,
		SupplyPubkey:         supply,
		FeeReceiver:          feeReceiver,
		Aggregator:           aggregator,
		CumulativeBorrowRate: wad.DecimalOne(),
		MedianPrice:          price,
	}
}

// TotalSupply returns available plus borrowed liquidity.
func (l *ReserveLiquidity) TotalSupply() (wad.Decimal, error) {
	return wad.NewDecimal(l.AvailableAmount).TryAdd(l.BorrowedAmount)
}

// Deposit adds liquidity to the available amount.
func (l *ReserveLiquidity) Deposit(amount uint64) error {
	sum := l.AvailableAmount + amount
	if sum < l.AvailableAmount {
		return ErrMathOverflow
	}
	l.AvailableAmount = sum
	return nil
}

// Withdraw removes liquidity from the available amount.
func (l *ReserveLiquidity) Withdraw(amount uint64) error {
	if amount > l.AvailableAmount {
		return ErrInsufficientLiquidity
	}
	l.AvailableAmount -= amount
	return nil
}

// Borrow moves floor(amount) out of the available liquidity and records the
// full fee-inclusive amount as borrowed.
func (l *ReserveLiquidity) Borrow(amount wad.Decimal) error {
	receive, err := amount.TryFloorUint64()
	if err != nil {
		return err
	}
	if receive > l.AvailableAmount {
		return ErrInsufficientLiquidity
	}
	borrowed, err := l.BorrowedAmount.TryAdd(amount)
	if err != nil {
		return err
	}
	l.AvailableAmount -= receive
	l.BorrowedAmount = borrowed
	return nil
}

// Repay returns repayAmount to the pool and settles settleAmount of debt.
func (l *ReserveLiquidity) Repay(repayAmount uint64, settleAmount wad.Decimal) error {
	available := l.AvailableAmount + repayAmount
	if available < l.AvailableAmount {
		return ErrMathOverflow
	}
	borrowed, err := l.BorrowedAmount.TrySub(settleAmount)
	if err != nil {
		return err
	}
	l.AvailableAmount = available
	l.BorrowedAmount = borrowed
	return nil
}

// ReserveCollateral tracks the collateral token minted against deposits.
type ReserveCollateral struct {
	MintPubkey      crypto.Pubkey
	MintTotalSupply uint64
	SupplyPubkey    crypto.Pubkey
}

// Mint records newly minted collateral.
func (c *ReserveCollateral) Mint(amount uint64) error {
	sum := c.MintTotalSupply + amount
	if sum < c.MintTotalSupply {
		return ErrMathOverflow
	}
	c.MintTotalSupply = sum
	return nil
}

// Burn records burned collateral.
func (c *ReserveCollateral) Burn(amount uint64) error {
	if amount > c.MintTotalSupply {
		return ErrMathOverflow
	}
	c.MintTotalSupply -= amount
	return nil
}

// ExchangeRate returns collateral supply over total liquidity, falling back to
// InitialCollateralRatio while either side is empty.
func (c *ReserveCollateral) ExchangeRate(totalLiquidity wad.Decimal) (CollateralExchangeRate, error) {
	if c.MintTotalSupply == 0 || totalLiquidity.IsZero() {
		return CollateralExchangeRate{rate: initialCollateralRate()}, nil
	}
	ratio, err := wad.NewDecimal(c.MintTotalSupply).TryDiv(totalLiquidity)
	if err != nil {
		return CollateralExchangeRate{}, err
	}
	rate, err := ratio.TryRate()
	if err != nil {
		return CollateralExchangeRate{}, err
	}
	return CollateralExchangeRate{rate: rate}, nil
}

func initialCollateralRate() wad.Rate {
	rate, _ := wad.NewDecimal(InitialCollateralRatio).TryRate()
	return rate
}

// CollateralExchangeRate converts between liquidity and collateral amounts.
type CollateralExchangeRate struct {
	rate wad.Rate
}

// Rate returns collateral per unit of liquidity.
func (r CollateralExchangeRate) Rate() wad.Rate { return r.rate }

// CollateralToLiquidity converts collateral to liquidity, rounded to nearest.
func (r CollateralExchangeRate) CollateralToLiquidity(amount uint64) (uint64, error) {
	liquidity, err := r.DecimalCollateralToLiquidity(wad.NewDecimal(amount))
	if err != nil {
		return 0, err
	}
	return liquidity.TryRoundUint64()
}

// DecimalCollateralToLiquidity converts without rounding.
func (r CollateralExchangeRate) DecimalCollateralToLiquidity(amount wad.Decimal) (wad.Decimal, error) {
	return amount.TryDivRate(r.rate)
}

// LiquidityToCollateral converts liquidity to collateral, rounded to nearest.
func (r CollateralExchangeRate) LiquidityToCollateral(amount uint64) (uint64, error) {
	collateral, err := r.rate.TryMulUint64(amount)
	if err != nil {
		return 0, err
	}
	return collateral.TryRoundUint64()
}

// DecimalLiquidityToCollateral converts without rounding.
func (r CollateralExchangeRate) DecimalLiquidityToCollateral(amount wad.Decimal) (wad.Decimal, error) {
	return amount.TryMulRate(r.rate)
}

// Reserve is one token's pool within a lending market.
type Reserve struct {
	Version       uint8
	LastUpdate    LastUpdate
	LendingMarket crypto.Pubkey
	Liquidity     ReserveLiquidity
	Collateral    ReserveCollateral
	Config        ReserveConfig
}

// NewReserve returns an initialised reserve last updated at slot.
func NewReserve(slot uint64, market crypto.Pubkey, liquidity ReserveLiquidity, collateral ReserveCollateral, config ReserveConfig) *Reserve {
	return &Reserve{
		Version:       ProgramVersion,
		LastUpdate:    NewLastUpdate(slot),
		LendingMarket: market,
		Liquidity:     liquidity,
		Collateral:    collateral,
		Config:        config,
	}
}

// IsInitialized reports whether the reserve has been written by InitReserve.
func (r *Reserve) IsInitialized() bool {
	return r != nil && r.Version != UninitializedVersion
}

// CollateralExchangeRate returns the current liquidity to collateral rate.
func (r *Reserve) CollateralExchangeRate() (CollateralExchangeRate, error) {
	total, err := r.Liquidity.TotalSupply()
	if err != nil {
		return CollateralExchangeRate{}, err
	}
	return r.Collateral.ExchangeRate(total)
}

// DepositLiquidity records deposited liquidity and returns the collateral to
// mint in exchange.
func (r *Reserve) DepositLiquidity(amount uint64) (uint64, error) {
	rate, err := r.CollateralExchangeRate()
	if err != nil {
		return 0, err
	}
	collateral, err := rate.LiquidityToCollateral(amount)
	if err != nil {
		return 0, err
	}
	if err := r.Liquidity.Deposit(amount); err != nil {
		return 0, err
	}
	if err := r.Collateral.Mint(collateral); err != nil {
		return 0, err
	}
	return collateral, nil
}

// RedeemCollateral records burned collateral and returns the liquidity to
// withdraw in exchange.
func (r *Reserve) RedeemCollateral(collateral uint64) (uint64, error) {
	rate, err := r.CollateralExchangeRate()
	if err != nil {
		return 0, err
	}
	liquidity, err := rate.CollateralToLiquidity(collateral)
	if err != nil {
		return 0, err
	}
	if err := r.Collateral.Burn(collateral); err != nil {
		return 0, err
	}
	if err := r.Liquidity.Withdraw(liquidity); err != nil {
		return 0, err
	}
	return liquidity, nil
}

// BorrowLiquidityResult describes a borrow before it is applied.
type BorrowLiquidityResult struct {
	// BorrowAmount is the debt taken on, fees included.
	BorrowAmount wad.Decimal
	// ReceiveAmount is what the borrower is paid.
	ReceiveAmount uint64
	BorrowFee     uint64
	// HostFee is the part of BorrowFee paid to the host.
	HostFee uint64
}

// BorrowLiquidity sizes a borrow against maxBorrowValue. AllAmount borrows as
// much as the value and the pool allow with fees taken out of the borrowed
// amount; an exact amount is paid out in full with fees added on top.
func (r *Reserve) BorrowLiquidity(amount Amount, maxBorrowValue wad.Decimal) (BorrowLiquidityResult, error) {
	decimals, err := decimalsFactor(r.Liquidity.MintDecimals)
	if err != nil {
		return BorrowLiquidityResult{}, err
	}

	if amount.IsAll() {
		borrowAmount, err := maxBorrowValue.TryMulUint64(decimals)
		if err != nil {
			return BorrowLiquidityResult{}, err
		}
		if borrowAmount, err = borrowAmount.TryDivUint64(r.Liquidity.MedianPrice); err != nil {
			return BorrowLiquidityResult{}, err
		}
		borrowAmount = borrowAmount.Min(wad.NewDecimal(r.Liquidity.AvailableAmount))

		fee, hostFee, err := r.Config.Fees.CalculateBorrowFees(borrowAmount, FeeInclusive)
		if err != nil {
			return BorrowLiquidityResult{}, err
		}
		whole, err := borrowAmount.TryFloorUint64()
		if err != nil {
			return BorrowLiquidityResult{}, err
		}
		if fee > whole {
			return BorrowLiquidityResult{}, ErrMathOverflow
		}
		return BorrowLiquidityResult{
			BorrowAmount:  borrowAmount,
			ReceiveAmount: whole - fee,
			BorrowFee:     fee,
			HostFee:       hostFee,
		}, nil
	}

	receive := amount.Value()
	fee, hostFee, err := r.Config.Fees.CalculateBorrowFees(wad.NewDecimal(receive), FeeExclusive)
	if err != nil {
		return BorrowLiquidityResult{}, err
	}
	borrowAmount, err := wad.NewDecimal(receive).TryAdd(wad.NewDecimal(fee))
	if err != nil {
		return BorrowLiquidityResult{}, err
	}
	borrowValue, err := marketValue(borrowAmount, r.Liquidity.MedianPrice, decimals)
	if err != nil {
		return BorrowLiquidityResult{}, err
	}
	if borrowValue.Cmp(maxBorrowValue) > 0 {
		return BorrowLiquidityResult{}, ErrBorrowTooLarge
	}
	return BorrowLiquidityResult{
		BorrowAmount:  borrowAmount,
		ReceiveAmount: receive,
		BorrowFee:     fee,
		HostFee:       hostFee,
	}, nil
}

// RepayLiquidityResult describes a repayment before it is applied.
type RepayLiquidityResult struct {
	// SettleAmount is the debt cleared.
	SettleAmount wad.Decimal
	// RepayAmount is the token amount the payer transfers.
	RepayAmount uint64
}

// RepayLiquidity settles up to borrowed. A full settlement rounds the transfer
// up so no residue is left; a partial one rounds down.
func (r *Reserve) RepayLiquidity(amount Amount, borrowed wad.Decimal) (RepayLiquidityResult, error) {
	settle := borrowed
	if !amount.IsAll() {
		settle = wad.NewDecimal(amount.Value()).Min(borrowed)
	}
	var (
		repay uint64
		err   error
	)
	if settle.Cmp(borrowed) == 0 {
		repay, err = settle.TryCeilUint64()
	} else {
		repay, err = settle.TryFloorUint64()
	}
	if err != nil {
		return RepayLiquidityResult{}, err
	}
	return RepayLiquidityResult{SettleAmount: settle, RepayAmount: repay}, nil
}

// LiquidateObligationResult describes a liquidation before it is applied.
type LiquidateObligationResult struct {
	// SettleAmount is the debt cleared. It includes debt written off when
	// the collateral is exhausted.
	SettleAmount wad.Decimal
	// RepayAmount is the token amount the liquidator transfers.
	RepayAmount uint64
	// WithdrawAmount is the collateral the liquidator receives.
	WithdrawAmount uint64
}

// LiquidateObligation sizes the repayment and collateral seizure for one
// borrow/deposit pair of an unhealthy obligation.
func (r *Reserve) LiquidateObligation(amount Amount, obligation *Obligation, liquidity *ObligationLiquidity, collateral *ObligationCollateral) (LiquidateObligationResult, error) {
	bonusRate, err := wad.RateFromPercent(r.Config.LiquidationBonus).TryAdd(wad.RateOne())
	if err != nil {
		return LiquidateObligationResult{}, err
	}

	target := liquidity.BorrowedAmount
	if !amount.IsAll() {
		target = wad.NewDecimal(amount.Value()).Min(liquidity.BorrowedAmount)
	}

	var result LiquidateObligationResult
	if liquidity.BorrowedAmount.Cmp(wad.NewDecimal(LiquidationCloseAmount)) < 0 {
		// Too small to liquidate in parts: close the whole borrow.
		result.SettleAmount = liquidity.BorrowedAmount
		liquidationValue, err := liquidity.MarketValue.TryMulRate(bonusRate)
		if err != nil {
			return LiquidateObligationResult{}, err
		}
		switch liquidationValue.Cmp(collateral.MarketValue) {
		case 1:
			repayPct, err := collateral.MarketValue.TryDiv(liquidationValue)
			if err != nil {
				return LiquidateObligationResult{}, err
			}
			scaled, err := target.TryMul(repayPct)
			if err != nil {
				return LiquidateObligationResult{}, err
			}
			if result.RepayAmount, err = scaled.TryCeilUint64(); err != nil {
				return LiquidateObligationResult{}, err
			}
			result.WithdrawAmount = collateral.DepositedAmount
		case 0:
			if result.RepayAmount, err = target.TryCeilUint64(); err != nil {
				return LiquidateObligationResult{}, err
			}
			result.WithdrawAmount = collateral.DepositedAmount
		default:
			if result.RepayAmount, err = target.TryCeilUint64(); err != nil {
				return LiquidateObligationResult{}, err
			}
			if result.WithdrawAmount, err = proportionalWithdraw(collateral, liquidationValue); err != nil {
				return LiquidateObligationResult{}, err
			}
		}
		return result, nil
	}

	maxLiquidation, err := obligation.MaxLiquidationAmount(liquidity)
	if err != nil {
		return LiquidateObligationResult{}, err
	}
	liquidationAmount := maxLiquidation.Min(target)
	liquidationPct, err := liquidationAmount.TryDiv(liquidity.BorrowedAmount)
	if err != nil {
		return LiquidateObligationResult{}, err
	}
	liquidationValue, err := liquidity.MarketValue.TryMul(liquidationPct)
	if err != nil {
		return LiquidateObligationResult{}, err
	}
	if liquidationValue, err = liquidationValue.TryMulRate(bonusRate); err != nil {
		return LiquidateObligationResult{}, err
	}

	switch liquidationValue.Cmp(collateral.MarketValue) {
	case 1:
		repayPct, err := collateral.MarketValue.TryDiv(liquidationValue)
		if err != nil {
			return LiquidateObligationResult{}, err
		}
		if result.SettleAmount, err = liquidationAmount.TryMul(repayPct); err != nil {
			return LiquidateObligationResult{}, err
		}
		result.WithdrawAmount = collateral.DepositedAmount
	case 0:
		result.SettleAmount = liquidationAmount
		result.WithdrawAmount = collateral.DepositedAmount
	default:
		result.SettleAmount = liquidationAmount
		if result.WithdrawAmount, err = proportionalWithdraw(collateral, liquidationValue); err != nil {
			return LiquidateObligationResult{}, err
		}
	}
	if result.RepayAmount, err = result.SettleAmount.TryCeilUint64(); err != nil {
		return LiquidateObligationResult{}, err
	}
	return result, nil
}

// proportionalWithdraw seizes the share of the deposit worth liquidationValue.
// Callers guarantee liquidationValue is below the collateral's market value.
func proportionalWithdraw(collateral *ObligationCollateral, liquidationValue wad.Decimal) (uint64, error) {
	withdrawPct, err := liquidationValue.TryDiv(collateral.MarketValue)
	if err != nil {
		return 0, err
	}
	share, err := wad.NewDecimal(collateral.DepositedAmount).TryMul(withdrawPct)
	if err != nil {
		return 0, err
	}
	return share.TryCeilUint64()
}

// decimalsFactor returns 10^decimals.
func decimalsFactor(decimals uint8) (uint64, error) {
	factor := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		if factor > ^uint64(0)/10 {
			return 0, fmt.Errorf("mint decimals %d: %w", decimals, ErrMathOverflow)
		}
		factor *= 10
	}
	return factor, nil
}

// marketValue prices amount base units at price per whole token.
func marketValue(amount wad.Decimal, price, decimals uint64) (wad.Decimal, error) {
	value, err := amount.TryMulUint64(price)
	if err != nil {
		return wad.Decimal{}, err
	}
	return value.TryDivUint64(decimals)
}
