package lending

import (
	"tokenlending/crypto"
	"tokenlending/native/lending/wad"
)

// Obligation is a borrower's position across the reserves of one market.
// Values are in the market's quote currency and only meaningful right after a
// refresh.
type Obligation struct {
	Version       uint8
	LastUpdate    LastUpdate
	LendingMarket crypto.Pubkey
	Owner         crypto.Pubkey
	Deposits      []ObligationCollateral
	Borrows       []ObligationLiquidity
	// DepositedValue is the market value of all deposits.
	DepositedValue wad.Decimal
	// BorrowedValue is the market value of all borrows.
	BorrowedValue wad.Decimal
	// AllowedBorrowValue is the deposit value weighted by each reserve's
	// loan to value ratio.
	AllowedBorrowValue wad.Decimal
	// UnhealthyBorrowValue is the deposit value weighted by each reserve's
	// liquidation threshold.
	UnhealthyBorrowValue wad.Decimal
}

// NewObligation returns an empty obligation owned by owner.
func NewObligation(slot uint64, market, owner crypto.Pubkey) *Obligation {
	return &Obligation{
		Version:       ProgramVersion,
		LastUpdate:    NewLastUpdate(slot),
		LendingMarket: market,
		Owner:         owner,
	}
}

// IsInitialized reports whether the obligation has been written by InitObligation.
func (o *Obligation) IsInitialized() bool {
	return o != nil && o.Version != UninitializedVersion
}

// LoanToValue returns borrowed value over deposited value.
func (o *Obligation) LoanToValue() (wad.Decimal, error) {
	return o.BorrowedValue.TryDiv(o.DepositedValue)
}

// Repay settles debt on the borrow at index, removing it once fully repaid.
func (o *Obligation) Repay(settleAmount wad.Decimal, index int) error {
	if index < 0 || index >= len(o.Borrows) {
		return ErrInvalidObligationLiquidity
	}
	if settleAmount.Cmp(o.Borrows[index].BorrowedAmount) == 0 {
		o.Borrows = append(o.Borrows[:index], o.Borrows[index+1:]...)
		return nil
	}
	return o.Borrows[index].Repay(settleAmount)
}

// Withdraw removes collateral from the deposit at index, dropping it once empty.
func (o *Obligation) Withdraw(amount uint64, index int) error {
	if index < 0 || index >= len(o.Deposits) {
		return ErrInvalidObligationCollateral
	}
	if amount == o.Deposits[index].DepositedAmount {
		o.Deposits = append(o.Deposits[:index], o.Deposits[index+1:]...)
		return nil
	}
	return o.Deposits[index].Withdraw(amount)
}

// MaxWithdrawValue returns the deposit value that can leave the obligation
// while keeping borrows within the allowed borrow value.
func (o *Obligation) MaxWithdrawValue() (wad.Decimal, error) {
	if o.BorrowedValue.IsZero() {
		return o.DepositedValue, nil
	}
	if o.AllowedBorrowValue.IsZero() {
		return wad.DecimalZero(), nil
	}
	required, err := o.BorrowedValue.TryMul(o.DepositedValue)
	if err != nil {
		return wad.Decimal{}, err
	}
	if required, err = required.TryDiv(o.AllowedBorrowValue); err != nil {
		return wad.Decimal{}, err
	}
	if required.Cmp(o.DepositedValue) >= 0 {
		return wad.DecimalZero(), nil
	}
	return o.DepositedValue.TrySub(required)
}

// RemainingBorrowValue returns how much more value may be borrowed, or zero
// when the obligation is already at or past its limit.
func (o *Obligation) RemainingBorrowValue() wad.Decimal {
	remaining, err := o.AllowedBorrowValue.TrySub(o.BorrowedValue)
	if err != nil {
		return wad.DecimalZero()
	}
	return remaining
}

// MaxLiquidationAmount returns the largest part of liquidity's borrow that a
// single liquidation may repay, bounded by the close factor applied to the
// obligation's total borrowed value.
func (o *Obligation) MaxLiquidationAmount(liquidity *ObligationLiquidity) (wad.Decimal, error) {
	closeValue, err := o.BorrowedValue.TryMulRate(wad.RateFromPercent(LiquidationCloseFactor))
	if err != nil {
		return wad.Decimal{}, err
	}
	closeValue = closeValue.Min(liquidity.MarketValue)
	pct, err := closeValue.TryDiv(liquidity.MarketValue)
	if err != nil {
		return wad.Decimal{}, err
	}
	return liquidity.BorrowedAmount.TryMul(pct)
}

// FindCollateralInDeposits returns the deposit for reserve and its index.
func (o *Obligation) FindCollateralInDeposits(reserve crypto.Pubkey) (*ObligationCollateral, int, error) {
	if len(o.Deposits) == 0 {
		return nil, 0, ErrObligationCollateralEmpty
	}
	for i := range o.Deposits {
		if o.Deposits[i].DepositReserve == reserve {
			return &o.Deposits[i], i, nil
		}
	}
	return nil, 0, ErrInvalidObligationCollateral
}

// FindOrAddCollateralToDeposits returns the deposit for reserve, appending an
// empty one when the obligation has room for another position.
func (o *Obligation) FindOrAddCollateralToDeposits(reserve crypto.Pubkey) (*ObligationCollateral, error) {
	for i := range o.Deposits {
		if o.Deposits[i].DepositReserve == reserve {
			return &o.Deposits[i], nil
		}
	}
	if len(o.Deposits)+len(o.Borrows) >= MaxObligationReserves {
		return nil, ErrObligationReserveLimit
	}
	o.Deposits = append(o.Deposits, ObligationCollateral{DepositReserve: reserve})
	return &o.Deposits[len(o.Deposits)-1], nil
}

// FindLiquidityInBorrows returns the borrow for reserve and its index.
func (o *Obligation) FindLiquidityInBorrows(reserve crypto.Pubkey) (*ObligationLiquidity, int, error) {
	if len(o.Borrows) == 0 {
		return nil, 0, ErrObligationLiquidityEmpty
	}
	for i := range o.Borrows {
		if o.Borrows[i].BorrowReserve == reserve {
			return &o.Borrows[i], i, nil
		}
	}
	return nil, 0, ErrInvalidObligationLiquidity
}

// FindOrAddLiquidityToBorrows returns the borrow for reserve, appending an
// empty one that starts accruing at cumulativeBorrowRate when the obligation
// has room for another position.
func (o *Obligation) FindOrAddLiquidityToBorrows(reserve crypto.Pubkey, cumulativeBorrowRate wad.Decimal) (*ObligationLiquidity, error) {
	for i := range o.Borrows {
		if o.Borrows[i].BorrowReserve == reserve {
			return &o.Borrows[i], nil
		}
	}
	if len(o.Deposits)+len(o.Borrows) >= MaxObligationReserves {
		return nil, ErrObligationReserveLimit
	}
	o.Borrows = append(o.Borrows, NewObligationLiquidity(reserve, cumulativeBorrowRate))
	return &o.Borrows[len(o.Borrows)-1], nil
}

// ObligationCollateral is collateral deposited from one reserve.
type ObligationCollateral struct {
	DepositReserve  crypto.Pubkey
	DepositedAmount uint64
	MarketValue     wad.Decimal
}

// Deposit adds collateral.
func (c *ObligationCollateral) Deposit(amount uint64) error {
	sum := c.DepositedAmount + amount
	if sum < c.DepositedAmount {
		return ErrMathOverflow
	}
	c.DepositedAmount = sum
	return nil
}

// Withdraw removes collateral.
func (c *ObligationCollateral) Withdraw(amount uint64) error {
	if amount > c.DepositedAmount {
		return ErrMathOverflow
	}
	c.DepositedAmount -= amount
	return nil
}

// ObligationLiquidity is liquidity borrowed from one reserve.
type ObligationLiquidity struct {
	BorrowReserve crypto.Pubkey
	// CumulativeBorrowRate is the reserve's rate when interest was last
	// accrued on this borrow.
	CumulativeBorrowRate wad.Decimal
	BorrowedAmount       wad.Decimal
	MarketValue          wad.Decimal
}

// NewObligationLiquidity returns an empty borrow for reserve that accrues
// interest from cumulativeBorrowRate onwards.
func NewObligationLiquidity(reserve crypto.Pubkey, cumulativeBorrowRate wad.Decimal) ObligationLiquidity {
	return ObligationLiquidity{
		BorrowReserve:        reserve,
		CumulativeBorrowRate: cumulativeBorrowRate,
	}
}

// Borrow adds debt.
func (l *ObligationLiquidity) Borrow(amount wad.Decimal) error {
	borrowed, err := l.BorrowedAmount.TryAdd(amount)
	if err != nil {
		return err
	}
	l.BorrowedAmount = borrowed
	return nil
}

// Repay settles debt.
func (l *ObligationLiquidity) Repay(settleAmount wad.Decimal) error {
	borrowed, err := l.BorrowedAmount.TrySub(settleAmount)
	if err != nil {
		return err
	}
	l.BorrowedAmount = borrowed
	return nil
}

// AccrueInterest grows the borrow by the reserve's cumulative rate since the
// last accrual. The reserve rate never decreases.
func (l *ObligationLiquidity) AccrueInterest(cumulativeBorrowRate wad.Decimal) error {
	switch cumulativeBorrowRate.Cmp(l.CumulativeBorrowRate) {
	case -1:
		return ErrNegativeInterestRate
	case 0:
		return nil
	}
	ratio, err := cumulativeBorrowRate.TryDiv(l.CumulativeBorrowRate)
	if err != nil {
		return err
	}
	growth, err := ratio.TryRate()
	if err != nil {
		return err
	}
	borrowed, err := l.BorrowedAmount.TryMulRate(growth)
	if err != nil {
		return err
	}
	l.BorrowedAmount = borrowed
	l.CumulativeBorrowRate = cumulativeBorrowRate
	return nil
}
