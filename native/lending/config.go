package lending

import (
	"fmt"

	"tokenlending/native/lending/wad"
)

// ReserveConfig captures the risk parameters of a reserve. Percentages are
// whole numbers between 0 and 100.
type ReserveConfig struct {
	// OptimalUtilizationRate is the kink of the borrow rate curve.
	OptimalUtilizationRate uint8 `toml:"OptimalUtilizationRate" yaml:"optimalUtilizationRate"`
	// LoanToValueRatio is the share of deposited value that may be borrowed.
	// Zero disables the reserve as collateral.
	LoanToValueRatio uint8 `toml:"LoanToValueRatio" yaml:"loanToValueRatio"`
	// LiquidationBonus is the extra collateral a liquidator receives.
	LiquidationBonus uint8 `toml:"LiquidationBonus" yaml:"liquidationBonus"`
	// LiquidationThreshold is the loan to value ratio at which an obligation
	// becomes liquidatable.
	LiquidationThreshold uint8 `toml:"LiquidationThreshold" yaml:"liquidationThreshold"`
	MinBorrowRate        uint8 `toml:"MinBorrowRate" yaml:"minBorrowRate"`
	OptimalBorrowRate    uint8 `toml:"OptimalBorrowRate" yaml:"optimalBorrowRate"`
	MaxBorrowRate        uint8 `toml:"MaxBorrowRate" yaml:"maxBorrowRate"`

	Fees ReserveFees `toml:"Fees" yaml:"fees"`
}

// ReserveFees are charged on borrows, separately from interest.
type ReserveFees struct {
	// BorrowFeeWad is the origination fee as a wad, so 10^16 is 1%.
	BorrowFeeWad uint64 `toml:"BorrowFeeWad" yaml:"borrowFeeWad"`
	// HostFeePercentage is the share of the borrow fee paid to a host.
	HostFeePercentage uint8 `toml:"HostFeePercentage" yaml:"hostFeePercentage"`
}

// Validate checks the orderings the borrow curve and health checks rely on.
func (c ReserveConfig) Validate() error {
	switch {
	case c.OptimalUtilizationRate > 100:
		return fmt.Errorf("%w: optimal utilization rate must be in range [0, 100]", ErrInvalidConfig)
	case c.LoanToValueRatio >= 100:
		return fmt.Errorf("%w: loan to value ratio must be in range [0, 100)", ErrInvalidConfig)
	case c.LiquidationBonus > 100:
		return fmt.Errorf("%w: liquidation bonus must be in range [0, 100]", ErrInvalidConfig)
	case c.LiquidationThreshold <= c.LoanToValueRatio || c.LiquidationThreshold > 100:
		return fmt.Errorf("%w: liquidation threshold must be in range (LTV, 100]", ErrInvalidConfig)
	case c.OptimalBorrowRate < c.MinBorrowRate:
		return fmt.Errorf("%w: optimal borrow rate must be >= min borrow rate", ErrInvalidConfig)
	case c.OptimalBorrowRate > c.MaxBorrowRate:
		return fmt.Errorf("%w: optimal borrow rate must be <= max borrow rate", ErrInvalidConfig)
	case c.Fees.BorrowFeeWad >= wad.WAD():
		return fmt.Errorf("%w: borrow fee must be in range [0, 1e18)", ErrInvalidConfig)
	case c.Fees.HostFeePercentage > 100:
		return fmt.Errorf("%w: host fee percentage must be in range [0, 100]", ErrInvalidConfig)
	}
	return nil
}

// FeeCalculation selects whether a fee is added on top of an amount or carved
// out of it.
type FeeCalculation int

const (
	// FeeExclusive adds the fee to the amount: fee = rate * amount.
	FeeExclusive FeeCalculation = iota
	// FeeInclusive takes the fee out of the amount: fee = rate/(1+rate) * amount.
	FeeInclusive
)

// CalculateBorrowFees returns the origination fee and the host's share of it.
// Non-zero fees are floored at one unit for the owner plus one for the host
// when a host fee is configured.
func (f ReserveFees) CalculateBorrowFees(amount wad.Decimal, calc FeeCalculation) (borrowFee, hostFee uint64, err error) {
	feeRate := wad.RateFromScaled(f.BorrowFeeWad)
	hostRate := wad.RateFromPercent(f.HostFeePercentage)
	if feeRate.IsZero() || amount.IsZero() {
		return 0, 0, nil
	}

	assessHost := !hostRate.IsZero()
	minimumFee := uint64(1)
	if assessHost {
		minimumFee = 2
	}

	effectiveRate := feeRate
	if calc == FeeInclusive {
		denominator, err := feeRate.TryAdd(wad.RateOne())
		if err != nil {
			return 0, 0, err
		}
		if effectiveRate, err = feeRate.TryDiv(denominator); err != nil {
			return 0, 0, err
		}
	}
	feeAmount, err := amount.TryMulRate(effectiveRate)
	if err != nil {
		return 0, 0, err
	}
	if borrowFee, err = feeAmount.TryRoundUint64(); err != nil {
		return 0, 0, err
	}
	if borrowFee < minimumFee {
		borrowFee = minimumFee
	}

	if assessHost {
		share, err := hostRate.TryMulUint64(borrowFee)
		if err != nil {
			return 0, 0, err
		}
		if hostFee, err = share.TryRoundUint64(); err != nil {
			return 0, 0, err
		}
		if hostFee < 1 {
			hostFee = 1
		}
	}

	if wad.NewDecimal(borrowFee).Cmp(amount) >= 0 {
		return 0, 0, ErrBorrowTooSmall
	}
	return borrowFee, hostFee, nil
}
