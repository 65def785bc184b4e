package lending

const (
	// UninitializedVersion marks an account that has never been written.
	UninitializedVersion uint8 = 0
	// ProgramVersion is stamped on every account the engine initialises.
	ProgramVersion uint8 = 1
)

const (
	// SlotsPerYear converts annual rates into per-slot rates.
	SlotsPerYear uint64 = 63_072_000
	// StaleAfterSlotsElapsed is the number of slots after which refreshed
	// values are no longer trusted.
	StaleAfterSlotsElapsed uint64 = 1
	// InitialCollateralRatio is the collateral minted per unit of liquidity
	// while a reserve has no supply.
	InitialCollateralRatio uint64 = 5
	// LiquidationCloseFactor is the share of a borrow, in percent, that a
	// single liquidation may repay.
	LiquidationCloseFactor uint8 = 50
	// LiquidationCloseAmount is the borrowed amount below which a position is
	// closed out in full.
	LiquidationCloseAmount uint64 = 2
	// MaxObligationReserves caps deposits plus borrows on one obligation.
	MaxObligationReserves = 10
)

const moduleName = "lending"
