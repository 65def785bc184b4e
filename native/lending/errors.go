package lending

import (
	"errors"

	nativecommon "tokenlending/native/common"
	"tokenlending/native/lending/wad"
)

// ErrMathOverflow is shared with the wad package so errors.Is matches failures
// raised by either layer.
var ErrMathOverflow = wad.ErrMathOverflow

var (
	ErrInvalidAccountData          = errors.New("lending: invalid account data")
	ErrUninitializedAccount        = errors.New("lending: account not initialised")
	ErrAlreadyInitialized          = errors.New("lending: account already initialised")
	ErrInvalidMarketAuthority      = errors.New("lending: invalid market authority")
	ErrInvalidMarketOwner          = errors.New("lending: invalid market owner")
	ErrInvalidTokenOwner           = errors.New("lending: invalid token owner")
	ErrInvalidTokenMint            = errors.New("lending: invalid token mint")
	ErrInvalidAmount               = errors.New("lending: amount must be positive")
	ErrInvalidConfig               = errors.New("lending: invalid reserve config")
	ErrInvalidAccountInput         = errors.New("lending: invalid account input")
	ErrNegativeInterestRate        = errors.New("lending: interest rate is negative")
	ErrTokenTransferFailed         = errors.New("lending: token transfer failed")
	ErrTokenMintToFailed           = errors.New("lending: token mint failed")
	ErrTokenBurnFailed             = errors.New("lending: token burn failed")
	ErrDuplicateReserve            = errors.New("lending: reserve already exists")
	ErrInsufficientLiquidity       = errors.New("lending: insufficient liquidity available")
	ErrReserveCollateralDisabled   = errors.New("lending: reserve collateral disabled")
	ErrReserveStale                = errors.New("lending: reserve is stale and must be refreshed")
	ErrWithdrawTooSmall            = errors.New("lending: withdraw amount too small")
	ErrWithdrawTooLarge            = errors.New("lending: withdraw amount too large")
	ErrBorrowTooSmall              = errors.New("lending: borrow amount too small to cover fees")
	ErrBorrowTooLarge              = errors.New("lending: borrow amount too large for deposited collateral")
	ErrRepayTooSmall               = errors.New("lending: repay amount too small to transfer liquidity")
	ErrLiquidationTooSmall         = errors.New("lending: liquidation amount too small to receive collateral")
	ErrObligationHealthy           = errors.New("lending: cannot liquidate healthy obligation")
	ErrObligationStale             = errors.New("lending: obligation is stale and must be refreshed")
	ErrObligationReserveLimit      = errors.New("lending: obligation reserve limit exceeded")
	ErrInvalidObligationOwner      = errors.New("lending: invalid obligation owner")
	ErrInvalidObligationCollateral = errors.New("lending: invalid obligation collateral")
	ErrInvalidObligationLiquidity  = errors.New("lending: invalid obligation liquidity")
	ErrObligationCollateralEmpty   = errors.New("lending: obligation collateral is empty")
	ErrObligationLiquidityEmpty    = errors.New("lending: obligation liquidity is empty")
)

// ErrModulePaused is returned by every engine operation while the lending
// module is paused.
var ErrModulePaused = nativecommon.ErrModulePaused

// errorCodes keeps the numeric custom error codes of the deployed program so
// hosts can report failures in the format clients already decode.
var errorCodes = []struct {
	err  error
	code uint32
}{
	{ErrAlreadyInitialized, 1},
	{ErrInvalidMarketAuthority, 3},
	{ErrInvalidMarketOwner, 4},
	{ErrInvalidTokenOwner, 6},
	{ErrInvalidTokenMint, 7},
	{ErrInvalidAmount, 9},
	{ErrInvalidConfig, 10},
	{ErrInvalidAccountInput, 12},
	{ErrMathOverflow, 13},
	{ErrNegativeInterestRate, 14},
	{ErrTokenTransferFailed, 17},
	{ErrTokenMintToFailed, 18},
	{ErrTokenBurnFailed, 19},
	{ErrDuplicateReserve, 20},
	{ErrInsufficientLiquidity, 22},
	{ErrReserveCollateralDisabled, 23},
	{ErrReserveStale, 24},
	{ErrWithdrawTooSmall, 25},
	{ErrWithdrawTooLarge, 26},
	{ErrBorrowTooSmall, 27},
	{ErrBorrowTooLarge, 28},
	{ErrRepayTooSmall, 29},
	{ErrLiquidationTooSmall, 30},
	{ErrObligationHealthy, 31},
	{ErrObligationStale, 32},
	{ErrObligationReserveLimit, 33},
	{ErrInvalidObligationOwner, 35},
	{ErrInvalidObligationCollateral, 36},
	{ErrInvalidObligationLiquidity, 37},
	{ErrObligationCollateralEmpty, 38},
	{ErrObligationLiquidityEmpty, 39},
}

// ErrorCode maps err onto the program's numeric custom error code. The
// boolean is false when err has no custom code, which includes the
// account-level failures ErrInvalidAccountData and ErrUninitializedAccount.
func ErrorCode(err error) (uint32, bool) {
	if err == nil {
		return 0, false
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code, true
		}
	}
	return 0, false
}
