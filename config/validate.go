package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"tokenlending/native/lending/wad"
)

var wadExponent = int32(18)

// ParseBorrowFee converts a fractional fee such as "0.001" into the wad
// scaled integer stored in lending.ReserveFees. An empty string means no fee.
func ParseBorrowFee(value string) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	fee, err := wad.ParseDecimal(value)
	if err != nil {
		return 0, fmt.Errorf("borrow fee: %w", err)
	}
	if fee.Cmp(wad.DecimalOne()) >= 0 {
		return 0, fmt.Errorf("borrow fee %q must be in range [0, 1)", value)
	}
	// ParseDecimal truncates past wad precision; a fee must be exact.
	if !decimal.RequireFromString(value).Equal(decimal.NewFromBigInt(fee.Scaled().ToBig(), -wadExponent)) {
		return 0, fmt.Errorf("borrow fee %q has more than %d decimal places", value, wadExponent)
	}
	return fee.Scaled().Uint64(), nil
}

// FormatBorrowFee renders a wad scaled fee back into its fractional form.
func FormatBorrowFee(feeWad uint64) string {
	return decimal.NewFromUint64(feeWad).Shift(-wadExponent).String()
}

// ParseLogLevel maps a configured level name onto slog.
func ParseLogLevel(level string) (slog.Level, error) {
	var out slog.Level
	if err := out.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging: %w", err)
	}
	return out, nil
}

// Validate checks the values Load cannot default.
func (c *Config) Validate() error {
	if c.ProgramID.IsZero() {
		return fmt.Errorf("ProgramID must be set")
	}
	if _, err := c.Quote(); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	for _, module := range c.PausedModules {
		if strings.TrimSpace(module) == "" {
			return fmt.Errorf("PausedModules must not contain blank names")
		}
	}
	if _, err := c.ReserveDefaults.ReserveConfig(); err != nil {
		return fmt.Errorf("ReserveDefaults: %w", err)
	}
	for _, symbol := range c.ReserveSymbols() {
		if _, err := c.Reserve(symbol); err != nil {
			return err
		}
	}
	return nil
}
