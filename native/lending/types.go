package lending

import (
	"fmt"
	"math"

	"tokenlending/crypto"
)

// LastUpdate records when an account's derived values were last refreshed.
type LastUpdate struct {
	// Slot is the slot of the last refresh.
	Slot uint64
	// Stale is set when a mutation invalidated the refreshed values before
	// the slot advanced.
	Stale bool
}

// NewLastUpdate returns a stale marker for slot.
func NewLastUpdate(slot uint64) LastUpdate {
	return LastUpdate{Slot: slot, Stale: true}
}

// SlotsElapsed returns the number of slots since the last refresh. It fails
// when current is behind the recorded slot.
func (u LastUpdate) SlotsElapsed(current uint64) (uint64, error) {
	if current < u.Slot {
		return 0, fmt.Errorf("last update slot %d ahead of clock %d: %w", u.Slot, current, ErrMathOverflow)
	}
	return current - u.Slot, nil
}

// UpdateSlot records a refresh at slot and clears the stale flag.
func (u *LastUpdate) UpdateSlot(slot uint64) {
	u.Slot = slot
	u.Stale = false
}

// MarkStale forces the next operation to refresh first.
func (u *LastUpdate) MarkStale() { u.Stale = true }

// IsStale reports whether the refreshed values can no longer be trusted at
// slot current.
func (u LastUpdate) IsStale(current uint64) (bool, error) {
	elapsed, err := u.SlotsElapsed(current)
	if err != nil {
		return false, err
	}
	return u.Stale || elapsed >= StaleAfterSlotsElapsed, nil
}

// Amount is a requested token quantity: either an exact number of base units
// or everything that is permitted.
type Amount struct {
	value uint64
	all   bool
}

// ExactAmount requests precisely n base units.
func ExactAmount(n uint64) Amount { return Amount{value: n} }

// AllAmount requests as much as the operation allows.
func AllAmount() Amount { return Amount{all: true} }

// AmountFromWire decodes the instruction encoding, where math.MaxUint64 means
// "all".
func AmountFromWire(n uint64) Amount {
	if n == math.MaxUint64 {
		return AllAmount()
	}
	return ExactAmount(n)
}

// IsAll reports whether the amount requests the maximum.
func (a Amount) IsAll() bool { return a.all }

// Value returns the exact quantity. It is zero for AllAmount.
func (a Amount) Value() uint64 { return a.value }

// Wire encodes the amount for instruction data.
func (a Amount) Wire() uint64 {
	if a.all {
		return math.MaxUint64
	}
	return a.value
}

// IsZero reports whether an exact amount of zero was requested.
func (a Amount) IsZero() bool { return !a.all && a.value == 0 }

func (a Amount) String() string {
	if a.all {
		return "all"
	}
	return fmt.Sprintf("%d", a.value)
}

// LendingMarket groups reserves that share an owner and quote currency.
type LendingMarket struct {
	Version uint8
	// BumpSeed reproduces the market authority derived from the market key.
	BumpSeed uint8
	Owner    crypto.Pubkey
	// QuoteCurrency identifies the currency reserve prices are quoted in.
	QuoteCurrency   [32]byte
	TokenProgramID  crypto.Pubkey
	OracleProgramID crypto.Pubkey
}

// IsInitialized reports whether the market has been written by InitLendingMarket.
func (m *LendingMarket) IsInitialized() bool {
	return m != nil && m.Version != UninitializedVersion
}

// QuoteCurrencyFromString left-aligns a short currency code such as "USD" in
// the 32-byte quote currency field.
func QuoteCurrencyFromString(code string) ([32]byte, error) {
	var out [32]byte
	if code == "" || len(code) > len(out) {
		return out, fmt.Errorf("%w: quote currency %q", ErrInvalidConfig, code)
	}
	copy(out[:], code)
	return out, nil
}
