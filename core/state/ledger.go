package state

import (
	"errors"
	"fmt"

	"tokenlending/crypto"
	"tokenlending/native/lending"
)

var (
	ErrInsufficientFunds   = errors.New("ledger: insufficient funds")
	ErrUnknownTokenAccount = errors.New("ledger: unknown token account")
	ErrUnknownMint         = errors.New("ledger: unknown mint")
	ErrSupplyOverflow      = errors.New("ledger: supply overflow")
	ErrAccountExists       = errors.New("ledger: account already exists")
)

// MintRecord is the persisted form of a token mint.
type MintRecord struct {
	Decimals uint8
	Supply   uint64
}

// TokenAccountRecord is the persisted form of a token account.
type TokenAccountRecord struct {
	Mint   crypto.Pubkey
	Owner  crypto.Pubkey
	Amount uint64
}

// Ledger is a reference fungible token ledger kept in state. It implements
// the lending engine's TokenLedger.
type Ledger struct {
	state *Manager
}

// NewLedger returns a ledger backed by m.
func NewLedger(m *Manager) *Ledger {
	return &Ledger{state: m}
}

func (l *Ledger) mint(key crypto.Pubkey) (*MintRecord, error) {
	record := new(MintRecord)
	ok, err := l.state.getRLP(prefixedKey(mintPrefix, key), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMint, key)
	}
	return record, nil
}

func (l *Ledger) account(key crypto.Pubkey) (*TokenAccountRecord, error) {
	record := new(TokenAccountRecord)
	ok, err := l.state.getRLP(prefixedKey(tokenAccountPrefix, key), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTokenAccount, key)
	}
	return record, nil
}

// CreateMint registers a new mint with zero supply.
func (l *Ledger) CreateMint(key crypto.Pubkey, decimals uint8) error {
	if _, err := l.mint(key); err == nil {
		return fmt.Errorf("%w: mint %s", ErrAccountExists, key)
	} else if !errors.Is(err, ErrUnknownMint) {
		return err
	}
	return l.state.putRLP(prefixedKey(mintPrefix, key), &MintRecord{Decimals: decimals})
}

// MintInfo returns the stored mint.
func (l *Ledger) MintInfo(key crypto.Pubkey) (*MintRecord, error) {
	return l.mint(key)
}

// CreateAccount opens an empty token account for mint owned by owner.
func (l *Ledger) CreateAccount(key, mint, owner crypto.Pubkey) error {
	if _, err := l.mint(mint); err != nil {
		return err
	}
	if _, err := l.account(key); err == nil {
		return fmt.Errorf("%w: token account %s", ErrAccountExists, key)
	} else if !errors.Is(err, ErrUnknownTokenAccount) {
		return err
	}
	return l.state.putRLP(prefixedKey(tokenAccountPrefix, key), &TokenAccountRecord{Mint: mint, Owner: owner})
}

// Account returns the stored token account.
func (l *Ledger) Account(key crypto.Pubkey) (*TokenAccountRecord, error) {
	return l.account(key)
}

// Balance returns the amount held by a token account.
func (l *Ledger) Balance(key crypto.Pubkey) (uint64, error) {
	record, err := l.account(key)
	if err != nil {
		return 0, err
	}
	return record.Amount, nil
}

// TokenAccount implements lending.TokenLedger.
func (l *Ledger) TokenAccount(key crypto.Pubkey) (lending.TokenAccountInfo, error) {
	record, err := l.account(key)
	if err != nil {
		return lending.TokenAccountInfo{}, err
	}
	return lending.TokenAccountInfo{Mint: record.Mint, Owner: record.Owner, Amount: record.Amount}, nil
}

func (l *Ledger) Debit(key crypto.Pubkey, amount uint64) error {
	record, err := l.account(key)
	if err != nil {
		return err
	}
	if record.Amount < amount {
		return fmt.Errorf("%w: %s holds %d, need %d", ErrInsufficientFunds, key, record.Amount, amount)
	}
	record.Amount -= amount
	return l.state.putRLP(prefixedKey(tokenAccountPrefix, key), record)
}

func (l *Ledger) Credit(key crypto.Pubkey, amount uint64) error {
	record, err := l.account(key)
	if err != nil {
		return err
	}
	if record.Amount+amount < record.Amount {
		return fmt.Errorf("%w: crediting %s", ErrSupplyOverflow, key)
	}
	record.Amount += amount
	return l.state.putRLP(prefixedKey(tokenAccountPrefix, key), record)
}

// Mint creates amount new tokens in account and grows the mint's supply.
func (l *Ledger) Mint(key crypto.Pubkey, amount uint64) error {
	record, err := l.account(key)
	if err != nil {
		return err
	}
	mint, err := l.mint(record.Mint)
	if err != nil {
		return err
	}
	if mint.Supply+amount < mint.Supply {
		return fmt.Errorf("%w: mint %s", ErrSupplyOverflow, record.Mint)
	}
	mint.Supply += amount
	if err := l.Credit(key, amount); err != nil {
		return err
	}
	return l.state.putRLP(prefixedKey(mintPrefix, record.Mint), mint)
}

// Burn destroys amount tokens held by account and shrinks the mint's supply.
func (l *Ledger) Burn(key crypto.Pubkey, amount uint64) error {
	record, err := l.account(key)
	if err != nil {
		return err
	}
	mint, err := l.mint(record.Mint)
	if err != nil {
		return err
	}
	if mint.Supply < amount {
		return fmt.Errorf("%w: burning %d of %d supply", ErrInsufficientFunds, amount, mint.Supply)
	}
	if err := l.Debit(key, amount); err != nil {
		return err
	}
	mint.Supply -= amount
	return l.state.putRLP(prefixedKey(mintPrefix, record.Mint), mint)
}
