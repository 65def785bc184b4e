package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tokenlending/crypto"
	"tokenlending/storage"
)

func TestLedgerMintTransferBurn(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	ledger := NewLedger(mgr)
	mint := crypto.PubkeyFromSeed("usdc")
	alice := crypto.PubkeyFromSeed("alice-usdc")
	bob := crypto.PubkeyFromSeed("bob-usdc")

	require.NoError(t, ledger.CreateMint(mint, 6))
	require.ErrorIs(t, ledger.CreateMint(mint, 6), ErrAccountExists)
	require.ErrorIs(t, ledger.CreateAccount(alice, crypto.PubkeyFromSeed("nope"), alice), ErrUnknownMint)
	require.NoError(t, ledger.CreateAccount(alice, mint, crypto.PubkeyFromSeed("alice")))
	require.NoError(t, ledger.CreateAccount(bob, mint, crypto.PubkeyFromSeed("bob")))
	require.ErrorIs(t, ledger.CreateAccount(bob, mint, bob), ErrAccountExists)

	require.NoError(t, ledger.Mint(alice, 1_000))
	info, err := ledger.MintInfo(mint)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), info.Supply)
	require.Equal(t, uint8(6), info.Decimals)

	require.NoError(t, ledger.Debit(alice, 400))
	require.NoError(t, ledger.Credit(bob, 400))
	require.ErrorIs(t, ledger.Debit(alice, 601), ErrInsufficientFunds)

	balance, err := ledger.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(600), balance)

	account, err := ledger.TokenAccount(bob)
	require.NoError(t, err)
	require.Equal(t, mint, account.Mint)
	require.Equal(t, crypto.PubkeyFromSeed("bob"), account.Owner)
	require.Equal(t, uint64(400), account.Amount)

	require.NoError(t, ledger.Burn(bob, 100))
	info, err = ledger.MintInfo(mint)
	require.NoError(t, err)
	require.Equal(t, uint64(900), info.Supply)

	require.ErrorIs(t, ledger.Credit(alice, ^uint64(0)), ErrSupplyOverflow)
	_, err = ledger.Balance(crypto.PubkeyFromSeed("ghost"))
	require.ErrorIs(t, err, ErrUnknownTokenAccount)
}

func TestLedgerDiscardRollsBack(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	ledger := NewLedger(mgr)
	mint := crypto.PubkeyFromSeed("sol")
	account := crypto.PubkeyFromSeed("sol-account")
	require.NoError(t, ledger.CreateMint(mint, 9))
	require.NoError(t, ledger.CreateAccount(account, mint, account))
	require.NoError(t, ledger.Mint(account, 50))
	require.NoError(t, mgr.Commit())

	require.NoError(t, ledger.Debit(account, 50))
	mgr.Discard()
	balance, err := NewLedger(NewManager(db)).Balance(account)
	require.NoError(t, err)
	require.Equal(t, uint64(50), balance)
}

func TestPriceFeed(t *testing.T) {
	feed := NewPriceFeed(NewManager(storage.NewMemDB()))
	aggregator := crypto.PubkeyFromSeed("sol-usd")
	_, err := feed.MedianPrice(aggregator)
	require.ErrorIs(t, err, ErrNoPrice)
	require.Error(t, feed.SetPrice(aggregator, 0, 1))
	require.NoError(t, feed.SetPrice(aggregator, 23_000, 7))
	price, err := feed.MedianPrice(aggregator)
	require.NoError(t, err)
	require.Equal(t, uint64(23_000), price)
	record, err := feed.Latest(aggregator)
	require.NoError(t, err)
	require.Equal(t, uint64(7), record.Slot)
}
