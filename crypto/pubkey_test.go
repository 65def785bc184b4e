package crypto

import (
	"errors"
	"testing"
)

func TestPubkeyBase58RoundTrip(t *testing.T) {
	pk := PubkeyFromSeed("reserve-usdc")
	decoded, err := DecodePubkey(pk.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != pk {
		t.Fatalf("round trip mismatch: %s vs %s", decoded, pk)
	}
	if pk.IsZero() {
		t.Fatalf("seeded key should not be zero")
	}
}

func TestDecodePubkeyRejectsBadInput(t *testing.T) {
	if _, err := DecodePubkey("0OIl"); !errors.Is(err, ErrInvalidPubkey) {
		t.Fatalf("expected invalid pubkey for non-base58 input, got %v", err)
	}
	if _, err := DecodePubkey("3mJr7AoUXx2Wqd"); !errors.Is(err, ErrInvalidPubkey) {
		t.Fatalf("expected invalid pubkey for short input, got %v", err)
	}
}

func TestPubkeyTextMarshalling(t *testing.T) {
	pk := PubkeyFromSeed("owner")
	text, err := pk.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Pubkey
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(pk) {
		t.Fatalf("expected %s, got %s", pk, back)
	}
}

func TestFindProgramAddressDeterministic(t *testing.T) {
	program := PubkeyFromSeed("program")
	market := PubkeyFromSeed("market")

	addr, bump, err := FindProgramAddress([][]byte{market[:]}, program)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	again, bumpAgain, err := FindProgramAddress([][]byte{market[:]}, program)
	if err != nil {
		t.Fatalf("find again: %v", err)
	}
	if addr != again || bump != bumpAgain {
		t.Fatalf("derivation not deterministic")
	}
	recreated, err := CreateProgramAddress([][]byte{market[:], {bump}}, program)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if recreated != addr {
		t.Fatalf("persisted bump does not reproduce the address")
	}

	other, _, err := FindProgramAddress([][]byte{market[:]}, PubkeyFromSeed("other-program"))
	if err != nil {
		t.Fatalf("find other: %v", err)
	}
	if other == addr {
		t.Fatalf("different programs must derive different addresses")
	}
}

func TestCreateProgramAddressSeedLimits(t *testing.T) {
	long := make([]byte, MaxSeedLength+1)
	if _, err := CreateProgramAddress([][]byte{long}, Pubkey{}); !errors.Is(err, ErrMaxSeedLength) {
		t.Fatalf("expected seed length error, got %v", err)
	}
}
