package crypto

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"lukechampine.com/blake3"
)

// PubkeyLength is the byte width of an account identity.
const PubkeyLength = 32

const (
	// MaxSeeds bounds the number of seeds accepted by CreateProgramAddress.
	MaxSeeds = 16
	// MaxSeedLength bounds the length of a single seed.
	MaxSeedLength = 32
)

var (
	ErrInvalidPubkey    = errors.New("crypto: invalid pubkey")
	ErrMaxSeedLength    = errors.New("crypto: seed too long")
	ErrNoViableBumpSeed = errors.New("crypto: unable to find a viable program address bump seed")
)

var programDerivedMarker = []byte("ProgramDerivedAddress")

// Pubkey identifies an account. It renders as base58.
type Pubkey [PubkeyLength]byte

// NewPubkey copies b into a Pubkey. b must be exactly 32 bytes long.
func NewPubkey(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeyLength {
		return pk, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPubkey, PubkeyLength, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// PubkeyFromSeed deterministically derives a key from a label. Operators use it
// to name accounts in local deployments and scripted scenarios.
func PubkeyFromSeed(label string) Pubkey {
	var pk Pubkey
	copy(pk[:], ethcrypto.Keccak256([]byte(label)))
	return pk
}

// DecodePubkey parses a base58 encoded key.
func DecodePubkey(s string) (Pubkey, error) {
	decoded := base58.Decode(s)
	if len(decoded) == 0 && s != "" {
		return Pubkey{}, fmt.Errorf("%w: %q is not base58", ErrInvalidPubkey, s)
	}
	return NewPubkey(decoded)
}

func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

func (p Pubkey) Bytes() []byte {
	return append([]byte(nil), p[:]...)
}

// IsZero reports whether every byte of the key is zero.
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

func (p Pubkey) Equal(other Pubkey) bool {
	return bytes.Equal(p[:], other[:])
}

// MarshalText implements encoding.TextMarshaler so keys render as base58 in
// YAML, TOML and JSON documents.
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	decoded, err := DecodePubkey(string(text))
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}

// CreateProgramAddress hashes the seeds together with the program identity.
// Derived addresses have no private key; the program signs for them by
// presenting the same seeds.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return Pubkey{}, ErrMaxSeedLength
	}
	hasher := blake3.New(PubkeyLength, nil)
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Pubkey{}, ErrMaxSeedLength
		}
		hasher.Write(seed)
	}
	hasher.Write(programID[:])
	hasher.Write(programDerivedMarker)
	var out Pubkey
	copy(out[:], hasher.Sum(nil))
	return out, nil
}

// FindProgramAddress searches bump seeds from 255 downwards and returns the
// first derived address together with the bump that produced it. The search
// skips derivations whose first byte is 0xff so that a persisted bump always
// reproduces the same address.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err != nil {
			return Pubkey{}, 0, err
		}
		if addr[0] != 0xff {
			return addr, uint8(bump), nil
		}
	}
	return Pubkey{}, 0, ErrNoViableBumpSeed
}
