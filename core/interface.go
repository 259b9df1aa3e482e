// Package core defines the types shared by on-chain programs and the host
// runtime that invokes them. A program only needs this package to be written.
package core

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// PubkeySize is the length of an account or program address in bytes.
const PubkeySize = 32

// Pubkey identifies an account or a program
type Pubkey [PubkeySize]byte

// Hash is a sha256 digest, used for transaction signatures
type Hash [32]byte

var ZeroPubkey = Pubkey{}

func (k Pubkey) String() string {
	return base58.Encode(k[:])
}

// PubkeyFromString parses a base58 encoded address.
func PubkeyFromString(str string) (Pubkey, error) {
	var key Pubkey
	raw := base58.Decode(str)
	if len(raw) != PubkeySize {
		return key, fmt.Errorf("invalid pubkey %q: decoded %d bytes", str, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// MustPubkey is PubkeyFromString for constants, panics on bad input.
func MustPubkey(str string) Pubkey {
	key, err := PubkeyFromString(str)
	if err != nil {
		panic(err)
	}
	return key
}

func (h Hash) String() string {
	return base58.Encode(h[:])
}

// HashFromString parses a base58 encoded hash.
func HashFromString(str string) (Hash, error) {
	key, err := PubkeyFromString(str)
	return Hash(key), err
}

// AccountInfo is the view of one account handed to a program for the
// duration of a single invocation.
//
// Data is borrowed from the host: a program mutates it in place and must
// never replace the slice. The host decides after the invocation returns
// whether the mutation is kept.
type AccountInfo struct {
	Key        Pubkey
	Owner      Pubkey
	Lamports   uint64
	Data       []byte
	IsSigner   bool
	IsWritable bool
	Executable bool
}

// Entrypoint is the fixed calling convention of a program.
type Entrypoint func(programID Pubkey, accounts []*AccountInfo, data []byte) error

// NextAccountInfo pops the next account off the iterator slice.
func NextAccountInfo(accounts *[]*AccountInfo) (*AccountInfo, error) {
	if len(*accounts) == 0 {
		return nil, ErrMissingAccount
	}
	acct := (*accounts)[0]
	*accounts = (*accounts)[1:]
	return acct, nil
}
