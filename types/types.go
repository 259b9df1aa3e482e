// Package types contains the host-side records shared by the engine and
// the account store backends.
package types

import (
	"encoding/binary"
	"errors"

	"github.com/govm-net/counter/core"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// Account is the persisted form of an account
type Account struct {
	Key        core.Pubkey
	Owner      core.Pubkey
	Lamports   uint64
	Data       []byte
	Executable bool
}

// Clone returns a deep copy, so callers never share Data with the store.
func (a *Account) Clone() *Account {
	out := *a
	out.Data = append([]byte(nil), a.Data...)
	return &out
}

// AccountMeta references an account from a transaction
type AccountMeta struct {
	Key        core.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Transaction carries one instruction for one program.
type Transaction struct {
	ProgramID core.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// Signature identifies the transaction when executed at slot.
func (tx *Transaction) Signature(slot uint64) core.Hash {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], slot)
	parts := [][]byte{buf[:], tx.ProgramID[:]}
	for _, m := range tx.Accounts {
		flags := byte(0)
		if m.IsSigner {
			flags |= 1
		}
		if m.IsWritable {
			flags |= 2
		}
		parts = append(parts, m.Key[:], []byte{flags})
	}
	parts = append(parts, tx.Data)
	return core.GetHash(parts...)
}

// TransactionRecord is the outcome of one executed transaction
type TransactionRecord struct {
	Signature    core.Hash
	Slot         uint64
	ProgramID    core.Pubkey
	Data         []byte
	Success      bool
	ErrorCode    uint32
	Error        string
	ComputeUnits uint64
}

// AccountStore persists accounts and transaction history.
type AccountStore interface {
	// GetAccount returns a copy of the stored account or ErrAccountNotFound
	GetAccount(key core.Pubkey) (*Account, error)
	// CreateAccount stores a new account, ErrAccountExists if the key is taken
	CreateAccount(acct *Account) error
	// Commit writes the accounts and appends the record atomically. The
	// record's Slot is assigned by the store.
	Commit(accounts []*Account, record *TransactionRecord) error
	// Slot returns the slot the next committed transaction will get
	Slot() uint64
	// Transactions returns up to limit most recent records, newest first
	Transactions(limit int) ([]TransactionRecord, error)
	Close() error
}
