// Package kv is an account store on a pebble key/value database. Values are
// borsh encoded.
package kv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/store"
	"github.com/govm-net/counter/types"
	"github.com/near/borsh-go"
)

const defaultDir = "./counter-kv"

const (
	accountPrefix     = 'a'
	transactionPrefix = 't'
)

var slotKey = []byte("m/slot")

type accountRecord struct {
	Owner      [32]byte
	Lamports   uint64
	Data       []byte
	Executable bool
}

type transactionRecord struct {
	Signature    [32]byte
	ProgramID    [32]byte
	Data         []byte
	Success      bool
	ErrorCode    uint32
	Error        string
	ComputeUnits uint64
}

// Store implements types.AccountStore on pebble
type Store struct {
	// writers are serialized so existence checks and the batch that
	// follows them see the same state
	mu sync.Mutex
	db *pebble.DB
}

func init() {
	if err := store.Register(store.KVStoreType, NewStore); err != nil {
		panic(err)
	}
}

// NewStore opens the pebble database in the "dir" param.
func NewStore(params map[string]any) (types.AccountStore, error) {
	dir := store.StringParam(params, "dir", defaultDir)
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func accountKey(key core.Pubkey) []byte {
	return append([]byte{accountPrefix, '/'}, key[:]...)
}

func transactionKey(slot uint64) []byte {
	out := make([]byte, 2+8)
	out[0], out[1] = transactionPrefix, '/'
	binary.BigEndian.PutUint64(out[2:], slot)
	return out
}

// get returns a copy of the value, or nil with pebble.ErrNotFound.
func (s *Store) get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), value...), nil
}

func (s *Store) GetAccount(key core.Pubkey) (*types.Account, error) {
	raw, err := s.get(accountKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", types.ErrAccountNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	var rec accountRecord
	if err := borsh.Deserialize(&rec, raw); err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", key, err)
	}
	return &types.Account{
		Key:        key,
		Owner:      rec.Owner,
		Lamports:   rec.Lamports,
		Data:       rec.Data,
		Executable: rec.Executable,
	}, nil
}

func encodeAccount(acct *types.Account) ([]byte, error) {
	data := acct.Data
	if data == nil {
		data = []byte{}
	}
	return borsh.Serialize(accountRecord{
		Owner:      acct.Owner,
		Lamports:   acct.Lamports,
		Data:       data,
		Executable: acct.Executable,
	})
}

func (s *Store) exists(key []byte) (bool, error) {
	_, err := s.get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) CreateAccount(acct *types.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey(acct.Key)
	found, err := s.exists(key)
	if err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if found {
		return fmt.Errorf("%w: %s", types.ErrAccountExists, acct.Key)
	}
	raw, err := encodeAccount(acct)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}
	return s.db.Set(key, raw, pebble.Sync)
}

func (s *Store) Commit(accounts []*types.Account, record *types.TransactionRecord) error {
	if record == nil {
		return store.ErrNilRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, acct := range accounts {
		key := accountKey(acct.Key)
		found, err := s.exists(key)
		if err != nil {
			return fmt.Errorf("failed to check account: %w", err)
		}
		if !found {
			return fmt.Errorf("%w: %s", types.ErrAccountNotFound, acct.Key)
		}
		raw, err := encodeAccount(acct)
		if err != nil {
			return fmt.Errorf("failed to encode account: %w", err)
		}
		if err := batch.Set(key, raw, nil); err != nil {
			return err
		}
	}

	slot, err := s.nextSlot()
	if err != nil {
		return err
	}
	data := record.Data
	if data == nil {
		data = []byte{}
	}
	raw, err := borsh.Serialize(transactionRecord{
		Signature:    record.Signature,
		ProgramID:    record.ProgramID,
		Data:         data,
		Success:      record.Success,
		ErrorCode:    record.ErrorCode,
		Error:        record.Error,
		ComputeUnits: record.ComputeUnits,
	})
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}
	if err := batch.Set(transactionKey(slot), raw, nil); err != nil {
		return err
	}
	var next [8]byte
	binary.BigEndian.PutUint64(next[:], slot+1)
	if err := batch.Set(slotKey, next[:], nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	record.Slot = slot
	return nil
}

func (s *Store) nextSlot() (uint64, error) {
	raw, err := s.get(slotKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read slot: %w", err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupt slot value of %d bytes", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (s *Store) Slot() uint64 {
	slot, err := s.nextSlot()
	if err != nil {
		return 0
	}
	return slot
}

func (s *Store) Transactions(limit int) ([]types.TransactionRecord, error) {
	next, err := s.nextSlot()
	if err != nil {
		return nil, err
	}
	out := make([]types.TransactionRecord, 0, limit)
	for slot := next - 1; slot > 0 && len(out) < limit; slot-- {
		raw, err := s.get(transactionKey(slot))
		if err != nil {
			return nil, fmt.Errorf("failed to read transaction at slot %d: %w", slot, err)
		}
		var rec transactionRecord
		if err := borsh.Deserialize(&rec, raw); err != nil {
			return nil, fmt.Errorf("failed to decode transaction at slot %d: %w", slot, err)
		}
		out = append(out, types.TransactionRecord{
			Signature:    rec.Signature,
			Slot:         slot,
			ProgramID:    rec.ProgramID,
			Data:         rec.Data,
			Success:      rec.Success,
			ErrorCode:    rec.ErrorCode,
			Error:        rec.Error,
			ComputeUnits: rec.ComputeUnits,
		})
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
