// Package memory is an in-process account store, used by tests and by the
// engine when no persistence is configured.
package memory

import (
	"fmt"
	"sync"

	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/store"
	"github.com/govm-net/counter/types"
)

type memoryStore struct {
	mu       sync.Mutex
	accounts map[core.Pubkey]*types.Account
	records  []types.TransactionRecord
	slot     uint64
}

func init() {
	if err := store.Register(store.MemoryStoreType, NewStore); err != nil {
		panic(err)
	}
}

// NewStore creates an empty memory store; params are ignored.
func NewStore(params map[string]any) (types.AccountStore, error) {
	return &memoryStore{
		accounts: make(map[core.Pubkey]*types.Account),
		slot:     1,
	}, nil
}

func (s *memoryStore) GetAccount(key core.Pubkey) (*types.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrAccountNotFound, key)
	}
	return acct.Clone(), nil
}

func (s *memoryStore) CreateAccount(acct *types.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.Key]; ok {
		return fmt.Errorf("%w: %s", types.ErrAccountExists, acct.Key)
	}
	s.accounts[acct.Key] = acct.Clone()
	return nil
}

func (s *memoryStore) Commit(accounts []*types.Account, record *types.TransactionRecord) error {
	if record == nil {
		return store.ErrNilRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// validate before touching anything so a failed commit leaves no trace
	for _, acct := range accounts {
		if _, ok := s.accounts[acct.Key]; !ok {
			return fmt.Errorf("%w: %s", types.ErrAccountNotFound, acct.Key)
		}
	}
	for _, acct := range accounts {
		s.accounts[acct.Key] = acct.Clone()
	}
	record.Slot = s.slot
	rec := *record
	rec.Data = append([]byte(nil), record.Data...)
	s.records = append(s.records, rec)
	s.slot++
	return nil
}

func (s *memoryStore) Slot() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot
}

func (s *memoryStore) Transactions(limit int) ([]types.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TransactionRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *memoryStore) Close() error {
	return nil
}
