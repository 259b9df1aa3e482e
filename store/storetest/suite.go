// Package storetest holds the behaviour every AccountStore backend must
// share. Backends call Run from their own tests.
package storetest

import (
	"testing"

	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/store"
	"github.com/govm-net/counter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opener returns a fresh, empty store. The test owns closing it.
type Opener func(t *testing.T) types.AccountStore

// Run executes the shared suite against the backend.
func Run(t *testing.T, open Opener) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, open(t)) })
	t.Run("commit", func(t *testing.T) { testCommit(t, open(t)) })
	t.Run("commit unknown account", func(t *testing.T) { testCommitUnknown(t, open(t)) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, open(t)) })
}

func account(seed string, data []byte) *types.Account {
	return &types.Account{
		Key:      core.PubkeyFromHash([]byte(seed)),
		Owner:    core.PubkeyFromHash([]byte("owner")),
		Lamports: 100,
		Data:     data,
	}
}

func testAccounts(t *testing.T, s types.AccountStore) {
	defer s.Close()

	a := account("a", []byte{1, 2, 3, 4})
	_, err := s.GetAccount(a.Key)
	assert.ErrorIs(t, err, types.ErrAccountNotFound)

	require.NoError(t, s.CreateAccount(a))
	assert.ErrorIs(t, s.CreateAccount(a), types.ErrAccountExists)

	got, err := s.GetAccount(a.Key)
	require.NoError(t, err)
	assert.Equal(t, a.Key, got.Key)
	assert.Equal(t, a.Owner, got.Owner)
	assert.Equal(t, a.Lamports, got.Lamports)
	assert.Equal(t, a.Data, got.Data)
	assert.False(t, got.Executable)

	// returned accounts are copies
	got.Data[0] = 0xff
	again, err := s.GetAccount(a.Key)
	require.NoError(t, err)
	assert.Equal(t, byte(1), again.Data[0])

	empty := account("empty", nil)
	require.NoError(t, s.CreateAccount(empty))
	got, err = s.GetAccount(empty.Key)
	require.NoError(t, err)
	assert.Len(t, got.Data, 0)
}

func testCommit(t *testing.T, s types.AccountStore) {
	defer s.Close()

	a := account("a", []byte{0, 0, 0, 0})
	require.NoError(t, s.CreateAccount(a))
	slot := s.Slot()

	updated := a.Clone()
	updated.Data = []byte{5, 0, 0, 0}
	rec := &types.TransactionRecord{
		Signature: core.GetHash([]byte("tx1")),
		ProgramID: a.Owner,
		Data:      []byte{0, 5, 0, 0, 0},
		Success:   true,
	}
	require.NoError(t, s.Commit([]*types.Account{updated}, rec))
	assert.Equal(t, slot, rec.Slot)
	assert.Equal(t, slot+1, s.Slot())

	got, err := s.GetAccount(a.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 0, 0, 0}, got.Data)

	// a record without account writes still advances the slot
	failed := &types.TransactionRecord{Signature: core.GetHash([]byte("tx2")), ErrorCode: core.CodeCorruptState, Error: "corrupt"}
	require.NoError(t, s.Commit(nil, failed))
	assert.Equal(t, slot+1, failed.Slot)
	assert.Equal(t, slot+2, s.Slot())

	assert.ErrorIs(t, s.Commit([]*types.Account{updated}, nil), store.ErrNilRecord)
	assert.Equal(t, slot+2, s.Slot())
}

func testCommitUnknown(t *testing.T, s types.AccountStore) {
	defer s.Close()

	a := account("a", []byte{1, 0, 0, 0})
	require.NoError(t, s.CreateAccount(a))
	slot := s.Slot()

	changed := a.Clone()
	changed.Data = []byte{2, 0, 0, 0}
	ghost := account("ghost", []byte{9})
	err := s.Commit([]*types.Account{changed, ghost}, &types.TransactionRecord{Signature: core.GetHash([]byte("tx"))})
	assert.ErrorIs(t, err, types.ErrAccountNotFound)

	got, err := s.GetAccount(a.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 0}, got.Data)
	assert.Equal(t, slot, s.Slot())

	txs, err := s.Transactions(10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func testTransactions(t *testing.T, s types.AccountStore) {
	defer s.Close()

	for i := 0; i < 5; i++ {
		rec := &types.TransactionRecord{
			Signature:    core.GetHash([]byte{byte(i)}),
			ProgramID:    core.PubkeyFromHash([]byte("program")),
			Data:         []byte{byte(i)},
			Success:      i%2 == 0,
			ErrorCode:    uint32(i % 2),
			ComputeUnits: uint64(100 + i),
		}
		if !rec.Success {
			rec.Error = "failed"
		}
		require.NoError(t, s.Commit(nil, rec))
	}

	txs, err := s.Transactions(3)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, core.GetHash([]byte{4}), txs[0].Signature)
	assert.Equal(t, core.GetHash([]byte{2}), txs[2].Signature)
	assert.True(t, txs[0].Success)
	assert.False(t, txs[1].Success)
	assert.Equal(t, "failed", txs[1].Error)
	assert.Equal(t, uint32(1), txs[1].ErrorCode)
	assert.Equal(t, uint64(104), txs[0].ComputeUnits)
	assert.Equal(t, []byte{4}, txs[0].Data)
	assert.Greater(t, txs[0].Slot, txs[1].Slot)

	all, err := s.Transactions(100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
