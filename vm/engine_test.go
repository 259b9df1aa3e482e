package vm

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/meter"
	"github.com/govm-net/counter/program/counter"
	"github.com/govm-net/counter/store"
	"github.com/govm-net/counter/types"
	"github.com/govm-net/counter/wasm"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var counterKey = core.PubkeyFromHash([]byte("counter account"))

func newTestEngine(t *testing.T, storeType store.StoreType) *Engine {
	t.Helper()
	dir := t.TempDir()

	config := DefaultConfig()
	config.StoreType = string(storeType)
	config.ProgramsDir = filepath.Join(dir, "programs")
	config.StoreParams = map[string]any{
		"db_path": filepath.Join(dir, "counter.db"),
		"dir":     filepath.Join(dir, "kv"),
	}

	engine, err := NewEngine(config)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	require.NoError(t, engine.RegisterProgram(counter.ProgramID, counter.ProcessInstruction))
	require.NoError(t, engine.CreateAccount(counter.NewAccount(counterKey, counter.ProgramID)))
	return engine
}

func counterValue(t *testing.T, e *Engine, key core.Pubkey) uint32 {
	t.Helper()
	acct, err := e.GetAccount(key)
	require.NoError(t, err)
	state, err := counter.UnpackState(acct.Data)
	require.NoError(t, err)
	return state.Counter
}

func execute(t *testing.T, e *Engine, programID core.Pubkey, instr counter.Instruction) *types.TransactionRecord {
	t.Helper()
	record, err := e.Execute(context.Background(), counter.NewTransaction(programID, counterKey, instr))
	require.NoError(t, err)
	require.True(t, record.Success)
	return record
}

var storeTypes = []store.StoreType{store.MemoryStoreType, store.DBStoreType, store.KVStoreType}

func TestExecuteScenarios(t *testing.T) {
	for _, st := range storeTypes {
		t.Run(string(st), func(t *testing.T) {
			e := newTestEngine(t, st)

			execute(t, e, counter.ProgramID, counter.Increment{Value: 5})
			assert.Equal(t, uint32(5), counterValue(t, e, counterKey))
			execute(t, e, counter.ProgramID, counter.Decrement{Value: 2})
			assert.Equal(t, uint32(3), counterValue(t, e, counterKey))
			execute(t, e, counter.ProgramID, counter.Update{Value: 100})
			assert.Equal(t, uint32(100), counterValue(t, e, counterKey))
			execute(t, e, counter.ProgramID, counter.Clear{})
			assert.Equal(t, uint32(0), counterValue(t, e, counterKey))

			execute(t, e, counter.ProgramID, counter.Update{Value: 3})
			execute(t, e, counter.ProgramID, counter.Decrement{Value: 10})
			assert.Equal(t, uint32(0), counterValue(t, e, counterKey))

			records, err := e.Transactions(10)
			require.NoError(t, err)
			require.Len(t, records, 6)
			assert.Equal(t, []byte{1, 10, 0, 0, 0}, records[0].Data)
			assert.Greater(t, records[0].Slot, records[1].Slot)
			for _, r := range records {
				assert.True(t, r.Success)
				assert.Equal(t, counter.ProgramID, r.ProgramID)
				assert.NotZero(t, r.ComputeUnits)
			}
		})
	}
}

func TestExecuteIncrementWraps(t *testing.T) {
	e := newTestEngine(t, store.MemoryStoreType)

	execute(t, e, counter.ProgramID, counter.Update{Value: math.MaxUint32})
	execute(t, e, counter.ProgramID, counter.Increment{Value: 1})
	assert.Equal(t, uint32(0), counterValue(t, e, counterKey))
}

func TestExecuteFailureIsRecorded(t *testing.T) {
	for _, st := range storeTypes {
		t.Run(string(st), func(t *testing.T) {
			e := newTestEngine(t, st)
			ctx := context.Background()

			execute(t, e, counter.ProgramID, counter.Update{Value: 7})

			tx := &types.Transaction{
				ProgramID: counter.ProgramID,
				Accounts:  []types.AccountMeta{{Key: counterKey, IsWritable: true}},
				Data:      []byte{0x07},
			}
			record, err := e.Execute(ctx, tx)
			assert.ErrorIs(t, err, core.ErrUnknownInstruction)
			require.NotNil(t, record)
			assert.False(t, record.Success)
			assert.Equal(t, uint32(core.CodeUnknownInstruction), record.ErrorCode)
			assert.NotEmpty(t, record.Error)

			tx.Data = []byte{0x00, 0x01}
			_, err = e.Execute(ctx, tx)
			assert.ErrorIs(t, err, core.ErrTruncatedArgument)

			assert.Equal(t, uint32(7), counterValue(t, e, counterKey))

			records, err := e.Transactions(10)
			require.NoError(t, err)
			require.Len(t, records, 3)
			assert.Equal(t, uint32(core.CodeTruncatedArgument), records[0].ErrorCode)
			assert.Equal(t, uint32(core.CodeUnknownInstruction), records[1].ErrorCode)
			assert.True(t, records[2].Success)
		})
	}
}

func TestExecuteMissingAccount(t *testing.T) {
	e := newTestEngine(t, store.MemoryStoreType)

	tx := &types.Transaction{ProgramID: counter.ProgramID, Data: []byte{0, 1, 0, 0, 0}}
	_, err := e.Execute(context.Background(), tx)
	assert.ErrorIs(t, err, core.ErrMissingAccount)
}

func TestExecuteCorruptState(t *testing.T) {
	e := newTestEngine(t, store.MemoryStoreType)

	key := core.PubkeyFromHash([]byte("short account"))
	require.NoError(t, e.CreateAccount(&types.Account{Key: key, Owner: counter.ProgramID, Data: []byte{1, 2}}))

	_, err := e.Execute(context.Background(), counter.NewTransaction(counter.ProgramID, key, counter.Increment{Value: 1}))
	assert.ErrorIs(t, err, core.ErrCorruptState)

	acct, err := e.GetAccount(key)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, acct.Data)
}

func TestExecuteHostRules(t *testing.T) {
	e := newTestEngine(t, store.MemoryStoreType)
	ctx := context.Background()

	// account owned by another program
	foreign := core.PubkeyFromHash([]byte("foreign"))
	require.NoError(t, e.CreateAccount(counter.NewAccount(foreign, core.PubkeyFromHash([]byte("other")))))
	_, err := e.Execute(ctx, counter.NewTransaction(counter.ProgramID, foreign, counter.Increment{Value: 1}))
	assert.ErrorIs(t, err, ErrExternalAccountDataModified)
	assert.Equal(t, uint32(0), counterValue(t, e, foreign))

	// read-only account
	tx := counter.NewTransaction(counter.ProgramID, counterKey, counter.Increment{Value: 1})
	tx.Accounts[0].IsWritable = false
	_, err = e.Execute(ctx, tx)
	assert.ErrorIs(t, err, ErrReadonlyDataModified)
	assert.Equal(t, uint32(0), counterValue(t, e, counterKey))

	// a read-only account the program does not change is fine
	tx = counter.NewTransaction(counter.ProgramID, counterKey, counter.Increment{Value: 0})
	tx.Accounts[0].IsWritable = false
	_, err = e.Execute(ctx, tx)
	assert.NoError(t, err)

	// resizing
	grow := core.PubkeyFromHash([]byte("grow"))
	require.NoError(t, e.RegisterProgram(grow, func(_ core.Pubkey, accounts []*core.AccountInfo, _ []byte) error {
		accounts[0].Data = append(accounts[0].Data, 0)
		return nil
	}))
	_, err = e.Execute(ctx, counter.NewTransaction(grow, counterKey, counter.Clear{}))
	assert.ErrorIs(t, err, ErrAccountDataSizeChanged)
}

func TestExecuteDuplicateAccounts(t *testing.T) {
	e := newTestEngine(t, store.MemoryStoreType)

	tx := counter.NewTransaction(counter.ProgramID, counterKey, counter.Increment{Value: 4})
	tx.Accounts = append(tx.Accounts, types.AccountMeta{Key: counterKey})
	_, err := e.Execute(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), counterValue(t, e, counterKey))
}

func TestExecuteLimits(t *testing.T) {
	e := newTestEngine(t, store.MemoryStoreType)
	ctx := context.Background()

	tx := counter.NewTransaction(counter.ProgramID, counterKey, counter.Clear{})
	tx.Data = make([]byte, e.config.MaxInstructionSize+1)
	_, err := e.Execute(ctx, tx)
	assert.ErrorIs(t, err, ErrInstructionTooLarge)

	_, err = e.Execute(ctx, counter.NewTransaction(core.PubkeyFromHash([]byte("nobody")), counterKey, counter.Clear{}))
	assert.ErrorIs(t, err, ErrProgramNotFound)

	_, err = e.Execute(ctx, counter.NewTransaction(counter.ProgramID, core.PubkeyFromHash([]byte("missing")), counter.Clear{}))
	assert.ErrorIs(t, err, types.ErrAccountNotFound)

	assert.ErrorIs(t, e.RegisterProgram(counter.ProgramID, counter.ProcessInstruction), ErrProgramRegistered)
	assert.ErrorIs(t, e.CreateAccount(&types.Account{Key: counterKey}), types.ErrAccountExists)
}

func TestExecuteComputeBudget(t *testing.T) {
	config := DefaultConfig()
	config.ComputeUnitLimit = InvocationCost + AccountCost
	e, err := NewEngine(config)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.RegisterProgram(counter.ProgramID, counter.ProcessInstruction))
	require.NoError(t, e.CreateAccount(counter.NewAccount(counterKey, counter.ProgramID)))

	record, err := e.Execute(context.Background(), counter.NewTransaction(counter.ProgramID, counterKey, counter.Increment{Value: 1}))
	assert.ErrorIs(t, err, meter.ErrComputeBudgetExceeded)
	require.NotNil(t, record)
	assert.Equal(t, config.ComputeUnitLimit, record.ComputeUnits)
	assert.Equal(t, uint32(0), counterValue(t, e, counterKey))
}

func TestDeployProgram(t *testing.T) {
	code, err := os.ReadFile("testdata/counter.wasm")
	require.NoError(t, err)

	e := newTestEngine(t, store.KVStoreType)
	ctx := context.Background()

	id, err := e.DeployProgram(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, core.PubkeyFromHash(code), id)

	programAccount, err := e.GetAccount(id)
	require.NoError(t, err)
	assert.True(t, programAccount.Executable)
	assert.Equal(t, LoaderID, programAccount.Owner)

	_, err = e.DeployProgram(ctx, code)
	assert.Error(t, err)

	key := core.PubkeyFromHash([]byte("wasm counter"))
	require.NoError(t, e.CreateAccount(counter.NewAccount(key, id)))

	run := func(instr counter.Instruction) {
		_, err := e.Execute(ctx, counter.NewTransaction(id, key, instr))
		require.NoError(t, err)
	}
	run(counter.Increment{Value: 5})
	run(counter.Decrement{Value: 2})
	assert.Equal(t, uint32(3), counterValue(t, e, key))
	run(counter.Update{Value: 100})
	run(counter.Clear{})
	assert.Equal(t, uint32(0), counterValue(t, e, key))
	run(counter.Update{Value: 3})
	run(counter.Decrement{Value: 10})
	assert.Equal(t, uint32(0), counterValue(t, e, key))

	_, err = e.Execute(ctx, &types.Transaction{
		ProgramID: id,
		Accounts:  []types.AccountMeta{{Key: key, IsWritable: true}},
		Data:      []byte{9},
	})
	assert.ErrorIs(t, err, core.ErrUnknownInstruction)
}

func TestDeployedProgramSurvivesRestart(t *testing.T) {
	code, err := os.ReadFile("testdata/counter.wasm")
	require.NoError(t, err)
	dir := t.TempDir()

	config := DefaultConfig()
	config.StoreType = string(store.DBStoreType)
	config.StoreParams = map[string]any{"db_path": filepath.Join(dir, "counter.db")}
	config.ProgramsDir = filepath.Join(dir, "programs")

	e, err := NewEngine(config)
	require.NoError(t, err)
	id, err := e.DeployProgram(context.Background(), code)
	require.NoError(t, err)
	require.NoError(t, e.CreateAccount(counter.NewAccount(counterKey, id)))
	require.NoError(t, e.Close())

	e, err = NewEngine(config)
	require.NoError(t, err)
	defer e.Close()
	execute(t, e, id, counter.Update{Value: 12})
	assert.Equal(t, uint32(12), counterValue(t, e, counterKey))
}

func TestDeployDisabled(t *testing.T) {
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	defer e.Close()

	_, err = e.DeployProgram(context.Background(), []byte{0x00})
	assert.ErrorIs(t, err, ErrDeployDisabled)
}

func TestMetrics(t *testing.T) {
	e := newTestEngine(t, store.MemoryStoreType)

	execute(t, e, counter.ProgramID, counter.Increment{Value: 1})
	execute(t, e, counter.ProgramID, counter.Increment{Value: 1})
	_, err := e.Execute(context.Background(), &types.Transaction{ProgramID: counter.ProgramID})
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.invocations.WithLabelValues(statusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.invocations.WithLabelValues(statusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.programs))

	expected := `
# HELP counter_invocations_total number of executed transactions by outcome
# TYPE counter_invocations_total counter
counter_invocations_total{status="failure"} 1
counter_invocations_total{status="success"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(e.Metrics(), strings.NewReader(expected), "counter_invocations_total"))
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, validateConfig(DefaultConfig()))
	assert.Error(t, validateConfig(nil))

	config := DefaultConfig()
	config.ComputeUnitLimit = 0
	assert.Error(t, validateConfig(config))

	config = DefaultConfig()
	config.MaxInstructionSize = 0
	assert.Error(t, validateConfig(config))

	config = DefaultConfig()
	config.StoreType = "nope"
	_, err := NewEngine(config)
	assert.Error(t, err)
}

func TestExecutionTimeout(t *testing.T) {
	config := DefaultConfig()
	config.ProgramsDir = t.TempDir()
	config.MaxExecutionTime = 50 * time.Millisecond
	e, err := NewEngine(config)
	require.NoError(t, err)
	defer e.Close()

	id, err := e.DeployProgram(context.Background(), spinForever)
	require.NoError(t, err)
	require.NoError(t, e.CreateAccount(counter.NewAccount(counterKey, id)))

	record, err := e.Execute(context.Background(), counter.NewTransaction(id, counterKey, counter.Clear{}))
	assert.ErrorIs(t, err, wasm.ErrProgramAborted)
	require.NotNil(t, record)
	assert.False(t, record.Success)
}

// spinForever is a guest whose entrypoint never returns.
var spinForever = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x0e, 0x02, 0x60, 0x01, 0x7f, 0x01, 0x7f, 0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x03, 0x02, 0x00, 0x01,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x22, 0x03,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x08, 'a', 'l', 'l', 'o', 'c', 'a', 't', 'e', 0x00, 0x00,
	0x0a, 'e', 'n', 't', 'r', 'y', 'p', 'o', 'i', 'n', 't', 0x00, 0x01,
	0x0a, 0x11, 0x02,
	0x05, 0x00, 0x41, 0x80, 0x08, 0x0b,
	0x09, 0x00, 0x03, 0x40, 0x0c, 0x00, 0x0b, 0x41, 0x00, 0x0b,
}
