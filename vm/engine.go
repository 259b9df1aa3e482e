// Package vm is the host side of program execution. The Engine owns the
// account store, resolves programs, meters and invokes them, and commits
// the resulting account changes atomically.
package vm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/meter"
	"github.com/govm-net/counter/repository"
	"github.com/govm-net/counter/store"
	"github.com/govm-net/counter/types"
	"github.com/govm-net/counter/wasm"
	"github.com/prometheus/client_golang/prometheus"

	// account store backends
	_ "github.com/govm-net/counter/store/db"
	_ "github.com/govm-net/counter/store/kv"
	_ "github.com/govm-net/counter/store/memory"
)

// Compute unit prices charged before a program runs
const (
	InvocationCost uint64 = 150
	AccountCost    uint64 = 50
	ByteCost       uint64 = 1
)

// LoaderID owns the executable accounts of deployed WebAssembly programs
var LoaderID = core.PubkeyFromHash([]byte("wasm program loader"))

var (
	ErrProgramNotFound             = errors.New("program not found")
	ErrProgramRegistered           = errors.New("program already registered")
	ErrInstructionTooLarge         = errors.New("instruction data too large")
	ErrTooManyAccounts             = errors.New("too many accounts")
	ErrAccountTooLarge             = errors.New("account data too large")
	ErrReadonlyDataModified        = errors.New("program modified data of a read-only account")
	ErrExternalAccountDataModified = errors.New("program modified data of an account it does not own")
	ErrAccountDataSizeChanged      = errors.New("program changed the size of account data")
	ErrDeployDisabled              = errors.New("no programs directory configured")
)

// Config represents engine configuration
type Config struct {
	ComputeUnitLimit   uint64         // Budget of a single transaction
	MaxInstructionSize int            // Maximum instruction data length
	MaxAccounts        int            // Maximum accounts per transaction
	MaxAccountDataSize int            // Maximum data length of a new account
	MaxExecutionTime   time.Duration  // Wall clock limit of a wasm invocation, zero disables
	MaxMemoryPages     uint32         // Linear memory limit of wasm programs in 64KiB pages
	ProgramsDir        string         // Deployed WebAssembly programs, empty disables deploy
	StoreType          string         // Account store backend
	StoreParams        map[string]any // Account store parameters
}

// DefaultConfig returns an in-memory configuration
func DefaultConfig() *Config {
	return &Config{
		ComputeUnitLimit:   200_000,
		MaxInstructionSize: 1232,
		MaxAccounts:        64,
		MaxAccountDataSize: 10 * 1024 * 1024,
		MaxExecutionTime:   5 * time.Second,
		MaxMemoryPages:     wasm.DefaultLimits().MemoryLimitPages,
		StoreType:          string(store.MemoryStoreType),
	}
}

// Engine executes transactions against an account store
type Engine struct {
	// serializes Execute: a program has exclusive use of its accounts
	mu sync.Mutex

	config      *Config
	store       types.AccountStore
	codeManager *repository.Manager
	meter       *meter.Meter

	programs     map[core.Pubkey]core.Entrypoint
	wasmPrograms map[core.Pubkey]*wasm.Program

	registry *prometheus.Registry
	metrics  *metrics
}

// NewEngine opens the configured store and program repository
func NewEngine(config *Config) (*Engine, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s, err := store.Get(store.StoreType(config.StoreType), config.StoreParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open account store: %w", err)
	}

	var codeManager *repository.Manager
	if config.ProgramsDir != "" {
		codeManager, err = repository.NewManager(config.ProgramsDir)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create program repository: %w", err)
		}
	}

	registry, m, err := newMetrics()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &Engine{
		config:       config,
		store:        s,
		codeManager:  codeManager,
		meter:        meter.New(config.ComputeUnitLimit),
		programs:     make(map[core.Pubkey]core.Entrypoint),
		wasmPrograms: make(map[core.Pubkey]*wasm.Program),
		registry:     registry,
		metrics:      m,
	}, nil
}

func validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}
	if config.ComputeUnitLimit == 0 {
		return fmt.Errorf("compute unit limit must be positive")
	}
	if config.MaxInstructionSize <= 0 {
		return fmt.Errorf("invalid max instruction size: %d", config.MaxInstructionSize)
	}
	if config.MaxAccounts <= 0 {
		return fmt.Errorf("invalid max accounts: %d", config.MaxAccounts)
	}
	if config.MaxExecutionTime < 0 {
		return fmt.Errorf("invalid max execution time: %s", config.MaxExecutionTime)
	}
	if config.MaxAccountDataSize <= 0 {
		return fmt.Errorf("invalid max account data size: %d", config.MaxAccountDataSize)
	}
	return nil
}

// Store returns the account store the engine commits to
func (e *Engine) Store() types.AccountStore {
	return e.store
}

// Metrics returns the registry holding the engine's metrics
func (e *Engine) Metrics() *prometheus.Registry {
	return e.registry
}

// RegisterProgram makes a native program invocable under id
func (e *Engine) RegisterProgram(id core.Pubkey, entry core.Entrypoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.programs[id]; ok {
		return fmt.Errorf("%w: %s", ErrProgramRegistered, id)
	}
	e.programs[id] = entry
	e.metrics.programs.Inc()
	slog.Info("native program registered", "program", id)
	return nil
}

// DeployProgram stores and compiles WebAssembly code. The program id is
// derived from the code, and an executable account owned by LoaderID is
// created for it.
func (e *Engine) DeployProgram(ctx context.Context, code []byte) (core.Pubkey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.codeManager == nil {
		return core.ZeroPubkey, ErrDeployDisabled
	}

	prog, err := wasm.NewProgramWithLimits(ctx, code, e.limits())
	if err != nil {
		return core.ZeroPubkey, fmt.Errorf("program validation failed: %w", err)
	}

	id := core.PubkeyFromHash(code)
	if _, err := e.codeManager.RegisterCode(id, code); err != nil {
		prog.Close(ctx)
		return core.ZeroPubkey, err
	}
	if err := e.store.CreateAccount(&types.Account{Key: id, Owner: LoaderID, Executable: true}); err != nil && !errors.Is(err, types.ErrAccountExists) {
		prog.Close(ctx)
		return core.ZeroPubkey, fmt.Errorf("failed to create program account: %w", err)
	}

	e.wasmPrograms[id] = prog
	e.metrics.programs.Inc()
	return id, nil
}

// CreateAccount allocates a new account in the store
func (e *Engine) CreateAccount(acct *types.Account) error {
	if len(acct.Data) > e.config.MaxAccountDataSize {
		return fmt.Errorf("%w: %d bytes", ErrAccountTooLarge, len(acct.Data))
	}
	return e.store.CreateAccount(acct)
}

// GetAccount returns a copy of a stored account
func (e *Engine) GetAccount(key core.Pubkey) (*types.Account, error) {
	return e.store.GetAccount(key)
}

// Transactions returns the most recent transaction records, newest first
func (e *Engine) Transactions(limit int) ([]types.TransactionRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	return e.store.Transactions(limit)
}

func (e *Engine) limits() wasm.Limits {
	return wasm.Limits{MemoryLimitPages: e.config.MaxMemoryPages}
}

// resolveProgram finds a native program, an already compiled wasm program
// or compiles one from the repository.
func (e *Engine) resolveProgram(ctx context.Context, id core.Pubkey) (core.Entrypoint, error) {
	if entry, ok := e.programs[id]; ok {
		return entry, nil
	}
	if prog, ok := e.wasmPrograms[id]; ok {
		return prog.Entrypoint(ctx), nil
	}
	if e.codeManager == nil {
		return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, id)
	}

	code, err := e.codeManager.GetCode(id)
	if errors.Is(err, repository.ErrProgramNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	prog, err := wasm.NewProgramWithLimits(ctx, code.Code, e.limits())
	if err != nil {
		return nil, fmt.Errorf("failed to load program %s: %w", id, err)
	}
	e.wasmPrograms[id] = prog
	e.metrics.programs.Inc()
	return prog.Entrypoint(ctx), nil
}

// Execute runs tx and records its outcome. A failed transaction is recorded
// but leaves every account untouched; its error is returned together with
// the record. Only a failure to commit returns a nil record.
func (e *Engine) Execute(ctx context.Context, tx *types.Transaction) (*types.TransactionRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	slot := e.store.Slot()
	record := &types.TransactionRecord{
		Signature: tx.Signature(slot),
		ProgramID: tx.ProgramID,
		Data:      append([]byte(nil), tx.Data...),
	}

	if e.config.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.MaxExecutionTime)
		defer cancel()
	}

	e.meter.Reset(e.config.ComputeUnitLimit)
	modified, execErr := e.invoke(ctx, tx)
	record.ComputeUnits = e.meter.Used()
	if execErr != nil {
		modified = nil
		record.ErrorCode = core.ErrorCode(execErr)
		record.Error = execErr.Error()
	} else {
		record.Success = true
	}

	if err := e.store.Commit(modified, record); err != nil {
		slog.Error("failed to commit transaction", "signature", record.Signature, "error", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	status := statusSuccess
	if execErr != nil {
		status = statusFailure
		slog.Warn("transaction failed", "signature", record.Signature, "slot", record.Slot,
			"program", tx.ProgramID, "compute_units", record.ComputeUnits, "error", execErr)
	} else {
		slog.Info("transaction executed", "signature", record.Signature, "slot", record.Slot,
			"program", tx.ProgramID, "accounts_written", len(modified), "compute_units", record.ComputeUnits)
	}
	e.metrics.invocations.WithLabelValues(status).Inc()
	e.metrics.computeUnits.Observe(float64(record.ComputeUnits))

	return record, execErr
}

// invoke runs the program over copies of the accounts and returns the
// accounts whose data it changed.
func (e *Engine) invoke(ctx context.Context, tx *types.Transaction) ([]*types.Account, error) {
	if len(tx.Data) > e.config.MaxInstructionSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrInstructionTooLarge, len(tx.Data), e.config.MaxInstructionSize)
	}
	if len(tx.Accounts) > e.config.MaxAccounts {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyAccounts, len(tx.Accounts), e.config.MaxAccounts)
	}

	cost := InvocationCost + AccountCost*uint64(len(tx.Accounts)) + ByteCost*uint64(len(tx.Data))
	if err := e.meter.Consume(cost); err != nil {
		return nil, err
	}

	entry, err := e.resolveProgram(ctx, tx.ProgramID)
	if err != nil {
		return nil, err
	}

	// the same key listed twice shares one AccountInfo
	loaded := make(map[core.Pubkey]*types.Account, len(tx.Accounts))
	views := make(map[core.Pubkey]*core.AccountInfo, len(tx.Accounts))
	infos := make([]*core.AccountInfo, 0, len(tx.Accounts))
	for _, meta := range tx.Accounts {
		if info, ok := views[meta.Key]; ok {
			info.IsSigner = info.IsSigner || meta.IsSigner
			info.IsWritable = info.IsWritable || meta.IsWritable
			infos = append(infos, info)
			continue
		}
		acct, err := e.store.GetAccount(meta.Key)
		if err != nil {
			return nil, err
		}
		info := &core.AccountInfo{
			Key:        acct.Key,
			Owner:      acct.Owner,
			Lamports:   acct.Lamports,
			Data:       append([]byte(nil), acct.Data...),
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
			Executable: acct.Executable,
		}
		loaded[meta.Key] = acct
		views[meta.Key] = info
		infos = append(infos, info)
	}

	if err := entry(tx.ProgramID, infos, tx.Data); err != nil {
		return nil, fmt.Errorf("program %s failed: %w", tx.ProgramID, err)
	}

	var modified []*types.Account
	for key, info := range views {
		orig := loaded[key]
		if len(info.Data) != len(orig.Data) {
			return nil, fmt.Errorf("%w: %s", ErrAccountDataSizeChanged, key)
		}
		if bytes.Equal(info.Data, orig.Data) {
			continue
		}
		if !info.IsWritable {
			return nil, fmt.Errorf("%w: %s", ErrReadonlyDataModified, key)
		}
		if orig.Owner != tx.ProgramID {
			return nil, fmt.Errorf("%w: %s", ErrExternalAccountDataModified, key)
		}
		updated := orig.Clone()
		updated.Data = append([]byte(nil), info.Data...)
		modified = append(modified, updated)
	}
	return modified, nil
}

// Close releases compiled programs and the store
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx := context.Background()
	var errs []error
	for id, prog := range e.wasmPrograms {
		if err := prog.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close program %s: %w", id, err))
		}
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	return errors.Join(errs...)
}
