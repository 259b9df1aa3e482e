// Package wasm runs programs compiled to WebAssembly on wazero.
//
// A guest exports its linear memory as "memory" and two functions:
//
//	allocate(size i32) i32
//	entrypoint(instrPtr, instrLen, dataPtr, dataLen i32) i32
//
// entrypoint returns 0 on success or one of the core error codes. The host
// exposes env.log(ptr, len) for guest logging. An "_initialize" export, as
// produced by reactor builds, runs before every invocation.
package wasm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/govm-net/counter/core"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

const (
	exportAllocate   = "allocate"
	exportEntrypoint = "entrypoint"
	exportInitialize = "_initialize"
)

var (
	ErrEmptyCode      = errors.New("program code cannot be empty")
	ErrMissingExport  = errors.New("program is missing a required export")
	ErrMemoryAccess   = errors.New("guest memory access out of range")
	ErrProgramAborted = errors.New("program aborted")
)

// Limits bounds the resources of a guest. Execution time is bounded by the
// context passed to Invoke: a guest is closed once its context is done.
type Limits struct {
	MemoryLimitPages uint32 // 64KiB pages, zero keeps the wazero default
}

// DefaultLimits allows a guest 16MiB of linear memory.
func DefaultLimits() Limits {
	return Limits{MemoryLimitPages: 256}
}

// Program is a compiled guest program. It is safe for sequential reuse;
// every invocation gets a fresh module instance.
type Program struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	env      api.Module
}

// NewProgram compiles code with DefaultLimits.
func NewProgram(ctx context.Context, code []byte) (*Program, error) {
	return NewProgramWithLimits(ctx, code, DefaultLimits())
}

// NewProgramWithLimits compiles code and checks it exports the program ABI.
func NewProgramWithLimits(ctx context.Context, code []byte, limits Limits) (*Program, error) {
	if len(code) == 0 {
		return nil, ErrEmptyCode
	}

	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if limits.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(limits.MemoryLimitPages)
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, rc)

	env, err := runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithParameterNames("ptr", "len").
		WithFunc(func(_ context.Context, m api.Module, ptr, length uint32) {
			msg, ok := m.Memory().Read(ptr, length)
			if !ok {
				slog.Error("program log out of range", "ptr", ptr, "len", length)
				return
			}
			slog.Info("Program log: " + string(msg))
		}).
		Export("log").
		Instantiate(ctx)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate env module: %w", err)
	}

	compiled, err := runtime.CompileModule(ctx, code)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to compile WebAssembly module: %w", err)
	}

	exports := compiled.ExportedFunctions()
	for _, name := range []string{exportAllocate, exportEntrypoint} {
		if _, ok := exports[name]; !ok {
			runtime.Close(ctx)
			return nil, fmt.Errorf("%w: %s", ErrMissingExport, name)
		}
	}
	if _, ok := compiled.ExportedMemories()["memory"]; !ok {
		runtime.Close(ctx)
		return nil, fmt.Errorf("%w: memory", ErrMissingExport)
	}

	return &Program{runtime: runtime, compiled: compiled, env: env}, nil
}

// Entrypoint adapts the program to core.Entrypoint using ctx for every call.
func (p *Program) Entrypoint(ctx context.Context) core.Entrypoint {
	return func(programID core.Pubkey, accounts []*core.AccountInfo, data []byte) error {
		return p.Invoke(ctx, programID, accounts, data)
	}
}

// Invoke runs the guest entrypoint against the first account's data.
func (p *Program) Invoke(ctx context.Context, programID core.Pubkey, accounts []*core.AccountInfo, data []byte) error {
	iter := accounts
	account, err := core.NextAccountInfo(&iter)
	if err != nil {
		return err
	}

	// anonymous instances can be created repeatedly from one compiled module
	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	module, err := p.runtime.InstantiateModule(ctx, p.compiled, cfg)
	if err != nil {
		return fmt.Errorf("failed to instantiate module: %w", err)
	}
	defer module.Close(ctx)

	if initFn := module.ExportedFunction(exportInitialize); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			return fmt.Errorf("%w: _initialize: %v", ErrProgramAborted, err)
		}
	}

	total := uint64(len(data) + len(account.Data))
	res, err := module.ExportedFunction(exportAllocate).Call(ctx, total)
	if err != nil {
		return fmt.Errorf("%w: allocate: %v", ErrProgramAborted, err)
	}
	instrPtr := uint32(res[0])
	dataPtr := instrPtr + uint32(len(data))

	mem := module.Memory()
	if !mem.Write(instrPtr, data) || !mem.Write(dataPtr, account.Data) {
		return fmt.Errorf("%w: writing %d bytes at %d", ErrMemoryAccess, total, instrPtr)
	}

	res, err = module.ExportedFunction(exportEntrypoint).Call(ctx,
		uint64(instrPtr), uint64(len(data)), uint64(dataPtr), uint64(len(account.Data)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProgramAborted, err)
	}
	if code := uint32(res[0]); code != core.CodeSuccess {
		return core.ErrorFromCode(code)
	}

	out, ok := mem.Read(dataPtr, uint32(len(account.Data)))
	if !ok {
		return fmt.Errorf("%w: reading account data at %d", ErrMemoryAccess, dataPtr)
	}
	copy(account.Data, out)
	slog.Debug("program invocation complete", "program", programID, "account", account.Key)
	return nil
}

// Close releases the runtime and every module compiled in it.
func (p *Program) Close(ctx context.Context) error {
	return p.runtime.Close(ctx)
}
