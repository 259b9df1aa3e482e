package wasm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// FunctionInfo describes an imported or exported function
type FunctionInfo struct {
	Module  string // empty for exports
	Name    string
	Params  []string
	Results []string
}

// Signature renders the function as "(i32, i32) -> i32"
func (f FunctionInfo) Signature() string {
	return fmt.Sprintf("(%s) -> (%s)", strings.Join(f.Params, ", "), strings.Join(f.Results, ", "))
}

// ModuleInfo summarizes a compiled module against the program ABI
type ModuleInfo struct {
	Exports  []FunctionInfo
	Imports  []FunctionInfo
	Memories []string
	Missing  []string // ABI exports the module lacks
}

// Inspect compiles code without instantiating it.
func Inspect(ctx context.Context, code []byte) (*ModuleInfo, error) {
	if len(code) == 0 {
		return nil, ErrEmptyCode
	}

	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx)

	compiled, err := runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to compile WebAssembly module: %w", err)
	}

	info := &ModuleInfo{}
	for name, def := range compiled.ExportedFunctions() {
		f := describe(def)
		f.Name = name
		info.Exports = append(info.Exports, f)
	}
	sort.Slice(info.Exports, func(i, j int) bool { return info.Exports[i].Name < info.Exports[j].Name })

	for _, def := range compiled.ImportedFunctions() {
		f := describe(def)
		f.Module, f.Name, _ = def.Import()
		info.Imports = append(info.Imports, f)
	}

	for name := range compiled.ExportedMemories() {
		info.Memories = append(info.Memories, name)
	}
	sort.Strings(info.Memories)

	exports := compiled.ExportedFunctions()
	for _, name := range []string{exportAllocate, exportEntrypoint} {
		if _, ok := exports[name]; !ok {
			info.Missing = append(info.Missing, name)
		}
	}
	if _, ok := compiled.ExportedMemories()["memory"]; !ok {
		info.Missing = append(info.Missing, "memory")
	}
	return info, nil
}

func describe(def api.FunctionDefinition) FunctionInfo {
	var f FunctionInfo
	for _, t := range def.ParamTypes() {
		f.Params = append(f.Params, api.ValueTypeName(t))
	}
	for _, t := range def.ResultTypes() {
		f.Results = append(f.Results, api.ValueTypeName(t))
	}
	return f
}
