package counter

import (
	"log/slog"

	"github.com/govm-net/counter/core"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Title returns the display name of an instruction, e.g. "Increment".
func Title(instr Instruction) string {
	return cases.Title(language.English).String(instr.Kind())
}

// ProcessInstruction is the program entrypoint. It decodes data, applies it
// to the counter held by the first account and writes the result back into
// that account's data.
func ProcessInstruction(programID core.Pubkey, accounts []*core.AccountInfo, data []byte) error {
	slog.Info("Counter program entrypoint", "program", programID)

	instr, err := DecodeInstruction(data)
	if err != nil {
		return err
	}

	iter := accounts
	account, err := core.NextAccountInfo(&iter)
	if err != nil {
		return err
	}

	state, err := UnpackState(account.Data)
	if err != nil {
		return err
	}

	slog.Info("Instruction: "+Title(instr), "account", account.Key, "counter", state.Counter)
	state = Apply(state, instr)

	return state.Pack(account.Data)
}

var _ core.Entrypoint = ProcessInstruction
