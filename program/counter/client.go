package counter

import (
	"github.com/govm-net/counter/core"
	"github.com/govm-net/counter/types"
)

// ProgramID is the id the native counter program is registered under.
var ProgramID = core.PubkeyFromHash([]byte("counter program"))

// NewAccount returns a zeroed counter account owned by programID.
func NewAccount(key, programID core.Pubkey) *types.Account {
	return &types.Account{
		Key:   key,
		Owner: programID,
		Data:  make([]byte, StateSize),
	}
}

// NewTransaction builds a transaction applying instr to the counter held
// by the account key.
func NewTransaction(programID, key core.Pubkey, instr Instruction) *types.Transaction {
	return &types.Transaction{
		ProgramID: programID,
		Accounts:  []types.AccountMeta{{Key: key, IsWritable: true}},
		Data:      EncodeInstruction(instr),
	}
}
