package counter

import (
	"fmt"

	"github.com/govm-net/counter/core"
	"github.com/near/borsh-go"
)

// StateSize is the fixed number of bytes a counter account holds.
const StateSize = 4

// CounterState is the layout persisted in the counter account.
type CounterState struct {
	Counter uint32
}

// UnpackState reads the state from account data. The data must be exactly
// StateSize bytes long.
func UnpackState(data []byte) (CounterState, error) {
	var state CounterState
	if len(data) != StateSize {
		return state, fmt.Errorf("%w: account holds %d bytes, want %d", core.ErrCorruptState, len(data), StateSize)
	}
	if err := borsh.Deserialize(&state, data); err != nil {
		return state, fmt.Errorf("%w: %v", core.ErrCorruptState, err)
	}
	return state, nil
}

// Pack writes the state into dst in place.
func (s CounterState) Pack(dst []byte) error {
	if len(dst) < StateSize {
		return fmt.Errorf("%w: have %d bytes, need %d", core.ErrSerialization, len(dst), StateSize)
	}
	raw, err := borsh.Serialize(s)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrSerialization, err)
	}
	copy(dst, raw)
	return nil
}

// Apply returns the state after instr. Increment wraps around on overflow
// while Decrement saturates at zero.
func Apply(state CounterState, instr Instruction) CounterState {
	switch v := instr.(type) {
	case Increment:
		state.Counter += v.Value
	case Decrement:
		if state.Counter < v.Value {
			state.Counter = 0
		} else {
			state.Counter -= v.Value
		}
	case Update:
		state.Counter = v.Value
	case Clear:
		state.Counter = 0
	}
	return state
}
