// Package counter is an on-chain program keeping one u32 counter in the
// first account it is given.
package counter

import (
	"encoding/binary"
	"fmt"

	"github.com/govm-net/counter/core"
)

// Instruction discriminants, the first byte of instruction data.
const (
	TagIncrement byte = iota
	TagDecrement
	TagUpdate
	TagClear
)

// argumentSize is the width of the little-endian u32 payload.
const argumentSize = 4

// Instruction is one of Increment, Decrement, Update or Clear.
type Instruction interface {
	Kind() string
	tag() byte
}

// Increment adds Value to the counter, wrapping at 2^32.
type Increment struct{ Value uint32 }

// Decrement subtracts Value from the counter, stopping at zero.
type Decrement struct{ Value uint32 }

// Update overwrites the counter with Value.
type Update struct{ Value uint32 }

// Clear sets the counter to zero.
type Clear struct{}

func (Increment) Kind() string { return "increment" }
func (Decrement) Kind() string { return "decrement" }
func (Update) Kind() string    { return "update" }
func (Clear) Kind() string     { return "clear" }

func (Increment) tag() byte { return TagIncrement }
func (Decrement) tag() byte { return TagDecrement }
func (Update) tag() byte    { return TagUpdate }
func (Clear) tag() byte     { return TagClear }

// DecodeInstruction parses raw instruction data. Bytes past the end of the
// instruction are ignored.
func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty instruction data", core.ErrUnknownInstruction)
	}
	tag, rest := data[0], data[1:]
	if tag == TagClear {
		return Clear{}, nil
	}
	if tag > TagClear {
		return nil, fmt.Errorf("%w: discriminant %d", core.ErrUnknownInstruction, tag)
	}
	if len(rest) < argumentSize {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", core.ErrTruncatedArgument, argumentSize, len(rest))
	}
	value := binary.LittleEndian.Uint32(rest[:argumentSize])
	switch tag {
	case TagIncrement:
		return Increment{Value: value}, nil
	case TagDecrement:
		return Decrement{Value: value}, nil
	default:
		return Update{Value: value}, nil
	}
}

// EncodeInstruction produces the wire form of instr.
func EncodeInstruction(instr Instruction) []byte {
	switch v := instr.(type) {
	case Increment:
		return withArgument(v.tag(), v.Value)
	case Decrement:
		return withArgument(v.tag(), v.Value)
	case Update:
		return withArgument(v.tag(), v.Value)
	default:
		return []byte{instr.tag()}
	}
}

func withArgument(tag byte, value uint32) []byte {
	out := make([]byte, 1+argumentSize)
	out[0] = tag
	binary.LittleEndian.PutUint32(out[1:], value)
	return out
}
