package counter

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/govm-net/counter/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInstruction(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Instruction
	}{
		{"increment", []byte{0, 5, 0, 0, 0}, Increment{Value: 5}},
		{"decrement", []byte{1, 20, 0, 0, 0}, Decrement{Value: 20}},
		{"update", []byte{2, 0x21, 0, 0, 0}, Update{Value: 33}},
		{"update little endian", []byte{2, 0x78, 0x56, 0x34, 0x12}, Update{Value: 0x12345678}},
		{"clear", []byte{3}, Clear{}},
		{"clear with trailing bytes", []byte{3, 9, 9}, Clear{}},
		{"increment with trailing bytes", []byte{0, 1, 0, 0, 0, 0xff}, Increment{Value: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInstruction(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeInstructionErrors(t *testing.T) {
	unknown := [][]byte{nil, {}, {4}, {4, 0, 0, 0, 0}, {0xff}}
	for _, data := range unknown {
		_, err := DecodeInstruction(data)
		assert.ErrorIs(t, err, core.ErrUnknownInstruction, "data %v", data)
	}

	for tag := byte(0); tag <= 2; tag++ {
		for n := 0; n < argumentSize; n++ {
			data := append([]byte{tag}, make([]byte, n)...)
			_, err := DecodeInstruction(data)
			assert.ErrorIs(t, err, core.ErrTruncatedArgument, "data %v", data)
		}
	}
}

func TestEncodeDecodeInstruction(t *testing.T) {
	values := []uint32{0, 1, 5, 255, 256, 1 << 24, math.MaxUint32}
	for _, v := range values {
		for _, instr := range []Instruction{Increment{v}, Decrement{v}, Update{v}} {
			data := EncodeInstruction(instr)
			require.Len(t, data, 1+argumentSize)
			assert.Equal(t, v, binary.LittleEndian.Uint32(data[1:]))

			got, err := DecodeInstruction(data)
			require.NoError(t, err)
			assert.Equal(t, instr, got)
		}
	}

	data := EncodeInstruction(Clear{})
	assert.Equal(t, []byte{TagClear}, data)
	got, err := DecodeInstruction(data)
	require.NoError(t, err)
	assert.Equal(t, Clear{}, got)
}

func TestInstructionKind(t *testing.T) {
	assert.Equal(t, "increment", Increment{}.Kind())
	assert.Equal(t, "Decrement", Title(Decrement{}))
	assert.Equal(t, "Update", Title(Update{}))
	assert.Equal(t, "Clear", Title(Clear{}))
}
