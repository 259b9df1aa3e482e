package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect(t *testing.T) {
	info, err := Inspect(context.Background(), guestModule(returnCode(0)...))
	require.NoError(t, err)

	require.Len(t, info.Exports, 2)
	assert.Equal(t, "allocate", info.Exports[0].Name)
	assert.Equal(t, "(i32) -> (i32)", info.Exports[0].Signature())
	assert.Equal(t, "entrypoint", info.Exports[1].Name)
	assert.Equal(t, []string{"i32", "i32", "i32", "i32"}, info.Exports[1].Params)
	assert.Equal(t, []string{"memory"}, info.Memories)
	assert.Empty(t, info.Imports)
	assert.Empty(t, info.Missing)
}

func TestInspectIncompleteModule(t *testing.T) {
	empty := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	info, err := Inspect(context.Background(), empty)
	require.NoError(t, err)
	assert.Equal(t, []string{"allocate", "entrypoint", "memory"}, info.Missing)

	_, err = Inspect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyCode)
}
