package trap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/wasmgpu/trap"
)

func TestDecodeNone(t *testing.T) {
	err := trap.Decode(uint32(trap.None))
	assert.NoError(t, err)
}

func TestDecodeTrap(t *testing.T) {
	err := trap.Decode(uint32(trap.IntegerDivideByZero))
	require.Error(t, err)

	var trapErr *trap.Error
	require.ErrorAs(t, err, &trapErr)
	assert.Equal(t, trap.IntegerDivideByZero, trapErr.Code)
}

func TestCodeString(t *testing.T) {
	cases := []struct {
		code trap.Code
		want string
	}{
		{trap.None, "none"},
		{trap.Unreachable, "unreachable"},
		{trap.MemoryOutOfBounds, "memory out of bounds"},
		{trap.IntegerDivideByZero, "integer divide by zero"},
		{trap.IntegerOverflow, "integer overflow"},
		{trap.InvalidConversionToInteger, "invalid conversion to integer"},
		{trap.IndirectCallTypeMismatch, "indirect call type mismatch"},
		{trap.IndirectCallIndexOutOfBounds, "indirect call index out of bounds"},
		{trap.StackOverflow, "call stack exhausted"},
		{trap.UninitializedElement, "uninitialized element"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.code.String())
	}
}

func TestCodeStringUnknown(t *testing.T) {
	assert.Contains(t, trap.Code(255).String(), "unknown")
}
