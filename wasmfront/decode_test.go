package wasmfront_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/wasmgpu/wasmfront"
)

// addModule is a hand-assembled minimal WASM binary exporting a single
// function "add" with signature (i32, i32) -> i32, whose body computes
// local.get 0 + local.get 1.
func addModule() []byte {
	return []byte{
		0x00, 0x61, 0x73, 0x6D, // \0asm
		0x01, 0x00, 0x00, 0x00, // version 1

		// Type section: 1 type, (i32,i32)->i32
		0x01, 0x07,
		0x01, 0x60, 0x02, 0x7F, 0x7F, 0x01, 0x7F,

		// Function section: 1 function, type index 0
		0x03, 0x02,
		0x01, 0x00,

		// Export section: 1 export, "add" -> func 0
		0x07, 0x07,
		0x01, 0x03, 0x61, 0x64, 0x64, 0x00, 0x00,

		// Code section: 1 body
		0x0A, 0x09,
		0x01,       // 1 body
		0x07,       // body size
		0x00,       // 0 local decl runs
		0x20, 0x00, // local.get 0
		0x20, 0x01, // local.get 1
		0x6A, // i32.add
		0x0B, // end
	}
}

func TestDecodeAddModule(t *testing.T) {
	fi, err := wasmfront.Decode(addModule())
	require.NoError(t, err)

	require.Len(t, fi.Funcs, 1)
	require.Len(t, fi.Accessible.Types, 1)
	sig := fi.Accessible.Types[0]
	assert.Equal(t, []wasmfront.ValType{wasmfront.ValTypeI32, wasmfront.ValTypeI32}, sig.Params)
	assert.Equal(t, []wasmfront.ValType{wasmfront.ValTypeI32}, sig.Results)

	require.Len(t, fi.Exports, 1)
	assert.Equal(t, "add", fi.Exports[0].Name)
	assert.Equal(t, wasmfront.ExportFunc, fi.Exports[0].Kind)
	assert.Equal(t, uint32(0), fi.Exports[0].Index)

	body := fi.Funcs[0].Body
	require.Len(t, body, 4)
	assert.Equal(t, wasmfront.OpLocalGet{LocalIndex: 0}, body[0])
	assert.Equal(t, wasmfront.OpLocalGet{LocalIndex: 1}, body[1])
	assert.Equal(t, wasmfront.OpNumeric{Op: wasmfront.OpI32Add}, body[2])
	assert.Equal(t, wasmfront.OpEnd{}, body[3])
}

func TestDecodeBadMagic(t *testing.T) {
	_, err := wasmfront.Decode([]byte{0x00, 0x00, 0x00, 0x00})
	require.Error(t, err)
}

func TestBlockTypeResolve(t *testing.T) {
	empty := wasmfront.BlockType{Empty: true}
	assert.Equal(t, wasmfront.FuncType{}, empty.Resolve(nil))

	single := wasmfront.BlockType{ValueType: wasmfront.ValTypeI32}
	assert.Equal(t, wasmfront.FuncType{Results: []wasmfront.ValType{wasmfront.ValTypeI32}}, single.Resolve(nil))

	idx := uint32(0)
	types := []wasmfront.FuncType{{Params: []wasmfront.ValType{wasmfront.ValTypeF32}}}
	indexed := wasmfront.BlockType{TypeIndex: &idx}
	assert.Equal(t, types[0], indexed.Resolve(types))
}

func TestFuncTypeEqual(t *testing.T) {
	a := wasmfront.FuncType{Params: []wasmfront.ValType{wasmfront.ValTypeI32}, Results: []wasmfront.ValType{wasmfront.ValTypeF32}}
	b := wasmfront.FuncType{Params: []wasmfront.ValType{wasmfront.ValTypeI32}, Results: []wasmfront.ValType{wasmfront.ValTypeF32}}
	c := wasmfront.FuncType{Params: []wasmfront.ValType{wasmfront.ValTypeI64}, Results: []wasmfront.ValType{wasmfront.ValTypeF32}}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
