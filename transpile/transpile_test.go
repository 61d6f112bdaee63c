package transpile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/wasmgpu/ir"
	"github.com/gogpu/wasmgpu/irext"
	"github.com/gogpu/wasmgpu/stdobjects"
	"github.com/gogpu/wasmgpu/transpile"
	"github.com/gogpu/wasmgpu/wasmfront"
)

func addFuncData() wasmfront.FunctionModuleData {
	accessible := &wasmfront.FuncAccessible{
		Types: []wasmfront.FuncType{
			{
				Params:  []wasmfront.ValType{wasmfront.ValTypeI32, wasmfront.ValTypeI32},
				Results: []wasmfront.ValType{wasmfront.ValTypeI32},
			},
		},
		Funcs: []uint32{0},
	}
	unit := wasmfront.FuncUnit{
		TypeIndex: 0,
		Body: []wasmfront.Operator{
			wasmfront.OpLocalGet{LocalIndex: 0},
			wasmfront.OpLocalGet{LocalIndex: 1},
			wasmfront.OpNumeric{Op: wasmfront.OpI32Add},
			wasmfront.OpEnd{},
		},
	}
	return wasmfront.FunctionModuleData{Index: 0, Unit: unit, Accessible: accessible}
}

func TestTranspileAddFunction(t *testing.T) {
	mb := irext.NewModuleBuilder()
	reg := stdobjects.Build(mb, stdobjects.DefaultTuneables())
	fd := addFuncData()

	ft, err := transpile.NewFunctionTranspiler(mb, reg, fd, nil, nil)
	require.NoError(t, err)

	fn, err := ft.Transpile(fd.Unit.Body)
	require.NoError(t, err)

	require.NotNil(t, fn.Result)
	assert.Equal(t, reg.I32, fn.Result.Type)
	require.Len(t, fn.Arguments, 2)

	require.NotEmpty(t, fn.Body)
	last := fn.Body[len(fn.Body)-1]
	ret, ok := last.Kind.(ir.StmtReturn)
	require.True(t, ok, "function falling off the end with a value on the stack should emit an implicit return")
	require.NotNil(t, ret.Value)

	add, ok := fn.Expressions[*ret.Value].Kind.(ir.ExprBinary)
	require.True(t, ok)
	assert.Equal(t, ir.BinaryAdd, add.Op)
}

func TestTranspileVoidFunctionImplicitReturn(t *testing.T) {
	mb := irext.NewModuleBuilder()
	reg := stdobjects.Build(mb, stdobjects.DefaultTuneables())

	accessible := &wasmfront.FuncAccessible{
		Types: []wasmfront.FuncType{{}},
		Funcs: []uint32{0},
	}
	unit := wasmfront.FuncUnit{
		TypeIndex: 0,
		Body:      []wasmfront.Operator{wasmfront.OpEnd{}},
	}
	fd := wasmfront.FunctionModuleData{Index: 0, Unit: unit, Accessible: accessible}

	ft, err := transpile.NewFunctionTranspiler(mb, reg, fd, nil, nil)
	require.NoError(t, err)
	fn, err := ft.Transpile(fd.Unit.Body)
	require.NoError(t, err)

	assert.Nil(t, fn.Result)
	require.NotEmpty(t, fn.Body)
	ret, ok := fn.Body[len(fn.Body)-1].Kind.(ir.StmtReturn)
	require.True(t, ok)
	assert.Nil(t, ret.Value)
}

func TestTranspileLoopWithBranch(t *testing.T) {
	mb := irext.NewModuleBuilder()
	reg := stdobjects.Build(mb, stdobjects.DefaultTuneables())

	// A loop whose body immediately br_if 0's back to the top using its
	// single local as the (never-taken at transpile time) condition, then
	// falls through. Exercises lowerNested/lowerLoop/closeLoopBody without
	// needing a real trip count.
	accessible := &wasmfront.FuncAccessible{
		Types: []wasmfront.FuncType{{}},
		Funcs: []uint32{0},
	}
	unit := wasmfront.FuncUnit{
		TypeIndex: 0,
		Locals:    []wasmfront.Locals{{Count: 1, Type: wasmfront.ValTypeI32}},
		Body: []wasmfront.Operator{
			wasmfront.OpLoop{Type: wasmfront.BlockType{Empty: true}},
			wasmfront.OpLocalGet{LocalIndex: 0},
			wasmfront.OpBrIf{RelativeDepth: 0},
			wasmfront.OpEnd{}, // closes loop
			wasmfront.OpEnd{}, // closes function
		},
	}
	fd := wasmfront.FunctionModuleData{Index: 0, Unit: unit, Accessible: accessible}

	ft, err := transpile.NewFunctionTranspiler(mb, reg, fd, nil, nil)
	require.NoError(t, err)
	fn, err := ft.Transpile(fd.Unit.Body)
	require.NoError(t, err)

	var stmtLoop *ir.StmtLoop
	for _, s := range fn.Body {
		if v, ok := s.Kind.(ir.StmtLoop); ok {
			stmtLoop = &v
			break
		}
	}
	require.NotNil(t, stmtLoop, "loop body should lower to a StmtLoop")
	assert.NotEmpty(t, stmtLoop.Body)
}

func containsStore(b ir.Block) bool {
	for _, s := range b {
		if _, ok := s.Kind.(ir.StmtStore); ok {
			return true
		}
	}
	return false
}

// TestTranspileBrPiercesBlockGatesTrailingStatements exercises a br_if that
// pierces a nested block to target its outer enclosing block directly (the
// multi-level br case): the trailing local.set after the pierced inner
// block must not execute on the branch-taken path, and the outer block must
// clear is_branching once it has served as the branch's target so that
// execution resumes normally afterward.
func TestTranspileBrPiercesBlockGatesTrailingStatements(t *testing.T) {
	mb := irext.NewModuleBuilder()
	reg := stdobjects.Build(mb, stdobjects.DefaultTuneables())

	accessible := &wasmfront.FuncAccessible{
		Types: []wasmfront.FuncType{{}},
		Funcs: []uint32{0},
	}
	unit := wasmfront.FuncUnit{
		TypeIndex: 0,
		Locals:    []wasmfront.Locals{{Count: 1, Type: wasmfront.ValTypeI32}},
		Body: []wasmfront.Operator{
			wasmfront.OpBlock{Type: wasmfront.BlockType{Empty: true}}, // outer
			wasmfront.OpBlock{Type: wasmfront.BlockType{Empty: true}}, // inner
			wasmfront.OpLocalGet{LocalIndex: 0},
			wasmfront.OpBrIf{RelativeDepth: 1}, // pierces inner, targets outer
			wasmfront.OpEnd{},                  // closes inner
			wasmfront.OpI32Const{Value: 99},
			wasmfront.OpLocalSet{LocalIndex: 0}, // must not run once the br_if fires
			wasmfront.OpEnd{},                   // closes outer
			wasmfront.OpEnd{},                   // closes function
		},
	}
	fd := wasmfront.FunctionModuleData{Index: 0, Unit: unit, Accessible: accessible}

	ft, err := transpile.NewFunctionTranspiler(mb, reg, fd, nil, nil)
	require.NoError(t, err)
	fn, err := ft.Transpile(fd.Unit.Body)
	require.NoError(t, err)

	var outer *ir.StmtBlock
	for _, s := range fn.Body {
		if v, ok := s.Kind.(ir.StmtBlock); ok {
			outer = &v
			break
		}
	}
	require.NotNil(t, outer, "outer block should lower to a StmtBlock")

	var sawInner, sawGate, sawClear bool
	for _, s := range outer.Block {
		switch v := s.Kind.(type) {
		case ir.StmtBlock:
			sawInner = true
		case ir.StmtIf:
			if v.Accept == nil && containsStore(v.Reject) {
				sawGate = true
			}
			if v.Reject == nil && containsStore(v.Accept) {
				sawClear = true
			}
		}
	}
	assert.True(t, sawInner, "inner block should be nested inside outer's StmtBlock")
	assert.True(t, sawGate, "trailing local.set after the pierced inner block must be gated behind !is_branching")
	assert.True(t, sawClear, "outer block must clear is_branching once exited so execution resumes normally past it")
}

func countBreaksAndContinues(b ir.Block) (breaks, continues int) {
	for _, s := range b {
		switch v := s.Kind.(type) {
		case ir.StmtBreak:
			breaks++
		case ir.StmtContinue:
			continues++
		case ir.StmtIf:
			bb, cc := countBreaksAndContinues(v.Accept)
			breaks += bb
			continues += cc
			bb, cc = countBreaksAndContinues(v.Reject)
			breaks += bb
			continues += cc
		case ir.StmtBlock:
			bb, cc := countBreaksAndContinues(v.Block)
			breaks += bb
			continues += cc
		case ir.StmtLoop:
			bb, cc := countBreaksAndContinues(v.Body)
			breaks += bb
			continues += cc
		}
	}
	return
}

// TestTranspileLoopBreaksAtBottomAndPollsTrap covers a loop with no br/br_if
// at all: naga's StmtLoop repeats its Body forever unless explicitly broken,
// the opposite of WASM's "falling off the end of a loop body exits it"
// default, so natural fall-through needs an explicit break at the bottom.
// The loop body must also poll trap_state at the top so an
// already-trapped invocation does not spin forever.
func TestTranspileLoopBreaksAtBottomAndPollsTrap(t *testing.T) {
	mb := irext.NewModuleBuilder()
	reg := stdobjects.Build(mb, stdobjects.DefaultTuneables())

	accessible := &wasmfront.FuncAccessible{
		Types: []wasmfront.FuncType{{}},
		Funcs: []uint32{0},
	}
	unit := wasmfront.FuncUnit{
		TypeIndex: 0,
		Locals:    []wasmfront.Locals{{Count: 1, Type: wasmfront.ValTypeI32}},
		Body: []wasmfront.Operator{
			wasmfront.OpLoop{Type: wasmfront.BlockType{Empty: true}},
			wasmfront.OpLocalGet{LocalIndex: 0},
			wasmfront.OpDrop{},
			wasmfront.OpEnd{}, // closes loop via natural fall-through, no br at all
			wasmfront.OpEnd{}, // closes function
		},
	}
	fd := wasmfront.FunctionModuleData{Index: 0, Unit: unit, Accessible: accessible}

	ft, err := transpile.NewFunctionTranspiler(mb, reg, fd, nil, nil)
	require.NoError(t, err)
	fn, err := ft.Transpile(fd.Unit.Body)
	require.NoError(t, err)

	var stmtLoop *ir.StmtLoop
	for _, s := range fn.Body {
		if v, ok := s.Kind.(ir.StmtLoop); ok {
			stmtLoop = &v
			break
		}
	}
	require.NotNil(t, stmtLoop)

	breaks, continues := countBreaksAndContinues(stmtLoop.Body)
	assert.GreaterOrEqual(t, breaks, 2, "expect both a trap-poll break and a natural-fallthrough break")
	assert.Equal(t, 1, continues, "expect exactly one continue, guarding the r0 branch action")
}
