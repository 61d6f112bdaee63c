package irext_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/wasmgpu/ir"
	"github.com/gogpu/wasmgpu/irext"
)

func TestBlockContextCoalescesEmitRanges(t *testing.T) {
	mb := irext.NewModuleBuilder()
	fb := irext.NewFunctionBuilder(mb, "f", nil, nil)
	ctx := irext.NewBlockContext(fb)

	a := ctx.Expr(ir.Literal{Value: ir.LiteralI32(1)})
	b := ctx.Expr(ir.Literal{Value: ir.LiteralI32(2)})
	sum := ctx.Expr(ir.ExprBinary{Op: ir.BinaryAdd, Left: a, Right: b})

	block := ctx.Block()
	require.Len(t, block, 1, "three consecutive pure expressions should coalesce into one StmtEmit")
	emit, ok := block[0].Kind.(ir.StmtEmit)
	require.True(t, ok)
	assert.Equal(t, a, emit.Range.Start)
	assert.Equal(t, sum+1, emit.Range.End)
}

func TestBlockContextPushFlushesPendingEmit(t *testing.T) {
	mb := irext.NewModuleBuilder()
	fb := irext.NewFunctionBuilder(mb, "f", nil, nil)
	ctx := irext.NewBlockContext(fb)

	v := ctx.Expr(ir.Literal{Value: ir.LiteralBool(true)})
	ctx.Push(ir.StmtReturn{Value: &v})

	block := ctx.Block()
	require.Len(t, block, 2)
	_, isEmit := block[0].Kind.(ir.StmtEmit)
	assert.True(t, isEmit)
	ret, isReturn := block[1].Kind.(ir.StmtReturn)
	require.True(t, isReturn)
	assert.Equal(t, v, *ret.Value)
}

func TestBlockContextTestThenEmit(t *testing.T) {
	mb := irext.NewModuleBuilder()
	fb := irext.NewFunctionBuilder(mb, "f", nil, nil)
	ctx := irext.NewBlockContext(fb)

	cond := ctx.Expr(ir.Literal{Value: ir.LiteralBool(true)})
	ctx.Test(cond).Then(func(then *irext.BlockContext) {
		then.Push(ir.StmtReturn{})
	}).Emit()

	block := ctx.Block()
	require.Len(t, block, 2) // emit(cond), if
	stmtIf, ok := block[1].Kind.(ir.StmtIf)
	require.True(t, ok)
	assert.Equal(t, cond, stmtIf.Condition)
	assert.Len(t, stmtIf.Accept, 1)
	assert.Empty(t, stmtIf.Reject)
}

func TestBlockContextTestThenOtherwise(t *testing.T) {
	mb := irext.NewModuleBuilder()
	fb := irext.NewFunctionBuilder(mb, "f", nil, nil)
	ctx := irext.NewBlockContext(fb)

	cond := ctx.Expr(ir.Literal{Value: ir.LiteralBool(false)})
	ctx.Test(cond).Then(func(then *irext.BlockContext) {
		then.Push(ir.StmtBreak{})
	}).Otherwise(func(els *irext.BlockContext) {
		els.Push(ir.StmtContinue{})
	})

	block := ctx.Block()
	stmtIf, ok := block[1].Kind.(ir.StmtIf)
	require.True(t, ok)
	assert.Len(t, stmtIf.Accept, 1)
	assert.Len(t, stmtIf.Reject, 1)
	_, acceptIsBreak := stmtIf.Accept[0].Kind.(ir.StmtBreak)
	assert.True(t, acceptIsBreak)
	_, rejectIsContinue := stmtIf.Reject[0].Kind.(ir.StmtContinue)
	assert.True(t, rejectIsContinue)
}

func TestFunctionBuilderAddLocalAndExprType(t *testing.T) {
	mb := irext.NewModuleBuilder()
	i32 := mb.ScalarType(ir.ScalarSint, 4)
	fb := irext.NewFunctionBuilder(mb, "f", nil, nil)

	idx := fb.AddLocal(ir.LocalVariable{Name: "x", Type: i32})
	assert.Equal(t, uint32(0), idx)

	h := fb.Expr(ir.ExprLocalVariable{Variable: idx})
	fb.SetExprType(h, ir.TypeResolution{Handle: &i32})

	fn := fb.Function()
	require.Len(t, fn.LocalVars, 1)
	assert.Equal(t, "x", fn.LocalVars[0].Name)
	assert.Equal(t, i32, *fn.ExpressionTypes[h].Handle)
}
