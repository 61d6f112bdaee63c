package transpile

import (
	"fmt"

	"github.com/gogpu/wasmgpu/ir"
	"github.com/gogpu/wasmgpu/irext"
	"github.com/gogpu/wasmgpu/wasmfront"
)

// doBr unconditionally sets the is_branching/branch_depth locals, the
// runtime-side counterpart of the static ExitState propagation. relDepth is
// the WASM operand (relative to the `br`'s own immediately enclosing
// block); depth is that enclosing block's own absolute nesting depth
// (0 == function top level). branch_depth stores the resulting *absolute*
// target depth (depth - relDepth) rather than the raw relative operand, so
// that every enclosing construct -- no matter how many levels up -- can
// recognize a match with a single compile-time-constant equality check
// against its own absolute depth, with no runtime decrementing needed as
// the flag propagates outward.
func (t *FunctionTranspiler) doBr(ctx *irext.BlockContext, depth, relDepth uint32) {
	isBranchingPtr := ctx.Expr(ir.ExprLocalVariable{Variable: t.isBranchingLocal})
	trueConst := ctx.Expr(ir.Literal{Value: ir.LiteralBool(true)})
	ctx.Store(isBranchingPtr, trueConst)

	target := depth - relDepth
	depthPtr := ctx.Expr(ir.ExprLocalVariable{Variable: t.branchDepthLocal})
	depthConst := ctx.Expr(ir.Literal{Value: ir.LiteralI32(int32(target))})
	ctx.Store(depthPtr, depthConst)
}

// doBrIf sets the flag only when cond is true, leaving any previously set
// (outer) branch untouched on the false path -- mirroring WASM's br_if,
// which is a no-op when the condition is false.
func (t *FunctionTranspiler) doBrIf(ctx *irext.BlockContext, depth uint32, cond ir.ExpressionHandle, relDepth uint32) {
	ctx.Test(cond).Then(func(then *irext.BlockContext) {
		t.doBr(then, depth, relDepth)
	}).Emit()
}

// doReturn sets the branch flag to the sentinel maxDepth (meaning "exits
// every enclosing block, not just some finite number of them") and emits a
// real ir.StmtReturn. The naga StmtReturn actually performs the WASM
// function return directly wherever it is unconditionally reachable;
// is_branching is still set so that any enclosing block that was entered
// conditionally (inside an outer `if`) correctly treats the rest of its own
// body as unreachable, matching spec.md §4.3's "propagate an early return
// through nested blocks without native multi-level exit" requirement for
// the entry/base function split, where a `return` inside deeply nested
// control flow must still unwind every level cooperatively.
func (t *FunctionTranspiler) doReturn(ctx *irext.BlockContext) {
	isBranchingPtr := ctx.Expr(ir.ExprLocalVariable{Variable: t.isBranchingLocal})
	trueConst := ctx.Expr(ir.Literal{Value: ir.LiteralBool(true)})
	ctx.Store(isBranchingPtr, trueConst)

	depthPtr := ctx.Expr(ir.ExprLocalVariable{Variable: t.branchDepthLocal})
	sentinel := maxDepth // non-constant conversion: the bit pattern becomes -1
	maxConst := ctx.Expr(ir.Literal{Value: ir.LiteralI32(int32(sentinel))})
	ctx.Store(depthPtr, maxConst)

	if len(t.stack) == 0 {
		ctx.Push(ir.StmtReturn{})
		return
	}
	v, _ := t.pop()
	ctx.Push(ir.StmtReturn{Value: &v})
}

// push/pop manage the WASM-visible operand stack. WASM validation
// guarantees stack discipline (no underflow in a valid module), so pop
// returns an error here only as defense against a malformed or
// not-actually-validated input, matching this package's stance that it
// trusts, but does not re-verify, validity.
func (t *FunctionTranspiler) push(h ir.ExpressionHandle, vt wasmfront.ValType) {
	t.stack = append(t.stack, h)
	t.stackTypes = append(t.stackTypes, vt)
}

func (t *FunctionTranspiler) pop() (ir.ExpressionHandle, error) {
	if len(t.stack) == 0 {
		return 0, fmt.Errorf("transpile: operand stack underflow")
	}
	h := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	t.stackTypes = t.stackTypes[:len(t.stackTypes)-1]
	return h, nil
}
