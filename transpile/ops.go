package transpile

import (
	"fmt"

	"github.com/gogpu/wasmgpu/ir"
	"github.com/gogpu/wasmgpu/irext"
	"github.com/gogpu/wasmgpu/stdobjects"
	"github.com/gogpu/wasmgpu/trap"
	"github.com/gogpu/wasmgpu/wasmfront"
)

// lowerOperator dispatches a single non-control-flow WASM operator,
// pushing/popping the operand stack and appending expressions/statements to
// ctx as needed. Grounded on the original crate's unary!/binary!/mem_load!/
// mem_store! macro shapes (each macro expanded to: pop operands, build one
// naga expression, push the result) even though the per-opcode handler
// bodies themselves (mvp.rs) were not present in the retrieved source and
// are authored fresh here from spec.md §3's Standard Objects table.
func (t *FunctionTranspiler) lowerOperator(ctx *irext.BlockContext, op wasmfront.Operator) error {
	switch o := op.(type) {
	case wasmfront.OpI32Const:
		t.push(ctx.Expr(ir.Literal{Value: ir.LiteralI32(o.Value)}), wasmfront.ValTypeI32)
		return nil
	case wasmfront.OpF32Const:
		t.push(ctx.Expr(ir.Literal{Value: ir.LiteralF32(o.Value)}), wasmfront.ValTypeF32)
		return nil
	case wasmfront.OpI64Const, wasmfront.OpF64Const:
		return fmt.Errorf("transpile: 64-bit constants not yet supported")

	case wasmfront.OpDrop:
		_, err := t.pop()
		return err

	case wasmfront.OpSelect:
		cond, err := t.pop()
		if err != nil {
			return err
		}
		b, err := t.pop()
		if err != nil {
			return err
		}
		a, err := t.pop()
		if err != nil {
			return err
		}
		result := ctx.Expr(ir.ExprSelect{Condition: t.toBool(ctx, cond), Accept: a, Reject: b})
		t.push(result, wasmfront.ValTypeI32)
		return nil

	case wasmfront.OpLocalGet:
		h, vt := t.localGet(ctx, o.LocalIndex)
		t.push(h, vt)
		return nil
	case wasmfront.OpLocalSet:
		v, err := t.pop()
		if err != nil {
			return err
		}
		t.localSet(ctx, o.LocalIndex, v)
		return nil
	case wasmfront.OpLocalTee:
		v, err := t.pop()
		if err != nil {
			return err
		}
		t.localSet(ctx, o.LocalIndex, v)
		t.push(v, t.localValTypes[o.LocalIndex])
		return nil

	case wasmfront.OpGlobalGet:
		return t.globalGet(ctx, o.GlobalIndex)
	case wasmfront.OpGlobalSet:
		return t.globalSet(ctx, o.GlobalIndex)

	case wasmfront.OpCall:
		return t.call(ctx, o.FuncIndex)

	case wasmfront.OpNumeric:
		return t.lowerNumeric(ctx, o.Op)

	case wasmfront.OpI32Load:
		return t.memLoad(ctx, o.Arg, wasmfront.ValTypeI32, 4, false)
	case wasmfront.OpF32Load:
		return t.memLoad(ctx, o.Arg, wasmfront.ValTypeF32, 4, false)
	case wasmfront.OpI32Store:
		return t.memStore(ctx, o.Arg, 4)
	case wasmfront.OpF32Store:
		return t.memStore(ctx, o.Arg, 4)

	case wasmfront.OpNop:
		return nil

	default:
		return fmt.Errorf("transpile: unsupported operator %T", op)
	}
}

// toBool converts a WASM i32 boolean (0/nonzero) expression into a naga
// bool, since ExprSelect's condition must be Bool-typed while WASM leaves
// comparisons as i32 on its operand stack.
func (t *FunctionTranspiler) toBool(ctx *irext.BlockContext, i32Val ir.ExpressionHandle) ir.ExpressionHandle {
	zero := ctx.Expr(ir.Literal{Value: ir.LiteralI32(0)})
	return ctx.Expr(ir.ExprBinary{Op: ir.BinaryNotEqual, Left: i32Val, Right: zero})
}

func (t *FunctionTranspiler) localGet(ctx *irext.BlockContext, idx uint32) (ir.ExpressionHandle, wasmfront.ValType) {
	vt := t.localValTypes[idx]
	numParams := len(t.fb.Function().Arguments)
	if int(idx) < numParams {
		return ctx.Expr(ir.ExprFunctionArgument{Index: idx}), vt
	}
	ptr := ctx.Expr(ir.ExprLocalVariable{Variable: t.localIRIndex[idx]})
	return ctx.Expr(ir.ExprLoad{Pointer: ptr}), vt
}

func (t *FunctionTranspiler) localSet(ctx *irext.BlockContext, idx uint32, v ir.ExpressionHandle) {
	ptr := ctx.Expr(ir.ExprLocalVariable{Variable: t.localIRIndex[idx]})
	ctx.Store(ptr, v)
}

func (t *FunctionTranspiler) globalGet(ctx *irext.BlockContext, idx uint32) error {
	if int(idx) >= len(t.accessible.Globals) {
		return fmt.Errorf("transpile: global index %d out of range", idx)
	}
	g := t.accessible.Globals[idx]
	ptr := ctx.Expr(ir.ExprGlobalVariable{Variable: t.globals[idx]})
	t.push(ctx.Expr(ir.ExprLoad{Pointer: ptr}), g.Type)
	return nil
}

func (t *FunctionTranspiler) globalSet(ctx *irext.BlockContext, idx uint32) error {
	v, err := t.pop()
	if err != nil {
		return err
	}
	ptr := ctx.Expr(ir.ExprGlobalVariable{Variable: t.globals[idx]})
	ctx.Store(ptr, v)
	return nil
}

func (t *FunctionTranspiler) call(ctx *irext.BlockContext, funcIdx uint32) error {
	if int(funcIdx) >= len(t.funcs) {
		return fmt.Errorf("transpile: call to undeclared function %d (indirect/imported calls not yet supported)", funcIdx)
	}
	typeIdx := t.accessible.Funcs[funcIdx]
	sig := t.accessible.Types[typeIdx]

	args := make([]ir.ExpressionHandle, len(sig.Params))
	for i := len(sig.Params) - 1; i >= 0; i-- {
		v, err := t.pop()
		if err != nil {
			return err
		}
		args[i] = v
	}

	handle := t.funcs[funcIdx]
	if len(sig.Results) == 0 {
		ctx.Push(ir.StmtCall{Function: handle, Arguments: args})
		return nil
	}
	result := ctx.Expr(ir.ExprCallResult{Function: handle})
	ctx.Push(ir.StmtCall{Function: handle, Arguments: args, Result: &result})
	t.push(result, sig.Results[0])
	return nil
}

// memAddress computes the effective byte address (base + arg.Offset) for a
// memory access and emits the bounds-trap check demanded by spec.md's
// first-trap-wins semantics: an out-of-bounds access sets trap_state but
// still produces *a* value (zero) so that the rest of the expression tree
// remains well-typed, matching how a shader has no way to actually abort
// mid-expression.
func (t *FunctionTranspiler) memAddress(ctx *irext.BlockContext, arg wasmfront.MemArg, accessSize uint32) (ir.ExpressionHandle, error) {
	base, err := t.pop()
	if err != nil {
		return 0, err
	}
	offsetConst := ctx.Expr(ir.Literal{Value: ir.LiteralU32(arg.Offset)})
	addr := ctx.Expr(ir.ExprBinary{Op: ir.BinaryAdd, Left: base, Right: offsetConst})

	if len(t.accessible.Memories) == 0 {
		return 0, fmt.Errorf("transpile: memory access with no declared memory")
	}
	limitBytes := t.accessible.Memories[0].MinPages * 65536
	limitConst := ctx.Expr(ir.Literal{Value: ir.LiteralU32(limitBytes)})
	sizeConst := ctx.Expr(ir.Literal{Value: ir.LiteralU32(accessSize)})
	endAddr := ctx.Expr(ir.ExprBinary{Op: ir.BinaryAdd, Left: addr, Right: sizeConst})
	outOfBounds := ctx.Expr(ir.ExprBinary{Op: ir.BinaryGreater, Left: endAddr, Right: limitConst})
	ctx.Test(outOfBounds).Then(func(then *irext.BlockContext) {
		stdobjects.EmitTrap(then, t.fb, t.reg, trap.MemoryOutOfBounds)
	}).Emit()

	return addr, nil
}

// memLoad implements word-granular loads (i32/f32, 4 bytes, naturally
// aligned) by indexing directly into the linear-memory storage array at
// addr/4. Sub-word loads (8/16-bit) are not yet implemented; see
// DESIGN.md.
func (t *FunctionTranspiler) memLoad(ctx *irext.BlockContext, arg wasmfront.MemArg, vt wasmfront.ValType, size uint32, signed bool) error {
	addr, err := t.memAddress(ctx, arg, size)
	if err != nil {
		return err
	}
	four := ctx.Expr(ir.Literal{Value: ir.LiteralU32(4)})
	wordIndex := ctx.Expr(ir.ExprBinary{Op: ir.BinaryDivide, Left: addr, Right: four})
	memPtr := ctx.Expr(ir.ExprGlobalVariable{Variable: t.reg.Memory})
	elemPtr := ctx.Expr(ir.ExprAccess{Base: memPtr, Index: wordIndex})
	word := ctx.Expr(ir.ExprLoad{Pointer: elemPtr})

	var result ir.ExpressionHandle
	switch vt {
	case wasmfront.ValTypeF32:
		result = ctx.Expr(ir.ExprAs{Expr: word, Kind: ir.ScalarFloat})
	default:
		result = ctx.Expr(ir.ExprAs{Expr: word, Kind: ir.ScalarSint})
	}
	t.push(result, vt)
	return nil
}

// memStore mirrors memLoad's addressing but guards the actual write on
// trap_state still reading clear, matching stdobjects.EmitTrap's own guard:
// spec.md §5 requires every store to short-circuit once any trap has fired,
// since a post-trap invocation left spinning in a polling loop would
// otherwise keep mutating memory another invocation might still read.
func (t *FunctionTranspiler) memStore(ctx *irext.BlockContext, arg wasmfront.MemArg, size uint32) error {
	value, err := t.pop()
	if err != nil {
		return err
	}
	addr, err := t.memAddress(ctx, arg, size)
	if err != nil {
		return err
	}
	four := ctx.Expr(ir.Literal{Value: ir.LiteralU32(4)})
	wordIndex := ctx.Expr(ir.ExprBinary{Op: ir.BinaryDivide, Left: addr, Right: four})
	memPtr := ctx.Expr(ir.ExprGlobalVariable{Variable: t.reg.Memory})
	elemPtr := ctx.Expr(ir.ExprAccess{Base: memPtr, Index: wordIndex})
	asU32 := ctx.Expr(ir.ExprAs{Expr: value, Kind: ir.ScalarUint})

	trapPtr := ctx.Expr(ir.ExprGlobalVariable{Variable: t.reg.TrapState})
	trapVal := ctx.Expr(ir.ExprLoad{Pointer: trapPtr})
	zero := ctx.Expr(ir.ExprZeroValue{Type: t.reg.TrapStateType})
	isClear := ctx.Expr(ir.ExprBinary{Op: ir.BinaryEqual, Left: trapVal, Right: zero})
	ctx.Test(isClear).Then(func(then *irext.BlockContext) {
		then.Store(elemPtr, asU32)
	}).Emit()
	return nil
}
