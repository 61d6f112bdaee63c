package transpile

import (
	"fmt"

	"github.com/gogpu/wasmgpu/ir"
	"github.com/gogpu/wasmgpu/irext"
	"github.com/gogpu/wasmgpu/stdobjects"
	"github.com/gogpu/wasmgpu/trap"
	"github.com/gogpu/wasmgpu/wasmfront"
)

// lowerNumeric implements the contiguous MVP numeric opcode range
// (comparisons, arithmetic, bitwise, conversions). i32 and f32 are handled
// except i32.rotl/rotr, which are reported as errors; i64/f64 (represented
// as 2-component u32 vectors in the
// standard-objects registry, see stdobjects.Build) need wide-arithmetic
// helpers not yet implemented and are reported as explicit errors rather
// than silently producing wrong results.
func (t *FunctionTranspiler) lowerNumeric(ctx *irext.BlockContext, op wasmfront.NumericOp) error {
	switch op {
	case wasmfront.OpI32Eqz:
		a, err := t.pop()
		if err != nil {
			return err
		}
		zero := ctx.Expr(ir.Literal{Value: ir.LiteralI32(0)})
		t.pushCompare(ctx, ir.BinaryEqual, a, zero)
		return nil

	case wasmfront.OpI32Eq, wasmfront.OpI32Ne, wasmfront.OpI32LtS, wasmfront.OpI32LtU,
		wasmfront.OpI32GtS, wasmfront.OpI32GtU, wasmfront.OpI32LeS, wasmfront.OpI32LeU,
		wasmfront.OpI32GeS, wasmfront.OpI32GeU:
		return t.binaryCompareI32(ctx, op)

	case wasmfront.OpF32Eq, wasmfront.OpF32Ne, wasmfront.OpF32Lt, wasmfront.OpF32Gt,
		wasmfront.OpF32Le, wasmfront.OpF32Ge:
		return t.binaryCompareF32(ctx, op)

	case wasmfront.OpI32Clz:
		return t.unaryMath(ctx, ir.MathCountLeadingZeros, wasmfront.ValTypeI32)
	case wasmfront.OpI32Ctz:
		return t.unaryMath(ctx, ir.MathCountTrailingZeros, wasmfront.ValTypeI32)
	case wasmfront.OpI32Popcnt:
		return t.unaryMath(ctx, ir.MathCountOneBits, wasmfront.ValTypeI32)

	case wasmfront.OpI32Add:
		return t.binaryI32(ctx, ir.BinaryAdd)
	case wasmfront.OpI32Sub:
		return t.binaryI32(ctx, ir.BinarySubtract)
	case wasmfront.OpI32Mul:
		return t.binaryI32(ctx, ir.BinaryMultiply)
	case wasmfront.OpI32DivS, wasmfront.OpI32DivU:
		return t.divI32(ctx, op == wasmfront.OpI32DivU)
	case wasmfront.OpI32RemS, wasmfront.OpI32RemU:
		return t.remI32(ctx)
	case wasmfront.OpI32And:
		return t.binaryI32(ctx, ir.BinaryAnd)
	case wasmfront.OpI32Or:
		return t.binaryI32(ctx, ir.BinaryInclusiveOr)
	case wasmfront.OpI32Xor:
		return t.binaryI32(ctx, ir.BinaryExclusiveOr)
	case wasmfront.OpI32Shl:
		return t.binaryI32(ctx, ir.BinaryShiftLeft)
	case wasmfront.OpI32ShrS, wasmfront.OpI32ShrU:
		return t.binaryI32(ctx, ir.BinaryShiftRight)
	case wasmfront.OpI32Rotl, wasmfront.OpI32Rotr:
		return fmt.Errorf("transpile: i32.rotl/rotr not yet supported (naga has no native rotate; needs shift+or synthesis)")

	case wasmfront.OpF32Abs:
		return t.unaryMath(ctx, ir.MathAbs, wasmfront.ValTypeF32)
	case wasmfront.OpF32Neg:
		return t.unaryOp(ctx, ir.UnaryNegate, wasmfront.ValTypeF32)
	case wasmfront.OpF32Ceil:
		return t.ceilFloorF32(ctx, true)
	case wasmfront.OpF32Floor:
		return t.ceilFloorF32(ctx, false)
	case wasmfront.OpF32Trunc:
		return t.unaryMath(ctx, ir.MathTrunc, wasmfront.ValTypeF32)
	case wasmfront.OpF32Nearest:
		return t.unaryMath(ctx, ir.MathRound, wasmfront.ValTypeF32)
	case wasmfront.OpF32Sqrt:
		a, err := t.pop()
		if err != nil {
			return err
		}
		t.push(stdobjects.UnarySqrtF32(ctx, t.fb, t.reg, a), wasmfront.ValTypeF32)
		return nil
	case wasmfront.OpF32Add:
		return t.binaryF32(ctx, ir.BinaryAdd)
	case wasmfront.OpF32Sub:
		return t.binaryF32(ctx, ir.BinarySubtract)
	case wasmfront.OpF32Mul:
		return t.binaryF32(ctx, ir.BinaryMultiply)
	case wasmfront.OpF32Div:
		return t.binaryF32(ctx, ir.BinaryDivide)
	case wasmfront.OpF32Min:
		return t.binaryMathF32(ctx, ir.MathMin)
	case wasmfront.OpF32Max:
		return t.binaryMathF32(ctx, ir.MathMax)
	case wasmfront.OpF32Copysign:
		return t.copysignF32(ctx)

	case wasmfront.OpI32WrapI64, wasmfront.OpI64ExtendI32S, wasmfront.OpI64ExtendI32U:
		return fmt.Errorf("transpile: i64 conversions not yet supported")

	case wasmfront.OpI32TruncF32S, wasmfront.OpI32TruncF32U:
		a, err := t.pop()
		if err != nil {
			return err
		}
		kind := ir.ScalarSint
		if op == wasmfront.OpI32TruncF32U {
			kind = ir.ScalarUint
		}
		t.emitTruncTrapCheck(ctx, a, op == wasmfront.OpI32TruncF32U)
		width := uint8(4)
		t.push(ctx.Expr(ir.ExprAs{Expr: a, Kind: kind, Convert: &width}), wasmfront.ValTypeI32)
		return nil

	case wasmfront.OpF32ConvertI32S, wasmfront.OpF32ConvertI32U:
		a, err := t.pop()
		if err != nil {
			return err
		}
		width := uint8(4)
		t.push(ctx.Expr(ir.ExprAs{Expr: a, Kind: ir.ScalarFloat, Convert: &width}), wasmfront.ValTypeF32)
		return nil

	case wasmfront.OpI32ReinterpretF32:
		a, err := t.pop()
		if err != nil {
			return err
		}
		t.push(ctx.Expr(ir.ExprAs{Expr: a, Kind: ir.ScalarSint}), wasmfront.ValTypeI32)
		return nil
	case wasmfront.OpF32ReinterpretI32:
		a, err := t.pop()
		if err != nil {
			return err
		}
		t.push(ctx.Expr(ir.ExprAs{Expr: a, Kind: ir.ScalarFloat}), wasmfront.ValTypeF32)
		return nil

	default:
		return fmt.Errorf("transpile: numeric opcode %d not yet supported", op)
	}
}

func (t *FunctionTranspiler) pushCompare(ctx *irext.BlockContext, cmp ir.BinaryOperator, a, b ir.ExpressionHandle) {
	result := ctx.Expr(ir.ExprBinary{Op: cmp, Left: a, Right: b})
	asI32 := ctx.Expr(ir.ExprAs{Expr: result, Kind: ir.ScalarSint})
	t.push(asI32, wasmfront.ValTypeI32)
}

func (t *FunctionTranspiler) binaryCompareI32(ctx *irext.BlockContext, op wasmfront.NumericOp) error {
	b, err := t.pop()
	if err != nil {
		return err
	}
	a, err := t.pop()
	if err != nil {
		return err
	}
	ops := map[wasmfront.NumericOp]ir.BinaryOperator{
		wasmfront.OpI32Eq: ir.BinaryEqual, wasmfront.OpI32Ne: ir.BinaryNotEqual,
		wasmfront.OpI32LtS: ir.BinaryLess, wasmfront.OpI32LtU: ir.BinaryLess,
		wasmfront.OpI32GtS: ir.BinaryGreater, wasmfront.OpI32GtU: ir.BinaryGreater,
		wasmfront.OpI32LeS: ir.BinaryLessEqual, wasmfront.OpI32LeU: ir.BinaryLessEqual,
		wasmfront.OpI32GeS: ir.BinaryGreaterEqual, wasmfront.OpI32GeU: ir.BinaryGreaterEqual,
	}
	t.pushCompare(ctx, ops[op], a, b)
	return nil
}

func (t *FunctionTranspiler) binaryCompareF32(ctx *irext.BlockContext, op wasmfront.NumericOp) error {
	b, err := t.pop()
	if err != nil {
		return err
	}
	a, err := t.pop()
	if err != nil {
		return err
	}
	ops := map[wasmfront.NumericOp]ir.BinaryOperator{
		wasmfront.OpF32Eq: ir.BinaryEqual, wasmfront.OpF32Ne: ir.BinaryNotEqual,
		wasmfront.OpF32Lt: ir.BinaryLess, wasmfront.OpF32Gt: ir.BinaryGreater,
		wasmfront.OpF32Le: ir.BinaryLessEqual, wasmfront.OpF32Ge: ir.BinaryGreaterEqual,
	}
	t.pushCompare(ctx, ops[op], a, b)
	return nil
}

func (t *FunctionTranspiler) binaryI32(ctx *irext.BlockContext, op ir.BinaryOperator) error {
	b, err := t.pop()
	if err != nil {
		return err
	}
	a, err := t.pop()
	if err != nil {
		return err
	}
	t.push(ctx.Expr(ir.ExprBinary{Op: op, Left: a, Right: b}), wasmfront.ValTypeI32)
	return nil
}

func (t *FunctionTranspiler) binaryF32(ctx *irext.BlockContext, op ir.BinaryOperator) error {
	b, err := t.pop()
	if err != nil {
		return err
	}
	a, err := t.pop()
	if err != nil {
		return err
	}
	t.push(stdobjects.BinaryF32(ctx, t.fb, t.reg, op, a, b), wasmfront.ValTypeF32)
	return nil
}

func (t *FunctionTranspiler) binaryMathF32(ctx *irext.BlockContext, fn ir.MathFunction) error {
	b, err := t.pop()
	if err != nil {
		return err
	}
	a, err := t.pop()
	if err != nil {
		return err
	}
	t.push(stdobjects.MathMinMaxF32(ctx, t.fb, t.reg, fn, a, b), wasmfront.ValTypeF32)
	return nil
}

func (t *FunctionTranspiler) ceilFloorF32(ctx *irext.BlockContext, ceil bool) error {
	a, err := t.pop()
	if err != nil {
		return err
	}
	t.push(stdobjects.CeilFloorF32(ctx, t.fb, t.reg, ceil, a), wasmfront.ValTypeF32)
	return nil
}

// copysignF32 has no direct naga MathFunction counterpart, so it is
// synthesized from bitwise operations: take the magnitude bits of a and the
// sign bit of b, matching the IEEE-754 definition directly.
func (t *FunctionTranspiler) copysignF32(ctx *irext.BlockContext) error {
	b, err := t.pop()
	if err != nil {
		return err
	}
	a, err := t.pop()
	if err != nil {
		return err
	}
	aBits := ctx.Expr(ir.ExprAs{Expr: a, Kind: ir.ScalarUint})
	bBits := ctx.Expr(ir.ExprAs{Expr: b, Kind: ir.ScalarUint})
	signMask := ctx.Expr(ir.Literal{Value: ir.LiteralU32(0x80000000)})
	magMask := ctx.Expr(ir.Literal{Value: ir.LiteralU32(0x7fffffff)})
	mag := ctx.Expr(ir.ExprBinary{Op: ir.BinaryAnd, Left: aBits, Right: magMask})
	sign := ctx.Expr(ir.ExprBinary{Op: ir.BinaryAnd, Left: bBits, Right: signMask})
	combined := ctx.Expr(ir.ExprBinary{Op: ir.BinaryInclusiveOr, Left: mag, Right: sign})
	t.push(ctx.Expr(ir.ExprAs{Expr: combined, Kind: ir.ScalarFloat}), wasmfront.ValTypeF32)
	return nil
}

func (t *FunctionTranspiler) unaryMath(ctx *irext.BlockContext, fn ir.MathFunction, vt wasmfront.ValType) error {
	a, err := t.pop()
	if err != nil {
		return err
	}
	t.push(ctx.Expr(ir.ExprMath{Fun: fn, Arg: a}), vt)
	return nil
}

func (t *FunctionTranspiler) unaryOp(ctx *irext.BlockContext, op ir.UnaryOperator, vt wasmfront.ValType) error {
	a, err := t.pop()
	if err != nil {
		return err
	}
	t.push(ctx.Expr(ir.ExprUnary{Op: op, Expr: a}), vt)
	return nil
}

// divI32 traps on division by zero and (for the signed case) on the single
// overflowing case MIN_INT / -1, matching spec.md §3's standard-objects
// division semantics and trap.IntegerOverflow/IntegerDivideByZero.
func (t *FunctionTranspiler) divI32(ctx *irext.BlockContext, unsigned bool) error {
	b, err := t.pop()
	if err != nil {
		return err
	}
	a, err := t.pop()
	if err != nil {
		return err
	}
	zero := ctx.Expr(ir.Literal{Value: ir.LiteralI32(0)})
	isZero := ctx.Expr(ir.ExprBinary{Op: ir.BinaryEqual, Left: b, Right: zero})
	ctx.Test(isZero).Then(func(then *irext.BlockContext) {
		stdobjects.EmitTrap(then, t.fb, t.reg, trap.IntegerDivideByZero)
	}).Emit()

	if !unsigned {
		minInt := ctx.Expr(ir.Literal{Value: ir.LiteralI32(-2147483648)})
		negOne := ctx.Expr(ir.Literal{Value: ir.LiteralI32(-1)})
		aIsMin := ctx.Expr(ir.ExprBinary{Op: ir.BinaryEqual, Left: a, Right: minInt})
		bIsNegOne := ctx.Expr(ir.ExprBinary{Op: ir.BinaryEqual, Left: b, Right: negOne})
		overflows := ctx.Expr(ir.ExprBinary{Op: ir.BinaryLogicalAnd, Left: aIsMin, Right: bIsNegOne})
		ctx.Test(overflows).Then(func(then *irext.BlockContext) {
			stdobjects.EmitTrap(then, t.fb, t.reg, trap.IntegerOverflow)
		}).Emit()
	}

	t.push(ctx.Expr(ir.ExprBinary{Op: ir.BinaryDivide, Left: a, Right: b}), wasmfront.ValTypeI32)
	return nil
}

func (t *FunctionTranspiler) remI32(ctx *irext.BlockContext) error {
	b, err := t.pop()
	if err != nil {
		return err
	}
	a, err := t.pop()
	if err != nil {
		return err
	}
	zero := ctx.Expr(ir.Literal{Value: ir.LiteralI32(0)})
	isZero := ctx.Expr(ir.ExprBinary{Op: ir.BinaryEqual, Left: b, Right: zero})
	ctx.Test(isZero).Then(func(then *irext.BlockContext) {
		stdobjects.EmitTrap(then, t.fb, t.reg, trap.IntegerDivideByZero)
	}).Emit()
	t.push(ctx.Expr(ir.ExprBinary{Op: ir.BinaryModulo, Left: a, Right: b}), wasmfront.ValTypeI32)
	return nil
}

// emitTruncTrapCheck guards trapping float-to-int truncation: NaN and
// out-of-range sources must set trap.InvalidConversionToInteger rather
// than producing the implementation-defined bit pattern a bare cast would.
func (t *FunctionTranspiler) emitTruncTrapCheck(ctx *irext.BlockContext, f ir.ExpressionHandle, unsigned bool) {
	// Exclusive f32 bounds of the i32 (or u32) range after truncation.
	lo, hi := float32(-2147483904), float32(2147483648)
	if unsigned {
		lo, hi = -1, 4294967296
	}
	loConst := ctx.Expr(ir.Literal{Value: ir.LiteralF32(lo)})
	hiConst := ctx.Expr(ir.Literal{Value: ir.LiteralF32(hi)})
	tooLow := ctx.Expr(ir.ExprBinary{Op: ir.BinaryLessEqual, Left: f, Right: loConst})
	tooHigh := ctx.Expr(ir.ExprBinary{Op: ir.BinaryGreaterEqual, Left: f, Right: hiConst})
	outOfRange := ctx.Expr(ir.ExprBinary{Op: ir.BinaryLogicalOr, Left: tooLow, Right: tooHigh})
	isNan := ctx.Expr(ir.ExprRelational{Fun: ir.RelationalIsNan, Argument: f})
	invalid := ctx.Expr(ir.ExprBinary{Op: ir.BinaryLogicalOr, Left: isNan, Right: outOfRange})
	ctx.Test(invalid).Then(func(then *irext.BlockContext) {
		stdobjects.EmitTrap(then, t.fb, t.reg, trap.InvalidConversionToInteger)
	}).Emit()
}
