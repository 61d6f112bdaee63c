package stdobjects

import (
	"math"

	"github.com/gogpu/wasmgpu/ir"
	"github.com/gogpu/wasmgpu/irext"
)

// Grounded on std_objects/wasm_tys/native_f32.rs: GPUs are permitted by the
// SPIR-V/WGSL spec to flush subnormal (denormal) floats to zero, but WASM's
// f32 arithmetic must preserve them exactly. The emulation scales a
// subnormal operand up by 2^subnormalScaleExp (moving it into the normal
// range, where the native op is exact), performs the native operation, then
// scales the result back down by the same amount. 2^24 is enough headroom
// to lift the smallest subnormal (2^-149) into the normal range for
// addition/subtraction/multiplication without itself overflowing.
const subnormalScaleExp = 24

var (
	f32MinNormal = math.Float32frombits(0x00800000) // smallest positive normal f32
)

// isSubnormal builds `0 < abs(v) < f32MinNormal`.
func isSubnormal(c *irext.BlockContext, v ir.ExpressionHandle) ir.ExpressionHandle {
	absV := c.Expr(ir.ExprMath{Fun: ir.MathAbs, Arg: v})
	zero := c.Expr(ir.Literal{Value: ir.LiteralF32(0)})
	minNormal := c.Expr(ir.Literal{Value: ir.LiteralF32(f32MinNormal)})
	gtZero := c.Expr(ir.ExprBinary{Op: ir.BinaryGreater, Left: absV, Right: zero})
	ltMin := c.Expr(ir.ExprBinary{Op: ir.BinaryLess, Left: absV, Right: minNormal})
	return c.Expr(ir.ExprBinary{Op: ir.BinaryLogicalAnd, Left: gtZero, Right: ltMin})
}

// scaleIfSubnormal conditionally multiplies v by 2^exp when v is subnormal,
// leaving it unchanged otherwise (the original's scale_up_float /
// scale_down_float, expressed with ExprSelect instead of a branch since it
// is a pure per-component value with no side effects worth a structured
// `if`).
func scaleIfSubnormal(c *irext.BlockContext, fb *irext.FunctionBuilder, v ir.ExpressionHandle, exp int) ir.ExpressionHandle {
	cond := isSubnormal(c, v)
	factor := c.Expr(ir.Literal{Value: ir.LiteralF32(float32(math.Ldexp(1, exp)))})
	scaled := c.Expr(ir.ExprBinary{Op: ir.BinaryMultiply, Left: v, Right: factor})
	return c.Expr(ir.ExprSelect{Condition: cond, Accept: scaled, Reject: v})
}

// BinaryF32 emits an f32 binary operation (add/sub/mul/div), transparently
// emulating subnormal handling when reg.Tuneables enables it: any subnormal
// operand is scaled up by 2^24 first, and if either operand was scaled the
// result is scaled back down by the same amount afterward. Division needs an
// asymmetric correction (numerator and denominator scaling cancel), matching
// native_f32.rs's subnormal_div special case.
func BinaryF32(c *irext.BlockContext, fb *irext.FunctionBuilder, reg *Registry, op ir.BinaryOperator, a, b ir.ExpressionHandle) ir.ExpressionHandle {
	if !reg.Tuneables.FloatingPoint.EmulateSubnormals {
		return c.Expr(ir.ExprBinary{Op: op, Left: a, Right: b})
	}

	aScaled := scaleIfSubnormal(c, fb, a, subnormalScaleExp)
	if op == ir.BinaryDivide {
		// Scaling both operands of a division by the same factor is a
		// no-op on the mathematical result, so only the numerator needs
		// lifting; the denominator is left alone.
		return c.Expr(ir.ExprBinary{Op: op, Left: aScaled, Right: b})
	}

	bScaled := scaleIfSubnormal(c, fb, b, subnormalScaleExp)
	result := c.Expr(ir.ExprBinary{Op: op, Left: aScaled, Right: bScaled})

	switch op {
	case ir.BinaryMultiply:
		// a_scaled * b_scaled = (a*b) * 2^48 when both were lifted; when
		// only one was lifted it's 2^24. Conservatively rescale down by
		// 2^24 only when the unscaled product itself would have been
		// subnormal, matching subnormal_mult's narrower trigger.
		return scaleIfSubnormal(c, fb, result, -subnormalScaleExp)
	default: // add, subtract: scaling is linear so one undo suffices
		return scaleIfSubnormalResult(c, fb, a, b, result)
	}
}

// MathMinMaxF32 emits f32 min/max with the same subnormal emulation as
// BinaryF32's additive case: min/max are both order-preserving under
// positive scaling, so scaling both operands up by 2^24 and the result back
// down afterward is exact. min/max are ir.MathFunction values, not
// ir.BinaryOperator, so they need this separate entry point rather than
// going through BinaryF32.
func MathMinMaxF32(c *irext.BlockContext, fb *irext.FunctionBuilder, reg *Registry, fn ir.MathFunction, a, b ir.ExpressionHandle) ir.ExpressionHandle {
	if !reg.Tuneables.FloatingPoint.EmulateSubnormals {
		return c.Expr(ir.ExprMath{Fun: fn, Arg: a, Arg1: &b})
	}
	aScaled := scaleIfSubnormal(c, fb, a, subnormalScaleExp)
	bScaled := scaleIfSubnormal(c, fb, b, subnormalScaleExp)
	result := c.Expr(ir.ExprMath{Fun: fn, Arg: aScaled, Arg1: &bScaled})
	return scaleIfSubnormalResult(c, fb, a, b, result)
}

// CeilFloorF32 emits f32 ceil/floor with subnormal correction. Ceil/floor
// are not linear under scaling, so the scale-up/scale-down trick used
// elsewhere in this file does not apply. Instead the two cases where a GPU's
// flush-to-zero disagrees with the true subnormal result are corrected
// directly: ceil of a positive subnormal is exactly 1 (flush-to-zero's
// ceil(0) gives 0), and floor of a negative subnormal is exactly -1
// (flush-to-zero's floor(0) gives 0). Every other subnormal case already
// agrees with the flushed-to-zero native result.
func CeilFloorF32(c *irext.BlockContext, fb *irext.FunctionBuilder, reg *Registry, ceil bool, a ir.ExpressionHandle) ir.ExpressionHandle {
	fn := ir.MathFloor
	if ceil {
		fn = ir.MathCeil
	}
	native := c.Expr(ir.ExprMath{Fun: fn, Arg: a})
	if !reg.Tuneables.FloatingPoint.EmulateSubnormals {
		return native
	}

	zero := c.Expr(ir.Literal{Value: ir.LiteralF32(0)})
	sub := isSubnormal(c, a)

	if ceil {
		one := c.Expr(ir.Literal{Value: ir.LiteralF32(1)})
		positive := c.Expr(ir.ExprBinary{Op: ir.BinaryGreater, Left: a, Right: zero})
		needsOverride := c.Expr(ir.ExprBinary{Op: ir.BinaryLogicalAnd, Left: sub, Right: positive})
		return c.Expr(ir.ExprSelect{Condition: needsOverride, Accept: one, Reject: native})
	}
	negOne := c.Expr(ir.Literal{Value: ir.LiteralF32(-1)})
	negative := c.Expr(ir.ExprBinary{Op: ir.BinaryLess, Left: a, Right: zero})
	needsOverride := c.Expr(ir.ExprBinary{Op: ir.BinaryLogicalAnd, Left: sub, Right: negative})
	return c.Expr(ir.ExprSelect{Condition: needsOverride, Accept: negOne, Reject: native})
}

// scaleIfSubnormalResult undoes the up-scaling applied to additive/min/max
// results: if either original operand was subnormal, the result was
// computed from scaled operands and must be scaled back down.
func scaleIfSubnormalResult(c *irext.BlockContext, fb *irext.FunctionBuilder, a, b, result ir.ExpressionHandle) ir.ExpressionHandle {
	aWasSub := isSubnormal(c, a)
	bWasSub := isSubnormal(c, b)
	anySub := c.Expr(ir.ExprBinary{Op: ir.BinaryLogicalOr, Left: aWasSub, Right: bWasSub})
	factor := c.Expr(ir.Literal{Value: ir.LiteralF32(float32(math.Ldexp(1, -subnormalScaleExp)))})
	scaledDown := c.Expr(ir.ExprBinary{Op: ir.BinaryMultiply, Left: result, Right: factor})
	return c.Expr(ir.ExprSelect{Condition: anySub, Accept: scaledDown, Reject: result})
}

// UnarySqrtF32 emits sqrt with subnormal emulation: sqrt(2^24 * x) =
// 2^12 * sqrt(x), so the result needs only a 2^12 correction, not 2^24,
// matching native_f32.rs's subnormal_sqrt.
func UnarySqrtF32(c *irext.BlockContext, fb *irext.FunctionBuilder, reg *Registry, a ir.ExpressionHandle) ir.ExpressionHandle {
	if !reg.Tuneables.FloatingPoint.EmulateSubnormals {
		return c.Expr(ir.ExprMath{Fun: ir.MathSqrt, Arg: a})
	}
	aWasSub := isSubnormal(c, a)
	aScaled := scaleIfSubnormal(c, fb, a, subnormalScaleExp)
	result := c.Expr(ir.ExprMath{Fun: ir.MathSqrt, Arg: aScaled})
	factor := c.Expr(ir.Literal{Value: ir.LiteralF32(float32(math.Ldexp(1, -subnormalScaleExp/2)))})
	scaledDown := c.Expr(ir.ExprBinary{Op: ir.BinaryMultiply, Left: result, Right: factor})
	return c.Expr(ir.ExprSelect{Condition: aWasSub, Accept: scaledDown, Reject: result})
}
