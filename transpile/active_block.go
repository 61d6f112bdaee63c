package transpile

import (
	"fmt"

	"github.com/gogpu/wasmgpu/ir"
	"github.com/gogpu/wasmgpu/irext"
	"github.com/gogpu/wasmgpu/stdobjects"
	"github.com/gogpu/wasmgpu/trap"
	"github.com/gogpu/wasmgpu/wasmfront"
)

// blockKind distinguishes the three structured-control-flow constructs, since
// they close out differently: a loop's label targets its start (br 0 means
// "continue"), while a block's or if's label targets its end (br 0 means
// "break").
type blockKind uint8

const (
	blockPlain blockKind = iota
	blockLoop
	blockIf
)

// FunctionTranspiler lowers one WASM function body into an ir.Function. It
// owns the WASM-side operand stack and the function-wide branching-flag
// locals; each nested structured block is processed by transpileBlock,
// which recurses for nested block/loop/if.
type FunctionTranspiler struct {
	mb  *irext.ModuleBuilder
	fb  *irext.FunctionBuilder
	reg *stdobjects.Registry

	accessible *wasmfront.FuncAccessible
	// funcs maps a WASM function index to the already-declared naga
	// function handle; the assemble package reserves a handle for every
	// function, in WASM index order, before transpiling any body, so calls
	// to any function (including recursive ones) resolve.
	funcs []ir.FunctionHandle

	// globals maps a WASM global index to the already-declared naga
	// global handle; the standard-objects registry declares its own
	// globals (trap_state, memory, ...) first, so WASM global indices do
	// not line up 1:1 with ir.GlobalVariableHandle values and must be
	// translated through this slice (populated by assemble).
	globals []ir.GlobalVariableHandle

	localValTypes []wasmfront.ValType // params followed by declared locals, by WASM local index
	localIRIndex  []uint32            // fb.LocalVars index per WASM local index (params are not LocalVars; see argExpr)

	stack      []ir.ExpressionHandle
	stackTypes []wasmfront.ValType

	// isBranchingLocal/branchDepthLocal implement the original's
	// "is_branching" flag mechanism as a single pair of function-wide
	// locals rather than one flag per nesting level: when a br/br_if
	// fires, isBranching is set true and branchDepthLocal records the
	// *absolute* nesting depth of the construct being targeted (computed
	// at transpile time from the WASM relative-depth operand and the
	// current block's own absolute depth -- see doBr). Each enclosing
	// construct, on exit, compares branchDepthLocal against its own
	// absolute depth: a match means this construct was the target (clear
	// isBranching and resume normal flow); otherwise the flag must keep
	// propagating untouched to the next enclosing construct.
	isBranchingLocal uint32
	branchDepthLocal uint32

	// loopBlockCounter names the per-loop argument/result locals
	// allocated by lowerLoop uniquely within the function.
	loopBlockCounter uint32
}

// NewFunctionTranspiler prepares a transpiler for one function's body.
func NewFunctionTranspiler(mb *irext.ModuleBuilder, reg *stdobjects.Registry, fd wasmfront.FunctionModuleData, funcs []ir.FunctionHandle, globals []ir.GlobalVariableHandle) (*FunctionTranspiler, error) {
	if int(fd.Unit.TypeIndex) >= len(fd.Accessible.Types) {
		return nil, fmt.Errorf("transpile: function %d: type index %d out of range", fd.Index, fd.Unit.TypeIndex)
	}
	sig := fd.Accessible.Types[fd.Unit.TypeIndex]

	args := make([]ir.FunctionArgument, len(sig.Params))
	localValTypes := append([]wasmfront.ValType(nil), sig.Params...)
	for i, p := range sig.Params {
		args[i] = ir.FunctionArgument{Name: fmt.Sprintf("arg%d", i), Type: irTypeFor(reg, p)}
	}
	for _, run := range fd.Unit.Locals {
		for i := uint32(0); i < run.Count; i++ {
			localValTypes = append(localValTypes, run.Type)
		}
	}

	var result *ir.FunctionResult
	if len(sig.Results) == 1 {
		result = &ir.FunctionResult{Type: irTypeFor(reg, sig.Results[0])}
	} else if len(sig.Results) > 1 {
		return nil, fmt.Errorf("transpile: function %d: multi-value results not supported", fd.Index)
	}

	fb := irext.NewFunctionBuilder(mb, fmt.Sprintf("func_%d", fd.Index), args, result)

	t := &FunctionTranspiler{
		mb:            mb,
		fb:            fb,
		reg:           reg,
		accessible:    fd.Accessible,
		funcs:         funcs,
		globals:       globals,
		localValTypes: localValTypes,
	}

	// Declared (non-parameter) locals get real naga LocalVariables,
	// zero-initialized per WASM semantics.
	t.localIRIndex = make([]uint32, len(localValTypes))
	for i := len(sig.Params); i < len(localValTypes); i++ {
		vt := localValTypes[i]
		idx := fb.AddLocal(ir.LocalVariable{Name: fmt.Sprintf("local%d", i), Type: irTypeFor(reg, vt)})
		t.localIRIndex[i] = idx
	}

	t.isBranchingLocal = fb.AddLocal(ir.LocalVariable{Name: "is_branching", Type: reg.Bool})
	t.branchDepthLocal = fb.AddLocal(ir.LocalVariable{Name: "branch_depth", Type: reg.I32})

	return t, nil
}

// irTypeFor maps a WASM value type to the corresponding naga type handle in
// the standard-objects registry.
func irTypeFor(reg *stdobjects.Registry, vt wasmfront.ValType) ir.TypeHandle {
	switch vt {
	case wasmfront.ValTypeI32:
		return reg.I32
	case wasmfront.ValTypeI64:
		return reg.I64
	case wasmfront.ValTypeF32:
		return reg.F32
	case wasmfront.ValTypeF64:
		return reg.F64
	default:
		// Reference types (funcref/externref) and v128 are represented
		// as opaque i32 handles/indices. call_indirect itself is not
		// lowered (it is reported as an unsupported operator).
		return reg.I32
	}
}

// Transpile runs the function's whole body through transpileBlock and
// returns the finished ir.Function. A WASM function body has no explicit
// `return` at the end; falling off the end of the instruction stream with a
// value still on the operand stack *is* the return, so that case is handled
// here rather than inside transpileBlock (which only sees `return`/
// `unreachable`/`br` as early exits). The function's own body is depth 0,
// the implicit outermost structured-control-flow construct every `br`'s
// relative depth is ultimately counted from.
func (t *FunctionTranspiler) Transpile(body []wasmfront.Operator) (*ir.Function, error) {
	pos := 0
	ctx := irext.NewBlockContext(t.fb)
	block, state, err := t.transpileBlock(body, &pos, blockPlain, wasmfront.BlockType{Empty: true}, 0)
	if err != nil {
		return nil, err
	}
	for _, s := range block {
		ctx.Push(s.Kind)
	}

	if state.IsNone() {
		// Fell off the end of the body normally: whatever the WASM type
		// checker left on the stack (nothing, for a void function) is the
		// implicit return value.
		if len(t.stack) > 0 {
			v, perr := t.pop()
			if perr != nil {
				return nil, perr
			}
			ctx.Push(ir.StmtReturn{Value: &v})
		} else {
			ctx.Push(ir.StmtReturn{})
		}
	}

	fn := t.fb.Function()
	fn.Body = ctx.Block()
	return fn, nil
}

// transpileBlock processes operators starting at *pos (which must point
// just past the block/loop/if header, or at index 0 for the function's
// implicit outer block) up to and including the matching `end` (or, for an
// if's true arm, an `else`/`end`), appending statements to a fresh
// BlockContext. depth is this block's own absolute nesting depth (0 for the
// function's implicit top-level block), used to compute the absolute
// target of any `br`/`br_if` encountered directly inside it and to
// recognize when a branch or a guaranteed nested exit targets this
// construct. It returns the built ir.Block and the ExitState describing
// whether/how control might leave this block early (relative to this
// block's own immediate parent, per ExitState's documented convention).
func (t *FunctionTranspiler) transpileBlock(ops []wasmfront.Operator, pos *int, kind blockKind, bt wasmfront.BlockType, depth uint32) (ir.Block, ExitState, error) {
	ctx := irext.NewBlockContext(t.fb)
	state := NoExit()

	for *pos < len(ops) {
		op := ops[*pos]
		*pos++

		switch o := op.(type) {
		case wasmfront.OpEnd:
			return ctx.Block(), state, nil
		case wasmfront.OpElse:
			if kind == blockIf {
				return ctx.Block(), state, nil
			}
			return nil, NoExit(), fmt.Errorf("transpile: unexpected else outside if")

		case wasmfront.OpBlock:
			childState, err := t.lowerNested(ctx, ops, pos, blockPlain, o.Type, depth)
			if err != nil {
				return nil, NoExit(), err
			}
			state = Concat(state, childState)
			if done, block, newState, err := t.afterPossibleBranch(ctx, ops, pos, kind, bt, depth, state); done {
				return block, newState, err
			}

		case wasmfront.OpLoop:
			childState, err := t.lowerNested(ctx, ops, pos, blockLoop, o.Type, depth)
			if err != nil {
				return nil, NoExit(), err
			}
			state = Concat(state, childState)
			if done, block, newState, err := t.afterPossibleBranch(ctx, ops, pos, kind, bt, depth, state); done {
				return block, newState, err
			}

		case wasmfront.OpIf:
			childState, err := t.lowerIf(ctx, ops, pos, o.Type, depth)
			if err != nil {
				return nil, NoExit(), err
			}
			state = Concat(state, childState)
			if done, block, newState, err := t.afterPossibleBranch(ctx, ops, pos, kind, bt, depth, state); done {
				return block, newState, err
			}

		case wasmfront.OpBr:
			t.doBr(ctx, depth, o.RelativeDepth)
			state = Concat(state, Unconditional(o.RelativeDepth))
			skipToBlockEnd(ops, pos, kind)
			return ctx.Block(), state, nil

		case wasmfront.OpBrIf:
			cond, err := t.pop()
			if err != nil {
				return nil, NoExit(), err
			}
			t.doBrIf(ctx, depth, t.toBool(ctx, cond), o.RelativeDepth)
			state = Concat(state, Conditional(o.RelativeDepth))
			if done, block, newState, err := t.afterPossibleBranch(ctx, ops, pos, kind, bt, depth, state); done {
				return block, newState, err
			}

		case wasmfront.OpReturn:
			t.doReturn(ctx)
			state = Concat(state, Unconditional(maxDepth))
			skipToBlockEnd(ops, pos, kind)
			return ctx.Block(), state, nil

		case wasmfront.OpUnreachable:
			stdobjects.EmitTrap(ctx, t.fb, t.reg, trap.Unreachable)
			t.doReturn(ctx)
			state = Concat(state, Unconditional(maxDepth))
			skipToBlockEnd(ops, pos, kind)
			return ctx.Block(), state, nil

		default:
			if err := t.lowerOperator(ctx, op); err != nil {
				return nil, NoExit(), err
			}
		}
	}
	return ctx.Block(), state, fmt.Errorf("transpile: unterminated block")
}

// maxDepth is used for `return`/`unreachable`, which unconditionally exit
// every enclosing block no matter how deep; doReturn stores it directly
// into branchDepthLocal as a sentinel no real absolute nesting depth can
// ever equal, so no enclosing construct ever mistakes a propagating return
// for a branch that targets it.
const maxDepth = ^uint32(0)

// skipToBlockEnd advances *pos past operators that can never execute --
// dead code following a guaranteed exit (`br`/`return`/`unreachable`, or a
// nested construct whose combined ExitState is unconditional past this
// block) -- tracking nested block/loop/if headers so it stops at the
// matching `end` (or `else`, for an if's true arm) without transpiling
// anything in between. WASM validation permits, but does not require,
// trailing dead code after a guaranteed exit; naga statements always
// execute once reached, so dead code has no representation and must not be
// built at all (spec.md §4.3 point 5).
func skipToBlockEnd(ops []wasmfront.Operator, pos *int, kind blockKind) {
	nesting := 0
	for *pos < len(ops) {
		op := ops[*pos]
		switch op.(type) {
		case wasmfront.OpBlock, wasmfront.OpLoop, wasmfront.OpIf:
			nesting++
		case wasmfront.OpElse:
			if nesting == 0 && kind == blockIf {
				*pos++
				return
			}
		case wasmfront.OpEnd:
			if nesting == 0 {
				*pos++
				return
			}
			nesting--
		}
		*pos++
	}
}

// afterPossibleBranch is invoked immediately after any operator whose
// resulting ExitState shows is_branching could now be set at runtime: a
// br_if, or a nested block/loop/if whose own exit state, once decremented
// into this block's frame, still reaches past it (spec.md §4.3 point 4).
//
//   - If a guaranteed exit has now occurred on every path (UpperUnconditional
//     set), everything left in this block is unreachable and is skipped via
//     skipToBlockEnd rather than built into IR.
//   - If only a conditional exit is possible (LowerConditional set), the
//     remaining operators are transpiled as a separate continuation of this
//     same block and spliced in behind an `if !is_branching` guard (built as
//     `Test(is_branching).Otherwise(rest)`, i.e. "if is_branching {} else
//     { rest }"), so they run only on the path where nothing has branched
//     past this point yet.
//   - Otherwise (neither set) the caller should keep processing operators
//     normally; done is false and the other return values are meaningless.
func (t *FunctionTranspiler) afterPossibleBranch(ctx *irext.BlockContext, ops []wasmfront.Operator, pos *int, kind blockKind, bt wasmfront.BlockType, depth uint32, state ExitState) (done bool, block ir.Block, newState ExitState, err error) {
	switch {
	case state.UpperUnconditional != nil:
		skipToBlockEnd(ops, pos, kind)
		return true, ctx.Block(), state, nil

	case state.LowerConditional != nil:
		restBlock, restState, err := t.transpileBlock(ops, pos, kind, bt, depth)
		if err != nil {
			return true, nil, NoExit(), err
		}
		isBranchingPtr := ctx.Expr(ir.ExprLocalVariable{Variable: t.isBranchingLocal})
		isBranching := ctx.Expr(ir.ExprLoad{Pointer: isBranchingPtr})
		ctx.Test(isBranching).Otherwise(func(els *irext.BlockContext) {
			for _, s := range restBlock {
				els.Push(s.Kind)
			}
		})
		return true, ctx.Block(), Concat(state, restState), nil

	default:
		return false, nil, NoExit(), nil
	}
}

// lowerNested transpiles a nested plain block or loop body and wraps it in
// the appropriate ir.Statement. Loops get the full block argument/result
// local treatment (lowerLoop): a back edge re-executes the same IR
// statements, so a loop-carried value referenced inside the body must be
// reloaded from a local on every pass rather than reused as a stale
// expression handle computed by a previous iteration (spec.md §4.3's
// block-argument/result-local scheme). Plain blocks execute at most once
// with no back edge, so the shared operand-handle stack already carries
// their block arguments/results correctly with no phi hazard -- see
// DESIGN.md for the equivalence argument -- and only need the branching-flag
// clear at close. Returns the ExitState as seen by the *parent* block (i.e.
// already Decrement()-ed).
func (t *FunctionTranspiler) lowerNested(parent *irext.BlockContext, ops []wasmfront.Operator, pos *int, kind blockKind, bt wasmfront.BlockType, depth uint32) (ExitState, error) {
	childDepth := depth + 1

	if kind == blockLoop {
		return t.lowerLoop(parent, ops, pos, bt, childDepth)
	}

	childBlock, childState, err := t.transpileBlock(ops, pos, kind, bt, childDepth)
	if err != nil {
		return NoExit(), err
	}
	childBlock = t.clearFlagIfTargetingThis(childBlock, childDepth)
	parent.Push(ir.StmtBlock{Block: childBlock})
	return childState.Decrement(), nil
}

// lowerLoop implements the loop-specific half of spec.md §4.3's block
// argument/result locals. bt's parameter types get one argument local each;
// its result types get one result local each. Entering the loop pops the
// block's arguments off the outer stack into the argument locals and pushes
// load(argument_local) as the body's initial stack values. The body is then
// transpiled, closed with closeLoopBody (spills trailing stack values into
// the result locals and wires the runtime continue/break dispatch) and
// prependTrapPoll (the cooperative trap-polling check spec.md §4.3 and §8.5
// require at the top of every loop body). Finally, load(result_local) is
// pushed back onto the outer stack for the code following the loop.
//
// If a loop's parameter count differs from its result count (legal in WASM
// but unusual -- most loops carry state the same way in and out), the r0
// continue action only copies as many result locals into argument locals
// as both have in common; see DESIGN.md.
func (t *FunctionTranspiler) lowerLoop(parent *irext.BlockContext, ops []wasmfront.Operator, pos *int, bt wasmfront.BlockType, depth uint32) (ExitState, error) {
	sig := bt.Resolve(t.accessible.Types)
	blockID := t.loopBlockCounter
	t.loopBlockCounter++

	argLocals := t.addBlockLocals(blockID, "arg", sig.Params)
	resultLocals := t.addBlockLocals(blockID, "result", sig.Results)

	if err := t.enterBlockArgs(parent, argLocals, sig.Params); err != nil {
		return NoExit(), err
	}

	childBlock, childState, err := t.transpileBlock(ops, pos, blockLoop, bt, depth)
	if err != nil {
		return NoExit(), err
	}

	childBlock, err = t.closeLoopBody(childBlock, depth, argLocals, resultLocals, sig.Results)
	if err != nil {
		return NoExit(), err
	}
	childBlock = t.prependTrapPoll(childBlock)
	parent.Push(ir.StmtLoop{Body: childBlock})

	t.exitBlockResults(parent, resultLocals, sig.Results)

	return childState.Decrement(), nil
}

// addBlockLocals allocates one naga local per type, named uniquely within
// the function by blockID/role/index.
func (t *FunctionTranspiler) addBlockLocals(blockID uint32, role string, types []wasmfront.ValType) []uint32 {
	locals := make([]uint32, len(types))
	for i, vt := range types {
		locals[i] = t.fb.AddLocal(ir.LocalVariable{
			Name: fmt.Sprintf("loop%d_%s%d", blockID, role, i),
			Type: irTypeFor(t.reg, vt),
		})
	}
	return locals
}

// enterBlockArgs pops len(types) values off the outer stack, stores each
// into its argument local (in order), then pushes load(argument_local) back
// as the body's initial stack values.
func (t *FunctionTranspiler) enterBlockArgs(ctx *irext.BlockContext, locals []uint32, types []wasmfront.ValType) error {
	args := make([]ir.ExpressionHandle, len(types))
	for i := len(types) - 1; i >= 0; i-- {
		v, err := t.pop()
		if err != nil {
			return err
		}
		args[i] = v
	}
	for i, v := range args {
		ptr := ctx.Expr(ir.ExprLocalVariable{Variable: locals[i]})
		ctx.Store(ptr, v)
	}
	for i, vt := range types {
		ptr := ctx.Expr(ir.ExprLocalVariable{Variable: locals[i]})
		t.push(ctx.Expr(ir.ExprLoad{Pointer: ptr}), vt)
	}
	return nil
}

// exitBlockResults pushes load(result_local) for each result type back onto
// the outer stack, the memory-mediated counterpart of popping a block's
// arguments on entry.
func (t *FunctionTranspiler) exitBlockResults(ctx *irext.BlockContext, locals []uint32, types []wasmfront.ValType) {
	for i, vt := range types {
		ptr := ctx.Expr(ir.ExprLocalVariable{Variable: locals[i]})
		t.push(ctx.Expr(ir.ExprLoad{Pointer: ptr}), vt)
	}
}

// closeLoopBody appends, at the bottom of a translated loop body, the spill
// of the body's trailing stack values into the loop's result locals and the
// runtime branch dispatch: if a br/br_if 0 (absolute depth == depth)
// targeted this exact loop, the branching flag is cleared, the result
// locals are copied back into the argument locals (the r0 branch action: a
// loop-carried value for the next iteration), and the body repeats via
// naga's default StmtLoop behaviour. Any other case -- an outer-targeting
// branch still propagating, or plain fall-through with no branch at all --
// must explicitly break: unlike WASM's loop, whose default exit is falling
// off the end, naga repeats Body until an explicit break/return/kill
// (ir/statement.go's StmtLoop doc comment), so natural fall-through needs an
// explicit break here to match WASM's "loop breaks at the bottom" default
// exit (spec.md §4.3, Testable Property §8.5).
func (t *FunctionTranspiler) closeLoopBody(body ir.Block, depth uint32, argLocals, resultLocals []uint32, resultTypes []wasmfront.ValType) (ir.Block, error) {
	ctx := irext.NewBlockContext(t.fb)
	for _, s := range body {
		ctx.Push(s.Kind)
	}

	for i := len(resultTypes) - 1; i >= 0; i-- {
		v, err := t.pop()
		if err != nil {
			return nil, err
		}
		ptr := ctx.Expr(ir.ExprLocalVariable{Variable: resultLocals[i]})
		ctx.Store(ptr, v)
	}

	isBranchingPtr := ctx.Expr(ir.ExprLocalVariable{Variable: t.isBranchingLocal})
	isBranching := ctx.Expr(ir.ExprLoad{Pointer: isBranchingPtr})
	depthPtr := ctx.Expr(ir.ExprLocalVariable{Variable: t.branchDepthLocal})
	branchDepth := ctx.Expr(ir.ExprLoad{Pointer: depthPtr})
	target := ctx.Expr(ir.Literal{Value: ir.LiteralI32(int32(depth))})
	targetsThis := ctx.Expr(ir.ExprBinary{Op: ir.BinaryEqual, Left: branchDepth, Right: target})
	continuing := ctx.Expr(ir.ExprBinary{Op: ir.BinaryLogicalAnd, Left: isBranching, Right: targetsThis})

	carried := len(argLocals)
	if len(resultLocals) < carried {
		carried = len(resultLocals)
	}

	ctx.Test(continuing).Then(func(then *irext.BlockContext) {
		falseConst := then.Expr(ir.Literal{Value: ir.LiteralBool(false)})
		then.Store(isBranchingPtr, falseConst)
		for i := 0; i < carried; i++ {
			rp := then.Expr(ir.ExprLocalVariable{Variable: resultLocals[i]})
			rv := then.Expr(ir.ExprLoad{Pointer: rp})
			ap := then.Expr(ir.ExprLocalVariable{Variable: argLocals[i]})
			then.Store(ap, rv)
		}
		then.Push(ir.StmtContinue{})
	}).Otherwise(func(els *irext.BlockContext) {
		els.Push(ir.StmtBreak{})
	})

	return ctx.Block(), nil
}

// prependTrapPoll wraps body with a leading `if load(trap_state) != 0 {
// break }`: without it, an invocation that has already trapped but is
// still inside a polling loop whose condition never goes false on its own
// would spin forever, since the only thing that can stop a GPU kernel
// partway is cooperative polling (spec.md §4.3, §8.5).
func (t *FunctionTranspiler) prependTrapPoll(body ir.Block) ir.Block {
	ctx := irext.NewBlockContext(t.fb)
	trapPtr := ctx.Expr(ir.ExprGlobalVariable{Variable: t.reg.TrapState})
	trapVal := ctx.Expr(ir.ExprLoad{Pointer: trapPtr})
	zero := ctx.Expr(ir.ExprZeroValue{Type: t.reg.TrapStateType})
	trapped := ctx.Expr(ir.ExprBinary{Op: ir.BinaryNotEqual, Left: trapVal, Right: zero})
	ctx.Test(trapped).Then(func(then *irext.BlockContext) {
		then.Push(ir.StmtBreak{})
	}).Emit()
	for _, s := range body {
		ctx.Push(s.Kind)
	}
	return ctx.Block()
}

// lowerIf transpiles an `if` construct: the condition was already pushed
// by the preceding WASM opcode stream per the stack-machine's normal
// convention, so it is popped here, then the true arm is read up to
// `else`/`end` and the false arm (if an `else` was present) up to `end`.
// Both arms are built at the same absolute depth (an if construct, like a
// block or loop, counts as exactly one level of nesting for `br`'s relative
// depth operand); only one of the two arms ever actually executes, so the
// branching-flag clear for this construct is appended once, in the parent
// context, right after the ir.StmtIf itself, rather than duplicated into
// each arm.
func (t *FunctionTranspiler) lowerIf(parent *irext.BlockContext, ops []wasmfront.Operator, pos *int, bt wasmfront.BlockType, depth uint32) (ExitState, error) {
	cond, err := t.pop()
	if err != nil {
		return NoExit(), err
	}
	childDepth := depth + 1

	acceptBlock, acceptState, err := t.transpileBlock(ops, pos, blockIf, bt, childDepth)
	if err != nil {
		return NoExit(), err
	}

	var rejectBlock ir.Block
	rejectState := NoExit()
	// transpileBlock returned because it hit `else` (kind==blockIf) or
	// `end`; peek the token just consumed to tell which.
	if (*pos)-1 >= 0 && (*pos)-1 < len(ops) {
		if _, wasElse := ops[(*pos)-1].(wasmfront.OpElse); wasElse {
			rejectBlock, rejectState, err = t.transpileBlock(ops, pos, blockIf, bt, childDepth)
			if err != nil {
				return NoExit(), err
			}
		}
	}

	// Without an else arm, the false path's "block arguments" pass
	// through as its results (spec.md §4.3: "if without else records the
	// popped arguments as the block's results, identity on the false
	// path"). This transpiler does not yet carry multi-value block
	// results on the stack (see DESIGN.md), so there is nothing further
	// to wire here beyond emitting the bare ir.StmtIf.
	parent.Push(ir.StmtIf{Condition: cond, Accept: acceptBlock, Reject: rejectBlock})
	t.clearFlagInline(parent, childDepth)

	combined := Union(acceptState, rejectState)
	return combined.Decrement(), nil
}

// clearFlagInline appends an `if is_branching && branch_depth ==
// targetDepth { is_branching = false }` check directly into ctx.
func (t *FunctionTranspiler) clearFlagInline(ctx *irext.BlockContext, targetDepth uint32) {
	isBranchingPtr := ctx.Expr(ir.ExprLocalVariable{Variable: t.isBranchingLocal})
	isBranching := ctx.Expr(ir.ExprLoad{Pointer: isBranchingPtr})
	depthPtr := ctx.Expr(ir.ExprLocalVariable{Variable: t.branchDepthLocal})
	depthVal := ctx.Expr(ir.ExprLoad{Pointer: depthPtr})
	target := ctx.Expr(ir.Literal{Value: ir.LiteralI32(int32(targetDepth))})
	depthMatches := ctx.Expr(ir.ExprBinary{Op: ir.BinaryEqual, Left: depthVal, Right: target})
	cond := ctx.Expr(ir.ExprBinary{Op: ir.BinaryLogicalAnd, Left: isBranching, Right: depthMatches})
	ctx.Test(cond).Then(func(then *irext.BlockContext) {
		falseConst := then.Expr(ir.Literal{Value: ir.LiteralBool(false)})
		then.Store(isBranchingPtr, falseConst)
	}).Emit()
}

// clearFlagIfTargetingThis rebuilds block with clearFlagInline's check
// appended as a trailing statement; used by lowerNested's plain-block case,
// where (unlike lowerIf) the check belongs inside the child block itself
// rather than after a statement already pushed to the parent.
func (t *FunctionTranspiler) clearFlagIfTargetingThis(block ir.Block, targetDepth uint32) ir.Block {
	ctx := irext.NewBlockContext(t.fb)
	for _, s := range block {
		ctx.Push(s.Kind)
	}
	t.clearFlagInline(ctx, targetDepth)
	return ctx.Block()
}
