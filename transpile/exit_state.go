// Package transpile lowers a single WASM function body (a wasmfront.FuncUnit)
// into a naga ir.Function, the Function Transpiler the spec's §4.3 describes.
//
// It is grounded on the original crate's
// wasm-gpu-transpiler/src/active_function/active_block.rs: WASM's stack
// machine with multi-level `br`/`br_if` has no direct equivalent in naga
// IR's structured control flow (no goto, no labeled multi-level break), so
// every nested WASM block is lowered against a per-invocation "branching
// flag" local that records how many levels of enclosing block still need to
// unwind, and every subsequent statement in an enclosing block is gated on
// that flag being clear.
package transpile

// ExitState (the original's ControlFlowState) summarizes, for the
// statements processed so far within one nested WASM block, whether and how
// they might transfer control to an enclosing block via br/br_if/return.
// Depths are relative to the block currently being built: 0 means "exits
// this block's immediate parent", 1 means "exits the parent's parent", etc.
//
//   - UpperUnconditional: the shallowest depth at which every path taken so
//     far is guaranteed to exit (e.g. a plain `br 2` with nothing
//     conditional before it). nil means no unconditional exit is
//     guaranteed yet.
//   - LowerConditional: the shallowest depth some path might conditionally
//     exit to (e.g. one arm of an `if` contains `br_if 1`). nil means no
//     conditional exit has been observed.
//   - UpperConditional: the deepest depth any path might conditionally
//     exit to; used to decide how many enclosing branching-flag checks
//     must be threaded even when the exact target is data-dependent.
//
// All three are expressed as "how many levels past this block's immediate
// parent", matching the relative-depth encoding `br`'s operand itself uses.
type ExitState struct {
	UpperUnconditional *uint32
	LowerConditional   *uint32
	UpperConditional   *uint32
}

// NoExit is the state of a block with no possible early exit: plain
// fall-through.
func NoExit() ExitState { return ExitState{} }

// Unconditional reports an exit that is guaranteed to happen, targeting the
// given relative depth (used after a bare `br`/`return`/`unreachable`,
// where every path through the rest of the current block is dead code).
func Unconditional(depth uint32) ExitState {
	d := depth
	return ExitState{UpperUnconditional: &d, LowerConditional: &d, UpperConditional: &d}
}

// Conditional reports a possible (not guaranteed) exit at the given
// relative depth, as produced by `br_if`.
func Conditional(depth uint32) ExitState {
	d := depth
	return ExitState{LowerConditional: &d, UpperConditional: &d}
}

// IsNone reports whether the state carries no exit information at all.
func (e ExitState) IsNone() bool {
	return e.UpperUnconditional == nil && e.LowerConditional == nil && e.UpperConditional == nil
}

func minPtr(a, b *uint32) *uint32 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a < *b:
		return a
	default:
		return b
	}
}

func maxPtr(a, b *uint32) *uint32 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a > *b:
		return a
	default:
		return b
	}
}

// Union combines the exit states of two mutually exclusive paths (the
// two arms of an `if`, or the cases of a `switch`): an exit is only
// unconditional from the combined statement's perspective if it is
// unconditional on every arm; any exit possible on any arm is a possible
// (conditional) exit of the whole.
func Union(a, b ExitState) ExitState {
	var unconditional *uint32
	switch {
	case a.UpperUnconditional == nil || b.UpperUnconditional == nil:
		unconditional = nil
	default:
		unconditional = maxPtr(a.UpperUnconditional, b.UpperUnconditional)
	}
	return ExitState{
		UpperUnconditional: unconditional,
		LowerConditional:   minPtr(a.LowerConditional, b.LowerConditional),
		UpperConditional:   maxPtr(a.UpperConditional, b.UpperConditional),
	}
}

// Concat combines the exit state of a statement (first) followed
// sequentially by the rest of the block (rest). If first already
// guarantees an exit, rest is unreachable and its state is ignored
// (matching do_block's "stop processing once is_branching is guaranteed"
// short-circuit, implemented at a higher level by ActiveBlock.eatToEnd).
func Concat(first, rest ExitState) ExitState {
	if first.UpperUnconditional != nil {
		return first
	}
	return ExitState{
		UpperUnconditional: rest.UpperUnconditional,
		LowerConditional:   minPtr(first.LowerConditional, rest.LowerConditional),
		UpperConditional:   maxPtr(first.UpperConditional, rest.UpperConditional),
	}
}

// Decrement re-expresses an ExitState computed relative to a block's
// immediate parent in terms of that parent's own parent — used when
// propagating a child block's ExitState out through do_block/do_loop/do_if
// into the block that contains the `block`/`loop`/`if` construct itself.
// A depth of 0 (meaning "exits the child's immediate parent", i.e. targets
// the construct just closed) is consumed entirely and does not propagate
// further; only depths of 1 or more survive, decremented by one.
func (e ExitState) Decrement() ExitState {
	return ExitState{
		UpperUnconditional: decr(e.UpperUnconditional),
		LowerConditional:   decr(e.LowerConditional),
		UpperConditional:   decr(e.UpperConditional),
	}
}

func decr(v *uint32) *uint32 {
	if v == nil || *v == 0 {
		return nil
	}
	d := *v - 1
	return &d
}
