// Package stdobjects builds the per-module "standard objects" every
// transpiled function shares: the naga type handles for each WASM value
// type, the trap_state global used for cooperative fault reporting, the
// linear-memory storage buffer binding, and the float helpers needed to
// emulate IEEE-754 subnormal behaviour on GPUs that flush denormals to
// zero.
//
// It is grounded on the original crate's std_objects.rs generator_struct!
// macro (a self-referential struct of lazily-built, dependency-ordered
// fields) and std_objects/wasm_tys/native_f32.rs (the subnormal emulation
// arithmetic). Go has no field-level laziness via macros, so the same
// dependency order is expressed as a plain constructor function that
// builds fields in the order later ones need them — the generator macro's
// only real job was exactly this ordering.
package stdobjects

import (
	"github.com/gogpu/wasmgpu/ir"
	"github.com/gogpu/wasmgpu/irext"
	"github.com/gogpu/wasmgpu/trap"
)

// MemoryLayout selects how multiple GPU invocations share or partition a
// single linear-memory storage buffer.
type MemoryLayout uint8

const (
	// MemorySharedAddressing gives every invocation the same address space
	// (used when each invocation operates on independent WASM instances
	// backed by disjoint host buffers already, or when memory is truly
	// shared, e.g. atomics-heavy kernels).
	MemorySharedAddressing MemoryLayout = iota
	// MemoryDisjointAddressing interleaves N WASM instances' linear
	// memories inside one GPU buffer, addressed by
	// (addr/stride)*invocations_count + stride*instance_id + (addr%stride).
	MemoryDisjointAddressing
)

// Tuneables mirrors the original crate's Tuneables/FloatingPointOptions;
// see SPEC_FULL.md Ambient Stack > Configuration.
type Tuneables struct {
	FloatingPoint    FloatingPointOptions
	Memory           MemoryLayout
	MemoryStrideWords uint32
	Workgroup        [3]uint32
}

// FloatingPointOptions controls IEEE-754 edge-case fidelity.
type FloatingPointOptions struct {
	// EmulateSubnormals scales subnormal f32 operands up before a native
	// operation and the result back down, so that GPUs which flush
	// denormals to zero still produce WASM-correct results. See
	// native_f32.rs's scale_up_float/scale_down_float.
	EmulateSubnormals bool
}

// DefaultTuneables returns the conservative default: subnormal emulation
// on, shared memory addressing, a single invocation per dispatch.
func DefaultTuneables() Tuneables {
	return Tuneables{
		FloatingPoint: FloatingPointOptions{EmulateSubnormals: true},
		Memory:        MemorySharedAddressing,
		Workgroup:     [3]uint32{1, 1, 1},
	}
}

// Registry holds the per-module standard-objects instance: type handles
// for each WASM value kind plus the trap and memory plumbing every
// function body references.
type Registry struct {
	Tuneables Tuneables

	I32  ir.TypeHandle
	I64  ir.TypeHandle // represented as vec2<u32> (low, high) - no native 64-bit ALU in SPIR-V's Shader capability baseline
	F32  ir.TypeHandle
	F64  ir.TypeHandle
	Bool ir.TypeHandle // naga bool, the WGPU-facing boolean type

	// WasmBool is the WASM-facing i32-typed boolean (0 or 1) that every
	// WASM comparison operator produces; distinct from the shader-native
	// Bool used in structured control flow conditions, matching the
	// original's WasmBoolInstance/NagaBoolInstance split.
	WasmBool ir.TypeHandle

	TrapState     ir.GlobalVariableHandle
	TrapStateType ir.TypeHandle

	Memory     ir.GlobalVariableHandle
	MemoryType ir.TypeHandle

	InvocationID        ir.GlobalVariableHandle
	InvocationsCount     ir.GlobalVariableHandle

	// Flags is the per-invocation trap-report-out array (spec.md §5's FLAGS
	// binding): entry functions write their private TrapState into
	// Flags[invocation_id] once, as the very last thing they do, so the
	// host can read every invocation's trap code back after dispatch.
	Flags     ir.GlobalVariableHandle
	FlagsType ir.TypeHandle

	// Input and Output back the per-invocation argument/result transfer
	// (spec.md §5's INPUT/OUTPUT bindings): entry functions read their
	// arguments out of Input and write their result into Output, both at
	// an offset computed from invocation_id, instead of taking WASM
	// arguments as naga function arguments (compute entry points only
	// ever take builtins).
	Input     ir.GlobalVariableHandle
	InputType ir.TypeHandle

	Output     ir.GlobalVariableHandle
	OutputType ir.TypeHandle
}

// Build constructs the standard-objects registry against a module under
// construction. Field order mirrors dependency order in the original
// generator_struct! invocation: scalar types first, then the composite
// trap/memory globals that reference them.
func Build(mb *irext.ModuleBuilder, tune Tuneables) *Registry {
	reg := &Registry{Tuneables: tune}

	reg.I32 = mb.ScalarType(ir.ScalarSint, 4)
	reg.F32 = mb.ScalarType(ir.ScalarFloat, 4)
	reg.Bool = mb.ScalarType(ir.ScalarBool, 1)
	reg.WasmBool = reg.I32

	// i64 has no direct SPIR-V Shader-capability equivalent without the
	// Int64 capability; model it as a 2-component u32 vector (low, high)
	// the way WGSL-targeting transpilers without native 64-bit support do.
	u32Type := mb.ScalarType(ir.ScalarUint, 4)
	reg.I64 = mb.Type("WasmI64", ir.VectorType{Size: ir.Vec2, Scalar: ir.ScalarType{Kind: ir.ScalarUint, Width: 4}})

	// f64 likewise has no native SPIR-V representation without Float64;
	// emulated the same way, as a 2-component u32 bit-pattern vector that
	// arithmetic helpers decode/recompose around (not yet implemented
	// beyond bit storage: f64 arithmetic is a documented Open Question,
	// see DESIGN.md).
	reg.F64 = mb.Type("WasmF64", ir.VectorType{Size: ir.Vec2, Scalar: ir.ScalarType{Kind: ir.ScalarUint, Width: 4}})

	// trap_state is private, not storage: each GPU invocation gets its own
	// independent copy initialised to trap.None, matching spec.md §5's "a
	// per-invocation trap-state global" exactly, the way naga/WGSL private-
	// space globals are instantiated fresh per invocation. An earlier
	// revision bound this as a single SpaceStorage cell shared by every
	// invocation in the dispatch, which raced; see DESIGN.md.
	reg.TrapStateType = reg.I32
	trapInit := mb.ConstI32(int32(trap.None))
	reg.TrapState = mb.AddGlobal(ir.GlobalVariable{
		Name:  "trap_state",
		Space: ir.SpacePrivate,
		Type:  reg.TrapStateType,
		Init:  &trapInit,
	})

	// Linear memory: a runtime-sized array of u32 words in storage space.
	// Byte-granular loads/stores are synthesized by the transpile package
	// from word-granular access plus shift/mask, matching how WASM memory
	// (byte addressed) is mapped onto SPIR-V storage buffers (word
	// addressed) in every naga-ext-based transpiler.
	memArray := mb.Type("LinearMemory", ir.ArrayType{Base: u32Type, Size: ir.ArraySize{}, Stride: 4})
	reg.MemoryType = memArray
	reg.Memory = mb.AddGlobal(ir.GlobalVariable{
		Name:    "memory",
		Space:   ir.SpaceStorage,
		Type:    memArray,
		Binding: &ir.ResourceBinding{Group: 0, Binding: 0},
	})

	reg.InvocationID = mb.AddGlobal(ir.GlobalVariable{
		Name:  "invocation_id",
		Space: ir.SpacePrivate,
		Type:  reg.I32,
	})
	reg.InvocationsCount = mb.AddGlobal(ir.GlobalVariable{
		Name:    "invocations_count",
		Space:   ir.SpaceUniform,
		Type:    reg.I32,
		Binding: &ir.ResourceBinding{Group: 0, Binding: 1},
	})

	// FLAGS: one u32 trap slot per invocation, written once by the entry
	// function just before it returns.
	flagsArray := mb.Type("FlagsArray", ir.ArrayType{Base: u32Type, Size: ir.ArraySize{}, Stride: 4})
	reg.FlagsType = flagsArray
	reg.Flags = mb.AddGlobal(ir.GlobalVariable{
		Name:    "flags",
		Space:   ir.SpaceStorage,
		Type:    flagsArray,
		Binding: &ir.ResourceBinding{Group: 0, Binding: 2},
	})

	// INPUT/OUTPUT: argument and result words packed per invocation, laid
	// out by assemble.addEntryPoint (spec.md §5's "argument bytes packed
	// per invocation" / "result bytes packed per invocation").
	inputArray := mb.Type("InputArray", ir.ArrayType{Base: u32Type, Size: ir.ArraySize{}, Stride: 4})
	reg.InputType = inputArray
	reg.Input = mb.AddGlobal(ir.GlobalVariable{
		Name:    "input",
		Space:   ir.SpaceStorage,
		Type:    inputArray,
		Binding: &ir.ResourceBinding{Group: 0, Binding: 3},
	})

	outputArray := mb.Type("OutputArray", ir.ArrayType{Base: u32Type, Size: ir.ArraySize{}, Stride: 4})
	reg.OutputType = outputArray
	reg.Output = mb.AddGlobal(ir.GlobalVariable{
		Name:    "output",
		Space:   ir.SpaceStorage,
		Type:    outputArray,
		Binding: &ir.ResourceBinding{Group: 0, Binding: 4},
	})

	return reg
}

// EmitTrap stores a trap code into trap_state, guarded so the first trap to
// occur wins (spec.md §9 Open Question 1; original's emit_set_trap guard):
// the store only happens if trap_state currently reads zero.
func EmitTrap(c *irext.BlockContext, fb *irext.FunctionBuilder, reg *Registry, code trap.Code) {
	ptr := c.Expr(ir.ExprGlobalVariable{Variable: reg.TrapState})
	current := c.Expr(ir.ExprLoad{Pointer: ptr})
	zero := c.Expr(ir.ExprZeroValue{Type: reg.TrapStateType})
	isClear := c.Expr(ir.ExprBinary{Op: ir.BinaryEqual, Left: current, Right: zero})

	c.Test(isClear).Then(func(then *irext.BlockContext) {
		codeVal := then.Expr(ir.Literal{Value: ir.LiteralI32(int32(code))})
		then.Store(ptr, codeVal)
	}).Emit()
}
