// Package irext provides ergonomic, composable helpers for building naga IR
// by hand, the way code generators and transpilers need to rather than the
// way a textual-source lowerer does. It is grounded on the original crate's
// naga-ext ModuleExt/FunctionsExt/ConstantsExt/TypesExt/LocalsExt/
// ExpressionsExt/BlockExt extension-trait layer; Go has no extension
// traits, so the same affordances are plain methods on owning builder types
// instead of traits implemented for ir.Module/ir.Function.
package irext

import (
	"math"

	"github.com/gogpu/wasmgpu/ir"
)

// ModuleBuilder accumulates a Module under construction, providing
// deduplicating accessors for types and constants the way the original's
// ModuleExt/TypesExt/ConstantsExt did.
type ModuleBuilder struct {
	module *ir.Module
	types  *ir.TypeRegistry
	// constIndex deduplicates scalar constants by their normalized key so
	// that e.g. every occurrence of the i32 literal 0 shares one Constant.
	constIndex map[string]ir.ConstantHandle
}

// NewModuleBuilder creates an empty module builder.
func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{
		module:     &ir.Module{},
		types:      ir.NewTypeRegistry(),
		constIndex: make(map[string]ir.ConstantHandle),
	}
}

// Module returns the module built so far. Call this once building is
// complete; the returned pointer aliases the builder's internal state and
// must not be mutated directly afterwards.
func (b *ModuleBuilder) Module() *ir.Module {
	b.module.Types = b.types.GetTypes()
	return b.module
}

// Type interns a type by structural identity, returning its handle. Two
// calls with structurally identical inner types return the same handle.
func (b *ModuleBuilder) Type(name string, inner ir.TypeInner) ir.TypeHandle {
	return b.types.GetOrCreate(name, inner)
}

// ScalarType is a convenience wrapper for Type(..., ir.ScalarType{...}).
func (b *ModuleBuilder) ScalarType(kind ir.ScalarKind, width uint8) ir.TypeHandle {
	return b.Type("", ir.ScalarType{Kind: kind, Width: width})
}

// PointerType interns a pointer-to-base type in the given address space.
func (b *ModuleBuilder) PointerType(base ir.TypeHandle, space ir.AddressSpace) ir.TypeHandle {
	return b.Type("", ir.PointerType{Base: base, Space: space})
}

// ConstU32 interns (deduplicated) a u32 scalar constant and returns its
// handle, mirroring ConstantsExt::get_u32_constant.
func (b *ModuleBuilder) ConstU32(v uint32) ir.ConstantHandle {
	return b.internScalar("u32", ir.ScalarValue{Bits: uint64(v), Kind: ir.ScalarUint}, 4)
}

// ConstI32 interns a signed i32 scalar constant.
func (b *ModuleBuilder) ConstI32(v int32) ir.ConstantHandle {
	return b.internScalar("i32", ir.ScalarValue{Bits: uint64(uint32(v)), Kind: ir.ScalarSint}, 4)
}

// ConstF32 interns an f32 scalar constant.
func (b *ModuleBuilder) ConstF32(v float32) ir.ConstantHandle {
	bits := uint64(math.Float32bits(v))
	return b.internScalar("f32", ir.ScalarValue{Bits: bits, Kind: ir.ScalarFloat}, 4)
}

// ConstBool interns a bool scalar constant.
func (b *ModuleBuilder) ConstBool(v bool) ir.ConstantHandle {
	bits := uint64(0)
	if v {
		bits = 1
	}
	return b.internScalar("bool", ir.ScalarValue{Bits: bits, Kind: ir.ScalarBool}, 1)
}

func (b *ModuleBuilder) internScalar(tag string, v ir.ScalarValue, width uint8) ir.ConstantHandle {
	key := tag + ":" + itoa(v.Bits)
	if h, ok := b.constIndex[key]; ok {
		return h
	}
	typeHandle := b.ScalarType(v.Kind, width)
	h := ir.ConstantHandle(len(b.module.Constants))
	b.module.Constants = append(b.module.Constants, ir.Constant{Type: typeHandle, Value: v})
	b.constIndex[key] = h
	return h
}

// AddGlobal appends a global variable, returning its handle.
func (b *ModuleBuilder) AddGlobal(g ir.GlobalVariable) ir.GlobalVariableHandle {
	h := ir.GlobalVariableHandle(len(b.module.GlobalVariables))
	b.module.GlobalVariables = append(b.module.GlobalVariables, g)
	return h
}

// AddFunction appends a fully-built function and returns its handle. Used
// directly for functions with no forward references (e.g. entry-point
// wrappers, added after every WASM function body is transpiled); functions
// that may be called before their own body exists go through
// ReserveFunction/SetFunction instead.
func (b *ModuleBuilder) AddFunction(fn ir.Function) ir.FunctionHandle {
	h := ir.FunctionHandle(len(b.module.Functions))
	b.module.Functions = append(b.module.Functions, fn)
	return h
}

// ReserveFunction appends a placeholder function and returns its handle
// immediately, before the function's body has been transpiled. Recursive
// and mutually-recursive WASM call graphs have no valid CallOrder (callees
// would need to precede callers, which is impossible for a cycle), so the
// assemble package reserves every function's handle up front in WASM index
// order and fills in the real body afterwards via SetFunction.
func (b *ModuleBuilder) ReserveFunction() ir.FunctionHandle {
	h := ir.FunctionHandle(len(b.module.Functions))
	b.module.Functions = append(b.module.Functions, ir.Function{})
	return h
}

// SetFunction overwrites a previously reserved function's body in place.
func (b *ModuleBuilder) SetFunction(h ir.FunctionHandle, fn ir.Function) {
	b.module.Functions[h] = fn
}

// AddEntryPoint appends an entry point descriptor.
func (b *ModuleBuilder) AddEntryPoint(ep ir.EntryPoint) {
	b.module.EntryPoints = append(b.module.EntryPoints, ep)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
