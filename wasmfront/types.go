// Package wasmfront defines the input contract for the transpiler: the
// types a pre-validated WASM module is assumed to already satisfy.
//
// This is deliberately thin. Full WASM validation (type checking, stack
// discipline, import resolution) is out of scope (the spec assumes a
// validated module is handed in, mirroring how the original Rust crate sat
// downstream of wasmparser's own validating walk); wasmfront only carries
// enough structure for the transpile and assemble packages to do their job,
// grounded on tetratelabs/wazero's internal/wasm module representation.
package wasmfront

// ValType is a WASM value type.
type ValType uint8

const (
	ValTypeI32       ValType = 0x7F
	ValTypeI64       ValType = 0x7E
	ValTypeF32       ValType = 0x7D
	ValTypeF64       ValType = 0x7C
	ValTypeV128      ValType = 0x7B
	ValTypeFuncRef   ValType = 0x70
	ValTypeExternRef ValType = 0x6F
)

// String renders the value type using its WASM text-format mnemonic.
func (v ValType) String() string {
	switch v {
	case ValTypeI32:
		return "i32"
	case ValTypeI64:
		return "i64"
	case ValTypeF32:
		return "f32"
	case ValTypeF64:
		return "f64"
	case ValTypeV128:
		return "v128"
	case ValTypeFuncRef:
		return "funcref"
	case ValTypeExternRef:
		return "externref"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether the type is one of i32/i64/f32/f64/v128 (as
// opposed to a reference type).
func (v ValType) IsNumeric() bool {
	switch v {
	case ValTypeI32, ValTypeI64, ValTypeF32, ValTypeF64, ValTypeV128:
		return true
	default:
		return false
	}
}

// FuncType is a WASM function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures have identical parameter and result
// lists.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// Value is a WASM constant value, tagged by kind. Grounded on the original
// crate's typed::Val enum; used for global initializers and i32.const/
// i64.const/f32.const/f64.const operands that must be folded at transpile
// time (e.g. memory offsets, table indices).
type Value interface {
	isValue()
}

type ValueI32 int32
type ValueI64 int64
type ValueF32 float32
type ValueF64 float64
type ValueV128 [16]byte
type ValueFuncRef struct{ Index *uint32 } // nil is the null reference
type ValueExternRef struct{ Index *uint32 }

func (ValueI32) isValue()       {}
func (ValueI64) isValue()       {}
func (ValueF32) isValue()       {}
func (ValueF64) isValue()       {}
func (ValueV128) isValue()      {}
func (ValueFuncRef) isValue()   {}
func (ValueExternRef) isValue() {}

// ValType returns the value type tag for a Value.
func (v ValueI32) ValType() ValType       { return ValTypeI32 }
func (v ValueI64) ValType() ValType       { return ValTypeI64 }
func (v ValueF32) ValType() ValType       { return ValTypeF32 }
func (v ValueF64) ValType() ValType       { return ValTypeF64 }
func (v ValueV128) ValType() ValType      { return ValTypeV128 }
func (v ValueFuncRef) ValType() ValType   { return ValTypeFuncRef }
func (v ValueExternRef) ValType() ValType { return ValTypeExternRef }

// Global is a module-scope global variable.
type Global struct {
	Type    ValType
	Mutable bool
	Init    Value
}

// Memory describes a module's linear memory limits, in WASM pages (64KiB
// each).
type Memory struct {
	MinPages uint32
	MaxPages *uint32 // nil if unbounded
}

// Export associates a name with an index into one of the module's index
// spaces.
type Export struct {
	Name string
	Kind ExportKind
	// Index identifies the exported item within its Kind's index space.
	Index uint32
}

// ExportKind identifies which index space an Export refers to.
type ExportKind uint8

const (
	ExportFunc ExportKind = iota
	ExportTable
	ExportMemory
	ExportGlobal
)

// Locals describes one run of function-local variables sharing a type, as
// they are encoded in the WASM binary format's code section (a function's
// full local list is the concatenation of these runs, following the
// parameters).
type Locals struct {
	Count uint32
	Type  ValType
}

// FuncUnit is a single function's code, as decoded but not yet transpiled:
// its signature, declared locals, and raw operator stream. Grounded on the
// original crate's FuncUnit / FunctionModuleData split between per-function
// and whole-module data needed during transpilation.
type FuncUnit struct {
	TypeIndex uint32
	Locals    []Locals
	Body      []Operator
}

// FuncAccessible is the read-only module-wide context a function body's
// transpilation needs to resolve cross-references: other functions' types
// (for call/call_indirect), globals, memory limits, and table element
// types. Grounded on the original crate's FuncAccessible / FunctionModuleData.
type FuncAccessible struct {
	Types    []FuncType
	Funcs    []uint32 // type index per function, by function index
	Globals  []Global
	Memories []Memory
	// TableTypes holds the element reference type for each table; entries
	// themselves (table contents) are resolved at instantiation time and
	// are out of scope here (spec non-goal: host-side buffer lifecycle).
	TableTypes []ValType
}

// FunctionModuleData bundles a single function's own code with the shared
// module context it needs, the unit the transpile package actually consumes.
type FunctionModuleData struct {
	Index       uint32
	Unit        FuncUnit
	Accessible  *FuncAccessible
}

// FuncsInstance is the fully decoded set of a module's internal (non-import)
// functions plus the shared accessible context, the top-level input to the
// assemble package.
type FuncsInstance struct {
	Accessible *FuncAccessible
	Funcs      []FuncUnit
	Exports    []Export
	Globals    []Global
	Memories   []Memory
}

// Function returns the FunctionModuleData view for the function at index i.
func (fi *FuncsInstance) Function(i uint32) FunctionModuleData {
	return FunctionModuleData{
		Index:      i,
		Unit:       fi.Funcs[i],
		Accessible: fi.Accessible,
	}
}
