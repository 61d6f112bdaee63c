package wasmfront

// Operator is a single decoded WASM instruction, tagged by variant the same
// way naga's ir.ExpressionKind/StatementKind are: a marker interface
// implemented by one struct per instruction. Grouping by proposal (MVP,
// sign-extension, ...) mirrors the original crate's active_block/{mvp,
// sign_extension,simd,threads}.rs split, so that later proposals can be
// added as new files without touching this one.
type Operator interface {
	isOperator()
}

// BlockType describes the parameter and result arity of a structured
// control-flow operator (block/loop/if). A WASM block type is either empty,
// a single value type, or an index into the module's type section for
// multi-value signatures; Resolve turns any of those into a concrete
// FuncType against the function's accessible context.
type BlockType struct {
	Empty     bool
	ValueType ValType
	TypeIndex *uint32
}

// Resolve expands a BlockType into the FuncType it denotes.
func (bt BlockType) Resolve(types []FuncType) FuncType {
	switch {
	case bt.Empty:
		return FuncType{}
	case bt.TypeIndex != nil:
		return types[*bt.TypeIndex]
	default:
		return FuncType{Results: []ValType{bt.ValueType}}
	}
}

// --- Control instructions -------------------------------------------------

type OpUnreachable struct{}
type OpNop struct{}
type OpBlock struct{ Type BlockType }
type OpLoop struct{ Type BlockType }
type OpIf struct{ Type BlockType }
type OpElse struct{}
type OpEnd struct{}
type OpBr struct{ RelativeDepth uint32 }
type OpBrIf struct{ RelativeDepth uint32 }
type OpBrTable struct {
	Targets []uint32
	Default uint32
}
type OpReturn struct{}
type OpCall struct{ FuncIndex uint32 }
type OpCallIndirect struct {
	TypeIndex  uint32
	TableIndex uint32
}

func (OpUnreachable) isOperator()  {}
func (OpNop) isOperator()          {}
func (OpBlock) isOperator()        {}
func (OpLoop) isOperator()         {}
func (OpIf) isOperator()           {}
func (OpElse) isOperator()         {}
func (OpEnd) isOperator()          {}
func (OpBr) isOperator()           {}
func (OpBrIf) isOperator()         {}
func (OpBrTable) isOperator()      {}
func (OpReturn) isOperator()       {}
func (OpCall) isOperator()         {}
func (OpCallIndirect) isOperator() {}

// --- Parametric / variable instructions -----------------------------------

type OpDrop struct{}
type OpSelect struct{}
type OpLocalGet struct{ LocalIndex uint32 }
type OpLocalSet struct{ LocalIndex uint32 }
type OpLocalTee struct{ LocalIndex uint32 }
type OpGlobalGet struct{ GlobalIndex uint32 }
type OpGlobalSet struct{ GlobalIndex uint32 }

func (OpDrop) isOperator()       {}
func (OpSelect) isOperator()     {}
func (OpLocalGet) isOperator()   {}
func (OpLocalSet) isOperator()   {}
func (OpLocalTee) isOperator()   {}
func (OpGlobalGet) isOperator()  {}
func (OpGlobalSet) isOperator()  {}

// --- Memory instructions ---------------------------------------------------

// MemArg is the alignment hint and offset encoded with every load/store.
type MemArg struct {
	Align  uint32 // log2 of the claimed alignment, advisory only
	Offset uint32
}

type OpI32Load struct{ Arg MemArg }
type OpI64Load struct{ Arg MemArg }
type OpF32Load struct{ Arg MemArg }
type OpF64Load struct{ Arg MemArg }
type OpI32Load8S struct{ Arg MemArg }
type OpI32Load8U struct{ Arg MemArg }
type OpI32Load16S struct{ Arg MemArg }
type OpI32Load16U struct{ Arg MemArg }
type OpI64Load8S struct{ Arg MemArg }
type OpI64Load8U struct{ Arg MemArg }
type OpI64Load16S struct{ Arg MemArg }
type OpI64Load16U struct{ Arg MemArg }
type OpI64Load32S struct{ Arg MemArg }
type OpI64Load32U struct{ Arg MemArg }
type OpI32Store struct{ Arg MemArg }
type OpI64Store struct{ Arg MemArg }
type OpF32Store struct{ Arg MemArg }
type OpF64Store struct{ Arg MemArg }
type OpI32Store8 struct{ Arg MemArg }
type OpI32Store16 struct{ Arg MemArg }
type OpI64Store8 struct{ Arg MemArg }
type OpI64Store16 struct{ Arg MemArg }
type OpI64Store32 struct{ Arg MemArg }
type OpMemorySize struct{}
type OpMemoryGrow struct{}

func (OpI32Load) isOperator()     {}
func (OpI64Load) isOperator()     {}
func (OpF32Load) isOperator()     {}
func (OpF64Load) isOperator()     {}
func (OpI32Load8S) isOperator()   {}
func (OpI32Load8U) isOperator()   {}
func (OpI32Load16S) isOperator()  {}
func (OpI32Load16U) isOperator()  {}
func (OpI64Load8S) isOperator()   {}
func (OpI64Load8U) isOperator()   {}
func (OpI64Load16S) isOperator()  {}
func (OpI64Load16U) isOperator()  {}
func (OpI64Load32S) isOperator()  {}
func (OpI64Load32U) isOperator()  {}
func (OpI32Store) isOperator()    {}
func (OpI64Store) isOperator()    {}
func (OpF32Store) isOperator()    {}
func (OpF64Store) isOperator()    {}
func (OpI32Store8) isOperator()   {}
func (OpI32Store16) isOperator()  {}
func (OpI64Store8) isOperator()   {}
func (OpI64Store16) isOperator()  {}
func (OpI64Store32) isOperator()  {}
func (OpMemorySize) isOperator()  {}
func (OpMemoryGrow) isOperator()  {}

// --- Numeric instructions --------------------------------------------------

type OpI32Const struct{ Value int32 }
type OpI64Const struct{ Value int64 }
type OpF32Const struct{ Value float32 }
type OpF64Const struct{ Value float64 }

func (OpI32Const) isOperator() {}
func (OpI64Const) isOperator() {}
func (OpF32Const) isOperator() {}
func (OpF64Const) isOperator() {}

// NumericOp identifies the remaining MVP numeric opcodes (comparisons,
// arithmetic, bitwise, conversions) that don't need their own struct fields;
// mirrors the original crate's unary!/binary! macro expansions, which all
// shared a single dispatch shape keyed by opcode.
type NumericOp uint16

const (
	OpI32Eqz NumericOp = iota
	OpI32Eq
	OpI32Ne
	OpI32LtS
	OpI32LtU
	OpI32GtS
	OpI32GtU
	OpI32LeS
	OpI32LeU
	OpI32GeS
	OpI32GeU
	OpI64Eqz
	OpI64Eq
	OpI64Ne
	OpI64LtS
	OpI64LtU
	OpI64GtS
	OpI64GtU
	OpI64LeS
	OpI64LeU
	OpI64GeS
	OpI64GeU
	OpF32Eq
	OpF32Ne
	OpF32Lt
	OpF32Gt
	OpF32Le
	OpF32Ge
	OpF64Eq
	OpF64Ne
	OpF64Lt
	OpF64Gt
	OpF64Le
	OpF64Ge
	OpI32Clz
	OpI32Ctz
	OpI32Popcnt
	OpI32Add
	OpI32Sub
	OpI32Mul
	OpI32DivS
	OpI32DivU
	OpI32RemS
	OpI32RemU
	OpI32And
	OpI32Or
	OpI32Xor
	OpI32Shl
	OpI32ShrS
	OpI32ShrU
	OpI32Rotl
	OpI32Rotr
	OpI64Clz
	OpI64Ctz
	OpI64Popcnt
	OpI64Add
	OpI64Sub
	OpI64Mul
	OpI64DivS
	OpI64DivU
	OpI64RemS
	OpI64RemU
	OpI64And
	OpI64Or
	OpI64Xor
	OpI64Shl
	OpI64ShrS
	OpI64ShrU
	OpI64Rotl
	OpI64Rotr
	OpF32Abs
	OpF32Neg
	OpF32Ceil
	OpF32Floor
	OpF32Trunc
	OpF32Nearest
	OpF32Sqrt
	OpF32Add
	OpF32Sub
	OpF32Mul
	OpF32Div
	OpF32Min
	OpF32Max
	OpF32Copysign
	OpF64Abs
	OpF64Neg
	OpF64Ceil
	OpF64Floor
	OpF64Trunc
	OpF64Nearest
	OpF64Sqrt
	OpF64Add
	OpF64Sub
	OpF64Mul
	OpF64Div
	OpF64Min
	OpF64Max
	OpF64Copysign
	OpI32WrapI64
	OpI32TruncF32S
	OpI32TruncF32U
	OpI32TruncF64S
	OpI32TruncF64U
	OpI64ExtendI32S
	OpI64ExtendI32U
	OpI64TruncF32S
	OpI64TruncF32U
	OpI64TruncF64S
	OpI64TruncF64U
	OpF32ConvertI32S
	OpF32ConvertI32U
	OpF32ConvertI64S
	OpF32ConvertI64U
	OpF32DemoteF64
	OpF64ConvertI32S
	OpF64ConvertI32U
	OpF64ConvertI64S
	OpF64ConvertI64U
	OpF64PromoteF32
	OpI32ReinterpretF32
	OpI64ReinterpretF64
	OpF32ReinterpretI32
	OpF64ReinterpretI64
)

// OpNumeric wraps a NumericOp in the Operator interface.
type OpNumeric struct{ Op NumericOp }

func (OpNumeric) isOperator() {}

// --- Sign-extension proposal ------------------------------------------------

type OpI32Extend8S struct{}
type OpI32Extend16S struct{}
type OpI64Extend8S struct{}
type OpI64Extend16S struct{}
type OpI64Extend32S struct{}

func (OpI32Extend8S) isOperator()  {}
func (OpI32Extend16S) isOperator() {}
func (OpI64Extend8S) isOperator()  {}
func (OpI64Extend16S) isOperator() {}
func (OpI64Extend32S) isOperator() {}

// --- Non-trapping float-to-int (saturating truncation) proposal ------------

type OpI32TruncSatF32S struct{}
type OpI32TruncSatF32U struct{}
type OpI32TruncSatF64S struct{}
type OpI32TruncSatF64U struct{}
type OpI64TruncSatF32S struct{}
type OpI64TruncSatF32U struct{}
type OpI64TruncSatF64S struct{}
type OpI64TruncSatF64U struct{}

func (OpI32TruncSatF32S) isOperator() {}
func (OpI32TruncSatF32U) isOperator() {}
func (OpI32TruncSatF64S) isOperator() {}
func (OpI32TruncSatF64U) isOperator() {}
func (OpI64TruncSatF32S) isOperator() {}
func (OpI64TruncSatF32U) isOperator() {}
func (OpI64TruncSatF64S) isOperator() {}
func (OpI64TruncSatF64U) isOperator() {}
