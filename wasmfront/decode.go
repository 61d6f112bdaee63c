package wasmfront

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decode reads a minimal subset of the WASM binary format (type, function,
// memory, global, export, and code sections) into a FuncsInstance.
//
// This is plumbing for cmd/wasm2spirv and the assemble package's tests, not
// a general-purpose WASM parser: it implements only the MVP, sign-extension,
// and non-trapping-float-to-int opcode sets, does not validate (callers are
// assumed to hand it an already-valid module, matching the original crate's
// position downstream of a validating walk), and does not support imports,
// the start section, element/data segments, or custom sections. Malformed or
// out-of-scope input produces an error or, in a few best-effort spots, a
// panic rather than a diagnosed failure.
func Decode(data []byte) (*FuncsInstance, error) {
	r := &reader{buf: data}

	magic, err := r.readN(4)
	if err != nil {
		return nil, fmt.Errorf("wasmfront: %w", err)
	}
	if string(magic) != "\x00asm" {
		return nil, fmt.Errorf("wasmfront: not a WASM binary (bad magic)")
	}
	version, err := r.readN(4)
	if err != nil {
		return nil, fmt.Errorf("wasmfront: %w", err)
	}
	if binary.LittleEndian.Uint32(version) != 1 {
		return nil, fmt.Errorf("wasmfront: unsupported WASM version")
	}

	d := &decoder{accessible: &FuncAccessible{}}

	for !r.eof() {
		id, err := r.readByte()
		if err != nil {
			return nil, fmt.Errorf("wasmfront: %w", err)
		}
		size, err := r.readVarU32()
		if err != nil {
			return nil, fmt.Errorf("wasmfront: section %d size: %w", id, err)
		}
		body, err := r.readN(int(size))
		if err != nil {
			return nil, fmt.Errorf("wasmfront: section %d body: %w", id, err)
		}
		sr := &reader{buf: body}
		switch id {
		case 1: // Type
			if err := d.decodeTypeSection(sr); err != nil {
				return nil, err
			}
		case 3: // Function
			if err := d.decodeFunctionSection(sr); err != nil {
				return nil, err
			}
		case 5: // Memory
			if err := d.decodeMemorySection(sr); err != nil {
				return nil, err
			}
		case 6: // Global
			if err := d.decodeGlobalSection(sr); err != nil {
				return nil, err
			}
		case 7: // Export
			if err := d.decodeExportSection(sr); err != nil {
				return nil, err
			}
		case 10: // Code
			if err := d.decodeCodeSection(sr); err != nil {
				return nil, err
			}
		default:
			// Unsupported section kind: skip. Import/table/element/data/
			// custom/start sections all land here; the spec treats imports
			// and the host-side instance builder as out of scope.
		}
	}

	d.accessible.Funcs = d.funcTypeIndices
	return &FuncsInstance{
		Accessible: d.accessible,
		Funcs:      d.funcs,
		Exports:    d.exports,
		Globals:    d.accessible.Globals,
		Memories:   d.accessible.Memories,
	}, nil
}

type decoder struct {
	accessible      *FuncAccessible
	funcTypeIndices []uint32
	funcs           []FuncUnit
	exports         []Export
}

func (d *decoder) decodeTypeSection(r *reader) error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		tag, err := r.readByte()
		if err != nil {
			return err
		}
		if tag != 0x60 {
			return fmt.Errorf("wasmfront: type %d: expected func type tag 0x60, got 0x%x", i, tag)
		}
		params, err := r.readValTypeVec()
		if err != nil {
			return err
		}
		results, err := r.readValTypeVec()
		if err != nil {
			return err
		}
		d.accessible.Types = append(d.accessible.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func (d *decoder) decodeFunctionSection(r *reader) error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		idx, err := r.readVarU32()
		if err != nil {
			return err
		}
		d.funcTypeIndices = append(d.funcTypeIndices, idx)
	}
	return nil
}

func (d *decoder) decodeMemorySection(r *reader) error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.readByte()
		if err != nil {
			return err
		}
		min, err := r.readVarU32()
		if err != nil {
			return err
		}
		mem := Memory{MinPages: min}
		if flags&0x1 != 0 {
			max, err := r.readVarU32()
			if err != nil {
				return err
			}
			mem.MaxPages = &max
		}
		d.accessible.Memories = append(d.accessible.Memories, mem)
	}
	return nil
}

func (d *decoder) decodeGlobalSection(r *reader) error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		vt, err := r.readValType()
		if err != nil {
			return err
		}
		mutFlag, err := r.readByte()
		if err != nil {
			return err
		}
		val, err := r.readConstExpr(vt)
		if err != nil {
			return err
		}
		d.accessible.Globals = append(d.accessible.Globals, Global{
			Type:    vt,
			Mutable: mutFlag == 1,
			Init:    val,
		})
	}
	return nil
}

func (d *decoder) decodeExportSection(r *reader) error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.readName()
		if err != nil {
			return err
		}
		kindByte, err := r.readByte()
		if err != nil {
			return err
		}
		idx, err := r.readVarU32()
		if err != nil {
			return err
		}
		d.exports = append(d.exports, Export{Name: name, Kind: ExportKind(kindByte), Index: idx})
	}
	return nil
}

func (d *decoder) decodeCodeSection(r *reader) error {
	count, err := r.readVarU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		bodySize, err := r.readVarU32()
		if err != nil {
			return err
		}
		body, err := r.readN(int(bodySize))
		if err != nil {
			return err
		}
		br := &reader{buf: body}
		unit, err := decodeFunc(br)
		if err != nil {
			return fmt.Errorf("wasmfront: function %d: %w", i, err)
		}
		if int(i) < len(d.funcTypeIndices) {
			unit.TypeIndex = d.funcTypeIndices[i]
		}
		d.funcs = append(d.funcs, unit)
	}
	return nil
}

func decodeFunc(r *reader) (FuncUnit, error) {
	localRunCount, err := r.readVarU32()
	if err != nil {
		return FuncUnit{}, err
	}
	var locals []Locals
	for i := uint32(0); i < localRunCount; i++ {
		n, err := r.readVarU32()
		if err != nil {
			return FuncUnit{}, err
		}
		vt, err := r.readValType()
		if err != nil {
			return FuncUnit{}, err
		}
		locals = append(locals, Locals{Count: n, Type: vt})
	}

	body, err := decodeOperators(r)
	if err != nil {
		return FuncUnit{}, err
	}
	return FuncUnit{Locals: locals, Body: body}, nil
}

// decodeOperators reads instructions until (and including) the function's
// closing `end`, at matching nesting depth zero. Nested block/loop/if/else/
// end are passed through as their own Operator values; the transpile
// package's ActiveBlock walks them to establish nesting, matching the
// original crate's approach of treating the whole body as a single flat
// operator stream rather than pre-building a tree.
func decodeOperators(r *reader) ([]Operator, error) {
	var ops []Operator
	depth := 0
	for {
		op, err := decodeOne(r)
		if err != nil {
			return nil, err
		}
		switch op.(type) {
		case OpBlock, OpLoop, OpIf:
			depth++
		case OpEnd:
			if depth == 0 {
				ops = append(ops, op)
				return ops, nil
			}
			depth--
		}
		ops = append(ops, op)
	}
}

func decodeOne(r *reader) (Operator, error) {
	b, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch b {
	case 0x00:
		return OpUnreachable{}, nil
	case 0x01:
		return OpNop{}, nil
	case 0x02:
		bt, err := r.readBlockType()
		return OpBlock{Type: bt}, err
	case 0x03:
		bt, err := r.readBlockType()
		return OpLoop{Type: bt}, err
	case 0x04:
		bt, err := r.readBlockType()
		return OpIf{Type: bt}, err
	case 0x05:
		return OpElse{}, nil
	case 0x0B:
		return OpEnd{}, nil
	case 0x0C:
		d, err := r.readVarU32()
		return OpBr{RelativeDepth: d}, err
	case 0x0D:
		d, err := r.readVarU32()
		return OpBrIf{RelativeDepth: d}, err
	case 0x0E:
		count, err := r.readVarU32()
		if err != nil {
			return nil, err
		}
		targets := make([]uint32, count)
		for i := range targets {
			t, err := r.readVarU32()
			if err != nil {
				return nil, err
			}
			targets[i] = t
		}
		def, err := r.readVarU32()
		return OpBrTable{Targets: targets, Default: def}, err
	case 0x0F:
		return OpReturn{}, nil
	case 0x10:
		idx, err := r.readVarU32()
		return OpCall{FuncIndex: idx}, err
	case 0x11:
		typeIdx, err := r.readVarU32()
		if err != nil {
			return nil, err
		}
		tableIdx, err := r.readVarU32()
		return OpCallIndirect{TypeIndex: typeIdx, TableIndex: tableIdx}, err
	case 0x1A:
		return OpDrop{}, nil
	case 0x1B:
		return OpSelect{}, nil
	case 0x20:
		idx, err := r.readVarU32()
		return OpLocalGet{LocalIndex: idx}, err
	case 0x21:
		idx, err := r.readVarU32()
		return OpLocalSet{LocalIndex: idx}, err
	case 0x22:
		idx, err := r.readVarU32()
		return OpLocalTee{LocalIndex: idx}, err
	case 0x23:
		idx, err := r.readVarU32()
		return OpGlobalGet{GlobalIndex: idx}, err
	case 0x24:
		idx, err := r.readVarU32()
		return OpGlobalSet{GlobalIndex: idx}, err
	case 0x28, 0x29, 0x2A, 0x2B, 0x2C, 0x2D, 0x2E, 0x2F,
		0x30, 0x31, 0x32, 0x33, 0x34, 0x35,
		0x36, 0x37, 0x38, 0x39, 0x3A, 0x3B, 0x3C, 0x3D, 0x3E:
		arg, err := r.readMemArg()
		if err != nil {
			return nil, err
		}
		return memOperator(b, arg), nil
	case 0x3F:
		if _, err := r.readByte(); err != nil { // reserved
			return nil, err
		}
		return OpMemorySize{}, nil
	case 0x40:
		if _, err := r.readByte(); err != nil { // reserved
			return nil, err
		}
		return OpMemoryGrow{}, nil
	case 0x41:
		v, err := r.readVarI32()
		return OpI32Const{Value: v}, err
	case 0x42:
		v, err := r.readVarI64()
		return OpI64Const{Value: v}, err
	case 0x43:
		bits, err := r.readN(4)
		if err != nil {
			return nil, err
		}
		return OpF32Const{Value: math.Float32frombits(binary.LittleEndian.Uint32(bits))}, nil
	case 0x44:
		bits, err := r.readN(8)
		if err != nil {
			return nil, err
		}
		return OpF64Const{Value: math.Float64frombits(binary.LittleEndian.Uint64(bits))}, nil
	case 0xC0:
		return OpI32Extend8S{}, nil
	case 0xC1:
		return OpI32Extend16S{}, nil
	case 0xC2:
		return OpI64Extend8S{}, nil
	case 0xC3:
		return OpI64Extend16S{}, nil
	case 0xC4:
		return OpI64Extend32S{}, nil
	case 0xFC:
		sub, err := r.readVarU32()
		if err != nil {
			return nil, err
		}
		return saturatingTruncOperator(sub)
	default:
		if op, ok := numericOperator(b); ok {
			return op, nil
		}
		return nil, fmt.Errorf("wasmfront: unsupported opcode 0x%02x", b)
	}
}

func saturatingTruncOperator(sub uint32) (Operator, error) {
	switch sub {
	case 0:
		return OpI32TruncSatF32S{}, nil
	case 1:
		return OpI32TruncSatF32U{}, nil
	case 2:
		return OpI32TruncSatF64S{}, nil
	case 3:
		return OpI32TruncSatF64U{}, nil
	case 4:
		return OpI64TruncSatF32S{}, nil
	case 5:
		return OpI64TruncSatF32U{}, nil
	case 6:
		return OpI64TruncSatF64S{}, nil
	case 7:
		return OpI64TruncSatF64U{}, nil
	default:
		return nil, fmt.Errorf("wasmfront: unsupported 0xFC subopcode %d (SIMD/bulk-memory not implemented)", sub)
	}
}

func memOperator(b byte, arg MemArg) Operator {
	switch b {
	case 0x28:
		return OpI32Load{Arg: arg}
	case 0x29:
		return OpI64Load{Arg: arg}
	case 0x2A:
		return OpF32Load{Arg: arg}
	case 0x2B:
		return OpF64Load{Arg: arg}
	case 0x2C:
		return OpI32Load8S{Arg: arg}
	case 0x2D:
		return OpI32Load8U{Arg: arg}
	case 0x2E:
		return OpI32Load16S{Arg: arg}
	case 0x2F:
		return OpI32Load16U{Arg: arg}
	case 0x30:
		return OpI64Load8S{Arg: arg}
	case 0x31:
		return OpI64Load8U{Arg: arg}
	case 0x32:
		return OpI64Load16S{Arg: arg}
	case 0x33:
		return OpI64Load16U{Arg: arg}
	case 0x34:
		return OpI64Load32S{Arg: arg}
	case 0x35:
		return OpI64Load32U{Arg: arg}
	case 0x36:
		return OpI32Store{Arg: arg}
	case 0x37:
		return OpI64Store{Arg: arg}
	case 0x38:
		return OpF32Store{Arg: arg}
	case 0x39:
		return OpF64Store{Arg: arg}
	case 0x3A:
		return OpI32Store8{Arg: arg}
	case 0x3B:
		return OpI32Store16{Arg: arg}
	case 0x3C:
		return OpI64Store8{Arg: arg}
	case 0x3D:
		return OpI64Store16{Arg: arg}
	case 0x3E:
		return OpI64Store32{Arg: arg}
	default:
		panic("unreachable memOperator opcode")
	}
}

// numericOperator covers the MVP comparison/arithmetic/conversion opcodes
// (0x45-0xBF), which all decode to a bare NumericOp with no operand.
func numericOperator(b byte) (Operator, bool) {
	if b < 0x45 || b > 0xBF {
		return nil, false
	}
	return OpNumeric{Op: NumericOp(b - 0x45)}, true
}
