package wasmfront

import (
	"encoding/binary"
	"fmt"
	"math"
)

func float32frombits(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func float64frombits(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// reader is a cursor over a byte slice implementing the handful of WASM
// binary-format primitives (LEB128 varints, vectors, names) the decoder
// needs. It has no relation to bufio.Reader; WASM sections are always
// fully buffered in memory before decoding (matching how wazero's own
// binary.go reads each section's bytes up front), so a plain slice cursor
// is all that's needed.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) eof() bool { return r.pos >= len(r.buf) }

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("unexpected end of input")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readN(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("unexpected end of input (need %d bytes, have %d)", n, len(r.buf)-r.pos)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) readVarU32() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, fmt.Errorf("varuint32 too long")
		}
	}
}

func (r *reader) readVarI32() (int32, error) {
	var result int64
	var shift uint
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 32 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return int32(result), nil
		}
		if shift >= 35 {
			return 0, fmt.Errorf("varint32 too long")
		}
	}
}

func (r *reader) readVarI64() (int64, error) {
	var result int64
	var shift uint
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
		if shift >= 70 {
			return 0, fmt.Errorf("varint64 too long")
		}
	}
}

func (r *reader) readValType() (ValType, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	switch ValType(b) {
	case ValTypeI32, ValTypeI64, ValTypeF32, ValTypeF64, ValTypeV128, ValTypeFuncRef, ValTypeExternRef:
		return ValType(b), nil
	default:
		return 0, fmt.Errorf("unrecognized value type byte 0x%x", b)
	}
}

func (r *reader) readValTypeVec() ([]ValType, error) {
	count, err := r.readVarU32()
	if err != nil {
		return nil, err
	}
	out := make([]ValType, count)
	for i := range out {
		vt, err := r.readValType()
		if err != nil {
			return nil, err
		}
		out[i] = vt
	}
	return out, nil
}

func (r *reader) readName() (string, error) {
	n, err := r.readVarU32()
	if err != nil {
		return "", err
	}
	b, err := r.readN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readBlockType reads a structured-control-flow block type: the single
// 0x40 "empty" byte, an encoded value type, or an SLEB128 type-section
// index (the 33-bit-signed encoding WASM uses to disambiguate from the
// single-byte value-type forms).
func (r *reader) readBlockType() (BlockType, error) {
	b, err := r.readByte()
	if err != nil {
		return BlockType{}, err
	}
	if b == 0x40 {
		return BlockType{Empty: true}, nil
	}
	switch ValType(b) {
	case ValTypeI32, ValTypeI64, ValTypeF32, ValTypeF64, ValTypeV128, ValTypeFuncRef, ValTypeExternRef:
		return BlockType{ValueType: ValType(b)}, nil
	}
	// Multi-value block type: re-read as a signed LEB128 starting from
	// this byte.
	r.pos--
	idx, err := r.readVarI32()
	if err != nil {
		return BlockType{}, err
	}
	if idx < 0 {
		return BlockType{}, fmt.Errorf("invalid block type encoding")
	}
	u := uint32(idx)
	return BlockType{TypeIndex: &u}, nil
}

func (r *reader) readMemArg() (MemArg, error) {
	align, err := r.readVarU32()
	if err != nil {
		return MemArg{}, err
	}
	offset, err := r.readVarU32()
	if err != nil {
		return MemArg{}, err
	}
	return MemArg{Align: align, Offset: offset}, nil
}

// readConstExpr decodes a constant expression (a single const instruction
// followed by `end`), as used for global initializers. Only scalar const
// and ref.null forms are supported (global.get is an error); the non-goal of host-side table and
// element segment resolution means extern/func ref initializers beyond the
// null reference are not needed here.
func (r *reader) readConstExpr(vt ValType) (Value, error) {
	b, err := r.readByte()
	if err != nil {
		return nil, err
	}
	var val Value
	switch b {
	case 0x41:
		v, err := r.readVarI32()
		if err != nil {
			return nil, err
		}
		val = ValueI32(v)
	case 0x42:
		v, err := r.readVarI64()
		if err != nil {
			return nil, err
		}
		val = ValueI64(v)
	case 0x43:
		bits, err := r.readN(4)
		if err != nil {
			return nil, err
		}
		val = ValueF32(float32frombits(bits))
	case 0x44:
		bits, err := r.readN(8)
		if err != nil {
			return nil, err
		}
		val = ValueF64(float64frombits(bits))
	case 0xD0:
		if _, err := r.readByte(); err != nil { // reftype
			return nil, err
		}
		val = zeroValueFor(vt)
	default:
		return nil, fmt.Errorf("unsupported const expr opcode 0x%x", b)
	}
	end, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if end != 0x0B {
		return nil, fmt.Errorf("const expr missing end opcode")
	}
	return val, nil
}

func zeroValueFor(vt ValType) Value {
	switch vt {
	case ValTypeI32:
		return ValueI32(0)
	case ValTypeI64:
		return ValueI64(0)
	case ValTypeF32:
		return ValueF32(0)
	case ValTypeF64:
		return ValueF64(0)
	case ValTypeFuncRef:
		return ValueFuncRef{}
	case ValTypeExternRef:
		return ValueExternRef{}
	default:
		return ValueI32(0)
	}
}
