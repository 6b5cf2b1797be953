package expr

import (
	"math"
	"strconv"

	"github.com/wippyai/wasm-invert/wasm"
)

// Value is a typed numeric value. Bits uses the same encoding as wazero
// globals: i32 is zero-extended, floats are their IEEE 754 bit patterns.
type Value struct {
	Type wasm.ValType
	Bits uint64
}

// I32 returns an i32 value.
func I32(v int32) Value { return Value{Type: wasm.ValI32, Bits: uint64(uint32(v))} }

// I64 returns an i64 value.
func I64(v int64) Value { return Value{Type: wasm.ValI64, Bits: uint64(v)} }

// F32 returns an f32 value.
func F32(v float32) Value { return Value{Type: wasm.ValF32, Bits: uint64(math.Float32bits(v))} }

// F64 returns an f64 value.
func F64(v float64) Value { return Value{Type: wasm.ValF64, Bits: math.Float64bits(v)} }

// Zero returns the zero value of t.
func Zero(t wasm.ValType) Value { return Value{Type: t} }

// FromBits builds a value from raw wazero-style bits, normalizing i32 and
// f32 to their low 32 bits.
func FromBits(t wasm.ValType, bits uint64) Value {
	if t == wasm.ValI32 || t == wasm.ValF32 {
		bits &= math.MaxUint32
	}
	return Value{Type: t, Bits: bits}
}

// I32 returns v as a signed 32-bit integer.
func (v Value) I32() int32 { return int32(uint32(v.Bits)) }

// I64 returns v as a signed 64-bit integer.
func (v Value) I64() int64 { return int64(v.Bits) }

// F32 returns v as a single-precision float.
func (v Value) F32() float32 { return math.Float32frombits(uint32(v.Bits)) }

// F64 returns v as a double-precision float.
func (v Value) F64() float64 { return math.Float64frombits(v.Bits) }

// IsFloat reports whether v is f32 or f64.
func (v Value) IsFloat() bool { return v.Type == wasm.ValF32 || v.Type == wasm.ValF64 }

// Equal reports bitwise equality, so NaN payloads and signed zeros are
// distinguished.
func (v Value) Equal(o Value) bool { return v.Type == o.Type && v.Bits == o.Bits }

// String renders the value in its natural notation.
func (v Value) String() string {
	switch v.Type {
	case wasm.ValI32:
		return strconv.FormatInt(int64(v.I32()), 10)
	case wasm.ValI64:
		return strconv.FormatInt(v.I64(), 10)
	case wasm.ValF32:
		return strconv.FormatFloat(float64(v.F32()), 'g', -1, 32)
	case wasm.ValF64:
		return strconv.FormatFloat(v.F64(), 'g', -1, 64)
	}
	return "?" + strconv.FormatUint(v.Bits, 16)
}

// ParseValue parses s as a value of type t.
func ParseValue(t wasm.ValType, s string) (Value, error) {
	switch t {
	case wasm.ValI32:
		n, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			// Accept unsigned spellings such as 0xffffffff.
			u, uerr := strconv.ParseUint(s, 0, 32)
			if uerr != nil {
				return Value{}, err
			}
			return Value{Type: t, Bits: u}, nil
		}
		return I32(int32(n)), nil
	case wasm.ValI64:
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(s, 0, 64)
			if uerr != nil {
				return Value{}, err
			}
			return Value{Type: t, Bits: u}, nil
		}
		return I64(n), nil
	case wasm.ValF32:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Value{}, err
		}
		return F32(float32(f)), nil
	case wasm.ValF64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, err
		}
		return F64(f), nil
	}
	return Value{}, strconv.ErrSyntax
}
