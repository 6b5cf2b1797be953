package wasm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// ErrOverflow is returned when a LEB128 value exceeds the maximum bit width.
var ErrOverflow = errors.New("leb128: overflow")

// ReadLEB128u reads an unsigned 32-bit LEB128 value.
func ReadLEB128u(r io.ByteReader) (uint32, error) {
	v, err := readUnsigned(r, 32)
	return uint32(v), err
}

// ReadLEB128u64 reads an unsigned 64-bit LEB128 value.
func ReadLEB128u64(r io.ByteReader) (uint64, error) {
	return readUnsigned(r, 64)
}

// ReadLEB128s reads a signed 32-bit LEB128 value.
func ReadLEB128s(r io.ByteReader) (int32, error) {
	v, err := readSigned(r, 32)
	return int32(v), err
}

// ReadLEB128s64 reads a signed 64-bit LEB128 value.
func ReadLEB128s64(r io.ByteReader) (int64, error) {
	return readSigned(r, 64)
}

func readUnsigned(r io.ByteReader, bits uint) (uint64, error) {
	var result uint64
	for shift := uint(0); ; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		// Final byte: no continuation and no bits past the width.
		if shift+7 > bits && (b&0x80 != 0 || uint64(b&0x7f)>>(bits-shift) != 0) {
			return 0, ErrOverflow
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
	}
}

func readSigned(r io.ByteReader, bits uint) (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift+7 > bits && b&0x80 != 0 {
			return 0, ErrOverflow
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	if bits == 32 && (result < math.MinInt32 || result > math.MaxInt32) {
		return 0, ErrOverflow
	}
	return result, nil
}

// WriteLEB128u writes an unsigned 32-bit LEB128 value.
func WriteLEB128u(buf *bytes.Buffer, v uint32) {
	WriteLEB128u64(buf, uint64(v))
}

// WriteLEB128u64 writes an unsigned 64-bit LEB128 value.
func WriteLEB128u64(buf *bytes.Buffer, v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}

// WriteLEB128s writes a signed 32-bit LEB128 value.
func WriteLEB128s(buf *bytes.Buffer, v int32) {
	WriteLEB128s64(buf, int64(v))
}

// WriteLEB128s64 writes a signed 64-bit LEB128 value.
func WriteLEB128s64(buf *bytes.Buffer, v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}

// EncodeLEB128u returns the unsigned LEB128 encoding of v.
func EncodeLEB128u(v uint32) []byte {
	var buf bytes.Buffer
	WriteLEB128u(&buf, v)
	return buf.Bytes()
}

// EncodeLEB128s returns the signed LEB128 encoding of v.
func EncodeLEB128s(v int32) []byte {
	var buf bytes.Buffer
	WriteLEB128s(&buf, v)
	return buf.Bytes()
}

// ReadFloat32 reads a little-endian IEEE 754 single.
func ReadFloat32(r io.ByteReader) (float32, error) {
	bits, err := readFixed(r, 4)
	return math.Float32frombits(uint32(bits)), err
}

// ReadFloat64 reads a little-endian IEEE 754 double.
func ReadFloat64(r io.ByteReader) (float64, error) {
	bits, err := readFixed(r, 8)
	return math.Float64frombits(bits), err
}

func readFixed(r io.ByteReader, n int) (uint64, error) {
	var b [8]byte
	for i := 0; i < n; i++ {
		c, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		b[i] = c
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// WriteFloat32 writes a little-endian IEEE 754 single.
func WriteFloat32(buf *bytes.Buffer, v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	buf.Write(b[:])
}

// WriteFloat64 writes a little-endian IEEE 754 double.
func WriteFloat64(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}
