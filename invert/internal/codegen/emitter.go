package codegen

import (
	"bytes"
	"sync"

	"github.com/wippyai/wasm-invert/wasm"
)

// Emitter writes WebAssembly bytecode. Methods return the emitter so calls
// can be chained.
type Emitter struct {
	buf bytes.Buffer
}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// NewEmitterWithCapacity returns an empty emitter with n bytes preallocated.
func NewEmitterWithCapacity(n int) *Emitter {
	e := &Emitter{}
	e.buf.Grow(n)
	return e
}

var emitterPool = sync.Pool{
	New: func() any { return NewEmitterWithCapacity(256) },
}

// GetEmitter takes a reset emitter from the pool.
func GetEmitter() *Emitter {
	e := emitterPool.Get().(*Emitter)
	e.Reset()
	return e
}

// PutEmitter returns e to the pool. nil is ignored.
func PutEmitter(e *Emitter) {
	if e == nil {
		return
	}
	e.Reset()
	emitterPool.Put(e)
}

// Bytes returns the emitted code. The slice aliases the emitter's buffer.
func (e *Emitter) Bytes() []byte { return e.buf.Bytes() }

// Copy returns an independent copy of the emitted code.
func (e *Emitter) Copy() []byte { return append([]byte(nil), e.buf.Bytes()...) }

// Len returns the number of bytes emitted.
func (e *Emitter) Len() int { return e.buf.Len() }

// Reset discards the emitted code, keeping the buffer.
func (e *Emitter) Reset() { e.buf.Reset() }

// Raw appends bytes verbatim.
func (e *Emitter) Raw(b ...byte) *Emitter {
	e.buf.Write(b)
	return e
}

// Op emits a bare opcode.
func (e *Emitter) Op(op byte) *Emitter {
	e.buf.WriteByte(op)
	return e
}

// Instr emits a decoded instruction.
func (e *Emitter) Instr(instr wasm.Instruction) *Emitter {
	wasm.EncodeInstructionTo(&e.buf, &instr)
	return e
}

// I32Const emits i32.const v.
func (e *Emitter) I32Const(v int32) *Emitter {
	e.buf.WriteByte(wasm.OpI32Const)
	wasm.WriteLEB128s(&e.buf, v)
	return e
}

// I64Const emits i64.const v.
func (e *Emitter) I64Const(v int64) *Emitter {
	e.buf.WriteByte(wasm.OpI64Const)
	wasm.WriteLEB128s64(&e.buf, v)
	return e
}

// F32Const emits f32.const v.
func (e *Emitter) F32Const(v float32) *Emitter {
	e.buf.WriteByte(wasm.OpF32Const)
	wasm.WriteFloat32(&e.buf, v)
	return e
}

// F64Const emits f64.const v.
func (e *Emitter) F64Const(v float64) *Emitter {
	e.buf.WriteByte(wasm.OpF64Const)
	wasm.WriteFloat64(&e.buf, v)
	return e
}

// GlobalGet emits global.get idx.
func (e *Emitter) GlobalGet(idx uint32) *Emitter {
	e.buf.WriteByte(wasm.OpGlobalGet)
	wasm.WriteLEB128u(&e.buf, idx)
	return e
}

// GlobalSet emits global.set idx.
func (e *Emitter) GlobalSet(idx uint32) *Emitter {
	e.buf.WriteByte(wasm.OpGlobalSet)
	wasm.WriteLEB128u(&e.buf, idx)
	return e
}

// Drop emits drop.
func (e *Emitter) Drop() *Emitter { return e.Op(wasm.OpDrop) }

// Nop emits nop.
func (e *Emitter) Nop() *Emitter { return e.Op(wasm.OpNop) }

// End emits end, closing the function body.
func (e *Emitter) End() *Emitter { return e.Op(wasm.OpEnd) }
