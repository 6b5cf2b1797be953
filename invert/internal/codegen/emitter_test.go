package codegen

import (
	"bytes"
	"testing"

	"github.com/wippyai/wasm-invert/wasm"
)

func TestEmitter_NewAndBytes(t *testing.T) {
	e := NewEmitter()
	if e.Len() != 0 {
		t.Errorf("new emitter should be empty, got len %d", e.Len())
	}

	e.I32Const(42)
	if !bytes.Equal(e.Bytes(), []byte{wasm.OpI32Const, 42}) {
		t.Errorf("got %x", e.Bytes())
	}
}

func TestEmitter_ResetAndCopy(t *testing.T) {
	e := NewEmitter()
	e.I32Const(42)

	snapshot := e.Copy()
	e.I32Const(100)
	if len(snapshot) == e.Len() {
		t.Error("Copy should be independent of further emits")
	}

	e.Reset()
	if e.Len() != 0 {
		t.Errorf("emitter should be empty after reset, got len %d", e.Len())
	}
}

func TestEmitter_Constants(t *testing.T) {
	tests := []struct {
		emit func(e *Emitter)
		name string
		want []byte
	}{
		{func(e *Emitter) { e.I32Const(-1) }, "i32 -1", []byte{wasm.OpI32Const, 0x7F}},
		{func(e *Emitter) { e.I32Const(128) }, "i32 128", []byte{wasm.OpI32Const, 0x80, 0x01}},
		{func(e *Emitter) { e.I64Const(-128) }, "i64 -128", []byte{wasm.OpI64Const, 0x80, 0x7F}},
		{func(e *Emitter) { e.F32Const(1) }, "f32 1", []byte{wasm.OpF32Const, 0x00, 0x00, 0x80, 0x3F}},
		{func(e *Emitter) { e.F64Const(2) }, "f64 2", []byte{wasm.OpF64Const, 0, 0, 0, 0, 0, 0, 0, 0x40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEmitter()
			tt.emit(e)
			if !bytes.Equal(e.Bytes(), tt.want) {
				t.Errorf("got %x, want %x", e.Bytes(), tt.want)
			}
		})
	}
}

func TestEmitter_Chaining(t *testing.T) {
	e := NewEmitter()
	e.GlobalGet(300).I32Const(2).Op(wasm.OpI32Mul).GlobalSet(300).Nop().End()

	instrs, err := wasm.DecodeInstructions(e.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	want := "global.get 300\ni32.const 2\ni32.mul\nglobal.set 300\nnop\nend\n"
	if got := wasm.Disassemble(instrs); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestEmitter_InstrAndRaw(t *testing.T) {
	e := NewEmitter()
	e.Instr(wasm.Instruction{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: 5}}).Raw(wasm.OpDrop).Drop()
	if !bytes.Equal(e.Bytes(), []byte{wasm.OpI64Const, 5, wasm.OpDrop, wasm.OpDrop}) {
		t.Errorf("got %x", e.Bytes())
	}
}

func TestEmitterPool(t *testing.T) {
	e := GetEmitter()
	e.I32Const(42)
	PutEmitter(e)

	e2 := GetEmitter()
	if e2.Len() != 0 {
		t.Error("pooled emitter should be reset")
	}
	PutEmitter(e2)

	PutEmitter(nil)
}

func TestNewEmitterWithCapacity(t *testing.T) {
	e := NewEmitterWithCapacity(1024)
	if e.Len() != 0 {
		t.Errorf("got len %d", e.Len())
	}
	for i := 0; i < 60; i++ {
		e.I32Const(int32(i))
	}
	if e.Len() != 120 {
		t.Errorf("60 one-byte constants should take 120 bytes, got %d", e.Len())
	}
}
