package engine

import (
	"testing"

	"github.com/wippyai/wasm-invert/wasm"
)

func i32c(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}
}

func f64c(v float64) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Value: v}}
}

func gget(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: idx}}
}

func gset(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: idx}}
}

func call(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: idx}}
}

func op(code byte) wasm.Instruction { return wasm.Instruction{Opcode: code} }

func initExpr(instrs ...wasm.Instruction) []byte {
	return wasm.EncodeInstructions(append(instrs, op(wasm.OpEnd)))
}

type testGlobal struct {
	name string
	init []byte
	t    wasm.ValType
}

type testFunc struct {
	name string
	body []wasm.Instruction
}

// newModule builds a module of mutable exported globals and exported
// [] -> [] functions. Bodies get a trailing end.
func newModule(globals []testGlobal, funcs ...testFunc) *wasm.Module {
	m := &wasm.Module{Types: []wasm.FuncType{{}}}
	for i, g := range globals {
		m.Globals = append(m.Globals, wasm.Global{
			Type: wasm.GlobalType{ValType: g.t, Mutable: true},
			Init: g.init,
		})
		if g.name != "" {
			m.Exports = append(m.Exports, wasm.Export{Name: g.name, Kind: wasm.KindGlobal, Idx: uint32(i)})
		}
	}
	for i, f := range funcs {
		m.Funcs = append(m.Funcs, 0)
		m.Code = append(m.Code, wasm.FuncBody{
			Code: wasm.EncodeInstructions(append(append([]wasm.Instruction(nil), f.body...), op(wasm.OpEnd))),
		})
		if f.name != "" {
			m.Exports = append(m.Exports, wasm.Export{Name: f.name, Kind: wasm.KindFunc, Idx: uint32(i)})
		}
	}
	return m
}

func xGlobal(v int32) testGlobal {
	return testGlobal{name: "x", t: wasm.ValI32, init: initExpr(i32c(v))}
}

func yGlobal(v int32) testGlobal {
	return testGlobal{name: "y", t: wasm.ValI32, init: initExpr(i32c(v))}
}

// scenarioModule is x = 10; step: x = x + 5; x = x * 2.
func scenarioModule() *wasm.Module {
	return newModule([]testGlobal{xGlobal(10)}, testFunc{name: "step", body: []wasm.Instruction{
		gget(0), i32c(5), op(wasm.OpI32Add), gset(0),
		gget(0), i32c(2), op(wasm.OpI32Mul), gset(0),
	}})
}

func disassemble(t *testing.T, code []byte) string {
	t.Helper()
	instrs, err := wasm.DecodeInstructions(code)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return wasm.Disassemble(instrs)
}

type names map[string]bool

func (n names) MatchFunction(name string) bool { return n[name] }
