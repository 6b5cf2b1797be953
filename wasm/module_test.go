package wasm_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/wippyai/wasm-invert/wasm"
)

func u32(v uint32) *uint32 { return &v }

func body(instrs ...wasm.Instruction) []byte {
	return wasm.EncodeInstructions(append(instrs, wasm.Instruction{Opcode: wasm.OpEnd}))
}

func sampleModule() *wasm.Module {
	i32 := func(v int32) wasm.Instruction { return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}} }
	return &wasm.Module{
		Types: []wasm.FuncType{
			{},
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI64}},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "log", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 1}},
			{Module: "env", Name: "base", Desc: wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: wasm.ValI32}}},
		},
		Funcs:    []uint32{0, 0},
		Tables:   []wasm.TableType{{ElemType: byte(wasm.ValFuncRef), Limits: wasm.Limits{Min: 2, Max: u32(4)}}},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true}, Init: body(i32(10))},
			{Type: wasm.GlobalType{ValType: wasm.ValF64, Mutable: true}, Init: body(wasm.Instruction{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Value: 1.5}})},
		},
		Exports: []wasm.Export{
			{Name: "tick", Kind: wasm.KindFunc, Idx: 1},
			{Name: "x", Kind: wasm.KindGlobal, Idx: 1},
		},
		Start: u32(2),
		Elements: []wasm.Element{
			{Flags: 0, Offset: body(i32(0)), FuncIdxs: []uint32{1, 2}, Type: wasm.ValFuncRef},
			{Flags: 5, Type: wasm.ValFuncRef, Exprs: [][]byte{body(wasm.Instruction{Opcode: wasm.OpRefFunc, Imm: wasm.RefFuncImm{FuncIdx: 1}})}},
			{Flags: 3, FuncIdxs: []uint32{2}, Type: wasm.ValFuncRef},
		},
		Code: []wasm.FuncBody{
			{Code: body(
				wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: 1}},
				i32(5),
				wasm.Instruction{Opcode: wasm.OpI32Add},
				wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: 1}},
			)},
			{Locals: []wasm.LocalEntry{{Count: 2, ValType: wasm.ValI64}}, Code: body()},
		},
		Data:           []wasm.DataSegment{{Flags: 0, Offset: body(i32(8)), Init: []byte("hi")}, {Flags: 1, Init: []byte{1}}},
		DataCount:      u32(2),
		CustomSections: []wasm.CustomSection{{Name: "producers", Data: []byte{0}}},
	}
}

func TestModuleRoundTrip(t *testing.T) {
	m := sampleModule()
	data := m.Encode()

	parsed, err := wasm.ParseModuleValidate(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(parsed, m) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", parsed, m)
	}
	if again := parsed.Encode(); string(again) != string(data) {
		t.Error("re-encoded bytes differ")
	}
}

func TestParseModuleErrors(t *testing.T) {
	header := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	with := func(b ...byte) []byte { return append(append([]byte(nil), header...), b...) }

	tests := []struct {
		target error
		name   string
		data   []byte
	}{
		{name: "bad magic", data: []byte{0, 0, 0, 0, 1, 0, 0, 0}, target: wasm.ErrInvalidMagic},
		{name: "bad version", data: []byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}, target: wasm.ErrInvalidVersion},
		{name: "gc type form", data: with(wasm.SectionType, 0x02, 0x01, 0x5F), target: wasm.ErrUnsupported},
		{name: "tag section", data: with(13, 0x00)},
		{name: "out of order", data: with(wasm.SectionFunction, 0x01, 0x00, wasm.SectionType, 0x01, 0x00)},
		{name: "truncated section", data: with(wasm.SectionType, 0x05, 0x01)},
		{name: "trailing bytes", data: with(wasm.SectionFunction, 0x02, 0x00, 0x00)},
		{name: "code count mismatch", data: with(wasm.SectionType, 0x04, 0x01, 0x60, 0x00, 0x00, wasm.SectionFunction, 0x02, 0x01, 0x00)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wasm.ParseModule(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("err = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestModuleHelpers(t *testing.T) {
	m := sampleModule()

	if n := m.NumImportedFuncs(); n != 1 {
		t.Errorf("NumImportedFuncs = %d", n)
	}
	if n := m.NumGlobals(); n != 3 {
		t.Errorf("NumGlobals = %d", n)
	}
	if ft := m.GetFuncType(0); ft == nil || len(ft.Params) != 1 {
		t.Errorf("GetFuncType(0) = %+v", ft)
	}
	if ft := m.GetFuncType(2); ft == nil || len(ft.Params) != 0 {
		t.Errorf("GetFuncType(2) = %+v", ft)
	}
	if ft := m.GetFuncType(9); ft != nil {
		t.Errorf("GetFuncType(9) = %+v, want nil", ft)
	}

	gt, imported, ok := m.GetGlobalType(0)
	if !ok || !imported || gt.Mutable {
		t.Errorf("GetGlobalType(0) = %+v, %v, %v", gt, imported, ok)
	}
	gt, imported, ok = m.GetGlobalType(2)
	if !ok || imported || gt.ValType != wasm.ValF64 {
		t.Errorf("GetGlobalType(2) = %+v, %v, %v", gt, imported, ok)
	}
	if _, _, ok := m.GetGlobalType(3); ok {
		t.Error("GetGlobalType(3) should be out of range")
	}

	if idx := m.AddType(wasm.FuncType{}); idx != 0 {
		t.Errorf("AddType reused index = %d, want 0", idx)
	}
	if idx := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValF32}}); idx != 2 {
		t.Errorf("AddType new index = %d, want 2", idx)
	}
	if idx := m.AddFunc(0, wasm.FuncBody{Code: body()}); idx != 3 {
		t.Errorf("AddFunc index = %d, want 3", idx)
	}
	if _, ok := m.FindExport("tick", wasm.KindFunc); !ok {
		t.Error("FindExport(tick) failed")
	}
	if _, ok := m.FindExport("tick", wasm.KindGlobal); ok {
		t.Error("FindExport should match kind")
	}
}

func TestModuleClone(t *testing.T) {
	m := sampleModule()
	c := m.Clone()
	if !reflect.DeepEqual(c, m) {
		t.Fatal("clone differs from original")
	}

	c.Code[0].Code[0] = wasm.OpNop
	c.Elements[0].FuncIdxs[0] = 99
	c.Exports[0].Idx = 42
	*c.Start = 7

	if m.Code[0].Code[0] != wasm.OpGlobalGet {
		t.Error("clone shares code bytes")
	}
	if m.Elements[0].FuncIdxs[0] != 1 {
		t.Error("clone shares element indices")
	}
	if m.Exports[0].Idx != 1 {
		t.Error("clone shares exports")
	}
	if *m.Start != 2 {
		t.Error("clone shares start")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		mutate func(*wasm.Module)
		name   string
	}{
		{func(m *wasm.Module) { m.Funcs[0] = 9 }, "bad type index"},
		{func(m *wasm.Module) { m.Exports[0].Idx = 50 }, "bad export func"},
		{func(m *wasm.Module) { m.Exports[1].Idx = 50 }, "bad export global"},
		{func(m *wasm.Module) { m.Exports[1].Name = "tick" }, "duplicate export"},
		{func(m *wasm.Module) { m.Start = u32(0) }, "start with params"},
		{func(m *wasm.Module) { m.Start = u32(10) }, "start out of range"},
		{func(m *wasm.Module) { m.Elements[0].FuncIdxs[0] = 10 }, "bad element"},
		{func(m *wasm.Module) { m.Code = m.Code[:1] }, "code count"},
	}

	if err := sampleModule().Validate(); err != nil {
		t.Fatalf("sample should validate: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleModule()
			tt.mutate(m)
			if err := m.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
