package engine

import (
	"testing"

	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/wasm"
)

func TestCellTableNaming(t *testing.T) {
	m := newModule([]testGlobal{
		{t: wasm.ValI32, init: initExpr(i32c(1))},
		{name: "y", t: wasm.ValI32, init: initExpr(i32c(2))},
		{t: wasm.ValI32, init: initExpr(i32c(3))},
		{t: wasm.ValI32, init: initExpr(i32c(4))},
	})
	m.SetNames(&wasm.Names{Globals: wasm.NameMap{0: "counter", 2: "counter"}})

	cells, err := NewCellTable(m)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"counter", "y", "global[2]", "global[3]"}
	for i, name := range want {
		c, _ := cells.At(uint32(i))
		if c.Name != name {
			t.Errorf("global %d named %q, want %q", i, c.Name, name)
		}
		if idx, ok := cells.GlobalIndex(name); !ok || idx != uint32(i) {
			t.Errorf("GlobalIndex(%q) = %d, %v", name, idx, ok)
		}
	}
	if _, ok := cells.At(4); ok {
		t.Error("At past the end should fail")
	}
	if _, ok := cells.Lookup("missing"); ok {
		t.Error("Lookup of unknown name should fail")
	}
}

func TestInitialState(t *testing.T) {
	i64c := func(v int64) wasm.Instruction {
		return wasm.Instruction{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: v}}
	}
	m := newModule([]testGlobal{
		{name: "scaled", t: wasm.ValI32, init: initExpr(gget(0), i32c(3), op(wasm.OpI32Mul))},
		{name: "wide", t: wasm.ValI64, init: initExpr(i64c(2), i64c(3), op(wasm.OpI64Add))},
		{name: "half", t: wasm.ValF64, init: initExpr(f64c(0.5))},
	})
	m.Imports = []wasm.Import{{
		Module: "env",
		Name:   "base",
		Desc:   wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: wasm.ValI32}},
	}}
	// Defined globals shift past the import; scaled reads the import.
	for i := range m.Exports {
		m.Exports[i].Idx++
	}

	cells, err := NewCellTable(m)
	if err != nil {
		t.Fatal(err)
	}

	model, unresolved, err := InitialState(m, cells, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := unresolved["global[0]"]; !ok {
		t.Error("unseeded import should be unresolved")
	}
	if _, ok := unresolved["scaled"]; !ok {
		t.Error("initializer reading an unresolved import should be unresolved")
	}
	if v, _ := model.Get("wide"); v.I64() != 5 {
		t.Errorf("wide = %v", v)
	}
	if v, _ := model.Get("half"); v.F64() != 0.5 {
		t.Errorf("half = %v", v)
	}

	model, unresolved, err = InitialState(m, cells, map[string]string{"global[0]": "7"})
	if err != nil {
		t.Fatal(err)
	}
	if len(unresolved) != 0 {
		t.Errorf("unresolved = %v", unresolved)
	}
	if v, _ := model.Get("scaled"); v.I32() != 21 {
		t.Errorf("scaled = %v", v)
	}
}

func TestInitialStateSeedErrors(t *testing.T) {
	m := scenarioModule()
	cells, err := NewCellTable(m)
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = InitialState(m, cells, map[string]string{"nope": "1"})
	if e, ok := errors.As(err); !ok || e.Kind != errors.KindNotFound || e.Phase != errors.PhaseConfig {
		t.Errorf("unknown seed err = %v", err)
	}
	_, _, err = InitialState(m, cells, map[string]string{"x": "ten"})
	if kind, _ := errors.KindOf(err); kind != errors.KindInvalidInput {
		t.Errorf("bad seed err = %v", err)
	}

	model, _, err := InitialState(m, cells, map[string]string{"x": "-4"})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := model.Get("x"); v.I32() != -4 {
		t.Errorf("seeded x = %v", v)
	}
}

func TestParseModeAndPolicy(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeChain, "chain": ModeChain, "SWAP": ModeSwap} {
		if got, err := ParseMode(in); err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("reverse"); err == nil {
		t.Error("ParseMode should reject unknown modes")
	}
	for in, want := range map[string]Policy{"": PolicyStrict, "strict": PolicyStrict, "skip": PolicySkip} {
		if got, err := ParsePolicy(in); err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("lenient"); err == nil {
		t.Error("ParsePolicy should reject unknown policies")
	}
	if ModeSwap.String() != "swap" || PolicySkip.String() != "skip" {
		t.Error("String round trip")
	}
}

func TestInspect(t *testing.T) {
	m := newModule([]testGlobal{xGlobal(10)},
		testFunc{name: "step", body: []wasm.Instruction{
			gget(0), i32c(5), op(wasm.OpI32Add), gset(0),
			gget(0), i32c(2), op(wasm.OpI32Mul), gset(0),
		}},
		testFunc{name: "caller", body: []wasm.Instruction{call(0)}},
	)
	inv, err := New(Config{}).Inspect(m)
	if err != nil {
		t.Fatal(err)
	}
	if len(inv.Cells) != 1 || inv.Cells[0].Name != "x" || inv.Cells[0].Initial.I32() != 10 {
		t.Errorf("cells = %+v", inv.Cells)
	}
	if len(inv.Fragments) != 2 {
		t.Fatalf("fragments = %+v", inv.Fragments)
	}
	if f := inv.Fragments[0]; f.Name != "step" || f.Stores != 2 || f.Reason != "" {
		t.Errorf("step = %+v", f)
	}
	if f := inv.Fragments[1]; f.Name != "caller" || f.Reason == "" {
		t.Errorf("caller = %+v", f)
	}
}

func TestAnalyzeLeavesModule(t *testing.T) {
	m := scenarioModule()
	before := m.Encode()
	r, err := New(Config{}).Analyze(m, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Steps) != 2 || len(r.Body.Code) == 0 {
		t.Errorf("result = %+v", r)
	}
	if string(m.Encode()) != string(before) {
		t.Error("Analyze modified the module")
	}
	if _, err := New(Config{}).Analyze(m, 5); err == nil {
		t.Error("Analyze of a missing function should fail")
	}
}
