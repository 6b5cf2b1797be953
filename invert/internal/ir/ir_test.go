package ir

import (
	"testing"

	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/invert/internal/expr"
	"github.com/wippyai/wasm-invert/wasm"
)

func i32c(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}
}

func gget(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: idx}}
}

func gset(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: idx}}
}

func local(op byte, idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: op, Imm: wasm.LocalImm{LocalIdx: idx}}
}

func op(code byte) wasm.Instruction { return wasm.Instruction{Opcode: code} }

var (
	twoI32  = []wasm.ValType{wasm.ValI32, wasm.ValI32}
	xyNamer = CellNamerFunc(func(g uint32) (string, bool) {
		switch g {
		case 0:
			return "x", true
		case 1:
			return "y", true
		}
		return "", false
	})
)

func buildAll(t *testing.T, g *Graph) []string {
	t.Helper()
	b := NewBuilder(g, xyNamer)
	var out []string
	for _, s := range g.Stores() {
		e, err := b.Build(s.Value)
		if err != nil {
			t.Fatalf("store %d: %v", s.Seq, err)
		}
		out = append(out, expr.Format(e))
	}
	return out
}

func TestGraphStores(t *testing.T) {
	g, err := FromBody([]wasm.Instruction{
		gget(0), i32c(5), op(wasm.OpI32Add), gset(0),
		gget(0), i32c(2), op(wasm.OpI32Mul), gset(0),
		op(wasm.OpEnd),
	}, nil, 0, twoI32)
	if err != nil {
		t.Fatal(err)
	}

	stores := g.Stores()
	if len(stores) != 2 {
		t.Fatalf("got %d stores, want 2", len(stores))
	}
	if stores[0].Pos != 3 || stores[1].Pos != 7 || stores[1].Seq != 1 {
		t.Errorf("stores = %+v", stores)
	}

	got := buildAll(t, g)
	if got[0] != "x + 5" || got[1] != "x * 2" {
		t.Errorf("exprs = %q", got)
	}
	for _, s := range stores {
		if _, stale := g.StaleRead(s); stale {
			t.Errorf("store %d reported stale", s.Seq)
		}
	}
}

func TestGraphDefUseQueries(t *testing.T) {
	g, err := FromBody([]wasm.Instruction{
		gget(1), i32c(-3), op(wasm.OpI32Sub), gset(0), op(wasm.OpEnd),
	}, nil, 0, twoI32)
	if err != nil {
		t.Fatal(err)
	}
	h := g.Stores()[0].Value
	if g.Opcode(h) != wasm.OpI32Sub || g.Type(h) != wasm.ValI32 {
		t.Errorf("root = %s %s", wasm.OpcodeName(g.Opcode(h)), g.Type(h))
	}
	ops := g.Operands(h)
	if len(ops) != 2 {
		t.Fatalf("operands = %v", ops)
	}
	if global, ok := g.CellRead(ops[0]); !ok || global != 1 {
		t.Errorf("CellRead = %d, %v", global, ok)
	}
	if v, ok := g.Constant(ops[1]); !ok || v.I32() != -3 {
		t.Errorf("Constant = %s, %v", v, ok)
	}
	if _, ok := g.Constant(h); ok {
		t.Error("sub is not a constant")
	}
	if g.Opcode(Handle(g.Len())) != wasm.OpUnreachable {
		t.Error("out-of-range handle should report unreachable")
	}
}

func TestGraphLocalsShare(t *testing.T) {
	g, err := FromBody([]wasm.Instruction{
		gget(0), i32c(1), op(wasm.OpI32Add), local(wasm.OpLocalTee, 0),
		local(wasm.OpLocalGet, 0), op(wasm.OpI32Mul), gset(0),
		op(wasm.OpEnd),
	}, []wasm.ValType{wasm.ValI32}, 0, twoI32)
	if err != nil {
		t.Fatal(err)
	}
	h := g.Stores()[0].Value
	ops := g.Operands(h)
	if ops[0] != ops[1] {
		t.Errorf("local.tee/local.get should share one node, got %v", ops)
	}

	b := NewBuilder(g, xyNamer)
	e, err := b.Build(h)
	if err != nil {
		t.Fatal(err)
	}
	mul := e.(*expr.BinOp)
	if mul.LHS != mul.RHS {
		t.Error("shared handle should build one shared node")
	}
	if got := expr.Format(e); got != "(x + 1) * (x + 1)" {
		t.Errorf("Format = %q", got)
	}
}

func TestGraphUnsetLocalIsZero(t *testing.T) {
	g, err := FromBody([]wasm.Instruction{
		local(wasm.OpLocalGet, 0), gget(0), op(wasm.OpI64Add), gset(0), op(wasm.OpEnd),
	}, []wasm.ValType{wasm.ValI64}, 0, []wasm.ValType{wasm.ValI64})
	if err != nil {
		t.Fatal(err)
	}
	got := buildAll(t, g)
	if got[0] != "0 + x" {
		t.Errorf("expr = %q", got[0])
	}
}

func TestBuilderNonInvertible(t *testing.T) {
	tests := []struct {
		name      string
		instrs    []wasm.Instruction
		numParams int
	}{
		{"bitwise", []wasm.Instruction{gget(0), i32c(1), op(wasm.OpI32Xor), gset(0)}, 0},
		{"comparison", []wasm.Instruction{gget(0), i32c(1), op(wasm.OpI32Eq), gset(0)}, 0},
		{"parameter", []wasm.Instruction{gget(0), local(wasm.OpLocalGet, 0), op(wasm.OpI32Add), gset(0)}, 1},
		{"nested inside arithmetic", []wasm.Instruction{gget(0), gget(1), i32c(3), op(wasm.OpI32Shl), op(wasm.OpI32Add), gset(0)}, 0},
		{"select", []wasm.Instruction{gget(0), i32c(1), gget(1), op(wasm.OpSelect), gset(0)}, 0},
		{"load", []wasm.Instruction{
			i32c(0),
			{Opcode: wasm.OpI32Load, Imm: wasm.MemoryImm{Align: 2}},
			gset(0),
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instrs := append(tt.instrs, op(wasm.OpEnd))
			g, err := FromBody(instrs, []wasm.ValType{wasm.ValI32}, tt.numParams, twoI32)
			if err != nil {
				t.Fatal(err)
			}
			_, err = NewBuilder(g, xyNamer).Build(g.Stores()[0].Value)
			if kind, _ := errors.KindOf(err); kind != errors.KindNonInvertibleExpression {
				t.Errorf("err = %v, want non_invertible_expression", err)
			}
		})
	}
}

func TestGraphUnsupported(t *testing.T) {
	tests := []struct {
		name   string
		instrs []wasm.Instruction
		pos    string
	}{
		{"call", []wasm.Instruction{{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 0}}}, "instr[0]"},
		{"block", []wasm.Instruction{i32c(1), {Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}}}, "instr[1]"},
		{"br_if", []wasm.Instruction{i32c(1), {Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: 0}}}, "instr[1]"},
		{"memory store", []wasm.Instruction{i32c(0), i32c(1), {Opcode: wasm.OpI32Store, Imm: wasm.MemoryImm{Align: 2}}}, "instr[2]"},
		{"memory fill", []wasm.Instruction{i32c(0), i32c(0), i32c(0), {
			Opcode: wasm.OpPrefixMisc,
			Imm:    wasm.MiscImm{SubOpcode: wasm.MiscMemoryFill, Operands: []uint32{0}},
		}}, "instr[3]"},
		{"table set", []wasm.Instruction{i32c(0), {Opcode: wasm.OpRefNull, Imm: wasm.RefNullImm{Type: byte(wasm.ValFuncRef)}}, {
			Opcode: wasm.OpTableSet,
			Imm:    wasm.TableImm{TableIdx: 0},
		}}, "instr[2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromBody(tt.instrs, nil, 0, twoI32)
			e, ok := errors.As(err)
			if !ok || e.Kind != errors.KindUnsupported {
				t.Fatalf("err = %v, want unsupported", err)
			}
			if e.Location() != tt.pos {
				t.Errorf("location = %q, want %q", e.Location(), tt.pos)
			}
		})
	}
}

func TestGraphMalformed(t *testing.T) {
	_, err := FromBody([]wasm.Instruction{op(wasm.OpI32Add)}, nil, 0, twoI32)
	if kind, _ := errors.KindOf(err); kind != errors.KindInvalidData {
		t.Errorf("underflow err = %v", err)
	}
	_, err = FromBody([]wasm.Instruction{gget(7)}, nil, 0, twoI32)
	if kind, _ := errors.KindOf(err); kind != errors.KindInvalidData {
		t.Errorf("global out of range err = %v", err)
	}
	_, err = FromBody([]wasm.Instruction{local(wasm.OpLocalGet, 0)}, nil, 0, twoI32)
	if kind, _ := errors.KindOf(err); kind != errors.KindInvalidData {
		t.Errorf("local out of range err = %v", err)
	}
}

func TestGraphStopsAtReturn(t *testing.T) {
	g, err := FromBody([]wasm.Instruction{
		i32c(1), gset(0), op(wasm.OpReturn), i32c(2), gset(1), op(wasm.OpEnd),
	}, nil, 0, twoI32)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(g.Stores()); n != 1 {
		t.Errorf("got %d stores, want 1", n)
	}
}

func TestStaleRead(t *testing.T) {
	// y = x + 2 consumes a read of x taken before x = 1 ran.
	g, err := FromBody([]wasm.Instruction{
		gget(0), i32c(1), gset(0), i32c(2), op(wasm.OpI32Add), gset(1), op(wasm.OpEnd),
	}, nil, 0, twoI32)
	if err != nil {
		t.Fatal(err)
	}
	stores := g.Stores()
	if _, stale := g.StaleRead(stores[0]); stale {
		t.Error("store 0 has no reads")
	}
	sr, stale := g.StaleRead(stores[1])
	if !stale {
		t.Fatal("store 1 should consume a stale read")
	}
	if sr.Invalidator.Seq != 0 || g.Node(sr.Read).Pos != 0 {
		t.Errorf("stale read = %+v", sr)
	}
}

func TestStaleReadSelfReference(t *testing.T) {
	// A read of x consumed by the store to x itself is the self-reference,
	// not a stale read.
	g, err := FromBody([]wasm.Instruction{
		gget(0), gget(1), i32c(1), gset(1), op(wasm.OpI32Add), gset(0), op(wasm.OpEnd),
	}, nil, 0, twoI32)
	if err != nil {
		t.Fatal(err)
	}
	sr, stale := g.StaleRead(g.Stores()[1])
	if !stale {
		t.Fatal("read of y overwritten by y = 1 should be stale")
	}
	if global, _ := g.CellRead(sr.Read); global != 1 {
		t.Errorf("stale read of global %d, want 1", global)
	}
}

// cyclicGraph is a DefUse whose node 0 is add(node 0, node 1).
type cyclicGraph struct{}

func (cyclicGraph) Opcode(h Handle) byte {
	if h == 0 {
		return wasm.OpI32Add
	}
	return wasm.OpI32Const
}

func (cyclicGraph) Operands(h Handle) []Handle {
	if h == 0 {
		return []Handle{0, 1}
	}
	return nil
}

func (cyclicGraph) CellRead(Handle) (uint32, bool) { return 0, false }

func (cyclicGraph) Constant(h Handle) (expr.Value, bool) {
	if h == 1 {
		return expr.I32(1), true
	}
	return expr.Value{}, false
}

func (cyclicGraph) Type(Handle) wasm.ValType { return wasm.ValI32 }

func TestBuilderCycle(t *testing.T) {
	_, err := NewBuilder(cyclicGraph{}, xyNamer).Build(0)
	if kind, _ := errors.KindOf(err); kind != errors.KindNonInvertibleExpression {
		t.Errorf("err = %v, want non_invertible_expression", err)
	}
}

func TestFromModule(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{}},
		Imports: []wasm.Import{{
			Module: "env",
			Name:   "base",
			Desc:   wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: wasm.ValF64}},
		}},
		Funcs: []uint32{0},
		Globals: []wasm.Global{{
			Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true},
			Init: wasm.EncodeInstructions([]wasm.Instruction{i32c(10), op(wasm.OpEnd)}),
		}},
		Code: []wasm.FuncBody{{
			Locals: []wasm.LocalEntry{{Count: 1, ValType: wasm.ValI32}},
			Code: wasm.EncodeInstructions([]wasm.Instruction{
				gget(1), i32c(5), op(wasm.OpI32Add), gset(1), op(wasm.OpEnd),
			}),
		}},
	}

	g, err := FromModule(m, 0)
	if err != nil {
		t.Fatal(err)
	}
	s := g.Stores()[0]
	if s.Global != 1 || g.Type(s.Value) != wasm.ValI32 {
		t.Errorf("store = %+v type %s", s, g.Type(s.Value))
	}

	if _, err := FromModule(m, 1); err == nil {
		t.Error("expected error for out-of-range function")
	}
}
