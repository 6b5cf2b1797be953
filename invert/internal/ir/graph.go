package ir

import (
	"fmt"

	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/invert/internal/expr"
	"github.com/wippyai/wasm-invert/wasm"
)

// Handle identifies a value-producing node of a Graph.
type Handle int

// NoHandle is the zero-value sentinel for "no node".
const NoHandle Handle = -1

// NodeKind classifies graph nodes.
type NodeKind uint8

const (
	NodeOp       NodeKind = iota // instruction computing a value from its operands
	NodeConst                    // numeric literal
	NodeCellRead                 // global.get
	NodeParam                    // function parameter
	NodeZero                     // default value of a declared local never set
)

// Node is one value in the def-use graph.
type Node struct {
	Instr    wasm.Instruction
	Operands []Handle
	Pos      int // instruction index, -1 for synthetic nodes
	Global   uint32
	// Epoch is the number of stores executed before a cell read.
	Epoch int
	Type  wasm.ValType
	Kind  NodeKind
}

// Store is one global.set in the fragment body.
type Store struct {
	Value  Handle
	Seq    int // index among stores
	Pos    int // instruction index
	Global uint32
}

// DefUse is the read-only view the expression builder walks.
type DefUse interface {
	Opcode(h Handle) byte
	Operands(h Handle) []Handle
	CellRead(h Handle) (global uint32, ok bool)
	Constant(h Handle) (expr.Value, bool)
	Type(h Handle) wasm.ValType
}

// Graph is the def-use graph of one straight-line function body, built by
// simulating the operand stack. Locals hold handles, so a value written
// with local.set and read twice becomes one shared node.
type Graph struct {
	nodes  []Node
	stores []Store
}

// FromModule decodes the body of a defined function and builds its graph.
func FromModule(m *wasm.Module, funcIdx uint32) (*Graph, error) {
	numImported := uint32(m.NumImportedFuncs())
	if funcIdx < numImported {
		return nil, errors.InvalidInput(errors.PhaseGraph, fmt.Sprintf("func[%d] is imported", funcIdx))
	}
	local := int(funcIdx - numImported)
	if local >= len(m.Code) {
		return nil, errors.OutOfBounds(errors.PhaseGraph, []string{"code"}, local, len(m.Code))
	}
	sig := m.GetFuncType(funcIdx)
	if sig == nil {
		return nil, errors.InvalidData(errors.PhaseGraph, nil, fmt.Sprintf("func[%d] has no type", funcIdx))
	}

	body := m.Code[local]
	instrs, err := wasm.DecodeInstructions(body.Code)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGraph, errors.KindInvalidData, err, fmt.Sprintf("decode func[%d]", funcIdx))
	}

	locals := append([]wasm.ValType(nil), sig.Params...)
	for _, entry := range body.Locals {
		for i := uint32(0); i < entry.Count; i++ {
			locals = append(locals, entry.ValType)
		}
	}

	globals := make([]wasm.ValType, m.NumGlobals())
	for i := range globals {
		gt, _, _ := m.GetGlobalType(uint32(i))
		globals[i] = gt.ValType
	}
	return FromBody(instrs, locals, len(sig.Params), globals)
}

// FromBody builds the graph of instrs. locals lists every local type,
// parameters first; globals lists the type of every global index.
//
// Bodies with control flow, calls, or memory and table writes are rejected
// with KindUnsupported.
func FromBody(instrs []wasm.Instruction, locals []wasm.ValType, numParams int, globals []wasm.ValType) (*Graph, error) {
	b := &graphBuilder{
		g:         &Graph{},
		locals:    make([]Handle, len(locals)),
		localType: locals,
		globals:   globals,
	}
	for i := range b.locals {
		b.locals[i] = NoHandle
	}
	for i := 0; i < numParams && i < len(locals); i++ {
		b.locals[i] = b.add(Node{Kind: NodeParam, Pos: -1, Type: locals[i], Instr: wasm.Instruction{
			Opcode: wasm.OpLocalGet,
			Imm:    wasm.LocalImm{LocalIdx: uint32(i)},
		}})
	}

	for pos, instr := range instrs {
		done, err := b.step(pos, instr)
		if err != nil {
			return nil, errors.WithPath(err, fmt.Sprintf("instr[%d]", pos))
		}
		if done {
			break
		}
	}
	return b.g, nil
}

type graphBuilder struct {
	g         *Graph
	stack     []Handle
	locals    []Handle
	localType []wasm.ValType
	globals   []wasm.ValType
}

func (b *graphBuilder) add(n Node) Handle {
	h := Handle(len(b.g.nodes))
	b.g.nodes = append(b.g.nodes, n)
	return h
}

func (b *graphBuilder) push(h Handle) { b.stack = append(b.stack, h) }

func (b *graphBuilder) pop(n int) ([]Handle, error) {
	if len(b.stack) < n {
		return nil, errors.InvalidData(errors.PhaseGraph, nil, "operand stack underflow")
	}
	out := append([]Handle(nil), b.stack[len(b.stack)-n:]...)
	b.stack = b.stack[:len(b.stack)-n]
	return out, nil
}

// apply pops n operands and pushes a node of type t computed from them.
func (b *graphBuilder) apply(pos int, instr wasm.Instruction, n int, t wasm.ValType) error {
	ops, err := b.pop(n)
	if err != nil {
		return err
	}
	b.push(b.add(Node{Kind: NodeOp, Pos: pos, Instr: instr, Operands: ops, Type: t}))
	return nil
}

func (b *graphBuilder) local(idx uint32) (int, error) {
	if int(idx) >= len(b.locals) {
		return 0, errors.OutOfBounds(errors.PhaseGraph, nil, int(idx), len(b.locals))
	}
	return int(idx), nil
}

func (b *graphBuilder) step(pos int, instr wasm.Instruction) (bool, error) {
	op := instr.Opcode
	switch op {
	case wasm.OpNop:
		return false, nil
	case wasm.OpEnd, wasm.OpReturn:
		return true, nil
	case wasm.OpDrop:
		_, err := b.pop(1)
		return false, err

	case wasm.OpI32Const, wasm.OpI64Const, wasm.OpF32Const, wasm.OpF64Const:
		b.push(b.add(Node{Kind: NodeConst, Pos: pos, Instr: instr, Type: constType(op)}))
		return false, nil

	case wasm.OpGlobalGet:
		idx := instr.Imm.(wasm.GlobalImm).GlobalIdx
		if int(idx) >= len(b.globals) {
			return false, errors.OutOfBounds(errors.PhaseGraph, nil, int(idx), len(b.globals))
		}
		b.push(b.add(Node{
			Kind:   NodeCellRead,
			Pos:    pos,
			Instr:  instr,
			Global: idx,
			Epoch:  len(b.g.stores),
			Type:   b.globals[idx],
		}))
		return false, nil

	case wasm.OpGlobalSet:
		idx := instr.Imm.(wasm.GlobalImm).GlobalIdx
		if int(idx) >= len(b.globals) {
			return false, errors.OutOfBounds(errors.PhaseGraph, nil, int(idx), len(b.globals))
		}
		v, err := b.pop(1)
		if err != nil {
			return false, err
		}
		b.g.stores = append(b.g.stores, Store{Value: v[0], Seq: len(b.g.stores), Pos: pos, Global: idx})
		return false, nil

	case wasm.OpLocalGet:
		i, err := b.local(instr.Imm.(wasm.LocalImm).LocalIdx)
		if err != nil {
			return false, err
		}
		if b.locals[i] == NoHandle {
			b.locals[i] = b.add(Node{Kind: NodeZero, Pos: -1, Type: b.localType[i]})
		}
		b.push(b.locals[i])
		return false, nil

	case wasm.OpLocalSet, wasm.OpLocalTee:
		i, err := b.local(instr.Imm.(wasm.LocalImm).LocalIdx)
		if err != nil {
			return false, err
		}
		v, err := b.pop(1)
		if err != nil {
			return false, err
		}
		b.locals[i] = v[0]
		if op == wasm.OpLocalTee {
			b.push(v[0])
		}
		return false, nil

	case wasm.OpSelect, wasm.OpSelectType:
		if len(b.stack) < 3 {
			return false, errors.InvalidData(errors.PhaseGraph, nil, "operand stack underflow")
		}
		t := b.g.nodes[b.stack[len(b.stack)-3]].Type
		return false, b.apply(pos, instr, 3, t)

	case wasm.OpRefNull:
		b.push(b.add(Node{Kind: NodeOp, Pos: pos, Instr: instr, Type: wasm.ValType(instr.Imm.(wasm.RefNullImm).Type)}))
		return false, nil
	case wasm.OpRefFunc:
		b.push(b.add(Node{Kind: NodeOp, Pos: pos, Instr: instr, Type: wasm.ValFuncRef}))
		return false, nil
	case wasm.OpRefIsNull:
		return false, b.apply(pos, instr, 1, wasm.ValI32)
	case wasm.OpTableGet:
		return false, b.apply(pos, instr, 1, wasm.ValFuncRef)
	case wasm.OpMemorySize:
		return false, b.apply(pos, instr, 0, wasm.ValI32)

	case wasm.OpPrefixMisc:
		imm := instr.Imm.(wasm.MiscImm)
		switch {
		case imm.SubOpcode <= 7:
			return false, b.apply(pos, instr, 1, truncSatType(imm.SubOpcode))
		case imm.SubOpcode == wasm.MiscTableSize:
			return false, b.apply(pos, instr, 0, wasm.ValI32)
		}
		return false, unsupported(instr)
	}

	if t, ok := loadType(op); ok {
		return false, b.apply(pos, instr, 1, t)
	}
	if arity, t, ok := numericEffect(op); ok {
		return false, b.apply(pos, instr, arity, t)
	}
	return false, unsupported(instr)
}

func unsupported(instr wasm.Instruction) error {
	return errors.New(errors.PhaseGraph, errors.KindUnsupported).
		Detail("%s in fragment body", instr.String()).
		Build()
}

func constType(op byte) wasm.ValType {
	switch op {
	case wasm.OpI64Const:
		return wasm.ValI64
	case wasm.OpF32Const:
		return wasm.ValF32
	case wasm.OpF64Const:
		return wasm.ValF64
	}
	return wasm.ValI32
}

func loadType(op byte) (wasm.ValType, bool) {
	switch {
	case op == wasm.OpI32Load, op >= wasm.OpI32Load8S && op <= wasm.OpI32Load16U:
		return wasm.ValI32, true
	case op == wasm.OpI64Load, op >= wasm.OpI64Load8S && op <= wasm.OpI64Load32U:
		return wasm.ValI64, true
	case op == wasm.OpF32Load:
		return wasm.ValF32, true
	case op == wasm.OpF64Load:
		return wasm.ValF64, true
	}
	return 0, false
}

func truncSatType(sub uint32) wasm.ValType {
	if sub < 4 {
		return wasm.ValI32
	}
	return wasm.ValI64
}

// numericEffect returns the operand count and result type of the numeric
// opcodes 0x45 through 0xC4.
func numericEffect(op byte) (int, wasm.ValType, bool) {
	switch {
	case op == 0x45 || op == 0x50: // eqz
		return 1, wasm.ValI32, true
	case op >= 0x46 && op <= 0x66: // comparisons
		return 2, wasm.ValI32, true
	case op >= 0x67 && op <= 0x69:
		return 1, wasm.ValI32, true
	case op >= 0x6A && op <= 0x78:
		return 2, wasm.ValI32, true
	case op >= 0x79 && op <= 0x7B:
		return 1, wasm.ValI64, true
	case op >= 0x7C && op <= 0x8A:
		return 2, wasm.ValI64, true
	case op >= 0x8B && op <= 0x91:
		return 1, wasm.ValF32, true
	case op >= 0x92 && op <= 0x98:
		return 2, wasm.ValF32, true
	case op >= 0x99 && op <= 0x9F:
		return 1, wasm.ValF64, true
	case op >= 0xA0 && op <= 0xA6:
		return 2, wasm.ValF64, true
	case op >= 0xA7 && op <= 0xC4:
		return 1, conversionType(op), true
	}
	return 0, 0, false
}

func conversionType(op byte) wasm.ValType {
	switch {
	case op <= 0xAB, op == 0xBC, op == 0xC0, op == 0xC1:
		return wasm.ValI32
	case op <= 0xB1, op == 0xBD, op >= 0xC2:
		return wasm.ValI64
	case op <= 0xB6, op == 0xBE:
		return wasm.ValF32
	}
	return wasm.ValF64
}

// Stores returns the graph's stores in program order.
func (g *Graph) Stores() []Store { return g.stores }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node behind h.
func (g *Graph) Node(h Handle) *Node { return &g.nodes[h] }

func (g *Graph) valid(h Handle) bool { return h >= 0 && int(h) < len(g.nodes) }

// Opcode returns the opcode that produced h. Unset locals report the const
// opcode of their type.
func (g *Graph) Opcode(h Handle) byte {
	if !g.valid(h) {
		return wasm.OpUnreachable
	}
	n := &g.nodes[h]
	if n.Kind == NodeZero {
		return zeroOpcode(n.Type)
	}
	return n.Instr.Opcode
}

// Operands returns the operand handles of h in stack order.
func (g *Graph) Operands(h Handle) []Handle {
	if !g.valid(h) {
		return nil
	}
	return g.nodes[h].Operands
}

// CellRead reports the global read by h.
func (g *Graph) CellRead(h Handle) (uint32, bool) {
	if !g.valid(h) || g.nodes[h].Kind != NodeCellRead {
		return 0, false
	}
	return g.nodes[h].Global, true
}

// Constant returns the literal value of h.
func (g *Graph) Constant(h Handle) (expr.Value, bool) {
	if !g.valid(h) {
		return expr.Value{}, false
	}
	n := &g.nodes[h]
	switch n.Kind {
	case NodeZero:
		if !n.Type.IsNumeric() {
			return expr.Value{}, false
		}
		return expr.Zero(n.Type), true
	case NodeConst:
		switch imm := n.Instr.Imm.(type) {
		case wasm.I32Imm:
			return expr.I32(imm.Value), true
		case wasm.I64Imm:
			return expr.I64(imm.Value), true
		case wasm.F32Imm:
			return expr.F32(imm.Value), true
		case wasm.F64Imm:
			return expr.F64(imm.Value), true
		}
	}
	return expr.Value{}, false
}

// Type returns the value type of h.
func (g *Graph) Type(h Handle) wasm.ValType {
	if !g.valid(h) {
		return 0
	}
	return g.nodes[h].Type
}

func zeroOpcode(t wasm.ValType) byte {
	switch t {
	case wasm.ValI64:
		return wasm.OpI64Const
	case wasm.ValF32:
		return wasm.OpF32Const
	case wasm.ValF64:
		return wasm.OpF64Const
	}
	return wasm.OpI32Const
}
