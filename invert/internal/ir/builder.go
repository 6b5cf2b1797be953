package ir

import (
	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/invert/internal/expr"
	"github.com/wippyai/wasm-invert/wasm"
)

// CellNamer maps a global index to its cell name.
type CellNamer interface {
	CellName(global uint32) (string, bool)
}

// CellNamerFunc adapts a function to CellNamer.
type CellNamerFunc func(global uint32) (string, bool)

// CellName calls f.
func (f CellNamerFunc) CellName(global uint32) (string, bool) { return f(global) }

type buildState uint8

const (
	stateNone buildState = iota
	stateInProgress
	stateDone
)

// Builder turns stored value handles into expression trees. Results are
// memoized by handle, so a handle used by several consumers yields one
// shared node and is walked once.
type Builder struct {
	du    DefUse
	cells CellNamer
	memo  map[Handle]expr.Expr
	errs  map[Handle]error
	state map[Handle]buildState
}

// NewBuilder returns a builder over du.
func NewBuilder(du DefUse, cells CellNamer) *Builder {
	return &Builder{
		du:    du,
		cells: cells,
		memo:  make(map[Handle]expr.Expr),
		errs:  make(map[Handle]error),
		state: make(map[Handle]buildState),
	}
}

// Build returns the expression computing h.
//
// Constants become Const, cell reads CellRef and mapped arithmetic BinOp.
// Anything else, including parameters, loads, select and comparison or
// bitwise ops, fails with KindNonInvertibleExpression. A handle reached
// again while it is still being built is a cycle and fails the same way.
func (b *Builder) Build(h Handle) (expr.Expr, error) {
	switch b.state[h] {
	case stateDone:
		if err := b.errs[h]; err != nil {
			return nil, err
		}
		return b.memo[h], nil
	case stateInProgress:
		return nil, errors.New(errors.PhaseBuild, errors.KindNonInvertibleExpression).
			Detail("cycle through %s", wasm.OpcodeName(b.du.Opcode(h))).
			Build()
	}

	b.state[h] = stateInProgress
	e, err := b.build(h)
	b.state[h] = stateDone
	if err != nil {
		b.errs[h] = err
		return nil, err
	}
	b.memo[h] = e
	return e, nil
}

func (b *Builder) build(h Handle) (expr.Expr, error) {
	if v, ok := b.du.Constant(h); ok {
		return expr.NewConst(v), nil
	}

	t := b.du.Type(h)
	if global, ok := b.du.CellRead(h); ok {
		if !t.IsNumeric() {
			return nil, nonInvertible("read of %s global", t)
		}
		name, ok := b.cells.CellName(global)
		if !ok {
			return nil, errors.New(errors.PhaseBuild, errors.KindNotFound).
				Detail("no cell for global %d", global).
				Build()
		}
		return expr.Ref(name, t), nil
	}

	code := b.du.Opcode(h)
	op, vt, ok := expr.FromOpcode(code)
	if !ok {
		return nil, nonInvertible("%s", describe(code))
	}
	operands := b.du.Operands(h)
	if len(operands) != 2 {
		return nil, errors.InvalidData(errors.PhaseBuild, nil, wasm.OpcodeName(code)+" needs two operands")
	}
	lhs, err := b.Build(operands[0])
	if err != nil {
		return nil, err
	}
	rhs, err := b.Build(operands[1])
	if err != nil {
		return nil, err
	}
	return expr.NewBinOp(op, vt, lhs, rhs), nil
}

func describe(code byte) string {
	if code == wasm.OpLocalGet {
		return "function parameter"
	}
	if name := wasm.OpcodeName(code); name != "" {
		return name
	}
	return "unknown instruction"
}

func nonInvertible(format string, args ...any) error {
	return errors.New(errors.PhaseBuild, errors.KindNonInvertibleExpression).
		Detail(format, args...).
		Build()
}
