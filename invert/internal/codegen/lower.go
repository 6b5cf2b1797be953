package codegen

import (
	"strconv"

	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/invert/internal/expr"
	"github.com/wippyai/wasm-invert/wasm"
)

// Assignment stores the value of an expression into a cell.
type Assignment struct {
	Value expr.Expr
	Cell  string
}

// CellIndex resolves cell names to global indices.
type CellIndex interface {
	GlobalIndex(cell string) (uint32, bool)
}

// CellIndexFunc adapts a function to CellIndex.
type CellIndexFunc func(cell string) (uint32, bool)

// GlobalIndex calls f.
func (f CellIndexFunc) GlobalIndex(cell string) (uint32, bool) { return f(cell) }

// Lower compiles assignments, in order, into a function body with no
// locals: each value is emitted in post-order and followed by global.set,
// and the body ends with end. The output depends only on the input.
func Lower(steps []Assignment, cells CellIndex) (wasm.FuncBody, error) {
	e := GetEmitter()
	defer PutEmitter(e)

	for i, step := range steps {
		idx, ok := cells.GlobalIndex(step.Cell)
		if !ok {
			return wasm.FuncBody{}, errors.New(errors.PhaseEmit, errors.KindNotFound).
				Path(stepPath(i)).
				Cell(step.Cell).
				Detail("cell has no global").
				Build()
		}
		if err := Emit(e, step.Value, cells); err != nil {
			return wasm.FuncBody{}, errors.WithPath(err, stepPath(i))
		}
		e.GlobalSet(idx)
	}
	e.End()
	return wasm.FuncBody{Code: e.Copy()}, nil
}

func stepPath(i int) string {
	return "step[" + strconv.Itoa(i) + "]"
}

// Emit writes the post-order lowering of x: operands first, then the
// operator. Shared subtrees are emitted at every use.
func Emit(e *Emitter, x expr.Expr, cells CellIndex) error {
	switch n := x.(type) {
	case *expr.Const:
		return emitConst(e, n.Value)
	case *expr.CellRef:
		idx, ok := cells.GlobalIndex(n.Cell)
		if !ok {
			return errors.New(errors.PhaseEmit, errors.KindNotFound).
				Cell(n.Cell).
				Detail("cell has no global").
				Build()
		}
		e.GlobalGet(idx)
		return nil
	case *expr.BinOp:
		if err := Emit(e, n.LHS, cells); err != nil {
			return err
		}
		if err := Emit(e, n.RHS, cells); err != nil {
			return err
		}
		code, ok := expr.Opcode(n.Op, n.ValType)
		if !ok {
			return errors.Unsupported(errors.PhaseEmit, n.ValType.String()+"."+n.Op.String())
		}
		e.Op(code)
		return nil
	}
	return errors.InvalidData(errors.PhaseEmit, nil, "nil expression")
}

func emitConst(e *Emitter, v expr.Value) error {
	switch v.Type {
	case wasm.ValI32:
		e.I32Const(v.I32())
	case wasm.ValI64:
		e.I64Const(v.I64())
	case wasm.ValF32:
		e.F32Const(v.F32())
	case wasm.ValF64:
		e.F64Const(v.F64())
	default:
		return errors.Unsupported(errors.PhaseEmit, "constant of type "+v.Type.String())
	}
	return nil
}
