package expr

import (
	"math"

	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/wasm"
)

// Env resolves cell values during evaluation. Implementations are read-only.
type Env interface {
	Get(cell string) (Value, bool)
}

// Evaluate computes e under env with WebAssembly semantics. Shared
// subtrees are evaluated once.
//
// Integer arithmetic wraps. Division or remainder by zero, including float
// division, fails with KindDivisionByZero; signed division of the minimum
// integer by -1 fails with KindIntegerOverflow. A cell env cannot resolve
// fails with KindNotFound.
func Evaluate(e Expr, env Env) (Value, error) {
	ev := evaluator{env: env, memo: make(map[Expr]Value)}
	return ev.eval(e)
}

type evaluator struct {
	env  Env
	memo map[Expr]Value
}

func (ev *evaluator) eval(e Expr) (Value, error) {
	if v, ok := ev.memo[e]; ok {
		return v, nil
	}
	var v Value
	switch n := e.(type) {
	case *Const:
		v = n.Value
	case *CellRef:
		got, ok := ev.env.Get(n.Cell)
		if !ok {
			return Value{}, errors.New(errors.PhaseEvaluate, errors.KindNotFound).
				Cell(n.Cell).
				Detail("cell value unknown").
				Build()
		}
		v = got
	case *BinOp:
		lhs, err := ev.eval(n.LHS)
		if err != nil {
			return Value{}, err
		}
		rhs, err := ev.eval(n.RHS)
		if err != nil {
			return Value{}, err
		}
		if v, err = Apply(n.Op, lhs, rhs); err != nil {
			return Value{}, err
		}
	default:
		return Value{}, errors.InvalidData(errors.PhaseEvaluate, nil, "nil expression")
	}
	ev.memo[e] = v
	return v, nil
}

// Apply evaluates a single operator on two values of the same type.
func Apply(op Operator, a, b Value) (Value, error) {
	if a.Type != b.Type {
		return Value{}, errors.InvalidData(errors.PhaseEvaluate, nil, "operand types "+a.Type.String()+" and "+b.Type.String()+" differ")
	}
	if op.IsFloat() != a.IsFloat() {
		return Value{}, errors.InvalidData(errors.PhaseEvaluate, nil, "operator "+op.String()+" does not apply to "+a.Type.String())
	}
	switch a.Type {
	case wasm.ValI32:
		return applyI32(op, a.I32(), b.I32())
	case wasm.ValI64:
		return applyI64(op, a.I64(), b.I64())
	case wasm.ValF32:
		return applyF32(op, a.F32(), b.F32())
	case wasm.ValF64:
		return applyF64(op, a.F64(), b.F64())
	}
	return Value{}, errors.Unsupported(errors.PhaseEvaluate, "value type "+a.Type.String())
}

func opName(op Operator, t wasm.ValType) string {
	return t.String() + "." + op.String()
}

func applyI32(op Operator, x, y int32) (Value, error) {
	switch op {
	case Add:
		return I32(x + y), nil
	case Sub:
		return I32(x - y), nil
	case Mul:
		return I32(x * y), nil
	}
	if y == 0 {
		return Value{}, errors.DivisionByZero(errors.PhaseEvaluate, opName(op, wasm.ValI32))
	}
	switch op {
	case DivS:
		if x == math.MinInt32 && y == -1 {
			return Value{}, errors.New(errors.PhaseEvaluate, errors.KindIntegerOverflow).
				Detail("i32.div_s of %d by -1", x).
				Build()
		}
		return I32(x / y), nil
	case DivU:
		return I32(int32(uint32(x) / uint32(y))), nil
	case RemS:
		if y == -1 {
			return I32(0), nil
		}
		return I32(x % y), nil
	case RemU:
		return I32(int32(uint32(x) % uint32(y))), nil
	}
	return Value{}, errors.Unsupported(errors.PhaseEvaluate, opName(op, wasm.ValI32))
}

func applyI64(op Operator, x, y int64) (Value, error) {
	switch op {
	case Add:
		return I64(x + y), nil
	case Sub:
		return I64(x - y), nil
	case Mul:
		return I64(x * y), nil
	}
	if y == 0 {
		return Value{}, errors.DivisionByZero(errors.PhaseEvaluate, opName(op, wasm.ValI64))
	}
	switch op {
	case DivS:
		if x == math.MinInt64 && y == -1 {
			return Value{}, errors.New(errors.PhaseEvaluate, errors.KindIntegerOverflow).
				Detail("i64.div_s of %d by -1", x).
				Build()
		}
		return I64(x / y), nil
	case DivU:
		return I64(int64(uint64(x) / uint64(y))), nil
	case RemS:
		if y == -1 {
			return I64(0), nil
		}
		return I64(x % y), nil
	case RemU:
		return I64(int64(uint64(x) % uint64(y))), nil
	}
	return Value{}, errors.Unsupported(errors.PhaseEvaluate, opName(op, wasm.ValI64))
}

func applyF32(op Operator, x, y float32) (Value, error) {
	switch op {
	case FAdd:
		return F32(x + y), nil
	case FSub:
		return F32(x - y), nil
	case FMul:
		return F32(x * y), nil
	case FDiv:
		if y == 0 {
			return Value{}, errors.DivisionByZero(errors.PhaseEvaluate, "f32.div")
		}
		return F32(x / y), nil
	}
	return Value{}, errors.Unsupported(errors.PhaseEvaluate, opName(op, wasm.ValF32))
}

func applyF64(op Operator, x, y float64) (Value, error) {
	switch op {
	case FAdd:
		return F64(x + y), nil
	case FSub:
		return F64(x - y), nil
	case FMul:
		return F64(x * y), nil
	case FDiv:
		if y == 0 {
			return Value{}, errors.DivisionByZero(errors.PhaseEvaluate, "f64.div")
		}
		return F64(x / y), nil
	}
	return Value{}, errors.Unsupported(errors.PhaseEvaluate, opName(op, wasm.ValF64))
}
