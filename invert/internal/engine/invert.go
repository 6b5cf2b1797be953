package engine

import (
	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/invert/internal/expr"
	"github.com/wippyai/wasm-invert/wasm"
)

// Inverter derives the expression that recovers a cell's prior value from
// the forward expression stored into it.
type Inverter interface {
	Invert(target string, t wasm.ValType, forward expr.Expr) (expr.Expr, error)
}

// NewInverter returns the inverter for mode.
func NewInverter(mode Mode) Inverter {
	if mode == ModeSwap {
		return swapInverter{}
	}
	return chainInverter{}
}

// chainInverter folds the path from the root to the single self-reference.
// With acc starting as the target's current (forward) value, each level on
// the path contributes one inverse application:
//
//	x op c  ->  acc inv c
//	c op x  ->  acc inv c   (op commutative)
//	c - x   ->  c - acc
//
// A self-reference under the right side of a division or anywhere under a
// remainder has no inverse.
type chainInverter struct{}

func (chainInverter) Invert(target string, t wasm.ValType, forward expr.Expr) (expr.Expr, error) {
	rc := expr.NewRefCounter(target)
	switch n := rc.Count(forward); {
	case n == 0:
		return nil, errors.New(errors.PhaseInvert, errors.KindNonLinearExpression).
			Cell(target).
			Detail("stored value does not read the cell").
			Build()
	case n > 1:
		return nil, errors.New(errors.PhaseInvert, errors.KindNonLinearExpression).
			Cell(target).
			Detail("cell read %d times in %s", n, expr.Format(forward)).
			Build()
	}

	var acc expr.Expr = expr.Ref(target, t)
	cur := forward
	for {
		b, ok := cur.(*expr.BinOp)
		if !ok {
			return acc, nil
		}
		inv, ok := b.Op.Inverse()
		if !ok {
			return nil, nonInvertibleOperator(target, b)
		}
		if rc.Count(b.LHS) == 1 {
			acc = expr.NewBinOp(inv, b.ValType, acc, b.RHS)
			cur = b.LHS
			continue
		}
		switch {
		case b.Op.Commutative():
			acc = expr.NewBinOp(inv, b.ValType, acc, b.LHS)
		case b.Op == expr.Sub || b.Op == expr.FSub:
			acc = expr.NewBinOp(b.Op, b.ValType, b.LHS, acc)
		default:
			return nil, nonInvertibleOperator(target, b)
		}
		cur = b.RHS
	}
}

func nonInvertibleOperator(target string, b *expr.BinOp) error {
	return errors.New(errors.PhaseInvert, errors.KindNonInvertibleOperator).
		Cell(target).
		Detail("%s.%s in %s", b.ValType, b.Op, expr.Format(b)).
		Build()
}

// swapInverter replaces every operator with its inverse, keeping operand
// order. It is exact only for a single operation with the cell on the left.
// Multiplication swaps to signed division in both integer widths, so a
// negative cell scaled without wrapping restores.
type swapInverter struct{}

func (swapInverter) Invert(target string, _ wasm.ValType, forward expr.Expr) (expr.Expr, error) {
	memo := make(map[expr.Expr]expr.Expr)
	var swap func(e expr.Expr) (expr.Expr, error)
	swap = func(e expr.Expr) (expr.Expr, error) {
		if out, ok := memo[e]; ok {
			return out, nil
		}
		b, ok := e.(*expr.BinOp)
		if !ok {
			return e, nil
		}
		inv, ok := b.Op.Inverse()
		if !ok {
			return nil, nonInvertibleOperator(target, b)
		}
		lhs, err := swap(b.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := swap(b.RHS)
		if err != nil {
			return nil, err
		}
		out := expr.NewBinOp(inv, b.ValType, lhs, rhs)
		memo[e] = out
		return out, nil
	}
	return swap(forward)
}
