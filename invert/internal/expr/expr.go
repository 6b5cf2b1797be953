package expr

import (
	"strings"

	"github.com/wippyai/wasm-invert/wasm"
)

// Expr is an immutable arithmetic expression tree. The variants are
// *Const, *CellRef and *BinOp. Nodes may be shared between trees; nothing
// mutates a node after construction.
type Expr interface {
	Type() wasm.ValType
	isExpr()
}

// Const is a literal value.
type Const struct {
	Value Value
}

// CellRef reads the current value of a state cell.
type CellRef struct {
	Cell    string
	ValType wasm.ValType
}

// BinOp applies Op to LHS and RHS, both of type ValType.
type BinOp struct {
	LHS     Expr
	RHS     Expr
	Op      Operator
	ValType wasm.ValType
}

func (c *Const) Type() wasm.ValType   { return c.Value.Type }
func (c *CellRef) Type() wasm.ValType { return c.ValType }
func (b *BinOp) Type() wasm.ValType   { return b.ValType }

func (*Const) isExpr()   {}
func (*CellRef) isExpr() {}
func (*BinOp) isExpr()   {}

// NewConst returns a literal node.
func NewConst(v Value) *Const { return &Const{Value: v} }

// Ref returns a cell read node.
func Ref(cell string, t wasm.ValType) *CellRef { return &CellRef{Cell: cell, ValType: t} }

// NewBinOp returns a binary node.
func NewBinOp(op Operator, t wasm.ValType, lhs, rhs Expr) *BinOp {
	return &BinOp{Op: op, ValType: t, LHS: lhs, RHS: rhs}
}

// Format renders e in infix notation with fully parenthesized operands,
// e.g. "(x + 5) * 2".
func Format(e Expr) string {
	var b strings.Builder
	format(&b, e, true)
	return b.String()
}

func format(b *strings.Builder, e Expr, root bool) {
	switch n := e.(type) {
	case *Const:
		b.WriteString(n.Value.String())
	case *CellRef:
		b.WriteString(n.Cell)
	case *BinOp:
		if !root {
			b.WriteByte('(')
		}
		format(b, n.LHS, false)
		b.WriteByte(' ')
		b.WriteString(n.Op.Symbol())
		b.WriteByte(' ')
		format(b, n.RHS, false)
		if !root {
			b.WriteByte(')')
		}
	default:
		b.WriteString("<nil>")
	}
}

// RefCounter counts references to one cell, memoizing per node so shared
// subtrees are walked once.
type RefCounter struct {
	memo map[Expr]int
	cell string
}

// NewRefCounter returns a counter for cell.
func NewRefCounter(cell string) *RefCounter {
	return &RefCounter{cell: cell, memo: make(map[Expr]int)}
}

// Count returns the number of CellRef leaves naming the cell, counting a
// shared subtree once per use.
func (c *RefCounter) Count(e Expr) int {
	if n, ok := c.memo[e]; ok {
		return n
	}
	var n int
	switch v := e.(type) {
	case *CellRef:
		if v.Cell == c.cell {
			n = 1
		}
	case *BinOp:
		n = c.Count(v.LHS) + c.Count(v.RHS)
	}
	c.memo[e] = n
	return n
}

// CountRefs is a convenience wrapper around RefCounter.
func CountRefs(e Expr, cell string) int {
	return NewRefCounter(cell).Count(e)
}

// Cells returns the distinct cells referenced by e in first-visit order.
func Cells(e Expr) []string {
	var out []string
	seen := make(map[string]bool)
	visited := make(map[Expr]bool)
	var walk func(Expr)
	walk = func(e Expr) {
		if visited[e] {
			return
		}
		visited[e] = true
		switch v := e.(type) {
		case *CellRef:
			if !seen[v.Cell] {
				seen[v.Cell] = true
				out = append(out, v.Cell)
			}
		case *BinOp:
			walk(v.LHS)
			walk(v.RHS)
		}
	}
	walk(e)
	return out
}
