// Package expr holds the value, expression and state-model types shared by
// the inversion pipeline.
//
// Expressions are immutable trees over three variants: Const literals,
// CellRef reads of state cells and BinOp arithmetic. Evaluate computes a
// tree with WebAssembly semantics (wrapping integers, trapping division);
// Model tracks the cells' current values across a fragment's stores.
package expr
