// Package ir builds the def-use graph of a straight-line fragment body and
// turns stored values into expression trees.
//
// The graph is produced by simulating the operand stack: every
// value-producing instruction becomes a node, locals forward handles, and
// each global.set becomes a Store. Builder walks the graph backwards from
// a store's value through the DefUse interface.
package ir
