// Package engine implements the inversion pipeline over a decoded module.
//
// For each selected fragment the pipeline runs in four stages:
//
//   - build: the def-use graph of the body yields one expression per store
//   - evaluate: stores replay in program order over the state model,
//     snapshotting every cell before each store
//   - invert: stores are inverted in reverse program order and each inverse
//     is checked against its snapshot
//   - emit: the inverse steps are lowered into a new function
//
// Transform appends the generated functions, exports them and optionally
// rewires every reference to the original fragments.
//
// This package is internal to the inversion engine.
package engine
