// Package codegen emits the bytecode of generated inverse functions.
//
// Emitter is a chainable bytecode writer; Lower compiles a list of cell
// assignments into a parameterless, local-free function body.
//
// This package is internal to the inversion engine.
package codegen
