// Package invert generates inverse functions for straight-line WebAssembly
// state updates.
//
// # Overview
//
// A fragment is a defined [] -> [] function whose body only reads and
// writes mutable numeric globals (cells) through arithmetic. Each
// global.set is rebuilt into an expression over the cells read before it:
//
//	global.get $x
//	i32.const 5
//	i32.add
//	global.set $x        ;; x = x + 5
//	global.get $x
//	i32.const 2
//	i32.mul
//	global.set $x        ;; x = x * 2
//
// The inverse undoes the stores in reverse order, each one solved for the
// prior value of its cell:
//
//	x = x /s 2
//	x = x - 5
//
// and is appended to the module as "step_inverse".
//
// # Inversion Modes
//
// ModeChain follows the path from the stored root to the single read of the
// target cell and composes the inverse of each operation on that path. A
// store whose value reads its cell zero or several times, or passes it
// through a remainder or the right side of a division, cannot be inverted.
//
// ModeSwap replaces each operator with its inverse and keeps operand order.
//
// # Policies
//
// Under PolicyStrict any store that cannot be inverted fails the call and
// leaves the module unmodified. Under PolicySkip the store is left out of
// the inverse and reported in Result.Skipped; cells it wrote become unknown
// for later evaluation. Division by zero, integer overflow and reads of
// cells whose starting value is unknown abort under either policy.
//
// # Usage
//
//	out, report, err := invert.Transform(ctx, wasmBytes, invert.Config{
//	    Functions: []string{"step"},
//	    Seeds:     map[string]string{"base": "16"},
//	})
//	for _, r := range report.Fragments {
//	    fmt.Print(invert.FormatSteps(r.Steps))
//	}
//
// Config.Rewire redirects calls, exports, element segments, ref.func
// initializers and the start function from each fragment to its inverse.
package invert
