// Package errors provides structured error types for the wasm-invert module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: location path, state cell name and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseInvert, errors.KindNonLinearExpression).
//		Path("func[2]", "store[0]").
//		Cell("counter").
//		Detail("cell referenced 2 times").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.DivisionByZero(errors.PhaseEvaluate, "i32.div_s")
//	err := errors.UnresolvedInitializer("counter", "imported global")
//
// Kinds for division by zero, trapping overflow and unresolved cell
// initializers are fatal: Kind.Fatal reports true and the inversion run is
// abandoned. All errors implement the standard error interface and support
// errors.Is/As.
package errors
