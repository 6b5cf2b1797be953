// Package engine executes inverted modules in wazero.
//
// A Verifier instantiates a module without imports, calls a fragment and
// then its inverse, and records every exported mutable numeric global
// before, between and after the calls:
//
//	v, err := engine.NewVerifier(ctx)
//	if err != nil {
//	    return err
//	}
//	defer v.Close(ctx)
//
//	res, err := v.RoundTrip(ctx, wasmBytes, "step", "step_inverse", map[string]string{"x": "10"})
//	if err != nil {
//	    return err
//	}
//	if err := res.Mismatch(); err != nil {
//	    return err // *errors.Error with KindMismatch
//	}
//
// Integer fragments without wrapping round trip bit for bit. Float
// fragments and multiplications that overflow may not; CellCheck.Exact
// reports each cell.
package engine
