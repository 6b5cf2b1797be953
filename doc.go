// Package wasminvert generates inverse functions for straight-line
// WebAssembly state updates.
//
// A fragment is a [] -> [] function that rewrites mutable numeric globals
// through arithmetic. For every fragment the library appends a function
// that undoes it: running the fragment and then its inverse restores every
// global it wrote.
//
// # Architecture Overview
//
//	wasminvert/
//	├── wasm/            Core WASM binary decode, encode and instruction codec
//	├── errors/          Structured error types with phase, kind and path
//	├── invert/          Public API: Transform, Analyze, Inspect, matchers
//	│   └── internal/
//	│       ├── ir/      Def-use graph of a fragment and expression builder
//	│       ├── expr/    Expression trees, arithmetic and the state model
//	│       ├── engine/  Evaluation, inversion, selection and rewiring
//	│       └── codegen/ Lowering of inverse steps to a function body
//	├── engine/          wazero round-trip verifier
//	└── cmd/wasm-invert/ CLI: inspect, invert, verify, browse
//
// # Quick Start
//
//	out, report, err := invert.Transform(ctx, wasmBytes, invert.Config{})
//	if err != nil {
//	    return err
//	}
//	for _, r := range report.Fragments {
//	    fmt.Printf("%s -> %s\n%s", r.Fragment.Name, r.Export, invert.FormatSteps(r.Steps))
//	}
//
// Check the result by execution:
//
//	v, _ := engine.NewVerifier(ctx)
//	defer v.Close(ctx)
//	res, err := v.RoundTrip(ctx, out, "step", "step_inverse", nil)
//	if err == nil && !res.Exact() {
//	    return res.Mismatch()
//	}
package wasminvert
