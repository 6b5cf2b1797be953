// Package wasm provides WebAssembly binary format parsing and encoding.
//
// It covers the core module format that the inversion engine works on:
//
//	WebAssembly 2.0:
//	  - Core value types (i32, i64, f32, f64)
//	  - Functions, tables, memories, globals
//	  - Control flow, calls, local/global access
//	  - Memory and table operations
//	  - Import/export of all definitions
//
//	Proposals:
//	  - Sign extension, saturating truncation, bulk memory
//	  - Reference types (funcref, externref, ref.null, ref.func)
//	  - Tail calls (return_call, return_call_indirect)
//	  - Extended constant expressions in global initializers
//
// Modules using GC types, SIMD, threads or exception handling are rejected
// with ErrUnsupported.
//
// # Parsing
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModuleValidate(data)
//
// # Instructions
//
// Function bodies are kept as raw bytes. DecodeInstructions turns them into
// Instruction values carrying typed immediates, EncodeInstructions turns
// them back, and Instruction.String renders text-format mnemonics:
//
//	instrs, _ := wasm.DecodeInstructions(module.Code[0].Code)
//	fmt.Print(wasm.Disassemble(instrs))
//
// # Names
//
// The "name" custom section is decoded by Module.Names and rewritten by
// Module.SetNames. Function and global names are exposed; other
// subsections round-trip untouched.
package wasm
