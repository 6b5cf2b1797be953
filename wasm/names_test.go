package wasm_test

import (
	"testing"

	"github.com/wippyai/wasm-invert/wasm"
)

func TestNamesRoundTrip(t *testing.T) {
	n, err := wasm.ParseNames(nil)
	if err != nil {
		t.Fatal(err)
	}
	n.Module = "counter"
	n.Funcs[1] = "tick"
	n.Funcs[0] = "log"
	n.Globals[1] = "x"

	parsed, err := wasm.ParseNames(n.Encode())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Module != "counter" {
		t.Errorf("Module = %q", parsed.Module)
	}
	if parsed.Funcs[0] != "log" || parsed.Funcs[1] != "tick" {
		t.Errorf("Funcs = %v", parsed.Funcs)
	}
	if parsed.Globals[1] != "x" {
		t.Errorf("Globals = %v", parsed.Globals)
	}
}

func TestNamesPreservesUnknownSubsections(t *testing.T) {
	// Subsection 2 (locals) with an opaque payload, then a function map.
	data := []byte{
		wasm.NameSubsectionLocal, 0x02, 0xAA, 0xBB,
		wasm.NameSubsectionFunction, 0x05, 0x01, 0x00, 0x02, 'f', 'n',
	}
	n, err := wasm.ParseNames(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n.Funcs[0] != "fn" {
		t.Fatalf("Funcs = %v", n.Funcs)
	}

	want := []byte{
		wasm.NameSubsectionFunction, 0x05, 0x01, 0x00, 0x02, 'f', 'n',
		wasm.NameSubsectionLocal, 0x02, 0xAA, 0xBB,
	}
	if got := n.Encode(); string(got) != string(want) {
		t.Errorf("Encode() = %x, want %x", got, want)
	}
}

func TestModuleNames(t *testing.T) {
	m := &wasm.Module{}
	names, err := m.Names()
	if err != nil || names != nil {
		t.Fatalf("Names() on bare module = %v, %v", names, err)
	}

	n, _ := wasm.ParseNames(nil)
	n.Globals[0] = "count"
	m.SetNames(n)
	m.SetNames(n)
	if len(m.CustomSections) != 1 {
		t.Fatalf("SetNames appended %d sections", len(m.CustomSections))
	}

	got, err := m.Names()
	if err != nil {
		t.Fatal(err)
	}
	if got.Globals[0] != "count" {
		t.Errorf("Globals = %v", got.Globals)
	}
}

func TestParseNamesTruncated(t *testing.T) {
	if _, err := wasm.ParseNames([]byte{wasm.NameSubsectionFunction, 0x05, 0x01}); err == nil {
		t.Error("expected error for truncated subsection")
	}
}
