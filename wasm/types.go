package wasm

// Module represents a parsed WebAssembly core module.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // Type indices for defined functions
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elements []Element
	Code     []FuncBody
	Data     []DataSegment

	// DataCount holds the count from the DataCount section (ID 12).
	DataCount *uint32

	CustomSections []CustomSection
}

// FuncType represents a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// ValType represents a WebAssembly value type.
// See constants.go for ValI32, ValI64, ValF32, ValF64, etc.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether v is one of the four numeric types.
func (v ValType) IsNumeric() bool {
	switch v {
	case ValI32, ValI64, ValF32, ValF64:
		return true
	}
	return false
}

// Import represents an imported function, table, memory or global.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc describes an imported item.
// Kind uses KindFunc, KindTable, KindMemory or KindGlobal.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

// TableType describes a table with element type and size limits.
type TableType struct {
	Limits   Limits
	ElemType byte
}

// MemoryType describes a linear memory with size limits.
type MemoryType struct {
	Limits Limits
}

// Limits describes size constraints for tables and memories.
type Limits struct {
	Max    *uint32
	Min    uint32
	Shared bool
}

// GlobalType describes a global's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global represents a global variable with type and initialization.
type Global struct {
	Type GlobalType
	Init []byte // Raw init expression bytes, including the final end
}

// Export describes an exported item.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Element represents an element segment.
// Flags determine the format:
//   - 0: active, tableIdx=0, offset expr, vec(funcidx)
//   - 1: passive, elemkind, vec(funcidx)
//   - 2: active, tableIdx, offset expr, elemkind, vec(funcidx)
//   - 3: declarative, elemkind, vec(funcidx)
//   - 4: active, tableIdx=0, offset expr, vec(expr)
//   - 5: passive, reftype, vec(expr)
//   - 6: active, tableIdx, offset expr, reftype, vec(expr)
//   - 7: declarative, reftype, vec(expr)
type Element struct {
	Offset   []byte
	FuncIdxs []uint32
	Exprs    [][]byte
	Flags    uint32
	TableIdx uint32
	ElemKind byte
	Type     ValType
}

// UsesExprs reports whether the segment carries init expressions rather
// than plain function indices.
func (e *Element) UsesExprs() bool {
	return e.Flags&0x04 != 0
}

// FuncBody represents a function's local declarations and bytecode.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte // Raw code bytes including end opcode
}

// LocalEntry represents a group of local variables with the same type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// DataSegment represents a data segment.
// Flags determine the format:
//   - 0: active, memIdx=0, offset expr, vec(byte)
//   - 1: passive, vec(byte)
//   - 2: active, memIdx, offset expr, vec(byte)
type DataSegment struct {
	Offset []byte
	Init   []byte
	Flags  uint32
	MemIdx uint32
}

// CustomSection holds a named custom section's data.
type CustomSection struct {
	Name string
	Data []byte
}

// NumImportedFuncs returns the number of imported functions.
func (m *Module) NumImportedFuncs() int {
	return m.numImported(KindFunc)
}

// NumImportedGlobals returns the number of imported globals.
func (m *Module) NumImportedGlobals() int {
	return m.numImported(KindGlobal)
}

func (m *Module) numImported(kind byte) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			n++
		}
	}
	return n
}

// NumFuncs returns the size of the function index space.
func (m *Module) NumFuncs() int {
	return m.NumImportedFuncs() + len(m.Funcs)
}

// NumGlobals returns the size of the global index space.
func (m *Module) NumGlobals() int {
	return m.NumImportedGlobals() + len(m.Globals)
}

// GetFuncType returns the signature of the function at funcIdx in the
// function index space, or nil when the index or its type is out of range.
func (m *Module) GetFuncType(funcIdx uint32) *FuncType {
	var typeIdx uint32
	numImported := uint32(m.NumImportedFuncs())
	if funcIdx < numImported {
		var n uint32
		for _, imp := range m.Imports {
			if imp.Desc.Kind != KindFunc {
				continue
			}
			if n == funcIdx {
				typeIdx = imp.Desc.TypeIdx
				break
			}
			n++
		}
	} else {
		local := funcIdx - numImported
		if int(local) >= len(m.Funcs) {
			return nil
		}
		typeIdx = m.Funcs[local]
	}
	if int(typeIdx) >= len(m.Types) {
		return nil
	}
	return &m.Types[typeIdx]
}

// GetGlobalType returns the type of the global at globalIdx in the global
// index space. The second result is true when the global is imported.
func (m *Module) GetGlobalType(globalIdx uint32) (GlobalType, bool, bool) {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindGlobal || imp.Desc.Global == nil {
			continue
		}
		if n == globalIdx {
			return *imp.Desc.Global, true, true
		}
		n++
	}
	local := globalIdx - n
	if globalIdx < n || int(local) >= len(m.Globals) {
		return GlobalType{}, false, false
	}
	return m.Globals[local].Type, false, true
}

// AddType adds a function type and returns its index, reusing an existing
// equal type.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if typesEqual(t, ft) {
			return uint32(i)
		}
	}
	idx := uint32(len(m.Types))
	m.Types = append(m.Types, ft)
	return idx
}

// AddFunc appends a defined function and returns its index in the function
// index space. Existing indices are unaffected.
func (m *Module) AddFunc(typeIdx uint32, body FuncBody) uint32 {
	idx := uint32(m.NumFuncs())
	m.Funcs = append(m.Funcs, typeIdx)
	m.Code = append(m.Code, body)
	return idx
}

// ExportNames returns the set of all export names.
func (m *Module) ExportNames() map[string]bool {
	names := make(map[string]bool, len(m.Exports))
	for _, e := range m.Exports {
		names[e.Name] = true
	}
	return names
}

// FindExport returns the export with the given name and kind.
func (m *Module) FindExport(name string, kind byte) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name && e.Kind == kind {
			return e, true
		}
	}
	return Export{}, false
}

// CustomSection returns the first custom section with the given name.
func (m *Module) CustomSection(name string) *CustomSection {
	for i := range m.CustomSections {
		if m.CustomSections[i].Name == name {
			return &m.CustomSections[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the module's mutable slices so callers can
// append and rewrite without touching the original.
func (m *Module) Clone() *Module {
	c := *m
	c.Types = append([]FuncType(nil), m.Types...)
	c.Imports = append([]Import(nil), m.Imports...)
	c.Funcs = append([]uint32(nil), m.Funcs...)
	c.Tables = append([]TableType(nil), m.Tables...)
	c.Memories = append([]MemoryType(nil), m.Memories...)
	c.Globals = cloneEach(m.Globals, func(g Global) Global {
		g.Init = append([]byte(nil), g.Init...)
		return g
	})
	c.Exports = append([]Export(nil), m.Exports...)
	if m.Start != nil {
		s := *m.Start
		c.Start = &s
	}
	c.Elements = cloneEach(m.Elements, func(e Element) Element {
		e.Offset = append([]byte(nil), e.Offset...)
		e.FuncIdxs = append([]uint32(nil), e.FuncIdxs...)
		e.Exprs = cloneEach(e.Exprs, func(x []byte) []byte { return append([]byte(nil), x...) })
		return e
	})
	c.Code = cloneEach(m.Code, func(b FuncBody) FuncBody {
		return FuncBody{
			Locals: append([]LocalEntry(nil), b.Locals...),
			Code:   append([]byte(nil), b.Code...),
		}
	})
	c.Data = append([]DataSegment(nil), m.Data...)
	c.CustomSections = cloneEach(m.CustomSections, func(cs CustomSection) CustomSection {
		cs.Data = append([]byte(nil), cs.Data...)
		return cs
	})
	return &c
}

func cloneEach[T any](s []T, fn func(T) T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	for i, v := range s {
		out[i] = fn(v)
	}
	return out
}

func typesEqual(a, b FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}
