package wasm

import (
	"errors"
	"fmt"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
	ErrUnsupported    = errors.New("unsupported feature")
)

// ParseModule parses a WebAssembly binary module.
//
// The decoder covers the MVP plus sign-extension, bulk memory, reference
// types, multi-value and tail calls. GC, SIMD, threads and exception
// handling are rejected with ErrUnsupported.
func ParseModule(data []byte) (*Module, error) {
	r := newReader(data)

	magic, err := r.u32le()
	if err != nil {
		return nil, r.wrap("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.u32le()
	if err != nil {
		return nil, r.wrap("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	var lastOrder int
	for r.len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, r.wrap("section header", err)
		}
		if id != SectionCustom {
			order := sectionOrder(id)
			if order == 0 {
				return nil, fmt.Errorf("unknown section ID: 0x%02x", id)
			}
			if order <= lastOrder {
				return nil, fmt.Errorf("section %d appears out of order", id)
			}
			lastOrder = order
		}
		size, err := r.u32()
		if err != nil {
			return nil, r.wrap("section size", err)
		}
		sr, err := r.sub(size)
		if err != nil {
			return nil, r.wrap("section data", err)
		}

		name, parse := sectionParser(id)
		if err := parse(sr, m); err != nil {
			return nil, sr.wrap(name, err)
		}
		if id != SectionCustom && sr.len() != 0 {
			return nil, fmt.Errorf("%s section: %d trailing bytes", name, sr.len())
		}
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, fmt.Errorf("function and code section counts differ: %d vs %d", len(m.Funcs), len(m.Code))
	}
	return m, nil
}

// sectionOrder returns the canonical position of a section. DataCount
// sits between Element and Code even though its ID is larger.
func sectionOrder(id byte) int {
	switch id {
	case SectionType, SectionImport, SectionFunction, SectionTable,
		SectionMemory, SectionGlobal, SectionExport, SectionStart, SectionElement:
		return int(id)
	case SectionDataCount:
		return 10
	case SectionCode:
		return 11
	case SectionData:
		return 12
	}
	return 0
}

func sectionParser(id byte) (string, func(*reader, *Module) error) {
	switch id {
	case SectionType:
		return "type", parseTypeSection
	case SectionImport:
		return "import", parseImportSection
	case SectionFunction:
		return "function", parseFunctionSection
	case SectionTable:
		return "table", parseTableSection
	case SectionMemory:
		return "memory", parseMemorySection
	case SectionGlobal:
		return "global", parseGlobalSection
	case SectionExport:
		return "export", parseExportSection
	case SectionStart:
		return "start", parseStartSection
	case SectionElement:
		return "element", parseElementSection
	case SectionCode:
		return "code", parseCodeSection
	case SectionData:
		return "data", parseDataSection
	case SectionDataCount:
		return "data count", parseDataCountSection
	}
	return "custom", parseCustomSection
}

// vec reads a count and invokes fn that many times. The count is bounded
// by the remaining bytes since every element occupies at least one.
func vec(r *reader, fn func(i int) error) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	if int(n) > r.len() {
		return fmt.Errorf("vector length %d exceeds remaining %d bytes", n, r.len())
	}
	for i := 0; i < int(n); i++ {
		if err := fn(i); err != nil {
			return err
		}
	}
	return nil
}

func parseCustomSection(r *reader, m *Module) error {
	name, err := r.name()
	if err != nil {
		return err
	}
	rest, _ := r.bytes(r.len())
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: append([]byte(nil), rest...),
	})
	return nil
}

func parseTypeSection(r *reader, m *Module) error {
	return vec(r, func(int) error {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return fmt.Errorf("%w: type form 0x%02x", ErrUnsupported, form)
		}
		var ft FuncType
		if ft.Params, err = readValTypes(r); err != nil {
			return err
		}
		if ft.Results, err = readValTypes(r); err != nil {
			return err
		}
		m.Types = append(m.Types, ft)
		return nil
	})
}

func parseImportSection(r *reader, m *Module) error {
	return vec(r, func(int) error {
		var imp Import
		var err error
		if imp.Module, err = r.name(); err != nil {
			return err
		}
		if imp.Name, err = r.name(); err != nil {
			return err
		}
		if imp.Desc.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		switch imp.Desc.Kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.u32()
		case KindTable:
			var t TableType
			t, err = readTableType(r)
			imp.Desc.Table = &t
		case KindMemory:
			var mt MemoryType
			mt, err = readMemoryType(r)
			imp.Desc.Memory = &mt
		case KindGlobal:
			var g GlobalType
			g, err = readGlobalType(r)
			imp.Desc.Global = &g
		default:
			err = fmt.Errorf("%w: import kind 0x%02x", ErrUnsupported, imp.Desc.Kind)
		}
		if err != nil {
			return err
		}
		m.Imports = append(m.Imports, imp)
		return nil
	})
}

func parseFunctionSection(r *reader, m *Module) error {
	return vec(r, func(int) error {
		idx, err := r.u32()
		if err != nil {
			return err
		}
		m.Funcs = append(m.Funcs, idx)
		return nil
	})
}

func parseTableSection(r *reader, m *Module) error {
	return vec(r, func(int) error {
		t, err := readTableType(r)
		if err != nil {
			return err
		}
		m.Tables = append(m.Tables, t)
		return nil
	})
}

func parseMemorySection(r *reader, m *Module) error {
	return vec(r, func(int) error {
		mt, err := readMemoryType(r)
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, mt)
		return nil
	})
}

func parseGlobalSection(r *reader, m *Module) error {
	return vec(r, func(int) error {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readInitExpr(r)
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
		return nil
	})
}

func parseExportSection(r *reader, m *Module) error {
	return vec(r, func(int) error {
		var e Export
		var err error
		if e.Name, err = r.name(); err != nil {
			return err
		}
		if e.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		if e.Kind > KindGlobal {
			return fmt.Errorf("%w: export kind 0x%02x", ErrUnsupported, e.Kind)
		}
		if e.Idx, err = r.u32(); err != nil {
			return err
		}
		m.Exports = append(m.Exports, e)
		return nil
	})
}

func parseStartSection(r *reader, m *Module) error {
	idx, err := r.u32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *reader, m *Module) error {
	return vec(r, func(int) error {
		flags, err := r.u32()
		if err != nil {
			return err
		}
		if flags > 7 {
			return fmt.Errorf("invalid element segment flags %d", flags)
		}
		e := Element{Flags: flags, ElemKind: 0x00, Type: ValFuncRef}

		// Bit 0 clear: active. Bit 1 with bit 0 clear: explicit table index.
		if flags&0x01 == 0 {
			if flags&0x02 != 0 {
				if e.TableIdx, err = r.u32(); err != nil {
					return err
				}
			}
			if e.Offset, err = readInitExpr(r); err != nil {
				return err
			}
		}

		if e.UsesExprs() {
			if flags&0x03 != 0 {
				t, err := r.ReadByte()
				if err != nil {
					return err
				}
				e.Type = ValType(t)
			}
			if err := vec(r, func(int) error {
				expr, err := readInitExpr(r)
				if err != nil {
					return err
				}
				e.Exprs = append(e.Exprs, expr)
				return nil
			}); err != nil {
				return err
			}
			m.Elements = append(m.Elements, e)
			return nil
		}

		if flags&0x03 != 0 {
			if e.ElemKind, err = r.ReadByte(); err != nil {
				return err
			}
		}
		if err := vec(r, func(int) error {
			idx, err := r.u32()
			if err != nil {
				return err
			}
			e.FuncIdxs = append(e.FuncIdxs, idx)
			return nil
		}); err != nil {
			return err
		}
		m.Elements = append(m.Elements, e)
		return nil
	})
}

func parseCodeSection(r *reader, m *Module) error {
	return vec(r, func(i int) error {
		size, err := r.u32()
		if err != nil {
			return err
		}
		br, err := r.sub(size)
		if err != nil {
			return err
		}
		var body FuncBody
		var total uint64
		if err := vec(br, func(int) error {
			count, err := br.u32()
			if err != nil {
				return err
			}
			total += uint64(count)
			if total > 50000 {
				return fmt.Errorf("function %d declares too many locals", i)
			}
			t, err := br.ReadByte()
			if err != nil {
				return err
			}
			body.Locals = append(body.Locals, LocalEntry{Count: count, ValType: ValType(t)})
			return nil
		}); err != nil {
			return err
		}
		code, _ := br.bytes(br.len())
		if len(code) == 0 || code[len(code)-1] != OpEnd {
			return fmt.Errorf("function %d body does not end with end opcode", i)
		}
		body.Code = append([]byte(nil), code...)
		m.Code = append(m.Code, body)
		return nil
	})
}

func parseDataSection(r *reader, m *Module) error {
	return vec(r, func(int) error {
		flags, err := r.u32()
		if err != nil {
			return err
		}
		d := DataSegment{Flags: flags}
		switch flags {
		case 0:
		case 1:
		case 2:
			if d.MemIdx, err = r.u32(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid data segment flags %d", flags)
		}
		if flags != 1 {
			if d.Offset, err = readInitExpr(r); err != nil {
				return err
			}
		}
		n, err := r.u32()
		if err != nil {
			return err
		}
		init, err := r.bytes(int(n))
		if err != nil {
			return err
		}
		d.Init = append([]byte(nil), init...)
		m.Data = append(m.Data, d)
		return nil
	})
}

func parseDataCountSection(r *reader, m *Module) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	m.DataCount = &n
	return nil
}

func readValTypes(r *reader) ([]ValType, error) {
	var types []ValType
	err := vec(r, func(int) error {
		t, err := readValType(r)
		if err != nil {
			return err
		}
		types = append(types, t)
		return nil
	})
	return types, err
}

func readValType(r *reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch v := ValType(b); v {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern:
		return v, nil
	}
	return 0, fmt.Errorf("%w: value type 0x%02x", ErrUnsupported, b)
}

func readLimits(r *reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags&^0x03 != 0 {
		return Limits{}, fmt.Errorf("%w: limits flags 0x%02x", ErrUnsupported, flags)
	}
	var l Limits
	l.Shared = flags&0x02 != 0
	if l.Min, err = r.u32(); err != nil {
		return Limits{}, err
	}
	if flags&0x01 != 0 {
		maxPages, err := r.u32()
		if err != nil {
			return Limits{}, err
		}
		l.Max = &maxPages
	}
	return l, nil
}

func readTableType(r *reader) (TableType, error) {
	et, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	if ValType(et) != ValFuncRef && ValType(et) != ValExtern {
		return TableType{}, fmt.Errorf("%w: table element type 0x%02x", ErrUnsupported, et)
	}
	l, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: et, Limits: l}, nil
}

func readMemoryType(r *reader) (MemoryType, error) {
	l, err := readLimits(r)
	return MemoryType{Limits: l}, err
}

func readGlobalType(r *reader) (GlobalType, error) {
	t, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("invalid global mutability %d", mut)
	}
	return GlobalType{ValType: t, Mutable: mut == 1}, nil
}

// readInitExpr consumes a constant expression through its end opcode and
// returns its raw bytes.
func readInitExpr(r *reader) ([]byte, error) {
	start := r.pos
	for {
		instr, err := decodeInstruction(r)
		if err != nil {
			return nil, err
		}
		if instr.Opcode == OpEnd {
			break
		}
	}
	return append([]byte(nil), r.data[start:r.pos]...), nil
}
