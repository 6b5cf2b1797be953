package wasm

// Encode encodes the module to WebAssembly binary format. Custom sections
// are written after all known sections, in their original order.
func (m *Module) Encode() []byte {
	w := &writer{}
	w.u32le(Magic)
	w.u32le(Version)

	if len(m.Types) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.byte(FuncTypeByte)
			writeValTypes(sec, ft.Params)
			writeValTypes(sec, ft.Results)
		}
		w.section(SectionType, sec.buf)
	}

	if len(m.Imports) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.name(imp.Module)
			sec.name(imp.Name)
			sec.byte(imp.Desc.Kind)
			switch imp.Desc.Kind {
			case KindFunc:
				sec.u32(imp.Desc.TypeIdx)
			case KindTable:
				if imp.Desc.Table != nil {
					writeTableType(sec, *imp.Desc.Table)
				}
			case KindMemory:
				if imp.Desc.Memory != nil {
					writeLimits(sec, imp.Desc.Memory.Limits)
				}
			case KindGlobal:
				if imp.Desc.Global != nil {
					writeGlobalType(sec, *imp.Desc.Global)
				}
			}
		}
		w.section(SectionImport, sec.buf)
	}

	if len(m.Funcs) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Funcs)))
		for _, idx := range m.Funcs {
			sec.u32(idx)
		}
		w.section(SectionFunction, sec.buf)
	}

	if len(m.Tables) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Tables)))
		for _, t := range m.Tables {
			writeTableType(sec, t)
		}
		w.section(SectionTable, sec.buf)
	}

	if len(m.Memories) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			writeLimits(sec, mem.Limits)
		}
		w.section(SectionMemory, sec.buf)
	}

	if len(m.Globals) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			writeGlobalType(sec, g.Type)
			sec.write(g.Init)
		}
		w.section(SectionGlobal, sec.buf)
	}

	if len(m.Exports) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Exports)))
		for _, e := range m.Exports {
			sec.name(e.Name)
			sec.byte(e.Kind)
			sec.u32(e.Idx)
		}
		w.section(SectionExport, sec.buf)
	}

	if m.Start != nil {
		sec := &writer{}
		sec.u32(*m.Start)
		w.section(SectionStart, sec.buf)
	}

	if len(m.Elements) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Elements)))
		for i := range m.Elements {
			writeElement(sec, &m.Elements[i])
		}
		w.section(SectionElement, sec.buf)
	}

	if m.DataCount != nil {
		sec := &writer{}
		sec.u32(*m.DataCount)
		w.section(SectionDataCount, sec.buf)
	}

	if len(m.Code) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Code)))
		for _, body := range m.Code {
			fb := &writer{}
			fb.u32(uint32(len(body.Locals)))
			for _, l := range body.Locals {
				fb.u32(l.Count)
				fb.byte(byte(l.ValType))
			}
			fb.write(body.Code)
			sec.u32(uint32(len(fb.buf)))
			sec.write(fb.buf)
		}
		w.section(SectionCode, sec.buf)
	}

	if len(m.Data) > 0 {
		sec := &writer{}
		sec.u32(uint32(len(m.Data)))
		for _, d := range m.Data {
			sec.u32(d.Flags)
			if d.Flags == 2 {
				sec.u32(d.MemIdx)
			}
			if d.Flags != 1 {
				sec.write(d.Offset)
			}
			sec.u32(uint32(len(d.Init)))
			sec.write(d.Init)
		}
		w.section(SectionData, sec.buf)
	}

	for _, cs := range m.CustomSections {
		sec := &writer{}
		sec.name(cs.Name)
		sec.write(cs.Data)
		w.section(SectionCustom, sec.buf)
	}

	return w.buf
}

func writeValTypes(w *writer, types []ValType) {
	w.u32(uint32(len(types)))
	for _, t := range types {
		w.byte(byte(t))
	}
}

func writeLimits(w *writer, l Limits) {
	var flags byte
	if l.Max != nil {
		flags |= 0x01
	}
	if l.Shared {
		flags |= 0x02
	}
	w.byte(flags)
	w.u32(l.Min)
	if l.Max != nil {
		w.u32(*l.Max)
	}
}

func writeTableType(w *writer, t TableType) {
	w.byte(t.ElemType)
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *writer, g GlobalType) {
	w.byte(byte(g.ValType))
	if g.Mutable {
		w.byte(1)
	} else {
		w.byte(0)
	}
}

func writeElement(w *writer, e *Element) {
	w.u32(e.Flags)
	if e.Flags&0x01 == 0 {
		if e.Flags&0x02 != 0 {
			w.u32(e.TableIdx)
		}
		w.write(e.Offset)
	}
	if e.UsesExprs() {
		if e.Flags&0x03 != 0 {
			w.byte(byte(e.Type))
		}
		w.u32(uint32(len(e.Exprs)))
		for _, x := range e.Exprs {
			w.write(x)
		}
		return
	}
	if e.Flags&0x03 != 0 {
		w.byte(e.ElemKind)
	}
	w.u32(uint32(len(e.FuncIdxs)))
	for _, idx := range e.FuncIdxs {
		w.u32(idx)
	}
}
