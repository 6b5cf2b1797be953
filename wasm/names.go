package wasm

import (
	"fmt"
	"sort"
)

// NameSectionName is the custom section holding debug names.
const NameSectionName = "name"

// NameMap maps an index space to debug names.
type NameMap map[uint32]string

// Names is the decoded "name" custom section. Module, function and global
// names are decoded; other subsections are carried through unchanged.
type Names struct {
	Funcs   NameMap
	Globals NameMap
	raw     map[byte][]byte
	Module  string
}

// ParseNames decodes the payload of a "name" custom section.
func ParseNames(data []byte) (*Names, error) {
	n := &Names{Funcs: NameMap{}, Globals: NameMap{}, raw: map[byte][]byte{}}
	r := newReader(data)
	for r.len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := r.u32()
		if err != nil {
			return nil, r.wrap("name", err)
		}
		sr, err := r.sub(size)
		if err != nil {
			return nil, r.wrap("name", err)
		}
		switch id {
		case NameSubsectionModule:
			if n.Module, err = sr.name(); err != nil {
				return nil, sr.wrap("name", err)
			}
		case NameSubsectionFunction:
			if err := readNameMap(sr, n.Funcs); err != nil {
				return nil, sr.wrap("name", err)
			}
		case NameSubsectionGlobal:
			if err := readNameMap(sr, n.Globals); err != nil {
				return nil, sr.wrap("name", err)
			}
		default:
			n.raw[id] = append([]byte(nil), sr.data...)
		}
	}
	return n, nil
}

func readNameMap(r *reader, into NameMap) error {
	return vec(r, func(int) error {
		idx, err := r.u32()
		if err != nil {
			return err
		}
		name, err := r.name()
		if err != nil {
			return err
		}
		into[idx] = name
		return nil
	})
}

// Encode returns the section payload with subsections in ascending ID order.
func (n *Names) Encode() []byte {
	ids := make([]int, 0, len(n.raw)+3)
	for id := range n.raw {
		ids = append(ids, int(id))
	}
	if n.Module != "" {
		ids = append(ids, int(NameSubsectionModule))
	}
	if len(n.Funcs) > 0 {
		ids = append(ids, int(NameSubsectionFunction))
	}
	if len(n.Globals) > 0 {
		ids = append(ids, int(NameSubsectionGlobal))
	}
	sort.Ints(ids)

	w := &writer{}
	for _, id := range ids {
		sub := &writer{}
		switch byte(id) {
		case NameSubsectionModule:
			sub.name(n.Module)
		case NameSubsectionFunction:
			writeNameMap(sub, n.Funcs)
		case NameSubsectionGlobal:
			writeNameMap(sub, n.Globals)
		default:
			sub.write(n.raw[byte(id)])
		}
		w.section(byte(id), sub.buf)
	}
	return w.buf
}

func writeNameMap(w *writer, m NameMap) {
	idxs := make([]uint32, 0, len(m))
	for idx := range m {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	w.u32(uint32(len(idxs)))
	for _, idx := range idxs {
		w.u32(idx)
		w.name(m[idx])
	}
}

// Names decodes the module's name section. It returns nil and no error when
// the module has none.
func (m *Module) Names() (*Names, error) {
	cs := m.CustomSection(NameSectionName)
	if cs == nil {
		return nil, nil
	}
	n, err := ParseNames(cs.Data)
	if err != nil {
		return nil, fmt.Errorf("name section: %w", err)
	}
	return n, nil
}

// SetNames replaces the module's name section, appending one if absent.
func (m *Module) SetNames(n *Names) {
	data := n.Encode()
	if cs := m.CustomSection(NameSectionName); cs != nil {
		cs.Data = data
		return
	}
	m.CustomSections = append(m.CustomSections, CustomSection{Name: NameSectionName, Data: data})
}
