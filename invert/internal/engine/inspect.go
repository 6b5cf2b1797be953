package engine

import (
	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/invert/internal/expr"
	"github.com/wippyai/wasm-invert/invert/internal/ir"
	"github.com/wippyai/wasm-invert/wasm"
)

// CellInfo describes a cell and its starting value.
type CellInfo struct {
	Cell
	Initial expr.Value
	// Unresolved explains why Initial is missing; empty when it is known.
	Unresolved string
}

// FragmentInfo describes a [] -> [] function.
type FragmentInfo struct {
	Fragment
	Stores int
	// Reason is why the body cannot be inverted; empty when it can.
	Reason string
}

// Inventory lists a module's cells and candidate fragments.
type Inventory struct {
	Cells     []CellInfo
	Fragments []FragmentInfo
}

// Inspect builds the inventory of m without modifying it.
func (e *Engine) Inspect(m *wasm.Module) (*Inventory, error) {
	mi, err := e.prepare(m)
	if err != nil {
		return nil, err
	}

	inv := &Inventory{}
	for _, c := range mi.cells.All() {
		info := CellInfo{Cell: c}
		if v, ok := mi.initial.Get(c.Name); ok {
			info.Initial = v
		} else if c.Numeric() {
			info.Unresolved = mi.unresolved[c.Name]
		}
		inv.Cells = append(inv.Cells, info)
	}

	numImported := uint32(m.NumImportedFuncs())
	for i := range m.Code {
		idx := numImported + uint32(i)
		sig := m.GetFuncType(idx)
		if sig == nil || len(sig.Params) != 0 || len(sig.Results) != 0 {
			continue
		}
		info := FragmentInfo{Fragment: Fragment{Index: idx, Name: FunctionName(m, mi.names, idx)}}
		n, err := countStores(m, idx)
		if err != nil {
			info.Reason = err.Error()
		}
		info.Stores = n
		inv.Fragments = append(inv.Fragments, info)
	}
	return inv, nil
}

// Analyze runs the pipeline on one function without modifying m.
func (e *Engine) Analyze(m *wasm.Module, funcIdx uint32) (*Result, error) {
	mi, err := e.prepare(m)
	if err != nil {
		return nil, err
	}
	if int(funcIdx) >= m.NumFuncs() {
		return nil, errors.OutOfBounds(errors.PhaseConfig, []string{"funcs"}, int(funcIdx), m.NumFuncs())
	}
	sig := m.GetFuncType(funcIdx)
	if sig == nil || len(sig.Params) != 0 || len(sig.Results) != 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, funcPath(funcIdx)+" signature is not [] -> []")
	}
	frag := Fragment{Index: funcIdx, Name: FunctionName(m, mi.names, funcIdx)}
	return e.run(mi, frag, e.log)
}

func countStores(m *wasm.Module, funcIdx uint32) (int, error) {
	g, err := ir.FromModule(m, funcIdx)
	if err != nil {
		return 0, err
	}
	return len(g.Stores()), nil
}
