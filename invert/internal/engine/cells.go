package engine

import (
	"fmt"

	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/invert/internal/expr"
	"github.com/wippyai/wasm-invert/wasm"
)

// Cell is one global of the module viewed as a state cell.
type Cell struct {
	Name     string
	Index    uint32
	Type     wasm.ValType
	Mutable  bool
	Imported bool
}

// Numeric reports whether the cell holds an i32, i64, f32 or f64.
func (c *Cell) Numeric() bool { return c.Type.IsNumeric() }

// CellTable names every global of a module. Names come from the name
// section, then global exports, then "global[N]"; a name already taken
// falls back to "global[N]".
type CellTable struct {
	byName map[string]uint32
	cells  []Cell
}

// NewCellTable builds the table for m.
func NewCellTable(m *wasm.Module) (*CellTable, error) {
	names, err := m.Names()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "parse name section")
	}

	exported := make(map[uint32]string)
	for _, exp := range m.Exports {
		if exp.Kind != wasm.KindGlobal {
			continue
		}
		if _, ok := exported[exp.Idx]; !ok {
			exported[exp.Idx] = exp.Name
		}
	}

	t := &CellTable{
		byName: make(map[string]uint32),
		cells:  make([]Cell, m.NumGlobals()),
	}
	for i := range t.cells {
		idx := uint32(i)
		gt, imported, _ := m.GetGlobalType(idx)
		name := ""
		if names != nil {
			name = names.Globals[idx]
		}
		if name == "" {
			name = exported[idx]
		}
		if _, taken := t.byName[name]; name == "" || taken {
			name = fmt.Sprintf("global[%d]", idx)
		}
		t.byName[name] = idx
		t.cells[i] = Cell{
			Name:     name,
			Index:    idx,
			Type:     gt.ValType,
			Mutable:  gt.Mutable,
			Imported: imported,
		}
	}
	return t, nil
}

// Len returns the number of globals.
func (t *CellTable) Len() int { return len(t.cells) }

// At returns the cell of a global index.
func (t *CellTable) At(idx uint32) (*Cell, bool) {
	if int(idx) >= len(t.cells) {
		return nil, false
	}
	return &t.cells[idx], true
}

// Lookup returns the cell with the given name.
func (t *CellTable) Lookup(name string) (*Cell, bool) {
	idx, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return &t.cells[idx], true
}

// All returns the cells in global index order.
func (t *CellTable) All() []Cell { return t.cells }

// CellName implements ir.CellNamer.
func (t *CellTable) CellName(global uint32) (string, bool) {
	c, ok := t.At(global)
	if !ok {
		return "", false
	}
	return c.Name, true
}

// GlobalIndex implements codegen.CellIndex.
func (t *CellTable) GlobalIndex(cell string) (uint32, bool) {
	idx, ok := t.byName[cell]
	return idx, ok
}

// InitialState seeds a model with every numeric cell's starting value.
// Seeds override init expressions and are the only source for imported
// globals. Cells that cannot be resolved are left out of the model and
// returned with the reason; reading one later is fatal.
func InitialState(m *wasm.Module, cells *CellTable, seeds map[string]string) (*expr.Model, map[string]string, error) {
	parsed := make(map[string]expr.Value, len(seeds))
	for name, raw := range seeds {
		c, ok := cells.Lookup(name)
		if !ok {
			return nil, nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
				Cell(name).
				Detail("seed names no global").
				Build()
		}
		if !c.Numeric() {
			return nil, nil, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("seed for %s global %s", c.Type, name))
		}
		v, err := expr.ParseValue(c.Type, raw)
		if err != nil {
			return nil, nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Cell(name).
				Cause(err).
				Detail("parse seed %q", raw).
				Build()
		}
		parsed[name] = v
	}

	model := expr.NewModel()
	unresolved := make(map[string]string)
	numImported := uint32(m.NumImportedGlobals())
	for _, c := range cells.All() {
		if !c.Numeric() {
			continue
		}
		if v, ok := parsed[c.Name]; ok {
			model.Seed(c.Name, v)
			continue
		}
		if c.Imported {
			unresolved[c.Name] = "imported global has no seed"
			continue
		}
		v, err := evalInit(m.Globals[c.Index-numImported].Init, c.Type, cells, model)
		if err != nil {
			unresolved[c.Name] = err.Error()
			continue
		}
		model.Seed(c.Name, v)
	}
	return model, unresolved, nil
}

// evalInit evaluates a constant expression: numeric constants, global.get
// of an already resolved global and the extended-const add, sub and mul.
func evalInit(code []byte, t wasm.ValType, cells *CellTable, env expr.Env) (expr.Value, error) {
	instrs, err := wasm.DecodeInstructions(code)
	if err != nil {
		return expr.Value{}, err
	}
	var stack []expr.Value
	for _, in := range instrs {
		switch in.Opcode {
		case wasm.OpEnd:
		case wasm.OpI32Const:
			stack = append(stack, expr.I32(in.Imm.(wasm.I32Imm).Value))
		case wasm.OpI64Const:
			stack = append(stack, expr.I64(in.Imm.(wasm.I64Imm).Value))
		case wasm.OpF32Const:
			stack = append(stack, expr.F32(in.Imm.(wasm.F32Imm).Value))
		case wasm.OpF64Const:
			stack = append(stack, expr.F64(in.Imm.(wasm.F64Imm).Value))
		case wasm.OpGlobalGet:
			name, _ := cells.CellName(in.Imm.(wasm.GlobalImm).GlobalIdx)
			v, ok := env.Get(name)
			if !ok {
				return expr.Value{}, fmt.Errorf("global.get of unresolved %s", name)
			}
			stack = append(stack, v)
		case wasm.OpI32Add, wasm.OpI32Sub, wasm.OpI32Mul, wasm.OpI64Add, wasm.OpI64Sub, wasm.OpI64Mul:
			if len(stack) < 2 {
				return expr.Value{}, fmt.Errorf("%s needs two operands", in)
			}
			op, _, _ := expr.FromOpcode(in.Opcode)
			v, err := expr.Apply(op, stack[len(stack)-2], stack[len(stack)-1])
			if err != nil {
				return expr.Value{}, err
			}
			stack = append(stack[:len(stack)-2], v)
		default:
			return expr.Value{}, fmt.Errorf("unsupported %s in initializer", in)
		}
	}
	if len(stack) != 1 || stack[0].Type != t {
		return expr.Value{}, fmt.Errorf("initializer does not produce one %s", t)
	}
	return stack[0], nil
}
