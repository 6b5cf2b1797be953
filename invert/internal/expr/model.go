package expr

// Model is the state model of one inversion run: the current value of every
// known cell. Only the evaluator mutates it; other stages read frozen copies
// through Env.
type Model struct {
	values  map[string]Value
	unknown map[string]bool
	order   []string
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{values: make(map[string]Value), unknown: make(map[string]bool)}
}

// Seed records the starting value of a cell.
func (m *Model) Seed(cell string, v Value) {
	m.Set(cell, v)
}

// Get returns the cell's value. Cells never seeded, or invalidated, are
// reported as absent.
func (m *Model) Get(cell string) (Value, bool) {
	if m.unknown[cell] {
		return Value{}, false
	}
	v, ok := m.values[cell]
	return v, ok
}

// Set updates a cell and clears any unknown mark.
func (m *Model) Set(cell string, v Value) {
	if _, ok := m.values[cell]; !ok && !m.unknown[cell] {
		m.order = append(m.order, cell)
	}
	m.values[cell] = v
	delete(m.unknown, cell)
}

// Invalidate marks a cell's value as unknown. Later reads of it fail
// until the next Set.
func (m *Model) Invalidate(cell string) {
	if _, ok := m.values[cell]; !ok && !m.unknown[cell] {
		m.order = append(m.order, cell)
	}
	delete(m.values, cell)
	m.unknown[cell] = true
}

// Known reports whether the cell has a value.
func (m *Model) Known(cell string) bool {
	_, ok := m.Get(cell)
	return ok
}

// Cells returns all cells in the order they entered the model.
func (m *Model) Cells() []string {
	return append([]string(nil), m.order...)
}

// Clone returns an independent copy. Snapshots handed to the rewriter are
// clones typed as Env so they cannot be written through.
func (m *Model) Clone() *Model {
	c := &Model{
		values:  make(map[string]Value, len(m.values)),
		unknown: make(map[string]bool, len(m.unknown)),
		order:   append([]string(nil), m.order...),
	}
	for k, v := range m.values {
		c.values[k] = v
	}
	for k := range m.unknown {
		c.unknown[k] = true
	}
	return c
}

// Bind returns an Env that resolves cell to v and defers everything else to
// base.
func Bind(base Env, cell string, v Value) Env {
	return binding{base: base, cell: cell, value: v}
}

type binding struct {
	base  Env
	cell  string
	value Value
}

func (b binding) Get(cell string) (Value, bool) {
	if cell == b.cell {
		return b.value, true
	}
	return b.base.Get(cell)
}
