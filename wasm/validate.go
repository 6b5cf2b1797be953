package wasm

import "fmt"

// Validate checks the module for structural validity: index ranges,
// export uniqueness and the start function signature. Function bodies are
// not type-checked.
func (m *Module) Validate() error {
	checks := []func() error{
		m.validateTypeIndices,
		m.validateFunctionIndices,
		m.validateGlobalIndices,
		m.validateExports,
		m.validateStart,
		m.validateCodeCount,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// ParseModuleValidate parses a WebAssembly binary and validates it.
func ParseModuleValidate(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) validateTypeIndices() error {
	numTypes := uint32(len(m.Types))
	for i, typeIdx := range m.Funcs {
		if typeIdx >= numTypes {
			return fmt.Errorf("function %d references invalid type index %d", i, typeIdx)
		}
	}
	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc && imp.Desc.TypeIdx >= numTypes {
			return fmt.Errorf("import %d (%s.%s) references invalid type index %d", i, imp.Module, imp.Name, imp.Desc.TypeIdx)
		}
	}
	return nil
}

func (m *Module) validateFunctionIndices() error {
	numFuncs := uint32(m.NumFuncs())
	for i, e := range m.Elements {
		for _, idx := range e.FuncIdxs {
			if idx >= numFuncs {
				return fmt.Errorf("element %d references invalid function index %d", i, idx)
			}
		}
	}
	for _, e := range m.Exports {
		if e.Kind == KindFunc && e.Idx >= numFuncs {
			return fmt.Errorf("export %q references invalid function index %d", e.Name, e.Idx)
		}
	}
	return nil
}

func (m *Module) validateGlobalIndices() error {
	numGlobals := uint32(m.NumGlobals())
	for _, e := range m.Exports {
		if e.Kind == KindGlobal && e.Idx >= numGlobals {
			return fmt.Errorf("export %q references invalid global index %d", e.Name, e.Idx)
		}
	}
	return nil
}

func (m *Module) validateExports() error {
	seen := make(map[string]bool, len(m.Exports))
	for _, e := range m.Exports {
		if seen[e.Name] {
			return fmt.Errorf("duplicate export name %q", e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}
	ft := m.GetFuncType(*m.Start)
	if ft == nil {
		return fmt.Errorf("start function index %d out of range", *m.Start)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("start function %d must have type [] -> []", *m.Start)
	}
	return nil
}

func (m *Module) validateCodeCount() error {
	if len(m.Funcs) != len(m.Code) {
		return fmt.Errorf("function count %d does not match code count %d", len(m.Funcs), len(m.Code))
	}
	return nil
}
