package engine

import (
	"fmt"

	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/wasm"
)

// RewireStats counts the references redirected by Rewire.
type RewireStats struct {
	Calls    int `json:"calls" yaml:"calls"`
	RefFuncs int `json:"ref_funcs" yaml:"ref_funcs"`
	Exports  int `json:"exports" yaml:"exports"`
	Elements int `json:"elements" yaml:"elements"`
	Globals  int `json:"globals" yaml:"globals"`
	Start    int `json:"start" yaml:"start"`
}

// Total returns the number of redirected references.
func (s RewireStats) Total() int {
	return s.Calls + s.RefFuncs + s.Exports + s.Elements + s.Globals + s.Start
}

func (s *RewireStats) add(o RewireStats) {
	s.Calls += o.Calls
	s.RefFuncs += o.RefFuncs
	s.Exports += o.Exports
	s.Elements += o.Elements
	s.Globals += o.Globals
	s.Start += o.Start
}

// Rewire redirects every reference to function from to function to.
func Rewire(m *wasm.Module, from, to uint32) (RewireStats, error) {
	return RewireAll(m, map[uint32]uint32{from: to})
}

// RewireAll applies several redirects in one pass: call and return_call
// targets and ref.func in every body, function exports, element segments,
// ref.func global initializers and the start function. Bodies and exports
// of the redirect targets themselves are left untouched.
func RewireAll(m *wasm.Module, redirects map[uint32]uint32) (RewireStats, error) {
	var stats RewireStats
	if len(redirects) == 0 {
		return stats, nil
	}
	targets := make(map[uint32]bool, len(redirects))
	for _, to := range redirects {
		targets[to] = true
	}

	numImported := uint32(m.NumImportedFuncs())
	for i := range m.Code {
		funcIdx := numImported + uint32(i)
		if targets[funcIdx] {
			continue
		}
		code, n, err := rewriteCode(m.Code[i].Code, redirects)
		if err != nil {
			return stats, errors.New(errors.PhaseRewire, errors.KindInvalidData).
				Path(funcPath(funcIdx)).
				Cause(err).
				Detail("decode body").
				Build()
		}
		if n.Total() > 0 {
			m.Code[i].Code = code
			stats.add(n)
		}
	}

	for i := range m.Exports {
		exp := &m.Exports[i]
		if exp.Kind != wasm.KindFunc {
			continue
		}
		if to, ok := redirects[exp.Idx]; ok {
			exp.Idx = to
			stats.Exports++
		}
	}

	for i := range m.Elements {
		elem := &m.Elements[i]
		for j, idx := range elem.FuncIdxs {
			if to, ok := redirects[idx]; ok {
				elem.FuncIdxs[j] = to
				stats.Elements++
			}
		}
		for j, x := range elem.Exprs {
			code, n, err := rewriteCode(x, redirects)
			if err != nil {
				return stats, errors.New(errors.PhaseRewire, errors.KindInvalidData).
					Path(fmt.Sprintf("elem[%d]", i), fmt.Sprintf("expr[%d]", j)).
					Cause(err).
					Build()
			}
			if n.RefFuncs > 0 {
				elem.Exprs[j] = code
				stats.Elements += n.RefFuncs
			}
		}
	}

	for i := range m.Globals {
		g := &m.Globals[i]
		code, n, err := rewriteCode(g.Init, redirects)
		if err != nil {
			return stats, errors.New(errors.PhaseRewire, errors.KindInvalidData).
				Path(fmt.Sprintf("global[%d]", i)).
				Cause(err).
				Build()
		}
		if n.RefFuncs > 0 {
			g.Init = code
			stats.Globals += n.RefFuncs
		}
	}

	if m.Start != nil {
		if to, ok := redirects[*m.Start]; ok {
			start := to
			m.Start = &start
			stats.Start++
		}
	}
	return stats, nil
}

// rewriteCode redirects call, return_call and ref.func immediates. The
// input is returned unchanged when nothing matched.
func rewriteCode(code []byte, redirects map[uint32]uint32) ([]byte, RewireStats, error) {
	var stats RewireStats
	instrs, err := wasm.DecodeInstructions(code)
	if err != nil {
		return nil, stats, err
	}
	for i := range instrs {
		in := &instrs[i]
		switch imm := in.Imm.(type) {
		case wasm.CallImm:
			if in.Opcode != wasm.OpCall && in.Opcode != wasm.OpReturnCall {
				continue
			}
			if to, ok := redirects[imm.FuncIdx]; ok {
				in.Imm = wasm.CallImm{FuncIdx: to}
				stats.Calls++
			}
		case wasm.RefFuncImm:
			if to, ok := redirects[imm.FuncIdx]; ok {
				in.Imm = wasm.RefFuncImm{FuncIdx: to}
				stats.RefFuncs++
			}
		}
	}
	if stats.Total() == 0 {
		return code, stats, nil
	}
	return wasm.EncodeInstructions(instrs), stats, nil
}
