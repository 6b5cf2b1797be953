package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/wasm"
)

// Ignored is a candidate function that was not inverted.
type Ignored struct {
	Name   string
	Reason string
	Index  uint32
}

// Report summarizes one Transform call.
type Report struct {
	RunID     string
	Mode      Mode
	Policy    Policy
	Fragments []*Result // in function index order
	Ignored   []Ignored
	Rewire    RewireStats
}

// Transform parses a module, appends an inverse for every selected
// fragment and returns the encoded result.
func (e *Engine) Transform(ctx context.Context, wasmData []byte) ([]byte, *Report, error) {
	m, err := Decode(wasmData)
	if err != nil {
		return nil, nil, err
	}
	rep, err := e.TransformModule(ctx, m)
	if err != nil {
		return nil, nil, err
	}
	return m.Encode(), rep, nil
}

// TransformModule is Transform on a decoded module, which it modifies in
// place. Analysis errors leave m unmodified.
//
// Fragments are analysed concurrently; their inverses are appended and
// rewired serially in function index order, so the output does not depend
// on scheduling. Under PolicyStrict the first failing fragment, by index,
// aborts the call. Fatal errors abort under either policy.
func (e *Engine) TransformModule(ctx context.Context, m *wasm.Module) (*Report, error) {
	runID := uuid.NewString()
	log := e.log.With(zap.String("run_id", runID))

	mi, err := e.prepare(m)
	if err != nil {
		return nil, err
	}
	frags, ignored, err := e.selectFragments(mi)
	if err != nil {
		return nil, err
	}
	log.Debug("fragments selected",
		zap.Int("fragments", len(frags)),
		zap.Int("ignored", len(ignored)),
		zap.Stringer("mode", e.mode),
		zap.Stringer("policy", e.policy))

	results := make([]*Result, len(frags))
	errs := make([]error, len(frags))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, frag := range frags {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], errs[i] = e.run(mi, frag, log)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report{RunID: runID, Mode: e.mode, Policy: e.policy, Ignored: ignored}
	if err := firstFatal(errs); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err == nil {
			rep.Fragments = append(rep.Fragments, results[i])
			continue
		}
		if e.policy == PolicyStrict {
			return nil, err
		}
		rep.Ignored = append(rep.Ignored, Ignored{Index: frags[i].Index, Name: frags[i].Name, Reason: err.Error()})
	}

	// Appending and rewiring work on a copy so a rewire error leaves m as
	// it was.
	out := m.Clone()
	e.apply(out, mi.names, rep)
	if e.rewire {
		redirects := make(map[uint32]uint32, len(rep.Fragments))
		for _, r := range rep.Fragments {
			redirects[r.Fragment.Index] = r.Generated
		}
		stats, err := RewireAll(out, redirects)
		if err != nil {
			return nil, err
		}
		rep.Rewire = stats
	}
	*m = *out

	log.Info("inversion complete",
		zap.Int("generated", len(rep.Fragments)),
		zap.Int("ignored", len(rep.Ignored)),
		zap.Int("rewired", rep.Rewire.Total()))
	return rep, nil
}

// Decode parses and validates a module. Structural errors such as
// out-of-range type, function or global indices are PhaseValidate errors.
func Decode(wasmData []byte) (*wasm.Module, error) {
	m, err := wasm.ParseModule(wasmData)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "parse module")
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(errors.PhaseValidate, errors.KindInvalidData, err, "validate module")
	}
	return m, nil
}

func firstFatal(errs []error) error {
	for _, err := range errs {
		if err != nil && errors.IsFatal(err) {
			return err
		}
	}
	return nil
}

// apply appends each inverse as a new [] -> [] function, exports it and
// names it in the name section when the module has one.
func (e *Engine) apply(m *wasm.Module, names *wasm.Names, rep *Report) {
	if len(rep.Fragments) == 0 {
		return
	}
	typeIdx := m.AddType(wasm.FuncType{})
	for _, r := range rep.Fragments {
		idx := m.AddFunc(typeIdx, r.Body)
		name := r.Fragment.Name + e.suffix
		m.Exports = append(m.Exports, wasm.Export{Name: name, Kind: wasm.KindFunc, Idx: idx})
		if names != nil {
			names.Funcs[idx] = name
		}
		r.Generated = idx
		r.Export = name
	}
	if names != nil {
		m.SetNames(names)
	}
}

// FunctionName names a function from the name section, then its first
// export, then "func[N]".
func FunctionName(m *wasm.Module, names *wasm.Names, idx uint32) string {
	if names != nil {
		if n := names.Funcs[idx]; n != "" {
			return n
		}
	}
	for _, exp := range m.Exports {
		if exp.Kind == wasm.KindFunc && exp.Idx == idx {
			return exp.Name
		}
	}
	return funcPath(idx)
}

// selectFragments picks the functions to invert. Without a matcher every
// defined [] -> [] function with a straight-line body that stores to a
// global is taken; functions the matcher names explicitly must qualify.
func (e *Engine) selectFragments(mi *moduleInfo) ([]Fragment, []Ignored, error) {
	m := mi.m
	exports := m.ExportNames()
	numImported := uint32(m.NumImportedFuncs())

	var frags []Fragment
	var ignored []Ignored
	claimed := make(map[string]bool)
	reject := func(idx uint32, name, reason string) error {
		if e.only != nil && e.policy == PolicyStrict {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path(funcPath(idx)).
				Detail("%s: %s", name, reason).
				Build()
		}
		ignored = append(ignored, Ignored{Index: idx, Name: name, Reason: reason})
		return nil
	}

	for i := range m.Code {
		idx := numImported + uint32(i)
		name := FunctionName(m, mi.names, idx)
		if e.only != nil && !e.only.MatchFunction(name) {
			continue
		}
		sig := m.GetFuncType(idx)
		if sig == nil || len(sig.Params) != 0 || len(sig.Results) != 0 {
			if e.only != nil {
				if err := reject(idx, name, "signature is not [] -> []"); err != nil {
					return nil, nil, err
				}
			}
			continue
		}
		if e.only == nil && strings.HasSuffix(name, e.suffix) {
			continue
		}
		if exports[name+e.suffix] || claimed[name+e.suffix] {
			if err := reject(idx, name, fmt.Sprintf("export %q already exists", name+e.suffix)); err != nil {
				return nil, nil, err
			}
			continue
		}
		if e.only == nil {
			stores, err := countStores(m, idx)
			if err != nil {
				ignored = append(ignored, Ignored{Index: idx, Name: name, Reason: err.Error()})
				continue
			}
			if stores == 0 {
				continue
			}
		}
		claimed[name+e.suffix] = true
		frags = append(frags, Fragment{Index: idx, Name: name})
	}
	return frags, ignored, nil
}
