package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/wasm"
)

// Verifier executes fragments and their inverses in wazero and compares
// every exported mutable global before and after.
type Verifier struct {
	runtime wazero.Runtime
}

// VerifierConfig configures the verifier runtime.
type VerifierConfig struct {
	// MemoryLimitPages caps linear memory per instance; 0 keeps the default.
	MemoryLimitPages uint32
}

// NewVerifier creates a verifier with the default runtime configuration.
func NewVerifier(ctx context.Context) (*Verifier, error) {
	return NewVerifierWithConfig(ctx, nil)
}

// NewVerifierWithConfig creates a verifier with custom configuration.
func NewVerifierWithConfig(ctx context.Context, cfg *VerifierConfig) (*Verifier, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCoreFeatures(api.CoreFeaturesV2)
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Verifier{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}, nil
}

// Close releases the runtime and every module compiled by it.
func (v *Verifier) Close(ctx context.Context) error {
	return v.runtime.Close(ctx)
}

// CellCheck is one global observed across a round trip. Values are raw
// wazero bits; use FormatValue to render them.
type CellCheck struct {
	Name     string
	Type     api.ValueType
	Before   uint64
	After    uint64
	Restored uint64
}

// Exact reports whether the inverse restored the value bit for bit.
func (c CellCheck) Exact() bool { return c.Before == c.Restored }

// Changed reports whether the fragment wrote a different value.
func (c CellCheck) Changed() bool { return c.Before != c.After }

// RoundTripResult is the outcome of one RoundTrip.
type RoundTripResult struct {
	Fragment string
	Inverse  string
	Cells    []CellCheck
}

// Exact reports whether every cell was restored bit for bit.
func (r *RoundTripResult) Exact() bool {
	for _, c := range r.Cells {
		if !c.Exact() {
			return false
		}
	}
	return true
}

// Mismatch returns an error for the first cell that was not restored.
func (r *RoundTripResult) Mismatch() error {
	for _, c := range r.Cells {
		if !c.Exact() {
			return errors.WithPath(errors.Mismatch(c.Name, FormatValue(c.Type, c.Before), FormatValue(c.Type, c.Restored)), r.Inverse)
		}
	}
	return nil
}

// RoundTrip instantiates the module, applies seeds to exported globals,
// calls fragment and then inverse, and records every exported mutable
// global across both calls. The module must not have imports.
func (v *Verifier) RoundTrip(ctx context.Context, wasmData []byte, fragment, inverse string, seeds map[string]string) (*RoundTripResult, error) {
	m, err := wasm.ParseModule(wasmData)
	if err != nil {
		return nil, errors.Load("parse module", err)
	}
	var cells []string
	for _, exp := range m.Exports {
		if exp.Kind != wasm.KindGlobal {
			continue
		}
		if gt, _, ok := m.GetGlobalType(exp.Idx); ok && gt.Mutable && gt.ValType.IsNumeric() {
			cells = append(cells, exp.Name)
		}
	}

	compiled, err := v.runtime.CompileModule(ctx, wasmData)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	defer compiled.Close(ctx)

	// Anonymous so concurrent round trips do not collide on the name.
	mod, err := v.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	defer mod.Close(ctx)

	globals := make([]api.MutableGlobal, len(cells))
	for i, name := range cells {
		g, ok := mod.ExportedGlobal(name).(api.MutableGlobal)
		if !ok {
			return nil, errors.NotFound(errors.PhaseVerify, "mutable global", name)
		}
		globals[i] = g
	}
	for name, raw := range seeds {
		i := indexOf(cells, name)
		if i < 0 {
			return nil, errors.NotFound(errors.PhaseVerify, "mutable global", name)
		}
		bits, err := ParseValue(globals[i].Type(), raw)
		if err != nil {
			return nil, errors.New(errors.PhaseVerify, errors.KindInvalidInput).
				Cell(name).
				Cause(err).
				Detail("parse seed %q", raw).
				Build()
		}
		globals[i].Set(bits)
	}

	res := &RoundTripResult{Fragment: fragment, Inverse: inverse, Cells: make([]CellCheck, len(cells))}
	for i, g := range globals {
		res.Cells[i] = CellCheck{Name: cells[i], Type: g.Type(), Before: g.Get()}
	}
	if err := call(ctx, mod, fragment); err != nil {
		return nil, err
	}
	for i, g := range globals {
		res.Cells[i].After = g.Get()
	}
	if err := call(ctx, mod, inverse); err != nil {
		return nil, err
	}
	for i, g := range globals {
		res.Cells[i].Restored = g.Get()
	}

	Logger().Debug("round trip",
		zap.String("fragment", fragment),
		zap.String("inverse", inverse),
		zap.Int("cells", len(cells)),
		zap.Bool("exact", res.Exact()))
	return res, nil
}

func call(ctx context.Context, mod api.Module, name string) error {
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return errors.NotFound(errors.PhaseVerify, "function", name)
	}
	if _, err := fn.Call(ctx); err != nil {
		return errors.New(errors.PhaseVerify, errors.KindInstantiation).
			Path(name).
			Cause(err).
			Detail("call failed").
			Build()
	}
	return nil
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// FormatValue renders raw global bits of type t.
func FormatValue(t api.ValueType, bits uint64) string {
	switch t {
	case api.ValueTypeI32:
		return strconv.FormatInt(int64(api.DecodeI32(bits)), 10)
	case api.ValueTypeI64:
		return strconv.FormatInt(int64(bits), 10)
	case api.ValueTypeF32:
		return strconv.FormatFloat(float64(api.DecodeF32(bits)), 'g', -1, 32)
	case api.ValueTypeF64:
		return strconv.FormatFloat(api.DecodeF64(bits), 'g', -1, 64)
	}
	return fmt.Sprintf("0x%x", bits)
}

// ParseValue parses s into raw global bits of type t.
func ParseValue(t api.ValueType, s string) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			// Accept unsigned spellings such as 0xffffffff.
			u, uerr := strconv.ParseUint(s, 0, 32)
			if uerr != nil {
				return 0, err
			}
			return api.EncodeI32(int32(uint32(u))), nil
		}
		return api.EncodeI32(int32(v)), nil
	case api.ValueTypeI64:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(s, 0, 64)
			if uerr != nil {
				return 0, err
			}
			return u, nil
		}
		return api.EncodeI64(v), nil
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, err
		}
		return uint64(math.Float32bits(float32(v))), nil
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return api.EncodeF64(v), nil
	}
	return 0, fmt.Errorf("unsupported value type %s", api.ValueTypeName(t))
}
