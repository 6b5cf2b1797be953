package invert

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/invert/internal/engine"
	"github.com/wippyai/wasm-invert/invert/internal/expr"
	"github.com/wippyai/wasm-invert/wasm"
)

// Mode selects how a stored expression is inverted.
type Mode = engine.Mode

// Policy decides what happens to a store that cannot be inverted.
type Policy = engine.Policy

const (
	// ModeChain recovers the prior value through the chain of operations
	// between the stored root and the single read of the cell.
	ModeChain = engine.ModeChain
	// ModeSwap replaces each operator with its inverse in place. It is
	// exact only for single-operation stores with the cell on the left.
	ModeSwap = engine.ModeSwap

	// PolicyStrict fails on the first store that cannot be inverted and
	// leaves the module unmodified.
	PolicyStrict = engine.PolicyStrict
	// PolicySkip leaves failing stores out of the inverse and reports them.
	PolicySkip = engine.PolicySkip
)

// DefaultSuffix names an inverse after its fragment: "step" -> "step_inverse".
const DefaultSuffix = engine.DefaultSuffix

type (
	Report       = engine.Report
	Result       = engine.Result
	Fragment     = engine.Fragment
	Step         = engine.Step
	Effect       = engine.Effect
	SkippedStore = engine.SkippedStore
	Ignored      = engine.Ignored
	RewireStats  = engine.RewireStats
	Inventory    = engine.Inventory
	CellInfo     = engine.CellInfo
	FragmentInfo = engine.FragmentInfo
)

var (
	ParseMode   = engine.ParseMode
	ParsePolicy = engine.ParsePolicy
)

// Config configures an inversion run.
type Config struct {
	// Only selects fragments. Functions and Prefixes are folded into it.
	Only      FunctionMatcher
	Functions []string
	Prefixes  []string

	// Seeds gives starting values by cell name, e.g. {"x": "10"}.
	Seeds  map[string]string
	Logger *zap.Logger
	Suffix string
	Mode   Mode
	Policy Policy
	// Parallelism bounds concurrent fragment analysis; 0 means GOMAXPROCS.
	Parallelism int
	// Rewire redirects every reference to a fragment to its inverse.
	Rewire bool
}

func (cfg Config) matcher() FunctionMatcher {
	var ms []FunctionMatcher
	if cfg.Only != nil {
		ms = append(ms, cfg.Only)
	}
	if len(cfg.Functions) > 0 {
		ms = append(ms, NewFunctionNameMatcher(cfg.Functions))
	}
	if len(cfg.Prefixes) > 0 {
		ms = append(ms, NewFunctionPrefixMatcher(cfg.Prefixes))
	}
	switch len(ms) {
	case 0:
		return nil
	case 1:
		return ms[0]
	}
	return NewCompositeFunctionMatcher(ms...)
}

func newEngine(cfg Config) *engine.Engine {
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	return engine.New(engine.Config{
		Only:        cfg.matcher(),
		Seeds:       cfg.Seeds,
		Logger:      log,
		Suffix:      cfg.Suffix,
		Mode:        cfg.Mode,
		Policy:      cfg.Policy,
		Parallelism: cfg.Parallelism,
		Rewire:      cfg.Rewire,
	})
}

// Transform appends an inverse function for every selected fragment of
// the module and returns the encoded result with a report.
//
// Each inverse is exported as the fragment's name plus the suffix. Running
// a fragment and then its inverse restores every cell the fragment wrote,
// exactly for wrapping-free integer arithmetic and approximately for
// floats (see Effect.Exact).
func Transform(ctx context.Context, wasmData []byte, cfg Config) ([]byte, *Report, error) {
	return newEngine(cfg).Transform(ctx, wasmData)
}

// TransformModule is Transform on a decoded module, modified in place.
func TransformModule(ctx context.Context, m *wasm.Module, cfg Config) (*Report, error) {
	return newEngine(cfg).TransformModule(ctx, m)
}

// Analyze runs the pipeline on the named function without generating
// anything. The name resolves like fragment names in reports: name
// section first, then exports, then "func[N]".
func Analyze(wasmData []byte, function string, cfg Config) (*Result, error) {
	m, err := engine.Decode(wasmData)
	if err != nil {
		return nil, err
	}
	idx, err := FindFunction(m, function)
	if err != nil {
		return nil, err
	}
	return newEngine(cfg).Analyze(m, idx)
}

// Decode parses and validates a module the way Transform does.
func Decode(wasmData []byte) (*wasm.Module, error) {
	return engine.Decode(wasmData)
}

// Inspect lists the cells and candidate fragments of a module.
func Inspect(wasmData []byte, cfg Config) (*Inventory, error) {
	m, err := engine.Decode(wasmData)
	if err != nil {
		return nil, err
	}
	return newEngine(cfg).Inspect(m)
}

// FindFunction resolves a function name to its index.
func FindFunction(m *wasm.Module, name string) (uint32, error) {
	names, err := m.Names()
	if err != nil {
		return 0, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "parse name section")
	}
	for i := 0; i < m.NumFuncs(); i++ {
		if engine.FunctionName(m, names, uint32(i)) == name {
			return uint32(i), nil
		}
	}
	return 0, errors.NotFound(errors.PhaseConfig, "function", name)
}

// Rewire redirects every reference to function from to function to.
func Rewire(m *wasm.Module, from, to uint32) (RewireStats, error) {
	return engine.Rewire(m, from, to)
}

// FormatStep renders a step as "cell = expression".
func FormatStep(s Step) string {
	return s.Cell + " = " + expr.Format(s.Value)
}

// FormatSteps renders steps one per line.
func FormatSteps(steps []Step) string {
	var b strings.Builder
	for _, s := range steps {
		b.WriteString(FormatStep(s))
		b.WriteByte('\n')
	}
	return b.String()
}
