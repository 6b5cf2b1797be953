package engine

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/invert/internal/codegen"
	"github.com/wippyai/wasm-invert/invert/internal/expr"
	"github.com/wippyai/wasm-invert/invert/internal/ir"
	"github.com/wippyai/wasm-invert/wasm"
)

// Fragment is a function selected for inversion.
type Fragment struct {
	Name  string
	Index uint32
}

// Step assigns Value to Cell. Forward steps are the fragment's stores;
// inverse steps undo one store each.
type Step struct {
	Value  expr.Expr
	Cell   string
	Source ir.Store
}

// Effect records one store as the evaluator replayed it. Restored is the
// prior value recomputed from the inverse step; Exact reports whether it
// equals Prior bit for bit. Known is false when a value depended on a
// skipped store.
type Effect struct {
	Cell     string
	Seq      int
	Prior    expr.Value
	Forward  expr.Value
	Restored expr.Value
	Known    bool
	Exact    bool
}

// SkippedStore is a store left out of the inverse under PolicySkip.
type SkippedStore struct {
	Err   error
	Cell  string
	Store ir.Store
}

// Result is the analysis of one fragment.
type Result struct {
	Fragment Fragment
	Forward  []Step
	Steps    []Step // inverse, in reverse program order
	Effects  []Effect
	Skipped  []SkippedStore
	Body     wasm.FuncBody

	// Set once the inverse is appended to the module.
	Generated uint32
	Export    string
}

// moduleInfo is the read-only view shared by concurrent fragment runs.
type moduleInfo struct {
	m          *wasm.Module
	names      *wasm.Names
	cells      *CellTable
	initial    *expr.Model
	unresolved map[string]string
}

func (e *Engine) prepare(m *wasm.Module) (*moduleInfo, error) {
	names, err := m.Names()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "parse name section")
	}
	cells, err := NewCellTable(m)
	if err != nil {
		return nil, err
	}
	initial, unresolved, err := InitialState(m, cells, e.seeds)
	if err != nil {
		return nil, err
	}
	return &moduleInfo{m: m, names: names, cells: cells, initial: initial, unresolved: unresolved}, nil
}

func funcPath(idx uint32) string { return fmt.Sprintf("func[%d]", idx) }

func storePath(st ir.Store) []string {
	return []string{fmt.Sprintf("store[%d]", st.Seq), fmt.Sprintf("instr[%d]", st.Pos)}
}

// pendingStore is a store that built and evaluated, waiting for inversion.
type pendingStore struct {
	forward expr.Expr
	prior   *expr.Model
	cell    *Cell
	value   expr.Value
	store   ir.Store
	known   bool
}

// run analyses one fragment: build and evaluate every store in program
// order, invert them in reverse order and lower the inverse.
func (e *Engine) run(mi *moduleInfo, frag Fragment, log *zap.Logger) (*Result, error) {
	fp := funcPath(frag.Index)
	g, err := ir.FromModule(mi.m, frag.Index)
	if err != nil {
		return nil, errors.WithPath(err, fp)
	}

	res := &Result{Fragment: frag}
	fail := func(st ir.Store, cell string, err error) error {
		err = errors.WithPath(err, append([]string{fp}, storePath(st)...)...)
		if e.policy == PolicyStrict || errors.IsFatal(err) {
			return err
		}
		log.Debug("skipping store",
			zap.String("fragment", frag.Name),
			zap.Int("store", st.Seq),
			zap.Error(err))
		res.Skipped = append(res.Skipped, SkippedStore{Store: st, Cell: cell, Err: err})
		return nil
	}

	builder := ir.NewBuilder(g, mi.cells)
	model := mi.initial.Clone()
	var pending []pendingStore

	for _, st := range g.Stores() {
		cell, err := storeCell(mi.cells, st)
		if err != nil {
			if err := fail(st, "", err); err != nil {
				return nil, err
			}
			continue
		}
		forward, err := buildStore(g, builder, mi.cells, st, cell)
		if err != nil {
			if err := fail(st, cell.Name, err); err != nil {
				return nil, err
			}
			model.Invalidate(cell.Name)
			continue
		}

		prior := model.Clone()
		v, known, err := evaluateStore(mi, forward, model)
		if err != nil {
			if err := fail(st, cell.Name, err); err != nil {
				return nil, err
			}
			model.Invalidate(cell.Name)
			continue
		}
		if known {
			model.Set(cell.Name, v)
		} else {
			model.Invalidate(cell.Name)
		}
		res.Forward = append(res.Forward, Step{Cell: cell.Name, Value: forward, Source: st})
		pending = append(pending, pendingStore{
			forward: forward,
			prior:   prior,
			cell:    cell,
			value:   v,
			store:   st,
			known:   known,
		})
	}

	inv := NewInverter(e.mode)
	for i := len(pending) - 1; i >= 0; i-- {
		p := pending[i]
		// Skipped stores still run forward, so an inverse that reads a cell
		// one of them writes later would start from the wrong value.
		// Pending stores are visited by descending Seq, so skips added here
		// are seen by every earlier store.
		if err := clobberedBySkip(p, res.Skipped); err != nil {
			if err := fail(p.store, p.cell.Name, err); err != nil {
				return nil, err
			}
			continue
		}
		value, err := inv.Invert(p.cell.Name, p.cell.Type, p.forward)
		if err != nil {
			if err := fail(p.store, p.cell.Name, err); err != nil {
				return nil, err
			}
			continue
		}
		eff, err := replayInverse(p, value)
		if err != nil {
			return nil, errors.WithPath(err, append([]string{fp}, storePath(p.store)...)...)
		}
		res.Steps = append(res.Steps, Step{Cell: p.cell.Name, Value: value, Source: p.store})
		res.Effects = append(res.Effects, eff)
	}
	slices.Reverse(res.Effects)
	slices.SortFunc(res.Skipped, func(a, b SkippedStore) int { return a.Store.Seq - b.Store.Seq })

	assigns := make([]codegen.Assignment, len(res.Steps))
	for i, s := range res.Steps {
		assigns[i] = codegen.Assignment{Cell: s.Cell, Value: s.Value}
	}
	body, err := codegen.Lower(assigns, mi.cells)
	if err != nil {
		return nil, errors.WithPath(err, fp)
	}
	res.Body = body

	log.Debug("fragment analysed",
		zap.String("fragment", frag.Name),
		zap.Uint32("index", frag.Index),
		zap.Int("stores", len(g.Stores())),
		zap.Int("steps", len(res.Steps)),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

// clobberedBySkip reports the first skipped store after p that writes p's
// target or a cell p's value reads.
func clobberedBySkip(p pendingStore, skipped []SkippedStore) error {
	deps := append([]string{p.cell.Name}, expr.Cells(p.forward)...)
	for _, s := range skipped {
		if s.Store.Seq > p.store.Seq && s.Cell != "" && slices.Contains(deps, s.Cell) {
			return errors.ClobberedBySkip(p.cell.Name, s.Cell, s.Store.Seq)
		}
	}
	return nil
}

func storeCell(cells *CellTable, st ir.Store) (*Cell, error) {
	cell, ok := cells.At(st.Global)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseBuild, nil, int(st.Global), cells.Len())
	}
	if !cell.Numeric() {
		return nil, errors.New(errors.PhaseBuild, errors.KindUnsupported).
			Cell(cell.Name).
			Detail("store to %s global", cell.Type).
			Build()
	}
	if !cell.Mutable {
		return nil, errors.New(errors.PhaseBuild, errors.KindInvalidData).
			Cell(cell.Name).
			Detail("store to immutable global").
			Build()
	}
	return cell, nil
}

func buildStore(g *ir.Graph, b *ir.Builder, cells *CellTable, st ir.Store, cell *Cell) (expr.Expr, error) {
	if sr, stale := g.StaleRead(st); stale {
		read := g.Node(sr.Read)
		name, _ := cells.CellName(read.Global)
		return nil, errors.New(errors.PhaseBuild, errors.KindStaleRead).
			Cell(name).
			Detail("read at instr[%d] is overwritten by store[%d] before %s is stored", read.Pos, sr.Invalidator.Seq, cell.Name).
			Build()
	}
	forward, err := b.Build(st.Value)
	if err != nil {
		return nil, err
	}
	if forward.Type() != cell.Type {
		return nil, errors.New(errors.PhaseBuild, errors.KindInvalidData).
			Cell(cell.Name).
			Detail("stores %s into %s cell", forward.Type(), cell.Type).
			Build()
	}
	return forward, nil
}

// evaluateStore computes a forward value against the model. A read of a
// cell invalidated by a skipped store yields known=false; a read of a cell
// whose initializer never resolved is fatal.
func evaluateStore(mi *moduleInfo, forward expr.Expr, model *expr.Model) (expr.Value, bool, error) {
	v, err := expr.Evaluate(forward, model)
	if err == nil {
		return v, true, nil
	}
	if e, ok := errors.As(err); ok && e.Kind == errors.KindNotFound {
		if reason, unresolved := mi.unresolved[e.Cell]; unresolved {
			return expr.Value{}, false, errors.UnresolvedInitializer(e.Cell, reason)
		}
		return expr.Value{}, false, nil
	}
	return expr.Value{}, false, err
}

// replayInverse evaluates the inverse step with the target bound to its
// forward value and every other cell at its prior value.
func replayInverse(p pendingStore, inverse expr.Expr) (Effect, error) {
	eff := Effect{Cell: p.cell.Name, Seq: p.store.Seq, Forward: p.value, Known: p.known}
	prior, ok := p.prior.Get(p.cell.Name)
	eff.Prior = prior
	if !ok || !eff.Known {
		eff.Known = false
		return eff, nil
	}

	restored, err := expr.Evaluate(inverse, expr.Bind(p.prior, p.cell.Name, p.value))
	if err != nil {
		if errors.IsFatal(err) {
			return eff, err
		}
		eff.Known = false
		return eff, nil
	}
	eff.Restored = restored
	eff.Exact = restored.Equal(prior)
	return eff, nil
}
