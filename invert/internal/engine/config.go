package engine

import (
	"fmt"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// Mode selects how a stored expression is inverted.
type Mode int

const (
	// ModeChain peels the operations between the root and the single
	// self-reference, composing their inverses.
	ModeChain Mode = iota
	// ModeSwap replaces every operator with its inverse in place.
	ModeSwap
)

func (m Mode) String() string {
	switch m {
	case ModeChain:
		return "chain"
	case ModeSwap:
		return "swap"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses "chain" or "swap".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "chain":
		return ModeChain, nil
	case "swap":
		return ModeSwap, nil
	}
	return 0, fmt.Errorf("unknown mode %q (want chain or swap)", s)
}

// Policy decides what happens to a store that cannot be inverted.
type Policy int

const (
	// PolicyStrict aborts the fragment on the first failing store.
	PolicyStrict Policy = iota
	// PolicySkip omits the failing store and reports it.
	PolicySkip
)

func (p Policy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	case PolicySkip:
		return "skip"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy parses "strict" or "skip".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "strict":
		return PolicyStrict, nil
	case "skip":
		return PolicySkip, nil
	}
	return 0, fmt.Errorf("unknown policy %q (want strict or skip)", s)
}

// DefaultSuffix is appended to a fragment's name to name its inverse.
const DefaultSuffix = "_inverse"

// FunctionMatcher selects fragments by function name.
type FunctionMatcher interface {
	MatchFunction(name string) bool
}

// Config configures the inversion engine.
type Config struct {
	// Only restricts inversion to matching functions. When nil every
	// defined [] -> [] function that stores to a global is a candidate.
	Only FunctionMatcher
	// Seeds supplies starting values by cell name, overriding init
	// expressions. Imported globals need one to be evaluated.
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

// Engine runs the inversion pipeline. It holds no per-module state, so one
// Engine may serve concurrent Transform calls.
type Engine struct {
	only        FunctionMatcher
	seeds       map[string]string
	log         *zap.Logger
	suffix      string
	mode        Mode
	policy      Policy
	parallelism int
	rewire      bool
}

// New creates an engine with defaults applied.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	suffix := cfg.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		only:        cfg.Only,
		seeds:       cfg.Seeds,
		log:         log,
		suffix:      suffix,
		mode:        cfg.Mode,
		policy:      cfg.Policy,
		parallelism: parallelism,
		rewire:      cfg.Rewire,
	}
}
