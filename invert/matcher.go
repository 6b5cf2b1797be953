package invert

import (
	"strings"

	"github.com/wippyai/wasm-invert/invert/internal/engine"
)

// FunctionMatcher selects fragments by function name.
type FunctionMatcher = engine.FunctionMatcher

// FunctionNameMatcher matches functions by exact name.
type FunctionNameMatcher struct {
	names map[string]bool
}

// NewFunctionNameMatcher creates a matcher from a list of function names.
func NewFunctionNameMatcher(names []string) *FunctionNameMatcher {
	m := &FunctionNameMatcher{names: make(map[string]bool)}
	for _, n := range names {
		m.names[n] = true
	}
	return m
}

// MatchFunction returns true if the function name matches.
func (m *FunctionNameMatcher) MatchFunction(name string) bool {
	return m.names[name]
}

// FunctionPrefixMatcher matches functions by name prefix.
type FunctionPrefixMatcher struct {
	prefixes []string
}

// NewFunctionPrefixMatcher creates a matcher for functions starting with any prefix.
func NewFunctionPrefixMatcher(prefixes []string) *FunctionPrefixMatcher {
	return &FunctionPrefixMatcher{prefixes: prefixes}
}

// MatchFunction returns true if the function name starts with any prefix.
func (m *FunctionPrefixMatcher) MatchFunction(name string) bool {
	for _, p := range m.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// CompositeFunctionMatcher matches if any sub-matcher matches.
type CompositeFunctionMatcher struct {
	matchers []FunctionMatcher
}

// NewCompositeFunctionMatcher combines matchers.
func NewCompositeFunctionMatcher(matchers ...FunctionMatcher) *CompositeFunctionMatcher {
	return &CompositeFunctionMatcher{matchers: matchers}
}

// MatchFunction returns true if any sub-matcher matches.
func (m *CompositeFunctionMatcher) MatchFunction(name string) bool {
	for _, matcher := range m.matchers {
		if matcher.MatchFunction(name) {
			return true
		}
	}
	return false
}
