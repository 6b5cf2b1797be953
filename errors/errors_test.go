package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseInvert,
				Kind:   KindNonLinearExpression,
				Path:   []string{"func[1]", "store[0]"},
				Cell:   "counter",
				Detail: "cell referenced 2 times",
			},
			contains: []string{"[invert]", "non_linear_expression", "func[1].store[0]", "cell counter", "referenced 2 times"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindInvalidData,
			},
			contains: []string{"[decode]", "invalid_data"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseVerify,
				Kind:   KindInstantiation,
				Detail: "instantiate module",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[verify]", "instantiation", "instantiate module", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseEvaluate,
		Kind:  KindDivisionByZero,
		Path:  []string{"func[0]"},
	}

	if !errors.Is(err, &Error{Phase: PhaseEvaluate, Kind: KindDivisionByZero}) {
		t.Error("should match same phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseInvert, Kind: KindDivisionByZero}) {
		t.Error("should not match different phase")
	}
	if errors.Is(err, &Error{Phase: PhaseEvaluate, Kind: KindIntegerOverflow}) {
		t.Error("should not match different kind")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("inner")
	err := New(PhaseBuild, KindNonInvertibleExpression).
		Path("func[3]", "store[1]").
		Cell("x").
		Value(0x73).
		Detail("operation %s has no inverse rule", "i32.xor").
		Cause(cause).
		Build()

	if err.Phase != PhaseBuild || err.Kind != KindNonInvertibleExpression {
		t.Errorf("phase/kind = %s/%s", err.Phase, err.Kind)
	}
	if err.Location() != "func[3].store[1]" {
		t.Errorf("Location() = %q", err.Location())
	}
	if err.Cell != "x" {
		t.Errorf("Cell = %q", err.Cell)
	}
	if err.Value != 0x73 {
		t.Errorf("Value = %v", err.Value)
	}
	if err.Detail != "operation i32.xor has no inverse rule" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not in chain")
	}
}

func TestKind_Fatal(t *testing.T) {
	fatal := []Kind{KindDivisionByZero, KindIntegerOverflow, KindUnresolvedInitializer}
	for _, k := range fatal {
		if !k.Fatal() {
			t.Errorf("%s should be fatal", k)
		}
	}

	perStore := []Kind{KindNonInvertibleExpression, KindNonInvertibleOperator, KindNonLinearExpression, KindStaleRead, KindClobberedBySkip}
	for _, k := range perStore {
		if k.Fatal() {
			t.Errorf("%s should not be fatal", k)
		}
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", DivisionByZero(PhaseEvaluate, "i32.div_s"))

	kind, ok := KindOf(err)
	if !ok {
		t.Fatal("KindOf did not find structured error")
	}
	if kind != KindDivisionByZero {
		t.Errorf("kind = %s", kind)
	}
	if !IsFatal(err) {
		t.Error("wrapped division by zero should be fatal")
	}

	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("plain error should have no kind")
	}
	if IsFatal(errors.New("plain")) {
		t.Error("plain error should not be fatal")
	}
}

func TestWithPath(t *testing.T) {
	base := New(PhaseBuild, KindStaleRead).Path("store[2]").Build()
	got := WithPath(base, "func[4]")

	e, ok := As(got)
	if !ok {
		t.Fatal("WithPath lost structure")
	}
	if e.Location() != "func[4].store[2]" {
		t.Errorf("Location() = %q", e.Location())
	}
	if base.Location() != "store[2]" {
		t.Errorf("original mutated: %q", base.Location())
	}

	plain := errors.New("plain")
	if WithPath(plain, "x") != plain {
		t.Error("plain error should pass through")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
	}{
		{"unsupported", Unsupported(PhaseGraph, "call in fragment"), PhaseGraph, KindUnsupported},
		{"out of bounds", OutOfBounds(PhaseDecode, nil, 5, 2), PhaseDecode, KindInvalidData},
		{"invalid data", InvalidData(PhaseDecode, nil, "bad"), PhaseDecode, KindInvalidData},
		{"division", DivisionByZero(PhaseEvaluate, "i64.div_u"), PhaseEvaluate, KindDivisionByZero},
		{"unresolved", UnresolvedInitializer("x", "imported"), PhaseEvaluate, KindUnresolvedInitializer},
		{"wrap", Wrap(PhaseEmit, KindInvalidData, errors.New("x"), "lower"), PhaseEmit, KindInvalidData},
		{"not found", NotFound(PhaseLoad, "function", "tick"), PhaseLoad, KindNotFound},
		{"invalid input", InvalidInput(PhaseConfig, "bad mode"), PhaseConfig, KindInvalidInput},
		{"instantiation", Instantiation(errors.New("x")), PhaseVerify, KindInstantiation},
		{"load", Load("read", errors.New("x")), PhaseLoad, KindInvalidData},
		{"mismatch", Mismatch("x", 10, 11), PhaseVerify, KindMismatch},
		{"clobbered", ClobberedBySkip("x", "y", 1), PhaseInvert, KindClobberedBySkip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("phase = %s, want %s", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}
}
