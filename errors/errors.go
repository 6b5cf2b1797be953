package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode   Phase = "decode"   // binary to module
	PhaseValidate Phase = "validate" // module structure checks
	PhaseGraph    Phase = "graph"    // def-use graph construction
	PhaseBuild    Phase = "build"    // expression building
	PhaseEvaluate Phase = "evaluate" // forward state replay
	PhaseInvert   Phase = "invert"   // inverse rewriting
	PhaseEmit     Phase = "emit"     // inverse lowering
	PhaseRewire   Phase = "rewire"   // call-site redirection
	PhaseVerify   Phase = "verify"   // runtime round trip
	PhaseConfig   Phase = "config"   // configuration loading
	PhaseLoad     Phase = "load"     // module loading
)

// Kind categorizes the error
type Kind string

const (
	KindNonInvertibleExpression Kind = "non_invertible_expression"
	KindNonInvertibleOperator   Kind = "non_invertible_operator"
	KindNonLinearExpression     Kind = "non_linear_expression"
	KindStaleRead               Kind = "stale_read"
	KindClobberedBySkip         Kind = "clobbered_by_skipped_store"
	KindDivisionByZero          Kind = "division_by_zero"
	KindIntegerOverflow         Kind = "integer_overflow"
	KindUnresolvedInitializer   Kind = "unresolved_cell_initializer"
	KindUnsupported             Kind = "unsupported"
	KindInvalidData             Kind = "invalid_data"
	KindNotFound                Kind = "not_found"
	KindInvalidInput            Kind = "invalid_input"
	KindMismatch                Kind = "mismatch"
	KindInstantiation           Kind = "instantiation"
)

// Fatal reports whether errors of this kind abandon the whole run.
// State is unknowable past a division by zero, a trapping overflow or
// an unseeded cell, so no partial inverse is produced.
func (k Kind) Fatal() bool {
	switch k {
	case KindDivisionByZero, KindIntegerOverflow, KindUnresolvedInitializer:
		return true
	}
	return false
}

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Cell   string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Cell != "" {
		b.WriteString(": cell ")
		b.WriteString(e.Cell)
	}

	if e.Detail != "" {
		if e.Cell != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Fatal reports whether the error abandons the whole run.
func (e *Error) Fatal() bool {
	return e.Kind.Fatal()
}

// Location returns the path joined with dots, or "" when unset.
func (e *Error) Location() string {
	return strings.Join(e.Path, ".")
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Cell sets the state cell the error concerns
func (b *Builder) Cell(name string) *Builder {
	b.err.Cell = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// As extracts a structured error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the first structured error in err's chain.
func KindOf(err error) (Kind, bool) {
	if e, ok := As(err); ok {
		return e.Kind, true
	}
	return "", false
}

// IsFatal reports whether err carries a fatal kind.
func IsFatal(err error) bool {
	if e, ok := As(err); ok {
		return e.Fatal()
	}
	return false
}

// WithPath returns a copy of err with prefix prepended to its path.
// Non-structured errors are returned unchanged.
func WithPath(err error, prefix ...string) error {
	e, ok := As(err)
	if !ok {
		return err
	}
	c := *e
	c.Path = append(append([]string(nil), prefix...), e.Path...)
	return &c
}

// Convenience constructors for common error patterns

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an index out of range error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// DivisionByZero creates the fatal evaluation error for a zero divisor
func DivisionByZero(phase Phase, op string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDivisionByZero,
		Detail: fmt.Sprintf("%s by zero", op),
	}
}

// UnresolvedInitializer creates the fatal error for a cell with no starting value
func UnresolvedInitializer(cell, detail string) *Error {
	return &Error{
		Phase:  PhaseEvaluate,
		Kind:   KindUnresolvedInitializer,
		Cell:   cell,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Mismatch creates a verification mismatch error
func Mismatch(cell string, want, got any) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   KindMismatch,
		Cell:   cell,
		Detail: fmt.Sprintf("restored %v, want %v", got, want),
		Value:  got,
	}
}

// ClobberedBySkip creates an error for a store whose inverse would read a
// cell that a later skipped store still overwrites at runtime.
func ClobberedBySkip(cell, clobbered string, skippedSeq int) *Error {
	return &Error{
		Phase:  PhaseInvert,
		Kind:   KindClobberedBySkip,
		Cell:   cell,
		Detail: fmt.Sprintf("%s is overwritten by skipped store[%d]", clobbered, skippedSeq),
		Value:  skippedSeq,
	}
}
