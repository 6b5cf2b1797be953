package expr

import "github.com/wippyai/wasm-invert/wasm"

// Operator is an arithmetic binary operator.
type Operator uint8

const (
	Add Operator = iota + 1
	Sub
	Mul
	DivS
	DivU
	RemS
	RemU
	FAdd
	FSub
	FMul
	FDiv
)

var operatorNames = [...]string{
	Add: "add", Sub: "sub", Mul: "mul", DivS: "div_s", DivU: "div_u",
	RemS: "rem_s", RemU: "rem_u", FAdd: "add", FSub: "sub", FMul: "mul", FDiv: "div",
}

var operatorSymbols = [...]string{
	Add: "+", Sub: "-", Mul: "*", DivS: "/s", DivU: "/u",
	RemS: "%s", RemU: "%u", FAdd: "+", FSub: "-", FMul: "*", FDiv: "/",
}

func (o Operator) String() string {
	if int(o) < len(operatorNames) && operatorNames[o] != "" {
		return operatorNames[o]
	}
	return "invalid"
}

// Symbol returns the infix symbol used when formatting expressions.
func (o Operator) Symbol() string {
	if int(o) < len(operatorSymbols) && operatorSymbols[o] != "" {
		return operatorSymbols[o]
	}
	return "?"
}

// IsFloat reports whether o applies to f32/f64 operands.
func (o Operator) IsFloat() bool {
	return o >= FAdd && o <= FDiv
}

// Commutative reports whether swapping the operands preserves the result.
func (o Operator) Commutative() bool {
	switch o {
	case Add, Mul, FAdd, FMul:
		return true
	}
	return false
}

// Inverse returns the operator that undoes o when the left operand is the
// unknown: Add<->Sub, Mul->DivS, DivS/DivU->Mul, FAdd<->FSub, FMul<->FDiv.
// Rem has no inverse.
func (o Operator) Inverse() (Operator, bool) {
	switch o {
	case Add:
		return Sub, true
	case Sub:
		return Add, true
	case Mul:
		return DivS, true
	case DivS, DivU:
		return Mul, true
	case FAdd:
		return FSub, true
	case FSub:
		return FAdd, true
	case FMul:
		return FDiv, true
	case FDiv:
		return FMul, true
	}
	return 0, false
}

type opKey struct {
	op Operator
	t  wasm.ValType
}

var opcodeOperators = map[byte]opKey{
	wasm.OpI32Add: {Add, wasm.ValI32}, wasm.OpI32Sub: {Sub, wasm.ValI32},
	wasm.OpI32Mul: {Mul, wasm.ValI32}, wasm.OpI32DivS: {DivS, wasm.ValI32},
	wasm.OpI32DivU: {DivU, wasm.ValI32}, wasm.OpI32RemS: {RemS, wasm.ValI32},
	wasm.OpI32RemU: {RemU, wasm.ValI32},

	wasm.OpI64Add: {Add, wasm.ValI64}, wasm.OpI64Sub: {Sub, wasm.ValI64},
	wasm.OpI64Mul: {Mul, wasm.ValI64}, wasm.OpI64DivS: {DivS, wasm.ValI64},
	wasm.OpI64DivU: {DivU, wasm.ValI64}, wasm.OpI64RemS: {RemS, wasm.ValI64},
	wasm.OpI64RemU: {RemU, wasm.ValI64},

	wasm.OpF32Add: {FAdd, wasm.ValF32}, wasm.OpF32Sub: {FSub, wasm.ValF32},
	wasm.OpF32Mul: {FMul, wasm.ValF32}, wasm.OpF32Div: {FDiv, wasm.ValF32},

	wasm.OpF64Add: {FAdd, wasm.ValF64}, wasm.OpF64Sub: {FSub, wasm.ValF64},
	wasm.OpF64Mul: {FMul, wasm.ValF64}, wasm.OpF64Div: {FDiv, wasm.ValF64},
}

var operatorOpcodes = func() map[opKey]byte {
	m := make(map[opKey]byte, len(opcodeOperators))
	for op, k := range opcodeOperators {
		m[k] = op
	}
	return m
}()

// FromOpcode maps a binary arithmetic opcode to its operator and operand
// type. Opcodes outside the arithmetic set report false.
func FromOpcode(op byte) (Operator, wasm.ValType, bool) {
	k, ok := opcodeOperators[op]
	return k.op, k.t, ok
}

// Opcode returns the instruction implementing o on operands of type t.
func Opcode(o Operator, t wasm.ValType) (byte, bool) {
	op, ok := operatorOpcodes[opKey{o, t}]
	return op, ok
}
