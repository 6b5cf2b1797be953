package wasm

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Instruction represents a decoded WebAssembly instruction.
type Instruction struct {
	Imm    interface{}
	Opcode byte
}

// BlockImm holds the block type for block, loop and if.
type BlockImm struct {
	Type int32 // -64=void, -1=i32, -2=i64, -3=f32, -4=f64, >=0=type index
}

// BranchImm holds the label index for br and br_if.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call and return_call.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds type and table indices for call_indirect.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds the local index for local.get, local.set and local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm holds memory access parameters for loads and stores.
type MemoryImm struct {
	Offset uint64
	Align  uint32
	MemIdx uint32
}

// MemoryIdxImm holds the memory index for memory.size and memory.grow.
type MemoryIdxImm struct {
	MemIdx uint32
}

// I32Imm holds an i32.const value.
type I32Imm struct {
	Value int32
}

// I64Imm holds an i64.const value.
type I64Imm struct {
	Value int64
}

// F32Imm holds an f32.const value.
type F32Imm struct {
	Value float32
}

// F64Imm holds an f64.const value.
type F64Imm struct {
	Value float64
}

// MiscImm holds a 0xFC-prefixed sub-opcode and its index operands.
type MiscImm struct {
	Operands  []uint32
	SubOpcode uint32
}

// TableImm holds the table index for table.get and table.set.
type TableImm struct {
	TableIdx uint32
}

// RefNullImm holds the reference type for ref.null.
type RefNullImm struct {
	Type byte
}

// RefFuncImm holds the function index for ref.func.
type RefFuncImm struct {
	FuncIdx uint32
}

// SelectTypeImm holds the result types for typed select.
type SelectTypeImm struct {
	Types []ValType
}

// memArgMultiMemBit flags an explicit memory index in a memarg.
const memArgMultiMemBit = 0x40

// GetCallTarget returns the direct call target for call and return_call.
func (i Instruction) GetCallTarget() (uint32, bool) {
	if i.Opcode == OpCall || i.Opcode == OpReturnCall {
		if imm, ok := i.Imm.(CallImm); ok {
			return imm.FuncIdx, true
		}
	}
	return 0, false
}

// DecodeInstructions decodes a function body or init expression.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := newReader(code)
	instrs := make([]Instruction, 0, len(code)/2)
	for r.len() > 0 {
		start := r.pos
		instr, err := decodeInstruction(r)
		if err != nil {
			return nil, &ParseError{Section: "code", Position: start, Err: err}
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

func decodeInstruction(r *reader) (Instruction, error) {
	op, err := r.ReadByte()
	if err != nil {
		return Instruction{}, err
	}
	instr := Instruction{Opcode: op}

	switch {
	case op == OpBlock || op == OpLoop || op == OpIf:
		bt, err := ReadLEB128s64(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = BlockImm{Type: int32(bt)}

	case op == OpBr || op == OpBrIf:
		idx, err := r.u32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BranchImm{LabelIdx: idx}

	case op == OpBrTable:
		count, err := r.u32()
		if err != nil {
			return instr, err
		}
		if int(count) > r.len() {
			return instr, fmt.Errorf("br_table: %d labels exceed remaining bytes", count)
		}
		labels := make([]uint32, count)
		for i := range labels {
			if labels[i], err = r.u32(); err != nil {
				return instr, err
			}
		}
		def, err := r.u32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BrTableImm{Labels: labels, Default: def}

	case op == OpCall || op == OpReturnCall:
		idx, err := r.u32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallImm{FuncIdx: idx}

	case op == OpCallIndirect || op == OpReturnCallIndirect:
		typeIdx, err := r.u32()
		if err != nil {
			return instr, err
		}
		tableIdx, err := r.u32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}

	case op == OpSelectType:
		count, err := r.u32()
		if err != nil {
			return instr, err
		}
		if int(count) > r.len() {
			return instr, fmt.Errorf("select: %d types exceed remaining bytes", count)
		}
		types := make([]ValType, count)
		for i := range types {
			b, err := r.ReadByte()
			if err != nil {
				return instr, err
			}
			types[i] = ValType(b)
		}
		instr.Imm = SelectTypeImm{Types: types}

	case op >= OpLocalGet && op <= OpLocalTee:
		idx, err := r.u32()
		if err != nil {
			return instr, err
		}
		instr.Imm = LocalImm{LocalIdx: idx}

	case op == OpGlobalGet || op == OpGlobalSet:
		idx, err := r.u32()
		if err != nil {
			return instr, err
		}
		instr.Imm = GlobalImm{GlobalIdx: idx}

	case op == OpTableGet || op == OpTableSet:
		idx, err := r.u32()
		if err != nil {
			return instr, err
		}
		instr.Imm = TableImm{TableIdx: idx}

	case op >= OpI32Load && op <= OpI64Store32:
		imm, err := readMemArg(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = imm

	case op == OpMemorySize || op == OpMemoryGrow:
		idx, err := r.u32()
		if err != nil {
			return instr, err
		}
		instr.Imm = MemoryIdxImm{MemIdx: idx}

	case op == OpI32Const:
		v, err := ReadLEB128s(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = I32Imm{Value: v}

	case op == OpI64Const:
		v, err := ReadLEB128s64(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = I64Imm{Value: v}

	case op == OpF32Const:
		v, err := ReadFloat32(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = F32Imm{Value: v}

	case op == OpF64Const:
		v, err := ReadFloat64(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = F64Imm{Value: v}

	case op == OpRefNull:
		t, err := r.ReadByte()
		if err != nil {
			return instr, err
		}
		instr.Imm = RefNullImm{Type: t}

	case op == OpRefFunc:
		idx, err := r.u32()
		if err != nil {
			return instr, err
		}
		instr.Imm = RefFuncImm{FuncIdx: idx}

	case op == OpPrefixMisc:
		imm, err := readMiscImm(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = imm

	case op == OpPrefixGC || op == OpPrefixSIMD || op == OpPrefixAtomic:
		return instr, fmt.Errorf("unsupported opcode prefix 0x%02x", op)

	default:
		if opcodeNames[op] == "" {
			return instr, fmt.Errorf("unknown opcode 0x%02x", op)
		}
	}
	return instr, nil
}

func readMiscImm(r *reader) (MiscImm, error) {
	sub, err := r.u32()
	if err != nil {
		return MiscImm{}, err
	}
	var n int
	switch {
	case sub <= MiscI64TruncSatF64U:
		n = 0
	case sub == MiscDataDrop, sub == MiscElemDrop, sub == MiscMemoryFill,
		sub == MiscTableGrow, sub == MiscTableSize, sub == MiscTableFill:
		n = 1
	case sub == MiscMemoryInit, sub == MiscMemoryCopy, sub == MiscTableInit, sub == MiscTableCopy:
		n = 2
	default:
		return MiscImm{}, fmt.Errorf("unknown misc opcode 0x%02x", sub)
	}
	imm := MiscImm{SubOpcode: sub}
	for i := 0; i < n; i++ {
		v, err := r.u32()
		if err != nil {
			return MiscImm{}, err
		}
		imm.Operands = append(imm.Operands, v)
	}
	return imm, nil
}

func readMemArg(r *reader) (MemoryImm, error) {
	alignRaw, err := r.u32()
	if err != nil {
		return MemoryImm{}, err
	}
	var memIdx uint32
	if alignRaw&memArgMultiMemBit != 0 {
		if memIdx, err = r.u32(); err != nil {
			return MemoryImm{}, err
		}
	}
	offset, err := ReadLEB128u64(r)
	if err != nil {
		return MemoryImm{}, err
	}
	return MemoryImm{
		Align:  alignRaw &^ uint32(memArgMultiMemBit),
		Offset: offset,
		MemIdx: memIdx,
	}, nil
}

func writeMemArg(buf *bytes.Buffer, imm MemoryImm) {
	alignRaw := imm.Align
	if imm.MemIdx != 0 {
		alignRaw |= memArgMultiMemBit
	}
	WriteLEB128u(buf, alignRaw)
	if imm.MemIdx != 0 {
		WriteLEB128u(buf, imm.MemIdx)
	}
	WriteLEB128u64(buf, imm.Offset)
}

// EncodeInstructionTo writes a single instruction to buf.
func EncodeInstructionTo(buf *bytes.Buffer, instr *Instruction) {
	buf.WriteByte(instr.Opcode)

	switch imm := instr.Imm.(type) {
	case BlockImm:
		WriteLEB128s(buf, imm.Type)
	case BranchImm:
		WriteLEB128u(buf, imm.LabelIdx)
	case BrTableImm:
		WriteLEB128u(buf, uint32(len(imm.Labels)))
		for _, l := range imm.Labels {
			WriteLEB128u(buf, l)
		}
		WriteLEB128u(buf, imm.Default)
	case CallImm:
		WriteLEB128u(buf, imm.FuncIdx)
	case CallIndirectImm:
		WriteLEB128u(buf, imm.TypeIdx)
		WriteLEB128u(buf, imm.TableIdx)
	case SelectTypeImm:
		WriteLEB128u(buf, uint32(len(imm.Types)))
		for _, t := range imm.Types {
			buf.WriteByte(byte(t))
		}
	case LocalImm:
		WriteLEB128u(buf, imm.LocalIdx)
	case GlobalImm:
		WriteLEB128u(buf, imm.GlobalIdx)
	case TableImm:
		WriteLEB128u(buf, imm.TableIdx)
	case MemoryImm:
		writeMemArg(buf, imm)
	case MemoryIdxImm:
		WriteLEB128u(buf, imm.MemIdx)
	case I32Imm:
		WriteLEB128s(buf, imm.Value)
	case I64Imm:
		WriteLEB128s64(buf, imm.Value)
	case F32Imm:
		WriteFloat32(buf, imm.Value)
	case F64Imm:
		WriteFloat64(buf, imm.Value)
	case RefNullImm:
		buf.WriteByte(imm.Type)
	case RefFuncImm:
		WriteLEB128u(buf, imm.FuncIdx)
	case MiscImm:
		WriteLEB128u(buf, imm.SubOpcode)
		for _, o := range imm.Operands {
			WriteLEB128u(buf, o)
		}
	}
}

// EncodeInstructionsTo writes instrs to buf.
func EncodeInstructionsTo(buf *bytes.Buffer, instrs []Instruction) {
	for i := range instrs {
		EncodeInstructionTo(buf, &instrs[i])
	}
}

// EncodeInstructions encodes instrs to bytes.
func EncodeInstructions(instrs []Instruction) []byte {
	var buf bytes.Buffer
	EncodeInstructionsTo(&buf, instrs)
	return buf.Bytes()
}

// OpcodeName returns the text-format mnemonic of a single-byte opcode, or
// "" when the opcode is not recognized.
func OpcodeName(op byte) string {
	return opcodeNames[op]
}

// String renders the instruction in text-format style, e.g. "i32.const 5".
func (i Instruction) String() string {
	name := opcodeNames[i.Opcode]
	if name == "" {
		name = fmt.Sprintf("0x%02x", i.Opcode)
	}
	switch imm := i.Imm.(type) {
	case nil:
		return name
	case BlockImm:
		switch imm.Type {
		case BlockTypeVoid:
			return name
		case BlockTypeI32, BlockTypeI64, BlockTypeF32, BlockTypeF64:
			return name + " (result " + ValType(byte(imm.Type&0x7f)).String() + ")"
		}
		return name + " (type " + strconv.Itoa(int(imm.Type)) + ")"
	case BranchImm:
		return name + " " + strconv.FormatUint(uint64(imm.LabelIdx), 10)
	case BrTableImm:
		var b strings.Builder
		b.WriteString(name)
		for _, l := range imm.Labels {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatUint(uint64(l), 10))
		}
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(uint64(imm.Default), 10))
		return b.String()
	case CallImm:
		return name + " " + strconv.FormatUint(uint64(imm.FuncIdx), 10)
	case CallIndirectImm:
		return fmt.Sprintf("%s %d (type %d)", name, imm.TableIdx, imm.TypeIdx)
	case SelectTypeImm:
		parts := make([]string, len(imm.Types))
		for j, t := range imm.Types {
			parts[j] = t.String()
		}
		return name + " (result " + strings.Join(parts, " ") + ")"
	case LocalImm:
		return name + " " + strconv.FormatUint(uint64(imm.LocalIdx), 10)
	case GlobalImm:
		return name + " " + strconv.FormatUint(uint64(imm.GlobalIdx), 10)
	case TableImm:
		return name + " " + strconv.FormatUint(uint64(imm.TableIdx), 10)
	case MemoryImm:
		return fmt.Sprintf("%s offset=%d align=%d", name, imm.Offset, uint32(1)<<imm.Align)
	case MemoryIdxImm:
		return name
	case I32Imm:
		return name + " " + strconv.FormatInt(int64(imm.Value), 10)
	case I64Imm:
		return name + " " + strconv.FormatInt(imm.Value, 10)
	case F32Imm:
		return name + " " + strconv.FormatFloat(float64(imm.Value), 'g', -1, 32)
	case F64Imm:
		return name + " " + strconv.FormatFloat(imm.Value, 'g', -1, 64)
	case RefNullImm:
		if imm.Type == byte(ValExtern) {
			return name + " extern"
		}
		return name + " func"
	case RefFuncImm:
		return name + " " + strconv.FormatUint(uint64(imm.FuncIdx), 10)
	case MiscImm:
		s := miscNames[imm.SubOpcode]
		if s == "" {
			s = fmt.Sprintf("0xfc 0x%02x", imm.SubOpcode)
		}
		for _, o := range imm.Operands {
			s += " " + strconv.FormatUint(uint64(o), 10)
		}
		return s
	}
	return name
}

// Disassemble renders instrs one per line.
func Disassemble(instrs []Instruction) string {
	var b strings.Builder
	for _, in := range instrs {
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	return b.String()
}
