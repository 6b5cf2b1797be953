package engine

import (
	"context"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-invert/errors"
	"github.com/wippyai/wasm-invert/invert"
	"github.com/wippyai/wasm-invert/wasm"
)

func i32c(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: v}}
}

func f64c(v float64) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Value: v}}
}

func gget(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: idx}}
}

func gset(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: idx}}
}

func op(code byte) wasm.Instruction { return wasm.Instruction{Opcode: code} }

type global struct {
	name string
	t    wasm.ValType
	init wasm.Instruction
}

func module(globals []global, body ...wasm.Instruction) []byte {
	m := &wasm.Module{Types: []wasm.FuncType{{}}}
	for i, g := range globals {
		m.Globals = append(m.Globals, wasm.Global{
			Type: wasm.GlobalType{ValType: g.t, Mutable: true},
			Init: wasm.EncodeInstructions([]wasm.Instruction{g.init, op(wasm.OpEnd)}),
		})
		m.Exports = append(m.Exports, wasm.Export{Name: g.name, Kind: wasm.KindGlobal, Idx: uint32(i)})
	}
	m.Funcs = []uint32{0}
	m.Code = []wasm.FuncBody{{Code: wasm.EncodeInstructions(append(body, op(wasm.OpEnd)))}}
	m.Exports = append(m.Exports, wasm.Export{Name: "step", Kind: wasm.KindFunc, Idx: 0})
	return m.Encode()
}

func transform(t *testing.T, data []byte) []byte {
	t.Helper()
	out, rep, err := invert.Transform(context.Background(), data, invert.Config{})
	require.NoError(t, err)
	require.Len(t, rep.Fragments, 1)
	return out
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	v, err := NewVerifier(ctx)
	require.NoError(t, err)
	defer v.Close(ctx)

	tests := []struct {
		name    string
		globals []global
		body    []wasm.Instruction
	}{
		{
			name:    "add then mul",
			globals: []global{{"x", wasm.ValI32, i32c(10)}},
			body: []wasm.Instruction{
				gget(0), i32c(5), op(wasm.OpI32Add), gset(0),
				gget(0), i32c(2), op(wasm.OpI32Mul), gset(0),
			},
		},
		{
			name:    "cross cell",
			globals: []global{{"x", wasm.ValI32, i32c(10)}, {"y", wasm.ValI32, i32c(4)}},
			body: []wasm.Instruction{
				gget(1), i32c(1), op(wasm.OpI32Add), gset(1),
				gget(0), gget(1), op(wasm.OpI32Sub), gset(0),
			},
		},
		{
			name:    "reverse subtraction",
			globals: []global{{"x", wasm.ValI32, i32c(3)}},
			body:    []wasm.Instruction{i32c(100), gget(0), op(wasm.OpI32Sub), gset(0)},
		},
		{
			name:    "float halves",
			globals: []global{{"f", wasm.ValF64, f64c(3)}},
			body:    []wasm.Instruction{gget(0), f64c(2), op(wasm.OpF64Div), gset(0)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := transform(t, module(tt.globals, tt.body...))
			res, err := v.RoundTrip(ctx, out, "step", "step"+invert.DefaultSuffix, nil)
			require.NoError(t, err)
			require.Len(t, res.Cells, len(tt.globals))
			assert.True(t, res.Exact(), "cells: %+v", res.Cells)
			assert.NoError(t, res.Mismatch())
			for _, c := range res.Cells {
				assert.True(t, c.Changed(), "%s was not written", c.Name)
			}
		})
	}
}

func TestRoundTripSeeds(t *testing.T) {
	ctx := context.Background()
	v, err := NewVerifierWithConfig(ctx, &VerifierConfig{MemoryLimitPages: 16})
	require.NoError(t, err)
	defer v.Close(ctx)

	out := transform(t, module([]global{{"x", wasm.ValI32, i32c(10)}},
		gget(0), i32c(7), op(wasm.OpI32Add), gset(0)))

	res, err := v.RoundTrip(ctx, out, "step", "step_inverse", map[string]string{"x": "-3"})
	require.NoError(t, err)
	c := res.Cells[0]
	assert.Equal(t, "-3", FormatValue(c.Type, c.Before))
	assert.Equal(t, "4", FormatValue(c.Type, c.After))
	assert.True(t, c.Exact())

	_, err = v.RoundTrip(ctx, out, "step", "step_inverse", map[string]string{"nope": "1"})
	kind, _ := errors.KindOf(err)
	assert.Equal(t, errors.KindNotFound, kind)
}

func TestRoundTripAcrossSeeds(t *testing.T) {
	ctx := context.Background()
	v, err := NewVerifier(ctx)
	require.NoError(t, err)
	defer v.Close(ctx)

	xyz := []global{{"x", wasm.ValI32, i32c(0)}, {"y", wasm.ValI32, i32c(0)}, {"z", wasm.ValI32, i32c(0)}}

	// Additive chains round trip under wrapping, so any seed restores.
	additive := transform(t, module(xyz,
		gget(1), gget(0), op(wasm.OpI32Add), gset(1), // y = y + x
		i32c(7), gget(0), op(wasm.OpI32Sub), gget(2), op(wasm.OpI32Add), gset(0), // x = 7 - x + z
		gget(2), gget(1), op(wasm.OpI32Sub), i32c(-9), op(wasm.OpI32Add), gset(2), // z = z - y + -9
	))
	// Multiplications round trip while they do not wrap.
	scaled := transform(t, module(xyz,
		gget(1), gget(0), op(wasm.OpI32Add), gset(1), // y = y + x
		gget(0), gget(1), op(wasm.OpI32Sub), i32c(3), op(wasm.OpI32Mul), gset(0), // x = (x - y) * 3
		gget(2), i32c(2), op(wasm.OpI32Mul), gget(0), op(wasm.OpI32Add), gget(1), op(wasm.OpI32Sub), gset(2), // z = z * 2 + x - y
	))

	fixed := []map[string]string{
		{"x": "0", "y": "0", "z": "0"},
		{"x": "-1", "y": "1", "z": "-1"},
		{"x": "-100", "y": "-200", "z": "-300"},
		{"x": "12345", "y": "-54321", "z": "99"},
		{"x": "-2147483648", "y": "2147483647", "z": "0xffffffff"},
		{"x": "2147483647", "y": "2147483647", "z": "-2147483648"},
	}

	check := func(t *testing.T, data []byte, seeds map[string]string) {
		t.Helper()
		res, err := v.RoundTrip(ctx, data, "step", "step"+invert.DefaultSuffix, seeds)
		require.NoError(t, err)
		for _, c := range res.Cells {
			want, err := ParseValue(c.Type, seeds[c.Name])
			require.NoError(t, err)
			assert.Equal(t, want, c.Before, "seed of %s", c.Name)
		}
		assert.True(t, res.Exact(), "seeds %v: %+v", seeds, res.Cells)
	}

	for _, seeds := range fixed {
		check(t, additive, seeds)
	}
	for _, seeds := range fixed[:4] {
		check(t, scaled, seeds)
	}

	rng := rand.New(rand.NewPCG(1, 2))
	anyInt := func() string { return strconv.FormatInt(int64(int32(rng.Uint32())), 10) }
	small := func() string { return strconv.Itoa(rng.IntN(1<<21) - 1<<20) }
	for range 100 {
		check(t, additive, map[string]string{"x": anyInt(), "y": anyInt(), "z": anyInt()})
		check(t, scaled, map[string]string{"x": small(), "y": small(), "z": small()})
	}
}

func TestRoundTripDetectsMismatch(t *testing.T) {
	ctx := context.Background()
	v, err := NewVerifier(ctx)
	require.NoError(t, err)
	defer v.Close(ctx)

	// Pair the forward function with itself: x + 1 applied twice.
	out := transform(t, module([]global{{"x", wasm.ValI32, i32c(1)}},
		gget(0), i32c(1), op(wasm.OpI32Add), gset(0)))
	res, err := v.RoundTrip(ctx, out, "step", "step", nil)
	require.NoError(t, err)
	assert.False(t, res.Exact())

	e, ok := errors.As(res.Mismatch())
	require.True(t, ok)
	assert.Equal(t, errors.KindMismatch, e.Kind)
	assert.Equal(t, "x", e.Cell)
}

func TestRoundTripMissingFunction(t *testing.T) {
	ctx := context.Background()
	v, err := NewVerifier(ctx)
	require.NoError(t, err)
	defer v.Close(ctx)

	data := module([]global{{"x", wasm.ValI32, i32c(1)}}, gget(0), i32c(1), op(wasm.OpI32Add), gset(0))
	_, err = v.RoundTrip(ctx, data, "step", "step_inverse", nil)
	kind, _ := errors.KindOf(err)
	assert.Equal(t, errors.KindNotFound, kind)

	_, err = v.RoundTrip(ctx, []byte{0, 1, 2}, "step", "step_inverse", nil)
	assert.Error(t, err)
}

func TestValueCodec(t *testing.T) {
	tests := []struct {
		t   api.ValueType
		in  string
		out string
	}{
		{api.ValueTypeI32, "-7", "-7"},
		{api.ValueTypeI32, "0x10", "16"},
		{api.ValueTypeI64, "9000000000", "9000000000"},
		{api.ValueTypeI32, "0xffffffff", "-1"},
		{api.ValueTypeI32, "2147483648", "-2147483648"},
		{api.ValueTypeI64, "0xffffffffffffffff", "-1"},
		{api.ValueTypeF32, "1.5", "1.5"},
		{api.ValueTypeF64, "-0.25", "-0.25"},
	}
	for _, tt := range tests {
		bits, err := ParseValue(tt.t, tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.out, FormatValue(tt.t, bits))
	}
	_, err := ParseValue(api.ValueTypeI32, "4294967296")
	assert.Error(t, err)
	_, err = ParseValue(api.ValueTypeExternref, "1")
	assert.Error(t, err)
}
