package main

import (
	"context"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-invert/engine"
	"github.com/wippyai/wasm-invert/invert"
	"github.com/wippyai/wasm-invert/wasm"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Seeds     map[string]string
	Suffix    string
	Functions []string
}

// NewVerifyCommand round trips an already inverted module in wazero.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "verify <module.wasm>",
		Short: "Run fragments and their inverses in wazero",
		Long: `Call every exported function F that has an exported inverse F<suffix>,
then the inverse, and check that every exported mutable global is
restored bit for bit. Exits 1 on any mismatch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.Suffix, "suffix", invert.DefaultSuffix, "suffix of inverse function names")
	cmd.Flags().StringSliceVarP(&opts.Functions, "func", "f", nil, "fragments to verify (default: all with an inverse)")
	cmd.Flags().StringToStringVar(&opts.Seeds, "seed", nil, "starting values of exported globals")
	return cmd
}

// InversePairs lists exported functions that have an exported inverse.
func InversePairs(m *wasm.Module, suffix string) [][2]string {
	var pairs [][2]string
	for _, exp := range m.Exports {
		if exp.Kind != wasm.KindFunc || strings.HasSuffix(exp.Name, suffix) {
			continue
		}
		if _, ok := m.FindExport(exp.Name+suffix, wasm.KindFunc); ok {
			pairs = append(pairs, [2]string{exp.Name, exp.Name + suffix})
		}
	}
	return pairs
}

func runVerify(cmd *cobra.Command, opts *VerifyOptions, input string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := readModule(input)
	if err != nil {
		return err
	}
	m, err := wasm.ParseModule(data)
	if err != nil {
		return failure("parse module", err)
	}

	pairs := InversePairs(m, opts.Suffix)
	if len(opts.Functions) > 0 {
		pairs = slices.DeleteFunc(pairs, func(p [2]string) bool {
			return !slices.Contains(opts.Functions, p[0])
		})
	}
	if len(pairs) == 0 {
		return failure("no fragment with an exported inverse", nil)
	}

	v, err := engine.NewVerifier(ctx)
	if err != nil {
		return commandError("create verifier", err)
	}
	defer v.Close(ctx)

	var views []RoundTripView
	exact := true
	for _, p := range pairs {
		res, err := v.RoundTrip(ctx, data, p[0], p[1], opts.Seeds)
		if err != nil {
			return failure("verify "+p[0], err)
		}
		exact = exact && res.Exact()
		views = append(views, NewRoundTripView(res))
	}

	if err := Output(cmd.OutOrStdout(), opts.Format, views, func() string {
		var b strings.Builder
		for _, rt := range views {
			b.WriteString(RenderRoundTrip(rt))
		}
		return b.String()
	}); err != nil {
		return err
	}
	if !exact {
		return failure("round trip", nil)
	}
	return nil
}
