package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-invert/engine"
	"github.com/wippyai/wasm-invert/invert"
	"github.com/wippyai/wasm-invert/wasm"
)

// InvertOptions holds flags for the invert command.
type InvertOptions struct {
	*RootOptions
	InvertFlags
	Output string
	Verify bool
}

// NewInvertCommand transforms a module.
func NewInvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvertOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "invert <module.wasm>",
		Short: "Append inverse functions to a module",
		Long: `Append an inverse function for every selected fragment and write the
module. Without --output the result goes next to the input as
<name>.inverted.wasm.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvert(cmd, opts, args[0])
		},
	}
	opts.InvertFlags.register(cmd)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output module path")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "run every fragment and its inverse in wazero")
	return cmd
}

// DefaultOutput is the output path used without --output.
func DefaultOutput(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".inverted.wasm"
}

func runInvert(cmd *cobra.Command, opts *InvertOptions, input string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.Resolve(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	data, err := readModule(input)
	if err != nil {
		return err
	}

	out, rep, err := invert.Transform(ctx, data, cfg)
	if err != nil {
		return failure("invert", err)
	}
	view := NewReportView(rep)

	if opts.Verify {
		checks, err := verifyAll(ctx, out, rep, cfg.Seeds)
		if err != nil {
			return err
		}
		view.Verified = checks
	}

	path := opts.Output
	if path == "" {
		path = DefaultOutput(input)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return commandError("write module", err)
	}
	view.Output = path

	if err := Output(cmd.OutOrStdout(), opts.Format, view, func() string {
		return RenderReport(view, terminalWidth())
	}); err != nil {
		return err
	}
	for _, c := range view.Verified {
		if !c.Exact {
			return failure("round trip", nil)
		}
	}
	return nil
}

// verifyAll round trips every exported fragment against its inverse.
// Rewiring points the fragment's export at the inverse, so nothing is
// verified then.
func verifyAll(ctx context.Context, out []byte, rep *invert.Report, seeds map[string]string) ([]RoundTripView, error) {
	if rep.Rewire.Total() > 0 {
		return nil, nil
	}
	m, err := wasm.ParseModule(out)
	if err != nil {
		return nil, failure("parse output", err)
	}
	v, err := engine.NewVerifier(ctx)
	if err != nil {
		return nil, commandError("create verifier", err)
	}
	defer v.Close(ctx)

	var views []RoundTripView
	for _, r := range rep.Fragments {
		if _, ok := m.FindExport(r.Fragment.Name, wasm.KindFunc); !ok {
			continue
		}
		res, err := v.RoundTrip(ctx, out, r.Fragment.Name, r.Export, seeds)
		if err != nil {
			return nil, failure("verify "+r.Fragment.Name, err)
		}
		views = append(views, NewRoundTripView(res))
	}
	return views, nil
}
