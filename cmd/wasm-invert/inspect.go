package main

import (
	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-invert/invert"
)

// NewInspectCommand lists a module's cells and fragments.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &InvertFlags{}
	cmd := &cobra.Command{
		Use:   "inspect <module.wasm>",
		Short: "List state cells and candidate fragments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Resolve(cmd, rootOpts)
			if err != nil {
				return err
			}
			data, err := readModule(args[0])
			if err != nil {
				return err
			}
			inv, err := invert.Inspect(data, cfg)
			if err != nil {
				return failure("inspect", err)
			}
			view := NewInventoryView(args[0], inv)
			return Output(cmd.OutOrStdout(), rootOpts.Format, view, func() string {
				return RenderInventory(view, terminalWidth())
			})
		},
	}
	cmd.Flags().StringToStringVar(&flags.Seeds, "seed", nil, "starting cell values, e.g. --seed x=10")
	return cmd
}
