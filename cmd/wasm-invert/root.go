package main

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-invert/engine"
	"github.com/wippyai/wasm-invert/invert"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // inversion or round trip failed
	ExitCommandError = 2 // bad flags, unreadable files
)

// ExitError carries an exit code out of a command.
type ExitError struct {
	Err     error
	Message string
	Code    int
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func commandError(message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Message: message, Err: err}
}

func failure(message string, err error) *ExitError {
	return &ExitError{Code: ExitFailure, Message: message, Err: err}
}

// GetExitCode returns the code of an ExitError, ExitFailure otherwise.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ValidFormats are the accepted --format values.
var ValidFormats = []string{"text", "json", "yaml"}

// RootOptions holds global flags.
type RootOptions struct {
	ConfigPath string
	Format     string
	Verbose    bool

	log *zap.Logger
}

// Logger returns the logger built from --verbose.
func (o *RootOptions) Logger() *zap.Logger {
	if o.log == nil {
		return zap.NewNop()
	}
	return o.log
}

// NewRootCommand creates the wasm-invert command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "wasm-invert",
		Short: "Generate inverse functions for WebAssembly state updates",
		Long: `wasm-invert rebuilds every global.set of a [] -> [] function into an
arithmetic expression, solves it for the prior value of the global and
appends an inverse function that undoes the whole fragment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return commandError(fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			if opts.Verbose {
				log, err := zap.NewDevelopment()
				if err != nil {
					return commandError("create logger", err)
				}
				opts.log = log
			} else {
				opts.log = zap.NewNop()
			}
			invert.SetLogger(opts.log)
			engine.SetLogger(opts.log)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")

	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewInvertCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewBrowseCommand(opts))

	return cmd
}

func readModule(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, commandError("read module", err)
	}
	return data, nil
}
