package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-invert/invert"
)

// FileConfig is the YAML config file. Flags override its values.
type FileConfig struct {
	Seeds       map[string]string `yaml:"seeds"`
	Mode        string            `yaml:"mode"`
	Policy      string            `yaml:"policy"`
	Suffix      string            `yaml:"suffix"`
	Functions   []string          `yaml:"functions"`
	Prefixes    []string          `yaml:"prefixes"`
	Parallelism int               `yaml:"parallelism"`
	Rewire      bool              `yaml:"rewire"`
}

// LoadFileConfig reads a config file. An empty path is an empty config.
func LoadFileConfig(path string) (*FileConfig, error) {
	cfg := &FileConfig{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, commandError("read config", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, commandError(fmt.Sprintf("parse config %s", path), err)
	}
	return cfg, nil
}

// InvertFlags are the flags shared by commands that run the engine.
type InvertFlags struct {
	Seeds       map[string]string
	Mode        string
	Policy      string
	Suffix      string
	Functions   []string
	Prefixes    []string
	Parallelism int
	Rewire      bool
}

func (f *InvertFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.Mode, "mode", "chain", "inversion mode (chain|swap)")
	fs.StringVar(&f.Policy, "policy", "strict", "failing store policy (strict|skip)")
	fs.StringVar(&f.Suffix, "suffix", invert.DefaultSuffix, "suffix of generated function names")
	fs.StringSliceVarP(&f.Functions, "func", "f", nil, "fragment names to invert (default: all)")
	fs.StringSliceVar(&f.Prefixes, "prefix", nil, "fragment name prefixes to invert")
	fs.StringToStringVar(&f.Seeds, "seed", nil, "starting cell values, e.g. --seed x=10,base=0x100")
	fs.IntVarP(&f.Parallelism, "parallelism", "j", 0, "concurrent fragment analyses (0: GOMAXPROCS)")
	fs.BoolVar(&f.Rewire, "rewire", false, "redirect references to fragments to their inverses")
}

// Resolve merges the config file under the flags the user set.
func (f *InvertFlags) Resolve(cmd *cobra.Command, opts *RootOptions) (invert.Config, error) {
	file, err := LoadFileConfig(opts.ConfigPath)
	if err != nil {
		return invert.Config{}, err
	}
	changed := cmd.Flags().Changed
	pick := func(flag, flagVal, fileVal string) string {
		if changed(flag) || fileVal == "" {
			return flagVal
		}
		return fileVal
	}

	mode, err := invert.ParseMode(pick("mode", f.Mode, file.Mode))
	if err != nil {
		return invert.Config{}, commandError("mode", err)
	}
	policy, err := invert.ParsePolicy(pick("policy", f.Policy, file.Policy))
	if err != nil {
		return invert.Config{}, commandError("policy", err)
	}

	cfg := invert.Config{
		Mode:        mode,
		Policy:      policy,
		Suffix:      pick("suffix", f.Suffix, file.Suffix),
		Functions:   file.Functions,
		Prefixes:    file.Prefixes,
		Parallelism: file.Parallelism,
		Rewire:      file.Rewire,
		Seeds:       make(map[string]string),
		Logger:      opts.Logger(),
	}
	if changed("func") {
		cfg.Functions = f.Functions
	}
	if changed("prefix") {
		cfg.Prefixes = f.Prefixes
	}
	if changed("parallelism") {
		cfg.Parallelism = f.Parallelism
	}
	if changed("rewire") {
		cfg.Rewire = f.Rewire
	}
	for k, v := range file.Seeds {
		cfg.Seeds[k] = v
	}
	for k, v := range f.Seeds {
		cfg.Seeds[k] = v
	}
	return cfg, nil
}
