package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/wasm-invert/invert"
)

// NewBrowseCommand opens the interactive fragment browser.
func NewBrowseCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &InvertFlags{}
	cmd := &cobra.Command{
		Use:   "browse <module.wasm>",
		Short: "Browse fragments and their inverses interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return commandError("browse needs a terminal", nil)
			}
			cfg, err := flags.Resolve(cmd, rootOpts)
			if err != nil {
				return err
			}
			p := tea.NewProgram(newBrowseModel(args[0], cfg), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

type browseState int

const (
	stateSelectFragment browseState = iota
	stateEditSeeds
	stateShowResult
)

type browseModel struct {
	err       error
	cfg       invert.Config
	inventory *InventoryView
	result    *FragmentView
	filename  string
	data      []byte
	seeds     textinput.Model
	selected  int
	width     int
	state     browseState
}

func newBrowseModel(filename string, cfg invert.Config) *browseModel {
	ti := textinput.New()
	ti.Prompt = "seeds: "
	ti.Placeholder = "x=10,y=0x20"
	ti.Width = 50
	ti.SetValue(formatSeeds(cfg.Seeds))
	return &browseModel{
		cfg:      cfg,
		filename: filename,
		seeds:    ti,
		width:    80,
		state:    stateSelectFragment,
	}
}

type loadedMsg struct {
	err       error
	data      []byte
	inventory *InventoryView
}

type analyzedMsg struct {
	err    error
	result *FragmentView
}

func (m *browseModel) Init() tea.Cmd {
	return m.load()
}

// load and analyze capture the model state they need, since commands run
// outside Update.
func (m *browseModel) load() tea.Cmd {
	filename, data, cfg := m.filename, m.data, m.cfg
	return func() tea.Msg {
		if data == nil {
			var err error
			data, err = os.ReadFile(filename)
			if err != nil {
				return loadedMsg{err: err}
			}
		}
		inv, err := invert.Inspect(data, cfg)
		if err != nil {
			return loadedMsg{err: err}
		}
		return loadedMsg{data: data, inventory: NewInventoryView(filename, inv)}
	}
}

func (m *browseModel) analyze() tea.Cmd {
	data, name, cfg := m.data, m.inventory.Fragments[m.selected].Name, m.cfg
	return func() tea.Msg {
		r, err := invert.Analyze(data, name, cfg)
		if err != nil {
			return analyzedMsg{err: err}
		}
		v := newFragmentView(r)
		return analyzedMsg{result: &v}
	}
}

func (m *browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		if m.state == stateEditSeeds {
			return m.updateSeeds(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFragment && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFragment && m.inventory != nil && m.selected < len(m.inventory.Fragments)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFragment:
				if m.inventory != nil && len(m.inventory.Fragments) > 0 {
					return m, m.analyze()
				}
			case stateShowResult:
				m.state = stateSelectFragment
				m.result = nil
				m.err = nil
			}

		case "m":
			if m.cfg.Mode == invert.ModeChain {
				m.cfg.Mode = invert.ModeSwap
			} else {
				m.cfg.Mode = invert.ModeChain
			}
			if m.state == stateShowResult {
				return m, m.analyze()
			}

		case "p":
			if m.cfg.Policy == invert.PolicyStrict {
				m.cfg.Policy = invert.PolicySkip
			} else {
				m.cfg.Policy = invert.PolicyStrict
			}
			if m.state == stateShowResult {
				return m, m.analyze()
			}

		case "s":
			m.state = stateEditSeeds
			m.seeds.Focus()
			return m, textinput.Blink

		case "esc":
			if m.state == stateShowResult {
				m.state = stateSelectFragment
				m.result = nil
				m.err = nil
			}
		}

	case loadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.data = msg.data
			m.inventory = msg.inventory
			if m.selected >= len(m.inventory.Fragments) {
				m.selected = 0
			}
		}

	case analyzedMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	return m, nil
}

func (m *browseModel) updateSeeds(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.seeds.SetValue(formatSeeds(m.cfg.Seeds))
		m.seeds.Blur()
		m.state = stateSelectFragment
		return m, nil
	case "enter":
		seeds, err := parseSeeds(m.seeds.Value())
		m.seeds.Blur()
		m.state = stateSelectFragment
		if err != nil {
			m.err = err
			return m, nil
		}
		m.cfg.Seeds = seeds
		m.err = nil
		return m, m.load()
	}
	var cmd tea.Cmd
	m.seeds, cmd = m.seeds.Update(msg)
	return m, cmd
}

func parseSeeds(s string) (map[string]string, error) {
	seeds := make(map[string]string)
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("seed %q is not name=value", kv)
		}
		seeds[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return seeds, nil
}

func formatSeeds(seeds map[string]string) string {
	parts := make([]string, 0, len(seeds))
	for k, v := range seeds {
		parts = append(parts, k+"="+v)
	}
	slices.Sort(parts)
	return strings.Join(parts, ",")
}

func (m *browseModel) View() string {
	if m.inventory == nil {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
		}
		return "Loading module..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("wasm-invert"))
	fmt.Fprintf(&b, " %s %s\n\n", m.filename, helpStyle.Render(m.cfg.Mode.String()+"/"+m.cfg.Policy.String()))

	switch m.state {
	case stateSelectFragment, stateEditSeeds:
		b.WriteString("cells:\n")
		for _, c := range m.inventory.Cells {
			value := c.Initial
			if value == "" {
				value = warnStyle.Render("?")
			}
			fmt.Fprintf(&b, "  %s %s = %s\n", c.Name, typeStyle.Render(c.Type), value)
		}
		b.WriteString("\nselect a fragment:\n\n")
		for i, f := range m.inventory.Fragments {
			line := fmt.Sprintf("%s (%d stores)", f.Name, f.Stores)
			if f.Reason != "" {
				line = f.Name + " " + truncate(f.Reason, m.width-len(f.Name)-6)
			}
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else if f.Reason != "" {
				b.WriteString("  " + helpStyle.Render(line))
			} else {
				b.WriteString("  " + funcStyle.Render(line))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.state == stateEditSeeds {
			b.WriteString(m.seeds.View())
			b.WriteString("\n\n")
			b.WriteString(helpStyle.Render("enter apply • esc cancel"))
		} else {
			if m.err != nil {
				b.WriteString(errorStyle.Render(m.err.Error()))
				b.WriteString("\n")
			}
			b.WriteString(helpStyle.Render("↑/↓ select • enter analyze • s seeds • m mode • p policy • q quit"))
		}

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else if m.result != nil {
			b.WriteString(renderFragment(*m.result, m.width))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter/esc back • m mode • p policy • q quit"))
	}

	return b.String()
}
