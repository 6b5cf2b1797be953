package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-invert/engine"
	"github.com/wippyai/wasm-invert/invert"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD166"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

// terminalWidth returns the width of stdout, or 80 when it is not a TTY.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 80
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// ReportView is the serializable form of an inversion report.
type ReportView struct {
	RunID     string             `json:"run_id" yaml:"run_id"`
	Mode      string             `json:"mode" yaml:"mode"`
	Policy    string             `json:"policy" yaml:"policy"`
	Output    string             `json:"output,omitempty" yaml:"output,omitempty"`
	Fragments []FragmentView     `json:"fragments" yaml:"fragments"`
	Ignored   []IgnoredView      `json:"ignored,omitempty" yaml:"ignored,omitempty"`
	Rewire    invert.RewireStats `json:"rewire" yaml:"rewire"`
	Verified  []RoundTripView    `json:"verified,omitempty" yaml:"verified,omitempty"`
}

// FragmentView is one inverted fragment.
type FragmentView struct {
	Name      string        `json:"name" yaml:"name"`
	Index     uint32        `json:"index" yaml:"index"`
	Export    string        `json:"export,omitempty" yaml:"export,omitempty"`
	Generated uint32        `json:"generated,omitempty" yaml:"generated,omitempty"`
	Forward   []string      `json:"forward" yaml:"forward"`
	Inverse   []string      `json:"inverse" yaml:"inverse"`
	Effects   []EffectView  `json:"effects,omitempty" yaml:"effects,omitempty"`
	Skipped   []SkippedView `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// EffectView is one evaluated store.
type EffectView struct {
	Cell     string `json:"cell" yaml:"cell"`
	Store    int    `json:"store" yaml:"store"`
	Prior    string `json:"prior,omitempty" yaml:"prior,omitempty"`
	Forward  string `json:"forward,omitempty" yaml:"forward,omitempty"`
	Restored string `json:"restored,omitempty" yaml:"restored,omitempty"`
	Known    bool   `json:"known" yaml:"known"`
	Exact    bool   `json:"exact" yaml:"exact"`
}

// SkippedView is a store left out under the skip policy.
type SkippedView struct {
	Store  int    `json:"store" yaml:"store"`
	Cell   string `json:"cell,omitempty" yaml:"cell,omitempty"`
	Reason string `json:"reason" yaml:"reason"`
}

// IgnoredView is a function that was not inverted.
type IgnoredView struct {
	Name   string `json:"name" yaml:"name"`
	Index  uint32 `json:"index" yaml:"index"`
	Reason string `json:"reason" yaml:"reason"`
}

// RoundTripView is a wazero round trip of one fragment.
type RoundTripView struct {
	Fragment string          `json:"fragment" yaml:"fragment"`
	Inverse  string          `json:"inverse" yaml:"inverse"`
	Exact    bool            `json:"exact" yaml:"exact"`
	Cells    []CellCheckView `json:"cells" yaml:"cells"`
}

// CellCheckView is one global across a round trip.
type CellCheckView struct {
	Name     string `json:"name" yaml:"name"`
	Before   string `json:"before" yaml:"before"`
	After    string `json:"after" yaml:"after"`
	Restored string `json:"restored" yaml:"restored"`
}

// InventoryView is the serializable form of an inspection.
type InventoryView struct {
	Module    string             `json:"module" yaml:"module"`
	Cells     []CellView         `json:"cells" yaml:"cells"`
	Fragments []FragmentInfoView `json:"fragments" yaml:"fragments"`
}

// CellView is one global.
type CellView struct {
	Name       string `json:"name" yaml:"name"`
	Index      uint32 `json:"index" yaml:"index"`
	Type       string `json:"type" yaml:"type"`
	Mutable    bool   `json:"mutable" yaml:"mutable"`
	Imported   bool   `json:"imported,omitempty" yaml:"imported,omitempty"`
	Initial    string `json:"initial,omitempty" yaml:"initial,omitempty"`
	Unresolved string `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
}

// FragmentInfoView is one candidate fragment.
type FragmentInfoView struct {
	Name   string `json:"name" yaml:"name"`
	Index  uint32 `json:"index" yaml:"index"`
	Stores int    `json:"stores" yaml:"stores"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func steps(ss []invert.Step) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = invert.FormatStep(s)
	}
	return out
}

func newFragmentView(r *invert.Result) FragmentView {
	v := FragmentView{
		Name:      r.Fragment.Name,
		Index:     r.Fragment.Index,
		Export:    r.Export,
		Generated: r.Generated,
		Forward:   steps(r.Forward),
		Inverse:   steps(r.Steps),
	}
	for _, e := range r.Effects {
		ev := EffectView{Cell: e.Cell, Store: e.Seq, Known: e.Known, Exact: e.Exact}
		if e.Known {
			ev.Prior = e.Prior.String()
			ev.Forward = e.Forward.String()
			ev.Restored = e.Restored.String()
		}
		v.Effects = append(v.Effects, ev)
	}
	for _, s := range r.Skipped {
		v.Skipped = append(v.Skipped, SkippedView{Store: s.Store.Seq, Cell: s.Cell, Reason: s.Err.Error()})
	}
	return v
}

// NewReportView converts a report.
func NewReportView(rep *invert.Report) *ReportView {
	v := &ReportView{
		RunID:  rep.RunID,
		Mode:   rep.Mode.String(),
		Policy: rep.Policy.String(),
		Rewire: rep.Rewire,
	}
	for _, r := range rep.Fragments {
		v.Fragments = append(v.Fragments, newFragmentView(r))
	}
	for _, ig := range rep.Ignored {
		v.Ignored = append(v.Ignored, IgnoredView{Name: ig.Name, Index: ig.Index, Reason: ig.Reason})
	}
	return v
}

// NewRoundTripView converts a verifier result.
func NewRoundTripView(res *engine.RoundTripResult) RoundTripView {
	v := RoundTripView{Fragment: res.Fragment, Inverse: res.Inverse, Exact: res.Exact()}
	for _, c := range res.Cells {
		v.Cells = append(v.Cells, CellCheckView{
			Name:     c.Name,
			Before:   engine.FormatValue(c.Type, c.Before),
			After:    engine.FormatValue(c.Type, c.After),
			Restored: engine.FormatValue(c.Type, c.Restored),
		})
	}
	return v
}

// NewInventoryView converts an inventory.
func NewInventoryView(module string, inv *invert.Inventory) *InventoryView {
	v := &InventoryView{Module: module}
	for _, c := range inv.Cells {
		cv := CellView{
			Name:       c.Name,
			Index:      c.Index,
			Type:       c.Type.String(),
			Mutable:    c.Mutable,
			Imported:   c.Imported,
			Unresolved: c.Unresolved,
		}
		if c.Numeric() && c.Unresolved == "" {
			cv.Initial = c.Initial.String()
		}
		v.Cells = append(v.Cells, cv)
	}
	for _, f := range inv.Fragments {
		v.Fragments = append(v.Fragments, FragmentInfoView{Name: f.Name, Index: f.Index, Stores: f.Stores, Reason: f.Reason})
	}
	return v
}

// Output writes a view in the chosen format. text is the lipgloss form.
func Output(w io.Writer, format string, view any, text func() string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return err
		}
		return enc.Close()
	}
	_, err := io.WriteString(w, text())
	return err
}

func truncate(s string, width int) string {
	if width <= 3 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if len(r) > width-3 {
		r = r[:width-3]
	}
	return string(r) + "..."
}

// RenderReport renders a report for the terminal.
func RenderReport(v *ReportView, width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("wasm-invert"))
	fmt.Fprintf(&b, " %s %s/%s\n\n", helpStyle.Render(v.RunID), v.Mode, v.Policy)

	for _, f := range v.Fragments {
		b.WriteString(renderFragment(f, width))
		b.WriteString("\n")
	}
	if len(v.Fragments) == 0 {
		b.WriteString(warnStyle.Render("no fragments inverted"))
		b.WriteString("\n")
	}
	for _, ig := range v.Ignored {
		fmt.Fprintf(&b, "%s %s\n", warnStyle.Render("ignored "+ig.Name), truncate(ig.Reason, width-len(ig.Name)-9))
	}
	if total := v.Rewire.Total(); total > 0 {
		fmt.Fprintf(&b, "rewired %d references (calls %d, ref.func %d, exports %d, elements %d, globals %d, start %d)\n",
			total, v.Rewire.Calls, v.Rewire.RefFuncs, v.Rewire.Exports, v.Rewire.Elements, v.Rewire.Globals, v.Rewire.Start)
	}
	for _, rt := range v.Verified {
		b.WriteString(RenderRoundTrip(rt))
	}
	if v.Output != "" {
		fmt.Fprintf(&b, "\nwrote %s\n", v.Output)
	}
	return b.String()
}

func renderFragment(f FragmentView, width int) string {
	var body strings.Builder
	header := funcStyle.Render(f.Name)
	if f.Export != "" {
		header += " -> " + funcStyle.Render(f.Export) + helpStyle.Render(fmt.Sprintf(" (func %d)", f.Generated))
	}
	body.WriteString(header)
	body.WriteString("\n")
	for _, s := range f.Forward {
		body.WriteString("  " + typeStyle.Render("fwd ") + truncate(s, width-12) + "\n")
	}
	for _, s := range f.Inverse {
		body.WriteString("  " + resultStyle.Render("inv ") + truncate(s, width-12) + "\n")
	}
	for _, e := range f.Effects {
		switch {
		case !e.Known:
			body.WriteString("  " + helpStyle.Render(fmt.Sprintf("%s: unknown", e.Cell)) + "\n")
		case e.Exact:
			body.WriteString("  " + fmt.Sprintf("%s: %s -> %s -> %s", e.Cell, e.Prior, e.Forward, resultStyle.Render(e.Restored)) + "\n")
		default:
			body.WriteString("  " + fmt.Sprintf("%s: %s -> %s -> %s", e.Cell, e.Prior, e.Forward, warnStyle.Render(e.Restored+" (inexact)")) + "\n")
		}
	}
	for _, s := range f.Skipped {
		body.WriteString("  " + errorStyle.Render(fmt.Sprintf("skipped store[%d]", s.Store)) + " " + truncate(s.Reason, width-24) + "\n")
	}
	return boxStyle.Width(max(width-2, 20)).Render(strings.TrimSuffix(body.String(), "\n"))
}

// RenderRoundTrip renders a wazero round trip.
func RenderRoundTrip(v RoundTripView) string {
	var b strings.Builder
	status := resultStyle.Render("restored")
	if !v.Exact {
		status = errorStyle.Render("MISMATCH")
	}
	fmt.Fprintf(&b, "%s %s then %s: %s\n", titleStyle.Render("verify"), funcStyle.Render(v.Fragment), funcStyle.Render(v.Inverse), status)
	for _, c := range v.Cells {
		fmt.Fprintf(&b, "  %s: %s -> %s -> %s\n", c.Name, c.Before, c.After, c.Restored)
	}
	return b.String()
}

// RenderInventory renders an inspection.
func RenderInventory(v *InventoryView, width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("wasm-invert"))
	b.WriteString(" ")
	b.WriteString(v.Module)
	b.WriteString("\n\ncells:\n")
	for _, c := range v.Cells {
		mut := "const"
		if c.Mutable {
			mut = "mut"
		}
		line := fmt.Sprintf("  %-16s %s %s", c.Name, typeStyle.Render(c.Type), helpStyle.Render(mut))
		switch {
		case c.Initial != "":
			line += " = " + c.Initial
		case c.Unresolved != "":
			line += " " + warnStyle.Render(truncate(c.Unresolved, width-len(c.Name)-30))
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\nfragments:\n")
	for _, f := range v.Fragments {
		if f.Reason != "" {
			fmt.Fprintf(&b, "  %-16s %s\n", f.Name, errorStyle.Render(truncate(f.Reason, width-20)))
			continue
		}
		fmt.Fprintf(&b, "  %-16s %s\n", funcStyle.Render(f.Name), resultStyle.Render(fmt.Sprintf("%d stores", f.Stores)))
	}
	return b.String()
}
