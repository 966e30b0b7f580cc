package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/josephlewis42/magpie/internal/tap"
)

// Output formats shared by check and tap render.
const (
	formatTAP   = "tap"
	formatText  = "text"
	formatHTML  = "html"
	formatTable = "table"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// writeResults encodes results in the requested format. "text" is an alias
// of "tap".
func writeResults(w io.Writer, results []*tap.Collector, format string, labels tap.Labels, colour bool) error {
	labels = labels.WithDefaults()
	switch format {
	case formatTAP, formatText:
		for _, r := range results {
			if _, err := io.WriteString(w, r.String()); err != nil {
				return err
			}
		}
		return nil
	case formatHTML:
		parts := make([]string, len(results))
		for i, r := range results {
			parts[i] = r.HTML(labels)
		}
		_, err := fmt.Fprintln(w, strings.Join(parts, "<br>\n"))
		return err
	case formatTable:
		for _, r := range results {
			renderTable(w, r, labels, colour)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want tap, html or table)", format)
	}
}

// renderTable draws one collector as a terminal table.
func renderTable(w io.Writer, c *tap.Collector, labels tap.Labels, colour bool) {
	pass := color.New(color.FgGreen, color.Bold)
	fail := color.New(color.FgRed, color.Bold)
	if colour {
		pass.EnableColor()
		fail.EnableColor()
	} else {
		pass.DisableColor()
		fail.DisableColor()
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(c.Title())
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"#", labels.Status, labels.Description, labels.Extra})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for i, r := range c.Records() {
		status := pass.Sprint(labels.Pass)
		if !r.Passed {
			status = fail.Sprint(labels.Fail)
		}
		extra := ""
		if keyword, txt := r.Directive(); keyword != "" {
			extra = keyword + " " + txt
		}
		t.AppendRow(table.Row{i + 1, status, r.Description, extra})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d passed, %d failed", c.Passed(), c.Failed()), ""})
	t.Render()
}
