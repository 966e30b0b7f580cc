package tap

import (
	"fmt"
	"html/template"
	"strings"
)

const (
	passColor = "#04f200"
	failColor = "#f20004"
)

// String encodes the collector as TAP: a plan line, an optional "#title"
// comment, then one numbered line per record. Multi-line descriptions are
// continued on tab-indented lines so Parse folds them back together.
// An empty collector encodes to the empty string.
func (c *Collector) String() string {
	if len(c.records) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "1..%d\n", len(c.records))
	if c.title != "" {
		fmt.Fprintf(&b, "#%s\n", c.title)
	}
	for i, r := range c.records {
		status := "ok"
		if !r.Passed {
			status = "not ok"
		}
		fmt.Fprintf(&b, "%s %d %s", status, i+1, strings.ReplaceAll(r.Description, "\n", "\n\t"))
		if keyword, text := r.Directive(); keyword != "" {
			fmt.Fprintf(&b, " # %s %s", keyword, text)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Labels holds the user-facing strings of the HTML table.
type Labels struct {
	Pass        string `yaml:"pass" json:"pass"`
	Fail        string `yaml:"fail" json:"fail"`
	Status      string `yaml:"status" json:"status"`
	Description string `yaml:"description" json:"description"`
	Extra       string `yaml:"extra" json:"extra"`
}

// DefaultLabels returns the English labels.
func DefaultLabels() Labels {
	return Labels{
		Pass:        "Pass",
		Fail:        "Fail",
		Status:      "Status",
		Description: "Description",
		Extra:       "Extra",
	}
}

// WithDefaults fills empty fields from DefaultLabels.
func (l Labels) WithDefaults() Labels {
	d := DefaultLabels()
	if l.Pass == "" {
		l.Pass = d.Pass
	}
	if l.Fail == "" {
		l.Fail = d.Fail
	}
	if l.Status == "" {
		l.Status = d.Status
	}
	if l.Description == "" {
		l.Description = d.Description
	}
	if l.Extra == "" {
		l.Extra = d.Extra
	}
	return l
}

// HTML renders the collector as an HTML table fragment: a caption row with
// the title, a header row, then one row per record. Status cells are coloured
// by outcome and multi-line descriptions are broken with <br/>. An empty
// collector still yields the two header rows.
func (c *Collector) HTML(labels Labels) string {
	labels = labels.WithDefaults()
	esc := template.HTMLEscapeString

	var b strings.Builder
	b.WriteString("\n<table border='1'>\n")
	fmt.Fprintf(&b, "\t<tr><th colspan='3'>%s</th></tr>\n", esc(c.title))
	fmt.Fprintf(&b, "\t<tr><th>%s</th><th>%s</th><th>%s</th></tr>\n",
		esc(labels.Status), esc(labels.Description), esc(labels.Extra))

	for _, r := range c.records {
		color, status := passColor, labels.Pass
		if !r.Passed {
			color, status = failColor, labels.Fail
		}
		extra := ""
		if keyword, text := r.Directive(); keyword != "" {
			extra = keyword + " " + text
		}
		fmt.Fprintf(&b, "\n\t<tr>\n\t\t<td style=\"background-color:%s;\">%s</td>\n\t\t<td>%s</td>\n\t\t<td>%s</td>\n\t</tr>",
			color, esc(status),
			strings.ReplaceAll(esc(r.Description), "\n", "<br/>"),
			esc(extra))
	}
	b.WriteString("\n</table>")
	return b.String()
}
