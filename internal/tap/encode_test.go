package tap

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestString_Empty(t *testing.T) {
	assert.Equal(t, "", New("has a title").String())
}

func TestString(t *testing.T) {
	c := New("Basic Upload")
	c.Pass("Has at least one file")
	c.Fail("Is a scratch file?", Todo("accept .sb3"))
	c.Pass("skipped one", Skip("no network"))
	c.Fail("both set", Todo("x"), Skip("y"))
	c.Fail("first line\nsecond line")

	want := "1..5\n" +
		"#Basic Upload\n" +
		"ok 1 Has at least one file\n" +
		"not ok 2 Is a scratch file? # TODO accept .sb3\n" +
		"ok 3 skipped one # SKIP no network\n" +
		"not ok 4 both set # TODO x\n" +
		"not ok 5 first line\n\tsecond line\n"
	assert.Equal(t, want, c.String())
}

func TestString_NoTitleLine(t *testing.T) {
	c := New("")
	c.Pass("a")
	assert.Equal(t, "1..1\nok 1 a\n", c.String())
}

func TestRoundTrip(t *testing.T) {
	c := New("round trip")
	c.Pass("alpha")
	c.Fail("beta")
	c.Fail("gamma", Todo("later"))
	c.Pass("delta", Skip("not today"))

	got := Parse(c.String())
	if diff := cmp.Diff(c.Records(), got.Records()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_MultiLineDescription(t *testing.T) {
	c := New("")
	c.Fail("compile error\nmain.go:3: undefined: x\nmain.go:9: missing return")

	got := Parse(c.String()).Records()
	require.Len(t, got, 1)
	assert.Equal(t, c.Records()[0].Description, got[0].Description)
}

// tableRows returns the text content of every <tr>'s cells, in order.
func tableRows(t *testing.T, fragment string) [][]string {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(fragment))
	require.NoError(t, err)

	var rows [][]string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, textOf(c))
				}
			}
			rows = append(rows, cells)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return rows
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode && n.Data == "br" {
		return "\n"
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textOf(c))
	}
	return b.String()
}

func TestHTML_EmptyCollectorHasHeadersOnly(t *testing.T) {
	out := New("nothing yet").HTML(Labels{})

	rows := tableRows(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"nothing yet"}, rows[0])
	assert.Equal(t, []string{"Status", "Description", "Extra"}, rows[1])
}

func TestHTML_Rows(t *testing.T) {
	c := New("Checks")
	c.Pass("fine")
	c.Fail("bad\nworse", Skip("flaky"))
	c.Fail("both", Todo("x"), Skip("y"))

	out := c.HTML(DefaultLabels())
	rows := tableRows(t, out)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"Pass", "fine", ""}, rows[2])
	assert.Equal(t, []string{"Fail", "bad\nworse", "SKIP flaky"}, rows[3])
	assert.Equal(t, []string{"Fail", "both", "TODO x"}, rows[4])

	assert.Contains(t, out, "bad<br/>worse")
	assert.Contains(t, out, `background-color:`+passColor)
	assert.Contains(t, out, `background-color:`+failColor)
	assert.NotContains(t, out, "SKIP y")
}

func TestHTML_CustomLabels(t *testing.T) {
	c := New("Prüfungen")
	c.Pass("ok")
	c.Fail("nein")

	rows := tableRows(t, c.HTML(Labels{Pass: "Bestanden", Fail: "Durchgefallen", Status: "Status", Description: "Beschreibung"}))
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Status", "Beschreibung", "Extra"}, rows[1], "missing labels fall back to English")
	assert.Equal(t, "Bestanden", rows[2][0])
	assert.Equal(t, "Durchgefallen", rows[3][0])
}

func TestHTML_EscapesText(t *testing.T) {
	c := New("<b>title</b>")
	c.Fail(`<script>alert("x")</script>`)

	out := c.HTML(Labels{})
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")

	rows := tableRows(t, out)
	assert.Equal(t, "<b>title</b>", rows[0][0])
	assert.Equal(t, `<script>alert("x")</script>`, rows[2][1])
}
