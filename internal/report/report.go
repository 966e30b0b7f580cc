// Package report renders a processed submission for people: as an HTML
// page for the web and mail front-ends and as plain text.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/josephlewis42/magpie/internal/submission"
	"github.com/josephlewis42/magpie/internal/tap"
)

var md = goldmark.New()

// Markdown renders operator-supplied text. Raw HTML in the source is
// omitted.
func Markdown(src string) (template.HTML, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Options controls the text around the results.
type Options struct {
	Header string // markdown
	Footer string // markdown
	Labels tap.Labels
}

var bodyTmpl = template.Must(template.New("body").Parse(`{{if .Header}}<div class="results-header">{{.Header}}</div>
{{end}}<p>Here are the results of the submission of the following documents:</p>
<pre>{{range .Files}}{{.}}
{{end}}</pre>
{{.Results}}
{{if .Footer}}<hr>
<div class="results-footer">{{.Footer}}</div>
{{end}}`))

var pageTmpl = template.Must(template.New("page").Parse(`<html><head><meta charset="utf-8"></head><body>
{{.}}
</body></html>
`))

// fileNames shows uploaded files by base name only.
func fileNames(doc *submission.Document) []string {
	names := make([]string, len(doc.Files))
	for i, f := range doc.Files {
		names[i] = filepath.Base(f)
	}
	return names
}

// Body renders the results fragment: header, uploaded files, one table per
// checker result, footer.
func Body(doc *submission.Document, opts Options) (template.HTML, error) {
	header, err := Markdown(opts.Header)
	if err != nil {
		return "", err
	}
	footer, err := Markdown(opts.Footer)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = bodyTmpl.Execute(&buf, struct {
		Header  template.HTML
		Footer  template.HTML
		Files   []string
		Results template.HTML
	}{
		Header:  header,
		Footer:  footer,
		Files:   fileNames(doc),
		Results: template.HTML(doc.HTML(opts.Labels)), // record text is escaped by the tap encoder
	})
	if err != nil {
		return "", fmt.Errorf("render results: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Page renders Body as a standalone HTML document.
func Page(doc *submission.Document, opts Options) (string, error) {
	body, err := Body(doc, opts)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, body); err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	return buf.String(), nil
}

// Text renders the results as plain text with each result in TAP form.
func Text(doc *submission.Document, opts Options) string {
	var b strings.Builder
	if h := strings.TrimSpace(opts.Header); h != "" {
		b.WriteString(h)
		b.WriteString("\n\n")
	}
	b.WriteString("Here are the results of the submission of the following documents:\n")
	for _, name := range fileNames(doc) {
		b.WriteString("  ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	for _, r := range doc.Results {
		b.WriteString("\n")
		if r.Len() == 0 {
			fmt.Fprintf(&b, "#%s\n(no results)\n", r.Title())
			continue
		}
		b.WriteString(r.String())
	}
	if f := strings.TrimSpace(opts.Footer); f != "" {
		b.WriteString("\n--\n")
		b.WriteString(f)
		b.WriteString("\n")
	}
	return b.String()
}
