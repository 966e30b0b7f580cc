// Package submission models one user's submitted files and the results the
// checkers produced for them.
package submission

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josephlewis42/magpie/internal/tap"
)

// Document is a submission from a particular user through one front-end.
type Document struct {
	ID        string
	User      string
	Frontend  string // name of the front-end that created the document
	Test      string // test configuration requested by the user
	Files     []string
	Results   []*tap.Collector
	Meta      map[string]string // free-form cross-checker data; never rely on a key being present
	CreatedAt time.Time
}

// New creates an empty document with a fresh ID.
func New(user, frontend, test string) *Document {
	return &Document{
		ID:        uuid.NewString(),
		User:      user,
		Frontend:  frontend,
		Test:      test,
		Meta:      make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}
}

// AddResults appends collectors in order, skipping nil ones.
func (d *Document) AddResults(results ...*tap.Collector) {
	for _, r := range results {
		if r != nil {
			d.Results = append(d.Results, r)
		}
	}
}

// Passed reports whether no result recorded a failure.
func (d *Document) Passed() bool {
	for _, r := range d.Results {
		if !r.OK() {
			return false
		}
	}
	return true
}

// Counts returns the total passing and failing records across all results.
func (d *Document) Counts() (passed, failed int) {
	for _, r := range d.Results {
		passed += r.Passed()
		failed += r.Failed()
	}
	return passed, failed
}

// HTML joins the HTML table of every result with <br>.
func (d *Document) HTML(labels tap.Labels) string {
	parts := make([]string, len(d.Results))
	for i, r := range d.Results {
		parts[i] = r.HTML(labels)
	}
	return strings.Join(parts, "<br>")
}

// storedResult is the on-disk form of a collector. Records are authoritative;
// TAP is kept for other tools and for manifests written before records were.
type storedResult struct {
	Title   string       `json:"title"`
	TAP     string       `json:"tap"`
	Records []tap.Record `json:"records"`
}

type storedDocument struct {
	ID        string            `json:"id"`
	User      string            `json:"user"`
	Frontend  string            `json:"frontend"`
	Test      string            `json:"test,omitempty"`
	Files     []string          `json:"files"`
	Results   []storedResult    `json:"results"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// MarshalJSON stores results as records alongside their TAP text.
func (d *Document) MarshalJSON() ([]byte, error) {
	sd := storedDocument{
		ID:        d.ID,
		User:      d.User,
		Frontend:  d.Frontend,
		Test:      d.Test,
		Files:     d.Files,
		Results:   make([]storedResult, 0, len(d.Results)),
		Meta:      d.Meta,
		CreatedAt: d.CreatedAt,
	}
	for _, r := range d.Results {
		sd.Results = append(sd.Results, storedResult{Title: r.Title(), TAP: r.String(), Records: r.Records()})
	}
	return json.Marshal(sd)
}

// UnmarshalJSON restores the stored results.
func (d *Document) UnmarshalJSON(data []byte) error {
	var sd storedDocument
	if err := json.Unmarshal(data, &sd); err != nil {
		return err
	}
	*d = Document{
		ID:        sd.ID,
		User:      sd.User,
		Frontend:  sd.Frontend,
		Test:      sd.Test,
		Files:     sd.Files,
		Meta:      sd.Meta,
		CreatedAt: sd.CreatedAt,
	}
	if d.Meta == nil {
		d.Meta = make(map[string]string)
	}
	for _, r := range sd.Results {
		if r.Records == nil {
			d.Results = append(d.Results, tap.ParseTitled(r.Title, r.TAP))
			continue
		}
		d.Results = append(d.Results, tap.FromRecords(r.Title, r.Records))
	}
	return nil
}
