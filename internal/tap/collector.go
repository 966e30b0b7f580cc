// Package tap records pass/fail outcomes for one checking pass and converts
// them to and from a small Test Anything Protocol dialect and an HTML table.
//
// A Collector is owned by a single checker invocation; it is not safe for
// concurrent appends.
package tap

// Record is one evaluated assertion.
//
// Todo and Skip are optional annotations: nil means absent, and a directive
// given without text is an empty string. Both may be set, in which case Todo
// wins wherever a record is rendered (see Directive).
type Record struct {
	Passed      bool    `json:"passed"`
	Description string  `json:"description"`
	Todo        *string `json:"todo,omitempty"`
	Skip        *string `json:"skip,omitempty"`
}

// Directive returns the annotation to display for the record: ("TODO", todo)
// when Todo has text, else ("SKIP", skip) when Skip has text, else empty
// strings. Both encoders go through here so they can never disagree.
func (r Record) Directive() (keyword string, text string) {
	switch {
	case r.Todo != nil && *r.Todo != "":
		return "TODO", *r.Todo
	case r.Skip != nil && *r.Skip != "":
		return "SKIP", *r.Skip
	}
	return "", ""
}

func (r Record) clone() Record {
	if r.Todo != nil {
		todo := *r.Todo
		r.Todo = &todo
	}
	if r.Skip != nil {
		skip := *r.Skip
		r.Skip = &skip
	}
	return r
}

// Collector is an append-only, ordered sequence of records with a title.
type Collector struct {
	title   string
	records []Record
}

// New returns an empty collector with the given title.
func New(title string) *Collector {
	return &Collector{title: title}
}

// FromRecords returns a collector holding copies of records, in order.
func FromRecords(title string, records []Record) *Collector {
	c := New(title)
	for _, r := range records {
		c.records = append(c.records, r.clone())
	}
	return c
}

// Option adjusts a record as it is appended.
type Option func(*recordOpts)

type recordOpts struct {
	todo        *string
	skip        *string
	failMessage string
}

// Todo annotates the record with a TODO directive.
func Todo(text string) Option {
	return func(o *recordOpts) { o.todo = &text }
}

// Skip annotates the record with a SKIP directive.
func Skip(text string) Option {
	return func(o *recordOpts) { o.skip = &text }
}

// OnFail replaces the description when the asserted condition is false.
// It has no effect on Pass, and an empty text is ignored.
func OnFail(description string) Option {
	return func(o *recordOpts) { o.failMessage = description }
}

// Pass appends a passing record.
func (c *Collector) Pass(description string, opts ...Option) {
	c.Assert(true, description, opts...)
}

// Fail appends a failing record.
func (c *Collector) Fail(description string, opts ...Option) {
	c.Assert(false, description, opts...)
}

// Assert appends a record that passed iff cond is true. When cond is false
// and an OnFail description was given, it is recorded instead of description.
func (c *Collector) Assert(cond bool, description string, opts ...Option) {
	var o recordOpts
	for _, opt := range opts {
		opt(&o)
	}
	if !cond && o.failMessage != "" {
		description = o.failMessage
	}
	c.records = append(c.records, Record{
		Passed:      cond,
		Description: description,
		Todo:        o.todo,
		Skip:        o.skip,
	})
}

// Title returns the collector's title.
func (c *Collector) Title() string {
	return c.title
}

// Len returns the number of records.
func (c *Collector) Len() int {
	return len(c.records)
}

// Records returns a copy of the records in insertion order.
func (c *Collector) Records() []Record {
	out := make([]Record, len(c.records))
	for i, r := range c.records {
		out[i] = r.clone()
	}
	return out
}

// Passed returns the number of passing records.
func (c *Collector) Passed() int {
	n := 0
	for _, r := range c.records {
		if r.Passed {
			n++
		}
	}
	return n
}

// Failed returns the number of failing records.
func (c *Collector) Failed() int {
	return len(c.records) - c.Passed()
}

// OK reports whether no record failed. An empty collector is OK.
func (c *Collector) OK() bool {
	return c.Failed() == 0
}
