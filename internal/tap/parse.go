package tap

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	planLine         = regexp.MustCompile(`^\d+\.\.\d+$`)
	continuationLine = regexp.MustCompile(`^(?:\s|#)(.+)$`)
	// status, optional test number, description up to the first '#', and an
	// optional TODO/SKIP directive. Any other '#' makes the line unmatchable.
	resultLine = regexp.MustCompile(`(?i)^(not ok|ok)\s*(\d+)?\s*([^#]*)(#\s*(todo|skip)\s*(.*))?$`)
)

// Parse decodes a TAP stream into an untitled collector. See ParseTitled.
func Parse(source string) *Collector {
	return ParseTitled("", source)
}

// ParseTitled decodes a TAP stream into a collector with the given title.
//
// Lines are handled first-match-wins: blank lines (one character or less)
// and plan lines are ignored; lines starting with whitespace or '#' extend
// the previous record's description; "ok"/"not ok" lines become records;
// anything else is dropped. Parsing never fails and the plan is never checked
// against the number of records.
func ParseTitled(title string, source string) *Collector {
	c := New(title)
	last := -1

	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if utf8.RuneCountInString(line) <= 1 {
			continue
		}
		if planLine.MatchString(line) {
			continue
		}
		if m := continuationLine.FindStringSubmatch(line); m != nil {
			if last >= 0 {
				c.records[last].Description += "\n" + strings.TrimSpace(m[1])
			}
			continue
		}

		m := resultLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		rec := Record{
			Passed:      strings.EqualFold(m[1], "ok"),
			Description: strings.TrimSpace(m[3]),
		}
		if m[4] != "" {
			text := strings.TrimSpace(m[6])
			switch keyword := strings.ToLower(m[5]); {
			case strings.Contains(keyword, "skip"):
				rec.Skip = &text
			case strings.Contains(keyword, "todo"):
				rec.Todo = &text
			}
		}
		c.records = append(c.records, rec)
		last = len(c.records) - 1
	}
	return c
}
