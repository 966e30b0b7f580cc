// Package checks holds the pluggable checkers that inspect a submission and
// report their findings as TAP collectors.
package checks

import (
	"context"

	"github.com/josephlewis42/magpie/internal/submission"
	"github.com/josephlewis42/magpie/internal/tap"
)

// Info describes a checker.
type Info struct {
	Name     string
	Author   string
	Version  string
	License  string
	Defaults Settings // settings used when a test configuration does not mention the checker
}

// Settings is the per-test configuration of one checker.
type Settings struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Minimums maps a named threshold to its required value; a negative
	// value disables that threshold.
	Minimums map[string]int `yaml:"minimums,omitempty" json:"minimums,omitempty"`
}

// Checker inspects a submission. A disabled checker returns no results.
type Checker interface {
	Info() Info
	Check(ctx context.Context, doc *submission.Document, settings Settings) ([]*tap.Collector, error)
}

// ErrorResult converts a checker failure into a report the user can read.
func ErrorResult(checker string, err error) *tap.Collector {
	c := tap.New(checker + " error")
	c.Fail(err.Error())
	return c
}
