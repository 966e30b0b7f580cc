package checks

import (
	"fmt"

	"github.com/acarl005/stripansi"

	"github.com/josephlewis42/magpie/internal/tap"
)

// Parser converts a command's output into a titled collector.
type Parser interface {
	Parse(title string, res *Result) *tap.Collector
}

// TAPParser decodes stdout as TAP after stripping terminal escape codes.
// Output with no TAP records falls back to the GenericParser so a crashed
// or silent tool still shows up as a failure.
type TAPParser struct{}

func (p *TAPParser) Parse(title string, res *Result) *tap.Collector {
	if res.TimedOut {
		return (&GenericParser{}).Parse(title, res)
	}
	c := tap.ParseTitled(title, stripansi.Strip(res.Stdout))
	if c.Len() == 0 {
		return (&GenericParser{}).Parse(title, res)
	}
	if res.ExitCode != 0 && c.OK() {
		// Every reported test passed but the tool itself failed.
		c.Fail(fmt.Sprintf("exit code %d", res.ExitCode))
	}
	return c
}
