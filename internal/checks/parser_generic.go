package checks

import (
	"fmt"
	"unicode/utf8"

	"github.com/josephlewis42/magpie/internal/tap"
)

// GenericParser is the fallback parser: one record from the exit code, with
// the tail of the output attached on failure.
type GenericParser struct{}

// maxOutputLen caps how much stdout/stderr the generic parser retains.
const maxOutputLen = 8000

func (p *GenericParser) Parse(title string, res *Result) *tap.Collector {
	c := tap.New(title)
	if res.TimedOut {
		c.Fail(fmt.Sprintf("timed out after %dms", res.DurationMs))
		return c
	}

	combined := res.Stdout
	if res.Stderr != "" {
		if combined != "" {
			combined += "\n"
		}
		combined += res.Stderr
	}
	// Keep the tail; tracebacks and summaries usually come last.
	if len(combined) > maxOutputLen {
		cut := len(combined) - maxOutputLen
		for cut < len(combined) && !utf8.RuneStart(combined[cut]) {
			cut++
		}
		combined = "…(truncated)\n" + combined[cut:]
	}

	failure := fmt.Sprintf("exit code %d", res.ExitCode)
	if combined != "" {
		failure += "\n" + combined
	}
	c.Assert(res.ExitCode == 0, "passed (exit code 0)", tap.OnFail(failure))
	return c
}
