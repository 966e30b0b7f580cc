package checks

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/josephlewis42/magpie/internal/submission"
	"github.com/josephlewis42/magpie/internal/tap"
)

// FilePlaceholder is replaced in a rule's command with the quoted path of
// the matching file.
const FilePlaceholder = "{file}"

// Rule runs Command against every uploaded file whose base name matches.
type Rule struct {
	Name    string
	Match   *regexp.Regexp
	Command string
	Parser  string // "tap" (default) or "generic"
	Timeout time.Duration
}

// Executer runs external programs over uploaded files and collects their
// TAP output.
type Executer struct {
	runner *Runner
	logger *zap.Logger

	mu    sync.RWMutex
	rules []Rule
}

// NewExecuter creates an Executer that runs commands through cmd.
func NewExecuter(cmd CommandRunner, logger *zap.Logger) *Executer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executer{runner: NewRunner(cmd), logger: logger}
}

func (e *Executer) Info() Info {
	return Info{
		Name:     "Executer",
		Author:   "Joseph Lewis <joehms22@gmail.com>",
		Version:  "0.1",
		License:  "BSD 3 Clause",
		Defaults: Settings{Enabled: true},
	}
}

// SetRules replaces the rule set. It is safe to call while checks run.
func (e *Executer) SetRules(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append([]Rule(nil), rules...)
}

// Rules returns a copy of the current rule set.
func (e *Executer) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule(nil), e.rules...)
}

func (e *Executer) Check(ctx context.Context, doc *submission.Document, settings Settings) ([]*tap.Collector, error) {
	if !settings.Enabled {
		return nil, nil
	}

	var results []*tap.Collector
	for _, rule := range e.Rules() {
		for _, path := range doc.Files {
			base := filepath.Base(path)
			if rule.Match == nil || !rule.Match.MatchString(base) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return results, err
			}

			title := fmt.Sprintf("%s: %s", rule.Name, base)
			command := expandCommand(rule.Command, path)
			e.logger.Debug("running rule",
				zap.String("rule", rule.Name),
				zap.String("file", base),
				zap.String("document", doc.ID))

			res, err := e.runner.Run(ctx, filepath.Dir(path), command, rule.Timeout)
			if err != nil {
				e.logger.Warn("rule failed to run", zap.String("rule", rule.Name), zap.Error(err))
				results = append(results, ErrorResult(title, err))
				continue
			}
			if res.TimedOut {
				e.logger.Warn("rule timed out", zap.String("rule", rule.Name), zap.String("file", base))
			}
			results = append(results, parserFor(rule.Parser).Parse(title, res))
		}
	}
	return results, nil
}

func parserFor(name string) Parser {
	if name == "generic" {
		return &GenericParser{}
	}
	return &TAPParser{}
}

// expandCommand substitutes the single-quoted path for every {file}.
func expandCommand(command, path string) string {
	return strings.ReplaceAll(command, FilePlaceholder, shellQuote(path))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
