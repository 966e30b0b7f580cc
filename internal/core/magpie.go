// Package core dispatches submissions to the registered checkers and owns
// the live configuration.
package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/josephlewis42/magpie/internal/checks"
	"github.com/josephlewis42/magpie/internal/config"
	"github.com/josephlewis42/magpie/internal/db"
	"github.com/josephlewis42/magpie/internal/metrics"
	"github.com/josephlewis42/magpie/internal/submission"
	"github.com/josephlewis42/magpie/internal/tap"
)

// Magpie runs checkers over submissions.
type Magpie struct {
	logger   *zap.Logger
	db       *db.DB // nil disables result logging
	checkers []checks.Checker

	mu      sync.RWMutex
	cfg     *config.Config
	cfgPath string
}

// Options configures a Magpie.
type Options struct {
	Config     *config.Config
	ConfigPath string // where SaveConfig writes; empty disables saving
	DB         *db.DB
	Logger     *zap.Logger
	Checkers   []checks.Checker
}

// New creates a Magpie. Checkers run concurrently but their results are
// always reported in the order given here.
func New(opts Options) (*Magpie, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	m := &Magpie{
		logger:   logger.Named("core"),
		db:       opts.DB,
		checkers: opts.Checkers,
		cfgPath:  opts.ConfigPath,
	}
	if err := m.SetConfig(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

// DefaultCheckers returns the built-in checkers in their standard order.
func DefaultCheckers(logger *zap.Logger) []checks.Checker {
	return []checks.Checker{
		&checks.BasicUpload{},
		checks.NewScratch2(logger.Named("scratch2")),
		checks.NewExecuter(&checks.ExecRunner{}, logger.Named("executer")),
	}
}

// Checkers returns the registered checkers.
func (m *Magpie) Checkers() []checks.Checker {
	return append([]checks.Checker(nil), m.checkers...)
}

// Config returns the current configuration. Callers must not modify it.
func (m *Magpie) Config() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// SetConfig swaps in a new configuration and pushes executer rules to the
// checkers that use them.
func (m *Magpie) SetConfig(cfg *config.Config) error {
	rules, err := cfg.Executer.CompileRules()
	if err != nil {
		return fmt.Errorf("executer rules: %w", err)
	}
	for _, c := range m.checkers {
		if e, ok := c.(*checks.Executer); ok {
			e.SetRules(rules)
		}
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

// Submit runs every enabled checker on doc, appends their results to it and
// logs the outcome. A checker error becomes a failed record rather than a
// failed submission; only cancellation aborts.
func (m *Magpie) Submit(ctx context.Context, doc *submission.Document) error {
	start := time.Now()
	settings := m.settingsFor(doc.Test)

	results := make([][]*tap.Collector, len(m.checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range m.checkers {
		name := c.Info().Name
		s := settings[name]
		if !s.Enabled {
			continue
		}
		g.Go(func() error {
			t0 := time.Now()
			out, err := c.Check(gctx, doc, s)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.logger.Warn("checker failed",
					zap.String("checker", name),
					zap.String("document", doc.ID),
					zap.Error(err))
				metrics.RecordError(name)
				out = append(out, checks.ErrorResult(name, err))
			}
			var passed, failed int
			for _, r := range out {
				if r != nil {
					passed += r.Passed()
					failed += r.Failed()
				}
			}
			metrics.RecordCheck(name, passed, failed, time.Since(t0))
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("submit %s: %w", doc.ID, err)
	}

	for _, out := range results {
		doc.AddResults(out...)
	}
	metrics.RecordSubmission(doc.Frontend, doc.Passed())

	passed, failed := doc.Counts()
	m.logger.Info("submission processed",
		zap.String("document", doc.ID),
		zap.String("user", doc.User),
		zap.String("frontend", doc.Frontend),
		zap.String("test", doc.Test),
		zap.Int("passed", passed),
		zap.Int("failed", failed),
		zap.Duration("took", time.Since(start)))

	m.logResults(doc)
	return nil
}

// logResults persists a processed document. Storage failures are logged
// only; the user still gets their report.
func (m *Magpie) logResults(doc *submission.Document) {
	if m.db == nil {
		return
	}
	if err := m.db.LogSubmission(doc); err != nil {
		m.logger.Error("logging submission", zap.String("document", doc.ID), zap.Error(err))
		metrics.RecordError("db")
		return
	}
	for _, r := range doc.Results {
		if err := m.db.LogResult(doc.ID, r); err != nil {
			m.logger.Error("logging result", zap.String("document", doc.ID), zap.Error(err))
			metrics.RecordError("db")
		}
	}
}

// settingsFor resolves each checker's settings for the named test. Unknown
// tests, and checkers a test does not mention, use the checker defaults.
// Thresholds a test leaves out keep their default value.
func (m *Magpie) settingsFor(test string) map[string]checks.Settings {
	t, ok := m.Config().Tests[test]
	out := make(map[string]checks.Settings, len(m.checkers))
	for _, c := range m.checkers {
		info := c.Info()
		s := info.Defaults
		if ok {
			if configured, has := t.Checkers[info.Name]; has {
				s = supplement(configured, info.Defaults)
			}
		}
		out[info.Name] = s
	}
	return out
}

func supplement(s, defaults checks.Settings) checks.Settings {
	if len(defaults.Minimums) == 0 {
		return s
	}
	merged := make(map[string]int, len(defaults.Minimums))
	for k, v := range defaults.Minimums {
		merged[k] = v
	}
	for k, v := range s.Minimums {
		merged[k] = v
	}
	s.Minimums = merged
	return s
}

// TestNames returns the configured test names, sorted.
func (m *Magpie) TestNames() []string {
	tests := m.Config().Tests
	names := make([]string, 0, len(tests))
	for name := range tests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TestConfiguration returns the named test configuration.
func (m *Magpie) TestConfiguration(name string) (config.Test, bool) {
	t, ok := m.Config().Tests[name]
	return t, ok
}

// DefaultTestConfiguration builds a test configuration from every checker's defaults.
func (m *Magpie) DefaultTestConfiguration() config.Test {
	t := config.Test{
		Description: "You may change any of the items in this config; a negative minimum is not checked.",
		Checkers:    make(map[string]checks.Settings, len(m.checkers)),
	}
	for _, c := range m.checkers {
		info := c.Info()
		t.Checkers[info.Name] = supplement(info.Defaults, info.Defaults)
	}
	return t
}

// NewTestConfiguration registers a default test configuration under name
// unless one exists, and returns the configuration now stored there.
func (m *Magpie) NewTestConfiguration(name string) (config.Test, error) {
	if t, ok := m.TestConfiguration(name); ok {
		return t, nil
	}
	t := m.DefaultTestConfiguration()
	if err := m.SetTestConfiguration(name, t); err != nil {
		return config.Test{}, err
	}
	return t, nil
}

// SetTestConfiguration adds or replaces a named test configuration.
func (m *Magpie) SetTestConfiguration(name string, t config.Test) error {
	if name == "" {
		return fmt.Errorf("test name is required")
	}
	m.updateTests(func(tests map[string]config.Test) { tests[name] = t })
	return nil
}

// DeleteTestConfiguration removes a test configuration, reporting whether it existed.
func (m *Magpie) DeleteTestConfiguration(name string) bool {
	_, existed := m.TestConfiguration(name)
	if existed {
		m.updateTests(func(tests map[string]config.Test) { delete(tests, name) })
	}
	return existed
}

// updateTests copies the configuration so readers holding the old one are
// never affected.
func (m *Magpie) updateTests(fn func(map[string]config.Test)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := *m.cfg
	next.Tests = make(map[string]config.Test, len(m.cfg.Tests)+1)
	for k, v := range m.cfg.Tests {
		next.Tests[k] = v
	}
	fn(next.Tests)
	m.cfg = &next
}

// SaveConfig writes the current configuration to its file.
func (m *Magpie) SaveConfig() error {
	if m.cfgPath == "" {
		return nil
	}
	if err := config.Save(m.cfgPath, m.Config()); err != nil {
		return err
	}
	m.logger.Info("configuration saved", zap.String("path", m.cfgPath))
	return nil
}
