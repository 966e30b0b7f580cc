package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
server:
  port: 9090
  title: Homework Checker
  message_of_the_day: "**Due Friday**"
labels:
  pass: Bestanden
storage:
  upload_dir: /srv/magpie/uploads
  database: postgres://magpie@localhost/magpie
mail:
  enabled: true
  username: grader@example.com
  password: secret
  pop_host: pop.example.com
  pop_port: 995
  pop_tls: true
  smtp_host: smtp.example.com
  poll_minutes: 5
executer:
  rules:
    - name: javac
      match: '\.java$'
      command: "javac-tap {file}"
      timeout: "30s"
    - name: lint
      match: '\.py$'
      command: "pylint {file}"
      parser: generic
tests:
  intro:
    description: Intro to Scratch
    checkers:
      Basic Upload:
        enabled: true
      Scratch2:
        enabled: true
        minimums:
          Minimum Sprites: 2
          Minimum Scripts: -1
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "magpie.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Title != "Homework Checker" {
		t.Errorf("Title = %q, want %q", cfg.Server.Title, "Homework Checker")
	}
	if cfg.Storage.Database != "postgres://magpie@localhost/magpie" {
		t.Errorf("Database = %q", cfg.Storage.Database)
	}
	if len(cfg.Executer.Rules) != 2 {
		t.Fatalf("len(Rules) = %d, want 2", len(cfg.Executer.Rules))
	}
	intro, ok := cfg.Tests["intro"]
	if !ok {
		t.Fatal("missing test intro")
	}
	if !intro.Checkers["Scratch2"].Enabled {
		t.Error("Scratch2 should be enabled")
	}
	if got := intro.Checkers["Scratch2"].Minimums["Minimum Sprites"]; got != 2 {
		t.Errorf("Minimum Sprites = %d, want 2", got)
	}
}

func TestDefaultsMerge(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// labels.fail is unset and should fall back to the English default
	if cfg.Labels.Fail != "Fail" {
		t.Errorf("Labels.Fail = %q, want %q (from defaults)", cfg.Labels.Fail, "Fail")
	}
	// labels.pass is explicit and should NOT be overridden
	if cfg.Labels.Pass != "Bestanden" {
		t.Errorf("Labels.Pass = %q, want %q (explicit)", cfg.Labels.Pass, "Bestanden")
	}
	if cfg.Mail.SMTPPort != 587 {
		t.Errorf("SMTPPort = %d, want 587 (from defaults)", cfg.Mail.SMTPPort)
	}
	if cfg.Mail.ReplySubject != "Your Recent Submission" {
		t.Errorf("ReplySubject = %q", cfg.Mail.ReplySubject)
	}
	if cfg.Executer.Rules[0].Parser != "tap" {
		t.Errorf("Rules[0].Parser = %q, want tap (from defaults)", cfg.Executer.Rules[0].Parser)
	}
	if cfg.Executer.Rules[1].Parser != "generic" {
		t.Errorf("Rules[1].Parser = %q, want generic (explicit)", cfg.Executer.Rules[1].Parser)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Title != "Magpie" {
		t.Errorf("Title = %q, want Magpie", cfg.Server.Title)
	}
	if cfg.Mail.Enabled {
		t.Error("mail should be disabled by default")
	}
	if cfg.Mail.POPPort != 995 || !cfg.Mail.POPTLS {
		t.Errorf("POP = %d tls=%v, want 995 tls=true", cfg.Mail.POPPort, cfg.Mail.POPTLS)
	}
	if cfg.Tests == nil {
		t.Error("Tests should be an empty map, not nil")
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("default config should be valid, got %v", errs)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("server: [unclosed")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	cfg.Tests["advanced"] = Test{Description: "Advanced"}
	cfg.Server.MessageOfTheDay = "changed"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() after Save error: %v", err)
	}
	if got.Server.MessageOfTheDay != "changed" {
		t.Errorf("MessageOfTheDay = %q, want changed", got.Server.MessageOfTheDay)
	}
	if _, ok := got.Tests["advanced"]; !ok {
		t.Error("saved test configuration missing after reload")
	}
	if got.Tests["intro"].Checkers["Scratch2"].Minimums["Minimum Sprites"] != 2 {
		t.Error("existing test configuration changed by save")
	}
}

func TestValidateValidConfig(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	errs := Validate(cfg)
	if len(errs) != 0 {
		for _, e := range errs {
			t.Errorf("unexpected validation error: %s", e.Error())
		}
	}
}

func hasError(errs []ValidationError, field, substr string) bool {
	for _, e := range errs {
		if e.Field == field && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name   string
		yaml   string
		field  string
		substr string
	}{
		{
			name:   "port out of range",
			yaml:   "server:\n  port: 70000\n",
			field:  "server.port",
			substr: "between 1 and 65535",
		},
		{
			name:   "rule without name",
			yaml:   "executer:\n  rules:\n    - match: 'x'\n      command: run\n",
			field:  "executer.rules[0].name",
			substr: "is required",
		},
		{
			name:   "duplicate rule names",
			yaml:   "executer:\n  rules:\n    - {name: a, match: x, command: run}\n    - {name: a, match: y, command: run}\n",
			field:  "executer.rules[1].name",
			substr: "duplicate rule name",
		},
		{
			name:   "bad regex",
			yaml:   "executer:\n  rules:\n    - {name: a, match: '([', command: run}\n",
			field:  "executer.rules[0].match",
			substr: "invalid regular expression",
		},
		{
			name:   "unrecognized parser",
			yaml:   "executer:\n  rules:\n    - {name: a, match: x, command: run, parser: junit}\n",
			field:  "executer.rules[0].parser",
			substr: "unrecognized parser",
		},
		{
			name:   "bad timeout",
			yaml:   "executer:\n  rules:\n    - {name: a, match: x, command: run, timeout: soon}\n",
			field:  "executer.rules[0].timeout",
			substr: "invalid duration",
		},
		{
			name:   "missing command",
			yaml:   "executer:\n  rules:\n    - {name: a, match: x}\n",
			field:  "executer.rules[0].command",
			substr: "is required",
		},
		{
			name:   "mail enabled without username",
			yaml:   "mail:\n  enabled: true\n",
			field:  "mail.username",
			substr: "required when mail is enabled",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tc.yaml))
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			errs := Validate(cfg)
			if !hasError(errs, tc.field, tc.substr) {
				t.Errorf("expected %s error containing %q, got %v", tc.field, tc.substr, errs)
			}
		})
	}
}

func TestCompileRules(t *testing.T) {
	e := Executer{Rules: []ExecRule{
		{Name: "javac", Match: `\.java$`, Command: "javac-tap {file}", Parser: "tap", Timeout: "30s"},
		{Name: "any", Match: `.*`, Command: "file {file}"},
	}}
	rules, err := e.CompileRules()
	if err != nil {
		t.Fatalf("CompileRules() error: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("len(rules) = %d, want 2", len(rules))
	}
	if !rules[0].Match.MatchString("Main.java") || rules[0].Match.MatchString("Main.py") {
		t.Error("javac rule matches the wrong files")
	}
	if rules[0].Timeout != 30*time.Second {
		t.Errorf("Timeout = %s, want 30s", rules[0].Timeout)
	}
	if rules[1].Timeout != 0 {
		t.Errorf("Timeout = %s, want 0 (runner default)", rules[1].Timeout)
	}

	bad := Executer{Rules: []ExecRule{{Name: "bad", Match: "(["}}}
	if _, err := bad.CompileRules(); err == nil || !strings.Contains(err.Error(), `rule "bad"`) {
		t.Errorf("expected error naming the rule, got %v", err)
	}
}
