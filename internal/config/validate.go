package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/josephlewis42/magpie/internal/checks"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedParsers is the set of valid parser names for executer rules.
var recognizedParsers = map[string]bool{
	"tap":     true,
	"generic": true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("must be between 1 and 65535, got %d", cfg.Server.Port),
		})
	}
	if cfg.Storage.UploadDir == "" {
		errs = append(errs, ValidationError{Field: "storage.upload_dir", Message: "is required"})
	}
	if cfg.Storage.Database == "" {
		errs = append(errs, ValidationError{Field: "storage.database", Message: "is required"})
	}

	validateMail(cfg.Mail, &errs)

	// Validate executer rules
	names := make(map[string]bool)
	for i, r := range cfg.Executer.Rules {
		prefix := fmt.Sprintf("executer.rules[%d]", i)
		if r.Name == "" {
			errs = append(errs, ValidationError{Field: prefix + ".name", Message: "is required"})
		} else if names[r.Name] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".name",
				Message: fmt.Sprintf("duplicate rule name %q", r.Name),
			})
		}
		names[r.Name] = true

		if r.Command == "" {
			errs = append(errs, ValidationError{Field: prefix + ".command", Message: "is required"})
		}
		if _, err := regexp.Compile(r.Match); err != nil {
			errs = append(errs, ValidationError{
				Field:   prefix + ".match",
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
		if r.Parser != "" && !recognizedParsers[r.Parser] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".parser",
				Message: fmt.Sprintf("unrecognized parser %q", r.Parser),
			})
		}
		if r.Timeout != "" {
			if d, err := time.ParseDuration(r.Timeout); err != nil || d <= 0 {
				errs = append(errs, ValidationError{
					Field:   prefix + ".timeout",
					Message: fmt.Sprintf("invalid duration %q", r.Timeout),
				})
			}
		}
	}

	for name := range cfg.Tests {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, ValidationError{Field: "tests", Message: "test names must not be blank"})
		}
	}

	return errs
}

// validateMail only checks the mail section when the front-end is enabled.
func validateMail(m Mail, errs *[]ValidationError) {
	if !m.Enabled {
		return
	}
	for _, f := range []struct {
		field string
		value string
	}{
		{"mail.username", m.Username},
		{"mail.pop_host", m.POPHost},
		{"mail.smtp_host", m.SMTPHost},
	} {
		if f.value == "" {
			*errs = append(*errs, ValidationError{Field: f.field, Message: "is required when mail is enabled"})
		}
	}
	if m.PollMinutes < 1 {
		*errs = append(*errs, ValidationError{Field: "mail.poll_minutes", Message: "must be at least 1"})
	}
}

// Compile converts a rule into its executable form.
func (r ExecRule) Compile() (checks.Rule, error) {
	re, err := regexp.Compile(r.Match)
	if err != nil {
		return checks.Rule{}, fmt.Errorf("rule %q: %w", r.Name, err)
	}
	var timeout time.Duration
	if r.Timeout != "" {
		timeout, err = time.ParseDuration(r.Timeout)
		if err != nil {
			return checks.Rule{}, fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	return checks.Rule{
		Name:    r.Name,
		Match:   re,
		Command: r.Command,
		Parser:  r.Parser,
		Timeout: timeout,
	}, nil
}

// CompileRules compiles every executer rule, stopping at the first error.
func (e Executer) CompileRules() ([]checks.Rule, error) {
	rules := make([]checks.Rule, 0, len(e.Rules))
	for _, r := range e.Rules {
		rule, err := r.Compile()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
