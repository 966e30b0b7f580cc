package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/josephlewis42/magpie/internal/fileutil"
	"github.com/josephlewis42/magpie/internal/tap"
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a magpie configuration from the given YAML file path.
// After parsing, it fills every key the file leaves unset with its default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultPaths lists the locations LoadDefault searches, in order:
// ./magpie.yaml, ~/.magpie/config.yaml
func DefaultPaths() []string {
	candidates := []string{"magpie.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".magpie", "config.yaml"))
	}
	return candidates
}

// LoadDefault loads the first config found in DefaultPaths. When none exists
// it returns Default() and the path a later Save should write to.
func LoadDefault() (*Config, string, error) {
	candidates := DefaultPaths()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			return cfg, path, err
		}
	}
	return Default(), candidates[len(candidates)-1], nil
}

// Marshal encodes the configuration as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config YAML: %w", err)
	}
	return data, nil
}

// Save writes the configuration under an exclusive file lock.
func Save(path string, cfg *Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := fileutil.LockAndWrite(path, data, 0o600); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}

// applyDefaults fills zero-valued settings from the built-in defaults.
func applyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.Title == "" {
		s.Title = "Magpie"
	}
	if s.UploadInstructions == "" {
		s.UploadInstructions = "Welcome to the Magpie submission tool, to begin upload the file you would like processed."
	}

	l := &cfg.Labels
	d := tap.DefaultLabels()
	for _, f := range []struct {
		dst *string
		def string
	}{
		{&l.Pass, d.Pass},
		{&l.Fail, d.Fail},
		{&l.Status, d.Status},
		{&l.Description, d.Description},
		{&l.Extra, d.Extra},
	} {
		if *f.dst == "" {
			*f.dst = f.def
		}
	}

	if cfg.Storage.UploadDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Storage.UploadDir = filepath.Join(home, ".magpie", "uploads")
		} else {
			cfg.Storage.UploadDir = filepath.Join(os.TempDir(), "magpie", "uploads")
		}
	}
	if cfg.Storage.Database == "" {
		cfg.Storage.Database = filepath.Join(filepath.Dir(cfg.Storage.UploadDir), "magpie.db")
	}

	m := &cfg.Mail
	if m.POPHost == "" {
		m.POPHost = "pop.gmail.com"
		if m.POPPort == 0 {
			m.POPPort = 995
			m.POPTLS = true
		}
	}
	if m.POPPort == 0 {
		m.POPPort = 110
	}
	if m.SMTPHost == "" {
		m.SMTPHost = "smtp.gmail.com"
	}
	if m.SMTPPort == 0 {
		m.SMTPPort = 587
	}
	if m.Header == "" {
		m.Header = "Welcome to the automated submission tool!"
	}
	if m.ReplySubject == "" {
		m.ReplySubject = "Your Recent Submission"
	}
	if m.PollMinutes == 0 {
		m.PollMinutes = 1
	}

	for i := range cfg.Executer.Rules {
		if cfg.Executer.Rules[i].Parser == "" {
			cfg.Executer.Rules[i].Parser = "tap"
		}
	}

	if cfg.Tests == nil {
		cfg.Tests = make(map[string]Test)
	}
}
