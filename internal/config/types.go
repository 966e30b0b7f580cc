package config

import (
	"github.com/josephlewis42/magpie/internal/checks"
	"github.com/josephlewis42/magpie/internal/tap"
)

// Config is the top-level configuration structure parsed from magpie YAML.
type Config struct {
	Server   Server          `yaml:"server"`
	Labels   tap.Labels      `yaml:"labels"`
	Storage  Storage         `yaml:"storage"`
	Mail     Mail            `yaml:"mail"`
	Executer Executer        `yaml:"executer"`
	Tests    map[string]Test `yaml:"tests"`
}

// Server configures the HTTP front-end.
type Server struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Title              string `yaml:"title"`
	UploadInstructions string `yaml:"upload_instructions"`
	ResultsHeader      string `yaml:"results_header"`
	ResultsFooter      string `yaml:"results_footer"`
	MessageOfTheDay    string `yaml:"message_of_the_day"`
}

// Storage locates uploaded files and the results database.
type Storage struct {
	UploadDir string `yaml:"upload_dir"`
	// Database is a SQLite path or a postgres:// URL.
	Database string `yaml:"database"`
}

// Mail configures the email front-end.
type Mail struct {
	Enabled      bool   `yaml:"enabled"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	From         string `yaml:"from"`
	POPHost      string `yaml:"pop_host"`
	POPPort      int    `yaml:"pop_port"`
	POPTLS       bool   `yaml:"pop_tls"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPTLS      bool   `yaml:"smtp_tls"`
	Header       string `yaml:"header"`
	Footer       string `yaml:"footer"`
	ReplySubject string `yaml:"reply_subject"`
	PollMinutes  int    `yaml:"poll_minutes"`
}

// Executer holds the rules of the external-program checker.
type Executer struct {
	Rules []ExecRule `yaml:"rules"`
}

// ExecRule runs Command on each uploaded file whose name matches Match.
type ExecRule struct {
	Name    string `yaml:"name"`
	Match   string `yaml:"match"`
	Command string `yaml:"command"`
	Parser  string `yaml:"parser"`
	Timeout string `yaml:"timeout"`
}

// Test is a named test configuration: which checkers run and with what settings.
type Test struct {
	Description string                     `yaml:"description"`
	Checkers    map[string]checks.Settings `yaml:"checkers"`
}
