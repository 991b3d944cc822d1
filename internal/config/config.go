package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings of the report job.
type Config struct {
	Fetch      FetchConfig      `yaml:"fetch"`
	Report     ReportConfig     `yaml:"report"`
	Escalation EscalationConfig `yaml:"escalation"`
	Output     OutputConfig     `yaml:"output"`
	Sheets     SheetsConfig     `yaml:"sheets"`
	Cleanup    CleanupConfig    `yaml:"cleanup"`
	History    HistoryConfig    `yaml:"history"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// FetchConfig configures report discovery against the internal endpoint.
type FetchConfig struct {
	BaseURL           string  `yaml:"base_url"`
	DownloadDir       string  `yaml:"download_dir"`
	Timeout           string  `yaml:"timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unlimited
	MaxFiles          int     `yaml:"max_files"`           // 0 = unlimited
}

// ReportConfig configures the transform pipeline.
type ReportConfig struct {
	Zone            string `yaml:"zone"`
	MaxRowsPerFile  int    `yaml:"max_rows_per_file"`
	InputEncoding   string `yaml:"input_encoding"` // utf-8, windows-1252, iso-8859-1
	SummaryFileName string `yaml:"summary_file_name"`
	PartFilePrefix  string `yaml:"part_file_prefix"`
}

// EscalationConfig locates the hub escalation matrix workbook.
type EscalationConfig struct {
	File string `yaml:"file"` // relative paths resolve against fetch.download_dir
}

// OutputConfig configures optional artifacts.
type OutputConfig struct {
	Workbook bool `yaml:"workbook"`
}

// SheetsConfig configures the spreadsheet push.
type SheetsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	Range           string `yaml:"range"`
	CredentialsFile string `yaml:"credentials_file"`
}

// CleanupConfig controls deletion of intermediate files.
type CleanupConfig struct {
	Inputs  bool `yaml:"inputs"`
	Summary bool `yaml:"summary"`
}

// HistoryConfig configures the run ledger.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"` // relative to fetch.download_dir unless absolute
	ExportDetail bool   `yaml:"export_detail"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

const (
	DefaultBaseURL        = "http://10.24.44.15/fake-detection-reports/LAST_MILE/FORWARD/"
	DefaultSpreadsheetID  = "1IKE_AlOfUqIF7-9BWsESn611Wg-WmbPBTrLhVC5kf3w"
	DefaultRange          = "Raw Data!A2"
	DefaultCredentials    = "~/Downloads/cx-dashboard-426911-991c82f4850e.json"
	DefaultEscalationFile = "Escalation Matrix - DH.xlsx"
	DefaultHistoryFile    = "fake_detection_history.sqlite"
	DefaultMaxRows        = 700000
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Fetch: FetchConfig{
			BaseURL:     DefaultBaseURL,
			DownloadDir: "~/Downloads",
			Timeout:     "5m",
		},
		Report: ReportConfig{
			Zone:            "North",
			MaxRowsPerFile:  DefaultMaxRows,
			InputEncoding:   "utf-8",
			SummaryFileName: "EkartReports_Summary.csv",
			PartFilePrefix:  "Filtered_EkartReports_Part",
		},
		Escalation: EscalationConfig{
			File: DefaultEscalationFile,
		},
		Sheets: SheetsConfig{
			Enabled:         true,
			SpreadsheetID:   DefaultSpreadsheetID,
			Range:           DefaultRange,
			CredentialsFile: DefaultCredentials,
		},
		Cleanup: CleanupConfig{
			Inputs:  true,
			Summary: true,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    DefaultHistoryFile,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath is where Load looks when no --config flag is given.
func DefaultPath() string {
	return filepath.Join(homeDir(), ".config", "fake-detection-report", "config.yaml")
}

// Load reads configuration from a YAML file.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.expandPaths()
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FDR_BASE_URL"); v != "" {
		c.Fetch.BaseURL = v
	}
	if v := os.Getenv("FDR_DOWNLOAD_DIR"); v != "" {
		c.Fetch.DownloadDir = v
	}
	if v := os.Getenv("FDR_SHEET_ID"); v != "" {
		c.Sheets.SpreadsheetID = v
	}
	if v := os.Getenv("FDR_SHEET_RANGE"); v != "" {
		c.Sheets.Range = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		c.Sheets.CredentialsFile = v
	}
	// explicit setting wins over the ADC variable
	if v := os.Getenv("FDR_CREDENTIALS_FILE"); v != "" {
		c.Sheets.CredentialsFile = v
	}
	if v := os.Getenv("FDR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) expandPaths() {
	c.Fetch.DownloadDir = ExpandHome(c.Fetch.DownloadDir)
	c.Sheets.CredentialsFile = ExpandHome(c.Sheets.CredentialsFile)
	c.History.Path = ExpandHome(c.History.Path)
	c.Escalation.File = ExpandHome(c.Escalation.File)
}

// Validate checks the settings a run depends on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Fetch.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid fetch.base_url %q", c.Fetch.BaseURL)
	}
	if !strings.HasSuffix(c.Fetch.BaseURL, "/") {
		return fmt.Errorf("fetch.base_url must end with '/': %q", c.Fetch.BaseURL)
	}
	if c.Fetch.DownloadDir == "" {
		return fmt.Errorf("fetch.download_dir is required")
	}
	if _, err := c.FetchTimeout(); err != nil {
		return err
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return fmt.Errorf("fetch.requests_per_second must not be negative")
	}
	if c.Report.MaxRowsPerFile <= 0 {
		return fmt.Errorf("report.max_rows_per_file must be positive, got %d", c.Report.MaxRowsPerFile)
	}
	if c.Sheets.Enabled {
		if c.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("sheets.spreadsheet_id is required when sheets are enabled")
		}
		if c.Sheets.Range == "" {
			return fmt.Errorf("sheets.range is required when sheets are enabled")
		}
		if c.Sheets.CredentialsFile == "" {
			return fmt.Errorf("sheets.credentials_file is required when sheets are enabled")
		}
	}
	return nil
}

// FetchTimeout parses fetch.timeout. An empty value disables the timeout.
func (c *Config) FetchTimeout() (time.Duration, error) {
	if c.Fetch.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Fetch.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid fetch.timeout %q: %w", c.Fetch.Timeout, err)
	}
	return d, nil
}

// EscalationPath resolves the matrix workbook location.
func (c *Config) EscalationPath() string {
	if filepath.IsAbs(c.Escalation.File) {
		return c.Escalation.File
	}
	return filepath.Join(c.Fetch.DownloadDir, c.Escalation.File)
}

// HistoryPath resolves the ledger database location. It is empty when the
// ledger is disabled.
func (c *Config) HistoryPath() string {
	if !c.History.Enabled || c.History.Path == "" {
		return ""
	}
	if filepath.IsAbs(c.History.Path) {
		return c.History.Path
	}
	return filepath.Join(c.Fetch.DownloadDir, c.History.Path)
}

// ExpandHome replaces a leading ~ with the current user's home directory.
func ExpandHome(p string) string {
	if p == "~" {
		return homeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
