// Package config provides YAML-based configuration loading for Hookyard.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Hookyard configuration, loaded from config.yaml.
type Config struct {
	Review       ReviewConfig       `yaml:"review"`
	IssueCopy    IssueCopyConfig    `yaml:"issue_copy"`
	IssueScoring IssueScoringConfig `yaml:"issue_scoring"`
	Logging      LoggingConfig      `yaml:"logging"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	GitHub       GitHubConfig       `yaml:"github"`
	Database     DatabaseConfig     `yaml:"database"`
}

// ReviewConfig controls the PR-review worker.
type ReviewConfig struct {
	Triggers        []string `yaml:"triggers"`
	SkipDraft       bool     `yaml:"skip_draft"`
	AutoLabel       bool     `yaml:"auto_label"`
	AutoLabelName   string   `yaml:"auto_label_name"`
	FocusAreas      []string `yaml:"focus_areas"`
	Language        string   `yaml:"language"`
	TimeoutSeconds  int      `yaml:"timeout_seconds"`
	DiffBudgetChars int      `yaml:"diff_budget_chars"`
	PoolSize        int      `yaml:"pool_size"`
	QueueSize       int      `yaml:"queue_size"`
	CLIPath         string   `yaml:"cli_path"`
}

// IssueCopyConfig controls the issue-copier worker.
type IssueCopyConfig struct {
	Enabled            bool              `yaml:"enabled"`
	SourceRepo         string            `yaml:"source_repo"`
	Triggers           []string          `yaml:"triggers"`
	LabelToRepo        map[string]string `yaml:"label_to_repo"`
	DefaultTargetRepo  string            `yaml:"default_target_repo"`
	AddSourceReference bool              `yaml:"add_source_reference"`
	CopyLabels         bool              `yaml:"copy_labels"`
	ReuploadImages     bool              `yaml:"reupload_images"`
	AddCopyComment     bool              `yaml:"add_copy_comment"`
	PoolSize           int               `yaml:"pool_size"`
	QueueSize          int               `yaml:"queue_size"`
}

// IssueScoringConfig controls the issue-scorer worker.
type IssueScoringConfig struct {
	Enabled                bool     `yaml:"enabled"`
	TargetRepos            []string `yaml:"target_repos"`
	Triggers               []string `yaml:"triggers"`
	CommentTriggers        []string `yaml:"comment_triggers"`
	AutoComment            bool     `yaml:"auto_comment"`
	Language               string   `yaml:"language"`
	FeedbackWindowDays     int      `yaml:"feedback_window_days"`
	FeedbackMinOccurrences int      `yaml:"feedback_min_occurrences"`
	TimeoutSeconds         int      `yaml:"timeout_seconds"`
	PoolSize               int      `yaml:"pool_size"`
	QueueSize              int      `yaml:"queue_size"`
	CLIPath                string   `yaml:"cli_path"`
	SnapshotCron           string   `yaml:"snapshot_cron"`
}

// LoggingConfig controls process-wide structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// GatewayConfig controls the gateway's HTTP surface and worker dispatch.
type GatewayConfig struct {
	Port               int    `yaml:"port"`
	WebUsername        string `yaml:"web_username"`
	PRReviewerURL      string `yaml:"pr_reviewer_url"`
	IssueCopierURL     string `yaml:"issue_copier_url"`
	IssueScorerURL     string `yaml:"issue_scorer_url"`
	DashboardTimeoutMS int    `yaml:"dashboard_timeout_ms"`
}

// GitHubConfig holds defaults for the GitHub REST client.
type GitHubConfig struct {
	APIBaseURL string `yaml:"api_base_url"`
}

// DatabaseConfig selects and configures the embedded task store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" (default) or "mysql"
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`   // mysql host
	Port     int    `yaml:"port"`   // mysql port
	Database string `yaml:"database"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if len(c.Review.Triggers) == 0 {
		c.Review.Triggers = []string{"opened", "synchronize", "reopened"}
	}
	if c.Review.AutoLabelName == "" {
		c.Review.AutoLabelName = "auto-reviewed"
	}
	if c.Review.Language == "" {
		c.Review.Language = "en"
	}
	if c.Review.TimeoutSeconds == 0 {
		c.Review.TimeoutSeconds = 300
	}
	if c.Review.DiffBudgetChars == 0 {
		c.Review.DiffBudgetChars = 60000
	}
	if c.Review.PoolSize == 0 {
		c.Review.PoolSize = 2
	}
	if c.Review.QueueSize == 0 {
		c.Review.QueueSize = 32
	}
	if c.Review.CLIPath == "" {
		c.Review.CLIPath = "claude"
	}

	if len(c.IssueCopy.Triggers) == 0 {
		c.IssueCopy.Triggers = []string{"opened", "labeled"}
	}
	if c.IssueCopy.PoolSize == 0 {
		c.IssueCopy.PoolSize = 4
	}
	if c.IssueCopy.QueueSize == 0 {
		c.IssueCopy.QueueSize = 32
	}

	if len(c.IssueScoring.Triggers) == 0 {
		c.IssueScoring.Triggers = []string{"opened"}
	}
	if len(c.IssueScoring.CommentTriggers) == 0 {
		c.IssueScoring.CommentTriggers = []string{"created"}
	}
	if c.IssueScoring.Language == "" {
		c.IssueScoring.Language = "en"
	}
	if c.IssueScoring.FeedbackWindowDays == 0 {
		c.IssueScoring.FeedbackWindowDays = 30
	}
	if c.IssueScoring.FeedbackMinOccurrences == 0 {
		c.IssueScoring.FeedbackMinOccurrences = 2
	}
	if c.IssueScoring.TimeoutSeconds == 0 {
		c.IssueScoring.TimeoutSeconds = 300
	}
	if c.IssueScoring.PoolSize == 0 {
		c.IssueScoring.PoolSize = 2
	}
	if c.IssueScoring.QueueSize == 0 {
		c.IssueScoring.QueueSize = 32
	}
	if c.IssueScoring.CLIPath == "" {
		c.IssueScoring.CLIPath = "claude"
	}
	if c.IssueScoring.SnapshotCron == "" {
		c.IssueScoring.SnapshotCron = "0 2 * * *"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Gateway.Port == 0 {
		c.Gateway.Port = 8080
	}
	if c.Gateway.DashboardTimeoutMS == 0 {
		c.Gateway.DashboardTimeoutMS = 2000
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "hookyard.db"
	}
	if c.Database.Driver == "mysql" && c.Database.Port == 0 {
		c.Database.Port = 3306
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	if c.IssueCopy.Enabled && c.IssueCopy.SourceRepo == "" {
		errs = append(errs, "issue_copy.source_repo is required when issue_copy.enabled is true")
	}
	if c.IssueScoring.Enabled && len(c.IssueScoring.TargetRepos) == 0 {
		errs = append(errs, "issue_scoring.target_repos must be non-empty when issue_scoring.enabled is true")
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "mysql" {
		errs = append(errs, fmt.Sprintf("database.driver must be sqlite or mysql, got %q", c.Database.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
