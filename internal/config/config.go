package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config models homico.yml.
type Config struct {
	Marketplace struct {
		JobTTLDays        int      `yaml:"job_ttl_days"`
		BiddingCategories []string `yaml:"bidding_categories"`
	} `yaml:"marketplace"`
	Sweep struct {
		Enabled  bool   `yaml:"enabled"`
		Schedule string `yaml:"schedule"`
	} `yaml:"sweep"`
	Outbound OutboundConfig  `yaml:"outbound"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// OutboundConfig points side effects at the services that own them.
// Empty URLs fall back to log-only sinks.
type OutboundConfig struct {
	NotifyURL      string `yaml:"notify_url"`
	SMSURL         string `yaml:"sms_url"`
	RealtimeURL    string `yaml:"realtime_url"`
	PortfolioURL   string `yaml:"portfolio_url"`
	APIToken       string `yaml:"api_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	RetryCount     int    `yaml:"retry_count"`
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
}

// WebhookConfig subscribes an admin observer to the event log.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// JobTTL is how long a job stays open before the sweep expires it.
func (c *Config) JobTTL() time.Duration {
	days := c.Marketplace.JobTTLDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// BiddingAllowed reports whether proposals may be submitted for category.
// An empty allow-list admits every category.
func (c *Config) BiddingAllowed(category string) bool {
	if len(c.Marketplace.BiddingCategories) == 0 {
		return true
	}
	for _, cat := range c.Marketplace.BiddingCategories {
		if strings.EqualFold(cat, category) {
			return true
		}
	}
	return false
}

func (o OutboundConfig) Timeout() time.Duration {
	if o.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Marketplace.JobTTLDays < 0 {
		return fmt.Errorf("config.marketplace.job_ttl_days must not be negative")
	}
	for _, cat := range c.Marketplace.BiddingCategories {
		if strings.TrimSpace(cat) == "" {
			return fmt.Errorf("config.marketplace.bidding_categories contains an empty category")
		}
	}
	if c.Sweep.Enabled {
		if strings.TrimSpace(c.Sweep.Schedule) == "" {
			return fmt.Errorf("config.sweep.schedule is required when the sweep is enabled")
		}
		if _, err := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(c.Sweep.Schedule); err != nil {
			return fmt.Errorf("config.sweep.schedule: %w", err)
		}
	}
	if c.Outbound.Workers < 0 || c.Outbound.QueueSize < 0 || c.Outbound.RetryCount < 0 {
		return fmt.Errorf("config.outbound workers, queue_size and retry_count must not be negative")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "homico.yml")
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		return nil, fmt.Errorf("invalid default config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const defaultTemplate = `marketplace:
  job_ttl_days: 30
  # categories open to proposal-based bidding; other categories use comments
  bidding_categories:
    - architecture
    - interior_design
    - renovation
    - construction

sweep:
  enabled: true
  schedule: "0 0 3 * * *"

outbound:
  notify_url: ""
  sms_url: ""
  realtime_url: ""
  portfolio_url: ""
  timeout_seconds: 5
  retry_count: 2
  workers: 4
  queue_size: 256

webhooks: []
`
