// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite     = "sqlite"
	DriverSQLitePure = "sqlite-pure"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type EmailConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Sender          string `yaml:"sender"`
	AccessKeyID     string `yaml:"-"` // Loaded from environment
	SecretAccessKey string `yaml:"-"` // Loaded from environment
}

type ClerkConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SecretKey string `yaml:"-"` // Loaded from environment
}

type JobsConfig struct {
	RemindersCron         string `yaml:"reminders_cron"`
	AutoConfirmCron       string `yaml:"auto_confirm_cron"`
	ChatRetentionCron     string `yaml:"chat_retention_cron"`
	ReminderHoursBefore   int    `yaml:"reminder_hours_before"`
	AutoConfirmAfterHours int    `yaml:"auto_confirm_after_hours"`
	ChatRetentionDays     int    `yaml:"chat_retention_days"`
}

// ChatConfig tunes the per-user token bucket for chat posts.
type ChatConfig struct {
	PostsPerSecond float64 `yaml:"posts_per_second"`
	PostBurst      int     `yaml:"post_burst"`
}

type Config struct {
	App struct {
		Name                   string   `yaml:"name"`
		Environment            string   `yaml:"environment"`
		Port                   int      `yaml:"port"`
		BaseURL                string   `yaml:"base_url"`
		CORSOrigins            []string `yaml:"cors_origins"`
		ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
		TrustProxy             bool     `yaml:"trust_proxy"`
		SecretKey              string   `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database DatabaseConfig `yaml:"database"`
	Email    EmailConfig    `yaml:"email"`
	Clerk    ClerkConfig    `yaml:"clerk"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Chat     ChatConfig     `yaml:"chat"`

	Features struct {
		EnableMetrics bool `yaml:"enable_metrics"`
		EnableDebug   bool `yaml:"enable_debug"`
	} `yaml:"features"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes yaml configuration, applies defaults and environment secrets, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg.applyDefaults()

	// Load sensitive values from environment
	cfg.App.SecretKey = os.Getenv("APP_SECRET_KEY")
	cfg.Email.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Email.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	cfg.Clerk.SecretKey = os.Getenv("CLERK_SECRET_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.App.ShutdownTimeoutSeconds <= 0 {
		c.App.ShutdownTimeoutSeconds = 30
	}
	if c.Jobs.RemindersCron == "" {
		c.Jobs.RemindersCron = "*/15 * * * *"
	}
	if c.Jobs.AutoConfirmCron == "" {
		c.Jobs.AutoConfirmCron = "0 * * * *"
	}
	if c.Jobs.ChatRetentionCron == "" {
		c.Jobs.ChatRetentionCron = "0 3 * * *"
	}
	if c.Jobs.ReminderHoursBefore <= 0 {
		c.Jobs.ReminderHoursBefore = 24
	}
	if c.Chat.PostsPerSecond == 0 {
		c.Chat.PostsPerSecond = 1
	}
	if c.Chat.PostBurst == 0 {
		c.Chat.PostBurst = 5
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverSQLitePure:
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Email.Enabled && strings.TrimSpace(c.Email.Sender) == "" {
		return fmt.Errorf("email sender is required when email is enabled")
	}
	if c.Jobs.AutoConfirmAfterHours < 0 {
		return fmt.Errorf("auto_confirm_after_hours must be 0 or greater")
	}
	if c.Jobs.ChatRetentionDays < 0 {
		return fmt.Errorf("chat_retention_days must be 0 or greater")
	}
	if c.Chat.PostsPerSecond < 0 || c.Chat.PostBurst < 0 {
		return fmt.Errorf("chat posts_per_second and post_burst must not be negative")
	}

	crons := map[string]string{
		"reminders_cron":      c.Jobs.RemindersCron,
		"auto_confirm_cron":   c.Jobs.AutoConfirmCron,
		"chat_retention_cron": c.Jobs.ChatRetentionCron,
	}
	for name, expr := range crons {
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, expr, err)
		}
	}

	return nil
}

// IsDevelopment reports whether the app runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.App.Environment == "development"
}
