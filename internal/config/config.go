package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/oshitechglobal/creatordeck/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Logger    logger.Config   `yaml:"logger"`
	Auth      AuthConfig      `yaml:"auth"`
	Webhooks  WebhookConfig   `yaml:"webhooks"`
	Progress  ProgressConfig  `yaml:"progress"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

// RedisConfig configures the realtime change-feed bus. An empty addr runs
// the feed in single-node mode without Redis.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

type AuthConfig struct {
	TOTPSecret string `yaml:"totp_secret"`
	SessionTTL string `yaml:"session_ttl"`
}

// WebhookConfig holds the fixed automation endpoint per flow.
type WebhookConfig struct {
	StageChange    string `yaml:"stage_change"`
	VideoAnalysis  string `yaml:"video_analysis"`
	CommentScrape  string `yaml:"comment_scrape"`
	Chapters       string `yaml:"chapters"`
	LinkedInPost   string `yaml:"linkedin_post"`
	RevenueContent string `yaml:"revenue_content"`
}

type ProgressConfig struct {
	// CompletionThreshold is the number of distinct platforms that must
	// have an entry before a day counts as complete.
	CompletionThreshold int    `yaml:"completion_threshold"`
	Timezone            string `yaml:"timezone"`
}

type OutboxConfig struct {
	DispatchInterval string `yaml:"dispatch_interval"`
	MaxAttempts      int    `yaml:"max_attempts"`
	// Enabled is a pointer so an explicit `enabled: false` survives
	// defaulting; absent means on.
	Enabled *bool `yaml:"enabled"`
}

func (c *OutboxConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

type DashboardConfig struct {
	RefreshInterval string `yaml:"refresh_interval"`
	RetentionDays   int    `yaml:"retention_days"`
	Enabled         *bool  `yaml:"enabled"`
}

func (c *DashboardConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5620
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "changefeed"
	}
	if cfg.Auth.SessionTTL == "" {
		cfg.Auth.SessionTTL = "720h"
	}
	if cfg.Progress.CompletionThreshold == 0 {
		cfg.Progress.CompletionThreshold = 3
	}
	if cfg.Progress.Timezone == "" {
		cfg.Progress.Timezone = "Local"
	}
	if cfg.Outbox.DispatchInterval == "" {
		cfg.Outbox.DispatchInterval = "30s"
	}
	if cfg.Outbox.MaxAttempts == 0 {
		cfg.Outbox.MaxAttempts = 8
	}
	if cfg.Dashboard.RefreshInterval == "" {
		cfg.Dashboard.RefreshInterval = "5m"
	}
	if cfg.Dashboard.RetentionDays == 0 {
		cfg.Dashboard.RetentionDays = 90
	}

	return cfg, nil
}
