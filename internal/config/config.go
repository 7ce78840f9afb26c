package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort = 2778
	defaultEnv  = "development"
	defaultDSN  = "root:password@tcp(127.0.0.1:3306)/membergate?charset=utf8mb4&parseTime=True&loc=Local"
	defaultRedi = "redis://localhost:6379/0"
)

// KitConfig holds credentials for the upstream email platform API.
type KitConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// MailConfig holds SMTP / Resend settings for the local code-email fallback.
type MailConfig struct {
	Enable    bool   `yaml:"enable"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Pass      string `yaml:"pass"`
	From      string `yaml:"from"`
	UseResend bool   `yaml:"use_resend"`
	ResendKey string `yaml:"resend_key"`
}

// AppConfig holds runtime startup configuration loaded from YAML.
// Everything that is author-editable at runtime (copy, thresholds, flags)
// lives in the settings module instead, persisted in the database.
type AppConfig struct {
	Port     int    `yaml:"port"`
	DSN      string `yaml:"dsn"` // MySQL DSN
	RedisURL string `yaml:"redis_url"`
	Env      string `yaml:"env"` // "development" | "production"
	SiteURL  string `yaml:"site_url"`
	SiteName string `yaml:"site_name"`
	// CacheExclusionFile is where externally managed cache layers read
	// their cookie exclusion list from. Empty disables the file registrar.
	CacheExclusionFile string     `yaml:"cache_exclusion_file"`
	TokenSecret        string     `yaml:"token_secret"`
	AllowedOrigins     []string   `yaml:"allowed_origins"`
	Kit                KitConfig  `yaml:"kit"`
	Mail               MailConfig `yaml:"mail"`
}

// Load reads and validates the YAML config file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := AppConfig{
		Port:     defaultPort,
		DSN:      defaultDSN,
		RedisURL: defaultRedi,
		Env:      defaultEnv,
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.Env == "" {
		cfg.Env = defaultEnv
	}
	cfg.SiteURL = strings.TrimSuffix(strings.TrimSpace(cfg.SiteURL), "/")
	return &cfg, nil
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool { return c.Env != "production" }
