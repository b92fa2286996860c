package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codingbridge/codingbridge/internal/approval"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config root configuration
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Approval      ApprovalConfig      `mapstructure:"approval"`
	Backend       BackendConfig       `mapstructure:"backend"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Policy        PolicyConfig        `mapstructure:"policy"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Log           LogConfig           `mapstructure:"log"`
}

// AppConfig general application settings
type AppConfig struct {
	Workspace string `mapstructure:"workspace"`
	ProjectID string `mapstructure:"project_id"`
}

// ApprovalConfig approval lifecycle settings
type ApprovalConfig struct {
	WarningSeconds    int `mapstructure:"warning_seconds"`
	ExpirationSeconds int `mapstructure:"expiration_seconds"`
	QueueLimit        int `mapstructure:"queue_limit"`
}

// BackendConfig backend bridge connection settings
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// GatewayConfig local HTTP API settings
type GatewayConfig struct {
	Host  string `mapstructure:"host"`
	Port  int    `mapstructure:"port"`
	Token string `mapstructure:"token"`
}

// PolicyConfig permission gate settings
type PolicyConfig struct {
	Mode      string `mapstructure:"mode"`
	RulesFile string `mapstructure:"rules_file"`
}

// NotificationsConfig notification channel settings
type NotificationsConfig struct {
	Desktop    bool           `mapstructure:"desktop"`
	WebhookURL string         `mapstructure:"webhook_url"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig telegram bot notification settings
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

// LogConfig logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DefaultConfig returns baseline settings.
func DefaultConfig() *Config {
	return &Config{
		Approval: ApprovalConfig{
			WarningSeconds:    120,
			ExpirationSeconds: 300,
			QueueLimit:        8,
		},
		Backend: BackendConfig{
			BaseURL:        "http://127.0.0.1:18800",
			TimeoutSeconds: 10,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18820,
		},
		Policy: PolicyConfig{
			Mode: "default",
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigDir returns the codingbridge config directory
func ConfigDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".codingbridge")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// WorkspacePath returns the directory holding state files.
func (c *Config) WorkspacePath() string {
	ws := strings.TrimSpace(c.App.Workspace)
	if ws == "" {
		return ConfigDir()
	}
	return ws
}

// TimeoutPolicy builds the approval timeout policy from config values.
func (c *Config) TimeoutPolicy() approval.TimeoutPolicy {
	return approval.TimeoutPolicy{
		Warning:    time.Duration(c.Approval.WarningSeconds) * time.Second,
		Expiration: time.Duration(c.Approval.ExpirationSeconds) * time.Second,
	}
}

// GatewayAddr returns the host:port the local API listens on.
func (c *Config) GatewayAddr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

// Load loads config from file or returns defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := ConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := Save(cfg); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("CODINGBRIDGE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save saves config to file
func Save(cfg *Config) error {
	configPath := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	a := &c.Approval

	if a.WarningSeconds <= 0 {
		return fmt.Errorf("approval.warning_seconds must be > 0, got %d", a.WarningSeconds)
	}
	if a.ExpirationSeconds <= a.WarningSeconds {
		return fmt.Errorf("approval.expiration_seconds must be > warning_seconds, got %d", a.ExpirationSeconds)
	}
	if a.QueueLimit < 0 {
		return fmt.Errorf("approval.queue_limit must not be negative, got %d", a.QueueLimit)
	}

	if c.Backend.TimeoutSeconds <= 0 {
		return fmt.Errorf("backend.timeout_seconds must be > 0, got %d", c.Backend.TimeoutSeconds)
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}

	mode := strings.ToLower(strings.TrimSpace(c.Policy.Mode))
	if mode != "" && mode != "default" && mode != "bypass" {
		return fmt.Errorf("policy.mode must be one of: default, bypass; got %q", c.Policy.Mode)
	}

	if c.Notifications.Telegram.Enabled {
		if strings.TrimSpace(c.Notifications.Telegram.Token) == "" {
			return fmt.Errorf("notifications.telegram.token is required when telegram is enabled")
		}
		if c.Notifications.Telegram.ChatID == 0 {
			return fmt.Errorf("notifications.telegram.chat_id is required when telegram is enabled")
		}
	}

	return nil
}
