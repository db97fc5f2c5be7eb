// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the resend-send command.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL = "https://api.resend.com"
	defaultTimeout = 30 * time.Second
)

// Provider names accepted in the provider setting.
const (
	ProviderResend = "resend"
	ProviderSES    = "ses"
	ProviderStdout = "stdout"
)

// Config holds the complete application configuration.
type Config struct {
	Provider string        `yaml:"provider"`
	Resend   ResendConfig  `yaml:"resend"`
	SES      SESConfig     `yaml:"ses"`
	TLS      TLSConfig     `yaml:"tls"`
	Message  MessageConfig `yaml:"message"`
	Logging  LoggingConfig `yaml:"logging"`
}

// ResendConfig holds the HTTP API settings.
type ResendConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// SESConfig holds Amazon SES settings. Empty keys fall back to the default
// AWS credential chain.
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// TLSConfig holds client TLS material for the HTTP API connection.
type TLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// MessageConfig holds defaults applied to outgoing messages.
type MessageConfig struct {
	DefaultFrom string `yaml:"default_from"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()
	cfg.Provider = strings.ToLower(cfg.Provider)

	return cfg, nil
}

// ResendConfigured returns true if an API key is set.
func (c *Config) ResendConfigured() bool {
	return c.Resend.APIKey != ""
}

// SESConfigured returns true if an SES region is set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != ""
}

// TLSConfigured returns true if any client TLS file is set.
func (c *Config) TLSConfigured() bool {
	return c.TLS.CAFile != "" || c.TLS.CertFile != "" || c.TLS.KeyFile != ""
}

// SelectedProvider resolves an empty provider setting: resend when an API
// key is configured, stdout otherwise.
func (c *Config) SelectedProvider() string {
	if c.Provider != "" {
		return c.Provider
	}
	if c.ResendConfigured() {
		return ProviderResend
	}
	return ProviderStdout
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Resend.BaseURL = defaultBaseURL
	c.Resend.Timeout = defaultTimeout
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		c.Resend.APIKey = v
	}
	if v := os.Getenv("RESEND_BASE_URL"); v != "" {
		c.Resend.BaseURL = v
	}
	if v := os.Getenv("RESEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Resend.Timeout = d
		}
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_CONFIGURATION_SET"); v != "" {
		c.SES.ConfigurationSet = v
	}

	if v := os.Getenv("TLS_CA_FILE"); v != "" {
		c.TLS.CAFile = v
	}
	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		c.TLS.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		c.TLS.KeyFile = v
	}

	if v := os.Getenv("MAIL_FROM"); v != "" {
		c.Message.DefaultFrom = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
